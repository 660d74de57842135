package timezone

import "time"

// Location is the portal's civil timezone. The portal renders bare
// dd/mm/yyyy dates; anchoring them all in Brussels time keeps
// Year()/Month()/Day() arithmetic stable no matter where this code runs.
var Location *time.Location

func init() {
	var err error
	Location, err = time.LoadLocation("Europe/Brussels")
	if err != nil {
		panic(err)
	}
}

func Now() time.Time {
	return time.Now().In(Location)
}

// Date returns midnight of the given civil date in Location.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, Location)
}
