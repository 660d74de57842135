package bibliotheek

import "time"

// Records returned by this package are value snapshots of what the portal
// rendered at fetch time. A fresh parse supersedes an older one, nothing
// updates records in place.
//
// Calendar dates carry midnight in timezone.Location (the portal renders
// Belgian civil dates, dd/mm/yyyy). A zero time.Time marks an optional date
// the portal did not render.

type AccountStatus string

const (
	AccountOk AccountStatus = "ok"
	// AccountInError marks a membership the portal itself flags as broken.
	// Its counts and amounts are unknown, its loan and hold pages may still
	// work.
	AccountInError AccountStatus = "in-error"
)

// Account is one library membership of the logged-in profile.
type Account struct {
	// Id is the membership identifier the portal uses in its urls.
	Id   string
	Name string
	// User is the patron name the membership is registered to.
	User   string
	Status AccountStatus

	// LoansCount and HoldsCount are -1 when the portal did not report them,
	// which is always the case for in-error memberships.
	LoansCount int
	HoldsCount int
	// OpenAmount is the outstanding fee balance in euro.
	OpenAmount float64

	LoansUrl      string
	HoldsUrl      string
	OpenAmountUrl string
}

// Loan is one borrowed item on an account.
type Loan struct {
	Title  string
	Author string
	// Type is the item kind label the portal renders, e.g. "Boek".
	Type string
	From time.Time
	Till time.Time

	// Extendable reports whether the portal currently offers an extension
	// for this loan. ExtendId is set exactly when Extendable is true.
	Extendable bool
	ExtendId   string
	ExtendUrl  string

	// Branch is the library branch the item was borrowed from.
	Branch string
	// Id distinguishes title instances, taken from the resolver url.
	Id       string
	Url      string
	CoverUrl string

	AccountId string
}

// Reservation is one hold an account has placed.
type Reservation struct {
	Title  string
	Author string
	Type   string

	// Available reports whether the item is ready for pickup. While false
	// the item is still on its way to the pickup branch.
	Available bool
	// Location is the pickup branch.
	Location string

	RequestedOn time.Time
	// ValidTill is how long the request stays active. The portal drops it
	// once the item is available.
	ValidTill time.Time
	// AvailableTill is the pickup deadline, set once Available.
	AvailableTill time.Time

	Url       string
	AccountId string
}

// AccountInfo bundles everything known about one membership.
type AccountInfo struct {
	Account      Account
	Loans        []Loan
	Reservations []Reservation
}

// ExtensionResult is the portal's answer to an extension request: the
// refreshed loan listing it renders afterwards, plus the status messages it
// embedded, when any were found.
type ExtensionResult struct {
	Loans []Loan
	// Messages are the raw portal status lines, e.g. "Deze uitleningen
	// werden succesvol verlengd:". Diagnostic only, the refreshed Loans are
	// the authoritative outcome.
	Messages []string
}
