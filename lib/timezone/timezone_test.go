package timezone

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDate(t *testing.T) {
	d := Date(2023, time.November, 25)

	require.Equal(t, 2023, d.Year())
	require.Equal(t, time.November, d.Month())
	require.Equal(t, 25, d.Day())
	require.Equal(t, 0, d.Hour())

	zone, _ := d.Zone()
	require.Contains(t, []string{"CET", "CEST"}, zone)
}

func TestNowIsAnchored(t *testing.T) {
	require.Equal(t, Location, Now().Location())
}
