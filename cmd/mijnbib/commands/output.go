package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"mijnbib/lib/bibliotheek"
	"mijnbib/lib/serviceutil"

	"github.com/jedib0t/go-pretty/v6/table"
)

func newTable() table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetOutputMirror(os.Stdout)
	return t
}

func printJson(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	err := enc.Encode(v)
	if err != nil {
		serviceutil.Fatal("failed to encode output", err)
	}
}

// formatDate renders a portal calendar date the way the portal does. Zero
// times are optional dates the portal did not render.
func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("02/01/2006")
}

func renderAccounts(accounts []bibliotheek.Account) {
	if *jsonOutput {
		printJson(accounts)
		return
	}

	t := newTable()
	t.AppendHeader(table.Row{"Id", "Library", "Patron", "Status", "Loans", "Holds", "Open amount"})
	for _, a := range accounts {
		t.AppendRow(table.Row{
			a.Id, a.Name, a.User, a.Status,
			formatCount(a.LoansCount), formatCount(a.HoldsCount),
			fmt.Sprintf("€ %.2f", a.OpenAmount),
		})
	}
	t.Render()
}

func formatCount(n int) string {
	if n < 0 {
		return "?"
	}
	return fmt.Sprintf("%d", n)
}

func renderLoans(loans []bibliotheek.Loan) {
	if *jsonOutput {
		printJson(loans)
		return
	}

	t := newTable()
	t.AppendHeader(table.Row{"Title", "Author", "Type", "From", "Till", "Extendable", "Branch"})
	for _, l := range loans {
		extendable := ""
		if l.Extendable {
			extendable = l.ExtendId
		}
		t.AppendRow(table.Row{
			l.Title, l.Author, l.Type,
			formatDate(l.From), formatDate(l.Till),
			extendable, l.Branch,
		})
	}
	t.Render()
}

func renderHolds(holds []bibliotheek.Reservation) {
	if *jsonOutput {
		printJson(holds)
		return
	}

	t := newTable()
	t.AppendHeader(table.Row{"Title", "Author", "Location", "Available", "Requested", "Valid till", "Pick up by"})
	for _, h := range holds {
		available := ""
		if h.Available {
			available = "yes"
		}
		t.AppendRow(table.Row{
			h.Title, h.Author, h.Location, available,
			formatDate(h.RequestedOn), formatDate(h.ValidTill), formatDate(h.AvailableTill),
		})
	}
	t.Render()
}
