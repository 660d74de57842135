package bibliotheek

import (
	"errors"
	"net/url"
	"testing"

	"mijnbib/lib/timezone"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

var testBaseUrl, _ = url.Parse("https://city.bibliotheek.be")

const erebusLoansPage = `
<div class="my-library-user-library-account-loans__loan-wrapper">
<h2>Gent Hoofdbibliotheek</h2>
<div class="card my-library-user-library-account-loans__loan">
  <div class="my-library-user-library-account-loans__loan-content card--content">
    <div class="my-library-user-library-account-loans__loan-cover card--cover">
      <img class="my-library-user-library-account-loans__loan-cover-img card--cover-img"
        src="https://webservices.bibliotheek.be/index.php?func=cover&amp;ISBN=9789000359325&amp;coversize=medium"
        alt="Erebus">
    </div>
    <div class="my-library-user-library-account-loans__loan-intro card--intro">
      <div class="my-library-user-library-account-loans__loan-type-label card--type-label">
        Boek</div>
      <h3 class="my-library-user-library-account-loans__loan-title card--title"><a
        href="https://city.bibliotheek.be/resolver.ashx?extid=%7Cwise-oostvlaanderen%7C1324927">Erebus</a></h3>
    </div>
  </div>
  <div class="my-library-user-library-account-loans__loan-footer card--footer">
    <div class="author">
      Palin, Michael
    </div>
    <div class="my-library-user-library-account-loans__loan-from-to card--from-to">
      <div>
        <span>Van</span>
        <span>25/11/2023</span>
      </div>
      <div>
        <span>Tot en met</span>
        <span>23/12/2023</span>
      </div>
    </div>
    <div class="my-library-user-library-account-loans__extend-loan card--extend-loan">
      <a href="/mijn-bibliotheek/lidmaatschappen/123456/uitleningen/verlengen?loan-ids=789">Verleng</a>
    </div>
  </div>
</div>
</div>`

func TestParseLoansButtonVariant(t *testing.T) {
	loans, err := ParseLoans([]byte(erebusLoansPage), testBaseUrl, "123456")
	require.NoError(t, err)
	require.Len(t, loans, 1)

	expected := Loan{
		Title:      "Erebus",
		Author:     "Palin, Michael",
		Type:       "Boek",
		From:       timezone.Date(2023, 11, 25),
		Till:       timezone.Date(2023, 12, 23),
		Extendable: true,
		ExtendId:   "789",
		ExtendUrl:  "https://city.bibliotheek.be/mijn-bibliotheek/lidmaatschappen/123456/uitleningen/verlengen?loan-ids=789",
		Branch:     "Gent Hoofdbibliotheek",
		Id:         "1324927",
		Url:        "https://city.bibliotheek.be/resolver.ashx?extid=%7Cwise-oostvlaanderen%7C1324927",
		CoverUrl:   "https://webservices.bibliotheek.be/index.php?func=cover&ISBN=9789000359325&coversize=medium",
		AccountId:  "123456",
	}
	diff := cmp.Diff(expected, loans[0])
	require.Empty(t, diff)
}

const selectLoansPage = `
<div class="my-library-user-library-account-loans__loan-wrapper">
<h2>Brugge Centrum</h2>
<div class="card my-library-user-library-account-loans__loan">
  <div class="my-library-user-library-account-loans__loan-intro card--intro">
    <h3 class="my-library-user-library-account-loans__loan-title card--title"><a
      href="https://city.bibliotheek.be/resolver.ashx?extid=%7Cwise-westvlaanderen%7C555">Dune</a></h3>
  </div>
  <div class="my-library-user-library-account-loans__loan-from-to card--from-to">
    <div><span>Van</span><span>01/02/2024</span></div>
    <div><span>Tot en met</span><span>29/02/2024</span></div>
  </div>
  <div class="my-library-user-library-account-loans__extend-loan card--extend-loan">
    <div>
      <input type="checkbox" id="6207416" value="6207416" data-renew-loan="">
      <label for="6207416">Selecteren</label>
    </div>
  </div>
</div>
<div class="card my-library-user-library-account-loans__loan">
  <div class="my-library-user-library-account-loans__loan-intro card--intro">
    <h3 class="my-library-user-library-account-loans__loan-title card--title"><a
      href="https://city.bibliotheek.be/resolver.ashx?extid=%7Cwise-westvlaanderen%7C556">Hyperion</a></h3>
  </div>
  <div class="my-library-user-library-account-loans__loan-from-to card--from-to">
    <div><span>Van</span><span>01/02/2024</span></div>
    <div><span>Tot en met</span><span>29/02/2024</span></div>
  </div>
  <div class="my-library-user-library-account-loans__extend-loan card--extend-loan">
    Verlengen niet mogelijk
  </div>
</div>
</div>`

func TestParseLoansSelectVariant(t *testing.T) {
	loans, err := ParseLoans([]byte(selectLoansPage), testBaseUrl, "98765")
	require.NoError(t, err)
	require.Len(t, loans, 2)

	require.Equal(t, "Dune", loans[0].Title)
	require.True(t, loans[0].Extendable)
	require.Equal(t, "6207416", loans[0].ExtendId)
	require.Equal(t,
		"https://city.bibliotheek.be/mijn-bibliotheek/lidmaatschappen/98765/uitleningen/verlengen?loan-ids=6207416",
		loans[0].ExtendUrl)

	require.Equal(t, "Hyperion", loans[1].Title)
	require.False(t, loans[1].Extendable)
	require.Empty(t, loans[1].ExtendId)
	require.Empty(t, loans[1].ExtendUrl)

	for _, loan := range loans {
		require.Equal(t, "Brugge Centrum", loan.Branch)
		require.Equal(t, "98765", loan.AccountId)
	}
}

func TestParseLoansInvariants(t *testing.T) {
	for _, page := range []string{erebusLoansPage, selectLoansPage} {
		loans, err := ParseLoans([]byte(page), testBaseUrl, "42")
		require.NoError(t, err)
		for _, loan := range loans {
			require.False(t, loan.Till.Before(loan.From), "loan %q runs backwards", loan.Title)
			require.Equal(t, loan.Extendable, loan.ExtendId != "", "loan %q", loan.Title)
			require.Equal(t, "42", loan.AccountId)
		}
	}
}

func TestParseLoansIsIdempotent(t *testing.T) {
	first, err := ParseLoans([]byte(erebusLoansPage), testBaseUrl, "123456")
	require.NoError(t, err)
	second, err := ParseLoans([]byte(erebusLoansPage), testBaseUrl, "123456")
	require.NoError(t, err)

	diff := cmp.Diff(first, second)
	require.Empty(t, diff)
}

func TestParseLoansEmptyPage(t *testing.T) {
	page := `<div class="my-library-user-library-account-loans"><p>Geen uitleningen</p></div>`
	loans, err := ParseLoans([]byte(page), testBaseUrl, "1")
	require.NoError(t, err)
	require.Empty(t, loans)
}

func TestParseLoansUnknownMarkup(t *testing.T) {
	page := `<html><body><h1>Welkom bij de vernieuwde site</h1></body></html>`
	_, err := ParseLoans([]byte(page), testBaseUrl, "1")

	var incompatibleErr *IncompatibleSourceError
	require.True(t, errors.As(err, &incompatibleErr))
	require.NotEmpty(t, incompatibleErr.Excerpt)
}

func TestParseLoansSiteErrorBanner(t *testing.T) {
	page := `<html><body><p>Er is een fout opgetreden bij het ophalen van informatie uit het bibliotheeksysteem. Probeer het later opnieuw.</p></body></html>`
	_, err := ParseLoans([]byte(page), testBaseUrl, "1")

	var tempErr *TemporarySiteError
	require.True(t, errors.As(err, &tempErr))
}

func TestParseLoansGarbledDate(t *testing.T) {
	page := `
<div class="my-library-user-library-account-loans__loan-wrapper">
<h2>Gent</h2>
<div class="card">
  <h3 class="my-library-user-library-account-loans__loan-title card--title"><a
    href="https://city.bibliotheek.be/resolver.ashx?extid=%7Cx%7C1">T</a></h3>
  <div class="my-library-user-library-account-loans__loan-from-to">
    <div><span>Van</span><span>volgende week</span></div>
    <div><span>Tot en met</span><span>23/12/2023</span></div>
  </div>
</div>
</div>`
	_, err := ParseLoans([]byte(page), testBaseUrl, "1")

	var incompatibleErr *IncompatibleSourceError
	require.True(t, errors.As(err, &incompatibleErr))
}
