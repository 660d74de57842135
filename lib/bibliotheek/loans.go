package bibliotheek

import (
	"net/url"
	"strings"

	"mijnbib/lib/htmlutil"

	"github.com/PuerkitoBio/goquery"
)

// The loans page has shipped in two generations so far. Both render the
// same card markup, they differ in how a loan gets extended: the older one
// puts a "Verleng" anchor on every extendable card, the newer one only
// renders selection checkboxes and a single submit for the whole page.
type loansVariant int

const (
	loansUnknown loansVariant = iota
	// loansEmpty is the page scaffold without a single loan card.
	loansEmpty
	// loansButton is the older generation with a per-card extend anchor.
	loansButton
	// loansSelect is the newer generation with data-renew-loan checkboxes.
	loansSelect
)

const (
	loansWrapperSelector  = "div.my-library-user-library-account-loans__loan-wrapper"
	loansScaffoldSelector = "[class*='my-library-user-library-account-loans']"
	renewCheckboxSelector = "input[data-renew-loan]"
	notExtendableMarker   = "Verlengen niet mogelijk"
)

// detectLoansVariant is a pure function from document to variant tag.
// Extraction never second-guesses its verdict.
func detectLoansVariant(doc *goquery.Document) loansVariant {
	wrapper := doc.Find(loansWrapperSelector)
	if wrapper.Length() == 0 {
		if doc.Find(loansScaffoldSelector).Length() > 0 {
			return loansEmpty
		}
		return loansUnknown
	}
	if wrapper.Find(renewCheckboxSelector).Length() > 0 {
		return loansSelect
	}
	return loansButton
}

// ParseLoans turns a loans listing page into Loan records. The baseUrl is
// used to absolutize detail, cover and extension urls; accountId is the
// membership the page was fetched for and is stamped on every record.
//
// Parsing is pure: the same document always yields the same records.
func ParseLoans(source []byte, baseUrl *url.URL, accountId string) ([]Loan, error) {
	doc, err := newDocument(source)
	if err != nil {
		return nil, err
	}

	variant := detectLoansVariant(doc)
	if variant == loansUnknown {
		if strings.Contains(string(source), siteErrorMarker) {
			return nil, &TemporarySiteError{Message: siteErrorMarker}
		}
		return nil, incompatible("loans page does not match any known generation", source)
	}
	if variant == loansEmpty {
		return nil, nil
	}

	var loans []Loan
	var parseErr error

	// Branch names are h2 siblings interleaved between the loan cards, so
	// cards are walked in order while the current branch is tracked.
	branch := ""
	doc.Find(loansWrapperSelector).Children().EachWithBreak(func(_ int, child *goquery.Selection) bool {
		if child.Is("h2") {
			branch = cleanText(child)
			return true
		}
		if !child.Is("div") {
			return true
		}
		loan, err := parseLoanCard(child, variant, baseUrl, branch, accountId, source)
		if err != nil {
			parseErr = err
			return false
		}
		loans = append(loans, loan)
		return true
	})
	if parseErr != nil {
		return nil, parseErr
	}
	return loans, nil
}

func parseLoanCard(card *goquery.Selection, variant loansVariant, baseUrl *url.URL, branch, accountId string, source []byte) (Loan, error) {
	loan := Loan{
		Branch:    branch,
		AccountId: accountId,
	}

	// The title anchor establishes the record's identity. Without it there
	// is no loan to report.
	titleAnchor := card.Find("h3[class*='loan-title'] a").First()
	if titleAnchor.Length() == 0 {
		return Loan{}, incompatible("loan card is missing its title link", source)
	}
	loan.Title = cleanText(titleAnchor)
	href := titleAnchor.AttrOr("href", "")
	loan.Url = htmlutil.ResolveUrl(baseUrl, href)
	loan.Id = itemIdFromResolverUrl(href)
	if loan.Id == "" {
		return Loan{}, incompatible("loan title link carries no item id", source)
	}

	loan.Author = cleanText(card.Find("div.author").First())
	loan.Type = cleanText(card.Find("div[class*='loan-type-label']").First())
	if cover, ok := card.Find("img[class*='loan-cover-img']").First().Attr("src"); ok {
		loan.CoverUrl = htmlutil.ResolveUrl(baseUrl, cover)
	}

	// Van / Tot en met dates live in label+value span pairs.
	spans := card.Find("div[class*='loan-from-to'] span")
	if spans.Length() < 4 {
		return Loan{}, incompatible("loan card is missing its from/till dates", source)
	}
	var err error
	loan.From, err = parseRequiredDate("loan start", spans.Eq(1).Text(), source)
	if err != nil {
		return Loan{}, err
	}
	loan.Till, err = parseRequiredDate("loan end", spans.Eq(3).Text(), source)
	if err != nil {
		return Loan{}, err
	}

	err = parseExtendArea(&loan, card, variant, baseUrl, accountId, source)
	if err != nil {
		return Loan{}, err
	}
	return loan, nil
}

func parseExtendArea(loan *Loan, card *goquery.Selection, variant loansVariant, baseUrl *url.URL, accountId string, source []byte) error {
	area := card.Find("div[class*='extend-loan']").First()
	if area.Length() == 0 || strings.Contains(area.Text(), notExtendableMarker) {
		return nil
	}

	switch variant {
	case loansButton:
		anchor := area.Find("a").First()
		if anchor.Length() == 0 {
			return nil
		}
		href := anchor.AttrOr("href", "")
		extendUrl := htmlutil.ResolveUrl(baseUrl, href)
		parsed, err := url.Parse(extendUrl)
		if err != nil {
			return incompatible("extend link is not a valid url", source)
		}
		extendId := parsed.Query().Get("loan-ids")
		if extendId == "" {
			return incompatible("extend link carries no loan-ids parameter", source)
		}
		loan.Extendable = true
		loan.ExtendUrl = extendUrl
		loan.ExtendId = extendId

	case loansSelect:
		checkbox := area.Find(renewCheckboxSelector).First()
		if checkbox.Length() == 0 {
			return nil
		}
		extendId := checkbox.AttrOr("id", checkbox.AttrOr("value", ""))
		if extendId == "" {
			return incompatible("renew checkbox carries no extend id", source)
		}
		// This generation renders no per-card url, the endpoint follows
		// from the membership id.
		loan.Extendable = true
		loan.ExtendId = extendId
		loan.ExtendUrl = htmlutil.ResolveUrl(
			baseUrl,
			membershipPath(accountId, "uitleningen/verlengen")+"?loan-ids="+extendId,
		)
	}
	return nil
}
