package bibliotheek

import (
	"net/url"
	"strings"

	"mijnbib/lib/htmlutil"

	"github.com/PuerkitoBio/goquery"
)

// The holds page has shipped in two generations. The current one renders
// each hold as a card of four sections (dates, teaser, pickup location,
// availability); the older one rendered a flat list of catalog teasers
// with the status folded into the teaser itself.
type holdsVariant int

const (
	holdsUnknown holdsVariant = iota
	holdsEmpty
	holdsSectioned
	holdsTeaser
)

const (
	holdsWrapperSelector  = "div.my-library-user-library-account-holds__hold-wrapper"
	holdsScaffoldSelector = "[class*='my-library-user-library-account-holds']"
	holdsTeaserSelector   = "div.my-library-user-library-account-holds__holds-list div.catalog-item-small-teaser"

	holdAvailableMarker = "Klaar om af te halen"
	holdRequestedMarker = "Aangevraagd op"
	holdValidMarker     = "Aanvraag geldig tot"
)

func detectHoldsVariant(doc *goquery.Document) holdsVariant {
	if doc.Find(holdsWrapperSelector).Length() > 0 {
		return holdsSectioned
	}
	if doc.Find(holdsTeaserSelector).Length() > 0 {
		return holdsTeaser
	}
	if doc.Find(holdsScaffoldSelector).Length() > 0 {
		return holdsEmpty
	}
	return holdsUnknown
}

// ParseReservations turns a holds listing page into Reservation records.
func ParseReservations(source []byte, baseUrl *url.URL, accountId string) ([]Reservation, error) {
	doc, err := newDocument(source)
	if err != nil {
		return nil, err
	}

	variant := detectHoldsVariant(doc)
	if variant == holdsUnknown {
		if strings.Contains(string(source), siteErrorMarker) {
			return nil, &TemporarySiteError{Message: siteErrorMarker}
		}
		return nil, incompatible("holds page does not match any known generation", source)
	}
	if variant == holdsEmpty {
		return nil, nil
	}

	var holds []Reservation
	var parseErr error

	var cards *goquery.Selection
	if variant == holdsSectioned {
		cards = doc.Find(holdsWrapperSelector).Children().Filter("div")
	} else {
		cards = doc.Find(holdsTeaserSelector)
	}

	cards.EachWithBreak(func(_ int, card *goquery.Selection) bool {
		hold, err := parseHoldCard(card, variant, baseUrl, accountId, source)
		if err != nil {
			parseErr = err
			return false
		}
		holds = append(holds, hold)
		return true
	})
	if parseErr != nil {
		return nil, parseErr
	}
	return holds, nil
}

func parseHoldCard(card *goquery.Selection, variant holdsVariant, baseUrl *url.URL, accountId string, source []byte) (Reservation, error) {
	hold := Reservation{AccountId: accountId}

	// Both generations share the catalog teaser for the title.
	titleAnchor := card.Find("h2.catalog-item-small-teaser__title a").First()
	if titleAnchor.Length() == 0 {
		return Reservation{}, incompatible("hold card is missing its title link", source)
	}
	hold.Title = cleanText(titleAnchor)
	hold.Url = htmlutil.ResolveUrl(baseUrl, titleAnchor.AttrOr("href", ""))

	hold.Author = cleanText(card.Find("div.catalog-item-small-teaser__authors").First())
	hold.Type = cleanText(card.Find("div.catalog-item-small-teaser__content span").First())

	var err error
	switch variant {
	case holdsSectioned:
		err = parseHoldSections(&hold, card, source)
	case holdsTeaser:
		err = parseHoldTeaserStatus(&hold, card, source)
	}
	if err != nil {
		return Reservation{}, err
	}
	return hold, nil
}

func parseHoldSections(hold *Reservation, card *goquery.Selection, source []byte) error {
	var err error

	// First section: request and validity dates. Both disappear once the
	// item is ready for pickup.
	card.Find("[class*='card--first-section'] p").Each(func(_ int, p *goquery.Selection) {
		if err != nil {
			return
		}
		text := cleanText(p)
		switch {
		case strings.Contains(text, holdRequestedMarker):
			hold.RequestedOn, err = parseOptionalDate(
				"hold request date",
				strings.TrimSpace(strings.ReplaceAll(text, holdRequestedMarker, "")),
				source,
			)
		case strings.Contains(text, holdValidMarker):
			hold.ValidTill, err = parseOptionalDate(
				"hold validity date",
				strings.TrimSpace(strings.ReplaceAll(text, holdValidMarker, "")),
				source,
			)
		}
	})
	if err != nil {
		return err
	}

	hold.Location = cleanText(card.Find("[class*='card--third-section'] strong").First())

	status := card.Find("[class*='card--fourth-section']").First()
	hold.Available = strings.Contains(status.Find("h3").Text(), holdAvailableMarker)
	if hold.Available {
		hold.AvailableTill, err = parseOptionalDate(
			"hold pickup deadline",
			status.Find("strong").First().Text(),
			source,
		)
		if err != nil {
			return err
		}
	}
	return nil
}

func parseHoldTeaserStatus(hold *Reservation, card *goquery.Selection, source []byte) error {
	hold.Location = cleanText(card.Find("span.hold-location").First())

	status := cleanText(card.Find("div.hold-status").First())
	hold.Available = strings.Contains(status, holdAvailableMarker)

	var err error
	card.Find("div.catalog-item-small-teaser__content p").Each(func(_ int, p *goquery.Selection) {
		if err != nil {
			return
		}
		text := cleanText(p)
		switch {
		case strings.Contains(text, holdRequestedMarker):
			hold.RequestedOn, err = parseOptionalDate(
				"hold request date",
				strings.TrimSpace(strings.ReplaceAll(text, holdRequestedMarker, "")),
				source,
			)
		case strings.Contains(text, holdValidMarker):
			hold.ValidTill, err = parseOptionalDate(
				"hold validity date",
				strings.TrimSpace(strings.ReplaceAll(text, holdValidMarker, "")),
				source,
			)
		}
	})
	return err
}
