package bibliotheek

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"mijnbib/lib/timezone"

	"github.com/PuerkitoBio/goquery"
)

// The portal renders Belgian civil dates, dd/mm/yyyy.
const dateFormat = "02/01/2006"

// The banner the portal renders on loan and hold pages when its backend
// library system is down.
const siteErrorMarker = "Er is een fout opgetreden bij het ophalen van informatie uit het bibliotheeksysteem"

func parseDate(text string) (time.Time, error) {
	return time.ParseInLocation(dateFormat, strings.TrimSpace(text), timezone.Location)
}

// parseRequiredDate treats unparseable date text as a markup failure. A
// silently wrong date is worse than a loud error.
func parseRequiredDate(field, text string, source []byte) (time.Time, error) {
	parsed, err := parseDate(text)
	if err != nil {
		return time.Time{}, incompatible(
			fmt.Sprintf("%s %q is not a %s date", field, strings.TrimSpace(text), dateFormat),
			source,
		)
	}
	return parsed, nil
}

// parseOptionalDate degrades absent text to the zero time but still treats
// present-but-garbled text as a markup failure.
func parseOptionalDate(field, text string, source []byte) (time.Time, error) {
	if strings.TrimSpace(text) == "" {
		return time.Time{}, nil
	}
	return parseRequiredDate(field, text, source)
}

func newDocument(source []byte) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewBuffer(source))
	if err != nil {
		return nil, incompatible("document is not parseable html", source)
	}
	return doc, nil
}

// membershipPath builds the portal path for one membership page,
// e.g. leaf "uitleningen" for loans or "reservaties" for holds.
func membershipPath(accountId, leaf string) string {
	return membershipsPagePath + "/" + accountId + "/" + leaf
}

// itemIdFromResolverUrl pulls the title instance id out of a resolver href.
// Hrefs look like
// https://city.bibliotheek.be/resolver.ashx?extid=%7Cwise-oostvlaanderen%7C1324927
// and the trailing segment is the only stable per-item identifier the
// portal exposes.
func itemIdFromResolverUrl(href string) string {
	sep := "%7C"
	if !strings.Contains(href, sep) {
		sep = "|"
		if !strings.Contains(href, sep) {
			return ""
		}
	}
	parts := strings.Split(href, sep)
	return parts[len(parts)-1]
}

// cleanText flattens the whitespace goquery text extraction leaves behind.
func cleanText(s *goquery.Selection) string {
	return strings.Join(strings.Fields(s.Text()), " ")
}
