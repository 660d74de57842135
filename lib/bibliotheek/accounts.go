package bibliotheek

import (
	"encoding/json"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"mijnbib/lib/htmlutil"
	"mijnbib/lib/textutil"

	"github.com/PuerkitoBio/goquery"
)

// Memberships have shipped in two generations: the current portal serves a
// JSON payload from its my-library api, older portals rendered membership
// cards as html. Both map onto the same Account records.
type accountsVariant int

const (
	accountsUnknown accountsVariant = iota
	accountsJson
	accountsHtml
)

const accountCardSelector = "div[class*='my-library-user-library-accounts__account']"

func detectAccountsVariant(source []byte, doc *goquery.Document) accountsVariant {
	trimmed := strings.TrimSpace(string(source))
	if strings.HasPrefix(trimmed, "{") {
		return accountsJson
	}
	if doc != nil && doc.Find(accountCardSelector).Length() > 0 {
		return accountsHtml
	}
	return accountsUnknown
}

// membership is one entry of the api payload. The portal groups entries
// under arbitrary profile labels, so the top level is a map.
type membership struct {
	HasError    bool   `json:"hasError"`
	Id          string `json:"id"`
	IsBlocked   bool   `json:"isBlocked"`
	IsExpired   bool   `json:"isExpired"`
	LibraryName string `json:"libraryName"`
	Library     string `json:"library"`
	Name        string `json:"name"`
}

// membershipActivity is the per-account counts document of the json
// generation, served separately from the memberships list.
type membershipActivity struct {
	LoanHistoryUrl string `json:"loanHistoryUrl"`
	NumberOfHolds  int    `json:"numberOfHolds"`
	NumberOfLoans  int    `json:"numberOfLoans"`
	OpenAmount     string `json:"openAmount"`
}

// ParseAccounts turns a memberships document (json or html generation)
// into Account records. Counts of the json generation arrive in separate
// activity documents; those accounts report -1 until the caller fills
// them in, which Client.Accounts does.
func ParseAccounts(source []byte, baseUrl *url.URL) ([]Account, error) {
	variant := detectAccountsVariant(source, nil)
	if variant == accountsJson {
		return parseAccountsJson(source, baseUrl)
	}

	doc, err := newDocument(source)
	if err != nil {
		return nil, err
	}
	if detectAccountsVariant(source, doc) != accountsHtml {
		return nil, incompatible("memberships document does not match any known generation", source)
	}
	return parseAccountsHtml(doc, baseUrl, source)
}

func parseAccountsJson(source []byte, baseUrl *url.URL) ([]Account, error) {
	var payload map[string][]membership
	err := json.Unmarshal(source, &payload)
	if err != nil {
		return nil, incompatible("memberships payload is not valid json", source)
	}

	// Sort the profile labels so identical payloads always yield the same
	// record order.
	labels := make([]string, 0, len(payload))
	for label := range payload {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	var accounts []Account
	for _, label := range labels {
		for _, m := range payload[label] {
			if m.Id == "" {
				return nil, incompatible("membership entry carries no id", source)
			}
			account := Account{
				Id:         m.Id,
				Name:       m.LibraryName,
				User:       m.Name,
				Status:     AccountOk,
				LoansCount: -1,
				HoldsCount: -1,
			}
			if m.HasError {
				account.Status = AccountInError
			}
			fillAccountUrls(&account, baseUrl)
			accounts = append(accounts, account)
		}
	}
	return accounts, nil
}

var accountIdPattern = regexp.MustCompile(`/lidmaatschappen/([^/?#]+)`)

func parseAccountsHtml(doc *goquery.Document, baseUrl *url.URL, source []byte) ([]Account, error) {
	var accounts []Account
	var parseErr error

	doc.Find(accountCardSelector).EachWithBreak(func(_ int, card *goquery.Selection) bool {
		account := Account{
			Status:     AccountOk,
			LoansCount: -1,
			HoldsCount: -1,
		}

		// The title anchor names the library and links into the
		// membership's pages, which is where its id lives.
		titleAnchor := card.Find("h2 a").First()
		if titleAnchor.Length() == 0 {
			parseErr = incompatible("membership card is missing its title link", source)
			return false
		}
		account.Name = cleanText(titleAnchor)
		match := accountIdPattern.FindStringSubmatch(titleAnchor.AttrOr("href", ""))
		if match == nil {
			parseErr = incompatible("membership card link carries no membership id", source)
			return false
		}
		account.Id = match[1]

		account.User = cleanText(card.Find("[class*='accounts__patron']").First())

		if card.Find("[class*='messages--error']").Length() > 0 {
			account.Status = AccountInError
		} else {
			card.Find("li").Each(func(_ int, li *goquery.Selection) {
				text := cleanText(li)
				switch {
				case strings.Contains(text, "uitleningen") || strings.Contains(text, "uitlening"):
					account.LoansCount = parseItemCount(text)
				case strings.Contains(text, "reservaties") || strings.Contains(text, "reservatie"):
					account.HoldsCount = parseItemCount(text)
				case strings.Contains(text, "te betalen"):
					amount, err := textutil.ParseEuroAmount(text)
					if err == nil {
						account.OpenAmount = amount
					}
				}
			})
		}

		fillAccountUrls(&account, baseUrl)
		accounts = append(accounts, account)
		return true
	})
	if parseErr != nil {
		return nil, parseErr
	}
	return accounts, nil
}

var leadingCountPattern = regexp.MustCompile(`^(\d+)\s`)

// parseItemCount reads counts the way the portal renders them in card
// list items: "5 uitleningen", "1 reservatie", or "Geen uitleningen".
func parseItemCount(text string) int {
	if strings.HasPrefix(text, "Geen") {
		return 0
	}
	match := leadingCountPattern.FindStringSubmatch(text)
	if match == nil {
		return -1
	}
	n, err := strconv.Atoi(match[1])
	if err != nil {
		return -1
	}
	return n
}

func fillAccountUrls(account *Account, baseUrl *url.URL) {
	account.LoansUrl = htmlutil.ResolveUrl(baseUrl, membershipPath(account.Id, "uitleningen"))
	account.HoldsUrl = htmlutil.ResolveUrl(baseUrl, membershipPath(account.Id, "reservaties"))
	account.OpenAmountUrl = htmlutil.ResolveUrl(baseUrl, membershipPath(account.Id, "te-betalen"))
}

// parseMembershipActivity reads one activity document of the json
// generation.
func parseMembershipActivity(source []byte) (membershipActivity, error) {
	var activity membershipActivity
	err := json.Unmarshal(source, &activity)
	if err != nil {
		return membershipActivity{}, incompatible("membership activity payload is not valid json", source)
	}
	return activity, nil
}
