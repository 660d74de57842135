package bibliotheek

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

// The drupal-ajax generation wraps the refreshed page's status messages in
// a script tag, json-escaped.
const ajaxStatusScript = `
<script type="application/vnd.drupal-ajax">
[{"command":"insert","method":"replaceWith","data":"<div role=\"contentinfo\" aria-label=\"Statusbericht\" class=\"messages messages--status\">\n<h2 class=\"visually-hidden\">Statusbericht<\/h2>\n<ul class=\"messages__list\">\n<li class=\"messages__item\">Deze uitleningen werden succesvol verlengd:<\/li>\n<li class=\"messages__item\">"<em class=\"placeholder\">Vastberaden!<\/em>" tot 13\/01\/2024.<\/li>\n<\/ul>\n<\/div>","settings":null}]
</script>`

func TestParseExtensionResultWithAjaxMessages(t *testing.T) {
	page := erebusLoansPage + ajaxStatusScript

	result, err := ParseExtensionResult([]byte(page), testBaseUrl, "123456")
	require.NoError(t, err)

	require.Len(t, result.Loans, 1)
	require.Equal(t, "Erebus", result.Loans[0].Title)

	require.Len(t, result.Messages, 2)
	require.Equal(t, "Deze uitleningen werden succesvol verlengd:", result.Messages[0])
	require.Contains(t, result.Messages[1], "Vastberaden!")
}

func TestParseExtensionResultPlainMessages(t *testing.T) {
	page := erebusLoansPage + `
<div class="messages messages--status">
  <ul class="messages__list">
    <li class="messages__item">Er ging iets fout bij het verlengen</li>
  </ul>
</div>`

	result, err := ParseExtensionResult([]byte(page), testBaseUrl, "123456")
	require.NoError(t, err)
	require.Len(t, result.Loans, 1)
	require.Equal(t, []string{"Er ging iets fout bij het verlengen"}, result.Messages)
}

func TestParseExtensionResultWithoutMessages(t *testing.T) {
	result, err := ParseExtensionResult([]byte(erebusLoansPage), testBaseUrl, "123456")
	require.NoError(t, err)
	require.Len(t, result.Loans, 1)
	require.Empty(t, result.Messages)
}

func TestParseExtensionResultUnknownMarkup(t *testing.T) {
	_, err := ParseExtensionResult([]byte("<html><body>???</body></html>"), testBaseUrl, "1")

	var incompatibleErr *IncompatibleSourceError
	require.True(t, errors.As(err, &incompatibleErr))
}

func TestReconcileExtension(t *testing.T) {
	refreshed := []Loan{
		{Id: "1001", Title: "Erebus"},
		{Id: "1002", Title: "Dune"},
	}

	// one of the requested ids present: partial outcomes are data, not errors
	require.NoError(t, reconcileExtension([]string{"1001", "9999"}, refreshed))

	// none present: the portal answered with something we cannot interpret
	err := reconcileExtension([]string{"9998", "9999"}, refreshed)
	var incompatibleErr *IncompatibleSourceError
	require.True(t, errors.As(err, &incompatibleErr))
}
