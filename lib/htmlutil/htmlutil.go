package htmlutil

import (
	"bytes"
	"net/url"
	"regexp"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/purell"
	"golang.org/x/net/html"
)

// GetText collects the text content beneath a node.
func GetText(node *html.Node) string {
	var buffer bytes.Buffer
	getTextRecursive(node, &buffer)
	return buffer.String()
}

func getTextRecursive(node *html.Node, buffer *bytes.Buffer) {
	if node == nil {
		return
	}
	if node.Type == html.TextNode {
		buffer.WriteString(node.Data)
		return
	}
	child := node.FirstChild
	for child != nil {
		getTextRecursive(child, buffer)
		child = child.NextSibling
	}
}

var innerWhitespace = regexp.MustCompile(`\s\s+`)

// Clean flattens scraped text: non-printables dropped, runs of whitespace
// collapsed to one space, ends trimmed.
func Clean(s string) string {
	kept := strings.Builder{}
	for _, c := range s {
		if unicode.IsPrint(c) || c == ' ' {
			kept.WriteRune(c)
		} else {
			kept.WriteRune(' ')
		}
	}
	s = innerWhitespace.ReplaceAllString(kept.String(), " ")
	return strings.Trim(s, " \t\n")
}

// ResolveUrl turns an href from a scraped page into an absolute normalized
// url. Unparseable hrefs resolve to "".
func ResolveUrl(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	resolved := base.ResolveReference(ref).String()
	normalized, err := purell.NormalizeURLString(resolved, purell.FlagsSafe)
	if err != nil {
		return resolved
	}
	return normalized
}
