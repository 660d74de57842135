package bibliotheek

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const extendFormId = "my-library-extend-loan-form"

// The portal never answers an extension request with a discrete status.
// It re-renders the loans page; whether a loan still carries an extend
// control afterwards is the only authoritative outcome. One generation
// additionally smuggles status lines into a drupal-ajax script tag, which
// are decoded for diagnostics.

var ajaxDataPattern = regexp.MustCompile(`"data":("(?:[^"\\]|\\.)*")`)

// ParseExtensionResult parses the page the portal renders after an
// extension request: structurally a loans page, plus optional embedded
// status messages.
func ParseExtensionResult(source []byte, baseUrl *url.URL, accountId string) (ExtensionResult, error) {
	messages, err := parseExtensionMessages(source)
	if err != nil {
		return ExtensionResult{}, err
	}

	loans, err := ParseLoans(source, baseUrl, accountId)
	if err != nil {
		return ExtensionResult{}, err
	}
	return ExtensionResult{Loans: loans, Messages: messages}, nil
}

// parseExtensionMessages pulls the portal's status lines out of the
// document. The newer generation escapes them as a json string inside a
// drupal-ajax script tag, the older one renders a plain messages list.
// Pages without either simply yield no messages.
func parseExtensionMessages(source []byte) ([]string, error) {
	doc, err := newDocument(source)
	if err != nil {
		return nil, err
	}

	var script string
	doc.Find("script").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		text := s.Text()
		if strings.Contains(text, "Statusbericht") || strings.Contains(text, "Foutmelding") {
			script = text
			return false
		}
		return true
	})

	if script == "" {
		return messagesFromList(doc), nil
	}

	match := ajaxDataPattern.FindStringSubmatch(script)
	if match == nil {
		return nil, incompatible("extension status script carries no data field", source)
	}
	var blob string
	err = json.Unmarshal([]byte(match[1]), &blob)
	if err != nil {
		return nil, incompatible("extension status data is not a json string", source)
	}

	inner, err := newDocument([]byte(blob))
	if err != nil {
		return nil, err
	}
	return messagesFromList(inner), nil
}

func messagesFromList(doc *goquery.Document) []string {
	var messages []string
	doc.Find("ul.messages__list li").Each(func(_ int, li *goquery.Selection) {
		text := cleanText(li)
		if text != "" {
			messages = append(messages, text)
		}
	})
	return messages
}

// ExtendLoans extends the given loans (by Loan.Id) on one membership and
// returns the complete refreshed loan set the portal renders afterwards.
//
// Partial outcomes are data, not errors: the portal may extend some of the
// requested loans and reject others, e.g. when another patron holds a
// reservation on the title. Callers tell the difference by comparing the
// returned Extendable/ExtendId fields against the pre-call records. An
// error is only raised when the response is unparseable, or when none of
// the requested loans appear in it at all.
func (c *Client) ExtendLoans(ctx context.Context, accountId string, loanIds []string) ([]Loan, error) {
	ctx, span := tracer.Start(ctx, "client:ExtendLoans")
	defer span.End()
	span.SetAttributes(
		attribute.String("account", accountId),
		attribute.StringSlice("loan_ids", loanIds),
	)

	if len(loanIds) == 0 {
		return nil, fmt.Errorf("no loan ids given")
	}

	current, err := c.Loans(ctx, accountId)
	if err != nil {
		return nil, err
	}

	// Each loan carries its own extension endpoint; the portal accepts the
	// full id set on any of them as a comma-joined loan-ids parameter.
	var extendUrl string
	var extendIds []string
	for _, id := range loanIds {
		loan, ok := findLoan(current, id)
		if !ok {
			slog.WarnContext(ctx, "loan id not present on account, skipping", "account", accountId, "loan", id)
			continue
		}
		if !loan.Extendable {
			slog.WarnContext(ctx, "loan is not extendable, skipping", "account", accountId, "loan", id)
			continue
		}
		extendIds = append(extendIds, loan.ExtendId)
		if extendUrl == "" {
			extendUrl = loan.ExtendUrl
		}
	}
	if len(extendIds) == 0 {
		span.SetStatus(codes.Error, "nothing to extend")
		return nil, &NotFoundError{
			Resource: "extendable loan",
			Id:       strings.Join(loanIds, ","),
		}
	}

	target, err := url.Parse(extendUrl)
	if err != nil {
		return nil, incompatible("captured extend url is not valid", []byte(extendUrl))
	}
	query := target.Query()
	query.Set("loan-ids", strings.Join(extendIds, ","))
	target.RawQuery = query.Encode()

	refreshed, err := c.submitExtension(ctx, accountId, target.String())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "extension failed")
		return nil, err
	}

	err = reconcileExtension(loanIds, refreshed.Loans)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "extension not reflected")
		return nil, err
	}
	return refreshed.Loans, nil
}

// ExtendLoansByUrl submits a previously captured extension url as-is and
// returns the refreshed loan set. The caller owns the url, so no id
// reconciliation is applied.
func (c *Client) ExtendLoansByUrl(ctx context.Context, accountId, extendUrl string) ([]Loan, error) {
	ctx, span := tracer.Start(ctx, "client:ExtendLoansByUrl")
	defer span.End()
	span.SetAttributes(attribute.String("account", accountId))

	refreshed, err := c.submitExtension(ctx, accountId, extendUrl)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "extension failed")
		return nil, err
	}
	return refreshed.Loans, nil
}

// submitExtension walks the portal's confirmation flow: open the extend
// url, locate the confirmation form, submit it, and parse the loans page
// that comes back.
func (c *Client) submitExtension(ctx context.Context, accountId, extendUrl string) (ExtensionResult, error) {
	body, err := c.Fetch(ctx, extendUrl)
	if err != nil {
		return ExtensionResult{}, err
	}

	doc, err := newDocument(body)
	if err != nil {
		return ExtensionResult{}, err
	}
	form := doc.Find("form#" + extendFormId).First()
	if form.Length() == 0 {
		return ExtensionResult{}, incompatible("extend confirmation form not found", body)
	}

	values := url.Values{}
	form.Find("input").Each(func(_ int, input *goquery.Selection) {
		name := input.AttrOr("name", "")
		if name == "" {
			return
		}
		values.Set(name, input.AttrOr("value", ""))
	})

	action := extendUrl
	if href := strings.TrimSpace(form.AttrOr("action", "")); href != "" {
		if ref, err := url.Parse(href); err == nil {
			base, err := url.Parse(extendUrl)
			if err == nil {
				action = base.ResolveReference(ref).String()
			}
		}
	}

	res, err := c.Http.R().
		SetContext(ctx).
		SetFormDataFromValues(values).
		Post(action)
	if err != nil {
		return ExtensionResult{}, &TemporarySiteError{Err: err}
	}
	// The portal is known to crash with a 500 on id combinations it does
	// not like, e.g. ids spanning two memberships.
	if res.StatusCode() >= 500 {
		return ExtensionResult{}, &TemporarySiteError{Status: res.StatusCode()}
	}

	result, err := ParseExtensionResult(res.Body(), c.BaseUrl, accountId)
	if err != nil {
		return ExtensionResult{}, err
	}
	for _, message := range result.Messages {
		slog.InfoContext(ctx, "portal extension message", "account", accountId, "message", message)
	}
	return result, nil
}

// reconcileExtension checks that the refreshed page still knows at least
// one of the requested loans. A response naming none of them means the
// portal answered with something this client cannot interpret.
func reconcileExtension(requestedIds []string, refreshed []Loan) error {
	for _, id := range requestedIds {
		if _, ok := findLoan(refreshed, id); ok {
			return nil
		}
	}
	return &IncompatibleSourceError{
		Reason: fmt.Sprintf(
			"none of the requested loans (%s) appear in the portal's response",
			strings.Join(requestedIds, ","),
		),
	}
}

func findLoan(loans []Loan, id string) (Loan, bool) {
	for _, loan := range loans {
		if loan.Id == id {
			return loan, true
		}
	}
	return Loan{}, false
}
