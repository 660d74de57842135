package bibliotheek

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel/codes"
)

// Both flows classify their outcome the same way: nil on success,
// *AuthenticationError when the portal rejected the credentials,
// *TemporarySiteError when the portal itself failed, and
// *IncompatibleSourceError when neither the known markup nor the known
// redirect pattern showed up.
type loginFlow interface {
	login(ctx context.Context, c *Client, creds Credentials) error
}

const (
	profileMarker        = "Profiel"
	privacyChangedMarker = "privacyverklaring is gewijzigd"
	privacyAgreeMarker   = "akkoord met de privacyverklaring"
)

// formLogin drives the portal's web login form like a browser would.
type formLogin struct{}

func (formLogin) login(ctx context.Context, c *Client, creds Credentials) error {
	ctx, span := tracer.Start(ctx, "login:form")
	defer span.End()

	// the destination parameter skips the slow overview page after login
	res, err := c.Http.R().
		SetContext(ctx).
		SetQueryParam("destination", membershipsPagePath).
		Get(loginPath)
	if err != nil {
		span.SetStatus(codes.Error, "failed to fetch login page")
		return &TemporarySiteError{Err: err}
	}
	if res.StatusCode() >= 500 {
		span.SetStatus(codes.Error, "portal failure on login page")
		return &TemporarySiteError{Status: res.StatusCode()}
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewBuffer(res.Body()))
	if err != nil {
		span.SetStatus(codes.Error, "failed to parse login page")
		return incompatible("login page is not parseable html", res.Body())
	}
	form := doc.Find("form").FilterFunction(func(_ int, f *goquery.Selection) bool {
		return f.Find("input[name=email]").Length() > 0 &&
			f.Find("input[name=password]").Length() > 0
	}).First()
	if form.Length() == 0 {
		span.SetStatus(codes.Error, "login form not found")
		return incompatible("login form not found", res.Body())
	}

	// carry the hidden drupal fields along with the credentials
	values := url.Values{}
	form.Find("input").Each(func(_ int, input *goquery.Selection) {
		name := input.AttrOr("name", "")
		if name == "" {
			return
		}
		values.Set(name, input.AttrOr("value", ""))
	})
	values.Set("email", creds.Email)
	values.Set("password", creds.Password)

	action := resolveAgainst(res.RawResponse.Request.URL, form.AttrOr("action", ""))
	res, err = c.Http.R().
		SetContext(ctx).
		SetFormDataFromValues(values).
		Post(action)
	if err != nil {
		span.SetStatus(codes.Error, "failed to submit login form")
		return &TemporarySiteError{Err: err}
	}
	if res.StatusCode() >= 500 {
		span.SetStatus(codes.Error, "portal failure on login submit")
		return &TemporarySiteError{Status: res.StatusCode()}
	}

	body := string(res.Body())
	if !strings.Contains(body, profileMarker) {
		if strings.Contains(body, privacyChangedMarker) || strings.Contains(body, privacyAgreeMarker) {
			span.SetStatus(codes.Error, "privacy statement pending")
			return &AuthenticationError{
				Reason: "the portal wants the updated privacy statement accepted first",
			}
		}
		span.SetStatus(codes.Error, "credentials rejected")
		return &AuthenticationError{Reason: "credentials were not accepted"}
	}
	return nil
}

// tokenLogin runs the openbibid token exchange. Four steps: get the
// authorize redirect, open the authorize url, post the credentials with the
// token, then let the callback install the session cookie.
type tokenLogin struct{}

func (tokenLogin) login(ctx context.Context, c *Client, creds Credentials) error {
	ctx, span := tracer.Start(ctx, "login:token")
	defer span.End()

	// the flow is driven by Location headers, so hold every redirect
	c.Http.SetRedirectPolicy(keepLastResponsePolicy())
	defer c.Http.SetRedirectPolicy(c.defaultRedirectPolicy())

	res, err := c.Http.R().
		SetContext(ctx).
		SetQueryParam("destination", membershipsPagePath).
		Get(loginPath)
	if err != nil {
		span.SetStatus(codes.Error, "failed to start token exchange")
		return &TemporarySiteError{Err: err}
	}
	if res.StatusCode() >= 500 {
		span.SetStatus(codes.Error, "portal failure starting token exchange")
		return &TemporarySiteError{Status: res.StatusCode()}
	}
	if res.StatusCode() != http.StatusFound {
		span.SetStatus(codes.Error, "token exchange did not redirect")
		return incompatible(
			fmt.Sprintf("expected status 302 starting the token exchange, got %d", res.StatusCode()),
			res.Body(),
		)
	}

	authorizeUrl := res.Header().Get("Location")
	if strings.Contains(authorizeUrl, overviewPath) {
		slog.InfoContext(ctx, "session still authenticated, skipping login")
		return nil
	}
	parsed, err := url.Parse(authorizeUrl)
	if err != nil {
		return incompatible("authorize redirect is not a valid url", []byte(authorizeUrl))
	}
	query := parsed.Query()
	callback := query.Get("oauth_callback")
	token := query.Get("oauth_token")
	hint := query.Get("hint")
	if callback == "" || token == "" {
		span.SetStatus(codes.Error, "authorize redirect incomplete")
		return incompatible("authorize redirect is missing oauth parameters", []byte(authorizeUrl))
	}

	res, err = c.Http.R().
		SetContext(ctx).
		Get(authorizeUrl)
	if err != nil {
		span.SetStatus(codes.Error, "failed to open authorize url")
		return &TemporarySiteError{Err: err}
	}
	if res.StatusCode() != http.StatusOK {
		span.SetStatus(codes.Error, "authorize url rejected")
		return incompatible(
			fmt.Sprintf("expected status 200 from the authorize url, got %d", res.StatusCode()),
			res.Body(),
		)
	}

	res, err = c.Http.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"hint":     hint,
			"token":    token,
			"callback": callback,
			"email":    creds.Email,
			"password": creds.Password,
		}).
		Post(c.authUrl)
	if err != nil {
		span.SetStatus(codes.Error, "failed to post credentials")
		return &TemporarySiteError{Err: err}
	}
	switch {
	case res.StatusCode() == http.StatusOK:
		// the endpoint answers 200 with the form again instead of redirecting
		span.SetStatus(codes.Error, "credentials rejected")
		return &AuthenticationError{Reason: "credentials were not accepted"}
	case res.StatusCode() >= 500:
		span.SetStatus(codes.Error, "portal failure on credential post")
		return &TemporarySiteError{Status: res.StatusCode()}
	case res.StatusCode() != http.StatusSeeOther:
		span.SetStatus(codes.Error, "credential post did not redirect")
		return incompatible(
			fmt.Sprintf("expected status 303 after posting credentials, got %d", res.StatusCode()),
			res.Body(),
		)
	}

	callbackUrl := res.Header().Get("Location")
	res, err = c.Http.R().
		SetContext(ctx).
		Get(callbackUrl)
	if err != nil {
		span.SetStatus(codes.Error, "failed to open login callback")
		return &TemporarySiteError{Err: err}
	}
	location := res.Header().Get("Location")
	if !strings.Contains(location, overviewPath) && !strings.Contains(location, membershipsPagePath) {
		span.SetStatus(codes.Error, "callback did not enter the portal")
		return incompatible("login callback did not redirect into the portal", res.Body())
	}
	return nil
}

// http.ErrUseLastResponse keeps 3xx responses readable instead of
// following them.
func keepLastResponsePolicy() resty.RedirectPolicy {
	return resty.RedirectPolicyFunc(func(req *http.Request, via []*http.Request) error {
		return http.ErrUseLastResponse
	})
}

func resolveAgainst(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return base.String()
	}
	ref, err := url.Parse(href)
	if err != nil {
		return base.String()
	}
	return base.ResolveReference(ref).String()
}
