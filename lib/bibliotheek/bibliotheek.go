// Package bibliotheek scrapes the Mijn Bibliotheek member portal
// (bibliotheek.be), the shared patron site of the Flemish public libraries.
//
// A Client owns one authenticated browser session. Pages are fetched over
// that session and handed to pure parsers which translate portal markup
// into Account, Loan and Reservation records. The portal ships no API
// contract, so every parser probes for known markup generations and
// refuses loudly when it recognizes none.
//
// A Client is not safe for concurrent use. Callers that share one across
// goroutines must serialize access themselves.
package bibliotheek

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"mijnbib/lib/restyutil"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("bibliotheek")

const DefaultBaseUrl = "https://bibliotheek.be"

// the rest endpoint handling step 3 of the token exchange, it lives on the
// mijn. subdomain rather than under the portal base url
const defaultAuthUrl = "https://mijn.bibliotheek.be/openbibid/rest/auth/login"

const (
	loginPath           = "/mijn-bibliotheek/aanmelden"
	overviewPath        = "/mijn-bibliotheek/overzicht"
	membershipsPagePath = "/mijn-bibliotheek/lidmaatschappen"
	membershipsApiPath  = "/api/my-library/memberships"
)

// LoginMethod selects the protocol used to authenticate a session.
type LoginMethod string

const (
	// LoginByForm submits the portal's web login form. The default.
	LoginByForm LoginMethod = "form"
	// LoginByToken runs the token exchange against the openbibid rest
	// endpoint. Roughly twice as fast as the form, but experimental.
	LoginByToken LoginMethod = "token"
)

type sessionState int

const (
	stateUnauthenticated sessionState = iota
	stateLoggingIn
	stateAuthenticated
	stateFailedTemporary
	stateFailedPermanent
)

func (s sessionState) String() string {
	switch s {
	case stateUnauthenticated:
		return "unauthenticated"
	case stateLoggingIn:
		return "logging-in"
	case stateAuthenticated:
		return "authenticated"
	case stateFailedTemporary:
		return "failed-temporary"
	case stateFailedPermanent:
		return "failed-permanent"
	}
	return "unknown"
}

type Credentials struct {
	// Email is the portal account name. Older accounts may still use a
	// plain username here, the portal accepts both.
	Email    string
	Password string
}

type Client struct {
	BaseUrl *url.URL
	Http    *resty.Client

	authUrl string
	flow    loginFlow
	state   sessionState
}

type ClientOptions struct {
	// BaseUrl defaults to DefaultBaseUrl. City subdomains
	// (e.g. https://gent.bibliotheek.be) work as well.
	BaseUrl string
	// Method defaults to LoginByForm.
	Method LoginMethod
	// AuthUrl overrides the token exchange endpoint. Only relevant for
	// LoginByToken.
	AuthUrl string
	// Timeout bounds every portal request. Defaults to 30s.
	Timeout time.Duration
}

var restyOutput restyutil.InstrumentOutput

// SetRestyInstrumentOutput directs HTTP transcripts of portal traffic to the
// given output. Transcripts are only written while debug logging is enabled.
func SetRestyInstrumentOutput(output restyutil.InstrumentOutput) {
	restyOutput = output
}

type debugOutput struct{}

func (debugOutput) Write(id string, contents string) {
	if restyOutput == nil {
		return
	}
	restyOutput.Write(id, contents)
}

func NewClient(ctx context.Context, opts ClientOptions) (*Client, error) {
	if opts.BaseUrl == "" {
		opts.BaseUrl = DefaultBaseUrl
	}
	baseUrl, err := url.Parse(opts.BaseUrl)
	if err != nil {
		return nil, err
	}

	var flow loginFlow
	switch opts.Method {
	case "", LoginByForm:
		flow = formLogin{}
	case LoginByToken:
		flow = tokenLogin{}
	default:
		return nil, fmt.Errorf("unknown login method %q", opts.Method)
	}

	authUrl := opts.AuthUrl
	if authUrl == "" {
		authUrl = defaultAuthUrl
	}
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = time.Second * 30
	}

	client := resty.New()
	client.SetBaseURL(opts.BaseUrl)
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	client.SetCookieJar(jar)
	client.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(client.GetClient().Transport)

	// the portal rejects clients that don't identify as a browser
	client.SetHeader("user-agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36")
	client.SetTimeout(timeout)

	c := &Client{
		BaseUrl: baseUrl,
		Http:    client,
		authUrl: authUrl,
		flow:    flow,
		state:   stateUnauthenticated,
	}
	client.SetRedirectPolicy(c.defaultRedirectPolicy())
	restyutil.InstrumentClient(client, otel.Tracer("bibliotheek/http"), debugOutput{})
	return c, nil
}

func (c *Client) defaultRedirectPolicy() resty.RedirectPolicy {
	// login bounces between the portal and the mijn. subdomain
	return resty.DomainCheckRedirectPolicy(
		c.BaseUrl.Hostname(),
		"mijn."+c.BaseUrl.Hostname(),
	)
}

// State reports the session state, e.g. "authenticated" or
// "failed-temporary".
func (c *Client) State() string {
	return c.state.String()
}

// Login authenticates the session using the configured method. The error
// kind tells retryability apart: a *TemporarySiteError means the portal
// itself misbehaved and a later attempt may work, an *AuthenticationError
// means the credentials (or a pending privacy statement) need fixing first.
// Login never retries by itself.
func (c *Client) Login(ctx context.Context, creds Credentials) error {
	ctx, span := tracer.Start(ctx, "client:Login")
	defer span.End()

	if c.state == stateLoggingIn {
		return fmt.Errorf("login already in progress")
	}
	c.state = stateLoggingIn
	slog.InfoContext(ctx, "logging in",
		"base_url", c.BaseUrl.String(),
		"email", creds.Email,
	)

	err := c.flow.login(ctx, c, creds)
	if err == nil {
		c.state = stateAuthenticated
		slog.InfoContext(ctx, "login successful")
		return nil
	}

	span.RecordError(err)
	var temporary *TemporarySiteError
	if errors.As(err, &temporary) {
		c.state = stateFailedTemporary
		span.SetStatus(codes.Error, "portal failure during login")
	} else {
		c.state = stateFailedPermanent
		span.SetStatus(codes.Error, "login failed")
	}
	return err
}

// Fetch retrieves a raw page body over the authenticated session. Paths are
// resolved against the client base url, absolute urls pass through as-is.
//
// A response that bounces to the login flow means the portal dropped the
// session. The client then reports *AuthenticationError and refuses further
// fetches until the caller logs in again.
func (c *Client) Fetch(ctx context.Context, path string) ([]byte, error) {
	ctx, span := tracer.Start(ctx, "client:Fetch")
	defer span.End()
	span.SetAttributes(attribute.String("path", path))

	if c.state != stateAuthenticated {
		return nil, &AuthenticationError{
			Reason: fmt.Sprintf("session is %s, log in first", c.state),
		}
	}

	res, err := c.Http.R().
		SetContext(ctx).
		Get(path)
	if err != nil {
		span.SetStatus(codes.Error, "failed to fetch")
		return nil, &TemporarySiteError{Err: err}
	}

	finalUrl := res.RawResponse.Request.URL
	if strings.Contains(finalUrl.Path, loginPath) || strings.Contains(finalUrl.Path, "/auth/authorize") {
		c.state = stateFailedPermanent
		span.SetStatus(codes.Error, "session lost")
		return nil, &AuthenticationError{
			Reason: "session expired, the portal redirected to the login page",
		}
	}

	switch {
	case res.StatusCode() == http.StatusNotFound:
		span.SetStatus(codes.Error, "page not found")
		return nil, &NotFoundError{Resource: "page", Id: finalUrl.String()}
	case res.StatusCode() >= http.StatusBadRequest:
		span.SetStatus(codes.Error, "portal failure")
		return nil, &TemporarySiteError{Status: res.StatusCode()}
	}
	return res.Body(), nil
}
