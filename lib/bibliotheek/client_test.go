package bibliotheek

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"mijnbib/lib/telemetry"

	"github.com/mazen160/go-random"
	"github.com/stretchr/testify/require"
)

const (
	testEmail    = "john@example.com"
	testPassword = "s3cret"
)

// fakePortal serves just enough of the portal to drive the client: the
// form login flow plus whatever page handlers a test registers.
type fakePortal struct {
	mux    *http.ServeMux
	server *httptest.Server
	// formToken is the hidden drupal field the login form carries; the
	// submit handler requires it back.
	formToken string
}

func newFakePortal(t *testing.T) *fakePortal {
	token, err := random.String(16)
	require.NoError(t, err)

	p := &fakePortal{mux: http.NewServeMux(), formToken: token}
	p.server = httptest.NewServer(p.mux)
	t.Cleanup(p.server.Close)

	p.mux.HandleFunc("/mijn-bibliotheek/aanmelden", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `<html><body>
<form action="/mijn-bibliotheek/login-submit" method="post">
  <input type="hidden" name="form_build_id" value="%s">
  <input type="text" name="email">
  <input type="password" name="password">
  <input type="submit" name="op" value="Aanmelden">
</form>
</body></html>`, p.formToken)
	})
	p.mux.HandleFunc("/mijn-bibliotheek/login-submit", func(w http.ResponseWriter, r *http.Request) {
		err := r.ParseForm()
		require.NoError(t, err)
		if r.PostFormValue("form_build_id") != p.formToken {
			w.Write([]byte("<html><body>Formulier verlopen</body></html>"))
			return
		}
		if r.PostFormValue("email") != testEmail || r.PostFormValue("password") != testPassword {
			w.Write([]byte("<html><body>Gebruikersnaam of wachtwoord ongeldig</body></html>"))
			return
		}
		w.Write([]byte("<html><body><a href=\"/mijn-bibliotheek/overzicht\">Profiel</a></body></html>"))
	})

	return p
}

func (p *fakePortal) newClient(t *testing.T) *Client {
	client, err := NewClient(context.Background(), ClientOptions{
		BaseUrl: p.server.URL,
	})
	require.NoError(t, err)
	return client
}

func (p *fakePortal) login(t *testing.T) *Client {
	client := p.newClient(t)
	err := client.Login(context.Background(), Credentials{Email: testEmail, Password: testPassword})
	require.NoError(t, err)
	return client
}

func TestFormLogin(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:bibliotheek")
	defer cleanup()

	portal := newFakePortal(t)
	client := portal.newClient(t)

	err := client.Login(context.Background(), Credentials{Email: testEmail, Password: testPassword})
	require.NoError(t, err)
	require.Equal(t, "authenticated", client.State())
}

func TestFormLoginRejectedCredentials(t *testing.T) {
	portal := newFakePortal(t)
	client := portal.newClient(t)

	err := client.Login(context.Background(), Credentials{Email: testEmail, Password: "wrong"})

	var authErr *AuthenticationError
	require.True(t, errors.As(err, &authErr))
	require.Equal(t, "failed-permanent", client.State())
}

func TestFormLoginPrivacyStatementPending(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/mijn-bibliotheek/aanmelden", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<form action="/submit"><input name="email"><input name="password"></form>`))
	})
	mux.HandleFunc("/submit", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html><body>Onze privacyverklaring is gewijzigd.</body></html>"))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	client, err := NewClient(context.Background(), ClientOptions{BaseUrl: server.URL})
	require.NoError(t, err)
	err = client.Login(context.Background(), Credentials{Email: testEmail, Password: testPassword})

	var authErr *AuthenticationError
	require.True(t, errors.As(err, &authErr))
	require.Contains(t, authErr.Reason, "privacy")
}

func TestFormLoginPortalDown(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "maintenance", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client, err := NewClient(context.Background(), ClientOptions{BaseUrl: server.URL})
	require.NoError(t, err)
	err = client.Login(context.Background(), Credentials{Email: testEmail, Password: testPassword})

	var tempErr *TemporarySiteError
	require.True(t, errors.As(err, &tempErr))
	require.Equal(t, http.StatusServiceUnavailable, tempErr.Status)
	require.Equal(t, "failed-temporary", client.State())

	// the two failure kinds must stay apart by kind, not message
	var authErr *AuthenticationError
	require.False(t, errors.As(err, &authErr))
}

func TestFormLoginPortalUnreachable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	serverUrl := server.URL
	server.Close()

	client, err := NewClient(context.Background(), ClientOptions{BaseUrl: serverUrl})
	require.NoError(t, err)
	err = client.Login(context.Background(), Credentials{Email: testEmail, Password: testPassword})

	var tempErr *TemporarySiteError
	require.True(t, errors.As(err, &tempErr))
	require.Error(t, tempErr.Unwrap())
}

func TestFetchRequiresLogin(t *testing.T) {
	portal := newFakePortal(t)
	client := portal.newClient(t)

	_, err := client.Fetch(context.Background(), "/mijn-bibliotheek/lidmaatschappen")

	var authErr *AuthenticationError
	require.True(t, errors.As(err, &authErr))
}

func TestFetchClassifiesResponses(t *testing.T) {
	portal := newFakePortal(t)
	portal.mux.HandleFunc("/ok", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("fijn"))
	})
	portal.mux.HandleFunc("/weg", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	portal.mux.HandleFunc("/kapot", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "oops", http.StatusInternalServerError)
	})
	client := portal.login(t)
	ctx := context.Background()

	body, err := client.Fetch(ctx, "/ok")
	require.NoError(t, err)
	require.Equal(t, "fijn", string(body))

	_, err = client.Fetch(ctx, "/weg")
	var notFoundErr *NotFoundError
	require.True(t, errors.As(err, &notFoundErr))

	_, err = client.Fetch(ctx, "/kapot")
	var tempErr *TemporarySiteError
	require.True(t, errors.As(err, &tempErr))
}

func TestFetchDetectsLostSession(t *testing.T) {
	portal := newFakePortal(t)
	portal.mux.HandleFunc("/mijn-bibliotheek/lidmaatschappen/777/uitleningen", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/mijn-bibliotheek/aanmelden?destination=x", http.StatusFound)
	})
	client := portal.login(t)
	ctx := context.Background()

	_, err := client.Fetch(ctx, "/mijn-bibliotheek/lidmaatschappen/777/uitleningen")
	var authErr *AuthenticationError
	require.True(t, errors.As(err, &authErr))
	require.Equal(t, "failed-permanent", client.State())

	// the handle stays poisoned until the caller logs in again
	_, err = client.Fetch(ctx, "/ok")
	require.True(t, errors.As(err, &authErr))
}

func newTokenPortal(t *testing.T, authStatus int) (*fakePortal, *Client) {
	portal := &fakePortal{mux: http.NewServeMux()}
	portal.server = httptest.NewServer(portal.mux)
	t.Cleanup(portal.server.Close)
	base := portal.server.URL

	portal.mux.HandleFunc("/mijn-bibliotheek/aanmelden", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Location", base+"/authorize?oauth_token=tok123&oauth_callback="+
			url.QueryEscape(base+"/cb")+"&hint=h1")
		w.WriteHeader(http.StatusFound)
	})
	portal.mux.HandleFunc("/authorize", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("authorize"))
	})
	portal.mux.HandleFunc("/openbibid/rest/auth/login", func(w http.ResponseWriter, r *http.Request) {
		err := r.ParseForm()
		require.NoError(t, err)
		require.Equal(t, "tok123", r.PostFormValue("token"))
		require.Equal(t, base+"/cb", r.PostFormValue("callback"))

		if authStatus != http.StatusSeeOther {
			w.WriteHeader(authStatus)
			return
		}
		if r.PostFormValue("email") != testEmail || r.PostFormValue("password") != testPassword {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.Header().Set("Location", base+"/cb?verified=1")
		w.WriteHeader(http.StatusSeeOther)
	})
	portal.mux.HandleFunc("/cb", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Location", base+"/mijn-bibliotheek/overzicht")
		w.WriteHeader(http.StatusFound)
	})

	client, err := NewClient(context.Background(), ClientOptions{
		BaseUrl: base,
		Method:  LoginByToken,
		AuthUrl: base + "/openbibid/rest/auth/login",
	})
	require.NoError(t, err)
	return portal, client
}

func TestTokenLogin(t *testing.T) {
	_, client := newTokenPortal(t, http.StatusSeeOther)

	err := client.Login(context.Background(), Credentials{Email: testEmail, Password: testPassword})
	require.NoError(t, err)
	require.Equal(t, "authenticated", client.State())
}

func TestTokenLoginRejectedCredentials(t *testing.T) {
	_, client := newTokenPortal(t, http.StatusSeeOther)

	err := client.Login(context.Background(), Credentials{Email: testEmail, Password: "wrong"})

	var authErr *AuthenticationError
	require.True(t, errors.As(err, &authErr))
}

func TestTokenLoginPortalDown(t *testing.T) {
	_, client := newTokenPortal(t, http.StatusServiceUnavailable)

	err := client.Login(context.Background(), Credentials{Email: testEmail, Password: testPassword})

	var tempErr *TemporarySiteError
	require.True(t, errors.As(err, &tempErr))
}

func TestTokenLoginAlreadyAuthenticated(t *testing.T) {
	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	defer server.Close()
	mux.HandleFunc("/mijn-bibliotheek/aanmelden", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Location", server.URL+"/mijn-bibliotheek/overzicht")
		w.WriteHeader(http.StatusFound)
	})

	client, err := NewClient(context.Background(), ClientOptions{
		BaseUrl: server.URL,
		Method:  LoginByToken,
	})
	require.NoError(t, err)
	err = client.Login(context.Background(), Credentials{Email: testEmail, Password: testPassword})
	require.NoError(t, err)
	require.Equal(t, "authenticated", client.State())
}

func TestTokenLoginUnknownRedirectPattern(t *testing.T) {
	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	defer server.Close()
	mux.HandleFunc("/mijn-bibliotheek/aanmelden", func(w http.ResponseWriter, r *http.Request) {
		// healthy answer, but neither a login redirect nor the overview
		w.Write([]byte("<html><body>nieuw ontwerp</body></html>"))
	})

	client, err := NewClient(context.Background(), ClientOptions{
		BaseUrl: server.URL,
		Method:  LoginByToken,
	})
	require.NoError(t, err)
	err = client.Login(context.Background(), Credentials{Email: testEmail, Password: testPassword})

	var incompatibleErr *IncompatibleSourceError
	require.True(t, errors.As(err, &incompatibleErr))
}
