package workday

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/ashureev/askhr/internal/config"
)

type fakeCodeSource struct {
	params  func(authURL string) url.Values
	gotURL  string
	callErr error
}

func (f *fakeCodeSource) CaptureCode(ctx context.Context, authURL string) (url.Values, error) {
	f.gotURL = authURL
	if f.callErr != nil {
		return nil, f.callErr
	}
	return f.params(authURL), nil
}

func echoState(code string) func(string) url.Values {
	return func(authURL string) url.Values {
		u, _ := url.Parse(authURL)
		return url.Values{"code": {code}, "state": {u.Query().Get("state")}}
	}
}

func newWorkdayServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/ccx/oauth2/acme/token", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("ParseForm: %v", err)
		}
		if r.PostForm.Get("code") != "the-code" || r.PostForm.Get("client_id") != "cid" || r.PostForm.Get("client_secret") != "secret" {
			t.Errorf("unexpected token form: %v", r.PostForm)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"at","refresh_token":"rt","token_type":"Bearer","expires_in":1800}`))
	})
	mux.HandleFunc("/api/staffing/v7/acme/workers/me", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":"w-7","descriptor":"Grace Hopper"}`))
	})
	return httptest.NewServer(mux)
}

func testWorkdayConfig(srvURL string) config.WorkdayConfig {
	return config.WorkdayConfig{
		AuthURL:      srvURL + "/acme/authorize",
		TokenURL:     srvURL + "/ccx/oauth2/acme/token",
		BaseURL:      srvURL,
		Tenant:       "acme",
		ClientID:     "cid",
		ClientSecret: "secret",
		RedirectURI:  "http://localhost:8765/callback",
		Scope:        "staffing absence",
	}
}

func TestAuthorizerFullFlow(t *testing.T) {
	srv := newWorkdayServer(t)
	defer srv.Close()

	cfg := testWorkdayConfig(srv.URL)
	browser := &fakeCodeSource{params: echoState("the-code")}
	a := NewAuthorizer(cfg, browser, NewClient(cfg.BaseURL, cfg.Tenant, srv.Client(), nil), AuthorizerOptions{HTTPClient: srv.Client()})

	rec, err := a.Authorize(context.Background())
	if err != nil {
		t.Fatalf("Authorize: %v", err)
	}
	if rec.AccessToken != "at" || rec.RefreshToken != "rt" || rec.WorkerID != "w-7" {
		t.Fatalf("unexpected record %+v", rec)
	}
	if rec.ExpiresIn != 1800 {
		t.Fatalf("ExpiresIn = %d", rec.ExpiresIn)
	}
	u, err := url.Parse(browser.gotURL)
	if err != nil {
		t.Fatal(err)
	}
	if u.Query().Get("client_id") != "cid" || u.Query().Get("scope") != "staffing absence" || u.Query().Get("response_type") != "code" {
		t.Fatalf("unexpected auth URL %s", browser.gotURL)
	}
}

func TestAuthorizerRejectsStateMismatch(t *testing.T) {
	srv := newWorkdayServer(t)
	defer srv.Close()
	cfg := testWorkdayConfig(srv.URL)
	browser := &fakeCodeSource{params: func(string) url.Values {
		return url.Values{"code": {"the-code"}, "state": {"forged"}}
	}}
	a := NewAuthorizer(cfg, browser, NewClient(cfg.BaseURL, cfg.Tenant, srv.Client(), nil), AuthorizerOptions{HTTPClient: srv.Client()})

	if _, err := a.Authorize(context.Background()); !errors.Is(err, ErrStateMismatch) {
		t.Fatalf("expected ErrStateMismatch, got %v", err)
	}
}

func TestAuthorizerSurfacesProviderError(t *testing.T) {
	cfg := testWorkdayConfig("http://unused.invalid")
	browser := &fakeCodeSource{params: func(string) url.Values {
		return url.Values{"error": {"access_denied"}, "error_description": {"user said no"}}
	}}
	a := NewAuthorizer(cfg, browser, NewClient(cfg.BaseURL, cfg.Tenant, nil, nil), AuthorizerOptions{})

	_, err := a.Authorize(context.Background())
	var pe *ProviderError
	if !errors.As(err, &pe) || pe.Code != "access_denied" {
		t.Fatalf("expected ProviderError, got %v", err)
	}
}

func TestMatchRedirect(t *testing.T) {
	redirect := "https://askhr.example.com/oauth/callback"
	tests := []struct {
		name     string
		current  string
		wantOK   bool
		wantCode string
	}{
		{"login page", "https://impl.workday.com/acme/login", false, ""},
		{"query code", redirect + "?code=abc&state=s", true, "abc"},
		{"fragment code", redirect + "#code=frag&state=s", true, "frag"},
		{"localhost fallback", "http://localhost:9999/whatever?code=lh", true, "lh"},
		{"redirect without params", redirect, false, ""},
		{"provider error", redirect + "?error=access_denied", true, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			params, ok := MatchRedirect(tt.current, redirect)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && params.Get("code") != tt.wantCode {
				t.Fatalf("code = %q, want %q", params.Get("code"), tt.wantCode)
			}
		})
	}
}
