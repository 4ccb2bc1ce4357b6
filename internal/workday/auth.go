package workday

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ashureev/askhr/internal/config"
	"github.com/ashureev/askhr/internal/domain"
	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

// CodeSource drives the user through the provider's login page and returns
// the parameters the provider appended to the redirect URI.
type CodeSource interface {
	CaptureCode(ctx context.Context, authURL string) (url.Values, error)
}

// ProviderError is an error the identity provider reported on the redirect.
type ProviderError struct {
	Code        string
	Description string
}

func (e *ProviderError) Error() string {
	if e.Description == "" {
		return "provider returned error: " + e.Code
	}
	return fmt.Sprintf("provider returned error: %s (%s)", e.Code, e.Description)
}

// ErrStateMismatch means the redirect did not carry the state we sent.
var ErrStateMismatch = errors.New("oauth state mismatch")

// Authorizer runs browser login, code exchange, and profile fetch.
type Authorizer struct {
	cfg        config.WorkdayConfig
	oauth      *oauth2.Config
	browser    CodeSource
	client     *Client
	timeout    time.Duration
	httpClient *http.Client
	now        func() time.Time
	logger     *slog.Logger
}

// AuthorizerOptions configures NewAuthorizer.
type AuthorizerOptions struct {
	// Timeout bounds the interactive part of the flow.
	Timeout time.Duration
	// HTTPClient is used for the token exchange.
	HTTPClient *http.Client
	Now        func() time.Time
	Logger     *slog.Logger
}

// NewAuthorizer wires the OAuth settings, a browser, and a REST client.
func NewAuthorizer(cfg config.WorkdayConfig, browser CodeSource, client *Client, opts AuthorizerOptions) *Authorizer {
	if opts.Timeout <= 0 {
		opts.Timeout = 300 * time.Second
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Authorizer{
		cfg: cfg,
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURI,
			Scopes:       strings.Fields(cfg.Scope),
			Endpoint: oauth2.Endpoint{
				AuthURL:  cfg.AuthURL,
				TokenURL: cfg.TokenURL,
				// Workday expects client credentials in the form body.
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		browser:    browser,
		client:     client,
		timeout:    opts.Timeout,
		httpClient: opts.HTTPClient,
		now:        opts.Now,
		logger:     opts.Logger,
	}
}

// Authorize implements credential.Authorizer.
func (a *Authorizer) Authorize(ctx context.Context) (*domain.CredentialRecord, error) {
	state := uuid.NewString()
	var authOpts []oauth2.AuthCodeOption
	if a.cfg.ResponseType != "" && a.cfg.ResponseType != "code" {
		authOpts = append(authOpts, oauth2.SetAuthURLParam("response_type", a.cfg.ResponseType))
	}
	authURL := a.oauth.AuthCodeURL(state, authOpts...)

	browserCtx, cancel := context.WithTimeout(ctx, a.timeout)
	params, err := a.browser.CaptureCode(browserCtx, authURL)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("capture authorization code: %w", err)
	}
	if code := params.Get("error"); code != "" {
		return nil, &ProviderError{Code: code, Description: params.Get("error_description")}
	}
	if got := params.Get("state"); got != "" && got != state {
		return nil, ErrStateMismatch
	}
	code := params.Get("code")
	if code == "" {
		return nil, errors.New("redirect carried no authorization code")
	}
	a.logger.Info("Workday authorization code obtained")

	exchangeCtx := context.WithValue(ctx, oauth2.HTTPClient, a.httpClient)
	tok, err := a.oauth.Exchange(exchangeCtx, code)
	if err != nil {
		return nil, fmt.Errorf("exchange authorization code: %w", err)
	}
	issued := a.now()
	a.logger.Info("Workday access token retrieved")

	profile, workerID, err := a.client.FetchProfile(ctx, tok.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("fetch workday profile: %w", err)
	}

	return &domain.CredentialRecord{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.TokenType,
		IssuedAt:     issued,
		ExpiresIn:    expiresIn(tok, issued),
		Debug: domain.ProviderDebug{
			AuthURL:     a.cfg.AuthURL,
			RedirectURI: a.cfg.RedirectURI,
			Scope:       a.cfg.Scope,
		},
		WorkerID: workerID,
		Profile:  profile,
	}, nil
}

func expiresIn(tok *oauth2.Token, issued time.Time) int64 {
	if tok.ExpiresIn > 0 {
		return tok.ExpiresIn
	}
	if !tok.Expiry.IsZero() {
		if secs := math.Round(tok.Expiry.Sub(issued).Seconds()); secs > 0 {
			return int64(secs)
		}
	}
	return domain.DefaultExpiresIn
}

// MatchRedirect reports whether current is the provider's redirect back to
// us and, if so, returns the code or error parameters from its query or
// fragment.
func MatchRedirect(current, redirectURI string) (url.Values, bool) {
	if current == "" {
		return nil, false
	}
	base := redirectURI
	if i := strings.IndexAny(base, "?#"); i >= 0 {
		base = base[:i]
	}
	u, err := url.Parse(current)
	if err != nil {
		return nil, false
	}
	onRedirect := (base != "" && strings.HasPrefix(current, base)) || strings.Contains(u.Host, "localhost")
	if !onRedirect {
		return nil, false
	}

	params := u.Query()
	if params.Get("code") == "" && params.Get("error") == "" && u.Fragment != "" {
		if frag, err := url.ParseQuery(u.Fragment); err == nil {
			params = frag
		}
	}
	if params.Get("code") == "" && params.Get("error") == "" {
		return nil, false
	}
	return params, true
}
