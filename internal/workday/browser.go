package workday

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

// ErrLoginTimeout means the user did not finish the login page in time.
var ErrLoginTimeout = errors.New("timed out waiting for workday login redirect")

// RodBrowser opens the authorization URL in Chromium and watches the page
// URL until the provider redirects back.
type RodBrowser struct {
	Bin          string
	Headless     bool
	RedirectURI  string
	PollInterval time.Duration
	Logger       *slog.Logger
}

// CaptureCode implements CodeSource.
func (b *RodBrowser) CaptureCode(ctx context.Context, authURL string) (url.Values, error) {
	logger := b.Logger
	if logger == nil {
		logger = slog.Default()
	}
	interval := b.PollInterval
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}

	l := launcher.New().Headless(b.Headless)
	if b.Bin != "" {
		l = l.Bin(b.Bin)
	}
	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}
	defer func() {
		l.Kill()
		l.Cleanup()
	}()

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("connect browser: %w", err)
	}
	defer func() { _ = browser.Close() }()

	page, err := browser.Page(proto.TargetCreateTarget{URL: authURL})
	if err != nil {
		return nil, fmt.Errorf("open login page: %w", err)
	}
	logger.Info("Waiting for Workday login in browser", "headless", b.Headless)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil, ErrLoginTimeout
			}
			return nil, ctx.Err()
		case <-ticker.C:
			info, err := page.Info()
			if err != nil {
				logger.Debug("Browser page info unavailable", "error", err)
				continue
			}
			if params, ok := MatchRedirect(info.URL, b.RedirectURI); ok {
				return params, nil
			}
		}
	}
}

var _ CodeSource = (*RodBrowser)(nil)
