// Package proxy forwards gateway messages to the tools server, giving a
// Workday login that is still in progress a bounded chance to finish.
package proxy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ashureev/askhr/internal/credential"
	"github.com/ashureev/askhr/internal/identity"
)

// ExhaustedMessage is the reply when every attempt failed.
const ExhaustedMessage = "Workday login may still be in progress. Please finish the browser login and try again."

const (
	maxAttempts    = 2
	minAttemptTime = time.Second
	maxErrorBody   = 4 << 10
)

// Reply is the proxied answer plus its metadata.
type Reply struct {
	Text     string         `json:"reply_text"`
	Metadata map[string]any `json:"metadata"`
}

// LoginSignal reports whether the tools server's Workday login has completed.
type LoginSignal interface {
	LoginComplete(ctx context.Context) bool
}

// FileSignal treats an existing credential snapshot as a completed login.
type FileSignal struct {
	Path string
}

// LoginComplete reports whether the snapshot file exists.
func (f FileSignal) LoginComplete(context.Context) bool {
	return f.Path != "" && credential.SnapshotExists(f.Path)
}

// StatusError is a non-2xx answer from the tools server.
type StatusError struct {
	Code   int
	Detail string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("workday tools error %d: %s", e.Code, e.Detail)
}

// Options configures a Proxy.
type Options struct {
	BaseURL    string
	Timeout    time.Duration
	Signal     LoginSignal
	PollEvery  time.Duration
	RetryPause time.Duration
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Proxy forwards chat messages to the tools server.
type Proxy struct {
	url        string
	timeout    time.Duration
	signal     LoginSignal
	pollEvery  time.Duration
	retryPause time.Duration
	http       *http.Client
	logger     *slog.Logger
}

// New creates a Proxy. A nil Signal never reports a completed login.
func New(opts Options) *Proxy {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.PollEvery <= 0 {
		opts.PollEvery = 2 * time.Second
	}
	if opts.RetryPause <= 0 {
		opts.RetryPause = 2 * time.Second
	}
	if opts.Signal == nil {
		opts.Signal = FileSignal{}
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Proxy{
		url:        strings.TrimRight(opts.BaseURL, "/") + "/chat",
		timeout:    opts.Timeout,
		signal:     opts.Signal,
		pollEvery:  opts.PollEvery,
		retryPause: opts.RetryPause,
		http:       opts.HTTPClient,
		logger:     opts.Logger,
	}
}

// Call forwards message for sessionID. It makes at most two attempts within
// the overall timeout. Between them it waits for the login signal when the
// login is not complete yet, otherwise it pauses briefly. When no attempt
// succeeds the reply is ExhaustedMessage.
func (p *Proxy) Call(ctx context.Context, sessionID, message string) Reply {
	deadline := time.Now().Add(p.timeout)

	for attempt := 1; ; attempt++ {
		remaining := time.Until(deadline)
		if remaining < minAttemptTime {
			remaining = minAttemptTime
		}
		text, err := p.post(ctx, remaining, sessionID, message)
		if err == nil {
			return Reply{Text: text, Metadata: map[string]any{"agent": "workday_tools"}}
		}
		var timeout interface{ Timeout() bool }
		if errors.As(err, &timeout) && timeout.Timeout() {
			p.logger.Warn("Workday tools timeout", "attempt", attempt, "error", err)
		} else {
			p.logger.Error("Workday tools call failed", "attempt", attempt, "error", err)
		}

		if attempt >= maxAttempts || !time.Now().Before(deadline) || ctx.Err() != nil {
			break
		}
		if !p.signal.LoginComplete(ctx) {
			if !p.waitForLogin(ctx, deadline) {
				break
			}
		} else if !sleep(ctx, p.retryPause) {
			break
		}
	}

	return Reply{
		Text:     ExhaustedMessage,
		Metadata: map[string]any{"agent": "workday_tools", "error": "retry_exhausted"},
	}
}

// waitForLogin polls the login signal until it fires or deadline passes.
func (p *Proxy) waitForLogin(ctx context.Context, deadline time.Time) bool {
	ctx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()
	ticker := time.NewTicker(p.pollEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
			if p.signal.LoginComplete(ctx) {
				return true
			}
		}
	}
}

func (p *Proxy) post(ctx context.Context, timeout time.Duration, sessionID, message string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	body, err := json.Marshal(map[string]string{"message": message})
	if err != nil {
		return "", fmt.Errorf("encode chat request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if sessionID != "" {
		req.Header.Set(identity.SessionHeaderName, sessionID)
	}

	resp, err := p.http.Do(req)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read chat response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &StatusError{Code: resp.StatusCode, Detail: errorDetail(raw)}
	}
	return replyText(raw), nil
}

// replyText picks "response", then "message", then the raw body.
func replyText(raw []byte) string {
	var data map[string]any
	if err := json.Unmarshal(raw, &data); err != nil {
		return strings.TrimSpace(string(raw))
	}
	for _, k := range []string{"response", "message"} {
		if s, ok := data[k].(string); ok && s != "" {
			return s
		}
	}
	return strings.TrimSpace(string(raw))
}

func errorDetail(raw []byte) string {
	if len(raw) > maxErrorBody {
		raw = raw[:maxErrorBody]
	}
	var data map[string]any
	if err := json.Unmarshal(raw, &data); err == nil {
		for _, k := range []string{"detail", "error"} {
			if v, ok := data[k]; ok && v != nil {
				return fmt.Sprint(v)
			}
		}
	}
	return strings.TrimSpace(string(raw))
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
