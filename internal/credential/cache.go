// Package credential memoizes the Workday access credential for the process
// and persists it to a snapshot file so later runs can skip the browser flow.
package credential

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ashureev/askhr/internal/domain"
	"github.com/moby/sys/atomicwriter"
	"golang.org/x/sync/singleflight"
)

// DefaultSafetyMargin is subtracted from expires_in when judging freshness.
const DefaultSafetyMargin = 120 * time.Second

// Authorizer runs the interactive flow that produces a new credential.
type Authorizer interface {
	Authorize(ctx context.Context) (*domain.CredentialRecord, error)
}

// AuthorizerFunc adapts a function to Authorizer.
type AuthorizerFunc func(ctx context.Context) (*domain.CredentialRecord, error)

// Authorize calls f.
func (f AuthorizerFunc) Authorize(ctx context.Context) (*domain.CredentialRecord, error) {
	return f(ctx)
}

// AuthorizationError wraps any failure of the interactive flow.
type AuthorizationError struct {
	Err error
}

func (e *AuthorizationError) Error() string {
	return "workday authorization failed: " + e.Err.Error()
}

func (e *AuthorizationError) Unwrap() error { return e.Err }

// IsAuthorizationError reports whether err came from a failed authorization.
func IsAuthorizationError(err error) bool {
	var ae *AuthorizationError
	return errors.As(err, &ae)
}

// Options configures a Cache.
type Options struct {
	SnapshotPath string
	SafetyMargin time.Duration
	Now          func() time.Time
	Logger       *slog.Logger
}

// Cache holds at most one credential. Concurrent Get calls that need a new
// credential share a single authorization flow.
type Cache struct {
	authorizer Authorizer
	snapshot   string
	margin     time.Duration
	now        func() time.Time
	logger     *slog.Logger

	group singleflight.Group

	mu        sync.Mutex
	current   *domain.CredentialRecord
	gen       uint64
	observers []func(fresh bool)
}

// New creates a Cache backed by auth.
func New(auth Authorizer, opts Options) *Cache {
	if opts.SafetyMargin <= 0 {
		opts.SafetyMargin = DefaultSafetyMargin
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Cache{
		authorizer: auth,
		snapshot:   opts.SnapshotPath,
		margin:     opts.SafetyMargin,
		now:        opts.Now,
		logger:     opts.Logger,
	}
}

// OnChange registers fn to be told whether a fresh credential is held after
// every store or invalidation.
func (c *Cache) OnChange(fn func(fresh bool)) {
	c.mu.Lock()
	c.observers = append(c.observers, fn)
	c.mu.Unlock()
}

// Get returns a fresh credential, authorizing interactively if neither memory
// nor the snapshot holds one.
func (c *Cache) Get(ctx context.Context) (*domain.CredentialRecord, error) {
	if rec := c.cached(); rec != nil {
		return rec, nil
	}

	ch := c.group.DoChan("authorize", func() (any, error) {
		// A caller that arrived while the previous flow finished may find it stored.
		if rec := c.cached(); rec != nil {
			return rec, nil
		}
		return c.authorize(context.WithoutCancel(ctx))
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*domain.CredentialRecord), nil
	}
}

// Peek returns the held credential without ever starting a flow.
func (c *Cache) Peek() (*domain.CredentialRecord, bool) {
	rec := c.cached()
	return rec, rec != nil
}

// Invalidate drops the credential from memory and removes the snapshot.
func (c *Cache) Invalidate() error {
	c.mu.Lock()
	c.current = nil
	c.gen++
	c.mu.Unlock()

	var err error
	if c.snapshot != "" {
		if rmErr := os.Remove(c.snapshot); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			err = fmt.Errorf("remove credential snapshot: %w", rmErr)
		}
	}
	c.logger.Info("Workday credential invalidated")
	c.notify(false)
	return err
}

func (c *Cache) cached() *domain.CredentialRecord {
	now := c.now()

	c.mu.Lock()
	if c.current.FreshAt(now, c.margin) {
		rec := c.current
		c.mu.Unlock()
		return rec
	}
	gen := c.gen
	c.mu.Unlock()

	rec, err := c.readSnapshot()
	if err != nil {
		c.logger.Warn("Ignoring unreadable credential snapshot", "path", c.snapshot, "error", err)
		return nil
	}
	if !rec.FreshAt(now, c.margin) {
		return nil
	}

	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return nil
	}
	c.current = rec
	c.mu.Unlock()
	c.logger.Debug("Reusing Workday credential from snapshot", "expires_at", rec.ExpiresAt())
	return rec
}

func (c *Cache) authorize(ctx context.Context) (*domain.CredentialRecord, error) {
	c.mu.Lock()
	gen := c.gen
	c.mu.Unlock()

	c.logger.Info("Starting Workday authorization")
	rec, err := c.authorizer.Authorize(ctx)
	if err == nil && (rec == nil || rec.AccessToken == "") {
		err = errors.New("authorization returned no access token")
	}
	if err != nil {
		c.mu.Lock()
		c.current = nil
		c.mu.Unlock()
		c.notify(false)
		return nil, &AuthorizationError{Err: err}
	}
	if rec.IssuedAt.IsZero() {
		rec.IssuedAt = c.now()
	}

	c.mu.Lock()
	stale := c.gen != gen
	if !stale {
		c.current = rec
	}
	c.mu.Unlock()

	if stale {
		// Reset while the flow ran; hand the token to this caller but keep nothing.
		return rec, nil
	}
	if err := c.writeSnapshot(rec); err != nil {
		c.logger.Warn("Failed to persist credential snapshot", "path", c.snapshot, "error", err)
	}
	c.logger.Info("Workday authorization complete", "worker_id", rec.WorkerID, "expires_at", rec.ExpiresAt())
	c.notify(true)
	return rec, nil
}

func (c *Cache) readSnapshot() (*domain.CredentialRecord, error) {
	if c.snapshot == "" {
		return nil, nil
	}
	data, err := os.ReadFile(c.snapshot)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var rec domain.CredentialRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return &rec, nil
}

func (c *Cache) writeSnapshot(rec *domain.CredentialRecord) error {
	if c.snapshot == "" {
		return nil
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(c.snapshot), 0o700); err != nil {
		return fmt.Errorf("create snapshot directory: %w", err)
	}
	return atomicwriter.WriteFile(c.snapshot, data, 0o600)
}

func (c *Cache) notify(fresh bool) {
	c.mu.Lock()
	observers := append([]func(bool){}, c.observers...)
	c.mu.Unlock()
	for _, fn := range observers {
		fn(fresh)
	}
}

// SnapshotExists reports whether a snapshot file is present at path.
func SnapshotExists(path string) bool {
	if path == "" {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}
