package credential

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ashureev/askhr/internal/domain"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type countingAuthorizer struct {
	calls atomic.Int32
	clock *fakeClock
	err   error
	gate  chan struct{}
}

func (a *countingAuthorizer) Authorize(ctx context.Context) (*domain.CredentialRecord, error) {
	n := a.calls.Add(1)
	if a.gate != nil {
		<-a.gate
	}
	if a.err != nil {
		return nil, a.err
	}
	return &domain.CredentialRecord{
		AccessToken: "token-" + string(rune('0'+n)),
		IssuedAt:    a.clock.Now(),
		ExpiresIn:   3600,
		WorkerID:    "w-1",
	}, nil
}

func newTestCache(t *testing.T, auth *countingAuthorizer, clock *fakeClock) (*Cache, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "token.json")
	return New(auth, Options{SnapshotPath: path, Now: clock.Now}), path
}

func TestGetMemoizesUntilMargin(t *testing.T) {
	clock := &fakeClock{t: time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC)}
	auth := &countingAuthorizer{clock: clock}
	cache, _ := newTestCache(t, auth, clock)
	ctx := context.Background()

	first, err := cache.Get(ctx)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}

	clock.Advance(3600*time.Second - DefaultSafetyMargin - time.Second)
	again, err := cache.Get(ctx)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if again.AccessToken != first.AccessToken || auth.calls.Load() != 1 {
		t.Fatalf("expected cached token, got %q after %d calls", again.AccessToken, auth.calls.Load())
	}

	clock.Advance(2 * time.Second)
	renewed, err := cache.Get(ctx)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if renewed.AccessToken == first.AccessToken || auth.calls.Load() != 2 {
		t.Fatalf("expected re-authorization past the margin, calls=%d", auth.calls.Load())
	}
}

func TestSnapshotSurvivesNewCache(t *testing.T) {
	clock := &fakeClock{t: time.Now()}
	auth := &countingAuthorizer{clock: clock}
	path := filepath.Join(t.TempDir(), "nested", "token.json")

	if _, err := New(auth, Options{SnapshotPath: path, Now: clock.Now}).Get(context.Background()); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !SnapshotExists(path) {
		t.Fatal("expected snapshot on disk")
	}

	second := New(auth, Options{SnapshotPath: path, Now: clock.Now})
	rec, ok := second.Peek()
	if !ok || rec.WorkerID != "w-1" {
		t.Fatalf("expected snapshot reuse, got %+v ok=%v", rec, ok)
	}
	if auth.calls.Load() != 1 {
		t.Fatalf("authorizer called %d times, want 1", auth.calls.Load())
	}
}

func TestInvalidateForcesReauthorization(t *testing.T) {
	clock := &fakeClock{t: time.Now()}
	auth := &countingAuthorizer{clock: clock}
	cache, path := newTestCache(t, auth, clock)
	ctx := context.Background()

	var states []bool
	cache.OnChange(func(fresh bool) { states = append(states, fresh) })

	if _, err := cache.Get(ctx); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if err := cache.Invalidate(); err != nil {
		t.Fatalf("Invalidate: %v", err)
	}
	if _, ok := cache.Peek(); ok {
		t.Fatal("cache still holds a credential after Invalidate")
	}
	if SnapshotExists(path) {
		t.Fatal("snapshot survived Invalidate")
	}
	if _, err := cache.Get(ctx); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if auth.calls.Load() != 2 {
		t.Fatalf("authorizer called %d times, want 2", auth.calls.Load())
	}
	if len(states) != 3 || !states[0] || states[1] || !states[2] {
		t.Fatalf("unexpected observer states %v", states)
	}
}

func TestAuthorizationFailureClearsCache(t *testing.T) {
	clock := &fakeClock{t: time.Now()}
	auth := &countingAuthorizer{clock: clock, err: errors.New("user closed the browser")}
	cache, _ := newTestCache(t, auth, clock)

	_, err := cache.Get(context.Background())
	if !IsAuthorizationError(err) {
		t.Fatalf("expected AuthorizationError, got %v", err)
	}
	if _, ok := cache.Peek(); ok {
		t.Fatal("failed flow left a credential behind")
	}
}

func TestConcurrentGetSharesOneFlow(t *testing.T) {
	clock := &fakeClock{t: time.Now()}
	auth := &countingAuthorizer{clock: clock, gate: make(chan struct{})}
	cache, _ := newTestCache(t, auth, clock)

	var wg sync.WaitGroup
	tokens := make([]string, 5)
	for i := range tokens {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rec, err := cache.Get(context.Background())
			if err != nil {
				t.Errorf("Get: %v", err)
				return
			}
			tokens[i] = rec.AccessToken
		}(i)
	}

	deadline := time.Now().Add(2 * time.Second)
	for auth.calls.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	// Give the remaining callers time to join the in-flight call.
	time.Sleep(50 * time.Millisecond)
	close(auth.gate)
	wg.Wait()

	if auth.calls.Load() != 1 {
		t.Fatalf("authorizer called %d times, want 1", auth.calls.Load())
	}
	for _, tok := range tokens {
		if tok != tokens[0] {
			t.Fatalf("callers saw different tokens: %v", tokens)
		}
	}
}

func TestGetHonoursCallerContext(t *testing.T) {
	clock := &fakeClock{t: time.Now()}
	auth := &countingAuthorizer{clock: clock, gate: make(chan struct{})}
	cache, _ := newTestCache(t, auth, clock)
	defer close(auth.gate)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := cache.Get(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
}
