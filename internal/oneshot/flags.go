// Package oneshot tracks actions that may run at most once per reset cycle.
// Each flag is kept in memory and mirrored to a sentinel file so it survives
// restarts.
package oneshot

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/moby/sys/atomicwriter"
)

// LetterSent guards the employment verification letter.
const LetterSent = "evl_sent"

// Flags is a set of named one-shot flags backed by sentinel files in dir.
type Flags struct {
	dir string
	now func() time.Time

	mu  sync.Mutex
	set map[string]bool
}

// New returns flags stored under dir.
func New(dir string) *Flags {
	return &Flags{dir: dir, now: time.Now, set: make(map[string]bool)}
}

func (f *Flags) path(name string) string {
	return filepath.Join(f.dir, "."+name+".flag")
}

// IsSet reports whether name was set since the last ClearAll, in this process
// or an earlier one.
func (f *Flags) IsSet(name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.set[name] {
		return true
	}
	if _, err := os.Stat(f.path(name)); err == nil {
		f.set[name] = true
		return true
	}
	return false
}

// Set marks name and writes its sentinel. The in-memory flag is set even when
// the write fails.
func (f *Flags) Set(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.set[name] = true

	if err := os.MkdirAll(f.dir, 0o700); err != nil {
		return fmt.Errorf("create flag dir: %w", err)
	}
	stamp := []byte(strconv.FormatInt(f.now().Unix(), 10))
	if err := atomicwriter.WriteFile(f.path(name), stamp, 0o600); err != nil {
		return fmt.Errorf("write %s sentinel: %w", name, err)
	}
	return nil
}

// ClearAll drops every flag and removes the sentinel files.
func (f *Flags) ClearAll() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.set = make(map[string]bool)

	matches, err := filepath.Glob(filepath.Join(f.dir, ".*.flag"))
	if err != nil {
		return fmt.Errorf("list flags: %w", err)
	}
	var errs []error
	for _, m := range matches {
		if err := os.Remove(m); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
