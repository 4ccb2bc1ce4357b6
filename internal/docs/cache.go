// Package docs holds generated documents in memory until they are downloaded
// and renders the employment verification letter.
package docs

import (
	"container/list"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"sync"
	"time"
)

const (
	mimeHTML = "text/html; charset=utf-8"
	mimePDF  = "application/pdf"
	mimeDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
)

type entry struct {
	key      string
	data     []byte
	filename string
	storedAt time.Time
}

// Cache is an in-memory keyed store of generated documents, bounded by a byte
// budget (least recently used entries go first) and an optional TTL.
type Cache struct {
	mu       sync.Mutex
	entries  map[string]*list.Element
	lru      *list.List
	size     int64
	maxBytes int64
	ttl      time.Duration
	now      func() time.Time
	lastKey  int64
}

// Options configures a Cache.
type Options struct {
	MaxBytes int64
	TTL      time.Duration
	Now      func() time.Time
}

// NewCache creates an empty cache.
func NewCache(opts Options) *Cache {
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = 32 << 20
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Cache{
		entries:  make(map[string]*list.Element),
		lru:      list.New(),
		maxBytes: opts.MaxBytes,
		ttl:      opts.TTL,
		now:      opts.Now,
	}
}

type putConfig struct {
	preserveSpaces bool
}

// PutOption adjusts how Put stores a document.
type PutOption func(*putConfig)

// PreserveSpaces keeps spaces in the stored filename instead of replacing
// them with underscores.
func PreserveSpaces(preserve bool) PutOption {
	return func(pc *putConfig) { pc.preserveSpaces = preserve }
}

// Put stores a copy of data and returns its download key. The key embeds the
// sanitized filename so download links stay recognisable.
func (c *Cache) Put(data []byte, filename string, opts ...PutOption) (string, error) {
	if int64(len(data)) > c.maxBytes {
		return "", fmt.Errorf("document %q is %d bytes, larger than the cache budget of %d", filename, len(data), c.maxBytes)
	}
	var pc putConfig
	for _, opt := range opts {
		opt(&pc)
	}
	name := Sanitize(filename, pc.preserveSpaces)
	buf := append([]byte(nil), data...)

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	stamp := now.UnixNano()
	// Same-instant puts get a bumped stamp so keys never collide.
	if stamp <= c.lastKey {
		stamp = c.lastKey + 1
	}
	c.lastKey = stamp
	key := fmt.Sprintf("%d_%s", stamp, name)

	el := c.lru.PushFront(&entry{key: key, data: buf, filename: name, storedAt: now})
	c.entries[key] = el
	c.size += int64(len(buf))
	c.evictOverBudget()
	return key, nil
}

// Get returns a copy of the document bytes. ok is false for unknown keys; an
// empty document is returned as a non-nil empty slice.
func (c *Cache) Get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.lookup(key)
	if !ok {
		return nil, false
	}
	return append([]byte{}, e.data...), true
}

// Filename returns the stored filename for key.
func (c *Cache) Filename(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.lookup(key)
	if !ok {
		return "", false
	}
	return e.filename, true
}

// MimeType infers the content type of key from its filename.
func (c *Cache) MimeType(key string) string {
	name, _ := c.Filename(key)
	return MimeTypeFor(name)
}

// MimeTypeFor infers a content type from a filename extension.
func MimeTypeFor(filename string) string {
	switch strings.ToLower(path.Ext(filename)) {
	case ".pdf":
		return mimePDF
	case ".html", ".htm":
		return mimeHTML
	case ".md":
		return "text/markdown; charset=utf-8"
	default:
		return mimeDOCX
	}
}

// Delete removes key if present.
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.entries[key]; ok {
		c.remove(el)
	}
}

// Clear removes every document.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*list.Element)
	c.lru.Init()
	c.size = 0
}

// Len returns the number of stored documents.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// EvictExpired drops documents older than the TTL and returns how many went.
func (c *Cache) EvictExpired() int {
	if c.ttl <= 0 {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	cutoff := c.now().Add(-c.ttl)
	removed := 0
	for el := c.lru.Back(); el != nil; {
		prev := el.Prev()
		if el.Value.(*entry).storedAt.Before(cutoff) {
			c.remove(el)
			removed++
		}
		el = prev
	}
	return removed
}

func (c *Cache) lookup(key string) (*entry, bool) {
	el, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	e := el.Value.(*entry)
	if c.ttl > 0 && e.storedAt.Before(c.now().Add(-c.ttl)) {
		c.remove(el)
		return nil, false
	}
	c.lru.MoveToFront(el)
	return e, true
}

func (c *Cache) evictOverBudget() {
	for c.size > c.maxBytes {
		oldest := c.lru.Back()
		if oldest == nil {
			return
		}
		slog.Debug("Evicting cached document", "key", oldest.Value.(*entry).key)
		c.remove(oldest)
	}
}

func (c *Cache) remove(el *list.Element) {
	e := el.Value.(*entry)
	c.lru.Remove(el)
	delete(c.entries, e.key)
	c.size -= int64(len(e.data))
}
