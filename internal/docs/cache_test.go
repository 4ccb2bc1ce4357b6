package docs

import (
	"bytes"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestPutGetRoundTrip(t *testing.T) {
	c := NewCache(Options{})
	data := []byte("%PDF-1.7 letter")

	key, err := c.Put(data, "Employment Verification Letter - Ada Lovelace.pdf", PreserveSpaces(true))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if !strings.HasSuffix(key, "_Employment Verification Letter - Ada Lovelace.pdf") {
		t.Fatalf("key %q does not carry the filename", key)
	}

	got, ok := c.Get(key)
	if !ok || !bytes.Equal(got, data) {
		t.Fatalf("Get = %q, %v", got, ok)
	}
	got[0] = 'X'
	again, _ := c.Get(key)
	if again[0] != '%' {
		t.Fatal("caller mutation leaked into the cache")
	}
	if name, ok := c.Filename(key); !ok || name != "Employment Verification Letter - Ada Lovelace.pdf" {
		t.Fatalf("Filename = %q, %v", name, ok)
	}
	if c.MimeType(key) != mimePDF {
		t.Fatalf("MimeType = %q", c.MimeType(key))
	}
}

func TestPutSpacesFollowTheOption(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		opts     []PutOption
		want     string
	}{
		{"default replaces spaces", "My File.docx", nil, "My_File.docx"},
		{"dash separator is not a hint", "Payslip - March.pdf", nil, "Payslip_-_March.pdf"},
		{"explicit false", "My File.docx", []PutOption{PreserveSpaces(false)}, "My_File.docx"},
		{"preserved", "My File.docx", []PutOption{PreserveSpaces(true)}, "My File.docx"},
		{"preserved strips invalid", "Letter: Ada?.html", []PutOption{PreserveSpaces(true)}, "Letter Ada.html"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewCache(Options{})
			key, err := c.Put([]byte("x"), tt.filename, tt.opts...)
			if err != nil {
				t.Fatalf("Put: %v", err)
			}
			if name, _ := c.Filename(key); name != tt.want {
				t.Fatalf("Filename = %q, want %q", name, tt.want)
			}
			if !strings.HasSuffix(key, "_"+tt.want) {
				t.Fatalf("key %q does not end with %q", key, tt.want)
			}
		})
	}
}

func TestUnknownKeyIsAbsentAndEmptyDocumentIsNot(t *testing.T) {
	c := NewCache(Options{})
	if _, ok := c.Get("missing"); ok {
		t.Fatal("unknown key reported present")
	}
	if _, ok := c.Filename("missing"); ok {
		t.Fatal("unknown key has a filename")
	}

	key, err := c.Put(nil, "empty.docx")
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, ok := c.Get(key)
	if !ok || got == nil || len(got) != 0 {
		t.Fatalf("empty document: got %v, ok %v", got, ok)
	}
}

func TestKeysUniqueForSameInstant(t *testing.T) {
	fixed := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewCache(Options{Now: func() time.Time { return fixed }})

	seen := map[string]bool{}
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			key, err := c.Put([]byte("x"), "same.docx")
			if err != nil {
				t.Errorf("Put: %v", err)
				return
			}
			mu.Lock()
			seen[key] = true
			mu.Unlock()
		}()
	}
	wg.Wait()
	if len(seen) != 20 || c.Len() != 20 {
		t.Fatalf("got %d distinct keys, %d entries", len(seen), c.Len())
	}
}

func TestLRUEvictionUnderBudget(t *testing.T) {
	c := NewCache(Options{MaxBytes: 10})
	a, _ := c.Put([]byte("aaaa"), "a.pdf")
	b, _ := c.Put([]byte("bbbb"), "b.pdf")
	c.Get(a) // a becomes most recent
	cKey, _ := c.Put([]byte("cccc"), "c.pdf")

	if _, ok := c.Get(b); ok {
		t.Fatal("least recently used entry survived")
	}
	for _, k := range []string{a, cKey} {
		if _, ok := c.Get(k); !ok {
			t.Fatalf("entry %s evicted unexpectedly", k)
		}
	}
	if _, err := c.Put(make([]byte, 11), "huge.pdf"); err == nil {
		t.Fatal("oversized document accepted")
	}
}

func TestEvictExpired(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	c := NewCache(Options{TTL: time.Minute, Now: func() time.Time { return now }})
	old, _ := c.Put([]byte("old"), "old.pdf")
	now = now.Add(45 * time.Second)
	fresh, _ := c.Put([]byte("new"), "new.pdf")
	now = now.Add(30 * time.Second)

	if n := c.EvictExpired(); n != 1 {
		t.Fatalf("EvictExpired = %d, want 1", n)
	}
	if _, ok := c.Get(old); ok {
		t.Fatal("expired entry still present")
	}
	if _, ok := c.Get(fresh); !ok {
		t.Fatal("fresh entry evicted")
	}
}

func TestDeleteAndClear(t *testing.T) {
	c := NewCache(Options{})
	k1, _ := c.Put([]byte("1"), "one.pdf")
	k2, _ := c.Put([]byte("2"), "two.pdf")
	c.Delete(k1)
	if _, ok := c.Get(k1); ok {
		t.Fatal("deleted entry present")
	}
	c.Clear()
	if _, ok := c.Get(k2); ok || c.Len() != 0 {
		t.Fatal("Clear left entries behind")
	}
}

func TestSanitize(t *testing.T) {
	tests := []struct {
		in       string
		preserve bool
		want     string
	}{
		{`Report: Q1/Q2 <draft>?.docx`, false, "Report_Q1Q2_draft.docx"},
		{"Employment Verification Letter - Ada.pdf", true, "Employment Verification Letter - Ada.pdf"},
		{"  padded name  ", false, "padded_name"},
		{"tab\tand\x00nul", false, "tabandnul"},
	}
	for _, tt := range tests {
		if got := Sanitize(tt.in, tt.preserve); got != tt.want {
			t.Errorf("Sanitize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
	if got := Sanitize(`<>:"/\|?*`, false); !strings.HasPrefix(got, "document_") {
		t.Errorf("empty fallback = %q", got)
	}
}

func TestMimeTypeFor(t *testing.T) {
	if MimeTypeFor("a.docx") != mimeDOCX || MimeTypeFor("a.HTML") != mimeHTML {
		t.Fatal("unexpected mime mapping")
	}
}
