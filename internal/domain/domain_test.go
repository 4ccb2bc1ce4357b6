package domain

import (
	"testing"
	"time"
)

func TestCredentialFreshAtBoundary(t *testing.T) {
	issued := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	rec := &CredentialRecord{AccessToken: "tok", IssuedAt: issued, ExpiresIn: 3600}
	margin := 120 * time.Second

	edge := issued.Add(3600*time.Second - margin)
	if !rec.FreshAt(edge.Add(-time.Second), margin) {
		t.Fatal("expected record to be fresh one second before the margin")
	}
	if rec.FreshAt(edge.Add(time.Second), margin) {
		t.Fatal("expected record to be stale one second after the margin")
	}
}

func TestCredentialDefaultsExpiresIn(t *testing.T) {
	issued := time.Now()
	rec := &CredentialRecord{AccessToken: "tok", IssuedAt: issued}
	if got := rec.ExpiresAt(); !got.Equal(issued.Add(time.Hour)) {
		t.Fatalf("ExpiresAt = %v, want one hour after issue", got)
	}
}

func TestCredentialWithoutTokenIsStale(t *testing.T) {
	var rec *CredentialRecord
	if rec.FreshAt(time.Now(), 0) {
		t.Fatal("nil record reported fresh")
	}
	if (&CredentialRecord{IssuedAt: time.Now(), ExpiresIn: 3600}).FreshAt(time.Now(), 0) {
		t.Fatal("record without access token reported fresh")
	}
}

func TestSubmissionOverlaps(t *testing.T) {
	s := &Submission{StartDate: "2025-03-10", EndDate: "2025-03-12"}
	tests := []struct {
		start, end string
		want       bool
	}{
		{"2025-03-01", "2025-03-09", false},
		{"2025-03-12", "2025-03-20", true},
		{"2025-03-11", "2025-03-11", true},
		{"2025-03-13", "2025-03-14", false},
	}
	for _, tt := range tests {
		if got := s.Overlaps(tt.start, tt.end); got != tt.want {
			t.Errorf("Overlaps(%s, %s) = %v, want %v", tt.start, tt.end, got, tt.want)
		}
	}
}

func TestSubmissionWithin(t *testing.T) {
	s := &Submission{StartDate: "2025-03-10", EndDate: "2025-03-12"}
	tests := []struct {
		start, end string
		want       bool
	}{
		{"2025-03-10", "2025-03-12", true},
		{"2025-03-01", "2025-03-31", true},
		{"2025-03-12", "2025-03-20", false},
		{"2025-03-10", "2025-03-11", false},
	}
	for _, tt := range tests {
		if got := s.Within(tt.start, tt.end); got != tt.want {
			t.Errorf("Within(%s, %s) = %v, want %v", tt.start, tt.end, got, tt.want)
		}
	}
}
