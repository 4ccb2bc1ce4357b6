package workday

import (
	"strings"
	"testing"
	"time"

	"github.com/ashureev/askhr/internal/domain"
)

func TestSummarizeExtractsFields(t *testing.T) {
	profile := map[string]any{
		"workerId":   "21001",
		"descriptor": "Ada Lovelace",
		"person":     map[string]any{"email": "ada@example.com"},
		"primaryJob": map[string]any{
			"businessTitle":           "Analyst",
			"location":                map[string]any{"descriptor": "London"},
			"supervisoryOrganization": map[string]any{"descriptor": "Engineering (Charles Babbage)"},
		},
		"workerType": map[string]any{"descriptor": "Regular"},
		KeyLegalName: map[string]any{"data": []any{map[string]any{"first": "Augusta", "last": "King"}}},
		KeyServiceDates: map[string]any{"data": []any{map[string]any{
			"originalHireDate":      "2018-01-15",
			"continuousServiceDate": "2018-01-15",
		}}},
	}
	s := Summarize(profile)
	if s.LegalName != "Augusta King" {
		t.Errorf("LegalName = %q", s.LegalName)
	}
	if s.Manager != "Charles Babbage" {
		t.Errorf("Manager = %q", s.Manager)
	}
	if s.HireDate != "2018-01-15" {
		t.Errorf("HireDate = %q", s.HireDate)
	}
	if s.Email != "ada@example.com" || s.Location != "London" || s.WorkerType != "Regular" {
		t.Errorf("unexpected summary %+v", s)
	}
	if s.LeaveBalances == nil || s.TimeOffTypes == nil {
		t.Error("empty lists should encode as [] rather than null")
	}
}

func TestManagerNameWithoutParens(t *testing.T) {
	if got := managerName("Finance"); got != "Finance" {
		t.Fatalf("managerName = %q", got)
	}
}

func TestResolveTimeOffType(t *testing.T) {
	types := []domain.TimeOffType{
		{ID: "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", Name: "Vacation Carryover", Group: "Other"},
		{ID: "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb", Name: "Vacation", Group: "Time Off"},
		{ID: "cccccccccccccccccccccccccccccccc", Name: "Sick Leave", Group: "Time Off"},
		{ID: "not-hex", Name: "Jury Duty"},
	}
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"DDDDDDDDDDDDDDDDDDDDDDDDDDDDDDDD", "dddddddddddddddddddddddddddddddd", false},
		{"vacation", "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb", false},
		{"sick", "cccccccccccccccccccccccccccccccc", false},
		{"carry", "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", false},
		{"jury duty", "", true},
		{"sabbatical", "", true},
		{"  ", "", true},
	}
	for _, tt := range tests {
		got, err := ResolveTimeOffType(tt.in, types)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ResolveTimeOffType(%q) = %q, %v", tt.in, got, err)
		}
	}
}

func TestComputeTenure(t *testing.T) {
	asOf := time.Date(2025, 3, 10, 15, 0, 0, 0, time.UTC)
	got, err := ComputeTenure("2020-01-31", asOf)
	if err != nil {
		t.Fatalf("ComputeTenure: %v", err)
	}
	// Feb 2025 has 28 days: 10 - 31 + 28 = 7.
	if got.Years != 5 || got.Months != 1 || got.Days != 7 {
		t.Fatalf("got %+v", got)
	}
	if got.Summary != "5 years, 1 month, 7 days" {
		t.Fatalf("Summary = %q", got.Summary)
	}
	if got.TotalDays != 1865 {
		t.Fatalf("TotalDays = %d", got.TotalDays)
	}
}

func TestComputeTenureErrors(t *testing.T) {
	now := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	if _, err := ComputeTenure("2026-01-01", now); err != ErrFutureHireDate {
		t.Fatalf("expected ErrFutureHireDate, got %v", err)
	}
	if _, err := ComputeTenure("03/10/2020", now); err == nil || !strings.Contains(err.Error(), "invalid hire date") {
		t.Fatalf("expected format error, got %v", err)
	}
}

func TestFormatContextIncludesToday(t *testing.T) {
	out := FormatContext(domain.ProfileSummary{Name: "Ada"}, time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC))
	for _, want := range []string{"USER CONTEXT:", "- Name: Ada", "LEAVE BALANCES:", "AVAILABLE TIME-OFF TYPES:", "TODAY: 2025-03-10 (Monday)"} {
		if !strings.Contains(out, want) {
			t.Errorf("context missing %q:\n%s", want, out)
		}
	}
}
