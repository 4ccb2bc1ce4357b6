package tools

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/ashureev/askhr/internal/config"
	"github.com/ashureev/askhr/internal/credential"
	"github.com/ashureev/askhr/internal/docs"
	"github.com/ashureev/askhr/internal/domain"
	"github.com/ashureev/askhr/internal/workday"
)

const vacationID = "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"

func testProfile() map[string]any {
	return map[string]any{
		"workerId":   "21001",
		"descriptor": "Ada Lovelace",
		"person":     map[string]any{"email": "ada@example.com"},
		"primaryJob": map[string]any{
			"businessTitle":           "Analyst",
			"location":                map[string]any{"descriptor": "London"},
			"supervisoryOrganization": map[string]any{"descriptor": "Engineering (Charles Babbage)"},
		},
		workday.KeyLegalName:    map[string]any{"data": []any{map[string]any{"descriptor": "Augusta Ada King"}}},
		workday.KeyServiceDates: map[string]any{"data": []any{map[string]any{"hireDate": "2019-06-03"}}},
		workday.KeyEligibleTypes: map[string]any{"data": []any{
			map[string]any{"id": vacationID, "descriptor": "Vacation", "absenceTypeGroup": map[string]any{"descriptor": "Time Off"}},
		}},
	}
}

type fakeCreds struct {
	mu          sync.Mutex
	rec         *domain.CredentialRecord
	err         error
	invalidated int
}

func (f *fakeCreds) Get(context.Context) (*domain.CredentialRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.rec, nil
}

func (f *fakeCreds) Invalidate() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invalidated++
	return nil
}

type fakeWorkday struct {
	validErr  error
	submitErr error
	submits   []workday.TimeOffRequest
	checked   [][]string
}

func (f *fakeWorkday) ValidTimeOffDates(_ context.Context, _, _, _ string, dates []string) (map[string]any, error) {
	f.checked = append(f.checked, dates)
	if f.validErr != nil {
		return nil, f.validErr
	}
	return map[string]any{"data": []any{}}, nil
}

func (f *fakeWorkday) RequestTimeOff(_ context.Context, _, _ string, req workday.TimeOffRequest) (map[string]any, error) {
	f.submits = append(f.submits, req)
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	return map[string]any{"businessProcessParameters": map[string]any{"overallStatus": "Successfully Completed"}}, nil
}

type fakeLedger struct {
	mu   sync.Mutex
	rows []*domain.Submission
}

func (f *fakeLedger) RecordSubmission(_ context.Context, sub *domain.Submission) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *sub
	f.rows = append(f.rows, &cp)
	return nil
}

func (f *fakeLedger) UnresolvedUncertain(_ context.Context, workerID string) ([]*domain.Submission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domain.Submission
	for _, r := range f.rows {
		if r.WorkerID == workerID && r.Outcome == domain.OutcomeUncertain {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeLedger) MarkRequeried(_ context.Context, workerID, start, end string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, r := range f.rows {
		if r.WorkerID == workerID && r.Outcome == domain.OutcomeUncertain && r.Within(start, end) {
			r.Outcome = domain.OutcomeRequeried
			n++
		}
	}
	return n, nil
}

func (f *fakeLedger) RecentSubmissions(context.Context, int) ([]*domain.Submission, error) {
	return nil, nil
}
func (f *fakeLedger) Cleanup(context.Context, time.Duration) (int64, error) { return 0, nil }
func (f *fakeLedger) Ping(context.Context) error { return nil }
func (f *fakeLedger) Close() error { return nil }

type fixture struct {
	reg    *Registry
	creds  *fakeCreds
	wd     *fakeWorkday
	ledger *fakeLedger
	docs   *docs.Cache
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	renderer, err := docs.NewLetterRenderer("")
	if err != nil {
		t.Fatalf("NewLetterRenderer: %v", err)
	}
	f := &fixture{
		reg: NewRegistry(slog.New(slog.NewTextHandler(io.Discard, nil))),
		creds: &fakeCreds{rec: &domain.CredentialRecord{
			AccessToken: "tok",
			WorkerID:    "21001",
			IssuedAt:    time.Now(),
			Profile:     testProfile(),
		}},
		wd:     &fakeWorkday{},
		ledger: &fakeLedger{},
		docs:   docs.NewCache(docs.Options{}),
	}
	RegisterHR(f.reg, Deps{
		Credentials: f.creds,
		Workday:     f.wd,
		Docs:        f.docs,
		Letters:     renderer,
		Ledger:      f.ledger,
		Letter:      config.LetterConfig{SignatureName: "HR Operations", SignatureTitle: "Human Resources"},
		Now:         func() time.Time { return time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC) },
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	return f
}

func submitArgs() map[string]any {
	return map[string]any{
		"time_off_type": "Vacation",
		"start_date":    "2025-03-20",
		"end_date":      "2025-03-21",
		"hours_per_day": float64(8),
	}
}

func TestSpecsAdvertiseFixedSchema(t *testing.T) {
	f := newFixture(t)
	var names []string
	for _, s := range f.reg.Specs() {
		names = append(names, s.Name)
	}
	want := []string{NameProfile, NameDates, NameSubmit, NameTenure, NameLetter}
	if diff := cmp.Diff(want, names); diff != "" {
		t.Fatalf("tool names (-want +got):\n%s", diff)
	}
	submit, err := f.reg.Get(NameSubmit)
	if err != nil || !submit.Destructive {
		t.Fatalf("submit tool = %+v, %v", submit, err)
	}
	var unavailable *ErrToolUnavailable
	if _, err := f.reg.Get("nope"); !errors.As(err, &unavailable) {
		t.Fatalf("Get(nope) err = %v", err)
	}
}

func TestExecuteUnknownToolAndPanic(t *testing.T) {
	f := newFixture(t)
	if res := f.reg.Execute(context.Background(), "nope", nil); res.OK() || !strings.Contains(res.Message(), "Unknown tool") {
		t.Fatalf("unknown tool result = %v", res)
	}
	f.reg.Register(&Tool{Name: "boom", Handler: func(context.Context, map[string]any) Result { panic("boom") }})
	if res := f.reg.Execute(context.Background(), "boom", nil); res.OK() {
		t.Fatalf("panicking tool result = %v", res)
	}
}

func TestProfileAndTenure(t *testing.T) {
	f := newFixture(t)
	res := f.reg.Execute(context.Background(), NameProfile, nil)
	summary, ok := res["summary"].(domain.ProfileSummary)
	if !res.OK() || !ok || summary.LegalName != "Augusta Ada King" {
		t.Fatalf("profile result = %v", res)
	}

	res = f.reg.Execute(context.Background(), NameTenure, nil)
	tenure, ok := res["tenure"].(domain.Tenure)
	if !res.OK() || !ok {
		t.Fatalf("tenure result = %v", res)
	}
	if tenure.Years != 5 || tenure.Months != 9 || tenure.Days != 7 {
		t.Fatalf("tenure = %+v", tenure)
	}
}

func TestCheckDatesValidatesArguments(t *testing.T) {
	f := newFixture(t)
	for _, args := range []map[string]any{
		{"dates": []any{"2025-03-20"}},
		{"time_off_type": "Vacation", "dates": []any{}},
		{"time_off_type": "Vacation", "dates": []any{"next friday"}},
		{"time_off_type": "Sabbatical", "dates": []any{"2025-03-20"}},
	} {
		res := f.reg.Execute(context.Background(), NameDates, args)
		if res.OK() || !strings.HasPrefix(res.Message(), "Validation error") {
			t.Errorf("args %v: result = %v", args, res)
		}
	}
	if len(f.wd.checked) != 0 {
		t.Fatal("Workday called with invalid arguments")
	}
}

func TestAuthErrorInvalidatesCredential(t *testing.T) {
	f := newFixture(t)
	f.wd.validErr = &workday.APIError{StatusCode: http.StatusUnauthorized}

	res := f.reg.Execute(context.Background(), NameDates, map[string]any{
		"time_off_type": "Vacation", "dates": []any{"2025-03-20"},
	})
	if res.OK() || res.Message() != AuthExpiredMessage {
		t.Fatalf("result = %v", res)
	}
	if f.creds.invalidated != 1 {
		t.Fatalf("invalidated %d times", f.creds.invalidated)
	}
}

func TestAuthorizationFailureResult(t *testing.T) {
	f := newFixture(t)
	f.creds.err = &credential.AuthorizationError{Err: errors.New("login timed out")}
	res := f.reg.Execute(context.Background(), NameProfile, nil)
	if res.OK() || res.Message() != SignInMessage {
		t.Fatalf("result = %v", res)
	}
}

func TestSubmitRecordsOutcome(t *testing.T) {
	f := newFixture(t)
	ctx := WithSessionID(context.Background(), "sess-1")

	res := f.reg.Execute(ctx, NameSubmit, submitArgs())
	if !res.OK() || res["outcome"] != "submitted" {
		t.Fatalf("result = %v", res)
	}
	if len(f.wd.submits) != 1 || f.wd.submits[0].TypeID != vacationID {
		t.Fatalf("submits = %+v", f.wd.submits)
	}
	if len(f.ledger.rows) != 1 || f.ledger.rows[0].SessionID != "sess-1" || f.ledger.rows[0].Outcome != domain.OutcomeSubmitted {
		t.Fatalf("ledger = %+v", f.ledger.rows)
	}
}

func TestSubmitRejectsBadArguments(t *testing.T) {
	f := newFixture(t)
	args := submitArgs()
	args["end_date"] = "2025-03-01"
	if res := f.reg.Execute(context.Background(), NameSubmit, args); res.OK() {
		t.Fatalf("result = %v", res)
	}
	args = submitArgs()
	args["hours_per_day"] = "lots"
	if res := f.reg.Execute(context.Background(), NameSubmit, args); res.OK() {
		t.Fatalf("result = %v", res)
	}
	if len(f.wd.submits) != 0 {
		t.Fatal("Workday called with invalid arguments")
	}
}

func TestUncertainSubmissionRequiresRequery(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.wd.submitErr = &workday.TransportError{Sent: true, Err: context.DeadlineExceeded}
	res := f.reg.Execute(ctx, NameSubmit, submitArgs())
	if res.OK() || res["outcome"] != "uncertain" {
		t.Fatalf("first result = %v", res)
	}

	f.wd.submitErr = nil
	res = f.reg.Execute(ctx, NameSubmit, submitArgs())
	if res.OK() || res["outcome"] != "requery_required" {
		t.Fatalf("second result = %v", res)
	}
	if len(f.wd.submits) != 1 {
		t.Fatalf("overlapping retry reached Workday: %d submits", len(f.wd.submits))
	}

	check := f.reg.Execute(ctx, NameDates, map[string]any{
		"time_off_type": "Vacation", "dates": []any{"2025-03-21", "2025-03-20"},
	})
	if !check.OK() {
		t.Fatalf("check result = %v", check)
	}

	res = f.reg.Execute(ctx, NameSubmit, submitArgs())
	if !res.OK() {
		t.Fatalf("third result = %v", res)
	}
	if len(f.wd.submits) != 2 {
		t.Fatalf("submits = %d, want 2", len(f.wd.submits))
	}
}

func TestPartialDateCheckKeepsRequeryBlock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	week := map[string]any{
		"time_off_type": "Vacation",
		"start_date":    "2025-03-17",
		"end_date":      "2025-03-21",
		"hours_per_day": float64(8),
	}

	f.wd.submitErr = &workday.TransportError{Sent: true, Err: context.DeadlineExceeded}
	if res := f.reg.Execute(ctx, NameSubmit, week); res["outcome"] != "uncertain" {
		t.Fatalf("first result = %v", res)
	}
	f.wd.submitErr = nil

	checks := [][]any{
		{"2025-03-21"},
		{"2025-03-17", "2025-03-21"},
		{"2025-03-17", "2025-03-18", "2025-03-20", "2025-03-21"},
	}
	for _, dates := range checks {
		if res := f.reg.Execute(ctx, NameDates, map[string]any{"time_off_type": "Vacation", "dates": dates}); !res.OK() {
			t.Fatalf("check %v result = %v", dates, res)
		}
		if res := f.reg.Execute(ctx, NameSubmit, week); res["outcome"] != "requery_required" {
			t.Fatalf("after checking %v: result = %v", dates, res)
		}
	}
	if len(f.wd.submits) != 1 {
		t.Fatalf("submits = %d, want 1", len(f.wd.submits))
	}

	all := []any{"2025-03-19", "2025-03-17", "2025-03-18", "2025-03-21", "2025-03-20"}
	if res := f.reg.Execute(ctx, NameDates, map[string]any{"time_off_type": "Vacation", "dates": all}); !res.OK() {
		t.Fatalf("full check result = %v", res)
	}
	if res := f.reg.Execute(ctx, NameSubmit, week); !res.OK() {
		t.Fatalf("after full check: result = %v", res)
	}
	if len(f.wd.submits) != 2 {
		t.Fatalf("submits = %d, want 2", len(f.wd.submits))
	}
}

func TestSubmitUnreadableAnswerIsUncertain(t *testing.T) {
	for name, err := range map[string]error{
		"undecodable 2xx": &workday.ResponseError{StatusCode: http.StatusOK, Err: errors.New("invalid character '<'")},
		"gateway timeout": &workday.APIError{StatusCode: http.StatusGatewayTimeout},
	} {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t)
			f.wd.submitErr = err
			res := f.reg.Execute(context.Background(), NameSubmit, submitArgs())
			if res.OK() || res["outcome"] != "uncertain" {
				t.Fatalf("result = %v", res)
			}
			if len(f.ledger.rows) != 1 || f.ledger.rows[0].Outcome != domain.OutcomeUncertain {
				t.Fatalf("ledger = %+v", f.ledger.rows)
			}
		})
	}
}

func TestDateRuns(t *testing.T) {
	got := dateRuns([]string{"2025-03-21", "2025-03-17", "2025-03-18", "2025-03-18", "2025-03-31", "2025-04-01", "junk"})
	want := []dateRun{
		{start: "2025-03-17", end: "2025-03-18"},
		{start: "2025-03-21", end: "2025-03-21"},
		{start: "2025-03-31", end: "2025-04-01"},
	}
	if diff := cmp.Diff(want, got, cmp.AllowUnexported(dateRun{})); diff != "" {
		t.Fatalf("dateRuns (-want +got):\n%s", diff)
	}
}

func TestSubmitTransportFailureBeforeSendIsFailed(t *testing.T) {
	f := newFixture(t)
	f.wd.submitErr = &workday.TransportError{Sent: false, Err: errors.New("dial tcp: refused")}
	res := f.reg.Execute(context.Background(), NameSubmit, submitArgs())
	if res.OK() || res["outcome"] != "failed" {
		t.Fatalf("result = %v", res)
	}
	if f.ledger.rows[0].Outcome != domain.OutcomeFailed {
		t.Fatalf("ledger = %+v", f.ledger.rows[0])
	}
}

func TestLetterStoresDocument(t *testing.T) {
	f := newFixture(t)
	res := f.reg.Execute(context.Background(), NameLetter, nil)
	if !res.OK() {
		t.Fatalf("result = %v", res)
	}
	if res["filename"] != "Employment Verification Letter - Augusta Ada King.html" {
		t.Fatalf("filename = %v", res["filename"])
	}
	key, _ := res["download_key"].(string)
	data, ok := f.docs.Get(key)
	if !ok || !strings.Contains(string(data), "March 10, 2025") {
		t.Fatalf("stored letter missing or wrong: ok=%v", ok)
	}
	if !strings.HasPrefix(res["download_url"].(string), "/download_doc/") {
		t.Fatalf("download_url = %v", res["download_url"])
	}
}
