package tools

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"time"

	"github.com/ashureev/askhr/internal/config"
	"github.com/ashureev/askhr/internal/credential"
	"github.com/ashureev/askhr/internal/docs"
	"github.com/ashureev/askhr/internal/domain"
	"github.com/ashureev/askhr/internal/llm"
	"github.com/ashureev/askhr/internal/oneshot"
	"github.com/ashureev/askhr/internal/store"
	"github.com/ashureev/askhr/internal/workday"
)

// Tool names advertised to the model.
const (
	NameProfile = "get_workday_profile"
	NameDates   = "check_valid_dates"
	NameSubmit  = "submit_time_off"
	NameTenure  = "get_tenure"
	NameLetter  = "generate_verification_letter"
)

// User-facing messages shared with the orchestrator.
const (
	AuthExpiredMessage   = "Authentication expired. Please try again."
	SignInMessage        = "I couldn't sign you in to Workday. Please complete the Workday login and try again."
	LetterAlreadySent    = "An employment verification letter has already been emailed to HR."
	defaultSubmitTimeout = 60 * time.Second
)

// Credentials is the part of the credential cache the tools use.
type Credentials interface {
	Get(ctx context.Context) (*domain.CredentialRecord, error)
	Invalidate() error
}

// Workday is the part of the Workday client the tools use.
type Workday interface {
	ValidTimeOffDates(ctx context.Context, token, workerID, typeID string, dates []string) (map[string]any, error)
	RequestTimeOff(ctx context.Context, token, workerID string, req workday.TimeOffRequest) (map[string]any, error)
}

// Deps are the collaborators of the HR tools.
type Deps struct {
	Credentials   Credentials
	Workday       Workday
	Docs          *docs.Cache
	Letters       docs.Renderer
	Ledger        store.Ledger
	Letter        config.LetterConfig
	SubmitTimeout time.Duration
	Now           func() time.Time
	Logger        *slog.Logger
}

type sessionKey struct{}

// WithSessionID tags ctx with the chat session so ledger rows can be traced.
func WithSessionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, sessionKey{}, id)
}

func sessionIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(sessionKey{}).(string)
	return id
}

type hr struct {
	Deps
}

// RegisterHR adds the five HR tools to r.
func RegisterHR(r *Registry, d Deps) {
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.SubmitTimeout <= 0 {
		d.SubmitTimeout = defaultSubmitTimeout
	}
	h := &hr{Deps: d}

	r.Register(&Tool{
		Name:        NameProfile,
		Description: "Get the current user's Workday profile: ID, name, email, job title, manager, location, hire date, leave balances and eligible time-off types.",
		Parameters:  &llm.Schema{Type: "object"},
		Handler:     h.profile,
	})
	r.Register(&Tool{
		Name:        NameDates,
		Description: "Check whether specific dates are valid for a time-off request. Always run this before summarising a request for confirmation.",
		Parameters: &llm.Schema{
			Type: "object",
			Properties: map[string]*llm.Schema{
				"time_off_type": {Type: "string", Description: "Time-off type name (e.g. Vacation) or its 32-character ID."},
				"dates":         {Type: "array", Description: "Dates to check, YYYY-MM-DD.", Items: &llm.Schema{Type: "string"}},
			},
			Required: []string{"time_off_type", "dates"},
		},
		Validation: true,
		Handler:    h.checkDates,
	})
	r.Register(&Tool{
		Name:        NameSubmit,
		Description: "Submit a time-off request. Only call after the user has explicitly confirmed the summarised request.",
		Parameters: &llm.Schema{
			Type: "object",
			Properties: map[string]*llm.Schema{
				"time_off_type": {Type: "string", Description: "Time-off type name or 32-character ID."},
				"start_date":    {Type: "string", Description: "First day, YYYY-MM-DD."},
				"end_date":      {Type: "string", Description: "Last day, YYYY-MM-DD."},
				"hours_per_day": {Type: "number", Description: "Hours to book per day."},
				"comment":       {Type: "string", Description: "Optional comment for the approver."},
			},
			Required: []string{"time_off_type", "start_date", "end_date", "hours_per_day"},
		},
		Destructive: true,
		Handler:     h.submit,
	})
	r.Register(&Tool{
		Name:        NameTenure,
		Description: "Compute exact tenure (years, months, days) from the hire date to today.",
		Parameters:  &llm.Schema{Type: "object"},
		Handler:     h.tenure,
	})
	r.Register(&Tool{
		Name:        NameLetter,
		Description: "Generate an employment verification letter from the user's Workday profile and return a download link.",
		Parameters:  &llm.Schema{Type: "object"},
		OneShot:     oneshot.LetterSent,
		Handler:     h.letter,
	})
}

// credential loads the record or returns the failure result to hand back.
func (h *hr) credential(ctx context.Context) (*domain.CredentialRecord, Result) {
	rec, err := h.Credentials.Get(ctx)
	if err != nil {
		h.Logger.Warn("Credential unavailable for tool call", "error", err)
		if credential.IsAuthorizationError(err) {
			return nil, Result{"success": false, "error": SignInMessage, "reason": "authorization_failed"}
		}
		return nil, Failure(err.Error())
	}
	return rec, nil
}

// workdayFailure maps a Workday error onto a result, dropping the credential
// on 401/403.
func (h *hr) workdayFailure(err error) Result {
	if workday.IsAuthError(err) {
		if invErr := h.Credentials.Invalidate(); invErr != nil {
			h.Logger.Warn("Failed to invalidate credential", "error", invErr)
		}
		return Failure(AuthExpiredMessage)
	}
	return Failure(err.Error())
}

func (h *hr) profile(ctx context.Context, _ map[string]any) Result {
	rec, fail := h.credential(ctx)
	if fail != nil {
		return fail
	}
	return Result{
		"success":  true,
		"summary":  workday.Summarize(rec.Profile),
		"raw_data": rec.Profile,
	}
}

func (h *hr) checkDates(ctx context.Context, args map[string]any) Result {
	typeArg, err := stringArg(args, "time_off_type", true)
	if err != nil {
		return Failure("Validation error: " + err.Error())
	}
	dates, err := dateListArg(args, "dates")
	if err != nil {
		return Failure("Validation error: " + err.Error())
	}

	rec, fail := h.credential(ctx)
	if fail != nil {
		return fail
	}
	summary := workday.Summarize(rec.Profile)
	typeID, err := workday.ResolveTimeOffType(typeArg, summary.TimeOffTypes)
	if err != nil {
		return Failure("Validation error: " + err.Error())
	}

	out, err := h.Workday.ValidTimeOffDates(ctx, rec.AccessToken, rec.WorkerID, typeID, dates)
	if err != nil {
		return h.workdayFailure(err)
	}

	// Only a check covering every day of an uncertain request resolves it.
	if h.Ledger != nil {
		for _, run := range dateRuns(dates) {
			if n, err := h.Ledger.MarkRequeried(ctx, rec.WorkerID, run.start, run.end); err != nil {
				h.Logger.Warn("Failed to resolve uncertain submissions", "error", err)
			} else if n > 0 {
				h.Logger.Info("Resolved uncertain submissions after date check", "count", n, "start", run.start, "end", run.end)
			}
		}
	}

	return Result{
		"success":          true,
		"time_off_type_id": typeID,
		"dates":            dates,
		"result":           out,
	}
}

func (h *hr) submit(ctx context.Context, args map[string]any) Result {
	req, err := submitRequest(args)
	if err != nil {
		return Failure("Validation error: " + err.Error())
	}

	rec, fail := h.credential(ctx)
	if fail != nil {
		return fail
	}
	summary := workday.Summarize(rec.Profile)
	req.TypeID, err = workday.ResolveTimeOffType(req.TypeID, summary.TimeOffTypes)
	if err != nil {
		return Failure("Validation error: " + err.Error())
	}

	if blocked := h.pendingUncertain(ctx, rec.WorkerID, req); blocked != nil {
		return blocked
	}

	// A dispatched submission is not cancelled with the turn; only its own
	// timeout bounds it.
	subCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), h.SubmitTimeout)
	defer cancel()
	out, err := h.Workday.RequestTimeOff(subCtx, rec.AccessToken, rec.WorkerID, req)

	sub := &domain.Submission{
		SessionID:     sessionIDFrom(ctx),
		WorkerID:      rec.WorkerID,
		TimeOffTypeID: req.TypeID,
		StartDate:     req.StartDate,
		EndDate:       req.EndDate,
		HoursPerDay:   req.HoursPerDay,
		Comment:       req.Comment,
	}

	var res Result
	switch {
	case err == nil:
		sub.Outcome = domain.OutcomeSubmitted
		res = Result{
			"success":          true,
			"outcome":          string(domain.OutcomeSubmitted),
			"time_off_type_id": req.TypeID,
			"start_date":       req.StartDate,
			"end_date":         req.EndDate,
			"hours_per_day":    req.HoursPerDay,
			"result":           out,
		}
	case workday.IsUncertain(err):
		sub.Outcome = domain.OutcomeUncertain
		sub.Detail = err.Error()
		res = Result{
			"success": false,
			"outcome": string(domain.OutcomeUncertain),
			"error":   "The request may have reached Workday, but no confirmation came back. Check those dates before submitting again.",
		}
	default:
		sub.Outcome = domain.OutcomeFailed
		sub.Detail = err.Error()
		var apiErr *workday.APIError
		if errors.As(err, &apiErr) {
			sub.StatusCode = apiErr.StatusCode
		}
		res = h.workdayFailure(err)
		res["outcome"] = string(domain.OutcomeFailed)
	}

	h.record(ctx, sub)
	return res
}

func submitRequest(args map[string]any) (workday.TimeOffRequest, error) {
	var req workday.TimeOffRequest
	var err error
	if req.TypeID, err = stringArg(args, "time_off_type", true); err != nil {
		return req, err
	}
	if req.StartDate, err = dateArg(args, "start_date"); err != nil {
		return req, err
	}
	if req.EndDate, err = dateArg(args, "end_date"); err != nil {
		return req, err
	}
	if req.EndDate < req.StartDate {
		return req, errors.New("end_date is before start_date")
	}
	if req.HoursPerDay, err = numberArg(args, "hours_per_day"); err != nil {
		return req, err
	}
	if req.HoursPerDay <= 0 || req.HoursPerDay > 24 {
		return req, errors.New("hours_per_day must be between 0 and 24")
	}
	if req.Comment, err = stringArg(args, "comment", false); err != nil {
		return req, err
	}
	return req, nil
}

// pendingUncertain refuses a submission that overlaps an earlier one whose
// outcome is still unknown.
func (h *hr) pendingUncertain(ctx context.Context, workerID string, req workday.TimeOffRequest) Result {
	if h.Ledger == nil {
		return nil
	}
	pending, err := h.Ledger.UnresolvedUncertain(ctx, workerID)
	if err != nil {
		h.Logger.Warn("Failed to read submission ledger", "error", err)
		return nil
	}
	for _, p := range pending {
		if p.Overlaps(req.StartDate, req.EndDate) {
			return Result{
				"success":    false,
				"outcome":    "requery_required",
				"error":      "An earlier request for overlapping dates may already be in Workday. Run check_valid_dates for those dates before submitting again.",
				"start_date": p.StartDate,
				"end_date":   p.EndDate,
			}
		}
	}
	return nil
}

func (h *hr) record(ctx context.Context, sub *domain.Submission) {
	if h.Ledger == nil {
		return
	}
	if err := h.Ledger.RecordSubmission(context.WithoutCancel(ctx), sub); err != nil {
		h.Logger.Error("Failed to record submission", "outcome", sub.Outcome, "error", err)
	}
}

func (h *hr) tenure(ctx context.Context, _ map[string]any) Result {
	rec, fail := h.credential(ctx)
	if fail != nil {
		return fail
	}
	summary := workday.Summarize(rec.Profile)
	if summary.HireDate == "" {
		return Failure("Hire date not available")
	}
	t, err := workday.ComputeTenure(summary.HireDate, h.Now())
	if err != nil {
		return Failure(err.Error())
	}
	return Result{"success": true, "tenure": t}
}

func (h *hr) letter(ctx context.Context, _ map[string]any) Result {
	rec, fail := h.credential(ctx)
	if fail != nil {
		return fail
	}
	s := workday.Summarize(rec.Profile)
	doc, err := h.Letters.Render(ctx, docs.LetterData{
		EmployeeName:   s.Name,
		LegalName:      s.LegalName,
		Email:          s.Email,
		JobTitle:       s.JobTitle,
		Manager:        s.Manager,
		Location:       s.Location,
		HireDate:       s.HireDate,
		WorkerType:     s.WorkerType,
		WorkdayID:      s.WorkdayID,
		Today:          h.Now().Format("January 02, 2006"),
		CompanyName:    h.Letter.CompanyName,
		SignatureName:  h.Letter.SignatureName,
		SignatureTitle: h.Letter.SignatureTitle,
	})
	if err != nil {
		return Failure("Unable to generate the employment verification letter: " + err.Error())
	}
	key, err := h.Docs.Put(doc.Data, doc.Filename, docs.PreserveSpaces(doc.PreserveSpaces))
	if err != nil {
		return Failure("Unable to store the employment verification letter: " + err.Error())
	}
	filename, _ := h.Docs.Filename(key)
	downloadURL := "/download_doc/" + url.PathEscape(key)
	return Result{
		"success":      true,
		"filename":     filename,
		"download_key": key,
		"download_url": downloadURL,
		"message":      "Your employment verification letter has been generated. [Download here](" + downloadURL + ")",
	}
}
