package domain

import (
	"time"
)

// SubmissionOutcome is the recorded result of a leave submission attempt.
type SubmissionOutcome string

const (
	// OutcomeSubmitted means Workday accepted the request.
	OutcomeSubmitted SubmissionOutcome = "submitted"
	// OutcomeFailed means Workday rejected the request or it never left the process.
	OutcomeFailed SubmissionOutcome = "failed"
	// OutcomeUncertain means the request may have reached Workday but no answer came back.
	OutcomeUncertain SubmissionOutcome = "uncertain"
	// OutcomeRequeried means an uncertain submission was followed by a fresh date check.
	OutcomeRequeried SubmissionOutcome = "requeried"
)

// Submission is one ledger row.
type Submission struct {
	ID            string            `json:"id"`
	SessionID     string            `json:"session_id"`
	WorkerID      string            `json:"worker_id"`
	TimeOffTypeID string            `json:"time_off_type_id"`
	StartDate     string            `json:"start_date"`
	EndDate       string            `json:"end_date"`
	HoursPerDay   float64           `json:"hours_per_day"`
	Comment       string            `json:"comment,omitempty"`
	Outcome       SubmissionOutcome `json:"outcome"`
	StatusCode    int               `json:"status_code,omitempty"`
	Detail        string            `json:"detail,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

// Overlaps reports whether the submission's date range intersects [start, end].
// Dates are ISO YYYY-MM-DD so lexical comparison is chronological.
func (s *Submission) Overlaps(start, end string) bool {
	return s.StartDate <= end && start <= s.EndDate
}

// Within reports whether the submission's whole date range lies in [start, end].
func (s *Submission) Within(start, end string) bool {
	return start <= s.StartDate && s.EndDate <= end
}
