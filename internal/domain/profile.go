package domain

// LeaveBalance is one row of the worker's absence balances.
type LeaveBalance struct {
	Plan    string  `json:"plan"`
	Balance float64 `json:"balance"`
	Unit    string  `json:"unit"`
}

// TimeOffType is an absence type the worker is eligible to request.
type TimeOffType struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	Group        string  `json:"group,omitempty"`
	DefaultHours float64 `json:"default_hours"`
}

// ProfileSummary is the flattened view of the merged Workday profile that
// tools and the reasoning context work with.
type ProfileSummary struct {
	WorkdayID             string         `json:"workday_id"`
	Name                  string         `json:"name"`
	LegalName             string         `json:"legal_name"`
	Email                 string         `json:"email"`
	HireDate              string         `json:"hire_date"`
	ContinuousServiceDate string         `json:"continuous_service_date"`
	JobTitle              string         `json:"job_title"`
	Location              string         `json:"location"`
	Manager               string         `json:"manager"`
	WorkerType            string         `json:"worker_type"`
	LeaveBalances         []LeaveBalance `json:"leave_balances"`
	TimeOffTypes          []TimeOffType  `json:"available_time_off_types"`
}

// Tenure is the calendar distance between a hire date and today.
type Tenure struct {
	Years     int    `json:"years"`
	Months    int    `json:"months"`
	Days      int    `json:"days"`
	TotalDays int    `json:"total_days"`
	HireDate  string `json:"hire_date"`
	AsOfDate  string `json:"as_of_date"`
	Summary   string `json:"summary"`
}
