package workday

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/ashureev/askhr/internal/domain"
)

// Keys under which secondary lookups are stored in the merged profile.
const (
	KeyLegalName      = "legalName"
	KeyServiceDates   = "serviceDates"
	KeyBalances       = "absence_balances"
	KeyEligibleTypes  = "eligible_absence_types"
	defaultDailyHours = 8
)

var (
	hexIDPattern     = regexp.MustCompile(`^[0-9a-fA-F]{32}$`)
	parenthesisedRun = regexp.MustCompile(`\((.*?)\)`)
	hireDateKeys     = []string{"hireDate", "originalHireDate", "firstDayOfWork", "companyStartDate", "reHireDate"}
	workerIDKeys     = []string{"id", "workerId", "worker_id", "workdayId", "workday_id"}
)

// ErrNoProfileData is returned when no primary profile endpoint answered.
var ErrNoProfileData = errors.New("workday returned no profile data")

// FetchProfile merges the worker, service-date, and legal-name endpoints, then
// adds absence balances and eligible absence types. Only workers/me is
// required; a 401/403 from any endpoint aborts the fetch.
func (c *Client) FetchProfile(ctx context.Context, token string) (map[string]any, string, error) {
	profile := map[string]any{}
	if err := c.getJSON(ctx, token, c.staffing("workers/me"), &profile); err != nil {
		return nil, "", err
	}
	if len(profile) == 0 {
		return nil, "", ErrNoProfileData
	}

	optional := []struct {
		key, endpoint string
	}{
		{KeyServiceDates, c.staffing("workers/me/serviceDates")},
		{KeyLegalName, c.person("people/me/legalName")},
	}
	workerID := ExtractWorkerID(profile)
	if workerID != "" {
		optional = append(optional,
			struct{ key, endpoint string }{KeyBalances, c.absence("balances?worker=" + url.QueryEscape(workerID))},
			struct{ key, endpoint string }{KeyEligibleTypes, c.absence("workers/" + url.PathEscape(workerID) + "/eligibleAbsenceTypes")},
		)
	}

	for _, o := range optional {
		var part map[string]any
		if err := c.getJSON(ctx, token, o.endpoint, &part); err != nil {
			if IsAuthError(err) {
				return nil, "", err
			}
			c.logger.Warn("Optional Workday lookup failed", "key", o.key, "error", err)
			continue
		}
		profile[o.key] = part
	}
	return profile, workerID, nil
}

// ExtractWorkerID returns the first worker identifier present in the profile.
func ExtractWorkerID(profile map[string]any) string {
	for _, k := range workerIDKeys {
		if v := str(profile, k); v != "" {
			return v
		}
	}
	return ""
}

// Summarize flattens the merged profile.
func Summarize(profile map[string]any) domain.ProfileSummary {
	primaryJob := obj(profile, "primaryJob")
	legal := firstData(obj(profile, KeyLegalName))
	service := firstData(obj(profile, KeyServiceDates))

	legalName := str(legal, "descriptor")
	if legalName == "" {
		legalName = strings.TrimSpace(str(legal, "first") + " " + str(legal, "last"))
	}

	workerID := str(profile, "workerId")
	if workerID == "" {
		workerID = ExtractWorkerID(profile)
	}

	return domain.ProfileSummary{
		WorkdayID:             workerID,
		Name:                  str(profile, "descriptor"),
		LegalName:             legalName,
		Email:                 str(obj(profile, "person"), "email"),
		HireDate:              pickHireDate(service),
		ContinuousServiceDate: str(service, "continuousServiceDate"),
		JobTitle:              str(primaryJob, "businessTitle"),
		Location:              str(obj(primaryJob, "location"), "descriptor"),
		Manager:               managerName(str(obj(primaryJob, "supervisoryOrganization"), "descriptor")),
		WorkerType:            str(obj(profile, "workerType"), "descriptor"),
		LeaveBalances:         balances(obj(profile, KeyBalances)),
		TimeOffTypes:          timeOffTypes(obj(profile, KeyEligibleTypes)),
	}
}

// ResolveTimeOffType maps a 32-hex ID or a type name onto an eligible type ID.
// Exact name matches win over substring matches; within a match set the
// "Time Off" group is preferred.
func ResolveTimeOffType(identifier string, types []domain.TimeOffType) (string, error) {
	ident := strings.TrimSpace(identifier)
	if ident == "" {
		return "", errors.New("empty time off type")
	}
	if hexIDPattern.MatchString(ident) {
		return strings.ToLower(ident), nil
	}
	if len(types) == 0 {
		return "", errors.New("no eligible time-off types available to resolve name")
	}

	lower := strings.ToLower(ident)
	var candidates []domain.TimeOffType
	for _, t := range types {
		if strings.ToLower(t.Name) == lower {
			candidates = append(candidates, t)
		}
	}
	if len(candidates) == 0 {
		for _, t := range types {
			if strings.Contains(strings.ToLower(t.Name), lower) {
				candidates = append(candidates, t)
			}
		}
	}
	if len(candidates) == 0 {
		return "", fmt.Errorf("could not resolve time off type %q to an ID", identifier)
	}

	chosen := candidates[0]
	for _, t := range candidates {
		if strings.EqualFold(t.Group, "time off") {
			chosen = t
			break
		}
	}
	if !hexIDPattern.MatchString(chosen.ID) {
		return "", fmt.Errorf("resolved ID for %q is invalid", identifier)
	}
	return strings.ToLower(chosen.ID), nil
}

func pickHireDate(service map[string]any) string {
	for _, k := range hireDateKeys {
		if v := str(service, k); v != "" {
			return v
		}
	}
	return ""
}

func managerName(descriptor string) string {
	if m := parenthesisedRun.FindStringSubmatch(descriptor); m != nil {
		return m[1]
	}
	return descriptor
}

func balances(data map[string]any) []domain.LeaveBalance {
	out := []domain.LeaveBalance{}
	for _, item := range list(data, "data") {
		qty, ok := number(item["quantity"])
		if !ok {
			continue
		}
		unit := str(obj(item, "unit"), "descriptor")
		if unit == "" {
			unit = "Hours"
		}
		out = append(out, domain.LeaveBalance{
			Plan:    str(obj(item, "absencePlan"), "descriptor"),
			Balance: qty,
			Unit:    unit,
		})
	}
	return out
}

func timeOffTypes(data map[string]any) []domain.TimeOffType {
	out := []domain.TimeOffType{}
	for _, item := range list(data, "data") {
		hours, ok := number(item["dailyDefaultQuantity"])
		if !ok {
			hours = defaultDailyHours
		}
		out = append(out, domain.TimeOffType{
			ID:           str(item, "id"),
			Name:         str(item, "descriptor"),
			Group:        str(obj(item, "absenceTypeGroup"), "descriptor"),
			DefaultHours: hours,
		})
	}
	return out
}

func obj(m map[string]any, key string) map[string]any {
	if m == nil {
		return nil
	}
	v, _ := m[key].(map[string]any)
	return v
}

func list(m map[string]any, key string) []map[string]any {
	if m == nil {
		return nil
	}
	raw, _ := m[key].([]any)
	out := make([]map[string]any, 0, len(raw))
	for _, item := range raw {
		if o, ok := item.(map[string]any); ok {
			out = append(out, o)
		}
	}
	return out
}

func firstData(m map[string]any) map[string]any {
	items := list(m, "data")
	if len(items) == 0 {
		return nil
	}
	return items[0]
}

func str(m map[string]any, key string) string {
	if m == nil {
		return ""
	}
	switch v := m[key].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return ""
	}
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	default:
		return 0, false
	}
}
