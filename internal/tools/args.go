package tools

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"
)

func stringArg(args map[string]any, key string, required bool) (string, error) {
	v, ok := args[key]
	if !ok || v == nil {
		if required {
			return "", fmt.Errorf("%s is required", key)
		}
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%s must be a string", key)
	}
	s = strings.TrimSpace(s)
	if s == "" && required {
		return "", fmt.Errorf("%s is required", key)
	}
	return s, nil
}

func dateArg(args map[string]any, key string) (string, error) {
	s, err := stringArg(args, key, true)
	if err != nil {
		return "", err
	}
	if _, err := time.Parse(time.DateOnly, s); err != nil {
		return "", fmt.Errorf("%s must be YYYY-MM-DD, got %q", key, s)
	}
	return s, nil
}

func numberArg(args map[string]any, key string) (float64, error) {
	switch v := args[key].(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, fmt.Errorf("%s must be a number, got %q", key, v)
		}
		return f, nil
	case nil:
		return 0, fmt.Errorf("%s is required", key)
	default:
		return 0, fmt.Errorf("%s must be a number", key)
	}
}

func dateListArg(args map[string]any, key string) ([]string, error) {
	raw, ok := args[key]
	if !ok || raw == nil {
		return nil, fmt.Errorf("%s is required", key)
	}
	var items []any
	switch v := raw.(type) {
	case []any:
		items = v
	case []string:
		for _, s := range v {
			items = append(items, s)
		}
	case string:
		items = []any{v}
	default:
		return nil, fmt.Errorf("%s must be a list of dates", key)
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("%s must not be empty", key)
	}
	dates := make([]string, 0, len(items))
	for _, item := range items {
		s, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("%s must contain only strings", key)
		}
		s = strings.TrimSpace(s)
		if _, err := time.Parse(time.DateOnly, s); err != nil {
			return nil, fmt.Errorf("%s entry %q is not YYYY-MM-DD", key, s)
		}
		dates = append(dates, s)
	}
	return dates, nil
}

// dateRun is an inclusive range of consecutive calendar days.
type dateRun struct {
	start, end string
}

// dateRuns groups ISO dates into runs of consecutive days. Unparseable
// dates are skipped; duplicates collapse.
func dateRuns(dates []string) []dateRun {
	days := make([]time.Time, 0, len(dates))
	for _, d := range dates {
		t, err := time.Parse(time.DateOnly, d)
		if err != nil {
			continue
		}
		days = append(days, t)
	}
	slices.SortFunc(days, func(a, b time.Time) int { return a.Compare(b) })
	days = slices.CompactFunc(days, func(a, b time.Time) bool { return a.Equal(b) })

	var runs []dateRun
	for i := 0; i < len(days); {
		j := i
		for j+1 < len(days) && days[j+1].Equal(days[j].AddDate(0, 0, 1)) {
			j++
		}
		runs = append(runs, dateRun{start: days[i].Format(time.DateOnly), end: days[j].Format(time.DateOnly)})
		i = j + 1
	}
	return runs
}
