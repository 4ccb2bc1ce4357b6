package workday

import (
	"errors"
	"fmt"
	"time"

	"github.com/ashureev/askhr/internal/domain"
)

// ErrFutureHireDate is returned when the hire date is after the as-of date.
var ErrFutureHireDate = errors.New("hire date is in the future")

// ComputeTenure returns calendar years, months, and days from hireDate
// (YYYY-MM-DD) to asOf, borrowing days from the month before asOf.
func ComputeTenure(hireDate string, asOf time.Time) (domain.Tenure, error) {
	hire, err := time.Parse(time.DateOnly, hireDate)
	if err != nil {
		return domain.Tenure{}, fmt.Errorf("invalid hire date format: %s", hireDate)
	}
	asOf = time.Date(asOf.Year(), asOf.Month(), asOf.Day(), 0, 0, 0, 0, time.UTC)
	if hire.After(asOf) {
		return domain.Tenure{}, ErrFutureHireDate
	}

	years := asOf.Year() - hire.Year()
	months := int(asOf.Month()) - int(hire.Month())
	days := asOf.Day() - hire.Day()

	if days < 0 {
		months--
		// Day 0 of asOf's month is the last day of the previous month.
		days += time.Date(asOf.Year(), asOf.Month(), 0, 0, 0, 0, 0, time.UTC).Day()
	}
	if months < 0 {
		years--
		months += 12
	}

	total := int(asOf.Sub(hire).Hours() / 24)

	return domain.Tenure{
		Years:     years,
		Months:    months,
		Days:      days,
		TotalDays: total,
		HireDate:  hire.Format(time.DateOnly),
		AsOfDate:  asOf.Format(time.DateOnly),
		Summary:   fmt.Sprintf("%s, %s, %s", plural(years, "year"), plural(months, "month"), plural(days, "day")),
	}, nil
}

func plural(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, unit)
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
