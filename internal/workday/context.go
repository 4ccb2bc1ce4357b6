package workday

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ashureev/askhr/internal/domain"
)

// FormatContext renders the profile block that leads every reasoning request.
func FormatContext(s domain.ProfileSummary, today time.Time) string {
	var b strings.Builder
	b.WriteString("USER CONTEXT:\n")
	fmt.Fprintf(&b, "- Name: %s\n", s.Name)
	fmt.Fprintf(&b, "- Legal Name: %s\n", s.LegalName)
	fmt.Fprintf(&b, "- Email: %s\n", s.Email)
	fmt.Fprintf(&b, "- Job Title: %s\n", s.JobTitle)
	fmt.Fprintf(&b, "- Manager: %s\n", s.Manager)
	fmt.Fprintf(&b, "- Location: %s\n", s.Location)
	fmt.Fprintf(&b, "- Hire Date: %s\n", s.HireDate)
	fmt.Fprintf(&b, "- Worker Type: %s\n", s.WorkerType)

	b.WriteString("\nLEAVE BALANCES:\n")
	b.WriteString(indentJSON(s.LeaveBalances))
	b.WriteString("\n\nAVAILABLE TIME-OFF TYPES:\n")
	b.WriteString(indentJSON(s.TimeOffTypes))
	fmt.Fprintf(&b, "\n\nTODAY: %s (%s)", today.Format(time.DateOnly), today.Weekday())
	return b.String()
}

func indentJSON(v any) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "[]"
	}
	return string(data)
}
