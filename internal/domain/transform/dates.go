package transform

import (
	"fmt"
	"strings"
	"time"
)

var monthNames = [...]string{
	"Jan", "Feb", "Mar", "Apr", "May", "Jun",
	"Jul", "Aug", "Sep", "Oct", "Nov", "Dec",
}

// formatMonthYear renders a month/year pair as "Jan 2020". A zero month
// renders just the year; a zero year renders nothing.
func formatMonthYear(month, year int) string {
	if year <= 0 {
		return ""
	}
	if month < 1 || month > 12 {
		return fmt.Sprintf("%d", year)
	}
	return fmt.Sprintf("%s %d", monthNames[month-1], year)
}

// formatEnd renders the end of a date range, using "Present" for open ranges
// when the range has a known start.
func formatEnd(month, year, startYear int) string {
	if year <= 0 {
		if startYear > 0 {
			return "Present"
		}
		return ""
	}
	return formatMonthYear(month, year)
}

// durationBetween renders the span between two month/year pairs as
// "3 yrs, 2 mos", eliding zero parts and using singular forms. An open end
// is measured against now. Unknown starts yield an empty string.
func durationBetween(startMonth, startYear, endMonth, endYear int, now time.Time) string {
	if startYear <= 0 {
		return ""
	}
	if startMonth < 1 || startMonth > 12 {
		startMonth = 1
	}
	if endYear <= 0 {
		endYear = now.Year()
		endMonth = int(now.Month())
	}
	if endMonth < 1 || endMonth > 12 {
		endMonth = 1
	}

	months := (endYear-startYear)*12 + (endMonth - startMonth)
	if months < 0 {
		return ""
	}
	// A position held within a single month still counts as one.
	months++

	years := months / 12
	rem := months % 12

	var parts []string
	switch years {
	case 0:
	case 1:
		parts = append(parts, "1 yr")
	default:
		parts = append(parts, fmt.Sprintf("%d yrs", years))
	}
	switch rem {
	case 0:
	case 1:
		parts = append(parts, "1 mo")
	default:
		parts = append(parts, fmt.Sprintf("%d mos", rem))
	}
	if len(parts) == 0 {
		return ""
	}
	return strings.Join(parts, ", ")
}

// parseYearMonth splits "2020-01" style stamps into their parts. Bare years
// parse with a zero month.
func parseYearMonth(s string) (year, month int) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, 0
	}
	if i := strings.IndexByte(s, '-'); i > 0 {
		fmt.Sscanf(s[:i], "%d", &year)
		fmt.Sscanf(s[i+1:], "%d", &month)
		if month < 1 || month > 12 {
			month = 0
		}
		return year, month
	}
	fmt.Sscanf(s, "%d", &year)
	return year, 0
}
