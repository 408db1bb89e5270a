package csvimport

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/araddon/dateparse"
)

var datePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(\d{1,2})/(\d{1,2})/(\d{4})`),
	regexp.MustCompile(`(\d{4})-(\d{1,2})-(\d{1,2})`),
	regexp.MustCompile(`(\d{1,2})-(\d{1,2})-(\d{4})`),
}

// ParseDate parses a bank date string. ok is false when no strategy
// produced a real calendar date.
func ParseDate(s string) (civil.Date, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return civil.Date{}, false
	}

	matched := false
	for _, re := range datePatterns {
		m := re.FindStringSubmatch(s)
		if m == nil {
			continue
		}
		matched = true
		var year, month, day string
		if len(m[3]) == 4 {
			month, day, year = m[1], m[2], m[3]
		} else {
			year, month, day = m[1], m[2], m[3]
		}
		if d, ok := buildDate(year, month, day); ok {
			return d, true
		}
	}

	// A numeric date that names an impossible day is rejected outright
	// rather than reinterpreted by the free-text parser.
	if matched {
		return civil.Date{}, false
	}

	t, err := dateparse.ParseIn(s, time.UTC)
	if err != nil {
		return civil.Date{}, false
	}
	d := civil.DateOf(t)
	if !d.IsValid() {
		return civil.Date{}, false
	}
	return d, true
}

// NormalizeDate returns the date as YYYY-MM-DD.
func NormalizeDate(s string) (string, bool) {
	d, ok := ParseDate(s)
	if !ok {
		return "", false
	}
	return d.String(), true
}

func buildDate(year, month, day string) (civil.Date, bool) {
	y, err1 := strconv.Atoi(year)
	m, err2 := strconv.Atoi(month)
	dd, err3 := strconv.Atoi(day)
	if err1 != nil || err2 != nil || err3 != nil {
		return civil.Date{}, false
	}
	if m < 1 || m > 12 {
		return civil.Date{}, false
	}
	d := civil.Date{Year: y, Month: time.Month(m), Day: dd}
	// IsValid rejects days past the end of the month, e.g. 02/30.
	if !d.IsValid() {
		return civil.Date{}, false
	}
	return d, true
}
