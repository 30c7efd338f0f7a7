package domain

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	ErrEmptyDue   = errors.New("empty due time")
	ErrInvalidDue = errors.New("invalid due time")
	ErrDueInPast  = errors.New("due time already passed")
	ErrDueTooFar  = errors.New("due time too far ahead")
)

// ParseDueHuman parses a due time for a manual task. Accepted forms:
// relative offsets like "90m", "2h", "1h30m", "3d", or an absolute UTC
// timestamp "2006-01-02 15:04". The result must lie between now and one
// year out.
func ParseDueHuman(s string, now time.Time) (time.Time, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return time.Time{}, ErrEmptyDue
	}

	var due time.Time
	if t, err := time.Parse("2006-01-02 15:04", s); err == nil {
		due = t.UTC()
	} else {
		d, err := parseOffset(s)
		if err != nil {
			return time.Time{}, err
		}
		due = now.Add(d).UTC()
	}

	if !due.After(now) {
		return time.Time{}, ErrDueInPast
	}
	if due.After(now.Add(365 * 24 * time.Hour)) {
		return time.Time{}, ErrDueTooFar
	}
	return due, nil
}

// parseOffset parses "3d", "2h", "90m", "1h30m" style offsets. A plain
// number means minutes.
func parseOffset(s string) (time.Duration, error) {
	if isAllDigits(s) {
		mins, _ := strconv.Atoi(s)
		return time.Duration(mins) * time.Minute, nil
	}

	var total time.Duration
	re := regexp.MustCompile(`(\d+)\s*d`)
	if m := re.FindStringSubmatch(s); len(m) == 2 {
		d, _ := strconv.Atoi(m[1])
		total += time.Duration(d) * 24 * time.Hour
	}
	re = regexp.MustCompile(`(\d+)\s*h`)
	if m := re.FindStringSubmatch(s); len(m) == 2 {
		h, _ := strconv.Atoi(m[1])
		total += time.Duration(h) * time.Hour
	}
	re = regexp.MustCompile(`(\d+)\s*m`)
	if m := re.FindStringSubmatch(s); len(m) == 2 {
		mins, _ := strconv.Atoi(m[1])
		total += time.Duration(mins) * time.Minute
	}
	if total == 0 {
		return 0, fmt.Errorf("%w: %s", ErrInvalidDue, s)
	}
	return total, nil
}

func isAllDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}

// FormatDue renders a due timestamp for chat messages.
func FormatDue(t time.Time) string {
	return t.UTC().Format("January 2, 2006 at 15:04 UTC")
}
