// Package timeslot normalizes the time-of-day and date labels that travel
// through the booking engine. Doctors and patients submit slot times in
// either 12-hour ("9:00 AM") or 24-hour ("09:00") form, so every comparison
// goes through Normalize first; raw string equality is never trusted.
package timeslot

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	ErrMalformedTime = errors.New("unrecognized time format")
	ErrMalformedDate = errors.New("date must be YYYY-MM-DD")
)

const DateLayout = "2006-01-02"

var (
	// Minutes are optional in meridiem form: "9am" and "9:00 AM" are the
	// same label.
	meridiemRe = regexp.MustCompile(`^(\d{1,2})(?::(\d{2}))?\s*([AaPp][Mm])$`)
	clock24Re  = regexp.MustCompile(`^(\d{1,2}):(\d{2})$`)
)

// fallbackLayouts are tried, in order, when neither primary pattern matches.
var fallbackLayouts = []string{
	"3:04PM",
	"15:04:05",
	time.Kitchen,
}

// Normalize converts a time label into zero-padded 24-hour "HH:MM".
func Normalize(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", ErrMalformedTime
	}

	if m := meridiemRe.FindStringSubmatch(s); m != nil {
		h, _ := strconv.Atoi(m[1])
		min := 0
		if m[2] != "" {
			min, _ = strconv.Atoi(m[2])
		}
		if h < 1 || h > 12 || min > 59 {
			return "", fmt.Errorf("%w: %q", ErrMalformedTime, raw)
		}
		switch strings.ToUpper(m[3]) {
		case "PM":
			if h < 12 {
				h += 12
			}
		case "AM":
			if h == 12 {
				h = 0
			}
		}
		return fmt.Sprintf("%02d:%02d", h, min), nil
	}

	if m := clock24Re.FindStringSubmatch(s); m != nil {
		h, _ := strconv.Atoi(m[1])
		min, _ := strconv.Atoi(m[2])
		if h > 23 || min > 59 {
			return "", fmt.Errorf("%w: %q", ErrMalformedTime, raw)
		}
		return fmt.Sprintf("%02d:%02d", h, min), nil
	}

	for _, layout := range fallbackLayouts {
		if t, err := time.Parse(layout, strings.ToUpper(s)); err == nil {
			return fmt.Sprintf("%02d:%02d", t.Hour(), t.Minute()), nil
		}
	}

	return "", fmt.Errorf("%w: %q", ErrMalformedTime, raw)
}

// NormalizeAll normalizes a slice of labels, preserving order and dropping
// duplicates after normalization.
func NormalizeAll(raw []string) ([]string, error) {
	out := make([]string, 0, len(raw))
	seen := make(map[string]struct{}, len(raw))
	for _, r := range raw {
		n, err := Normalize(r)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out, nil
}

// ParseDate validates a calendar-date label and returns it in canonical
// YYYY-MM-DD form.
func ParseDate(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrMalformedDate, raw)
	}
	return t.Format(DateLayout), nil
}

// DateOf returns the calendar-date label for an instant.
func DateOf(t time.Time) string {
	return t.Format(DateLayout)
}

// ClockOf returns the normalized time-of-day label for an instant.
func ClockOf(t time.Time) string {
	return fmt.Sprintf("%02d:%02d", t.Hour(), t.Minute())
}

// Before reports whether normalized label a is strictly earlier than b.
// Zero-padded HH:MM labels compare correctly as strings.
func Before(a, b string) bool {
	return a < b
}
