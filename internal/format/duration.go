// Package format provides formatting utilities.
package format

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ParseISODuration parses an ISO 8601 duration such as "PT2H30M" or "P1DT4H".
// Date designators above days (years, months) are rejected; fractional
// components are accepted on any unit.
func ParseISODuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, errors.New("empty duration")
	}

	rest := s
	neg := false
	if rest[0] == '+' || rest[0] == '-' {
		neg = rest[0] == '-'
		rest = rest[1:]
	}
	if rest == "" || (rest[0] != 'P' && rest[0] != 'p') {
		return 0, fmt.Errorf("invalid ISO 8601 duration %q", s)
	}
	rest = rest[1:]

	var total time.Duration
	inTime := false
	sawComponent := false

	for i := 0; i < len(rest); {
		c := rest[i]
		if c == 'T' || c == 't' {
			if inTime {
				return 0, fmt.Errorf("invalid ISO 8601 duration %q", s)
			}
			inTime = true
			i++
			continue
		}

		j := i
		for j < len(rest) && (rest[j] >= '0' && rest[j] <= '9' || rest[j] == '.' || rest[j] == ',') {
			j++
		}
		if j == i || j == len(rest) {
			return 0, fmt.Errorf("invalid ISO 8601 duration %q", s)
		}
		value, err := strconv.ParseFloat(strings.ReplaceAll(rest[i:j], ",", "."), 64)
		if err != nil {
			return 0, fmt.Errorf("invalid ISO 8601 duration %q", s)
		}

		var scale time.Duration
		switch unit := rest[j]; {
		case !inTime && (unit == 'W' || unit == 'w'):
			scale = 7 * 24 * time.Hour
		case !inTime && (unit == 'D' || unit == 'd'):
			scale = 24 * time.Hour
		case inTime && (unit == 'H' || unit == 'h'):
			scale = time.Hour
		case inTime && (unit == 'M' || unit == 'm'):
			scale = time.Minute
		case inTime && (unit == 'S' || unit == 's'):
			scale = time.Second
		default:
			return 0, fmt.Errorf("unsupported designator %q in duration %q", string(rest[j]), s)
		}

		total += time.Duration(value * float64(scale))
		sawComponent = true
		i = j + 1
	}

	if !sawComponent {
		return 0, fmt.Errorf("invalid ISO 8601 duration %q", s)
	}
	if neg {
		total = -total
	}
	return total, nil
}

// HumanizeDuration renders a duration as "2h 30m", dropping zero units.
// Sub-minute durations round to "0m".
func HumanizeDuration(d time.Duration) string {
	if d < 0 {
		d = -d
	}
	d = d.Round(time.Minute)
	h := int(d / time.Hour)
	m := int(d % time.Hour / time.Minute)
	switch {
	case h > 0 && m > 0:
		return fmt.Sprintf("%dh %dm", h, m)
	case h > 0:
		return fmt.Sprintf("%dh", h)
	default:
		return fmt.Sprintf("%dm", m)
	}
}

// Clock12 formats a time on a 12-hour clock: "9:00 AM".
func Clock12(t time.Time) string {
	return t.Format("3:04 PM")
}
