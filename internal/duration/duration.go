// Package duration parses operator-entered subscription durations of the
// form "<number><unit>" where the unit is m (minutes), h (hours), d (days)
// or M (calendar months). Case matters: m and M are different units.
package duration

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jinzhu/now"
)

var (
	ErrInvalidFormat = errors.New("invalid duration format, expected a number followed by a unit")
	ErrInvalidUnit   = errors.New("invalid duration unit, use 'm' for minutes, 'h' for hours, 'd' for days, or 'M' for months")
)

// Span is either a fixed time span or a number of calendar months. Months
// cannot be represented as a fixed span because their length depends on
// the date they are added to.
type Span struct {
	fixed    time.Duration
	months   int
	calendar bool
	text     string
}

func Parse(s string) (Span, error) {
	if len(s) < 2 {
		return Span{}, fmt.Errorf("%w: %q", ErrInvalidFormat, s)
	}

	amount, err := strconv.Atoi(s[:len(s)-1])
	if err != nil {
		return Span{}, fmt.Errorf("%w: %q", ErrInvalidFormat, s)
	}

	switch s[len(s)-1] {
	case 'm':
		return Span{fixed: time.Duration(amount) * time.Minute, text: s}, nil
	case 'h':
		return Span{fixed: time.Duration(amount) * time.Hour, text: s}, nil
	case 'd':
		return Span{fixed: time.Duration(amount) * 24 * time.Hour, text: s}, nil
	case 'M':
		return Span{months: amount, calendar: true, text: s}, nil
	default:
		return Span{}, fmt.Errorf("%w: %q", ErrInvalidUnit, s)
	}
}

// AddTo returns t plus the span. Fixed spans are added arithmetically.
// Calendar months keep the day of month where possible and otherwise clamp
// to the last day of the target month, so Jan 31 + 1M lands on Feb 28/29
// instead of overflowing into March.
func (s Span) AddTo(t time.Time) time.Time {
	if !s.calendar {
		return t.Add(s.fixed)
	}

	first := time.Date(t.Year(), t.Month(), 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	first = first.AddDate(0, s.months, 0)

	day := t.Day()
	if last := now.New(first).EndOfMonth().Day(); day > last {
		day = last
	}
	return time.Date(first.Year(), first.Month(), day, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

func (s Span) String() string {
	return s.text
}
