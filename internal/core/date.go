package core

import (
	"fmt"
	"strings"
	"time"
)

const (
	dateKeyLayout = "2006-01-02"
	// legacyKeyLayout is JavaScript's Date.toDateString, which keyed the
	// first generation of dinner documents.
	legacyKeyLayout = "Mon Jan 02 2006"
)

// DateKey is a calendar day with no time-of-day component, e.g. "2024-03-05".
type DateKey string

// YearMonth scopes monthly aggregation.
type YearMonth struct {
	Year  int
	Month time.Month
}

// NewDateKey truncates t to its calendar day in t's own location.
func NewDateKey(t time.Time) DateKey {
	return DateKey(t.Format(dateKeyLayout))
}

// DateKeyOf builds a key from calendar components, normalising overflow
// (e.g. day 32) the way time.Date does.
func DateKeyOf(year int, month time.Month, day int) DateKey {
	return NewDateKey(time.Date(year, month, day, 0, 0, 0, 0, time.UTC))
}

// ParseDateKey accepts the canonical form and the legacy toDateString form.
func ParseDateKey(s string) (DateKey, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(dateKeyLayout, s); err == nil {
		return NewDateKey(t), nil
	}
	if t, err := time.Parse(legacyKeyLayout, s); err == nil {
		return NewDateKey(t), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidDate, s)
}

// Time returns midnight UTC of the key's day.
func (k DateKey) Time() (time.Time, error) {
	t, err := time.Parse(dateKeyLayout, string(k))
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, string(k))
	}
	return t, nil
}

// YearMonth returns the month the key falls in; the zero value if the key
// is malformed.
func (k DateKey) YearMonth() YearMonth {
	t, err := k.Time()
	if err != nil {
		return YearMonth{}
	}
	return YearMonth{Year: t.Year(), Month: t.Month()}
}

func (k DateKey) Day() int {
	t, err := k.Time()
	if err != nil {
		return 0
	}
	return t.Day()
}

func (k DateKey) String() string { return string(k) }

// MonthOf returns the month containing t.
func MonthOf(t time.Time) YearMonth {
	return YearMonth{Year: t.Year(), Month: t.Month()}
}

func (ym YearMonth) Validate() error {
	if ym.Month < time.January || ym.Month > time.December {
		return fmt.Errorf("%w: month %d", ErrInvalidDate, ym.Month)
	}
	if ym.Year < 1 {
		return fmt.Errorf("%w: year %d", ErrInvalidDate, ym.Year)
	}
	return nil
}

// Contains reports whether key falls within the month.
func (ym YearMonth) Contains(key DateKey) bool {
	return key.YearMonth() == ym
}

// First is the first day of the month.
func (ym YearMonth) First() DateKey {
	return DateKeyOf(ym.Year, ym.Month, 1)
}

// Days is the number of days in the month.
func (ym YearMonth) Days() int {
	return time.Date(ym.Year, ym.Month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func (ym YearMonth) Next() YearMonth {
	t := time.Date(ym.Year, ym.Month+1, 1, 0, 0, 0, 0, time.UTC)
	return MonthOf(t)
}

func (ym YearMonth) Prev() YearMonth {
	t := time.Date(ym.Year, ym.Month-1, 1, 0, 0, 0, 0, time.UTC)
	return MonthOf(t)
}

func (ym YearMonth) String() string {
	return fmt.Sprintf("%04d-%02d", ym.Year, int(ym.Month))
}

// ParseYearMonth parses "2024-03".
func ParseYearMonth(s string) (YearMonth, error) {
	t, err := time.Parse("2006-01", strings.TrimSpace(s))
	if err != nil {
		return YearMonth{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return MonthOf(t), nil
}
