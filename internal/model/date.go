package model

import (
	"fmt"
	"time"
)

const (
	dateLayout      = "2006-01-02"
	yearMonthLayout = "2006-01"
)

// DateKey is a calendar day in yyyy-MM-dd form. It carries no time zone, so two
// keys are equal exactly when they name the same day.
type DateKey string

// YearMonth is a calendar month in yyyy-MM form.
type YearMonth string

// NewDateKey takes the calendar fields of t as they read in t's own location.
func NewDateKey(t time.Time) DateKey {
	y, m, d := t.Date()
	return DateKey(fmt.Sprintf("%04d-%02d-%02d", y, int(m), d))
}

// ParseDateKey validates s and returns it as a DateKey.
func ParseDateKey(s string) (DateKey, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return "", fmt.Errorf("parse date %q: %w", s, err)
	}
	return NewDateKey(t), nil
}

// Time returns midnight UTC of the day.
func (d DateKey) Time() time.Time {
	t, err := time.Parse(dateLayout, string(d))
	if err != nil {
		return time.Time{}
	}
	return t
}

// Valid reports whether d is a well-formed calendar day.
func (d DateKey) Valid() bool {
	_, err := time.Parse(dateLayout, string(d))
	return err == nil
}

func (d DateKey) AddDays(n int) DateKey {
	return NewDateKey(d.Time().AddDate(0, 0, n))
}

// Before compares in calendar order. The fixed-width layout makes the string
// order and the calendar order the same.
func (d DateKey) Before(o DateKey) bool {
	return d < o
}

func (d DateKey) YearMonth() YearMonth {
	if len(d) < len(yearMonthLayout) {
		return ""
	}
	return YearMonth(d[:len(yearMonthLayout)])
}

func (d DateKey) String() string {
	return string(d)
}

// DaysBetween returns every day from a to b inclusive, in calendar order,
// whichever of the two comes first.
func DaysBetween(a, b DateKey) []DateKey {
	if b.Before(a) {
		a, b = b, a
	}
	var days []DateKey
	for d := a; !b.Before(d); d = d.AddDays(1) {
		days = append(days, d)
	}
	return days
}

// SpanDays counts the days from a to b inclusive, whichever comes first.
func SpanDays(a, b DateKey) int {
	secs := b.Time().Unix() - a.Time().Unix()
	if secs < 0 {
		secs = -secs
	}
	return int(secs/86400) + 1
}

// ParseYearMonth validates s and returns it as a YearMonth.
func ParseYearMonth(s string) (YearMonth, error) {
	t, err := time.Parse(yearMonthLayout, s)
	if err != nil {
		return "", fmt.Errorf("parse year-month %q: %w", s, err)
	}
	return YearMonth(t.Format(yearMonthLayout)), nil
}

func (ym YearMonth) String() string {
	return string(ym)
}
