package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// CalendarDate is a day without a time or location. All site-facing date
// strings are built from its explicit components so a process timezone can
// never shift the day being edited.
type CalendarDate struct {
	Year  int
	Month time.Month
	Day   int
}

// ParseCalendarDate parses an ISO "YYYY-MM-DD" date
func ParseCalendarDate(s string) (CalendarDate, error) {
	t, err := time.Parse("2006-01-02", strings.TrimSpace(s))
	if err != nil {
		return CalendarDate{}, fmt.Errorf("invalid calendar date %q: %w", s, err)
	}
	return DateOf(t), nil
}

// ParseDayMonthYear parses the site's "DD.MM.YYYY" format
func ParseDayMonthYear(s string) (CalendarDate, error) {
	parts := strings.Split(strings.TrimSpace(s), ".")
	if len(parts) != 3 {
		return CalendarDate{}, fmt.Errorf("invalid day.month.year date %q", s)
	}
	nums := make([]int, 3)
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return CalendarDate{}, fmt.Errorf("invalid day.month.year date %q: %w", s, err)
		}
		nums[i] = n
	}
	d := CalendarDate{Year: nums[2], Month: time.Month(nums[1]), Day: nums[0]}
	if !d.Valid() {
		return CalendarDate{}, fmt.Errorf("invalid day.month.year date %q", s)
	}
	return d, nil
}

// DateOf returns the calendar date of t in t's own location
func DateOf(t time.Time) CalendarDate {
	y, m, d := t.Date()
	return CalendarDate{Year: y, Month: m, Day: d}
}

// Today returns the current local calendar date
func Today() CalendarDate {
	return DateOf(time.Now())
}

// Valid reports whether the components name a real day
func (d CalendarDate) Valid() bool {
	if d.Month < time.January || d.Month > time.December || d.Day < 1 {
		return false
	}
	t := time.Date(d.Year, d.Month, d.Day, 12, 0, 0, 0, time.UTC)
	return t.Day() == d.Day
}

// IsZero reports whether d is the zero date
func (d CalendarDate) IsZero() bool {
	return d == CalendarDate{}
}

// String returns the ISO form, "2025-03-07"
func (d CalendarDate) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

// DayMonthYear returns the site form, "07.03.2025"
func (d CalendarDate) DayMonthYear() string {
	return fmt.Sprintf("%02d.%02d.%d", d.Day, int(d.Month), d.Year)
}

// Compare returns -1, 0 or +1 as d is before, equal to or after o
func (d CalendarDate) Compare(o CalendarDate) int {
	switch {
	case d.Year != o.Year:
		return cmpInt(d.Year, o.Year)
	case d.Month != o.Month:
		return cmpInt(int(d.Month), int(o.Month))
	default:
		return cmpInt(d.Day, o.Day)
	}
}

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// MarshalText encodes the date in ISO form
func (d CalendarDate) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText decodes an ISO date
func (d *CalendarDate) UnmarshalText(text []byte) error {
	parsed, err := ParseCalendarDate(string(text))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
