package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDayMonthYearRoundTrip(t *testing.T) {
	tests := []struct {
		iso  string
		want string
	}{
		{"2025-03-07", "07.03.2025"},
		{"2025-12-31", "31.12.2025"},
		{"2024-02-29", "29.02.2024"},
		{"2025-01-01", "01.01.2025"},
	}

	for _, tt := range tests {
		t.Run(tt.iso, func(t *testing.T) {
			d, err := ParseCalendarDate(tt.iso)
			require.NoError(t, err)
			assert.Equal(t, tt.want, d.DayMonthYear())

			back, err := ParseDayMonthYear(d.DayMonthYear())
			require.NoError(t, err)
			assert.Equal(t, d, back)
			assert.Equal(t, tt.iso, back.String())
		})
	}
}

func TestParseCalendarDateInvalid(t *testing.T) {
	for _, s := range []string{"", "2025-3-7", "07.03.2025", "2025-02-30", "yesterday"} {
		_, err := ParseCalendarDate(s)
		assert.Error(t, err, s)
	}
	for _, s := range []string{"", "07-03-2025", "32.01.2025", "aa.bb.cccc", "1.2"} {
		_, err := ParseDayMonthYear(s)
		assert.Error(t, err, s)
	}
}

func TestDateOfIgnoresZoneShift(t *testing.T) {
	// Late evening in a zone east of UTC is still the previous UTC day
	zone := time.FixedZone("UTC+10", 10*3600)
	local := time.Date(2025, time.March, 7, 1, 30, 0, 0, zone)

	assert.Equal(t, "07.03.2025", DateOf(local).DayMonthYear())
	assert.Equal(t, "06.03.2025", DateOf(local.UTC()).DayMonthYear())
}

func TestCalendarDateCompareAndJSON(t *testing.T) {
	a := CalendarDate{Year: 2025, Month: time.March, Day: 1}
	b := CalendarDate{Year: 2025, Month: time.March, Day: 2}

	assert.Equal(t, -1, a.Compare(b))
	assert.Equal(t, 1, b.Compare(a))
	assert.Equal(t, 0, a.Compare(a))
	assert.True(t, CalendarDate{}.IsZero())

	data, err := json.Marshal(DailyEntry{Date: a, WeightKg: 70.5})
	require.NoError(t, err)
	assert.JSONEq(t, `{"date":"2025-03-01","weight_kg":70.5}`, string(data))

	var entry DailyEntry
	require.NoError(t, json.Unmarshal(data, &entry))
	assert.Equal(t, a, entry.Date)
}

func TestRoundWeight(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{72.34, "72.3"},
		{72.36, "72.4"},
		{72.25, "72.3"},
		{70, "70.0"},
		{69.96, "70.0"},
		{0.04, "0.0"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatWeight(tt.in))
		})
	}
	assert.Equal(t, 72.3, RoundWeight(72.34))
	assert.Equal(t, 72.4, RoundWeight(72.36))
}

func TestRoundCleanedWeight(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{70.249, "70.25"},
		{70.125, "70.13"},
		{72.3, "72.30"},
		{69.995, "70.00"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatCleanedWeight(tt.in), "FormatCleanedWeight(%v)", tt.in)
	}
	// Cleaned precision first, then the one-decimal transmission form
	assert.Equal(t, "70.3", FormatWeight(RoundCleanedWeight(70.249)))
}

func TestParseWeight(t *testing.T) {
	tests := []struct {
		in     string
		want   float64
		wantOK bool
	}{
		{"70.2", 70.2, true},
		{" 71 ", 71, true},
		{"70.5 kg", 70.5, true},
		{".5", 0.5, true},
		{"7e1", 70, true},
		{"-1.5", -1.5, true},
		{"", 0, false},
		{"kg", 0, false},
		{"NaN", 0, false},
		{"Infinity", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseWeight(tt.in)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.InDelta(t, tt.want, got, 1e-9)
			}
		})
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name    string
		result  BatchResult
		aborted bool
		want    RunStatus
	}{
		{"all successful", BatchResult{Successful: 3}, false, StatusSuccess},
		{"some failed", BatchResult{Successful: 2, Failed: 1}, false, StatusPartial},
		{"all failed", BatchResult{Failed: 3}, false, StatusFailed},
		{"aborted early", BatchResult{Failed: 1, Skipped: 2}, true, StatusFailed},
		{"aborted after progress", BatchResult{Successful: 1, Failed: 1, Skipped: 1}, true, StatusPartial},
		{"empty batch", BatchResult{}, false, StatusSuccess},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StatusFor(tt.result, tt.aborted))
		})
	}
}
