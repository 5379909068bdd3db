package ingestion

import (
	"log/slog"
	"sort"
	"strings"

	"dev/bravebird/weightsync-go/pkg/models"
)

// Order is the date order of reduced entries
type Order int

const (
	// Descending puts the newest day first, as the cleaned log does
	Descending Order = iota
	// Ascending puts the oldest day first, for chronological upload
	Ascending
)

// Reduce keeps, for each calendar day, the sample with the greatest full
// timestamp string. Equal timestamps resolve to the later sample. Samples
// whose date portion is not a valid date are dropped. Weights are rounded to
// two decimals.
func Reduce(samples []models.MeasurementSample, order Order) []models.DailyEntry {
	type latest struct {
		timestamp string
		entry     models.DailyEntry
	}
	days := make(map[models.CalendarDate]latest)

	for _, s := range samples {
		date, err := models.ParseCalendarDate(datePortion(s.Timestamp))
		if err != nil {
			slog.Debug("skipping sample with invalid date", "timestamp", s.Timestamp)
			continue
		}
		if cur, ok := days[date]; ok && s.Timestamp < cur.timestamp {
			continue
		}
		days[date] = latest{
			timestamp: s.Timestamp,
			entry:     models.DailyEntry{Date: date, WeightKg: models.RoundCleanedWeight(s.WeightKg)},
		}
	}

	entries := make([]models.DailyEntry, 0, len(days))
	for _, l := range days {
		entries = append(entries, l.entry)
	}
	SortEntries(entries, order)
	return entries
}

// SortEntries orders entries by date in place
func SortEntries(entries []models.DailyEntry, order Order) {
	sort.Slice(entries, func(i, j int) bool {
		c := entries[i].Date.Compare(entries[j].Date)
		if order == Ascending {
			return c < 0
		}
		return c > 0
	})
}

// datePortion cuts a timestamp at the first space or 'T'
func datePortion(ts string) string {
	if i := strings.IndexAny(ts, " T"); i >= 0 {
		return ts[:i]
	}
	return ts
}
