package ingestion

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"dev/bravebird/weightsync-go/pkg/models"
)

// CleanedHeader is the header row of the cleaned log
var CleanedHeader = []string{"Date", "Weight (kg)"}

// WriteCleaned writes entries in their given order with two-decimal weights,
// rounded the same way Reduce rounds them
func WriteCleaned(w io.Writer, entries []models.DailyEntry) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(CleanedHeader); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for _, e := range entries {
		row := []string{e.Date.String(), models.FormatCleanedWeight(e.WeightKg)}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// ParseCleanedFile reads a cleaned log from path
func ParseCleanedFile(path string) ([]models.DailyEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open cleaned log: %w", err)
	}
	defer f.Close()

	return ParseCleaned(f)
}

// ParseCleaned reads a cleaned log, keeping file order. Rows with an invalid
// date or weight are skipped.
func ParseCleaned(r io.Reader) ([]models.DailyEntry, error) {
	cr := newRowReader(r)

	var (
		entries []models.DailyEntry
		header  = true
	)
	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read cleaned log: %w", err)
		}
		if header {
			header = false
			continue
		}
		if len(record) < 2 {
			continue
		}

		date, err := models.ParseCalendarDate(record[0])
		if err != nil {
			continue
		}
		weight, ok := models.ParseWeight(record[1])
		if !ok {
			continue
		}
		entries = append(entries, models.DailyEntry{Date: date, WeightKg: weight})
	}

	slog.Info("Loaded weight entries from CSV", "count", len(entries))
	return entries, nil
}

// Clean reduces the raw log at in and writes the cleaned log to out, newest
// day first. It returns the number of days written.
func Clean(in, out string) (int, error) {
	slog.Info("Reading weight data", "path", in)
	samples, err := ParseRawFile(in)
	if err != nil {
		return 0, err
	}

	entries := Reduce(samples, Descending)

	f, err := os.Create(out)
	if err != nil {
		return 0, fmt.Errorf("failed to create cleaned log: %w", err)
	}
	bw := bufio.NewWriter(f)
	if err := WriteCleaned(bw, entries); err != nil {
		f.Close()
		return 0, err
	}
	if err := bw.Flush(); err != nil {
		f.Close()
		return 0, fmt.Errorf("failed to write cleaned log: %w", err)
	}
	if err := f.Close(); err != nil {
		return 0, fmt.Errorf("failed to close cleaned log: %w", err)
	}

	slog.Info("Cleaned weight data has been saved", "path", out, "days", len(entries))
	return len(entries), nil
}
