// Package ingestion reads measurement logs and reduces them to one weight
// per calendar day.
package ingestion

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"dev/bravebird/weightsync-go/pkg/models"
)

// ParseRawFile reads a raw measurement log from path
func ParseRawFile(path string) ([]models.MeasurementSample, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open raw log: %w", err)
	}
	defer f.Close()

	return ParseRaw(f)
}

// ParseRaw reads a raw measurement log. The first non-comment line is a
// header. Lines starting with "//" are comments. Each line holds a quoted
// timestamp and weight; extra columns are ignored. Rows whose weight does
// not parse are skipped.
func ParseRaw(r io.Reader) ([]models.MeasurementSample, error) {
	cr := newRowReader(r)

	var (
		samples []models.MeasurementSample
		header  = true
		skipped int
	)
	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read raw log: %w", err)
		}
		if header {
			header = false
			continue
		}
		if len(record) < 2 {
			skipped++
			continue
		}

		weight, ok := models.ParseWeight(record[1])
		if !ok {
			skipped++
			continue
		}
		samples = append(samples, models.MeasurementSample{
			Timestamp: strings.TrimSpace(strings.ReplaceAll(record[0], `"`, "")),
			WeightKg:  weight,
		})
	}

	skipped += cr.bad
	slog.Info("Found data entries in the CSV file", "count", len(samples), "skipped", skipped)
	return samples, nil
}

// rowReader reads a CSV log one physical line at a time, so a stray quote
// never carries a field over into the next row. Blank lines and lines
// starting with "//" are skipped.
type rowReader struct {
	sc  *bufio.Scanner
	bad int
}

func newRowReader(r io.Reader) *rowReader {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &rowReader{sc: sc}
}

// Read returns the next record, or io.EOF at the end of input. Lines that
// are not valid CSV are counted in bad and skipped.
func (rr *rowReader) Read() ([]string, error) {
	for rr.sc.Scan() {
		line := strings.TrimSpace(rr.sc.Text())
		if line == "" || strings.HasPrefix(line, "//") {
			continue
		}
		record, err := parseLine(line)
		if err != nil {
			rr.bad++
			slog.Debug("skipping malformed line", "line", line, "error", err)
			continue
		}
		return record, nil
	}
	if err := rr.sc.Err(); err != nil {
		return nil, err
	}
	return nil, io.EOF
}

// parseLine splits one line into fields. An unterminated quote ends at the
// end of the line.
func parseLine(line string) ([]string, error) {
	cr := csv.NewReader(strings.NewReader(line))
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true
	return cr.Read()
}
