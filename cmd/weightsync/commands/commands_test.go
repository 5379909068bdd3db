package commands

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dev/bravebird/weightsync-go/pkg/ingestion"
	"dev/bravebird/weightsync-go/pkg/models"
)

func TestParseUpdateArgs(t *testing.T) {
	today := models.CalendarDate{Year: 2025, Month: time.March, Day: 9}

	tests := []struct {
		name     string
		args     []string
		wantDate string
		wantKg   float64
		wantErr  bool
	}{
		{name: "weight only", args: []string{"72.3"}, wantDate: "2025-03-09", wantKg: 72.3},
		{name: "iso date", args: []string{"72.3", "2025-03-07"}, wantDate: "2025-03-07", wantKg: 72.3},
		{name: "day month year", args: []string{"72.3", "07.03.2025"}, wantDate: "2025-03-07", wantKg: 72.3},
		{name: "unit suffix", args: []string{"72.3kg"}, wantDate: "2025-03-09", wantKg: 72.3},
		{name: "not a number", args: []string{"heavy"}, wantErr: true},
		{name: "zero", args: []string{"0"}, wantErr: true},
		{name: "bad date", args: []string{"72.3", "March 7"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entry, err := parseUpdateArgs(tt.args, today)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantDate, entry.Date.String())
			assert.Equal(t, tt.wantKg, entry.WeightKg)
		})
	}
}

func TestPrintSummary(t *testing.T) {
	var buf bytes.Buffer
	printSummary(&buf, models.SyncResult{
		Status: models.StatusPartial,
		Result: models.BatchResult{Successful: 1, Failed: 1, Skipped: 1},
		EntryResults: []models.EntryResult{
			{Date: "2025-03-01", WeightKg: 72.34, Outcome: models.OutcomeSuccess, Attempts: 1},
			{Date: "2025-03-02", WeightKg: 71.9, Outcome: models.OutcomeFailure, Attempts: 2, ErrorMessage: "value not verified"},
		},
	})

	out := buf.String()
	assert.Contains(t, out, "2025-03-01")
	assert.Contains(t, out, "72.3")
	assert.Contains(t, out, "value not verified")
	assert.Contains(t, out, "Successful updates: 1")
	assert.Contains(t, out, "Failed updates: 1")
	assert.Contains(t, out, "Skipped updates: 1")
}

func TestCleanCommand(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "weight.csv")
	out := filepath.Join(dir, "weight_cleaned.csv")
	raw := "Date,Weight\n" +
		`"2025-03-01 07:00:00","72.9"` + "\n" +
		`"2025-03-02 07:00:00","72.1"` + "\n" +
		`"2025-03-02 21:00:00","72.6"` + "\n"
	require.NoError(t, os.WriteFile(in, []byte(raw), 0o644))

	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetArgs([]string{"clean", "--in", in, "--out", out, "--env-file", filepath.Join(dir, "missing.env")})
	require.NoError(t, rootCmd.ExecuteContext(context.Background()))

	assert.Contains(t, buf.String(), "2 weight entries processed")
	assert.Contains(t, buf.String(), "Total execution time")

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "Date,Weight (kg)\n2025-03-02,72.60\n2025-03-01,72.90\n", string(data))
}

func TestLoadEntries(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "weight.csv")
	raw := "Date,Weight\n" +
		`"2025-03-02 07:00:00","72.1"` + "\n" +
		`"2025-03-01 07:00:00","72.9"` + "\n"
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o644))

	entries, err := loadEntries(path, true)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "2025-03-01", entries[0].Date.String())
}

func TestRawAndCleanedUploadsSendSameWeights(t *testing.T) {
	dir := t.TempDir()
	raw := filepath.Join(dir, "weight.csv")
	cleaned := filepath.Join(dir, "weight_cleaned.csv")
	data := "Date,Weight\n" +
		`"2025-03-01 07:00:00","70.249"` + "\n" +
		`"2025-03-02 07:00:00","68.349"` + "\n" +
		`"2025-03-03 07:00:00","71.05"` + "\n" +
		`"2025-03-04 07:00:00","69.951"` + "\n"
	require.NoError(t, os.WriteFile(raw, []byte(data), 0o644))

	_, err := ingestion.Clean(raw, cleaned)
	require.NoError(t, err)

	sent := func(path string, isRaw bool) map[string]string {
		entries, err := loadEntries(path, isRaw)
		require.NoError(t, err)
		out := make(map[string]string, len(entries))
		for _, e := range entries {
			out[e.Date.String()] = models.FormatWeight(e.WeightKg)
		}
		return out
	}

	direct := sent(raw, true)
	viaClean := sent(cleaned, false)
	assert.Equal(t, viaClean, direct)
	assert.Equal(t, "70.3", direct["2025-03-01"])
	assert.Equal(t, "70.0", direct["2025-03-04"])
}
