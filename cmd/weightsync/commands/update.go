package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"dev/bravebird/weightsync-go/pkg/models"
)

func init() {
	rootCmd.AddCommand(updateCmd)
}

var updateCmd = &cobra.Command{
	Use:   "update <weight> [date]",
	Short: "Updates the weight of one day. The date (YYYY-MM-DD or DD.MM.YYYY) defaults to today.",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		defer reportTotal(out)

		if err := cfg.RequireCredentials(); err != nil {
			return err
		}
		entry, err := parseUpdateArgs(args, models.Today())
		if err != nil {
			return err
		}

		res, err := runBatch(cmd.Context(), "cli", []models.DailyEntry{entry}, false)
		if err != nil {
			return err
		}

		printSummary(out, res)
		if res.Result.Successful == 1 {
			fmt.Fprintf(out, "Weight successfully updated to %skg for %s\n", models.FormatWeight(entry.WeightKg), entry.Date)
		} else {
			fmt.Fprintln(out, "Failed to update weight.")
		}
		return nil
	},
}

func parseUpdateArgs(args []string, today models.CalendarDate) (models.DailyEntry, error) {
	w, ok := models.ParseWeight(args[0])
	if !ok || w <= 0 {
		return models.DailyEntry{}, fmt.Errorf("invalid weight %q", args[0])
	}

	date := today
	if len(args) > 1 {
		d, err := models.ParseCalendarDate(args[1])
		if err != nil {
			d, err = models.ParseDayMonthYear(args[1])
		}
		if err != nil {
			return models.DailyEntry{}, fmt.Errorf("invalid date %q: use YYYY-MM-DD or DD.MM.YYYY", args[1])
		}
		date = d
	}
	return models.DailyEntry{Date: date, WeightKg: w}, nil
}
