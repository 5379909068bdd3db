package commands

import (
	"errors"

	"github.com/spf13/cobra"

	"dev/bravebird/weightsync-go/pkg/database"
)

var runsLimit int

func init() {
	runsCmd.Flags().IntVar(&runsLimit, "limit", 20, "How many runs to show.")
	rootCmd.AddCommand(runsCmd)
}

var runsCmd = &cobra.Command{
	Use:   "runs [--limit 20]",
	Short: "Lists recent uploads recorded in MySQL.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.MySQLDSN == "" {
			return errors.New("MYSQL_DSN must be set to list runs")
		}
		db, err := database.New(cfg.MySQLDSN)
		if err != nil {
			return err
		}
		defer db.Close()

		runs, err := db.ListSyncRuns(cmd.Context(), runsLimit)
		if err != nil {
			return err
		}
		printRuns(cmd.OutOrStdout(), runs)
		return nil
	},
}
