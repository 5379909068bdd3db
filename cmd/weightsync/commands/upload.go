package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.temporal.io/sdk/client"
	tlog "go.temporal.io/sdk/log"

	"dev/bravebird/weightsync-go/pkg/ingestion"
	"dev/bravebird/weightsync-go/pkg/models"
	"dev/bravebird/weightsync-go/pkg/temporal/workflows"
)

var (
	uploadFile     string
	uploadRaw      bool
	uploadTemporal bool
)

func init() {
	uploadCmd.Flags().StringVar(&uploadFile, "file", "weight_cleaned.csv", "The CSV to upload.")
	uploadCmd.Flags().BoolVar(&uploadRaw, "raw", false, "The file is a raw measurement log; reduce it to one weight per day first.")
	uploadCmd.Flags().BoolVar(&uploadTemporal, "temporal", false, "Run the upload on a worker instead of in this process.")
	rootCmd.AddCommand(uploadCmd)
}

var uploadCmd = &cobra.Command{
	Use:   "upload [--file weight_cleaned.csv] [--raw] [--temporal]",
	Short: "Uploads every day of a CSV, oldest first.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		defer reportTotal(out)

		if err := cfg.RequireCredentials(); err != nil {
			return err
		}
		entries, err := loadEntries(uploadFile, uploadRaw)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Fprintln(out, "No weight entries found in the CSV file")
			return nil
		}

		var res models.SyncResult
		if uploadTemporal {
			res, err = runOnWorker(cmd.Context(), entries)
		} else {
			res, err = runBatch(cmd.Context(), "cli", entries, true)
		}
		if err != nil {
			return err
		}

		printSummary(out, res)
		return nil
	},
}

func loadEntries(path string, raw bool) ([]models.DailyEntry, error) {
	if !raw {
		return ingestion.ParseCleanedFile(path)
	}
	samples, err := ingestion.ParseRawFile(path)
	if err != nil {
		return nil, err
	}
	return ingestion.Reduce(samples, ingestion.Ascending), nil
}

// runOnWorker starts the sync workflow and waits for its result
func runOnWorker(ctx context.Context, entries []models.DailyEntry) (models.SyncResult, error) {
	c, err := client.Dial(client.Options{
		HostPort: cfg.TemporalHost,
		Logger:   tlog.NewStructuredLogger(slog.Default()),
	})
	if err != nil {
		return models.SyncResult{}, fmt.Errorf("failed to create Temporal client: %w", err)
	}
	defer c.Close()

	runID := uuid.New().String()
	we, err := c.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:        workflows.WorkflowID(runID),
		TaskQueue: cfg.TaskQueue,
	}, workflows.SyncWeightsWorkflow, models.SyncInput{
		RunID:             runID,
		Entries:           entries,
		AuthenticateFirst: true,
		DisableDirect:     cfg.DisableDirect,
		Headless:          cfg.Headless,
		DelayMillis:       cfg.RequestDelay.Milliseconds(),
	})
	if err != nil {
		return models.SyncResult{}, fmt.Errorf("failed to start workflow: %w", err)
	}
	slog.Info("Started workflow", "workflowID", we.GetID(), "runID", we.GetRunID())

	var res models.SyncResult
	if err := we.Get(ctx, &res); err != nil {
		return models.SyncResult{}, fmt.Errorf("workflow failed: %w", err)
	}
	return res, nil
}
