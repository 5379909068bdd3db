package main

import (
	"context"
	"log"
	"log/slog"
	"os"

	"go.temporal.io/sdk/client"
	tlog "go.temporal.io/sdk/log"
	"go.temporal.io/sdk/worker"

	"dev/bravebird/weightsync-go/pkg/config"
	"dev/bravebird/weightsync-go/pkg/database"
	"dev/bravebird/weightsync-go/pkg/logutil"
	"dev/bravebird/weightsync-go/pkg/temporal/activities"
	"dev/bravebird/weightsync-go/pkg/temporal/workflows"
)

func main() {
	logutil.Init(os.Getenv("VERBOSE") == "true")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := cfg.RequireCredentials(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	// Create Temporal client
	c, err := client.Dial(client.Options{
		HostPort: cfg.TemporalHost,
		Logger:   tlog.NewStructuredLogger(slog.Default()),
	})
	if err != nil {
		log.Fatalf("Failed to create Temporal client: %v", err)
	}
	defer c.Close()

	// Run history is optional
	var store activities.RunStore
	if cfg.MySQLDSN != "" {
		db, err := database.New(cfg.MySQLDSN)
		if err != nil {
			log.Printf("Warning: Failed to connect to database: %v", err)
		} else if err := db.Migrate(context.Background()); err != nil {
			log.Printf("Warning: Failed to migrate database: %v", err)
			db.Close()
		} else {
			defer db.Close()
			store = db
		}
	}

	// Create activities
	acts := activities.NewActivities(cfg, store)

	// One browser per session; sessions live in this process
	w := worker.New(c, cfg.TaskQueue, worker.Options{
		MaxConcurrentActivityExecutionSize:     5,
		MaxConcurrentWorkflowTaskExecutionSize: 10,
	})

	// Register workflows
	w.RegisterWorkflow(workflows.SyncWeightsWorkflow)

	// Register activities
	w.RegisterActivity(acts.InitializeSessionActivity)
	w.RegisterActivity(acts.AuthenticateActivity)
	w.RegisterActivity(acts.UpdateWeightActivity)
	w.RegisterActivity(acts.RecordEntryActivity)
	w.RegisterActivity(acts.FinishRunActivity)
	w.RegisterActivity(acts.CloseSessionActivity)

	log.Printf("Starting Temporal worker on task queue: %s", cfg.TaskQueue)
	log.Printf("Temporal host: %s", cfg.TemporalHost)
	log.Printf("Direct submit disabled: %v", cfg.DisableDirect)

	// Start worker
	err = w.Run(worker.InterruptCh())
	if err != nil {
		log.Fatalf("Worker failed: %v", err)
	}
}
