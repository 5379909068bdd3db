package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"dev/bravebird/weightsync-go/pkg/config"
	"dev/bravebird/weightsync-go/pkg/logutil"
)

var (
	verbose bool
	envFile string

	cfg     *config.Config
	started time.Time
)

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enables debug logging.")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "The env file to load, if it exists.")
}

var rootCmd = &cobra.Command{
	Use:          "weightsync",
	Short:        "weightsync uploads body-weight measurements to Polar Flow.",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		started = time.Now()
		logutil.Init(verbose)

		c, err := config.Load(envFile)
		if err != nil {
			return err
		}
		cfg = c
		return nil
	},
}

func ExecuteContext(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func reportTotal(w io.Writer) {
	total := time.Since(started)
	fmt.Fprintf(w, "\nTotal execution time: %dms (%.2f seconds)\n", total.Milliseconds(), total.Seconds())
}
