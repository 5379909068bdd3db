package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"dev/bravebird/weightsync-go/pkg/ingestion"
)

var (
	cleanIn  string
	cleanOut string
)

func init() {
	cleanCmd.Flags().StringVar(&cleanIn, "in", "weight.csv", "The raw measurement log.")
	cleanCmd.Flags().StringVar(&cleanOut, "out", "weight_cleaned.csv", "Where to write one weight per day.")
	rootCmd.AddCommand(cleanCmd)
}

var cleanCmd = &cobra.Command{
	Use:   "clean [--in weight.csv] [--out weight_cleaned.csv]",
	Short: "Reduces a raw measurement log to the last weight of each day.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		defer reportTotal(out)

		n, err := ingestion.Clean(cleanIn, cleanOut)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Success! %d weight entries processed and saved to %s\n", n, cleanOut)
		return nil
	},
}
