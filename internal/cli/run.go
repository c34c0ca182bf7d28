package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var runTicker string

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the pipeline once in the foreground",
	Long: `Run the pipeline once and print the finished job as JSON.

Examples:
  protrdx run
  protrdx run --ticker AAPL`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newApp()
		if err != nil {
			return err
		}
		job, err := app.RunOnce(cmd.Context(), strings.ToUpper(strings.TrimSpace(runTicker)))
		if job != nil {
			out, merr := json.MarshalIndent(job, "", "  ")
			if merr != nil {
				return fmt.Errorf("encode job: %w", merr)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
		}
		return err
	},
}

func init() {
	runCmd.Flags().StringVarP(&runTicker, "ticker", "t", "", "run a single active ticker instead of the watchlist")
}
