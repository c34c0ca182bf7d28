// Package cli provides the protrdx command-line interface.
package cli

import (
	"fmt"

	"ProTrdx/internal/di"
	"ProTrdx/pkg/config"
	"ProTrdx/pkg/server"

	"github.com/spf13/cobra"
)

// Version is set at build time.
var Version = "0.1.0"

var (
	configPath string
	cfg        *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "protrdx",
	Short: "Daily trade recommendation pipeline",
	Long: `protrdx collects market history and fresh news for a watchlist, computes
indicators and a backtest per ticker, asks a language model for a trade plan
and gates every plan with local risk rules before storing it.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "help" || cmd.Name() == "version" {
			return nil
		}
		var err error
		cfg, err = config.LoadWithEnv(configPath)
		if err != nil {
			return fmt.Errorf("config load failed: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config/config.yaml", "config file path")
	rootCmd.AddCommand(serveCmd, runCmd, seedCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func newApp() (*server.App, error) {
	app, err := di.InitializeApp(cfg)
	if err != nil {
		return nil, fmt.Errorf("app initialization failed: %w", err)
	}
	return app, nil
}
