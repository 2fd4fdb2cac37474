package main

import (
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/skukla/kukla-integration-service-sub006/pkg/logging"
)

var (
	flagConfig   string
	flagLogLevel string
	flagPretty   bool
)

var rootCmd = &cobra.Command{
	Use:   "integration-service",
	Short: "Export Adobe Commerce product catalogs to CSV in object storage",
	Long: `integration-service pulls the product catalog from an Adobe Commerce
instance, enriches it with inventory and category data, and stores the
flattened CSV in S3 or Supabase storage.

Configuration comes from environment variables, optionally loaded from a
.env file.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// A missing .env file is fine; the environment may already carry
		// everything.
		if flagConfig != "" {
			_ = godotenv.Load(flagConfig)
		} else {
			_ = godotenv.Load()
		}

		logging.Setup(logging.Config{
			Level:  logging.LogLevel(flagLogLevel),
			Pretty: flagPretty,
		})
	},
	SilenceUsage: true,
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "path to a .env file (default: ./.env when present)")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "info", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().BoolVar(&flagPretty, "pretty", false, "human-readable console logging")
}
