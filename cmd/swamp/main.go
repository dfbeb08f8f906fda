// Command swamp runs the SWAMP data-quality pipeline: it extracts records
// from the CEDEN data mart, classifies their data quality, shapes them for
// the open data portal and uploads them. Each stage can be run on its own,
// all stages can be run with "run", and "serve" exposes the pipeline over
// HTTP with an optional cron schedule.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/swamp/internal/config"
	"github.com/JonMunkholm/swamp/internal/logging"
)

var (
	envFile  string
	logLevel string

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "swamp",
	Short: "SWAMP data-quality pipeline",
	Long: `swamp moves SWAMP monitoring data from the CEDEN data mart to the
open data portal:

  download  extract the raw records of a data type
  quality   classify each record's data quality
  process   apply drops and reshape records for the portal
  upload    replace the portal resource with the processed file
  run       all of the above for one or more data types
  serve     HTTP API and scheduled runs

Configuration comes from environment variables, optionally loaded from a
.env file.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if envFile != "" {
			if err := godotenv.Overload(envFile); err != nil {
				if !os.IsNotExist(err) || cmd.Flags().Changed("env-file") {
					return fmt.Errorf("load %s: %w", envFile, err)
				}
			}
		}

		loaded, err := config.Load()
		if err != nil {
			return err
		}
		if logLevel != "" {
			loaded.Logging.Level = logLevel
		}
		logging.Setup(loaded.Logging.Level, loaded.Logging.Format)
		cfg = loaded

		slog.Debug("configuration loaded", "config", cfg.String())
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "environment file loaded before configuration")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override LOG_LEVEL (debug, info, warn, error)")

	rootCmd.AddCommand(
		downloadCmd,
		qualityCmd,
		processCmd,
		uploadCmd,
		runCmd,
		serveCmd,
		tablesCmd,
		dataTypesCmd,
	)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
