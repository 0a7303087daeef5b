// Package cli defines the mailtrail command tree.
package cli

import (
	"github.com/spf13/cobra"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "mailtrail",
	Short: "Email-event webhook ingestion pipeline",
	Long: `mailtrail ingests email-event-tracking webhook batches, stages them
durably in object storage, loads them exactly once into PostgreSQL, and
serves a filtered query API over the loaded events.`,
	Version: "0.1.0",
}

// Execute runs the command tree.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml)")
}
