package cli

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/mailtrail-systems/mailtrail/internal/seeder"
)

var (
	seedURL      string
	seedBatches  int
	seedSize     int
	seedInterval time.Duration
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Post synthetic webhook batches to a running ingest endpoint",
	RunE: func(cmd *cobra.Command, args []string) error {
		runner := seeder.NewRunner(seeder.Config{
			URL:       seedURL,
			Batches:   seedBatches,
			BatchSize: seedSize,
			Interval:  seedInterval,
		})
		return runner.Run()
	},
}

func init() {
	seedCmd.Flags().StringVar(&seedURL, "url", "http://localhost:8080/api/v1/ingest/batch", "store-batch endpoint URL")
	seedCmd.Flags().IntVar(&seedBatches, "batches", 10, "number of batches to send")
	seedCmd.Flags().IntVar(&seedSize, "size", 100, "events per batch")
	seedCmd.Flags().DurationVar(&seedInterval, "interval", 0, "pause between batches")
	rootCmd.AddCommand(seedCmd)
}
