// rewardload is a development and load-testing stand-in for the production
// ingestion firehose: it lands history objects and their incoming markers in
// the records store, sharded the same way the real collectors shard.
package main

import (
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	configPath string
	shardBits  int
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "rewardload",
		Short: "rewardd synthetic ingestion and load tool",
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to rewardd config file (required)")
	rootCmd.PersistentFlags().IntVar(&shardBits, "shard-bits", 2, "Shard id width in bits for new history ids")
	rootCmd.MarkPersistentFlagRequired("config")

	rootCmd.AddCommand(generateCmd())
	rootCmd.AddCommand(ingestCmd())

	if err := rootCmd.Execute(); err != nil {
		log.WithError(err).Error("rewardload failed")
		os.Exit(1)
	}
}
