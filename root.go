package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version    = "dev"
	configPath string
)

// rootCmd is the base command; without a subcommand it runs the pipeline.
var rootCmd = &cobra.Command{
	Use:   "dwellcam",
	Short: "dwellcam - person dwell-time counter over a live video stream",
	Long: `dwellcam watches a video stream, tracks the people passing through it and
keeps durable per-person dwell-time statistics: how many distinct people were
seen, how long each stayed, and the running total, average and maximum.
Statistics survive restarts through an on-disk checkpoint.`,
	Version: version,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPipeline(cmd, args)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to configuration file")
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
