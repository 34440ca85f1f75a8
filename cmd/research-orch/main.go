package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath string
	rootCmd    = &cobra.Command{
		Use:   "research-orch",
		Short: "Research Orchestrator - Batch equity research runner",
		Long: `Research Orchestrator drives the scraper and AI research backends over
whole symbol catalogs: one symbol at a time, with randomized pacing,
partial-failure isolation and cooperative cancellation.`,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
