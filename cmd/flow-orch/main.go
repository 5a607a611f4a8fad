package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

var (
	configPath string
	rootCmd    = &cobra.Command{
		Use:   "flow-orch",
		Short: "Flow Orchestrator - Autonomous issue processing",
		Long: `Flow Orchestrator drives backlog issues through an external implementation
runner. It queues issues from markdown backlogs or GitHub labels, schedules
them under a configurable execution strategy, and handles branch and PR
creation for every completed run.`,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("flow-orch", version)
		},
	})
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
