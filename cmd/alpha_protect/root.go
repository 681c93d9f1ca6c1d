package main

import (
	"os"

	"github.com/spf13/cobra"
)

var policyPath string

var rootCmd = &cobra.Command{
	Use:   "alpha_protect",
	Short: "Protective exit engine for long equity positions",
	Long: `alpha_protect keeps every open long position covered by a stop
order. It reconciles broker state on a fixed cycle, ratchets stops up
as positions move (break-even, ATR trailing), and enforces a daily risk
budget that survives restarts by rebuilding its counters from the
broker's filled orders.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&policyPath, "policy", "config/policy.yaml", "path to the policy YAML")
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(replayCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
