package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "scrip",
	Short: "Scrip — credit-metered AI agent service",
	Long:  "Scrip runs LLM-backed agents behind a credit ledger: every invocation reserves a fixed credit cost up front, streams or buffers the agent output, and refunds the reservation if the execution fails.",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: configs/scrip.yaml)")
}

func main() {
	// Local development keeps provider keys in .env; absence is not an error.
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
