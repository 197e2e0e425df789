// Package cmd implements the instrumentgpt CLI using cobra.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const version = "0.1.0"
const logo = "🔬"

// rootCmd is the base command.
var rootCmd = &cobra.Command{
	Use:   "instrumentgpt",
	Short: logo + " instrumentgpt — Instrument Diagnostics Assistant",
	Long:  logo + " instrumentgpt — a conversational assistant for bench instrument log diagnostics",
}

// Execute runs the root command and exits on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.Version = version

	rootCmd.AddCommand(onboardCmd)
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(gatewayCmd)
	rootCmd.AddCommand(conversationsCmd)
	rootCmd.AddCommand(statusCmd)
}
