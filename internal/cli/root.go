// Package cli is the cobra command tree for the quarry binary.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "quarry",
	Short: "Quarry - a backend-agnostic storage and query engine",
	Long: `Quarry runs typed relational queries over in-memory data, JSON files
and SQL back-ends, and exposes graph and vector operations over a
relational store.`,
}

// Execute adds all child commands to the root command and sets flags
// appropriately. This is called by main.main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

