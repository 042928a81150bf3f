// Package cmd provides the command-line interface of the cache model.
package cmd

import (
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/tebeka/atexit"
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use: "cachemodel",
	Short: "Cachemodel simulates set-associative caches with configurable " +
		"replacement and write policies.",
	Long: `Cachemodel simulates set-associative caches with configurable ` +
		`replacement and write policies. It can decode addresses for ` +
		`teaching, replay memory traces, record per-access results into ` +
		`SQLite, and serve live statistics over HTTP.`,
}

// Execute adds all child commands to the root command and sets flags
// appropriately.
func Execute() {
	// A .env file can preset the environment, e.g. CACHEMODEL_DB.
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		atexit.Exit(1)
	}

	atexit.Exit(0)
}
