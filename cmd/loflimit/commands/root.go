package commands

import (
	"github.com/spf13/cobra"
)

var (
	// Global flags
	configFile string
	env        string
	verbose    bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "loflimit",
	Short: "LOF purchase-limit timeline service",
	Long: `loflimit turns fund purchase-restriction announcements into an
authoritative timeline of non-overlapping limit intervals, and answers
"how much of this fund could I buy on date D?".

Usage:
  go run ./cmd/loflimit [command]

Examples:
  go run ./cmd/loflimit api
  go run ./cmd/loflimit sync --tickers 161130
  go run ./cmd/loflimit rebuild
  go run ./cmd/loflimit project 161130 --from 2024-01-01 --to 2024-01-31`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (default is .env)")
	rootCmd.PersistentFlags().StringVar(&env, "env", "development", "environment (development|staging|production)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
