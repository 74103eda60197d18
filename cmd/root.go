package cmd

import (
	"fmt"
	"os"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/cobra"
)

var logLevel string
var logJSON bool

var rootCmd = &cobra.Command{
	Use:   "chorus",
	Short: "Chorus asks several AI providers and consolidates their answers",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("Welcome to Chorus! Use --help to see available commands.")
	},
}

// newLogger builds the root logger from the persistent log flags. Logs go to
// stderr so command output stays clean.
func newLogger() hclog.Logger {
	level := hclog.LevelFromString(logLevel)
	if level == hclog.NoLevel {
		level = hclog.Warn
	}
	return hclog.New(&hclog.LoggerOptions{
		Name:       "chorus",
		Output:     os.Stderr,
		Level:      level,
		JSONFormat: logJSON,
	})
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "Emit logs as JSON")
}
