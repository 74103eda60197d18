package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Version is set at build time via ldflags
var Version = "dev"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(Version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.Version = Version
	rootCmd.SetVersionTemplate("{{.Version}}\n")
	rootCmd.Long = fmt.Sprintf(`Chorus %s

HCL-configured orchestrator that sends one question to several AI
providers, gives each a role, and merges their answers into one.

Declare models, participants, and collaboration settings in HCL files,
then ask questions from the terminal or serve them over HTTP.

Get started:
  chorus verify <path>        Validate your configuration
  chorus ask "<question>"     Run one collaboration session
  chorus chat <participant>   Chat with a single participant
  chorus serve                Expose participants and sessions over HTTP
  chorus ledger               Show per-participant usage and balances`, Version)
}
