package cmd

import (
	"fmt"
	"os"

	"chorus/config"

	"github.com/spf13/cobra"
)

var verifyCmd = &cobra.Command{
	Use:   "verify [path]",
	Short: "Verify that the configuration is valid",
	Long:  `Verify parses and validates the HCL configuration files. Path can be a file or directory.`,
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.LoadAndValidate(args[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		var warnings []string
		for _, v := range cfg.Variables {
			resolved, _ := config.ResolveVariableValue(&v)
			if resolved == "" && v.Default == "" {
				warnings = append(warnings, fmt.Sprintf("variable '%s' has no default and no value set", v.Name))
			}
		}

		fmt.Printf("Configuration is valid!\n")
		fmt.Printf("Found %d model(s)\n", len(cfg.Models))
		for _, m := range cfg.Models {
			fmt.Printf("  - %s (provider: %s, models: %v)\n", m.Name, m.Provider, m.AllowedModels)
		}
		fmt.Printf("Found %d variable(s)\n", len(cfg.Variables))
		for _, v := range cfg.Variables {
			resolved, _ := config.ResolveVariableValue(&v)
			if v.Secret {
				if resolved != "" {
					fmt.Printf("  - %s (secret, set)\n", v.Name)
				} else {
					fmt.Printf("  - %s (secret, not set)\n", v.Name)
				}
			} else {
				fmt.Printf("  - %s = %q\n", v.Name, resolved)
			}
		}

		fmt.Printf("Found %d participant(s)\n", len(cfg.Participants))
		for _, p := range cfg.Participants {
			target := "model: " + p.Model
			if p.IsGateway() {
				target = "endpoint: " + p.Endpoint
			}
			pricing := p.ResolvePricing(cfg.Models)
			var caps []string
			if p.Coordinator {
				caps = append(caps, "coordinator")
			}
			if p.Supervisor {
				caps = append(caps, "supervisor")
			}
			if p.SupportsMemory {
				caps = append(caps, "memory")
			}
			fmt.Printf("  - %s (%s, balance: $%.2f, $%.2f/$%.2f per 1M tokens)", p.Label(), target,
				p.StartingBalance(), pricing.InputPer1M, pricing.OutputPer1M)
			if len(caps) > 0 {
				fmt.Printf(" %v", caps)
			}
			fmt.Println()
			if p.Credential(cfg.Models) == "" {
				warnings = append(warnings, fmt.Sprintf("participant '%s' has no credential and will fail every call", p.Name))
			}
			if !p.IsGateway() && pricing == (config.ModelPricing{}) {
				warnings = append(warnings, fmt.Sprintf("participant '%s' has no known pricing; usage is free", p.Name))
			}
		}

		c := cfg.Collaboration
		fmt.Printf("Collaboration: coordinator %s, supervisor %s, min query %d chars, participant timeout %ds\n",
			c.Coordinator, c.Supervisor, c.MinQueryLength, c.ParticipantTimeout)
		if cfg.Storage != nil {
			fmt.Printf("Storage: %s\n", cfg.Storage.Backend)
		} else {
			fmt.Printf("Storage: memory (nothing persists between runs)\n")
		}
		if cfg.Server != nil {
			fmt.Printf("Server: %s\n", cfg.Server.Listen)
		}

		if len(warnings) > 0 {
			fmt.Printf("\nWarnings:\n")
			for _, w := range warnings {
				fmt.Printf("  - %s\n", w)
			}
		}
	},
}

func init() {
	rootCmd.AddCommand(verifyCmd)
}
