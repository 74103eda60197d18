package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"chorus/collab"
	"chorus/config"
	"chorus/ledger"
	"chorus/store"

	"github.com/spf13/cobra"
)

var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Show per-participant usage and balances",
	Long:  `Print the persisted usage ledger. Participants that have never been called show their starting balance.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()

		cfg, err := config.LoadAndValidate(configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
			os.Exit(1)
		}

		stores, err := store.NewBundle(ctx, cfg.Storage)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening store: %v\n", err)
			os.Exit(1)
		}
		defer stores.Close()

		records, err := stores.Ledger.LoadLedger(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading ledger: %v\n", err)
			stores.Close()
			os.Exit(1)
		}

		// No providers are needed to read the ledger, so accounts come straight from config
		accounts := make([]ledger.Account, 0, len(cfg.Participants))
		for _, p := range cfg.Participants {
			in, out := p.ResolvePricing(cfg.Models).PerToken()
			accounts = append(accounts, ledger.Account{
				ParticipantID: p.Name,
				InputRate:     in,
				OutputRate:    out,
				Balance:       p.StartingBalance(),
			})
		}
		l := ledger.New(accounts...)
		l.Restore(collab.LedgerEntries(records))

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "PARTICIPANT\tCALLS\tFAILURES\tINPUT\tOUTPUT\tCOST\tBALANCE")
		for _, e := range l.Snapshot() {
			fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\t$%.6f\t$%.4f\n",
				e.ParticipantID, e.Calls, e.Failures, e.InputTokens, e.OutputTokens, e.Cost, e.Balance)
		}
		w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(ledgerCmd)
	ledgerCmd.Flags().StringVarP(&configPath, "config", "c", ".", "Path to config file or directory")
}
