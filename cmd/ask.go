package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"chorus/collab"
	"chorus/streamers/cli"

	"github.com/spf13/cobra"
)

var configPath string
var askDebugFile string
var askVerbose bool
var askPlain bool

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Run one collaboration session",
	Long: `Send a question to every participant. The coordinator assigns each one a
role, all participants answer in parallel, and the supervisor merges the
answers. Press Ctrl-C to cancel; completed answers are kept in history.`,
	Args: cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		query := strings.Join(args, " ")
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		rt, err := openRuntime(ctx, runtimeOptions{configPath: configPath, debugFile: askDebugFile})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer rt.Close()

		handler := cli.NewSessionHandler(cli.SessionOptions{
			Out:      os.Stdout,
			Verbose:  askVerbose,
			Markdown: !askPlain,
			Spinner:  true,
		})

		session, err := rt.controller.Run(ctx, query, collab.WithHandler(handler))
		if err != nil {
			fmt.Fprintf(os.Stderr, "\nSession %s: %v\n", session.State, err)
			rt.Close()
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(askCmd)
	askCmd.Flags().StringVarP(&configPath, "config", "c", ".", "Path to config file or directory")
	askCmd.Flags().StringVarP(&askDebugFile, "debug-file", "d", "", "Write every participant call to this JSONL file")
	askCmd.Flags().BoolVarP(&askVerbose, "verbose", "v", false, "Print each participant's full answer")
	askCmd.Flags().BoolVar(&askPlain, "plain", false, "Print the result without markdown rendering")
}
