package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chorus/server"

	"github.com/spf13/cobra"
)

var serveListen string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve participants and collaboration sessions over HTTP",
	Long: `Start an HTTP server exposing one chat endpoint per participant, the
collaboration endpoint, the usage ledger, and session history. Every request
must carry the access password in the X-Access-Password header.

Requires a "server" block in the config with access_password.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		rt, err := openRuntime(ctx, runtimeOptions{configPath: configPath})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer rt.Close()

		if rt.cfg.Server == nil {
			fmt.Fprintln(os.Stderr, "Error: no server block in config. Add a server block with access_password.")
			rt.Close()
			os.Exit(1)
		}

		srv, err := server.New(server.Options{
			Controller:     rt.controller,
			Stores:         rt.stores,
			AccessPassword: rt.cfg.Server.AccessPassword,
			RequestTimeout: time.Duration(rt.cfg.Server.RequestTimeout) * time.Second,
			Logger:         rt.logger,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			rt.Close()
			os.Exit(1)
		}

		addr := rt.cfg.Server.Listen
		if serveListen != "" {
			addr = serveListen
		}
		fmt.Printf("Serving %d participant(s) on %s\n", len(rt.roster.Participants), addr)

		if err := srv.ListenAndServe(ctx, addr); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			rt.Close()
			os.Exit(1)
		}
		rt.saveLedger(context.Background())
		fmt.Println("\nShutting down...")
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVarP(&configPath, "config", "c", ".", "Path to config file or directory")
	serveCmd.Flags().StringVarP(&serveListen, "listen", "l", "", "Listen address (overrides server.listen)")
}
