package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/graciadivina/tiendita/internal/config"
	"github.com/graciadivina/tiendita/internal/hub"
)

var hubCmd = &cobra.Command{
	Use:   "hub",
	Short: "Run the sync hub (foreground)",
	Long: `Start the WebSocket hub every till synchronizes through.

The hub holds the shared tree and pushes full collection snapshots to
subscribed clients on every change. Each connection gets an anonymous
session uid on accept.

Example usage:
  tiendita hub                   # Listen on the configured address
  tiendita hub --addr :9000      # Listen on a custom address

Connect a till:
  TIENDITA_HUB_URL=ws://localhost:8537/ws tiendita sync`,
	Run: func(cmd *cobra.Command, args []string) {
		addr, _ := cmd.Flags().GetString("addr")

		cfg, err := config.Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
			os.Exit(1)
		}
		if addr == "" {
			addr = cfg.HubAddr
		}

		server := hub.NewServer(&hub.Config{
			Addr:   addr,
			Logger: cfg.NewLogger("[hub] "),
		})

		if err := server.Start(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to start hub: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("Hub started on %s\n", server.GetAddr())
		fmt.Printf("WebSocket endpoint: ws://%s/ws\n", server.GetAddr())
		fmt.Printf("Health check: http://%s/health\n", server.GetAddr())
		fmt.Println("\nPress Ctrl+C to stop...")

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		<-ctx.Done()

		fmt.Println("\nShutting down hub...")
		if err := server.Stop(); err != nil {
			fmt.Fprintf(os.Stderr, "Error during shutdown: %v\n", err)
			os.Exit(1)
		}

		fmt.Println("Hub stopped")
	},
}

func init() {
	hubCmd.Flags().String("addr", "", "Listen address (default from config)")

	rootCmd.AddCommand(hubCmd)
}
