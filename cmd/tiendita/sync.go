package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/graciadivina/tiendita/internal/sync"
	"github.com/graciadivina/tiendita/internal/ui"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run the sync engine (foreground)",
	Long: `Connect to the hub and keep the local database converged with the
shared tree until interrupted.

The engine:
  1. Signs in anonymously against the hub
  2. Subscribes to every collection for live inbound changes
  3. Re-uploads all local records on a fixed interval
  4. Performs a full upload sweep whenever the connection comes back`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		st, cfg, err := openStore(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening store: %v\n", err)
			os.Exit(1)
		}
		defer st.Close()

		engine, client := newEngine(cfg, st, &sync.Config{
			OnStatusChanged: func(s sync.Status) {
				marker := ui.RenderWarn("○")
				if s.Connected {
					marker = ui.RenderPass("●")
				}
				fmt.Printf("%s %s\n", marker, s.Message)
			},
			OnCollectionChanged: func(collection string) {
				fmt.Printf("%s %s updated\n", ui.RenderAccent("↓"), collection)
			},
		})
		defer client.Close()

		fmt.Printf("%s Starting sync engine...\n", ui.RenderAccent("🔄"))
		fmt.Printf("   Database: %s\n", cfg.DBPath)
		fmt.Printf("   Hub: %s\n", cfg.HubURL)
		fmt.Printf("\nPress Ctrl+C to stop\n\n")

		if err := engine.Start(ctx); err != nil {
			// Offline start is survivable; the engine reconnects.
			fmt.Printf("%s %v (will keep retrying)\n", ui.RenderWarn("⚠"), err)
		}

		<-ctx.Done()

		fmt.Println("\nShutting down...")
		engine.Stop()
	},
}

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Push every local record to the hub once",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()

		st, cfg, err := openStore(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening store: %v\n", err)
			os.Exit(1)
		}
		defer st.Close()

		engine, client := newEngine(cfg, st, nil)
		defer client.Close()

		if err := engine.Start(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Error connecting to hub: %v\n", err)
			os.Exit(1)
		}
		defer engine.Stop()

		if err := engine.SweepAll(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Error during sweep: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("%s Sweep complete\n", ui.RenderPass("✓"))
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show local and remote record counts",
	Run: func(cmd *cobra.Command, args []string) {
		asJSON, _ := cmd.Flags().GetBool("json")
		ctx := context.Background()

		st, cfg, err := openStore(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening store: %v\n", err)
			os.Exit(1)
		}
		defer st.Close()

		engine, client := newEngine(cfg, st, nil)
		defer client.Close()

		// Best effort: diagnostics still report local counts offline.
		if err := engine.Start(ctx); err == nil {
			defer engine.Stop()
		}

		diag, err := engine.Diagnose(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error collecting diagnostics: %v\n", err)
			os.Exit(1)
		}

		if asJSON {
			data, _ := json.MarshalIndent(diag, "", "  ")
			fmt.Println(string(data))
			return
		}

		fmt.Printf("\n%s Sync Status\n\n", ui.RenderAccent("📊"))
		fmt.Printf("State: %s\n", diag.State)
		if diag.UID != "" {
			fmt.Printf("Session: %s\n", diag.UID)
		}
		fmt.Printf("Connected: %v\n", diag.Connected)
		fmt.Printf("Pending writes: %d\n", diag.PendingWrites)
		fmt.Printf("Database: %s\n\n", cfg.DBPath)
		for collection, n := range diag.LocalCounts {
			line := fmt.Sprintf("%s: %d local", collection, n)
			if diag.RemoteCounts != nil {
				line += fmt.Sprintf(", %d remote", diag.RemoteCounts[collection])
			}
			fmt.Println(line)
		}
		fmt.Println()
	},
}

func init() {
	statusCmd.Flags().Bool("json", false, "Output as JSON")

	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(sweepCmd)
	rootCmd.AddCommand(statusCmd)
}
