// Command tiendita is the point-of-sale toolbox: a local SQLite record
// store, a sync engine keeping it converged with the shared tree, and
// the hub that tree lives on.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/graciadivina/tiendita/internal/config"
	"github.com/graciadivina/tiendita/internal/remote"
	"github.com/graciadivina/tiendita/internal/store"
	"github.com/graciadivina/tiendita/internal/sync"
)

var version = "dev"

var rootCmd = &cobra.Command{
	Use:   "tiendita",
	Short: "Offline-first point of sale with cloud sync",
	Long: `Tiendita keeps the shop's products, sales, layaways and owners in a
local SQLite database that works with or without a connection, and
converges it with every other till through the sync hub.

The local database is always the durable copy. Sync failures never
block a sale.`,
	Version: version,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// openStore loads configuration and opens the local database with its
// schema in place. Callers own the returned store.
func openStore(ctx context.Context) (*store.Store, *config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return nil, nil, err
	}
	if err := st.InitSchema(ctx); err != nil {
		st.Close()
		return nil, nil, err
	}
	return st, cfg, nil
}

// newEngine wires a sync engine to the configured hub. The client
// serves as both the remote store and the identity provider.
func newEngine(cfg *config.Config, st *store.Store, opts *sync.Config) (*sync.Engine, *remote.Client) {
	client := remote.NewClient(cfg.HubURL, cfg.Root, cfg.NewLogger("[remote] "))
	if opts == nil {
		opts = &sync.Config{}
	}
	opts.SweepInterval = cfg.SweepInterval
	opts.NotifyDebounce = cfg.NotifyDebounce
	if opts.Logger == nil {
		opts.Logger = cfg.NewLogger("[sync] ")
	}
	return sync.New(st, client, client, opts), client
}
