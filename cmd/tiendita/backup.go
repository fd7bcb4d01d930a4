package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/graciadivina/tiendita/internal/backup"
	"github.com/graciadivina/tiendita/internal/ui"
)

var exportCmd = &cobra.Command{
	Use:   "export <file>",
	Short: "Export the local database to JSONL",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()

		st, _, err := openStore(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening store: %v\n", err)
			os.Exit(1)
		}
		defer st.Close()

		result, err := backup.Export(ctx, st, args[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error during export: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("%s Exported %d records to %s\n", ui.RenderPass("✓"), result.Total(), args[0])
		fmt.Printf("   Products: %d\n", result.Products)
		fmt.Printf("   Sales: %d\n", result.Sales)
		fmt.Printf("   Layaways: %d\n", result.Layaways)
		fmt.Printf("   Owners: %d\n", result.Owners)
		fmt.Printf("   Settings: %d\n", result.Settings)
	},
}

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import a JSONL export into the local database",
	Long: `Import records from a JSONL export.

Records are inserted as new rows with their remote keys preserved, so
the next sweep republishes them under their original identities. Bad
lines are reported and skipped.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()

		st, _, err := openStore(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening store: %v\n", err)
			os.Exit(1)
		}
		defer st.Close()

		result, err := backup.Import(ctx, st, args[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error during import: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("%s Imported %d records from %s\n", ui.RenderPass("✓"), result.Total(), args[0])
		if len(result.Errors) > 0 {
			fmt.Printf("%s %d lines skipped:\n", ui.RenderWarn("⚠"), len(result.Errors))
			for _, e := range result.Errors {
				fmt.Printf("   %s\n", e)
			}
		}
	},
}

func init() {
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(importCmd)
}
