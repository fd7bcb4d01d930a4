package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/graciadivina/tiendita/internal/schema"
	"github.com/graciadivina/tiendita/internal/store"
	"github.com/graciadivina/tiendita/internal/sync"
	"github.com/graciadivina/tiendita/internal/ui"
)

// withEngine opens the store, connects an engine to the hub and runs
// fn. A failed connection is downgraded to a warning: every command
// here writes locally first and the next sweep heals the remote side.
func withEngine(fn func(ctx context.Context, st *store.Store, engine *sync.Engine) error) {
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
		fmt.Printf("%s Working offline: %v\n", ui.RenderWarn("⚠"), err)
	} else {
		defer engine.Stop()
	}

	if err := fn(ctx, st, engine); err != nil {
		if errors.Is(err, sync.ErrSyncUnavailable) {
			fmt.Printf("%s Saved locally; will sync when the hub is reachable\n", ui.RenderWarn("⚠"))
			return
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// parseItems converts repeated "name:price:qty" flags into sale items.
func parseItems(raw []string) ([]schema.SaleItem, error) {
	items := make([]schema.SaleItem, 0, len(raw))
	for _, r := range raw {
		parts := strings.Split(r, ":")
		if len(parts) != 3 {
			return nil, fmt.Errorf("invalid item %q (want name:price:qty)", r)
		}
		price, err := strconv.ParseFloat(parts[1], 64)
		if err != nil {
			return nil, fmt.Errorf("invalid price in item %q: %w", r, err)
		}
		qty, err := strconv.Atoi(parts[2])
		if err != nil {
			return nil, fmt.Errorf("invalid quantity in item %q: %w", r, err)
		}
		items = append(items, schema.SaleItem{Name: parts[0], Price: price, Quantity: qty})
	}
	return items, nil
}

var productCmd = &cobra.Command{
	Use:   "product",
	Short: "Manage the product catalog",
}

var productAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Add a product",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		price, _ := cmd.Flags().GetFloat64("price")
		stock, _ := cmd.Flags().GetInt("stock")
		sku, _ := cmd.Flags().GetString("sku")
		category, _ := cmd.Flags().GetString("category")

		withEngine(func(ctx context.Context, st *store.Store, engine *sync.Engine) error {
			p := &schema.Product{Name: args[0], Price: price, Stock: stock, SKU: sku, Category: category}
			id, err := st.AddProduct(ctx, p)
			if err != nil {
				return err
			}
			fmt.Printf("%s Added product %d: %s ($%.2f)\n", ui.RenderPass("✓"), id, p.Name, p.Price)
			return engine.UploadProduct(ctx, p)
		})
	},
}

var productListCmd = &cobra.Command{
	Use:   "list",
	Short: "List products",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		st, _, err := openStore(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening store: %v\n", err)
			os.Exit(1)
		}
		defer st.Close()

		products, err := st.GetAllProducts(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		for _, p := range products {
			synced := ui.RenderWarn("○")
			if p.RemoteKey != "" {
				synced = ui.RenderPass("●")
			}
			fmt.Printf("%s %4d  %-30s $%8.2f  stock %d\n", synced, p.LocalID, p.Name, p.Price, p.Stock)
		}
	},
}

var productDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a product",
	Long: `Delete a product locally and remove its remote counterpart.

Every other till follows the removal through its live subscription.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		withEngine(func(ctx context.Context, st *store.Store, engine *sync.Engine) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid product id %q", args[0])
			}
			p, err := st.GetProduct(ctx, id)
			if err != nil {
				return fmt.Errorf("product %d not found: %w", id, err)
			}
			if err := st.DeleteProduct(ctx, id); err != nil {
				return err
			}
			fmt.Printf("%s Deleted product %d: %s\n", ui.RenderPass("✓"), id, p.Name)
			return engine.RemoveRemote(ctx, schema.CollectionProducts, id, p.RemoteKey)
		})
	},
}

var saleCmd = &cobra.Command{
	Use:   "sale",
	Short: "Record and list sales",
}

var saleAddCmd = &cobra.Command{
	Use:   "add <ticket>",
	Short: "Record a completed sale",
	Long: `Record a completed sale under its ticket number.

The sale is written locally first and then published create-if-absent:
a ticket already on the hub is never overwritten.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		total, _ := cmd.Flags().GetFloat64("total")
		method, _ := cmd.Flags().GetString("method")
		rawItems, _ := cmd.Flags().GetStringArray("item")

		withEngine(func(ctx context.Context, st *store.Store, engine *sync.Engine) error {
			items, err := parseItems(rawItems)
			if err != nil {
				return err
			}
			s := &schema.Sale{TicketNumber: args[0], Items: items, Total: total, PaymentMethod: method}
			id, err := engine.CreateSale(ctx, s)
			if err != nil {
				return err
			}
			fmt.Printf("%s Recorded sale %d (ticket %s, $%.2f)\n", ui.RenderPass("✓"), id, s.TicketNumber, s.Total)
			return nil
		})
	},
}

var saleListCmd = &cobra.Command{
	Use:   "list",
	Short: "List sales",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		st, _, err := openStore(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening store: %v\n", err)
			os.Exit(1)
		}
		defer st.Close()

		sales, err := st.GetAllSales(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		for _, s := range sales {
			fmt.Printf("%4d  %-12s $%8.2f  %-8s %s\n",
				s.LocalID, s.TicketNumber, s.Total, s.PaymentMethod, s.Date.Format("2006-01-02 15:04"))
		}
	},
}

var layawayCmd = &cobra.Command{
	Use:   "layaway",
	Short: "Manage layaways (apartados)",
}

var layawayAddCmd = &cobra.Command{
	Use:   "add <customer>",
	Short: "Open a layaway",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		phone, _ := cmd.Flags().GetString("phone")
		total, _ := cmd.Flags().GetFloat64("total")
		rawItems, _ := cmd.Flags().GetStringArray("item")

		withEngine(func(ctx context.Context, st *store.Store, engine *sync.Engine) error {
			items, err := parseItems(rawItems)
			if err != nil {
				return err
			}
			l := &schema.Layaway{CustomerName: args[0], CustomerPhone: phone, Items: items, Total: total}
			id, err := st.AddLayaway(ctx, l)
			if err != nil {
				return err
			}
			fmt.Printf("%s Opened layaway %d for %s ($%.2f pending)\n",
				ui.RenderPass("✓"), id, l.CustomerName, l.PendingAmount)
			return engine.UploadLayaway(ctx, l)
		})
	},
}

var layawayPayCmd = &cobra.Command{
	Use:   "pay <id>",
	Short: "Record a payment against a layaway",
	Long: `Record a partial payment.

The payment lands locally first, then is appended to the hub's copy
under an atomic read-modify-write, so payments taken on two tills at
the same moment both count. When the balance reaches zero the layaway
is marked completed.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		amount, _ := cmd.Flags().GetFloat64("amount")
		method, _ := cmd.Flags().GetString("method")

		withEngine(func(ctx context.Context, st *store.Store, engine *sync.Engine) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid layaway id %q", args[0])
			}
			if err := engine.AddLayawayPayment(ctx, id, schema.Payment{Amount: amount, PaymentMethod: method}); err != nil {
				return err
			}
			l, err := st.GetLayaway(ctx, id)
			if err != nil {
				return err
			}
			if l.Status == schema.LayawayCompleted {
				fmt.Printf("%s Payment recorded; layaway %d completed\n", ui.RenderPass("✓"), id)
			} else {
				fmt.Printf("%s Payment recorded; $%.2f pending\n", ui.RenderPass("✓"), l.PendingAmount)
			}
			return nil
		})
	},
}

var layawayListCmd = &cobra.Command{
	Use:   "list",
	Short: "List layaways",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		st, _, err := openStore(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening store: %v\n", err)
			os.Exit(1)
		}
		defer st.Close()

		layaways, err := st.GetAllLayaways(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		for _, l := range sync.DedupeLayaways(layaways) {
			marker := ui.RenderAccent("◌")
			if l.Status == schema.LayawayCompleted {
				marker = ui.RenderPass("●")
			}
			fmt.Printf("%s %4d  %-24s $%8.2f paid / $%8.2f pending  %s\n",
				marker, l.LocalID, l.CustomerName, l.TotalPaid, l.PendingAmount, l.Status)
		}
	},
}

var ownerCmd = &cobra.Command{
	Use:   "owner",
	Short: "Manage owners (dueñas)",
}

var ownerAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Add an owner",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		withEngine(func(ctx context.Context, st *store.Store, engine *sync.Engine) error {
			o := &schema.Owner{Name: args[0]}
			id, err := st.AddOwner(ctx, o)
			if err != nil {
				return err
			}
			fmt.Printf("%s Added owner %d: %s\n", ui.RenderPass("✓"), id, o.Name)
			return engine.UploadOwner(ctx, o)
		})
	},
}

var ownerListCmd = &cobra.Command{
	Use:   "list",
	Short: "List owners",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		st, _, err := openStore(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening store: %v\n", err)
			os.Exit(1)
		}
		defer st.Close()

		owners, err := st.GetAllOwners(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		for _, o := range owners {
			fmt.Printf("%4d  %s\n", o.LocalID, o.Name)
		}
	},
}

func init() {
	productAddCmd.Flags().Float64("price", 0, "Unit price")
	productAddCmd.Flags().Int("stock", 0, "Units in stock")
	productAddCmd.Flags().String("sku", "", "Stock keeping unit")
	productAddCmd.Flags().String("category", "", "Category")
	productCmd.AddCommand(productAddCmd, productListCmd, productDeleteCmd)

	saleAddCmd.Flags().Float64("total", 0, "Sale total")
	saleAddCmd.Flags().String("method", "cash", "Payment method")
	saleAddCmd.Flags().StringArray("item", nil, "Line item as name:price:qty (repeatable)")
	saleCmd.AddCommand(saleAddCmd, saleListCmd)

	layawayAddCmd.Flags().String("phone", "", "Customer phone")
	layawayAddCmd.Flags().Float64("total", 0, "Layaway total")
	layawayAddCmd.Flags().StringArray("item", nil, "Line item as name:price:qty (repeatable)")
	layawayPayCmd.Flags().Float64("amount", 0, "Payment amount")
	layawayPayCmd.Flags().String("method", "cash", "Payment method")
	layawayCmd.AddCommand(layawayAddCmd, layawayPayCmd, layawayListCmd)

	ownerCmd.AddCommand(ownerAddCmd, ownerListCmd)

	rootCmd.AddCommand(productCmd, saleCmd, layawayCmd, ownerCmd)
}
