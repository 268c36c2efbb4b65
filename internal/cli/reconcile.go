package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"api_market/internal/checkout"
	"api_market/internal/config"
	"api_market/internal/payments"
)

// ReconcileOptions holds flags for the reconcile command.
type ReconcileOptions struct {
	*RootOptions
	Repair bool
}

// NewReconcileCommand creates the reconcile command.
func NewReconcileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReconcileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Find listings stuck sold with no ledger row",
		Long: `Find listings marked sold that have no matching sale record.

Such rows violate the core invariant (sold implies exactly one sale) and can
only appear through a crash window or manual interference. With --repair the
sweep reverts each one back to listed; the revert is conditional and refuses
to touch any listing that has a sale.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReconcile(cmd, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.Repair, "repair", false, "revert orphaned listings back to listed")

	return cmd
}

func runReconcile(cmd *cobra.Command, opts *ReconcileOptions) error {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return err
	}

	logger, err := opts.Logger()
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx := context.Background()
	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	// The sweep only needs the store; payments stay disabled.
	svc := checkout.NewService(st, payments.Disabled{}, logger)

	ids, err := svc.Orphans(ctx)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "no orphaned listings")
		return nil
	}

	for _, id := range ids {
		fmt.Fprintln(cmd.OutOrStdout(), id)
		if !opts.Repair {
			continue
		}
		if err := svc.Relist(ctx, id); err != nil {
			logger.Error("failed to relist orphaned listing", zap.String("listing_id", id), zap.Error(err))
			return err
		}
	}
	if opts.Repair {
		fmt.Fprintf(cmd.OutOrStdout(), "relisted %d listing(s)\n", len(ids))
	}
	return nil
}
