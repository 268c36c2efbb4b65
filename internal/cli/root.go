// Package cli wires the cobra command tree for the marketplace server and
// its operational tooling.
package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"api_market/internal/config"
	"api_market/internal/store"
	"api_market/internal/store/memory"
	"api_market/internal/store/postgres"
	"api_market/internal/store/sqlite"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	Verbose    bool
}

// NewRootCommand creates the root command for the api_market CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "api_market",
		Short: "Marketplace API server and tooling",
		Long:  "A marketplace backend: listing catalog, search, and race-safe sale finalization.",
	}

	// Global flags
	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "path to YAML config file")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose logging")

	// Add subcommands
	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewReconcileCommand(opts))

	return cmd
}

// Logger builds the zap logger the command runs with.
func (o *RootOptions) Logger() (*zap.Logger, error) {
	if o.Verbose {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// openStore builds the store named by the config's database driver.
func openStore(ctx context.Context, cfg config.Config) (store.Store, error) {
	switch cfg.Database.Driver {
	case "memory":
		return memory.New(), nil
	case "sqlite":
		if cfg.Database.DSN == "" {
			return nil, fmt.Errorf("sqlite driver requires database.dsn (the db file path)")
		}
		return sqlite.Open(cfg.Database.DSN)
	case "postgres":
		if cfg.Database.DSN == "" {
			return nil, fmt.Errorf("postgres driver requires database.dsn")
		}
		st, err := postgres.New(ctx, cfg.Database.DSN)
		if err != nil {
			return nil, err
		}
		if err := st.Migrate(ctx); err != nil {
			st.Close()
			return nil, err
		}
		return st, nil
	default:
		return nil, fmt.Errorf("unknown database driver %q: must be memory, sqlite or postgres", cfg.Database.Driver)
	}
}
