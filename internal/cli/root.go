// Package cli provides the command-line interface for homebot.
package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"homebot/internal/app"
	"homebot/internal/config"
	"homebot/internal/storage"
	logx "homebot/pkg/logx"
)

// Version is set at build time.
var Version = "0.1.0"

type rootOptions struct {
	configPath string
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:   "homebot",
		Short: "Voice home assistant with durable reminders",
		Long: `homebot greets recognized household members, takes spoken reminders,
answers small talk, and alerts the owner about unknown visitors.

Reminders are stored durably and delivered even across restarts.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "./config.yaml", "path to config (json or yaml)")

	root.AddCommand(newServeCmd(opts))
	root.AddCommand(newSchedulesCmd(opts))
	root.AddCommand(newSweepCmd(opts))
	root.AddCommand(newVersionCmd())
	return root
}

// Execute runs the root command and exits non-zero on error.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.NewConfigManager(path).Load()
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}
	return cfg, nil
}

// openStore opens the configured store for one-shot commands.
func openStore(ctx context.Context, cfg *config.Config) (storage.Store, error) {
	sc, err := app.MapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	st, err := storage.Open(ctx, sc, logx.NewConsole("WARN").With(logx.String("comp", "storage")))
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	return st, nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "homebot %s\n", Version)
		},
	}
}
