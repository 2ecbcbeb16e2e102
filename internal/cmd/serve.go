package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Iron-Ham/mplp/internal/api"
	"github.com/Iron-Ham/mplp/internal/config"
	"github.com/Iron-Ham/mplp/internal/platform"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the runtime and its admin HTTP API",
	Long: `Start every enabled protocol module and serve the admin API until
interrupted.

The config file, when one is in use, is watched: edits to module settings,
monitoring and security rules are applied without a restart.`,
	RunE: runServe,
}

var (
	serveAddr string // Overrides server.address
)

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from server.address)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if serveAddr != "" {
		cfg.Server.Address = serveAddr
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = logger.Close() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hub, err := platform.NewHub(ctx, cfg, platform.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("failed to build runtime: %w", err)
	}
	if err := hub.Start(ctx); err != nil {
		_ = hub.Stop(context.Background())
		return fmt.Errorf("failed to start runtime: %w", err)
	}
	defer func() { _ = hub.Stop(context.Background()) }()

	if viper.ConfigFileUsed() != "" {
		hub.WatchProcessConfig(viper.GetViper())
	}

	fmt.Fprintf(cmd.OutOrStdout(), "mplp %s serving on %s\n", version, cfg.Server.Address)
	return api.NewServer(hub, logger).Serve(ctx, cfg.Server.Address, cfg.Server.ShutdownTimeout())
}
