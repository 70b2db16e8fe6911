package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vango-dev/uidl/internal/config"
	"github.com/vango-dev/uidl/pkg/server"
)

func serveCmd() *cobra.Command {
	var (
		configDir string
		addr      string
		pushMode  string
		verbose   bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the demo UI",
		Long: `Serve a demo UI with a counter and a clock.

Configuration is read from uidl.json in the --config directory when the
file exists. Flags override the file.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configDir, addr, pushMode, verbose)
		},
	}

	cmd.Flags().StringVarP(&configDir, "config", "c", ".", "Directory containing "+config.ConfigFileName)
	cmd.Flags().StringVarP(&addr, "addr", "a", "", "Listen address (overrides config)")
	cmd.Flags().StringVar(&pushMode, "push", "", "Push mode: disabled, manual or automatic (overrides config)")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	return cmd
}

func runServe(ctx context.Context, configDir, addr, pushMode string, verbose bool) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	cfg := config.New()
	if config.Exists(configDir) {
		loaded, err := config.Load(configDir)
		if err != nil {
			return err
		}
		cfg = loaded
		logger.Info("loaded config", "path", cfg.Path())
	}
	if addr != "" {
		cfg.Server.Address = addr
	}
	if pushMode != "" {
		cfg.Deployment.PushMode = pushMode
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	serverCfg := cfg.ServerConfig()

	srv, err := server.New(serverCfg, demoUI(ctx, serverCfg.Deployment.PushMode), server.WithLogger(logger))
	if err != nil {
		return err
	}

	fmt.Printf("  Listening on %s (push %s)\n", serverCfg.Address, serverCfg.Deployment.PushMode)
	return srv.Run(ctx)
}
