package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/marmos91/rawhttpd/internal/logger"
	httpadapter "github.com/marmos91/rawhttpd/pkg/adapter/http"
	"github.com/marmos91/rawhttpd/pkg/config"
	"github.com/marmos91/rawhttpd/pkg/server"
	"github.com/spf13/cobra"
)

var startLogLevel string

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the HTTP server",
	Long: `Loads the configuration, starts the HTTP adapter and the optional
metrics server, and runs until SIGINT or SIGTERM.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		if startLogLevel != "" {
			cfg.Logging.Level = strings.ToUpper(startLogLevel)
			if _, ok := logger.ParseLevel(cfg.Logging.Level); !ok {
				return fmt.Errorf("invalid --log-level %q", startLogLevel)
			}
		}

		if err := logger.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output); err != nil {
			return fmt.Errorf("failed to configure logger: %w", err)
		}
		defer func() { _ = logger.Sync() }()

		return run(cfg)
	},
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := config.InitializeMetrics(cfg)

	srv := server.New(cfg.Server.ShutdownTimeout)
	if m.Server != nil {
		srv.SetMetricsServer(m.Server)
	}

	if err := srv.AddAdapter(httpadapter.New(cfg.Adapters.HTTP, m.HTTPMetrics)); err != nil {
		return err
	}

	logger.Info("rawhttpd starting; press Ctrl+C to stop")
	return srv.Serve(ctx)
}

func init() {
	startCmd.Flags().StringVar(&startLogLevel, "log-level", "",
		"Override the configured log level (DEBUG, INFO, WARN, ERROR)")
	rootCmd.AddCommand(startCmd)
}
