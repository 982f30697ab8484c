// Package app builds the fleettrack server command.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"fleettrack/internal/api/router"
	"fleettrack/internal/config"
	"fleettrack/internal/core/service"
	"fleettrack/internal/fanout"
	"fleettrack/internal/log"
	"fleettrack/internal/metrics"
	"fleettrack/internal/protocol/server"
)

func NewServerCommand(ctx context.Context) *cobra.Command {
	cfg := config.NewConfig()
	var configFile string

	cmd := &cobra.Command{
		Use:          "fleettrack",
		Short:        "BW32 GPS tracker ingestion server",
		Long:         "fleettrack accepts BW32 tracker connections over TCP, correlates devices with vehicles and fans the resulting events out to WebSocket, MQTT, Kafka and NATS subscribers.",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.Load(cmd.Flags(), configFile); err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			log.Init(cfg.Log)
			return Run(ctx, cfg, log.Std())
		},
	}

	fs := cmd.Flags()
	fs.StringVarP(&configFile, "config", "c", "", "Path to a YAML, JSON or TOML configuration file.")
	cfg.AddFlags(fs)

	return cmd
}

// Run wires every component from cfg and serves until ctx is cancelled or a
// server fails.
func Run(ctx context.Context, cfg *config.Config, logger log.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m, err := metrics.New(reg)
	if err != nil {
		return fmt.Errorf("failed to register metrics: %w", err)
	}

	hub := fanout.NewWebSocketHub(logger.WithName("websocket"), m)
	defer hub.Close()

	sinks, closeSinks, err := startSinks(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeSinks()

	positions, closePositions, err := positionCache(ctx, cfg.Redis, logger)
	if err != nil {
		return err
	}
	defer closePositions()

	publisher := fanout.NewMulti(fanout.MultiConfig{
		QueueSize: cfg.Fanout.QueueSize,
		Metrics:   m,
		Logger:    logger.WithName("fanout"),
	}, append([]fanout.Sink{hub}, sinks...)...)
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), sinkCloseTimeout)
		defer cancel()
		if err := publisher.Close(closeCtx); err != nil {
			logger.Warn("Fan-out queues not drained", "error", err)
		}
	}()

	registry := service.NewRegistry(
		service.WithPositionCache(positions),
		service.WithPublisher(publisher),
		service.WithMetrics(m),
		service.WithLogger(logger.WithName("registry")),
		service.WithOnlineWindow(cfg.Registry.OnlineWindow),
	)

	if cfg.MongoDB.URI != "" {
		if err := seedAssignments(ctx, cfg.MongoDB, registry, logger); err != nil {
			return err
		}
	}

	tcpServer := server.NewTCPServer(cfg.TCP.Port, registry,
		server.WithMaxBuffer(cfg.TCP.MaxBuffer),
		server.WithIdentityPolicy(server.IdentityPolicy(cfg.TCP.IdentityPolicy)),
		server.WithLogger(logger.WithName("tcp-server")),
		server.WithMetrics(m),
	)

	httpServer := &http.Server{
		Addr: cfg.HTTP.Addr,
		Handler: router.NewRouter(router.Config{
			Registry:  registry,
			Gatherer:  reg,
			WebSocket: hub,
			Logger:    logger.WithName("api"),
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return tcpServer.Run(ctx)
	})
	g.Go(func() error {
		return serveHTTP(ctx, httpServer, cfg.HTTP.ShutdownTimeout, logger)
	})

	logger.Info("fleettrack started", "tcpPort", cfg.TCP.Port, "httpAddr", cfg.HTTP.Addr)
	err = g.Wait()
	logger.Info("fleettrack stopped")
	return err
}

func serveHTTP(ctx context.Context, srv *http.Server, timeout time.Duration, logger log.Logger) error {
	logger.Info("Starting HTTP server", "addr", srv.Addr)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
