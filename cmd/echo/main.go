package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/io-pipeline/module-echo/internal/echo"
	"github.com/io-pipeline/module-echo/internal/echo/capture"
	"github.com/io-pipeline/module-echo/internal/registry"
	"github.com/io-pipeline/module-echo/internal/testdata"
	"github.com/io-pipeline/module-echo/pkg/config"
	"github.com/io-pipeline/module-echo/pkg/health"
	"github.com/io-pipeline/module-echo/pkg/kafka"
	"github.com/io-pipeline/module-echo/pkg/logger"
	"github.com/io-pipeline/module-echo/pkg/metrics"
	"github.com/io-pipeline/module-echo/pkg/middleware"
	pkgredis "github.com/io-pipeline/module-echo/pkg/redis"
	"github.com/io-pipeline/module-echo/pkg/rpc"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting echo module",
		"module", cfg.Module.Name,
		"rpc_port", cfg.Server.RPCPort,
		"admin_port", cfg.Server.AdminPort,
	)

	m := metrics.New()
	svc := echo.New(cfg.Module, testdata.NewGenerator(), m)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	processor := echo.Processor(svc)
	var collector *capture.Collector
	if cfg.Capture.Enabled {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.CaptureTopic)
		defer producer.Close()
		collector = capture.NewCollector(producer, cfg.Capture.BufferSize, m)
		collector.Start(ctx)
		defer collector.Close()
		processor = capture.Wrap(svc, collector)
		slog.Info("processing capture enabled",
			"topic", cfg.Kafka.CaptureTopic,
			"buffer_size", cfg.Capture.BufferSize,
		)
	}

	server := rpc.NewServer(m)
	echo.RegisterRPC(server, svc, processor)
	if err := server.Listen(fmt.Sprintf(":%d", cfg.Server.RPCPort)); err != nil {
		slog.Error("failed to bind rpc listener", "error", err)
		os.Exit(1)
	}

	var redisClient *pkgredis.Client
	var announcer *registry.Announcer
	if cfg.Registry.Enabled {
		redisClient, err = pkgredis.NewClient(cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, registry announcements disabled", "error", err)
		} else {
			defer redisClient.Close()
			announcer = registry.NewAnnouncer(redisClient, svc, cfg.Registry, cfg.Module.Name, m)
			slog.Info("registry announcements enabled",
				"key", announcer.Key(),
				"interval", cfg.Registry.Interval,
			)
		}
	}

	checker := health.NewChecker()
	checker.Register("rpc_server", func(ctx context.Context) health.Result {
		if n := server.MethodCount(); n > 0 {
			return health.Up(fmt.Sprintf("%d methods registered", n))
		}
		return health.Down("no methods registered")
	})
	checker.Register("self_test", func(ctx context.Context) health.Result {
		resp, err := svc.TestProcess(ctx, nil)
		if err != nil || !resp.Success {
			return health.Down("test process failed")
		}
		return health.Up("test process succeeded")
	})
	if collector != nil {
		checker.Register("capture", func(ctx context.Context) health.Result {
			used, size := collector.BufferUsage()
			if used >= size {
				return health.Degraded(fmt.Sprintf("capture buffer full (%d/%d)", used, size))
			}
			return health.Up(fmt.Sprintf("buffer %d/%d", used, size))
		})
	}
	if redisClient != nil {
		checker.Register("redis", func(ctx context.Context) health.Result {
			if err := redisClient.Ping(ctx); err != nil {
				return health.Degraded(err.Error())
			}
			return health.Up("")
		})
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var chain http.Handler = mux
	chain = middleware.Metrics()(chain)
	chain = middleware.Timeout(cfg.Server.WriteTimeout)(chain)
	chain = middleware.RequestID(chain)

	admin := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.AdminPort),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	if cfg.Metrics.Enabled {
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancel()
			if err := shutdownMetrics(shutdownCtx); err != nil {
				slog.Error("metrics server shutdown error", "error", err)
			}
		}()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(server.Serve)
	g.Go(func() error {
		slog.Info("admin server listening", "addr", admin.Addr)
		if err := admin.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	if announcer != nil {
		g.Go(func() error {
			return announcer.Run(gctx)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := admin.Shutdown(shutdownCtx); err != nil {
			slog.Error("admin server shutdown error", "error", err)
		}
		server.Stop()
		return nil
	})

	if err := g.Wait(); err != nil {
		slog.Error("echo module error", "error", err)
		os.Exit(1)
	}
	slog.Info("echo module stopped")
}
