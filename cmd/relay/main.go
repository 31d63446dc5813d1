package main

import (
	"context"
	"log"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cwrk-planet/collab-relay/config"
	"github.com/cwrk-planet/collab-relay/internal/hub"
	"github.com/cwrk-planet/collab-relay/internal/metrics"
	"github.com/cwrk-planet/collab-relay/internal/postgres"
	"github.com/cwrk-planet/collab-relay/internal/service"
	grpcx "github.com/cwrk-planet/collab-relay/internal/transport/grpc"
	httpx "github.com/cwrk-planet/collab-relay/internal/transport/http"
	"github.com/cwrk-planet/collab-relay/internal/transport/ws"
	"github.com/cwrk-planet/collab-relay/pkg/logger"

	"github.com/joho/godotenv"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"golang.org/x/sync/errgroup"
)

func main() {
	// .env is optional
	_ = godotenv.Load()

	// --- config ---
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	instance := cfg.Metrics.Instance
	if instance == "" {
		instance = logger.NewInstanceID()
	}
	logger.Init(logger.Config{
		Env:        logger.ParseEnv(cfg.Logging.Env),
		Service:    cfg.Logging.Service,
		Version:    cfg.Logging.Version,
		InstanceID: instance,
		Backend:    logger.Backend(cfg.Logging.Backend),
		Level:      logger.ParseLevel(cfg.Logging.Level),
		AddSource:  cfg.Logging.AddSource,
		Debug:      cfg.Logging.Debug,
	})
	slog.Info("starting collab-relay",
		"env", cfg.Logging.Env, "version", cfg.Logging.Version, "addr", cfg.HTTP.Addr())

	// spans are only used to correlate log lines; nothing is exported
	tp := sdktrace.NewTracerProvider()
	otel.SetTracerProvider(tp)
	defer func() { _ = tp.Shutdown(context.Background()) }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- relay core ---
	counters := metrics.NewCounters()
	registry := hub.NewRegistry(counters)
	wsServer := ws.NewServer(ws.Config{
		HeartbeatInterval: cfg.Relay.HeartbeatIntervalDur,
		MissedHeartbeats:  cfg.Relay.MissedHeartbeats,
		HandshakeTimeout:  cfg.Relay.HandshakeTimeoutDur,
		WriteTimeout:      cfg.Relay.WriteTimeoutDur,
		SendQueueSize:     cfg.Relay.SendQueueSize,
		OverflowPolicy:    ws.OverflowPolicy(cfg.Relay.OverflowPolicy),
		MaxMessageSize:    cfg.Relay.MaxMessageSize,
		AllowedOrigins:    cfg.Relay.AllowedOrigins,
	}, registry, counters)

	// --- metrics sinks, optional postgres ---
	sinks := []metrics.Sink{metrics.LogSink{}}
	var history service.StatsHistory
	if cfg.Postgres.DSN != "" {
		statsRepo, err := postgres.OpenStats(ctx, cfg.Postgres.DSN, cfg.Logging.Service)
		if err != nil {
			log.Fatalf("postgres: %v", err)
		}
		defer statsRepo.Close()

		sinks = append(sinks, statsRepo)
		history = statsRepo
		slog.Info("stats persistence enabled")
	}
	reporter := metrics.NewReporter(registry, counters, cfg.Metrics.IntervalDur, instance, sinks...)
	statsSvc := service.NewStatsService(reporter, history)

	// --- HTTP ---
	handler := httpx.NewHandler(registry, statsSvc, cfg.Logging.Service)
	router := httpx.NewRouter(handler, wsServer, httpx.RouterOptions{Debug: cfg.HTTP.Debug})
	httpSrv := httpx.NewServer(httpx.ServerConfig{
		Addr:        cfg.HTTP.Addr(),
		ReadTimeout: cfg.HTTP.ReadTimeoutDur,
		IdleTimeout: cfg.HTTP.IdleTimeoutDur,
	}, router)
	httpLis, err := net.Listen("tcp", cfg.HTTP.Addr())
	if err != nil {
		log.Fatalf("http listen: %v", err)
	}

	// --- run ---
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return httpSrv.Run(gctx, httpLis)
	})

	g.Go(func() error {
		reporter.Run(gctx)
		return nil
	})

	if cfg.GRPC.Addr != "" {
		grpcSrv := grpcx.NewServer()
		grpcLis, err := net.Listen("tcp", cfg.GRPC.Addr)
		if err != nil {
			log.Fatalf("grpc listen: %v", err)
		}
		g.Go(func() error {
			return grpcSrv.Serve(grpcLis)
		})
		g.Go(func() error {
			<-gctx.Done()
			shCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			grpcSrv.Stop(shCtx)
			return nil
		})
	}

	// hijacked sockets outlive http.Server.Shutdown
	g.Go(func() error {
		<-gctx.Done()
		n := registry.CloseAll()
		slog.Info("closing websocket connections", "count", n)
		return nil
	})

	if err := g.Wait(); err != nil {
		slog.Error("server error", "err", err)
		stop()
		os.Exit(1)
	}
	slog.Info("stopped")
}
