package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/cwrk-planet/collab-relay/internal/loadtest"
	"github.com/cwrk-planet/collab-relay/pkg/logger"

	"github.com/joho/godotenv"
	flag "github.com/spf13/pflag"
)

func main() {
	_ = godotenv.Load()

	cfg := loadtest.DefaultConfig()
	th := &cfg.Thresholds
	var (
		mode     string
		asJSON   bool
		logLevel string
	)

	flag.StringVarP(&cfg.URL, "url", "u", cfg.URL, "relay websocket base url")
	flag.StringVar(&cfg.HealthURL, "health-url", "", "relay http base url (derived from --url when empty)")
	flag.IntVarP(&cfg.Clients, "clients", "c", cfg.Clients, "concurrent clients")
	flag.IntVarP(&cfg.Rooms, "rooms", "r", cfg.Rooms, "rooms the clients are spread over")
	flag.StringVar(&cfg.RoomPrefix, "room-prefix", cfg.RoomPrefix, "room id prefix")
	flag.IntVar(&cfg.BatchSize, "batch-size", cfg.BatchSize, "clients connected per ramp-up batch")
	flag.DurationVar(&cfg.BatchInterval, "batch-interval", cfg.BatchInterval, "pause between ramp-up batches")
	flag.DurationVar(&cfg.RampTimeout, "ramp-timeout", cfg.RampTimeout, "how long the relay may take to report every client")
	flag.DurationVar(&cfg.DialTimeout, "dial-timeout", cfg.DialTimeout, "per-client handshake timeout")
	flag.DurationVarP(&cfg.Duration, "duration", "d", cfg.Duration, "steady-state duration")
	flag.DurationVar(&cfg.OpInterval, "op-interval", cfg.OpInterval, "mean time between edits per client")
	flag.DurationVar(&cfg.Jitter, "jitter", cfg.Jitter, "random spread around --op-interval")
	flag.StringVarP(&mode, "mode", "m", string(cfg.Mode), "edit transport: opaque (binary cbor) or structured (components-update)")
	flag.DurationVar(&cfg.FaultAfter, "fault-after", cfg.FaultAfter, "offset into steady state before killing clients")
	flag.Float64Var(&cfg.FaultFraction, "fault-fraction", cfg.FaultFraction, "fraction of clients killed without a close frame, 0 disables")
	flag.DurationVar(&cfg.ReapTimeout, "reap-timeout", cfg.ReapTimeout, "how long the relay may take to drop killed clients")
	flag.IntVar(&cfg.Cycles, "cycles", cfg.Cycles, "leak detection cycles, 0 disables")
	flag.IntVar(&cfg.LeakClients, "leak-clients", cfg.LeakClients, "clients per leak cycle")
	flag.DurationVar(&cfg.CycleDuration, "cycle-duration", cfg.CycleDuration, "editing time per leak cycle")
	flag.DurationVar(&cfg.SettleTimeout, "settle-timeout", cfg.SettleTimeout, "how long the relay may take to drain after disconnects")
	flag.Uint64Var(&cfg.Seed, "seed", 0, "random seed for edit generation")

	flag.Float64Var(&th.MinConnectSuccess, "min-connect-success", th.MinConnectSuccess, "pass threshold: connection success ratio")
	flag.Float64Var(&th.MaxErrorRate, "max-error-rate", th.MaxErrorRate, "pass threshold: error ratio")
	flag.DurationVar(&th.MaxP95Latency, "max-p95", th.MaxP95Latency, "pass threshold: p95 delivery latency, 0 disables")
	flag.DurationVar(&th.MaxLatency, "max-latency", th.MaxLatency, "pass threshold: worst delivery latency, 0 disables")
	flag.Float64Var(&th.MinThroughput, "min-throughput", th.MinThroughput, "pass threshold: delivered messages per second, 0 disables")
	flag.Uint64Var(&th.MaxLeakBytesPerCycle, "max-leak-bytes", th.MaxLeakBytesPerCycle, "pass threshold: heap growth per leak cycle")

	flag.BoolVar(&asJSON, "json", false, "print the report as JSON")
	flag.StringVar(&logLevel, "log-level", "info", "debug, info, warn or error")
	flag.Parse()

	cfg.Mode = loadtest.Mode(mode)

	// progress goes to stderr so stdout carries only the report
	logger.Init(logger.Config{
		Env:     logger.DetectEnv(),
		Service: "collab-relay-loadtest",
		Backend: logger.BackendStd,
		Level:   logger.ParseLevel(logLevel),
		Output:  os.Stderr,
	})

	h, err := loadtest.New(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "loadtest: %v\n", err)
		flag.Usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("load test starting", "url", cfg.URL, "clients", cfg.Clients, "rooms", cfg.Rooms, "mode", cfg.Mode)
	rep, err := h.Run(ctx)
	if err != nil {
		slog.Error("load test aborted", "err", err)
		os.Exit(1)
	}

	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		err = enc.Encode(rep)
	} else {
		err = rep.WriteText(os.Stdout)
	}
	if err != nil {
		slog.Error("write report", "err", err)
		os.Exit(1)
	}

	if !rep.Passed {
		os.Exit(1)
	}
}
