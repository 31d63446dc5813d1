package metrics

import (
	"context"
	"log/slog"
	"time"

	"github.com/cwrk-planet/collab-relay/internal/domain"

	"github.com/google/uuid"
)

const DefaultInterval = 30 * time.Second

// StatsSource reports the current population of the relay.
type StatsSource interface {
	Stats() (rooms, clients int)
}

// Sink receives every snapshot the reporter decides to publish.
type Sink interface {
	Write(ctx context.Context, s domain.StatsSnapshot) error
}

type Reporter struct {
	src      StatsSource
	counters *Counters
	interval time.Duration
	instance string
	sinks    []Sink
}

func NewReporter(src StatsSource, counters *Counters, interval time.Duration, instance string, sinks ...Sink) *Reporter {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if counters == nil {
		counters = NewCounters()
	}
	return &Reporter{
		src:      src,
		counters: counters,
		interval: interval,
		instance: instance,
		sinks:    sinks,
	}
}

func (r *Reporter) Collect() domain.StatsSnapshot {
	rooms, clients := r.src.Stats()
	return domain.StatsSnapshot{
		ID:       uuid.NewString(),
		Instance: r.instance,
		Rooms:    rooms,
		Clients:  clients,
		Counters: r.counters.Snapshot(),
		Memory:   ReadMemory(),
		TakenAt:  time.Now().UTC(),
	}
}

// Run blocks until ctx is done. An idle relay (no rooms, no clients) is not
// reported.
func (r *Reporter) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.tick(ctx)
		}
	}
}

func (r *Reporter) tick(ctx context.Context) {
	snap := r.Collect()
	if snap.Rooms == 0 && snap.Clients == 0 {
		return
	}
	for _, s := range r.sinks {
		if err := s.Write(ctx, snap); err != nil {
			slog.Warn("metrics sink write failed", "err", err)
		}
	}
}

// LogSink writes snapshots to the default slog logger.
type LogSink struct{}

func (LogSink) Write(ctx context.Context, s domain.StatsSnapshot) error {
	slog.InfoContext(ctx, "relay stats",
		"rooms", s.Rooms,
		"clients", s.Clients,
		"relayed", s.Counters.MessagesRelayed,
		"send_failures", s.Counters.SendFailures,
		"heartbeat_timeouts", s.Counters.HeartbeatTimeouts,
		"goroutines", s.Memory.Goroutines,
		"heap_alloc", s.Memory.HeapAlloc,
		"rss", s.Memory.RSS,
	)
	return nil
}
