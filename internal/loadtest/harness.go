package loadtest

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Harness drives a running relay through ramp-up, steady traffic, fault
// injection and leak cycles, then grades the result.
type Harness struct {
	cfg    Config
	rec    *Recorder
	health *HealthClient
}

func New(cfg Config) (*Harness, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Harness{
		cfg:    cfg,
		rec:    NewRecorder(),
		health: NewHealthClient(cfg.HealthURL),
	}, nil
}

// Run executes every enabled phase. Threshold violations are reported in
// the Report, not as an error; an error means the run itself broke.
func (h *Harness) Run(ctx context.Context) (*Report, error) {
	if _, err := h.health.Health(ctx); err != nil {
		return nil, err
	}

	rep := &Report{
		Target:     h.cfg.URL,
		Clients:    h.cfg.Clients,
		Rooms:      h.cfg.Rooms,
		Mode:       h.cfg.Mode,
		StartedAt:  time.Now(),
		Thresholds: h.cfg.Thresholds,
	}

	clients, ramp := h.rampUp(ctx)
	rep.Ramp = ramp

	steady, fault := h.steadyState(ctx, clients)
	rep.SteadyDuration = steady
	rep.Fault = fault
	rep.Traffic = h.rec.Summary()
	if steady > 0 {
		rep.Throughput = float64(rep.Traffic.Received) / steady.Seconds()
	}

	rep.Teardown = h.teardown(ctx, clients)

	if h.cfg.Cycles > 0 {
		rep.Leak = h.leakCycles(ctx)
	}

	if err := ctx.Err(); err != nil {
		return rep, err
	}
	rep.FinishedAt = time.Now()
	rep.Evaluate()
	return rep, nil
}

// dialBatch connects clients [from, to) with at most BatchSize handshakes
// in flight. Failed dials are recorded and skipped.
func (h *Harness) dialBatch(ctx context.Context, rec *Recorder, from, to int) []*client {
	var (
		mu  sync.Mutex
		out []*client
		g   errgroup.Group
	)
	g.SetLimit(h.cfg.BatchSize)
	for id := from; id < to; id++ {
		g.Go(func() error {
			c, err := dialClient(ctx, &h.cfg, rec, id)
			if err != nil {
				slog.Warn("loadtest: dial failed", "client", id, "err", err)
				return nil
			}
			mu.Lock()
			out = append(out, c)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait() // dial errors are counted by rec, never returned
	return out
}

func (h *Harness) rampUp(ctx context.Context) ([]*client, RampResult) {
	start := time.Now()
	var clients []*client

	for from := 0; from < h.cfg.Clients; from += h.cfg.BatchSize {
		to := min(from+h.cfg.BatchSize, h.cfg.Clients)
		clients = append(clients, h.dialBatch(ctx, h.rec, from, to)...)
		slog.Info("loadtest: batch connected", "phase", "ramp", "upto", to, "connected", len(clients))

		if to < h.cfg.Clients && h.cfg.BatchInterval > 0 {
			select {
			case <-ctx.Done():
				return clients, RampResult{Target: h.cfg.Clients, Connected: len(clients)}
			case <-time.After(h.cfg.BatchInterval):
			}
		}
	}

	res := RampResult{Target: h.cfg.Clients, Connected: len(clients)}
	st, took, err := h.health.WaitFor(ctx, h.cfg.RampTimeout, func(s HealthStatus) bool {
		return s.TotalClients >= h.cfg.Clients
	})
	res.Observed = st.TotalClients
	res.Converged = err == nil
	res.Elapsed = time.Since(start)
	if err != nil {
		slog.Warn("loadtest: ramp did not converge", "want", h.cfg.Clients, "observed", st.TotalClients, "err", err)
	} else {
		slog.Info("loadtest: ramp converged", "clients", st.TotalClients, "rooms", st.Rooms, "wait", took)
	}
	return clients, res
}

func (h *Harness) steadyState(ctx context.Context, clients []*client) (time.Duration, *FaultResult) {
	if h.cfg.Duration <= 0 || len(clients) == 0 {
		return 0, nil
	}
	sctx, cancel := context.WithTimeout(ctx, h.cfg.Duration)
	defer cancel()

	start := time.Now()
	var wg sync.WaitGroup
	for _, c := range clients {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.edit(sctx, h.cfg.OpInterval, h.cfg.Jitter)
		}()
	}

	var fault *FaultResult
	if h.cfg.FaultFraction > 0 {
		fault = h.injectFault(sctx, ctx, clients)
	}

	<-sctx.Done()
	wg.Wait()
	elapsed := time.Since(start)
	slog.Info("loadtest: steady state finished", "phase", "steady", "elapsed", elapsed)
	return elapsed, fault
}

// injectFault waits FaultAfter into the steady state, kills a fraction of
// the clients and measures how long the relay takes to notice. The reap
// wait uses the parent ctx so it can outlast the steady window.
func (h *Harness) injectFault(sctx, ctx context.Context, clients []*client) *FaultResult {
	select {
	case <-sctx.Done():
		return nil
	case <-time.After(h.cfg.FaultAfter):
	}

	n := int(float64(len(clients)) * h.cfg.FaultFraction)
	res := &FaultResult{Killed: n, Survivors: len(clients) - n}
	for _, c := range clients[:n] {
		c.kill()
	}
	slog.Info("loadtest: killed clients without close", "phase", "fault", "killed", n, "survivors", res.Survivors)

	st, took, err := h.health.WaitFor(ctx, h.cfg.ReapTimeout, func(s HealthStatus) bool {
		return s.TotalClients <= res.Survivors
	})
	res.Observed = st.TotalClients
	res.Reaped = err == nil
	res.ReapTime = took
	if err != nil {
		slog.Warn("loadtest: dead clients not reaped", "observed", st.TotalClients, "want", res.Survivors, "err", err)
	}
	return res
}

func (h *Harness) teardown(ctx context.Context, clients []*client) SettleResult {
	closeAll(clients)
	return h.settle(ctx)
}

func closeAll(clients []*client) {
	var wg sync.WaitGroup
	for _, c := range clients {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.close()
		}()
	}
	wg.Wait()
}

// settle waits until the relay holds no rooms and no clients.
func (h *Harness) settle(ctx context.Context) SettleResult {
	st, took, err := h.health.WaitFor(ctx, h.cfg.SettleTimeout, func(s HealthStatus) bool {
		return s.Rooms == 0 && s.TotalClients == 0
	})
	return SettleResult{Settled: err == nil, Rooms: st.Rooms, Clients: st.TotalClients, Elapsed: took}
}

func (h *Harness) leakCycles(ctx context.Context) *LeakResult {
	res := &LeakResult{Cycles: h.cfg.Cycles, ClientsPerCycle: h.cfg.LeakClients}

	base, err := h.health.Memory(ctx)
	if err != nil {
		res.Skipped = true
		res.Reason = err.Error()
		if !errors.Is(err, ErrMemoryEndpointDisabled) {
			slog.Warn("loadtest: memory sample failed", "err", err)
		}
		return res
	}
	res.Baseline = base
	res.Settled = true

	rec := NewRecorder()
	idBase := h.cfg.Clients
	for cycle := 1; cycle <= h.cfg.Cycles; cycle++ {
		from := idBase + (cycle-1)*h.cfg.LeakClients
		clients := h.dialBatch(ctx, rec, from, from+h.cfg.LeakClients)

		cctx, cancel := context.WithTimeout(ctx, h.cfg.CycleDuration)
		var wg sync.WaitGroup
		for _, c := range clients {
			wg.Add(1)
			go func() {
				defer wg.Done()
				c.edit(cctx, h.cfg.OpInterval, h.cfg.Jitter)
			}()
		}
		wg.Wait()
		cancel()

		closeAll(clients)
		if s := h.settle(ctx); !s.Settled {
			res.Settled = false
			slog.Warn("loadtest: relay did not drain after cycle", "cycle", cycle, "rooms", s.Rooms, "clients", s.Clients)
		}

		sample, err := h.health.Memory(ctx)
		if err != nil {
			res.Skipped = true
			res.Reason = err.Error()
			return res
		}
		res.Samples = append(res.Samples, sample)
		slog.Info("loadtest: leak cycle done", "phase", "leak", "cycle", cycle,
			"connected", len(clients), "heap_inuse", sample.HeapInuse, "rss", sample.RSS)
	}

	res.Traffic = rec.Summary()
	if n := len(res.Samples); n > 0 {
		last := res.Samples[n-1].HeapInuse
		if last > base.HeapInuse {
			res.GrowthPerCycle = (last - base.HeapInuse) / uint64(n)
		}
	}
	return res
}
