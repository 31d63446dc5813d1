package loadtest

import (
	"math/rand/v2"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_Validate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.URL = "wss://relay.example.com:8443/ws"
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "https://relay.example.com:8443", cfg.HealthURL)
	assert.Equal(t, "load-test-room-3", cfg.roomFor(13))
	assert.Equal(t, "wss://relay.example.com:8443/ws/a%20b", cfg.roomURL("a b"))

	cases := []struct {
		name   string
		mutate func(*Config)
		msg    string
	}{
		{"http scheme", func(c *Config) { c.URL = "http://localhost:1234" }, "want ws or wss"},
		{"no clients", func(c *Config) { c.Clients = 0 }, "clients must be positive"},
		{"jitter too large", func(c *Config) { c.Jitter = c.OpInterval }, "jitter"},
		{"bad mode", func(c *Config) { c.Mode = "yjs" }, "mode"},
		{"fault after steady state", func(c *Config) { c.FaultAfter = c.Duration }, "fault after"},
		{"fraction of one", func(c *Config) { c.FaultFraction = 1 }, "fault fraction"},
		{"cycles without clients", func(c *Config) { c.LeakClients = 0 }, "leak clients"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.msg)
		})
	}
}

func TestConfig_ValidateFillsDefaults(t *testing.T) {
	cfg := Config{URL: "ws://127.0.0.1:1234", Clients: 7, OpInterval: time.Second}
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "http://127.0.0.1:1234", cfg.HealthURL)
	assert.Equal(t, 1, cfg.Rooms)
	assert.Equal(t, 7, cfg.BatchSize)
	assert.Equal(t, ModeOpaque, cfg.Mode)
	assert.Equal(t, cfg.ReapTimeout, cfg.SettleTimeout)
}

func TestOps_RoundTripBothModes(t *testing.T) {
	op := Op{Kind: OpUpdate, ID: "c-1", Index: 2, X: 10.5, Y: 3, Client: 4, SentAt: 42}

	mt, data, err := encodeOp(ModeOpaque, op)
	require.NoError(t, err)
	assert.Equal(t, websocket.BinaryMessage, mt)
	got, err := decodeOp(mt, data)
	require.NoError(t, err)
	assert.Equal(t, op, got)

	mt, data, err = encodeOp(ModeStructured, op)
	require.NoError(t, err)
	assert.Equal(t, websocket.TextMessage, mt)
	assert.Contains(t, string(data), `"type":"components-update"`)
	got, err = decodeOp(mt, data)
	require.NoError(t, err)
	assert.Equal(t, op, got)
}

func TestDecodeOp_IgnoresControlMessages(t *testing.T) {
	for _, raw := range []string{
		`{"type":"user-list","users":[]}`,
		`{"type":"pong","timestamp":1}`,
		`{"type":"components-update","components":[{"name":"Button"}]}`,
	} {
		_, err := decodeOp(websocket.TextMessage, []byte(raw))
		assert.ErrorIs(t, err, errNotAnOp, raw)
	}

	_, err := decodeOp(websocket.TextMessage, []byte("{"))
	require.Error(t, err)
	assert.NotErrorIs(t, err, errNotAnOp)
}

func TestCollection_NextStaysConsistent(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	var col collection
	now := time.Now()

	first := col.next(rng, 0, now)
	assert.Equal(t, OpInsert, first.Kind, "empty replica can only insert")
	assert.Equal(t, 1, col.len())

	for range 500 {
		op := col.next(rng, 0, now)
		switch op.Kind {
		case OpInsert:
			assert.GreaterOrEqual(t, col.indexOf(op.ID), 0)
		case OpDelete:
			assert.Equal(t, -1, col.indexOf(op.ID))
		}
	}
}

func TestCollection_ApplyRemote(t *testing.T) {
	var col collection
	col.apply(Op{Kind: OpInsert, ID: "a", Index: 0})
	col.apply(Op{Kind: OpInsert, ID: "b", Index: 99})
	col.apply(Op{Kind: OpInsert, ID: "c", Index: 1})
	col.apply(Op{Kind: OpInsert, ID: "a", Index: 2})
	assert.Equal(t, []string{"a", "c", "b"}, col.ids)

	col.apply(Op{Kind: OpDelete, ID: "c", Index: 0})
	col.apply(Op{Kind: OpDelete, ID: "missing"})
	assert.Equal(t, []string{"a", "b"}, col.ids)
}

func TestPercentile(t *testing.T) {
	var d []time.Duration
	for i := 1; i <= 100; i++ {
		d = append(d, time.Duration(i)*time.Millisecond)
	}
	assert.Equal(t, 50*time.Millisecond, percentile(d, 50))
	assert.Equal(t, 95*time.Millisecond, percentile(d, 95))
	assert.Equal(t, 100*time.Millisecond, percentile(d, 100))
	assert.Equal(t, time.Millisecond, percentile(d, 0))
	assert.Zero(t, percentile(nil, 95))
	assert.Equal(t, 7*time.Millisecond, percentile([]time.Duration{7 * time.Millisecond}, 99))
}

func TestRecorder_Summary(t *testing.T) {
	rec := NewRecorder()
	for i := 0; i < 19; i++ {
		rec.dial(time.Millisecond, nil)
	}
	rec.dial(0, assert.AnError)
	for i := 0; i < 10; i++ {
		rec.send(nil)
		rec.receive(time.Duration(i+1) * time.Millisecond)
	}
	rec.readError()

	s := rec.Summary()
	assert.Equal(t, 20, s.DialAttempts)
	assert.InDelta(t, 0.95, s.ConnectSuccess(), 1e-9)
	assert.Equal(t, 10, s.Received)
	assert.Equal(t, 10*time.Millisecond, s.LatencyMax)
	assert.Equal(t, 5*time.Millisecond, s.LatencyP50)
	assert.InDelta(t, 2.0/30.0, s.ErrorRate(), 1e-9)
}

func passingReport() *Report {
	return &Report{
		Thresholds: DefaultThresholds(),
		Ramp:       RampResult{Target: 10, Connected: 10, Observed: 10, Converged: true},
		Traffic: Summary{
			DialAttempts: 10, DialOK: 10, Sent: 100, Received: 900,
			LatencyP95: 20 * time.Millisecond,
		},
		SteadyDuration: 10 * time.Second,
		Throughput:     90,
		Fault:          &FaultResult{Killed: 3, Survivors: 7, Observed: 7, Reaped: true},
		Teardown:       SettleResult{Settled: true},
		Leak: &LeakResult{
			Cycles: 2, Settled: true,
			Samples:        []MemorySample{{HeapInuse: 1 << 20}, {HeapInuse: 2 << 20}},
			GrowthPerCycle: 512 << 10,
		},
	}
}

func TestReport_EvaluatePasses(t *testing.T) {
	r := passingReport()
	r.Evaluate()
	assert.True(t, r.Passed, r.Failures)
	assert.Empty(t, r.Failures)
}

func TestReport_EvaluateFailures(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Report)
		msg    string
	}{
		{"connect success", func(r *Report) { r.Traffic.DialOK = 8; r.Traffic.DialFailed = 2 }, "connection success"},
		{"ramp", func(r *Report) { r.Ramp.Converged = false; r.Ramp.Observed = 6 }, "did not converge"},
		{"error rate", func(r *Report) { r.Traffic.ReadErrors = 20 }, "error rate"},
		{"p95", func(r *Report) { r.Traffic.LatencyP95 = time.Second }, "p95 latency"},
		{"throughput", func(r *Report) { r.Throughput = 1 }, "throughput"},
		{"reap", func(r *Report) { r.Fault.Reaped = false; r.Fault.Observed = 10 }, "not reaped"},
		{"teardown", func(r *Report) { r.Teardown = SettleResult{Rooms: 1, Clients: 2} }, "after disconnect"},
		{"leak", func(r *Report) { r.Leak.GrowthPerCycle = 80 << 20 }, "per cycle"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := passingReport()
			tc.mutate(r)
			r.Evaluate()
			assert.False(t, r.Passed)
			require.Len(t, r.Failures, 1, r.Failures)
			assert.Contains(t, r.Failures[0], tc.msg)
		})
	}
}

func TestReport_SkippedLeakIsNotAFailure(t *testing.T) {
	r := passingReport()
	r.Leak = &LeakResult{Skipped: true, Reason: ErrMemoryEndpointDisabled.Error()}
	r.Evaluate()
	assert.True(t, r.Passed)

	var b strings.Builder
	require.NoError(t, r.WriteText(&b))
	assert.Contains(t, b.String(), "skipped: relay does not expose /debug/memory")
	assert.Contains(t, b.String(), "PASS")
}

func TestReport_WriteTextListsFailures(t *testing.T) {
	r := passingReport()
	r.Teardown = SettleResult{Rooms: 2}
	r.Evaluate()

	var b strings.Builder
	require.NoError(t, r.WriteText(&b))
	out := b.String()
	assert.Contains(t, out, "FAIL")
	assert.Contains(t, out, "relay kept 2 rooms")
	assert.Contains(t, out, "growth per cycle 512.0 KiB")
}

func TestBytesHuman(t *testing.T) {
	assert.Equal(t, "512 B", bytesHuman(512))
	assert.Equal(t, "1.5 KiB", bytesHuman(1536))
	assert.Equal(t, "50.0 MiB", bytesHuman(50<<20))
}
