package metrics

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cwrk-planet/collab-relay/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedSource struct {
	mu             sync.Mutex
	rooms, clients int
}

func (f *fixedSource) Stats() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rooms, f.clients
}

func (f *fixedSource) set(rooms, clients int) {
	f.mu.Lock()
	f.rooms, f.clients = rooms, clients
	f.mu.Unlock()
}

type recordingSink struct {
	mu    sync.Mutex
	snaps []domain.StatsSnapshot
	err   error
}

func (s *recordingSink) Write(_ context.Context, snap domain.StatsSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snaps = append(s.snaps, snap)
	return s.err
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.snaps)
}

func TestCounters_Snapshot(t *testing.T) {
	c := NewCounters()
	c.ConnectionsAccepted.Add(3)
	c.MessagesRelayed.Add(10)
	c.HeartbeatTimeouts.Add(1)

	s := c.Snapshot()
	assert.EqualValues(t, 3, s.ConnectionsAccepted)
	assert.EqualValues(t, 10, s.MessagesRelayed)
	assert.EqualValues(t, 1, s.HeartbeatTimeouts)
	assert.Zero(t, s.SendFailures)
}

func TestReporter_Collect(t *testing.T) {
	src := &fixedSource{rooms: 2, clients: 5}
	c := NewCounters()
	c.FramesIn.Add(42)

	snap := NewReporter(src, c, time.Second, "relay-a").Collect()

	assert.NotEmpty(t, snap.ID)
	assert.Equal(t, "relay-a", snap.Instance)
	assert.Equal(t, 2, snap.Rooms)
	assert.Equal(t, 5, snap.Clients)
	assert.EqualValues(t, 42, snap.Counters.FramesIn)
	assert.NotZero(t, snap.Memory.Goroutines)
	assert.NotZero(t, snap.Memory.HeapAlloc)
	assert.WithinDuration(t, time.Now(), snap.TakenAt, time.Second)
}

func TestReporter_RunSkipsIdle(t *testing.T) {
	src := &fixedSource{}
	sink := &recordingSink{}
	r := NewReporter(src, nil, 10*time.Millisecond, "relay-a", sink)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()

	time.Sleep(60 * time.Millisecond)
	assert.Zero(t, sink.count())

	src.set(1, 1)
	require.Eventually(t, func() bool { return sink.count() >= 2 }, time.Second, 5*time.Millisecond)

	cancel()
	<-done
}

func TestReporter_SinkErrorDoesNotStopOthers(t *testing.T) {
	src := &fixedSource{rooms: 1, clients: 1}
	bad := &recordingSink{err: errors.New("db down")}
	good := &recordingSink{}
	r := NewReporter(src, nil, time.Hour, "relay-a", bad, good)

	r.tick(context.Background())

	assert.Equal(t, 1, bad.count())
	assert.Equal(t, 1, good.count())
}

func TestReadMemoryAfterGC(t *testing.T) {
	m := ReadMemoryAfterGC()
	assert.NotZero(t, m.HeapInuse)
	assert.GreaterOrEqual(t, m.Goroutines, 1)
}
