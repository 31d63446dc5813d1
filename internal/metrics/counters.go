package metrics

import (
	"sync/atomic"

	"github.com/cwrk-planet/collab-relay/internal/domain"
)

// Counters are monotonic, process-wide and safe for concurrent use.
type Counters struct {
	ConnectionsAccepted atomic.Int64
	ConnectionsRejected atomic.Int64
	ConnectionsClosed   atomic.Int64
	FramesIn            atomic.Int64
	MessagesRelayed     atomic.Int64
	OpaqueBytesRelayed  atomic.Int64
	ParseErrors         atomic.Int64
	DroppedUnknown      atomic.Int64
	SendFailures        atomic.Int64
	QueueOverflows      atomic.Int64
	HeartbeatTimeouts   atomic.Int64
}

func NewCounters() *Counters {
	return &Counters{}
}

func (c *Counters) Snapshot() domain.RelayCounters {
	return domain.RelayCounters{
		ConnectionsAccepted: c.ConnectionsAccepted.Load(),
		ConnectionsRejected: c.ConnectionsRejected.Load(),
		ConnectionsClosed:   c.ConnectionsClosed.Load(),
		FramesIn:            c.FramesIn.Load(),
		MessagesRelayed:     c.MessagesRelayed.Load(),
		OpaqueBytesRelayed:  c.OpaqueBytesRelayed.Load(),
		ParseErrors:         c.ParseErrors.Load(),
		DroppedUnknown:      c.DroppedUnknown.Load(),
		SendFailures:        c.SendFailures.Load(),
		QueueOverflows:      c.QueueOverflows.Load(),
		HeartbeatTimeouts:   c.HeartbeatTimeouts.Load(),
	}
}
