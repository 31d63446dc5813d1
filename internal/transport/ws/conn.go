package ws

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/cwrk-planet/collab-relay/internal/domain"
	"github.com/cwrk-planet/collab-relay/internal/hub"
	"github.com/cwrk-planet/collab-relay/internal/metrics"

	"github.com/gorilla/websocket"
)

type OverflowPolicy string

const (
	OverflowDropOldest OverflowPolicy = "drop-oldest"
	OverflowDisconnect OverflowPolicy = "disconnect"
)

// wsConn is one accepted socket. Its read loop runs in the HTTP handler
// goroutine; the write loop is the only writer on the socket.
type wsConn struct {
	id       string
	roomID   string
	conn     *websocket.Conn
	policy   OverflowPolicy
	counters *metrics.Counters

	send     chan hub.Frame
	dropMu   sync.Mutex
	closed   chan struct{}
	closeErr error
	once     sync.Once

	// pings sent since the last sign of life from the peer
	outstanding atomic.Int32
	lastSeen    atomic.Int64
	timedOut    atomic.Bool
}

func newWsConn(id, roomID string, c *websocket.Conn, queue int, policy OverflowPolicy, counters *metrics.Counters) *wsConn {
	if queue <= 0 {
		queue = 1
	}
	wc := &wsConn{
		id:       id,
		roomID:   roomID,
		conn:     c,
		policy:   policy,
		counters: counters,
		send:     make(chan hub.Frame, queue),
		closed:   make(chan struct{}),
	}
	wc.touch()
	return wc
}

func (c *wsConn) ID() string     { return c.id }
func (c *wsConn) RoomID() string { return c.roomID }

// Send enqueues without blocking. When the queue is full the oldest frame
// is discarded, or the peer is reported as failed under the disconnect
// policy.
func (c *wsConn) Send(f hub.Frame) error {
	select {
	case <-c.closed:
		return domain.ErrPeerClosed
	default:
	}

	select {
	case c.send <- f:
		return nil
	default:
	}

	c.counters.QueueOverflows.Add(1)
	if c.policy == OverflowDisconnect {
		return domain.ErrSendQueueFull
	}

	c.dropMu.Lock()
	defer c.dropMu.Unlock()
	for {
		select {
		case c.send <- f:
			return nil
		default:
		}
		select {
		case <-c.send:
		default:
		}
	}
}

func (c *wsConn) Close() error {
	c.once.Do(func() {
		close(c.closed)
		if c.conn != nil {
			c.closeErr = c.conn.Close()
		}
	})
	return c.closeErr
}

func (c *wsConn) Done() <-chan struct{} { return c.closed }

func (c *wsConn) touch() {
	c.outstanding.Store(0)
	c.lastSeen.Store(time.Now().UnixNano())
}

func (c *wsConn) LastSeen() time.Time {
	return time.Unix(0, c.lastSeen.Load())
}
