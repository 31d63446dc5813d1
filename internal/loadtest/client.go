package loadtest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// client is one simulated editor. Its read loop answers relay pings (the
// gorilla default ping handler) and measures latency of ops from peers.
type client struct {
	id     int
	room   string
	connID string
	mode   Mode
	rec    *Recorder
	conn   *websocket.Conn

	wmu sync.Mutex
	cmu sync.Mutex
	rng *rand.Rand
	col collection

	done    chan struct{}
	killed  atomic.Bool
	closing atomic.Bool
}

func dialClient(ctx context.Context, cfg *Config, rec *Recorder, id int) (*client, error) {
	room := cfg.roomFor(id)
	d := websocket.Dialer{HandshakeTimeout: cfg.DialTimeout}

	dctx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
	defer cancel()

	start := time.Now()
	conn, resp, err := d.DialContext(dctx, cfg.roomURL(room), nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	var connID string
	if err == nil {
		connID, err = awaitEstablished(conn, cfg.DialTimeout)
	}
	rec.dial(time.Since(start), err)
	if err != nil {
		if conn != nil {
			_ = conn.Close()
		}
		return nil, fmt.Errorf("dial %s: %w", room, err)
	}

	c := &client{
		id:     id,
		room:   room,
		connID: connID,
		mode:   cfg.Mode,
		rec:    rec,
		conn:   conn,
		rng:    rand.New(rand.NewPCG(cfg.Seed, uint64(id))),
		done:   make(chan struct{}),
	}
	go c.readLoop()

	if err := c.announce(); err != nil {
		c.close()
		return nil, fmt.Errorf("user-join %s: %w", room, err)
	}
	return c, nil
}

func awaitEstablished(conn *websocket.Conn, timeout time.Duration) (string, error) {
	if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return "", err
	}
	defer func() { _ = conn.SetReadDeadline(time.Time{}) }()

	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			return "", err
		}
		if mt != websocket.TextMessage {
			continue
		}
		var m struct {
			Type         string `json:"type"`
			ConnectionID string `json:"connectionId"`
		}
		if json.Unmarshal(data, &m) == nil && m.Type == "connection-established" {
			return m.ConnectionID, nil
		}
	}
}

func (c *client) announce() error {
	msg := map[string]any{
		"type": "user-join",
		"user": map[string]any{
			"id":    fmt.Sprintf("load-%d", c.id),
			"name":  fmt.Sprintf("Load client %d", c.id),
			"color": fmt.Sprintf("#%06x", c.rng.IntN(0xffffff)),
		},
	}
	c.wmu.Lock()
	defer c.wmu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return c.conn.WriteJSON(msg)
}

func (c *client) readLoop() {
	defer close(c.done)
	for {
		mt, data, err := c.conn.ReadMessage()
		if err != nil {
			if !c.killed.Load() && !c.closing.Load() {
				c.rec.readError()
				slog.Warn("loadtest: read failed", "client", c.id, "room", c.room, "err", err)
			}
			return
		}
		op, err := decodeOp(mt, data)
		if err != nil {
			if !errors.Is(err, errNotAnOp) {
				c.rec.readError()
				slog.Warn("loadtest: undecodable frame", "client", c.id, "err", err)
			}
			continue
		}
		if op.Client == c.id {
			c.rec.readError()
			slog.Error("loadtest: own op relayed back", "client", c.id, "room", c.room, "op", op.ID)
			continue
		}
		c.rec.receive(time.Since(time.Unix(0, op.SentAt)))

		c.cmu.Lock()
		c.col.apply(op)
		c.cmu.Unlock()
	}
}

// edit sends ops every interval ± jitter until ctx ends or the client dies.
func (c *client) edit(ctx context.Context, interval, jitter time.Duration) {
	for {
		wait := interval
		if jitter > 0 {
			wait = interval - jitter + time.Duration(c.rng.Int64N(int64(2*jitter)))
		}
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-c.done:
			t.Stop()
			return
		case <-t.C:
		}
		if c.killed.Load() || c.closing.Load() {
			return
		}
		if err := c.sendOp(); err != nil {
			return
		}
	}
}

func (c *client) sendOp() error {
	c.cmu.Lock()
	op := c.col.next(c.rng, c.id, time.Now())
	c.cmu.Unlock()

	mt, data, err := encodeOp(c.mode, op)
	if err != nil {
		c.rec.send(err)
		return err
	}

	c.wmu.Lock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	err = c.conn.WriteMessage(mt, data)
	c.wmu.Unlock()

	if c.killed.Load() {
		return errors.New("client killed")
	}
	c.rec.send(err)
	return err
}

// kill drops the TCP connection without a close frame, as a crashed tab
// or a dead network would.
func (c *client) kill() {
	c.killed.Store(true)
	_ = c.conn.NetConn().Close()
}

// close performs a clean websocket close and waits briefly for the relay
// to acknowledge it.
func (c *client) close() {
	if c.killed.Load() || !c.closing.CompareAndSwap(false, true) {
		return
	}
	c.wmu.Lock()
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.wmu.Unlock()

	select {
	case <-c.done:
	case <-time.After(2 * time.Second):
	}
	_ = c.conn.Close()
}
