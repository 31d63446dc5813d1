package ws

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cwrk-planet/collab-relay/internal/domain"
	"github.com/cwrk-planet/collab-relay/internal/hub"
	"github.com/cwrk-planet/collab-relay/internal/metrics"
	"github.com/cwrk-planet/collab-relay/internal/protocol"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

type Config struct {
	HeartbeatInterval time.Duration
	MissedHeartbeats  int
	HandshakeTimeout  time.Duration
	WriteTimeout      time.Duration
	SendQueueSize     int
	OverflowPolicy    OverflowPolicy
	MaxMessageSize    int64
	AllowedOrigins    []string
}

func DefaultConfig() Config {
	return Config{
		HeartbeatInterval: 15 * time.Second,
		MissedHeartbeats:  2,
		HandshakeTimeout:  10 * time.Second,
		WriteTimeout:      5 * time.Second,
		SendQueueSize:     256,
		OverflowPolicy:    OverflowDropOldest,
		MaxMessageSize:    1 << 20,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = def.HeartbeatInterval
	}
	if c.MissedHeartbeats <= 0 {
		c.MissedHeartbeats = def.MissedHeartbeats
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = def.HandshakeTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = def.WriteTimeout
	}
	if c.SendQueueSize <= 0 {
		c.SendQueueSize = def.SendQueueSize
	}
	if c.OverflowPolicy == "" {
		c.OverflowPolicy = def.OverflowPolicy
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = def.MaxMessageSize
	}
	return c
}

// Server is the connection gateway: it upgrades requests, binds each
// socket to the room named by the last path segment and runs its loops.
type Server struct {
	cfg      Config
	upgrader websocket.Upgrader
	registry *hub.Registry
	counters *metrics.Counters
	origins  map[string]struct{}
	anyOrig  bool
}

func NewServer(cfg Config, registry *hub.Registry, counters *metrics.Counters) *Server {
	cfg = cfg.withDefaults()
	if counters == nil {
		counters = metrics.NewCounters()
	}
	s := &Server{
		cfg:      cfg,
		registry: registry,
		counters: counters,
		origins:  make(map[string]struct{}, len(cfg.AllowedOrigins)),
	}
	for _, o := range cfg.AllowedOrigins {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		if o == "*" {
			s.anyOrig = true
			continue
		}
		if o != "" {
			s.origins[strings.ToLower(o)] = struct{}{}
		}
	}
	if len(s.origins) == 0 {
		s.anyOrig = true
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		HandshakeTimeout: cfg.HandshakeTimeout,
		// checked in HandleWS so the rejection is logged and counted
		CheckOrigin: func(r *http.Request) bool { return true },
	}
	return s
}

func (s *Server) originAllowed(r *http.Request) bool {
	if s.anyOrig {
		return true
	}
	origin := strings.TrimRight(strings.TrimSpace(r.Header.Get("Origin")), "/")
	if origin == "" {
		// non-browser clients
		return true
	}
	_, ok := s.origins[strings.ToLower(origin)]
	return ok
}

// HandleWS serves ws(s)://host/<anything>/<roomId>. It blocks for the
// lifetime of the connection.
func (s *Server) HandleWS(w http.ResponseWriter, r *http.Request) {
	roomID := RoomIDFromPath(r.URL.Path)

	if !s.originAllowed(r) {
		s.counters.ConnectionsRejected.Add(1)
		slog.Warn("ws handshake rejected", "room", roomID, "origin", r.Header.Get("Origin"), "err", domain.ErrOriginNotAllowed)
		http.Error(w, domain.ErrOriginNotAllowed.Error(), http.StatusForbidden)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// the upgrader has already written the HTTP error
		s.counters.ConnectionsRejected.Add(1)
		slog.Warn("ws upgrade failed", "room", roomID, "remote", r.RemoteAddr, "err", err)
		return
	}

	c := newWsConn(uuid.NewString(), roomID, conn, s.cfg.SendQueueSize, s.cfg.OverflowPolicy, s.counters)
	s.counters.ConnectionsAccepted.Add(1)
	slog.Info("ws connected", "room", roomID, "conn", c.id, "remote", r.RemoteAddr)

	go s.writeLoop(c)

	if data, err := protocol.EncodeConnectionEstablished(roomID, c.id, time.Now()); err == nil {
		_ = c.Send(hub.TextFrame(data))
	}

	room := s.registry.Join(roomID, c, nil)
	reason := s.readLoop(room, c)

	room.Leave(c)
	_ = c.Close()
	s.counters.ConnectionsClosed.Add(1)
	slog.Info("ws disconnected", "room", roomID, "conn", c.id, "reason", reason)
}

// readLoop returns why the connection ended.
func (s *Server) readLoop(room *hub.Room, c *wsConn) error {
	deadline := s.cfg.HeartbeatInterval * time.Duration(s.cfg.MissedHeartbeats+1)

	c.conn.SetReadLimit(s.cfg.MaxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(deadline))
	c.conn.SetPongHandler(func(string) error {
		c.touch()
		return c.conn.SetReadDeadline(time.Now().Add(deadline))
	})

	for {
		mt, data, err := c.conn.ReadMessage()
		if err != nil {
			if c.timedOut.Load() {
				return domain.ErrHeartbeatTimeout
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				slog.Debug("ws read error", "room", c.roomID, "conn", c.id, "err", err)
			}
			var ne interface{ Timeout() bool }
			if errors.As(err, &ne) && ne.Timeout() {
				s.counters.HeartbeatTimeouts.Add(1)
				return domain.ErrHeartbeatTimeout
			}
			return err
		}
		c.touch()
		_ = c.conn.SetReadDeadline(time.Now().Add(deadline))
		s.counters.FramesIn.Add(1)

		switch mt {
		case websocket.BinaryMessage:
			room.RelayOpaque(c, data)
		case websocket.TextMessage:
			msg, err := protocol.Decode(data)
			if err != nil {
				s.counters.ParseErrors.Add(1)
				slog.Warn("ws malformed message dropped", "room", c.roomID, "conn", c.id, "err", err)
				continue
			}
			room.Relay(c, msg)
		}
	}
}

// writeLoop drains the outbound queue and drives the heartbeat. A ping
// goes out immediately and then every HeartbeatInterval; when
// MissedHeartbeats pings in a row go unanswered the socket is closed,
// which ends the read loop and runs the leave path.
func (s *Server) writeLoop(c *wsConn) {
	ticker := time.NewTicker(s.cfg.HeartbeatInterval)
	defer ticker.Stop()

	if !s.ping(c) {
		return
	}

	for {
		select {
		case f := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
			if err := c.conn.WriteMessage(messageType(f.Kind), f.Data); err != nil {
				slog.Debug("ws write failed", "room", c.roomID, "conn", c.id, "err", err)
				_ = c.Close()
				return
			}
		case <-ticker.C:
			if int(c.outstanding.Load()) >= s.cfg.MissedHeartbeats {
				s.counters.HeartbeatTimeouts.Add(1)
				c.timedOut.Store(true)
				slog.Info("ws heartbeat timeout", "room", c.roomID, "conn", c.id,
					"missed", c.outstanding.Load(), "last_seen", c.LastSeen())
				_ = c.Close()
				return
			}
			if !s.ping(c) {
				return
			}
		case <-c.closed:
			return
		}
	}
}

func (s *Server) ping(c *wsConn) bool {
	c.outstanding.Add(1)
	if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(s.cfg.WriteTimeout)); err != nil {
		slog.Debug("ws ping failed", "room", c.roomID, "conn", c.id, "err", err)
		_ = c.Close()
		return false
	}
	return true
}

func messageType(k hub.FrameKind) int {
	if k == hub.FrameBinary {
		return websocket.BinaryMessage
	}
	return websocket.TextMessage
}
