package hub

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/cwrk-planet/collab-relay/internal/domain"
	"github.com/cwrk-planet/collab-relay/internal/metrics"
	"github.com/cwrk-planet/collab-relay/internal/protocol"
)

type member struct {
	peer     Peer
	userID   domain.UserID
	joinedAt time.Time
}

// Room is the broadcast domain of one page. Membership, presence and the
// components snapshot are guarded by mu; sends always happen outside it.
type Room struct {
	id        string
	createdAt time.Time
	counters  *metrics.Counters
	onEmpty   func(*Room)

	mu       sync.Mutex
	members  map[string]*member
	presence *PresenceTracker
	snapshot json.RawMessage
	closed   bool
}

func newRoom(id string, counters *metrics.Counters, onEmpty func(*Room)) *Room {
	return &Room{
		id:        id,
		createdAt: time.Now(),
		counters:  counters,
		onEmpty:   onEmpty,
		members:   make(map[string]*member),
		presence:  NewPresenceTracker(),
	}
}

func (r *Room) ID() string           { return r.id }
func (r *Room) CreatedAt() time.Time { return r.createdAt }

func (r *Room) Members() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.members)
}

func (r *Room) Users() []domain.PresenceRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.presence.List()
}

// Snapshot returns the last components array seen in this room, or nil.
func (r *Room) Snapshot() json.RawMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshot
}

func (r *Room) Info() domain.RoomInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	return domain.RoomInfo{
		ID:        r.id,
		Members:   len(r.members),
		Users:     r.presence.List(),
		HasState:  r.snapshot != nil,
		CreatedAt: r.createdAt,
	}
}

// join reports false when the room has already been torn down; the
// registry then retries against a fresh instance.
func (r *Room) join(p Peer, initial *domain.PresenceRecord) bool {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return false
	}
	m := &member{peer: p, joinedAt: time.Now()}
	r.members[p.ID()] = m

	var (
		users   []domain.PresenceRecord
		targets []Peer
	)
	if initial != nil {
		m.userID = initial.UserID
		r.presence.Upsert(*initial)
		users = r.presence.List()
		targets = r.peersLocked("")
	}
	count := len(r.members)
	r.mu.Unlock()

	slog.Debug("room join", "room", r.id, "conn", p.ID(), "members", count)
	if initial != nil {
		r.sendUserList(users, targets)
	}
	return true
}

// Leave is idempotent. The last member leaving closes the room and hands
// it back to the registry; otherwise the others get a user-list only when
// the leaver's user id disappeared from presence.
func (r *Room) Leave(p Peer) {
	r.mu.Lock()
	m, ok := r.members[p.ID()]
	if !ok {
		r.mu.Unlock()
		return
	}
	delete(r.members, p.ID())

	changed := false
	if m.userID != "" && !r.hasUserLocked(m.userID) {
		changed = r.presence.Remove(m.userID)
	}

	empty := len(r.members) == 0
	var (
		users   []domain.PresenceRecord
		targets []Peer
	)
	if empty {
		r.closed = true
		r.snapshot = nil
		r.presence.reset()
	} else if changed {
		users = r.presence.List()
		targets = r.peersLocked("")
	}
	count := len(r.members)
	r.mu.Unlock()

	slog.Debug("room leave", "room", r.id, "conn", p.ID(), "members", count)
	if empty {
		if r.onEmpty != nil {
			r.onEmpty(r)
		}
		return
	}
	if changed {
		r.sendUserList(users, targets)
	}
}

// RelayOpaque forwards a binary sync delta byte-for-byte to every other
// member. The relay never looks inside it.
func (r *Room) RelayOpaque(from Peer, data []byte) {
	r.mu.Lock()
	if _, ok := r.members[from.ID()]; !ok {
		r.mu.Unlock()
		return
	}
	targets := r.peersLocked(from.ID())
	r.mu.Unlock()

	r.counters.OpaqueBytesRelayed.Add(int64(len(data)))
	r.fanout(targets, BinaryFrame(data))
}

// Relay handles one decoded control message from a member.
func (r *Room) Relay(from Peer, msg protocol.Message) {
	switch m := msg.(type) {
	case protocol.Ping:
		r.pong(from, m)
	case protocol.UserJoin:
		r.userJoin(from, m)
	case protocol.ComponentsUpdate:
		r.componentsUpdate(from, m)
	case protocol.CursorUpdate:
		r.cursorUpdate(from, m)
	default:
		r.counters.DroppedUnknown.Add(1)
		slog.Warn("room: unknown message type dropped", "room", r.id, "conn", from.ID(), "type", msg.Type())
	}
}

func (r *Room) pong(from Peer, m protocol.Ping) {
	data, err := protocol.EncodePong(m.Timestamp, time.Now())
	if err != nil {
		slog.Error("room: encode pong", "room", r.id, "err", err)
		return
	}
	if err := from.Send(TextFrame(data)); err != nil {
		r.evict(from, err)
	}
}

func (r *Room) userJoin(from Peer, m protocol.UserJoin) {
	rec := domain.NewPresence(m.User, time.Now())

	r.mu.Lock()
	mem, ok := r.members[from.ID()]
	if !ok {
		r.mu.Unlock()
		return
	}
	prev := mem.userID
	mem.userID = rec.UserID
	changed := false
	if prev != "" && prev != rec.UserID && !r.hasUserLocked(prev) {
		changed = r.presence.Remove(prev)
	}
	if r.presence.Upsert(rec) {
		changed = true
	}
	users := r.presence.List()
	var targets []Peer
	if changed {
		targets = r.peersLocked("")
	} else {
		targets = []Peer{from}
	}
	snapshot := r.snapshot
	r.mu.Unlock()

	slog.Info("room: user joined", "room", r.id, "conn", from.ID(), "user", rec.UserID, "name", rec.Name)
	r.sendUserList(users, targets)

	if snapshot != nil {
		data, err := protocol.EncodeComponentsUpdate(snapshot, "")
		if err != nil {
			slog.Error("room: encode snapshot", "room", r.id, "err", err)
			return
		}
		if err := from.Send(TextFrame(data)); err != nil {
			r.evict(from, err)
		}
	}
}

func (r *Room) componentsUpdate(from Peer, m protocol.ComponentsUpdate) {
	r.mu.Lock()
	mem, ok := r.members[from.ID()]
	if !ok {
		r.mu.Unlock()
		return
	}
	userID := m.UserID
	if userID == "" {
		userID = mem.userID
	}
	r.snapshot = m.Components
	targets := r.peersLocked(from.ID())
	r.mu.Unlock()

	data, err := protocol.EncodeComponentsUpdate(m.Components, userID)
	if err != nil {
		slog.Error("room: encode components-update", "room", r.id, "err", err)
		return
	}
	r.fanout(targets, TextFrame(data))
}

func (r *Room) cursorUpdate(from Peer, m protocol.CursorUpdate) {
	r.mu.Lock()
	mem, ok := r.members[from.ID()]
	if !ok {
		r.mu.Unlock()
		return
	}
	userID := m.UserID
	if userID == "" {
		userID = mem.userID
	}
	if mem.userID != "" {
		r.presence.UpdateCursor(mem.userID, m.Cursor, time.Now())
	}
	targets := r.peersLocked(from.ID())
	r.mu.Unlock()

	data, err := protocol.EncodeCursorUpdate(m.Cursor, userID)
	if err != nil {
		slog.Error("room: encode cursor-update", "room", r.id, "err", err)
		return
	}
	r.fanout(targets, TextFrame(data))
}

func (r *Room) sendUserList(users []domain.PresenceRecord, targets []Peer) {
	if len(targets) == 0 {
		return
	}
	data, err := protocol.EncodeUserList(users)
	if err != nil {
		slog.Error("room: encode user-list", "room", r.id, "err", err)
		return
	}
	r.fanout(targets, TextFrame(data))
}

// fanout sends to a snapshot of members taken under the lock. Failed
// recipients are collected and evicted only after the loop, so one dead
// peer never stops delivery to the rest.
func (r *Room) fanout(targets []Peer, f Frame) {
	var failed []Peer
	var errs []error
	for _, p := range targets {
		if err := p.Send(f); err != nil {
			failed = append(failed, p)
			errs = append(errs, err)
			continue
		}
		r.counters.MessagesRelayed.Add(1)
	}
	for i, p := range failed {
		r.evict(p, errs[i])
	}
}

func (r *Room) evict(p Peer, cause error) {
	r.counters.SendFailures.Add(1)
	slog.Warn("room: evicting peer after send failure", "room", r.id, "conn", p.ID(), "err", cause)
	r.Leave(p)
	if err := p.Close(); err != nil {
		slog.Debug("room: close evicted peer", "room", r.id, "conn", p.ID(), "err", err)
	}
}

func (r *Room) peersLocked(except string) []Peer {
	out := make([]Peer, 0, len(r.members))
	for id, m := range r.members {
		if id == except {
			continue
		}
		out = append(out, m.peer)
	}
	return out
}

func (r *Room) hasUserLocked(id domain.UserID) bool {
	for _, m := range r.members {
		if m.userID == id {
			return true
		}
	}
	return false
}
