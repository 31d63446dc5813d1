package hub

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/cwrk-planet/collab-relay/internal/domain"
	"github.com/cwrk-planet/collab-relay/internal/metrics"
)

// Registry maps room id -> Room. Rooms are created on first join and
// removed by the room itself when its last member leaves.
type Registry struct {
	mu       sync.RWMutex
	rooms    map[string]*Room
	counters *metrics.Counters
}

func NewRegistry(counters *metrics.Counters) *Registry {
	if counters == nil {
		counters = metrics.NewCounters()
	}
	return &Registry{
		rooms:    make(map[string]*Room),
		counters: counters,
	}
}

// GetOrCreate never fails; a missing room is created.
func (g *Registry) GetOrCreate(roomID string) *Room {
	g.mu.RLock()
	r, ok := g.rooms[roomID]
	g.mu.RUnlock()
	if ok {
		return r
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if r, ok := g.rooms[roomID]; ok {
		return r
	}
	r = newRoom(roomID, g.counters, g.remove)
	g.rooms[roomID] = r
	slog.Info("room created", "room", roomID)
	return r
}

// Join adds p to the room, creating it if needed. If the instance found
// was closed by a concurrent last leave, it is unlinked and the join is
// retried on a new one, so both sides of the race end up in the same room.
func (g *Registry) Join(roomID string, p Peer, initial *domain.PresenceRecord) *Room {
	for {
		r := g.GetOrCreate(roomID)
		if r.join(p, initial) {
			return r
		}
		g.remove(r)
	}
}

// remove unlinks r only if the map still points at that instance.
func (g *Registry) remove(r *Room) {
	g.mu.Lock()
	cur, ok := g.rooms[r.id]
	if ok && cur == r {
		delete(g.rooms, r.id)
	}
	g.mu.Unlock()

	if ok && cur == r {
		slog.Info("room removed", "room", r.id)
	}
}

func (g *Registry) Room(roomID string) (*Room, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	r, ok := g.rooms[roomID]
	return r, ok
}

func (g *Registry) list() []*Room {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]*Room, 0, len(g.rooms))
	for _, r := range g.rooms {
		out = append(out, r)
	}
	return out
}

// Stats returns the number of rooms and the number of connections across
// all of them.
func (g *Registry) Stats() (rooms, clients int) {
	list := g.list()
	for _, r := range list {
		clients += r.Members()
	}
	return len(list), clients
}

// CloseAll closes every member connection. Their read loops then run the
// normal leave path, so rooms drain and unlink themselves.
func (g *Registry) CloseAll() int {
	n := 0
	for _, r := range g.list() {
		r.mu.Lock()
		peers := r.peersLocked("")
		r.mu.Unlock()
		for _, p := range peers {
			if err := p.Close(); err != nil {
				slog.Debug("close peer on shutdown", "room", r.id, "conn", p.ID(), "err", err)
			}
			n++
		}
	}
	return n
}

func (g *Registry) Rooms() []domain.RoomInfo {
	list := g.list()
	out := make([]domain.RoomInfo, 0, len(list))
	for _, r := range list {
		out = append(out, r.Info())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
