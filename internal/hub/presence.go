package hub

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/cwrk-planet/collab-relay/internal/domain"
)

type presenceEntry struct {
	rec domain.PresenceRecord
	seq uint64
}

// PresenceTracker is the per-room user id -> presence table. It is not
// safe for concurrent use on its own; Room guards it with its mutex.
type PresenceTracker struct {
	records map[domain.UserID]*presenceEntry
	seq     uint64
}

func NewPresenceTracker() *PresenceTracker {
	return &PresenceTracker{records: make(map[domain.UserID]*presenceEntry)}
}

// Upsert replaces any previous record for the same user (last write wins)
// and moves it to the end of the list. changed is false when name and
// color are unchanged, so callers can skip the user-list broadcast.
func (t *PresenceTracker) Upsert(rec domain.PresenceRecord) (changed bool) {
	t.seq++
	prev, ok := t.records[rec.UserID]
	if ok && rec.Cursor == nil {
		rec.Cursor = prev.rec.Cursor
	}
	t.records[rec.UserID] = &presenceEntry{rec: rec, seq: t.seq}
	return !ok || !prev.rec.SameIdentity(rec)
}

func (t *PresenceTracker) UpdateCursor(id domain.UserID, cursor json.RawMessage, at time.Time) bool {
	e, ok := t.records[id]
	if !ok {
		return false
	}
	e.rec.Cursor = cursor
	e.rec.UpdatedAt = at
	return true
}

func (t *PresenceTracker) Remove(id domain.UserID) bool {
	if _, ok := t.records[id]; !ok {
		return false
	}
	delete(t.records, id)
	return true
}

func (t *PresenceTracker) Get(id domain.UserID) (domain.PresenceRecord, bool) {
	e, ok := t.records[id]
	if !ok {
		return domain.PresenceRecord{}, false
	}
	return e.rec, true
}

func (t *PresenceTracker) Len() int { return len(t.records) }

// List returns a copy ordered by last upsert.
func (t *PresenceTracker) List() []domain.PresenceRecord {
	entries := make([]*presenceEntry, 0, len(t.records))
	for _, e := range t.records {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })

	out := make([]domain.PresenceRecord, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.rec)
	}
	return out
}

func (t *PresenceTracker) reset() {
	clear(t.records)
}
