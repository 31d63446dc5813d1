package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/cwrk-planet/collab-relay/internal/domain"
	"github.com/cwrk-planet/collab-relay/internal/hub"
	"github.com/cwrk-planet/collab-relay/internal/metrics"
	"github.com/cwrk-planet/collab-relay/internal/service"
	httpmw "github.com/cwrk-planet/collab-relay/internal/transport/http/middleware"
)

const DefaultServerName = "collab-relay"

type Handler struct {
	registry   *hub.Registry
	stats      *service.StatsService
	serverName string
}

func NewHandler(registry *hub.Registry, stats *service.StatsService, serverName string) *Handler {
	if serverName == "" {
		serverName = DefaultServerName
	}
	return &Handler{
		registry:   registry,
		stats:      stats,
		serverName: serverName,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// GET / and GET /health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	rooms, clients := h.registry.Stats()
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:       "running",
		Server:       h.serverName,
		Rooms:        rooms,
		TotalClients: clients,
		Timestamp:    time.Now().UTC(),
	})
}

// OPTIONS / and OPTIONS /health
func (h *Handler) Preflight(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// GET /rooms
func (h *Handler) Rooms(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, RoomsResponse{Items: h.registry.Rooms()})
}

// GET /stats
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.stats.Current())
}

// GET /stats/history?instance=&limit=&cursor=
func (h *Handler) StatsHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := 20
	if s := q.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid_limit"})
			return
		}
		limit = n
	}

	items, next, err := h.stats.History(r.Context(), q.Get("instance"), limit, q.Get("cursor"))
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrPersistenceOff):
			writeJSON(w, http.StatusNotImplemented, ErrorResponse{Error: err.Error()})
		case errors.Is(err, domain.ErrInvalidStatsQuery):
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid_cursor"})
		default:
			httpmw.L(r.Context()).Error("handler.StatsHistory", "err", err)
			writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
		}
		return
	}
	if items == nil {
		items = []domain.StatsSnapshot{}
	}
	writeJSON(w, http.StatusOK, StatsHistoryResponse{Items: items, NextCursor: next})
}

// GET /debug/memory forces a GC first so that samples taken between load
// cycles are comparable.
func (h *Handler) DebugMemory(w http.ResponseWriter, r *http.Request) {
	mem := metrics.ReadMemoryAfterGC()
	rooms, clients := h.registry.Stats()
	writeJSON(w, http.StatusOK, MemoryResponse{
		MemoryStats:  mem,
		Rooms:        rooms,
		TotalClients: clients,
		Timestamp:    time.Now().UTC(),
	})
}

func (h *Handler) NotFound(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "not found"})
}
