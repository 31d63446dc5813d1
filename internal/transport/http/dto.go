package http

import (
	"time"

	"github.com/cwrk-planet/collab-relay/internal/domain"
)

type ErrorResponse struct {
	Error string `json:"error"`
}

type HealthResponse struct {
	Status       string    `json:"status"`
	Server       string    `json:"server"`
	Rooms        int       `json:"rooms"`
	TotalClients int       `json:"totalClients"`
	Timestamp    time.Time `json:"timestamp"`
}

type RoomsResponse struct {
	Items []domain.RoomInfo `json:"items"`
}

type StatsHistoryResponse struct {
	Items      []domain.StatsSnapshot `json:"items"`
	NextCursor string                 `json:"nextCursor,omitempty"`
}

type MemoryResponse struct {
	domain.MemoryStats
	Rooms        int       `json:"rooms"`
	TotalClients int       `json:"totalClients"`
	Timestamp    time.Time `json:"timestamp"`
}
