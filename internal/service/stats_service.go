package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/cwrk-planet/collab-relay/internal/domain"
	"github.com/cwrk-planet/collab-relay/internal/postgres"
)

type StatsHistory interface {
	List(ctx context.Context, instance string, limit int, cursor string) ([]domain.StatsSnapshot, string, error)
}

type LiveStats interface {
	Collect() domain.StatsSnapshot
}

// StatsService answers the /stats endpoints: the live snapshot from the
// reporter and, when Postgres is configured, the persisted history.
type StatsService struct {
	live    LiveStats
	history StatsHistory
}

// NewStatsService accepts a nil history when persistence is off.
func NewStatsService(live LiveStats, history StatsHistory) *StatsService {
	return &StatsService{live: live, history: history}
}

func (s *StatsService) Current() domain.StatsSnapshot {
	return s.live.Collect()
}

// History returns persisted snapshots newest first with cursor pagination.
func (s *StatsService) History(ctx context.Context, instance string, limit int, cursor string) ([]domain.StatsSnapshot, string, error) {
	if s.history == nil {
		return nil, "", domain.ErrPersistenceOff
	}
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}

	items, next, err := s.history.List(ctx, instance, limit, cursor)
	if err != nil {
		if errors.Is(err, postgres.ErrInvalidCursor) {
			return nil, "", fmt.Errorf("%w: %v", domain.ErrInvalidStatsQuery, err)
		}
		return nil, "", fmt.Errorf("statsRepo.List: %w", err)
	}
	return items, next, nil
}
