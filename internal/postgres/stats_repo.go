package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cwrk-planet/collab-relay/internal/domain"

	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
CREATE TABLE IF NOT EXISTS relay_stats (
	id        UUID PRIMARY KEY,
	instance  TEXT        NOT NULL,
	rooms     INTEGER     NOT NULL,
	clients   INTEGER     NOT NULL,
	counters  JSONB       NOT NULL,
	memory    JSONB       NOT NULL,
	taken_at  TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS relay_stats_taken_at_idx ON relay_stats (taken_at DESC, id DESC);`

// StatsRepository stores the periodic relay snapshots. It implements
// metrics.Sink.
type StatsRepository struct {
	db *pgxpool.Pool
}

func NewStatsRepository(db *pgxpool.Pool) *StatsRepository {
	return &StatsRepository{db: db}
}

func (r *StatsRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure relay_stats schema: %w", err)
	}
	return nil
}

func (r *StatsRepository) Write(ctx context.Context, s domain.StatsSnapshot) error {
	counters, err := json.Marshal(s.Counters)
	if err != nil {
		return fmt.Errorf("marshal counters: %w", err)
	}
	memory, err := json.Marshal(s.Memory)
	if err != nil {
		return fmt.Errorf("marshal memory: %w", err)
	}

	query := `
		INSERT INTO relay_stats (id, instance, rooms, clients, counters, memory, taken_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING`
	_, err = r.db.Exec(ctx, query, s.ID, s.Instance, s.Rooms, s.Clients, counters, memory, s.TakenAt)
	if err != nil {
		return fmt.Errorf("insert relay_stats: %w", err)
	}
	return nil
}

// List returns snapshots newest first. An empty instance lists all of them.
func (r *StatsRepository) List(ctx context.Context, instance string, limit int, cursorStr string) ([]domain.StatsSnapshot, string, error) {
	cur, err := DecodeCursor(cursorStr)
	if err != nil {
		return nil, "", err
	}

	query := `
		SELECT id, instance, rooms, clients, counters, memory, taken_at
		FROM relay_stats
		WHERE ($1 = '' OR instance = $1)
		  AND ($2::timestamptz IS NULL OR taken_at < $2
		       OR (taken_at = $2 AND id < $3::uuid))
		ORDER BY taken_at DESC, id DESC
		LIMIT $4`

	var takenAt any
	var id any
	if cur != nil {
		takenAt = cur.TakenAt
		id = cur.ID
	}

	rows, err := r.db.Query(ctx, query, instance, takenAt, id, limit)
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()

	var out []domain.StatsSnapshot
	for rows.Next() {
		var (
			s        domain.StatsSnapshot
			counters []byte
			memory   []byte
		)
		if err := rows.Scan(&s.ID, &s.Instance, &s.Rooms, &s.Clients, &counters, &memory, &s.TakenAt); err != nil {
			return nil, "", err
		}
		if err := json.Unmarshal(counters, &s.Counters); err != nil {
			return nil, "", fmt.Errorf("decode counters: %w", err)
		}
		if err := json.Unmarshal(memory, &s.Memory); err != nil {
			return nil, "", fmt.Errorf("decode memory: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, "", err
	}

	var nextCursor string
	if len(out) == limit {
		last := out[len(out)-1]
		nextCursor, err = EncodeCursor(Cursor{TakenAt: last.TakenAt, ID: last.ID})
		if err != nil {
			return nil, "", fmt.Errorf("encode next cursor: %w", err)
		}
	}

	return out, nextCursor, nil
}
