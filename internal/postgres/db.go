package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// The relay's only database traffic is one snapshot insert per metrics
// tick plus the odd /stats/history read, so the pool stays tiny and lets
// idle connections go.
const (
	statsMaxConns        = 2
	statsMaxConnIdleTime = 5 * time.Minute
	statsConnectTimeout  = 5 * time.Second
)

// statsPoolConfig parses dsn and sizes the pool for the stats sink.
func statsPoolConfig(dsn, appName string) (*pgxpool.Config, error) {
	pc, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	pc.MaxConns = statsMaxConns
	pc.MinConns = 0
	pc.MaxConnIdleTime = statsMaxConnIdleTime
	pc.ConnConfig.ConnectTimeout = statsConnectTimeout
	if appName != "" {
		pc.ConnConfig.RuntimeParams["application_name"] = appName
	}
	return pc, nil
}

// OpenStats connects to dsn, makes sure relay_stats exists and returns the
// repository that backs both the metrics sink and /stats/history. Close
// releases the pool.
func OpenStats(ctx context.Context, dsn, appName string) (*StatsRepository, error) {
	pc, err := statsPoolConfig(dsn, appName)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, statsConnectTimeout)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	repo := NewStatsRepository(pool)
	if err := repo.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return repo, nil
}

func (r *StatsRepository) Close() {
	r.db.Close()
}
