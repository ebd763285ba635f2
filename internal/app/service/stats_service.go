package service

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Stats is the aggregate view surfaced to admins. Counts only; no engine
// logic beyond read queries.
type Stats struct {
	TotalLinks       int64
	ActiveLinks      int64
	TotalClicks      int64
	TotalUsers       int64
	TotalRedemptions int64
	BroadcastsSent   int64
}

// StatsService answers aggregate count queries straight off the pgx pool,
// bypassing the ORM for plain scans.
type StatsService struct {
	pool *pgxpool.Pool
}

// NewStatsService returns a stats reader backed by the given pool.
func NewStatsService(pool *pgxpool.Pool) *StatsService {
	return &StatsService{pool: pool}
}

// Collect gathers all aggregate counts.
func (s *StatsService) Collect(ctx context.Context) (*Stats, error) {
	const query = `
		SELECT
			(SELECT COUNT(*) FROM links),
			(SELECT COUNT(*) FROM links WHERE active),
			(SELECT COALESCE(SUM(clicks), 0) FROM links),
			(SELECT COUNT(*) FROM users),
			(SELECT COUNT(*) FROM redeem_events),
			(SELECT COUNT(*) FROM broadcast_records)`

	var st Stats
	err := s.pool.QueryRow(ctx, query).Scan(
		&st.TotalLinks,
		&st.ActiveLinks,
		&st.TotalClicks,
		&st.TotalUsers,
		&st.TotalRedemptions,
		&st.BroadcastsSent,
	)
	if err != nil {
		return nil, fmt.Errorf("collect stats: %w", err)
	}
	return &st, nil
}
