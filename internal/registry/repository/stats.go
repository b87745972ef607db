package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/agoramesh/agora/internal/registry/model"
	"github.com/jackc/pgx/v5/pgxpool"
)

const statsColumns = `
	agent_id, calls_total, calls_success, avg_latency_ms, avg_rating, last_feedback_at`

// StatsRepository persists per-agent quality counters in PostgreSQL.
type StatsRepository struct {
	db *pgxpool.Pool
}

// NewStatsRepository creates a new StatsRepository.
func NewStatsRepository(db *pgxpool.Pool) *StatsRepository {
	return &StatsRepository{db: db}
}

// Ensure creates an empty stats row for the agent if none exists yet.
// Called at registration so every agent has a row from day one.
func (r *StatsRepository) Ensure(ctx context.Context, agentID string) error {
	query := `
		INSERT INTO agent_stats (agent_id)
		VALUES ($1)
		ON CONFLICT (agent_id) DO NOTHING`
	_, err := r.db.Exec(ctx, query, agentID)
	return err
}

// Get retrieves the stats row for one agent.
func (r *StatsRepository) Get(ctx context.Context, agentID string) (*model.AgentStats, error) {
	query := `SELECT` + statsColumns + ` FROM agent_stats WHERE agent_id = $1`

	rows, err := r.db.Query(ctx, query, agentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, ErrNotFound
	}

	var s model.AgentStats
	err = rows.Scan(
		&s.AgentID, &s.CallsTotal, &s.CallsSuccess,
		&s.AvgLatencyMS, &s.AvgRating, &s.LastFeedbackAt,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// GetBatch returns the stats rows for a batch of agents, keyed by agent id.
// Agents without a row are absent from the map.
func (r *StatsRepository) GetBatch(ctx context.Context, agentIDs []string) (map[string]*model.AgentStats, error) {
	if len(agentIDs) == 0 {
		return map[string]*model.AgentStats{}, nil
	}
	query := `SELECT` + statsColumns + ` FROM agent_stats WHERE agent_id = ANY($1)`

	rows, err := r.db.Query(ctx, query, agentIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := make(map[string]*model.AgentStats, len(agentIDs))
	for rows.Next() {
		var s model.AgentStats
		err := rows.Scan(
			&s.AgentID, &s.CallsTotal, &s.CallsSuccess,
			&s.AvgLatencyMS, &s.AvgRating, &s.LastFeedbackAt,
		)
		if err != nil {
			return nil, err
		}
		stats[s.AgentID] = &s
	}
	return stats, rows.Err()
}

// ApplyFeedback folds one feedback event into the agent's running
// counters. weightedRating is the submitted rating already multiplied by
// the anti-fraud weight; latency is folded in unweighted.
//
// The row is locked FOR UPDATE for the duration of the transaction so
// concurrent feedback for the same agent serializes and the running means
// stay exact.
func (r *StatsRepository) ApplyFeedback(ctx context.Context, agentID string, success bool, latencyMS, weightedRating float64) (*model.AgentStats, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	now := time.Now().UTC()
	s := model.AgentStats{AgentID: agentID, LastFeedbackAt: &now}

	var existing bool
	query := `
		SELECT calls_total, calls_success, avg_latency_ms, avg_rating
		FROM agent_stats
		WHERE agent_id = $1
		FOR UPDATE`
	rows, err := tx.Query(ctx, query, agentID)
	if err != nil {
		return nil, fmt.Errorf("lock stats row: %w", err)
	}
	if rows.Next() {
		existing = true
		err = rows.Scan(&s.CallsTotal, &s.CallsSuccess, &s.AvgLatencyMS, &s.AvgRating)
	}
	rows.Close()
	if err != nil {
		return nil, fmt.Errorf("read stats row: %w", err)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read stats row: %w", err)
	}

	s.CallsTotal++
	if success {
		s.CallsSuccess++
	}
	s.AvgLatencyMS += (latencyMS - s.AvgLatencyMS) / float64(s.CallsTotal)
	s.AvgRating += (weightedRating - s.AvgRating) / float64(s.CallsTotal)

	if existing {
		update := `
			UPDATE agent_stats SET
				calls_total      = $2,
				calls_success    = $3,
				avg_latency_ms   = $4,
				avg_rating       = $5,
				last_feedback_at = $6,
				updated_at       = $6
			WHERE agent_id = $1`
		_, err = tx.Exec(ctx, update,
			agentID, s.CallsTotal, s.CallsSuccess, s.AvgLatencyMS, s.AvgRating, now,
		)
	} else {
		insert := `
			INSERT INTO agent_stats (
				agent_id, calls_total, calls_success, avg_latency_ms, avg_rating, last_feedback_at
			) VALUES ($1, $2, $3, $4, $5, $6)`
		_, err = tx.Exec(ctx, insert,
			agentID, s.CallsTotal, s.CallsSuccess, s.AvgLatencyMS, s.AvgRating, now,
		)
	}
	if err != nil {
		return nil, fmt.Errorf("write stats row: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit stats update: %w", err)
	}
	return &s, nil
}
