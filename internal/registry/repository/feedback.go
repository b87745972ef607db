package repository

import (
	"context"
	"time"

	"github.com/agoramesh/agora/internal/registry/model"
	"github.com/jackc/pgx/v5/pgxpool"
)

// FeedbackRepository persists feedback events in PostgreSQL. Rows are
// append-only; the counting queries back the rate limiter and the fraud
// analyzer.
type FeedbackRepository struct {
	db *pgxpool.Pool
}

// NewFeedbackRepository creates a new FeedbackRepository.
func NewFeedbackRepository(db *pgxpool.Pool) *FeedbackRepository {
	return &FeedbackRepository{db: db}
}

// Insert appends a feedback event.
func (r *FeedbackRepository) Insert(ctx context.Context, fb *model.Feedback) error {
	query := `
		INSERT INTO feedback (agent_id, consumer_id, success, latency_ms, rating, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`

	fb.CreatedAt = time.Now().UTC()
	return r.db.QueryRow(ctx, query,
		fb.AgentID, fb.ConsumerID, fb.Success, fb.LatencyMS, fb.Rating, fb.CreatedAt,
	).Scan(&fb.ID)
}

// CountByConsumerSince counts feedbacks a consumer submitted to any agent
// after the given instant. Backs the global per-consumer rate limit.
func (r *FeedbackRepository) CountByConsumerSince(ctx context.Context, consumerID string, since time.Time) (int64, error) {
	query := `SELECT COUNT(*) FROM feedback WHERE consumer_id = $1 AND created_at > $2`
	var n int64
	if err := r.db.QueryRow(ctx, query, consumerID, since).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// CountPairSince counts feedbacks from one consumer to one agent after the
// given instant. Backs the spam check.
func (r *FeedbackRepository) CountPairSince(ctx context.Context, agentID, consumerID string, since time.Time) (int64, error) {
	query := `SELECT COUNT(*) FROM feedback WHERE agent_id = $1 AND consumer_id = $2 AND created_at > $3`
	var n int64
	if err := r.db.QueryRow(ctx, query, agentID, consumerID, since).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// CountPair counts all-time feedbacks from one consumer to one agent.
// Backs the decreasing-weight rule.
func (r *FeedbackRepository) CountPair(ctx context.Context, agentID, consumerID string) (int64, error) {
	query := `SELECT COUNT(*) FROM feedback WHERE agent_id = $1 AND consumer_id = $2`
	var n int64
	if err := r.db.QueryRow(ctx, query, agentID, consumerID).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// CountForAgent counts all feedbacks an agent has received.
func (r *FeedbackRepository) CountForAgent(ctx context.Context, agentID string) (int64, error) {
	query := `SELECT COUNT(*) FROM feedback WHERE agent_id = $1`
	var n int64
	if err := r.db.QueryRow(ctx, query, agentID).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// CountExtremeForAgent counts an agent's feedbacks whose rating sits at
// either pole. Backs the rating-pattern audit.
func (r *FeedbackRepository) CountExtremeForAgent(ctx context.Context, agentID string) (int64, error) {
	query := `SELECT COUNT(*) FROM feedback WHERE agent_id = $1 AND rating IN (0, 1)`
	var n int64
	if err := r.db.QueryRow(ctx, query, agentID).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// CountByAgents returns per-agent feedback totals for a batch of agents.
// Agents with no feedback are absent from the map.
func (r *FeedbackRepository) CountByAgents(ctx context.Context, agentIDs []string) (map[string]int64, error) {
	if len(agentIDs) == 0 {
		return map[string]int64{}, nil
	}
	query := `
		SELECT agent_id, COUNT(*)
		FROM feedback
		WHERE agent_id = ANY($1)
		GROUP BY agent_id`

	rows, err := r.db.Query(ctx, query, agentIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int64, len(agentIDs))
	for rows.Next() {
		var (
			id string
			n  int64
		)
		if err := rows.Scan(&id, &n); err != nil {
			return nil, err
		}
		counts[id] = n
	}
	return counts, rows.Err()
}
