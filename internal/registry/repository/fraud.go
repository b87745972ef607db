package repository

import (
	"context"
	"time"

	"github.com/agoramesh/agora/internal/registry/model"
	"github.com/jackc/pgx/v5/pgxpool"
)

// FraudRepository persists fraud-detection log entries in PostgreSQL.
type FraudRepository struct {
	db *pgxpool.Pool
}

// NewFraudRepository creates a new FraudRepository.
func NewFraudRepository(db *pgxpool.Pool) *FraudRepository {
	return &FraudRepository{db: db}
}

// Insert appends a fraud-detection entry.
func (r *FraudRepository) Insert(ctx context.Context, fd *model.FraudDetection) error {
	query := `
		INSERT INTO fraud_detections (agent_id, consumer_id, fraud_type, severity, details, detected_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`

	fd.DetectedAt = time.Now().UTC()
	return r.db.QueryRow(ctx, query,
		fd.AgentID, fd.ConsumerID, fd.Type, fd.Severity, fd.Details, fd.DetectedAt,
	).Scan(&fd.ID)
}

// CountForAgent counts all fraud entries logged against an agent.
func (r *FraudRepository) CountForAgent(ctx context.Context, agentID string) (int64, error) {
	query := `SELECT COUNT(*) FROM fraud_detections WHERE agent_id = $1`
	var n int64
	if err := r.db.QueryRow(ctx, query, agentID).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// CountForAgentByType counts an agent's fraud entries of one type.
func (r *FraudRepository) CountForAgentByType(ctx context.Context, agentID string, fraudType model.FraudType) (int64, error) {
	query := `SELECT COUNT(*) FROM fraud_detections WHERE agent_id = $1 AND fraud_type = $2`
	var n int64
	if err := r.db.QueryRow(ctx, query, agentID, fraudType).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// CountByAgents returns per-agent fraud totals for a batch of agents.
// Agents with no entries are absent from the map.
func (r *FraudRepository) CountByAgents(ctx context.Context, agentIDs []string) (map[string]int64, error) {
	if len(agentIDs) == 0 {
		return map[string]int64{}, nil
	}
	query := `
		SELECT agent_id, COUNT(*)
		FROM fraud_detections
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

// DeleteOlderThan removes fraud entries detected before the cutoff,
// returning the number of rows deleted. Backs the 30-day retention sweep.
func (r *FraudRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM fraud_detections WHERE detected_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
