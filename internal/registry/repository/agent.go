package repository

import (
	"context"
	"errors"
	"time"

	"github.com/agoramesh/agora/internal/registry/model"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

const agentColumns = `
	id, name, endpoint, description, intents, tasks, tags, categories,
	location_scope, languages, version, input_schema, meta, caller_id,
	status, quarantine_reason, quarantine_at, created_at, updated_at`

// AgentRepository persists agents in PostgreSQL.
type AgentRepository struct {
	db *pgxpool.Pool
}

// NewAgentRepository creates a new AgentRepository.
func NewAgentRepository(db *pgxpool.Pool) *AgentRepository {
	return &AgentRepository{db: db}
}

// Upsert inserts the agent or, when the id already exists, overwrites every
// payload field including the owning caller_id. Status and the quarantine
// columns are never touched here; re-registering does not clear a penalty.
func (r *AgentRepository) Upsert(ctx context.Context, agent *model.Agent) error {
	now := time.Now().UTC()
	agent.UpdatedAt = now

	query := `
		INSERT INTO agents (
			id, name, endpoint, description, intents, tasks, tags, categories,
			location_scope, languages, version, input_schema, meta, caller_id,
			created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8,
			$9, $10, $11, $12, $13, $14,
			$15, $16
		)
		ON CONFLICT (id) DO UPDATE SET
			name           = EXCLUDED.name,
			endpoint       = EXCLUDED.endpoint,
			description    = EXCLUDED.description,
			intents        = EXCLUDED.intents,
			tasks          = EXCLUDED.tasks,
			tags           = EXCLUDED.tags,
			categories     = EXCLUDED.categories,
			location_scope = EXCLUDED.location_scope,
			languages      = EXCLUDED.languages,
			version        = EXCLUDED.version,
			input_schema   = EXCLUDED.input_schema,
			meta           = EXCLUDED.meta,
			caller_id      = EXCLUDED.caller_id,
			updated_at     = EXCLUDED.updated_at`

	_, err := r.db.Exec(ctx, query,
		agent.ID, agent.Name, agent.Endpoint, agent.Description,
		agent.Intents, agent.Tasks, agent.Tags, agent.Categories,
		agent.LocationScope, agent.Languages, agent.Version,
		agent.InputSchema, agent.Meta, agent.CallerID,
		now, now,
	)
	return err
}

// Get retrieves an agent by id.
func (r *AgentRepository) Get(ctx context.Context, id string) (*model.Agent, error) {
	query := `SELECT` + agentColumns + ` FROM agents WHERE id = $1`
	return r.scanOne(ctx, query, id)
}

// SearchPrimary runs the first pass of the candidate pipeline: intent
// filter (array overlap, or exact containment when a single intent was
// requested), category overlap, and an optional language filter.
func (r *AgentRepository) SearchPrimary(ctx context.Context, intents, categories []string, language string) ([]*model.Agent, error) {
	switch len(intents) {
	case 0:
		query := `
			SELECT` + agentColumns + `
			FROM agents
			WHERE categories && $1
			  AND ($2 = '' OR $2 = ANY(languages))`
		return r.scanAll(ctx, query, categories, language)
	case 1:
		query := `
			SELECT` + agentColumns + `
			FROM agents
			WHERE $1 = ANY(intents)
			  AND categories && $2
			  AND ($3 = '' OR $3 = ANY(languages))`
		return r.scanAll(ctx, query, intents[0], categories, language)
	default:
		query := `
			SELECT` + agentColumns + `
			FROM agents
			WHERE intents && $1
			  AND categories && $2
			  AND ($3 = '' OR $3 = ANY(languages))`
		return r.scanAll(ctx, query, intents, categories, language)
	}
}

// SearchByIntentLanguage is the second, looser pass: intent and language
// only, no category filter.
func (r *AgentRepository) SearchByIntentLanguage(ctx context.Context, intents []string, language string) ([]*model.Agent, error) {
	if len(intents) == 1 {
		query := `
			SELECT` + agentColumns + `
			FROM agents
			WHERE $1 = ANY(intents)
			  AND ($2 = '' OR $2 = ANY(languages))`
		return r.scanAll(ctx, query, intents[0], language)
	}
	query := `
		SELECT` + agentColumns + `
		FROM agents
		WHERE intents && $1
		  AND ($2 = '' OR $2 = ANY(languages))`
	return r.scanAll(ctx, query, intents, language)
}

// SearchFuzzy is the third pass: trigram similarity between the requested
// intent and the agent's comma-joined intent list, keeping matches ≥ 0.2.
func (r *AgentRepository) SearchFuzzy(ctx context.Context, intent string, limit int) ([]*model.Agent, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT` + agentColumns + `
		FROM agents
		WHERE similarity(array_to_string(intents, ','), $1) >= 0.2
		ORDER BY similarity(array_to_string(intents, ','), $1) DESC
		LIMIT $2`
	return r.scanAll(ctx, query, intent, limit)
}

// ListAll returns every agent, newest first.
func (r *AgentRepository) ListAll(ctx context.Context) ([]*model.Agent, error) {
	query := `SELECT` + agentColumns + ` FROM agents ORDER BY created_at DESC`
	return r.scanAll(ctx, query)
}

// SetStatus transitions an agent's lifecycle state. Entering quarantine or
// ban records the reason and timestamp; returning to active clears both.
func (r *AgentRepository) SetStatus(ctx context.Context, id string, status model.AgentStatus, reason string) error {
	now := time.Now().UTC()
	var (
		reasonArg *string
		atArg     *time.Time
	)
	if status != model.AgentStatusActive {
		reasonArg = &reason
		atArg = &now
	}

	query := `
		UPDATE agents SET
			status            = $2,
			quarantine_reason = $3,
			quarantine_at     = $4,
			updated_at        = $5
		WHERE id = $1`
	tag, err := r.db.Exec(ctx, query, id, status, reasonArg, atArg, now)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// CountByStatus returns the number of agents per lifecycle state.
func (r *AgentRepository) CountByStatus(ctx context.Context) (map[model.AgentStatus]int64, error) {
	rows, err := r.db.Query(ctx, `SELECT status, COUNT(*) FROM agents GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[model.AgentStatus]int64)
	for rows.Next() {
		var (
			status model.AgentStatus
			n      int64
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

// scanOne executes a query returning a single agent row.
func (r *AgentRepository) scanOne(ctx context.Context, query string, args ...any) (*model.Agent, error) {
	rows, err := r.db.Query(ctx, query, args...)
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
	return r.scan(rows)
}

// scanAll executes a query returning any number of agent rows.
func (r *AgentRepository) scanAll(ctx context.Context, query string, args ...any) ([]*model.Agent, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var agents []*model.Agent
	for rows.Next() {
		a, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		agents = append(agents, a)
	}
	return agents, rows.Err()
}

// scan reads a single agent from a pgx.Rows cursor. Column order matches
// agentColumns.
func (r *AgentRepository) scan(rows pgx.Rows) (*model.Agent, error) {
	var a model.Agent
	err := rows.Scan(
		&a.ID, &a.Name, &a.Endpoint, &a.Description,
		&a.Intents, &a.Tasks, &a.Tags, &a.Categories,
		&a.LocationScope, &a.Languages, &a.Version,
		&a.InputSchema, &a.Meta, &a.CallerID,
		&a.Status, &a.QuarantineReason, &a.QuarantineAt,
		&a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}
