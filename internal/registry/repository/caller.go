package repository

import (
	"context"
	"strings"
	"time"

	"github.com/agoramesh/agora/internal/registry/model"
	"github.com/jackc/pgx/v5/pgxpool"
)

// CallerRepository persists caller identities in PostgreSQL.
type CallerRepository struct {
	db *pgxpool.Pool
}

// NewCallerRepository creates a new CallerRepository.
func NewCallerRepository(db *pgxpool.Pool) *CallerRepository {
	return &CallerRepository{db: db}
}

// Upsert inserts the caller or, on a repeat sighting of the same
// (type, identifier), refreshes the stored credential and token expiry.
func (r *CallerRepository) Upsert(ctx context.Context, caller *model.Caller) error {
	now := time.Now().UTC()
	query := `
		INSERT INTO callers (
			caller_id, caller_type, identifier, jwt_token,
			token_expires_at, is_active, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, TRUE, $6, $6)
		ON CONFLICT (caller_type, identifier) DO UPDATE SET
			jwt_token        = EXCLUDED.jwt_token,
			token_expires_at = EXCLUDED.token_expires_at,
			is_active        = TRUE,
			updated_at       = EXCLUDED.updated_at`

	_, err := r.db.Exec(ctx, query,
		caller.CallerID, caller.Type, caller.Identifier,
		caller.Credential, caller.TokenExpiresAt, now,
	)
	return err
}

// Get retrieves a caller by its derived id.
func (r *CallerRepository) Get(ctx context.Context, callerID string) (*model.Caller, error) {
	query := `
		SELECT caller_id, caller_type, identifier, jwt_token,
		       token_expires_at, is_active, created_at, updated_at
		FROM callers
		WHERE caller_id = $1`

	rows, err := r.db.Query(ctx, query, callerID)
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

	var c model.Caller
	var credential *string
	err = rows.Scan(
		&c.CallerID, &c.Type, &c.Identifier, &credential,
		&c.TokenExpiresAt, &c.IsActive, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if credential != nil {
		c.Credential = *credential
	}
	return &c, nil
}

// HasClientIDConflict reports whether a caller of the same type already
// claimed the given client-id prefix under a different full identifier.
// This is the anti-spoofing check: a client-id is bound to the IP it was
// first seen from.
func (r *CallerRepository) HasClientIDConflict(ctx context.Context, callerType model.CallerType, clientID, identifier string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM callers
			WHERE caller_type = $1
			  AND identifier LIKE $2 ESCAPE '\'
			  AND identifier <> $3
		)`

	pattern := escapeLike(clientID) + `|%`
	var exists bool
	if err := r.db.QueryRow(ctx, query, callerType, pattern, identifier).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

// escapeLike escapes the LIKE metacharacters in a literal string.
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	s = strings.ReplaceAll(s, `_`, `\_`)
	return s
}
