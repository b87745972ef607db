package model

import "time"

// CallerType distinguishes the two authenticated parties.
type CallerType string

const (
	CallerTypeConsumer CallerType = "consumer"
	CallerTypeProvider CallerType = "provider"
)

// Valid reports whether t is one of the known caller types.
func (t CallerType) Valid() bool {
	return t == CallerTypeConsumer || t == CallerTypeProvider
}

// Caller is an authenticated identity derived from request headers.
//
// Credential holds the SHA-256 hash of the last issued session token for
// consumers, and the AES-encrypted signing secret ("{iv_hex}:{ct_hex}") for
// providers. A provider row always has a non-empty Credential; a consumer
// token is never stored in plaintext.
type Caller struct {
	CallerID       string     `json:"caller_id"        db:"caller_id"`
	Type           CallerType `json:"type"             db:"caller_type"`
	Identifier     string     `json:"identifier"       db:"identifier"`
	Credential     string     `json:"-"                db:"jwt_token"`
	TokenExpiresAt *time.Time `json:"token_expires_at" db:"token_expires_at"`
	IsActive       bool       `json:"is_active"        db:"is_active"`
	CreatedAt      time.Time  `json:"created_at"       db:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"       db:"updated_at"`
}
