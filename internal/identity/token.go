package identity

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// SessionTTL is the lifetime of a session token.
const SessionTTL = 24 * time.Hour

// SessionClaims are the JWT claims for a registry session token. Session
// tokens authenticate /register, /search, and /feedback calls.
type SessionClaims struct {
	jwt.RegisteredClaims
	CallerID   string `json:"caller_id"`
	CallerType string `json:"type"`
	Identifier string `json:"identifier"`
}

// SessionIssuer issues and verifies session tokens signed with HS256 under
// the registry master secret. There is no revocation list; expiry is
// enforced by the embedded exp claim.
type SessionIssuer struct {
	secret []byte
	issuer string
	ttl    time.Duration
}

// NewSessionIssuer creates a SessionIssuer.
//
//	issuer — the "iss" claim value, validated on every Verify.
//	ttl    — token lifetime (default: 24 hours).
func NewSessionIssuer(masterSecret, issuer string, ttl time.Duration) *SessionIssuer {
	if ttl == 0 {
		ttl = SessionTTL
	}
	return &SessionIssuer{
		secret: []byte(masterSecret),
		issuer: issuer,
		ttl:    ttl,
	}
}

// Issue creates a signed session token for the caller and returns it with
// its expiry time.
func (s *SessionIssuer) Issue(callerID, callerType, identifier string) (string, time.Time, error) {
	now := time.Now().UTC()
	expires := now.Add(s.ttl)
	claims := SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   callerID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
			ID:        uuid.New().String(),
		},
		CallerID:   callerID,
		CallerType: callerType,
		Identifier: identifier,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign session token: %w", err)
	}
	return signed, expires, nil
}

// Verify parses and validates a session token, returning its claims on success.
func (s *SessionIssuer) Verify(tokenStr string) (*SessionClaims, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&SessionClaims{},
		func(tok *jwt.Token) (any, error) {
			if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", tok.Header["alg"])
			}
			return s.secret, nil
		},
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("verify session token: %w", err)
	}

	claims, ok := token.Claims.(*SessionClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}
	return claims, nil
}

// TTL returns the configured token lifetime.
func (s *SessionIssuer) TTL() time.Duration { return s.ttl }
