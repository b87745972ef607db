// Package execkey mints and verifies short-lived execution keys.
//
// An execution key is a JWT handed to a consumer alongside a search result.
// The consumer presents it to the agent endpoint; the agent verifies it
// against its own provider secret, proving the key came through the
// registry. Keys expire five minutes after minting and carry a random key
// identifier so agents can de-duplicate if they choose to.
package execkey

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TTL is the execution key lifetime.
const TTL = 5 * time.Minute

const keyIDBytes = 16

// Claims are the JWT claims carried by an execution key.
type Claims struct {
	jwt.RegisteredClaims
	ConsumerCallerID string `json:"consumer_caller_id"`
	AgentID          string `json:"agent_id"`
	KeyID            string `json:"key_id"`
}

// Mint signs an execution key for the given consumer and agent using the
// provider secret. It returns the signed key and its expiry time.
func Mint(secret []byte, consumerCallerID, agentID string) (string, time.Time, error) {
	raw := make([]byte, keyIDBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", time.Time{}, fmt.Errorf("generate key id: %w", err)
	}

	now := time.Now().UTC()
	expires := now.Add(TTL)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   agentID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
		ConsumerCallerID: consumerCallerID,
		AgentID:          agentID,
		KeyID:            hex.EncodeToString(raw),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign execution key: %w", err)
	}
	return signed, expires, nil
}

// Verify parses an execution key and validates its signature and expiry
// against the given secret. Agents embed this in their own services to
// check keys presented by consumers.
func Verify(secret []byte, key string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(
		key,
		&Claims{},
		func(tok *jwt.Token) (any, error) {
			if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", tok.Header["alg"])
			}
			return secret, nil
		},
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("verify execution key: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid execution key claims")
	}
	return claims, nil
}
