// Package identity implements the registry's caller identity and key layer.
//
// It provides:
//   - DeriveIdentifier / CallerID — stable caller identities from request headers
//   - SessionIssuer  — issues and verifies HS256 session tokens (24 h)
//   - SecretBox      — AES-256-CBC encryption for provider signing secrets
//   - KeyService     — mints execution keys signed with provider secrets
//   - RequireSession — Gin middleware enforcing Bearer session authentication
package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// DeriveIdentifier returns the stable identity string behind a caller_id.
//
// Precedence: when an x-client-id header is present the identifier is
// "{client-id}|{client-ip}"; otherwise the first hop of x-forwarded-for
// (only when the deployment trusts its proxy), otherwise the socket peer
// address, otherwise "unknown".
func DeriveIdentifier(clientID, forwardedFor, remoteIP string, trustProxy bool) string {
	ip := remoteIP
	if trustProxy {
		if f := firstForwardedHop(forwardedFor); f != "" {
			ip = f
		}
	}
	if clientID != "" {
		if ip == "" {
			ip = "unknown"
		}
		return clientID + "|" + ip
	}
	if ip != "" {
		return ip
	}
	return "unknown"
}

// CallerID derives the deterministic caller id for a (type, identifier)
// pair: the type, a dash, and the first 16 hex characters of
// SHA-256(type + ":" + identifier).
func CallerID(callerType, identifier string) string {
	sum := sha256.Sum256([]byte(callerType + ":" + identifier))
	return callerType + "-" + hex.EncodeToString(sum[:])[:16]
}

// ClientIDPrefix returns the client-id portion of a composite
// "{client-id}|{ip}" identifier and whether the identifier carries one.
func ClientIDPrefix(identifier string) (string, bool) {
	prefix, _, ok := strings.Cut(identifier, "|")
	if !ok || prefix == "" {
		return "", false
	}
	return prefix, true
}

// TokenHash returns the hex SHA-256 digest of a session token. Consumer
// caller rows store this hash for audit instead of the token itself.
func TokenHash(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func firstForwardedHop(forwardedFor string) string {
	if forwardedFor == "" {
		return ""
	}
	first, _, _ := strings.Cut(forwardedFor, ",")
	return strings.TrimSpace(first)
}
