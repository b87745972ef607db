package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/agoramesh/agora/internal/identity"
	"github.com/agoramesh/agora/internal/registry/model"
	"go.uber.org/zap"
)

// ErrIdentityMismatch is returned when a client-id is presented from a
// different address than the one it was first bound to.
var ErrIdentityMismatch = errors.New("client id already bound to a different address")

// callerRepo is the persistence interface for the auth service.
// *repository.CallerRepository satisfies this interface.
type callerRepo interface {
	Upsert(ctx context.Context, caller *model.Caller) error
	HasClientIDConflict(ctx context.Context, callerType model.CallerType, clientID, identifier string) (bool, error)
}

// TokenGrant is the result of issuing a session token.
type TokenGrant struct {
	Token     string
	CallerID  string
	ExpiresAt time.Time
}

// Identity carries the request headers the caller identity derives from.
type Identity struct {
	ClientID     string // x-client-id header, may be empty
	ForwardedFor string // x-forwarded-for header, may be empty
	RemoteIP     string // socket peer address
}

// AuthService issues 24-hour session tokens and maintains the caller table.
type AuthService struct {
	callers    callerRepo
	sessions   *identity.SessionIssuer
	box        *identity.SecretBox
	trustProxy bool
	logger     *zap.Logger
}

// NewAuthService creates a new AuthService. trustProxy controls whether
// x-forwarded-for participates in identity derivation.
func NewAuthService(callers callerRepo, sessions *identity.SessionIssuer, box *identity.SecretBox, trustProxy bool, logger *zap.Logger) *AuthService {
	return &AuthService{
		callers:    callers,
		sessions:   sessions,
		box:        box,
		trustProxy: trustProxy,
		logger:     logger,
	}
}

// IssueToken derives the caller identity from the request headers, stores
// or refreshes the caller row, and returns a signed session token.
//
// Providers must supply their signing secret; it is encrypted with the
// registry master key before persisting. For consumers only a hash of the
// issued token is kept.
func (s *AuthService) IssueToken(ctx context.Context, callerType model.CallerType, id Identity, providerSecret string) (*TokenGrant, error) {
	if !callerType.Valid() {
		return nil, &model.ErrValidation{Msg: "type must be consumer or provider"}
	}
	if callerType == model.CallerTypeProvider && providerSecret == "" {
		return nil, &model.ErrValidation{Msg: "x-provider-secret header is required for provider tokens"}
	}

	identifier := identity.DeriveIdentifier(id.ClientID, id.ForwardedFor, id.RemoteIP, s.trustProxy)
	callerID := identity.CallerID(string(callerType), identifier)

	if clientID, ok := identity.ClientIDPrefix(identifier); ok {
		conflict, err := s.callers.HasClientIDConflict(ctx, callerType, clientID, identifier)
		if err != nil {
			return nil, fmt.Errorf("check client id binding: %w", err)
		}
		if conflict {
			s.logger.Warn("client id presented from a new address",
				zap.String("client_id", clientID),
				zap.String("caller_id", callerID),
			)
			return nil, ErrIdentityMismatch
		}
	}

	token, expiresAt, err := s.sessions.Issue(callerID, string(callerType), identifier)
	if err != nil {
		return nil, fmt.Errorf("issue session token: %w", err)
	}

	var credential string
	if callerType == model.CallerTypeProvider {
		credential, err = s.box.Encrypt(providerSecret)
		if err != nil {
			return nil, fmt.Errorf("encrypt provider secret: %w", err)
		}
	} else {
		credential = identity.TokenHash(token)
	}

	caller := &model.Caller{
		CallerID:       callerID,
		Type:           callerType,
		Identifier:     identifier,
		Credential:     credential,
		TokenExpiresAt: &expiresAt,
	}
	if err := s.callers.Upsert(ctx, caller); err != nil {
		return nil, fmt.Errorf("store caller: %w", err)
	}

	s.logger.Info("session token issued",
		zap.String("caller_id", callerID),
		zap.String("type", string(callerType)),
	)
	return &TokenGrant{Token: token, CallerID: callerID, ExpiresAt: expiresAt}, nil
}
