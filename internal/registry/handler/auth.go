package handler

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/agoramesh/agora/internal/registry/model"
	"github.com/agoramesh/agora/internal/registry/service"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// tokenIssuer is the interface expected by AuthHandler, satisfied by
// *service.AuthService.
type tokenIssuer interface {
	IssueToken(ctx context.Context, callerType model.CallerType, id service.Identity, providerSecret string) (*service.TokenGrant, error)
}

// AuthHandler handles session-token issuance.
type AuthHandler struct {
	auth   tokenIssuer
	logger *zap.Logger
}

// NewAuthHandler creates an AuthHandler.
func NewAuthHandler(auth tokenIssuer, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{auth: auth, logger: logger}
}

// Register mounts the auth routes on the provided router group.
func (h *AuthHandler) Register(rg *gin.RouterGroup) {
	rg.POST("/auth/token", h.Token)
}

type tokenRequest struct {
	Type string `json:"type" binding:"required"`
}

// Token handles POST /auth/token — issues a 24-hour session token for the
// caller identity derived from the request headers. Providers authenticate
// the request with their signing secret in x-provider-secret.
func (h *AuthHandler) Token(c *gin.Context) {
	var req tokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	id := service.Identity{
		ClientID:     c.GetHeader("x-client-id"),
		ForwardedFor: c.GetHeader("X-Forwarded-For"),
		RemoteIP:     remoteIP(c),
	}
	grant, err := h.auth.IssueToken(c.Request.Context(), model.CallerType(req.Type), id, c.GetHeader("x-provider-secret"))
	if err != nil {
		var verr *model.ErrValidation
		switch {
		case errors.As(err, &verr):
			c.JSON(http.StatusBadRequest, gin.H{"error": verr.Msg})
		case errors.Is(err, service.ErrIdentityMismatch):
			c.JSON(http.StatusForbidden, gin.H{"error": "client id is already bound to a different address"})
		case errors.Is(err, context.DeadlineExceeded):
			c.JSON(http.StatusGatewayTimeout, gin.H{"error": "request timed out"})
		default:
			h.logger.Error("issue token", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "token issuance failed"})
		}
		return
	}

	RecordTokenIssued(req.Type)
	c.JSON(http.StatusOK, gin.H{
		"token":      grant.Token,
		"expires_in": "24h",
		"token_type": "Bearer",
	})
}

// remoteIP is the socket peer address with the port stripped. Forwarded
// headers are evaluated by the identity derivation, not here.
func remoteIP(c *gin.Context) string {
	host, _, err := net.SplitHostPort(c.Request.RemoteAddr)
	if err != nil {
		return c.Request.RemoteAddr
	}
	return host
}
