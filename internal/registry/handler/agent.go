package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/agoramesh/agora/internal/identity"
	"github.com/agoramesh/agora/internal/registry/model"
	"github.com/agoramesh/agora/internal/registry/repository"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// registrar is the interface expected by AgentHandler, satisfied by
// *service.AgentService.
type registrar interface {
	Register(ctx context.Context, providerCallerID string, req *model.RegisterRequest) (*model.Agent, error)
}

// healthReporter builds per-agent health reports, satisfied by
// *service.ReviewService.
type healthReporter interface {
	Health(ctx context.Context, agentID string) (*model.HealthReport, error)
}

// AgentHandler handles agent registration and the public health report.
type AgentHandler struct {
	svc      registrar
	reviews  healthReporter
	sessions *identity.SessionIssuer
	logger   *zap.Logger
}

// NewAgentHandler creates a new AgentHandler.
func NewAgentHandler(svc registrar, reviews healthReporter, sessions *identity.SessionIssuer, logger *zap.Logger) *AgentHandler {
	return &AgentHandler{svc: svc, reviews: reviews, sessions: sessions, logger: logger}
}

// Register mounts the agent routes on the provided router group. The
// health report is public; registration requires a provider session.
func (h *AgentHandler) Register(rg *gin.RouterGroup) {
	rg.POST("/register", identity.RequireSession(h.sessions, string(model.CallerTypeProvider)), h.RegisterAgent)
	rg.GET("/agents/:id/health", h.AgentHealth)
}

// RegisterAgent handles POST /register — creates or updates the calling
// provider's agent. The response echoes the bearer token so provider CLIs
// can persist the credential next to the agent id.
func (h *AgentHandler) RegisterAgent(c *gin.Context) {
	claims := identity.SessionFromCtx(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Bearer token required"})
		return
	}

	var req model.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	agent, err := h.svc.Register(c.Request.Context(), claims.CallerID, &req)
	if err != nil {
		var verr *model.ErrValidation
		switch {
		case errors.As(err, &verr):
			c.JSON(http.StatusBadRequest, gin.H{"error": verr.Msg})
		case errors.Is(err, context.DeadlineExceeded):
			c.JSON(http.StatusGatewayTimeout, gin.H{"error": "request timed out"})
		default:
			h.logger.Error("register agent", zap.String("caller_id", claims.CallerID), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "registration failed"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"id":        agent.ID,
		"jwt_token": bearerToken(c),
	})
}

// AgentHealth handles GET /agents/:id/health — the public health report.
func (h *AgentHandler) AgentHealth(c *gin.Context) {
	report, err := h.reviews.Health(c.Request.Context(), c.Param("id"))
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "agent not found"})
		case errors.Is(err, context.DeadlineExceeded):
			c.JSON(http.StatusGatewayTimeout, gin.H{"error": "request timed out"})
		default:
			h.logger.Error("agent health", zap.String("agent_id", c.Param("id")), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "health report failed"})
		}
		return
	}
	c.JSON(http.StatusOK, report)
}

// bearerToken returns the raw bearer credential from the Authorization
// header, or "" when absent.
func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimPrefix(header, "Bearer ")
}
