package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/agoramesh/agora/internal/identity"
	"github.com/agoramesh/agora/internal/registry/model"
	"github.com/agoramesh/agora/internal/registry/repository"
	"github.com/agoramesh/agora/internal/registry/service"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// feedbackSubmitter is the interface expected by FeedbackHandler,
// satisfied by *service.FeedbackService.
type feedbackSubmitter interface {
	Submit(ctx context.Context, consumerID string, req *model.FeedbackRequest) (*model.AgentStats, error)
}

// FeedbackHandler handles post-call feedback from consumers.
type FeedbackHandler struct {
	svc      feedbackSubmitter
	sessions *identity.SessionIssuer
	logger   *zap.Logger
}

// NewFeedbackHandler creates a new FeedbackHandler.
func NewFeedbackHandler(svc feedbackSubmitter, sessions *identity.SessionIssuer, logger *zap.Logger) *FeedbackHandler {
	return &FeedbackHandler{svc: svc, sessions: sessions, logger: logger}
}

// Register mounts the feedback route on the provided router group.
func (h *FeedbackHandler) Register(rg *gin.RouterGroup) {
	rg.POST("/feedback", identity.RequireSession(h.sessions, string(model.CallerTypeConsumer)), h.Submit)
}

// Submit handles POST /feedback — records one call outcome and folds it
// into the agent's running stats.
func (h *FeedbackHandler) Submit(c *gin.Context) {
	claims := identity.SessionFromCtx(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Bearer token required"})
		return
	}

	var req model.FeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if _, err := h.svc.Submit(c.Request.Context(), claims.CallerID, &req); err != nil {
		var verr *model.ErrValidation
		switch {
		case errors.As(err, &verr):
			c.JSON(http.StatusBadRequest, gin.H{"error": verr.Msg})
		case errors.Is(err, service.ErrRateLimited):
			RecordFeedback("rate_limited")
			c.Header("Retry-After", "60")
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "feedback rate limit exceeded, try again later"})
		case errors.Is(err, service.ErrBlockedSpam):
			RecordFeedback("blocked")
			c.JSON(http.StatusBadRequest, gin.H{"error": "feedback blocked: too many submissions for this agent"})
		case errors.Is(err, repository.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "agent not found"})
		case errors.Is(err, context.DeadlineExceeded):
			c.JSON(http.StatusGatewayTimeout, gin.H{"error": "request timed out"})
		default:
			h.logger.Error("submit feedback",
				zap.String("caller_id", claims.CallerID),
				zap.String("agent_id", req.AgentID),
				zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "feedback recording failed"})
		}
		return
	}

	RecordFeedback("recorded")
	c.JSON(http.StatusOK, gin.H{"success": true})
}
