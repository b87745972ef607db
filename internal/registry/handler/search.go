package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/agoramesh/agora/internal/identity"
	"github.com/agoramesh/agora/internal/registry/model"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// searcher is the interface expected by SearchHandler, satisfied by
// *service.SearchService.
type searcher interface {
	Search(ctx context.Context, consumerCallerID string, req *model.SearchRequest) ([]*model.SearchResult, error)
}

// SearchHandler handles ranked agent discovery for consumers.
type SearchHandler struct {
	svc      searcher
	sessions *identity.SessionIssuer
	logger   *zap.Logger
}

// NewSearchHandler creates a new SearchHandler.
func NewSearchHandler(svc searcher, sessions *identity.SessionIssuer, logger *zap.Logger) *SearchHandler {
	return &SearchHandler{svc: svc, sessions: sessions, logger: logger}
}

// Register mounts the search route on the provided router group.
func (h *SearchHandler) Register(rg *gin.RouterGroup) {
	rg.POST("/search", identity.RequireSession(h.sessions, string(model.CallerTypeConsumer)), h.Search)
}

// Search handles POST /search — ranks matching agents and mints a
// short-lived execution key per result. The response body is the bare
// result array, empty when nothing clears the score floor.
func (h *SearchHandler) Search(c *gin.Context) {
	claims := identity.SessionFromCtx(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Bearer token required"})
		return
	}

	var req model.SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	results, err := h.svc.Search(c.Request.Context(), claims.CallerID, &req)
	if err != nil {
		var verr *model.ErrValidation
		switch {
		case errors.As(err, &verr):
			c.JSON(http.StatusBadRequest, gin.H{"error": verr.Msg})
		case errors.Is(err, context.DeadlineExceeded):
			c.JSON(http.StatusGatewayTimeout, gin.H{"error": "request timed out"})
		default:
			h.logger.Error("search", zap.String("caller_id", claims.CallerID), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "search failed"})
		}
		return
	}

	RecordSearch(len(results))
	c.JSON(http.StatusOK, results)
}
