package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/agoramesh/agora/internal/registry/model"
	"go.uber.org/zap"
)

// ErrRateLimited is returned when a consumer exceeds the global feedback
// allowance of 60 submissions per minute.
var ErrRateLimited = errors.New("feedback rate limit exceeded")

// feedbackRateLimit is the per-consumer allowance per rate window.
const (
	feedbackRateLimit  = 60
	feedbackRateWindow = time.Minute
)

// feedbackStore appends feedback rows and counts them for rate limiting.
// *repository.FeedbackRepository satisfies this interface.
type feedbackStore interface {
	Insert(ctx context.Context, fb *model.Feedback) error
	CountByConsumerSince(ctx context.Context, consumerID string, since time.Time) (int64, error)
}

// agentGetter loads agents by id.
// *repository.AgentRepository satisfies this interface.
type agentGetter interface {
	Get(ctx context.Context, id string) (*model.Agent, error)
}

// statsUpdater folds a feedback event into the agent's running counters.
// *repository.StatsRepository satisfies this interface.
type statsUpdater interface {
	ApplyFeedback(ctx context.Context, agentID string, success bool, latencyMS, weightedRating float64) (*model.AgentStats, error)
}

// fraudChecker runs the pre-insert fraud analysis.
// *FraudAnalyzer satisfies this interface.
type fraudChecker interface {
	Analyze(ctx context.Context, agent *model.Agent, consumerID string, rating float64) (*Assessment, error)
}

// FeedbackService runs the feedback pipeline. The steps are strictly
// ordered: the fraud rules must see the pre-insert history, and the stats
// update must see the inserted row's effect on it.
type FeedbackService struct {
	feedback feedbackStore
	agents   agentGetter
	stats    statsUpdater
	analyzer fraudChecker
	logger   *zap.Logger
}

// NewFeedbackService creates a new FeedbackService.
func NewFeedbackService(feedback feedbackStore, agents agentGetter, stats statsUpdater, analyzer fraudChecker, logger *zap.Logger) *FeedbackService {
	return &FeedbackService{
		feedback: feedback,
		agents:   agents,
		stats:    stats,
		analyzer: analyzer,
		logger:   logger,
	}
}

// Submit records one consumer's feedback on one agent call and updates the
// agent's running stats. Returns ErrRateLimited, ErrBlockedSpam,
// repository.ErrNotFound, or a validation error as appropriate; stats
// failures are surfaced, never swallowed, so callers know the submission
// did not count.
func (s *FeedbackService) Submit(ctx context.Context, consumerID string, req *model.FeedbackRequest) (*model.AgentStats, error) {
	if err := validateFeedback(req); err != nil {
		return nil, err
	}

	windowStart := time.Now().UTC().Add(-feedbackRateWindow)
	recent, err := s.feedback.CountByConsumerSince(ctx, consumerID, windowStart)
	if err != nil {
		return nil, fmt.Errorf("count recent submissions: %w", err)
	}
	if recent >= feedbackRateLimit {
		return nil, ErrRateLimited
	}

	agent, err := s.agents.Get(ctx, req.AgentID)
	if err != nil {
		return nil, err
	}

	assessment, err := s.analyzer.Analyze(ctx, agent, consumerID, *req.Rating)
	if err != nil {
		return nil, err
	}

	fb := &model.Feedback{
		AgentID:    agent.ID,
		ConsumerID: consumerID,
		Success:    req.Success,
		LatencyMS:  *req.LatencyMS,
		Rating:     *req.Rating,
	}
	if err := s.feedback.Insert(ctx, fb); err != nil {
		return nil, fmt.Errorf("store feedback: %w", err)
	}

	stats, err := s.stats.ApplyFeedback(ctx, agent.ID, req.Success, *req.LatencyMS, *req.Rating*assessment.Weight)
	if err != nil {
		return nil, fmt.Errorf("update stats: %w", err)
	}

	s.logger.Info("feedback recorded",
		zap.String("agent_id", agent.ID),
		zap.String("consumer_id", consumerID),
		zap.Bool("success", req.Success),
		zap.Float64("weight", assessment.Weight),
	)
	return stats, nil
}

func validateFeedback(req *model.FeedbackRequest) error {
	switch {
	case req.AgentID == "":
		return &model.ErrValidation{Msg: "agent_id is required"}
	case req.LatencyMS == nil:
		return &model.ErrValidation{Msg: "latency_ms is required"}
	case *req.LatencyMS < 0:
		return &model.ErrValidation{Msg: "latency_ms must be non-negative"}
	case req.Rating == nil:
		return &model.ErrValidation{Msg: "rating is required"}
	case *req.Rating < 0 || *req.Rating > 1:
		return &model.ErrValidation{Msg: "rating must be between 0 and 1"}
	}
	return nil
}
