package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/agoramesh/agora/internal/registry/model"
	"go.uber.org/zap"
)

// ErrBlockedSpam is returned when a consumer floods one agent with
// feedback faster than the per-pair hourly allowance.
var ErrBlockedSpam = errors.New("feedback blocked: spam pattern detected")

// spamHourlyLimit is the number of prior same-pair feedbacks within an
// hour at which the next submission is rejected.
const spamHourlyLimit = 10

// ratingPatternMinTotal and ratingPatternShare trigger the audit entry for
// suspiciously polarized rating histories.
const (
	ratingPatternMinTotal = 10
	ratingPatternShare    = 0.8
)

// selfRatingWeight dampens ratings a provider submits for its own agent.
const selfRatingWeight = 0.1

// fraudLog records detections. *repository.FraudRepository satisfies this
// interface.
type fraudLog interface {
	Insert(ctx context.Context, fd *model.FraudDetection) error
}

// feedbackCounter supplies the history counts the analysis rules read.
// *repository.FeedbackRepository satisfies this interface.
type feedbackCounter interface {
	CountPairSince(ctx context.Context, agentID, consumerID string, since time.Time) (int64, error)
	CountPair(ctx context.Context, agentID, consumerID string) (int64, error)
	CountForAgent(ctx context.Context, agentID string) (int64, error)
	CountExtremeForAgent(ctx context.Context, agentID string) (int64, error)
}

// Assessment is the outcome of the anti-fraud analysis for one feedback
// submission.
type Assessment struct {
	// Weight multiplies the submitted rating before it enters the running
	// mean. Always 1 outside production mode.
	Weight float64

	// SelfRating is true when the submitting consumer owns the agent.
	SelfRating bool
}

// FraudAnalyzer runs the pre-insert fraud rules over a feedback
// submission. All rules are no-ops outside production mode.
type FraudAnalyzer struct {
	feedback   feedbackCounter
	fraud      fraudLog
	production bool
	logger     *zap.Logger
}

// NewFraudAnalyzer creates a new FraudAnalyzer.
func NewFraudAnalyzer(feedback feedbackCounter, fraud fraudLog, production bool, logger *zap.Logger) *FraudAnalyzer {
	return &FraudAnalyzer{
		feedback:   feedback,
		fraud:      fraud,
		production: production,
		logger:     logger,
	}
}

// Analyze evaluates one feedback submission against the fraud rules,
// logging detections as it goes. It returns ErrBlockedSpam when the
// submission must be rejected outright; any other outcome only modulates
// the rating weight.
func (a *FraudAnalyzer) Analyze(ctx context.Context, agent *model.Agent, consumerID string, rating float64) (*Assessment, error) {
	if !a.production {
		return &Assessment{Weight: 1}, nil
	}

	res := &Assessment{Weight: 1}

	// Self-rating: a provider reviewing its own agent is dampened, not blocked.
	if consumerID == agent.CallerID {
		res.SelfRating = true
		a.record(ctx, agent.ID, consumerID, model.FraudSelfRating, model.SeverityHigh, map[string]any{
			"rating": rating,
		})
	}

	hourAgo := time.Now().UTC().Add(-time.Hour)
	recent, err := a.feedback.CountPairSince(ctx, agent.ID, consumerID, hourAgo)
	if err != nil {
		return nil, fmt.Errorf("count recent feedback: %w", err)
	}
	if recent >= spamHourlyLimit {
		a.record(ctx, agent.ID, consumerID, model.FraudSpam, model.SeverityHigh, map[string]any{
			"count_last_hour": recent,
		})
		return nil, ErrBlockedSpam
	}

	prior, err := a.feedback.CountPair(ctx, agent.ID, consumerID)
	if err != nil {
		return nil, fmt.Errorf("count prior feedback: %w", err)
	}
	decreasing := 1 / (1 + math.Log(1+float64(prior)))
	if decreasing < 0.1 {
		decreasing = 0.1
	}

	total, err := a.feedback.CountForAgent(ctx, agent.ID)
	if err != nil {
		return nil, fmt.Errorf("count agent feedback: %w", err)
	}
	if total >= ratingPatternMinTotal {
		extreme, err := a.feedback.CountExtremeForAgent(ctx, agent.ID)
		if err != nil {
			return nil, fmt.Errorf("count extreme ratings: %w", err)
		}
		if float64(extreme)/float64(total) > ratingPatternShare {
			a.record(ctx, agent.ID, "", model.FraudRatingPattern, model.SeverityMedium, map[string]any{
				"total":   total,
				"extreme": extreme,
			})
		}
	}

	selfWeight := 1.0
	if res.SelfRating {
		selfWeight = selfRatingWeight
	}
	res.Weight = selfWeight * decreasing
	return res, nil
}

// record writes a fraud-detection entry. Failures are logged and do not
// fail the submission; the audit trail is best-effort.
func (a *FraudAnalyzer) record(ctx context.Context, agentID, consumerID string, fraudType model.FraudType, severity model.FraudSeverity, details map[string]any) {
	fd := &model.FraudDetection{
		AgentID:  agentID,
		Type:     fraudType,
		Severity: severity,
	}
	if consumerID != "" {
		fd.ConsumerID = &consumerID
	}
	if details != nil {
		raw, err := json.Marshal(details)
		if err == nil {
			fd.Details = raw
		}
	}

	if err := a.fraud.Insert(ctx, fd); err != nil {
		a.logger.Error("fraud detection write failed (non-fatal)",
			zap.String("agent_id", agentID),
			zap.String("fraud_type", string(fraudType)),
			zap.Error(err),
		)
	}
}
