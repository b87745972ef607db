package service

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/agoramesh/agora/internal/registry/model"
	"github.com/agoramesh/agora/internal/registry/repository"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// reviewConcurrency bounds the per-agent evaluations running at once
// during an auto-review sweep.
const reviewConcurrency = 8

// reviewAgentRepo covers the agent reads and status writes the review
// loop needs. *repository.AgentRepository satisfies this interface.
type reviewAgentRepo interface {
	Get(ctx context.Context, id string) (*model.Agent, error)
	ListAll(ctx context.Context) ([]*model.Agent, error)
	SetStatus(ctx context.Context, id string, status model.AgentStatus, reason string) error
}

// statsReader loads one agent's running counters.
// *repository.StatsRepository satisfies this interface.
type statsReader interface {
	Get(ctx context.Context, agentID string) (*model.AgentStats, error)
}

// feedbackTally counts feedback rows per agent.
// *repository.FeedbackRepository satisfies this interface.
type feedbackTally interface {
	CountForAgent(ctx context.Context, agentID string) (int64, error)
}

// fraudTally counts fraud-detection rows per agent.
// *repository.FraudRepository satisfies this interface.
type fraudTally interface {
	CountForAgent(ctx context.Context, agentID string) (int64, error)
	CountForAgentByType(ctx context.Context, agentID string, fraudType model.FraudType) (int64, error)
}

// ReviewService builds per-agent health reports and runs the periodic
// status sweep that quarantines, bans, and reactivates agents.
type ReviewService struct {
	agents     reviewAgentRepo
	stats      statsReader
	feedback   feedbackTally
	fraud      fraudTally
	production bool
	logger     *zap.Logger
}

// NewReviewService creates a new ReviewService.
func NewReviewService(agents reviewAgentRepo, stats statsReader, feedback feedbackTally, fraud fraudTally, production bool, logger *zap.Logger) *ReviewService {
	return &ReviewService{
		agents:     agents,
		stats:      stats,
		feedback:   feedback,
		fraud:      fraud,
		production: production,
		logger:     logger,
	}
}

// agentMetrics are the numbers the thresholds and the health report read.
type agentMetrics struct {
	total        int64
	successRate  float64
	avgRating    float64
	avgLatencyMS float64
	feedbacks    int64
	frauds       int64
	fraudPct     float64
	selfPct      float64
}

// Health assembles the on-demand health report for one agent. Fraud and
// self-rating percentages are zero outside production, and the risk level
// is always "low" there, since no transitions can happen.
func (s *ReviewService) Health(ctx context.Context, agentID string) (*model.HealthReport, error) {
	agent, err := s.agents.Get(ctx, agentID)
	if err != nil {
		return nil, err
	}
	m, err := s.collect(ctx, agent.ID)
	if err != nil {
		return nil, err
	}

	score := 0.4*m.successRate +
		0.3*m.avgRating +
		0.1*(1-math.Min(m.avgLatencyMS/10000, 1)) +
		0.2*(1-m.fraudPct/100)

	warnings := collectWarnings(m)
	return &model.HealthReport{
		AgentID:     agent.ID,
		Status:      agent.Status,
		HealthScore: score,
		Metrics: model.HealthMetrics{
			SuccessRate:          m.successRate,
			AvgRating:            m.avgRating,
			AvgLatencyMS:         m.avgLatencyMS,
			TotalFeedbacks:       m.feedbacks,
			FraudDetected:        m.frauds,
			FraudPercentage:      m.fraudPct,
			SelfRatingPercentage: m.selfPct,
		},
		Warnings:         warnings,
		QuarantineRisk:   s.risk(agent.Status, m, warnings),
		QuarantineReason: agent.QuarantineReason,
		QuarantineAt:     agent.QuarantineAt,
	}, nil
}

// AutoReview scans every agent once and applies the status transitions for
// its current state: active agents can be quarantined, quarantined agents
// can be banned or reactivated, banned agents stay banned. Outside
// production the sweep is a no-op.
func (s *ReviewService) AutoReview(ctx context.Context) (*model.ReviewSummary, error) {
	summary := &model.ReviewSummary{}
	if !s.production {
		s.logger.Info("auto-review skipped outside production")
		return summary, nil
	}

	agents, err := s.agents.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}
	summary.Scanned = len(agents)

	transitions := make([]model.AgentStatus, len(agents))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(reviewConcurrency)
	for i, agent := range agents {
		i, agent := i, agent
		g.Go(func() error {
			next, err := s.evaluate(gctx, agent)
			if err != nil {
				return fmt.Errorf("review %s: %w", agent.ID, err)
			}
			transitions[i] = next
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, next := range transitions {
		switch next {
		case model.AgentStatusQuarantine:
			summary.Quarantined++
		case model.AgentStatusBanned:
			summary.Banned++
		case model.AgentStatusActive:
			summary.Reactivated++
		}
	}
	s.logger.Info("auto-review sweep complete",
		zap.Int("scanned", summary.Scanned),
		zap.Int("quarantined", summary.Quarantined),
		zap.Int("banned", summary.Banned),
		zap.Int("reactivated", summary.Reactivated),
	)
	return summary, nil
}

// evaluate applies the transition rules for one agent and returns the new
// status, or "" when the agent keeps its current one.
func (s *ReviewService) evaluate(ctx context.Context, agent *model.Agent) (model.AgentStatus, error) {
	if agent.Status == model.AgentStatusBanned {
		return "", nil
	}
	m, err := s.collect(ctx, agent.ID)
	if err != nil {
		return "", err
	}

	switch agent.Status {
	case model.AgentStatusQuarantine:
		if reason, ok := tier2Reason(m); ok {
			if err := s.agents.SetStatus(ctx, agent.ID, model.AgentStatusBanned, reason); err != nil {
				return "", err
			}
			s.logger.Warn("agent banned", zap.String("agent_id", agent.ID), zap.String("reason", reason))
			return model.AgentStatusBanned, nil
		}
		if m.successRate >= 0.45 && m.avgRating >= 0.35 && m.fraudPct < 40 {
			if err := s.agents.SetStatus(ctx, agent.ID, model.AgentStatusActive, ""); err != nil {
				return "", err
			}
			s.logger.Info("agent reactivated", zap.String("agent_id", agent.ID))
			return model.AgentStatusActive, nil
		}
	case model.AgentStatusActive:
		if reason, ok := tier1Reason(m); ok {
			if err := s.agents.SetStatus(ctx, agent.ID, model.AgentStatusQuarantine, reason); err != nil {
				return "", err
			}
			s.logger.Warn("agent quarantined", zap.String("agent_id", agent.ID), zap.String("reason", reason))
			return model.AgentStatusQuarantine, nil
		}
	}
	return "", nil
}

// collect gathers the metrics for one agent. A missing stats row reads as
// zeros; fraud and self-rating shares are computed in production only.
func (s *ReviewService) collect(ctx context.Context, agentID string) (agentMetrics, error) {
	var m agentMetrics

	st, err := s.stats.Get(ctx, agentID)
	switch {
	case err == nil:
		m.total = st.CallsTotal
		m.avgRating = st.AvgRating
		m.avgLatencyMS = st.AvgLatencyMS
		if st.CallsTotal > 0 {
			m.successRate = float64(st.CallsSuccess) / float64(st.CallsTotal)
		}
	case errors.Is(err, repository.ErrNotFound):
	default:
		return m, fmt.Errorf("load stats: %w", err)
	}

	m.feedbacks, err = s.feedback.CountForAgent(ctx, agentID)
	if err != nil {
		return m, fmt.Errorf("count feedbacks: %w", err)
	}
	m.frauds, err = s.fraud.CountForAgent(ctx, agentID)
	if err != nil {
		return m, fmt.Errorf("count fraud detections: %w", err)
	}

	if s.production && m.feedbacks > 0 {
		m.fraudPct = math.Min(100, float64(m.frauds)/float64(m.feedbacks)*100)
		selfCount, err := s.fraud.CountForAgentByType(ctx, agentID, model.FraudSelfRating)
		if err != nil {
			return m, fmt.Errorf("count self-ratings: %w", err)
		}
		m.selfPct = math.Min(100, float64(selfCount)/float64(m.feedbacks)*100)
	}
	return m, nil
}

// risk maps an agent's state and metrics onto a quarantine-risk level.
func (s *ReviewService) risk(status model.AgentStatus, m agentMetrics, warnings []string) model.QuarantineRisk {
	if !s.production {
		return model.RiskLow
	}
	switch status {
	case model.AgentStatusBanned:
		return model.RiskCritical
	case model.AgentStatusQuarantine:
		if _, ok := tier2Reason(m); ok {
			return model.RiskCritical
		}
		return model.RiskHigh
	}
	if _, ok := tier1Reason(m); ok {
		return model.RiskHigh
	}
	if len(warnings) > 0 {
		return model.RiskMedium
	}
	return model.RiskLow
}

// tier1Reason reports whether an active agent crosses the quarantine
// thresholds, with a human-readable reason for the first one it crosses.
func tier1Reason(m agentMetrics) (string, bool) {
	switch {
	case m.total >= 20 && m.successRate < 0.40:
		return fmt.Sprintf("Success rate %.0f%% below 40%% over %d calls", m.successRate*100, m.total), true
	case m.total >= 15 && m.avgRating < 0.30:
		return fmt.Sprintf("Average rating %.2f below 0.30 over %d calls", m.avgRating, m.total), true
	case m.total >= 10 && m.avgLatencyMS > 30000:
		return fmt.Sprintf("Average latency %.0fms above 30000ms", m.avgLatencyMS), true
	case m.fraudPct > 50:
		return fmt.Sprintf("Fraud rate %.0f%% above 50%%", m.fraudPct), true
	}
	return "", false
}

// tier2Reason reports whether a quarantined agent crosses the ban
// thresholds. Self-rating is checked before the generic fraud share so the
// reason names the more specific abuse; self-rating detections are fraud
// rows themselves, so a high self share always implies a high fraud share.
func tier2Reason(m agentMetrics) (string, bool) {
	switch {
	case m.total >= 40 && m.successRate < 0.20:
		return fmt.Sprintf("Success rate %.0f%% below 20%% over %d calls", m.successRate*100, m.total), true
	case m.total >= 30 && m.avgRating < 0.15:
		return fmt.Sprintf("Average rating %.2f below 0.15 over %d calls", m.avgRating, m.total), true
	case m.selfPct > 80:
		return fmt.Sprintf("Self-rating %.0f%% above 80%%", m.selfPct), true
	case m.fraudPct > 70:
		return fmt.Sprintf("Fraud rate %.0f%% above 70%%", m.fraudPct), true
	}
	return "", false
}

// collectWarnings lists the soft findings surfaced in the health report.
// These fire well before the quarantine thresholds do.
func collectWarnings(m agentMetrics) []string {
	warnings := []string{}
	if m.total >= 5 {
		if m.successRate < 0.50 {
			warnings = append(warnings, fmt.Sprintf("Success rate %.0f%% below 50%%", m.successRate*100))
		}
		if m.avgRating < 0.40 {
			warnings = append(warnings, fmt.Sprintf("Average rating %.2f below 0.40", m.avgRating))
		}
		if m.avgLatencyMS > 10000 {
			warnings = append(warnings, fmt.Sprintf("Average latency %.0fms above 10000ms", m.avgLatencyMS))
		}
	}
	if m.fraudPct > 30 {
		warnings = append(warnings, fmt.Sprintf("Fraud detections at %.0f%% of feedback", m.fraudPct))
	}
	if m.selfPct > 50 {
		warnings = append(warnings, fmt.Sprintf("Self-rating at %.0f%% of feedback", m.selfPct))
	}
	return warnings
}
