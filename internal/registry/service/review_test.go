package service_test

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/agoramesh/agora/internal/registry/model"
	"github.com/agoramesh/agora/internal/registry/repository"
	"github.com/agoramesh/agora/internal/registry/service"
	"go.uber.org/zap"
)

type reviewFixture struct {
	svc      *service.ReviewService
	agents   *stubAgentStore
	stats    *stubStatsStore
	feedback *stubFeedbackStore
	fraud    *stubFraudStore
}

func newReviewFixture(production bool, agents ...*model.Agent) *reviewFixture {
	f := &reviewFixture{
		agents:   newStubAgentStore(agents...),
		stats:    newStubStatsStore(),
		feedback: newStubFeedbackStore(),
		fraud:    newStubFraudStore(),
	}
	f.svc = service.NewReviewService(f.agents, f.stats, f.feedback, f.fraud, production, zap.NewNop())
	return f
}

// seedFeedbacks inserts n feedback rows for an agent from distinct consumers.
func (f *reviewFixture) seedFeedbacks(agentID string, n int) {
	for i := 0; i < n; i++ {
		f.feedback.seed(model.Feedback{AgentID: agentID, ConsumerID: "consumer-x", Rating: 0.5})
	}
}

func TestHealth_freshAgent(t *testing.T) {
	f := newReviewFixture(true, testAgent())

	report, err := f.svc.Health(context.Background(), "weather-br")
	if err != nil {
		t.Fatalf("Health: %v", err)
	}
	if report.Status != model.AgentStatusActive {
		t.Errorf("Status = %q", report.Status)
	}
	// 0.1 latency term + 0.2 fraud term with everything else at zero.
	if math.Abs(report.HealthScore-0.3) > 1e-9 {
		t.Errorf("HealthScore = %v, want 0.3", report.HealthScore)
	}
	if report.Metrics.TotalFeedbacks != 0 || report.Metrics.SuccessRate != 0 {
		t.Errorf("fresh agent metrics not zero: %+v", report.Metrics)
	}
	if len(report.Warnings) != 0 {
		t.Errorf("fresh agent warnings = %v", report.Warnings)
	}
	if report.QuarantineRisk != model.RiskLow {
		t.Errorf("QuarantineRisk = %q, want low", report.QuarantineRisk)
	}
}

func TestHealth_unknownAgent(t *testing.T) {
	f := newReviewFixture(true)
	_, err := f.svc.Health(context.Background(), "nope")
	if !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestHealth_healthyAgent(t *testing.T) {
	f := newReviewFixture(true, testAgent())
	f.stats.seed(model.AgentStats{
		AgentID: "weather-br", CallsTotal: 100, CallsSuccess: 95,
		AvgLatencyMS: 500, AvgRating: 0.9,
	})
	f.seedFeedbacks("weather-br", 100)

	report, err := f.svc.Health(context.Background(), "weather-br")
	if err != nil {
		t.Fatal(err)
	}
	// 0.4·0.95 + 0.3·0.9 + 0.1·(1−0.05) + 0.2·1 = 0.945.
	if math.Abs(report.HealthScore-0.945) > 1e-9 {
		t.Errorf("HealthScore = %v, want 0.945", report.HealthScore)
	}
	if len(report.Warnings) != 0 {
		t.Errorf("Warnings = %v", report.Warnings)
	}
	if report.QuarantineRisk != model.RiskLow {
		t.Errorf("QuarantineRisk = %q", report.QuarantineRisk)
	}
}

func TestHealth_warningsRaiseRiskToMedium(t *testing.T) {
	f := newReviewFixture(true, testAgent())
	// Degraded but under every quarantine threshold.
	f.stats.seed(model.AgentStats{
		AgentID: "weather-br", CallsTotal: 10, CallsSuccess: 3,
		AvgLatencyMS: 15000, AvgRating: 0.32,
	})
	f.seedFeedbacks("weather-br", 10)

	report, err := f.svc.Health(context.Background(), "weather-br")
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Warnings) != 3 {
		t.Fatalf("Warnings = %v, want 3", report.Warnings)
	}
	if !strings.Contains(report.Warnings[0], "Success rate") {
		t.Errorf("first warning = %q", report.Warnings[0])
	}
	if report.QuarantineRisk != model.RiskMedium {
		t.Errorf("QuarantineRisk = %q, want medium", report.QuarantineRisk)
	}
}

func TestHealth_tier1MetricsRaiseRiskToHigh(t *testing.T) {
	f := newReviewFixture(true, testAgent())
	f.stats.seed(model.AgentStats{
		AgentID: "weather-br", CallsTotal: 25, CallsSuccess: 7,
		AvgLatencyMS: 800, AvgRating: 0.6,
	})
	f.seedFeedbacks("weather-br", 25)

	report, err := f.svc.Health(context.Background(), "weather-br")
	if err != nil {
		t.Fatal(err)
	}
	if report.QuarantineRisk != model.RiskHigh {
		t.Errorf("QuarantineRisk = %q, want high", report.QuarantineRisk)
	}
}

func TestHealth_quarantinedAndBannedRisk(t *testing.T) {
	quarantined := testAgent()
	quarantined.ID = "q-agent"
	quarantined.Status = model.AgentStatusQuarantine
	banned := testAgent()
	banned.ID = "b-agent"
	banned.Status = model.AgentStatusBanned
	f := newReviewFixture(true, quarantined, banned)

	report, err := f.svc.Health(context.Background(), "q-agent")
	if err != nil {
		t.Fatal(err)
	}
	if report.QuarantineRisk != model.RiskHigh {
		t.Errorf("quarantined risk = %q, want high", report.QuarantineRisk)
	}

	report, err = f.svc.Health(context.Background(), "b-agent")
	if err != nil {
		t.Fatal(err)
	}
	if report.QuarantineRisk != model.RiskCritical {
		t.Errorf("banned risk = %q, want critical", report.QuarantineRisk)
	}
}

func TestHealth_quarantinedMeetingBanThresholdIsCritical(t *testing.T) {
	agent := testAgent()
	agent.Status = model.AgentStatusQuarantine
	f := newReviewFixture(true, agent)
	f.seedFeedbacks("weather-br", 10)
	f.fraud.seed(model.FraudSpam, "weather-br", 8)

	report, err := f.svc.Health(context.Background(), "weather-br")
	if err != nil {
		t.Fatal(err)
	}
	if report.Metrics.FraudPercentage != 80 {
		t.Errorf("FraudPercentage = %v, want 80", report.Metrics.FraudPercentage)
	}
	if report.QuarantineRisk != model.RiskCritical {
		t.Errorf("QuarantineRisk = %q, want critical", report.QuarantineRisk)
	}
}

func TestHealth_selfRatingPercentage(t *testing.T) {
	f := newReviewFixture(true, testAgent())
	f.seedFeedbacks("weather-br", 10)
	f.fraud.seed(model.FraudSelfRating, "weather-br", 6)

	report, err := f.svc.Health(context.Background(), "weather-br")
	if err != nil {
		t.Fatal(err)
	}
	if report.Metrics.SelfRatingPercentage != 60 {
		t.Errorf("SelfRatingPercentage = %v, want 60", report.Metrics.SelfRatingPercentage)
	}
}

func TestHealth_developmentReportsLowAndCleanFraud(t *testing.T) {
	f := newReviewFixture(false, testAgent())
	f.stats.seed(model.AgentStats{
		AgentID: "weather-br", CallsTotal: 50, CallsSuccess: 5,
		AvgLatencyMS: 40000, AvgRating: 0.1,
	})
	f.seedFeedbacks("weather-br", 50)
	f.fraud.seed(model.FraudSpam, "weather-br", 40)

	report, err := f.svc.Health(context.Background(), "weather-br")
	if err != nil {
		t.Fatal(err)
	}
	if report.Metrics.FraudPercentage != 0 {
		t.Errorf("FraudPercentage = %v, want 0 in development", report.Metrics.FraudPercentage)
	}
	if report.QuarantineRisk != model.RiskLow {
		t.Errorf("QuarantineRisk = %q, want low in development", report.QuarantineRisk)
	}
}

func TestAutoReview_developmentIsNoop(t *testing.T) {
	f := newReviewFixture(false, testAgent())
	f.stats.seed(model.AgentStats{AgentID: "weather-br", CallsTotal: 50, CallsSuccess: 2})

	summary, err := f.svc.AutoReview(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if summary.Scanned != 0 || summary.Quarantined != 0 {
		t.Errorf("summary = %+v, want all zero", summary)
	}
	agent, _ := f.agents.Get(context.Background(), "weather-br")
	if agent.Status != model.AgentStatusActive {
		t.Errorf("status changed in development: %q", agent.Status)
	}
}

func TestAutoReview_quarantinesLowSuccessRate(t *testing.T) {
	f := newReviewFixture(true, testAgent())
	f.stats.seed(model.AgentStats{
		AgentID: "weather-br", CallsTotal: 24, CallsSuccess: 8, AvgRating: 0.6,
	})

	summary, err := f.svc.AutoReview(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if summary.Scanned != 1 || summary.Quarantined != 1 {
		t.Errorf("summary = %+v", summary)
	}

	agent, _ := f.agents.Get(context.Background(), "weather-br")
	if agent.Status != model.AgentStatusQuarantine {
		t.Fatalf("Status = %q, want quarantined", agent.Status)
	}
	if agent.QuarantineReason == nil || !strings.Contains(*agent.QuarantineReason, "Success rate") {
		t.Errorf("QuarantineReason = %v", agent.QuarantineReason)
	}
	if agent.QuarantineAt == nil {
		t.Error("QuarantineAt not set")
	}
}

func TestAutoReview_quarantinesHighFraudShare(t *testing.T) {
	f := newReviewFixture(true, testAgent())
	f.seedFeedbacks("weather-br", 10)
	f.fraud.seed(model.FraudSpam, "weather-br", 6)

	summary, err := f.svc.AutoReview(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if summary.Quarantined != 1 {
		t.Errorf("summary = %+v", summary)
	}
	agent, _ := f.agents.Get(context.Background(), "weather-br")
	if agent.QuarantineReason == nil || !strings.Contains(*agent.QuarantineReason, "Fraud rate") {
		t.Errorf("QuarantineReason = %v", agent.QuarantineReason)
	}
}

func TestAutoReview_healthyAgentUntouched(t *testing.T) {
	f := newReviewFixture(true, testAgent())
	f.stats.seed(model.AgentStats{
		AgentID: "weather-br", CallsTotal: 100, CallsSuccess: 90,
		AvgLatencyMS: 400, AvgRating: 0.8,
	})

	summary, err := f.svc.AutoReview(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if summary.Scanned != 1 || summary.Quarantined != 0 || summary.Banned != 0 || summary.Reactivated != 0 {
		t.Errorf("summary = %+v", summary)
	}
}

func TestAutoReview_bansFromQuarantine(t *testing.T) {
	agent := testAgent()
	agent.Status = model.AgentStatusQuarantine
	f := newReviewFixture(true, agent)
	f.stats.seed(model.AgentStats{
		AgentID: "weather-br", CallsTotal: 50, CallsSuccess: 5, AvgRating: 0.5,
	})

	summary, err := f.svc.AutoReview(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if summary.Banned != 1 {
		t.Errorf("summary = %+v", summary)
	}
	got, _ := f.agents.Get(context.Background(), "weather-br")
	if got.Status != model.AgentStatusBanned {
		t.Errorf("Status = %q, want banned", got.Status)
	}
}

func TestAutoReview_activeIsNeverBannedDirectly(t *testing.T) {
	f := newReviewFixture(true, testAgent())
	// Metrics bad enough for a ban, but an active agent only moves one
	// step per sweep.
	f.stats.seed(model.AgentStats{
		AgentID: "weather-br", CallsTotal: 50, CallsSuccess: 5, AvgRating: 0.1,
	})

	summary, err := f.svc.AutoReview(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if summary.Banned != 0 || summary.Quarantined != 1 {
		t.Errorf("summary = %+v", summary)
	}
	got, _ := f.agents.Get(context.Background(), "weather-br")
	if got.Status != model.AgentStatusQuarantine {
		t.Errorf("Status = %q, want quarantined", got.Status)
	}
}

func TestAutoReview_banOnSelfRatingShare(t *testing.T) {
	agent := testAgent()
	agent.Status = model.AgentStatusQuarantine
	f := newReviewFixture(true, agent)
	f.seedFeedbacks("weather-br", 10)
	f.fraud.seed(model.FraudSelfRating, "weather-br", 9)

	summary, err := f.svc.AutoReview(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if summary.Banned != 1 {
		t.Errorf("summary = %+v", summary)
	}
	got, _ := f.agents.Get(context.Background(), "weather-br")
	if got.QuarantineReason == nil || !strings.Contains(*got.QuarantineReason, "Self-rating") {
		t.Errorf("QuarantineReason = %v", got.QuarantineReason)
	}
}

func TestAutoReview_reactivation(t *testing.T) {
	agent := testAgent()
	agent.Status = model.AgentStatusQuarantine
	f := newReviewFixture(true, agent)
	f.stats.seed(model.AgentStats{
		AgentID: "weather-br", CallsTotal: 30, CallsSuccess: 18, AvgRating: 0.5,
	})

	summary, err := f.svc.AutoReview(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if summary.Reactivated != 1 {
		t.Errorf("summary = %+v", summary)
	}
	got, _ := f.agents.Get(context.Background(), "weather-br")
	if got.Status != model.AgentStatusActive {
		t.Errorf("Status = %q, want active", got.Status)
	}
	if got.QuarantineReason != nil || got.QuarantineAt != nil {
		t.Error("reactivation must clear the quarantine fields")
	}
}

func TestAutoReview_reactivationNeedsEveryCriterion(t *testing.T) {
	agent := testAgent()
	agent.Status = model.AgentStatusQuarantine
	f := newReviewFixture(true, agent)
	// Success recovered, rating did not.
	f.stats.seed(model.AgentStats{
		AgentID: "weather-br", CallsTotal: 30, CallsSuccess: 18, AvgRating: 0.2,
	})

	summary, err := f.svc.AutoReview(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if summary.Reactivated != 0 {
		t.Errorf("summary = %+v", summary)
	}
	got, _ := f.agents.Get(context.Background(), "weather-br")
	if got.Status != model.AgentStatusQuarantine {
		t.Errorf("Status = %q, want quarantined", got.Status)
	}
}

func TestAutoReview_bannedStaysBanned(t *testing.T) {
	agent := testAgent()
	agent.Status = model.AgentStatusBanned
	f := newReviewFixture(true, agent)
	f.stats.seed(model.AgentStats{
		AgentID: "weather-br", CallsTotal: 100, CallsSuccess: 100, AvgRating: 1,
	})

	summary, err := f.svc.AutoReview(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if summary.Reactivated != 0 || summary.Banned != 0 {
		t.Errorf("summary = %+v", summary)
	}
	got, _ := f.agents.Get(context.Background(), "weather-br")
	if got.Status != model.AgentStatusBanned {
		t.Errorf("Status = %q, want banned", got.Status)
	}
}
