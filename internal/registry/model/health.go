package model

import "time"

// QuarantineRisk summarizes how close an agent is to a status transition.
type QuarantineRisk string

const (
	RiskLow      QuarantineRisk = "low"
	RiskMedium   QuarantineRisk = "medium"
	RiskHigh     QuarantineRisk = "high"
	RiskCritical QuarantineRisk = "critical"
)

// HealthMetrics are the raw numbers behind an agent's health report.
type HealthMetrics struct {
	SuccessRate          float64 `json:"success_rate"`
	AvgRating            float64 `json:"avg_rating"`
	AvgLatencyMS         float64 `json:"avg_latency_ms"`
	TotalFeedbacks       int64   `json:"total_feedbacks"`
	FraudDetected        int64   `json:"fraud_detected"`
	FraudPercentage      float64 `json:"fraud_percentage"`
	SelfRatingPercentage float64 `json:"self_rating_percentage"`
}

// HealthReport is the on-demand per-agent health summary.
type HealthReport struct {
	AgentID          string         `json:"agent_id"`
	Status           AgentStatus    `json:"status"`
	HealthScore      float64        `json:"health_score"`
	Metrics          HealthMetrics  `json:"metrics"`
	Warnings         []string       `json:"warnings"`
	QuarantineRisk   QuarantineRisk `json:"quarantine_risk"`
	QuarantineReason *string        `json:"quarantine_reason,omitempty"`
	QuarantineAt     *time.Time     `json:"quarantine_at,omitempty"`
}

// ReviewSummary reports the transitions applied by one auto-review sweep.
type ReviewSummary struct {
	Scanned     int `json:"scanned"`
	Quarantined int `json:"quarantined"`
	Reactivated int `json:"reactivated"`
	Banned      int `json:"banned"`
}
