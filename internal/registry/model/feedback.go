package model

import (
	"encoding/json"
	"time"
)

// Feedback is an immutable record of one consumer's report on one agent call.
type Feedback struct {
	ID         int64     `json:"id"          db:"id"`
	AgentID    string    `json:"agent_id"    db:"agent_id"`
	ConsumerID string    `json:"consumer_id" db:"consumer_id"`
	Success    bool      `json:"success"     db:"success"`
	LatencyMS  float64   `json:"latency_ms"  db:"latency_ms"`
	Rating     float64   `json:"rating"      db:"rating"`
	CreatedAt  time.Time `json:"created_at"  db:"created_at"`
}

// FeedbackRequest is the consumer-facing feedback payload. Rating and
// latency are pointers so "missing" can be told apart from zero.
type FeedbackRequest struct {
	AgentID   string   `json:"agent_id"`
	Success   bool     `json:"success"`
	LatencyMS *float64 `json:"latency_ms"`
	Rating    *float64 `json:"rating"`
}

// FraudType labels a fraud-detection log entry.
type FraudType string

const (
	FraudSelfRating       FraudType = "SELF_RATING"
	FraudSpam             FraudType = "SPAM"
	FraudRatingPattern    FraudType = "RATING_PATTERN"
	FraudLatencyInconsist FraudType = "LATENCY_INCONSISTENT"
)

// FraudSeverity grades a fraud-detection log entry.
type FraudSeverity string

const (
	SeverityLow      FraudSeverity = "LOW"
	SeverityMedium   FraudSeverity = "MEDIUM"
	SeverityHigh     FraudSeverity = "HIGH"
	SeverityCritical FraudSeverity = "CRITICAL"
)

// FraudDetection is an immutable audit entry produced by the anti-fraud
// analysis. Rows are retained for 30 days.
type FraudDetection struct {
	ID         int64           `json:"id"                    db:"id"`
	AgentID    string          `json:"agent_id"              db:"agent_id"`
	ConsumerID *string         `json:"consumer_id,omitempty" db:"consumer_id"`
	Type       FraudType       `json:"fraud_type"            db:"fraud_type"`
	Severity   FraudSeverity   `json:"severity"              db:"severity"`
	Details    json.RawMessage `json:"details,omitempty"     db:"details"`
	DetectedAt time.Time       `json:"detected_at"           db:"detected_at"`
}
