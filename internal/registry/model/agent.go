package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// AgentStatus represents the lifecycle state of a registered agent.
type AgentStatus string

const (
	AgentStatusActive     AgentStatus = "active"
	AgentStatusQuarantine AgentStatus = "quarantine"
	AgentStatusBanned     AgentStatus = "banned"
)

// Agent is the core domain model: a provider-owned HTTP service advertised
// for discovery. location_scope is either "Global" or a comma-separated
// "city,state,country" string.
type Agent struct {
	ID               string          `json:"id"                          db:"id"`
	Name             string          `json:"name"                        db:"name"`
	Endpoint         string          `json:"endpoint"                    db:"endpoint"`
	Description      string          `json:"description"                 db:"description"`
	Intents          []string        `json:"intents"                     db:"intents"`
	Tasks            []string        `json:"tasks"                       db:"tasks"`
	Tags             []string        `json:"tags"                        db:"tags"`
	Categories       []string        `json:"categories"                  db:"categories"`
	LocationScope    string          `json:"location_scope"              db:"location_scope"`
	Languages        []string        `json:"languages"                   db:"languages"`
	Version          string          `json:"version"                     db:"version"`
	InputSchema      json.RawMessage `json:"input_schema,omitempty"      db:"input_schema"`
	Meta             json.RawMessage `json:"meta,omitempty"              db:"meta"`
	CallerID         string          `json:"caller_id"                   db:"caller_id"`
	Status           AgentStatus     `json:"status"                      db:"status"`
	QuarantineReason *string         `json:"quarantine_reason,omitempty" db:"quarantine_reason"`
	QuarantineAt     *time.Time      `json:"quarantine_at,omitempty"     db:"quarantine_at"`
	CreatedAt        time.Time       `json:"created_at"                  db:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"                  db:"updated_at"`
}

// AgentStats holds the running per-agent quality counters, 1:1 with Agent.
// Written only by the feedback pipeline; never reset.
type AgentStats struct {
	AgentID        string     `json:"agent_id"                   db:"agent_id"`
	CallsTotal     int64      `json:"calls_total"                db:"calls_total"`
	CallsSuccess   int64      `json:"calls_success"              db:"calls_success"`
	AvgLatencyMS   float64    `json:"avg_latency_ms"             db:"avg_latency_ms"`
	AvgRating      float64    `json:"avg_rating"                 db:"avg_rating"`
	LastFeedbackAt *time.Time `json:"last_feedback_at,omitempty" db:"last_feedback_at"`
}

// SuccessRate returns calls_success/calls_total, or 0 with no calls.
func (s *AgentStats) SuccessRate() float64 {
	if s == nil || s.CallsTotal == 0 {
		return 0
	}
	return float64(s.CallsSuccess) / float64(s.CallsTotal)
}

// RegisterRequest is the payload for registering (or re-registering) an agent.
type RegisterRequest struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	Endpoint      string          `json:"endpoint"`
	Description   string          `json:"description"`
	Intents       []string        `json:"intents"`
	Tasks         []string        `json:"tasks"`
	Tags          []string        `json:"tags"`
	Categories    []string        `json:"categories"`
	LocationScope string          `json:"location_scope"`
	Languages     []string        `json:"languages"`
	Version       string          `json:"version"`
	InputSchema   json.RawMessage `json:"input_schema,omitempty"`
	Meta          json.RawMessage `json:"meta,omitempty"`
}

// StringList decodes JSON that may be a single string, an array of strings,
// or null. Search clients send "intent" in both scalar and array form.
type StringList []string

// UnmarshalJSON implements json.Unmarshaler.
func (l *StringList) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		if single == "" {
			*l = nil
			return nil
		}
		*l = StringList{single}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err == nil {
		*l = StringList(many)
		return nil
	}
	var null any
	if err := json.Unmarshal(data, &null); err == nil && null == nil {
		*l = nil
		return nil
	}
	return fmt.Errorf("expected string or array of strings")
}

// SearchRequest is the consumer-facing search payload.
type SearchRequest struct {
	Intent      StringList `json:"intent"`
	Categories  []string   `json:"categories"`
	Tags        []string   `json:"tags"`
	Location    string     `json:"location"`
	Language    string     `json:"language"`
	Description string     `json:"description"`
	Limit       int        `json:"limit"`
}

// SearchResult is one ranked search hit, including the execution key the
// consumer presents to the provider's /execute endpoint.
type SearchResult struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	Endpoint      string          `json:"endpoint"`
	Description   string          `json:"description"`
	CallerID      string          `json:"caller_id"`
	Tags          []string        `json:"tags"`
	Intents       []string        `json:"intents"`
	Tasks         []string        `json:"tasks"`
	Categories    []string        `json:"categories"`
	LocationScope string          `json:"location_scope"`
	Score         float64         `json:"score"`
	InputSchema   json.RawMessage `json:"input_schema,omitempty"`
	ExecutionKey  string          `json:"execution_key"`
	KeyExpiresAt  time.Time       `json:"key_expires_at"`
}
