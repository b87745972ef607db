package service_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/agoramesh/agora/internal/registry/model"
	"github.com/agoramesh/agora/internal/registry/service"
	"go.uber.org/zap"
)

func validRegisterRequest() *model.RegisterRequest {
	return &model.RegisterRequest{
		ID:          "weather-br",
		Name:        "Weather Brazil",
		Endpoint:    "https://weather.example.com/execute",
		Description: "Hourly forecasts for Brazilian cities",
		Intents:     []string{"weather.forecast"},
		Categories:  []string{"weather"},
		Languages:   []string{"pt"},
	}
}

func newTestAgents(store *stubAgentStore, stats *stubStatsStore, production bool) *service.AgentService {
	return service.NewAgentService(store, stats, production, zap.NewNop())
}

func TestRegister_appliesDefaults(t *testing.T) {
	store := newStubAgentStore()
	stats := newStubStatsStore()
	svc := newTestAgents(store, stats, true)

	agent, err := svc.Register(context.Background(), "provider-abc123", validRegisterRequest())
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if agent.Status != model.AgentStatusActive {
		t.Errorf("Status = %q, want active", agent.Status)
	}
	if agent.CallerID != "provider-abc123" {
		t.Errorf("CallerID = %q", agent.CallerID)
	}
	if agent.LocationScope != "Global" {
		t.Errorf("LocationScope default = %q, want Global", agent.LocationScope)
	}
	if agent.Version != "1.0.0" {
		t.Errorf("Version default = %q, want 1.0.0", agent.Version)
	}
	if agent.Tags == nil || agent.Tasks == nil {
		t.Error("Tags and Tasks must be non-nil slices")
	}

	if _, err := store.Get(context.Background(), "weather-br"); err != nil {
		t.Errorf("agent not stored: %v", err)
	}
	if len(stats.ensured) != 1 || stats.ensured[0] != "weather-br" {
		t.Errorf("stats row not ensured: %v", stats.ensured)
	}
}

func TestRegister_requiredFields(t *testing.T) {
	svc := newTestAgents(newStubAgentStore(), newStubStatsStore(), true)

	cases := []struct {
		name   string
		mutate func(*model.RegisterRequest)
	}{
		{"missing id", func(r *model.RegisterRequest) { r.ID = "" }},
		{"missing name", func(r *model.RegisterRequest) { r.Name = "" }},
		{"missing endpoint", func(r *model.RegisterRequest) { r.Endpoint = "" }},
		{"missing description", func(r *model.RegisterRequest) { r.Description = "" }},
		{"no intents", func(r *model.RegisterRequest) { r.Intents = nil }},
		{"no categories", func(r *model.RegisterRequest) { r.Categories = nil }},
		{"no languages", func(r *model.RegisterRequest) { r.Languages = nil }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := validRegisterRequest()
			tc.mutate(req)
			_, err := svc.Register(context.Background(), "provider-abc123", req)
			var verr *model.ErrValidation
			if !errors.As(err, &verr) {
				t.Errorf("expected validation error, got %v", err)
			}
		})
	}
}

func TestRegister_endpointPolicy(t *testing.T) {
	cases := []struct {
		name       string
		endpoint   string
		production bool
		wantErr    bool
	}{
		{"https in production", "https://a.example.com/run", true, false},
		{"http in production", "http://a.example.com/run", true, true},
		{"http localhost in production", "http://localhost:3000/run", true, true},
		{"http localhost in development", "http://localhost:3000/run", false, false},
		{"http loopback in development", "http://127.0.0.1:3000/run", false, false},
		{"http external in development", "http://a.example.com/run", false, true},
		{"ftp scheme", "ftp://a.example.com/run", false, true},
		{"not a url", "not a url", true, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := newTestAgents(newStubAgentStore(), newStubStatsStore(), tc.production)
			req := validRegisterRequest()
			req.Endpoint = tc.endpoint
			_, err := svc.Register(context.Background(), "provider-abc123", req)
			if tc.wantErr {
				var verr *model.ErrValidation
				if !errors.As(err, &verr) {
					t.Errorf("expected validation error, got %v", err)
				}
				return
			}
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestRegister_inputSchema(t *testing.T) {
	svc := newTestAgents(newStubAgentStore(), newStubStatsStore(), true)

	req := validRegisterRequest()
	req.InputSchema = json.RawMessage(`{"type": "object", "properties": {"city": {"type": "string"}}}`)
	if _, err := svc.Register(context.Background(), "provider-abc123", req); err != nil {
		t.Fatalf("valid schema rejected: %v", err)
	}

	req = validRegisterRequest()
	req.InputSchema = json.RawMessage(`{"type": 12}`)
	_, err := svc.Register(context.Background(), "provider-abc123", req)
	var verr *model.ErrValidation
	if !errors.As(err, &verr) {
		t.Errorf("expected validation error for bad schema, got %v", err)
	}
}

func TestRegister_keepsStatusOnReregistration(t *testing.T) {
	reason := "Success rate 10% below 40% over 20 calls"
	store := newStubAgentStore(&model.Agent{
		ID:               "weather-br",
		Status:           model.AgentStatusQuarantine,
		QuarantineReason: &reason,
	})
	svc := newTestAgents(store, newStubStatsStore(), true)

	req := validRegisterRequest()
	req.Name = "Weather Brazil v2"
	if _, err := svc.Register(context.Background(), "provider-abc123", req); err != nil {
		t.Fatalf("Register: %v", err)
	}

	stored, err := store.Get(context.Background(), "weather-br")
	if err != nil {
		t.Fatal(err)
	}
	if stored.Status != model.AgentStatusQuarantine {
		t.Errorf("re-registration cleared quarantine: status = %q", stored.Status)
	}
	if stored.Name != "Weather Brazil v2" {
		t.Errorf("payload fields must still update: Name = %q", stored.Name)
	}
}
