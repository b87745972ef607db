package service

import (
	"bytes"
	"context"
	"fmt"
	"net/url"

	"github.com/agoramesh/agora/internal/registry/model"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"go.uber.org/zap"
)

// agentRepo is the persistence interface for the agent service.
// *repository.AgentRepository satisfies this interface.
type agentRepo interface {
	Upsert(ctx context.Context, agent *model.Agent) error
}

// statsEnsurer creates the empty stats row at registration.
// *repository.StatsRepository satisfies this interface.
type statsEnsurer interface {
	Ensure(ctx context.Context, agentID string) error
}

// AgentService contains the registration logic for provider agents.
type AgentService struct {
	agents     agentRepo
	stats      statsEnsurer
	production bool
	logger     *zap.Logger
}

// NewAgentService creates a new AgentService. production tightens endpoint
// validation to https-only.
func NewAgentService(agents agentRepo, stats statsEnsurer, production bool, logger *zap.Logger) *AgentService {
	return &AgentService{
		agents:     agents,
		stats:      stats,
		production: production,
		logger:     logger,
	}
}

// Register validates and persists an agent for the authenticated provider.
// Re-registering an existing id overwrites every payload field, including
// the owning caller, but never resets the agent's lifecycle status.
func (s *AgentService) Register(ctx context.Context, providerCallerID string, req *model.RegisterRequest) (*model.Agent, error) {
	if err := s.validate(req); err != nil {
		return nil, err
	}

	agent := &model.Agent{
		ID:            req.ID,
		Name:          req.Name,
		Endpoint:      req.Endpoint,
		Description:   req.Description,
		Intents:       req.Intents,
		Tasks:         req.Tasks,
		Tags:          req.Tags,
		Categories:    req.Categories,
		LocationScope: req.LocationScope,
		Languages:     req.Languages,
		Version:       req.Version,
		InputSchema:   req.InputSchema,
		Meta:          req.Meta,
		CallerID:      providerCallerID,
		Status:        model.AgentStatusActive,
	}
	if agent.LocationScope == "" {
		agent.LocationScope = "Global"
	}
	if agent.Version == "" {
		agent.Version = "1.0.0"
	}
	if agent.Tasks == nil {
		agent.Tasks = []string{}
	}
	if agent.Tags == nil {
		agent.Tags = []string{}
	}

	if err := s.agents.Upsert(ctx, agent); err != nil {
		return nil, fmt.Errorf("store agent: %w", err)
	}
	if err := s.stats.Ensure(ctx, agent.ID); err != nil {
		return nil, fmt.Errorf("ensure stats row: %w", err)
	}

	s.logger.Info("agent registered",
		zap.String("agent_id", agent.ID),
		zap.String("caller_id", providerCallerID),
	)
	return agent, nil
}

func (s *AgentService) validate(req *model.RegisterRequest) error {
	switch {
	case req.ID == "":
		return &model.ErrValidation{Msg: "id is required"}
	case req.Name == "":
		return &model.ErrValidation{Msg: "name is required"}
	case req.Endpoint == "":
		return &model.ErrValidation{Msg: "endpoint is required"}
	case req.Description == "":
		return &model.ErrValidation{Msg: "description is required"}
	case len(req.Intents) == 0:
		return &model.ErrValidation{Msg: "at least one intent is required"}
	case len(req.Categories) == 0:
		return &model.ErrValidation{Msg: "at least one category is required"}
	case len(req.Languages) == 0:
		return &model.ErrValidation{Msg: "at least one language is required"}
	}

	if err := s.validateEndpoint(req.Endpoint); err != nil {
		return err
	}
	if len(req.InputSchema) > 0 {
		if err := validateSchema(req.InputSchema); err != nil {
			return err
		}
	}
	return nil
}

// validateEndpoint enforces the endpoint policy: https everywhere, with
// plain http tolerated for loopback hosts in development.
func (s *AgentService) validateEndpoint(endpoint string) error {
	u, err := url.Parse(endpoint)
	if err != nil || u.Host == "" {
		return &model.ErrValidation{Msg: "endpoint must be a valid URL"}
	}
	switch u.Scheme {
	case "https":
		return nil
	case "http":
		if s.production {
			return &model.ErrValidation{Msg: "endpoint must use https"}
		}
		if host := u.Hostname(); host == "localhost" || host == "127.0.0.1" {
			return nil
		}
		return &model.ErrValidation{Msg: "http endpoints are only allowed for localhost"}
	default:
		return &model.ErrValidation{Msg: "endpoint must use http or https"}
	}
}

// validateSchema compiles the declared input schema so consumers never
// receive a schema their validators would choke on.
func validateSchema(schema []byte) error {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("input_schema.json", bytes.NewReader(schema)); err != nil {
		return &model.ErrValidation{Msg: "input_schema is not valid JSON: " + err.Error()}
	}
	if _, err := compiler.Compile("input_schema.json"); err != nil {
		return &model.ErrValidation{Msg: "input_schema is not a valid JSON schema: " + err.Error()}
	}
	return nil
}
