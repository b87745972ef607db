package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/agoramesh/agora/internal/registry/model"
	"github.com/agoramesh/agora/internal/registry/repository"
	"github.com/agoramesh/agora/internal/scoring"
	"go.uber.org/zap"
)

const (
	// minScore drops candidates that match too weakly to be useful.
	minScore = 0.4
	// minGeoScore gates location-filtered searches: a candidate must reach
	// this geographic relevance unless it serves the Global scope.
	minGeoScore = 0.3
	// maxResults caps one response regardless of the requested limit.
	maxResults = 10
	// defaultLimit applies when the request carries no limit.
	defaultLimit = 10
)

// agentSearcher covers the candidate-selection queries.
// *repository.AgentRepository satisfies this interface.
type agentSearcher interface {
	SearchPrimary(ctx context.Context, intents, categories []string, language string) ([]*model.Agent, error)
	SearchByIntentLanguage(ctx context.Context, intents []string, language string) ([]*model.Agent, error)
	SearchFuzzy(ctx context.Context, intent string, limit int) ([]*model.Agent, error)
	ListAll(ctx context.Context) ([]*model.Agent, error)
}

// statsBatch loads per-agent stats for a candidate set.
// *repository.StatsRepository satisfies this interface.
type statsBatch interface {
	GetBatch(ctx context.Context, agentIDs []string) (map[string]*model.AgentStats, error)
}

// agentCounter counts rows per agent over a candidate set. Both
// *repository.FeedbackRepository and *repository.FraudRepository satisfy it.
type agentCounter interface {
	CountByAgents(ctx context.Context, agentIDs []string) (map[string]int64, error)
}

// callerGetter loads caller rows for execution-key minting.
// *repository.CallerRepository satisfies this interface.
type callerGetter interface {
	Get(ctx context.Context, callerID string) (*model.Caller, error)
}

// keyMinter signs short-lived execution keys.
// *identity.KeyService satisfies this interface.
type keyMinter interface {
	MintExecutionKey(storedSecret, consumerCallerID, agentID string) (string, time.Time, error)
}

// SearchService ranks registered agents against a consumer's request and
// attaches a fresh execution key to every hit.
type SearchService struct {
	agents     agentSearcher
	stats      statsBatch
	feedback   agentCounter
	fraud      agentCounter
	callers    callerGetter
	keys       keyMinter
	production bool
	debug      bool
	logger     *zap.Logger
}

// NewSearchService creates a new SearchService. When debug is set, each
// scored candidate's factor breakdown is written to the debug log.
func NewSearchService(agents agentSearcher, stats statsBatch, feedback, fraud agentCounter, callers callerGetter, keys keyMinter, production, debug bool, logger *zap.Logger) *SearchService {
	return &SearchService{
		agents:     agents,
		stats:      stats,
		feedback:   feedback,
		fraud:      fraud,
		callers:    callers,
		keys:       keys,
		production: production,
		debug:      debug,
		logger:     logger,
	}
}

type rankedAgent struct {
	agent     *model.Agent
	breakdown scoring.Breakdown
}

// Search runs the full pipeline: candidate selection with progressively
// looser queries, banned-agent removal, nine-factor scoring, threshold and
// geography filtering, ranking, and execution-key minting for the survivors.
func (s *SearchService) Search(ctx context.Context, consumerCallerID string, req *model.SearchRequest) ([]*model.SearchResult, error) {
	if len(req.Categories) == 0 {
		return nil, &model.ErrValidation{Msg: "at least one category is required"}
	}

	candidates, err := s.selectCandidates(ctx, req)
	if err != nil {
		return nil, err
	}

	eligible := make([]*model.Agent, 0, len(candidates))
	for _, agent := range candidates {
		if agent.Status == model.AgentStatusBanned {
			continue
		}
		eligible = append(eligible, agent)
	}
	if len(eligible) == 0 {
		return []*model.SearchResult{}, nil
	}

	ids := make([]string, len(eligible))
	for i, agent := range eligible {
		ids[i] = agent.ID
	}
	statsByID, err := s.stats.GetBatch(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load stats: %w", err)
	}
	fraudPct, err := s.fraudPercentages(ctx, ids)
	if err != nil {
		return nil, err
	}

	scoringReq := scoring.Request{
		Intents:     req.Intent,
		Categories:  req.Categories,
		Tags:        req.Tags,
		Location:    req.Location,
		Description: req.Description,
	}
	ranked := make([]rankedAgent, 0, len(eligible))
	for _, agent := range eligible {
		b := scoring.Score(scoringReq, candidateOf(agent), statsOf(statsByID[agent.ID]), fraudPct[agent.ID])
		if s.debug {
			s.logger.Debug("search candidate scored",
				zap.String("agent_id", agent.ID),
				zap.Float64("intent", b.Intent),
				zap.Float64("geo", b.Geo),
				zap.Float64("success", b.Success),
				zap.Float64("description", b.Description),
				zap.Float64("category", b.Category),
				zap.Float64("rating", b.Rating),
				zap.Float64("tag", b.Tag),
				zap.Float64("latency", b.Latency),
				zap.Float64("fraud", b.Fraud),
				zap.Float64("penalty", b.Penalty),
				zap.Float64("total", b.Total),
			)
		}
		if b.Total < minScore {
			continue
		}
		if req.Location != "" && b.Geo < minGeoScore && agent.LocationScope != "Global" {
			continue
		}
		ranked = append(ranked, rankedAgent{agent: agent, breakdown: b})
	}

	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].breakdown.Total != ranked[j].breakdown.Total {
			return ranked[i].breakdown.Total > ranked[j].breakdown.Total
		}
		return ranked[i].agent.ID < ranked[j].agent.ID
	})

	limit := req.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxResults {
		limit = maxResults
	}
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}

	return s.buildResults(ctx, consumerCallerID, ranked)
}

// selectCandidates tries progressively looser queries until one returns
// rows: exact intent with categories and language, intent and language
// only, trigram similarity on the first intent, then the whole registry.
func (s *SearchService) selectCandidates(ctx context.Context, req *model.SearchRequest) ([]*model.Agent, error) {
	candidates, err := s.agents.SearchPrimary(ctx, req.Intent, req.Categories, req.Language)
	if err != nil {
		return nil, fmt.Errorf("primary search: %w", err)
	}
	if len(candidates) == 0 && len(req.Intent) > 0 {
		candidates, err = s.agents.SearchByIntentLanguage(ctx, req.Intent, req.Language)
		if err != nil {
			return nil, fmt.Errorf("intent search: %w", err)
		}
	}
	if len(candidates) == 0 && len(req.Intent) > 0 {
		candidates, err = s.agents.SearchFuzzy(ctx, req.Intent[0], req.Limit)
		if err != nil {
			return nil, fmt.Errorf("fuzzy search: %w", err)
		}
	}
	if len(candidates) == 0 {
		candidates, err = s.agents.ListAll(ctx)
		if err != nil {
			return nil, fmt.Errorf("list agents: %w", err)
		}
	}
	return candidates, nil
}

// fraudPercentages computes each candidate's fraud share of its feedback
// volume, capped at 100. Outside production the scorer sees clean agents.
func (s *SearchService) fraudPercentages(ctx context.Context, ids []string) (map[string]float64, error) {
	pct := make(map[string]float64, len(ids))
	if !s.production {
		return pct, nil
	}
	feedbacks, err := s.feedback.CountByAgents(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("count feedbacks: %w", err)
	}
	frauds, err := s.fraud.CountByAgents(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("count fraud detections: %w", err)
	}
	for _, id := range ids {
		if feedbacks[id] == 0 {
			continue
		}
		pct[id] = math.Min(100, float64(frauds[id])/float64(feedbacks[id])*100)
	}
	return pct, nil
}

// buildResults mints one execution key per hit, signed with the provider's
// stored secret. Caller rows are fetched once per provider; a missing or
// unreadable row falls back to the master secret inside the key service.
func (s *SearchService) buildResults(ctx context.Context, consumerCallerID string, ranked []rankedAgent) ([]*model.SearchResult, error) {
	secrets := make(map[string]string, len(ranked))
	results := make([]*model.SearchResult, 0, len(ranked))
	for _, r := range ranked {
		agent := r.agent
		secret, ok := secrets[agent.CallerID]
		if !ok {
			caller, err := s.callers.Get(ctx, agent.CallerID)
			switch {
			case err == nil:
				secret = caller.Credential
			case errors.Is(err, repository.ErrNotFound):
				secret = ""
			default:
				return nil, fmt.Errorf("load provider caller: %w", err)
			}
			secrets[agent.CallerID] = secret
		}

		key, expiresAt, err := s.keys.MintExecutionKey(secret, consumerCallerID, agent.ID)
		if err != nil {
			return nil, fmt.Errorf("mint execution key: %w", err)
		}
		results = append(results, &model.SearchResult{
			ID:            agent.ID,
			Name:          agent.Name,
			Endpoint:      agent.Endpoint,
			Description:   agent.Description,
			CallerID:      agent.CallerID,
			Tags:          agent.Tags,
			Intents:       agent.Intents,
			Tasks:         agent.Tasks,
			Categories:    agent.Categories,
			LocationScope: agent.LocationScope,
			Score:         math.Round(r.breakdown.Total*100) / 100,
			InputSchema:   agent.InputSchema,
			ExecutionKey:  key,
			KeyExpiresAt:  expiresAt,
		})
	}
	return results, nil
}

func candidateOf(agent *model.Agent) scoring.Candidate {
	return scoring.Candidate{
		Intents:     agent.Intents,
		Categories:  agent.Categories,
		Tags:        agent.Tags,
		Description: agent.Description,
		Location:    agent.LocationScope,
		Quarantined: agent.Status == model.AgentStatusQuarantine,
	}
}

func statsOf(st *model.AgentStats) *scoring.Stats {
	if st == nil {
		return nil
	}
	return &scoring.Stats{
		CallsTotal:   st.CallsTotal,
		CallsSuccess: st.CallsSuccess,
		AvgLatencyMS: st.AvgLatencyMS,
		AvgRating:    st.AvgRating,
	}
}
