package service_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/agoramesh/agora/internal/identity"
	"github.com/agoramesh/agora/internal/registry/model"
	"github.com/agoramesh/agora/internal/registry/service"
	"github.com/agoramesh/agora/pkg/execkey"
	"go.uber.org/zap"
)

// stubAgentSearcher returns canned candidate sets and records which of the
// progressively looser queries were consulted.
type stubAgentSearcher struct {
	primary  []*model.Agent
	byIntent []*model.Agent
	fuzzy    []*model.Agent
	all      []*model.Agent
	queries  []string
}

func (s *stubAgentSearcher) SearchPrimary(_ context.Context, _, _ []string, _ string) ([]*model.Agent, error) {
	s.queries = append(s.queries, "primary")
	return s.primary, nil
}

func (s *stubAgentSearcher) SearchByIntentLanguage(_ context.Context, _ []string, _ string) ([]*model.Agent, error) {
	s.queries = append(s.queries, "intent")
	return s.byIntent, nil
}

func (s *stubAgentSearcher) SearchFuzzy(_ context.Context, _ string, _ int) ([]*model.Agent, error) {
	s.queries = append(s.queries, "fuzzy")
	return s.fuzzy, nil
}

func (s *stubAgentSearcher) ListAll(_ context.Context) ([]*model.Agent, error) {
	s.queries = append(s.queries, "all")
	return s.all, nil
}

type searchFixture struct {
	svc      *service.SearchService
	searcher *stubAgentSearcher
	stats    *stubStatsStore
	feedback *stubFeedbackStore
	fraud    *stubFraudStore
	callers  *stubCallerStore
}

func newSearchFixture(t *testing.T, production bool) *searchFixture {
	t.Helper()
	f := &searchFixture{
		searcher: &stubAgentSearcher{},
		stats:    newStubStatsStore(),
		feedback: newStubFeedbackStore(),
		fraud:    newStubFraudStore(),
		callers:  newStubCallerStore(),
	}
	keys := identity.NewKeyService(testMasterSecret)
	f.svc = service.NewSearchService(f.searcher, f.stats, f.feedback, f.fraud, f.callers,
		keys, production, false, zap.NewNop())
	return f
}

// searchAgent matches searchRequest with a total score of 0.61.
func searchAgent(id string) *model.Agent {
	return &model.Agent{
		ID:            id,
		Name:          "Agent " + id,
		Endpoint:      "https://" + id + ".example.com/execute",
		Description:   "Hourly forecasts",
		Intents:       []string{"weather.forecast"},
		Tasks:         []string{},
		Tags:          []string{},
		Categories:    []string{"weather"},
		LocationScope: "Global",
		Languages:     []string{"en"},
		CallerID:      "provider-abc123",
		Status:        model.AgentStatusActive,
	}
}

func searchRequest() *model.SearchRequest {
	return &model.SearchRequest{
		Intent:     model.StringList{"weather.forecast"},
		Categories: []string{"weather"},
	}
}

func TestSearch_missingCategoriesRejected(t *testing.T) {
	f := newSearchFixture(t, false)
	f.searcher.primary = []*model.Agent{searchAgent("weather-br")}

	req := &model.SearchRequest{Intent: model.StringList{"weather.forecast"}}
	_, err := f.svc.Search(context.Background(), "consumer-1", req)
	var verr *model.ErrValidation
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if len(f.searcher.queries) != 0 {
		t.Errorf("queries = %v, want none before validation", f.searcher.queries)
	}
}

func TestSearch_primaryHitStopsFallback(t *testing.T) {
	f := newSearchFixture(t, false)
	f.searcher.primary = []*model.Agent{searchAgent("weather-br")}

	results, err := f.svc.Search(context.Background(), "consumer-1", searchRequest())
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("results = %d, want 1", len(results))
	}
	if results[0].Score != 0.61 {
		t.Errorf("Score = %v, want 0.61", results[0].Score)
	}
	if len(f.searcher.queries) != 1 || f.searcher.queries[0] != "primary" {
		t.Errorf("queries = %v, want [primary]", f.searcher.queries)
	}
}

func TestSearch_fallbackChain(t *testing.T) {
	f := newSearchFixture(t, false)
	f.searcher.all = []*model.Agent{searchAgent("weather-br")}

	results, err := f.svc.Search(context.Background(), "consumer-1", searchRequest())
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("results = %d, want 1", len(results))
	}
	want := []string{"primary", "intent", "fuzzy", "all"}
	if fmt.Sprint(f.searcher.queries) != fmt.Sprint(want) {
		t.Errorf("queries = %v, want %v", f.searcher.queries, want)
	}
}

func TestSearch_noIntentSkipsIntentFallbacks(t *testing.T) {
	f := newSearchFixture(t, false)
	f.searcher.all = []*model.Agent{searchAgent("weather-br")}

	req := &model.SearchRequest{Categories: []string{"weather"}}
	if _, err := f.svc.Search(context.Background(), "consumer-1", req); err != nil {
		t.Fatalf("Search: %v", err)
	}
	want := []string{"primary", "all"}
	if fmt.Sprint(f.searcher.queries) != fmt.Sprint(want) {
		t.Errorf("queries = %v, want %v", f.searcher.queries, want)
	}
}

func TestSearch_bannedNeverReturned(t *testing.T) {
	f := newSearchFixture(t, false)
	banned := searchAgent("banned-agent")
	banned.Status = model.AgentStatusBanned
	f.searcher.primary = []*model.Agent{banned, searchAgent("weather-br")}

	results, err := f.svc.Search(context.Background(), "consumer-1", searchRequest())
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].ID != "weather-br" {
		t.Errorf("banned agent leaked into results: %+v", results)
	}
}

func TestSearch_quarantinedDropsBelowThreshold(t *testing.T) {
	f := newSearchFixture(t, false)
	quarantined := searchAgent("shady-agent")
	quarantined.Status = model.AgentStatusQuarantine
	f.searcher.primary = []*model.Agent{quarantined, searchAgent("weather-br")}

	// 0.61 − 0.3 = 0.31 falls under the 0.4 floor.
	results, err := f.svc.Search(context.Background(), "consumer-1", searchRequest())
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].ID != "weather-br" {
		t.Errorf("quarantined agent should be filtered here: %+v", results)
	}
}

func TestSearch_weakMatchesFiltered(t *testing.T) {
	f := newSearchFixture(t, false)
	weak := searchAgent("finance-bot")
	weak.Intents = []string{"finance.quotes"}
	weak.Categories = []string{"finance"}
	f.searcher.primary = []*model.Agent{weak, searchAgent("weather-br")}

	results, err := f.svc.Search(context.Background(), "consumer-1", searchRequest())
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].ID != "weather-br" {
		t.Errorf("weak match not filtered: %+v", results)
	}
}

func TestSearch_geoGate(t *testing.T) {
	f := newSearchFixture(t, false)
	local := searchAgent("lisbon-weather")
	local.LocationScope = "Lisbon, Portugal"
	global := searchAgent("global-weather")
	berlin := searchAgent("berlin-weather")
	berlin.LocationScope = "Berlin, Germany"
	f.searcher.primary = []*model.Agent{local, global, berlin}

	req := searchRequest()
	req.Location = "Berlin"
	results, err := f.svc.Search(context.Background(), "consumer-1", req)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("results = %d, want 2 (local Lisbon agent gated out)", len(results))
	}
	// Exact city match outranks the Global fallback.
	if results[0].ID != "berlin-weather" || results[1].ID != "global-weather" {
		t.Errorf("order = [%s %s]", results[0].ID, results[1].ID)
	}
}

func TestSearch_limitAndCap(t *testing.T) {
	f := newSearchFixture(t, false)
	for i := 0; i < 12; i++ {
		f.searcher.primary = append(f.searcher.primary, searchAgent(fmt.Sprintf("agent-%02d", i)))
	}

	results, err := f.svc.Search(context.Background(), "consumer-1", searchRequest())
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 10 {
		t.Errorf("default limit: got %d results, want 10", len(results))
	}

	req := searchRequest()
	req.Limit = 3
	results, err = f.svc.Search(context.Background(), "consumer-1", req)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 3 {
		t.Errorf("limit 3: got %d results", len(results))
	}

	req.Limit = 50
	results, err = f.svc.Search(context.Background(), "consumer-1", req)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 10 {
		t.Errorf("limit 50: got %d results, want cap of 10", len(results))
	}
}

func TestSearch_emptyResultIsNotAnError(t *testing.T) {
	f := newSearchFixture(t, false)

	results, err := f.svc.Search(context.Background(), "consumer-1", searchRequest())
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if results == nil || len(results) != 0 {
		t.Errorf("want empty non-nil slice, got %#v", results)
	}
}

func TestSearch_fraudLowersScoreInProduction(t *testing.T) {
	f := newSearchFixture(t, true)
	f.searcher.primary = []*model.Agent{searchAgent("weather-br")}
	for i := 0; i < 10; i++ {
		f.feedback.seed(model.Feedback{AgentID: "weather-br", ConsumerID: "consumer-2", Rating: 0.5})
	}
	f.fraud.seed(model.FraudSpam, "weather-br", 5)

	results, err := f.svc.Search(context.Background(), "consumer-1", searchRequest())
	if err != nil {
		t.Fatal(err)
	}
	// Fraud factor halves: 0.61 − 0.04 + 0.5·0.04 = 0.59.
	if len(results) != 1 || results[0].Score != 0.59 {
		t.Errorf("Score = %v, want 0.59", results[0].Score)
	}
}

func TestSearch_fraudIgnoredInDevelopment(t *testing.T) {
	f := newSearchFixture(t, false)
	f.searcher.primary = []*model.Agent{searchAgent("weather-br")}
	for i := 0; i < 10; i++ {
		f.feedback.seed(model.Feedback{AgentID: "weather-br", ConsumerID: "consumer-2", Rating: 0.5})
	}
	f.fraud.seed(model.FraudSpam, "weather-br", 5)

	results, err := f.svc.Search(context.Background(), "consumer-1", searchRequest())
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].Score != 0.61 {
		t.Errorf("Score = %v, want 0.61 with fraud ignored", results[0].Score)
	}
}

func TestSearch_executionKeySignedWithProviderSecret(t *testing.T) {
	f := newSearchFixture(t, false)
	f.searcher.primary = []*model.Agent{searchAgent("weather-br")}

	encrypted, err := identity.NewSecretBox(testMasterSecret).Encrypt("provider-signing-secret")
	if err != nil {
		t.Fatal(err)
	}
	if err := f.callers.Upsert(context.Background(), &model.Caller{
		CallerID:   "provider-abc123",
		Type:       model.CallerTypeProvider,
		Identifier: "cli-weather|203.0.113.9",
		Credential: encrypted,
	}); err != nil {
		t.Fatal(err)
	}

	results, err := f.svc.Search(context.Background(), "consumer-1", searchRequest())
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 {
		t.Fatalf("results = %d", len(results))
	}

	claims, err := execkey.Verify([]byte("provider-signing-secret"), results[0].ExecutionKey)
	if err != nil {
		t.Fatalf("execution key does not verify with the provider secret: %v", err)
	}
	if claims.ConsumerCallerID != "consumer-1" {
		t.Errorf("ConsumerCallerID = %q", claims.ConsumerCallerID)
	}
	if claims.AgentID != "weather-br" {
		t.Errorf("AgentID = %q", claims.AgentID)
	}
	if until := time.Until(results[0].KeyExpiresAt); until <= 0 || until > execkey.TTL {
		t.Errorf("key expiry %v outside (0, %v]", until, execkey.TTL)
	}
}

func TestSearch_executionKeyFallsBackToMasterSecret(t *testing.T) {
	f := newSearchFixture(t, false)
	agent := searchAgent("weather-br")
	agent.CallerID = "provider-without-row"
	f.searcher.primary = []*model.Agent{agent}

	results, err := f.svc.Search(context.Background(), "consumer-1", searchRequest())
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 {
		t.Fatalf("results = %d", len(results))
	}
	if _, err := execkey.Verify([]byte(testMasterSecret), results[0].ExecutionKey); err != nil {
		t.Errorf("key must fall back to the master secret: %v", err)
	}
}
