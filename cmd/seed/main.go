// cmd/seed — populates the database with a realistic demo dataset for
// development.
//
// Running twice is safe: existing rows are updated to match the seed
// definitions (ON CONFLICT ... DO UPDATE). To fully reset:
//
//	psql $DATABASE_URL -c "TRUNCATE callers CASCADE;"
//
// Usage:
//
//	JWT_SECRET=... go run ./cmd/seed
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/agoramesh/agora/internal/config"
	"github.com/agoramesh/agora/internal/identity"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
)

// demoProviderSecret is the signing secret the demo provider would have
// presented in x-provider-secret. It is printed so execution keys minted
// against seeded agents can be verified locally.
const demoProviderSecret = "agora-demo-provider-secret"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "seed: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load() // missing .env is fine

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	ctx := context.Background()
	db, err := pgxpool.New(ctx, cfg.Database.DSN())
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer db.Close()

	if err := db.Ping(ctx); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	fmt.Println("connected to database")

	providerID, err := seedCallers(ctx, db, cfg.JWTSecret)
	if err != nil {
		return fmt.Errorf("seed callers: %w", err)
	}
	if err := seedAgents(ctx, db, providerID); err != nil {
		return fmt.Errorf("seed agents: %w", err)
	}
	if err := seedStats(ctx, db); err != nil {
		return fmt.Errorf("seed stats: %w", err)
	}

	fmt.Println("\nseed complete")
	return nil
}

// ── Callers ──────────────────────────────────────────────────────────────────

// seedCallers inserts the demo provider and consumer. The provider row
// carries its signing secret encrypted under the master secret, exactly as
// POST /auth/token would store it, so seeded agents mint verifiable
// execution keys.
func seedCallers(ctx context.Context, db *pgxpool.Pool, masterSecret string) (string, error) {
	const q = `
		INSERT INTO callers (caller_id, caller_type, identifier, jwt_token, is_active)
		VALUES ($1, $2, $3, $4, true)
		ON CONFLICT (caller_id) DO UPDATE SET
			identifier = EXCLUDED.identifier,
			jwt_token  = EXCLUDED.jwt_token,
			is_active  = true,
			updated_at = now()`

	box := identity.NewSecretBox(masterSecret)
	credential, err := box.Encrypt(demoProviderSecret)
	if err != nil {
		return "", fmt.Errorf("encrypt demo provider secret: %w", err)
	}

	providerIdent := "cli-agora-demo|203.0.113.10"
	providerID := identity.CallerID("provider", providerIdent)
	if _, err := db.Exec(ctx, q, providerID, "provider", providerIdent, credential); err != nil {
		return "", fmt.Errorf("upsert provider: %w", err)
	}
	fmt.Printf("  caller  %-24s  provider  secret: %s\n", providerID, demoProviderSecret)

	consumerIdent := "203.0.113.20"
	consumerID := identity.CallerID("consumer", consumerIdent)
	if _, err := db.Exec(ctx, q, consumerID, "consumer", consumerIdent, nil); err != nil {
		return "", fmt.Errorf("upsert consumer: %w", err)
	}
	fmt.Printf("  caller  %-24s  consumer\n", consumerID)

	return providerID, nil
}

// ── Agents ───────────────────────────────────────────────────────────────────

type seedAgent struct {
	ID            string
	Name          string
	Endpoint      string
	Description   string
	Intents       []string
	Tasks         []string
	Tags          []string
	Categories    []string
	LocationScope string
	Languages     []string
	Version       string
	InputSchema   json.RawMessage
	CreatedAt     time.Time
}

// rawSchema is a convenience helper for inline JSON Schema objects.
func rawSchema(s string) json.RawMessage { return json.RawMessage(s) }

var agents = []seedAgent{
	{
		ID:            "weather-br",
		Name:          "Weather Brazil",
		Endpoint:      "https://weather-br.fly.dev/execute",
		Description:   "Hourly and 7-day forecasts for Brazilian cities, including marine and agricultural conditions.",
		Intents:       []string{"weather.forecast", "weather.current"},
		Tasks:         []string{"forecast", "current-conditions"},
		Tags:          []string{"weather", "forecast", "brazil"},
		Categories:    []string{"weather"},
		LocationScope: "São Paulo,SP,Brazil",
		Languages:     []string{"pt", "en"},
		Version:       "2.1.0",
		InputSchema:   rawSchema(`{"type":"object","required":["city"],"properties":{"city":{"type":"string"},"days":{"type":"integer","minimum":1,"maximum":7}}}`),
		CreatedAt:     daysAgo(120),
	},
	{
		ID:            "weather-berlin",
		Name:          "Berlin Wetter",
		Endpoint:      "https://wetter-berlin.example.dev/execute",
		Description:   "Local nowcasts and pollen levels for Berlin and Brandenburg.",
		Intents:       []string{"weather.forecast", "weather.current"},
		Tasks:         []string{"forecast", "pollen"},
		Tags:          []string{"weather", "berlin", "pollen"},
		Categories:    []string{"weather"},
		LocationScope: "Berlin,BE,Germany",
		Languages:     []string{"de", "en"},
		Version:       "1.3.0",
		InputSchema:   rawSchema(`{"type":"object","properties":{"district":{"type":"string"}}}`),
		CreatedAt:     daysAgo(60),
	},
	{
		ID:            "weather-global",
		Name:          "Global Weather",
		Endpoint:      "https://weather-global.example.dev/execute",
		Description:   "Worldwide current conditions and 3-day forecasts by city or coordinates.",
		Intents:       []string{"weather.forecast", "weather.current"},
		Tasks:         []string{"forecast"},
		Tags:          []string{"weather", "global"},
		Categories:    []string{"weather"},
		LocationScope: "Global",
		Languages:     []string{"en"},
		Version:       "3.0.2",
		CreatedAt:     daysAgo(200),
	},
	{
		ID:            "news-brief",
		Name:          "Daily News Brief",
		Endpoint:      "https://news-brief.example.dev/execute",
		Description:   "Summarised top headlines by topic and region, refreshed hourly.",
		Intents:       []string{"news.daily_brief", "news.topic"},
		Tasks:         []string{"briefing", "topic-digest"},
		Tags:          []string{"news", "briefing", "headlines"},
		Categories:    []string{"news"},
		LocationScope: "Global",
		Languages:     []string{"en", "es", "pt"},
		Version:       "1.0.4",
		InputSchema:   rawSchema(`{"type":"object","properties":{"topic":{"type":"string"},"region":{"type":"string"}}}`),
		CreatedAt:     daysAgo(30),
	},
	{
		ID:            "fx-rates",
		Name:          "FX Rates",
		Endpoint:      "https://fx-rates.example.dev/execute",
		Description:   "Spot exchange rates and 30-day history for 40 currency pairs.",
		Intents:       []string{"finance.exchange_rate"},
		Tasks:         []string{"spot-rate", "history"},
		Tags:          []string{"finance", "currency", "fx"},
		Categories:    []string{"finance"},
		LocationScope: "Global",
		Languages:     []string{"en"},
		Version:       "2.0.0",
		InputSchema:   rawSchema(`{"type":"object","required":["base","quote"],"properties":{"base":{"type":"string","minLength":3,"maxLength":3},"quote":{"type":"string","minLength":3,"maxLength":3}}}`),
		CreatedAt:     daysAgo(90),
	},
	{
		ID:            "translate-latam",
		Name:          "LatAm Translator",
		Endpoint:      "https://translate-latam.example.dev/execute",
		Description:   "Translation between Portuguese, Spanish, and English with regional idiom handling.",
		Intents:       []string{"text.translate"},
		Tasks:         []string{"translate"},
		Tags:          []string{"translation", "portuguese", "spanish"},
		Categories:    []string{"language"},
		LocationScope: "Global",
		Languages:     []string{"pt", "es", "en"},
		Version:       "1.2.1",
		CreatedAt:     daysAgo(14),
	},
}

func seedAgents(ctx context.Context, db *pgxpool.Pool, providerID string) error {
	const q = `
		INSERT INTO agents (
			id, name, endpoint, description,
			intents, tasks, tags, categories,
			location_scope, languages, version,
			input_schema, caller_id, status,
			created_at, updated_at
		) VALUES (
			$1, $2, $3, $4,
			$5, $6, $7, $8,
			$9, $10, $11,
			$12, $13, 'active',
			$14, $14
		)
		ON CONFLICT (id) DO UPDATE SET
			name           = EXCLUDED.name,
			endpoint       = EXCLUDED.endpoint,
			description    = EXCLUDED.description,
			intents        = EXCLUDED.intents,
			tasks          = EXCLUDED.tasks,
			tags           = EXCLUDED.tags,
			categories     = EXCLUDED.categories,
			location_scope = EXCLUDED.location_scope,
			languages      = EXCLUDED.languages,
			version        = EXCLUDED.version,
			input_schema   = EXCLUDED.input_schema,
			caller_id      = EXCLUDED.caller_id,
			updated_at     = now()`

	fmt.Println()
	for _, a := range agents {
		if _, err := db.Exec(ctx, q,
			a.ID, a.Name, a.Endpoint, a.Description,
			a.Intents, a.Tasks, a.Tags, a.Categories,
			a.LocationScope, a.Languages, a.Version,
			a.InputSchema, providerID,
			a.CreatedAt,
		); err != nil {
			return fmt.Errorf("upsert agent %s: %w", a.ID, err)
		}
		fmt.Printf("  agent  %-16s  %-20s  %s\n", a.ID, a.LocationScope, a.Name)
	}
	return nil
}

// ── Stats ────────────────────────────────────────────────────────────────────

type seedStat struct {
	AgentID      string
	CallsTotal   int64
	CallsSuccess int64
	AvgLatencyMS float64
	AvgRating    float64
}

var stats = []seedStat{
	{AgentID: "weather-br", CallsTotal: 120, CallsSuccess: 114, AvgLatencyMS: 420, AvgRating: 0.91},
	{AgentID: "weather-berlin", CallsTotal: 45, CallsSuccess: 42, AvgLatencyMS: 380, AvgRating: 0.88},
	{AgentID: "weather-global", CallsTotal: 300, CallsSuccess: 261, AvgLatencyMS: 950, AvgRating: 0.74},
	{AgentID: "news-brief", CallsTotal: 18, CallsSuccess: 17, AvgLatencyMS: 1100, AvgRating: 0.82},
	{AgentID: "fx-rates", CallsTotal: 210, CallsSuccess: 205, AvgLatencyMS: 130, AvgRating: 0.95},
	{AgentID: "translate-latam", CallsTotal: 6, CallsSuccess: 5, AvgLatencyMS: 700, AvgRating: 0.78},
}

func seedStats(ctx context.Context, db *pgxpool.Pool) error {
	const q = `
		INSERT INTO agent_stats (agent_id, calls_total, calls_success, avg_latency_ms, avg_rating, last_feedback_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (agent_id) DO UPDATE SET
			calls_total      = EXCLUDED.calls_total,
			calls_success    = EXCLUDED.calls_success,
			avg_latency_ms   = EXCLUDED.avg_latency_ms,
			avg_rating       = EXCLUDED.avg_rating,
			last_feedback_at = EXCLUDED.last_feedback_at`

	fmt.Println()
	for _, s := range stats {
		lastFeedback := daysAgo(1)
		if _, err := db.Exec(ctx, q, s.AgentID, s.CallsTotal, s.CallsSuccess, s.AvgLatencyMS, s.AvgRating, lastFeedback); err != nil {
			return fmt.Errorf("upsert stats %s: %w", s.AgentID, err)
		}
		fmt.Printf("  stats  %-16s  calls:%-4d  success:%.0f%%  rating:%.2f\n",
			s.AgentID, s.CallsTotal, float64(s.CallsSuccess)/float64(s.CallsTotal)*100, s.AvgRating)
	}
	return nil
}

func daysAgo(n int) time.Time {
	return time.Now().UTC().Add(-time.Duration(n) * 24 * time.Hour)
}
