// Package scoring ranks agents against a search request. The score is a
// weighted sum of nine factors, each in [0,1]. The weights intentionally
// sum to 1.02 and are never renormalized; downstream thresholds assume
// these exact values.
package scoring

// Factor weights.
const (
	WeightIntent      = 0.25
	WeightGeo         = 0.20
	WeightSuccess     = 0.14
	WeightDescription = 0.10
	WeightCategory    = 0.10
	WeightRating      = 0.09
	WeightTag         = 0.07
	WeightLatency     = 0.03
	WeightFraud       = 0.04
)

// quarantinePenalty is subtracted from the total score of quarantined
// agents, clamped at zero.
const quarantinePenalty = 0.3

// Request carries the search criteria that participate in scoring.
type Request struct {
	Intents     []string
	Categories  []string
	Tags        []string
	Location    string
	Description string
}

// Candidate carries the agent fields that participate in scoring.
type Candidate struct {
	Intents     []string
	Categories  []string
	Tags        []string
	Description string
	Location    string
	Quarantined bool
}

// Stats carries the operational counters behind the success, rating, and
// latency factors. A nil *Stats means the agent has no recorded feedback.
type Stats struct {
	CallsTotal   int64
	CallsSuccess int64
	AvgLatencyMS float64
	AvgRating    float64
}

// Breakdown itemizes each factor of a computed score. Factors are the raw
// per-factor values before weighting; Total is the weighted sum after the
// quarantine penalty.
type Breakdown struct {
	Intent      float64
	Geo         float64
	Success     float64
	Description float64
	Category    float64
	Rating      float64
	Tag         float64
	Latency     float64
	Fraud       float64
	Penalty     float64
	Total       float64
}

// Score computes the ranking score of one agent for one request. fraudPct
// is the agent's fraud percentage in [0,100]; callers pass 0 outside
// production mode.
func Score(req Request, agent Candidate, stats *Stats, fraudPct float64) Breakdown {
	b := Breakdown{
		Intent:      IntentScore(req.Intents, agent.Intents),
		Geo:         GeoScore(req.Location, agent.Location),
		Description: DescriptionScore(req.Description, agent.Description, agent.Tags, agent.Categories),
		Category:    ListSimilarity(req.Categories, agent.Categories),
		Tag:         ListSimilarity(req.Tags, agent.Tags),
		Fraud:       1 - fraudPct/100,
	}
	if stats != nil && stats.CallsTotal > 0 {
		b.Success = float64(stats.CallsSuccess) / float64(stats.CallsTotal)
		b.Rating = stats.AvgRating
		b.Latency = latencyFactor(stats.AvgLatencyMS)
	}

	total := b.Intent*WeightIntent +
		b.Geo*WeightGeo +
		b.Success*WeightSuccess +
		b.Description*WeightDescription +
		b.Category*WeightCategory +
		b.Rating*WeightRating +
		b.Tag*WeightTag +
		b.Latency*WeightLatency +
		b.Fraud*WeightFraud

	if agent.Quarantined {
		b.Penalty = quarantinePenalty
		total -= quarantinePenalty
		if total < 0 {
			total = 0
		}
	}
	b.Total = total
	return b
}

// latencyFactor buckets an average latency into a score.
func latencyFactor(avgLatencyMS float64) float64 {
	switch {
	case avgLatencyMS <= 500:
		return 1.0
	case avgLatencyMS <= 1500:
		return 0.7
	case avgLatencyMS <= 3000:
		return 0.4
	default:
		return 0.2
	}
}
