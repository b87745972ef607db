package scoring

import "strings"

// IntentScore returns the intent factor: the best over all requested
// intents of max(hierarchical, 0.85·trigram) against the agent's
// advertised intents. A request with no intent scores a neutral 0.5.
func IntentScore(requested, agentIntents []string) float64 {
	if len(requested) == 0 {
		return 0.5
	}
	best := 0.0
	for _, search := range requested {
		for _, agent := range agentIntents {
			v := HierarchicalScore(search, agent)
			if t := TrigramScore(search, agent) * 0.85; t > v {
				v = t
			}
			if v > best {
				best = v
			}
		}
	}
	return best
}

// HierarchicalScore compares two dotted intents by their leading segments:
// exact match 1.0, same first two segments 0.6, same first segment 0.3,
// otherwise 0.
func HierarchicalScore(search, agent string) float64 {
	s := strings.ToLower(search)
	a := strings.ToLower(agent)
	if s == a {
		return 1.0
	}
	sp := strings.Split(s, ".")
	ap := strings.Split(a, ".")
	if len(sp) >= 2 && len(ap) >= 2 && sp[0] == ap[0] && sp[1] == ap[1] {
		return 0.6
	}
	if sp[0] == ap[0] {
		return 0.3
	}
	return 0.0
}

// TrigramScore measures fuzzy similarity between two intents: Jaccard over
// their token sets, plus 0.3× the best character-trigram similarity among
// unequal token pairs as a bonus, capped at 1.0.
func TrigramScore(search, agent string) float64 {
	st := splitIntent(search)
	at := splitIntent(agent)
	if len(st) == 0 || len(at) == 0 {
		return 0
	}

	sset := toSet(st)
	aset := toSet(at)
	score := jaccard(sset, aset)

	best := 0.0
	for s := range sset {
		for a := range aset {
			if s == a {
				continue
			}
			if sim := jaccard(charTrigrams(s), charTrigrams(a)); sim > best {
				best = sim
			}
		}
	}
	score += best * 0.3
	if score > 1 {
		score = 1
	}
	return score
}
