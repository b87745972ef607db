package scoring

// maxDescriptionTokens caps the denominator of the description factor so
// long queries are not punished for supplying extra context.
const maxDescriptionTokens = 10

// DescriptionScore measures token overlap between the request description
// and the agent's description, tags, and categories. No requested
// description yields a neutral 0.5; zero overlap yields 0.
func DescriptionScore(searchDescription, agentDescription string, tags, categories []string) float64 {
	if searchDescription == "" {
		return 0.5
	}
	searchTokens := tokenize(searchDescription)
	if len(searchTokens) == 0 {
		return 0
	}

	agentSet := toSet(tokenize(agentDescription))
	for _, t := range tokenizeAll(tags) {
		agentSet[t] = true
	}
	for _, t := range tokenizeAll(categories) {
		agentSet[t] = true
	}

	overlap := 0
	for _, tok := range searchTokens {
		if agentSet[tok] {
			overlap++
		}
	}
	if overlap == 0 {
		return 0
	}

	denom := len(searchTokens)
	if denom > maxDescriptionTokens {
		denom = maxDescriptionTokens
	}
	score := float64(overlap) / float64(denom)
	if score > 1 {
		score = 1
	}
	return score
}

// ListSimilarity measures how well an agent's list covers the requested
// one. An empty request matches anything (1.0); an empty agent list
// matches nothing (0.0). A search token matches when any agent token
// equals or contains it, or is contained by it.
func ListSimilarity(searchList, agentList []string) float64 {
	if len(searchList) == 0 {
		return 1.0
	}
	if len(agentList) == 0 {
		return 0.0
	}

	searchTokens := tokenizeAll(searchList)
	if len(searchTokens) == 0 {
		return 0.5
	}
	agentTokens := tokenizeAll(agentList)

	matches := 0
	for _, s := range searchTokens {
		for _, a := range agentTokens {
			if containsEither(s, a) {
				matches++
				break
			}
		}
	}
	return float64(matches) / float64(len(searchTokens))
}
