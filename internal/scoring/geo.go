package scoring

import "strings"

// GeoScore compares a requested location against an agent's location
// scope. Either side missing yields a neutral 0.5 — unless the request
// explicitly asked for "Global", which any agent without a pinned location
// satisfies fully. An agent scoped "Global" matches a concrete requested
// location only weakly.
func GeoScore(searchLocation, agentLocation string) float64 {
	if searchLocation == "" || agentLocation == "" {
		if searchLocation == "Global" {
			return 1.0
		}
		return 0.5
	}
	if agentLocation == "Global" {
		return 0.3
	}

	searchParts := splitLocation(searchLocation)
	agentParts := splitLocation(agentLocation)
	if len(agentParts) == 0 {
		return 0.5
	}

	// Agent parts read as [city, state?, ..., country]; a single part is
	// both city and country.
	city := agentParts[0]
	country := agentParts[len(agentParts)-1]
	state := ""
	if len(agentParts) > 2 {
		state = agentParts[1]
	}

	best := 0.2
	for _, part := range searchParts {
		v := 0.2
		switch {
		case part == city:
			v = 1.0
		case state != "" && containsEither(part, state):
			v = 0.6
		case containsEither(part, country):
			v = 0.3
		}
		if v > best {
			best = v
		}
	}
	return best
}

// splitLocation splits a location on ',' and '/', lowercased and trimmed,
// dropping empty parts.
func splitLocation(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return r == ',' || r == '/'
	})
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		if t := strings.TrimSpace(f); t != "" {
			parts = append(parts, t)
		}
	}
	return parts
}

func containsEither(a, b string) bool {
	return strings.Contains(a, b) || strings.Contains(b, a)
}
