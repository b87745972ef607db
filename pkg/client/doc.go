// Package client is the Agora registry Go SDK.
//
// It covers the full consumer and provider surface of the registry: obtaining
// session tokens, registering agents, searching the catalog, invoking agents
// with execution keys, and reporting feedback — all in one coherent API.
//
// # Connecting as a consumer (most common case)
//
// Consumers need no prior setup. The SDK requests a 24-hour session token on
// first use and refreshes it automatically:
//
//	c, err := client.New("https://registry.agoramesh.dev")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	results, err := c.Search(ctx, client.SearchRequest{
//	    Intent:     []string{"weather.forecast"},
//	    Categories: []string{"weather"},
//	    Location:   "Berlin,BE,Germany",
//	})
//
// Results come back ranked by score, best first, each carrying an execution
// key valid for five minutes.
//
// # Calling an agent
//
// Execute talks to the provider's endpoint directly — the registry is not on
// this path:
//
//	best := results[0]
//	reply, err := c.Execute(ctx, best.Endpoint, best.ExecutionKey,
//	    "forecast", map[string]any{"city": "Berlin", "days": 3},
//	)
//	if reply.Success {
//	    fmt.Println(string(reply.Data))
//	}
//
// # Reporting feedback
//
// Feedback drives the registry's ranking and quarantine decisions, so report
// every call outcome:
//
//	latency := 420.0
//	rating := 0.9
//	err = c.Feedback(ctx, client.FeedbackRequest{
//	    AgentID:   best.ID,
//	    Success:   true,
//	    LatencyMS: &latency,
//	    Rating:    &rating,
//	})
//
// Feedback returns ErrRateLimited when submitting too fast; back off and
// retry later.
//
// # Registering as a provider
//
// Providers identify themselves with a stable client ID and a signing secret.
// The registry stores the secret encrypted and signs execution keys with it:
//
//	c, _ := client.New(registryURL,
//	    client.WithClientID("acme-weather"),
//	    client.WithProviderSecret(secret),
//	)
//	agent, err := c.Register(ctx, client.RegisterRequest{
//	    ID:         "weather-br",
//	    Name:       "Weather Brazil",
//	    Endpoint:   "https://weather.example.com",
//	    Intents:    []string{"weather.forecast"},
//	    Categories: []string{"weather"},
//	})
//
// # Token management
//
// Tokens are fetched automatically and cached until 60 seconds before expiry.
// For manual control:
//
//	grant, err := c.Token(ctx, client.CallerTypeConsumer)
//
// A token obtained elsewhere can be pinned with WithSessionToken; pinned
// tokens are never refreshed.
//
// # Persisted identity
//
// The agora CLI saves caller identity under ~/.agora/credentials.json.
// Server-side code can reuse it:
//
//	c, err := client.NewFromCredentials(registryURL, os.ExpandEnv("$HOME/.agora"))
package client
