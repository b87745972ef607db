package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/agoramesh/agora/pkg/agentdef"
	"github.com/agoramesh/agora/pkg/client"
)

// version is overridden by goreleaser via -ldflags "-X main.version=...".
var version = "dev"

var (
	registryURL  string
	cfgFile      string
	sessionToken string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "agora",
	Short: "Agora registry CLI",
	Long: `agora is the command-line interface for the Agora registry.

It issues session tokens, registers provider agents, searches the catalog,
invokes agents with short-lived execution keys, and reports call feedback.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if cfgFile != "" {
			viper.SetConfigFile(cfgFile)
		} else {
			home, _ := os.UserHomeDir()
			viper.AddConfigPath(home + "/.agora")
			viper.SetConfigName("config")
			viper.SetConfigType("yaml")
		}
		viper.AutomaticEnv()
		_ = viper.ReadInConfig()

		if registryURL == "" {
			registryURL = viper.GetString("registry_url")
		}
		if registryURL == "" {
			registryURL = "https://registry.agoramesh.dev"
		}
		if sessionToken == "" {
			sessionToken = viper.GetString("agora_token")
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.agora/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&registryURL, "registry", "", "Agora registry URL (default https://registry.agoramesh.dev)")
	rootCmd.PersistentFlags().StringVar(&sessionToken, "token", "", "Session token to use instead of requesting one (env AGORA_TOKEN)")

	rootCmd.AddCommand(tokenCmd)
	rootCmd.AddCommand(registerCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(callCmd)
	rootCmd.AddCommand(feedbackCmd)
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(versionCmd)
}

// credentialsDir is where 'agora token --save' persists caller identity.
func credentialsDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	return filepath.Join(home, ".agora"), nil
}

// newClient builds an SDK client from saved credentials (when present) plus
// the persistent --token flag.
func newClient(extra ...client.Option) (*client.Client, error) {
	opts := []client.Option{}
	if dir, err := credentialsDir(); err == nil {
		if creds, err := client.LoadCredentials(dir); err == nil {
			opts = append(opts, client.WithClientID(creds.ClientID))
			if creds.ProviderSecret != "" {
				opts = append(opts, client.WithProviderSecret(creds.ProviderSecret))
			}
			if creds.SessionToken != "" {
				opts = append(opts, client.WithSessionToken(creds.SessionToken))
			}
		}
	}
	if sessionToken != "" {
		opts = append(opts, client.WithSessionToken(sessionToken))
	}
	return client.New(registryURL, append(opts, extra...)...)
}

// ── token ────────────────────────────────────────────────────────────────────

var (
	tokenType           string
	tokenClientID       string
	tokenProviderSecret string
	tokenSave           bool
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Request a 24-hour session token from the registry",
	Long: `token authenticates against the registry and prints a session token.

Consumers need no flags; identity is derived from the source address:

  agora token

Providers should pin a stable client ID and supply their signing secret, so
the registry can sign execution keys on their behalf:

  agora token --type provider --client-id acme-weather --provider-secret $SECRET --save

--save persists the client ID and provider secret to ~/.agora/credentials.json
so later commands reuse them automatically.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := []client.Option{}
		if tokenClientID != "" {
			opts = append(opts, client.WithClientID(tokenClientID))
		}
		if tokenProviderSecret != "" {
			opts = append(opts, client.WithProviderSecret(tokenProviderSecret))
		}
		c, err := client.New(registryURL, opts...)
		if err != nil {
			return err
		}

		grant, err := c.Token(context.Background(), tokenType)
		if err != nil {
			return fmt.Errorf("request token: %w", err)
		}

		fmt.Printf("✓ Session token issued (%s, expires in %s)\n\n", tokenType, grant.ExpiresIn)
		fmt.Printf("  %s\n\n", grant.Token)
		fmt.Println("Pass it with --token or export AGORA_TOKEN.")

		if tokenSave {
			dir, err := credentialsDir()
			if err != nil {
				return err
			}
			creds := &client.Credentials{
				ClientID:       tokenClientID,
				ProviderSecret: tokenProviderSecret,
			}
			if err := client.SaveCredentials(dir, creds); err != nil {
				return fmt.Errorf("save credentials: %w", err)
			}
			fmt.Printf("✓ Saved credentials to %s\n", filepath.Join(dir, "credentials.json"))
		}
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenType, "type", "consumer", "Caller type: consumer or provider")
	tokenCmd.Flags().StringVar(&tokenClientID, "client-id", "", "Stable client ID to bind the identity to")
	tokenCmd.Flags().StringVar(&tokenProviderSecret, "provider-secret", "", "Provider signing secret (stored encrypted by the registry)")
	tokenCmd.Flags().BoolVar(&tokenSave, "save", false, "Persist client ID and provider secret to ~/.agora/credentials.json")
}

// ── register ─────────────────────────────────────────────────────────────────

var (
	regFile        string
	regID          string
	regName        string
	regEndpoint    string
	regDescription string
	regIntents     []string
	regTasks       []string
	regTags        []string
	regCategories  []string
	regLocation    string
	regLanguages   []string
	regVersion     string
)

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Register an agent with the Agora registry",
	Long: `register publishes an agent under your provider identity.

Registration requires a provider session; run 'agora token --type provider
--save' first, or pass a provider token via --token.

Common fields are flags:

  agora register --id weather-br --name "Weather Brazil" \
      --endpoint https://weather.example.com \
      --intent weather.forecast --category weather --location "São Paulo,SP,Brazil"

For the full shape (input schema, metadata), keep an agent.json definition
file next to your service and use:

  agora register --file agent.json`,
	RunE: runRegister,
}

func init() {
	registerCmd.Flags().StringVar(&regFile, "file", "", "Read the agent definition from an agent.json file")
	registerCmd.Flags().StringVar(&regID, "id", "", "Agent ID (unique, e.g. weather-br)")
	registerCmd.Flags().StringVar(&regName, "name", "", "Display name")
	registerCmd.Flags().StringVar(&regEndpoint, "endpoint", "", "Agent endpoint URL (https)")
	registerCmd.Flags().StringVar(&regDescription, "description", "", "Agent description")
	registerCmd.Flags().StringSliceVar(&regIntents, "intent", nil, "Intent the agent serves (repeatable)")
	registerCmd.Flags().StringSliceVar(&regTasks, "task", nil, "Task the agent executes (repeatable)")
	registerCmd.Flags().StringSliceVar(&regTags, "tag", nil, "Free-form tag (repeatable)")
	registerCmd.Flags().StringSliceVar(&regCategories, "category", nil, "Category (repeatable)")
	registerCmd.Flags().StringVar(&regLocation, "location", "", `Location scope, "City,Region,Country" or "Global"`)
	registerCmd.Flags().StringSliceVar(&regLanguages, "language", nil, "Supported language code (repeatable)")
	registerCmd.Flags().StringVar(&regVersion, "version", "", "Agent version string")
}

func runRegister(cmd *cobra.Command, args []string) error {
	var reg client.RegisterRequest
	if regFile != "" {
		def, err := agentdef.LoadFile(regFile)
		if err != nil {
			return err
		}
		reg = def.RegisterRequest()
	} else {
		if regID == "" || regName == "" || regEndpoint == "" {
			return fmt.Errorf("provide --file, or at least --id, --name, and --endpoint")
		}
		reg = client.RegisterRequest{
			ID:            regID,
			Name:          regName,
			Endpoint:      regEndpoint,
			Description:   regDescription,
			Intents:       regIntents,
			Tasks:         regTasks,
			Tags:          regTags,
			Categories:    regCategories,
			LocationScope: regLocation,
			Languages:     regLanguages,
			Version:       regVersion,
		}
	}

	c, err := newClient()
	if err != nil {
		return err
	}

	result, err := c.Register(context.Background(), reg)
	if err != nil {
		return fmt.Errorf("register agent: %w", err)
	}

	fmt.Printf("✓ Agent registered\n\n")
	fmt.Printf("  ID:       %s\n", result.ID)
	fmt.Printf("  Endpoint: %s\n\n", reg.Endpoint)
	fmt.Println("Consumers can now discover it: agora search --intent <intent> --category <category>")
	return nil
}

// ── search ───────────────────────────────────────────────────────────────────

var (
	searchIntents     []string
	searchCategories  []string
	searchTags        []string
	searchLocation    string
	searchLanguage    string
	searchDescription string
	searchLimit       int
	searchFormat      string
)

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "Search the registry for agents matching an intent",
	Long: `search queries the catalog and prints agents ranked by score. At least
one --category is required; everything else narrows the ranking.

  agora search --intent weather.forecast --category weather \
      --location "Berlin,BE,Germany"

Each result carries an execution key valid for five minutes; use
--format json to see it, or 'agora call' to search and invoke in one step.`,
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().StringSliceVar(&searchIntents, "intent", nil, "Intent to match (repeatable)")
	searchCmd.Flags().StringSliceVar(&searchCategories, "category", nil, "Category to search in (repeatable)")
	searchCmd.Flags().StringSliceVar(&searchTags, "tag", nil, "Tag to match (repeatable)")
	searchCmd.Flags().StringVar(&searchLocation, "location", "", `Caller location, "City,Region,Country"`)
	searchCmd.Flags().StringVar(&searchLanguage, "language", "", "Preferred language code")
	searchCmd.Flags().StringVar(&searchDescription, "description", "", "Free-text description to match against")
	searchCmd.Flags().IntVar(&searchLimit, "limit", 0, "Maximum results (registry default when 0)")
	searchCmd.Flags().StringVar(&searchFormat, "format", "text", "Output format: text or json")

	_ = searchCmd.MarkFlagRequired("category")
}

func runSearch(cmd *cobra.Command, args []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}

	results, err := c.Search(context.Background(), client.SearchRequest{
		Intent:      searchIntents,
		Categories:  searchCategories,
		Tags:        searchTags,
		Location:    searchLocation,
		Language:    searchLanguage,
		Description: searchDescription,
		Limit:       searchLimit,
	})
	if err != nil {
		return fmt.Errorf("search: %w", err)
	}

	switch searchFormat {
	case "json":
		// Single result: unwrap from array for convenience.
		var v any = results
		if len(results) == 1 {
			v = results[0]
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	default:
		return printSearchText(results)
	}
}

func printSearchText(results []client.SearchResult) error {
	if len(results) == 0 {
		fmt.Println("No agents matched.")
		return nil
	}

	if len(results) == 1 {
		r := results[0]
		fmt.Printf("ID:          %s\n", r.ID)
		fmt.Printf("Name:        %s\n", r.Name)
		fmt.Printf("Score:       %.2f\n", r.Score)
		fmt.Printf("Endpoint:    %s\n", r.Endpoint)
		if len(r.Intents) > 0 {
			fmt.Printf("Intents:     %s\n", strings.Join(r.Intents, ", "))
		}
		if r.LocationScope != "" {
			fmt.Printf("Location:    %s\n", r.LocationScope)
		}
		fmt.Printf("Key expires: %s\n", r.KeyExpiresAt.Format(time.RFC3339))
		return nil
	}

	// Multiple results: tabulated.
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tSCORE\tENDPOINT\tLOCATION")
	for _, r := range results {
		fmt.Fprintf(w, "%s\t%s\t%.2f\t%s\t%s\n",
			r.ID, r.Name, r.Score, r.Endpoint, r.LocationScope)
	}
	return w.Flush()
}

// ── call ─────────────────────────────────────────────────────────────────────

var (
	callIntent     string
	callCategories []string
	callTask       string
	callParams     string
	callLocation   string
	callLanguage   string
	callReport     bool
)

var callCmd = &cobra.Command{
	Use:   "call",
	Short: "Search for the best agent and invoke it in one step",
	Long: `call searches the registry, picks the top-ranked agent, and invokes
its /execute endpoint with the execution key from the search result:

  agora call --intent weather.forecast --category weather --task forecast \
      --params '{"city":"Berlin","days":3}'

--report sends feedback to the registry afterwards with the measured latency,
which feeds the agent's ranking and quarantine decisions.`,
	RunE: runCall,
}

func init() {
	callCmd.Flags().StringVar(&callIntent, "intent", "", "Intent to match")
	callCmd.Flags().StringSliceVar(&callCategories, "category", nil, "Category to search in (repeatable)")
	callCmd.Flags().StringVar(&callTask, "task", "", "Task to invoke on the agent")
	callCmd.Flags().StringVar(&callParams, "params", "{}", "Task parameters as a JSON object")
	callCmd.Flags().StringVar(&callLocation, "location", "", `Caller location, "City,Region,Country"`)
	callCmd.Flags().StringVar(&callLanguage, "language", "", "Preferred language code")
	callCmd.Flags().BoolVar(&callReport, "report", false, "Report the call outcome back to the registry")

	_ = callCmd.MarkFlagRequired("intent")
	_ = callCmd.MarkFlagRequired("category")
	_ = callCmd.MarkFlagRequired("task")
}

func runCall(cmd *cobra.Command, args []string) error {
	var params map[string]any
	if err := json.Unmarshal([]byte(callParams), &params); err != nil {
		return fmt.Errorf("parse --params: %w", err)
	}

	c, err := newClient()
	if err != nil {
		return err
	}
	ctx := context.Background()

	results, err := c.Search(ctx, client.SearchRequest{
		Intent:     []string{callIntent},
		Categories: callCategories,
		Location:   callLocation,
		Language:   callLanguage,
		Limit:      1,
	})
	if err != nil {
		return fmt.Errorf("search: %w", err)
	}
	if len(results) == 0 {
		return fmt.Errorf("no agents matched intent %q", callIntent)
	}

	best := results[0]
	fmt.Printf("→ %s (score %.2f)\n", best.Name, best.Score)

	start := time.Now()
	reply, err := c.Execute(ctx, best.Endpoint, best.ExecutionKey, callTask, params)
	latencyMS := float64(time.Since(start).Milliseconds())
	if err != nil {
		if callReport {
			reportOutcome(ctx, c, best.ID, false, latencyMS)
		}
		return fmt.Errorf("call %s: %w", best.ID, err)
	}

	if callReport {
		reportOutcome(ctx, c, best.ID, reply.Success, latencyMS)
	}

	if !reply.Success {
		return fmt.Errorf("agent %s failed: %s", best.ID, reply.Error)
	}

	fmt.Printf("✓ Completed in %.0f ms\n\n", latencyMS)
	if len(reply.Data) > 0 {
		var pretty any
		if err := json.Unmarshal(reply.Data, &pretty); err == nil {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(pretty)
		}
		fmt.Println(string(reply.Data))
	}
	return nil
}

// reportOutcome submits feedback best-effort; a failed report never fails the call.
func reportOutcome(ctx context.Context, c *client.Client, agentID string, success bool, latencyMS float64) {
	err := c.Feedback(ctx, client.FeedbackRequest{
		AgentID:   agentID,
		Success:   success,
		LatencyMS: &latencyMS,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: feedback not recorded: %v\n", err)
	}
}

// ── feedback ─────────────────────────────────────────────────────────────────

var (
	fbAgent   string
	fbFailed  bool
	fbLatency float64
	fbRating  float64
)

var feedbackCmd = &cobra.Command{
	Use:   "feedback",
	Short: "Report the outcome of an agent call",
	Long: `feedback records a call outcome against an agent. Outcomes drive the
registry's ranking and quarantine decisions.

  agora feedback --agent weather-br --latency 420 --rating 0.9
  agora feedback --agent weather-br --failed`,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}

		fb := client.FeedbackRequest{
			AgentID: fbAgent,
			Success: !fbFailed,
		}
		if cmd.Flags().Changed("latency") {
			fb.LatencyMS = &fbLatency
		}
		if cmd.Flags().Changed("rating") {
			fb.Rating = &fbRating
		}

		if err := c.Feedback(context.Background(), fb); err != nil {
			if errors.Is(err, client.ErrRateLimited) {
				return fmt.Errorf("rate limited; wait a minute and retry")
			}
			return fmt.Errorf("submit feedback: %w", err)
		}

		fmt.Printf("✓ Feedback recorded for %s\n", fbAgent)
		return nil
	},
}

func init() {
	feedbackCmd.Flags().StringVar(&fbAgent, "agent", "", "Agent ID the call was made against")
	feedbackCmd.Flags().BoolVar(&fbFailed, "failed", false, "Mark the call as failed")
	feedbackCmd.Flags().Float64Var(&fbLatency, "latency", 0, "Observed latency in milliseconds")
	feedbackCmd.Flags().Float64Var(&fbRating, "rating", 0, "Quality rating between 0 and 1")

	_ = feedbackCmd.MarkFlagRequired("agent")
}

// ── health ───────────────────────────────────────────────────────────────────

var healthFormat string

var healthCmd = &cobra.Command{
	Use:   "health <agent-id>",
	Short: "Show an agent's public health report",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}

		report, err := c.AgentHealth(context.Background(), args[0])
		if err != nil {
			if errors.Is(err, client.ErrNotFound) {
				return fmt.Errorf("agent %q is not registered", args[0])
			}
			return fmt.Errorf("fetch health: %w", err)
		}

		if healthFormat == "json" {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		}

		fmt.Printf("Agent:        %s\n", report.AgentID)
		fmt.Printf("Status:       %s\n", report.Status)
		fmt.Printf("Health score: %.2f\n", report.HealthScore)
		fmt.Printf("Risk:         %s\n\n", report.QuarantineRisk)
		fmt.Printf("  Success rate: %.1f%%\n", report.Metrics.SuccessRate*100)
		fmt.Printf("  Avg rating:   %.2f\n", report.Metrics.AvgRating)
		fmt.Printf("  Avg latency:  %.0f ms\n", report.Metrics.AvgLatencyMS)
		fmt.Printf("  Feedbacks:    %d\n", report.Metrics.TotalFeedbacks)
		fmt.Printf("  Fraud events: %d (%.1f%%)\n", report.Metrics.FraudDetected, report.Metrics.FraudPercentage)

		if report.QuarantineReason != "" {
			fmt.Printf("\nQuarantined: %s", report.QuarantineReason)
			if report.QuarantineAt != nil {
				fmt.Printf(" (since %s)", report.QuarantineAt.Format(time.RFC3339))
			}
			fmt.Println()
		}
		if len(report.Warnings) > 0 {
			fmt.Println("\nWarnings:")
			for _, warning := range report.Warnings {
				fmt.Printf("  - %s\n", warning)
			}
		}
		return nil
	},
}

func init() {
	healthCmd.Flags().StringVar(&healthFormat, "format", "text", "Output format: text or json")
}

// ── version ──────────────────────────────────────────────────────────────────

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the agora CLI version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("agora %s\n", version)
	},
}
