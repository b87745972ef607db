//go:build ignore

// demo-provider.go runs a minimal provider agent that verifies Agora
// execution keys and answers a few canned tasks. Use it to walk the full
// register → search → call loop against a local registry.
//
// Run with:
//
//	PROVIDER_SECRET=my-demo-secret go run scripts/demo-provider.go
//
// then register it (the secret must match):
//
//	agora token --type provider --client-id demo --provider-secret my-demo-secret --save
//	agora register --id demo-echo --name "Demo Echo" \
//	    --endpoint http://localhost:8090 --description "Echo and clock demo" \
//	    --intent demo.echo --category demo --language en
//	agora call --intent demo.echo --category demo --task echo --params '{"msg":"hi"}'
package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/agoramesh/agora/pkg/execkey"
)

type executePayload struct {
	Task   string         `json:"task"`
	Params map[string]any `json:"params"`
}

type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

func writeEnvelope(w http.ResponseWriter, status int, env envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(env)
}

func handleExecute(secret []byte) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeEnvelope(w, http.StatusMethodNotAllowed, envelope{Error: "POST only"})
			return
		}

		auth := r.Header.Get("Authorization")
		if !strings.HasPrefix(auth, "Bearer ") {
			writeEnvelope(w, http.StatusUnauthorized, envelope{Error: "Missing execution token"})
			return
		}
		claims, err := execkey.Verify(secret, strings.TrimPrefix(auth, "Bearer "))
		if err != nil {
			writeEnvelope(w, http.StatusForbidden, envelope{Error: "Invalid execution token"})
			return
		}

		var payload executePayload
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			writeEnvelope(w, http.StatusBadRequest, envelope{Error: "Body must be JSON with task and params"})
			return
		}

		start := time.Now()
		var data any
		switch payload.Task {
		case "echo":
			data = map[string]any{"echo": payload.Params}
		case "now":
			data = map[string]any{"now": time.Now().UTC().Format(time.RFC3339)}
		case "forecast":
			city, _ := payload.Params["city"].(string)
			if city == "" {
				city = "Berlin"
			}
			data = map[string]any{
				"city":       city,
				"summary":    "partly cloudy",
				"temp_c":     18.5,
				"confidence": 0.72,
			}
		default:
			writeEnvelope(w, http.StatusOK, envelope{Error: fmt.Sprintf("unknown task %q (try echo, now, forecast)", payload.Task)})
			return
		}

		fmt.Printf("  ✦ %s task=%s consumer=%s key=%s… (%dms)\n",
			time.Now().Format("15:04:05"), payload.Task,
			claims.ConsumerCallerID, claims.KeyID[:8], time.Since(start).Milliseconds())

		writeEnvelope(w, http.StatusOK, envelope{Success: true, Data: data})
	}
}

func main() {
	secret := os.Getenv("PROVIDER_SECRET")
	if secret == "" {
		fmt.Fprintln(os.Stderr, "PROVIDER_SECRET is required — it must match the secret you registered with")
		os.Exit(1)
	}
	port := os.Getenv("PORT")
	if port == "" {
		port = "8090"
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/execute", handleExecute([]byte(secret)))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	fmt.Printf("══════════════════════════════════════════════════════\n")
	fmt.Printf("  Agora demo provider\n")
	fmt.Printf("  Listening on :%s  |  tasks: echo, now, forecast\n", port)
	fmt.Printf("  Execution keys verified against PROVIDER_SECRET (%d chars)\n", len(secret))
	fmt.Printf("══════════════════════════════════════════════════════\n\n")

	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	if err := srv.ListenAndServe(); err != nil {
		fmt.Fprintf(os.Stderr, "server: %v\n", err)
		os.Exit(1)
	}
}
