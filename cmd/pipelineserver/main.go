// Command pipelineserver exposes the conversational pipeline over HTTP,
// generalizing the teacher's examples/prometheus_monitoring main's
// promhttp-plus-signal-handling shape from a demo workflow loop into a
// long-running request server.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/marlowe-ai/convopipe/clarify"
	"github.com/marlowe-ai/convopipe/config"
	"github.com/marlowe-ai/convopipe/contract"
	"github.com/marlowe-ai/convopipe/dialogue"
	"github.com/marlowe-ai/convopipe/dialogue/store"
	"github.com/marlowe-ai/convopipe/emit"
	"github.com/marlowe-ai/convopipe/llm"
	"github.com/marlowe-ai/convopipe/llm/anthropic"
	"github.com/marlowe-ai/convopipe/llm/gemini"
	"github.com/marlowe-ai/convopipe/llm/xai"
	"github.com/marlowe-ai/convopipe/metrics"
	"github.com/marlowe-ai/convopipe/nlu"
	"github.com/marlowe-ai/convopipe/orchestrator"
	"github.com/marlowe-ai/convopipe/retrieval"
)

func main() {
	addr := envOr("PIPELINESERVER_ADDR", ":8080")
	jsonLogs := envOr("PIPELINESERVER_LOG_FORMAT", "text") == "json"

	emitter := emit.NewLogEmitter(os.Stdout, jsonLogs)
	m := metrics.New(nil)

	cfg := buildConfig()
	policy := buildPolicy(cfg)
	gateway := buildGateway()
	registry := dialogue.NewRegistry(cfg.SessionInactivityThreshold, cfg.SessionCleanupInterval, emitter)
	if s := buildSessionStore(); s != nil {
		registry.SetStore(s)
	}
	defer registry.Stop()

	// nlu.Analyzer and retrieval.Backend/Reranker are external collaborators
	// this repo only consumes, never implements (the intent analyzer and
	// retrieval/rerank backends are someone else's service); Mock stands in
	// until a real client is wired for a given deployment.
	analyzer := &nlu.Mock{Result: nlu.AnalysisResult{
		Intents: []nlu.IntentCandidate{{Intent: "chat", Confidence: 0.9}},
	}}
	var backend retrieval.Backend
	var reranker retrieval.Reranker

	o := orchestrator.New(cfg, registry, policy, gateway, analyzer, backend, reranker, emitter, m)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/chat", handleChat(o))
	mux.HandleFunc("POST /v1/chat/stream", handleChatStream(o))
	mux.HandleFunc("GET /healthz", handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())

	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		log.Printf("pipelineserver listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("pipelineserver: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Println("pipelineserver shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("pipelineserver: shutdown error: %v", err)
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func buildConfig() config.Config {
	var opts []config.Option
	if envOr("PIPELINESERVER_AGGRESSIVE_TIMEOUTS", "") == "true" {
		opts = append(opts, config.WithAggressiveTimeouts(true))
	}
	return config.New(opts...)
}

// buildPolicy constructs the clarification policy with the confidence
// ladder sourced from Config, rather than clarify.New's package defaults,
// so a deployment tuning ConfidenceThresholdOK/Clarify actually changes
// clarification behavior instead of silently doing nothing.
func buildPolicy(cfg config.Config) *clarify.Policy {
	p := clarify.New()
	p.Thresholds.OK = cfg.ConfidenceThresholdOK
	p.Thresholds.Clarify = cfg.ConfidenceThresholdClarify
	return p
}

// buildGateway assembles the real LLM router from whichever provider API
// keys are present in the environment, falling back to an in-memory mock
// so the server still boots (and /healthz still answers) with none
// configured. The first provider found becomes primary; the second, if
// any, becomes the fallback the router calls on a primary failure.
func buildGateway() llm.Gateway {
	var gateways []llm.Gateway
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		gateways = append(gateways, anthropic.New(key))
	}
	if key := os.Getenv("XAI_API_KEY"); key != "" {
		gateways = append(gateways, xai.New(key, os.Getenv("XAI_BASE_URL")))
	}
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		gateways = append(gateways, gemini.New(key))
	}
	switch len(gateways) {
	case 0:
		msg := "pipelineserver: no LLM provider configured"
		return &llm.Mock{
			Responses: []llm.ChatOut{{Content: msg}},
			Stream:    []llm.StreamEvent{{Content: msg}, {Done: true}},
		}
	case 1:
		return gateways[0]
	default:
		return llm.NewRouter(gateways[0], gateways[1])
	}
}

// buildSessionStore picks a persistence backend for dialogue sessions from
// the environment. A nil return leaves Registry without one, so sessions
// live only as long as the process, which is fine for development.
func buildSessionStore() sessionStoreFactory {
	if dsn := os.Getenv("PIPELINESERVER_MYSQL_DSN"); dsn != "" {
		s, err := store.NewMySQLStore(dsn)
		if err != nil {
			log.Fatalf("pipelineserver: mysql session store: %v", err)
		}
		return s
	}
	if path := os.Getenv("PIPELINESERVER_SQLITE_PATH"); path != "" {
		s, err := store.NewSQLiteStore(path)
		if err != nil {
			log.Fatalf("pipelineserver: sqlite session store: %v", err)
		}
		return s
	}
	if envOr("PIPELINESERVER_MEMORY_STORE", "") == "true" {
		return store.NewMemoryStore()
	}
	return nil
}

// sessionStoreFactory mirrors dialogue's unexported sessionStore interface
// structurally, letting buildSessionStore return any of the three store
// implementations without importing dialogue's internal type.
type sessionStoreFactory interface {
	SaveSession(ctx context.Context, session dialogue.DialogueContext) error
	LoadSession(ctx context.Context, sessionID string) (dialogue.DialogueContext, error)
	DeleteSession(ctx context.Context, sessionID string) error
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func handleChat(o *orchestrator.Orchestrator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw, fieldErrs, ok := decodeRequest(w, r)
		if !ok {
			return
		}
		if len(fieldErrs) > 0 {
			writeValidationError(w, fieldErrs)
			return
		}

		resp, err := o.Process(r.Context(), raw)
		if err != nil {
			writeTurnError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func handleChatStream(o *orchestrator.Orchestrator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, fieldErrs, ok := decodeRequest(w, r)
		if !ok {
			return
		}
		if len(fieldErrs) > 0 {
			writeValidationError(w, fieldErrs)
			return
		}

		flusher, canFlush := w.(http.Flusher)
		w.Header().Set("Content-Type", "application/x-ndjson")
		w.WriteHeader(http.StatusOK)

		enc := json.NewEncoder(w)
		for chunk := range o.ProcessStream(r.Context(), req) {
			if err := enc.Encode(chunk); err != nil {
				return
			}
			if canFlush {
				flusher.Flush()
			}
		}
	}
}

// decodeRequest reads and validates the wire request body, writing an
// error response itself on malformed JSON (the returned bool is false) or
// returning validation field errors for the caller to report (non-empty
// slice, bool true).
func decodeRequest(w http.ResponseWriter, r *http.Request) (*contract.Request, []contract.FieldError, bool) {
	var raw contract.RawRequest
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed JSON body"})
		return nil, nil, false
	}
	req, errs := contract.ValidateRequest(raw)
	return req, errs, true
}

func writeValidationError(w http.ResponseWriter, errs []contract.FieldError) {
	writeJSON(w, http.StatusBadRequest, map[string]any{"errors": errs})
}

func writeTurnError(w http.ResponseWriter, err error) {
	if errors.Is(err, dialogue.ErrTurnInFlight) {
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
