// Package orchestrator sequences one turn of the conversational pipeline
// through preprocessing, NLU, clarification, retrieval, rerank, and
// generation, under the watchdog's stage and total budgets, and drives
// the per-session dialogue FSM through the turn.
//
// Composition mirrors the teacher's graph.Engine[S]: one struct holding
// its collaborators (registry, policy, gateway, analyzer, backend,
// reranker, emitter, metrics) assembled once at startup and reused across
// requests, generalizing graph/engine.go's Engine{reducer, store, emitter,
// metrics, costTracker}.
package orchestrator

import (
	"context"
	"strings"

	"github.com/marlowe-ai/convopipe/clarify"
	"github.com/marlowe-ai/convopipe/config"
	"github.com/marlowe-ai/convopipe/contract"
	"github.com/marlowe-ai/convopipe/dialogue"
	"github.com/marlowe-ai/convopipe/emit"
	"github.com/marlowe-ai/convopipe/llm"
	"github.com/marlowe-ai/convopipe/metrics"
	"github.com/marlowe-ai/convopipe/nlu"
	"github.com/marlowe-ai/convopipe/preprocess"
	"github.com/marlowe-ai/convopipe/retrieval"
	"github.com/marlowe-ai/convopipe/watchdog"
)

// retrievalDemandingIntents names the intents that trigger retrieval
// regardless of complexity, per spec step 6.
var retrievalDemandingIntents = map[string]bool{
	"research":          true,
	"document_analysis": true,
	"data_analysis":     true,
	"multi_step_task":   true,
}

// Orchestrator wires one process's collaborators together. Safe for
// concurrent use across sessions; a single session's turns are serialized
// by the registry's per-entry lock.
type Orchestrator struct {
	cfg      config.Config
	registry *dialogue.Registry
	policy   *clarify.Policy
	gateway  llm.Gateway
	analyzer nlu.Analyzer
	backend  retrieval.Backend
	reranker retrieval.Reranker
	emitter  emit.Emitter
	metrics  *metrics.PipelineMetrics
}

// New assembles an Orchestrator. backend and reranker may be nil — a
// session that never needs retrieval works fine without them.
func New(
	cfg config.Config,
	registry *dialogue.Registry,
	policy *clarify.Policy,
	gateway llm.Gateway,
	analyzer nlu.Analyzer,
	backend retrieval.Backend,
	reranker retrieval.Reranker,
	emitter emit.Emitter,
	m *metrics.PipelineMetrics,
) *Orchestrator {
	if emitter == nil {
		emitter = emit.NewNullEmitter()
	}
	if m == nil {
		m = metrics.New(nil)
		m.Disable()
	}
	return &Orchestrator{
		cfg:      cfg,
		registry: registry,
		policy:   policy,
		gateway:  gateway,
		analyzer: analyzer,
		backend:  backend,
		reranker: reranker,
		emitter:  emitter,
		metrics:  m,
	}
}

func (o *Orchestrator) emit(requestID, sessionID, stage, level, msg string, meta map[string]any) {
	o.emitter.Emit(emit.Event{
		RequestID: requestID, SessionID: sessionID, Stage: stage, Level: level, Msg: msg, Meta: meta,
	})
}

func (o *Orchestrator) fallbackMessage(code contract.ErrorCode) string {
	if msg, ok := o.cfg.FallbackMessages[code]; ok {
		return msg
	}
	return contract.DefaultFallbackMessages[code]
}

func containsFlag(flags []string, target string) bool {
	for _, f := range flags {
		if f == target {
			return true
		}
	}
	return false
}

func topIntentAndConfidence(result nlu.AnalysisResult) (string, float64) {
	if len(result.Intents) == 0 {
		return "", 0
	}
	return result.Intents[0].Intent, result.Intents[0].Confidence
}

func needsRetrieval(intent string, result nlu.AnalysisResult) bool {
	if retrievalDemandingIntents[intent] {
		return true
	}
	return result.Complexity == nlu.ComplexityComplex || result.Complexity == nlu.ComplexityExpert
}

// decide runs C3 when clarification is enabled for this process, and
// returns a no-clarify verdict otherwise.
func (o *Orchestrator) decide(ctx context.Context, analysis nlu.AnalysisResult, requestID string, attemptsRemaining bool) clarify.Decision {
	if !o.cfg.EnableClarification {
		return clarify.Decision{}
	}
	return o.policy.Decide(ctx, analysis, requestID, attemptsRemaining)
}

// buildMessages assembles the generation prompt, prefixing a system
// message summarizing retrieved sources when any are available.
func buildMessages(text string, sources []contract.Source) []llm.Message {
	messages := make([]llm.Message, 0, 2)
	if len(sources) > 0 {
		var sb strings.Builder
		sb.WriteString("Usa las siguientes fuentes si son relevantes:\n")
		for _, s := range sources {
			sb.WriteString("- " + s.Title + ": " + s.Snippet + "\n")
		}
		messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: sb.String()})
	}
	return append(messages, llm.Message{Role: llm.RoleUser, Content: text})
}

// timeoutCode maps a watchdog stage name to its wire timeout code,
// mirroring contract's unexported per-stage mapping for the streaming
// path, which emits a bare ErrorCode rather than a full Response.
func timeoutCode(stage string) contract.ErrorCode {
	switch stage {
	case watchdog.StagePreprocess:
		return contract.ErrTimeoutPreprocess
	case watchdog.StageNLU:
		return contract.ErrTimeoutNLU
	case watchdog.StageRetrieval:
		return contract.ErrTimeoutRetrieval
	default:
		return contract.ErrTimeoutGeneration
	}
}

// Process runs one blocking turn to completion, per spec step list 1-8.
func (o *Orchestrator) Process(ctx context.Context, req *contract.Request) (contract.Response, error) {
	fsm := o.registry.GetOrCreate(req.SessionID)
	fsm.SetMaxClarificationAttempts(o.cfg.MaxClarificationAttempts)
	if err := fsm.StartNewTurn(req.RequestID); err != nil {
		return contract.Response{}, err
	}

	wd := watchdog.New(o.cfg.Budgets(), o.emitter)
	wctx := wd.StartRequest(ctx, req.RequestID, req.SessionID)
	o.emit(req.RequestID, req.SessionID, "", emit.LevelInfo, "pipeline_started", nil)

	// Stage 1: preprocess. Pure and synchronous, but still budgeted and
	// given a neutral fallback so a pathological input can't starve the
	// stage timer.
	preResult := watchdog.ExecuteWithTimeout(wd, watchdog.StagePreprocess,
		func(context.Context) (preprocess.Result, error) {
			return preprocess.Preprocess(req.Message), nil
		},
		func() preprocess.Result {
			return preprocess.Result{
				NormalizedText: req.Message,
				OriginalText:   req.Message,
				Language:       "auto",
				QualityFlags:   []string{preprocess.FlagOK},
			}
		},
	)
	if preResult.TimedOut {
		o.metrics.IncrementTimeouts(watchdog.StagePreprocess)
	}
	pre := preResult.Data
	o.emit(req.RequestID, req.SessionID, watchdog.StagePreprocess, emit.LevelInfo, "stage_preprocess_complete", map[string]any{
		"language": pre.Language, "quality_score": pre.QualityScore,
	})

	if containsFlag(pre.QualityFlags, preprocess.FlagGarbageInput) {
		fsm.HandleError(string(contract.ErrGarbageInput), "input failed quality checks")
		lat := wd.FinishRequest()
		resp := contract.ErrorResponse(req, req.SessionID, contract.ErrGarbageInput, o.fallbackMessage(contract.ErrGarbageInput), lat.Total)
		o.recordCompletion(req, resp)
		return resp, nil
	}

	// Stage 2: NLU. No fallback — a failure here is a genuine error.
	fsm.Transition(dialogue.StateAnalyzing, "preprocess_complete", nil)
	nluResult := watchdog.ExecuteWithTimeout(wd, watchdog.StageNLU,
		func(ctx context.Context) (nlu.AnalysisResult, error) {
			return o.analyzer.Analyze(ctx, nlu.AnalyzeRequest{
				Message: pre.NormalizedText, SessionID: req.SessionID, UserID: req.UserID, RunID: req.RequestID,
			})
		}, nil)
	if !nluResult.Success {
		return handleStageFailure(o, req, fsm, wd, watchdog.StageNLU, nluResult), nil
	}
	analysis := nluResult.Data
	topIntent, topConfidence := topIntentAndConfidence(analysis)

	// Stage 3: clarification policy.
	attemptsRemaining := fsm.ClarificationAttempts() < o.cfg.MaxClarificationAttempts
	decision := o.decide(wctx, analysis, req.RequestID, attemptsRemaining)
	if decision.CapExceeded {
		fsm.HandleError(string(contract.ErrLowConfidence), "clarification attempts exhausted")
		o.emit(req.RequestID, req.SessionID, "", emit.LevelWarn, "clarification_cap_exceeded", nil)
		lat := wd.FinishRequest()
		resp := contract.ErrorResponse(req, req.SessionID, contract.ErrLowConfidence, o.fallbackMessage(contract.ErrLowConfidence), lat.Total)
		o.recordCompletion(req, resp)
		return resp, nil
	}
	if decision.ShouldClarify {
		fsm.Transition(dialogue.StateClarifying, "clarification_requested", map[string]any{"kind": string(decision.Kind)})
		if fsm.State() != dialogue.StateClarifying {
			// The self-loop itself just crossed the attempt cap; the FSM
			// already redirected to fallback.
			o.emit(req.RequestID, req.SessionID, "", emit.LevelWarn, "clarification_cap_exceeded", nil)
			lat := wd.FinishRequest()
			resp := contract.ErrorResponse(req, req.SessionID, contract.ErrLowConfidence, o.fallbackMessage(contract.ErrLowConfidence), lat.Total)
			o.recordCompletion(req, resp)
			return resp, nil
		}
		attempt := fsm.ClarificationAttempts() + 1
		o.metrics.IncrementClarifications(string(decision.Kind))
		o.emit(req.RequestID, req.SessionID, "", emit.LevelInfo, "clarification_triggered", map[string]any{"kind": string(decision.Kind)})
		lat := wd.FinishRequest()
		return contract.ClarificationResponse(req, req.SessionID, decision.Question, topConfidence, attempt, lat.Total), nil
	}
	fsm.ResetClarificationAttempts()

	// Stage 4: retrieval + rerank, non-fatal.
	var sources []contract.Source
	if o.backend != nil && needsRetrieval(topIntent, analysis) {
		fsm.Transition(dialogue.StateRetrieving, "retrieval_needed", nil)
		retResult := watchdog.ExecuteWithTimeout(wd, watchdog.StageRetrieval,
			func(ctx context.Context) ([]contract.Source, error) {
				return o.backend.Retrieve(ctx, pre.NormalizedText, retrieval.RetrievalContext{
					SessionID: req.SessionID, UserID: req.UserID,
				})
			},
			func() []contract.Source { return nil },
		)
		sources = retResult.Data
		if retResult.TimedOut {
			o.metrics.IncrementTimeouts(watchdog.StageRetrieval)
		}

		if len(sources) > 0 && o.reranker != nil {
			rerankResult := watchdog.ExecuteWithTimeout(wd, watchdog.StageRerank,
				func(ctx context.Context) ([]contract.Source, error) {
					return o.reranker.Rerank(ctx, pre.NormalizedText, sources)
				},
				func() []contract.Source { return sources },
			)
			if rerankResult.Success {
				sources = rerankResult.Data
			}
		}
	}

	// Stage 5: generation.
	fsm.Transition(dialogue.StateGenerating, "generation_start", nil)
	genBudget := o.cfg.Budgets().Generation
	if remaining := wd.RemainingBudget(); remaining < genBudget {
		genBudget = remaining
	}
	messages := buildMessages(pre.NormalizedText, sources)
	params := llm.Params{
		Model: o.cfg.DefaultModel, Temperature: 0.7, Timeout: genBudget, EnableFallback: o.cfg.EnableLLMFallback,
	}
	genResult := watchdog.ExecuteWithTimeout(wd, watchdog.StageGeneration,
		func(ctx context.Context) (llm.ChatOut, error) {
			return o.gateway.Chat(ctx, messages, params)
		}, nil)
	if !genResult.Success {
		return handleStageFailure(o, req, fsm, wd, watchdog.StageGeneration, genResult), nil
	}
	out := genResult.Data
	if out.UsedFallback {
		o.metrics.IncrementFallbacks("generation_provider_fallback")
	}

	// Stage 6: postprocess. Trims the generated answer under its own budget.
	postResult := watchdog.ExecuteWithTimeout(wd, watchdog.StagePostprocess,
		func(context.Context) (string, error) { return strings.TrimSpace(out.Content), nil },
		func() string { return out.Content },
	)

	lat := wd.FinishRequest()
	fsm.HandleSuccess()

	builder := contract.NewResponseBuilder(req.RequestID, req.SessionID).
		SetState("success").
		SetMessage(postResult.Data).
		SetIntent(topIntent, topConfidence).
		SetEntities(analysis.ExtractedEntities).
		SetAction(contract.ActionAnswer).
		SetSources(sources).
		SetLatency(contract.Latency{
			Preprocess: lat.Preprocess, NLU: lat.NLU, Retrieval: lat.Retrieval,
			Rerank: lat.Rerank, Generation: lat.Generation, Postprocess: lat.Postprocess, Total: lat.Total,
		}).
		SetModel(out.Model, out.Provider).
		SetError(contract.ErrNone, false)

	if out.UsedFallback || out.Tokens > 0 {
		builder.SetMetadata(&contract.Metadata{TokensUsed: out.Tokens, FromFallback: out.UsedFallback})
	}

	resp := builder.Build()
	o.recordCompletion(req, resp)
	return resp, nil
}

// recordCompletion logs and counts one finished turn.
func (o *Orchestrator) recordCompletion(req *contract.Request, resp contract.Response) {
	if resp.ErrorCode != contract.ErrNone {
		o.emit(req.RequestID, req.SessionID, "", emit.LevelError, "pipeline_error", map[string]any{"error_code": string(resp.ErrorCode)})
	} else {
		o.emit(req.RequestID, req.SessionID, "", emit.LevelInfo, "pipeline_completed", map[string]any{"action": string(resp.Action)})
	}
	if o.metrics != nil {
		o.metrics.IncrementRequests(string(resp.Action))
	}
}

// handleStageFailure classifies a failed stage's Result into the correct
// timeout or error response, transitioning the FSM accordingly. A stage
// with no fallback that times out or errors always lands here.
func handleStageFailure[T any](o *Orchestrator, req *contract.Request, fsm *dialogue.FSM, wd *watchdog.Watchdog, stage string, result watchdog.Result[T]) contract.Response {
	if result.TimedOut || (result.Aborted && result.Err == nil) {
		fsm.HandleTimeout(stage)
		o.emit(req.RequestID, req.SessionID, stage, emit.LevelWarn, "stage_timeout", nil)
		o.metrics.IncrementTimeouts(stage)
		lat := wd.FinishRequest()
		resp := contract.TimeoutResponse(req, req.SessionID, stage, lat.Total)
		o.recordCompletion(req, resp)
		return resp
	}
	code := classify(result.Err)
	fsm.HandleError(string(code), result.Err.Error())
	lat := wd.FinishRequest()
	resp := contract.ErrorResponse(req, req.SessionID, code, o.fallbackMessage(code), lat.Total)
	o.recordCompletion(req, resp)
	return resp
}
