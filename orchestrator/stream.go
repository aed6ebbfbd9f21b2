package orchestrator

import (
	"context"

	"github.com/marlowe-ai/convopipe/contract"
	"github.com/marlowe-ai/convopipe/dialogue"
	"github.com/marlowe-ai/convopipe/emit"
	"github.com/marlowe-ai/convopipe/llm"
	"github.com/marlowe-ai/convopipe/nlu"
	"github.com/marlowe-ai/convopipe/preprocess"
	"github.com/marlowe-ai/convopipe/retrieval"
	"github.com/marlowe-ai/convopipe/watchdog"
)

// ProcessStream runs one turn in streaming mode, pushing chunks onto the
// returned channel as they become available. The channel is closed after
// the terminal (done or error) chunk, per spec.md §9's pull-style iterator
// guidance — the caller ranges over it rather than receiving callbacks.
func (o *Orchestrator) ProcessStream(ctx context.Context, req *contract.Request) <-chan contract.StreamChunk {
	out := make(chan contract.StreamChunk)
	go o.runStream(ctx, req, out)
	return out
}

func (o *Orchestrator) runStream(ctx context.Context, req *contract.Request, out chan<- contract.StreamChunk) {
	defer close(out)
	seq := 0
	next := func() int {
		seq++
		return seq
	}
	send := func(chunk contract.StreamChunk) bool {
		chunk.RequestID = req.RequestID
		chunk.SequenceID = next()
		select {
		case out <- chunk:
			return true
		case <-ctx.Done():
			return false
		}
	}
	fail := func(code contract.ErrorCode) {
		send(contract.StreamChunk{ErrorCode: code, Done: true})
	}

	fsm := o.registry.GetOrCreate(req.SessionID)
	fsm.SetMaxClarificationAttempts(o.cfg.MaxClarificationAttempts)
	if err := fsm.StartNewTurn(req.RequestID); err != nil {
		fail(contract.ErrUpstream5XX)
		return
	}

	wd := watchdog.New(o.cfg.Budgets(), o.emitter)
	wctx := wd.StartRequest(ctx, req.RequestID, req.SessionID)
	o.emit(req.RequestID, req.SessionID, "", emit.LevelInfo, "pipeline_started", nil)

	if !send(contract.StreamChunk{Status: "preprocessing"}) {
		return
	}

	preResult := watchdog.ExecuteWithTimeout(wd, watchdog.StagePreprocess,
		func(context.Context) (preprocess.Result, error) { return preprocess.Preprocess(req.Message), nil },
		func() preprocess.Result {
			return preprocess.Result{NormalizedText: req.Message, Language: "auto", QualityFlags: []string{preprocess.FlagOK}}
		},
	)
	pre := preResult.Data
	if containsFlag(pre.QualityFlags, preprocess.FlagGarbageInput) {
		fsm.HandleError(string(contract.ErrGarbageInput), "input failed quality checks")
		wd.FinishRequest()
		fail(contract.ErrGarbageInput)
		return
	}

	if !send(contract.StreamChunk{Status: "analyzing"}) {
		return
	}
	fsm.Transition(dialogue.StateAnalyzing, "preprocess_complete", nil)
	nluResult := watchdog.ExecuteWithTimeout(wd, watchdog.StageNLU,
		func(ctx context.Context) (nlu.AnalysisResult, error) {
			return o.analyzer.Analyze(ctx, nlu.AnalyzeRequest{
				Message: pre.NormalizedText, SessionID: req.SessionID, UserID: req.UserID, RunID: req.RequestID,
			})
		}, nil)
	if !nluResult.Success {
		timedOut := nluResult.TimedOut || (nluResult.Aborted && nluResult.Err == nil)
		o.streamStageFailure(req, fsm, wd, watchdog.StageNLU, timedOut, nluResult.Err, fail)
		return
	}
	analysis := nluResult.Data
	topIntent, _ := topIntentAndConfidence(analysis)

	attemptsRemaining := fsm.ClarificationAttempts() < o.cfg.MaxClarificationAttempts
	decision := o.decide(wctx, analysis, req.RequestID, attemptsRemaining)
	if decision.CapExceeded {
		fsm.HandleError(string(contract.ErrLowConfidence), "clarification attempts exhausted")
		o.emit(req.RequestID, req.SessionID, "", emit.LevelWarn, "clarification_cap_exceeded", nil)
		wd.FinishRequest()
		fail(contract.ErrLowConfidence)
		return
	}
	if decision.ShouldClarify {
		fsm.Transition(dialogue.StateClarifying, "clarification_requested", map[string]any{"kind": string(decision.Kind)})
		if fsm.State() != dialogue.StateClarifying {
			o.emit(req.RequestID, req.SessionID, "", emit.LevelWarn, "clarification_cap_exceeded", nil)
			wd.FinishRequest()
			fail(contract.ErrLowConfidence)
			return
		}
		o.metrics.IncrementClarifications(string(decision.Kind))
		o.emit(req.RequestID, req.SessionID, "", emit.LevelInfo, "clarification_triggered", map[string]any{"kind": string(decision.Kind)})
		wd.FinishRequest()
		send(contract.StreamChunk{Content: decision.Question, Done: false})
		send(contract.StreamChunk{Done: true})
		return
	}
	fsm.ResetClarificationAttempts()

	var sources []contract.Source
	if o.backend != nil && needsRetrieval(topIntent, analysis) {
		fsm.Transition(dialogue.StateRetrieving, "retrieval_needed", nil)
		retResult := watchdog.ExecuteWithTimeout(wd, watchdog.StageRetrieval,
			func(ctx context.Context) ([]contract.Source, error) {
				return o.backend.Retrieve(ctx, pre.NormalizedText, retrieval.RetrievalContext{SessionID: req.SessionID, UserID: req.UserID})
			},
			func() []contract.Source { return nil },
		)
		sources = retResult.Data
		if len(sources) > 0 && o.reranker != nil {
			rerankResult := watchdog.ExecuteWithTimeout(wd, watchdog.StageRerank,
				func(ctx context.Context) ([]contract.Source, error) { return o.reranker.Rerank(ctx, pre.NormalizedText, sources) },
				func() []contract.Source { return sources },
			)
			if rerankResult.Success {
				sources = rerankResult.Data
			}
		}
	}

	if !send(contract.StreamChunk{Status: "generating"}) {
		return
	}
	fsm.Transition(dialogue.StateGenerating, "generation_start", nil)
	genBudget := o.cfg.Budgets().Generation
	if remaining := wd.RemainingBudget(); remaining < genBudget {
		genBudget = remaining
	}
	messages := buildMessages(pre.NormalizedText, sources)
	params := llm.Params{Model: o.cfg.DefaultModel, Temperature: 0.7, Timeout: genBudget, EnableFallback: o.cfg.EnableLLMFallback}

	stageCtx := wd.StartStage(watchdog.StageGeneration)
	stream, err := o.gateway.StreamChat(stageCtx, messages, params)
	if err != nil {
		wd.EndStage(watchdog.StageGeneration)
		if stageCtx.Err() != nil {
			fsm.HandleTimeout(watchdog.StageGeneration)
			o.metrics.IncrementTimeouts(watchdog.StageGeneration)
			wd.FinishRequest()
			fail(contract.ErrTimeoutGeneration)
			return
		}
		code := classify(err)
		fsm.HandleError(string(code), err.Error())
		wd.FinishRequest()
		fail(code)
		return
	}

	for {
		select {
		case ev, ok := <-stream:
			if !ok {
				wd.EndStage(watchdog.StageGeneration)
				fsm.HandleSuccess()
				wd.FinishRequest()
				send(contract.StreamChunk{Done: true})
				return
			}
			if !send(contract.StreamChunk{Content: ev.Content, Done: ev.Done}) {
				wd.EndStage(watchdog.StageGeneration)
				return
			}
			if ev.Done {
				wd.EndStage(watchdog.StageGeneration)
				fsm.HandleSuccess()
				wd.FinishRequest()
				return
			}
		case <-stageCtx.Done():
			wd.EndStage(watchdog.StageGeneration)
			fsm.HandleTimeout(watchdog.StageGeneration)
			o.metrics.IncrementTimeouts(watchdog.StageGeneration)
			wd.FinishRequest()
			fail(contract.ErrTimeoutGeneration)
			return
		}
	}
}

// streamStageFailure mirrors handleStageFailure's classification for the
// streaming path, which terminates with a single error chunk instead of a
// Response envelope.
func (o *Orchestrator) streamStageFailure(req *contract.Request, fsm *dialogue.FSM, wd *watchdog.Watchdog, stage string, timedOut bool, err error, fail func(contract.ErrorCode)) {
	if timedOut {
		fsm.HandleTimeout(stage)
		o.metrics.IncrementTimeouts(stage)
		wd.FinishRequest()
		fail(timeoutCode(stage))
		return
	}
	code := classify(err)
	fsm.HandleError(string(code), err.Error())
	wd.FinishRequest()
	fail(code)
}
