package watchdog

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/marlowe-ai/convopipe/emit"
)

// StageTimeoutError indicates a stage exceeded its configured budget and no
// fallback was supplied.
type StageTimeoutError struct {
	Stage  string
	Budget time.Duration
}

func (e *StageTimeoutError) Error() string {
	return "stage " + e.Stage + " exceeded timeout of " + e.Budget.String()
}

// ErrStageNotStarted names the condition of a stage that was never started.
// No function in this package returns it: EndStage reports such a stage
// with a zero stageOutcome whose Started field is false.
var ErrStageNotStarted = errors.New("watchdog: stage not started")

type stageState struct {
	ctx       context.Context
	cancel    context.CancelFunc
	start     time.Time
	budget    time.Duration
	duration  *time.Duration
	timedOut  bool
	aborted   bool
	abortOnce sync.Once
	onAbort   func()
}

// Watchdog enforces the timeouts for one in-flight turn. One Watchdog is
// created per request and discarded once the turn's response is built.
type Watchdog struct {
	mu sync.Mutex

	budgets      Budgets
	emitter      emit.Emitter
	requestID    string
	sessionID    string
	requestStart time.Time
	totalCtx     context.Context
	totalCancel  context.CancelFunc
	totalTimer   *time.Timer
	stages       map[string]*stageState
	finished     bool
}

// New creates a Watchdog configured with the given budgets. It emits no
// events until StartRequest is called.
func New(budgets Budgets, emitter emit.Emitter) *Watchdog {
	if emitter == nil {
		emitter = emit.NewNullEmitter()
	}
	return &Watchdog{
		budgets: budgets,
		emitter: emitter,
		stages:  make(map[string]*stageState),
	}
}

func (w *Watchdog) emit(stage, level, msg string, meta map[string]any) {
	w.emitter.Emit(emit.Event{
		RequestID: w.requestID,
		SessionID: w.sessionID,
		Stage:     stage,
		Level:     level,
		Msg:       msg,
		Meta:      meta,
	})
}

// StartRequest arms the total-budget timer and returns a context carrying
// the global cancellation token. Callers should derive every stage context
// from the Watchdog (via StartStage), not directly from the returned
// context.
func (w *Watchdog) StartRequest(ctx context.Context, requestID, sessionID string) context.Context {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.requestID = requestID
	w.sessionID = sessionID
	w.requestStart = time.Now()
	w.totalCtx, w.totalCancel = context.WithCancel(ctx)

	if w.budgets.Total > 0 {
		w.totalTimer = time.AfterFunc(w.budgets.Total, func() {
			w.Abort("total_budget_exceeded")
		})
	}

	w.emit("", emit.LevelInfo, "request_started", nil)
	return w.totalCtx
}

// StartStage arms the stage's timer and returns a context derived from the
// request's total context. Calling StartStage twice for the same
// not-yet-ended stage is idempotent and returns the existing context.
func (w *Watchdog) StartStage(stage string) context.Context {
	w.mu.Lock()
	defer w.mu.Unlock()

	if s, ok := w.stages[stage]; ok && s.duration == nil {
		return s.ctx
	}

	budget := w.budgets.ForStage(stage)
	var ctx context.Context
	var cancel context.CancelFunc
	if budget > 0 {
		ctx, cancel = context.WithTimeout(w.totalCtx, budget)
	} else {
		ctx, cancel = context.WithCancel(w.totalCtx)
	}

	w.stages[stage] = &stageState{ctx: ctx, cancel: cancel, start: time.Now(), budget: budget}
	w.emit(stage, emit.LevelDebug, "stage_started", nil)
	return ctx
}

// stageOutcome summarizes how a stage concluded.
type stageOutcome struct {
	Duration time.Duration
	TimedOut bool
	Aborted  bool
	Started  bool
}

// EndStage disarms the stage's timer, records its duration, and removes its
// token. It is idempotent: calling it more than once (e.g. once from the
// abort path, once from a late-arriving goroutine) only records the first
// outcome.
func (w *Watchdog) EndStage(stage string) stageOutcome {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.endStageLocked(stage)
}

func (w *Watchdog) endStageLocked(stage string) stageOutcome {
	s, ok := w.stages[stage]
	if !ok {
		return stageOutcome{}
	}
	if s.duration != nil {
		return stageOutcome{Duration: *s.duration, TimedOut: s.timedOut, Aborted: s.aborted, Started: true}
	}

	d := time.Since(s.start)
	switch {
	case s.aborted:
		// already flagged by an abort call
	case s.ctx.Err() == context.DeadlineExceeded:
		s.timedOut = true
	}
	s.duration = &d
	s.cancel()

	w.emit(stage, emit.LevelDebug, "stage_completed", map[string]any{
		"duration_ms":   d.Milliseconds(),
		"within_budget": !s.timedOut && !s.aborted,
	})

	return stageOutcome{Duration: d, TimedOut: s.timedOut, Aborted: s.aborted, Started: true}
}

// Result is the outcome of a watchdog-guarded stage call.
type Result[T any] struct {
	Success  bool
	Data     T
	TimedOut bool
	Aborted  bool
	Err      error
}

// ExecuteWithTimeout races op against the stage's deadline (and the global
// abort signal). On timeout, fallback (if non-nil) supplies degraded data
// and Result.Success is true; otherwise Result.Err is a *StageTimeoutError.
// On external abort, the same fallback is honored per the edge-case rule
// that an in-flight stage's registered fallback is never lost to a global
// deadline.
func ExecuteWithTimeout[T any](w *Watchdog, stage string, op func(ctx context.Context) (T, error), fallback func() T) Result[T] {
	ctx := w.StartStage(stage)

	type opResult struct {
		data T
		err  error
	}
	ch := make(chan opResult, 1)
	go func() {
		data, err := op(ctx)
		ch <- opResult{data: data, err: err}
	}()

	select {
	case r := <-ch:
		outcome := w.EndStage(stage)
		if outcome.Aborted {
			return abortedResult(w, stage, fallback)
		}
		if r.err != nil {
			return Result[T]{Err: r.err}
		}
		return Result[T]{Success: true, Data: r.data}
	case <-ctx.Done():
		outcome := w.EndStage(stage)
		if outcome.Aborted {
			return abortedResult(w, stage, fallback)
		}
		// Timed out.
		if fallback != nil {
			var zero T
			return Result[T]{Success: true, Data: fallbackOrZero(fallback, zero), TimedOut: true}
		}
		budget := w.budgets.ForStage(stage)
		return Result[T]{Success: false, TimedOut: true, Err: &StageTimeoutError{Stage: stage, Budget: budget}}
	}
}

func fallbackOrZero[T any](fallback func() T, zero T) T {
	if fallback == nil {
		return zero
	}
	return fallback()
}

func abortedResult[T any](w *Watchdog, stage string, fallback func() T) Result[T] {
	if fallback != nil {
		return Result[T]{Success: true, Data: fallback(), Aborted: true}
	}
	return Result[T]{Success: false, Aborted: true}
}

// AbortHooks bundles the callbacks used by ExecuteWithAbort.
type AbortHooks[T any] struct {
	// Execute performs the stage's work, observing signal for cooperative
	// cancellation (e.g. plumbing it into an HTTP request context).
	Execute func(ctx context.Context, signal <-chan struct{}) (T, error)
	// OnAbort is invoked at most once if the stage is aborted through
	// AbortStage, AbortAllStages or Abort, letting the caller tear down
	// long-running external work (a streaming HTTP response, a browser
	// session). A stage that runs past its own budget without being aborted
	// does not invoke it.
	OnAbort func()
	// Fallback supplies degraded data on timeout/abort, as in ExecuteWithTimeout.
	Fallback func() T
}

// ExecuteWithAbort is the network-I/O-oriented counterpart to
// ExecuteWithTimeout: the stage function receives an explicit cancellation
// signal channel to propagate into I/O drivers (recommended for NLU,
// retrieval, rerank, and generation calls).
func ExecuteWithAbort[T any](w *Watchdog, stage string, hooks AbortHooks[T]) Result[T] {
	ctx := w.StartStage(stage)

	w.mu.Lock()
	if s, ok := w.stages[stage]; ok {
		s.onAbort = hooks.OnAbort
	}
	w.mu.Unlock()

	signal := make(chan struct{})
	go func() {
		<-ctx.Done()
		close(signal)
	}()

	type opResult struct {
		data T
		err  error
	}
	ch := make(chan opResult, 1)
	go func() {
		data, err := hooks.Execute(ctx, signal)
		ch <- opResult{data: data, err: err}
	}()

	select {
	case r := <-ch:
		outcome := w.EndStage(stage)
		if outcome.Aborted {
			return abortedResult(w, stage, hooks.Fallback)
		}
		if r.err != nil {
			return Result[T]{Err: r.err}
		}
		return Result[T]{Success: true, Data: r.data}
	case <-ctx.Done():
		outcome := w.EndStage(stage)
		if outcome.Aborted {
			return abortedResult(w, stage, hooks.Fallback)
		}
		if hooks.Fallback != nil {
			return Result[T]{Success: true, Data: hooks.Fallback(), TimedOut: true}
		}
		budget := w.budgets.ForStage(stage)
		return Result[T]{Success: false, TimedOut: true, Err: &StageTimeoutError{Stage: stage, Budget: budget}}
	}
}

// AbortStage cancels one stage's token, firing its on_abort hook exactly
// once. A no-op if the stage was never started or already ended.
func (w *Watchdog) AbortStage(stage, reason string) {
	w.mu.Lock()
	s, ok := w.stages[stage]
	if !ok || s.duration != nil {
		w.mu.Unlock()
		return
	}
	s.aborted = true
	onAbort := s.onAbort
	s.cancel()
	w.mu.Unlock()

	s.abortOnce.Do(func() {
		if onAbort != nil {
			onAbort()
		}
	})
	w.emit(stage, emit.LevelWarn, "stage_aborted", map[string]any{"reason": reason})
}

// AbortAllStages cancels every stage currently in flight.
func (w *Watchdog) AbortAllStages(reason string) {
	w.mu.Lock()
	inflight := make([]string, 0, len(w.stages))
	for name, s := range w.stages {
		if s.duration == nil {
			inflight = append(inflight, name)
		}
	}
	w.mu.Unlock()

	for _, name := range inflight {
		w.AbortStage(name, reason)
	}
}

// Abort cancels every in-flight stage and then the whole request's token.
// Per the edge-case rule, stage tokens are cancelled first so any
// in-progress ExecuteWithTimeout/ExecuteWithAbort call can still resolve
// through its own fallback before the request-wide cancellation propagates.
func (w *Watchdog) Abort(reason string) {
	w.AbortAllStages(reason)

	w.mu.Lock()
	cancel := w.totalCancel
	w.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	w.emit("", emit.LevelWarn, "request_aborted", map[string]any{"reason": reason})
}

// PipelineLatency is the per-stage plus total duration breakdown for one
// turn, with nil entries for stages never reached.
type PipelineLatency struct {
	Preprocess  *int64
	NLU         *int64
	Retrieval   *int64
	Rerank      *int64
	Generation  *int64
	Postprocess *int64
	Total       int64
}

func ms(d time.Duration) *int64 {
	v := d.Milliseconds()
	return &v
}

// FinishRequest disarms all timers, revokes all tokens, and returns the
// latency breakdown for the turn.
func (w *Watchdog) FinishRequest() PipelineLatency {
	w.mu.Lock()
	if w.finished {
		w.mu.Unlock()
		return PipelineLatency{}
	}
	w.finished = true
	if w.totalTimer != nil {
		w.totalTimer.Stop()
	}
	total := time.Since(w.requestStart)

	var lat PipelineLatency
	lat.Total = total.Milliseconds()

	for name, s := range w.stages {
		outcome := w.endStageLocked(name)
		if !outcome.Started {
			continue
		}
		switch name {
		case StagePreprocess:
			lat.Preprocess = ms(outcome.Duration)
		case StageNLU:
			lat.NLU = ms(outcome.Duration)
		case StageRetrieval:
			lat.Retrieval = ms(outcome.Duration)
		case StageRerank:
			lat.Rerank = ms(outcome.Duration)
		case StageGeneration:
			lat.Generation = ms(outcome.Duration)
		case StagePostprocess:
			lat.Postprocess = ms(outcome.Duration)
		}
		_ = s
	}
	cancel := w.totalCancel
	w.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	w.emit("", emit.LevelInfo, "request_completed", map[string]any{"total_ms": lat.Total})
	return lat
}

// RemainingBudget returns max(0, total - elapsed). Downstream stages must
// clamp their own per-stage budget to this value.
func (w *Watchdog) RemainingBudget() time.Duration {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.budgets.Total <= 0 || w.requestStart.IsZero() {
		return w.budgets.Total
	}
	remaining := w.budgets.Total - time.Since(w.requestStart)
	if remaining < 0 {
		return 0
	}
	return remaining
}
