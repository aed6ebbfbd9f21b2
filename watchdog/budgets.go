// Package watchdog enforces per-stage and total-request deadlines for one
// turn of the conversational pipeline, exposing cooperative cancellation
// tokens and recording per-stage latency.
//
// It generalizes the timeout precedence logic in the teacher's
// graph/timeout.go (NodePolicy.Timeout > DefaultNodeTimeout > unlimited)
// from a single per-node override into a fixed, named six-stage budget.
package watchdog

import "time"

// Stage names, matching the pipeline's six named stages.
const (
	StagePreprocess  = "preprocess"
	StageNLU         = "nlu"
	StageRetrieval   = "retrieval"
	StageRerank      = "rerank"
	StageGeneration  = "generation"
	StagePostprocess = "postprocess"
)

var allStages = []string{
	StagePreprocess, StageNLU, StageRetrieval, StageRerank, StageGeneration, StagePostprocess,
}

// Budgets holds the per-stage and total deadlines for one request. The total
// budget is authoritative: per-stage budgets need not sum to it.
type Budgets struct {
	Preprocess  time.Duration
	NLU         time.Duration
	Retrieval   time.Duration
	Rerank      time.Duration
	Generation  time.Duration
	Postprocess time.Duration
	Total       time.Duration
}

// ForStage returns the configured budget for a named stage, or 0 if the
// stage name is unrecognized (treated as unlimited by callers).
func (b Budgets) ForStage(stage string) time.Duration {
	switch stage {
	case StagePreprocess:
		return b.Preprocess
	case StageNLU:
		return b.NLU
	case StageRetrieval:
		return b.Retrieval
	case StageRerank:
		return b.Rerank
	case StageGeneration:
		return b.Generation
	case StagePostprocess:
		return b.Postprocess
	default:
		return 0
	}
}

// WithStage returns a copy of b with the named stage's budget overridden.
// Unknown stage names are a no-op, matching the "individual stages may be
// overridden" allowance without introducing a new error path for typos
// from static call sites.
func (b Budgets) WithStage(stage string, d time.Duration) Budgets {
	out := b
	switch stage {
	case StagePreprocess:
		out.Preprocess = d
	case StageNLU:
		out.NLU = d
	case StageRetrieval:
		out.Retrieval = d
	case StageRerank:
		out.Rerank = d
	case StageGeneration:
		out.Generation = d
	case StagePostprocess:
		out.Postprocess = d
	}
	return out
}

// DefaultBudgets is the standard timeout preset.
var DefaultBudgets = Budgets{
	Preprocess:  500 * time.Millisecond,
	NLU:         1000 * time.Millisecond,
	Retrieval:   3000 * time.Millisecond,
	Rerank:      1500 * time.Millisecond,
	Generation:  8000 * time.Millisecond,
	Postprocess: 500 * time.Millisecond,
	Total:       15000 * time.Millisecond,
}

// AggressiveBudgets is the tight-latency preset.
var AggressiveBudgets = Budgets{
	Preprocess:  200 * time.Millisecond,
	NLU:         500 * time.Millisecond,
	Retrieval:   2000 * time.Millisecond,
	Rerank:      1000 * time.Millisecond,
	Generation:  5000 * time.Millisecond,
	Postprocess: 300 * time.Millisecond,
	Total:       10000 * time.Millisecond,
}
