// Package nlu declares the narrow interface the pipeline consumes from an
// external prompt analyzer. No analysis logic is implemented here — only
// the contract and a fake for tests, generalizing the teacher's
// graph/model/mock.go fake-adapter testing seam.
package nlu

import "context"

// Complexity is the analyzer's estimate of how much work a request needs.
type Complexity string

const (
	ComplexitySimple   Complexity = "simple"
	ComplexityModerate Complexity = "moderate"
	ComplexityComplex  Complexity = "complex"
	ComplexityExpert   Complexity = "expert"
)

// IntentCandidate is one scored intent guess.
type IntentCandidate struct {
	Intent     string
	Confidence float64
}

// AnalysisResult is consumed, never produced, by this codebase.
type AnalysisResult struct {
	Intents           []IntentCandidate
	ExtractedEntities map[string]any
	Complexity        Complexity
	RawMessage        string
	MissingSlots      []string
	AmbiguousTerms    []string
}

// AnalyzeRequest is the context passed to the external analyzer.
type AnalyzeRequest struct {
	Message     string
	History     []string
	Attachments []string
	SessionID   string
	UserID      string
	ChatID      string
	RunID       string
}

// Analyzer is the external prompt analyzer's contract.
type Analyzer interface {
	Analyze(ctx context.Context, req AnalyzeRequest) (AnalysisResult, error)
}
