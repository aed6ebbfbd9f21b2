// Package retrieval declares the narrow interfaces the pipeline consumes
// from an external retrieval backend and an optional reranker.
package retrieval

import (
	"context"

	"github.com/marlowe-ai/convopipe/contract"
)

// RetrievalContext carries the dialogue/session context a backend may use
// to scope its search.
type RetrievalContext struct {
	SessionID string
	UserID    string
	ChatID    string
	History   []string
}

// Backend is the external retrieval backend's contract. Zero results are
// allowed; callers treat a returned error as an empty result set.
type Backend interface {
	Retrieve(ctx context.Context, query string, rctx RetrievalContext) ([]contract.Source, error)
}

// Reranker optionally reorders/rescopes retrieval results. A reranker
// failure is non-fatal; the orchestrator passes sources through unranked.
type Reranker interface {
	Rerank(ctx context.Context, query string, sources []contract.Source) ([]contract.Source, error)
}
