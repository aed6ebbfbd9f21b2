package retrieval

import (
	"context"

	"github.com/marlowe-ai/convopipe/contract"
)

// MockBackend is a fake Backend for tests.
type MockBackend struct {
	Sources []contract.Source
	Err     error
}

func (m *MockBackend) Retrieve(ctx context.Context, query string, rctx RetrievalContext) ([]contract.Source, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Sources, nil
}

// MockReranker is a fake Reranker for tests; by default it reverses input
// order so tests can distinguish reranked from pass-through output.
type MockReranker struct {
	Err      error
	RerankFn func([]contract.Source) []contract.Source
}

func (m *MockReranker) Rerank(ctx context.Context, query string, sources []contract.Source) ([]contract.Source, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	if m.RerankFn != nil {
		return m.RerankFn(sources), nil
	}
	out := make([]contract.Source, len(sources))
	for i, s := range sources {
		out[len(sources)-1-i] = s
	}
	return out, nil
}
