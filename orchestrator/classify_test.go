package orchestrator

import (
	"errors"
	"testing"

	"github.com/marlowe-ai/convopipe/contract"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want contract.ErrorCode
	}{
		{"nil error", nil, contract.ErrUpstream5XX},
		{"timeout beats everything", errors.New("context deadline exceeded: timeout"), contract.ErrTimeoutGeneration},
		{"429 status", errors.New("provider returned 429"), contract.ErrUpstream429},
		{"rate limit phrase", errors.New("Rate Limit exceeded, slow down"), contract.ErrUpstream429},
		{"5xx beats circuit open", errors.New("503 circuit open"), contract.ErrUpstream5XX},
		{"bare 502", errors.New("upstream 502 bad gateway"), contract.ErrUpstream5XX},
		{"circuit open alone", errors.New("circuit breaker is open"), contract.ErrCircuitOpen},
		{"unrecognized error", errors.New("connection reset by peer"), contract.ErrUpstream5XX},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classify(tt.err); got != tt.want {
				t.Errorf("classify(%v) = %s, want %s", tt.err, got, tt.want)
			}
		})
	}
}
