package orchestrator

import (
	"strings"

	"github.com/marlowe-ai/convopipe/contract"
)

// classify maps an unclassified upstream error into the closed error-code
// taxonomy via substring heuristics. Checked in order: timeout, then
// rate-limit markers, then bare 5xx markers, then circuit-open markers.
func classify(err error) contract.ErrorCode {
	if err == nil {
		return contract.ErrUpstream5XX
	}
	msg := strings.ToLower(err.Error())

	switch {
	case strings.Contains(msg, "timeout"):
		return contract.ErrTimeoutGeneration
	case strings.Contains(msg, "429") || strings.Contains(msg, "rate limit"):
		return contract.ErrUpstream429
	case containsAny(msg, "500", "502", "503", "5xx"):
		return contract.ErrUpstream5XX
	case strings.Contains(msg, "circuit") && strings.Contains(msg, "open"):
		return contract.ErrCircuitOpen
	default:
		return contract.ErrUpstream5XX
	}
}

func containsAny(s string, substrs ...string) bool {
	for _, sub := range substrs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
