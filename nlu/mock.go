package nlu

import "context"

// Mock is a fake Analyzer for tests, generalizing graph/model/mock.go's
// scripted-response pattern into this package's interface.
type Mock struct {
	Result AnalysisResult
	Err    error
	Calls  []AnalyzeRequest
}

func (m *Mock) Analyze(ctx context.Context, req AnalyzeRequest) (AnalysisResult, error) {
	m.Calls = append(m.Calls, req)
	if m.Err != nil {
		return AnalysisResult{}, m.Err
	}
	return m.Result, nil
}
