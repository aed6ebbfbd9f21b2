package orchestrator

import (
	"context"
	"time"

	"testing"

	"github.com/marlowe-ai/convopipe/config"
	"github.com/marlowe-ai/convopipe/contract"
	"github.com/marlowe-ai/convopipe/dialogue"
	"github.com/marlowe-ai/convopipe/llm"
	"github.com/marlowe-ai/convopipe/nlu"
	"github.com/marlowe-ai/convopipe/watchdog"
)

func drain(t *testing.T, ch <-chan contract.StreamChunk, deadline time.Duration) []contract.StreamChunk {
	t.Helper()
	var chunks []contract.StreamChunk
	timer := time.NewTimer(deadline)
	defer timer.Stop()
	for {
		select {
		case chunk, ok := <-ch:
			if !ok {
				return chunks
			}
			chunks = append(chunks, chunk)
		case <-timer.C:
			t.Fatal("timed out waiting for stream to close")
		}
	}
}

// Happy path: status chunks precede content chunks, sequence ids are
// monotonic, and the final chunk is marked done with no error code.
func TestProcessStreamHappyPath(t *testing.T) {
	cfg := config.Default()
	gateway := &llm.Mock{Stream: []llm.StreamEvent{{Content: "Hola"}, {Content: " mundo"}, {Done: true}}}
	analyzer := &nlu.Mock{Result: nlu.AnalysisResult{
		Intents: []nlu.IntentCandidate{{Intent: "chat", Confidence: 0.9}},
	}}
	o, _, _ := newTestOrchestrator(t, cfg, gateway, analyzer, nil, nil)

	chunks := drain(t, o.ProcessStream(context.Background(), newRequest("st1", "hola")), 2*time.Second)

	if len(chunks) < 4 {
		t.Fatalf("expected at least preprocessing/analyzing/generating status chunks plus content, got %+v", chunks)
	}
	if chunks[0].Status != "preprocessing" || chunks[1].Status != "analyzing" {
		t.Errorf("expected preprocessing then analyzing status chunks first, got %+v", chunks[:2])
	}
	for i := 1; i < len(chunks); i++ {
		if chunks[i].SequenceID != chunks[i-1].SequenceID+1 {
			t.Fatalf("expected monotonic sequence ids, got %+v", chunks)
		}
	}
	last := chunks[len(chunks)-1]
	if !last.Done || last.ErrorCode != "" {
		t.Errorf("expected a clean terminal chunk, got %+v", last)
	}
	var content string
	for _, c := range chunks {
		content += c.Content
	}
	if content != "Hola mundo" {
		t.Errorf("expected concatenated content %q, got %q", "Hola mundo", content)
	}
}

// Garbage input closes the stream with GARBAGE_INPUT before NLU ever runs.
func TestProcessStreamGarbageInput(t *testing.T) {
	cfg := config.Default()
	analyzer := &nlu.Mock{}
	o, _, _ := newTestOrchestrator(t, cfg, &llm.Mock{}, analyzer, nil, nil)

	chunks := drain(t, o.ProcessStream(context.Background(), newRequest("st2", "@@@@@@@@@@@@@@")), 2*time.Second)

	last := chunks[len(chunks)-1]
	if !last.Done || last.ErrorCode != contract.ErrGarbageInput {
		t.Fatalf("expected terminal GARBAGE_INPUT chunk, got %+v", last)
	}
	if len(analyzer.Calls) != 0 {
		t.Error("expected NLU to never be called on garbage input")
	}
}

// Low confidence asks a clarifying question instead of streaming generated
// content, and closes the stream after the question.
func TestProcessStreamClarification(t *testing.T) {
	cfg := config.Default()
	analyzer := &nlu.Mock{Result: nlu.AnalysisResult{
		Intents: []nlu.IntentCandidate{{Intent: "research", Confidence: 0.3}},
	}}
	o, _, _ := newTestOrchestrator(t, cfg, &llm.Mock{}, analyzer, nil, nil)

	chunks := drain(t, o.ProcessStream(context.Background(), newRequest("st3", "algo confuso")), 2*time.Second)

	if len(chunks) < 2 {
		t.Fatalf("expected at least a question chunk and a terminal chunk, got %+v", chunks)
	}
	question := chunks[len(chunks)-2]
	if question.Content == "" || question.Done {
		t.Errorf("expected a non-empty, non-terminal question chunk, got %+v", question)
	}
	last := chunks[len(chunks)-1]
	if !last.Done || last.ErrorCode != "" {
		t.Errorf("expected a clean terminal chunk after the question, got %+v", last)
	}
}

// Once the clarification cap is exhausted across real streamed turns, the
// FSM's own cap check redirects to fallback and the stream reports
// LOW_CONFIDENCE instead of asking again.
func TestProcessStreamClarificationCapFallsBack(t *testing.T) {
	cfg := config.New(config.WithMaxClarificationAttempts(2))
	analyzer := &nlu.Mock{Result: nlu.AnalysisResult{
		Intents: []nlu.IntentCandidate{{Intent: "research", Confidence: 0.3}},
	}}
	o, registry, _ := newTestOrchestrator(t, cfg, &llm.Mock{}, analyzer, nil, nil)

	var last contract.StreamChunk
	for i := 0; i < cfg.MaxClarificationAttempts+1; i++ {
		chunks := drain(t, o.ProcessStream(context.Background(), newRequest("st4", "algo confuso")), 2*time.Second)
		last = chunks[len(chunks)-1]
	}

	if !last.Done || last.ErrorCode != contract.ErrLowConfidence {
		t.Fatalf("expected the turn past the cap to close with LOW_CONFIDENCE, got %+v", last)
	}
	fsm := registry.GetOrCreate("st4")
	if fsm.State() != dialogue.StateFallback {
		t.Errorf("expected the FSM to have settled in fallback, got %s", fsm.State())
	}
}

// A generation stream that stops sending chunks mid-stream (rather than
// failing the initial call) still surfaces as a DEGRADED_TIMEOUT chunk once
// the generation budget expires.
func TestProcessStreamGenerationStalls(t *testing.T) {
	budgets := watchdog.AggressiveBudgets.WithStage(watchdog.StageGeneration, 20*time.Millisecond)
	cfg := config.New(config.WithCustomBudgets(budgets))
	gateway := &llm.Mock{StreamHang: true}
	analyzer := &nlu.Mock{Result: nlu.AnalysisResult{
		Intents: []nlu.IntentCandidate{{Intent: "chat", Confidence: 0.95}},
	}}
	o, _, _ := newTestOrchestrator(t, cfg, gateway, analyzer, nil, nil)

	chunks := drain(t, o.ProcessStream(context.Background(), newRequest("st5", "cuéntame algo largo")), 2*time.Second)

	last := chunks[len(chunks)-1]
	if !last.Done || last.ErrorCode != contract.ErrTimeoutGeneration {
		t.Fatalf("expected terminal TIMEOUT_GENERATION chunk, got %+v", last)
	}
}

// A provider that can't even open the stream before the generation budget
// expires is still classified as a timeout rather than a generic upstream
// failure.
func TestProcessStreamGenerationCallNeverOpens(t *testing.T) {
	budgets := watchdog.AggressiveBudgets.WithStage(watchdog.StageGeneration, 20*time.Millisecond)
	cfg := config.New(config.WithCustomBudgets(budgets))
	gateway := &llm.Mock{Block: true}
	analyzer := &nlu.Mock{Result: nlu.AnalysisResult{
		Intents: []nlu.IntentCandidate{{Intent: "chat", Confidence: 0.95}},
	}}
	o, _, _ := newTestOrchestrator(t, cfg, gateway, analyzer, nil, nil)

	chunks := drain(t, o.ProcessStream(context.Background(), newRequest("st6", "cuéntame algo largo")), 2*time.Second)

	last := chunks[len(chunks)-1]
	if !last.Done || last.ErrorCode != contract.ErrTimeoutGeneration {
		t.Fatalf("expected terminal TIMEOUT_GENERATION chunk, got %+v", last)
	}
}

// A caller that stops reading the channel does not wedge runStream: it
// observes ctx cancellation on its next send attempt and returns.
func TestProcessStreamCallerCancels(t *testing.T) {
	cfg := config.Default()
	gateway := &llm.Mock{StreamHang: true}
	analyzer := &nlu.Mock{Result: nlu.AnalysisResult{
		Intents: []nlu.IntentCandidate{{Intent: "chat", Confidence: 0.95}},
	}}
	o, _, _ := newTestOrchestrator(t, cfg, gateway, analyzer, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	ch := o.ProcessStream(ctx, newRequest("st7", "hola"))

	// Read the status chunks then stop reading and cancel.
	<-ch
	<-ch
	cancel()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("expected runStream to exit after ctx cancellation")
		}
	}
}
