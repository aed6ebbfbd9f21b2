package clarify

import (
	"context"
	"errors"
	"testing"

	"github.com/marlowe-ai/convopipe/nlu"
)

func TestPolicyDecide(t *testing.T) {
	p := New()
	ctx := context.Background()

	t.Run("no intents detected asks context_unclear", func(t *testing.T) {
		d := p.Decide(ctx, nlu.AnalysisResult{}, "req-1", true)
		if !d.ShouldClarify || d.Kind != KindContextUnclear {
			t.Fatalf("expected context_unclear clarification, got %+v", d)
		}
	})

	t.Run("high confidence never clarifies", func(t *testing.T) {
		result := nlu.AnalysisResult{Intents: []nlu.IntentCandidate{{Intent: "research", Confidence: 0.9}}}
		d := p.Decide(ctx, result, "req-2", true)
		if d.ShouldClarify {
			t.Fatalf("expected no clarification, got %+v", d)
		}
	})

	t.Run("ok confidence with missing slot asks for first slot", func(t *testing.T) {
		result := nlu.AnalysisResult{
			Intents:      []nlu.IntentCandidate{{Intent: "research", Confidence: 0.75}},
			MissingSlots: []string{"topic", "date"},
		}
		d := p.Decide(ctx, result, "req-3", true)
		if !d.ShouldClarify || d.Kind != KindEntityMissing {
			t.Fatalf("expected entity_missing clarification, got %+v", d)
		}
	})

	t.Run("ok confidence with no missing slots does not clarify", func(t *testing.T) {
		result := nlu.AnalysisResult{Intents: []nlu.IntentCandidate{{Intent: "research", Confidence: 0.75}}}
		d := p.Decide(ctx, result, "req-4", true)
		if d.ShouldClarify {
			t.Fatalf("expected no clarification, got %+v", d)
		}
	})

	t.Run("clarify-band close top two intents asks intent_ambiguous", func(t *testing.T) {
		result := nlu.AnalysisResult{
			Intents: []nlu.IntentCandidate{
				{Intent: "research", Confidence: 0.55},
				{Intent: "summarize", Confidence: 0.48},
			},
		}
		d := p.Decide(ctx, result, "req-5", true)
		if !d.ShouldClarify || d.Kind != KindIntentAmbiguous {
			t.Fatalf("expected intent_ambiguous clarification, got %+v", d)
		}
	})

	t.Run("clarify-band with ambiguous terms asks entity_ambiguous", func(t *testing.T) {
		result := nlu.AnalysisResult{
			Intents:        []nlu.IntentCandidate{{Intent: "research", Confidence: 0.5}},
			AmbiguousTerms: []string{"bank"},
		}
		d := p.Decide(ctx, result, "req-6", true)
		if !d.ShouldClarify || d.Kind != KindEntityAmbiguous {
			t.Fatalf("expected entity_ambiguous clarification, got %+v", d)
		}
	})

	t.Run("clarify-band with missing slots and no ambiguity asks entity_missing", func(t *testing.T) {
		result := nlu.AnalysisResult{
			Intents:      []nlu.IntentCandidate{{Intent: "research", Confidence: 0.5}},
			MissingSlots: []string{"topic"},
		}
		d := p.Decide(ctx, result, "req-7", true)
		if !d.ShouldClarify || d.Kind != KindEntityMissing {
			t.Fatalf("expected entity_missing clarification, got %+v", d)
		}
	})

	t.Run("clarify-band with nothing else falls back to context_unclear", func(t *testing.T) {
		result := nlu.AnalysisResult{Intents: []nlu.IntentCandidate{{Intent: "research", Confidence: 0.5}}}
		d := p.Decide(ctx, result, "req-8", true)
		if !d.ShouldClarify || d.Kind != KindContextUnclear {
			t.Fatalf("expected context_unclear clarification, got %+v", d)
		}
	})

	t.Run("below clarify threshold returns high priority context_unclear", func(t *testing.T) {
		result := nlu.AnalysisResult{Intents: []nlu.IntentCandidate{{Intent: "research", Confidence: 0.1}}}
		d := p.Decide(ctx, result, "req-9", true)
		if !d.ShouldClarify || d.Kind != KindContextUnclear || !d.HighPriority {
			t.Fatalf("expected high-priority context_unclear, got %+v", d)
		}
	})

	t.Run("no attempts remaining never clarifies regardless of confidence", func(t *testing.T) {
		result := nlu.AnalysisResult{Intents: []nlu.IntentCandidate{{Intent: "research", Confidence: 0.1}}}
		d := p.Decide(ctx, result, "req-10", false)
		if d.ShouldClarify {
			t.Fatalf("expected no clarification once attempts are exhausted, got %+v", d)
		}
		if !d.CapExceeded {
			t.Fatalf("expected CapExceeded once attempts are exhausted, got %+v", d)
		}
	})

	t.Run("no attempts remaining still answers outright on high confidence", func(t *testing.T) {
		result := nlu.AnalysisResult{Intents: []nlu.IntentCandidate{{Intent: "research", Confidence: 0.9}}}
		d := p.Decide(ctx, result, "req-14", false)
		if d.ShouldClarify || d.CapExceeded {
			t.Fatalf("expected a plain answer verdict when confidence is high regardless of the cap, got %+v", d)
		}
	})

	t.Run("template selection is deterministic per request id", func(t *testing.T) {
		result := nlu.AnalysisResult{}
		d1 := p.Decide(ctx, result, "same-id", true)
		d2 := p.Decide(ctx, result, "same-id", true)
		if d1.Question != d2.Question {
			t.Errorf("expected same request id to pick the same template, got %q vs %q", d1.Question, d2.Question)
		}
	})
}

func TestPolicyRephrase(t *testing.T) {
	ctx := context.Background()

	t.Run("uses rephrased output when within length bounds", func(t *testing.T) {
		p := New()
		p.Rephrase = func(ctx context.Context, template string) (string, error) {
			return "¿Cuál es el tema exacto?", nil
		}
		d := p.Decide(ctx, nlu.AnalysisResult{}, "req-11", true)
		if d.Question != "¿Cuál es el tema exacto?" {
			t.Errorf("expected rephrased question, got %q", d.Question)
		}
	})

	t.Run("falls back to template on rephrase error", func(t *testing.T) {
		p := New()
		var usedTemplate string
		p.Rephrase = func(ctx context.Context, template string) (string, error) {
			usedTemplate = template
			return "", errors.New("upstream down")
		}
		d := p.Decide(ctx, nlu.AnalysisResult{}, "req-12", true)
		if d.Question != usedTemplate {
			t.Errorf("expected template fallback, got %q vs template %q", d.Question, usedTemplate)
		}
	})

	t.Run("falls back to template when rephrase output is out of bounds", func(t *testing.T) {
		p := New()
		p.Rephrase = func(ctx context.Context, template string) (string, error) {
			return "ok", nil // too short (<=5 chars)
		}
		d := p.Decide(ctx, nlu.AnalysisResult{}, "req-13", true)
		if d.Question == "ok" {
			t.Errorf("expected template fallback for out-of-bounds rephrase, got %q", d.Question)
		}
	})
}
