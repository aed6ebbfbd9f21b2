// Package clarify decides, for one analyzed request, whether the pipeline
// should ask the user a clarifying question before generating an answer,
// and if so produces the question text.
package clarify

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"math/rand"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/marlowe-ai/convopipe/llm"
	"github.com/marlowe-ai/convopipe/nlu"
)

// Thresholds are the confidence boundaries the decision algorithm compares
// top_intent.confidence against.
type Thresholds struct {
	High    float64
	OK      float64
	Clarify float64
	Reject  float64
}

// DefaultThresholds matches the documented confidence ladder.
var DefaultThresholds = Thresholds{High: 0.85, OK: 0.70, Clarify: 0.40, Reject: 0.20}

// Kind names the template family a Decision was drawn from.
type Kind string

const (
	KindContextUnclear  Kind = "context_unclear"
	KindIntentAmbiguous Kind = "intent_ambiguous"
	KindEntityAmbiguous Kind = "entity_ambiguous"
	KindEntityMissing   Kind = "entity_missing"
)

// Decision is the policy's verdict for one turn.
type Decision struct {
	ShouldClarify bool
	Kind          Kind
	Question      string
	HighPriority  bool

	// CapExceeded is set instead of ShouldClarify when the confidence ladder
	// would have asked a clarifying question but the session has already
	// exhausted its attempts. The orchestrator must give up and fall back
	// rather than proceed as if confidence were fine.
	CapExceeded bool
}

// RephraseFunc optionally rephrases a templated question through an LLM.
// Policy.Decide falls back to the template verbatim whenever rephrasing is
// disabled, errors, times out, or produces output outside the 5..200
// character window.
type RephraseFunc func(ctx context.Context, template string) (string, error)

// Policy implements the confidence→clarification decision algorithm.
type Policy struct {
	Thresholds Thresholds
	Templates  map[Kind][]string
	Rephrase   RephraseFunc // nil disables LLM rephrasing

	intentLabels map[string]string
	slotLabels   map[string]string
}

// New returns a Policy with the default thresholds, the built-in
// intent/slot label maps, and no rephrasing.
func New() *Policy {
	return &Policy{
		Thresholds:   DefaultThresholds,
		Templates:    defaultTemplates,
		intentLabels: defaultIntentLabels,
		slotLabels:   defaultSlotLabels,
	}
}

// Decide runs the confidence ladder against result and returns whether to
// clarify and, if so, the question to show the user. requestID seeds
// deterministic template selection. attemptsRemaining is false once the
// session's clarification cap has been reached: Decide still runs the
// ladder so a confidence high enough to answer outright is unaffected, but
// any branch that would otherwise ask a question instead returns
// CapExceeded so the orchestrator gives up and falls back rather than
// asking a question the session is no longer allowed to ask.
func (p *Policy) Decide(ctx context.Context, result nlu.AnalysisResult, requestID string, attemptsRemaining bool) Decision {
	if len(result.Intents) == 0 {
		if !attemptsRemaining {
			return Decision{CapExceeded: true}
		}
		return p.build(ctx, requestID, KindContextUnclear, templateArgs{})
	}

	top := result.Intents[0]
	c := top.Confidence

	switch {
	case c >= p.Thresholds.High:
		return Decision{ShouldClarify: false}

	case c >= p.Thresholds.OK:
		if len(result.MissingSlots) > 0 {
			if !attemptsRemaining {
				return Decision{CapExceeded: true}
			}
			return p.build(ctx, requestID, KindEntityMissing, templateArgs{Slot: result.MissingSlots[0]})
		}
		return Decision{ShouldClarify: false}

	case c >= p.Thresholds.Clarify:
		if !attemptsRemaining {
			return Decision{CapExceeded: true}
		}
		if len(result.Intents) >= 2 && top.Confidence-result.Intents[1].Confidence < 0.15 {
			return p.build(ctx, requestID, KindIntentAmbiguous, templateArgs{
				IntentA: top.Intent,
				IntentB: result.Intents[1].Intent,
			})
		}
		if len(result.AmbiguousTerms) > 0 {
			return p.build(ctx, requestID, KindEntityAmbiguous, templateArgs{Term: result.AmbiguousTerms[0]})
		}
		if len(result.MissingSlots) > 0 {
			return p.build(ctx, requestID, KindEntityMissing, templateArgs{Slot: result.MissingSlots[0]})
		}
		return p.build(ctx, requestID, KindContextUnclear, templateArgs{})

	default:
		if !attemptsRemaining {
			return Decision{CapExceeded: true}
		}
		d := p.build(ctx, requestID, KindContextUnclear, templateArgs{})
		d.HighPriority = true
		return d
	}
}

// seededRand derives a deterministic *rand.Rand from requestID, matching
// the teacher's run-ID-seeded determinism pattern.
func seededRand(requestID string) *rand.Rand {
	sum := sha256.Sum256([]byte(requestID))
	seed := int64(binary.BigEndian.Uint64(sum[:8]))
	return rand.New(rand.NewSource(seed))
}

type templateArgs struct {
	IntentA string
	IntentB string
	Slot    string
	Term    string
}

func (p *Policy) build(ctx context.Context, requestID string, kind Kind, args templateArgs) Decision {
	templates := p.Templates[kind]
	if len(templates) == 0 {
		templates = defaultTemplates[KindContextUnclear]
	}
	rng := seededRand(requestID)
	template := templates[rng.Intn(len(templates))]
	question := p.fill(template, args)

	if p.Rephrase != nil {
		rephraseCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		rephrased, err := p.Rephrase(rephraseCtx, question)
		cancel()
		if n := utf8.RuneCountInString(rephrased); err == nil && n > 5 && n < 200 {
			question = rephrased
		}
	}

	return Decision{ShouldClarify: true, Kind: kind, Question: question}
}

func (p *Policy) fill(template string, args templateArgs) string {
	out := strings.ReplaceAll(template, "{intent_a}", p.intentLabel(args.IntentA))
	out = strings.ReplaceAll(out, "{intent_b}", p.intentLabel(args.IntentB))
	out = strings.ReplaceAll(out, "{slot}", p.slotLabel(args.Slot))
	out = strings.ReplaceAll(out, "{term}", args.Term)
	return out
}

func (p *Policy) intentLabel(intent string) string {
	if label, ok := p.intentLabels[intent]; ok {
		return label
	}
	return intent
}

func (p *Policy) slotLabel(slot string) string {
	if label, ok := p.slotLabels[slot]; ok {
		return label
	}
	return slot
}
