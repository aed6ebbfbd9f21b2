// Package config holds the process-wide configuration for the
// conversational pipeline, generalizing graph/options.go's
// Options-struct-plus-functional-Option-chain pattern from per-engine
// execution knobs to per-process pipeline knobs.
package config

import (
	"time"

	"github.com/marlowe-ai/convopipe/contract"
	"github.com/marlowe-ai/convopipe/watchdog"
)

// Config holds every pipeline-wide knob. Zero values are not valid on
// their own; use Default() and apply Options on top of it.
type Config struct {
	AggressiveTimeouts  bool
	EnableClarification bool
	EnableLLMFallback   bool

	MaxClarificationAttempts int

	ConfidenceThresholdOK      float64
	ConfidenceThresholdClarify float64

	DefaultModel  string
	FallbackModel string

	SessionInactivityThreshold time.Duration
	SessionCleanupInterval     time.Duration
	StateTimeout               time.Duration

	FallbackMessages map[contract.ErrorCode]string

	customBudgets *watchdog.Budgets
}

// Default returns the documented default configuration.
func Default() Config {
	return Config{
		AggressiveTimeouts:         false,
		EnableClarification:        true,
		EnableLLMFallback:          true,
		MaxClarificationAttempts:   3,
		ConfidenceThresholdOK:      0.70,
		ConfidenceThresholdClarify: 0.40,
		SessionInactivityThreshold: 3_600_000 * time.Millisecond,
		SessionCleanupInterval:     300_000 * time.Millisecond,
		StateTimeout:               30_000 * time.Millisecond,
		FallbackMessages:           contract.DefaultFallbackMessages,
	}
}

// Option mutates a Config during New.
type Option func(*Config)

// New builds a Config starting from Default and applying opts in order.
func New(opts ...Option) Config {
	cfg := Default()
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// WithAggressiveTimeouts selects the aggressive watchdog preset.
func WithAggressiveTimeouts(enabled bool) Option {
	return func(c *Config) { c.AggressiveTimeouts = enabled }
}

// WithClarification toggles whether C3 may ask clarifying questions at all.
func WithClarification(enabled bool) Option {
	return func(c *Config) { c.EnableClarification = enabled }
}

// WithLLMFallback sets EnableLLMFallback, which the orchestrator passes to
// the gateway as Params.EnableFallback so an llm.Router may fail over to its
// fallback provider during generation. It does not switch on C3's LLM
// rephrasing: clarify.Policy.Rephrase is not set from Config.
func WithLLMFallback(enabled bool) Option {
	return func(c *Config) { c.EnableLLMFallback = enabled }
}

// WithMaxClarificationAttempts sets the per-session clarification cap.
func WithMaxClarificationAttempts(n int) Option {
	return func(c *Config) { c.MaxClarificationAttempts = n }
}

// WithConfidenceThresholds overrides the OK and CLARIFY confidence bounds.
func WithConfidenceThresholds(ok, clarify float64) Option {
	return func(c *Config) {
		c.ConfidenceThresholdOK = ok
		c.ConfidenceThresholdClarify = clarify
	}
}

// WithModels sets the default and fallback generation models.
func WithModels(defaultModel, fallbackModel string) Option {
	return func(c *Config) {
		c.DefaultModel = defaultModel
		c.FallbackModel = fallbackModel
	}
}

// WithSessionLifecycle overrides the session inactivity threshold and
// cleanup sweep interval.
func WithSessionLifecycle(inactivityThreshold, cleanupInterval time.Duration) Option {
	return func(c *Config) {
		c.SessionInactivityThreshold = inactivityThreshold
		c.SessionCleanupInterval = cleanupInterval
	}
}

// WithStateTimeout sets Config.StateTimeout. The orchestrator does not pass
// it to session FSMs: each FSM keeps the dialogue package's 30s default
// unless FSM.SetStateTimeout is called on it.
func WithStateTimeout(d time.Duration) Option {
	return func(c *Config) { c.StateTimeout = d }
}

// WithFallbackMessages overrides the per-error-code user-visible strings.
func WithFallbackMessages(messages map[contract.ErrorCode]string) Option {
	return func(c *Config) { c.FallbackMessages = messages }
}

// WithCustomBudgets overrides the preset entirely with caller-supplied
// per-stage and total deadlines, taking precedence over AggressiveTimeouts.
// Intended for deployments tuning a single stage's budget without adopting
// the whole aggressive preset, generalizing the same NodePolicy-over-default
// precedence watchdog.Budgets.WithStage already applies to one stage at a
// time.
func WithCustomBudgets(b watchdog.Budgets) Option {
	return func(c *Config) { c.customBudgets = &b }
}

// Budgets returns the custom budgets if set, else the preset matching
// AggressiveTimeouts.
func (c Config) Budgets() watchdog.Budgets {
	if c.customBudgets != nil {
		return *c.customBudgets
	}
	if c.AggressiveTimeouts {
		return watchdog.AggressiveBudgets
	}
	return watchdog.DefaultBudgets
}
