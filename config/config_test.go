package config

import (
	"testing"
	"time"

	"github.com/marlowe-ai/convopipe/contract"
	"github.com/marlowe-ai/convopipe/watchdog"
)

func TestDefault(t *testing.T) {
	t.Run("matches documented defaults", func(t *testing.T) {
		c := Default()
		if c.AggressiveTimeouts {
			t.Error("expected AggressiveTimeouts = false")
		}
		if !c.EnableClarification || !c.EnableLLMFallback {
			t.Error("expected clarification and LLM fallback enabled by default")
		}
		if c.MaxClarificationAttempts != 3 {
			t.Errorf("expected max attempts = 3, got %d", c.MaxClarificationAttempts)
		}
		if c.ConfidenceThresholdOK != 0.70 || c.ConfidenceThresholdClarify != 0.40 {
			t.Errorf("unexpected default thresholds: %+v", c)
		}
		if c.SessionInactivityThreshold != time.Hour {
			t.Errorf("expected 1h inactivity threshold, got %v", c.SessionInactivityThreshold)
		}
		if c.SessionCleanupInterval != 5*time.Minute {
			t.Errorf("expected 5m cleanup interval, got %v", c.SessionCleanupInterval)
		}
		if c.StateTimeout != 30*time.Second {
			t.Errorf("expected 30s state timeout, got %v", c.StateTimeout)
		}
		if len(c.FallbackMessages) == 0 {
			t.Error("expected default fallback messages populated")
		}
	})
}

func TestWithFallbackMessages(t *testing.T) {
	custom := map[contract.ErrorCode]string{contract.ErrGarbageInput: "custom message"}
	c := New(WithFallbackMessages(custom))
	if c.FallbackMessages[contract.ErrGarbageInput] != "custom message" {
		t.Errorf("expected overridden fallback message, got %+v", c.FallbackMessages)
	}
}

func TestNewWithOptions(t *testing.T) {
	t.Run("applies options over defaults", func(t *testing.T) {
		c := New(
			WithAggressiveTimeouts(true),
			WithClarification(false),
			WithMaxClarificationAttempts(5),
			WithConfidenceThresholds(0.8, 0.5),
			WithModels("grok-4", "gemini-2.5-flash"),
			WithSessionLifecycle(time.Minute, 10*time.Second),
			WithStateTimeout(time.Second),
		)

		if !c.AggressiveTimeouts {
			t.Error("expected aggressive timeouts enabled")
		}
		if c.EnableClarification {
			t.Error("expected clarification disabled")
		}
		if c.MaxClarificationAttempts != 5 {
			t.Errorf("expected max attempts = 5, got %d", c.MaxClarificationAttempts)
		}
		if c.ConfidenceThresholdOK != 0.8 || c.ConfidenceThresholdClarify != 0.5 {
			t.Errorf("unexpected thresholds: %+v", c)
		}
		if c.DefaultModel != "grok-4" || c.FallbackModel != "gemini-2.5-flash" {
			t.Errorf("unexpected models: %+v", c)
		}
		if c.SessionInactivityThreshold != time.Minute || c.SessionCleanupInterval != 10*time.Second {
			t.Errorf("unexpected session lifecycle: %+v", c)
		}
		if c.StateTimeout != time.Second {
			t.Errorf("unexpected state timeout: %v", c.StateTimeout)
		}
	})

	t.Run("unset options leave defaults intact", func(t *testing.T) {
		c := New(WithMaxClarificationAttempts(1))
		if c.EnableLLMFallback != true {
			t.Error("expected untouched field to retain default")
		}
	})
}

func TestBudgets(t *testing.T) {
	t.Run("aggressive preset selects AggressiveBudgets", func(t *testing.T) {
		c := New(WithAggressiveTimeouts(true))
		if c.Budgets() != watchdog.AggressiveBudgets {
			t.Error("expected aggressive budgets")
		}
	})

	t.Run("default preset selects DefaultBudgets", func(t *testing.T) {
		c := Default()
		if c.Budgets() != watchdog.DefaultBudgets {
			t.Error("expected default budgets")
		}
	})
}
