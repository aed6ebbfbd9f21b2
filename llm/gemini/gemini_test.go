package gemini

import (
	"testing"

	"github.com/marlowe-ai/convopipe/llm"
)

func TestExtractSystemPrompt(t *testing.T) {
	t.Run("separates system message from conversation", func(t *testing.T) {
		messages := []llm.Message{
			{Role: llm.RoleSystem, Content: "be concise"},
			{Role: llm.RoleUser, Content: "hello"},
			{Role: llm.RoleAssistant, Content: "hi"},
		}
		sys, conv := extractSystemPrompt(messages)
		if sys != "be concise" {
			t.Errorf("expected system prompt extracted, got %q", sys)
		}
		if len(conv) != 2 {
			t.Errorf("expected 2 conversation messages, got %d", len(conv))
		}
	})

	t.Run("no system message returns empty prompt", func(t *testing.T) {
		messages := []llm.Message{{Role: llm.RoleUser, Content: "hi"}}
		sys, conv := extractSystemPrompt(messages)
		if sys != "" {
			t.Errorf("expected empty system prompt, got %q", sys)
		}
		if len(conv) != 1 {
			t.Errorf("expected 1 conversation message, got %d", len(conv))
		}
	})
}

func TestConvertMessages(t *testing.T) {
	t.Run("skips empty content", func(t *testing.T) {
		messages := []llm.Message{
			{Role: llm.RoleUser, Content: ""},
			{Role: llm.RoleUser, Content: "hi"},
		}
		parts := convertMessages(messages)
		if len(parts) != 1 {
			t.Fatalf("expected 1 part, got %d", len(parts))
		}
	})
}
