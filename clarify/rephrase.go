package clarify

import (
	"context"

	"github.com/marlowe-ai/convopipe/llm"
)

// LLMRephrase builds a RephraseFunc that asks gateway to rephrase a
// templated clarifying question, bounded per the documented limits: low
// temperature, a short token budget, and a 2s deadline (enforced by
// Policy.Decide, not here). LLM failure is surfaced as an error so
// Policy.Decide can fall back to the template.
func LLMRephrase(gateway llm.Gateway, model string) RephraseFunc {
	return func(ctx context.Context, template string) (string, error) {
		messages := []llm.Message{
			{Role: llm.RoleSystem, Content: "Reformula la siguiente pregunta de forma breve y natural, sin cambiar su significado."},
			{Role: llm.RoleUser, Content: template},
		}
		out, err := gateway.Chat(ctx, messages, llm.Params{
			Model:       model,
			Temperature: 0.3,
			MaxTokens:   100,
		})
		if err != nil {
			return "", err
		}
		return out.Content, nil
	}
}
