// Package gemini provides an llm.Gateway adapter for Google's Gemini
// models, generalizing graph/model/google/google.go's client-seam and
// system-instruction handling.
package gemini

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/marlowe-ai/convopipe/contract"
	"github.com/marlowe-ai/convopipe/llm"
)

// Gateway implements llm.Gateway for Gemini models.
type Gateway struct {
	client client
}

type client interface {
	generateContent(ctx context.Context, messages []llm.Message, params llm.Params) (llm.ChatOut, error)
}

// New creates a Gateway backed by the official Gemini SDK.
func New(apiKey string) *Gateway {
	return &Gateway{client: &defaultClient{apiKey: apiKey}}
}

func (g *Gateway) Chat(ctx context.Context, messages []llm.Message, params llm.Params) (llm.ChatOut, error) {
	if ctx.Err() != nil {
		return llm.ChatOut{}, ctx.Err()
	}
	if params.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, params.Timeout)
		defer cancel()
	}
	return g.client.generateContent(ctx, messages, params)
}

func (g *Gateway) StreamChat(ctx context.Context, messages []llm.Message, params llm.Params) (<-chan llm.StreamEvent, error) {
	out, err := g.Chat(ctx, messages, params)
	if err != nil {
		return nil, err
	}
	ch := make(chan llm.StreamEvent, 2)
	ch <- llm.StreamEvent{Content: out.Content}
	ch <- llm.StreamEvent{Done: true}
	close(ch)
	return ch, nil
}

// defaultClient wraps the official Gemini SDK client.
type defaultClient struct {
	apiKey string
}

func (c *defaultClient) generateContent(ctx context.Context, messages []llm.Message, params llm.Params) (llm.ChatOut, error) {
	if c.apiKey == "" {
		return llm.ChatOut{}, errors.New("gemini: API key is required")
	}
	sdkClient, err := genai.NewClient(ctx, option.WithAPIKey(c.apiKey))
	if err != nil {
		return llm.ChatOut{}, fmt.Errorf("gemini: creating client: %w", err)
	}
	defer sdkClient.Close()

	genModel := sdkClient.GenerativeModel(params.Model)
	temp := float32(params.Temperature)
	genModel.Temperature = &temp
	if params.MaxTokens > 0 {
		maxTokens := int32(params.MaxTokens)
		genModel.MaxOutputTokens = &maxTokens
	}

	systemPrompt, conversation := extractSystemPrompt(messages)
	if systemPrompt != "" {
		genModel.SystemInstruction = genai.NewUserContent(genai.Text(systemPrompt))
	}

	resp, err := genModel.GenerateContent(ctx, convertMessages(conversation)...)
	if err != nil {
		return llm.ChatOut{}, fmt.Errorf("gemini: %w", err)
	}
	return convertResponse(resp, params.Model), nil
}

func extractSystemPrompt(messages []llm.Message) (string, []llm.Message) {
	var systemPrompt string
	conversation := make([]llm.Message, 0, len(messages))
	for _, msg := range messages {
		if msg.Role == llm.RoleSystem {
			if systemPrompt != "" {
				systemPrompt += "\n\n"
			}
			systemPrompt += msg.Content
			continue
		}
		conversation = append(conversation, msg)
	}
	return systemPrompt, conversation
}

func convertMessages(messages []llm.Message) []genai.Part {
	parts := make([]genai.Part, 0, len(messages))
	for _, msg := range messages {
		if msg.Content != "" {
			parts = append(parts, genai.Text(msg.Content))
		}
	}
	return parts
}

func convertResponse(resp *genai.GenerateContentResponse, model string) llm.ChatOut {
	out := llm.ChatOut{Provider: contract.ProviderGemini, Model: model}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return out
	}
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			if out.Content != "" {
				out.Content += "\n"
			}
			out.Content += string(text)
		}
	}
	if resp.UsageMetadata != nil {
		out.Tokens = int(resp.UsageMetadata.CandidatesTokenCount)
	}
	return out
}
