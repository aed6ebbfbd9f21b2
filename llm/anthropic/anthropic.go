// Package anthropic provides an llm.Gateway adapter for Anthropic's Claude
// API, generalizing graph/model/anthropic/anthropic.go's system-prompt
// extraction and client-seam pattern for non-tool-calling chat completion.
package anthropic

import (
	"context"
	"errors"
	"fmt"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/marlowe-ai/convopipe/contract"
	"github.com/marlowe-ai/convopipe/llm"
)

// Gateway implements llm.Gateway for Claude models.
type Gateway struct {
	client client
}

// client is the seam mocked in tests instead of the real SDK.
type client interface {
	createMessage(ctx context.Context, systemPrompt string, messages []llm.Message, params llm.Params) (llm.ChatOut, error)
}

// New creates a Gateway backed by the official Anthropic SDK.
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
	systemPrompt, conversation := extractSystemPrompt(messages)
	return g.client.createMessage(ctx, systemPrompt, conversation, params)
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

// defaultClient wraps the official Anthropic SDK client.
type defaultClient struct {
	apiKey string
}

func (c *defaultClient) createMessage(ctx context.Context, systemPrompt string, messages []llm.Message, params llm.Params) (llm.ChatOut, error) {
	if c.apiKey == "" {
		return llm.ChatOut{}, errors.New("anthropic: API key is required")
	}
	sdkClient := anthropicsdk.NewClient(option.WithAPIKey(c.apiKey))

	maxTokens := int64(params.MaxTokens)
	if maxTokens == 0 {
		maxTokens = 1024
	}
	reqParams := anthropicsdk.MessageNewParams{
		Model:       anthropicsdk.Model(params.Model),
		Messages:    convertMessages(messages),
		MaxTokens:   maxTokens,
		Temperature: anthropicsdk.Float(params.Temperature),
	}
	if systemPrompt != "" {
		reqParams.System = []anthropicsdk.TextBlockParam{{Text: systemPrompt}}
	}

	resp, err := sdkClient.Messages.New(ctx, reqParams)
	if err != nil {
		return llm.ChatOut{}, fmt.Errorf("anthropic: %w", err)
	}

	var text string
	for _, block := range resp.Content {
		if b, ok := block.AsAny().(anthropicsdk.TextBlock); ok {
			if text != "" {
				text += "\n"
			}
			text += b.Text
		}
	}
	return llm.ChatOut{
		Content:  text,
		Tokens:   int(resp.Usage.OutputTokens),
		Provider: contract.ProviderAnthropic,
		Model:    string(resp.Model),
	}, nil
}

func convertMessages(messages []llm.Message) []anthropicsdk.MessageParam {
	result := make([]anthropicsdk.MessageParam, len(messages))
	for i, msg := range messages {
		switch msg.Role {
		case llm.RoleAssistant:
			result[i] = anthropicsdk.NewAssistantMessage(anthropicsdk.NewTextBlock(msg.Content))
		default:
			result[i] = anthropicsdk.NewUserMessage(anthropicsdk.NewTextBlock(msg.Content))
		}
	}
	return result
}
