// Package xai provides an llm.Gateway adapter for xAI's Grok models over
// its OpenAI-wire-compatible endpoint, generalizing
// graph/model/openai/openai.go's retry/backoff shape and re-pointing the
// official OpenAI SDK at a configurable base URL.
package xai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	openaisdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/marlowe-ai/convopipe/contract"
	"github.com/marlowe-ai/convopipe/llm"
)

const defaultBaseURL = "https://api.x.ai/v1"

// Gateway implements llm.Gateway for xAI's Grok models.
type Gateway struct {
	client     client
	maxRetries int
	retryDelay time.Duration
}

type client interface {
	createChatCompletion(ctx context.Context, messages []llm.Message, params llm.Params) (llm.ChatOut, error)
}

// New creates a Gateway backed by the OpenAI SDK pointed at baseURL. An
// empty baseURL uses xAI's default endpoint.
func New(apiKey, baseURL string) *Gateway {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Gateway{
		client:     &defaultClient{apiKey: apiKey, baseURL: baseURL},
		maxRetries: 3,
		retryDelay: time.Second,
	}
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

	var lastErr error
	for attempt := 0; attempt <= g.maxRetries; attempt++ {
		out, err := g.client.createChatCompletion(ctx, messages, params)
		if err == nil {
			return out, nil
		}
		lastErr = err
		if !isTransientError(err) {
			return llm.ChatOut{}, err
		}
		if attempt >= g.maxRetries {
			break
		}
		select {
		case <-time.After(g.retryDelay * time.Duration(attempt+1)):
		case <-ctx.Done():
			return llm.ChatOut{}, ctx.Err()
		}
	}
	return llm.ChatOut{}, fmt.Errorf("xai: failed after %d retries: %w", g.maxRetries, lastErr)
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

func isTransientError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, pattern := range []string{"timeout", "network", "connection", "temporary", "rate limit", "503", "502", "500"} {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}

// defaultClient wraps the official OpenAI SDK client pointed at a custom
// base URL.
type defaultClient struct {
	apiKey  string
	baseURL string
}

func (c *defaultClient) createChatCompletion(ctx context.Context, messages []llm.Message, params llm.Params) (llm.ChatOut, error) {
	if c.apiKey == "" {
		return llm.ChatOut{}, errors.New("xai: API key is required")
	}
	sdkClient := openaisdk.NewClient(option.WithAPIKey(c.apiKey), option.WithBaseURL(c.baseURL))

	reqParams := openaisdk.ChatCompletionNewParams{
		Model:       openaisdk.ChatModel(params.Model),
		Messages:    convertMessages(messages),
		Temperature: openaisdk.Float(params.Temperature),
	}
	if params.MaxTokens > 0 {
		reqParams.MaxTokens = openaisdk.Int(int64(params.MaxTokens))
	}

	resp, err := sdkClient.Chat.Completions.New(ctx, reqParams)
	if err != nil {
		return llm.ChatOut{}, fmt.Errorf("xai: %w", err)
	}
	if len(resp.Choices) == 0 {
		return llm.ChatOut{}, errors.New("xai: empty response")
	}
	return llm.ChatOut{
		Content:  resp.Choices[0].Message.Content,
		Tokens:   int(resp.Usage.CompletionTokens),
		Provider: contract.ProviderXAI,
		Model:    resp.Model,
	}, nil
}

func convertMessages(messages []llm.Message) []openaisdk.ChatCompletionMessageParamUnion {
	result := make([]openaisdk.ChatCompletionMessageParamUnion, len(messages))
	for i, msg := range messages {
		switch msg.Role {
		case llm.RoleSystem:
			result[i] = openaisdk.SystemMessage(msg.Content)
		case llm.RoleAssistant:
			result[i] = openaisdk.AssistantMessage(msg.Content)
		default:
			result[i] = openaisdk.UserMessage(msg.Content)
		}
	}
	return result
}
