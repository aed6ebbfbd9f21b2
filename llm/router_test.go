package llm

import (
	"context"
	"errors"
	"testing"
)

func TestRouterChat(t *testing.T) {
	t.Run("primary success skips fallback", func(t *testing.T) {
		primary := &Mock{Responses: []ChatOut{{Content: "primary"}}}
		fallback := &Mock{Responses: []ChatOut{{Content: "fallback"}}}
		r := NewRouter(primary, fallback)

		out, err := r.Chat(context.Background(), nil, Params{EnableFallback: true})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if out.Content != "primary" {
			t.Errorf("expected primary response, got %q", out.Content)
		}
		if out.UsedFallback {
			t.Error("expected UsedFallback = false when the primary served the call")
		}
		if fallback.CallCount() != 0 {
			t.Errorf("fallback should not have been called")
		}
	})

	t.Run("primary failure falls back when enabled", func(t *testing.T) {
		primary := &Mock{Err: errors.New("boom")}
		fallback := &Mock{Responses: []ChatOut{{Content: "fallback"}}}
		r := NewRouter(primary, fallback)

		out, err := r.Chat(context.Background(), nil, Params{EnableFallback: true})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if out.Content != "fallback" {
			t.Errorf("expected fallback response, got %q", out.Content)
		}
		if !out.UsedFallback {
			t.Error("expected UsedFallback = true when the fallback gateway served the call")
		}
	})

	t.Run("primary failure without fallback enabled returns error", func(t *testing.T) {
		primary := &Mock{Err: errors.New("boom")}
		fallback := &Mock{Responses: []ChatOut{{Content: "fallback"}}}
		r := NewRouter(primary, fallback)

		_, err := r.Chat(context.Background(), nil, Params{EnableFallback: false})
		if err == nil {
			t.Fatal("expected error, got nil")
		}
		if fallback.CallCount() != 0 {
			t.Errorf("fallback should not have been called")
		}
	})

	t.Run("primary failure with no fallback configured wraps ErrNoFallback", func(t *testing.T) {
		primary := &Mock{Err: errors.New("boom")}
		r := NewRouter(primary, nil)

		_, err := r.Chat(context.Background(), nil, Params{EnableFallback: true})
		if !errors.Is(err, ErrNoFallback) {
			t.Errorf("expected ErrNoFallback, got %v", err)
		}
	})
}

func TestRouterStreamChat(t *testing.T) {
	t.Run("falls back on primary stream error", func(t *testing.T) {
		primary := &Mock{Err: errors.New("boom")}
		fallback := &Mock{Stream: []StreamEvent{{Content: "hi"}, {Done: true}}}
		r := NewRouter(primary, fallback)

		ch, err := r.StreamChat(context.Background(), nil, Params{EnableFallback: true})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		var got []StreamEvent
		for ev := range ch {
			got = append(got, ev)
		}
		if len(got) != 2 || got[0].Content != "hi" || !got[1].Done {
			t.Errorf("unexpected stream events: %+v", got)
		}
	})
}
