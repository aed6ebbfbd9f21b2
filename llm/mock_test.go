package llm

import (
	"context"
	"errors"
	"testing"
)

func TestMockChat(t *testing.T) {
	t.Run("returns responses in order then repeats last", func(t *testing.T) {
		m := &Mock{Responses: []ChatOut{{Content: "first"}, {Content: "second"}}}

		out, err := m.Chat(context.Background(), nil, Params{})
		if err != nil || out.Content != "first" {
			t.Fatalf("got %+v, %v", out, err)
		}
		out, err = m.Chat(context.Background(), nil, Params{})
		if err != nil || out.Content != "second" {
			t.Fatalf("got %+v, %v", out, err)
		}
		out, err = m.Chat(context.Background(), nil, Params{})
		if err != nil || out.Content != "second" {
			t.Fatalf("expected last response repeated, got %+v, %v", out, err)
		}
		if m.CallCount() != 3 {
			t.Errorf("expected 3 calls, got %d", m.CallCount())
		}
	})

	t.Run("returns configured error", func(t *testing.T) {
		m := &Mock{Err: errors.New("boom")}
		_, err := m.Chat(context.Background(), nil, Params{})
		if err == nil {
			t.Fatal("expected error")
		}
	})

	t.Run("records call history", func(t *testing.T) {
		m := &Mock{}
		messages := []Message{{Role: RoleUser, Content: "hi"}}
		params := Params{Model: "x"}
		m.Chat(context.Background(), messages, params)
		if len(m.Calls) != 1 {
			t.Fatalf("expected 1 recorded call, got %d", len(m.Calls))
		}
		if m.Calls[0].Params.Model != "x" {
			t.Errorf("expected recorded params, got %+v", m.Calls[0])
		}
	})
}

func TestMockStreamChat(t *testing.T) {
	t.Run("emits configured events then closes", func(t *testing.T) {
		m := &Mock{Stream: []StreamEvent{{Content: "a"}, {Content: "b"}, {Done: true}}}
		ch, err := m.StreamChat(context.Background(), nil, Params{})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		var events []StreamEvent
		for ev := range ch {
			events = append(events, ev)
		}
		if len(events) != 3 {
			t.Fatalf("expected 3 events, got %d", len(events))
		}
		if !events[2].Done {
			t.Errorf("expected last event to be done")
		}
	})

	t.Run("returns configured error without a channel", func(t *testing.T) {
		m := &Mock{Err: errors.New("boom")}
		ch, err := m.StreamChat(context.Background(), nil, Params{})
		if err == nil || ch != nil {
			t.Fatalf("expected error and nil channel, got %v, %v", ch, err)
		}
	})

	t.Run("StreamHang opens the channel but sends nothing until ctx is done", func(t *testing.T) {
		m := &Mock{StreamHang: true}
		ctx, cancel := context.WithCancel(context.Background())
		ch, err := m.StreamChat(ctx, nil, Params{})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		select {
		case ev, ok := <-ch:
			t.Fatalf("expected no event before cancellation, got %+v, ok=%v", ev, ok)
		default:
		}
		cancel()
		if _, ok := <-ch; ok {
			t.Error("expected channel to close once ctx is done")
		}
	})
}
