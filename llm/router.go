package llm

import (
	"context"
	"errors"
)

// ErrNoFallback is joined to the primary's error by Chat/StreamChat when the
// primary gateway fails, Params.EnableFallback is true and no fallback was
// configured. With Params.EnableFallback false the primary's error is
// returned as is.
var ErrNoFallback = errors.New("llm: primary failed and fallback disabled")

// Router dispatches to a primary Gateway and, on failure, an optional
// fallback. It carries no load-balancing or retry policy beyond that single
// failover step.
type Router struct {
	Primary  Gateway
	Fallback Gateway
}

func NewRouter(primary, fallback Gateway) *Router {
	return &Router{Primary: primary, Fallback: fallback}
}

func (r *Router) Chat(ctx context.Context, messages []Message, params Params) (ChatOut, error) {
	out, err := r.Primary.Chat(ctx, messages, params)
	if err == nil {
		return out, nil
	}
	if !params.EnableFallback || r.Fallback == nil {
		if !params.EnableFallback {
			return ChatOut{}, err
		}
		return ChatOut{}, errors.Join(err, ErrNoFallback)
	}
	out, err = r.Fallback.Chat(ctx, messages, params)
	if err == nil {
		out.UsedFallback = true
	}
	return out, err
}

func (r *Router) StreamChat(ctx context.Context, messages []Message, params Params) (<-chan StreamEvent, error) {
	ch, err := r.Primary.StreamChat(ctx, messages, params)
	if err == nil {
		return ch, nil
	}
	if !params.EnableFallback || r.Fallback == nil {
		if !params.EnableFallback {
			return nil, err
		}
		return nil, errors.Join(err, ErrNoFallback)
	}
	return r.Fallback.StreamChat(ctx, messages, params)
}
