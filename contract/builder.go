package contract

// ResponseBuilder assembles a Response field by field. Unlike config's
// functional-option chain, this is an imperative, stateful builder — the
// shape the specification calls for and a pattern the same codebase uses
// in more than one place.
type ResponseBuilder struct {
	resp Response
}

// NewResponseBuilder starts a builder for the given request/session pair.
func NewResponseBuilder(requestID, sessionID string) *ResponseBuilder {
	return &ResponseBuilder{resp: Response{
		RequestID: requestID,
		SessionID: sessionID,
		ErrorCode: ErrNone,
	}}
}

func (b *ResponseBuilder) SetState(state string) *ResponseBuilder {
	b.resp.State = state
	return b
}

func (b *ResponseBuilder) SetMessage(msg string) *ResponseBuilder {
	b.resp.Message = msg
	return b
}

func (b *ResponseBuilder) SetIntent(intent string, confidence float64) *ResponseBuilder {
	b.resp.Intent = intent
	b.resp.IntentConfidence = &confidence
	b.resp.Confidence = confidence
	return b
}

func (b *ResponseBuilder) SetEntities(entities map[string]any) *ResponseBuilder {
	b.resp.Entities = entities
	return b
}

func (b *ResponseBuilder) SetAction(action Action) *ResponseBuilder {
	b.resp.Action = action
	return b
}

func (b *ResponseBuilder) SetSources(sources []Source) *ResponseBuilder {
	b.resp.Sources = sources
	return b
}

func (b *ResponseBuilder) SetLatency(latency Latency) *ResponseBuilder {
	b.resp.LatencyMs = latency
	return b
}

func (b *ResponseBuilder) SetModel(version string, provider Provider) *ResponseBuilder {
	b.resp.ModelVersion = version
	b.resp.Provider = provider
	return b
}

func (b *ResponseBuilder) SetError(code ErrorCode, retryable bool) *ResponseBuilder {
	b.resp.ErrorCode = code
	b.resp.Retryable = retryable
	return b
}

func (b *ResponseBuilder) SetMetadata(meta *Metadata) *ResponseBuilder {
	b.resp.Metadata = meta
	return b
}

// Build validates the assembled envelope against its own invariants and
// returns it. A violated invariant here is a programming error in the
// orchestrator, not a user-facing validation failure, so it panics rather
// than returning an error — the caller composed the builder incorrectly.
func (b *ResponseBuilder) Build() Response {
	r := b.resp
	if r.ErrorCode == ErrNone && (r.State != "success" || r.Action != ActionAnswer) {
		panic("contract: response with error_code=NONE must have state=success and action=ANSWER")
	}
	if r.ErrorCode != ErrNone && r.State == "success" && r.Action == ActionAnswer {
		panic("contract: response with a non-NONE error_code cannot report state=success/action=ANSWER")
	}
	return r
}
