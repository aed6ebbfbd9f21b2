package contract

// ErrorResponse builds a terminal error envelope. Retryable is derived
// once from code, never re-derived ad hoc by callers.
func ErrorResponse(req *Request, sessionID string, code ErrorCode, message string, totalMs int64) Response {
	return NewResponseBuilder(req.RequestID, sessionID).
		SetState("error_degraded").
		SetMessage(message).
		SetAction(actionForErrorCode(code)).
		SetLatency(Latency{Total: totalMs}).
		SetError(code, Retryable(code)).
		Build()
}

// TimeoutResponse builds the envelope returned when a stage's deadline
// elapsed. The stage's specific timeout code is used, falling back to
// TIMEOUT_GENERATION for an unrecognized stage name.
func TimeoutResponse(req *Request, sessionID string, stage string, totalMs int64) Response {
	code := timeoutCodeForStage(stage)
	return NewResponseBuilder(req.RequestID, sessionID).
		SetState("timeout").
		SetMessage(DefaultFallbackMessages[code]).
		SetAction(ActionDegradedTimeout).
		SetLatency(Latency{Total: totalMs}).
		SetError(code, true).
		Build()
}

// ClarificationResponse builds the envelope for a follow-up question.
func ClarificationResponse(req *Request, sessionID string, question string, confidence float64, attempt int, totalMs int64) Response {
	b := NewResponseBuilder(req.RequestID, sessionID).
		SetState("clarifying").
		SetMessage(question).
		SetAction(ActionAskClarification).
		SetLatency(Latency{Total: totalMs}).
		SetMetadata(&Metadata{ClarificationAttempt: attempt})
	b.resp.Confidence = confidence
	return b.buildClarification()
}

// buildClarification validates a clarifying envelope: unlike Build, it
// never satisfies the success invariant (action is ASK_CLARIFICATION, not
// ANSWER), so it is checked separately.
func (b *ResponseBuilder) buildClarification() Response {
	r := b.resp
	if r.State != "clarifying" || r.Action != ActionAskClarification {
		panic("contract: buildClarification is only valid for clarification envelopes")
	}
	return r
}
