// Package contract defines the wire-level request/response envelope for
// the conversational pipeline, request validation, and the response
// builder used by the orchestrator to assemble a typed response exactly
// once per turn.
package contract

import "time"

// Channel is the client surface a request arrived on.
type Channel string

const (
	ChannelWeb    Channel = "web"
	ChannelAPI    Channel = "api"
	ChannelMobile Channel = "mobile"
	ChannelWidget Channel = "widget"
)

var validChannels = map[Channel]bool{
	ChannelWeb: true, ChannelAPI: true, ChannelMobile: true, ChannelWidget: true,
}

// Language is the requested or detected conversation language.
type Language string

const (
	LanguageES      Language = "es"
	LanguageEN      Language = "en"
	LanguageAuto    Language = "auto"
	LanguageUnknown Language = "unknown"
)

var validRequestLanguages = map[Language]bool{
	LanguageES: true, LanguageEN: true, LanguageAuto: true,
}

// Attachment describes a file the caller attached to the message.
type Attachment struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	MimeType string `json:"mimeType"`
	Size     int64  `json:"size"`
}

// RequestContext carries optional routing hints.
type RequestContext struct {
	ChatID      string   `json:"chat_id,omitempty"`
	GPTID       string   `json:"gpt_id,omitempty"`
	Model       string   `json:"model,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
}

// RequestOptions carries optional per-turn toggles.
type RequestOptions struct {
	Streaming   bool     `json:"streaming,omitempty"`
	EnableAgent bool     `json:"enable_agent,omitempty"`
	MaxTokens   int      `json:"max_tokens,omitempty"`
	Language    Language `json:"language,omitempty"`
}

// Request is one immutable turn of input. Once validated it is never
// mutated by any downstream stage.
type Request struct {
	RequestID   string          `json:"request_id"`
	SessionID   string          `json:"session_id"`
	UserID      string          `json:"user_id,omitempty"`
	Message     string          `json:"message"`
	ClientTS    time.Time       `json:"client_ts"`
	Channel     Channel         `json:"channel"`
	Attachments []Attachment    `json:"attachments,omitempty"`
	Context     *RequestContext `json:"context,omitempty"`
	Options     *RequestOptions `json:"options,omitempty"`
}

// SourceType classifies where a retrieval result came from.
type SourceType string

const (
	SourceKB       SourceType = "kb"
	SourceWeb      SourceType = "web"
	SourceAcademic SourceType = "academic"
	SourceDocument SourceType = "document"
)

// Source is a single retrieval result.
type Source struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	URL       string     `json:"url,omitempty"`
	Snippet   string     `json:"snippet,omitempty"`
	Score     float64    `json:"score"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
	Type      SourceType `json:"type,omitempty"`
}

// Action is the outcome taxonomy the orchestrator reports on the wire.
type Action string

const (
	ActionAnswer           Action = "ANSWER"
	ActionAskClarification Action = "ASK_CLARIFICATION"
	ActionFallbackKB       Action = "FALLBACK_KB"
	ActionFallbackGeneric  Action = "FALLBACK_GENERIC"
	ActionDegradedTimeout  Action = "DEGRADED_TIMEOUT"
	ActionEscalateHuman    Action = "ESCALATE_HUMAN"
	ActionRetrySuggestion  Action = "RETRY_SUGGESTION"
)

// Provider identifies the upstream LLM that produced a generation.
type Provider string

const (
	ProviderXAI       Provider = "xai"
	ProviderGemini    Provider = "gemini"
	ProviderAnthropic Provider = "anthropic"
)

// Latency is the stage-by-stage duration breakdown, null for any stage not
// reached.
type Latency struct {
	Preprocess  *int64 `json:"preprocess"`
	NLU         *int64 `json:"nlu"`
	Retrieval   *int64 `json:"retrieval"`
	Rerank      *int64 `json:"rerank"`
	Generation  *int64 `json:"generation"`
	Postprocess *int64 `json:"postprocess"`
	Total       int64  `json:"total"`
}

// Metadata carries the optional response side-channel fields.
type Metadata struct {
	TokensUsed           int  `json:"tokens_used,omitempty"`
	Cached               bool `json:"cached,omitempty"`
	FromFallback         bool `json:"from_fallback,omitempty"`
	ClarificationAttempt int  `json:"clarification_attempt,omitempty"`
	DegradedMode         bool `json:"degraded_mode,omitempty"`
}

// Response is built exactly once per turn.
type Response struct {
	RequestID        string         `json:"request_id"`
	SessionID        string         `json:"session_id"`
	State            string         `json:"state"`
	Message          string         `json:"message"`
	Intent           string         `json:"intent,omitempty"`
	IntentConfidence *float64       `json:"intent_confidence,omitempty"`
	Entities         map[string]any `json:"entities,omitempty"`
	Confidence       float64        `json:"confidence"`
	Action           Action         `json:"action"`
	Sources          []Source       `json:"sources,omitempty"`
	LatencyMs        Latency        `json:"latency_ms"`
	ModelVersion     string         `json:"model_version,omitempty"`
	Provider         Provider       `json:"provider,omitempty"`
	ErrorCode        ErrorCode      `json:"error_code"`
	Retryable        bool           `json:"retryable"`
	Metadata         *Metadata      `json:"metadata,omitempty"`
}

// StreamChunk is one newline-delimited unit of a streaming response.
type StreamChunk struct {
	RequestID  string    `json:"request_id"`
	SequenceID int       `json:"sequence_id"`
	Status     string    `json:"status,omitempty"`
	Content    string    `json:"content,omitempty"`
	ErrorCode  ErrorCode `json:"error_code,omitempty"`
	Done       bool      `json:"done"`
}
