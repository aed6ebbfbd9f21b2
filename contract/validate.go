package contract

import (
	"fmt"
	"unicode/utf8"

	"github.com/google/uuid"
)

const (
	minMessageLength = 1
	maxMessageLength = 50000
	maxTemperature   = 2.0
	minTemperature   = 0.0
)

// FieldError is one human-readable field validation failure, in the
// teacher's tagged-struct idiom rather than a generic error string.
type FieldError struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

func (e FieldError) Error() string {
	return e.Field + ": " + e.Reason
}

// RawRequest is the wire-shaped, not-yet-validated request body.
type RawRequest struct {
	RequestID   string           `json:"request_id"`
	SessionID   string           `json:"session_id"`
	UserID      string           `json:"user_id,omitempty"`
	Message     string           `json:"message"`
	Channel     string           `json:"channel"`
	Context     *RequestContext  `json:"context,omitempty"`
	Options     *RawRequestOptions `json:"options,omitempty"`
	Attachments []Attachment     `json:"attachments,omitempty"`
}

// RawRequestOptions mirrors RequestOptions but with Language left as a
// plain string so validation can reject unknown codes explicitly.
type RawRequestOptions struct {
	Streaming   bool   `json:"streaming,omitempty"`
	EnableAgent bool   `json:"enable_agent,omitempty"`
	MaxTokens   int    `json:"max_tokens,omitempty"`
	Language    string `json:"language,omitempty"`
}

// ValidateRequest checks a raw request against the field-level invariants
// from the data model and returns either a fully-typed Request or the
// complete list of field errors (not just the first one found).
func ValidateRequest(raw RawRequest) (*Request, []FieldError) {
	var errs []FieldError

	if raw.RequestID == "" {
		errs = append(errs, FieldError{"request_id", "must not be empty"})
	} else if _, err := uuid.Parse(raw.RequestID); err != nil {
		errs = append(errs, FieldError{"request_id", "must be a valid UUID"})
	}

	if raw.SessionID == "" {
		errs = append(errs, FieldError{"session_id", "must not be empty"})
	}

	msgLen := utf8.RuneCountInString(raw.Message)
	if msgLen < minMessageLength {
		errs = append(errs, FieldError{"message", "must be at least 1 character"})
	}
	if msgLen > maxMessageLength {
		errs = append(errs, FieldError{"message", fmt.Sprintf("must be at most %d characters", maxMessageLength)})
	}

	channel := Channel(raw.Channel)
	if !validChannels[channel] {
		errs = append(errs, FieldError{"channel", "must be one of web, api, mobile, widget"})
	}

	if raw.Context != nil && raw.Context.Temperature != nil {
		t := *raw.Context.Temperature
		if t < minTemperature || t > maxTemperature {
			errs = append(errs, FieldError{"context.temperature", "must be within [0,2]"})
		}
	}

	var opts *RequestOptions
	if raw.Options != nil {
		lang := Language(raw.Options.Language)
		if raw.Options.Language != "" && !validRequestLanguages[lang] {
			errs = append(errs, FieldError{"options.language", "must be one of es, en, auto"})
		}
		opts = &RequestOptions{
			Streaming:   raw.Options.Streaming,
			EnableAgent: raw.Options.EnableAgent,
			MaxTokens:   raw.Options.MaxTokens,
			Language:    lang,
		}
	}

	if len(errs) > 0 {
		return nil, errs
	}

	return &Request{
		RequestID:   raw.RequestID,
		SessionID:   raw.SessionID,
		UserID:      raw.UserID,
		Message:     raw.Message,
		Channel:     channel,
		Attachments: raw.Attachments,
		Context:     raw.Context,
		Options:     opts,
	}, nil
}
