package emit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"
)

// LogEmitter writes structured log records to an io.Writer, either as
// human-readable key=value text or as JSON Lines.
type LogEmitter struct {
	writer   io.Writer
	jsonMode bool
	now      func() time.Time
}

// NewLogEmitter creates a LogEmitter. A nil writer defaults to os.Stdout.
func NewLogEmitter(writer io.Writer, jsonMode bool) *LogEmitter {
	if writer == nil {
		writer = os.Stdout
	}
	return &LogEmitter{writer: writer, jsonMode: jsonMode, now: time.Now}
}

type logRecord struct {
	Timestamp string         `json:"timestamp"`
	Level     string         `json:"level"`
	Message   string         `json:"message"`
	RequestID string         `json:"request_id"`
	SessionID string         `json:"session_id"`
	Stage     string         `json:"stage,omitempty"`
	Meta      map[string]any `json:"meta,omitempty"`
}

func (l *LogEmitter) toRecord(e Event) logRecord {
	level := e.Level
	if level == "" {
		level = LevelInfo
	}
	return logRecord{
		Timestamp: l.now().UTC().Format(time.RFC3339Nano),
		Level:     level,
		Message:   e.Msg,
		RequestID: e.RequestID,
		SessionID: e.SessionID,
		Stage:     e.Stage,
		Meta:      e.Meta,
	}
}

// Emit writes a single event.
func (l *LogEmitter) Emit(event Event) {
	if l.jsonMode {
		l.emitJSON(event)
		return
	}
	l.emitText(event)
}

func (l *LogEmitter) emitJSON(event Event) {
	data, err := json.Marshal(l.toRecord(event))
	if err != nil {
		_, _ = fmt.Fprintf(l.writer, "{\"level\":\"error\",\"message\":\"failed to marshal event: %v\"}\n", err)
		return
	}
	_, _ = fmt.Fprintf(l.writer, "%s\n", data)
}

func (l *LogEmitter) emitText(event Event) {
	rec := l.toRecord(event)
	_, _ = fmt.Fprintf(l.writer, "%s [%s] %s request_id=%s session_id=%s",
		rec.Timestamp, rec.Level, rec.Message, rec.RequestID, rec.SessionID)
	if rec.Stage != "" {
		_, _ = fmt.Fprintf(l.writer, " stage=%s", rec.Stage)
	}
	if len(rec.Meta) > 0 {
		if metaJSON, err := json.Marshal(rec.Meta); err == nil {
			_, _ = fmt.Fprintf(l.writer, " meta=%s", metaJSON)
		}
	}
	_, _ = fmt.Fprint(l.writer, "\n")
}

// EmitBatch writes every event in order.
func (l *LogEmitter) EmitBatch(_ context.Context, events []Event) error {
	for _, e := range events {
		l.Emit(e)
	}
	return nil
}

// Flush is a no-op: LogEmitter writes synchronously with no internal buffer.
func (l *LogEmitter) Flush(context.Context) error { return nil }
