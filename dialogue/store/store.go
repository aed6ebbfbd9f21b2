// Package store provides pluggable persistence for dialogue sessions,
// generalizing the teacher's Store[S] (graph/store/store.go) SaveStep/
// LoadLatest shape into a session-keyed SaveSession/LoadSession pair — a
// dialogue session has one current snapshot, not a step history to
// resume from.
package store

import (
	"context"
	"errors"

	"github.com/marlowe-ai/convopipe/dialogue"
)

// ErrNotFound is returned when a requested session id does not exist.
var ErrNotFound = errors.New("store: session not found")

// Store persists and retrieves dialogue session snapshots.
type Store interface {
	SaveSession(ctx context.Context, session dialogue.DialogueContext) error
	LoadSession(ctx context.Context, sessionID string) (dialogue.DialogueContext, error)
	DeleteSession(ctx context.Context, sessionID string) error
}
