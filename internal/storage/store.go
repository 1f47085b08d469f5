package storage

import (
	"context"
	"time"
)

const (
	EventGrid     = "grid"
	EventAction   = "action"
	EventRejected = "rejected"
	EventSolve    = "solve"
	EventStartup  = "startup"
	EventShutdown = "shutdown"
	EventImport   = "import"
	EventDigest   = "digest"
)

// Event is one audit record. IDs are ULIDs, so key order is time order.
type Event struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	Summary   string    `json:"summary"`
	CreatedAt time.Time `json:"created_at"`
	Version   int       `json:"version"`
}

// Store persists the encoded reconciler state and the audit trail. LoadState
// returns nil data when nothing has been saved yet.
type Store interface {
	LoadState(ctx context.Context) ([]byte, error)
	SaveState(ctx context.Context, data []byte) error
	AppendEvent(ctx context.Context, event Event) (Event, error)
	RecentEvents(ctx context.Context, limit int) ([]Event, error)
	Close() error
}

// DefaultEventLimit caps RecentEvents when the caller passes no limit.
const DefaultEventLimit = 50
