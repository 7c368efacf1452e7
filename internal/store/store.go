// Package store provides local persistence for the console: the session
// token, the last-known snapshot per scope and the action log.
package store

import (
	"context"
	"encoding/json"
	"time"
)

// DataStore defines the interface for data persistence.
type DataStore interface {
	// Settings
	GetSetting(ctx context.Context, key string) (string, error)
	SetSetting(ctx context.Context, key, value string) error
	DeleteSetting(ctx context.Context, key string) error

	// Snapshots
	SaveSnapshot(ctx context.Context, snap Snapshot) error
	LatestSnapshot(ctx context.Context, scope string) (*Snapshot, error)

	// Action log
	LogAction(ctx context.Context, entry ActionEntry) error
	GetActions(ctx context.Context, filter ActionFilter) ([]ActionEntry, error)

	// Lifecycle
	Close() error
}

// Snapshot is the raw payload last received for a scope (group:<id>,
// strategy:<id>, account:<id>).
type Snapshot struct {
	Scope      string
	Seq        int64
	Payload    json.RawMessage
	ReceivedAt time.Time
}

// ActionEntry records the outcome of one dispatched action.
type ActionEntry struct {
	ID      int64
	Action  string
	Target  string
	OK      bool
	Message string
	At      time.Time
}

// ActionFilter represents filters for querying the action log.
type ActionFilter struct {
	Action string
	Target string
	Since  time.Time
	Limit  int
}
