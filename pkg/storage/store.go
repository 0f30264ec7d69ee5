package storage

import (
	"errors"

	"github.com/cuemby/beacon/pkg/types"
)

// ErrNotFound is returned when a keyed record does not exist
var ErrNotFound = errors.New("not found")

// EventStore is the durable, append-only event queue. Bucket selection is a
// function of the event group only.
type EventStore interface {
	Append(event *types.Event, group types.EventGroup) error
	Read(group types.EventGroup, limit int) ([]types.StoredEvent, error)
	Delete(group types.EventGroup, upTo uint64) error
	Count(group types.EventGroup) (int, error)
}

// ProfileStore persists the local profile cache. A nil value deletes the field.
type ProfileStore interface {
	LoadProfile() (map[string]any, error)
	SaveProfileFields(fields map[string]any) error
}

// HistoryStore persists per-event-name bookkeeping
type HistoryStore interface {
	GetEventHistory(name string) (*types.EventHistory, error)
	PutEventHistory(entry *types.EventHistory) error
	ListEventHistory() ([]*types.EventHistory, error)
}

// IdentityStore maps identity values (email, identity, ...) to device ids
type IdentityStore interface {
	PutIdentity(key, value, deviceID string) error
	GetIdentity(key, value string) (string, error)
}

// MetaStore holds small scalar values such as session bookkeeping
type MetaStore interface {
	GetMeta(key string) ([]byte, error)
	PutMeta(key string, value []byte) error
}

// Store defines the interface for all local state
// This is implemented by BoltDB-backed storage
type Store interface {
	EventStore
	ProfileStore
	HistoryStore
	IdentityStore
	MetaStore

	// Utility
	Close() error
}
