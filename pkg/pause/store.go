// Package pause persists the single "paused until" timestamp shared by the
// auto-advance loop and the manual trigger, and answers whether advancing is
// currently suppressed.
//
// The timestamp is the whole protocol: writers always compute the new value
// from their own clock, never from the stored value, so concurrent writers
// need no lock and a lost update only shifts one pause window.
package pause

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"
)

// ErrNoState reports that no pause timestamp has been written yet.
var ErrNoState = errors.New("no pause state recorded")

// Store holds one absolute timestamp.
type Store interface {
	Load(ctx context.Context) (time.Time, error)
	Save(ctx context.Context, until time.Time) error
	Close() error
}

// Backend identifiers accepted by Open.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// Open constructs the store for backend. filePath is used by the file backend,
// dbPath by the sqlite backend.
func Open(backend, filePath, dbPath string) (Store, error) {
	switch backend {
	case BackendFile, "":
		return NewFileStore(filePath)
	case BackendSQLite:
		return OpenSQLite(dbPath)
	case BackendMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown pause backend %q", backend)
	}
}

// MemoryStore keeps the timestamp in process memory.
type MemoryStore struct {
	until atomic.Pointer[time.Time]
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Load(ctx context.Context) (time.Time, error) {
	if err := ctx.Err(); err != nil {
		return time.Time{}, err
	}
	until := m.until.Load()
	if until == nil {
		return time.Time{}, ErrNoState
	}
	return *until, nil
}

func (m *MemoryStore) Save(ctx context.Context, until time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.until.Store(&until)
	return nil
}

func (m *MemoryStore) Close() error { return nil }
