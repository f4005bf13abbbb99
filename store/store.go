// Package store mirrors the sync state to local storage so a restart can
// show the last known state. A mirrored run is never resumed.
package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/use-agent/offersync/models"
)

// Keys used in the key-value table.
const (
	KeySyncState  = "sync_state"
	KeyLastOffers = "last_offers"
)

// ErrNotFound is returned by Get when a key has never been written.
var ErrNotFound = errors.New("store: not found")

// KV is a JSON key-value store.
type KV interface {
	Put(ctx context.Context, key string, value json.RawMessage) error
	Get(ctx context.Context, key string) (json.RawMessage, error)
	Close() error
}

// StateStore persists SyncState on top of a KV.
type StateStore struct {
	kv KV
}

// NewStateStore wraps kv.
func NewStateStore(kv KV) *StateStore {
	return &StateStore{kv: kv}
}

// Open returns the StateStore for the configured driver.
func Open(driver, dataDir string) (*StateStore, error) {
	switch driver {
	case "", "sqlite":
		kv, err := NewSQLite(dataDir)
		if err != nil {
			return nil, err
		}
		return NewStateStore(kv), nil
	case "memory":
		return NewStateStore(NewMemory()), nil
	default:
		return nil, fmt.Errorf("store: unknown driver %q", driver)
	}
}

// Save writes st. The offers payload, when present, is also kept under its
// own key so exports survive a new run that fails to capture offers.
func (s *StateStore) Save(ctx context.Context, st models.SyncState) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encoding sync state: %w", err)
	}
	if err := s.kv.Put(ctx, KeySyncState, data); err != nil {
		return err
	}
	if offers := st.CapturedData["offers"]; !isNull(offers) {
		if err := s.kv.Put(ctx, KeyLastOffers, offers); err != nil {
			return err
		}
	}
	return nil
}

// Load returns the last saved state with IsRunning forced to false.
func (s *StateStore) Load(ctx context.Context) (models.SyncState, bool, error) {
	data, err := s.kv.Get(ctx, KeySyncState)
	if errors.Is(err, ErrNotFound) {
		return models.SyncState{}, false, nil
	}
	if err != nil {
		return models.SyncState{}, false, err
	}
	var st models.SyncState
	if err := json.Unmarshal(data, &st); err != nil {
		return models.SyncState{}, false, fmt.Errorf("decoding sync state: %w", err)
	}
	st.IsRunning = false
	// A step that was never captured is saved as null and must come back nil.
	for k, v := range st.CapturedData {
		if isNull(v) {
			st.CapturedData[k] = nil
		}
	}
	return st, true, nil
}

func isNull(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) == 0 || bytes.Equal(raw, []byte("null"))
}

// LastOffers returns the most recently captured offers payload.
func (s *StateStore) LastOffers(ctx context.Context) (json.RawMessage, error) {
	return s.kv.Get(ctx, KeyLastOffers)
}

// Close releases the underlying KV.
func (s *StateStore) Close() error {
	return s.kv.Close()
}
