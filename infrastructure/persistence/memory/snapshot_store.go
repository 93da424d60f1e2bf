// Package memory keeps the registry snapshot in process memory.
package memory

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"topicgraph/application/ports"
	"topicgraph/domain/core/aggregates"
	pkgerrors "topicgraph/pkg/errors"
)

// SnapshotStore holds the last saved snapshot as encoded JSON so callers
// never share state with the stored copy.
type SnapshotStore struct {
	mu        sync.RWMutex
	data      []byte
	expiresAt time.Time
	now       func() time.Time
}

var _ ports.SnapshotStore = (*SnapshotStore)(nil)

// NewSnapshotStore creates an empty store
func NewSnapshotStore() *SnapshotStore {
	return &SnapshotStore{now: time.Now}
}

// Load returns a copy of the saved snapshot, or nil when nothing is stored
// or the stored copy has expired.
func (s *SnapshotStore) Load(ctx context.Context) (*aggregates.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.data == nil || (!s.expiresAt.IsZero() && s.now().After(s.expiresAt)) {
		return nil, nil
	}

	var snap aggregates.Snapshot
	if err := json.Unmarshal(s.data, &snap); err != nil {
		return nil, pkgerrors.NewDatabaseError("decode snapshot", err)
	}
	return &snap, nil
}

// Save replaces the stored snapshot
func (s *SnapshotStore) Save(ctx context.Context, snap *aggregates.Snapshot, ttl time.Duration) error {
	if snap == nil {
		return pkgerrors.NewValidationError("snapshot is required")
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return pkgerrors.NewDatabaseError("encode snapshot", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.data = data
	s.expiresAt = time.Time{}
	if ttl > 0 {
		s.expiresAt = s.now().Add(ttl)
	}
	return nil
}
