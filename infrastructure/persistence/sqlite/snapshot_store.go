// Package sqlite persists the registry snapshot in a local SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"topicgraph/application/ports"
	"topicgraph/domain/core/aggregates"
	pkgerrors "topicgraph/pkg/errors"
)

const schema = `
CREATE TABLE IF NOT EXISTS snapshots (
	id TEXT PRIMARY KEY,
	version INTEGER NOT NULL,
	saved_at TEXT NOT NULL,
	topic_count INTEGER NOT NULL,
	expires_at INTEGER,
	document BLOB NOT NULL
);
`

// SnapshotStore keeps one snapshot row per snapshot ID
type SnapshotStore struct {
	db         *sql.DB
	snapshotID string
	logger     *zap.Logger
	now        func() time.Time
	mu         sync.RWMutex
}

var _ ports.SnapshotStore = (*SnapshotStore)(nil)

// Open opens (creating if needed) the database at path. ":memory:" gives a
// private in-memory database.
func Open(path, snapshotID string, logger *zap.Logger) (*SnapshotStore, error) {
	connStr := path
	if path == ":memory:" {
		connStr = "file::memory:?cache=shared"
	}

	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if path != ":memory:" {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enable WAL mode: %w", err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}

	return &SnapshotStore{
		db:         db,
		snapshotID: snapshotID,
		logger:     logger,
		now:        time.Now,
	}, nil
}

// Close closes the database connection
func (s *SnapshotStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// Load returns the stored snapshot, or nil when there is none or it expired
func (s *SnapshotStore) Load(ctx context.Context) (*aggregates.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		document  []byte
		expiresAt sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT document, expires_at FROM snapshots WHERE id = ?`, s.snapshotID,
	).Scan(&document, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, pkgerrors.NewDatabaseError("load snapshot", err)
	}

	if expiresAt.Valid && s.now().Unix() > expiresAt.Int64 {
		s.logger.Info("Stored snapshot has expired", zap.String("snapshotID", s.snapshotID))
		return nil, nil
	}

	var snap aggregates.Snapshot
	if err := json.Unmarshal(document, &snap); err != nil {
		return nil, pkgerrors.NewDatabaseError("decode snapshot", err)
	}
	return &snap, nil
}

// Save upserts the snapshot row
func (s *SnapshotStore) Save(ctx context.Context, snap *aggregates.Snapshot, ttl time.Duration) error {
	if snap == nil {
		return pkgerrors.NewValidationError("snapshot is required")
	}
	document, err := json.Marshal(snap)
	if err != nil {
		return pkgerrors.NewDatabaseError("encode snapshot", err)
	}

	var expiresAt sql.NullInt64
	if ttl > 0 {
		expiresAt = sql.NullInt64{Int64: s.now().Add(ttl).Unix(), Valid: true}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO snapshots (id, version, saved_at, topic_count, expires_at, document)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			version = excluded.version,
			saved_at = excluded.saved_at,
			topic_count = excluded.topic_count,
			expires_at = excluded.expires_at,
			document = excluded.document
	`, s.snapshotID, snap.Version, snap.SavedAt.UTC().Format(time.RFC3339), len(snap.Topics), expiresAt, document)
	if err != nil {
		return pkgerrors.NewDatabaseError("save snapshot", err)
	}

	s.logger.Debug("Snapshot saved",
		zap.String("snapshotID", s.snapshotID),
		zap.Int("topics", len(snap.Topics)),
		zap.Int("bytes", len(document)))
	return nil
}
