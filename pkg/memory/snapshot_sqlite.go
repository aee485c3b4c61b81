// Copyright 2026 © The Noema Authors
// SPDX-License-Identifier: Apache-2.0

package memory

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/noema-ai/noema/pkg/errors"
)

const snapshotTable = "noema_snapshots"

// SnapshotStore persists conversation snapshots as opaque blobs. The format
// belongs to Conversation.Snapshot; only round-trip fidelity is required.
type SnapshotStore interface {
	Save(ctx context.Context, conversationID string, blob []byte) error
	Load(ctx context.Context, conversationID string) ([]byte, error)
	Delete(ctx context.Context, conversationID string) error
}

// SQLiteSnapshotStore persists snapshots in a SQLite database.
type SQLiteSnapshotStore struct {
	db *sql.DB
}

// NewSQLiteSnapshotStore creates a SQLite-backed snapshot store and ensures
// schema. The caller owns the db handle.
func NewSQLiteSnapshotStore(db *sql.DB) (*SQLiteSnapshotStore, error) {
	if db == nil {
		return nil, fmt.Errorf("db is nil")
	}
	stmt := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		conversation_id TEXT PRIMARY KEY,
		blob BLOB NOT NULL,
		updated_at INTEGER NOT NULL
	);`, snapshotTable)
	if _, err := db.Exec(stmt); err != nil {
		return nil, fmt.Errorf("ensure snapshot schema: %w", err)
	}
	return &SQLiteSnapshotStore{db: db}, nil
}

// OpenSQLiteSnapshotStore opens (or creates) the database at path and wraps
// it in a snapshot store.
func OpenSQLiteSnapshotStore(path string) (*SQLiteSnapshotStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	return NewSQLiteSnapshotStore(db)
}

// Save implements SnapshotStore.
func (s *SQLiteSnapshotStore) Save(ctx context.Context, conversationID string, blob []byte) error {
	stmt := fmt.Sprintf(`INSERT INTO %s (conversation_id, blob, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(conversation_id) DO UPDATE SET blob = excluded.blob, updated_at = excluded.updated_at;`, snapshotTable)
	_, err := s.db.ExecContext(ctx, stmt, conversationID, blob, time.Now().Unix())
	if err != nil {
		return errors.New(errors.CodeMemoryError, "failed to save snapshot", err).
			WithContext("conversation_id", conversationID)
	}
	return nil
}

// Load implements SnapshotStore.
func (s *SQLiteSnapshotStore) Load(ctx context.Context, conversationID string) ([]byte, error) {
	stmt := fmt.Sprintf(`SELECT blob FROM %s WHERE conversation_id = ?;`, snapshotTable)
	var blob []byte
	err := s.db.QueryRowContext(ctx, stmt, conversationID).Scan(&blob)
	if err == sql.ErrNoRows {
		return nil, errors.New(errors.CodeNotFound, "snapshot not found", nil).
			WithContext("conversation_id", conversationID)
	}
	if err != nil {
		return nil, errors.New(errors.CodeMemoryError, "failed to load snapshot", err).
			WithContext("conversation_id", conversationID)
	}
	return blob, nil
}

// Delete implements SnapshotStore.
func (s *SQLiteSnapshotStore) Delete(ctx context.Context, conversationID string) error {
	stmt := fmt.Sprintf(`DELETE FROM %s WHERE conversation_id = ?;`, snapshotTable)
	if _, err := s.db.ExecContext(ctx, stmt, conversationID); err != nil {
		return errors.New(errors.CodeMemoryError, "failed to delete snapshot", err).
			WithContext("conversation_id", conversationID)
	}
	return nil
}

// Close closes the underlying database.
func (s *SQLiteSnapshotStore) Close() error {
	return s.db.Close()
}
