package kv

import (
	"context"
	"database/sql"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"github.com/XiaoConstantine/playbook-go/pkg/errors"
	"github.com/XiaoConstantine/playbook-go/pkg/logging"
)

// SQLiteStore implements the Store interface using SQLite as the backend.
type SQLiteStore struct {
	db   *sql.DB
	mu   sync.RWMutex
	path string

	initialized sync.Once
}

// NewSQLiteStore creates a new SQLite-backed key-value store.
// The path parameter specifies the database file location.
// If path is ":memory:", the database will be created in-memory.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.WithFields(
			errors.Wrap(err, errors.StorageFailed, "failed to open SQLite database"),
			errors.Fields{"path": path},
		)
	}

	store := &SQLiteStore{
		db:   db,
		path: path,
	}
	if err := store.ensureInitialized(); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *SQLiteStore) ensureInitialized() error {
	var initErr error
	s.initialized.Do(func() {
		// Enable WAL mode for better concurrency
		if _, err := s.db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
			initErr = errors.Wrap(err, errors.StorageFailed, "failed to enable WAL mode")
			return
		}

		query := `
        CREATE TABLE IF NOT EXISTS kv_store (
            namespace TEXT NOT NULL,
            key TEXT NOT NULL,
            value TEXT NOT NULL,
            created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
            updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
            PRIMARY KEY (namespace, key)
        );

        CREATE INDEX IF NOT EXISTS idx_kv_store_namespace
        ON kv_store(namespace);
        `

		if _, err := s.db.Exec(query); err != nil {
			initErr = errors.WithFields(
				errors.Wrap(err, errors.StorageFailed, "failed to initialize database"),
				errors.Fields{"query": query},
			)
			return
		}
	})
	return initErr
}

// Get implements the Store interface Get method.
func (s *SQLiteStore) Get(ctx context.Context, ns Namespace, key string) ([]byte, bool, error) {
	if err := s.ensureInitialized(); err != nil {
		return nil, false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var value []byte
	err := s.db.QueryRowContext(ctx,
		"SELECT value FROM kv_store WHERE namespace = ? AND key = ?",
		ns.String(), key,
	).Scan(&value)

	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.WithFields(
			errors.Wrap(err, errors.StorageFailed, "failed to read key"),
			errors.Fields{"namespace": ns.String(), "key": key},
		)
	}
	return value, true, nil
}

// Put implements the Store interface Put method.
func (s *SQLiteStore) Put(ctx context.Context, ns Namespace, key string, value []byte) error {
	if err := s.ensureInitialized(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.WithFields(
			errors.Wrap(err, errors.StorageFailed, "failed to begin transaction"),
			errors.Fields{"namespace": ns.String(), "key": key},
		)
	}
	defer func() {
		if err := tx.Rollback(); err != nil && err != sql.ErrTxDone {
			logging.GetLogger().Error(ctx, "failed to rollback transaction: %v", err)
		}
	}()

	query := `
    INSERT INTO kv_store (namespace, key, value, updated_at)
    VALUES (?, ?, ?, CURRENT_TIMESTAMP)
    ON CONFLICT(namespace, key) DO UPDATE SET
        value = excluded.value,
        updated_at = CURRENT_TIMESTAMP
    `
	if _, err := tx.ExecContext(ctx, query, ns.String(), key, value); err != nil {
		return errors.WithFields(
			errors.Wrap(err, errors.StorageFailed, "failed to write key"),
			errors.Fields{"namespace": ns.String(), "key": key},
		)
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, errors.StorageFailed, "failed to commit transaction")
	}
	return nil
}

// Search implements the Store interface Search method.
func (s *SQLiteStore) Search(ctx context.Context, ns Namespace) ([]Pair, error) {
	if err := s.ensureInitialized(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT key, value FROM kv_store WHERE namespace = ?",
		ns.String(),
	)
	if err != nil {
		return nil, errors.WithFields(
			errors.Wrap(err, errors.StorageFailed, "failed to search namespace"),
			errors.Fields{"namespace": ns.String()},
		)
	}
	defer rows.Close()

	var pairs []Pair
	for rows.Next() {
		var p Pair
		if err := rows.Scan(&p.Key, &p.Value); err != nil {
			return nil, errors.Wrap(err, errors.StorageFailed, "failed to scan row")
		}
		pairs = append(pairs, p)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.StorageFailed, "failed to iterate rows")
	}
	return pairs, nil
}

// Delete implements the Store interface Delete method.
func (s *SQLiteStore) Delete(ctx context.Context, ns Namespace, key string) error {
	if err := s.ensureInitialized(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx,
		"DELETE FROM kv_store WHERE namespace = ? AND key = ?",
		ns.String(), key,
	); err != nil {
		return errors.WithFields(
			errors.Wrap(err, errors.StorageFailed, "failed to delete key"),
			errors.Fields{"namespace": ns.String(), "key": key},
		)
	}
	return nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
