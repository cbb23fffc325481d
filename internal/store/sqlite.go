package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hoshizora/tansaku/internal/models"
)

const (
	kvKeyUsage    = "usage_stats"
	kvKeySnapshot = "search_index"
)

// SQLiteStore implements ContentStore on SQLite. This is the preferred
// backend: structured tables for metadata, a kv table for the snapshot and
// usage blobs.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// NewSQLiteStore opens or creates a database at dbPath and initializes the
// schema. Parent directories are created if missing.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return &SQLiteStore{db: db, path: dbPath}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS content (
		path TEXT PRIMARY KEY,
		data BLOB NOT NULL
	);

	CREATE TABLE IF NOT EXISTS metadata (
		path TEXT PRIMARY KEY,
		last_modified INTEGER NOT NULL,
		indexed_at INTEGER NOT NULL,
		content_hash INTEGER NOT NULL,
		size INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS kv (
		key TEXT PRIMARY KEY,
		data BLOB NOT NULL
	);
	`
	_, err := db.Exec(schema)
	return err
}

// Name returns the backend name.
func (s *SQLiteStore) Name() string { return "sqlite" }

// Get returns the content blob for path.
func (s *SQLiteStore) Get(ctx context.Context, path string) ([]byte, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT data FROM content WHERE path = ?`, path).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return data, err
}

// Set stores a content blob under path.
func (s *SQLiteStore) Set(ctx context.Context, path string, data []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO content (path, data) VALUES (?, ?)
		 ON CONFLICT(path) DO UPDATE SET data = excluded.data`, path, data)
	return err
}

// Delete removes the content blob for path. No-op if absent.
func (s *SQLiteStore) Delete(ctx context.Context, path string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM content WHERE path = ?`, path)
	return err
}

// Clear removes all content blobs.
func (s *SQLiteStore) Clear(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM content`)
	return err
}

// SetMetadata upserts the per-path index metadata.
func (s *SQLiteStore) SetMetadata(ctx context.Context, path string, meta *models.IndexMetadata) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO metadata (path, last_modified, indexed_at, content_hash, size)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(path) DO UPDATE SET
			last_modified = excluded.last_modified,
			indexed_at = excluded.indexed_at,
			content_hash = excluded.content_hash,
			size = excluded.size`,
		path, meta.LastModified, meta.IndexedAt, int64(meta.ContentHash), meta.Size)
	return err
}

// GetMetadata returns the metadata for path, or ErrNotFound.
func (s *SQLiteStore) GetMetadata(ctx context.Context, path string) (*models.IndexMetadata, error) {
	var meta models.IndexMetadata
	var hash int64
	err := s.db.QueryRowContext(ctx,
		`SELECT last_modified, indexed_at, content_hash, size FROM metadata WHERE path = ?`, path,
	).Scan(&meta.LastModified, &meta.IndexedAt, &hash, &meta.Size)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	meta.ContentHash = uint64(hash)
	return &meta, nil
}

// AllMetadata returns the full metadata table.
func (s *SQLiteStore) AllMetadata(ctx context.Context) (map[string]*models.IndexMetadata, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT path, last_modified, indexed_at, content_hash, size FROM metadata`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]*models.IndexMetadata)
	for rows.Next() {
		var path string
		var meta models.IndexMetadata
		var hash int64
		if err := rows.Scan(&path, &meta.LastModified, &meta.IndexedAt, &hash, &meta.Size); err != nil {
			return nil, err
		}
		meta.ContentHash = uint64(hash)
		out[path] = &meta
	}
	return out, rows.Err()
}

// DeleteMetadata removes the metadata for path. No-op if absent.
func (s *SQLiteStore) DeleteMetadata(ctx context.Context, path string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM metadata WHERE path = ?`, path)
	return err
}

// ClearMetadata removes all metadata rows.
func (s *SQLiteStore) ClearMetadata(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM metadata`)
	return err
}

// SetUsageStats stores the usage stats blob.
func (s *SQLiteStore) SetUsageStats(ctx context.Context, data []byte) error {
	return s.setKV(ctx, kvKeyUsage, data)
}

// GetUsageStats returns the usage stats blob, or nil when absent.
func (s *SQLiteStore) GetUsageStats(ctx context.Context) ([]byte, error) {
	data, err := s.getKV(ctx, kvKeyUsage)
	if err == ErrNotFound {
		return nil, nil
	}
	return data, err
}

// SaveSearchIndex stores the full snapshot.
func (s *SQLiteStore) SaveSearchIndex(ctx context.Context, snap *models.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	return s.setKV(ctx, kvKeySnapshot, data)
}

// LoadSearchIndex returns the persisted snapshot, or nil when absent.
func (s *SQLiteStore) LoadSearchIndex(ctx context.Context) (*models.Snapshot, error) {
	data, err := s.getKV(ctx, kvKeySnapshot)
	if err == ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var snap models.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return &snap, nil
}

func (s *SQLiteStore) setKV(ctx context.Context, key string, data []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO kv (key, data) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET data = excluded.data`, key, data)
	return err
}

func (s *SQLiteStore) getKV(ctx context.Context, key string) ([]byte, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT data FROM kv WHERE key = ?`, key).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return data, err
}

// Stats returns key counts and on-disk size.
func (s *SQLiteStore) Stats(ctx context.Context) (Stats, error) {
	st := Stats{Backend: s.Name()}
	var contentKeys, metaKeys int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM content`).Scan(&contentKeys); err != nil {
		return st, err
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM metadata`).Scan(&metaKeys); err != nil {
		return st, err
	}
	st.Keys = contentKeys + metaKeys
	if info, err := os.Stat(s.path); err == nil {
		st.DiskBytes = info.Size()
	}
	return st, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
