package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/hoshizora/tansaku/internal/models"
	"go.uber.org/zap"
)

// Key prefixes for the three data families sharing one keyspace.
const (
	contentPrefix = "c:"
	metaPrefix    = "m:"
	kvPrefix      = "k:"
)

// BadgerStore implements ContentStore on BadgerDB, the transactional
// key/value fallback when SQLite is unavailable.
type BadgerStore struct {
	db   *badger.DB
	path string
}

// badgerLoggerAdapter routes badger's internal logging through zap.
type badgerLoggerAdapter struct {
	logger *zap.SugaredLogger
}

var _ badger.Logger = (*badgerLoggerAdapter)(nil)

func (bl *badgerLoggerAdapter) Errorf(msg string, items ...any)   { bl.logger.Errorf(msg, items...) }
func (bl *badgerLoggerAdapter) Warningf(msg string, items ...any) { bl.logger.Warnf(msg, items...) }
func (bl *badgerLoggerAdapter) Infof(msg string, items ...any)    { bl.logger.Debugf(msg, items...) }
func (bl *badgerLoggerAdapter) Debugf(msg string, items ...any)   { bl.logger.Debugf(msg, items...) }

// NewBadgerStore opens or creates a Badger database at dir.
func NewBadgerStore(dir string, logger *zap.Logger) (*BadgerStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create badger directory: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	opts := badger.DefaultOptions(dir)
	opts.Logger = &badgerLoggerAdapter{logger: logger.Sugar()}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger: %w", err)
	}
	return &BadgerStore{db: db, path: dir}, nil
}

// Name returns the backend name.
func (s *BadgerStore) Name() string { return "badger" }

// Get returns the content blob for path.
func (s *BadgerStore) Get(_ context.Context, path string) ([]byte, error) {
	return s.get(contentPrefix + path)
}

// Set stores a content blob under path.
func (s *BadgerStore) Set(_ context.Context, path string, data []byte) error {
	return s.set(contentPrefix+path, data)
}

// Delete removes the content blob for path. No-op if absent.
func (s *BadgerStore) Delete(_ context.Context, path string) error {
	return s.delete(contentPrefix + path)
}

// Clear removes all content blobs.
func (s *BadgerStore) Clear(_ context.Context) error {
	return s.dropPrefix(contentPrefix)
}

// SetMetadata upserts the per-path index metadata.
func (s *BadgerStore) SetMetadata(_ context.Context, path string, meta *models.IndexMetadata) error {
	data, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	return s.set(metaPrefix+path, data)
}

// GetMetadata returns the metadata for path, or ErrNotFound.
func (s *BadgerStore) GetMetadata(_ context.Context, path string) (*models.IndexMetadata, error) {
	data, err := s.get(metaPrefix + path)
	if err != nil {
		return nil, err
	}
	var meta models.IndexMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

// AllMetadata returns the full metadata table.
func (s *BadgerStore) AllMetadata(_ context.Context) (map[string]*models.IndexMetadata, error) {
	out := make(map[string]*models.IndexMetadata)
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(metaPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			path := strings.TrimPrefix(string(item.Key()), metaPrefix)
			var meta models.IndexMetadata
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &meta)
			}); err != nil {
				return err
			}
			out[path] = &meta
		}
		return nil
	})
	return out, err
}

// DeleteMetadata removes the metadata for path. No-op if absent.
func (s *BadgerStore) DeleteMetadata(_ context.Context, path string) error {
	return s.delete(metaPrefix + path)
}

// ClearMetadata removes all metadata entries.
func (s *BadgerStore) ClearMetadata(_ context.Context) error {
	return s.dropPrefix(metaPrefix)
}

// SetUsageStats stores the usage stats blob.
func (s *BadgerStore) SetUsageStats(_ context.Context, data []byte) error {
	return s.set(kvPrefix+kvKeyUsage, data)
}

// GetUsageStats returns the usage stats blob, or nil when absent.
func (s *BadgerStore) GetUsageStats(_ context.Context) ([]byte, error) {
	data, err := s.get(kvPrefix + kvKeyUsage)
	if err == ErrNotFound {
		return nil, nil
	}
	return data, err
}

// SaveSearchIndex stores the full snapshot.
func (s *BadgerStore) SaveSearchIndex(_ context.Context, snap *models.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	return s.set(kvPrefix+kvKeySnapshot, data)
}

// LoadSearchIndex returns the persisted snapshot, or nil when absent.
func (s *BadgerStore) LoadSearchIndex(_ context.Context) (*models.Snapshot, error) {
	data, err := s.get(kvPrefix + kvKeySnapshot)
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

// Stats returns key counts and on-disk size.
func (s *BadgerStore) Stats(_ context.Context) (Stats, error) {
	st := Stats{Backend: s.Name()}
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			st.Keys++
		}
		return nil
	})
	if err != nil {
		return st, err
	}
	_ = filepath.Walk(s.path, func(_ string, info os.FileInfo, err error) error {
		if err == nil && info != nil && !info.IsDir() {
			st.DiskBytes += info.Size()
		}
		return nil
	})
	return st, nil
}

// Close closes the database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

func (s *BadgerStore) get(key string) ([]byte, error) {
	var data []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if err == badger.ErrKeyNotFound {
		return nil, ErrNotFound
	}
	return data, err
}

func (s *BadgerStore) set(key string, data []byte) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), data)
	})
}

func (s *BadgerStore) delete(key string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
}

func (s *BadgerStore) dropPrefix(prefix string) error {
	return s.db.DropPrefix([]byte(prefix))
}
