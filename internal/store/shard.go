package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/hoshizora/tansaku/internal/models"
	"go.uber.org/zap"
)

// shardVersion tags each shard file; unknown versions are skipped as
// corrupt, losing only that shard's entries.
const shardVersion = 1

// defaultMaxShardBytes bounds one shard file.
const defaultMaxShardBytes = 4 << 20

// shardFile is the self-describing on-disk form of one shard.
type shardFile struct {
	Version int               `json:"version"`
	Entries map[string][]byte `json:"entries"`
}

// ShardedFileStore implements ContentStore on flat JSON shard files. Entries
// are packed into successive shards up to a max size, so very large datasets
// never produce one giant file and a corrupt shard only loses its own
// entries. Writes rewrite the shard set; this backend trades write cost for
// having no database dependency at all.
type ShardedFileStore struct {
	mu       sync.Mutex
	dir      string
	maxBytes int64
	entries  map[string][]byte
	logger   *zap.Logger
}

// NewShardedFileStore opens the store at dir, loading every readable shard.
// maxBytes <= 0 uses the default shard size.
func NewShardedFileStore(dir string, maxBytes int64, logger *zap.Logger) (*ShardedFileStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create shard directory: %w", err)
	}
	if maxBytes <= 0 {
		maxBytes = defaultMaxShardBytes
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &ShardedFileStore{
		dir:      dir,
		maxBytes: maxBytes,
		entries:  make(map[string][]byte),
		logger:   logger,
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *ShardedFileStore) load() error {
	names, err := filepath.Glob(filepath.Join(s.dir, "shard-*.json"))
	if err != nil {
		return err
	}
	for _, name := range names {
		data, err := os.ReadFile(name)
		if err != nil {
			s.logger.Warn("skipping unreadable shard", zap.String("file", name), zap.Error(err))
			continue
		}
		var shard shardFile
		if err := json.Unmarshal(data, &shard); err != nil || shard.Version != shardVersion {
			// Partial corruption loses this shard's entries, not the store.
			s.logger.Warn("skipping corrupt shard", zap.String("file", name))
			continue
		}
		for key, value := range shard.Entries {
			s.entries[key] = value
		}
	}
	return nil
}

// flushLocked repacks all entries into numbered shards and swaps them in via
// rename, using a unique temp name so a crash mid-write never clobbers a
// good shard.
func (s *ShardedFileStore) flushLocked() error {
	keys := make([]string, 0, len(s.entries))
	for key := range s.entries {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var shards []shardFile
	current := shardFile{Version: shardVersion, Entries: make(map[string][]byte)}
	var currentBytes int64
	for _, key := range keys {
		value := s.entries[key]
		entryBytes := int64(len(key) + len(value))
		if currentBytes > 0 && currentBytes+entryBytes > s.maxBytes {
			shards = append(shards, current)
			current = shardFile{Version: shardVersion, Entries: make(map[string][]byte)}
			currentBytes = 0
		}
		current.Entries[key] = value
		currentBytes += entryBytes
	}
	shards = append(shards, current)

	for i, shard := range shards {
		data, err := json.Marshal(shard)
		if err != nil {
			return fmt.Errorf("marshal shard: %w", err)
		}
		final := filepath.Join(s.dir, fmt.Sprintf("shard-%04d.json", i))
		tmp := filepath.Join(s.dir, fmt.Sprintf(".shard-%s.tmp", uuid.NewString()))
		if err := os.WriteFile(tmp, data, 0600); err != nil {
			return fmt.Errorf("write shard: %w", err)
		}
		if err := os.Rename(tmp, final); err != nil {
			return fmt.Errorf("rename shard: %w", err)
		}
	}

	// Drop stale shards beyond the new count.
	stale, _ := filepath.Glob(filepath.Join(s.dir, "shard-*.json"))
	for _, name := range stale {
		var n int
		if _, err := fmt.Sscanf(filepath.Base(name), "shard-%04d.json", &n); err == nil && n >= len(shards) {
			_ = os.Remove(name)
		}
	}
	return nil
}

// Name returns the backend name.
func (s *ShardedFileStore) Name() string { return "sharded" }

// Get returns the content blob for path.
func (s *ShardedFileStore) Get(_ context.Context, path string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.entries[contentPrefix+path]
	if !ok {
		return nil, ErrNotFound
	}
	return data, nil
}

// Set stores a content blob under path.
func (s *ShardedFileStore) Set(_ context.Context, path string, data []byte) error {
	return s.put(contentPrefix+path, data)
}

// Delete removes the content blob for path.
func (s *ShardedFileStore) Delete(_ context.Context, path string) error {
	return s.remove(contentPrefix + path)
}

// Clear removes all content blobs.
func (s *ShardedFileStore) Clear(_ context.Context) error {
	return s.removePrefix(contentPrefix)
}

// SetMetadata upserts the per-path index metadata.
func (s *ShardedFileStore) SetMetadata(_ context.Context, path string, meta *models.IndexMetadata) error {
	data, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	return s.put(metaPrefix+path, data)
}

// GetMetadata returns the metadata for path, or ErrNotFound.
func (s *ShardedFileStore) GetMetadata(_ context.Context, path string) (*models.IndexMetadata, error) {
	s.mu.Lock()
	data, ok := s.entries[metaPrefix+path]
	s.mu.Unlock()
	if !ok {
		return nil, ErrNotFound
	}
	var meta models.IndexMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

// AllMetadata returns the full metadata table.
func (s *ShardedFileStore) AllMetadata(_ context.Context) (map[string]*models.IndexMetadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]*models.IndexMetadata)
	for key, data := range s.entries {
		if !strings.HasPrefix(key, metaPrefix) {
			continue
		}
		var meta models.IndexMetadata
		if err := json.Unmarshal(data, &meta); err != nil {
			continue
		}
		out[strings.TrimPrefix(key, metaPrefix)] = &meta
	}
	return out, nil
}

// DeleteMetadata removes the metadata for path.
func (s *ShardedFileStore) DeleteMetadata(_ context.Context, path string) error {
	return s.remove(metaPrefix + path)
}

// ClearMetadata removes all metadata entries.
func (s *ShardedFileStore) ClearMetadata(_ context.Context) error {
	return s.removePrefix(metaPrefix)
}

// SetUsageStats stores the usage stats blob.
func (s *ShardedFileStore) SetUsageStats(_ context.Context, data []byte) error {
	return s.put(kvPrefix+kvKeyUsage, data)
}

// GetUsageStats returns the usage stats blob, or nil when absent.
func (s *ShardedFileStore) GetUsageStats(_ context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.entries[kvPrefix+kvKeyUsage], nil
}

// SaveSearchIndex stores the full snapshot.
func (s *ShardedFileStore) SaveSearchIndex(_ context.Context, snap *models.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	return s.put(kvPrefix+kvKeySnapshot, data)
}

// LoadSearchIndex returns the persisted snapshot, or nil when absent.
func (s *ShardedFileStore) LoadSearchIndex(_ context.Context) (*models.Snapshot, error) {
	s.mu.Lock()
	data := s.entries[kvPrefix+kvKeySnapshot]
	s.mu.Unlock()
	if len(data) == 0 {
		return nil, nil
	}
	var snap models.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return &snap, nil
}

// Stats returns key counts and on-disk size.
func (s *ShardedFileStore) Stats(_ context.Context) (Stats, error) {
	s.mu.Lock()
	keys := len(s.entries)
	s.mu.Unlock()
	st := Stats{Backend: s.Name(), Keys: keys}
	_ = filepath.Walk(s.dir, func(_ string, info os.FileInfo, err error) error {
		if err == nil && info != nil && !info.IsDir() {
			st.DiskBytes += info.Size()
		}
		return nil
	})
	return st, nil
}

// Close flushes once.
func (s *ShardedFileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flushLocked()
}

func (s *ShardedFileStore) put(key string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = data
	return s.flushLocked()
}

func (s *ShardedFileStore) remove(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[key]; !ok {
		return nil
	}
	delete(s.entries, key)
	return s.flushLocked()
}

func (s *ShardedFileStore) removePrefix(prefix string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	changed := false
	for key := range s.entries {
		if strings.HasPrefix(key, prefix) {
			delete(s.entries, key)
			changed = true
		}
	}
	if !changed {
		return nil
	}
	return s.flushLocked()
}
