package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/hoshizora/tansaku/internal/models"
)

// MemoryStore implements ContentStore in process memory. The guaranteed
// last resort of the fallback chain: it cannot fail to initialize, and
// nothing survives process restart.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string][]byte
	closed  bool
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string][]byte)}
}

// Name returns the backend name.
func (s *MemoryStore) Name() string { return "memory" }

// Get returns the content blob for path.
func (s *MemoryStore) Get(_ context.Context, path string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	data, ok := s.entries[contentPrefix+path]
	if !ok {
		return nil, ErrNotFound
	}
	return data, nil
}

// Set stores a content blob under path.
func (s *MemoryStore) Set(_ context.Context, path string, data []byte) error {
	return s.put(contentPrefix+path, data)
}

// Delete removes the content blob for path.
func (s *MemoryStore) Delete(_ context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, contentPrefix+path)
	return nil
}

// Clear removes all content blobs.
func (s *MemoryStore) Clear(_ context.Context) error {
	return s.removePrefix(contentPrefix)
}

// SetMetadata upserts the per-path index metadata.
func (s *MemoryStore) SetMetadata(_ context.Context, path string, meta *models.IndexMetadata) error {
	data, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	return s.put(metaPrefix+path, data)
}

// GetMetadata returns the metadata for path, or ErrNotFound.
func (s *MemoryStore) GetMetadata(_ context.Context, path string) (*models.IndexMetadata, error) {
	s.mu.RLock()
	data, ok := s.entries[metaPrefix+path]
	s.mu.RUnlock()
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
func (s *MemoryStore) AllMetadata(_ context.Context) (map[string]*models.IndexMetadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
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
func (s *MemoryStore) DeleteMetadata(_ context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, metaPrefix+path)
	return nil
}

// ClearMetadata removes all metadata entries.
func (s *MemoryStore) ClearMetadata(_ context.Context) error {
	return s.removePrefix(metaPrefix)
}

// SetUsageStats stores the usage stats blob.
func (s *MemoryStore) SetUsageStats(_ context.Context, data []byte) error {
	return s.put(kvPrefix+kvKeyUsage, data)
}

// GetUsageStats returns the usage stats blob, or nil when absent.
func (s *MemoryStore) GetUsageStats(_ context.Context) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.entries[kvPrefix+kvKeyUsage], nil
}

// SaveSearchIndex stores the full snapshot.
func (s *MemoryStore) SaveSearchIndex(_ context.Context, snap *models.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	return s.put(kvPrefix+kvKeySnapshot, data)
}

// LoadSearchIndex returns the persisted snapshot, or nil when absent.
func (s *MemoryStore) LoadSearchIndex(_ context.Context) (*models.Snapshot, error) {
	s.mu.RLock()
	data := s.entries[kvPrefix+kvKeySnapshot]
	s.mu.RUnlock()
	if len(data) == 0 {
		return nil, nil
	}
	var snap models.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return &snap, nil
}

// Stats returns the entry count; there is no disk footprint.
func (s *MemoryStore) Stats(_ context.Context) (Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Stats{Backend: s.Name(), Keys: len(s.entries)}, nil
}

// Close marks the store closed.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *MemoryStore) put(key string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	s.entries[key] = cp
	return nil
}

func (s *MemoryStore) removePrefix(prefix string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key := range s.entries {
		if strings.HasPrefix(key, prefix) {
			delete(s.entries, key)
		}
	}
	return nil
}
