package service

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/hoshizora/tansaku/internal/config"
	"github.com/hoshizora/tansaku/internal/models"
	"github.com/hoshizora/tansaku/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeVault is an in-memory host.Vault for service tests.
type fakeVault struct {
	mu    sync.Mutex
	files map[string]*fakeFile
}

type fakeFile struct {
	content string
	modTime int64
}

func newFakeVault() *fakeVault {
	return &fakeVault{files: make(map[string]*fakeFile)}
}

func (v *fakeVault) write(path, content string, modTime int64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.files[path] = &fakeFile{content: content, modTime: modTime}
}

func (v *fakeVault) ReadFileContent(_ context.Context, path string) (string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	f, ok := v.files[path]
	if !ok {
		return "", store.ErrNotFound
	}
	return f.content, nil
}

func (v *fakeVault) GetFileMetadata(_ context.Context, path string) (*models.FileMeta, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	f, ok := v.files[path]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &models.FileMeta{Path: path, Size: int64(len(f.content)), ModTime: f.modTime}, nil
}

func (v *fakeVault) ListAllFiles(_ context.Context) ([]string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	paths := make([]string, 0, len(v.files))
	for p := range v.files {
		paths = append(paths, p)
	}
	return paths, nil
}

func (v *fakeVault) resolve(path string) *models.FileMeta {
	meta, err := v.GetFileMetadata(context.Background(), path)
	if err != nil {
		return nil
	}
	return meta
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	// Fast scheduling so tests never wait on production delays.
	cfg.Indexing.DebounceMs = 1
	cfg.Indexing.InterFileDelayMs = 1
	cfg.Indexing.InterBatchDelayMs = 1
	return cfg
}

func newTestService(t *testing.T, v *fakeVault) *Service {
	t.Helper()
	svc := New(testConfig(), v, v.resolve, WithStore(store.NewMemoryStore()))
	t.Cleanup(func() { svc.Close() })
	return svc
}

// waitIndexed blocks until the service has n documents indexed.
func waitIndexed(t *testing.T, svc *Service, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return svc.idx.Stats().DocumentCount >= n
	}, 5*time.Second, 5*time.Millisecond, "indexing never reached %d documents", n)
}

func TestSearchBeforeInitialize(t *testing.T) {
	svc := New(testConfig(), newFakeVault(), nil, WithStore(store.NewMemoryStore()))

	_, err := svc.Search(context.Background(), "query", 10)
	assert.ErrorIs(t, err, ErrNotReady)

	err = svc.SearchStream(context.Background(), "query", 10, StreamOptions{
		OnChunk: func([]*models.RankedResult, bool) {},
	})
	assert.ErrorIs(t, err, ErrNotReady)

	_, err = svc.GetSearchStats(context.Background())
	assert.ErrorIs(t, err, ErrNotReady)
}

func TestInitializeAndSearch(t *testing.T) {
	v := newFakeVault()
	v.write("recipes/bread.md", "sourdough bread baking notes", 100)
	v.write("recipes/soup.md", "pumpkin soup with bread croutons", 100)
	v.write("unrelated.md", "tax documents", 100)

	svc := newTestService(t, v)
	require.NoError(t, svc.Initialize(context.Background()))
	// Initialize is idempotent.
	require.NoError(t, svc.Initialize(context.Background()))
	waitIndexed(t, svc, 3)

	results, err := svc.Search(context.Background(), "bread", 10)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, 1, results[0].Rank)
	assert.Equal(t, 2, results[1].Rank)
	assert.Greater(t, results[0].CombinedScore, 0.0)
	// Content scores are normalized against the batch best.
	assert.InDelta(t, 1.0, results[0].ContentScore, 1e-9)

	results, err = svc.Search(context.Background(), "zzzmissing", 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestUsageBoostsRanking(t *testing.T) {
	v := newFakeVault()
	v.write("a.md", "identical keyword text", 100)
	v.write("b.md", "identical keyword text", 100)

	svc := newTestService(t, v)
	require.NoError(t, svc.Initialize(context.Background()))
	waitIndexed(t, svc, 2)

	// Equal content relevance; usage history breaks the tie.
	for i := 0; i < 5; i++ {
		svc.RecordFileAccess("b.md")
	}
	results, err := svc.Search(context.Background(), "keyword", 10)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "b.md", results[0].ID)
	assert.Greater(t, results[0].UsageScore, results[1].UsageScore)
}

func TestBouncePenalizesRanking(t *testing.T) {
	v := newFakeVault()
	v.write("a.md", "identical keyword text", 100)
	v.write("b.md", "identical keyword text", 100)

	svc := newTestService(t, v)
	require.NoError(t, svc.Initialize(context.Background()))
	waitIndexed(t, svc, 2)

	// Both opened once from search; a.md takes a bounce.
	svc.RecordSearchSelection("keyword", "b.md")
	svc.RecordSearchModalOpen() // quick reopen: bounce against b.md
	results, err := svc.Search(context.Background(), "keyword", 10)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "a.md", results[1].ID) // b.md opened recently, still competitive
	// The bounced document's combined score carries the multiplicative penalty.
	bounced := results[0]
	if bounced.ID != "b.md" {
		bounced = results[1]
	}
	assert.Greater(t, svc.tracker.BounceScore("b.md"), 0.0)
	_ = bounced
}

func TestSearchStreamChunks(t *testing.T) {
	v := newFakeVault()
	for _, p := range []string{"a.md", "b.md", "c.md", "d.md"} {
		v.write(p, "streaming content", 100)
	}
	svc := newTestService(t, v)
	require.NoError(t, svc.Initialize(context.Background()))
	waitIndexed(t, svc, 4)

	var chunks int
	var doneCalls int
	var final []*models.RankedResult
	err := svc.SearchStream(context.Background(), "streaming", 10, StreamOptions{
		ChunkSize: 2,
		OnChunk: func(results []*models.RankedResult, done bool) {
			chunks++
			if done {
				doneCalls++
				final = results
			}
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, doneCalls, "done must fire exactly once")
	assert.GreaterOrEqual(t, chunks, 2)
	require.Len(t, final, 4)
	for i, r := range final {
		assert.Equal(t, i+1, r.Rank)
	}
}

func TestSearchStreamCancellation(t *testing.T) {
	v := newFakeVault()
	for _, p := range []string{"a.md", "b.md", "c.md", "d.md"} {
		v.write(p, "streaming content", 100)
	}
	svc := newTestService(t, v)
	require.NoError(t, svc.Initialize(context.Background()))
	waitIndexed(t, svc, 4)

	ctx, cancel := context.WithCancel(context.Background())
	var doneCalls int
	err := svc.SearchStream(ctx, "streaming", 10, StreamOptions{
		ChunkSize: 1,
		OnChunk: func(results []*models.RankedResult, done bool) {
			if done {
				doneCalls++
				return
			}
			// Cancel mid-stream; no further non-final chunks may arrive.
			cancel()
		},
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, doneCalls, "cancellation still delivers the final partial chunk")
}

func TestSearchStreamRequiresCallback(t *testing.T) {
	v := newFakeVault()
	svc := newTestService(t, v)
	require.NoError(t, svc.Initialize(context.Background()))
	err := svc.SearchStream(context.Background(), "q", 10, StreamOptions{})
	assert.Error(t, err)
}

func TestValidateCache(t *testing.T) {
	v := newFakeVault()
	v.write("a.md", "content a", 100)
	v.write("b.md", "content b", 100)
	svc := newTestService(t, v)

	valid := &models.Snapshot{
		Version:            models.SnapshotVersion,
		Stats:              models.IndexStats{DocumentCount: 2, LastUpdated: 500},
		TermFrequencyIndex: json.RawMessage(`{"version":2}`),
	}
	assert.True(t, svc.validateCache(context.Background(), valid))

	tests := []struct {
		name   string
		mutate func(*models.Snapshot)
	}{
		{"nil snapshot", nil},
		{"wrong version", func(s *models.Snapshot) { s.Version = 1 }},
		{"no timestamp", func(s *models.Snapshot) { s.Stats.LastUpdated = 0 }},
		{"missing tfi", func(s *models.Snapshot) { s.TermFrequencyIndex = nil }},
		{"count drift", func(s *models.Snapshot) { s.Stats.DocumentCount = 10 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.mutate == nil {
				assert.False(t, svc.validateCache(context.Background(), nil))
				return
			}
			snap := *valid
			tt.mutate(&snap)
			assert.False(t, svc.validateCache(context.Background(), &snap))
		})
	}

	// A file modified after the snapshot invalidates it.
	v.write("a.md", "edited later", 900)
	assert.False(t, svc.validateCache(context.Background(), valid))
}

func TestSnapshotRestoreOnInitialize(t *testing.T) {
	v := newFakeVault()
	v.write("a.md", "persisted alpha", 100)
	v.write("b.md", "persisted beta", 100)

	// First service run builds and saves the snapshot.
	cs := store.NewMemoryStore()
	first := New(testConfig(), v, v.resolve, WithStore(cs))
	require.NoError(t, first.Initialize(context.Background()))
	require.Eventually(t, func() bool {
		return first.idx.Stats().DocumentCount == 2
	}, 5*time.Second, 5*time.Millisecond)
	require.NoError(t, first.saveSnapshot(context.Background()))

	// Second run against the same store restores without a full rebuild.
	second := New(testConfig(), v, v.resolve, WithStore(cs))
	t.Cleanup(func() { second.Close() })
	require.NoError(t, second.Initialize(context.Background()))

	results, err := second.Search(context.Background(), "persisted", 10)
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestClearAllData(t *testing.T) {
	v := newFakeVault()
	v.write("a.md", "some content", 100)
	svc := newTestService(t, v)
	require.NoError(t, svc.Initialize(context.Background()))
	waitIndexed(t, svc, 1)
	svc.RecordFileAccess("a.md")

	require.NoError(t, svc.ClearAllData(context.Background()))
	assert.Equal(t, 0, svc.idx.Stats().DocumentCount)
	assert.Zero(t, svc.tracker.UsageScore("a.md"))
	all, err := svc.cs.AllMetadata(context.Background())
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestRebuildIndex(t *testing.T) {
	v := newFakeVault()
	v.write("a.md", "original content", 100)
	svc := newTestService(t, v)
	require.NoError(t, svc.Initialize(context.Background()))
	waitIndexed(t, svc, 1)

	v.write("b.md", "added after initial build", 100)
	require.NoError(t, svc.RebuildIndex(context.Background()))

	results, err := svc.Search(context.Background(), "added", 10)
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestUpdateSettingsRelevantChangeRebuilds(t *testing.T) {
	v := newFakeVault()
	v.write("a.md", "résumé notes", 100)
	svc := newTestService(t, v)
	require.NoError(t, svc.Initialize(context.Background()))
	waitIndexed(t, svc, 1)

	newSearch := svc.cfg.Search
	newSearch.FoldAccents = true
	svc.UpdateSettings(newSearch)

	// After the async rebuild, the folded query form matches.
	require.Eventually(t, func() bool {
		results, err := svc.Search(context.Background(), "resume", 10)
		return err == nil && len(results) == 1
	}, 5*time.Second, 10*time.Millisecond)
}

func TestUpdateSettingsIrrelevantChangeKeepsIndex(t *testing.T) {
	v := newFakeVault()
	v.write("a.md", "stable content", 100)
	svc := newTestService(t, v)
	require.NoError(t, svc.Initialize(context.Background()))
	waitIndexed(t, svc, 1)

	newSearch := svc.cfg.Search
	newSearch.DefaultLimit = 25
	svc.UpdateSettings(newSearch)

	assert.Equal(t, 1, svc.idx.Stats().DocumentCount)
	assert.Equal(t, 25, svc.cfg.Search.DefaultLimit)
}

func TestFileEvents(t *testing.T) {
	v := newFakeVault()
	v.write("a.md", "first file", 100)
	svc := newTestService(t, v)
	require.NoError(t, svc.Initialize(context.Background()))
	waitIndexed(t, svc, 1)

	v.write("b.md", "second file arrives", 100)
	svc.OnCreate("b.md")
	require.Eventually(t, func() bool {
		return svc.idx.HasDocument("b.md")
	}, 5*time.Second, 5*time.Millisecond)

	svc.OnDelete("a.md")
	assert.False(t, svc.idx.HasDocument("a.md"))

	v.write("c.md", "second file arrives", 100)
	v.mu.Lock()
	delete(v.files, "b.md")
	v.mu.Unlock()
	svc.OnRename("b.md", "c.md")
	assert.False(t, svc.idx.HasDocument("b.md"))
	assert.True(t, svc.idx.HasDocument("c.md"))

	errs := svc.GetIndexingProgress()
	assert.Zero(t, errs.Errors)
}

func TestGetSearchStats(t *testing.T) {
	v := newFakeVault()
	v.write("a.md", "content", 100)
	svc := newTestService(t, v)
	require.NoError(t, svc.Initialize(context.Background()))
	waitIndexed(t, svc, 1)

	_, err := svc.Search(context.Background(), "content", 10)
	require.NoError(t, err)

	stats, err := svc.GetSearchStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Index.DocumentCount)
	assert.Equal(t, "memory", stats.Storage.Backend)
	assert.Contains(t, stats.RecentQueries, "content")
}
