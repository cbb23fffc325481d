// Package service is the top-level search façade: initialization and cache
// validation sequencing, query execution, settings application, and
// statistics.
package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/hoshizora/tansaku/internal/analysis"
	"github.com/hoshizora/tansaku/internal/config"
	"github.com/hoshizora/tansaku/internal/coordinator"
	"github.com/hoshizora/tansaku/internal/host"
	"github.com/hoshizora/tansaku/internal/index"
	"github.com/hoshizora/tansaku/internal/models"
	"github.com/hoshizora/tansaku/internal/ranking"
	"github.com/hoshizora/tansaku/internal/schedule"
	"github.com/hoshizora/tansaku/internal/store"
	"github.com/hoshizora/tansaku/internal/usage"
	"go.uber.org/zap"
)

// ErrNotReady is returned for queries before initialization completes.
// Calling search too early is an integration bug, not a data condition.
var ErrNotReady = errors.New("search service not ready")

// Service states.
const (
	stateUninitialized int32 = iota
	stateInitializing
	stateReady
)

const (
	saveKey = "snapshot-save"
	// saveDebounce coalesces snapshot writes after discrete file events.
	saveDebounce = 2 * time.Second
	// cacheSampleSize caps how many files the cache validator stats.
	cacheSampleSize = 50
)

// Service owns the inverted index, TFI, usage tracker, scorer and
// persistence instances, and wires host file events into the coordinator.
type Service struct {
	cfg     *config.Config
	vault   host.Vault
	resolve host.FileResolver
	logger  *zap.Logger

	state      atomic.Int32
	instanceID string

	mu      sync.RWMutex
	idx     *index.Index
	coord   *coordinator.Coordinator
	cs      store.ContentStore
	tracker *usage.Tracker
	scorer  *ranking.Scorer
	links   *ranking.LinkRank
	sched   schedule.Scheduler
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithLogger sets a logger.
func WithLogger(l *zap.Logger) ServiceOption {
	return func(s *Service) { s.logger = l }
}

// WithScheduler replaces the save-debounce scheduler (tests).
func WithScheduler(sc schedule.Scheduler) ServiceOption {
	return func(s *Service) { s.sched = sc }
}

// WithStore injects a pre-opened content store, bypassing the fallback
// chain (tests).
func WithStore(cs store.ContentStore) ServiceOption {
	return func(s *Service) { s.cs = cs }
}

// New creates an uninitialized service. resolve may be nil.
func New(cfg *config.Config, vault host.Vault, resolve host.FileResolver, opts ...ServiceOption) *Service {
	s := &Service{
		cfg:        cfg,
		vault:      vault,
		resolve:    resolve,
		logger:     zap.NewNop(),
		instanceID: uuid.NewString(),
		sched:      schedule.NewTimerScheduler(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Initialize brings the service to Ready: persistence, coordinator,
// snapshot load, cache validation, then background full-vault indexing.
// Idempotent; a second call returns immediately. Ready does not wait on
// bulk indexing, so queries run against a partially built or stale-but-valid
// index while indexing continues.
func (s *Service) Initialize(ctx context.Context) error {
	if !s.state.CompareAndSwap(stateUninitialized, stateInitializing) {
		return nil
	}

	s.mu.Lock()
	if s.cs == nil {
		cs, err := store.OpenFirst(store.Options{
			DataDir:       s.cfg.Storage.DataDir,
			Backends:      s.cfg.Storage.Backends,
			MaxShardBytes: s.cfg.Storage.MaxShardBytes,
		}, s.logger)
		if err != nil {
			s.mu.Unlock()
			s.state.Store(stateUninitialized)
			return fmt.Errorf("initialize persistence: %w", err)
		}
		s.cs = cs
	}

	tok, syn := s.buildAnalysis()
	s.idx = index.New(tok, syn, index.Options{
		TypoTolerance:     s.cfg.Search.TypoTolerance,
		MaxIndexedContent: s.cfg.Search.MaxIndexedContent,
	}, index.WithLogger(s.logger))

	s.tracker = usage.NewTracker(s.cs, usage.Options{
		RecencyHalfLife: time.Duration(s.cfg.Usage.RecencyHalfLifeDays * float64(24*time.Hour)),
		BounceThreshold: time.Duration(s.cfg.Usage.BounceThresholdMs) * time.Millisecond,
		BounceDecay:     time.Duration(s.cfg.Usage.BounceDecayDays * float64(24*time.Hour)),
		SaveDebounce:    time.Duration(s.cfg.Usage.SaveDebounceMs) * time.Millisecond,
		MaxQueryHistory: s.cfg.Usage.MaxQueryHistory,
	}, usage.WithLogger(s.logger))
	if err := s.tracker.Load(ctx); err != nil {
		s.logger.Warn("usage stats load failed", zap.Error(err))
	}

	s.scorer = ranking.NewScorer(s.cfg.Ranking)
	s.links = ranking.NewLinkRank()

	s.coord = coordinator.New(s.vault, s.resolve, s.idx, s.cs, coordinator.Options{
		Debounce:        time.Duration(s.cfg.Indexing.DebounceMs) * time.Millisecond,
		MaxFileSize:     s.cfg.Indexing.MaxFileSize,
		BatchSize:       s.cfg.Indexing.BatchSize,
		InterFileDelay:  time.Duration(s.cfg.Indexing.InterFileDelayMs) * time.Millisecond,
		InterBatchDelay: time.Duration(s.cfg.Indexing.InterBatchDelayMs) * time.Millisecond,
		SaveEvery:       s.cfg.Indexing.SaveEvery,
		ScanWorkers:     s.cfg.Indexing.ScanWorkers,
	}, coordinator.WithLogger(s.logger), coordinator.WithSaveHook(s.requestSave))

	snap, err := s.cs.LoadSearchIndex(ctx)
	if err != nil {
		s.logger.Warn("snapshot load failed, rebuilding", zap.Error(err))
		snap = nil
	}
	if s.validateCache(ctx, snap) && s.idx.LoadFromData(snap.Index, snap.TermFrequencyIndex) {
		s.logger.Info("index restored from snapshot",
			zap.Int("documents", snap.Stats.DocumentCount))
	} else if snap != nil {
		// Rejected snapshots clear both the index and the metadata store so
		// staleness detection starts from a consistent state, never a
		// half-old-half-new hybrid.
		s.idx.Clear()
		if err := s.cs.ClearMetadata(ctx); err != nil {
			s.logger.Warn("metadata clear failed", zap.Error(err))
		}
		s.logger.Info("snapshot rejected, full reindex scheduled")
	}
	s.mu.Unlock()

	s.state.Store(stateReady)

	// Fire-and-forget bulk indexing; Ready does not wait on it.
	go func() {
		if err := s.coord.ReindexAll(context.Background()); err != nil {
			s.logger.Warn("background indexing failed", zap.Error(err))
		}
		s.links.Recompute(s.idx.Documents())
	}()
	return nil
}

func (s *Service) buildAnalysis() (*analysis.Tokenizer, *analysis.SynonymMap) {
	tok := analysis.NewTokenizer(analysis.Options{
		FoldAccents:    s.cfg.Search.FoldAccents,
		EnableStemming: s.cfg.Search.EnableStemming,
	})
	return tok, analysis.NewSynonymMap(s.cfg.Search.Synonyms, tok)
}

// validateCache decides whether a persisted snapshot can be trusted.
// Rejects when the snapshot lacks a timestamp or TFI payload, when the live
// file count drifted beyond max(1, 10%), or when any sampled file was
// modified after the snapshot. Sampling strides evenly across up to 50
// files so a large vault gets spot checks over its whole range.
func (s *Service) validateCache(ctx context.Context, snap *models.Snapshot) bool {
	if snap == nil || snap.Version != models.SnapshotVersion {
		return false
	}
	if snap.Stats.LastUpdated == 0 || len(snap.TermFrequencyIndex) == 0 {
		return false
	}

	paths, err := s.vault.ListAllFiles(ctx)
	if err != nil {
		return false
	}
	drift := len(paths) - snap.Stats.DocumentCount
	if drift < 0 {
		drift = -drift
	}
	allowed := len(paths) / 10
	if allowed < 1 {
		allowed = 1
	}
	if drift > allowed {
		return false
	}

	stride := 1
	if len(paths) > cacheSampleSize {
		stride = len(paths) / cacheSampleSize
	}
	for i := 0; i < len(paths); i += stride {
		meta, err := s.vault.GetFileMetadata(ctx, paths[i])
		if err != nil {
			continue
		}
		if meta.ModTime > snap.Stats.LastUpdated {
			return false
		}
	}
	return true
}

// ready reports whether the service accepts queries.
func (s *Service) ready() bool {
	return s.state.Load() == stateReady
}

func (s *Service) clampLimit(limit int) int {
	s.mu.RLock()
	def, max := s.cfg.Search.DefaultLimit, s.cfg.Search.MaxLimit
	s.mu.RUnlock()
	if limit <= 0 {
		limit = def
	}
	if limit > max {
		limit = max
	}
	return limit
}

// Search runs a query and returns combined-score-ranked results. The index
// is asked for twice the requested limit so re-ranking can change which hits
// make the final cut. Returns ErrNotReady before initialization completes.
func (s *Service) Search(ctx context.Context, query string, limit int) ([]*models.RankedResult, error) {
	if !s.ready() {
		return nil, ErrNotReady
	}
	limit = s.clampLimit(limit)

	raw := s.idx.Search(query, 2*limit)
	ranked := s.rankAll(query, raw)
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	for i := range ranked {
		ranked[i].Rank = i + 1
	}
	s.tracker.RecordSearch(query)
	return ranked, nil
}

// StreamOptions configure SearchStream.
type StreamOptions struct {
	// ChunkSize is how many scored hits accumulate between emissions;
	// 0 uses the configured default.
	ChunkSize int
	// OnChunk receives the best-so-far top results. done is true exactly
	// once, on the final call, including after cancellation with whatever
	// partial results exist.
	OnChunk func(results []*models.RankedResult, done bool)
}

// SearchStream scores hits incrementally, emitting partial best-so-far
// results every chunk and yielding between chunks. Cancellation via ctx is
// honored at each chunk boundary: no further chunks fire except the final
// done call with partial results.
func (s *Service) SearchStream(ctx context.Context, query string, limit int, opts StreamOptions) error {
	if !s.ready() {
		return ErrNotReady
	}
	if opts.OnChunk == nil {
		return errors.New("OnChunk callback is required")
	}
	limit = s.clampLimit(limit)
	chunkSize := opts.ChunkSize
	if chunkSize <= 0 {
		s.mu.RLock()
		chunkSize = s.cfg.Search.StreamChunkSize
		s.mu.RUnlock()
	}

	if ctx.Err() != nil {
		opts.OnChunk(nil, true)
		return ctx.Err()
	}

	raw := s.idx.Search(query, 2*limit)
	maxScore := maxRawScore(raw)

	var scored []*models.RankedResult
	emit := func(done bool) {
		top := make([]*models.RankedResult, len(scored))
		copy(top, scored)
		sort.Slice(top, func(i, j int) bool { return top[i].CombinedScore > top[j].CombinedScore })
		if len(top) > limit {
			top = top[:limit]
		}
		for i := range top {
			top[i].Rank = i + 1
		}
		opts.OnChunk(top, done)
	}

	for i, hit := range raw {
		scored = append(scored, s.rankOne(query, hit, maxScore))
		if (i+1)%chunkSize == 0 {
			if ctx.Err() != nil {
				emit(true)
				return ctx.Err()
			}
			emit(false)
		}
	}
	emit(true)
	s.tracker.RecordSearch(query)
	return nil
}

// rankAll scores raw hits and sorts them by combined score.
func (s *Service) rankAll(query string, raw []*models.SearchResult) []*models.RankedResult {
	maxScore := maxRawScore(raw)
	ranked := make([]*models.RankedResult, 0, len(raw))
	for _, hit := range raw {
		ranked = append(ranked, s.rankOne(query, hit, maxScore))
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].CombinedScore != ranked[j].CombinedScore {
			return ranked[i].CombinedScore > ranked[j].CombinedScore
		}
		return ranked[i].ID < ranked[j].ID
	})
	return ranked
}

// rankOne computes the combined score for one hit. Raw index scores are
// normalized against the best hit in the batch so the scorer sees [0,1].
func (s *Service) rankOne(query string, hit *models.SearchResult, maxScore float64) *models.RankedResult {
	contentScore := 0.0
	if maxScore > 0 {
		contentScore = hit.Score / maxScore
	}
	usageScore := s.tracker.UsageScore(hit.ID)
	recencyScore := s.tracker.RecencyScore(hit.ID)
	combined := s.scorer.CombinedScore(ranking.Inputs{
		Query:        query,
		ContentScore: contentScore,
		UsageScore:   usageScore,
		RecencyScore: recencyScore,
		LinkScore:    s.links.Score(hit.ID),
		BounceScore:  s.tracker.BounceScore(hit.ID),
		LastOpened:   s.tracker.LastOpened(hit.ID),
	})
	return &models.RankedResult{
		SearchResult:  *hit,
		CombinedScore: combined,
		ContentScore:  contentScore,
		UsageScore:    usageScore,
		RecencyScore:  recencyScore,
		LastOpened:    s.tracker.LastOpened(hit.ID),
	}
}

func maxRawScore(raw []*models.SearchResult) float64 {
	max := 0.0
	for _, hit := range raw {
		if hit.Score > max {
			max = hit.Score
		}
	}
	return max
}

// OnCreate handles a host file-create event.
func (s *Service) OnCreate(path string) {
	if !s.ready() {
		return
	}
	s.coord.ScheduleFileUpdate(path, "create")
}

// OnModify handles a host file-modify event.
func (s *Service) OnModify(path string) {
	if !s.ready() {
		return
	}
	s.coord.ScheduleFileUpdate(path, "modify")
}

// OnDelete handles a host file-delete event. Deletes run even while
// indexing is paused.
func (s *Service) OnDelete(path string) {
	if !s.ready() {
		return
	}
	s.coord.RemoveFile(context.Background(), path)
}

// OnRename handles a host rename event as remove-old + add-new.
func (s *Service) OnRename(oldPath, newPath string) {
	if !s.ready() {
		return
	}
	s.coord.RenameFile(context.Background(), oldPath, newPath)
}

// TriggerVaultIndexing starts a full-vault rescan in the background.
func (s *Service) TriggerVaultIndexing() {
	if !s.ready() {
		return
	}
	go func() {
		if err := s.coord.ReindexAll(context.Background()); err != nil {
			s.logger.Warn("vault indexing failed", zap.Error(err))
		}
		s.links.Recompute(s.idx.Documents())
	}()
}

// RecordFileAccess records a plain file open for usage scoring.
func (s *Service) RecordFileAccess(path string) {
	if s.tracker != nil {
		s.tracker.RecordFileOpen(path)
	}
}

// RecordSearchSelection records that the user opened path from the results
// of query, arming bounce detection.
func (s *Service) RecordSearchSelection(query, path string) {
	if s.tracker != nil {
		s.tracker.RecordSearchResultOpen(path, query)
	}
}

// RecordSearchModalOpen notes the search UI reopening; a quick reopen after
// a selection counts as a bounce against the selected path.
func (s *Service) RecordSearchModalOpen() {
	if s.tracker != nil {
		s.tracker.RecordSearchModalOpen()
	}
}

// PauseIndexing sets the coordinator pause flag. Delete operations still run.
func (s *Service) PauseIndexing() {
	if s.coord != nil {
		s.coord.Pause()
	}
}

// ResumeIndexing clears the pause flag.
func (s *Service) ResumeIndexing() {
	if s.coord != nil {
		s.coord.Resume()
	}
}

// GetIndexingProgress returns the coordinator's bulk-indexing progress.
func (s *Service) GetIndexingProgress() models.IndexingProgress {
	if s.coord == nil {
		return models.IndexingProgress{}
	}
	return s.coord.Progress()
}

// SearchStats aggregates index, storage and usage statistics.
type SearchStats struct {
	Index         models.IndexStats `json:"index"`
	Storage       store.Stats       `json:"storage"`
	RecentQueries []string          `json:"recent_queries,omitempty"`
}

// GetSearchStats returns current statistics.
func (s *Service) GetSearchStats(ctx context.Context) (*SearchStats, error) {
	if !s.ready() {
		return nil, ErrNotReady
	}
	storeStats, err := s.cs.Stats(ctx)
	if err != nil {
		return nil, err
	}
	return &SearchStats{
		Index:         s.idx.Stats(),
		Storage:       storeStats,
		RecentQueries: s.tracker.RecentQueries(10),
	}, nil
}

// UpdateSettings merges new search settings. When matching-relevant options
// changed (typo tolerance, accent folding, stemming, or the synonym set)
// the index is rebuilt asynchronously: previously indexed terms are no
// longer comparable to newly processed query terms.
func (s *Service) UpdateSettings(newSearch config.SearchConfig) {
	s.mu.Lock()
	rebuild := config.MatchingRelevant(&s.cfg.Search, &newSearch)
	s.cfg.Search = newSearch
	if rebuild && s.ready() {
		tok, syn := s.buildAnalysis()
		s.idx.SetOptions(tok, syn, index.Options{
			TypoTolerance:     newSearch.TypoTolerance,
			MaxIndexedContent: newSearch.MaxIndexedContent,
		})
	}
	s.mu.Unlock()

	if rebuild && s.ready() {
		go func() {
			if err := s.RebuildIndex(context.Background()); err != nil {
				s.logger.Warn("settings rebuild failed", zap.Error(err))
			}
		}()
	}
}

// RebuildIndex clears the index and metadata store and reindexes the vault.
func (s *Service) RebuildIndex(ctx context.Context) error {
	if !s.ready() {
		return ErrNotReady
	}
	s.idx.Clear()
	if err := s.cs.ClearMetadata(ctx); err != nil {
		return fmt.Errorf("clear metadata: %w", err)
	}
	if err := s.coord.ReindexAll(ctx); err != nil {
		return err
	}
	s.links.Recompute(s.idx.Documents())
	s.requestSave(true)
	return nil
}

// ClearAllData drops the index, stored content, metadata and usage stats.
func (s *Service) ClearAllData(ctx context.Context) error {
	if !s.ready() {
		return ErrNotReady
	}
	s.idx.Clear()
	s.tracker.Clear()
	if err := s.cs.Clear(ctx); err != nil {
		return err
	}
	if err := s.cs.ClearMetadata(ctx); err != nil {
		return err
	}
	s.requestSave(true)
	return nil
}

// requestSave persists the snapshot, debounced unless force is set.
// A failed write is retried by the next debounced save.
func (s *Service) requestSave(force bool) {
	if force {
		s.sched.Cancel(saveKey)
		if err := s.saveSnapshot(context.Background()); err != nil {
			s.logger.Warn("snapshot save failed", zap.Error(err))
		}
		return
	}
	s.sched.Schedule(saveKey, saveDebounce, func() {
		if err := s.saveSnapshot(context.Background()); err != nil {
			s.logger.Warn("snapshot save failed", zap.Error(err))
		}
	})
}

func (s *Service) saveSnapshot(ctx context.Context) error {
	indexData, err := s.idx.Serialize()
	if err != nil {
		return err
	}
	tfiData, err := s.idx.TFI().Serialize()
	if err != nil {
		return err
	}
	docs, err := s.cs.AllMetadata(ctx)
	if err != nil {
		return err
	}
	snap := &models.Snapshot{
		Version:            models.SnapshotVersion,
		Index:              indexData,
		Documents:          docs,
		Stats:              s.idx.Stats(),
		TermFrequencyIndex: tfiData,
		InstanceID:         s.instanceID,
	}
	return s.cs.SaveSearchIndex(ctx, snap)
}

// Close flushes pending state and releases the store.
func (s *Service) Close() error {
	if s.coord != nil {
		s.coord.CancelAll()
	}
	s.sched.CancelAll()
	if s.tracker != nil {
		if err := s.tracker.Close(); err != nil {
			s.logger.Warn("usage flush failed", zap.Error(err))
		}
	}
	if s.cs == nil {
		return nil
	}
	if s.ready() {
		if err := s.saveSnapshot(context.Background()); err != nil {
			s.logger.Warn("final snapshot save failed", zap.Error(err))
		}
	}
	return s.cs.Close()
}
