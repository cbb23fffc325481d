// Package coordinator orchestrates per-file indexing: debouncing, change
// detection, rename handling, and idle-yielding bulk reindex scheduling.
package coordinator

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/hoshizora/tansaku/internal/host"
	"github.com/hoshizora/tansaku/internal/index"
	"github.com/hoshizora/tansaku/internal/models"
	"github.com/hoshizora/tansaku/internal/schedule"
	"github.com/hoshizora/tansaku/internal/store"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Options hold the coordinator scheduling knobs.
type Options struct {
	Debounce       time.Duration
	MaxFileSize    int64
	BatchSize      int
	InterFileDelay time.Duration
	InterBatchDelay time.Duration
	// SaveEvery forces a snapshot save after this many processed documents
	// during bulk indexing.
	SaveEvery int
	// ScanWorkers bounds the concurrent needs-indexing checks.
	ScanWorkers int
}

func (o *Options) applyDefaults() {
	if o.Debounce == 0 {
		o.Debounce = 500 * time.Millisecond
	}
	if o.MaxFileSize == 0 {
		o.MaxFileSize = 512 << 10
	}
	if o.BatchSize == 0 {
		o.BatchSize = 3
	}
	if o.InterFileDelay == 0 {
		o.InterFileDelay = 100 * time.Millisecond
	}
	if o.InterBatchDelay == 0 {
		o.InterBatchDelay = 300 * time.Millisecond
	}
	if o.SaveEvery == 0 {
		o.SaveEvery = 50
	}
	if o.ScanWorkers == 0 {
		o.ScanWorkers = 8
	}
}

// largePendingThreshold switches bulk indexing into the aggressive profile:
// doubled batches, halved delays.
const largePendingThreshold = 200

// Coordinator drives the inverted index from host file events. Per-path
// debouncing guarantees at most one in-flight index operation per path; a
// burst of edits collapses into one reindex of the final content.
type Coordinator struct {
	vault   host.Vault
	resolve host.FileResolver
	idx     *index.Index
	cs      store.ContentStore
	sched   schedule.Scheduler
	yield   schedule.Yielder
	opts    Options
	logger  *zap.Logger

	paused atomic.Bool
	// onSave is invoked after index mutations; force requests an immediate
	// snapshot save instead of a debounced one.
	onSave func(force bool)

	mu                 sync.Mutex
	progress           models.IndexingProgress
	processedSinceSave int
}

// CoordinatorOption configures a Coordinator.
type CoordinatorOption func(*Coordinator)

// WithLogger sets a logger for debug output.
func WithLogger(l *zap.Logger) CoordinatorOption {
	return func(c *Coordinator) { c.logger = l }
}

// WithScheduler replaces the debounce scheduler (tests).
func WithScheduler(s schedule.Scheduler) CoordinatorOption {
	return func(c *Coordinator) { c.sched = s }
}

// WithYielder replaces the idle-yield primitive (tests).
func WithYielder(y schedule.Yielder) CoordinatorOption {
	return func(c *Coordinator) { c.yield = y }
}

// WithSaveHook sets the snapshot-save callback.
func WithSaveHook(fn func(force bool)) CoordinatorOption {
	return func(c *Coordinator) { c.onSave = fn }
}

// New creates a coordinator. resolve may be nil; renames then degrade to
// plain removals.
func New(vault host.Vault, resolve host.FileResolver, idx *index.Index, cs store.ContentStore, opts Options, cos ...CoordinatorOption) *Coordinator {
	opts.applyDefaults()
	c := &Coordinator{
		vault:   vault,
		resolve: resolve,
		idx:     idx,
		cs:      cs,
		sched:   schedule.NewTimerScheduler(),
		yield:   schedule.SleepYielder{},
		opts:    opts,
		logger:  zap.NewNop(),
		onSave:  func(bool) {},
	}
	for _, o := range cos {
		o(c)
	}
	return c
}

// Pause stops bulk indexing before the next file and suppresses debounced
// index work. Deletes are never paused; the index must not drift from the
// live file set.
func (c *Coordinator) Pause() { c.paused.Store(true) }

// Resume clears the pause flag.
func (c *Coordinator) Resume() { c.paused.Store(false) }

// Paused reports the pause flag.
func (c *Coordinator) Paused() bool { return c.paused.Load() }

// Progress returns a copy of the bulk-indexing progress.
func (c *Coordinator) Progress() models.IndexingProgress {
	c.mu.Lock()
	defer c.mu.Unlock()
	p := c.progress
	p.Paused = c.paused.Load()
	return p
}

// IndexFile debounces an index operation for path. Re-arming cancels the
// pending timer, so rapid edits collapse into one reindex of the final
// content. content may be empty; it is then read from the vault on fire.
func (c *Coordinator) IndexFile(path, content string) {
	c.sched.Schedule(path, c.opts.Debounce, func() {
		if c.paused.Load() {
			return
		}
		ctx := context.Background()
		if _, err := c.indexNow(ctx, path, content, content != ""); err != nil {
			// Contained per-file: the next triggering event retries.
			c.logger.Warn("index file failed", zap.String("path", path), zap.Error(err))
			return
		}
		c.onSave(false)
	})
}

// RemoveFile cancels pending work for path and removes it from the index,
// the content store and the metadata table.
func (c *Coordinator) RemoveFile(ctx context.Context, path string) {
	c.sched.Cancel(path)
	c.idx.RemoveDocument(path)
	if err := c.cs.Delete(ctx, path); err != nil {
		c.logger.Warn("content delete failed", zap.String("path", path), zap.Error(err))
	}
	if err := c.cs.DeleteMetadata(ctx, path); err != nil {
		c.logger.Warn("metadata delete failed", zap.String("path", path), zap.Error(err))
	}
	c.onSave(false)
}

// RenameFile handles a path change as remove-old then add-new, in that
// order, so one logical file never has two entries. If the new file cannot
// be resolved the rename degrades to a plain removal.
func (c *Coordinator) RenameFile(ctx context.Context, oldPath, newPath string) {
	c.sched.Cancel(oldPath)
	c.sched.Cancel(newPath)
	c.RemoveFile(ctx, oldPath)

	if c.resolve != nil {
		if meta := c.resolve(newPath); meta != nil {
			if _, err := c.indexNow(ctx, newPath, "", false); err != nil {
				c.logger.Warn("rename reindex failed", zap.String("path", newPath), zap.Error(err))
			}
			c.onSave(false)
			return
		}
	}
	c.logger.Debug("rename target unresolvable, removed old entry only",
		zap.String("old", oldPath), zap.String("new", newPath))
}

// ScheduleFileUpdate routes a host file event. Modify events for resolvable
// files take the full change-detection path; anything else falls back to the
// plain debounced index.
func (c *Coordinator) ScheduleFileUpdate(path, operation string) {
	if operation == "modify" && c.resolve != nil {
		if meta := c.resolve(path); meta != nil {
			c.IndexFile(path, "")
			return
		}
	}
	c.IndexFile(path, "")
}

// indexNow indexes one file immediately: reads content if not supplied,
// fetches metadata, and skips the whole operation when the
// hash/mtime/size triple matches the persisted record. Returns whether any
// index mutation happened.
func (c *Coordinator) indexNow(ctx context.Context, path, content string, haveContent bool) (bool, error) {
	meta, err := c.vault.GetFileMetadata(ctx, path)
	if err != nil {
		return false, err
	}
	if meta.Size > c.opts.MaxFileSize {
		c.logger.Warn("skipping oversized file",
			zap.String("path", path), zap.Int64("size", meta.Size))
		return false, nil
	}
	if !haveContent {
		content, err = c.vault.ReadFileContent(ctx, path)
		if err != nil {
			// A failed read skips the file for this pass; the next
			// triggering event retries.
			c.logger.Warn("content read failed", zap.String("path", path), zap.Error(err))
			return false, nil
		}
	}

	hash := xxhash.Sum64String(content)
	if prev, err := c.cs.GetMetadata(ctx, path); err == nil && prev.Unchanged(hash, meta.ModTime, meta.Size) {
		c.logger.Debug("skipping unchanged file", zap.String("path", path))
		return false, nil
	}

	c.idx.AddDocument(path, content, meta)
	if err := c.cs.Set(ctx, path, []byte(content)); err != nil {
		c.logger.Warn("content store write failed", zap.String("path", path), zap.Error(err))
	}
	record := &models.IndexMetadata{
		LastModified: meta.ModTime,
		IndexedAt:    time.Now().UnixMilli(),
		ContentHash:  hash,
		Size:         meta.Size,
	}
	if err := c.cs.SetMetadata(ctx, path, record); err != nil {
		c.logger.Warn("metadata write failed", zap.String("path", path), zap.Error(err))
	}
	return true, nil
}

// ReindexAll walks the whole vault: a bounded-concurrency scan finds files
// needing work, then batches index them with inter-file and inter-batch
// yields so a multi-thousand-file cold build never monopolizes the caller.
// Checks the pause flag before each file and returns early when set,
// leaving remaining files unindexed for the next trigger.
func (c *Coordinator) ReindexAll(ctx context.Context) error {
	paths, err := c.vault.ListAllFiles(ctx)
	if err != nil {
		return err
	}

	pending, skipped, err := c.scanPending(ctx, paths)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.progress = models.IndexingProgress{Total: len(pending), Skipped: skipped, Running: true}
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.progress.Running = false
		c.mu.Unlock()
	}()

	batchSize := c.opts.BatchSize
	interFile := c.opts.InterFileDelay
	interBatch := c.opts.InterBatchDelay
	if len(pending) > largePendingThreshold {
		batchSize *= 2
		interFile /= 2
		interBatch /= 2
	}

	for start := 0; start < len(pending); start += batchSize {
		end := start + batchSize
		if end > len(pending) {
			end = len(pending)
		}
		for _, path := range pending[start:end] {
			if c.paused.Load() {
				c.logger.Info("bulk indexing paused",
					zap.Int("processed", start), zap.Int("total", len(pending)))
				return nil
			}
			c.indexOneBulk(ctx, path)
			if err := c.yield.Yield(ctx, interFile); err != nil {
				return err
			}
		}
		if err := c.yield.Yield(ctx, interBatch); err != nil {
			return err
		}
	}
	c.onSave(true)
	return nil
}

func (c *Coordinator) indexOneBulk(ctx context.Context, path string) {
	mutated, err := c.indexNow(ctx, path, "", false)
	c.mu.Lock()
	c.progress.Processed++
	if err != nil {
		c.progress.Errors++
	}
	if mutated {
		c.processedSinceSave++
	}
	shouldSave := c.processedSinceSave >= c.opts.SaveEvery
	if shouldSave {
		c.processedSinceSave = 0
	}
	c.mu.Unlock()
	if err != nil {
		c.logger.Warn("bulk index failed", zap.String("path", path), zap.Error(err))
	}
	if shouldSave {
		// Incremental save: an interrupted bulk index still leaves a
		// mostly-current snapshot.
		c.onSave(true)
	}
}

// scanPending checks which paths need indexing, running up to ScanWorkers
// checks concurrently. The check is cheap (metadata compare only, no
// content read or hash).
func (c *Coordinator) scanPending(ctx context.Context, paths []string) (pending []string, skipped int, err error) {
	needed := make([]bool, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.opts.ScanWorkers)
	for i, path := range paths {
		i, path := i, path
		g.Go(func() error {
			meta, err := c.vault.GetFileMetadata(gctx, path)
			if err != nil {
				// Unreadable files are retried on their next event.
				return nil
			}
			if meta.Size > c.opts.MaxFileSize {
				return nil
			}
			prev, err := c.cs.GetMetadata(gctx, path)
			if err != nil || prev.LastModified != meta.ModTime || prev.Size != meta.Size || !c.idx.HasDocument(path) {
				needed[i] = true
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, 0, err
	}
	for i, path := range paths {
		if needed[i] {
			pending = append(pending, path)
		} else {
			skipped++
		}
	}
	return pending, skipped, nil
}

// CancelAll drops every pending debounce timer.
func (c *Coordinator) CancelAll() {
	c.sched.CancelAll()
}
