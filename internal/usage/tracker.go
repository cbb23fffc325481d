// Package usage tracks file opens, searches, and bounce (pogo-sticking)
// signals, turning them into normalized [0,1] scores for ranking.
package usage

import (
	"context"
	"encoding/json"
	"math"
	"sync"
	"time"

	"github.com/hoshizora/tansaku/internal/models"
	"github.com/hoshizora/tansaku/internal/schedule"
	"go.uber.org/zap"
)

const saveKey = "usage-save"

// Store is the slice of the persistence layer the tracker needs.
type Store interface {
	SetUsageStats(ctx context.Context, data []byte) error
	GetUsageStats(ctx context.Context) ([]byte, error)
}

// Options tune scoring and persistence.
type Options struct {
	RecencyHalfLife time.Duration
	BounceThreshold time.Duration
	BounceDecay     time.Duration
	SaveDebounce    time.Duration
	MaxQueryHistory int
}

func (o *Options) applyDefaults() {
	if o.RecencyHalfLife == 0 {
		o.RecencyHalfLife = 7 * 24 * time.Hour
	}
	if o.BounceThreshold == 0 {
		o.BounceThreshold = 5 * time.Second
	}
	if o.BounceDecay == 0 {
		o.BounceDecay = 14 * 24 * time.Hour
	}
	if o.SaveDebounce == 0 {
		o.SaveDebounce = 2 * time.Second
	}
	if o.MaxQueryHistory == 0 {
		o.MaxQueryHistory = 100
	}
}

// searchOrigin stamps the last open that came from a search result, arming
// bounce detection.
type searchOrigin struct {
	path  string
	query string
	at    time.Time
}

// Tracker records usage events and computes usage, recency and bounce
// scores. Saves are debounced; rapid updates coalesce into one write.
type Tracker struct {
	mu         sync.RWMutex
	fileAccess map[string]*models.UsageRecord
	bounceData map[string]*models.BounceRecord
	queries    []string
	lastOrigin *searchOrigin

	opts      Options
	store     Store
	scheduler schedule.Scheduler
	logger    *zap.Logger
	now       func() time.Time
}

// TrackerOption configures a Tracker.
type TrackerOption func(*Tracker)

// WithLogger sets a logger for debug output.
func WithLogger(l *zap.Logger) TrackerOption {
	return func(t *Tracker) { t.logger = l }
}

// WithScheduler replaces the save-debounce scheduler (tests).
func WithScheduler(s schedule.Scheduler) TrackerOption {
	return func(t *Tracker) { t.scheduler = s }
}

// WithClock replaces the time source (tests).
func WithClock(now func() time.Time) TrackerOption {
	return func(t *Tracker) { t.now = now }
}

// NewTracker creates a tracker persisting through store. store may be nil;
// the tracker then works purely in memory.
func NewTracker(store Store, opts Options, tos ...TrackerOption) *Tracker {
	opts.applyDefaults()
	t := &Tracker{
		fileAccess: make(map[string]*models.UsageRecord),
		bounceData: make(map[string]*models.BounceRecord),
		opts:       opts,
		store:      store,
		scheduler:  schedule.NewTimerScheduler(),
		logger:     zap.NewNop(),
		now:        time.Now,
	}
	for _, o := range tos {
		o(t)
	}
	return t
}

// Load restores persisted usage stats. A version mismatch discards the
// stored data rather than attempting migration.
func (t *Tracker) Load(ctx context.Context) error {
	if t.store == nil {
		return nil
	}
	data, err := t.store.GetUsageStats(ctx)
	if err != nil || len(data) == 0 {
		return err
	}
	var snap models.UsageSnapshot
	if err := json.Unmarshal(data, &snap); err != nil || snap.Version != models.UsageVersion {
		t.logger.Warn("discarding usage stats with unknown version")
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if snap.FileAccess != nil {
		t.fileAccess = snap.FileAccess
	}
	if snap.BounceData != nil {
		t.bounceData = snap.BounceData
	}
	t.queries = snap.Queries
	return nil
}

// RecordFileOpen increments the open count for path and bumps lastOpened.
func (t *Tracker) RecordFileOpen(path string) {
	now := t.now().UnixMilli()
	t.mu.Lock()
	rec := t.fileAccess[path]
	if rec == nil {
		rec = &models.UsageRecord{FirstOpened: now}
		t.fileAccess[path] = rec
	}
	rec.Count++
	rec.LastOpened = now
	if b := t.bounceData[path]; b != nil {
		b.OpenCount++
	}
	t.mu.Unlock()
	t.scheduleSave()
}

// RecordSearch appends query to the search history.
func (t *Tracker) RecordSearch(query string) {
	t.mu.Lock()
	t.queries = append(t.queries, query)
	if len(t.queries) > t.opts.MaxQueryHistory {
		t.queries = t.queries[len(t.queries)-t.opts.MaxQueryHistory:]
	}
	t.mu.Unlock()
	t.scheduleSave()
}

// RecordSearchResultOpen records an open that originated from a search
// result and arms bounce detection for it.
func (t *Tracker) RecordSearchResultOpen(path, query string) {
	t.RecordFileOpen(path)
	t.mu.Lock()
	t.lastOrigin = &searchOrigin{path: path, query: query, at: t.now()}
	if t.bounceData[path] == nil {
		t.bounceData[path] = &models.BounceRecord{OpenCount: t.fileAccess[path].Count}
	}
	t.mu.Unlock()
}

// RecordSearchModalOpen notes that the search UI reopened. If that happens
// within the bounce threshold of the last search-origin open, the opened
// path takes a bounce: the user pogo-sticked back, the result was a poor match.
func (t *Tracker) RecordSearchModalOpen() {
	now := t.now()
	t.mu.Lock()
	origin := t.lastOrigin
	t.lastOrigin = nil
	if origin == nil || now.Sub(origin.at) > t.opts.BounceThreshold {
		t.mu.Unlock()
		return
	}
	rec := t.bounceData[origin.path]
	if rec == nil {
		rec = &models.BounceRecord{OpenCount: 1}
		t.bounceData[origin.path] = rec
	}
	rec.BounceCount++
	rec.LastBounce = now.UnixMilli()
	t.mu.Unlock()
	t.logger.Debug("bounce recorded", zap.String("path", origin.path), zap.String("query", origin.query))
	t.scheduleSave()
}

// UsageScore returns ln(1+count)/ln(1+maxCount), clamped to [0,1]. Log
// scaling keeps a handful of hot files from dominating. Zero for untracked
// paths.
func (t *Tracker) UsageScore(path string) float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	rec := t.fileAccess[path]
	if rec == nil || rec.Count == 0 {
		return 0
	}
	maxCount := 0
	for _, r := range t.fileAccess {
		if r.Count > maxCount {
			maxCount = r.Count
		}
	}
	if maxCount == 0 {
		return 0
	}
	score := math.Log(1+float64(rec.Count)) / math.Log(1+float64(maxCount))
	if score > 1 {
		return 1
	}
	return score
}

// RecencyScore returns exp(-age/halfLife): 1.0 for a just-opened file,
// decaying toward 0. Zero for untracked paths.
func (t *Tracker) RecencyScore(path string) float64 {
	t.mu.RLock()
	rec := t.fileAccess[path]
	t.mu.RUnlock()
	if rec == nil || rec.LastOpened == 0 {
		return 0
	}
	age := t.now().Sub(time.UnixMilli(rec.LastOpened))
	if age < 0 {
		age = 0
	}
	return math.Exp(-float64(age) / float64(t.opts.RecencyHalfLife))
}

// BounceScore returns min(bounceCount/openCount, 1) decayed by
// exp(-sinceLastBounce/decay), so old bounces stop penalizing a
// since-improved document. Zero when no bounces are recorded.
func (t *Tracker) BounceScore(path string) float64 {
	t.mu.RLock()
	rec := t.bounceData[path]
	t.mu.RUnlock()
	if rec == nil || rec.BounceCount == 0 || rec.OpenCount == 0 {
		return 0
	}
	ratio := float64(rec.BounceCount) / float64(rec.OpenCount)
	if ratio > 1 {
		ratio = 1
	}
	since := t.now().Sub(time.UnixMilli(rec.LastBounce))
	if since < 0 {
		since = 0
	}
	return ratio * math.Exp(-float64(since)/float64(t.opts.BounceDecay))
}

// LastOpened returns the epoch-ms timestamp of the last open, or 0.
func (t *Tracker) LastOpened(path string) int64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if rec := t.fileAccess[path]; rec != nil {
		return rec.LastOpened
	}
	return 0
}

// RecentQueries returns up to n most recent queries, newest last.
func (t *Tracker) RecentQueries(n int) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if n <= 0 || n > len(t.queries) {
		n = len(t.queries)
	}
	out := make([]string, n)
	copy(out, t.queries[len(t.queries)-n:])
	return out
}

// scheduleSave arms a single debounced save; rapid updates coalesce.
func (t *Tracker) scheduleSave() {
	if t.store == nil {
		return
	}
	t.scheduler.Schedule(saveKey, t.opts.SaveDebounce, func() {
		if err := t.Flush(context.Background()); err != nil {
			// A failed write retries on the next debounced save.
			t.logger.Warn("usage stats save failed", zap.Error(err))
		}
	})
}

// Flush persists the current state immediately.
func (t *Tracker) Flush(ctx context.Context) error {
	if t.store == nil {
		return nil
	}
	t.mu.RLock()
	snap := models.UsageSnapshot{
		Version:    models.UsageVersion,
		FileAccess: t.fileAccess,
		BounceData: t.bounceData,
		Queries:    t.queries,
	}
	data, err := json.Marshal(snap)
	t.mu.RUnlock()
	if err != nil {
		return err
	}
	return t.store.SetUsageStats(ctx, data)
}

// Clear drops all tracked usage.
func (t *Tracker) Clear() {
	t.mu.Lock()
	t.fileAccess = make(map[string]*models.UsageRecord)
	t.bounceData = make(map[string]*models.BounceRecord)
	t.queries = nil
	t.lastOrigin = nil
	t.mu.Unlock()
	t.scheduleSave()
}

// Close cancels pending saves and flushes once.
func (t *Tracker) Close() error {
	t.scheduler.Cancel(saveKey)
	return t.Flush(context.Background())
}
