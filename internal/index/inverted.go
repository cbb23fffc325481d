package index

import (
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hoshizora/tansaku/internal/analysis"
	"github.com/hoshizora/tansaku/internal/models"
	"github.com/hoshizora/tansaku/pkg/utils"
	"go.uber.org/zap"
)

// indexVersion gates snapshot acceptance for the inverted index dump.
const indexVersion = 3

// maxRawResults bounds the internal result set regardless of the requested
// limit, to keep tail latency bounded on broad queries.
const maxRawResults = 200

// Match weights. Prefix matching is always on; fuzzy only when typo
// tolerance is configured.
const (
	exactWeight  = 1.0
	prefixWeight = 0.5
	fuzzyWeight  = 0.2
)

// fieldBoosts weight matches by the field they occur in.
var fieldBoosts = map[string]float64{
	"title":    3,
	"headings": 2,
	"aliases":  2,
	"tags":     1.5,
	"content":  1,
}

// Options configure the inverted index.
type Options struct {
	// TypoTolerance is the max edit distance for fuzzy matching; 0 disables.
	TypoTolerance int
	// MaxIndexedContent truncates stored content; 0 means the 2000 default.
	MaxIndexedContent int
}

func (o *Options) maxContent() int {
	if o.MaxIndexedContent <= 0 {
		return 2000
	}
	return o.MaxIndexedContent
}

// Index is a fielded inverted index over vault documents. It owns a
// TermFrequencyIndex for IDF weighting. Safe for concurrent use.
type Index struct {
	mu   sync.RWMutex
	tok  *analysis.Tokenizer
	syn  *analysis.SynonymMap
	opts Options
	tfi  *TermFrequencyIndex

	// postings: term -> docID -> field -> term frequency.
	postings map[string]map[string]map[string]int
	// docFieldTerms: docID -> field -> unique terms, kept for removal.
	docFieldTerms map[string]map[string][]string
	docs          map[string]*models.Document
	lastUpdated   int64

	logger *zap.Logger
}

// IndexOption configures an Index.
type IndexOption func(*Index)

// WithLogger sets a logger for debug output.
func WithLogger(l *zap.Logger) IndexOption {
	return func(idx *Index) { idx.logger = l }
}

// New creates an empty index using the given tokenizer and synonym map.
// syn may be nil to disable query-time synonym expansion.
func New(tok *analysis.Tokenizer, syn *analysis.SynonymMap, opts Options, ios ...IndexOption) *Index {
	idx := &Index{
		tok:           tok,
		syn:           syn,
		opts:          opts,
		tfi:           NewTermFrequencyIndex(),
		postings:      make(map[string]map[string]map[string]int),
		docFieldTerms: make(map[string]map[string][]string),
		docs:          make(map[string]*models.Document),
		logger:        zap.NewNop(),
	}
	for _, o := range ios {
		o(idx)
	}
	return idx
}

// TFI returns the owned term frequency index.
func (idx *Index) TFI() *TermFrequencyIndex {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.tfi
}

// AddDocument indexes content under id, replacing any existing entry.
// The stored content is truncated at a word boundary; the TFI is fed the
// full raw content so IDF reflects the whole document.
func (idx *Index) AddDocument(id, content string, meta *models.FileMeta) {
	doc := &models.Document{
		ID:      id,
		Title:   titleFromPath(id),
		Content: utils.Truncate(content, idx.opts.maxContent()),
	}
	if meta != nil {
		doc.Headings = meta.Headings
		doc.Tags = meta.Tags
		doc.Aliases = meta.Aliases
		doc.Links = meta.Links
		doc.Frontmatter = meta.Frontmatter
		doc.Size = meta.Size
		doc.LastModified = meta.ModTime
		if title := meta.Frontmatter["title"]; title != "" {
			doc.Title = title
		}
	}

	fields := map[string]string{
		"content":  doc.Content,
		"title":    doc.Title,
		"headings": strings.Join(doc.Headings, " "),
		"tags":     strings.Join(doc.Tags, " "),
		"aliases":  strings.Join(doc.Aliases, " "),
	}

	idx.mu.Lock()
	idx.removeLocked(id)

	fieldTerms := make(map[string][]string, len(fields))
	for field, text := range fields {
		if text == "" {
			continue
		}
		tf := make(map[string]int)
		for _, term := range idx.tok.Tokenize(text) {
			tf[term]++
		}
		unique := make([]string, 0, len(tf))
		for term, n := range tf {
			unique = append(unique, term)
			byDoc, ok := idx.postings[term]
			if !ok {
				byDoc = make(map[string]map[string]int)
				idx.postings[term] = byDoc
			}
			byField, ok := byDoc[id]
			if !ok {
				byField = make(map[string]int)
				byDoc[id] = byField
			}
			byField[field] = n
		}
		fieldTerms[field] = unique
	}
	idx.docFieldTerms[id] = fieldTerms
	idx.docs[id] = doc
	idx.lastUpdated = time.Now().UnixMilli()
	tfi := idx.tfi
	idx.mu.Unlock()

	// Full-document term set for correct IDF, not the truncated copy.
	tfi.AddDocument(id, idx.tok.Tokenize(content))
}

// RemoveDocument removes id from the index and the TFI. No-op if absent.
func (idx *Index) RemoveDocument(id string) {
	idx.mu.Lock()
	idx.removeLocked(id)
	idx.lastUpdated = time.Now().UnixMilli()
	tfi := idx.tfi
	idx.mu.Unlock()
	tfi.RemoveDocument(id)
}

func (idx *Index) removeLocked(id string) {
	fieldTerms, ok := idx.docFieldTerms[id]
	if !ok {
		return
	}
	for _, terms := range fieldTerms {
		for _, term := range terms {
			if byDoc, ok := idx.postings[term]; ok {
				delete(byDoc, id)
				if len(byDoc) == 0 {
					delete(idx.postings, term)
				}
			}
		}
	}
	delete(idx.docFieldTerms, id)
	delete(idx.docs, id)
}

// HasDocument reports whether id is indexed.
func (idx *Index) HasDocument(id string) bool {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	_, ok := idx.docs[id]
	return ok
}

// Document returns the stored document for id, or nil.
func (idx *Index) Document(id string) *models.Document {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.docs[id]
}

// Documents returns all stored documents. Used for link-graph recomputation.
func (idx *Index) Documents() []*models.Document {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	out := make([]*models.Document, 0, len(idx.docs))
	for _, d := range idx.docs {
		out = append(out, d)
	}
	return out
}

// termMatch is one dictionary term matched for a query term.
type termMatch struct {
	term   string
	weight float64
}

// Search runs a fuzzy+prefix multi-field query with AND semantics across
// query terms. An empty or whitespace query returns no results; there are no
// match-all semantics. Results are capped at maxRawResults.
func (idx *Index) Search(query string, limit int) []*models.SearchResult {
	groups := idx.queryGroups(query)
	if len(groups) == 0 {
		return nil
	}
	if limit <= 0 || limit > maxRawResults {
		limit = maxRawResults
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	weights := idx.tfi.TermWeights(groupLeads(groups))

	type docHit struct {
		score   float64
		matched int // how many query term groups hit this doc
		matches map[string][]string
	}
	hits := make(map[string]*docHit)

	for _, group := range groups {
		matches := idx.matchDictionary(group)
		if len(matches) == 0 {
			// AND semantics: one unmatched term empties the result set.
			return nil
		}
		w := weights[group[0]]
		groupDocs := make(map[string]struct{})
		for _, m := range matches {
			for docID, byField := range idx.postings[m.term] {
				hit := hits[docID]
				if hit == nil {
					hit = &docHit{matches: make(map[string][]string)}
					hits[docID] = hit
				}
				for field, tf := range byField {
					boost := fieldBoosts[field]
					if boost == 0 {
						boost = 1
					}
					hit.score += w * m.weight * boost * (1 + logTF(tf))
					hit.matches[field] = appendUnique(hit.matches[field], m.term)
				}
				if _, ok := groupDocs[docID]; !ok {
					groupDocs[docID] = struct{}{}
					hit.matched++
				}
			}
		}
	}

	results := make([]*models.SearchResult, 0, len(hits))
	for docID, hit := range hits {
		if hit.matched < len(groups) {
			continue
		}
		results = append(results, &models.SearchResult{
			ID:      docID,
			Score:   hit.score,
			Matches: hit.matches,
			Snippet: idx.snippetLocked(docID, hit.matches),
		})
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results
}

// queryGroups normalizes the query into term groups: each group is a
// normalized term followed by its synonym expansion.
func (idx *Index) queryGroups(query string) [][]string {
	if strings.TrimSpace(query) == "" {
		return nil
	}
	var groups [][]string
	for _, raw := range strings.Fields(query) {
		if group := analysis.ProcessTerm(raw, idx.tok, idx.syn); group != nil {
			groups = append(groups, group)
		}
	}
	return groups
}

func groupLeads(groups [][]string) []string {
	leads := make([]string, len(groups))
	for i, g := range groups {
		leads[i] = g[0]
	}
	return leads
}

// matchDictionary finds index terms matching any variant in the group:
// exact first, then prefix, then bounded edit distance.
func (idx *Index) matchDictionary(group []string) []termMatch {
	var matches []termMatch
	seen := make(map[string]struct{})
	add := func(term string, weight float64) {
		if _, ok := seen[term]; ok {
			return
		}
		seen[term] = struct{}{}
		matches = append(matches, termMatch{term: term, weight: weight})
	}

	for _, variant := range group {
		if _, ok := idx.postings[variant]; ok {
			add(variant, exactWeight)
		}
	}
	for term := range idx.postings {
		for _, variant := range group {
			if strings.HasPrefix(term, variant) && term != variant {
				add(term, prefixWeight)
				break
			}
			if idx.opts.TypoTolerance > 0 && WithinDistance(term, variant, idx.opts.TypoTolerance) {
				add(term, fuzzyWeight)
				break
			}
		}
	}
	return matches
}

// snippetLocked extracts a short excerpt around the first content match.
// Falls back to title, then path, so the snippet is non-empty whenever
// either exists.
func (idx *Index) snippetLocked(docID string, matches map[string][]string) string {
	doc := idx.docs[docID]
	if doc == nil {
		return docID
	}
	lower := strings.ToLower(doc.Content)
	for _, term := range matches["content"] {
		if pos := strings.Index(lower, term); pos >= 0 {
			return excerpt(doc.Content, pos, len(term))
		}
	}
	if doc.Title != "" {
		return doc.Title
	}
	return doc.ID
}

// excerpt returns ~40 runes of context either side of the match, trimmed to
// word boundaries.
func excerpt(content string, pos, matchLen int) string {
	const context = 40
	start := pos - context
	if start < 0 {
		start = 0
	} else if i := strings.IndexByte(content[start:pos], ' '); i >= 0 {
		start += i + 1
	}
	end := pos + matchLen + context
	if end > len(content) {
		end = len(content)
	} else if i := strings.LastIndexByte(content[pos:end], ' '); i >= 0 {
		end = pos + i
	}
	return strings.TrimSpace(content[start:end])
}

// Stats returns document count, an estimated index size (1KB per document
// heuristic), last update time and the snapshot version.
func (idx *Index) Stats() models.IndexStats {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return models.IndexStats{
		DocumentCount: len(idx.docs),
		IndexSize:     int64(len(idx.docs)) * 1024,
		LastUpdated:   idx.lastUpdated,
		Version:       indexVersion,
	}
}

// Clear drops all documents, postings and TFI state.
func (idx *Index) Clear() {
	idx.mu.Lock()
	idx.postings = make(map[string]map[string]map[string]int)
	idx.docFieldTerms = make(map[string]map[string][]string)
	idx.docs = make(map[string]*models.Document)
	idx.lastUpdated = time.Now().UnixMilli()
	idx.tfi = NewTermFrequencyIndex()
	idx.mu.Unlock()
}

// SetOptions replaces matching options. Callers are expected to rebuild the
// index afterwards; stale postings are not re-normalized.
func (idx *Index) SetOptions(tok *analysis.Tokenizer, syn *analysis.SynonymMap, opts Options) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.tok = tok
	idx.syn = syn
	idx.opts = opts
}

// logTF saturates repeated terms; 1+ln keeps a single hit at weight 1.
func logTF(tf int) float64 {
	if tf <= 1 {
		return 0
	}
	return math.Log(float64(tf))
}

func appendUnique(list []string, term string) []string {
	for _, t := range list {
		if t == term {
			return list
		}
	}
	return append(list, term)
}

func titleFromPath(path string) string {
	base := path
	if i := strings.LastIndexByte(base, '/'); i >= 0 {
		base = base[i+1:]
	}
	if i := strings.LastIndexByte(base, '.'); i > 0 {
		base = base[:i]
	}
	return strings.ReplaceAll(base, "_", " ")
}
