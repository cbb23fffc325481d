// Package index implements the inverted search index and term-frequency
// tracking that back vault search.
package index

import (
	"encoding/json"
	"math"
	"sync"
)

// tfiVersion gates acceptance of serialized term-frequency data.
// Deserialize fails closed on mismatch; there is no migration.
const tfiVersion = 2

// TermFrequencyIndex tracks, per term, how many distinct documents contain
// it, supporting smoothed IDF computation. Safe for concurrent use.
type TermFrequencyIndex struct {
	mu        sync.RWMutex
	docTerms  map[string][]string
	docFreq   map[string]int
	totalDocs int
}

// NewTermFrequencyIndex creates an empty term frequency index.
func NewTermFrequencyIndex() *TermFrequencyIndex {
	return &TermFrequencyIndex{
		docTerms: make(map[string][]string),
		docFreq:  make(map[string]int),
	}
}

// AddDocument records the term set of a document. Terms are deduplicated:
// multiple occurrences in one document count once for document frequency.
// Idempotent — an already-tracked document is fully removed first.
func (t *TermFrequencyIndex) AddDocument(docID string, terms []string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.docTerms[docID]; ok {
		t.removeLocked(docID)
	}

	seen := make(map[string]struct{}, len(terms))
	unique := make([]string, 0, len(terms))
	for _, term := range terms {
		if term == "" {
			continue
		}
		if _, ok := seen[term]; ok {
			continue
		}
		seen[term] = struct{}{}
		unique = append(unique, term)
		t.docFreq[term]++
	}
	t.docTerms[docID] = unique
	t.totalDocs++
}

// RemoveDocument decrements document frequency for each of the document's
// terms, deleting entries that reach zero. No-op for unknown documents.
func (t *TermFrequencyIndex) RemoveDocument(docID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.removeLocked(docID)
}

func (t *TermFrequencyIndex) removeLocked(docID string) {
	terms, ok := t.docTerms[docID]
	if !ok {
		return
	}
	for _, term := range terms {
		if t.docFreq[term] <= 1 {
			delete(t.docFreq, term)
		} else {
			t.docFreq[term]--
		}
	}
	delete(t.docTerms, docID)
	if t.totalDocs > 0 {
		t.totalDocs--
	}
}

// IDF returns the smoothed inverse document frequency ln((N+1)/(df+1)),
// floored at 0 so unseen terms and empty corpora never go negative.
func (t *TermFrequencyIndex) IDF(term string) float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.idfLocked(term)
}

func (t *TermFrequencyIndex) idfLocked(term string) float64 {
	idf := math.Log(float64(t.totalDocs+1) / float64(t.docFreq[term]+1))
	if idf < 0 {
		return 0
	}
	return idf
}

// TermWeights returns per-term IDF weights normalized to sum to 1.
// When total IDF is zero (empty corpus) every term gets 1/len(terms).
func (t *TermFrequencyIndex) TermWeights(terms []string) map[string]float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()

	weights := make(map[string]float64, len(terms))
	total := 0.0
	for _, term := range terms {
		idf := t.idfLocked(term)
		weights[term] = idf
		total += idf
	}
	if total == 0 {
		uniform := 1.0 / float64(len(terms))
		for term := range weights {
			weights[term] = uniform
		}
		return weights
	}
	for term := range weights {
		weights[term] /= total
	}
	return weights
}

// DocumentFrequency returns how many documents contain term.
func (t *TermFrequencyIndex) DocumentFrequency(term string) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.docFreq[term]
}

// TotalDocuments returns the tracked document count.
func (t *TermFrequencyIndex) TotalDocuments() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.totalDocs
}

// Terms returns the term dictionary. Used by fuzzy and prefix matching.
func (t *TermFrequencyIndex) Terms() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	terms := make([]string, 0, len(t.docFreq))
	for term := range t.docFreq {
		terms = append(terms, term)
	}
	return terms
}

type tfiSnapshot struct {
	Version   int                 `json:"version"`
	DocTerms  map[string][]string `json:"doc_terms"`
	DocFreq   map[string]int      `json:"doc_freq"`
	TotalDocs int                 `json:"total_docs"`
}

// Serialize dumps the index as a versioned JSON blob.
func (t *TermFrequencyIndex) Serialize() ([]byte, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return json.Marshal(tfiSnapshot{
		Version:   tfiVersion,
		DocTerms:  t.docTerms,
		DocFreq:   t.docFreq,
		TotalDocs: t.totalDocs,
	})
}

// Deserialize restores a serialized index. Fails closed: on parse error or
// version mismatch it returns false and leaves the index empty.
func (t *TermFrequencyIndex) Deserialize(data []byte) bool {
	var snap tfiSnapshot
	if err := json.Unmarshal(data, &snap); err != nil || snap.Version != tfiVersion {
		return false
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.docTerms = snap.DocTerms
	t.docFreq = snap.DocFreq
	t.totalDocs = snap.TotalDocs
	if t.docTerms == nil {
		t.docTerms = make(map[string][]string)
	}
	if t.docFreq == nil {
		t.docFreq = make(map[string]int)
	}
	return true
}
