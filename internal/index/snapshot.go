package index

import (
	"encoding/json"
	"fmt"

	"github.com/hoshizora/tansaku/internal/models"
)

// indexDump is the native serialized form of the inverted index.
type indexDump struct {
	Version       int                                  `json:"version"`
	Postings      map[string]map[string]map[string]int `json:"postings"`
	DocFieldTerms map[string]map[string][]string       `json:"doc_field_terms"`
	Docs          map[string]*models.Document          `json:"docs"`
	LastUpdated   int64                                `json:"last_updated"`
}

// Serialize dumps the inverted index (without the TFI, which serializes
// separately into the snapshot) as a versioned JSON blob.
func (idx *Index) Serialize() (json.RawMessage, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	data, err := json.Marshal(indexDump{
		Version:       indexVersion,
		Postings:      idx.postings,
		DocFieldTerms: idx.docFieldTerms,
		Docs:          idx.docs,
		LastUpdated:   idx.lastUpdated,
	})
	if err != nil {
		return nil, fmt.Errorf("serialize index: %w", err)
	}
	return data, nil
}

// LoadFromData restores a serialized dump plus the TFI payload. A version
// mismatch or a missing TFI payload fails closed: the index is left empty
// and false is returned, forcing a rebuild. A partially trusted snapshot is
// never loaded.
func (idx *Index) LoadFromData(indexData, tfiData json.RawMessage) bool {
	if len(indexData) == 0 || len(tfiData) == 0 {
		return false
	}
	var dump indexDump
	if err := json.Unmarshal(indexData, &dump); err != nil || dump.Version != indexVersion {
		return false
	}
	tfi := NewTermFrequencyIndex()
	if !tfi.Deserialize(tfiData) {
		return false
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.postings = dump.Postings
	idx.docFieldTerms = dump.DocFieldTerms
	idx.docs = dump.Docs
	idx.lastUpdated = dump.LastUpdated
	idx.tfi = tfi
	if idx.postings == nil {
		idx.postings = make(map[string]map[string]map[string]int)
	}
	if idx.docFieldTerms == nil {
		idx.docFieldTerms = make(map[string]map[string][]string)
	}
	if idx.docs == nil {
		idx.docs = make(map[string]*models.Document)
	}
	return true
}
