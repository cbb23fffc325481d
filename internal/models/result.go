package models

// SearchResult is a raw hit from the inverted index, before re-ranking.
type SearchResult struct {
	ID string `json:"id"`
	// Score is the raw content relevance from the index.
	Score float64 `json:"score"`
	// Matches maps field name to the query terms that matched in it.
	Matches  map[string][]string `json:"matches,omitempty"`
	Metadata *IndexMetadata      `json:"metadata,omitempty"`
	Snippet  string              `json:"snippet"`
}

// RankedResult extends SearchResult with the combined multi-signal score.
// Computed fresh per query, never persisted.
type RankedResult struct {
	SearchResult
	CombinedScore float64 `json:"combined_score"`
	ContentScore  float64 `json:"content_score"`
	UsageScore    float64 `json:"usage_score"`
	RecencyScore  float64 `json:"recency_score"`
	LastOpened    int64   `json:"last_opened,omitempty"`
	Rank          int     `json:"rank"`
}

// IndexStats summarizes the live index.
type IndexStats struct {
	DocumentCount int   `json:"document_count"`
	IndexSize     int64 `json:"index_size"`
	LastUpdated   int64 `json:"last_updated"`
	Version       int   `json:"version"`
}

// IndexingProgress reports bulk-indexing state to the host UI.
type IndexingProgress struct {
	Total     int  `json:"total"`
	Processed int  `json:"processed"`
	Skipped   int  `json:"skipped"`
	Errors    int  `json:"errors"`
	Running   bool `json:"running"`
	Paused    bool `json:"paused"`
}
