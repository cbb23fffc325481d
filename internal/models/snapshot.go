package models

import "encoding/json"

// SnapshotVersion gates acceptance of persisted snapshots. A version mismatch
// is treated as an absent snapshot, never migrated.
const SnapshotVersion = 3

// Snapshot is the serialized dump of the full index plus supporting
// structures, used to avoid full reindexing on restart.
type Snapshot struct {
	Version   int                       `json:"version"`
	Index     json.RawMessage           `json:"index"`
	Documents map[string]*IndexMetadata `json:"documents"`
	Stats     IndexStats                `json:"stats"`
	// TermFrequencyIndex is the serialized TFI. A snapshot without it is
	// rejected as a whole; relevance weighting cannot be reconstructed.
	TermFrequencyIndex json.RawMessage `json:"term_frequency_index,omitempty"`
	// InstanceID identifies the writing process, for diagnostics only.
	InstanceID string `json:"instance_id,omitempty"`
}

// UsageVersion gates acceptance of persisted usage stats.
const UsageVersion = 2

// UsageSnapshot is the persisted usage-tracker state.
type UsageSnapshot struct {
	Version    int                     `json:"version"`
	FileAccess map[string]*UsageRecord `json:"file_access"`
	BounceData map[string]*BounceRecord `json:"bounce_data"`
	Queries    []string                `json:"queries,omitempty"`
}

// UsageRecord counts opens for one path.
type UsageRecord struct {
	Count       int   `json:"count"`
	FirstOpened int64 `json:"first_opened"`
	LastOpened  int64 `json:"last_opened"`
}

// BounceRecord tracks pogo-sticking for one path: the user opened this
// result and returned to search within the bounce threshold.
type BounceRecord struct {
	BounceCount int   `json:"bounce_count"`
	OpenCount   int   `json:"open_count"`
	LastBounce  int64 `json:"last_bounce"`
}
