// Package models defines core data structures for documents, metadata, and search results.
package models

// Document is one indexed unit, keyed by its vault-relative path.
type Document struct {
	ID          string            `json:"id"`
	Title       string            `json:"title"`
	Content     string            `json:"content"`
	Headings    []string          `json:"headings,omitempty"`
	Tags        []string          `json:"tags,omitempty"`
	Aliases     []string          `json:"aliases,omitempty"`
	Links       []string          `json:"links,omitempty"`
	Frontmatter map[string]string `json:"frontmatter,omitempty"`
	Size        int64             `json:"size"`
	// LastModified is epoch milliseconds of the host file's mtime.
	LastModified int64  `json:"last_modified"`
	ContentHash  uint64 `json:"content_hash"`
}

// FileMeta is what the host hands the core for one file. The core never
// reads the filesystem itself; this mirrors the host accessor contract.
type FileMeta struct {
	Path        string
	Headings    []string
	Tags        []string
	Aliases     []string
	Links       []string
	Frontmatter map[string]string
	Size        int64
	ModTime     int64 // epoch ms
}

// IndexMetadata is the per-path record persisted alongside the index and
// consulted by change detection. IndexedAt is monotonic per path.
type IndexMetadata struct {
	LastModified int64  `json:"last_modified"`
	IndexedAt    int64  `json:"indexed_at"`
	ContentHash  uint64 `json:"content_hash"`
	Size         int64  `json:"size"`
}

// Unchanged reports whether the hash/mtime/size triple matches. Mtime alone
// is unreliable across some filesystems and sync tools; hash alone is
// expensive to compute speculatively, so all three are compared.
func (m *IndexMetadata) Unchanged(hash uint64, modTime, size int64) bool {
	return m != nil && m.ContentHash == hash && m.LastModified == modTime && m.Size == size
}
