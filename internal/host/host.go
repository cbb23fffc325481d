// Package host declares what the embedding application must provide: file
// content, file metadata, and the live file list. The core never touches the
// filesystem itself and never discovers changes on its own; the host pushes
// create/modify/delete/rename events into the service.
package host

import (
	"context"

	"github.com/hoshizora/tansaku/internal/models"
)

// Vault exposes the host's file storage to the core.
type Vault interface {
	// ReadFileContent returns the raw text of path.
	ReadFileContent(ctx context.Context, path string) (string, error)
	// GetFileMetadata returns headings, frontmatter, tags, aliases, links,
	// size and mtime for path.
	GetFileMetadata(ctx context.Context, path string) (*models.FileMeta, error)
	// ListAllFiles returns every indexable path in the vault.
	ListAllFiles(ctx context.Context) ([]string, error)
}

// FileResolver resolves a path to a live file, or nil when the file no
// longer exists. Injected into the coordinator for rename handling; the core
// holds no file lifecycle ownership.
type FileResolver func(path string) *models.FileMeta
