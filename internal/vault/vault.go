// Package vault is the filesystem host adapter: it serves file content and
// markdown metadata to the core and pushes change events into the service.
package vault

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/hoshizora/tansaku/internal/models"
	"go.uber.org/zap"
)

// FSVault serves a directory tree of notes. Paths handed to the core are
// vault-relative with forward slashes, so an index built on one machine
// stays valid when the vault root moves.
type FSVault struct {
	root       string
	extensions []string
	logger     *zap.Logger
}

// NewFSVault creates a vault over root. extensions filter which files are
// indexable (empty = all).
func NewFSVault(root string, extensions []string, logger *zap.Logger) (*FSVault, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("vault root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("vault root %s is not a directory", abs)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FSVault{root: abs, extensions: extensions, logger: logger}, nil
}

// Root returns the absolute vault root.
func (v *FSVault) Root() string { return v.root }

// Rel converts an absolute path into the vault-relative ID used by the
// index, or "" when the path lies outside the vault.
func (v *FSVault) Rel(abs string) string {
	rel, err := filepath.Rel(v.root, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return ""
	}
	return filepath.ToSlash(rel)
}

func (v *FSVault) absPath(rel string) string {
	return filepath.Join(v.root, filepath.FromSlash(rel))
}

// ReadFileContent returns the raw text of a vault-relative path.
func (v *FSVault) ReadFileContent(_ context.Context, path string) (string, error) {
	data, err := os.ReadFile(v.absPath(path))
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// GetFileMetadata stats the file and parses its markdown structure.
func (v *FSVault) GetFileMetadata(_ context.Context, path string) (*models.FileMeta, error) {
	abs := v.absPath(path)
	info, err := os.Stat(abs)
	if err != nil {
		return nil, err
	}
	meta := &models.FileMeta{
		Path:    path,
		Size:    info.Size(),
		ModTime: info.ModTime().UnixMilli(),
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return meta, nil
	}
	note := parseMarkdown(string(data))
	meta.Headings = note.Headings
	meta.Tags = note.Tags
	meta.Aliases = note.Aliases
	meta.Links = note.Links
	meta.Frontmatter = note.Frontmatter
	if note.Title != "" {
		if meta.Frontmatter == nil {
			meta.Frontmatter = make(map[string]string)
		}
		meta.Frontmatter["title"] = note.Title
	}
	return meta, nil
}

// ListAllFiles walks the vault and returns every indexable relative path.
// Hidden directories (dot-prefixed) are skipped.
func (v *FSVault) ListAllFiles(_ context.Context) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(v.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if strings.HasPrefix(d.Name(), ".") && path != v.root {
				return filepath.SkipDir
			}
			return nil
		}
		if !matchExtension(path, v.extensions) {
			return nil
		}
		if rel := v.Rel(path); rel != "" {
			paths = append(paths, rel)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return paths, nil
}

// Resolve returns the live metadata for a vault-relative path, or nil when
// the file no longer exists. Satisfies host.FileResolver.
func (v *FSVault) Resolve(path string) *models.FileMeta {
	meta, err := v.GetFileMetadata(context.Background(), path)
	if err != nil {
		return nil
	}
	return meta
}

func matchExtension(path string, extensions []string) bool {
	if len(extensions) == 0 {
		return true
	}
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	for _, e := range extensions {
		if strings.TrimPrefix(strings.ToLower(e), ".") == ext {
			return true
		}
	}
	return false
}
