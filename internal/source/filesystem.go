// Package source discovers ingestible files on the local filesystem.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cloo-solutions/ragsync/internal/domain"
)

// Filesystem lists supported files below a root directory.
type Filesystem struct {
	root     string
	supports func(domain.Format) bool
}

// NewFilesystem returns a source rooted at root. supports decides which formats
// are listed; nil accepts every known format.
func NewFilesystem(root string, supports func(domain.Format) bool) *Filesystem {
	if supports == nil {
		supports = func(f domain.Format) bool { return f != domain.FormatUnknown }
	}
	return &Filesystem{root: root, supports: supports}
}

// List walks the root recursively and returns matching regular files sorted by path.
// Hidden directories are skipped. A root that is a single file lists just that file.
func (s *Filesystem) List(ctx context.Context) ([]domain.SourceFile, error) {
	info, err := os.Stat(s.root)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, domain.Wrap(domain.ErrSourceNotFound, fmt.Errorf("%s", s.root))
	}
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", s.root, err)
	}

	if !info.IsDir() {
		f := fileFromInfo(s.root, info)
		if !s.supports(f.Format) {
			return nil, nil
		}
		return []domain.SourceFile{f}, nil
	}

	var files []domain.SourceFile
	err = filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() {
			if path != s.root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if !s.supports(domain.FormatFromPath(path)) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		files = append(files, fileFromInfo(path, info))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", s.root, err)
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}

// Open opens a previously listed file.
func (s *Filesystem) Open(_ context.Context, file domain.SourceFile) (io.ReadCloser, error) {
	return os.Open(file.Path)
}

func fileFromInfo(path string, info fs.FileInfo) domain.SourceFile {
	return domain.SourceFile{
		Path:    path,
		Size:    info.Size(),
		ModTime: info.ModTime(),
		Format:  domain.FormatFromPath(path),
	}
}
