package domain

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// Format identifies how a source file is converted to text.
type Format string

const (
	FormatMarkdown  Format = "markdown"
	FormatPlainText Format = "plaintext"
	FormatDocx      Format = "docx"
	FormatHTML      Format = "html"
	FormatUnknown   Format = ""
)

// FormatFromPath detects a file's format from its extension.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".markdown":
		return FormatMarkdown
	case ".txt":
		return FormatPlainText
	case ".docx":
		return FormatDocx
	case ".html", ".htm":
		return FormatHTML
	default:
		return FormatUnknown
	}
}

// SourceFile is a file discovered by an ingestion source.
type SourceFile struct {
	Path    string // logical path: filesystem path or s3://bucket/key
	Size    int64
	ModTime time.Time
	Format  Format
}

// Document is one source file within a single ingestion pass.
type Document struct {
	ID      string
	Path    string
	Size    int64
	ModTime time.Time
}

// NewDocument derives the document identity for a discovered file.
func NewDocument(f SourceFile) Document {
	return Document{
		ID:      NewDocumentID(f.Path, f.Size, f.ModTime),
		Path:    f.Path,
		Size:    f.Size,
		ModTime: f.ModTime,
	}
}

// NewDocumentID returns hex(sha1("path:size:mtime")), with mtime in whole
// Unix seconds. A content edit that keeps both size and mtime yields the same id.
func NewDocumentID(path string, size int64, modTime time.Time) string {
	sum := sha1.Sum([]byte(fmt.Sprintf("%s:%d:%d", path, size, modTime.Unix())))
	return hex.EncodeToString(sum[:])
}
