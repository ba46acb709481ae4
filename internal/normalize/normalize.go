// Package normalize converts source documents into markdown-flavoured plain text.
package normalize

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/cloo-solutions/ragsync/internal/domain"
)

// MaxDocumentBytes caps how much of a single file is read.
const MaxDocumentBytes = 64 << 20

// Converter turns raw file bytes of one format into text.
type Converter interface {
	Convert(ctx context.Context, raw []byte) (string, error)
}

// ConverterFunc adapts a function to Converter.
type ConverterFunc func(ctx context.Context, raw []byte) (string, error)

func (f ConverterFunc) Convert(ctx context.Context, raw []byte) (string, error) {
	return f(ctx, raw)
}

// Registry dispatches files to a Converter by format.
type Registry struct {
	converters map[domain.Format]Converter
}

// NewRegistry returns a registry with every built-in format registered.
func NewRegistry() *Registry {
	r := &Registry{converters: make(map[domain.Format]Converter)}
	r.Register(domain.FormatMarkdown, ConverterFunc(convertText))
	r.Register(domain.FormatPlainText, ConverterFunc(convertText))
	r.Register(domain.FormatDocx, NewDocxConverter())
	r.Register(domain.FormatHTML, NewHTMLConverter())
	return r
}

// Register sets the converter for format, replacing any previous one.
func (r *Registry) Register(format domain.Format, c Converter) {
	r.converters[format] = c
}

// Supports reports whether a converter is registered for format.
func (r *Registry) Supports(format domain.Format) bool {
	_, ok := r.converters[format]
	return ok
}

// Normalize reads file from rd and converts it. Line endings are normalized to "\n".
func (r *Registry) Normalize(ctx context.Context, file domain.SourceFile, rd io.Reader) (string, error) {
	format := file.Format
	if format == domain.FormatUnknown {
		format = domain.FormatFromPath(file.Path)
	}
	c, ok := r.converters[format]
	if !ok {
		return "", domain.Wrap(domain.ErrUnsupportedFormat, fmt.Errorf("%s", file.Path))
	}

	raw, err := io.ReadAll(io.LimitReader(rd, MaxDocumentBytes+1))
	if err != nil {
		return "", fmt.Errorf("read %s: %w", file.Path, err)
	}
	if len(raw) > MaxDocumentBytes {
		return "", domain.Wrap(domain.ErrUnsupportedFormat, fmt.Errorf("%s exceeds %d bytes", file.Path, MaxDocumentBytes))
	}

	text, err := c.Convert(ctx, raw)
	if err != nil {
		if domain.IsConversion(err) {
			return "", err
		}
		return "", domain.Wrap(domain.ErrCorruptDocument, fmt.Errorf("%s: %w", file.Path, err))
	}

	return normalizeNewlines(text), nil
}

// convertText decodes UTF-8, dropping invalid byte sequences.
func convertText(_ context.Context, raw []byte) (string, error) {
	return strings.ToValidUTF8(string(raw), ""), nil
}

func normalizeNewlines(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\r", "\n")
}
