package service

import (
	"fmt"
	"sort"
	"strings"

	"github.com/cloo-solutions/ragsync/internal/domain"
)

// charsPerToken approximates a tokenizer: sizes are configured in tokens and applied in characters.
const charsPerToken = 4

const (
	DefaultChunkTokens   = 800
	DefaultOverlapTokens = 120
)

// A boundary cut must keep at least 3/5 of the target size in the chunk.
const (
	minCutNum = 3
	minCutDen = 5
)

// boundaryMarkers are tried in order; the first marker with a match in the window wins.
var boundaryMarkers = [][]rune{
	[]rune("\n## "),
	[]rune("\n# "),
	[]rune("\n\n"),
}

// SplitConfig controls chunk sizing, in characters.
type SplitConfig struct {
	TargetSize int
	Overlap    int
}

// SplitConfigFromTokens converts token budgets to character budgets.
func SplitConfigFromTokens(targetTokens, overlapTokens int) SplitConfig {
	return SplitConfig{
		TargetSize: targetTokens * charsPerToken,
		Overlap:    overlapTokens * charsPerToken,
	}
}

// DefaultSplitConfig provides the default 800/120 token budget.
func DefaultSplitConfig() SplitConfig {
	return SplitConfigFromTokens(DefaultChunkTokens, DefaultOverlapTokens)
}

// Validate checks the sizing constraints.
func (c SplitConfig) Validate() error {
	if c.TargetSize <= 0 {
		return domain.Wrap(domain.ErrInvalidChunkSize, c.describe())
	}
	if c.Overlap < 0 || c.Overlap >= c.TargetSize {
		return domain.Wrap(domain.ErrInvalidChunkOverlap, c.describe())
	}
	return nil
}

func (c SplitConfig) describe() error {
	return fmt.Errorf("target=%d overlap=%d", c.TargetSize, c.Overlap)
}

// Splitter cuts normalized text into overlapping, section-aware chunks.
type Splitter struct {
	cfg SplitConfig
}

// NewSplitter validates cfg and returns a Splitter.
func NewSplitter(cfg SplitConfig) (*Splitter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Splitter{cfg: cfg}, nil
}

// Config returns the splitter's sizing.
func (s *Splitter) Config() SplitConfig {
	return s.cfg
}

// Split is pure and total: the same text always yields the same chunks.
// Chunk indexes are dense from 0 and every chunk text is non-empty and trimmed.
func (s *Splitter) Split(text string) []domain.Chunk {
	runes := []rune(text)
	n := len(runes)
	target := s.cfg.TargetSize
	minSpan := (target*minCutNum + minCutDen - 1) / minCutDen

	sections := newSectionIndex(runes)

	var chunks []domain.Chunk
	start := 0
	for start < n {
		end := start + target
		if end > n {
			end = n
		}

		cut := end
		if b := lastBoundary(runes, start, end); b >= 0 && b >= start+minSpan {
			cut = b
		}

		if trimmed := strings.TrimSpace(string(runes[start:cut])); trimmed != "" {
			chunks = append(chunks, domain.Chunk{
				Index:   len(chunks),
				Text:    trimmed,
				Section: sections.before(cut),
			})
		}

		if cut >= n {
			break
		}

		next := cut - s.cfg.Overlap
		if next <= start {
			next = cut
		}
		start = next
	}

	return chunks
}

// lastBoundary returns the position of the latest occurrence of the highest
// priority marker lying entirely within [start, end), or -1.
func lastBoundary(runes []rune, start, end int) int {
	for _, marker := range boundaryMarkers {
		if i := lastIndex(runes, marker, start, end); i >= 0 {
			return i
		}
	}
	return -1
}

func lastIndex(runes, marker []rune, start, end int) int {
	for i := end - len(marker); i >= start; i-- {
		if hasPrefixAt(runes, marker, i) {
			return i
		}
	}
	return -1
}

func hasPrefixAt(runes, marker []rune, at int) bool {
	for j, r := range marker {
		if runes[at+j] != r {
			return false
		}
	}
	return true
}

// sectionIndex answers "latest heading before offset" queries in O(log h)
// from heading line starts collected once per text.
type sectionIndex struct {
	runes    []rune
	starts   []int
	lastPos  int
	lastText string
}

func newSectionIndex(runes []rune) *sectionIndex {
	var starts []int
	for i, r := range runes {
		if r == '#' && (i == 0 || runes[i-1] == '\n') {
			starts = append(starts, i)
		}
	}
	return &sectionIndex{runes: runes, starts: starts, lastPos: -1}
}

// before returns the trimmed text of the latest heading line that starts
// before cut, or "" when there is none.
func (x *sectionIndex) before(cut int) string {
	i := sort.SearchInts(x.starts, cut) - 1
	if i < 0 {
		return ""
	}
	pos := x.starts[i]
	if pos != x.lastPos {
		end := pos
		for end < len(x.runes) && x.runes[end] != '\n' {
			end++
		}
		x.lastPos = pos
		x.lastText = strings.TrimSpace(string(x.runes[pos:end]))
	}
	return x.lastText
}
