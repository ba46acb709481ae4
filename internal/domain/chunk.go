package domain

import (
	"strconv"

	"github.com/google/uuid"
)

// chunkNamespace scopes chunk ids. Changing it re-keys every stored point.
var chunkNamespace = uuid.MustParse("6f1c5a2e-3b8d-5e4f-9a7c-2d0b1e8f4c63")

// Chunk is one contiguous, trimmed span of a document's normalized text.
type Chunk struct {
	Index   int
	Text    string
	Section string
}

// NewChunkID returns a UUIDv5 over "documentID:index". It is stable across
// runs and platforms and valid as a point id for every index backend.
func NewChunkID(documentID string, index int) string {
	return uuid.NewSHA1(chunkNamespace, []byte(documentID+":"+strconv.Itoa(index))).String()
}

// Payload keys as stored in the vector index.
const (
	FieldCorpusID    = "corpus_id"
	FieldDocumentID  = "doc_id"
	FieldSourcePath  = "source_path"
	FieldChunkIndex  = "chunk_index"
	FieldChunkText   = "chunk_text"
	FieldSection     = "section"
	FieldContentHash = "content_hash"
	FieldTimestamp   = "timestamp"
)

// Payload is the metadata stored alongside each vector.
type Payload struct {
	CorpusID    string `json:"corpus_id"`
	DocumentID  string `json:"doc_id"`
	SourcePath  string `json:"source_path"`
	ChunkIndex  int    `json:"chunk_index"`
	Text        string `json:"chunk_text"`
	Section     string `json:"section"`
	ContentHash string `json:"content_hash,omitempty"`
	IngestedAt  int64  `json:"timestamp"`
}

// Field returns the string value of a filterable payload field.
func (p Payload) Field(name string) (string, bool) {
	switch name {
	case FieldCorpusID:
		return p.CorpusID, true
	case FieldDocumentID:
		return p.DocumentID, true
	case FieldSourcePath:
		return p.SourcePath, true
	}
	return "", false
}

// Point is an embedded chunk ready to be written to the index.
type Point struct {
	ID      string
	Vector  []float32
	Payload Payload
}

// SearchHit is a single similarity search result. Higher scores are more relevant.
type SearchHit struct {
	ID      string
	Score   float32
	Payload Payload
}
