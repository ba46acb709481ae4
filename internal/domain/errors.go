package domain

import (
	"errors"
	"fmt"
)

// DomainError represents a domain-specific error
type DomainError struct {
	Code    string
	Message string
	Err     error
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is reports whether target is a DomainError with the same code and message.
// It lets errors.Is match a wrapped sentinel such as ErrDeleteFailed.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Code == t.Code && e.Message == t.Message
}

// NewDomainError creates a new DomainError
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     nil,
	}
}

// NewDomainErrorWithCause creates a new DomainError with an underlying cause
func NewDomainErrorWithCause(code, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Common domain error codes
const (
	ErrCodeValidation    = "VALIDATION_ERROR"
	ErrCodeConversion    = "CONVERSION_ERROR"
	ErrCodeEmbedding     = "EMBEDDING_ERROR"
	ErrCodeIndex         = "INDEX_ERROR"
	ErrCodeNotFound      = "NOT_FOUND"
	ErrCodeUnauthorized  = "UNAUTHORIZED"
	ErrCodeInternalError = "INTERNAL_ERROR"
)

// Validation errors
var (
	ErrInvalidCorpus        = NewDomainError(ErrCodeValidation, "invalid corpus name")
	ErrInvalidTopK          = NewDomainError(ErrCodeValidation, "top_k must be a positive integer")
	ErrEmptyQuery           = NewDomainError(ErrCodeValidation, "query text is required")
	ErrInvalidChunkSize     = NewDomainError(ErrCodeValidation, "chunk target size must be positive")
	ErrInvalidChunkOverlap  = NewDomainError(ErrCodeValidation, "chunk overlap must be non-negative and smaller than the target size")
	ErrEmptyModel           = NewDomainError(ErrCodeValidation, "embedding model name is required")
	ErrInvalidDimension     = NewDomainError(ErrCodeValidation, "embedding dimension must be positive")
	ErrMissingFilter        = NewDomainError(ErrCodeValidation, "search requires a payload filter")
	ErrUnsupportedField     = NewDomainError(ErrCodeValidation, "unsupported payload filter field")
	ErrForeignPoint         = NewDomainError(ErrCodeValidation, "point does not belong to the document being synchronized")
	ErrDuplicatePointID     = NewDomainError(ErrCodeValidation, "duplicate point id in chunk set")
	ErrMissingRequiredField = NewDomainError(ErrCodeValidation, "missing required field")
	ErrInvalidConfig        = NewDomainError(ErrCodeValidation, "invalid configuration")
)

// Conversion errors
var (
	ErrUnsupportedFormat = NewDomainError(ErrCodeConversion, "unsupported document format")
	ErrCorruptDocument   = NewDomainError(ErrCodeConversion, "document could not be converted to text")
)

// Embedding errors
var (
	ErrEmbeddingFailed       = NewDomainError(ErrCodeEmbedding, "embedding request failed")
	ErrEmbeddingCount        = NewDomainError(ErrCodeEmbedding, "embedding response count does not match input count")
	ErrEmbeddingDimension    = NewDomainError(ErrCodeEmbedding, "embedding has wrong dimensions")
	ErrEmbeddingEmptyVectors = NewDomainError(ErrCodeEmbedding, "embedding response contained no vectors")
)

// Index errors
var (
	ErrDeleteFailed        = NewDomainError(ErrCodeIndex, "failed to delete previous chunks")
	ErrUpsertFailed        = NewDomainError(ErrCodeIndex, "failed to upsert chunks")
	ErrSearchFailed        = NewDomainError(ErrCodeIndex, "similarity search failed")
	ErrCollectionSetup     = NewDomainError(ErrCodeIndex, "failed to ensure collection")
	ErrCollectionDimension = NewDomainError(ErrCodeIndex, "collection exists with a different vector dimension")
	ErrVectorDimension     = NewDomainError(ErrCodeIndex, "vector dimension does not match collection")
)

// Lookup and access errors
var (
	ErrCollectionNotFound  = NewDomainError(ErrCodeNotFound, "collection not found")
	ErrSourceNotFound      = NewDomainError(ErrCodeNotFound, "ingestion root not found")
	ErrUnauthorized        = NewDomainError(ErrCodeUnauthorized, "invalid api key")
	ErrIngestNotConfigured = NewDomainError(ErrCodeValidation, "ingestion root is not configured")
)

// Wrap returns a copy of the sentinel carrying cause. errors.Is(result, sentinel) holds.
func Wrap(sentinel *DomainError, cause error) *DomainError {
	return NewDomainErrorWithCause(sentinel.Code, sentinel.Message, cause)
}

// ErrorCode returns the code of the first DomainError in err's chain, or "" if none.
func ErrorCode(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// IsInvalidArgument reports whether err is a validation error.
func IsInvalidArgument(err error) bool { return ErrorCode(err) == ErrCodeValidation }

// IsConversion reports whether err is a document conversion error.
func IsConversion(err error) bool { return ErrorCode(err) == ErrCodeConversion }

// IsEmbedding reports whether err is an embedding service error.
func IsEmbedding(err error) bool { return ErrorCode(err) == ErrCodeEmbedding }

// IsIndex reports whether err is a vector index error.
func IsIndex(err error) bool { return ErrorCode(err) == ErrCodeIndex }
