package domain

import (
	"fmt"
	"regexp"
)

// DefaultCorpus is used when no corpus is named.
const DefaultCorpus = "default"

// maxCollectionName matches the PostgreSQL identifier limit, the strictest backend.
const maxCollectionName = 63

var corpusNameRe = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// ValidateCorpus checks that a corpus name can be used to build a collection name.
func ValidateCorpus(corpus string) error {
	if corpus == "" || !corpusNameRe.MatchString(corpus) {
		return NewDomainErrorWithCause(ErrInvalidCorpus.Code, ErrInvalidCorpus.Message,
			fmt.Errorf("%q: only letters, digits, '_' and '-' are allowed", corpus))
	}
	return nil
}

// CollectionName maps a corpus to its physical collection.
func CollectionName(prefix, corpus string) (string, error) {
	if err := ValidateCorpus(corpus); err != nil {
		return "", err
	}
	name := prefix + corpus
	if len(name) > maxCollectionName {
		return "", NewDomainErrorWithCause(ErrInvalidCorpus.Code, ErrInvalidCorpus.Message,
			fmt.Errorf("collection name %q exceeds %d characters", name, maxCollectionName))
	}
	return name, nil
}

// FieldMatch is an equality condition on a payload field.
type FieldMatch struct {
	Field string
	Value string
}

// Filter is a conjunction of field matches.
type Filter []FieldMatch

// Validate rejects empty filters and fields that are not filterable.
func (f Filter) Validate() error {
	if len(f) == 0 {
		return ErrMissingFilter
	}
	for _, m := range f {
		if _, ok := (Payload{}).Field(m.Field); !ok {
			return NewDomainErrorWithCause(ErrUnsupportedField.Code, ErrUnsupportedField.Message,
				fmt.Errorf("field %q", m.Field))
		}
	}
	return nil
}

// Matches reports whether the payload satisfies every condition.
func (f Filter) Matches(p Payload) bool {
	for _, m := range f {
		v, ok := p.Field(m.Field)
		if !ok || v != m.Value {
			return false
		}
	}
	return true
}

// CorpusFilter is the mandatory search filter for a corpus.
func CorpusFilter(corpus string) Filter {
	return Filter{{Field: FieldCorpusID, Value: corpus}}
}

// DocumentFilter selects every chunk of one document within a corpus.
func DocumentFilter(corpus, documentID string) Filter {
	return Filter{
		{Field: FieldCorpusID, Value: corpus},
		{Field: FieldDocumentID, Value: documentID},
	}
}
