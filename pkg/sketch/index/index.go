// Package index defines the sentence-granular positional index: per
// sentence, positioned terms for the lemma/word/tag/deprel fields plus
// per-sentence columns holding the token-sequence and lemma-id blobs and the
// raw text. Backends implement Index; positional span queries execute on top
// of the posting contract in spans.go.
package index

import (
	"context"
	"strings"

	"github.com/cognicore/sketch/pkg/sketch/corpus"
)

// Field names an indexed token attribute.
type Field string

const (
	FieldLemma  Field = "lemma"
	FieldWord   Field = "word"
	FieldTag    Field = "tag"
	FieldDeprel Field = "deprel"
)

// Meta keys recorded by the build pipeline.
const (
	MetaHasDeprel     = "has_deprel"
	MetaSentenceCount = "sentence_count"
)

// Document is one sentence prepared for appending: the decoded tokens plus
// the pre-encoded per-sentence columns.
type Document struct {
	SentenceID uint32
	Text       string
	Tokens     []corpus.Token
	TokenBlob  []byte
	LemmaBlob  []byte
}

// Stored is the per-sentence column set returned by Sentence.
type Stored struct {
	ID        uint32
	Text      string
	TokenBlob []byte
	LemmaBlob []byte
}

// Posting is the occurrence list of one term in one sentence. Positions are
// token positions, sorted ascending.
type Posting struct {
	SentenceID uint32
	Positions  []uint32
}

// Index is the sentence index contract. Appends are serialized behind a
// single writer during a build; all read methods are safe for concurrent use
// once the build is finished.
type Index interface {
	Close() error

	// Append adds one sentence document. Sentence ids must arrive in strict
	// insertion order.
	Append(ctx context.Context, doc Document) error

	// PutMeta and GetMeta store small build-time settings such as whether
	// the token codec carries dependency labels. GetMeta returns "" for an
	// absent key.
	PutMeta(ctx context.Context, key, value string) error
	GetMeta(ctx context.Context, key string) (string, error)

	// Postings returns the posting list of a term in a field, sorted by
	// sentence id.
	Postings(ctx context.Context, field Field, term string) ([]Posting, error)

	// Sentence returns the per-sentence columns for a document id.
	Sentence(ctx context.Context, id uint32) (Stored, error)

	// SentenceCount returns the number of indexed sentences.
	SentenceCount(ctx context.Context) (uint32, error)
}

// TermsOf derives the positioned terms of one token, normalized for
// case-insensitive matching. Empty deprel contributes no deprel term.
func TermsOf(t corpus.Token) map[Field]string {
	terms := map[Field]string{
		FieldLemma: NormalizeTerm(t.Lemma),
		FieldWord:  NormalizeTerm(t.Word),
		FieldTag:   NormalizeTerm(t.Tag),
	}
	if t.Deprel != "" {
		terms[FieldDeprel] = NormalizeTerm(t.Deprel)
	}
	return terms
}

// NormalizeTerm lowercases a term the way every field is compared.
func NormalizeTerm(s string) string { return strings.ToLower(s) }
