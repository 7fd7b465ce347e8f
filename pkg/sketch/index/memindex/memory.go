// Package memindex provides an in-memory sentence index. It backs tests and
// small corpora; the durable backend lives in the sibling sqlindex package.
package memindex

import (
	"context"
	"fmt"
	"sync"

	"github.com/cognicore/sketch/pkg/sketch/index"
	"github.com/cognicore/sketch/pkg/sketch/internalerr"
)

type memIndex struct {
	mu        sync.RWMutex
	postings  map[index.Field]map[string][]index.Posting
	sentences map[uint32]index.Stored
	meta      map[string]string
	lastID    uint32
	hasDocs   bool
}

// New creates an empty in-memory index.
func New() index.Index {
	return &memIndex{
		postings:  make(map[index.Field]map[string][]index.Posting),
		sentences: make(map[uint32]index.Stored),
		meta:      make(map[string]string),
	}
}

func (m *memIndex) Close() error { return nil }

func (m *memIndex) Append(_ context.Context, doc index.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.hasDocs && doc.SentenceID <= m.lastID {
		return fmt.Errorf("%w: sentence id %d not in insertion order", internalerr.ErrInvariant, doc.SentenceID)
	}
	if _, dup := m.sentences[doc.SentenceID]; dup {
		return fmt.Errorf("%w: duplicate sentence id %d", internalerr.ErrInvariant, doc.SentenceID)
	}

	for _, tok := range doc.Tokens {
		for field, term := range index.TermsOf(tok) {
			byTerm := m.postings[field]
			if byTerm == nil {
				byTerm = make(map[string][]index.Posting)
				m.postings[field] = byTerm
			}
			list := byTerm[term]
			if n := len(list); n > 0 && list[n-1].SentenceID == doc.SentenceID {
				list[n-1].Positions = append(list[n-1].Positions, uint32(tok.Position))
			} else {
				list = append(list, index.Posting{
					SentenceID: doc.SentenceID,
					Positions:  []uint32{uint32(tok.Position)},
				})
			}
			byTerm[term] = list
		}
	}

	m.sentences[doc.SentenceID] = index.Stored{
		ID:        doc.SentenceID,
		Text:      doc.Text,
		TokenBlob: append([]byte(nil), doc.TokenBlob...),
		LemmaBlob: append([]byte(nil), doc.LemmaBlob...),
	}
	m.lastID = doc.SentenceID
	m.hasDocs = true
	return nil
}

func (m *memIndex) PutMeta(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.meta[key] = value
	return nil
}

func (m *memIndex) GetMeta(_ context.Context, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.meta[key], nil
}

func (m *memIndex) Postings(_ context.Context, field index.Field, term string) ([]index.Posting, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	byTerm := m.postings[field]
	if byTerm == nil {
		return nil, nil
	}
	return byTerm[index.NormalizeTerm(term)], nil
}

func (m *memIndex) Sentence(_ context.Context, id uint32) (index.Stored, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sentences[id]
	if !ok {
		return index.Stored{}, fmt.Errorf("%w: sentence %d not found", internalerr.ErrInvariant, id)
	}
	return s, nil
}

func (m *memIndex) SentenceCount(_ context.Context) (uint32, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return uint32(len(m.sentences)), nil
}
