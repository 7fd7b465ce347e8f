package lexicon

import (
	"fmt"

	"github.com/cognicore/sketch/pkg/sketch/internalerr"
)

// Source is the read contract shared by the mmap Lexicon and the in-build
// Builder (through View). The precomputation pipeline depends on this
// interface so it can run either against a freshly built corpus or a
// reopened one.
type Source interface {
	LemmaOf(id uint32) (string, error)
	IDOf(lemma string) (uint32, bool)
	FrequencyOf(lemma string) uint64
	FrequencyOfID(id uint32) uint64
	MostFrequentPOSOf(id uint32) (string, error)
	TotalTokens() uint64
	TotalSentences() uint64
	Len() int
}

// View adapts a Builder to the Source contract.
type View struct{ b *Builder }

// View returns the builder's read-only Source adapter.
func (b *Builder) View() *View { return &View{b: b} }

func (v *View) LemmaOf(id uint32) (string, error) {
	lemma, ok := v.b.LemmaOf(id)
	if !ok {
		return "", fmt.Errorf("%w: lemma id %d out of range", internalerr.ErrInvariant, id)
	}
	return lemma, nil
}

func (v *View) IDOf(lemma string) (uint32, bool) { return v.b.IDOf(lemma) }

func (v *View) FrequencyOf(lemma string) uint64 { return v.b.FrequencyOf(lemma) }

func (v *View) FrequencyOfID(id uint32) uint64 { return v.b.FrequencyOfID(id) }

func (v *View) MostFrequentPOSOf(id uint32) (string, error) {
	if int(id) >= v.b.Len() {
		return "", fmt.Errorf("%w: lemma id %d out of range", internalerr.ErrInvariant, id)
	}
	return v.b.MostFrequentPOSOf(id), nil
}

func (v *View) TotalTokens() uint64 { return v.b.TotalTokens() }

func (v *View) TotalSentences() uint64 { return v.b.TotalSentences() }

func (v *View) Len() int { return v.b.Len() }
