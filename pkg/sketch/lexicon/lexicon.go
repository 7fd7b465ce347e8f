// Package lexicon maintains the bijection between lemma strings and dense
// integer ids, together with the corpus totals and per-lemma frequency the
// scorers consume.
//
// A Builder assigns ids in first-seen order during an index build and writes
// the frozen form to disk; a Lexicon memory-maps that file read-only.
package lexicon

import (
	"encoding/binary"
	"fmt"
	"os"
	"strings"

	"github.com/cognicore/sketch/pkg/sketch/internalerr"
)

// Magic identifies a lexicon file; Version its layout revision.
var Magic = [4]byte{'S', 'K', 'L', 'X'}

const Version uint32 = 1

const maxLemmaLen = 0xFFFF

// Builder assigns dense lemma ids during a build. Ids start at 0 and grow in
// first-seen order; the builder is not safe for concurrent use (the build
// pipeline has a single writer).
type Builder struct {
	ids            map[string]uint32
	entries        []entry
	totalTokens    uint64
	totalSentences uint64
}

type entry struct {
	lemma   string
	freq    uint64
	posDist map[string]uint64
}

// NewBuilder creates an empty lexicon builder.
func NewBuilder() *Builder {
	return &Builder{ids: make(map[string]uint32)}
}

// GetOrAssign returns the stable id for a lemma, assigning the next dense id
// on first sight. The lemma is normalized (lowercased, trimmed) before lookup.
func (b *Builder) GetOrAssign(lemma string) (uint32, error) {
	lemma = Normalize(lemma)
	if id, ok := b.ids[lemma]; ok {
		return id, nil
	}
	if len(lemma) > maxLemmaLen {
		return 0, fmt.Errorf("%w: lemma exceeds %d bytes", internalerr.ErrInvariant, maxLemmaLen)
	}
	id := uint32(len(b.entries))
	b.ids[lemma] = id
	b.entries = append(b.entries, entry{lemma: lemma, posDist: make(map[string]uint64)})
	return id, nil
}

// AddOccurrence records one occurrence of a lemma with the given POS tag and
// returns the lemma's id.
func (b *Builder) AddOccurrence(lemma, tag string) (uint32, error) {
	id, err := b.GetOrAssign(lemma)
	if err != nil {
		return 0, err
	}
	e := &b.entries[id]
	e.freq++
	e.posDist[tag]++
	b.totalTokens++
	return id, nil
}

// AddSentence bumps the sentence total.
func (b *Builder) AddSentence() { b.totalSentences++ }

// Len returns the number of assigned lemmas.
func (b *Builder) Len() int { return len(b.entries) }

// LemmaOf returns the string for an id assigned by this builder.
func (b *Builder) LemmaOf(id uint32) (string, bool) {
	if int(id) >= len(b.entries) {
		return "", false
	}
	return b.entries[id].lemma, true
}

// IDOf returns the id for a normalized lemma.
func (b *Builder) IDOf(lemma string) (uint32, bool) {
	id, ok := b.ids[Normalize(lemma)]
	return id, ok
}

// FrequencyOf returns the running total frequency for a lemma, 0 if absent.
func (b *Builder) FrequencyOf(lemma string) uint64 {
	if id, ok := b.ids[Normalize(lemma)]; ok {
		return b.entries[id].freq
	}
	return 0
}

// FrequencyOfID returns the running total frequency for an id.
func (b *Builder) FrequencyOfID(id uint32) uint64 {
	if int(id) >= len(b.entries) {
		return 0
	}
	return b.entries[id].freq
}

// MostFrequentPOSOf returns the most frequent tag recorded for an id, with
// lexicographic tie-break for determinism.
func (b *Builder) MostFrequentPOSOf(id uint32) string {
	if int(id) >= len(b.entries) {
		return ""
	}
	return argmaxPOS(b.entries[id].posDist)
}

// TotalTokens returns the running token total.
func (b *Builder) TotalTokens() uint64 { return b.totalTokens }

// TotalSentences returns the running sentence total.
func (b *Builder) TotalSentences() uint64 { return b.totalSentences }

// WriteFile persists the frozen lexicon. The file is written to a temporary
// sibling and renamed into place.
func (b *Builder) WriteFile(path string) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("%w: create lexicon: %v", internalerr.ErrIndexIO, err)
	}
	defer f.Close()

	var hdr [24]byte
	copy(hdr[0:4], Magic[:])
	binary.LittleEndian.PutUint32(hdr[4:8], Version)
	binary.LittleEndian.PutUint64(hdr[8:16], b.totalTokens)
	binary.LittleEndian.PutUint64(hdr[16:24], b.totalSentences)
	if _, err := f.Write(hdr[:]); err != nil {
		return fmt.Errorf("%w: write lexicon header: %v", internalerr.ErrIndexIO, err)
	}

	var cnt [4]byte
	binary.LittleEndian.PutUint32(cnt[:], uint32(len(b.entries)))
	if _, err := f.Write(cnt[:]); err != nil {
		return fmt.Errorf("%w: write lexicon entry count: %v", internalerr.ErrIndexIO, err)
	}

	buf := make([]byte, 0, 64)
	for _, e := range b.entries {
		pos := argmaxPOS(e.posDist)
		if len(pos) > 0xFF {
			pos = pos[:0xFF]
		}
		buf = buf[:0]
		buf = binary.LittleEndian.AppendUint16(buf, uint16(len(e.lemma)))
		buf = append(buf, e.lemma...)
		buf = binary.LittleEndian.AppendUint64(buf, e.freq)
		buf = append(buf, byte(len(pos)))
		buf = append(buf, pos...)
		if _, err := f.Write(buf); err != nil {
			return fmt.Errorf("%w: write lexicon entry: %v", internalerr.ErrIndexIO, err)
		}
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("%w: close lexicon: %v", internalerr.ErrIndexIO, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("%w: finalize lexicon: %v", internalerr.ErrIndexIO, err)
	}
	return nil
}

// Normalize lowercases and trims a lemma the way both build and query paths
// expect it.
func Normalize(lemma string) string {
	return strings.ToLower(strings.TrimSpace(lemma))
}

func argmaxPOS(dist map[string]uint64) string {
	var best string
	var bestN uint64
	for tag, n := range dist {
		if n > bestN || (n == bestN && (best == "" || tag < best)) {
			best, bestN = tag, n
		}
	}
	return best
}
