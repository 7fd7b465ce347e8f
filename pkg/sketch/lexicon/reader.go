package lexicon

import (
	"encoding/binary"
	"fmt"
	"os"
	"unsafe"

	mmap "github.com/edsrzf/mmap-go"

	"github.com/cognicore/sketch/pkg/sketch/internalerr"
)

// Lexicon is the read-only, memory-mapped form of a built lexicon. Lemma
// views returned by LemmaOf are backed by the map and stay valid until Close.
type Lexicon struct {
	f    *os.File
	data mmap.MMap

	totalTokens    uint64
	totalSentences uint64

	// offsets[id] is the byte offset of entry id; byLemma the reverse lookup.
	offsets []uint32
	byLemma map[string]uint32
}

// Open memory-maps a lexicon file and builds the in-memory offset array and
// reverse lookup in one scan.
func Open(path string) (*Lexicon, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open lexicon: %v", internalerr.ErrIndexIO, err)
	}
	data, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: map lexicon: %v", internalerr.ErrIndexIO, err)
	}

	l := &Lexicon{f: f, data: data}
	if err := l.load(); err != nil {
		l.Close()
		return nil, err
	}
	return l, nil
}

func (l *Lexicon) load() error {
	b := []byte(l.data)
	if len(b) < 28 {
		return fmt.Errorf("%w: lexicon file shorter than header", internalerr.ErrIndexFormat)
	}
	if [4]byte(b[0:4]) != Magic {
		return fmt.Errorf("%w: bad lexicon magic %q", internalerr.ErrIndexFormat, b[0:4])
	}
	if v := binary.LittleEndian.Uint32(b[4:8]); v != Version {
		return fmt.Errorf("%w: lexicon version %d, want %d", internalerr.ErrIndexFormat, v, Version)
	}
	l.totalTokens = binary.LittleEndian.Uint64(b[8:16])
	l.totalSentences = binary.LittleEndian.Uint64(b[16:24])
	count := binary.LittleEndian.Uint32(b[24:28])

	l.offsets = make([]uint32, count)
	l.byLemma = make(map[string]uint32, count)

	off := 28
	for id := uint32(0); id < count; id++ {
		if off+2 > len(b) {
			return fmt.Errorf("%w: lexicon truncated at entry %d", internalerr.ErrIndexFormat, id)
		}
		l.offsets[id] = uint32(off)
		n := int(binary.LittleEndian.Uint16(b[off : off+2]))
		off += 2
		if off+n+9 > len(b) {
			return fmt.Errorf("%w: lexicon truncated at entry %d", internalerr.ErrIndexFormat, id)
		}
		lemma := string(b[off : off+n])
		if _, dup := l.byLemma[lemma]; dup {
			return fmt.Errorf("%w: duplicate lemma %q at id %d", internalerr.ErrIndexFormat, lemma, id)
		}
		l.byLemma[lemma] = id
		off += n + 8 // skip frequency
		posLen := int(b[off])
		off += 1 + posLen
		if off > len(b) {
			return fmt.Errorf("%w: lexicon truncated at entry %d", internalerr.ErrIndexFormat, id)
		}
	}
	return nil
}

// Close unmaps and closes the underlying file.
func (l *Lexicon) Close() error {
	var first error
	if l.data != nil {
		if err := l.data.Unmap(); err != nil && first == nil {
			first = err
		}
		l.data = nil
	}
	if l.f != nil {
		if err := l.f.Close(); err != nil && first == nil {
			first = err
		}
		l.f = nil
	}
	return first
}

// Len returns the number of lemmas.
func (l *Lexicon) Len() int { return len(l.offsets) }

// TotalTokens returns the corpus token total recorded at build time.
func (l *Lexicon) TotalTokens() uint64 { return l.totalTokens }

// TotalSentences returns the corpus sentence total recorded at build time.
func (l *Lexicon) TotalSentences() uint64 { return l.totalSentences }

// LemmaOf returns the lemma string for an id as a zero-copy view of the map.
func (l *Lexicon) LemmaOf(id uint32) (string, error) {
	if int(id) >= len(l.offsets) {
		return "", fmt.Errorf("%w: lemma id %d out of range", internalerr.ErrInvariant, id)
	}
	b := []byte(l.data)
	off := int(l.offsets[id])
	n := int(binary.LittleEndian.Uint16(b[off : off+2]))
	return viewString(b[off+2 : off+2+n]), nil
}

// IDOf returns the dense id of a lemma.
func (l *Lexicon) IDOf(lemma string) (uint32, bool) {
	id, ok := l.byLemma[Normalize(lemma)]
	return id, ok
}

// FrequencyOf returns the total frequency of a lemma, 0 if absent.
func (l *Lexicon) FrequencyOf(lemma string) uint64 {
	id, ok := l.byLemma[Normalize(lemma)]
	if !ok {
		return 0
	}
	return l.FrequencyOfID(id)
}

// FrequencyOfID returns the total frequency recorded for an id.
func (l *Lexicon) FrequencyOfID(id uint32) uint64 {
	if int(id) >= len(l.offsets) {
		return 0
	}
	b := []byte(l.data)
	off := int(l.offsets[id])
	n := int(binary.LittleEndian.Uint16(b[off : off+2]))
	return binary.LittleEndian.Uint64(b[off+2+n : off+2+n+8])
}

// MostFrequentPOSOf returns the most frequent tag recorded for an id, as a
// zero-copy view of the map.
func (l *Lexicon) MostFrequentPOSOf(id uint32) (string, error) {
	if int(id) >= len(l.offsets) {
		return "", fmt.Errorf("%w: lemma id %d out of range", internalerr.ErrInvariant, id)
	}
	b := []byte(l.data)
	off := int(l.offsets[id])
	n := int(binary.LittleEndian.Uint16(b[off : off+2]))
	off += 2 + n + 8
	posLen := int(b[off])
	return viewString(b[off+1 : off+1+posLen]), nil
}

// viewString reinterprets mapped bytes as a string without copying. The map
// is read-only and outlives every returned view until Close.
func viewString(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	return unsafe.String(&b[0], len(b))
}
