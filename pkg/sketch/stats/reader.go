package stats

import (
	"encoding/binary"
	"fmt"
	"os"

	mmap "github.com/edsrzf/mmap-go"

	"github.com/cognicore/sketch/pkg/sketch/internalerr"
	"github.com/cognicore/sketch/pkg/sketch/lexicon"
)

// Reader is the memory-mapped read-only form of a statistics file.
type Reader struct {
	f    *os.File
	data mmap.MMap

	totalTokens    uint64
	totalSentences uint64
	offsets        map[string]uint32
}

// OpenReader memory-maps a statistics file, validating header and structure
// in a single scan.
func OpenReader(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open stats: %v", internalerr.ErrIndexIO, err)
	}
	data, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: map stats: %v", internalerr.ErrIndexIO, err)
	}

	r := &Reader{f: f, data: data}
	if err := r.load(); err != nil {
		r.Close()
		return nil, err
	}
	return r, nil
}

func (r *Reader) load() error {
	b := []byte(r.data)
	if len(b) < 28 {
		return fmt.Errorf("%w: stats file shorter than header", internalerr.ErrIndexFormat)
	}
	if [4]byte(b[0:4]) != Magic {
		return fmt.Errorf("%w: bad stats magic %q", internalerr.ErrIndexFormat, b[0:4])
	}
	if v := binary.LittleEndian.Uint32(b[4:8]); v != Version {
		return fmt.Errorf("%w: stats version %d, want %d", internalerr.ErrIndexFormat, v, Version)
	}
	r.totalTokens = binary.LittleEndian.Uint64(b[8:16])
	r.totalSentences = binary.LittleEndian.Uint64(b[16:24])
	count := binary.LittleEndian.Uint32(b[24:28])
	r.offsets = make(map[string]uint32, count)

	off := 28
	for i := uint32(0); i < count; i++ {
		if off+2 > len(b) {
			return fmt.Errorf("%w: stats truncated at entry %d", internalerr.ErrIndexFormat, i)
		}
		start := off
		n := int(binary.LittleEndian.Uint16(b[off : off+2]))
		off += 2
		if off+n+18 > len(b) {
			return fmt.Errorf("%w: stats truncated at entry %d", internalerr.ErrIndexFormat, i)
		}
		lemma := string(b[off : off+n])
		off += n + 16 // skip freq + doc freq
		numTags := int(binary.LittleEndian.Uint16(b[off : off+2]))
		off += 2
		for t := 0; t < numTags; t++ {
			if off >= len(b) {
				return fmt.Errorf("%w: stats truncated in tag list of %q", internalerr.ErrIndexFormat, lemma)
			}
			tagLen := int(b[off])
			off += 1 + tagLen + 8
			if off > len(b) {
				return fmt.Errorf("%w: stats truncated in tag list of %q", internalerr.ErrIndexFormat, lemma)
			}
		}
		if _, dup := r.offsets[lemma]; dup {
			return fmt.Errorf("%w: duplicate stats entry %q", internalerr.ErrIndexFormat, lemma)
		}
		r.offsets[lemma] = uint32(start)
	}
	return nil
}

// Close unmaps and closes the underlying file.
func (r *Reader) Close() error {
	var first error
	if r.data != nil {
		if err := r.data.Unmap(); err != nil && first == nil {
			first = err
		}
		r.data = nil
	}
	if r.f != nil {
		if err := r.f.Close(); err != nil && first == nil {
			first = err
		}
		r.f = nil
	}
	return first
}

// TotalTokens returns the corpus token total.
func (r *Reader) TotalTokens() uint64 { return r.totalTokens }

// TotalSentences returns the corpus sentence total.
func (r *Reader) TotalSentences() uint64 { return r.totalSentences }

// FrequencyOf returns the total frequency of a lemma, 0 if absent.
func (r *Reader) FrequencyOf(lemma string) uint64 {
	off, ok := r.offsets[lexicon.Normalize(lemma)]
	if !ok {
		return 0
	}
	b := []byte(r.data)
	n := int(binary.LittleEndian.Uint16(b[off : off+2]))
	return binary.LittleEndian.Uint64(b[int(off)+2+n : int(off)+2+n+8])
}

// DocFrequencyOf returns the document frequency of a lemma, 0 if absent.
func (r *Reader) DocFrequencyOf(lemma string) uint64 {
	off, ok := r.offsets[lexicon.Normalize(lemma)]
	if !ok {
		return 0
	}
	b := []byte(r.data)
	n := int(binary.LittleEndian.Uint16(b[off : off+2]))
	return binary.LittleEndian.Uint64(b[int(off)+2+n+8 : int(off)+2+n+16])
}

// POSDistributionOf returns the tag distribution of a lemma, nil if absent.
func (r *Reader) POSDistributionOf(lemma string) map[string]uint64 {
	off, ok := r.offsets[lexicon.Normalize(lemma)]
	if !ok {
		return nil
	}
	b := []byte(r.data)
	p := int(off)
	n := int(binary.LittleEndian.Uint16(b[p : p+2]))
	p += 2 + n + 16
	numTags := int(binary.LittleEndian.Uint16(b[p : p+2]))
	p += 2
	dist := make(map[string]uint64, numTags)
	for t := 0; t < numTags; t++ {
		tagLen := int(b[p])
		tag := string(b[p+1 : p+1+tagLen])
		p += 1 + tagLen
		dist[tag] = binary.LittleEndian.Uint64(b[p : p+8])
		p += 8
	}
	return dist
}
