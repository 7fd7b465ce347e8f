package precompute

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"sort"
	"unsafe"

	mmap "github.com/edsrzf/mmap-go"

	"github.com/cognicore/sketch/pkg/sketch/internalerr"
)

// Reader serves O(1)-ish lookups into a precomputed collocation file: the
// file is memory-mapped, the offset table parsed once, and each lookup is a
// binary search plus one entry decode. Lemma and POS strings in returned
// entries are zero-copy views backed by the map; they stay valid until
// Close.
type Reader struct {
	f    *os.File
	data mmap.MMap

	window      int
	k           int
	totalTokens uint64
	refs        []entryRef
}

type entryRef struct {
	head   string
	offset uint64
}

// OpenReader memory-maps a precomputed collocation file.
func OpenReader(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open collocation file: %v", internalerr.ErrIndexIO, err)
	}
	data, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: map collocation file: %v", internalerr.ErrIndexIO, err)
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
	if len(b) < headerSize {
		return fmt.Errorf("%w: collocation file shorter than header", internalerr.ErrIndexFormat)
	}
	if [8]byte(b[0:8]) != collocMagic {
		return fmt.Errorf("%w: bad collocation magic %q", internalerr.ErrIndexFormat, b[0:8])
	}
	if v := binary.LittleEndian.Uint32(b[8:12]); v != collocVersion {
		return fmt.Errorf("%w: collocation version %d, want %d", internalerr.ErrIndexFormat, v, collocVersion)
	}
	count := binary.LittleEndian.Uint32(b[12:16])
	r.window = int(binary.LittleEndian.Uint32(b[16:20]))
	r.k = int(binary.LittleEndian.Uint32(b[20:24]))
	r.totalTokens = binary.LittleEndian.Uint64(b[24:32])
	tableOff := binary.LittleEndian.Uint64(b[32:40])
	tableSize := binary.LittleEndian.Uint64(b[40:48])
	if tableOff+tableSize > uint64(len(b)) {
		return fmt.Errorf("%w: offset table outside file", internalerr.ErrIndexFormat)
	}

	table := b[tableOff : tableOff+tableSize]
	if len(table) < 4 {
		return fmt.Errorf("%w: offset table shorter than count", internalerr.ErrIndexFormat)
	}
	if got := binary.LittleEndian.Uint32(table[0:4]); got != count {
		return fmt.Errorf("%w: offset table count %d, header says %d", internalerr.ErrIndexFormat, got, count)
	}

	r.refs = make([]entryRef, 0, count)
	off := 4
	for i := uint32(0); i < count; i++ {
		if off+2 > len(table) {
			return fmt.Errorf("%w: offset table truncated at entry %d", internalerr.ErrIndexFormat, i)
		}
		n := int(binary.LittleEndian.Uint16(table[off : off+2]))
		off += 2
		if off+n+8 > len(table) {
			return fmt.Errorf("%w: offset table truncated at entry %d", internalerr.ErrIndexFormat, i)
		}
		head := viewString(table[off : off+n])
		off += n
		dataOff := binary.LittleEndian.Uint64(table[off : off+8])
		off += 8
		if dataOff >= tableOff {
			return fmt.Errorf("%w: entry offset %d inside offset table", internalerr.ErrIndexFormat, dataOff)
		}
		r.refs = append(r.refs, entryRef{head: head, offset: dataOff})
	}
	return nil
}

// Close unmaps and closes the underlying file. Entries previously returned
// become invalid.
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

// Window returns the window size recorded at precompute time.
func (r *Reader) Window() int { return r.window }

// K returns the per-head collocate bound recorded at precompute time.
func (r *Reader) K() int { return r.k }

// TotalTokens returns the corpus token total recorded at precompute time.
func (r *Reader) TotalTokens() uint64 { return r.totalTokens }

// Len returns the number of headword entries.
func (r *Reader) Len() int { return len(r.refs) }

// Lookup binary-searches the offset table for a headword and decodes its
// entry. The second result is false when the head has no entry.
func (r *Reader) Lookup(head string) (Entry, bool, error) {
	i := sort.Search(len(r.refs), func(i int) bool { return r.refs[i].head >= head })
	if i >= len(r.refs) || r.refs[i].head != head {
		return Entry{}, false, nil
	}
	e, err := r.decodeEntry(r.refs[i].offset)
	if err != nil {
		return Entry{}, false, err
	}
	return e, true, nil
}

func (r *Reader) decodeEntry(off uint64) (Entry, error) {
	b := []byte(r.data)
	p := int(off)
	if p+2 > len(b) {
		return Entry{}, fmt.Errorf("%w: entry at %d truncated", internalerr.ErrIndexFormat, off)
	}
	n := int(binary.LittleEndian.Uint16(b[p : p+2]))
	p += 2
	if p+n+10 > len(b) {
		return Entry{}, fmt.Errorf("%w: entry at %d truncated", internalerr.ErrIndexFormat, off)
	}
	e := Entry{Head: viewString(b[p : p+n])}
	p += n
	e.HeadFreq = binary.LittleEndian.Uint64(b[p : p+8])
	p += 8
	collCount := int(binary.LittleEndian.Uint16(b[p : p+2]))
	p += 2
	e.Collocates = make([]Collocate, 0, collCount)
	for i := 0; i < collCount; i++ {
		var c Collocate
		var err error
		c.Lemma, p, err = r.readShortString(b, p)
		if err != nil {
			return Entry{}, err
		}
		c.POS, p, err = r.readShortString(b, p)
		if err != nil {
			return Entry{}, err
		}
		if p+20 > len(b) {
			return Entry{}, fmt.Errorf("%w: collocate %d at %d truncated", internalerr.ErrIndexFormat, i, off)
		}
		c.Cooccurrence = binary.LittleEndian.Uint64(b[p : p+8])
		c.CollocateFreq = binary.LittleEndian.Uint64(b[p+8 : p+16])
		c.Score = math.Float32frombits(binary.LittleEndian.Uint32(b[p+16 : p+20]))
		p += 20
		e.Collocates = append(e.Collocates, c)
	}
	return e, nil
}

func (r *Reader) readShortString(b []byte, p int) (string, int, error) {
	if p >= len(b) {
		return "", p, fmt.Errorf("%w: string length beyond file end", internalerr.ErrIndexFormat)
	}
	n := int(b[p])
	p++
	if p+n > len(b) {
		return "", p, fmt.Errorf("%w: string beyond file end", internalerr.ErrIndexFormat)
	}
	return viewString(b[p : p+n]), p + n, nil
}

// viewString reinterprets mapped bytes as a string without copying; the map
// is read-only and outlives every view until Close.
func viewString(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	return unsafe.String(&b[0], len(b))
}
