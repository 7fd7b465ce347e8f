package precompute

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"

	"github.com/cognicore/sketch/pkg/sketch/internalerr"
)

// CollocFileExt is the extension of precomputed collocation files; the base
// name is the relation id.
const CollocFileExt = ".colloc"

// collocMagic opens every precomputed file; collocVersion tracks the layout.
var collocMagic = [8]byte{'S', 'K', 'C', 'O', 'L', 'L', 'O', 'C'}

const collocVersion uint32 = 1

// headerSize is fixed at 64 bytes: magic, version, entry count, window, K,
// total tokens, offset-table offset, offset-table size, padding.
const headerSize = 64

// Entry is one headword's precomputed top-K collocate list, ordered by score
// descending with deterministic tie-breaks.
type Entry struct {
	Head       string
	HeadFreq   uint64
	Collocates []Collocate
}

// Collocate is one ranked collocate of a headword.
type Collocate struct {
	Lemma         string
	POS           string
	Cooccurrence  uint64
	CollocateFreq uint64
	Score         float32
}

// writeCollocFile lays out header, data section, and the lexicographically
// ordered offset table, finalizing with an atomic rename. Entries must
// already be sorted by head string.
func writeCollocFile(path string, entries []Entry, window, k int, totalTokens uint64) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("%w: create collocation file: %v", internalerr.ErrIndexIO, err)
	}
	defer f.Close()

	// Header is rewritten once the offset-table location is known.
	if _, err := f.Write(make([]byte, headerSize)); err != nil {
		return fmt.Errorf("%w: reserve collocation header: %v", internalerr.ErrIndexIO, err)
	}

	offsets := make([]uint64, len(entries))
	pos := uint64(headerSize)
	buf := make([]byte, 0, 4096)
	for i, e := range entries {
		offsets[i] = pos
		buf = appendEntry(buf[:0], e)
		if _, err := f.Write(buf); err != nil {
			return fmt.Errorf("%w: write collocation entry: %v", internalerr.ErrIndexIO, err)
		}
		pos += uint64(len(buf))
	}

	tableOff := pos
	buf = binary.LittleEndian.AppendUint32(buf[:0], uint32(len(entries)))
	for i, e := range entries {
		buf = binary.LittleEndian.AppendUint16(buf, uint16(len(e.Head)))
		buf = append(buf, e.Head...)
		buf = binary.LittleEndian.AppendUint64(buf, offsets[i])
	}
	if _, err := f.Write(buf); err != nil {
		return fmt.Errorf("%w: write offset table: %v", internalerr.ErrIndexIO, err)
	}
	tableSize := uint64(len(buf))

	var hdr [headerSize]byte
	copy(hdr[0:8], collocMagic[:])
	binary.LittleEndian.PutUint32(hdr[8:12], collocVersion)
	binary.LittleEndian.PutUint32(hdr[12:16], uint32(len(entries)))
	binary.LittleEndian.PutUint32(hdr[16:20], uint32(window))
	binary.LittleEndian.PutUint32(hdr[20:24], uint32(k))
	binary.LittleEndian.PutUint64(hdr[24:32], totalTokens)
	binary.LittleEndian.PutUint64(hdr[32:40], tableOff)
	binary.LittleEndian.PutUint64(hdr[40:48], tableSize)
	if _, err := f.WriteAt(hdr[:], 0); err != nil {
		return fmt.Errorf("%w: write collocation header: %v", internalerr.ErrIndexIO, err)
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("%w: close collocation file: %v", internalerr.ErrIndexIO, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("%w: finalize collocation file: %v", internalerr.ErrIndexIO, err)
	}
	return nil
}

func appendEntry(buf []byte, e Entry) []byte {
	buf = binary.LittleEndian.AppendUint16(buf, uint16(len(e.Head)))
	buf = append(buf, e.Head...)
	buf = binary.LittleEndian.AppendUint64(buf, e.HeadFreq)
	buf = binary.LittleEndian.AppendUint16(buf, uint16(len(e.Collocates)))
	for _, c := range e.Collocates {
		buf = append(buf, byte(len(c.Lemma)))
		buf = append(buf, c.Lemma...)
		buf = append(buf, byte(len(c.POS)))
		buf = append(buf, c.POS...)
		buf = binary.LittleEndian.AppendUint64(buf, c.Cooccurrence)
		buf = binary.LittleEndian.AppendUint64(buf, c.CollocateFreq)
		buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(c.Score))
	}
	return buf
}
