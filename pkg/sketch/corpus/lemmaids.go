package corpus

import (
	"encoding/binary"
	"fmt"

	"github.com/cognicore/sketch/pkg/sketch/internalerr"
)

// Lemma-id codec: the ordered lemma-id array of one sentence as a varint
// count followed by varint ids. The decoded length always equals the token
// count of the sentence's token blob.

// EncodeLemmaIDs appends the encoded id array to dst and returns the
// extended buffer.
func EncodeLemmaIDs(dst []byte, ids []uint32) []byte {
	dst = binary.AppendUvarint(dst, uint64(len(ids)))
	for _, id := range ids {
		dst = binary.AppendUvarint(dst, uint64(id))
	}
	return dst
}

// DecodeLemmaIDs decodes an id blob into a fresh slice.
func DecodeLemmaIDs(blob []byte) ([]uint32, error) {
	return DecodeLemmaIDsInto(nil, blob)
}

// DecodeLemmaIDsInto decodes an id blob into dst, reusing its capacity.
// The precomputation scan calls this once per sentence with a shared buffer
// to avoid per-sentence allocation.
func DecodeLemmaIDsInto(dst []uint32, blob []byte) ([]uint32, error) {
	d := decoder{buf: blob}
	n := d.uvarint()
	if d.err != nil {
		return nil, d.wrap("lemma-id count")
	}
	dst = dst[:0]
	for i := uint64(0); i < n; i++ {
		v := d.uvarint()
		if d.err != nil {
			return nil, d.wrap("lemma id")
		}
		if v > 0xFFFFFFFF {
			return nil, fmt.Errorf("%w: lemma id %d exceeds 32 bits", internalerr.ErrDecode, v)
		}
		dst = append(dst, uint32(v))
	}
	return dst, nil
}
