package corpus

import (
	"encoding/binary"
	"fmt"
	"unicode/utf8"

	"github.com/cognicore/sketch/pkg/sketch/internalerr"
)

// Token sequence codec: a sentence's ordered token list packed into one
// opaque varint blob, stored as a per-sentence column so all tokens of a
// matched sentence decode in O(sentence length).
//
// Layout: token count, then per token position, word, lemma, tag, start
// offset, end offset, and (when the index carries dependency labels) deprel.
// Strings are length-prefixed UTF-8; every integer is an unsigned varint.

// EncodeTokens appends the encoded token list to dst and returns the
// extended buffer. withDeprel must match the index-wide setting recorded at
// build time so decoders never guess.
func EncodeTokens(dst []byte, tokens []Token, withDeprel bool) []byte {
	dst = binary.AppendUvarint(dst, uint64(len(tokens)))
	for _, t := range tokens {
		dst = binary.AppendUvarint(dst, uint64(t.Position))
		dst = appendString(dst, t.Word)
		dst = appendString(dst, t.Lemma)
		dst = appendString(dst, t.Tag)
		dst = binary.AppendUvarint(dst, uint64(t.Start))
		dst = binary.AppendUvarint(dst, uint64(t.End))
		if withDeprel {
			dst = appendString(dst, t.Deprel)
		}
	}
	return dst
}

// DecodeTokens decodes a token blob produced by EncodeTokens.
func DecodeTokens(blob []byte, withDeprel bool) ([]Token, error) {
	d := decoder{buf: blob}
	n := d.uvarint()
	if d.err != nil {
		return nil, d.wrap("token count")
	}
	tokens := make([]Token, 0, n)
	for i := uint64(0); i < n; i++ {
		t, err := decodeOne(&d, withDeprel)
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, t)
	}
	return tokens, nil
}

// TokenAt returns the token whose position field equals pos, scanning the
// blob linearly. The second result is false when no token carries pos.
func TokenAt(blob []byte, pos int, withDeprel bool) (Token, bool, error) {
	d := decoder{buf: blob}
	n := d.uvarint()
	if d.err != nil {
		return Token{}, false, d.wrap("token count")
	}
	for i := uint64(0); i < n; i++ {
		t, err := decodeOne(&d, withDeprel)
		if err != nil {
			return Token{}, false, err
		}
		if t.Position == pos {
			return t, true, nil
		}
	}
	return Token{}, false, nil
}

// TokenRange returns the tokens whose positions fall in [lo, hi], inclusive.
func TokenRange(blob []byte, lo, hi int, withDeprel bool) ([]Token, error) {
	d := decoder{buf: blob}
	n := d.uvarint()
	if d.err != nil {
		return nil, d.wrap("token count")
	}
	var out []Token
	for i := uint64(0); i < n; i++ {
		t, err := decodeOne(&d, withDeprel)
		if err != nil {
			return nil, err
		}
		if t.Position >= lo && t.Position <= hi {
			out = append(out, t)
		}
	}
	return out, nil
}

func decodeOne(d *decoder, withDeprel bool) (Token, error) {
	var t Token
	t.Position = int(d.uvarint())
	t.Word = d.str()
	t.Lemma = d.str()
	t.Tag = d.str()
	t.Start = int(d.uvarint())
	t.End = int(d.uvarint())
	if withDeprel {
		t.Deprel = d.str()
	}
	if d.err != nil {
		return Token{}, d.wrap("token record")
	}
	return t, nil
}

func appendString(dst []byte, s string) []byte {
	dst = binary.AppendUvarint(dst, uint64(len(s)))
	return append(dst, s...)
}

// decoder is a cursor over a varint blob. The first failure sticks in err;
// subsequent reads return zero values.
type decoder struct {
	buf []byte
	off int
	err error
}

func (d *decoder) uvarint() uint64 {
	if d.err != nil {
		return 0
	}
	v, n := binary.Uvarint(d.buf[d.off:])
	if n <= 0 {
		d.err = fmt.Errorf("truncated varint at offset %d", d.off)
		return 0
	}
	d.off += n
	return v
}

func (d *decoder) str() string {
	n := d.uvarint()
	if d.err != nil {
		return ""
	}
	if uint64(d.off)+n > uint64(len(d.buf)) {
		d.err = fmt.Errorf("string of %d bytes exceeds blob at offset %d", n, d.off)
		return ""
	}
	s := string(d.buf[d.off : d.off+int(n)])
	d.off += int(n)
	if !utf8.ValidString(s) {
		d.err = fmt.Errorf("invalid UTF-8 at offset %d", d.off-int(n))
		return ""
	}
	return s
}

func (d *decoder) wrap(what string) error {
	return fmt.Errorf("%w: %s: %v", internalerr.ErrDecode, what, d.err)
}
