package corpus

import (
	"errors"
	"fmt"
	"math/rand"
	"testing"

	"github.com/cognicore/sketch/pkg/sketch/internalerr"
)

func sampleTokens() []Token {
	return []Token{
		{Position: 0, Word: "The", Lemma: "the", Tag: "DT", Start: 0, End: 3},
		{Position: 1, Word: "big", Lemma: "big", Tag: "JJ", Start: 4, End: 7, Deprel: "amod"},
		{Position: 2, Word: "dög", Lemma: "dög", Tag: "NN", Start: 8, End: 12, Deprel: "nsubj"},
		{Position: 3, Word: "runs", Lemma: "run", Tag: "VBZ", Start: 13, End: 17, Deprel: "root"},
	}
}

func TestTokenRoundTrip(t *testing.T) {
	for _, withDeprel := range []bool{true, false} {
		tokens := sampleTokens()
		if !withDeprel {
			for i := range tokens {
				tokens[i].Deprel = ""
			}
		}
		blob := EncodeTokens(nil, tokens, withDeprel)
		decoded, err := DecodeTokens(blob, withDeprel)
		if err != nil {
			t.Fatalf("decode (deprel=%v): %v", withDeprel, err)
		}
		if len(decoded) != len(tokens) {
			t.Fatalf("got %d tokens, want %d", len(decoded), len(tokens))
		}
		for i := range tokens {
			if decoded[i] != tokens[i] {
				t.Errorf("token %d: got %+v, want %+v", i, decoded[i], tokens[i])
			}
		}
	}
}

func TestTokenRoundTripEmpty(t *testing.T) {
	blob := EncodeTokens(nil, nil, true)
	decoded, err := DecodeTokens(blob, true)
	if err != nil {
		t.Fatalf("decode empty: %v", err)
	}
	if len(decoded) != 0 {
		t.Fatalf("expected no tokens, got %d", len(decoded))
	}
}

func TestTokenRoundTripRandom(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	alphabet := []string{"", "a", "dog", "Straße", "日本語", "x-ray", "_", "can't"}
	for trial := 0; trial < 50; trial++ {
		n := rng.Intn(201)
		tokens := make([]Token, n)
		offset := 0
		for i := range tokens {
			word := alphabet[rng.Intn(len(alphabet))]
			tokens[i] = Token{
				Position: i,
				Word:     word,
				Lemma:    alphabet[rng.Intn(len(alphabet))],
				Tag:      alphabet[rng.Intn(len(alphabet))],
				Start:    offset,
				End:      offset + len(word),
				Deprel:   alphabet[rng.Intn(len(alphabet))],
			}
			offset += len(word) + 1
		}
		blob := EncodeTokens(nil, tokens, true)
		decoded, err := DecodeTokens(blob, true)
		if err != nil {
			t.Fatalf("trial %d: decode: %v", trial, err)
		}
		if len(decoded) != n {
			t.Fatalf("trial %d: got %d tokens, want %d", trial, len(decoded), n)
		}
		for i := range tokens {
			if decoded[i] != tokens[i] {
				t.Fatalf("trial %d token %d: got %+v, want %+v", trial, i, decoded[i], tokens[i])
			}
		}
	}
}

func TestTokenAt(t *testing.T) {
	tokens := sampleTokens()
	blob := EncodeTokens(nil, tokens, true)

	for _, want := range tokens {
		got, ok, err := TokenAt(blob, want.Position, true)
		if err != nil || !ok {
			t.Fatalf("TokenAt(%d): ok=%v err=%v", want.Position, ok, err)
		}
		if got != want {
			t.Errorf("TokenAt(%d): got %+v, want %+v", want.Position, got, want)
		}
	}

	if _, ok, err := TokenAt(blob, 99, true); err != nil || ok {
		t.Errorf("TokenAt(99): expected miss, got ok=%v err=%v", ok, err)
	}
}

func TestTokenRange(t *testing.T) {
	tokens := sampleTokens()
	blob := EncodeTokens(nil, tokens, true)

	got, err := TokenRange(blob, 1, 2, true)
	if err != nil {
		t.Fatalf("TokenRange: %v", err)
	}
	if len(got) != 2 || got[0] != tokens[1] || got[1] != tokens[2] {
		t.Errorf("TokenRange(1,2): got %+v", got)
	}
}

func TestDecodeTruncated(t *testing.T) {
	blob := EncodeTokens(nil, sampleTokens(), true)
	for _, cut := range []int{1, len(blob) / 2, len(blob) - 1} {
		_, err := DecodeTokens(blob[:cut], true)
		if !errors.Is(err, internalerr.ErrDecode) {
			t.Errorf("cut at %d: expected ErrDecode, got %v", cut, err)
		}
	}
}

func TestLemmaIDsRoundTrip(t *testing.T) {
	cases := [][]uint32{nil, {0}, {1, 2, 3}, {0, 0xFFFFFFFF, 7}}
	for i, ids := range cases {
		blob := EncodeLemmaIDs(nil, ids)
		decoded, err := DecodeLemmaIDs(blob)
		if err != nil {
			t.Fatalf("case %d: %v", i, err)
		}
		if len(decoded) != len(ids) {
			t.Fatalf("case %d: got %d ids, want %d", i, len(decoded), len(ids))
		}
		for j := range ids {
			if decoded[j] != ids[j] {
				t.Errorf("case %d id %d: got %d, want %d", i, j, decoded[j], ids[j])
			}
		}
	}
}

func TestLemmaIDsReuseBuffer(t *testing.T) {
	buf := make([]uint32, 0, 16)
	for round := 0; round < 3; round++ {
		ids := []uint32{uint32(round), uint32(round * 10)}
		blob := EncodeLemmaIDs(nil, ids)
		var err error
		buf, err = DecodeLemmaIDsInto(buf, blob)
		if err != nil {
			t.Fatalf("round %d: %v", round, err)
		}
		if len(buf) != 2 || buf[0] != ids[0] || buf[1] != ids[1] {
			t.Fatalf("round %d: got %v, want %v", round, buf, ids)
		}
	}
}

func TestLemmaIDsTruncated(t *testing.T) {
	blob := EncodeLemmaIDs(nil, []uint32{1, 2, 3})
	_, err := DecodeLemmaIDs(blob[:1])
	if !errors.Is(err, internalerr.ErrDecode) {
		t.Errorf("expected ErrDecode, got %v", err)
	}
}

func ExampleEncodeTokens() {
	blob := EncodeTokens(nil, []Token{{Position: 0, Word: "dog", Lemma: "dog", Tag: "NN", Start: 0, End: 3}}, false)
	tokens, _ := DecodeTokens(blob, false)
	fmt.Println(tokens[0].Lemma)
	// Output: dog
}
