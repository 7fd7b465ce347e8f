package pattern

import (
	"strings"
	"testing"

	"github.com/cognicore/sketch/pkg/sketch/corpus"
)

// toks builds a token window from "word/TAG" or "word|lemma/TAG" specs.
func toks(specs ...string) []corpus.Token {
	out := make([]corpus.Token, len(specs))
	offset := 0
	for i, spec := range specs {
		word, tag, _ := strings.Cut(spec, "/")
		lemma := strings.ToLower(word)
		if w, l, ok := strings.Cut(word, "|"); ok {
			word, lemma = w, l
		}
		out[i] = corpus.Token{
			Position: i,
			Word:     word,
			Lemma:    lemma,
			Tag:      tag,
			Start:    offset,
			End:      offset + len(word),
		}
		offset += len(word) + 1
	}
	return out
}

func mustParse(t *testing.T, src string) *Pattern {
	t.Helper()
	p, err := Parse(src)
	if err != nil {
		t.Fatalf("Parse(%q): %v", src, err)
	}
	return p
}

func TestVerifyAdjacentPair(t *testing.T) {
	window := toks("big/JJ", "dog/NN", "runs|run/VBZ")
	seq := mustParse(t, "[tag=JJ] [tag=NN]").Alternatives[0]

	m, ok := Verify(seq, window, 1, 1) // anchor the noun element at "dog"
	if !ok {
		t.Fatal("expected match")
	}
	if m.ElementPositions[0] != 0 || m.ElementPositions[1] != 1 {
		t.Errorf("positions = %v, want [0 1]", m.ElementPositions)
	}

	if _, ok := Verify(seq, window, 2, 1); ok {
		t.Error("verb anchored as noun should not match")
	}
}

func TestVerifyAnchorsHeadElement(t *testing.T) {
	window := toks("dog/NN", "big/JJ", "cat/NN")
	seq := mustParse(t, "[tag=JJ] [tag=NN]").Alternatives[0]

	// "cat" has an adjective before it; "dog" does not.
	if _, ok := Verify(seq, window, 2, 1); !ok {
		t.Error("cat should match")
	}
	if _, ok := Verify(seq, window, 0, 1); ok {
		t.Error("dog should not match")
	}
}

func TestVerifyNegation(t *testing.T) {
	window := toks("big/JJ", "dog/NN")
	seq := mustParse(t, "[tag=JJ & lemma!=small] [tag=NN]").Alternatives[0]
	if _, ok := Verify(seq, window, 1, 1); !ok {
		t.Error("negated mismatch should pass")
	}

	seq = mustParse(t, "[tag=JJ & lemma!=big] [tag=NN]").Alternatives[0]
	if _, ok := Verify(seq, window, 1, 1); ok {
		t.Error("negated match should fail")
	}
}

func TestVerifyDistanceRange(t *testing.T) {
	window := toks("eats|eat/VBZ", "the/DT", "red/JJ", "apple/NN")
	seq := mustParse(t, "[tag=VBZ] [tag=NN]@{1,3}").Alternatives[0]
	m, ok := Verify(seq, window, 0, 0)
	if !ok {
		t.Fatal("expected match within distance 3")
	}
	if m.ElementPositions[1] != 3 {
		t.Errorf("noun matched at %d, want 3", m.ElementPositions[1])
	}

	seq = mustParse(t, "[tag=VBZ] [tag=NN]@{1,2}").Alternatives[0]
	if _, ok := Verify(seq, window, 0, 0); ok {
		t.Error("distance 3 should exceed range {1,2}")
	}
}

func TestVerifyNegativeDistance(t *testing.T) {
	window := toks("apple/NN", "is|be/VBZ", "red/JJ")
	// The noun precedes the adjective: find it up to three positions back
	// from the adjective.
	seq := mustParse(t, "[tag=JJ] [tag=NN]@{-3,-1}").Alternatives[0]
	m, ok := Verify(seq, window, 2, 0)
	if !ok {
		t.Fatal("expected backward match")
	}
	if m.ElementPositions[1] != 0 {
		t.Errorf("noun matched at %d, want 0", m.ElementPositions[1])
	}
}

func TestVerifyRepetition(t *testing.T) {
	window := toks("the/DT", "big/JJ", "red/JJ", "dog/NN")
	seq := mustParse(t, "[tag=DT] [tag=JJ]{1,2} [tag=NN]").Alternatives[0]
	m, ok := Verify(seq, window, 0, 0)
	if !ok {
		t.Fatal("expected match with two adjectives")
	}
	if m.ElementPositions[2] != 3 {
		t.Errorf("noun at %d, want 3", m.ElementPositions[2])
	}

	// {1,1} cannot bridge two adjectives.
	seq = mustParse(t, "[tag=DT] [tag=JJ]{1,1} [tag=NN]").Alternatives[0]
	if _, ok := Verify(seq, window, 0, 0); ok {
		t.Error("single repetition should not reach the noun")
	}
}

func TestVerifyOptionalElement(t *testing.T) {
	seq := mustParse(t, "[tag=VBZ] [tag=DT]{0,1} [tag=NN]").Alternatives[0]

	with := toks("eats|eat/VBZ", "the/DT", "apple/NN")
	if _, ok := Verify(seq, with, 0, 0); !ok {
		t.Error("match with determiner expected")
	}

	without := toks("eats|eat/VBZ", "apple/NN")
	if _, ok := Verify(seq, without, 0, 0); !ok {
		t.Error("match without determiner expected")
	}
}

func TestVerifyCapturesAndAgreement(t *testing.T) {
	window := toks("stone/NN", "wall/NN")
	seq := mustParse(t, "[tag=NN]:1 [tag=NN]:2 :: 1.tag = 2.tag").Alternatives[0]
	m, ok := Verify(seq, window, 1, 1)
	if !ok {
		t.Fatal("expected match with agreement")
	}
	if m.Captures[1].Lemma != "stone" || m.Captures[2].Lemma != "wall" {
		t.Errorf("captures = %v", m.Captures)
	}

	seq = mustParse(t, "[tag=NN]:1 [tag=NN]:2 :: 1.lemma = 2.lemma").Alternatives[0]
	if _, ok := Verify(seq, window, 1, 1); ok {
		t.Error("lemma agreement should fail for stone/wall")
	}
}

func TestVerifyUnboundAgreementLabelFails(t *testing.T) {
	window := toks("stone/NN", "wall/NN")
	seq := mustParse(t, "[tag=NN]:1 [tag=NN] :: 1.tag = 9.tag").Alternatives[0]
	if _, ok := Verify(seq, window, 1, 1); ok {
		t.Error("agreement on unbound label must evaluate false")
	}
}

func TestVerifyWindowBoundary(t *testing.T) {
	window := toks("big/JJ")
	seq := mustParse(t, "[tag=JJ] [tag=NN]").Alternatives[0]
	if _, ok := Verify(seq, window, 0, 0); ok {
		t.Error("pattern past the window boundary must fail quietly")
	}
}

func TestVerifyCaseInsensitive(t *testing.T) {
	window := toks("Big/JJ", "DOG/NN")
	seq := mustParse(t, "[word=big] [lemma=dog]").Alternatives[0]
	if _, ok := Verify(seq, window, 0, 0); !ok {
		t.Error("matching must be case-insensitive")
	}
}

func TestVerifyGlobAndPosGroup(t *testing.T) {
	window := toks("running|run/VBG", "dog/NN")
	seq := mustParse(t, "[word=runn*] [pos_group=noun]").Alternatives[0]
	if _, ok := Verify(seq, window, 0, 0); !ok {
		t.Error("glob + pos_group should match")
	}

	seq = mustParse(t, "[pos_group=adj] [pos_group=noun]").Alternatives[0]
	if _, ok := Verify(seq, window, 1, 1); ok {
		t.Error("VBG is not an adjective")
	}
}

func TestVerifyAnywhere(t *testing.T) {
	window := toks("the/DT", "big/JJ", "dog/NN")
	seq := mustParse(t, "[tag=JJ] [tag=NN]").Alternatives[0]
	m, ok := VerifyAnywhere(seq, window, 0)
	if !ok {
		t.Fatal("expected a match somewhere")
	}
	if m.ElementPositions[0] != 1 {
		t.Errorf("adjective at %d, want 1", m.ElementPositions[0])
	}
}
