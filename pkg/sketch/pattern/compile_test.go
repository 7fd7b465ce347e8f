package pattern

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/cognicore/sketch/pkg/sketch/corpus"
	"github.com/cognicore/sketch/pkg/sketch/index"
	"github.com/cognicore/sketch/pkg/sketch/index/memindex"
	"github.com/cognicore/sketch/pkg/sketch/internalerr"
)

func TestCompilePrefersLemmaOverTag(t *testing.T) {
	p := mustParse(t, "[tag=JJ & lemma=big] [tag=NN]")
	q, err := Compile(p)
	if err != nil {
		t.Fatal(err)
	}
	near, ok := q.(index.Near)
	if !ok {
		t.Fatalf("expected Near, got %T", q)
	}
	if near.Clauses[0].Field != index.FieldLemma || near.Clauses[0].Value != "big" {
		t.Errorf("clause 0 = %+v, want lemma=big", near.Clauses[0])
	}
	if near.Clauses[1].Field != index.FieldTag || near.Clauses[1].Value != "nn" {
		t.Errorf("clause 1 = %+v, want tag=nn", near.Clauses[1])
	}
	if !near.InOrder {
		t.Error("forward-only pattern should compile in order")
	}
}

func TestCompileSingleClauseIsTerm(t *testing.T) {
	q, err := Compile(mustParse(t, "[lemma=dog]"))
	if err != nil {
		t.Fatal(err)
	}
	if term, ok := q.(index.Term); !ok || term.Value != "dog" {
		t.Fatalf("expected Term(dog), got %#v", q)
	}
}

func TestCompileAlternationIsUnion(t *testing.T) {
	q, err := Compile(mustParse(t, "[lemma=dog] | [lemma=cat]"))
	if err != nil {
		t.Fatal(err)
	}
	or, ok := q.(index.Or)
	if !ok || len(or.Queries) != 2 {
		t.Fatalf("expected Or of 2, got %#v", q)
	}
}

func TestCompileNegativeDistanceUnordered(t *testing.T) {
	q, err := Compile(mustParse(t, "[lemma=red] [lemma=apple]@{-3,-1}"))
	if err != nil {
		t.Fatal(err)
	}
	near := q.(index.Near)
	if near.InOrder {
		t.Error("negative distance must compile unordered")
	}
	if near.Slop < 2 {
		t.Errorf("slop = %d, want at least 2", near.Slop)
	}
}

func TestCompileUnsupportedWithoutSelectiveConstraint(t *testing.T) {
	cases := []string{
		"[tag=N*]",
		"[lemma!=dog]",
		"[pos_group=noun] [pos_group=adj]",
		"[lemma=a|b]",
		"[lemma=dog] | [tag=J*]", // one unsupported alternative poisons the union
	}
	for _, src := range cases {
		_, err := Compile(mustParse(t, src))
		if !errors.Is(err, internalerr.ErrPatternUnsupported) {
			t.Errorf("Compile(%q): expected ErrPatternUnsupported, got %v", src, err)
		}
	}
}

func TestCompileNotIsNeverSelective(t *testing.T) {
	q, err := Compile(mustParse(t, "[!(lemma=big) & tag=JJ] [tag=NN]"))
	if err != nil {
		t.Fatal(err)
	}
	near := q.(index.Near)
	if near.Clauses[0].Field != index.FieldTag {
		t.Errorf("negated lemma must not become a clause: %+v", near.Clauses[0])
	}
}

// TestCandidateSuperset cross-validates the compiler against the verifier on
// a small corpus: every sentence the verifier accepts must be retrieved by
// the compiled candidate query.
func TestCandidateSuperset(t *testing.T) {
	sentences := [][]corpus.Token{
		toks("big/JJ", "dog/NN", "runs|run/VBZ"),
		toks("red/JJ", "house/NN", "stands|stand/VBZ"),
		toks("dog/NN", "runs|run/VBZ", "fast/RB"),
		toks("the/DT", "big/JJ", "red/JJ", "apple/NN"),
		toks("apple/NN", "is|be/VBZ", "red/JJ"),
		toks("stone/NN", "wall/NN", "stands|stand/VBZ"),
		toks("dog/NN", "eats|eat/VBZ", "the/DT", "bone/NN"),
	}

	ctx := context.Background()
	ix := memindex.New()
	for sid, tokens := range sentences {
		blob := corpus.EncodeTokens(nil, tokens, false)
		err := ix.Append(ctx, index.Document{
			SentenceID: uint32(sid),
			Text:       fmt.Sprintf("sentence %d", sid),
			Tokens:     tokens,
			TokenBlob:  blob,
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	patterns := []string{
		"[tag=JJ] [tag=NN]",
		"[tag=NN] [lemma=be|seem|prove|appear] [tag=JJ]",
		"[tag=NN] [tag=NN]",
		"[lemma=dog] [tag=VBZ]",
		"[tag=DT] [tag=JJ]{1,2} [tag=NN]",
		"[tag=VBZ] [tag=NN]@{1,3}",
		"[lemma=red] [lemma=apple]@{-3,3}",
		"[tag=JJ & lemma!=big] [tag=NN]",
	}

	for _, src := range patterns {
		parsed := mustParse(t, src)
		query, err := Compile(parsed)
		if err != nil {
			t.Fatalf("Compile(%q): %v", src, err)
		}
		spans, err := index.Search(ctx, ix, query)
		if err != nil {
			t.Fatalf("Search(%q): %v", src, err)
		}
		retrieved := make(map[uint32]bool, len(spans))
		for _, s := range spans {
			retrieved[s.SentenceID] = true
		}

		for sid, tokens := range sentences {
			accepted := false
			for _, alt := range parsed.Alternatives {
				if _, ok := VerifyAnywhere(alt, tokens, 0); ok {
					accepted = true
					break
				}
			}
			if accepted && !retrieved[uint32(sid)] {
				t.Errorf("pattern %q: verifier accepts sentence %d but candidate query missed it", src, sid)
			}
		}
	}
}
