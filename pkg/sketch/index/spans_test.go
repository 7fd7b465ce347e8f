package index_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cognicore/sketch/pkg/sketch/corpus"
	"github.com/cognicore/sketch/pkg/sketch/index"
	"github.com/cognicore/sketch/pkg/sketch/index/memindex"
)

func fill(t *testing.T, ix index.Index, sentences [][]corpus.Token) {
	t.Helper()
	ctx := context.Background()
	for sid, tokens := range sentences {
		blob := corpus.EncodeTokens(nil, tokens, false)
		ids := make([]uint32, len(tokens))
		require.NoError(t, ix.Append(ctx, index.Document{
			SentenceID: uint32(sid),
			Text:       "text",
			Tokens:     tokens,
			TokenBlob:  blob,
			LemmaBlob:  corpus.EncodeLemmaIDs(nil, ids),
		}))
	}
}

func mkTokens(words ...string) []corpus.Token {
	out := make([]corpus.Token, len(words))
	for i, w := range words {
		out[i] = corpus.Token{Position: i, Word: w, Lemma: w, Tag: "X"}
	}
	return out
}

func TestTermSearch(t *testing.T) {
	ix := memindex.New()
	fill(t, ix, [][]corpus.Token{
		mkTokens("big", "dog"),
		mkTokens("red", "house"),
		mkTokens("dog", "sleeps"),
	})

	spans, err := index.Search(context.Background(), ix, index.Term{Field: index.FieldLemma, Value: "dog"})
	require.NoError(t, err)
	require.Len(t, spans, 2)
	require.Equal(t, uint32(0), spans[0].SentenceID)
	require.Equal(t, uint32(1), spans[0].Start)
	require.Equal(t, uint32(2), spans[1].SentenceID)
	require.Equal(t, uint32(0), spans[1].Start)
}

func TestTermSearchIsCaseInsensitive(t *testing.T) {
	ix := memindex.New()
	fill(t, ix, [][]corpus.Token{mkTokens("Dog")})

	spans, err := index.Search(context.Background(), ix, index.Term{Field: index.FieldLemma, Value: "DOG"})
	require.NoError(t, err)
	require.Len(t, spans, 1)
}

func TestNearSearchOrdered(t *testing.T) {
	ix := memindex.New()
	fill(t, ix, [][]corpus.Token{
		mkTokens("big", "dog", "runs"),
		mkTokens("dog", "big"),
		mkTokens("big", "red", "dog"),
	})
	ctx := context.Background()

	q := index.Near{
		Clauses: []index.Term{
			{Field: index.FieldLemma, Value: "big"},
			{Field: index.FieldLemma, Value: "dog"},
		},
		Slop:    0,
		InOrder: true,
	}
	spans, err := index.Search(ctx, ix, q)
	require.NoError(t, err)
	require.Len(t, spans, 1)
	require.Equal(t, uint32(0), spans[0].SentenceID)

	q.Slop = 1
	spans, err = index.Search(ctx, ix, q)
	require.NoError(t, err)
	require.Len(t, spans, 2) // sentence 2 now reachable; sentence 1 stays out of order
}

func TestNearSearchUnordered(t *testing.T) {
	ix := memindex.New()
	fill(t, ix, [][]corpus.Token{mkTokens("dog", "big")})

	q := index.Near{
		Clauses: []index.Term{
			{Field: index.FieldLemma, Value: "big"},
			{Field: index.FieldLemma, Value: "dog"},
		},
		Slop:    0,
		InOrder: false,
	}
	spans, err := index.Search(context.Background(), ix, q)
	require.NoError(t, err)
	require.Len(t, spans, 1)
	require.Equal(t, uint32(0), spans[0].Start)
	require.Equal(t, uint32(1), spans[0].End)
}

func TestOrSearchDeduplicates(t *testing.T) {
	ix := memindex.New()
	fill(t, ix, [][]corpus.Token{
		mkTokens("big", "dog"),
		mkTokens("cat"),
	})

	q := index.Or{Queries: []index.SpanQuery{
		index.Term{Field: index.FieldLemma, Value: "big"},
		index.Term{Field: index.FieldLemma, Value: "dog"},
		index.Term{Field: index.FieldLemma, Value: "cat"},
	}}
	spans, err := index.Search(context.Background(), ix, q)
	require.NoError(t, err)
	require.Len(t, spans, 2)
	require.Equal(t, uint32(0), spans[0].SentenceID)
	require.Equal(t, uint32(1), spans[1].SentenceID)
}

func TestSentenceRoundTrip(t *testing.T) {
	ix := memindex.New()
	tokens := mkTokens("a", "b")
	fill(t, ix, [][]corpus.Token{tokens})
	ctx := context.Background()

	stored, err := ix.Sentence(ctx, 0)
	require.NoError(t, err)
	decoded, err := corpus.DecodeTokens(stored.TokenBlob, false)
	require.NoError(t, err)
	require.Equal(t, tokens, decoded)

	n, err := ix.SentenceCount(ctx)
	require.NoError(t, err)
	require.Equal(t, uint32(1), n)

	_, err = ix.Sentence(ctx, 9)
	require.Error(t, err)
}

func TestMetaRoundTrip(t *testing.T) {
	ix := memindex.New()
	ctx := context.Background()
	require.NoError(t, ix.PutMeta(ctx, index.MetaHasDeprel, "true"))
	v, err := ix.GetMeta(ctx, index.MetaHasDeprel)
	require.NoError(t, err)
	require.Equal(t, "true", v)

	v, err = ix.GetMeta(ctx, "absent")
	require.NoError(t, err)
	require.Equal(t, "", v)
}

func TestAppendOutOfOrderRejected(t *testing.T) {
	ix := memindex.New()
	ctx := context.Background()
	doc := index.Document{SentenceID: 5, Tokens: mkTokens("a")}
	require.NoError(t, ix.Append(ctx, doc))
	require.Error(t, ix.Append(ctx, doc))
}
