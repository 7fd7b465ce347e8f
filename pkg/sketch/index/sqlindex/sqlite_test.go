package sqlindex

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cognicore/sketch/pkg/sketch/corpus"
	"github.com/cognicore/sketch/pkg/sketch/index"
)

func openTestIndex(t *testing.T) index.Index {
	t.Helper()
	ix, err := Open(context.Background(), filepath.Join(t.TempDir(), "index.db"))
	require.NoError(t, err)
	t.Cleanup(func() { ix.Close() })
	return ix
}

func appendSentence(t *testing.T, ix index.Index, sid uint32, words ...string) []corpus.Token {
	t.Helper()
	tokens := make([]corpus.Token, len(words))
	ids := make([]uint32, len(words))
	for i, w := range words {
		tokens[i] = corpus.Token{Position: i, Word: w, Lemma: w, Tag: "NN"}
		ids[i] = uint32(i)
	}
	require.NoError(t, ix.Append(context.Background(), index.Document{
		SentenceID: sid,
		Text:       "text",
		Tokens:     tokens,
		TokenBlob:  corpus.EncodeTokens(nil, tokens, false),
		LemmaBlob:  corpus.EncodeLemmaIDs(nil, ids),
	}))
	return tokens
}

func TestSQLiteAppendAndPostings(t *testing.T) {
	ix := openTestIndex(t)
	ctx := context.Background()

	appendSentence(t, ix, 0, "big", "dog")
	appendSentence(t, ix, 1, "dog", "dog")

	postings, err := ix.Postings(ctx, index.FieldLemma, "dog")
	require.NoError(t, err)
	require.Len(t, postings, 2)
	require.Equal(t, uint32(0), postings[0].SentenceID)
	require.Equal(t, []uint32{1}, postings[0].Positions)
	require.Equal(t, []uint32{0, 1}, postings[1].Positions)

	postings, err = ix.Postings(ctx, index.FieldLemma, "absent")
	require.NoError(t, err)
	require.Empty(t, postings)
}

func TestSQLiteSentenceColumns(t *testing.T) {
	ix := openTestIndex(t)
	ctx := context.Background()
	tokens := appendSentence(t, ix, 0, "a", "b", "c")

	stored, err := ix.Sentence(ctx, 0)
	require.NoError(t, err)
	decoded, err := corpus.DecodeTokens(stored.TokenBlob, false)
	require.NoError(t, err)
	require.Equal(t, tokens, decoded)

	ids, err := corpus.DecodeLemmaIDs(stored.LemmaBlob)
	require.NoError(t, err)
	require.Len(t, ids, len(tokens))

	n, err := ix.SentenceCount(ctx)
	require.NoError(t, err)
	require.Equal(t, uint32(1), n)
}

func TestSQLiteOrderEnforced(t *testing.T) {
	ix := openTestIndex(t)
	appendSentence(t, ix, 3, "x")

	tokens := []corpus.Token{{Position: 0, Word: "y", Lemma: "y", Tag: "NN"}}
	err := ix.Append(context.Background(), index.Document{
		SentenceID: 2,
		Tokens:     tokens,
		TokenBlob:  corpus.EncodeTokens(nil, tokens, false),
		LemmaBlob:  corpus.EncodeLemmaIDs(nil, []uint32{0}),
	})
	require.Error(t, err)
}

func TestSQLiteMetaPersists(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "index.db")
	ctx := context.Background()

	ix, err := Open(ctx, path)
	require.NoError(t, err)
	require.NoError(t, ix.PutMeta(ctx, index.MetaHasDeprel, "false"))
	require.NoError(t, ix.Close())

	ix, err = Open(ctx, path)
	require.NoError(t, err)
	defer ix.Close()
	v, err := ix.GetMeta(ctx, index.MetaHasDeprel)
	require.NoError(t, err)
	require.Equal(t, "false", v)
}
