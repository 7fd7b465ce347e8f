package build

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cognicore/sketch/pkg/sketch/corpus"
	"github.com/cognicore/sketch/pkg/sketch/index"
	"github.com/cognicore/sketch/pkg/sketch/index/memindex"
	"github.com/cognicore/sketch/pkg/sketch/lexicon"
)

const smallCorpus = `# text = big dog runs
1	big	big	ADJ	JJ	_	2	amod	_	_
2	dog	dog	NOUN	NN	_	3	nsubj	_	_
3	runs	run	VERB	VBZ	_	0	root	_	_

# text = dog runs fast
1	dog	dog	NOUN	NN	_	2	nsubj	_	_
2	runs	run	VERB	VBZ	_	0	root	_	_
3	fast	fast	ADV	RB	_	2	advmod	_	_

`

func TestIngest(t *testing.T) {
	ctx := context.Background()
	ix := memindex.New()
	b := New(ix, nil)

	summary, err := b.Ingest(ctx, strings.NewReader(smallCorpus))
	require.NoError(t, err)
	require.Equal(t, uint32(2), summary.Sentences)
	require.Equal(t, uint64(6), summary.Tokens)
	require.True(t, summary.HasDeprel)

	dir := t.TempDir()
	require.NoError(t, b.Finish(ctx, dir))

	// Index meta records the deprel decision and the sentence count.
	v, err := ix.GetMeta(ctx, index.MetaHasDeprel)
	require.NoError(t, err)
	require.Equal(t, "true", v)

	// Sentence ids follow ingestion order and columns stay consistent.
	stored, err := ix.Sentence(ctx, 0)
	require.NoError(t, err)
	tokens, err := corpus.DecodeTokens(stored.TokenBlob, true)
	require.NoError(t, err)
	ids, err := corpus.DecodeLemmaIDs(stored.LemmaBlob)
	require.NoError(t, err)
	require.Equal(t, len(tokens), len(ids))
	require.Equal(t, "dog", tokens[1].Lemma)
	require.Equal(t, "amod", tokens[0].Deprel)

	// Postings line up with the lemma column.
	postings, err := ix.Postings(ctx, index.FieldLemma, "run")
	require.NoError(t, err)
	require.Len(t, postings, 2)

	// Sidecars land on disk and reopen.
	lex, err := lexicon.Open(filepath.Join(dir, LexiconFile))
	require.NoError(t, err)
	defer lex.Close()
	require.Equal(t, uint64(2), lex.FrequencyOf("dog"))
	require.Equal(t, uint64(6), lex.TotalTokens())
}

func TestIdempotentBuild(t *testing.T) {
	ctx := context.Background()

	buildOnce := func(dir string) {
		b := New(memindex.New(), nil)
		_, err := b.Ingest(ctx, strings.NewReader(smallCorpus))
		require.NoError(t, err)
		require.NoError(t, b.Finish(ctx, dir))
	}

	d1, d2 := t.TempDir(), t.TempDir()
	buildOnce(d1)
	buildOnce(d2)

	for _, name := range []string{LexiconFile, StatsFile, StatsTSVFile} {
		b1, err := os.ReadFile(filepath.Join(d1, name))
		require.NoError(t, err)
		b2, err := os.ReadFile(filepath.Join(d2, name))
		require.NoError(t, err)
		require.Equal(t, b1, b2, "artifact %s differs between identical builds", name)
	}
}

func TestCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	b := New(memindex.New(), nil)
	_, err := b.Ingest(ctx, strings.NewReader(smallCorpus))
	require.Error(t, err)
}

func TestDeprelDecidedByFirstSentence(t *testing.T) {
	noDeprel := "1\tdog\tdog\tNOUN\tNN\t_\t_\t_\t_\t_\n\n" +
		"1\tcat\tcat\tNOUN\tNN\t_\t2\tnsubj\t_\t_\n\n"
	ctx := context.Background()
	ix := memindex.New()
	b := New(ix, nil)
	summary, err := b.Ingest(ctx, strings.NewReader(noDeprel))
	require.NoError(t, err)
	require.False(t, summary.HasDeprel)

	// The second sentence carried a deprel but the index-wide decision
	// already fell; its token decodes cleanly without one.
	stored, err := ix.Sentence(ctx, 1)
	require.NoError(t, err)
	tokens, err := corpus.DecodeTokens(stored.TokenBlob, false)
	require.NoError(t, err)
	require.Equal(t, "", tokens[0].Deprel)
}
