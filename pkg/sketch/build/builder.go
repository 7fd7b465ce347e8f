// Package build drives an index build: CoNLL-U input is streamed sentence
// by sentence into the sentence index, the lexicon, and the statistics
// sidecar. The build is single-writer; sentence ids are assigned in strict
// ingestion order and become the canonical example order at query time.
package build

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strconv"

	"github.com/cognicore/sketch/pkg/sketch/conllu"
	"github.com/cognicore/sketch/pkg/sketch/corpus"
	"github.com/cognicore/sketch/pkg/sketch/index"
	"github.com/cognicore/sketch/pkg/sketch/internalerr"
	"github.com/cognicore/sketch/pkg/sketch/lexicon"
	"github.com/cognicore/sketch/pkg/sketch/stats"
)

// Artifact file names inside an engine directory.
const (
	LexiconFile  = "lexicon.bin"
	StatsFile    = "stats.bin"
	StatsTSVFile = "stats.tsv"
	IndexFile    = "index.db"
)

// Summary reports what a build ingested.
type Summary struct {
	Sentences    uint32
	Tokens       uint64
	SkippedLines int
	HasDeprel    bool
}

// Builder ingests sentences into an index plus its sidecars.
type Builder struct {
	ix    index.Index
	lex   *lexicon.Builder
	stats *stats.Builder
	log   *slog.Logger

	nextID        uint32
	deprelDecided bool
	hasDeprel     bool

	tokenBuf []byte
	lemmaBuf []byte
	idBuf    []uint32
}

// New creates a builder writing into ix. A nil logger falls back to
// slog.Default.
func New(ix index.Index, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{
		ix:    ix,
		lex:   lexicon.NewBuilder(),
		stats: stats.NewBuilder(),
		log:   logger,
	}
}

// Lexicon exposes the in-progress lexicon (the precompute pipeline shares
// it when running directly after a build).
func (b *Builder) Lexicon() *lexicon.Builder { return b.lex }

// Stats exposes the in-progress statistics.
func (b *Builder) Stats() *stats.Builder { return b.stats }

// HasDeprel reports the index-wide deprel setting once decided.
func (b *Builder) HasDeprel() bool { return b.hasDeprel }

// Ingest streams every sentence of a CoNLL-U input into the index,
// honouring cancellation at sentence boundaries.
func (b *Builder) Ingest(ctx context.Context, r io.Reader) (Summary, error) {
	cr := conllu.NewReader(r)
	for {
		if err := ctx.Err(); err != nil {
			return b.summary(cr), fmt.Errorf("%w: build interrupted: %v", internalerr.ErrCancelled, err)
		}
		sent, err := cr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return b.summary(cr), fmt.Errorf("%w: read corpus: %v", internalerr.ErrIndexIO, err)
		}
		if err := b.AddSentence(ctx, sent); err != nil {
			return b.summary(cr), err
		}
	}
	if cr.SkippedLines > 0 {
		b.log.Warn("skipped malformed token lines", "count", cr.SkippedLines)
	}
	return b.summary(cr), nil
}

func (b *Builder) summary(cr *conllu.Reader) Summary {
	return Summary{
		Sentences:    b.nextID,
		Tokens:       b.lex.TotalTokens(),
		SkippedLines: cr.SkippedLines,
		HasDeprel:    b.hasDeprel,
	}
}

// AddSentence appends one sentence document. The first sentence decides,
// once per index, whether the token codec carries dependency labels.
func (b *Builder) AddSentence(ctx context.Context, sent conllu.Sentence) error {
	if !b.deprelDecided {
		b.hasDeprel = sent.HasDeprel
		b.deprelDecided = true
	}

	id := b.nextID
	tokens := normalizeTokens(sent.Tokens, b.hasDeprel)

	lemmas := make([]string, len(tokens))
	tags := make([]string, len(tokens))
	b.idBuf = b.idBuf[:0]
	for i, tok := range tokens {
		lemmaID, err := b.lex.AddOccurrence(tok.Lemma, tok.Tag)
		if err != nil {
			return err
		}
		b.idBuf = append(b.idBuf, lemmaID)
		lemmas[i] = lexicon.Normalize(tok.Lemma)
		tags[i] = tok.Tag
	}
	b.stats.AddSentence(lemmas, tags)
	b.lex.AddSentence()

	b.tokenBuf = corpus.EncodeTokens(b.tokenBuf[:0], tokens, b.hasDeprel)
	b.lemmaBuf = corpus.EncodeLemmaIDs(b.lemmaBuf[:0], b.idBuf)

	doc := index.Document{
		SentenceID: id,
		Text:       sent.Text,
		Tokens:     tokens,
		TokenBlob:  b.tokenBuf,
		LemmaBlob:  b.lemmaBuf,
	}
	if err := b.ix.Append(ctx, doc); err != nil {
		return err
	}
	b.nextID++

	if b.nextID%50000 == 0 {
		b.log.Info("build progress", "sentences", b.nextID, "lemmas", b.lex.Len())
	}
	return nil
}

// Finish records index metadata and writes the lexicon and statistics files
// into dir.
func (b *Builder) Finish(ctx context.Context, dir string) error {
	if err := b.ix.PutMeta(ctx, index.MetaHasDeprel, strconv.FormatBool(b.hasDeprel)); err != nil {
		return err
	}
	if err := b.ix.PutMeta(ctx, index.MetaSentenceCount, strconv.FormatUint(uint64(b.nextID), 10)); err != nil {
		return err
	}
	if err := b.lex.WriteFile(filepath.Join(dir, LexiconFile)); err != nil {
		return err
	}
	if err := b.stats.WriteFile(filepath.Join(dir, StatsFile)); err != nil {
		return err
	}
	if err := b.stats.WriteTSV(filepath.Join(dir, StatsTSVFile)); err != nil {
		return err
	}
	b.log.Info("build finished",
		"sentences", b.nextID,
		"tokens", b.lex.TotalTokens(),
		"lemmas", b.lex.Len(),
		"has_deprel", b.hasDeprel)
	return nil
}

// normalizeTokens repairs the token invariants: positions renumbered densely
// from 0, empty lemma and tag replaced by the placeholder, and deprel
// cleared when the index-wide setting omits it.
func normalizeTokens(tokens []corpus.Token, hasDeprel bool) []corpus.Token {
	out := make([]corpus.Token, len(tokens))
	for i, tok := range tokens {
		tok.Position = i
		if tok.Lemma == "" {
			tok.Lemma = corpus.Placeholder
		}
		if tok.Tag == "" {
			tok.Tag = corpus.Placeholder
		}
		if !hasDeprel {
			tok.Deprel = ""
		}
		out[i] = tok
	}
	return out
}
