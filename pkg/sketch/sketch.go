// Package sketch is the collocation engine facade: it joins the sentence
// index, the pattern compiler and verifier, the statistics sidecar, the
// scorer, and the precomputed collocation files into the word-sketch query
// surface (FindCollocations, FindExamples, TotalFrequency).
package sketch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/cognicore/sketch/pkg/sketch/build"
	"github.com/cognicore/sketch/pkg/sketch/corpus"
	"github.com/cognicore/sketch/pkg/sketch/index"
	"github.com/cognicore/sketch/pkg/sketch/index/sqlindex"
	"github.com/cognicore/sketch/pkg/sketch/internalerr"
	"github.com/cognicore/sketch/pkg/sketch/lexicon"
	"github.com/cognicore/sketch/pkg/sketch/pattern"
	"github.com/cognicore/sketch/pkg/sketch/precompute"
	"github.com/cognicore/sketch/pkg/sketch/relations"
	"github.com/cognicore/sketch/pkg/sketch/score"
	"github.com/cognicore/sketch/pkg/sketch/stats"
)

// Options configures an engine instance.
type Options struct {
	// MaxExamplesPerCollocate bounds examples kept per collocate. Default 3.
	MaxExamplesPerCollocate int
	// MaxExamplesTotal bounds examples across one result. Default 10.
	MaxExamplesTotal int
	// SampleSize caps candidate sentences per query; 0 means exhaustive.
	// When sampling triggers, co-occurrence counts are scaled by
	// total/sample.
	SampleSize int
	// Measure is the ranking measure. Default logDice.
	Measure score.Measure
	// Catalog supplies the relation definitions. Default relations.Default().
	Catalog *relations.Catalog
	// SentenceCacheSize bounds the decoded-sentence LRU. Default 1024.
	SentenceCacheSize int
	// Logger falls back to slog.Default when nil.
	Logger *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.MaxExamplesPerCollocate <= 0 {
		o.MaxExamplesPerCollocate = 3
	}
	if o.MaxExamplesTotal <= 0 {
		o.MaxExamplesTotal = 10
	}
	if !o.Measure.Validate() {
		o.Measure = score.LogDice
	}
	if o.Catalog == nil {
		o.Catalog = relations.Default()
	}
	if o.SentenceCacheSize <= 0 {
		o.SentenceCacheSize = 1024
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// Engine is a read-only view over one engine directory. It is safe for
// concurrent queries; no mutation occurs during its lifetime.
type Engine struct {
	ix        index.Index
	stats     stats.Source
	lex       *lexicon.Lexicon // nil when composed in memory
	pre       map[string]*precompute.Reader
	cache     *lru.Cache[uint32, []corpus.Token]
	hasDeprel bool
	opts      Options
	log       *slog.Logger

	decodeFailures atomic.Uint64
}

// Open maps all artifacts in an engine directory: the sentence index, the
// statistics sidecar, the lexicon, and every precomputed relation file.
func Open(ctx context.Context, dir string, opts Options) (*Engine, error) {
	opts = opts.withDefaults()

	ix, err := sqlindex.Open(ctx, filepath.Join(dir, build.IndexFile))
	if err != nil {
		return nil, err
	}
	st, err := stats.OpenReader(filepath.Join(dir, build.StatsFile))
	if err != nil {
		ix.Close()
		return nil, err
	}
	lex, err := lexicon.Open(filepath.Join(dir, build.LexiconFile))
	if err != nil {
		ix.Close()
		st.Close()
		return nil, err
	}

	e, err := NewEngine(ctx, ix, st, opts)
	if err != nil {
		ix.Close()
		st.Close()
		lex.Close()
		return nil, err
	}
	e.lex = lex

	entries, err := os.ReadDir(dir)
	if err != nil {
		e.Close()
		return nil, fmt.Errorf("%w: read engine dir: %v", internalerr.ErrIndexIO, err)
	}
	for _, ent := range entries {
		name := ent.Name()
		if ent.IsDir() || !strings.HasSuffix(name, precompute.CollocFileExt) {
			continue
		}
		relID := strings.TrimSuffix(name, precompute.CollocFileExt)
		r, err := precompute.OpenReader(filepath.Join(dir, name))
		if err != nil {
			e.log.Warn("skipping unreadable precomputed file", "file", name, "err", err)
			continue
		}
		e.pre[relID] = r
	}
	return e, nil
}

// NewEngine composes an engine from already-open components. The caller
// keeps ownership of nothing: Close releases everything.
func NewEngine(ctx context.Context, ix index.Index, st stats.Source, opts Options) (*Engine, error) {
	opts = opts.withDefaults()
	hasDeprel, err := ix.GetMeta(ctx, index.MetaHasDeprel)
	if err != nil {
		return nil, err
	}
	cache, err := lru.New[uint32, []corpus.Token](opts.SentenceCacheSize)
	if err != nil {
		return nil, fmt.Errorf("%w: sentence cache: %v", internalerr.ErrInvariant, err)
	}
	return &Engine{
		ix:        ix,
		stats:     st,
		pre:       make(map[string]*precompute.Reader),
		cache:     cache,
		hasDeprel: hasDeprel == "true",
		opts:      opts,
		log:       opts.Logger,
	}, nil
}

// AttachPrecomputed registers a precomputed reader for a relation id. Open
// does this automatically for files found in the engine directory.
func (e *Engine) AttachPrecomputed(relID string, r *precompute.Reader) {
	e.pre[relID] = r
}

// Close releases every mapped region and the index handle.
func (e *Engine) Close() error {
	var first error
	for _, r := range e.pre {
		if err := r.Close(); err != nil && first == nil {
			first = err
		}
	}
	if e.lex != nil {
		if err := e.lex.Close(); err != nil && first == nil {
			first = err
		}
	}
	if c, ok := e.stats.(*stats.Reader); ok {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	if err := e.ix.Close(); err != nil && first == nil {
		first = err
	}
	return first
}

// DecodeFailures returns the number of sentences skipped for codec errors
// since the engine opened.
func (e *Engine) DecodeFailures() uint64 { return e.decodeFailures.Load() }

// TotalFrequency returns the corpus frequency of a lemma.
func (e *Engine) TotalFrequency(lemma string) uint64 {
	return e.stats.FrequencyOf(lexicon.Normalize(lemma))
}

// Collocation is one ranked result row.
type Collocation struct {
	Lemma         string
	Tag           string
	Cooccurrence  uint64
	CollocateFreq uint64
	Score         float64
	Examples      []Example
}

// Example is one supporting sentence with the head and collocate positions
// and a highlighted rendering.
type Example struct {
	SentenceID        uint32
	Text              string
	Highlighted       string
	HeadPosition      int
	CollocatePosition int
}

// FindCollocations answers a word-sketch query: for the headword under the
// named relation (or an inline pattern), the top-k collocates with
// cooccurrence counts, association scores, and supporting examples. A
// headword unknown to the corpus yields an empty result. Precomputed
// relations are served from their files; everything else runs the
// compile-retrieve-verify pipeline.
func (e *Engine) FindCollocations(ctx context.Context, head, relationOrPattern string, minScore float64, k int) ([]Collocation, error) {
	head = lexicon.Normalize(head)
	if head == "" {
		return nil, fmt.Errorf("%w: empty headword", internalerr.ErrInvariant)
	}
	if k < 1 {
		return nil, fmt.Errorf("%w: k must be at least 1", internalerr.ErrInvariant)
	}

	fa := int64(e.stats.FrequencyOf(head))
	if fa == 0 {
		return nil, nil
	}

	rel, err := e.resolveRelation(relationOrPattern)
	if err != nil {
		return nil, err
	}

	if r, ok := e.pre[rel.ID]; ok {
		return e.fromPrecomputed(ctx, r, rel, head, minScore, k)
	}
	return e.online(ctx, rel, head, fa, minScore, k)
}

// resolveRelation accepts either a catalog relation id or an inline pattern
// (recognized by its bracket syntax). An inline pattern takes its head from
// capture 1 (default: first element) and its collocate from capture 2
// (default: last element).
func (e *Engine) resolveRelation(spec string) (relations.Relation, error) {
	if rel, ok := e.opts.Catalog.Get(spec); ok {
		return rel, nil
	}
	if !strings.Contains(spec, "[") {
		return relations.Relation{}, fmt.Errorf("%w: unknown relation %q", internalerr.ErrPatternUnsupported, spec)
	}
	parsed, err := pattern.Parse(spec)
	if err != nil {
		return relations.Relation{}, err
	}
	headIdx, collIdx := inlineIndices(parsed)
	rel := relations.Relation{
		ID:             spec,
		Name:           "inline",
		Pattern:        spec,
		HeadIndex:      headIdx,
		CollocateIndex: collIdx,
	}
	return rel, nil
}

func inlineIndices(p *pattern.Pattern) (head, coll int) {
	first := p.Alternatives[0]
	head, coll = 1, len(first.Elements)
	for i, el := range first.Elements {
		switch el.Capture {
		case 1:
			head = i + 1
		case 2:
			coll = i + 1
		}
	}
	return head, coll
}

// collState aggregates one collocate lemma during the online path.
type collState struct {
	lemma    string
	tag      string
	count    uint64
	examples []Example
}

func (e *Engine) online(ctx context.Context, rel relations.Relation, head string, fa int64, minScore float64, k int) ([]Collocation, error) {
	patternSrc := rel.Pattern
	if patternSrc == "" {
		return nil, fmt.Errorf("%w: relation %q has no pattern and no precomputed file",
			internalerr.ErrPatternUnsupported, rel.ID)
	}
	parsed, err := pattern.Parse(patternSrc)
	if err != nil {
		return nil, err
	}
	bound := pattern.Bind(parsed, head, rel.HeadIndex)
	query, err := pattern.Compile(bound)
	if err != nil {
		return nil, err
	}

	spans, err := index.Search(ctx, e.ix, query)
	if err != nil {
		return nil, err
	}

	scale := 1.0
	if e.opts.SampleSize > 0 && len(spans) > e.opts.SampleSize {
		scale = float64(len(spans)) / float64(e.opts.SampleSize)
		spans = spans[:e.opts.SampleSize]
	}

	agg := make(map[string]*collState)
	for _, span := range spans {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: query interrupted: %v", internalerr.ErrCancelled, err)
		}
		tokens, err := e.sentenceTokens(ctx, span.SentenceID)
		if err != nil {
			e.decodeFailures.Add(1)
			e.log.Warn("skipping undecodable sentence", "sentence", span.SentenceID, "err", err)
			continue
		}
		e.matchSentence(bound, rel, head, span.SentenceID, tokens, agg)
	}

	n := int64(e.stats.TotalTokens())
	results := make([]Collocation, 0, len(agg))
	for _, cs := range agg {
		fab := int64(float64(cs.count)*scale + 0.5)
		fb := int64(e.stats.FrequencyOf(cs.lemma))
		s := score.Score(e.opts.Measure, fab, fa, fb, n)
		if s < minScore {
			continue
		}
		results = append(results, Collocation{
			Lemma:         cs.lemma,
			Tag:           cs.tag,
			Cooccurrence:  uint64(fab),
			CollocateFreq: uint64(fb),
			Score:         s,
			Examples:      cs.examples,
		})
	}

	sortCollocations(results)
	if len(results) > k {
		results = results[:k]
	}
	e.capExamples(results)
	if err := e.renderExamples(ctx, results); err != nil {
		return nil, err
	}
	return results, nil
}

// matchSentence runs the verifier for every anchor occurrence of the head
// in one candidate sentence and folds successful matches into the
// aggregation.
func (e *Engine) matchSentence(bound *pattern.Pattern, rel relations.Relation, head string, sid uint32, tokens []corpus.Token, agg map[string]*collState) {
	for _, anchor := range tokens {
		if lexicon.Normalize(anchor.Lemma) != head {
			continue
		}
		for _, alt := range bound.Alternatives {
			if rel.HeadIndex > len(alt.Elements) || rel.CollocateIndex > len(alt.Elements) {
				continue
			}
			match, ok := pattern.Verify(alt, tokens, anchor.Position, rel.HeadIndex-1)
			if !ok {
				continue
			}
			collTok, ok := collocateToken(match, rel.CollocateIndex, tokens)
			if !ok {
				continue
			}
			collLemma := lexicon.Normalize(collTok.Lemma)
			cs := agg[collLemma]
			if cs == nil {
				cs = &collState{lemma: collLemma, tag: collTok.Tag}
				agg[collLemma] = cs
			}
			cs.count++
			if len(cs.examples) < e.opts.MaxExamplesPerCollocate {
				cs.examples = append(cs.examples, Example{
					SentenceID:        sid,
					HeadPosition:      match.ElementPositions[rel.HeadIndex-1],
					CollocatePosition: collTok.Position,
				})
			}
			break // one match per anchor
		}
	}
}

// collocateToken resolves the collocate by its element position, falling
// back to a same-numbered capture when the element was skipped.
func collocateToken(m pattern.Match, collocateIndex int, tokens []corpus.Token) (corpus.Token, bool) {
	if collocateIndex-1 < len(m.ElementPositions) {
		pos := m.ElementPositions[collocateIndex-1]
		if pos >= 0 {
			for _, t := range tokens {
				if t.Position == pos {
					return t, true
				}
			}
		}
	}
	if tok, ok := m.Captures[collocateIndex]; ok {
		return tok, true
	}
	return corpus.Token{}, false
}

// fromPrecomputed serves a query from a precomputed file, attaching
// examples through the concordance path.
func (e *Engine) fromPrecomputed(ctx context.Context, r *precompute.Reader, rel relations.Relation, head string, minScore float64, k int) ([]Collocation, error) {
	entry, ok, err := r.Lookup(head)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}

	gap := r.Window()
	if gap <= 0 {
		gap = rel.Window
	}
	if gap <= 0 {
		gap = 5
	}

	results := make([]Collocation, 0, k)
	for _, c := range entry.Collocates {
		if float64(c.Score) < minScore {
			continue
		}
		examples, err := e.FindExamples(ctx, head, c.Lemma, gap, e.opts.MaxExamplesPerCollocate)
		if err != nil {
			return nil, err
		}
		results = append(results, Collocation{
			Lemma:         strings.Clone(c.Lemma),
			Tag:           strings.Clone(c.POS),
			Cooccurrence:  c.Cooccurrence,
			CollocateFreq: c.CollocateFreq,
			Score:         float64(c.Score),
			Examples:      examples,
		})
		if len(results) == k {
			break
		}
	}
	e.capExamples(results)
	return results, nil
}

// FindExamples is the concordance operation: the earliest sentences, in
// ingestion order, containing both lemmas within maxGap token positions,
// with both positions reported and a highlighted rendering. HeadPosition
// holds the earlier and CollocatePosition the later of the two matched
// positions, whichever lemma sits at each.
func (e *Engine) FindExamples(ctx context.Context, lemma1, lemma2 string, maxGap, limit int) ([]Example, error) {
	lemma1 = lexicon.Normalize(lemma1)
	lemma2 = lexicon.Normalize(lemma2)
	if lemma1 == "" || lemma2 == "" {
		return nil, fmt.Errorf("%w: empty concordance lemma", internalerr.ErrInvariant)
	}
	if maxGap < 1 {
		maxGap = 1
	}
	if limit < 1 {
		limit = 1
	}

	query := index.Near{
		Clauses: []index.Term{
			{Field: index.FieldLemma, Value: lemma1},
			{Field: index.FieldLemma, Value: lemma2},
		},
		Slop:    maxGap - 1,
		InOrder: false,
	}
	spans, err := index.Search(ctx, e.ix, query)
	if err != nil {
		return nil, err
	}

	var out []Example
	for _, span := range spans {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: concordance interrupted: %v", internalerr.ErrCancelled, err)
		}
		if len(out) == limit {
			break
		}
		stored, err := e.ix.Sentence(ctx, span.SentenceID)
		if err != nil {
			return nil, err
		}
		tokens, err := e.sentenceTokens(ctx, span.SentenceID)
		if err != nil {
			e.decodeFailures.Add(1)
			continue
		}
		p1, p2 := int(span.Start), int(span.End)
		out = append(out, Example{
			SentenceID:        span.SentenceID,
			Text:              stored.Text,
			Highlighted:       highlight(stored.Text, tokens, p1, p2),
			HeadPosition:      p1,
			CollocatePosition: p2,
		})
	}
	return out, nil
}

// sentenceTokens decodes a sentence's token column through the LRU cache.
func (e *Engine) sentenceTokens(ctx context.Context, sid uint32) ([]corpus.Token, error) {
	if tokens, ok := e.cache.Get(sid); ok {
		return tokens, nil
	}
	stored, err := e.ix.Sentence(ctx, sid)
	if err != nil {
		return nil, err
	}
	tokens, err := corpus.DecodeTokens(stored.TokenBlob, e.hasDeprel)
	if err != nil {
		return nil, err
	}
	e.cache.Add(sid, tokens)
	return tokens, nil
}

// renderExamples fills text and highlighting for examples gathered during
// matching.
func (e *Engine) renderExamples(ctx context.Context, results []Collocation) error {
	for i := range results {
		for j := range results[i].Examples {
			ex := &results[i].Examples[j]
			stored, err := e.ix.Sentence(ctx, ex.SentenceID)
			if err != nil {
				return err
			}
			tokens, err := e.sentenceTokens(ctx, ex.SentenceID)
			if err != nil {
				e.decodeFailures.Add(1)
				continue
			}
			ex.Text = stored.Text
			ex.Highlighted = highlight(stored.Text, tokens, ex.HeadPosition, ex.CollocatePosition)
		}
	}
	return nil
}

// capExamples enforces the overall example bound by trimming extras from
// the lowest-ranked collocates first, never below one example per collocate.
func (e *Engine) capExamples(results []Collocation) {
	total := 0
	for i := range results {
		if n := e.opts.MaxExamplesPerCollocate; len(results[i].Examples) > n {
			results[i].Examples = results[i].Examples[:n]
		}
		total += len(results[i].Examples)
	}
	for i := len(results) - 1; i >= 0 && total > e.opts.MaxExamplesTotal; i-- {
		for len(results[i].Examples) > 1 && total > e.opts.MaxExamplesTotal {
			results[i].Examples = results[i].Examples[:len(results[i].Examples)-1]
			total--
		}
	}
}

// sortCollocations orders by score descending, co-occurrence descending,
// lemma ascending.
func sortCollocations(results []Collocation) {
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		if results[i].Cooccurrence != results[j].Cooccurrence {
			return results[i].Cooccurrence > results[j].Cooccurrence
		}
		return results[i].Lemma < results[j].Lemma
	})
}

// highlight wraps the two matched tokens in angle markers inside the
// sentence text, using their character offsets.
func highlight(text string, tokens []corpus.Token, positions ...int) string {
	type extent struct{ start, end int }
	var extents []extent
	for _, pos := range positions {
		for _, t := range tokens {
			if t.Position == pos && t.End > t.Start && t.End <= len(text) {
				extents = append(extents, extent{t.Start, t.End})
				break
			}
		}
	}
	if len(extents) == 0 {
		return text
	}
	sort.Slice(extents, func(i, j int) bool { return extents[i].start < extents[j].start })

	var b strings.Builder
	cursor := 0
	for _, ex := range extents {
		if ex.start < cursor {
			continue
		}
		b.WriteString(text[cursor:ex.start])
		b.WriteByte('<')
		b.WriteString(text[ex.start:ex.end])
		b.WriteByte('>')
		cursor = ex.end
	}
	b.WriteString(text[cursor:])
	return b.String()
}
