// Package precompute builds, for each configured relation, a compact file
// mapping each headword to its top-K collocates: a single sequential scan of
// the sealed sentence index feeds per-shard sorted run files through an
// external-sort merge into memory-mappable output files served by Reader.
package precompute

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"golang.org/x/sync/errgroup"

	"github.com/cognicore/sketch/pkg/sketch/corpus"
	"github.com/cognicore/sketch/pkg/sketch/index"
	"github.com/cognicore/sketch/pkg/sketch/internalerr"
	"github.com/cognicore/sketch/pkg/sketch/lexicon"
	"github.com/cognicore/sketch/pkg/sketch/pattern"
	"github.com/cognicore/sketch/pkg/sketch/relations"
	"github.com/cognicore/sketch/pkg/sketch/score"
)

// ManifestFile is the checkpoint file name inside the output directory.
const ManifestFile = "precompute.manifest"

// Options tunes a precomputation build.
type Options struct {
	// K is the number of collocates kept per headword. Default 50.
	K int
	// MinHeadFrequency skips heads rarer than this. Default 1.
	MinHeadFrequency uint64
	// NumShards is the shard fan-out; rounded up to a power of two.
	// Default 16.
	NumShards int
	// FlushThreshold flushes the count maps once their aggregate entry
	// count exceeds it. Default 4 << 20.
	FlushThreshold int
	// Logger falls back to slog.Default when nil.
	Logger *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.K <= 0 {
		o.K = 50
	}
	if o.MinHeadFrequency == 0 {
		o.MinHeadFrequency = 1
	}
	if o.NumShards <= 0 {
		o.NumShards = 16
	}
	for o.NumShards&(o.NumShards-1) != 0 {
		o.NumShards++
	}
	if o.FlushThreshold <= 0 {
		o.FlushThreshold = 4 << 20
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// Engine runs precomputation builds against a sealed index.
type Engine struct {
	ix   index.Index
	lex  lexicon.Source
	opts Options
	log  *slog.Logger
}

// New creates a precomputation engine over a sealed index and its lexicon.
func New(ix index.Index, lex lexicon.Source, opts Options) *Engine {
	opts = opts.withDefaults()
	return &Engine{ix: ix, lex: lex, opts: opts, log: opts.Logger}
}

// relState holds the per-relation scan state.
type relState struct {
	rel    relations.Relation
	parsed *pattern.Pattern
	counts *countMap
}

// Run produces one <relation_id>.colloc file per relation in outDir,
// resuming from a previous interrupted build when a manifest is present.
func (e *Engine) Run(ctx context.Context, rels []relations.Relation, outDir string) error {
	manifestPath := filepath.Join(outDir, ManifestFile)
	m, err := loadManifest(manifestPath)
	if err != nil {
		return err
	}
	if m == nil {
		m = newManifest(e.opts.NumShards)
	}
	if m.NumShards != e.opts.NumShards {
		return fmt.Errorf("%w: manifest has %d shards, build configured for %d",
			internalerr.ErrInvariant, m.NumShards, e.opts.NumShards)
	}

	workDir := filepath.Join(outDir, "precompute.runs")
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return fmt.Errorf("%w: create run dir: %v", internalerr.ErrIndexIO, err)
	}

	states := make([]*relState, 0, len(rels))
	for _, rel := range rels {
		if err := rel.Validate(); err != nil {
			return fmt.Errorf("%w: %v", internalerr.ErrPatternUnsupported, err)
		}
		if m.relation(rel.ID).Completed {
			e.log.Info("relation already precomputed, skipping", "relation", rel.ID)
			continue
		}
		st := &relState{rel: rel, counts: newCountMap(1024)}
		if !rel.WindowBased() {
			st.parsed, err = pattern.Parse(rel.Pattern)
			if err != nil {
				return err
			}
		}
		states = append(states, st)
	}
	if len(states) == 0 {
		return nil
	}

	if !m.ScanCompleted {
		if err := e.scan(ctx, states, m, workDir, manifestPath); err != nil {
			return err
		}
		m.ScanCompleted = true
		if err := m.save(manifestPath); err != nil {
			return err
		}
	}

	for _, st := range states {
		if err := e.reduce(ctx, st, m, outDir); err != nil {
			return err
		}
		m.relation(st.rel.ID).Completed = true
		if err := m.save(manifestPath); err != nil {
			return err
		}
	}

	os.RemoveAll(workDir)
	os.Remove(manifestPath)
	return nil
}

// scan walks every sentence once, counting collocate pairs for all
// relations, and flushes sorted runs at checkpoint boundaries.
func (e *Engine) scan(ctx context.Context, states []*relState, m *manifest, workDir, manifestPath string) error {
	total, err := e.ix.SentenceCount(ctx)
	if err != nil {
		return err
	}
	hasDeprel, err := e.hasDeprel(ctx)
	if err != nil {
		return err
	}

	needTokens := false
	for _, st := range states {
		if !st.rel.WindowBased() {
			needTokens = true
		}
	}

	var ids []uint32
	flushSeq := make(map[string]int)
	for _, st := range states {
		// A resumed scan numbers its runs after those already recorded, so
		// no checkpointed run file is overwritten.
		for _, paths := range m.relation(st.rel.ID).Runs {
			flushSeq[st.rel.ID] += len(paths)
		}
	}
	start := uint32(m.LastSentence + 1)

	for sid := start; sid < total; sid++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%w: precompute scan interrupted: %v", internalerr.ErrCancelled, err)
		}

		stored, err := e.ix.Sentence(ctx, sid)
		if err != nil {
			return err
		}
		ids, err = corpus.DecodeLemmaIDsInto(ids, stored.LemmaBlob)
		if err != nil {
			e.log.Warn("skipping undecodable sentence", "sentence", sid, "err", err)
			continue
		}

		var tokens []corpus.Token
		if needTokens {
			tokens, err = corpus.DecodeTokens(stored.TokenBlob, hasDeprel)
			if err != nil {
				e.log.Warn("skipping undecodable sentence", "sentence", sid, "err", err)
				continue
			}
		}

		for _, st := range states {
			if st.rel.WindowBased() {
				e.countWindow(st, ids)
			} else {
				e.countPattern(st, ids, tokens)
			}
		}

		if e.pendingEntries(states) > e.opts.FlushThreshold {
			if err := e.flush(states, m, workDir, flushSeq, int64(sid), manifestPath); err != nil {
				return err
			}
		}
	}
	return e.flush(states, m, workDir, flushSeq, int64(total)-1, manifestPath)
}

func (e *Engine) pendingEntries(states []*relState) int {
	n := 0
	for _, st := range states {
		n += st.counts.len()
	}
	return n
}

// countWindow counts positional co-occurrence within the relation's window.
func (e *Engine) countWindow(st *relState, ids []uint32) {
	w := st.rel.Window
	for i, head := range ids {
		if e.lex.FrequencyOfID(head) < e.opts.MinHeadFrequency {
			continue
		}
		lo := i - w
		if lo < 0 {
			lo = 0
		}
		hi := i + w
		if hi >= len(ids) {
			hi = len(ids) - 1
		}
		for j := lo; j <= hi; j++ {
			if j == i {
				continue
			}
			st.counts.inc(packKey(head, ids[j]), 1)
		}
	}
}

// countPattern delegates to the verifier: every token position anchors the
// head element once; each successful match contributes one pair.
func (e *Engine) countPattern(st *relState, ids []uint32, tokens []corpus.Token) {
	rel := st.rel
	for _, alt := range st.parsed.Alternatives {
		if rel.HeadIndex > len(alt.Elements) || rel.CollocateIndex > len(alt.Elements) {
			continue
		}
		for _, anchor := range tokens {
			match, ok := pattern.Verify(alt, tokens, anchor.Position, rel.HeadIndex-1)
			if !ok {
				continue
			}
			headPos := match.ElementPositions[rel.HeadIndex-1]
			collPos := collocatePosition(match, rel.CollocateIndex)
			if headPos < 0 || collPos < 0 || headPos >= len(ids) || collPos >= len(ids) {
				continue
			}
			head, coll := ids[headPos], ids[collPos]
			if e.lex.FrequencyOfID(head) < e.opts.MinHeadFrequency {
				continue
			}
			st.counts.inc(packKey(head, coll), 1)
			if rel.Dual {
				st.counts.inc(packKey(coll, head), 1)
			}
		}
	}
}

// collocatePosition resolves the collocate by its element position, falling
// back to a same-numbered capture when the element was skipped.
func collocatePosition(m pattern.Match, collocateIndex int) int {
	if collocateIndex-1 < len(m.ElementPositions) {
		if pos := m.ElementPositions[collocateIndex-1]; pos >= 0 {
			return pos
		}
	}
	if tok, ok := m.Captures[collocateIndex]; ok {
		return tok.Position
	}
	return -1
}

// flush drains every relation's count map into per-shard sorted run files
// and checkpoints the manifest.
func (e *Engine) flush(states []*relState, m *manifest, workDir string, flushSeq map[string]int, lastSentence int64, manifestPath string) error {
	shardMask := uint32(e.opts.NumShards - 1)
	for _, st := range states {
		if st.counts.len() == 0 {
			continue
		}
		records := st.counts.drain(nil)

		byShard := make(map[int][]runRecord)
		for _, rec := range records {
			head, _ := unpackKey(rec.Key)
			shard := int(head & shardMask)
			byShard[shard] = append(byShard[shard], rec)
		}

		seq := flushSeq[st.rel.ID]
		flushSeq[st.rel.ID] = seq + 1
		for shard, recs := range byShard {
			name := fmt.Sprintf("%s-shard%04d-%06d.run", st.rel.ID, shard, seq)
			path := filepath.Join(workDir, name)
			if err := writeRunFile(path, recs); err != nil {
				return err
			}
			m.addRun(st.rel.ID, shard, path)
		}
		e.log.Debug("flushed run", "relation", st.rel.ID, "records", len(records))
	}
	m.LastSentence = lastSentence
	return m.save(manifestPath)
}

// reduce merges a relation's runs shard by shard, keeps the top-K collocates
// per head by score, and writes the final output file.
func (e *Engine) reduce(ctx context.Context, st *relState, m *manifest, outDir string) error {
	rm := m.relation(st.rel.ID)
	totalTokens := int64(e.lex.TotalTokens())

	shardEntries := make([][]Entry, e.opts.NumShards)
	g, gctx := errgroup.WithContext(ctx)
	for shard := 0; shard < e.opts.NumShards; shard++ {
		paths := rm.Runs[strconv.Itoa(shard)]
		if len(paths) == 0 {
			continue
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return fmt.Errorf("%w: precompute reduce interrupted: %v", internalerr.ErrCancelled, err)
			}
			entries, err := e.reduceShard(paths)
			if err != nil {
				return err
			}
			shardEntries[shard] = entries
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	var entries []Entry
	for _, se := range shardEntries {
		entries = append(entries, se...)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Head < entries[j].Head })

	out := filepath.Join(outDir, st.rel.ID+CollocFileExt)
	if err := writeCollocFile(out, entries, st.rel.Window, e.opts.K, uint64(totalTokens)); err != nil {
		return err
	}
	e.log.Info("relation precomputed", "relation", st.rel.ID, "heads", len(entries))
	return nil
}

func (e *Engine) reduceShard(paths []string) ([]Entry, error) {
	runs := make([][]runRecord, 0, len(paths))
	for _, p := range paths {
		records, err := readRunFile(p)
		if err != nil {
			return nil, err
		}
		runs = append(runs, records)
	}

	var entries []Entry
	var cur uint32
	started := false
	top := newTopK(e.opts.K)
	var mergeErr error

	finishHead := func() {
		if !started || mergeErr != nil {
			return
		}
		entry, err := e.finalizeHead(cur, top.drain())
		if err != nil {
			mergeErr = err
			return
		}
		entries = append(entries, entry)
	}

	mergeRuns(runs, func(key uint64, count uint64) {
		if mergeErr != nil {
			return
		}
		head, coll := unpackKey(key)
		if !started || head != cur {
			finishHead()
			cur = head
			started = true
			top.reset()
		}
		fa := int64(e.lex.FrequencyOfID(head))
		fb := int64(e.lex.FrequencyOfID(coll))
		s := score.Dice(int64(count), fa, fb)
		top.offer(scoredPair{coll: coll, count: count, score: s})
	})
	finishHead()
	if mergeErr != nil {
		return nil, mergeErr
	}
	return entries, nil
}

func (e *Engine) finalizeHead(head uint32, pairs []scoredPair) (Entry, error) {
	headLemma, err := e.lex.LemmaOf(head)
	if err != nil {
		return Entry{}, fmt.Errorf("%w: head lemma id %d missing from lexicon", internalerr.ErrInvariant, head)
	}
	entry := Entry{
		Head:     headLemma,
		HeadFreq: e.lex.FrequencyOfID(head),
	}
	for _, p := range pairs {
		lemma, err := e.lex.LemmaOf(p.coll)
		if err != nil {
			return Entry{}, fmt.Errorf("%w: collocate lemma id %d missing from lexicon", internalerr.ErrInvariant, p.coll)
		}
		pos, err := e.lex.MostFrequentPOSOf(p.coll)
		if err != nil {
			return Entry{}, err
		}
		entry.Collocates = append(entry.Collocates, Collocate{
			Lemma:         lemma,
			POS:           pos,
			Cooccurrence:  p.count,
			CollocateFreq: e.lex.FrequencyOfID(p.coll),
			Score:         float32(p.score),
		})
	}
	return entry, nil
}

func (e *Engine) hasDeprel(ctx context.Context) (bool, error) {
	v, err := e.ix.GetMeta(ctx, index.MetaHasDeprel)
	if err != nil {
		return false, err
	}
	return v == "true", nil
}
