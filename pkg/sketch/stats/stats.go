// Package stats maintains the term-frequency sidecar: corpus totals plus
// per-lemma total frequency, document frequency, and POS distribution. The
// online query path reads it; the precomputation pipeline takes its
// frequencies from the lexicon instead.
package stats

import (
	"encoding/binary"
	"fmt"
	"os"
	"sort"

	"github.com/cognicore/sketch/pkg/sketch/internalerr"
)

// Magic identifies a statistics file; Version its layout revision.
var Magic = [4]byte{'S', 'K', 'S', 'T'}

const Version uint32 = 1

// Source is the read contract both Builder and Reader satisfy. The engine
// depends on this interface so tests can query a freshly built corpus without
// a round trip through the filesystem.
type Source interface {
	TotalTokens() uint64
	TotalSentences() uint64
	FrequencyOf(lemma string) uint64
	DocFrequencyOf(lemma string) uint64
	POSDistributionOf(lemma string) map[string]uint64
}

// Builder accumulates statistics during a build. Single-writer, like the
// rest of the build pipeline.
type Builder struct {
	totalTokens    uint64
	totalSentences uint64
	lemmas         map[string]*lemmaStats
	order          []string
}

type lemmaStats struct {
	freq    uint64
	docFreq uint64
	posDist map[string]uint64
}

// NewBuilder creates an empty statistics builder.
func NewBuilder() *Builder {
	return &Builder{lemmas: make(map[string]*lemmaStats)}
}

// AddSentence records one sentence: every token occurrence plus, once per
// distinct lemma, the document frequency bump.
func (b *Builder) AddSentence(lemmas, tags []string) {
	b.totalSentences++
	seen := make(map[string]struct{}, len(lemmas))
	for i, lemma := range lemmas {
		b.totalTokens++
		ls := b.lemmas[lemma]
		if ls == nil {
			ls = &lemmaStats{posDist: make(map[string]uint64)}
			b.lemmas[lemma] = ls
			b.order = append(b.order, lemma)
		}
		ls.freq++
		if i < len(tags) {
			ls.posDist[tags[i]]++
		}
		if _, ok := seen[lemma]; !ok {
			seen[lemma] = struct{}{}
			ls.docFreq++
		}
	}
}

// TotalTokens returns the running token total.
func (b *Builder) TotalTokens() uint64 { return b.totalTokens }

// TotalSentences returns the running sentence total.
func (b *Builder) TotalSentences() uint64 { return b.totalSentences }

// FrequencyOf returns the running total frequency of a lemma.
func (b *Builder) FrequencyOf(lemma string) uint64 {
	if ls := b.lemmas[lemma]; ls != nil {
		return ls.freq
	}
	return 0
}

// DocFrequencyOf returns the running document frequency of a lemma.
func (b *Builder) DocFrequencyOf(lemma string) uint64 {
	if ls := b.lemmas[lemma]; ls != nil {
		return ls.docFreq
	}
	return 0
}

// POSDistributionOf returns the running tag distribution of a lemma.
func (b *Builder) POSDistributionOf(lemma string) map[string]uint64 {
	if ls := b.lemmas[lemma]; ls != nil {
		return ls.posDist
	}
	return nil
}

// WriteFile persists the statistics in first-seen lemma order, temp-write
// then rename.
func (b *Builder) WriteFile(path string) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("%w: create stats: %v", internalerr.ErrIndexIO, err)
	}
	defer f.Close()

	var hdr [28]byte
	copy(hdr[0:4], Magic[:])
	binary.LittleEndian.PutUint32(hdr[4:8], Version)
	binary.LittleEndian.PutUint64(hdr[8:16], b.totalTokens)
	binary.LittleEndian.PutUint64(hdr[16:24], b.totalSentences)
	binary.LittleEndian.PutUint32(hdr[24:28], uint32(len(b.order)))
	if _, err := f.Write(hdr[:]); err != nil {
		return fmt.Errorf("%w: write stats header: %v", internalerr.ErrIndexIO, err)
	}

	buf := make([]byte, 0, 128)
	for _, lemma := range b.order {
		ls := b.lemmas[lemma]
		buf = buf[:0]
		buf = binary.LittleEndian.AppendUint16(buf, uint16(len(lemma)))
		buf = append(buf, lemma...)
		buf = binary.LittleEndian.AppendUint64(buf, ls.freq)
		buf = binary.LittleEndian.AppendUint64(buf, ls.docFreq)
		tags := sortedTags(ls.posDist)
		buf = binary.LittleEndian.AppendUint16(buf, uint16(len(tags)))
		for _, tag := range tags {
			buf = append(buf, byte(len(tag)))
			buf = append(buf, tag...)
			buf = binary.LittleEndian.AppendUint64(buf, ls.posDist[tag])
		}
		if _, err := f.Write(buf); err != nil {
			return fmt.Errorf("%w: write stats entry: %v", internalerr.ErrIndexIO, err)
		}
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("%w: close stats: %v", internalerr.ErrIndexIO, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("%w: finalize stats: %v", internalerr.ErrIndexIO, err)
	}
	return nil
}

// WriteTSV emits the human-readable twin: one row per lemma with frequency,
// document frequency, and the tag distribution as tag:count pairs.
func (b *Builder) WriteTSV(path string) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("%w: create stats tsv: %v", internalerr.ErrIndexIO, err)
	}
	defer f.Close()

	fmt.Fprintf(f, "#total_tokens\t%d\n#total_sentences\t%d\n", b.totalTokens, b.totalSentences)
	fmt.Fprintf(f, "#lemma\tfreq\tdoc_freq\tpos_dist\n")
	for _, lemma := range b.order {
		ls := b.lemmas[lemma]
		fmt.Fprintf(f, "%s\t%d\t%d\t", lemma, ls.freq, ls.docFreq)
		for i, tag := range sortedTags(ls.posDist) {
			if i > 0 {
				fmt.Fprint(f, ",")
			}
			fmt.Fprintf(f, "%s:%d", tag, ls.posDist[tag])
		}
		fmt.Fprintln(f)
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("%w: close stats tsv: %v", internalerr.ErrIndexIO, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("%w: finalize stats tsv: %v", internalerr.ErrIndexIO, err)
	}
	return nil
}

func sortedTags(dist map[string]uint64) []string {
	tags := make([]string, 0, len(dist))
	for tag := range dist {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}
