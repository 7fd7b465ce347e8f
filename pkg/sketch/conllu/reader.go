// Package conllu streams sentences from CoNLL-U-style annotated input: per
// sentence, optional # comment lines (including "# text = ..."), one
// tab-separated token line per token, and a blank separator line.
package conllu

import (
	"bufio"
	"io"
	"strings"

	"github.com/cognicore/sketch/pkg/sketch/corpus"
)

// Sentence is one parsed input sentence before id assignment.
type Sentence struct {
	Text   string
	Tokens []corpus.Token
	// HasDeprel reports whether any token carried a dependency label.
	HasDeprel bool
}

// Reader scans sentences off an input stream. Malformed token lines are
// skipped and tallied rather than failing the build.
type Reader struct {
	s *bufio.Scanner

	// SkippedLines counts token lines dropped for having too few fields.
	SkippedLines int
}

// NewReader wraps an input stream. Lines longer than bufio's default are
// accommodated up to 1 MiB.
func NewReader(r io.Reader) *Reader {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 64*1024), 1<<20)
	return &Reader{s: s}
}

// Next returns the next sentence, or io.EOF when the stream is exhausted.
// Sentences without any valid token line are skipped.
func (r *Reader) Next() (Sentence, error) {
	for {
		sent, got, err := r.scanOne()
		if err != nil {
			return Sentence{}, err
		}
		if !got {
			return Sentence{}, io.EOF
		}
		if len(sent.Tokens) > 0 {
			return sent, nil
		}
	}
}

func (r *Reader) scanOne() (Sentence, bool, error) {
	var sent Sentence
	sawAny := false
	position := 0
	cursor := 0

	for r.s.Scan() {
		line := r.s.Text()
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			if sawAny {
				r.finish(&sent)
				return sent, true, nil
			}
			continue
		}
		sawAny = true

		if strings.HasPrefix(trimmed, "#") {
			if text, ok := strings.CutPrefix(trimmed, "# text ="); ok {
				sent.Text = strings.TrimSpace(text)
				cursor = 0
			} else if text, ok := strings.CutPrefix(trimmed, "# text="); ok {
				sent.Text = strings.TrimSpace(text)
				cursor = 0
			}
			continue
		}

		fields := strings.Split(line, "\t")
		if len(fields) < 4 {
			r.SkippedLines++
			continue
		}

		id := fields[0]
		// Multi-word token ranges (1-2) and empty nodes (1.1) are skipped.
		if strings.ContainsAny(id, "-.") {
			continue
		}

		tok := corpus.Token{Position: position}
		tok.Word = fields[1]
		tok.Lemma = fieldOr(fields, 2, "")
		if tok.Lemma == "" || tok.Lemma == "_" {
			tok.Lemma = tok.Word
		}

		upos := fieldOr(fields, 3, "")
		xpos := fieldOr(fields, 4, "")
		switch {
		case xpos != "" && xpos != "_":
			tok.Tag = xpos
		case upos != "" && upos != "_":
			tok.Tag = upos
		default:
			tok.Tag = "X"
		}

		if deprel := fieldOr(fields, 7, ""); deprel != "" && deprel != "_" {
			tok.Deprel = deprel
			sent.HasDeprel = true
		}

		if tok.Lemma == "" {
			tok.Lemma = corpus.Placeholder
		}
		if tok.Tag == "" {
			tok.Tag = corpus.Placeholder
		}

		tok.Start, tok.End, cursor = locate(sent.Text, tok.Word, cursor)
		sent.Tokens = append(sent.Tokens, tok)
		position++
	}
	if err := r.s.Err(); err != nil {
		return Sentence{}, false, err
	}
	if sawAny {
		r.finish(&sent)
		return sent, true, nil
	}
	return Sentence{}, false, nil
}

// finish synthesizes sentence text and offsets when no "# text" comment was
// present.
func (r *Reader) finish(sent *Sentence) {
	if sent.Text != "" || len(sent.Tokens) == 0 {
		return
	}
	var b strings.Builder
	for i := range sent.Tokens {
		if i > 0 {
			b.WriteByte(' ')
		}
		sent.Tokens[i].Start = b.Len()
		b.WriteString(sent.Tokens[i].Word)
		sent.Tokens[i].End = b.Len()
	}
	sent.Text = b.String()
}

// locate finds a word's character offsets inside the sentence text, scanning
// forward from the cursor. A word absent from the text (tokenization drift)
// is pinned at the cursor with a zero-width extent.
func locate(text, word string, cursor int) (start, end, next int) {
	if text == "" || cursor >= len(text) {
		return cursor, cursor, cursor
	}
	i := strings.Index(text[cursor:], word)
	if i < 0 {
		return cursor, cursor, cursor
	}
	start = cursor + i
	end = start + len(word)
	return start, end, end
}

func fieldOr(fields []string, i int, fallback string) string {
	if i < len(fields) {
		return fields[i]
	}
	return fallback
}
