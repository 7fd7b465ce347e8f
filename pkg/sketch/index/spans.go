package index

import (
	"context"
	"fmt"
	"sort"

	"github.com/cognicore/sketch/pkg/sketch/internalerr"
)

// SpanQuery is a positional query over the index. The candidate compiler
// emits these; execution returns one span per matching sentence.
type SpanQuery interface {
	spanQuery()
}

// Term matches every sentence containing a term in a field.
type Term struct {
	Field Field
	Value string
}

// Near matches sentences containing all clause terms within a positional
// window. Slop is the number of extra positions allowed beyond a contiguous
// run; InOrder additionally requires clause positions to ascend in clause
// order.
type Near struct {
	Clauses []Term
	Slop    int
	InOrder bool
}

// Or matches the union of its sub-queries.
type Or struct {
	Queries []SpanQuery
}

func (Term) spanQuery() {}
func (Near) spanQuery() {}
func (Or) spanQuery()   {}

// Span is one match: the sentence plus the token-position extent of the
// matched window.
type Span struct {
	SentenceID uint32
	Start      uint32
	End        uint32
}

// Search executes a span query, returning at most one span per sentence
// (the earliest match), sorted by sentence id.
func Search(ctx context.Context, ix Index, q SpanQuery) ([]Span, error) {
	switch qq := q.(type) {
	case Term:
		return searchTerm(ctx, ix, qq)
	case Near:
		return searchNear(ctx, ix, qq)
	case Or:
		return searchOr(ctx, ix, qq)
	default:
		return nil, fmt.Errorf("%w: unknown span query %T", internalerr.ErrInvariant, q)
	}
}

func searchTerm(ctx context.Context, ix Index, q Term) ([]Span, error) {
	postings, err := ix.Postings(ctx, q.Field, NormalizeTerm(q.Value))
	if err != nil {
		return nil, err
	}
	spans := make([]Span, 0, len(postings))
	for _, p := range postings {
		if len(p.Positions) == 0 {
			continue
		}
		spans = append(spans, Span{SentenceID: p.SentenceID, Start: p.Positions[0], End: p.Positions[0]})
	}
	return spans, nil
}

func searchNear(ctx context.Context, ix Index, q Near) ([]Span, error) {
	if len(q.Clauses) == 0 {
		return nil, fmt.Errorf("%w: empty near query", internalerr.ErrInvariant)
	}
	if len(q.Clauses) == 1 {
		return searchTerm(ctx, ix, q.Clauses[0])
	}

	lists := make([][]Posting, len(q.Clauses))
	for i, c := range q.Clauses {
		p, err := ix.Postings(ctx, c.Field, NormalizeTerm(c.Value))
		if err != nil {
			return nil, err
		}
		if len(p) == 0 {
			return nil, nil
		}
		lists[i] = p
	}

	var spans []Span
	cursors := make([]int, len(lists))
	for {
		// Align all cursors on a common sentence id.
		maxID, done := alignCursors(lists, cursors)
		if done {
			break
		}
		positions := make([][]uint32, len(lists))
		aligned := true
		for i := range lists {
			p := lists[i][cursors[i]]
			if p.SentenceID != maxID {
				aligned = false
				break
			}
			positions[i] = p.Positions
		}
		if aligned {
			if span, ok := matchWindow(positions, q.Slop, q.InOrder); ok {
				span.SentenceID = maxID
				spans = append(spans, span)
			}
			for i := range cursors {
				cursors[i]++
			}
		}
	}
	return spans, nil
}

// alignCursors advances every cursor to the current maximum sentence id.
// Returns true when any list is exhausted.
func alignCursors(lists [][]Posting, cursors []int) (uint32, bool) {
	for {
		var maxID uint32
		for i := range lists {
			if cursors[i] >= len(lists[i]) {
				return 0, true
			}
			if id := lists[i][cursors[i]].SentenceID; id > maxID {
				maxID = id
			}
		}
		moved := false
		for i := range lists {
			for cursors[i] < len(lists[i]) && lists[i][cursors[i]].SentenceID < maxID {
				cursors[i]++
				moved = true
			}
			if cursors[i] >= len(lists[i]) {
				return 0, true
			}
		}
		if !moved {
			return maxID, false
		}
	}
}

// matchWindow searches for an assignment of one position per clause with
// distinct positions, window width within slop, and (optionally) ascending
// clause order. Returns the earliest matching extent.
func matchWindow(positions [][]uint32, slop int, inOrder bool) (Span, bool) {
	k := len(positions)
	chosen := make([]uint32, 0, k)

	var best Span
	found := false

	var rec func(clause int)
	rec = func(clause int) {
		if found {
			return
		}
		if clause == k {
			lo, hi := chosen[0], chosen[0]
			for _, p := range chosen[1:] {
				if p < lo {
					lo = p
				}
				if p > hi {
					hi = p
				}
			}
			if int(hi-lo)+1-k <= slop {
				best = Span{Start: lo, End: hi}
				found = true
			}
			return
		}
		for _, p := range positions[clause] {
			if inOrder && clause > 0 && p <= chosen[clause-1] {
				continue
			}
			if !inOrder && contains(chosen, p) {
				continue
			}
			chosen = append(chosen, p)
			rec(clause + 1)
			chosen = chosen[:len(chosen)-1]
			if found {
				return
			}
		}
	}
	rec(0)
	return best, found
}

func contains(ps []uint32, p uint32) bool {
	for _, q := range ps {
		if q == p {
			return true
		}
	}
	return false
}

func searchOr(ctx context.Context, ix Index, q Or) ([]Span, error) {
	byID := make(map[uint32]Span)
	for _, sub := range q.Queries {
		spans, err := Search(ctx, ix, sub)
		if err != nil {
			return nil, err
		}
		for _, s := range spans {
			if prev, ok := byID[s.SentenceID]; !ok || s.Start < prev.Start {
				byID[s.SentenceID] = s
			}
		}
	}
	out := make([]Span, 0, len(byID))
	for _, s := range byID {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SentenceID < out[j].SentenceID })
	return out, nil
}
