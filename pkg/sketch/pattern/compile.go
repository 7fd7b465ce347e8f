package pattern

import (
	"fmt"
	"strings"

	"github.com/cognicore/sketch/pkg/sketch/index"
	"github.com/cognicore/sketch/pkg/sketch/internalerr"
)

// Compile lowers a (bound) pattern to a positional candidate query over the
// sentence index. The result retrieves a superset of the sentences the
// verifier accepts: each element contributes its most selective equality
// constraint, everything else is left to the verifier, and the positional
// window is widened by every distance range and repetition bound.
//
// Selectivity order: lemma equality, then tag, then word, then deprel.
// Globs, negations, disjunctions across fields, and pos_group classes are
// never selective. A sequence in which no element yields a constraint fails
// with ErrPatternUnsupported rather than degenerating into a corpus scan.
func Compile(p *Pattern) (index.SpanQuery, error) {
	queries := make([]index.SpanQuery, 0, len(p.Alternatives))
	for _, seq := range p.Alternatives {
		q, err := compileSequence(seq)
		if err != nil {
			return nil, err
		}
		queries = append(queries, q)
	}
	if len(queries) == 1 {
		return queries[0], nil
	}
	return index.Or{Queries: queries}, nil
}

func compileSequence(seq *Sequence) (index.SpanQuery, error) {
	var clauses []index.Term
	slop := 0
	inOrder := true

	for i, el := range seq.Elements {
		if el.DistMin < 0 || el.DistMax < 0 {
			inOrder = false
		}
		if i > 0 {
			slop += maxAbsDistance(el) - 1
		}

		term, ok := selectiveTerm(el.Pred)
		if !ok {
			// Unconstrained element: its whole occupancy widens the window.
			slop += el.RepMax
			continue
		}
		slop += el.RepMax - 1
		clauses = append(clauses, term)
	}

	if len(clauses) == 0 {
		return nil, fmt.Errorf("%w: no selective constraint in sequence", internalerr.ErrPatternUnsupported)
	}
	if len(clauses) == 1 {
		return clauses[0], nil
	}
	return index.Near{Clauses: clauses, Slop: slop, InOrder: inOrder}, nil
}

func maxAbsDistance(el *Element) int {
	lo, hi := el.DistMin, el.DistMax
	if lo < 0 {
		lo = -lo
	}
	if hi < 0 {
		hi = -hi
	}
	if lo > hi {
		hi = lo
	}
	if hi < 1 {
		hi = 1
	}
	return hi
}

// selectiveTerm extracts the most selective positive equality constraint
// reachable through conjunctions. Constraints under NOT or OR are never
// selective: the verifier owns them.
func selectiveTerm(p Predicate) (index.Term, bool) {
	var best index.Term
	bestRank := 0
	collectSelective(p, &best, &bestRank)
	return best, bestRank > 0
}

func collectSelective(p Predicate, best *index.Term, bestRank *int) {
	switch pp := p.(type) {
	case Cmp:
		if pp.Op != OpEq || len(pp.Values) != 1 {
			return
		}
		v := pp.Values[0]
		if v == "" || v == HeadPlaceholder || isGlob(v) {
			return
		}
		rank, field := 0, index.Field("")
		switch pp.Field {
		case FieldLemma:
			rank, field = 4, index.FieldLemma
		case FieldTag:
			rank, field = 3, index.FieldTag
		case FieldWord:
			rank, field = 2, index.FieldWord
		case FieldDeprel:
			rank, field = 1, index.FieldDeprel
		default:
			return // pos_group classes expand to many tags
		}
		if rank > *bestRank {
			*bestRank = rank
			*best = index.Term{Field: field, Value: index.NormalizeTerm(v)}
		}
	case And:
		for _, sub := range pp.Preds {
			collectSelective(sub, best, bestRank)
		}
	}
}

func isGlob(v string) bool {
	return strings.ContainsAny(v, "*?") || strings.Contains(v, ".*")
}
