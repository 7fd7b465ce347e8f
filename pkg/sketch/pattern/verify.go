package pattern

import (
	"path"
	"strings"

	"github.com/cognicore/sketch/pkg/sketch/corpus"
)

// Match is a successful verification: the token position each element
// matched (its first token when repetition accepted a run; -1 when an
// optional element was skipped) plus the capture bindings in textual order.
type Match struct {
	ElementPositions []int
	Captures         map[int]corpus.Token
}

// Verify runs the exact matcher for one sequence over a token window. The
// anchor pins element anchorElem (0-based) to the token whose position field
// equals anchorPos; remaining elements are placed by left-to-right traversal
// with bounded backtracking over each element's distance range and
// repetition counts. Agreement rules are evaluated once a full assignment
// exists; their failure backtracks rather than rejecting outright. A pattern
// reaching beyond the window boundary fails quietly.
func Verify(seq *Sequence, window []corpus.Token, anchorPos, anchorElem int) (Match, bool) {
	if len(seq.Elements) == 0 || anchorElem < 0 || anchorElem >= len(seq.Elements) {
		return Match{}, false
	}
	anchorIdx := -1
	for i, t := range window {
		if t.Position == anchorPos {
			anchorIdx = i
			break
		}
	}
	if anchorIdx < 0 {
		return Match{}, false
	}

	v := &verifier{seq: seq, window: window, anchorIdx: anchorIdx, anchorElem: anchorElem}
	v.starts = make([]int, len(seq.Elements))
	v.counts = make([]int, len(seq.Elements))
	if !v.place(0, -1) {
		return Match{}, false
	}
	return v.result(), true
}

// VerifyAnywhere tries every token of the window as the anchor for the given
// element, returning the first match in textual order.
func VerifyAnywhere(seq *Sequence, window []corpus.Token, anchorElem int) (Match, bool) {
	for _, t := range window {
		if m, ok := Verify(seq, window, t.Position, anchorElem); ok {
			return m, true
		}
	}
	return Match{}, false
}

type verifier struct {
	seq        *Sequence
	window     []corpus.Token
	anchorIdx  int
	anchorElem int

	// starts[i]/counts[i] hold the current assignment: the window index of
	// element i's first token and the accepted repetition count (0 =
	// skipped optional element).
	starts []int
	counts []int
}

// place assigns element elem and recurses. prevLast is the window index of
// the last token accepted by the nearest preceding non-skipped element, or
// -1 when no element has matched yet.
func (v *verifier) place(elem, prevLast int) bool {
	if elem == len(v.seq.Elements) {
		return v.checkAgreements()
	}
	el := v.seq.Elements[elem]

	// Optional element: try skipping it first only when that cannot shadow
	// the anchor pin.
	if el.RepMin == 0 && elem != v.anchorElem {
		v.starts[elem] = -1
		v.counts[elem] = 0
		if v.place(elem+1, prevLast) {
			return true
		}
	}

	for _, start := range v.candidateStarts(elem, el, prevLast) {
		maxRep := el.RepMax
		if el.RepMin > 0 && maxRep < el.RepMin {
			continue
		}
		// Accept runs from the minimum count upward.
		minRep := el.RepMin
		if minRep == 0 {
			minRep = 1
		}
		run := 0
		for run < maxRep && start+run < len(v.window) && v.eval(el.Pred, v.window[start+run]) {
			run++
			if run < minRep {
				continue
			}
			v.starts[elem] = start
			v.counts[elem] = run
			if v.place(elem+1, start+run-1) {
				return true
			}
		}
	}
	return false
}

// candidateStarts enumerates window indices where element elem may begin.
func (v *verifier) candidateStarts(elem int, el *Element, prevLast int) []int {
	if elem == v.anchorElem {
		if prevLast >= 0 {
			d := v.anchorIdx - prevLast
			if d == 0 || d < el.DistMin || d > el.DistMax {
				return nil
			}
		}
		return []int{v.anchorIdx}
	}
	if prevLast < 0 {
		// No predecessor matched yet: the element anchors freely.
		starts := make([]int, 0, len(v.window))
		for i := range v.window {
			starts = append(starts, i)
		}
		return starts
	}
	var starts []int
	for d := el.DistMin; d <= el.DistMax; d++ {
		if d == 0 {
			continue
		}
		i := prevLast + d
		if i >= 0 && i < len(v.window) {
			starts = append(starts, i)
		}
	}
	return starts
}

func (v *verifier) checkAgreements() bool {
	if len(v.seq.Agreements) == 0 {
		return true
	}
	captures := v.captureTokens()
	for _, a := range v.seq.Agreements {
		ta, oka := captures[a.LabelA]
		tb, okb := captures[a.LabelB]
		if !oka || !okb {
			return false
		}
		va := fieldValue(a.FieldA, ta)
		vb := fieldValue(a.FieldB, tb)
		equal := strings.EqualFold(va, vb)
		if (a.Op == OpEq) != equal {
			return false
		}
	}
	return true
}

func (v *verifier) captureTokens() map[int]corpus.Token {
	captures := make(map[int]corpus.Token)
	for i, el := range v.seq.Elements {
		if el.Capture == 0 || v.counts[i] == 0 || v.starts[i] < 0 {
			continue
		}
		if _, taken := captures[el.Capture]; !taken {
			captures[el.Capture] = v.window[v.starts[i]]
		}
	}
	return captures
}

func (v *verifier) result() Match {
	m := Match{
		ElementPositions: make([]int, len(v.seq.Elements)),
		Captures:         v.captureTokens(),
	}
	for i := range v.seq.Elements {
		if v.counts[i] == 0 || v.starts[i] < 0 {
			m.ElementPositions[i] = -1
			continue
		}
		m.ElementPositions[i] = v.window[v.starts[i]].Position
	}
	return m
}

func (v *verifier) eval(p Predicate, t corpus.Token) bool {
	switch pp := p.(type) {
	case Cmp:
		return evalCmp(pp, t)
	case And:
		for _, sub := range pp.Preds {
			if !v.eval(sub, t) {
				return false
			}
		}
		return true
	case OrPred:
		for _, sub := range pp.Preds {
			if v.eval(sub, t) {
				return true
			}
		}
		return false
	case Not:
		return !v.eval(pp.Pred, t)
	}
	return false
}

func evalCmp(c Cmp, t corpus.Token) bool {
	if c.Field == FieldPosGroup {
		matched := false
		for _, v := range c.Values {
			if MatchPOSGroup(v, t.Tag) {
				matched = true
				break
			}
		}
		if c.Op == OpNeq {
			return !matched
		}
		return matched
	}

	got := strings.ToLower(fieldValue(c.Field, t))
	matched := false
	for _, v := range c.Values {
		if matchValue(strings.ToLower(v), got) {
			matched = true
			break
		}
	}
	if c.Op == OpNeq {
		return !matched
	}
	return matched
}

func fieldValue(f Field, t corpus.Token) string {
	switch f {
	case FieldLemma:
		return t.Lemma
	case FieldWord:
		return t.Word
	case FieldTag, FieldPosGroup:
		return t.Tag
	case FieldDeprel:
		return t.Deprel
	}
	return ""
}

// matchValue compares a (lowercased) pattern value against a token value.
// Plain literals compare directly; values carrying * or ? match as globs,
// with the regex-compat ".*" fragment rewritten first.
func matchValue(pat, s string) bool {
	pat = strings.ReplaceAll(pat, ".*", "*")
	if !strings.ContainsAny(pat, "*?") {
		return pat == s
	}
	ok, err := path.Match(pat, s)
	return err == nil && ok
}
