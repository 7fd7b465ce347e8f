// Package pattern implements the corpus query language: token predicates,
// sequencing with distance ranges, repetition, captures, and agreement. A
// parsed pattern compiles into a permissive positional candidate query
// (compile.go) and verifies exactly against a token window (verify.go).
package pattern

// Field names a token attribute a predicate may constrain.
type Field string

const (
	FieldLemma    Field = "lemma"
	FieldWord     Field = "word"
	FieldTag      Field = "tag"
	FieldPosGroup Field = "pos_group"
	FieldDeprel   Field = "deprel"
)

func validField(s string) bool {
	switch Field(s) {
	case FieldLemma, FieldWord, FieldTag, FieldPosGroup, FieldDeprel:
		return true
	}
	return false
}

// Op is a comparison operator.
type Op int

const (
	OpEq Op = iota
	OpNeq
)

func (o Op) String() string {
	if o == OpNeq {
		return "!="
	}
	return "="
}

// Predicate is a constraint on one token slot.
type Predicate interface{ pred() }

// Cmp compares a token field against one or more values; with OpEq any value
// may match, with OpNeq none may. Values may be literals or globs (* and ?);
// the regex-compat fragment ".*" is accepted and treated as "*".
type Cmp struct {
	Field  Field
	Op     Op
	Values []string
}

// And is the conjunction of predicates at one token slot.
type And struct{ Preds []Predicate }

// OrPred is the disjunction of predicates at one token slot.
type OrPred struct{ Preds []Predicate }

// Not negates a predicate.
type Not struct{ Pred Predicate }

func (Cmp) pred()    {}
func (And) pred()    {}
func (OrPred) pred() {}
func (Not) pred()    {}

// Element is one slot of a pattern sequence: a predicate, an optional
// capture label, a repetition range, and a distance range relative to the
// previous element. The default repetition is {1,1}; the default distance
// {1,1} (immediately after the previous element). A negative distance bound
// allows or requires the element to precede its predecessor in token order.
type Element struct {
	Pred    Predicate
	Capture int // 0 = none
	RepMin  int
	RepMax  int
	DistMin int
	DistMax int
}

// Agreement requires two captured tokens to agree (or disagree) on a field.
type Agreement struct {
	LabelA int
	FieldA Field
	Op     Op
	LabelB int
	FieldB Field
}

// Sequence is an ordered element list plus its agreement rules.
type Sequence struct {
	Elements   []*Element
	Agreements []Agreement
}

// Pattern is a top-level alternation of sequences.
type Pattern struct {
	Alternatives []*Sequence
}

// HeadPlaceholder substitutes the bound headword lemma in value position.
const HeadPlaceholder = "%h"

// Bind returns a deep copy of p with the headword lemma conjoined onto the
// head element (1-based index into every alternative's element list) and
// every HeadPlaceholder value replaced. A headIdx of 0 skips the conjunction
// and only substitutes placeholders.
func Bind(p *Pattern, head string, headIdx int) *Pattern {
	bound := &Pattern{Alternatives: make([]*Sequence, len(p.Alternatives))}
	for i, seq := range p.Alternatives {
		bs := &Sequence{
			Elements:   make([]*Element, len(seq.Elements)),
			Agreements: append([]Agreement(nil), seq.Agreements...),
		}
		for j, el := range seq.Elements {
			be := *el
			be.Pred = substHead(el.Pred, head)
			if head != "" && headIdx > 0 && j == headIdx-1 {
				be.Pred = And{Preds: []Predicate{
					Cmp{Field: FieldLemma, Op: OpEq, Values: []string{head}},
					be.Pred,
				}}
			}
			bs.Elements[j] = &be
		}
		bound.Alternatives[i] = bs
	}
	return bound
}

func substHead(p Predicate, head string) Predicate {
	switch pp := p.(type) {
	case Cmp:
		out := Cmp{Field: pp.Field, Op: pp.Op, Values: append([]string(nil), pp.Values...)}
		for i, v := range out.Values {
			if v == HeadPlaceholder {
				out.Values[i] = head
			}
		}
		return out
	case And:
		preds := make([]Predicate, len(pp.Preds))
		for i, sub := range pp.Preds {
			preds[i] = substHead(sub, head)
		}
		return And{Preds: preds}
	case OrPred:
		preds := make([]Predicate, len(pp.Preds))
		for i, sub := range pp.Preds {
			preds[i] = substHead(sub, head)
		}
		return OrPred{Preds: preds}
	case Not:
		return Not{Pred: substHead(pp.Pred, head)}
	}
	return p
}
