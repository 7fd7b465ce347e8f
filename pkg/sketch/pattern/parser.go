package pattern

import (
	"fmt"
	"strconv"

	"github.com/cognicore/sketch/pkg/sketch/internalerr"
)

// Parse turns pattern source into an AST. The parser is total for
// well-formed input and never consults the index; syntax failures carry the
// byte offset of the offending token.
func Parse(input string) (*Pattern, error) {
	toks := newLexer(input).lexAll()
	p := &parser{toks: toks, src: input}
	pat, err := p.parsePattern()
	if err != nil {
		return nil, err
	}
	if !p.at(tokEOF) {
		return nil, p.errf("unexpected %q", p.cur().lit)
	}
	return pat, nil
}

type parser struct {
	toks []lexToken
	src  string
	i    int
}

func (p *parser) cur() lexToken { return p.toks[p.i] }

func (p *parser) peek() lexToken {
	if p.i+1 < len(p.toks) {
		return p.toks[p.i+1]
	}
	return p.toks[len(p.toks)-1]
}
func (p *parser) peek2() lexToken {
	if p.i+2 < len(p.toks) {
		return p.toks[p.i+2]
	}
	return p.toks[len(p.toks)-1]
}
func (p *parser) at(t tokenType) bool { return p.cur().typ == t }
func (p *parser) advance() lexToken {
	t := p.cur()
	if p.i < len(p.toks)-1 {
		p.i++
	}
	return t
}

func (p *parser) expect(t tokenType, what string) (lexToken, error) {
	if !p.at(t) {
		return lexToken{}, p.errf("expected %s, found %q", what, p.cur().lit)
	}
	return p.advance(), nil
}

func (p *parser) errf(format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	return fmt.Errorf("%w: %s at offset %d", internalerr.ErrPatternSyntax, msg, p.cur().pos)
}

func (p *parser) parsePattern() (*Pattern, error) {
	pat := &Pattern{}
	for {
		seq, err := p.parseSequence()
		if err != nil {
			return nil, err
		}
		pat.Alternatives = append(pat.Alternatives, seq)
		if !p.at(tokPipe) {
			return pat, nil
		}
		p.advance()
	}
}

func (p *parser) parseSequence() (*Sequence, error) {
	seq := &Sequence{}
	for p.at(tokLBracket) {
		el, err := p.parseElement()
		if err != nil {
			return nil, err
		}
		seq.Elements = append(seq.Elements, el)
	}
	if len(seq.Elements) == 0 {
		return nil, p.errf("expected '[' to open a pattern element")
	}
	if p.at(tokDColon) {
		p.advance()
		for {
			agr, err := p.parseAgreement()
			if err != nil {
				return nil, err
			}
			seq.Agreements = append(seq.Agreements, agr)
			if !p.at(tokComma) {
				break
			}
			p.advance()
		}
	}
	return seq, nil
}

func (p *parser) parseElement() (*Element, error) {
	if _, err := p.expect(tokLBracket, "'['"); err != nil {
		return nil, err
	}
	pred, err := p.parseOrExpr()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(tokRBracket, "']'"); err != nil {
		return nil, err
	}

	el := &Element{Pred: pred, RepMin: 1, RepMax: 1, DistMin: 1, DistMax: 1}
	for {
		switch {
		case p.at(tokColon):
			p.advance()
			n, err := p.parseInt("capture label")
			if err != nil {
				return nil, err
			}
			if n <= 0 {
				return nil, p.errf("capture label must be positive, got %d", n)
			}
			el.Capture = n
		case p.at(tokLBrace):
			p.advance()
			lo, hi, err := p.parseRangeTail("repetition")
			if err != nil {
				return nil, err
			}
			if lo < 0 || hi < lo || hi < 1 {
				return nil, p.errf("invalid repetition range {%d,%d}", lo, hi)
			}
			el.RepMin, el.RepMax = lo, hi
		case p.at(tokAt):
			p.advance()
			if _, err := p.expect(tokLBrace, "'{' after '@'"); err != nil {
				return nil, err
			}
			lo, hi, err := p.parseRangeTail("distance")
			if err != nil {
				return nil, err
			}
			if hi < lo {
				return nil, p.errf("invalid distance range {%d,%d}", lo, hi)
			}
			el.DistMin, el.DistMax = lo, hi
		default:
			return el, nil
		}
	}
}

// parseRangeTail parses "lo,hi}" after the opening brace was consumed.
func (p *parser) parseRangeTail(what string) (int, int, error) {
	lo, err := p.parseInt(what + " lower bound")
	if err != nil {
		return 0, 0, err
	}
	if _, err := p.expect(tokComma, "','"); err != nil {
		return 0, 0, err
	}
	hi, err := p.parseInt(what + " upper bound")
	if err != nil {
		return 0, 0, err
	}
	if _, err := p.expect(tokRBrace, "'}'"); err != nil {
		return 0, 0, err
	}
	return lo, hi, nil
}

func (p *parser) parseInt(what string) (int, error) {
	tok, err := p.expect(tokWord, what)
	if err != nil {
		return 0, err
	}
	n, convErr := strconv.Atoi(tok.lit)
	if convErr != nil {
		return 0, fmt.Errorf("%w: %s %q is not an integer at offset %d",
			internalerr.ErrPatternSyntax, what, tok.lit, tok.pos)
	}
	return n, nil
}

// parseOrExpr parses predicate disjunction inside one element. A '|' is a
// predicate OR only when a field comparison follows; otherwise it belongs to
// value alternation and is consumed by parseCmp.
func (p *parser) parseOrExpr() (Predicate, error) {
	left, err := p.parseAndExpr()
	if err != nil {
		return nil, err
	}
	preds := []Predicate{left}
	for p.at(tokPipe) && p.pipeStartsPredicate() {
		p.advance()
		right, err := p.parseAndExpr()
		if err != nil {
			return nil, err
		}
		preds = append(preds, right)
	}
	if len(preds) == 1 {
		return left, nil
	}
	return OrPred{Preds: preds}, nil
}

func (p *parser) parseAndExpr() (Predicate, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	preds := []Predicate{left}
	for p.at(tokAmp) {
		p.advance()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		preds = append(preds, right)
	}
	if len(preds) == 1 {
		return left, nil
	}
	return And{Preds: preds}, nil
}

func (p *parser) parseUnary() (Predicate, error) {
	switch {
	case p.at(tokBang):
		p.advance()
		sub, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return Not{Pred: sub}, nil
	case p.at(tokLParen):
		p.advance()
		sub, err := p.parseOrExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokRParen, "')'"); err != nil {
			return nil, err
		}
		return sub, nil
	default:
		return p.parseCmp()
	}
}

func (p *parser) parseCmp() (Predicate, error) {
	fieldTok, err := p.expect(tokWord, "field name")
	if err != nil {
		return nil, err
	}
	if !validField(fieldTok.lit) {
		return nil, fmt.Errorf("%w: unknown field %q at offset %d",
			internalerr.ErrPatternSyntax, fieldTok.lit, fieldTok.pos)
	}

	var op Op
	switch {
	case p.at(tokEq):
		op = OpEq
	case p.at(tokNeq):
		op = OpNeq
	default:
		return nil, p.errf("expected '=' or '!=' after field %q", fieldTok.lit)
	}
	p.advance()

	valTok, err := p.expect(tokWord, "value")
	if err != nil {
		return nil, err
	}
	values := []string{valTok.lit}
	for p.at(tokPipe) && !p.pipeStartsPredicate() {
		p.advance()
		v, err := p.expect(tokWord, "value")
		if err != nil {
			return nil, err
		}
		values = append(values, v.lit)
	}
	return Cmp{Field: Field(fieldTok.lit), Op: op, Values: values}, nil
}

// pipeStartsPredicate distinguishes "tag=a|b" (value alternation) from
// "tag=a | lemma=b" (predicate OR) by peeking past the pipe: a field name
// followed by a comparison operator opens a new predicate, as do '!' and '('.
func (p *parser) pipeStartsPredicate() bool {
	next := p.peek()
	switch next.typ {
	case tokBang, tokLParen:
		return true
	case tokWord:
		if !validField(next.lit) {
			return false
		}
		after := p.peek2()
		return after.typ == tokEq || after.typ == tokNeq
	}
	return false
}

func (p *parser) parseAgreement() (Agreement, error) {
	a, err := p.parseLabelField("agreement left side")
	if err != nil {
		return Agreement{}, err
	}
	var op Op
	switch {
	case p.at(tokEq):
		op = OpEq
	case p.at(tokNeq):
		op = OpNeq
	default:
		return Agreement{}, p.errf("expected '=' or '!=' in agreement")
	}
	p.advance()
	b, err := p.parseLabelField("agreement right side")
	if err != nil {
		return Agreement{}, err
	}
	return Agreement{
		LabelA: a.label, FieldA: a.field,
		Op:     op,
		LabelB: b.label, FieldB: b.field,
	}, nil
}

type labelField struct {
	label int
	field Field
}

func (p *parser) parseLabelField(what string) (labelField, error) {
	tok, err := p.expect(tokWord, what)
	if err != nil {
		return labelField{}, err
	}
	labelStr, fieldStr, ok := splitLabelField(tok.lit)
	if !ok {
		return labelField{}, fmt.Errorf("%w: %s %q is not label.field shaped at offset %d",
			internalerr.ErrPatternSyntax, what, tok.lit, tok.pos)
	}
	label, convErr := strconv.Atoi(labelStr)
	if convErr != nil || label <= 0 {
		return labelField{}, fmt.Errorf("%w: agreement label %q is not a positive integer at offset %d",
			internalerr.ErrPatternSyntax, labelStr, tok.pos)
	}
	if !validField(fieldStr) {
		return labelField{}, fmt.Errorf("%w: unknown field %q at offset %d",
			internalerr.ErrPatternSyntax, fieldStr, tok.pos)
	}
	return labelField{label: label, field: Field(fieldStr)}, nil
}
