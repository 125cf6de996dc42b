package query

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/gyaneshwarpardhi/mqworker/internal/analysis"
)

// -----------------------------------------------------------------------
// Tokenizer
// -----------------------------------------------------------------------

type tokenKind int

const (
	tokWord   tokenKind = iota // path, bare value or keyword
	tokString                  // "…"
	tokColon
	tokLParen
	tokRParen
	tokLBracket
	tokRBracket
	tokEOF
)

type token struct {
	kind tokenKind
	val  string
	pos  int
}

func isWordRune(r rune) bool {
	if unicode.IsSpace(r) {
		return false
	}
	switch r {
	case '(', ')', '[', ']', ':', '"':
		return false
	}
	return true
}

func tokenize(expr string) ([]token, error) {
	var tokens []token
	rs := []rune(expr)
	i := 0
	for i < len(rs) {
		ch := rs[i]
		if unicode.IsSpace(ch) {
			i++
			continue
		}
		switch ch {
		case '(':
			tokens = append(tokens, token{tokLParen, "(", i})
			i++
			continue
		case ')':
			tokens = append(tokens, token{tokRParen, ")", i})
			i++
			continue
		case '[':
			tokens = append(tokens, token{tokLBracket, "[", i})
			i++
			continue
		case ']':
			tokens = append(tokens, token{tokRBracket, "]", i})
			i++
			continue
		case ':':
			tokens = append(tokens, token{tokColon, ":", i})
			i++
			continue
		case '"':
			var sb strings.Builder
			j := i + 1
			for j < len(rs) && rs[j] != '"' {
				if rs[j] == '\\' && j+1 < len(rs) {
					j++ // keep escaped char
				}
				sb.WriteRune(rs[j])
				j++
			}
			if j >= len(rs) {
				return nil, fmt.Errorf("unterminated string starting at position %d", i)
			}
			tokens = append(tokens, token{tokString, sb.String(), i})
			i = j + 1
			continue
		}
		j := i
		for j < len(rs) && isWordRune(rs[j]) {
			j++
		}
		tokens = append(tokens, token{tokWord, string(rs[i:j]), i})
		i = j
	}
	tokens = append(tokens, token{tokEOF, "", len(rs)})
	return tokens, nil
}

// -----------------------------------------------------------------------
// Recursive-descent parser
// -----------------------------------------------------------------------

type parser struct {
	tokens []token
	pos    int
}

func (p *parser) peek() token { return p.tokens[p.pos] }

func (p *parser) consume() token {
	t := p.tokens[p.pos]
	p.pos++
	return t
}

func (p *parser) keyword(kw string) bool {
	t := p.peek()
	return t.kind == tokWord && t.val == kw
}

func (p *parser) expect(kind tokenKind, what string) (token, error) {
	t := p.peek()
	if t.kind != kind {
		return t, fmt.Errorf("expected %s at position %d, got %q", what, t.pos, t.val)
	}
	return p.consume(), nil
}

// Parse reads a criteria expression such as
//
//	details.program:snmptt AND NOT summary:"test message" AND severity:[3 TO *]
//
// Juxtaposed clauses are joined with AND. Keywords are upper case. A bare value
// that analyzes to exactly itself becomes a TermMatch, any other bare or quoted
// value a PhraseMatch. Failures are *PredicateError.
func Parse(expr string) (Predicate, error) {
	pred, err := parse(expr)
	if err != nil {
		var pe *PredicateError
		if errors.As(err, &pe) {
			return nil, err
		}
		return nil, &PredicateError{Op: "parse", Reason: err.Error()}
	}
	return pred, nil
}

func parse(expr string) (Predicate, error) {
	tokens, err := tokenize(expr)
	if err != nil {
		return nil, err
	}
	p := &parser{tokens: tokens}
	node, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if t := p.peek(); t.kind != tokEOF {
		return nil, fmt.Errorf("unexpected %q at position %d", t.val, t.pos)
	}
	return node, nil
}

// or_expr = and_expr { "OR" and_expr }
func (p *parser) parseOr() (Predicate, error) {
	first, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	children := []Predicate{first}
	for p.keyword("OR") {
		p.consume()
		next, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		children = append(children, next)
	}
	if len(children) == 1 {
		return first, nil
	}
	return NewOr(children...)
}

// and_expr = not_expr { ["AND"] not_expr }
func (p *parser) parseAnd() (Predicate, error) {
	first, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	children := []Predicate{first}
	for {
		if p.keyword("AND") {
			p.consume()
		} else if !p.startsClause() {
			break
		}
		next, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		children = append(children, next)
	}
	if len(children) == 1 {
		return first, nil
	}
	return NewAnd(children...)
}

func (p *parser) startsClause() bool {
	t := p.peek()
	switch t.kind {
	case tokLParen:
		return true
	case tokWord:
		return t.val != "OR"
	}
	return false
}

// not_expr = "NOT" not_expr | "(" or_expr ")" | field_expr
func (p *parser) parseNot() (Predicate, error) {
	if p.keyword("NOT") {
		p.consume()
		inner, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return NewNot(inner)
	}
	if p.peek().kind == tokLParen {
		p.consume()
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokRParen, ")"); err != nil {
			return nil, err
		}
		return inner, nil
	}
	return p.parseField()
}

// field_expr = path ":" ( word | string | "[" bound "TO" bound "]" )
func (p *parser) parseField() (Predicate, error) {
	path, err := p.expect(tokWord, "field path")
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(tokColon, ":"); err != nil {
		return nil, err
	}
	t := p.peek()
	switch t.kind {
	case tokWord:
		p.consume()
		return valuePredicate(path.val, t.val)
	case tokString:
		p.consume()
		return NewPhraseMatch(path.val, t.val)
	case tokLBracket:
		p.consume()
		return p.parseRange(path.val)
	}
	return nil, fmt.Errorf("expected value for %q at position %d, got %q", path.val, t.pos, t.val)
}

func valuePredicate(path, value string) (Predicate, error) {
	toks := analysis.Tokenize(value)
	if len(toks) == 1 && toks[0] == analysis.Fold(value) {
		return NewTermMatch(path, value)
	}
	return NewPhraseMatch(path, value)
}

func (p *parser) parseRange(path string) (Predicate, error) {
	low, err := p.parseBound()
	if err != nil {
		return nil, err
	}
	if !p.keyword("TO") {
		t := p.peek()
		return nil, fmt.Errorf("expected TO at position %d, got %q", t.pos, t.val)
	}
	p.consume()
	high, err := p.parseBound()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(tokRBracket, "]"); err != nil {
		return nil, err
	}
	return NewRangeMatch(path, low, high)
}

// bound = number | "*" | string
func (p *parser) parseBound() (interface{}, error) {
	t := p.peek()
	switch t.kind {
	case tokString:
		p.consume()
		return t.val, nil
	case tokWord:
		p.consume()
		if t.val == "*" {
			return nil, nil
		}
		f, err := strconv.ParseFloat(t.val, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid range bound %q at position %d", t.val, t.pos)
		}
		return f, nil
	}
	return nil, fmt.Errorf("expected range bound at position %d, got %q", t.pos, t.val)
}
