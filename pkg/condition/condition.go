// Package condition compiles the boolean expressions a conditional rule may
// use in place of a single whenField/whenValue pair:
//
//	documentType == "panNumber"
//	waterSource in ("canal", "borewell") && !irrigated
//	memberCount >= 500 || registrationType == companiesAct
//
// Identifiers name wizard fields. A bare identifier on the right of a
// comparison is read as a string, so `gender == female` works unquoted.
// Type mistakes are reported by Compile; Eval never fails.
package condition

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/goliatone/go-formwizard/pkg/model"
)

// ErrSyntax wraps every compile failure.
var ErrSyntax = errors.New("condition: syntax error")

// Expr is a compiled condition.
type Expr struct {
	src    string
	root   node
	fields []string
}

// Compile parses src.
func Compile(src string) (*Expr, error) {
	trimmed := strings.TrimSpace(src)
	if trimmed == "" {
		return nil, fmt.Errorf("%w: empty expression", ErrSyntax)
	}
	tokens, err := tokenize(trimmed)
	if err != nil {
		return nil, err
	}
	p := &parser{tokens: tokens, fields: make(map[string]bool)}
	root, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.pos < len(p.tokens) {
		return nil, syntaxf("unexpected %q", p.tokens[p.pos].raw)
	}

	fields := make([]string, 0, len(p.fields))
	for name := range p.fields {
		fields = append(fields, name)
	}
	sort.Strings(fields)
	return &Expr{src: trimmed, root: root, fields: fields}, nil
}

// MustCompile is Compile for expressions known to be valid.
func MustCompile(src string) *Expr {
	e, err := Compile(src)
	if err != nil {
		panic(err)
	}
	return e
}

// String returns the trimmed source.
func (e *Expr) String() string {
	return e.src
}

// Fields lists the field names the expression reads, sorted.
func (e *Expr) Fields() []string {
	return append([]string(nil), e.fields...)
}

// Eval reports whether values satisfy the expression. Missing fields read as
// empty.
func (e *Expr) Eval(values map[string]any) bool {
	if e == nil || e.root == nil {
		return false
	}
	return e.root.eval(values)
}

func syntaxf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrSyntax, fmt.Sprintf(format, args...))
}

type tokenKind int

const (
	tokIdent tokenKind = iota
	tokString
	tokNumber
	tokBool
	tokNull
	tokEq
	tokNeq
	tokLt
	tokLte
	tokGt
	tokGte
	tokIn
	tokAnd
	tokOr
	tokNot
	tokLParen
	tokRParen
	tokComma
)

type token struct {
	kind tokenKind
	raw  string
}

func isDelimiter(c byte) bool {
	switch c {
	case ' ', '\t', '\n', '\r', '(', ')', '!', '=', '&', '|', '<', '>', ',', '"', '\'':
		return true
	}
	return false
}

func tokenize(input string) ([]token, error) {
	var tokens []token
	for i := 0; i < len(input); {
		c := input[i]
		two := ""
		if i+1 < len(input) {
			two = input[i : i+2]
		}
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case c == '(':
			tokens = append(tokens, token{tokLParen, "("})
			i++
		case c == ')':
			tokens = append(tokens, token{tokRParen, ")"})
			i++
		case c == ',':
			tokens = append(tokens, token{tokComma, ","})
			i++
		case two == "==":
			tokens = append(tokens, token{tokEq, two})
			i += 2
		case two == "!=":
			tokens = append(tokens, token{tokNeq, two})
			i += 2
		case two == "<=":
			tokens = append(tokens, token{tokLte, two})
			i += 2
		case two == ">=":
			tokens = append(tokens, token{tokGte, two})
			i += 2
		case two == "&&":
			tokens = append(tokens, token{tokAnd, two})
			i += 2
		case two == "||":
			tokens = append(tokens, token{tokOr, two})
			i += 2
		case c == '<':
			tokens = append(tokens, token{tokLt, "<"})
			i++
		case c == '>':
			tokens = append(tokens, token{tokGt, ">"})
			i++
		case c == '!':
			tokens = append(tokens, token{tokNot, "!"})
			i++
		case c == '=' || c == '&' || c == '|':
			return nil, syntaxf("unexpected %q at %d; use ==, && or ||", string(c), i)
		case c == '"' || c == '\'':
			value, next, err := readString(input, i)
			if err != nil {
				return nil, err
			}
			tokens = append(tokens, token{tokString, value})
			i = next
		default:
			start := i
			for i < len(input) && !isDelimiter(input[i]) {
				i++
			}
			tokens = append(tokens, word(input[start:i]))
		}
	}
	return tokens, nil
}

// readString decodes the quoted literal starting at input[start].
func readString(input string, start int) (string, int, error) {
	quote := input[start]
	escaped := false
	for i := start + 1; i < len(input); i++ {
		switch {
		case escaped:
			escaped = false
		case input[i] == '\\':
			escaped = true
		case input[i] == quote:
			body := input[start+1 : i]
			if quote == '\'' {
				body = strings.ReplaceAll(body, `\'`, `'`)
				body = strings.ReplaceAll(body, `"`, `\"`)
			}
			value, err := strconv.Unquote(`"` + body + `"`)
			if err != nil {
				return "", 0, syntaxf("invalid string literal %s", input[start:i+1])
			}
			return value, i + 1, nil
		}
	}
	return "", 0, syntaxf("unterminated string literal")
}

func word(raw string) token {
	switch strings.ToLower(raw) {
	case "true", "false":
		return token{tokBool, strings.ToLower(raw)}
	case "null", "nil":
		return token{tokNull, "null"}
	case "in":
		return token{tokIn, "in"}
	}
	if _, err := strconv.ParseFloat(raw, 64); err == nil {
		return token{tokNumber, raw}
	}
	return token{tokIdent, raw}
}

type parser struct {
	tokens []token
	pos    int
	fields map[string]bool
}

func (p *parser) match(kind tokenKind) bool {
	if p.pos < len(p.tokens) && p.tokens[p.pos].kind == kind {
		p.pos++
		return true
	}
	return false
}

func (p *parser) peek() (token, bool) {
	if p.pos >= len(p.tokens) {
		return token{}, false
	}
	return p.tokens[p.pos], true
}

func (p *parser) parseOr() (node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.match(tokOr) {
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = orNode{left, right}
	}
	return left, nil
}

func (p *parser) parseAnd() (node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.match(tokAnd) {
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = andNode{left, right}
	}
	return left, nil
}

func (p *parser) parseUnary() (node, error) {
	if p.match(tokNot) {
		inner, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return notNode{inner}, nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (node, error) {
	if p.match(tokLParen) {
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if !p.match(tokRParen) {
			return nil, syntaxf("missing closing ')'")
		}
		return inner, nil
	}

	tok, ok := p.peek()
	if !ok {
		return nil, syntaxf("expression ends early")
	}
	if tok.kind != tokIdent {
		return nil, syntaxf("expected a field name, got %q", tok.raw)
	}
	p.pos++
	field := tok.raw
	p.fields[field] = true

	op, ok := p.peek()
	if !ok {
		return truthyNode{field}, nil
	}
	switch op.kind {
	case tokEq, tokNeq, tokLt, tokLte, tokGt, tokGte:
		p.pos++
		lit, err := p.literal()
		if err != nil {
			return nil, err
		}
		return newCompare(field, op, lit)
	case tokIn:
		p.pos++
		return p.parseList(field)
	}
	return truthyNode{field}, nil
}

func (p *parser) parseList(field string) (node, error) {
	if !p.match(tokLParen) {
		return nil, syntaxf("expected '(' after %s in", field)
	}
	var values []string
	for {
		lit, err := p.literal()
		if err != nil {
			return nil, err
		}
		if lit.kind == tokNull {
			return nil, syntaxf("null is not allowed in a list")
		}
		values = append(values, lit.raw)
		if p.match(tokRParen) {
			return inNode{field: field, values: values}, nil
		}
		if !p.match(tokComma) {
			return nil, syntaxf("expected ',' or ')' in list for %s", field)
		}
	}
}

func (p *parser) literal() (token, error) {
	tok, ok := p.peek()
	if !ok {
		return token{}, syntaxf("missing value")
	}
	switch tok.kind {
	case tokString, tokNumber, tokBool, tokNull:
		p.pos++
		return tok, nil
	case tokIdent:
		p.pos++
		return token{tokString, tok.raw}, nil
	}
	return token{}, syntaxf("expected a value, got %q", tok.raw)
}

type node interface {
	eval(values map[string]any) bool
}

type orNode struct{ left, right node }

func (n orNode) eval(values map[string]any) bool {
	return n.left.eval(values) || n.right.eval(values)
}

type andNode struct{ left, right node }

func (n andNode) eval(values map[string]any) bool {
	return n.left.eval(values) && n.right.eval(values)
}

type notNode struct{ inner node }

func (n notNode) eval(values map[string]any) bool {
	return !n.inner.eval(values)
}

type truthyNode struct{ field string }

func (n truthyNode) eval(values map[string]any) bool {
	return truthy(lookup(values, n.field))
}

type inNode struct {
	field  string
	values []string
}

func (n inNode) eval(values map[string]any) bool {
	value := lookup(values, n.field)
	return !model.IsEmpty(value) && model.Matches(value, n.values)
}

type compareNode struct {
	field  string
	op     tokenKind
	kind   tokenKind
	text   string
	number float64
	flag   bool
}

func newCompare(field string, op, lit token) (node, error) {
	n := compareNode{field: field, op: op.kind, kind: lit.kind, text: lit.raw}
	ordering := op.kind != tokEq && op.kind != tokNeq
	switch lit.kind {
	case tokNumber:
		n.number, _ = strconv.ParseFloat(lit.raw, 64)
	case tokBool:
		n.flag = lit.raw == "true"
	}
	if ordering && lit.kind != tokNumber {
		return nil, syntaxf("%s %s needs a number, got %q", field, op.raw, lit.raw)
	}
	return n, nil
}

func (n compareNode) eval(values map[string]any) bool {
	value := lookup(values, n.field)
	var equal bool
	switch n.kind {
	case tokNull:
		equal = model.IsEmpty(value)
	case tokBool:
		equal = truthy(value) == n.flag
	case tokNumber:
		got, ok := number(value)
		if !ok {
			return n.op == tokNeq
		}
		switch n.op {
		case tokLt:
			return got < n.number
		case tokLte:
			return got <= n.number
		case tokGt:
			return got > n.number
		case tokGte:
			return got >= n.number
		}
		equal = got == n.number
	default:
		equal = model.Stringify(value) == n.text
	}
	if n.op == tokNeq {
		return !equal
	}
	return equal
}

// lookup reads key, falling back to a dotted path through nested maps.
func lookup(values map[string]any, key string) any {
	if v, ok := values[key]; ok {
		return v
	}
	var current any = values
	for _, part := range strings.Split(key, ".") {
		m, ok := current.(map[string]any)
		if !ok {
			return nil
		}
		if current, ok = m[part]; !ok {
			return nil
		}
	}
	return current
}

func truthy(value any) bool {
	switch v := value.(type) {
	case bool:
		return v
	case string:
		s := strings.TrimSpace(v)
		if parsed, err := strconv.ParseBool(s); err == nil {
			return parsed
		}
		return s != ""
	}
	if f, ok := number(value); ok {
		return f != 0
	}
	return !model.IsEmpty(value)
}

func number(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case int32:
		return float64(v), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return f, err == nil
	}
	return 0, false
}
