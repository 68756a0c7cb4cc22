package pidcalib

import (
	"log"
	"sort"
	"strconv"
	"strings"
)

// Cut is a compiled selection expression. The top-level expression is a
// conjunction of clauses; clauses from independently supplied cuts can be
// concatenated with And without re-parsing.
type Cut struct {
	Expr    string
	clauses []exprNode
	vars    []string
}

// Variables returns the sorted column names the cut reads.
func (c *Cut) Variables() []string {
	out := make([]string, len(c.vars))
	copy(out, c.vars)
	return out
}

// Evaluate applies the cut to a batch and returns a per-event mask.
func (c *Cut) Evaluate(b *Batch) ([]bool, error) {
	mask := make([]bool, b.Len())
	for i := range mask {
		mask[i] = true
	}
	for _, clause := range c.clauses {
		vals, err := clause.eval(b)
		if err != nil {
			return nil, err
		}
		for i, v := range vals {
			mask[i] = mask[i] && v != 0
		}
	}
	return mask, nil
}

// And combines cuts into a single conjunction without re-parsing.
func And(cuts ...*Cut) *Cut {
	var (
		exprs   []string
		clauses []exprNode
		varSet  = map[string]bool{}
	)
	for _, c := range cuts {
		if c == nil {
			continue
		}
		exprs = append(exprs, c.Expr)
		clauses = append(clauses, c.clauses...)
		for _, v := range c.vars {
			varSet[v] = true
		}
	}
	return &Cut{Expr: strings.Join(exprs, " & "), clauses: clauses, vars: sortedKeys(varSet)}
}

func sortedKeys(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// CutCompiler parses cut expressions, resolving user-level variable names
// through an alias table. A name with no alias is used raw, with a single
// warning per distinct name for the lifetime of the compiler.
type CutCompiler struct {
	aliases map[string]string
	raw     map[string]bool
}

// NewCutCompiler returns a compiler over the given alias table. A nil
// table means all names are used raw.
func NewCutCompiler(aliases map[string]string) *CutCompiler {
	return &CutCompiler{aliases: aliases, raw: map[string]bool{}}
}

// RawVariables returns the sorted variable names that were not found in
// the alias table and are being used raw.
func (cc *CutCompiler) RawVariables() []string {
	return sortedKeys(cc.raw)
}

func (cc *CutCompiler) resolve(name string) string {
	if raw, ok := cc.aliases[name]; ok {
		return raw
	}
	if !cc.raw[name] {
		cc.raw[name] = true
		log.Printf("warning: variable %q is not a known alias, using raw variable", name)
	}
	return name
}

// Compile parses an expression like "DLLK > 4 & IsMuon == 0" into a Cut.
// The grammar covers variables, numeric literals, parentheses, arithmetic
// (+ - * /), comparisons (> < >= <= == !=) and the logical operators & and
// |. A top-level & splits the expression into independent clauses; within
// parentheses & binds tighter than |, so "a | b & c" is "a | (b & c)".
func (cc *CutCompiler) Compile(expr string) (*Cut, error) {
	tokens, err := lexCut(expr)
	if err != nil {
		return nil, err
	}
	var (
		clauses []exprNode
		varSet  = map[string]bool{}
	)
	for _, part := range splitTopLevel(tokens) {
		if len(part) == 0 {
			return nil, &CutSyntaxError{Expr: expr, Msg: "empty clause"}
		}
		p := &cutParser{expr: expr, tokens: part, compiler: cc, vars: varSet}
		node, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if p.pos != len(p.tokens) {
			return nil, &CutSyntaxError{Expr: expr, Msg: "unexpected " + p.tokens[p.pos].text}
		}
		clauses = append(clauses, node)
	}
	return &Cut{Expr: expr, clauses: clauses, vars: sortedKeys(varSet)}, nil
}

type tokenKind int

const (
	tokNumber tokenKind = iota
	tokIdent
	tokOp
	tokLParen
	tokRParen
)

type token struct {
	kind tokenKind
	text string
	num  float64
}

func lexCut(expr string) ([]token, error) {
	var tokens []token
	i := 0
	for i < len(expr) {
		c := expr[i]
		switch {
		case c == ' ' || c == '\t':
			i++
		case c == '(':
			tokens = append(tokens, token{kind: tokLParen, text: "("})
			i++
		case c == ')':
			tokens = append(tokens, token{kind: tokRParen, text: ")"})
			i++
		case c == '&' || c == '|' || c == '+' || c == '-' || c == '*' || c == '/':
			tokens = append(tokens, token{kind: tokOp, text: string(c)})
			i++
		case c == '>' || c == '<':
			op := string(c)
			if i+1 < len(expr) && expr[i+1] == '=' {
				op += "="
				i++
			}
			tokens = append(tokens, token{kind: tokOp, text: op})
			i++
		case c == '=' || c == '!':
			if i+1 >= len(expr) || expr[i+1] != '=' {
				return nil, &CutSyntaxError{Expr: expr, Msg: "unknown operator " + string(c)}
			}
			tokens = append(tokens, token{kind: tokOp, text: string(c) + "="})
			i += 2
		case c >= '0' && c <= '9' || c == '.':
			j := i
			for j < len(expr) && (expr[j] >= '0' && expr[j] <= '9' || expr[j] == '.' ||
				expr[j] == 'e' || expr[j] == 'E' ||
				(expr[j] == '-' || expr[j] == '+') && (expr[j-1] == 'e' || expr[j-1] == 'E')) {
				j++
			}
			num, err := strconv.ParseFloat(expr[i:j], 64)
			if err != nil {
				return nil, &CutSyntaxError{Expr: expr, Msg: "bad number " + expr[i:j]}
			}
			tokens = append(tokens, token{kind: tokNumber, text: expr[i:j], num: num})
			i = j
		case isIdentChar(c):
			j := i
			for j < len(expr) && isIdentChar(expr[j]) {
				j++
			}
			tokens = append(tokens, token{kind: tokIdent, text: expr[i:j]})
			i = j
		default:
			return nil, &CutSyntaxError{Expr: expr, Msg: "unknown operator " + string(c)}
		}
	}
	depth := 0
	for _, t := range tokens {
		switch t.kind {
		case tokLParen:
			depth++
		case tokRParen:
			depth--
			if depth < 0 {
				return nil, &CutSyntaxError{Expr: expr, Msg: "unbalanced parentheses"}
			}
		}
	}
	if depth != 0 {
		return nil, &CutSyntaxError{Expr: expr, Msg: "unbalanced parentheses"}
	}
	return tokens, nil
}

func isIdentChar(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '_'
}

// splitTopLevel splits a token stream into clauses at & operators outside
// parentheses, so that chained independent cuts each become one clause.
func splitTopLevel(tokens []token) [][]token {
	var parts [][]token
	depth, start := 0, 0
	for i, t := range tokens {
		switch {
		case t.kind == tokLParen:
			depth++
		case t.kind == tokRParen:
			depth--
		case t.kind == tokOp && t.text == "&" && depth == 0:
			parts = append(parts, tokens[start:i])
			start = i + 1
		}
	}
	return append(parts, tokens[start:])
}

type cutParser struct {
	expr     string
	tokens   []token
	pos      int
	compiler *CutCompiler
	vars     map[string]bool
}

func (p *cutParser) peek() (token, bool) {
	if p.pos < len(p.tokens) {
		return p.tokens[p.pos], true
	}
	return token{}, false
}

func (p *cutParser) acceptOp(ops ...string) (string, bool) {
	t, ok := p.peek()
	if !ok || t.kind != tokOp {
		return "", false
	}
	for _, op := range ops {
		if t.text == op {
			p.pos++
			return op, true
		}
	}
	return "", false
}

func (p *cutParser) parseOr() (exprNode, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for {
		if _, ok := p.acceptOp("|"); !ok {
			return left, nil
		}
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &binaryNode{op: "|", left: left, right: right}
	}
}

func (p *cutParser) parseAnd() (exprNode, error) {
	left, err := p.parseComparison()
	if err != nil {
		return nil, err
	}
	for {
		if _, ok := p.acceptOp("&"); !ok {
			return left, nil
		}
		right, err := p.parseComparison()
		if err != nil {
			return nil, err
		}
		left = &binaryNode{op: "&", left: left, right: right}
	}
}

func (p *cutParser) parseComparison() (exprNode, error) {
	left, err := p.parseAddSub()
	if err != nil {
		return nil, err
	}
	op, ok := p.acceptOp(">=", "<=", "==", "!=", ">", "<")
	if !ok {
		return left, nil
	}
	right, err := p.parseAddSub()
	if err != nil {
		return nil, err
	}
	return &binaryNode{op: op, left: left, right: right}, nil
}

func (p *cutParser) parseAddSub() (exprNode, error) {
	left, err := p.parseMulDiv()
	if err != nil {
		return nil, err
	}
	for {
		op, ok := p.acceptOp("+", "-")
		if !ok {
			return left, nil
		}
		right, err := p.parseMulDiv()
		if err != nil {
			return nil, err
		}
		left = &binaryNode{op: op, left: left, right: right}
	}
}

func (p *cutParser) parseMulDiv() (exprNode, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		op, ok := p.acceptOp("*", "/")
		if !ok {
			return left, nil
		}
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &binaryNode{op: op, left: left, right: right}
	}
}

func (p *cutParser) parseUnary() (exprNode, error) {
	if _, ok := p.acceptOp("-"); ok {
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &binaryNode{op: "-", left: &literalNode{value: 0}, right: operand}, nil
	}
	return p.parsePrimary()
}

func (p *cutParser) parsePrimary() (exprNode, error) {
	t, ok := p.peek()
	if !ok {
		return nil, &CutSyntaxError{Expr: p.expr, Msg: "unexpected end of expression"}
	}
	switch t.kind {
	case tokNumber:
		p.pos++
		return &literalNode{value: t.num}, nil
	case tokIdent:
		p.pos++
		name := p.compiler.resolve(t.text)
		p.vars[name] = true
		return &variableNode{name: name}, nil
	case tokLParen:
		p.pos++
		node, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if _, ok := p.peek(); !ok || p.tokens[p.pos].kind != tokRParen {
			return nil, &CutSyntaxError{Expr: p.expr, Msg: "unbalanced parentheses"}
		}
		p.pos++
		return node, nil
	}
	return nil, &CutSyntaxError{Expr: p.expr, Msg: "unexpected " + t.text}
}

// Expression nodes evaluate column-wise over a batch. Boolean results are
// encoded as 0 and 1 so comparisons and logical operators compose.

type exprNode interface {
	eval(b *Batch) ([]float64, error)
}

type literalNode struct {
	value float64
}

func (n *literalNode) eval(b *Batch) ([]float64, error) {
	out := make([]float64, b.Len())
	for i := range out {
		out[i] = n.value
	}
	return out, nil
}

type variableNode struct {
	name string
}

func (n *variableNode) eval(b *Batch) ([]float64, error) {
	col, ok := b.Column(n.name)
	if !ok {
		return nil, &UnknownVariableError{Name: n.name, Columns: b.ColumnNames()}
	}
	return col, nil
}

type binaryNode struct {
	op          string
	left, right exprNode
}

func (n *binaryNode) eval(b *Batch) ([]float64, error) {
	left, err := n.left.eval(b)
	if err != nil {
		return nil, err
	}
	right, err := n.right.eval(b)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(left))
	switch n.op {
	case "+":
		for i := range out {
			out[i] = left[i] + right[i]
		}
	case "-":
		for i := range out {
			out[i] = left[i] - right[i]
		}
	case "*":
		for i := range out {
			out[i] = left[i] * right[i]
		}
	case "/":
		for i := range out {
			out[i] = left[i] / right[i]
		}
	case ">":
		for i := range out {
			out[i] = boolVal(left[i] > right[i])
		}
	case "<":
		for i := range out {
			out[i] = boolVal(left[i] < right[i])
		}
	case ">=":
		for i := range out {
			out[i] = boolVal(left[i] >= right[i])
		}
	case "<=":
		for i := range out {
			out[i] = boolVal(left[i] <= right[i])
		}
	case "==":
		for i := range out {
			out[i] = boolVal(left[i] == right[i])
		}
	case "!=":
		for i := range out {
			out[i] = boolVal(left[i] != right[i])
		}
	case "&":
		for i := range out {
			out[i] = boolVal(left[i] != 0 && right[i] != 0)
		}
	case "|":
		for i := range out {
			out[i] = boolVal(left[i] != 0 || right[i] != 0)
		}
	}
	return out, nil
}

func boolVal(v bool) float64 {
	if v {
		return 1
	}
	return 0
}
