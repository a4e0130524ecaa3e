// Package parser builds an AST from a token stream via recursive descent
// with precedence climbing, following the grammar and error-recovery rule
// in the language specification: a single recorded error per file, with
// recovery by skipping to the next semicolon.
package parser

import (
	"fmt"
	"strconv"
	"strings"

	"stcore/internal/ast"
	"stcore/internal/lexer"
	"stcore/internal/token"
	"stcore/internal/value"
)

// Error is a single parse error: a line-tagged message. Only the first
// error in a file is ever recorded, per the "one diagnostic per upload"
// contract.
type Error struct {
	Line    int
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("Parse error at line %d: %s", e.Line, e.Message)
}

// Parser consumes a Lexer's token stream and produces an *ast.Program.
type Parser struct {
	lex *lexer.Lexer
	err *Error
}

// New constructs a Parser over src.
func New(src string) *Parser {
	return &Parser{lex: lexer.New(src)}
}

// Parse runs the full program grammar. On any recorded error it returns a
// nil Program and that error: "a program with any recorded error yields
// no AST".
func (p *Parser) Parse() (*ast.Program, error) {
	prog := &ast.Program{}

	if p.peek().Kind == token.PROGRAM {
		p.next()
		if p.peek().Kind == token.IDENT {
			prog.Name = p.next().Lexeme
		}
		p.accept(token.SEMI)
	}

	p.parseVarBlocks(prog)
	if p.err != nil {
		return nil, p.err
	}

	p.accept(token.BEGIN)

	prog.Body = p.parseStatements(nil)
	if p.err != nil {
		return nil, p.err
	}

	if p.peek().Kind == token.END || p.peek().Kind == token.END_PROGRAM {
		p.next()
	}
	p.accept(token.SEMI)

	if p.err != nil {
		return nil, p.err
	}
	return prog, nil
}

func (p *Parser) peek() token.Token { return p.lex.Peek() }
func (p *Parser) next() token.Token { return p.lex.Next() }

func (p *Parser) accept(k token.Kind) bool {
	if p.peek().Kind == k {
		p.next()
		return true
	}
	return false
}

func (p *Parser) expect(k token.Kind) token.Token {
	t := p.peek()
	if t.Kind != k {
		p.fail(t.Line, fmt.Sprintf("expected %s, got %s", k, t.Kind))
		return t
	}
	return p.next()
}

// fail records the first error only; subsequent calls are no-ops so a
// single file yields at most one diagnostic.
func (p *Parser) fail(line int, msg string) {
	if p.err == nil {
		p.err = &Error{Line: line, Message: msg}
	}
	p.recover()
}

// recover skips tokens up to and including the next SEMI (or EOF), letting
// statement parsing resume cleanly after an error.
func (p *Parser) recover() {
	for {
		t := p.peek()
		if t.Kind == token.EOF {
			return
		}
		p.next()
		if t.Kind == token.SEMI {
			return
		}
	}
}

func isVarBlockStart(k token.Kind) bool {
	return k == token.VAR || k == token.VAR_INPUT || k == token.VAR_OUTPUT || k == token.VAR_IN_OUT
}

func (p *Parser) parseVarBlocks(prog *ast.Program) {
	for isVarBlockStart(p.peek().Kind) && p.err == nil {
		kind := p.next().Kind
		for p.peek().Kind == token.IDENT && p.err == nil {
			p.parseVarDecl(prog, kind)
		}
		p.expect(token.END_VAR)
	}
}

func (p *Parser) parseVarDecl(prog *ast.Program, blockKind token.Kind) {
	nameTok := p.expect(token.IDENT)
	if p.err != nil {
		return
	}
	p.expect(token.COLON)
	typeTok := p.next()
	var typ value.Type
	switch typeTok.Kind {
	case token.BOOL:
		typ = value.Bool
	case token.INT:
		typ = value.Int
	case token.DINT:
		typ = value.DInt
	case token.DWORD:
		typ = value.DWord
	case token.REAL:
		typ = value.Real
	default:
		p.fail(typeTok.Line, "expected a type name")
		return
	}

	decl := ast.VarDecl{
		Name:     nameTok.Lexeme,
		Type:     typ,
		Initial:  value.ZeroOf(typ),
		IsInput:  blockKind == token.VAR_INPUT,
		IsOutput: blockKind == token.VAR_OUTPUT,
	}

	if p.accept(token.ASSIGN) {
		lit := p.parseUnary()
		if lit != nil && lit.Kind == ast.ExprLiteral {
			decl.Initial = lit.Literal
		}
	}

	for _, existing := range prog.Vars {
		if existing.Name == decl.Name {
			p.fail(nameTok.Line, fmt.Sprintf("Duplicate variable: %s", decl.Name))
			return
		}
	}
	if len(prog.Vars) >= ast.MaxVars {
		p.fail(nameTok.Line, "Too many variables")
		return
	}
	prog.Vars = append(prog.Vars, decl)

	p.expect(token.SEMI)
}

// parseStatements parses statements until a block terminator keyword (or
// EOF) is encountered. stopAt, if non-nil, names additional terminators
// recognised by the caller (e.g. a CASE label boundary).
func (p *Parser) parseStatements(stopAt func(token.Kind) bool) *ast.Stmt {
	var head, tail *ast.Stmt
	for p.err == nil {
		k := p.peek().Kind
		if k == token.EOF || isBlockTerminator(k) || (stopAt != nil && stopAt(k)) {
			break
		}
		s := p.parseStatement()
		if s == nil {
			break
		}
		if head == nil {
			head = s
			tail = s
		} else {
			tail.Next = s
			tail = s
		}
	}
	return head
}

func isBlockTerminator(k token.Kind) bool {
	switch k {
	case token.ELSIF, token.ELSE, token.END_IF,
		token.END_CASE, token.END_FOR, token.END_WHILE, token.UNTIL, token.END_REPEAT,
		token.END, token.END_PROGRAM:
		return true
	}
	return false
}

func (p *Parser) parseStatement() *ast.Stmt {
	t := p.peek()
	switch t.Kind {
	case token.IF:
		return p.parseIf()
	case token.CASE:
		return p.parseCase()
	case token.FOR:
		return p.parseFor()
	case token.WHILE:
		return p.parseWhile()
	case token.REPEAT:
		return p.parseRepeat()
	case token.EXIT:
		p.next()
		p.accept(token.SEMI)
		return &ast.Stmt{Kind: ast.StmtExit, Line: t.Line}
	case token.IDENT:
		return p.parseAssignOrCall(t)
	default:
		p.fail(t.Line, fmt.Sprintf("unexpected token %s", t.Kind))
		return nil
	}
}

func (p *Parser) parseAssignOrCall(t token.Token) *ast.Stmt {
	name := p.next().Lexeme
	if p.peek().Kind == token.ASSIGN {
		p.next()
		expr := p.parseExpr()
		p.expect(token.SEMI)
		return &ast.Stmt{Kind: ast.StmtAssign, Line: t.Line, AssignVar: name, AssignExpr: expr}
	}
	// A bare call statement, e.g. a remote-write builtin invoked for effect.
	if p.peek().Kind == token.LPAREN {
		call := p.parseCallTail(t.Line, name)
		p.expect(token.SEMI)
		return &ast.Stmt{Kind: ast.StmtExprStmt, Line: t.Line, Expr: call}
	}
	p.fail(t.Line, "expected ':=' or '(' after identifier")
	return nil
}

func (p *Parser) parseIf() *ast.Stmt {
	line := p.next().Line // consume IF
	cond := p.parseExpr()
	p.expect(token.THEN)
	then := p.parseStatements(nil)

	node := &ast.Stmt{Kind: ast.StmtIf, Line: line, Cond: cond, Then: then}

	switch p.peek().Kind {
	case token.ELSIF:
		// Desugar into a nested if owned by this node's Else branch, per
		// the Open Question resolution: preserve the nested ownership
		// shape rather than flattening into a branch list.
		node.Else = p.parseElsif()
		return node
	case token.ELSE:
		p.next()
		node.Else = p.parseStatements(nil)
	}
	p.expect(token.END_IF)
	p.accept(token.SEMI)
	return node
}

// parseElsif parses one ELSIF arm as a nested if, continuing the chain
// recursively, and consumes the terminating END_IF shared by the whole
// chain (the IEC grammar has exactly one END_IF per if/ELSIF/else chain).
func (p *Parser) parseElsif() *ast.Stmt {
	line := p.next().Line // consume ELSIF
	cond := p.parseExpr()
	p.expect(token.THEN)
	then := p.parseStatements(nil)
	node := &ast.Stmt{Kind: ast.StmtIf, Line: line, Cond: cond, Then: then}

	switch p.peek().Kind {
	case token.ELSIF:
		node.Else = p.parseElsif()
		return node
	case token.ELSE:
		p.next()
		node.Else = p.parseStatements(nil)
	}
	p.expect(token.END_IF)
	p.accept(token.SEMI)
	return node
}

func (p *Parser) parseCase() *ast.Stmt {
	line := p.next().Line // consume CASE
	expr := p.parseExpr()
	p.expect(token.OF)

	node := &ast.Stmt{Kind: ast.StmtCase, Line: line, CaseExpr: expr}

	isLabel := func(k token.Kind) bool { return k == token.END_CASE || k == token.ELSE }

	for p.peek().Kind == token.INT_LITERAL && p.err == nil {
		valTok := p.next()
		v, _ := strconv.ParseInt(valTok.Lexeme, 0, 32)
		p.expect(token.COLON)
		// A branch body ends at the next case label or at END_CASE/ELSE.
		// No statement form starts with a bare integer literal, so seeing
		// one always marks the next label rather than valid statement
		// content — the one-token lookahead the grammar calls for.
		body := p.parseStatements(func(k token.Kind) bool {
			return k == token.INT_LITERAL || isLabel(k)
		})
		node.CaseBranchs = append(node.CaseBranchs, ast.CaseBranch{Value: int32(v), Body: body})
	}

	if p.accept(token.ELSE) {
		p.accept(token.COLON)
		node.CaseElse = p.parseStatements(nil)
	}

	p.expect(token.END_CASE)
	p.accept(token.SEMI)
	return node
}

func (p *Parser) parseFor() *ast.Stmt {
	line := p.next().Line // consume FOR
	varTok := p.expect(token.IDENT)
	p.expect(token.ASSIGN)
	start := p.parseExpr()
	p.expect(token.TO)
	end := p.parseExpr()

	var step *ast.Expr
	if p.accept(token.BY) {
		step = p.parseExpr()
	}

	p.expect(token.DO)
	body := p.parseStatements(nil)
	p.expect(token.END_FOR)
	p.accept(token.SEMI)

	return &ast.Stmt{
		Kind: ast.StmtFor, Line: line,
		ForVar: varTok.Lexeme, ForStart: start, ForEnd: end, ForStep: step, ForBody: body,
	}
}

func (p *Parser) parseWhile() *ast.Stmt {
	line := p.next().Line // consume WHILE
	cond := p.parseExpr()
	p.expect(token.DO)
	body := p.parseStatements(nil)
	p.expect(token.END_WHILE)
	p.accept(token.SEMI)
	return &ast.Stmt{Kind: ast.StmtWhile, Line: line, Cond: cond, Then: body}
}

func (p *Parser) parseRepeat() *ast.Stmt {
	line := p.next().Line // consume REPEAT
	body := p.parseStatements(nil)
	p.expect(token.UNTIL)
	cond := p.parseExpr()
	p.expect(token.END_REPEAT)
	p.accept(token.SEMI)
	return &ast.Stmt{Kind: ast.StmtRepeat, Line: line, Cond: cond, Then: body}
}

// Expression parsing: precedence climbing following the table
// OR/XOR -> AND -> relational -> additive -> multiplicative -> unary -> primary.

func (p *Parser) parseExpr() *ast.Expr { return p.parseOr() }

func (p *Parser) parseOr() *ast.Expr {
	left := p.parseAnd()
	for p.err == nil {
		t := p.peek()
		var op ast.BinOp
		switch t.Kind {
		case token.OR:
			op = ast.OpOr
		case token.XOR:
			op = ast.OpXor
		default:
			return left
		}
		p.next()
		right := p.parseAnd()
		left = &ast.Expr{Kind: ast.ExprBinary, Line: t.Line, BinOp: op, Lhs: left, Rhs: right}
	}
	return left
}

func (p *Parser) parseAnd() *ast.Expr {
	left := p.parseRelational()
	for p.err == nil && p.peek().Kind == token.AND {
		t := p.next()
		right := p.parseRelational()
		left = &ast.Expr{Kind: ast.ExprBinary, Line: t.Line, BinOp: ast.OpAnd, Lhs: left, Rhs: right}
	}
	return left
}

func (p *Parser) parseRelational() *ast.Expr {
	left := p.parseAdditive()
	for p.err == nil {
		t := p.peek()
		var op ast.BinOp
		switch t.Kind {
		case token.EQ:
			op = ast.OpEq
		case token.NEQ:
			op = ast.OpNe
		case token.LT:
			op = ast.OpLt
		case token.GT:
			op = ast.OpGt
		case token.LE:
			op = ast.OpLe
		case token.GE:
			op = ast.OpGe
		default:
			return left
		}
		p.next()
		right := p.parseAdditive()
		left = &ast.Expr{Kind: ast.ExprBinary, Line: t.Line, BinOp: op, Lhs: left, Rhs: right}
	}
	return left
}

func (p *Parser) parseAdditive() *ast.Expr {
	left := p.parseMultiplicative()
	for p.err == nil {
		t := p.peek()
		var op ast.BinOp
		switch t.Kind {
		case token.PLUS:
			op = ast.OpAdd
		case token.MINUS:
			op = ast.OpSub
		default:
			return left
		}
		p.next()
		right := p.parseMultiplicative()
		left = &ast.Expr{Kind: ast.ExprBinary, Line: t.Line, BinOp: op, Lhs: left, Rhs: right}
	}
	return left
}

func (p *Parser) parseMultiplicative() *ast.Expr {
	left := p.parseUnary()
	for p.err == nil {
		t := p.peek()
		var op ast.BinOp
		switch t.Kind {
		case token.STAR:
			op = ast.OpMul
		case token.SLASH:
			op = ast.OpDiv
		case token.MOD:
			op = ast.OpMod
		case token.SHL:
			op = ast.OpShl
		case token.SHR:
			op = ast.OpShr
		default:
			return left
		}
		p.next()
		right := p.parseUnary()
		left = &ast.Expr{Kind: ast.ExprBinary, Line: t.Line, BinOp: op, Lhs: left, Rhs: right}
	}
	return left
}

func (p *Parser) parseUnary() *ast.Expr {
	t := p.peek()
	switch t.Kind {
	case token.MINUS:
		p.next()
		return &ast.Expr{Kind: ast.ExprUnary, Line: t.Line, UnOp: ast.OpNeg, Operand: p.parseUnary()}
	case token.NOT:
		p.next()
		return &ast.Expr{Kind: ast.ExprUnary, Line: t.Line, UnOp: ast.OpNot, Operand: p.parseUnary()}
	default:
		return p.parsePrimary()
	}
}

func (p *Parser) parsePrimary() *ast.Expr {
	t := p.peek()
	switch t.Kind {
	case token.TRUE:
		p.next()
		return &ast.Expr{Kind: ast.ExprLiteral, Line: t.Line, Literal: value.FromBool(true)}
	case token.FALSE:
		p.next()
		return &ast.Expr{Kind: ast.ExprLiteral, Line: t.Line, Literal: value.FromBool(false)}
	case token.INT_LITERAL:
		p.next()
		return &ast.Expr{Kind: ast.ExprLiteral, Line: t.Line, Literal: parseIntLiteral(t.Lexeme)}
	case token.REAL_LITERAL:
		p.next()
		f, _ := strconv.ParseFloat(t.Lexeme, 32)
		return &ast.Expr{Kind: ast.ExprLiteral, Line: t.Line, Literal: value.FromReal(float32(f))}
	case token.LPAREN:
		p.next()
		e := p.parseExpr()
		p.expect(token.RPAREN)
		return e
	case token.IDENT:
		p.next()
		if p.peek().Kind == token.LPAREN {
			return p.parseCallTail(t.Line, t.Lexeme)
		}
		return &ast.Expr{Kind: ast.ExprVar, Line: t.Line, VarName: t.Lexeme}
	default:
		p.fail(t.Line, fmt.Sprintf("unexpected token %s in expression", t.Kind))
		return &ast.Expr{Kind: ast.ExprLiteral, Line: t.Line, Literal: value.ZeroOf(value.Int)}
	}
}

func (p *Parser) parseCallTail(line int, name string) *ast.Expr {
	p.expect(token.LPAREN)
	var args []*ast.Expr
	if p.peek().Kind != token.RPAREN {
		args = append(args, p.parseExpr())
		for p.accept(token.COMMA) {
			if len(args) >= ast.MaxCallArgs {
				p.fail(line, "Too many arguments")
				break
			}
			args = append(args, p.parseExpr())
		}
	}
	if len(args) > ast.MaxCallArgs {
		p.fail(line, "Too many arguments")
	}
	p.expect(token.RPAREN)
	return &ast.Expr{Kind: ast.ExprCall, Line: line, Callee: name, Args: args}
}

// parseIntLiteral decodes decimal, 0x-hex, and 2#-binary forms produced by
// the lexer, clamping into DINT range and tagging INT when the value fits.
func parseIntLiteral(lexeme string) value.Value {
	var n int64
	switch {
	case strings.HasPrefix(lexeme, "0x") || strings.HasPrefix(lexeme, "0X"):
		n, _ = strconv.ParseInt(lexeme[2:], 16, 64)
	case strings.HasPrefix(lexeme, "2#"):
		n, _ = strconv.ParseInt(lexeme[2:], 2, 64)
	default:
		n, _ = strconv.ParseInt(lexeme, 10, 64)
	}
	if n >= -32768 && n <= 32767 {
		return value.FromInt(int16(n))
	}
	return value.FromDInt(value.ClampInt32(n))
}
