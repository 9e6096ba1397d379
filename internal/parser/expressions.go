package parser

import (
	"jstar/internal/ast"
	"jstar/internal/token"
)

// Precedence levels, low to high. Ternary and assignment are handled
// structurally (parseExpression / parseTernary) rather than through this
// table since they are right-associative and only fire at the top of
// the chain.
const (
	precNone = iota
	precOr
	precAnd
	precEquality   // == != is
	precRelational // < <= > >=
	precBOr        // |
	precBXor       // ^
	precBAnd       // &
	precShift      // << >>
	precAdditive   // + -
	precMultiplicative
	precPower // ** (right-assoc, handled specially)
)

var binaryPrec = map[token.Kind]int{
	token.EQ: precEquality, token.NE: precEquality, token.IS: precEquality,
	token.LT: precRelational, token.LE: precRelational, token.GT: precRelational, token.GE: precRelational,
	token.BOR:  precBOr,
	token.BXOR: precBXor,
	token.BAND: precBAnd,
	token.SHL:  precShift, token.SHR: precShift,
	token.PLUS: precAdditive, token.MINUS: precAdditive,
	token.STAR: precMultiplicative, token.SLASH: precMultiplicative, token.PERCENT: precMultiplicative,
}

// parseExpression is the top-level expression entry point: assignment,
// then unpack-assignment (comma-separated lvalues), then the ternary
// precedence chain.
func (p *Parser) parseExpression() ast.Expr {
	first := p.parseAssignment()
	if p.check(token.COMMA) && isLvalue(first) {
		save := p.mark()
		targets := []ast.Expr{first}
		for p.match(token.COMMA) {
			targets = append(targets, p.parseTernary())
		}
		if p.match(token.ASSIGN) {
			n := ast.Alloc[ast.UnpackAssign](p.arena)
			n.Pos = first.Position()
			n.Targets = targets
			n.Value = p.parseExpression()
			return n
		}
		// Not actually an unpack-assignment: it was a bare tuple literal.
		p.reset(save)
		return p.parseTupleFrom(first)
	}
	return first
}

func (p *Parser) parseTupleFrom(first ast.Expr) ast.Expr {
	n := ast.Alloc[ast.TupleLit](p.arena)
	n.Pos = first.Position()
	n.Elements = append(n.Elements, first)
	for p.match(token.COMMA) {
		n.Elements = append(n.Elements, p.parseAssignment())
	}
	return n
}

var compoundOps = map[token.Kind]ast.BinaryOp{
	token.PLUS_ASSIGN: ast.OpAdd, token.MINUS_ASSIGN: ast.OpSub,
	token.STAR_ASSIGN: ast.OpMul, token.SLASH_ASSIGN: ast.OpDiv,
	token.PERCENT_ASSIGN: ast.OpMod,
}

// parseAssignment handles right-associative `=` and the compound
// assignment operators, which desugar into Assign{Target, Binary{op,
// Target, rhs}} here rather than at compile time, so the compiler never
// needs a dedicated opcode per compound operator.
func (p *Parser) parseAssignment() ast.Expr {
	left := p.parseTernary()
	if p.check(token.ASSIGN) {
		pos := p.advance().Pos
		if !isLvalue(left) {
			p.errorf("invalid assignment target")
		}
		n := ast.Alloc[ast.Assign](p.arena)
		n.Pos = pos
		n.Target = left
		n.Value = p.parseAssignment()
		return n
	}
	if op, ok := compoundOps[p.peek().Kind]; ok {
		pos := p.advance().Pos
		if !isLvalue(left) {
			p.errorf("invalid assignment target")
		}
		rhs := p.parseAssignment()
		bin := ast.Alloc[ast.Binary](p.arena)
		bin.Pos = pos
		bin.Op = op
		bin.Left = left
		bin.Right = rhs
		n := ast.Alloc[ast.Assign](p.arena)
		n.Pos = pos
		n.Target = left
		n.Value = bin
		return n
	}
	return left
}

func isLvalue(e ast.Expr) bool {
	switch e.(type) {
	case *ast.Ident, *ast.Member, *ast.Index:
		return true
	}
	return false
}

// parseTernary is `x if c else y`, lower precedence than `or`.
func (p *Parser) parseTernary() ast.Expr {
	x := p.parseOr()
	if p.check(token.IF) {
		pos := p.advance().Pos
		cond := p.parseOr()
		p.expect(token.ELSE, "in ternary expression")
		elseV := p.parseTernary()
		n := ast.Alloc[ast.Ternary](p.arena)
		n.Pos = pos
		n.Cond = cond
		n.Then = x
		n.Else = elseV
		return n
	}
	return x
}

func (p *Parser) parseOr() ast.Expr {
	left := p.parseAnd()
	for p.check(token.OR) {
		pos := p.advance().Pos
		right := p.parseAnd()
		n := ast.Alloc[ast.Logical](p.arena)
		n.Pos = pos
		n.Op = token.OR
		n.Left = left
		n.Right = right
		left = n
	}
	return left
}

func (p *Parser) parseAnd() ast.Expr {
	left := p.parseBinary(precEquality)
	for p.check(token.AND) {
		pos := p.advance().Pos
		right := p.parseBinary(precEquality)
		n := ast.Alloc[ast.Logical](p.arena)
		n.Pos = pos
		n.Op = token.AND
		n.Left = left
		n.Right = right
		left = n
	}
	return left
}

// parseBinary implements precedence-climbing over binaryPrec down to (and
// including) the multiplicative level; unary/power/postfix/primary are
// handled by parseUnary and below.
func (p *Parser) parseBinary(minPrec int) ast.Expr {
	left := p.parseUnary()
	for {
		prec, ok := binaryPrec[p.peek().Kind]
		if !ok || prec < minPrec {
			return left
		}
		opTok := p.advance()
		right := p.parseBinary(prec + 1)
		n := ast.Alloc[ast.Binary](p.arena)
		n.Pos = opTok.Pos
		n.Op = ast.BinaryOp(opTok.Kind)
		n.Left = left
		n.Right = right
		left = n
	}
}

var unaryOps = map[token.Kind]ast.UnaryOp{
	token.MINUS: ast.UnaryNeg,
	token.NOT:   ast.UnaryNot,
	token.BNOT:  ast.UnaryBNot,
	token.HASH:  ast.UnaryLen,
	token.DHASH: ast.UnaryLen2,
}

func (p *Parser) parseUnary() ast.Expr {
	if op, ok := unaryOps[p.peek().Kind]; ok {
		opTok := p.advance()
		operand := p.parseUnary()
		n := ast.Alloc[ast.Unary](p.arena)
		n.Pos = opTok.Pos
		n.Op = op
		n.Operand = operand
		return n
	}
	return p.parsePower()
}

// parsePower is right-associative `**`, binding tighter than unary minus
// on its left operand's postfix chain but looser on its right operand
// (so `-2 ** 2 == -4`).
func (p *Parser) parsePower() ast.Expr {
	left := p.parsePostfix()
	if p.check(token.POW) {
		pos := p.advance().Pos
		right := p.parseUnary()
		n := ast.Alloc[ast.Binary](p.arena)
		n.Pos = pos
		n.Op = ast.OpPow
		n.Left = left
		n.Right = right
		return n
	}
	return left
}

func (p *Parser) parsePostfix() ast.Expr {
	expr := p.parsePrimary()
	for {
		switch p.peek().Kind {
		case token.DOT:
			p.advance()
			name := p.expect(token.IDENT, "after '.'").Lexeme
			n := ast.Alloc[ast.Member](p.arena)
			n.Pos = expr.Position()
			n.Receiver = expr
			n.Name = name
			expr = n
		case token.LBRACKET:
			pos := p.advance().Pos
			key := p.parseExpression()
			p.expect(token.RBRACKET, "to close index expression")
			n := ast.Alloc[ast.Index](p.arena)
			n.Pos = pos
			n.Receiver = expr
			n.Key = key
			expr = n
		case token.LPAREN:
			pos := p.advance().Pos
			var args []ast.Expr
			for !p.check(token.RPAREN) && !p.check(token.EOF) {
				args = append(args, p.parseCallArg())
				if !p.check(token.RPAREN) {
					p.expect(token.COMMA, "between call arguments")
				}
			}
			p.expect(token.RPAREN, "to close call arguments")
			n := ast.Alloc[ast.Call](p.arena)
			n.Pos = pos
			n.Callee = expr
			n.Args = args
			expr = n
		case token.LBRACE:
			// Brace-call sugar: f{k: v} == f({k: v}).
			table := p.parseTableLit()
			n := ast.Alloc[ast.Call](p.arena)
			n.Pos = table.Position()
			n.Callee = expr
			n.Args = []ast.Expr{table}
			expr = n
		default:
			return expr
		}
	}
}

func (p *Parser) parseCallArg() ast.Expr {
	if p.check(token.ELLIPSIS) {
		pos := p.advance().Pos
		n := ast.Alloc[ast.Spread](p.arena)
		n.Pos = pos
		n.Value = p.parseAssignment()
		return n
	}
	return p.parseAssignment()
}

func (p *Parser) parsePrimary() ast.Expr {
	t := p.peek()
	switch t.Kind {
	case token.NUMBER:
		p.advance()
		n := ast.Alloc[ast.NumberLit](p.arena)
		n.Pos = t.Pos
		n.Value = parseNumber(t.Lexeme)
		return n
	case token.STRING:
		p.advance()
		n := ast.Alloc[ast.StringLit](p.arena)
		n.Pos = t.Pos
		n.Value = t.Lexeme
		return n
	case token.TRUE, token.FALSE:
		p.advance()
		n := ast.Alloc[ast.BoolLit](p.arena)
		n.Pos = t.Pos
		n.Value = t.Kind == token.TRUE
		return n
	case token.NULL:
		p.advance()
		n := ast.Alloc[ast.NullLit](p.arena)
		n.Pos = t.Pos
		return n
	case token.IDENT:
		p.advance()
		n := ast.Alloc[ast.Ident](p.arena)
		n.Pos = t.Pos
		n.Name = t.Lexeme
		return n
	case token.SUPER:
		p.advance()
		n := ast.Alloc[ast.Super](p.arena)
		n.Pos = t.Pos
		return n
	case token.LPAREN:
		return p.parseGroupOrTuple()
	case token.LBRACKET:
		return p.parseListLit()
	case token.LBRACE:
		return p.parseTableLit()
	case token.FUN:
		pos := p.advance().Pos
		lit := p.parseFuncLitBody(pos, "")
		return lit
	case token.BOR:
		return p.parseLambda()
	case token.YIELD:
		pos := p.advance().Pos
		cur := p.currentFunc()
		if cur == nil {
			p.errorf("'yield' outside a function")
		} else {
			cur.isGenerator = true
		}
		n := ast.Alloc[ast.Yield](p.arena)
		n.Pos = pos
		if !p.atExprEnd() {
			n.Value = p.parseAssignment()
		}
		return n
	case token.ELLIPSIS:
		pos := p.advance().Pos
		n := ast.Alloc[ast.Spread](p.arena)
		n.Pos = pos
		n.Value = p.parseAssignment()
		return n
	}
	p.errorf("unexpected token %s in expression", t.Kind)
	p.advance()
	n := ast.Alloc[ast.NullLit](p.arena)
	n.Pos = t.Pos
	return n
}

func (p *Parser) atExprEnd() bool {
	switch p.peek().Kind {
	case token.NEWLINE, token.SEMICOLON, token.EOF, token.END, token.RPAREN, token.RBRACKET, token.RBRACE, token.COMMA:
		return true
	}
	return false
}

// parseGroupOrTuple parses `(expr)` as a grouped expression, or `()` /
// `(e1, e2, ...)` as a tuple literal.
func (p *Parser) parseGroupOrTuple() ast.Expr {
	pos := p.advance().Pos // '('
	if p.check(token.RPAREN) {
		p.advance()
		n := ast.Alloc[ast.TupleLit](p.arena)
		n.Pos = pos
		return n
	}
	first := p.parseCallArg()
	if p.check(token.COMMA) {
		n := ast.Alloc[ast.TupleLit](p.arena)
		n.Pos = pos
		n.Elements = append(n.Elements, first)
		for p.match(token.COMMA) {
			if p.check(token.RPAREN) {
				break
			}
			n.Elements = append(n.Elements, p.parseCallArg())
		}
		p.expect(token.RPAREN, "to close tuple literal")
		return n
	}
	p.expect(token.RPAREN, "to close grouped expression")
	return first
}

func (p *Parser) parseListLit() ast.Expr {
	pos := p.advance().Pos // '['
	n := ast.Alloc[ast.ListLit](p.arena)
	n.Pos = pos
	for !p.check(token.RBRACKET) && !p.check(token.EOF) {
		n.Elements = append(n.Elements, p.parseCallArg())
		if !p.check(token.RBRACKET) {
			p.expect(token.COMMA, "between list elements")
		}
	}
	p.expect(token.RBRACKET, "to close list literal")
	return n
}

func (p *Parser) parseTableLit() ast.Expr {
	pos := p.advance().Pos // '{'
	n := ast.Alloc[ast.TableLit](p.arena)
	n.Pos = pos
	for !p.check(token.RBRACE) && !p.check(token.EOF) {
		key := p.parseAssignment()
		p.expect(token.COLON, "between table key and value")
		value := p.parseAssignment()
		n.Entries = append(n.Entries, ast.TableEntry{Key: key, Value: value})
		if !p.check(token.RBRACE) {
			p.expect(token.COMMA, "between table entries")
		}
	}
	p.expect(token.RBRACE, "to close table literal")
	return n
}

// parseLambda is the `|args| -> expr` short function form, desugared into
// a FuncLit whose body is a single `return expr` statement.
func (p *Parser) parseLambda() ast.Expr {
	pos := p.advance().Pos // '|'
	lit := ast.Alloc[ast.FuncLit](p.arena)
	lit.Pos = pos
	for !p.check(token.BOR) && !p.check(token.EOF) {
		if p.match(token.ELLIPSIS) {
			lit.Vararg = true
			lit.Params = append(lit.Params, p.expect(token.IDENT, "after '...'").Lexeme)
			lit.Defaults = append(lit.Defaults, nil)
			break
		}
		lit.Params = append(lit.Params, p.expect(token.IDENT, "in lambda parameter list").Lexeme)
		lit.Defaults = append(lit.Defaults, nil)
		if !p.check(token.BOR) {
			p.expect(token.COMMA, "between lambda parameters")
		}
	}
	p.expect(token.BOR, "to close lambda parameter list")
	p.expect(token.ARROW, "after lambda parameters")

	ctx := &funcCtx{}
	p.funcStack = append(p.funcStack, ctx)
	body := p.parseAssignment()
	lit.IsGenerator = ctx.isGenerator
	p.funcStack = p.funcStack[:len(p.funcStack)-1]

	ret := ast.Alloc[ast.Return](p.arena)
	ret.Pos = body.Position()
	ret.Value = body
	block := ast.Alloc[ast.Block](p.arena)
	block.Pos = pos
	block.Stmts = []ast.Stmt{ret}
	lit.Body = block
	return lit
}
