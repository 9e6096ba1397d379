package parser

import (
	"jstar/internal/ast"
	"jstar/internal/token"
)

// parseStmt dispatches on the current token to the right statement parser.
// On a syntax error inside a statement, it synchronizes to the next
// statement boundary and returns nil so Parse can keep collecting errors.
func (p *Parser) parseStmt() (result ast.Stmt) {
	defer func() {
		if p.panicking {
			p.synchronize()
		}
	}()

	switch p.peek().Kind {
	case token.VAR:
		return p.parseVarDecl()
	case token.FUN:
		return p.parseFunDecl(nil)
	case token.NATIVE:
		return p.parseNativeDecl()
	case token.CLASS:
		return p.parseClassDecl()
	case token.AT:
		return p.parseDecorated()
	case token.IF:
		return p.parseIf()
	case token.WHILE:
		return p.parseWhile()
	case token.FOR:
		return p.parseForOrForIn()
	case token.TRY:
		return p.parseTry()
	case token.RAISE:
		return p.parseRaise()
	case token.WITH:
		return p.parseWith()
	case token.RETURN:
		return p.parseReturn()
	case token.BREAK:
		pos := p.advance().Pos
		n := ast.Alloc[ast.Break](p.arena)
		n.Pos = pos
		p.endStmt()
		return n
	case token.CONTINUE:
		pos := p.advance().Pos
		n := ast.Alloc[ast.Continue](p.arena)
		n.Pos = pos
		p.endStmt()
		return n
	case token.IMPORT:
		return p.parseImport()
	case token.BEGIN:
		return p.parseBeginBlock()
	case token.STATIC:
		p.errorf("'static' outside a class")
		p.advance()
		p.synchronize()
		return nil
	default:
		expr := p.parseExpression()
		n := ast.Alloc[ast.ExprStmt](p.arena)
		n.Pos = expr.Position()
		n.X = expr
		p.endStmt()
		return n
	}
}

func (p *Parser) parseBeginBlock() ast.Stmt {
	pos := p.advance().Pos // 'begin'
	b := p.parseBlockBody(pos, token.END)
	p.expect(token.END, "to close 'begin' block")
	p.endStmt()
	return b
}

// parseBlockBody parses statements until one of the given terminator
// keywords is seen (without consuming it). Each block becomes its own
// scope when the compiler resolves locals.
func (p *Parser) parseBlockBody(pos token.Pos, terminators ...token.Kind) *ast.Block {
	b := ast.Alloc[ast.Block](p.arena)
	b.Pos = pos
	p.skipNewlines()
	for !p.check(token.EOF) && !p.atTerminator(terminators) {
		if s := p.parseStmt(); s != nil {
			b.Stmts = append(b.Stmts, s)
		}
		p.skipNewlines()
	}
	return b
}

func (p *Parser) atTerminator(kinds []token.Kind) bool {
	for _, k := range kinds {
		if p.check(k) {
			return true
		}
	}
	return false
}

func (p *Parser) parseVarDecl() ast.Stmt {
	pos := p.advance().Pos // 'var'
	name := p.expect(token.IDENT, "after 'var'").Lexeme
	n := ast.Alloc[ast.VarDecl](p.arena)
	n.Pos = pos
	n.Name = name
	if p.match(token.ASSIGN) {
		n.Init = p.parseExpression()
	}
	p.endStmt()
	return n
}

func (p *Parser) parseFuncLitBody(pos token.Pos, name string) *ast.FuncLit {
	lit := ast.Alloc[ast.FuncLit](p.arena)
	lit.Pos = pos
	lit.Name = name
	p.expect(token.LPAREN, "to start parameter list")
	for !p.check(token.RPAREN) && !p.check(token.EOF) {
		if p.match(token.ELLIPSIS) {
			lit.Vararg = true
			pname := p.expect(token.IDENT, "after '...'").Lexeme
			lit.Params = append(lit.Params, pname)
			lit.Defaults = append(lit.Defaults, nil)
			break
		}
		pname := p.expect(token.IDENT, "in parameter list").Lexeme
		lit.Params = append(lit.Params, pname)
		if p.match(token.ASSIGN) {
			lit.Defaults = append(lit.Defaults, p.parseTernary())
		} else {
			lit.Defaults = append(lit.Defaults, nil)
		}
		if !p.check(token.RPAREN) {
			p.expect(token.COMMA, "between parameters")
		}
	}
	p.expect(token.RPAREN, "to close parameter list")

	ctx := &funcCtx{}
	p.funcStack = append(p.funcStack, ctx)
	savedLoop := p.loopDepth
	p.loopDepth = 0
	lit.Body = p.parseBlockBody(pos, token.END)
	p.expect(token.END, "to close function body")
	p.loopDepth = savedLoop
	lit.IsGenerator = ctx.isGenerator
	p.funcStack = p.funcStack[:len(p.funcStack)-1]
	return lit
}

func (p *Parser) parseFunDecl(decorators []ast.Expr) ast.Stmt {
	pos := p.advance().Pos // 'fun'
	name := p.expect(token.IDENT, "after 'fun'").Lexeme
	lit := p.parseFuncLitBody(pos, name)
	n := ast.Alloc[ast.FunDecl](p.arena)
	n.Pos = pos
	n.Lit = lit
	n.Decorators = decorators
	p.endStmt()
	return n
}

// parseDecorated parses one or more `@expr` decorator lines stacked above
// a `fun` declaration, rejecting any other statement (class declarations
// included).
func (p *Parser) parseDecorated() ast.Stmt {
	var decorators []ast.Expr
	for p.check(token.AT) {
		p.advance()
		decorators = append(decorators, p.parseTernary())
		p.endStmt()
	}
	if p.check(token.FUN) {
		return p.parseFunDecl(decorators)
	}
	p.errorf("decorator must precede a function declaration")
	return p.parseStmt()
}

func (p *Parser) parseNativeDecl() ast.Stmt {
	pos := p.advance().Pos // 'native'
	name := p.expect(token.IDENT, "after 'native'").Lexeme
	n := ast.Alloc[ast.NativeDecl](p.arena)
	n.Pos = pos
	n.Name = name
	p.expect(token.LPAREN, "to start parameter list")
	for !p.check(token.RPAREN) && !p.check(token.EOF) {
		if p.match(token.ELLIPSIS) {
			n.Vararg = true
			n.Params = append(n.Params, p.expect(token.IDENT, "after '...'").Lexeme)
			break
		}
		n.Params = append(n.Params, p.expect(token.IDENT, "in parameter list").Lexeme)
		if !p.check(token.RPAREN) {
			p.expect(token.COMMA, "between parameters")
		}
	}
	p.expect(token.RPAREN, "to close parameter list")
	p.match(token.END) // natives may optionally be closed with 'end'
	p.endStmt()
	return n
}

func (p *Parser) parseClassDecl() ast.Stmt {
	pos := p.advance().Pos // 'class'
	name := p.expect(token.IDENT, "after 'class'").Lexeme
	n := ast.Alloc[ast.ClassDecl](p.arena)
	n.Pos = pos
	n.Name = name
	if p.match(token.IS) {
		n.Super = p.parsePrimary()
	}
	p.skipNewlines()
	for !p.check(token.END) && !p.check(token.EOF) {
		static := p.match(token.STATIC)
		switch p.peek().Kind {
		case token.CONSTRUCT:
			cpos := p.advance().Pos
			lit := p.parseFuncLitBody(cpos, "construct")
			if lit.IsGenerator {
				p.errorf("'yield' is not allowed inside a constructor")
			}
			fd := ast.Alloc[ast.FunDecl](p.arena)
			fd.Pos = cpos
			fd.Lit = lit
			n.Constructor = fd
		case token.FUN:
			mpos := p.advance().Pos
			mname := p.expect(token.IDENT, "after 'fun'").Lexeme
			lit := p.parseFuncLitBody(mpos, mname)
			fd := ast.Alloc[ast.FunDecl](p.arena)
			fd.Pos = mpos
			fd.Lit = lit
			fd.Static = static
			n.Methods = append(n.Methods, fd)
		case token.NATIVE:
			nd := p.parseNativeDecl().(*ast.NativeDecl)
			n.Natives = append(n.Natives, nd)
		default:
			p.errorf("expected method, constructor, or native declaration in class body")
			p.advance()
		}
		p.skipNewlines()
	}
	p.expect(token.END, "to close class body")
	p.endStmt()
	return n
}

func (p *Parser) parseIf() ast.Stmt {
	pos := p.advance().Pos // 'if'
	n := ast.Alloc[ast.If](p.arena)
	n.Pos = pos
	n.Cond = p.parseExpression()
	n.Then = p.parseBlockBody(pos, token.ELIF, token.ELSE, token.END)
	switch {
	case p.check(token.ELIF):
		n.Else = p.parseElif()
	case p.match(token.ELSE):
		n.Else = p.parseBlockBody(pos, token.END)
		p.expect(token.END, "to close 'if'")
		p.endStmt()
	default:
		p.expect(token.END, "to close 'if'")
		p.endStmt()
	}
	return n
}

// parseElif parses `elif cond ... (elif|else|end)`, recursively producing
// a chain of *ast.If nodes so the compiler's if/elif/else lowering stays
// uniform.
func (p *Parser) parseElif() ast.Stmt {
	pos := p.advance().Pos // 'elif'
	n := ast.Alloc[ast.If](p.arena)
	n.Pos = pos
	n.Cond = p.parseExpression()
	n.Then = p.parseBlockBody(pos, token.ELIF, token.ELSE, token.END)
	switch {
	case p.check(token.ELIF):
		n.Else = p.parseElif()
	case p.match(token.ELSE):
		n.Else = p.parseBlockBody(pos, token.END)
		p.expect(token.END, "to close 'if'")
		p.endStmt()
	default:
		p.expect(token.END, "to close 'if'")
		p.endStmt()
	}
	return n
}

func (p *Parser) parseWhile() ast.Stmt {
	pos := p.advance().Pos // 'while'
	n := ast.Alloc[ast.While](p.arena)
	n.Pos = pos
	n.Cond = p.parseExpression()
	p.match(token.DO)
	p.loopDepth++
	n.Body = p.parseBlockBody(pos, token.END)
	p.loopDepth--
	p.expect(token.END, "to close 'while'")
	p.endStmt()
	return n
}

// parseForOrForIn disambiguates the two `for` grammars by a speculative
// rewind: `for IDENT in ...` is a ForIn; anything else falls back to the
// C-style three-clause For.
func (p *Parser) parseForOrForIn() ast.Stmt {
	pos := p.advance().Pos // 'for'
	save := p.mark()
	if p.check(token.IDENT) {
		name := p.advance().Lexeme
		if p.match(token.IN) {
			n := ast.Alloc[ast.ForIn](p.arena)
			n.Pos = pos
			n.Var = name
			n.Iterable = p.parseExpression()
			p.match(token.DO)
			p.loopDepth++
			n.Body = p.parseBlockBody(pos, token.END)
			p.loopDepth--
			p.expect(token.END, "to close 'for'")
			p.endStmt()
			return n
		}
	}
	p.reset(save)
	return p.parseCStyleFor(pos)
}

func (p *Parser) parseCStyleFor(pos token.Pos) ast.Stmt {
	n := ast.Alloc[ast.For](p.arena)
	n.Pos = pos
	if !p.check(token.SEMICOLON) {
		n.Init = p.parseSimpleStmt()
	}
	p.expect(token.SEMICOLON, "after for-loop initializer")
	if !p.check(token.SEMICOLON) {
		n.Cond = p.parseExpression()
	}
	p.expect(token.SEMICOLON, "after for-loop condition")
	if !p.check(token.DO) {
		n.Step = p.parseExpression()
	}
	p.match(token.DO)
	p.loopDepth++
	n.Body = p.parseBlockBody(pos, token.END)
	p.loopDepth--
	p.expect(token.END, "to close 'for'")
	p.endStmt()
	return n
}

// parseSimpleStmt parses a var-decl or bare expression without consuming
// its terminator, for use inside a for-loop's init clause.
func (p *Parser) parseSimpleStmt() ast.Stmt {
	if p.check(token.VAR) {
		pos := p.advance().Pos
		name := p.expect(token.IDENT, "after 'var'").Lexeme
		n := ast.Alloc[ast.VarDecl](p.arena)
		n.Pos = pos
		n.Name = name
		if p.match(token.ASSIGN) {
			n.Init = p.parseExpression()
		}
		return n
	}
	expr := p.parseExpression()
	n := ast.Alloc[ast.ExprStmt](p.arena)
	n.Pos = expr.Position()
	n.X = expr
	return n
}

func (p *Parser) parseTry() ast.Stmt {
	pos := p.advance().Pos // 'try'
	n := ast.Alloc[ast.Try](p.arena)
	n.Pos = pos
	n.Body = p.parseBlockBody(pos, token.EXCEPT, token.ENSURE, token.END)
	for p.check(token.EXCEPT) {
		epos := p.advance().Pos
		clause := ast.ExceptClause{Pos: epos}
		clause.Class = p.parseTernary()
		if p.check(token.IDENT) {
			clause.BindName = p.advance().Lexeme
		}
		clause.Body = p.parseBlockBody(epos, token.EXCEPT, token.ENSURE, token.END)
		n.Excepts = append(n.Excepts, clause)
	}
	if p.match(token.ENSURE) {
		n.Ensure = p.parseBlockBody(pos, token.END)
	}
	p.expect(token.END, "to close 'try'")
	p.endStmt()
	return n
}

func (p *Parser) parseRaise() ast.Stmt {
	pos := p.advance().Pos // 'raise'
	n := ast.Alloc[ast.Raise](p.arena)
	n.Pos = pos
	n.Value = p.parseExpression()
	p.endStmt()
	return n
}

func (p *Parser) parseWith() ast.Stmt {
	pos := p.advance().Pos // 'with'
	n := ast.Alloc[ast.With](p.arena)
	n.Pos = pos
	n.Resource = p.parseExpression()
	p.expect(token.AS, "in 'with' statement")
	n.Var = p.expect(token.IDENT, "after 'as'").Lexeme
	n.Body = p.parseBlockBody(pos, token.END)
	p.expect(token.END, "to close 'with'")
	p.endStmt()
	return n
}

func (p *Parser) parseReturn() ast.Stmt {
	pos := p.advance().Pos // 'return'
	if len(p.funcStack) == 0 {
		p.errorf("'return' outside a function")
	}
	n := ast.Alloc[ast.Return](p.arena)
	n.Pos = pos
	if !p.check(token.NEWLINE) && !p.check(token.SEMICOLON) && !p.check(token.EOF) && !p.check(token.END) {
		n.Value = p.parseExpression()
	}
	p.endStmt()
	return n
}

func (p *Parser) parseImport() ast.Stmt {
	pos := p.advance().Pos // 'import'
	n := ast.Alloc[ast.Import](p.arena)
	n.Pos = pos
	n.Path = append(n.Path, p.expect(token.IDENT, "after 'import'").Lexeme)
	for p.match(token.DOT) {
		n.Path = append(n.Path, p.expect(token.IDENT, "in module path").Lexeme)
	}
	switch {
	case p.match(token.AS):
		n.As = p.expect(token.IDENT, "after 'as'").Lexeme
	case p.match(token.FOR):
		n.Names = append(n.Names, p.expect(token.IDENT, "in import list").Lexeme)
		for p.match(token.COMMA) {
			n.Names = append(n.Names, p.expect(token.IDENT, "in import list").Lexeme)
		}
	}
	p.endStmt()
	return n
}
