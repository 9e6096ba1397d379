package lexer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"jstar/internal/token"
)

func kinds(toks []token.Token) []token.Kind {
	out := make([]token.Kind, 0, len(toks))
	for _, t := range toks {
		if t.Kind == token.EOF {
			continue
		}
		out = append(out, t.Kind)
	}
	return out
}

func TestLexer_Operators(t *testing.T) {
	toks := kinds(New(`+ - += << ** ...`).All())
	assert.Equal(t, []token.Kind{
		token.PLUS, token.MINUS, token.PLUS_ASSIGN, token.SHL, token.POW, token.ELLIPSIS,
	}, toks)
}

func TestLexer_Keywords(t *testing.T) {
	toks := kinds(New(`fun var if elif else while for in class is`).All())
	assert.Equal(t, []token.Kind{
		token.FUN, token.VAR, token.IF, token.ELIF, token.ELSE,
		token.WHILE, token.FOR, token.IN, token.CLASS, token.IS,
	}, toks)
}

func TestLexer_Numbers(t *testing.T) {
	toks := New(`42 3.14 0xFF 1e10 2.5e-3`).All()
	for _, tk := range toks {
		if tk.Kind == token.EOF {
			continue
		}
		assert.Equal(t, token.NUMBER, tk.Kind)
	}
}

func TestLexer_StringEscapes(t *testing.T) {
	toks := New(`"hello\nworld" 'a\tb'`).All()
	assert.Equal(t, "hello\nworld", toks[0].Lexeme)
	assert.Equal(t, "a\tb", toks[1].Lexeme)
}

func TestLexer_NewlineSignificant(t *testing.T) {
	toks := kinds(New("var x = 1\nvar y = 2").All())
	assert.Contains(t, toks, token.NEWLINE)
}

func TestLexer_Rewind(t *testing.T) {
	lx := New(`fun(a = 1)`)
	lx.Next() // fun
	lx.Next() // (
	ident := lx.Next()
	assert.Equal(t, token.IDENT, ident.Kind)
	eq := lx.Next()
	assert.Equal(t, token.ASSIGN, eq.Kind)
	lx.Rewind(eq)
	replay := lx.Next()
	assert.Equal(t, token.ASSIGN, replay.Kind)
}
