// Package lexer turns J* source bytes into a stream of internal/token
// tokens, tracking cursor position plus line/column for diagnostics. It
// adds a rewind operation the parser needs to backtrack over one
// previously emitted token when disambiguating positional from
// defaulted parameters.
package lexer

import (
	"strings"
	"unicode/utf8"

	"jstar/internal/token"
)

// Lexer scans a byte buffer on demand; it holds no heap state beyond its
// cursor and a one-token rewind buffer.
type Lexer struct {
	src    string
	pos    int
	line   int
	column int

	// prev remembers the lexer's cursor state immediately before the last
	// token returned by Next, so that Rewind can restore it.
	prevPos    int
	prevLine   int
	prevColumn int
}

// New creates a Lexer over src, a complete source file or REPL line.
func New(src string) *Lexer {
	return &Lexer{src: src, pos: 0, line: 1, column: 1}
}

func (l *Lexer) atEnd() bool { return l.pos >= len(l.src) }

func (l *Lexer) current() byte {
	if l.atEnd() {
		return 0
	}
	return l.src[l.pos]
}

func (l *Lexer) peekAt(offset int) byte {
	if l.pos+offset >= len(l.src) {
		return 0
	}
	return l.src[l.pos+offset]
}

func (l *Lexer) advance() byte {
	c := l.current()
	l.pos++
	if c == '\n' {
		l.line++
		l.column = 1
	} else {
		l.column++
	}
	return c
}

func (l *Lexer) match(c byte) bool {
	if l.current() != c {
		return false
	}
	l.advance()
	return true
}

// Rewind resets the cursor to just before tok, the last token this Lexer
// produced. Only a single token of rewind is supported, which is all the
// parser's default-argument lookahead needs.
func (l *Lexer) Rewind(tok token.Token) {
	l.pos = l.prevPos
	l.line = l.prevLine
	l.column = l.prevColumn
}

// Next scans and returns the next token, skipping whitespace and comments.
// Newlines are significant outside bracketed expressions and are returned
// as token.NEWLINE rather than being skipped.
func (l *Lexer) Next() token.Token {
	l.prevPos, l.prevLine, l.prevColumn = l.pos, l.line, l.column
	l.skipInsignificant()

	startLine, startCol := l.line, l.column
	pos := token.Pos{Line: startLine, Column: startCol}

	if l.atEnd() {
		return token.New(token.EOF, "", pos)
	}

	c := l.current()
	switch {
	case c == '\n':
		l.advance()
		return token.New(token.NEWLINE, "\n", pos)
	case isDigit(c):
		return l.readNumber(pos)
	case isAlpha(c) || c == '_':
		return l.readIdentifier(pos)
	case c == '"' || c == '\'':
		return l.readString(pos, c)
	}

	l.advance()
	switch c {
	case '+':
		if l.match('=') {
			return token.New(token.PLUS_ASSIGN, "+=", pos)
		}
		return token.New(token.PLUS, "+", pos)
	case '-':
		if l.match('=') {
			return token.New(token.MINUS_ASSIGN, "-=", pos)
		}
		if l.match('>') {
			return token.New(token.ARROW, "->", pos)
		}
		return token.New(token.MINUS, "-", pos)
	case '*':
		if l.match('*') {
			return token.New(token.POW, "**", pos)
		}
		if l.match('=') {
			return token.New(token.STAR_ASSIGN, "*=", pos)
		}
		return token.New(token.STAR, "*", pos)
	case '/':
		if l.match('=') {
			return token.New(token.SLASH_ASSIGN, "/=", pos)
		}
		return token.New(token.SLASH, "/", pos)
	case '%':
		if l.match('=') {
			return token.New(token.PERCENT_ASSIGN, "%=", pos)
		}
		return token.New(token.PERCENT, "%", pos)
	case '=':
		if l.match('=') {
			return token.New(token.EQ, "==", pos)
		}
		return token.New(token.ASSIGN, "=", pos)
	case '!':
		if l.match('=') {
			return token.New(token.NE, "!=", pos)
		}
		// `!` is the symbolic spelling of `not`.
		return token.New(token.NOT, "!", pos)
	case '<':
		if l.match('<') {
			return token.New(token.SHL, "<<", pos)
		}
		if l.match('=') {
			return token.New(token.LE, "<=", pos)
		}
		return token.New(token.LT, "<", pos)
	case '>':
		if l.match('>') {
			return token.New(token.SHR, ">>", pos)
		}
		if l.match('=') {
			return token.New(token.GE, ">=", pos)
		}
		return token.New(token.GT, ">", pos)
	case '&':
		return token.New(token.BAND, "&", pos)
	case '|':
		return token.New(token.BOR, "|", pos)
	case '^':
		return token.New(token.BXOR, "^", pos)
	case '~':
		return token.New(token.BNOT, "~", pos)
	case '#':
		if l.match('#') {
			return token.New(token.DHASH, "##", pos)
		}
		return token.New(token.HASH, "#", pos)
	case '(':
		return token.New(token.LPAREN, "(", pos)
	case ')':
		return token.New(token.RPAREN, ")", pos)
	case '{':
		return token.New(token.LBRACE, "{", pos)
	case '}':
		return token.New(token.RBRACE, "}", pos)
	case '[':
		return token.New(token.LBRACKET, "[", pos)
	case ']':
		return token.New(token.RBRACKET, "]", pos)
	case ',':
		return token.New(token.COMMA, ",", pos)
	case ';':
		return token.New(token.SEMICOLON, ";", pos)
	case ':':
		return token.New(token.COLON, ":", pos)
	case '@':
		return token.New(token.AT, "@", pos)
	case '.':
		if l.current() == '.' && l.peekAt(1) == '.' {
			l.advance()
			l.advance()
			return token.New(token.ELLIPSIS, "...", pos)
		}
		return token.New(token.DOT, ".", pos)
	}

	return token.New(token.INVALID, string(c), pos)
}

// skipInsignificant consumes spaces, tabs, carriage returns, and both
// comment forms. Newlines are left for Next to tokenize since they carry
// statement-termination meaning.
func (l *Lexer) skipInsignificant() {
	for {
		c := l.current()
		switch {
		case c == ' ' || c == '\t' || c == '\r':
			l.advance()
		case c == '/' && l.peekAt(1) == '/':
			for l.current() != '\n' && !l.atEnd() {
				l.advance()
			}
		case c == '/' && l.peekAt(1) == '*':
			l.advance()
			l.advance()
			for !l.atEnd() && !(l.current() == '*' && l.peekAt(1) == '/') {
				l.advance()
			}
			if !l.atEnd() {
				l.advance()
				l.advance()
			}
		default:
			return
		}
	}
}

func (l *Lexer) readNumber(pos token.Pos) token.Token {
	start := l.pos
	if l.current() == '0' && (l.peekAt(1) == 'x' || l.peekAt(1) == 'X') {
		l.advance()
		l.advance()
		for isHexDigit(l.current()) {
			l.advance()
		}
		return token.New(token.NUMBER, l.src[start:l.pos], pos)
	}
	for isDigit(l.current()) {
		l.advance()
	}
	if l.current() == '.' && isDigit(l.peekAt(1)) {
		l.advance()
		for isDigit(l.current()) {
			l.advance()
		}
	}
	if l.current() == 'e' || l.current() == 'E' {
		save := l.pos
		l.advance()
		if l.current() == '+' || l.current() == '-' {
			l.advance()
		}
		if isDigit(l.current()) {
			for isDigit(l.current()) {
				l.advance()
			}
		} else {
			l.pos = save
		}
	}
	return token.New(token.NUMBER, l.src[start:l.pos], pos)
}

func (l *Lexer) readIdentifier(pos token.Pos) token.Token {
	start := l.pos
	for isAlphaNumeric(l.current()) || l.current() == '_' {
		l.advance()
	}
	lexeme := l.src[start:l.pos]
	return token.New(token.Lookup(lexeme), lexeme, pos)
}

// readString scans a quoted string literal, expanding \n \t \\ \" \xHH and
// \uXXXX escapes into a decoded buffer. An unterminated string yields a
// token.UNTERMINATED_STRING token carrying what was scanned so far, which
// the parser reports as a syntax error.
func (l *Lexer) readString(pos token.Pos, quote byte) token.Token {
	l.advance() // opening quote
	var b strings.Builder
	for l.current() != quote {
		if l.atEnd() || l.current() == '\n' {
			return token.New(token.UNTERMINATED_STRING, b.String(), pos)
		}
		c := l.advance()
		if c != '\\' {
			b.WriteByte(c)
			continue
		}
		esc := l.advance()
		switch esc {
		case 'n':
			b.WriteByte('\n')
		case 't':
			b.WriteByte('\t')
		case 'r':
			b.WriteByte('\r')
		case '\\':
			b.WriteByte('\\')
		case '"':
			b.WriteByte('"')
		case '\'':
			b.WriteByte('\'')
		case '0':
			b.WriteByte(0)
		case 'x':
			hi, lo := l.advance(), l.advance()
			b.WriteByte(hexVal(hi)<<4 | hexVal(lo))
		case 'u':
			var r rune
			for i := 0; i < 4; i++ {
				r = r<<4 | rune(hexVal(l.advance()))
			}
			var buf [utf8.UTFMax]byte
			n := utf8.EncodeRune(buf[:], r)
			b.Write(buf[:n])
		case 'U':
			var r rune
			for i := 0; i < 8; i++ {
				r = r<<4 | rune(hexVal(l.advance()))
			}
			var buf [utf8.UTFMax]byte
			n := utf8.EncodeRune(buf[:], r)
			b.Write(buf[:n])
		default:
			b.WriteByte(esc)
		}
	}
	l.advance() // closing quote
	return token.New(token.STRING, b.String(), pos)
}

func hexVal(c byte) byte {
	switch {
	case c >= '0' && c <= '9':
		return c - '0'
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10
	}
	return 0
}

func isDigit(c byte) bool         { return c >= '0' && c <= '9' }
func isHexDigit(c byte) bool      { return isDigit(c) || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F') }
func isAlpha(c byte) bool         { return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') }
func isAlphaNumeric(c byte) bool  { return isAlpha(c) || isDigit(c) }

// All tokenizes the entire source into a flat token list, ending with
// the EOF token; the parser, the REPL and the tests use it.
func (l *Lexer) All() []token.Token {
	toks := make([]token.Token, 0, 64)
	for {
		t := l.Next()
		toks = append(toks, t)
		if t.Kind == token.EOF {
			return toks
		}
	}
}
