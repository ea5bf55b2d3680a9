package wkt

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode"
)

// TokenType is the kind of a lexical token.
type TokenType int

const (
	TokenIdent TokenType = iota + 1
	TokenNumber
	TokenChar
)

// Token is one lexical unit of WKT text.
type Token struct {
	Type   TokenType
	Text   string  // raw text; identifiers are upper-cased
	Number float64 // value of a TokenNumber
	Offset int64   // byte offset of the first character
}

// Is reports whether t is the punctuation character c.
func (t *Token) Is(c rune) bool {
	return t != nil && t.Type == TokenChar && t.Text == string(c)
}

func (t *Token) String() string {
	if t == nil {
		return "end of input"
	}
	switch t.Type {
	case TokenIdent:
		return fmt.Sprintf("identifier %q", t.Text)
	case TokenNumber:
		return fmt.Sprintf("number %s", t.Text)
	}
	return fmt.Sprintf("%q", t.Text)
}

// Lexer splits WKT text into identifiers, numbers and single punctuation
// characters. It holds at most one pushed-back token.
type Lexer struct {
	r        *bufio.Reader
	offset   int64
	lastSize int
	pushed   *Token
}

// NewLexer returns a lexer reading from r.
func NewLexer(r io.Reader) *Lexer {
	br, ok := r.(*bufio.Reader)
	if !ok {
		br = bufio.NewReader(r)
	}
	return &Lexer{r: br}
}

// Offset is the byte offset of the next unread character.
func (l *Lexer) Offset() int64 { return l.offset }

// Push returns t to the lexer so the next call to Next yields it again.
// Pushing twice without an intervening Next is a programming error.
func (l *Lexer) Push(t *Token) {
	if l.pushed != nil {
		panic("wkt: lexer pushback slot already holds " + l.pushed.String())
	}
	l.pushed = t
}

// Next returns the next token, or io.EOF when the input is exhausted.
func (l *Lexer) Next() (*Token, error) {
	if t := l.pushed; t != nil {
		l.pushed = nil
		return t, nil
	}
	c, err := l.skipSpace()
	if err != nil {
		return nil, err
	}
	start := l.offset - int64(l.lastSize)
	switch {
	case unicode.IsLetter(c):
		return l.ident(c, start)
	case c >= '0' && c <= '9', c == '-', c == '+', c == '.':
		return l.number(c, start)
	}
	return &Token{Type: TokenChar, Text: string(c), Offset: start}, nil
}

func (l *Lexer) read() (rune, error) {
	c, size, err := l.r.ReadRune()
	if err != nil {
		return 0, err
	}
	l.offset += int64(size)
	l.lastSize = size
	return c, nil
}

func (l *Lexer) unread() {
	if err := l.r.UnreadRune(); err == nil {
		l.offset -= int64(l.lastSize)
		l.lastSize = 0
	}
}

func (l *Lexer) skipSpace() (rune, error) {
	for {
		c, err := l.read()
		if err != nil {
			return 0, err
		}
		if !unicode.IsSpace(c) {
			return c, nil
		}
	}
}

// ident reads a run of letters. Whitespace ends it, so "POINT Z" lexes as the
// identifiers "POINT" and "Z".
func (l *Lexer) ident(first rune, start int64) (*Token, error) {
	var sb strings.Builder
	sb.WriteRune(unicode.ToUpper(first))
	for {
		c, err := l.read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if unicode.IsLetter(c) {
			sb.WriteRune(unicode.ToUpper(c))
			continue
		}
		l.unread()
		break
	}
	return &Token{Type: TokenIdent, Text: sb.String(), Offset: start}, nil
}

// number reads an optional sign, digits with at most one decimal point and an
// optional exponent. A second decimal point ends the number and is left in
// the input, so "1.2.3" lexes as 1.2 followed by .3.
func (l *Lexer) number(first rune, start int64) (*Token, error) {
	var sb strings.Builder
	sb.WriteRune(first)
	seenDot := first == '.'
	seenExp := false
	for {
		c, err := l.read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		switch {
		case c >= '0' && c <= '9':
			sb.WriteRune(c)
			continue
		case c == '.' && !seenDot && !seenExp:
			seenDot = true
			sb.WriteRune(c)
			continue
		case (c == 'e' || c == 'E') && !seenExp:
			seenExp = true
			sb.WriteRune(c)
			if next, err := l.read(); err == nil {
				if next == '-' || next == '+' {
					sb.WriteRune(next)
				} else {
					l.unread()
				}
			}
			continue
		}
		l.unread()
		break
	}
	text := sb.String()
	v, err := strconv.ParseFloat(text, 64)
	if err != nil {
		tok := &Token{Type: TokenNumber, Text: text, Offset: start}
		return nil, newSyntaxError(tok, "malformed number")
	}
	return &Token{Type: TokenNumber, Text: text, Number: v, Offset: start}, nil
}
