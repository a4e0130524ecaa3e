package lexer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stcore/internal/token"
)

func collect(src string) []token.Token {
	l := New(src)
	var out []token.Token
	for {
		t := l.Next()
		out = append(out, t)
		if t.Kind == token.EOF {
			return out
		}
	}
}

func TestKeywordsCaseInsensitive(t *testing.T) {
	toks := collect("if ELSIF Then")
	require.Len(t, toks, 4)
	assert.Equal(t, token.IF, toks[0].Kind)
	assert.Equal(t, token.ELSIF, toks[1].Kind)
	assert.Equal(t, token.THEN, toks[2].Kind)
}

func TestIdentifierPreservesCase(t *testing.T) {
	toks := collect("myVar")
	require.Len(t, toks, 2)
	assert.Equal(t, token.IDENT, toks[0].Kind)
	assert.Equal(t, "myVar", toks[0].Lexeme)
}

func TestBlockCommentSkipped(t *testing.T) {
	toks := collect("x (* a comment *) := 1;")
	var kinds []token.Kind
	for _, tk := range toks {
		kinds = append(kinds, tk.Kind)
	}
	assert.Equal(t, []token.Kind{token.IDENT, token.ASSIGN, token.INT_LITERAL, token.SEMI, token.EOF}, kinds)
}

func TestTwoCharOperators(t *testing.T) {
	toks := collect(":= <> <= >= **")
	var kinds []token.Kind
	for _, tk := range toks {
		kinds = append(kinds, tk.Kind)
	}
	assert.Equal(t, []token.Kind{token.ASSIGN, token.NEQ, token.LE, token.GE, token.POW, token.EOF}, kinds)
}

func TestIntegerLiteralForms(t *testing.T) {
	toks := collect("42 0x1F 2#1010")
	require.Len(t, toks, 4)
	assert.Equal(t, "42", toks[0].Lexeme)
	assert.Equal(t, "0x1F", toks[1].Lexeme)
	assert.Equal(t, "2#1010", toks[2].Lexeme)
	for _, tk := range toks[:3] {
		assert.Equal(t, token.INT_LITERAL, tk.Kind)
	}
}

func TestRealLiteral(t *testing.T) {
	toks := collect("3.14 2.5e-3 7.")
	require.Len(t, toks, 5)
	assert.Equal(t, token.REAL_LITERAL, toks[0].Kind)
	assert.Equal(t, token.REAL_LITERAL, toks[1].Kind)
	// "7." with no following digit must not promote to real: the '.' is a
	// separate token and "7" stays an int literal.
	assert.Equal(t, token.INT_LITERAL, toks[2].Kind)
}

func TestStringLiteralWithEscape(t *testing.T) {
	toks := collect(`'it\'s' "a\"b"`)
	require.Len(t, toks, 3)
	assert.Equal(t, token.STRING_LITERAL, toks[0].Kind)
	assert.Equal(t, "it's", toks[0].Lexeme)
	assert.Equal(t, `a"b`, toks[1].Lexeme)
}

func TestUnrecognisedCharIsError(t *testing.T) {
	toks := collect("@")
	require.Len(t, toks, 2)
	assert.Equal(t, token.ERROR, toks[0].Kind)
	assert.Equal(t, "@", toks[0].Lexeme)
}

func TestEOFRepeats(t *testing.T) {
	l := New("")
	assert.Equal(t, token.EOF, l.Next().Kind)
	assert.Equal(t, token.EOF, l.Next().Kind)
	assert.Equal(t, token.EOF, l.Peek().Kind)
}

func TestPeekDoesNotConsume(t *testing.T) {
	l := New("x := 1;")
	first := l.Peek()
	second := l.Next()
	assert.Equal(t, first.Kind, second.Kind)
	assert.Equal(t, first.Lexeme, second.Lexeme)
}

func TestLineColumnTracking(t *testing.T) {
	l := New("a\nb")
	first := l.Next()
	assert.Equal(t, 1, first.Line)
	second := l.Next()
	assert.Equal(t, 2, second.Line)
}
