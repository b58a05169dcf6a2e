package rotation

import (
	"strings"
	"unicode"
)

// TokenKind classifies a rule token.
type TokenKind int

const (
	// TokenNumber is an integer or decimal literal.
	TokenNumber TokenKind = iota
	// TokenWord is an identifier, possibly dotted; words are lower-cased.
	TokenWord
	// TokenSymbol is any other single character.
	TokenSymbol
)

func (k TokenKind) String() string {
	switch k {
	case TokenNumber:
		return "number"
	case TokenWord:
		return "word"
	default:
		return "symbol"
	}
}

// Token is one lexical unit of a rule.
type Token struct {
	Kind     TokenKind
	Value    string
	Position int
}

// Tokenize splits a single rule into tokens. Whitespace separates tokens
// but is otherwise ignored, so "3kb" and "3 kb" tokenize the same.
func Tokenize(rule string) []Token {
	var (
		tokens []Token
		pos    int
		input  = []rune(rule)
	)

	for pos < len(input) {
		ch := input[pos]
		start := pos

		switch {
		case unicode.IsSpace(ch):
			pos++
		case unicode.IsDigit(ch):
			pos = readNumber(input, pos)
			tokens = append(tokens, Token{Kind: TokenNumber, Value: string(input[start:pos]), Position: start})
		case unicode.IsLetter(ch) || ch == '_':
			pos = readWord(input, pos)
			word := strings.ToLower(string(input[start:pos]))
			tokens = append(tokens, Token{Kind: TokenWord, Value: word, Position: start})
		default:
			pos++
			tokens = append(tokens, Token{Kind: TokenSymbol, Value: string(ch), Position: start})
		}
	}
	return tokens
}

// readNumber consumes digits with at most one decimal point followed by a
// digit.
func readNumber(input []rune, pos int) int {
	seenDot := false
	for pos < len(input) {
		ch := input[pos]
		switch {
		case unicode.IsDigit(ch):
			pos++
		case ch == '.' && !seenDot && pos+1 < len(input) && unicode.IsDigit(input[pos+1]):
			seenDot = true
			pos++
		default:
			return pos
		}
	}
	return pos
}

// readWord consumes letters, digits, underscores and inner dots.
func readWord(input []rune, pos int) int {
	for pos < len(input) {
		ch := input[pos]
		switch {
		case unicode.IsLetter(ch), unicode.IsDigit(ch), ch == '_':
			pos++
		case ch == '.' && pos+1 < len(input) && (unicode.IsLetter(input[pos+1]) || input[pos+1] == '_'):
			pos++
		default:
			return pos
		}
	}
	return pos
}

// Kinds returns the kind sequence of tokens; rule classes match on it.
func Kinds(tokens []Token) []TokenKind {
	kinds := make([]TokenKind, len(tokens))
	for i, t := range tokens {
		kinds[i] = t.Kind
	}
	return kinds
}
