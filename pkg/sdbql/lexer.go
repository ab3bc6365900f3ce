package sdbql

import (
	"strings"
	"unicode"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokKeyword
	tokNumber
	tokString
	tokPunct
)

type token struct {
	kind tokenKind
	text string
}

var keywords = map[string]bool{
	"FOR": true, "IN": true, "FILTER": true, "SORT": true, "ASC": true,
	"DESC": true, "LIMIT": true, "COLLECT": true, "AGGREGATE": true,
	"RETURN": true, "INSERT": true, "UPDATE": true, "REMOVE": true,
	"UPSERT": true, "INTO": true, "WITH": true, "AND": true, "OR": true,
	"NOT": true, "NULL": true, "TRUE": true, "FALSE": true,
}

type lexer struct {
	src  []rune
	pos  int
	toks []token
}

func tokenize(src string) ([]token, error) {
	l := &lexer{src: []rune(src)}
	for {
		l.skipSpace()
		if l.pos >= len(l.src) {
			break
		}
		c := l.src[l.pos]
		switch {
		case c == '.' && l.peekAt(1) == '.':
			l.toks = append(l.toks, token{tokPunct, ".."})
			l.pos += 2
		case isIdentStart(c):
			l.readIdent()
		case unicode.IsDigit(c):
			l.readNumber()
		case c == '"' || c == '\'':
			if err := l.readString(c); err != nil {
				return nil, err
			}
		case strings.ContainsRune("(),.[]{}:", c):
			l.toks = append(l.toks, token{tokPunct, string(c)})
			l.pos++
		case strings.ContainsRune("=!<>+-*/%&|", c):
			l.readOperator()
		default:
			return nil, parseError("unexpected character %q", c)
		}
	}
	l.toks = append(l.toks, token{tokEOF, ""})
	return l.toks, nil
}

func (l *lexer) peekAt(n int) rune {
	if l.pos+n >= len(l.src) {
		return 0
	}
	return l.src[l.pos+n]
}

func (l *lexer) skipSpace() {
	for l.pos < len(l.src) && unicode.IsSpace(l.src[l.pos]) {
		l.pos++
	}
}

func isIdentStart(c rune) bool { return unicode.IsLetter(c) || c == '_' || c == '@' }
func isIdentCont(c rune) bool  { return unicode.IsLetter(c) || unicode.IsDigit(c) || c == '_' }

func (l *lexer) readIdent() {
	start := l.pos
	l.pos++
	for l.pos < len(l.src) && isIdentCont(l.src[l.pos]) {
		l.pos++
	}
	text := string(l.src[start:l.pos])
	upper := strings.ToUpper(text)
	if keywords[upper] {
		l.toks = append(l.toks, token{tokKeyword, upper})
		return
	}
	l.toks = append(l.toks, token{tokIdent, text})
}

func (l *lexer) readNumber() {
	start := l.pos
	for l.pos < len(l.src) && (unicode.IsDigit(l.src[l.pos]) || l.src[l.pos] == '.') {
		if l.src[l.pos] == '.' && l.peekAt(1) == '.' {
			break
		}
		l.pos++
	}
	l.toks = append(l.toks, token{tokNumber, string(l.src[start:l.pos])})
}

func (l *lexer) readString(quote rune) error {
	l.pos++
	var sb strings.Builder
	for l.pos < len(l.src) && l.src[l.pos] != quote {
		c := l.src[l.pos]
		if c == '\\' && l.pos+1 < len(l.src) {
			l.pos++
			c = l.src[l.pos]
		}
		sb.WriteRune(c)
		l.pos++
	}
	if l.pos >= len(l.src) {
		return parseError("unterminated string literal")
	}
	l.pos++
	l.toks = append(l.toks, token{tokString, sb.String()})
	return nil
}

var multiCharOps = []string{"==", "!=", "<=", ">=", "&&", "||"}

func (l *lexer) readOperator() {
	for _, op := range multiCharOps {
		if strings.HasPrefix(string(l.src[l.pos:]), op) {
			l.toks = append(l.toks, token{tokPunct, op})
			l.pos += len(op)
			return
		}
	}
	l.toks = append(l.toks, token{tokPunct, string(l.src[l.pos])})
	l.pos++
}
