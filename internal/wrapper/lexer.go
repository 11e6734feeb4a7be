package wrapper

import "strings"

// keywords after which a slash starts a regular expression rather than a
// division
var regexKeywords = map[string]bool{
	"return": true, "typeof": true, "instanceof": true, "in": true, "of": true,
	"new": true, "delete": true, "void": true, "throw": true, "case": true,
	"do": true, "else": true, "yield": true, "await": true,
}

// lexer walks JavaScript source once and produces two aligned copies: the
// source without comments, and a mask of it in which the contents of string,
// template and regular expression literals are blanked out. The mask is what
// the declaration scanner reads, so a "function" inside a string never
// matches.
type lexer struct {
	src  string
	pos  int
	out  strings.Builder
	mask strings.Builder

	// open braces per enclosing ${ } expression
	exprDepth []int
	inTmpl    bool

	prev byte
	word string
}

// StripComments removes block and line comments from code. String, template
// and regular expression literals are copied untouched, so "//" inside
// them survives. A block comment spanning lines becomes a newline so
// automatic semicolon insertion is unaffected.
func StripComments(code string) string {
	l := lex(code)
	return l.out.String()
}

func lex(code string) *lexer {
	l := &lexer{src: code}
	l.out.Grow(len(code))
	l.mask.Grow(len(code))
	l.run()
	return l
}

func (l *lexer) run() {
	for l.pos < len(l.src) {
		if l.inTmpl {
			l.template()
			continue
		}

		c := l.src[l.pos]
		switch {
		case c == '/' && l.peek(1) == '/':
			l.lineComment()
		case c == '/' && l.peek(1) == '*':
			l.blockComment()
		case c == '/' && l.regexAllowed():
			l.regex()
		case c == '\'' || c == '"':
			l.str(c)
		case c == '`':
			l.code(c)
			l.pos++
			l.inTmpl = true
		case c == '{':
			if n := len(l.exprDepth); n > 0 {
				l.exprDepth[n-1]++
			}
			l.code(c)
			l.pos++
		case c == '}':
			l.code(c)
			l.pos++
			if n := len(l.exprDepth); n > 0 {
				if l.exprDepth[n-1] == 0 {
					l.exprDepth = l.exprDepth[:n-1]
					l.inTmpl = true
				} else {
					l.exprDepth[n-1]--
				}
			}
		default:
			l.code(c)
			l.pos++
		}
	}
}

func (l *lexer) peek(off int) byte {
	if l.pos+off < len(l.src) {
		return l.src[l.pos+off]
	}
	return 0
}

// code emits a byte of program text to both outputs
func (l *lexer) code(c byte) {
	l.out.WriteByte(c)
	l.mask.WriteByte(c)

	switch {
	case isIdentByte(c):
		if isIdentByte(l.prev) {
			l.word += string(c)
		} else {
			l.word = string(c)
		}
		l.prev = c
	case !isSpace(c):
		l.prev = c
		l.word = ""
	}
}

// literal emits literal content, blanked in the mask
func (l *lexer) literal(s string) {
	l.out.WriteString(s)
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			l.mask.WriteByte('\n')
		} else {
			l.mask.WriteByte(' ')
		}
	}
}

// operand marks the end of a literal; a slash after it divides
func (l *lexer) operand() {
	l.prev = ')'
	l.word = ""
}

func (l *lexer) regexAllowed() bool {
	switch {
	case l.prev == 0:
		return true
	case isIdentByte(l.prev):
		return regexKeywords[l.word]
	case l.prev == ')' || l.prev == ']' || l.prev == '}':
		return false
	}
	return true
}

func (l *lexer) lineComment() {
	end := strings.IndexByte(l.src[l.pos:], '\n')
	if end < 0 {
		l.pos = len(l.src)
		return
	}
	l.pos += end
}

func (l *lexer) blockComment() {
	body := l.src[l.pos+2:]
	end := strings.Index(body, "*/")
	if end < 0 {
		end = len(body)
		l.pos = len(l.src)
	} else {
		l.pos += 2 + end + 2
	}

	sep := byte(' ')
	if strings.ContainsAny(body[:end], "\n\r\u2028\u2029") {
		sep = '\n'
	}
	l.out.WriteByte(sep)
	l.mask.WriteByte(sep)
}

func (l *lexer) str(quote byte) {
	l.code(quote)
	start := l.pos + 1
	i := start
	for i < len(l.src) {
		c := l.src[i]
		if c == '\\' && i+1 < len(l.src) {
			i += 2
			continue
		}
		if c == quote || c == '\n' {
			break
		}
		i++
	}
	l.literal(l.src[start:min(i, len(l.src))])
	l.pos = i
	if i < len(l.src) && l.src[i] == quote {
		l.out.WriteByte(quote)
		l.mask.WriteByte(quote)
		l.pos++
	}
	l.operand()
}

func (l *lexer) template() {
	start := l.pos
	i := start
	for i < len(l.src) {
		c := l.src[i]
		if c == '\\' && i+1 < len(l.src) {
			i += 2
			continue
		}
		if c == '`' || (c == '$' && i+1 < len(l.src) && l.src[i+1] == '{') {
			break
		}
		i++
	}
	l.literal(l.src[start:min(i, len(l.src))])
	l.pos = i
	if i >= len(l.src) {
		return
	}

	l.inTmpl = false
	if l.src[i] == '`' {
		l.out.WriteByte('`')
		l.mask.WriteByte('`')
		l.pos++
		l.operand()
		return
	}
	l.out.WriteString("${")
	l.mask.WriteString("${")
	l.pos += 2
	l.exprDepth = append(l.exprDepth, 0)
	l.prev = '{'
	l.word = ""
}

func (l *lexer) regex() {
	l.out.WriteByte('/')
	l.mask.WriteByte('/')
	start := l.pos + 1
	i := start
	inClass := false
	for i < len(l.src) {
		c := l.src[i]
		if c == '\\' && i+1 < len(l.src) {
			i += 2
			continue
		}
		if c == '\n' {
			break
		}
		if c == '[' {
			inClass = true
		} else if c == ']' {
			inClass = false
		} else if c == '/' && !inClass {
			break
		}
		i++
	}
	l.literal(l.src[start:min(i, len(l.src))])
	l.pos = i
	if i < len(l.src) && l.src[i] == '/' {
		l.out.WriteByte('/')
		l.mask.WriteByte('/')
		l.pos++
	}
	l.operand()
}

func isIdentByte(c byte) bool {
	return c == '_' || c == '$' || c >= 0x80 ||
		('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z') || ('0' <= c && c <= '9')
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\v' || c == '\f'
}
