package wrapper

import (
	"errors"
	"strings"
	"unicode/utf16"
)

// MaxCodeLength is the longest accepted code, in UTF-16 code units
const MaxCodeLength = 8192

var (
	ErrCodeTooLong      = errors.New("Code is too long")
	ErrFunctionNotFound = errors.New("Function name not found")
)

// Shape describes the declared parameter list of the entry function. A
// function that declares no parameters is called without arguments unless
// the input is spread.
type Shape string

const (
	ShapeNone         Shape = "none"
	ShapeSingle       Shape = "single"
	ShapeDestructured Shape = "destructured"
	ShapeMultiple     Shape = "multiple"
	ShapeRest         Shape = "rest"
)

// Program is user code prepared for a sandbox
type Program struct {
	// Source evaluates to the entry function. Declarations live in a
	// private function scope, never on the global object.
	Source string
	Name   string
	Shape  Shape
}

// Wrap validates code and builds the program that yields its first
// top-level function declaration.
func Wrap(code string) (*Program, error) {
	if codeLength(code) > MaxCodeLength {
		return nil, ErrCodeTooLong
	}

	l := lex(code)
	stripped, mask := l.out.String(), l.mask.String()

	decl, ok := findDeclaration(mask)
	if !ok {
		return nil, ErrFunctionNotFound
	}

	params := splitParams(stripped[decl.paramsStart:decl.paramsEnd], mask[decl.paramsStart:decl.paramsEnd])

	var b strings.Builder
	b.Grow(len(stripped) + len(decl.name) + 40)
	b.WriteString("(function () {\n")
	b.WriteString(stripped)
	b.WriteString("\n;return ")
	b.WriteString(decl.name)
	b.WriteString(";\n})()")

	return &Program{
		Source: b.String(),
		Name:   decl.name,
		Shape:  shapeOf(params),
	}, nil
}

// codeLength counts like JavaScript's String.prototype.length
func codeLength(code string) int {
	n := 0
	for _, r := range code {
		if l := utf16.RuneLen(r); l > 0 {
			n += l
		} else {
			n++
		}
	}
	return n
}

type declaration struct {
	name        string
	paramsStart int
	paramsEnd   int
}

// findDeclaration scans the mask for the first function declaration at
// nesting depth zero. A "function" keyword only declares when it starts a
// statement: at the beginning, after ; or }, or after a line break that
// ends the previous statement.
func findDeclaration(mask string) (declaration, bool) {
	depth := 0
	for i := 0; i < len(mask); i++ {
		switch mask[i] {
		case '(', '[', '{':
			depth++
			continue
		case ')', ']', '}':
			depth--
			continue
		}
		if depth != 0 || !wordAt(mask, i, "function") {
			continue
		}

		stmtStart := i
		if j := prevWordStart(mask, i, "async"); j >= 0 {
			stmtStart = j
		}
		if !startsStatement(mask, stmtStart) {
			continue
		}

		if d, ok := parseSignature(mask, i+len("function")); ok {
			return d, true
		}
	}
	return declaration{}, false
}

func wordAt(s string, i int, word string) bool {
	if !strings.HasPrefix(s[i:], word) {
		return false
	}
	if i > 0 && isIdentByte(s[i-1]) {
		return false
	}
	end := i + len(word)
	return end >= len(s) || !isIdentByte(s[end])
}

// prevWordStart returns the index of word if it is the token right before
// i on the same line, or -1.
func prevWordStart(s string, i int, word string) int {
	j := i - 1
	for j >= 0 && (s[j] == ' ' || s[j] == '\t') {
		j--
	}
	start := j + 1 - len(word)
	if start < 0 || !wordAt(s, start, word) || start+len(word) != j+1 {
		return -1
	}
	return start
}

func startsStatement(s string, i int) bool {
	newline := false
	j := i - 1
	for ; j >= 0 && isSpace(s[j]); j-- {
		if s[j] == '\n' || s[j] == '\r' {
			newline = true
		}
	}
	if j < 0 {
		return true
	}

	switch c := s[j]; {
	case c == ';' || c == '}':
		return true
	case newline && (isIdentByte(c) || c == ')' || c == ']' || c == '`' || c == '\'' || c == '"'):
		return !continuesExpression(s[:j+1])
	}
	return false
}

// continuesExpression reports whether src ends with a keyword that takes an
// operand, such as "return" or "new", so a following function is an
// expression.
func continuesExpression(src string) bool {
	end := len(src)
	start := end
	for start > 0 && isIdentByte(src[start-1]) {
		start--
	}
	return regexKeywords[src[start:end]] && src[start:end] != "else" && src[start:end] != "do"
}

func parseSignature(mask string, i int) (declaration, bool) {
	i = skipSpace(mask, i)
	if i < len(mask) && mask[i] == '*' {
		i = skipSpace(mask, i+1)
	}

	start := i
	for i < len(mask) && isIdentByte(mask[i]) {
		i++
	}
	if i == start || ('0' <= mask[start] && mask[start] <= '9') {
		return declaration{}, false
	}
	name := mask[start:i]

	i = skipSpace(mask, i)
	if i >= len(mask) || mask[i] != '(' {
		return declaration{}, false
	}

	open := i
	depth := 0
	for ; i < len(mask); i++ {
		switch mask[i] {
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			depth--
			if depth == 0 {
				return declaration{name: name, paramsStart: open + 1, paramsEnd: i}, true
			}
		}
	}
	return declaration{}, false
}

func skipSpace(s string, i int) int {
	for i < len(s) && isSpace(s[i]) {
		i++
	}
	return i
}

// splitParams splits a parameter list at top-level commas. text and mask
// are aligned; the mask decides where the commas are.
func splitParams(text, mask string) []string {
	var params []string
	depth, start := 0, 0
	flush := func(end int) {
		if p := strings.TrimSpace(text[start:end]); p != "" {
			params = append(params, p)
		}
	}

	for i := 0; i < len(mask); i++ {
		switch mask[i] {
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			depth--
		case ',':
			if depth == 0 {
				flush(i)
				start = i + 1
			}
		}
	}
	flush(len(mask))
	return params
}

func shapeOf(params []string) Shape {
	for _, p := range params {
		if strings.HasPrefix(p, "...") {
			return ShapeRest
		}
	}
	switch {
	case len(params) == 0:
		return ShapeNone
	case len(params) > 1:
		return ShapeMultiple
	case strings.HasPrefix(params[0], "{") || strings.HasPrefix(params[0], "["):
		return ShapeDestructured
	}
	return ShapeSingle
}
