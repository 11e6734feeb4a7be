package wrapper

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStripComments(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"line comment", "a = 1 // one\nb = 2", "a = 1 \nb = 2"},
		{"block comment", "a /* x */ = 1", "a   = 1"},
		{"multiline block keeps line break", "return /* a\nb */ x", "return \n x"},
		{"url in string", `s = "http://x.y/*z*/"`, `s = "http://x.y/*z*/"`},
		{"single quotes", `s = 'a // b' // c`, `s = 'a // b' `},
		{"escaped quote", `s = "a\" // b" // c`, `s = "a\" // b" `},
		{"template", "s = `// not ${1 /* gone */} /* kept */`", "s = `// not ${1  } /* kept */`"},
		{"escaped backtick", "s = `a \\` // b` // c", "s = `a \\` // b` "},
		{"nested template", "s = `${`//inner`}` // c", "s = `${`//inner`}` "},
		{"regex literal", `r = /\/\/ not comment/g; // c`, `r = /\/\/ not comment/g; `},
		{"regex class", `r = /[/]/ // c`, `r = /[/]/ `},
		{"division", "x = a / b // c", "x = a / b "},
		{"regex after return", "return /a\\/b/.test(s) // c", "return /a\\/b/.test(s) "},
		{"unterminated block", "a /* never", "a  "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StripComments(tt.in))
		})
	}
}

func TestWrapFindsDeclaration(t *testing.T) {
	tests := []struct {
		name   string
		code   string
		fn     string
		shape  Shape
		params []string
	}{
		{"plain", `function test() { return "Hello"; }`, "test", ShapeNone, nil},
		{"async", `async function run(x) { return x }`, "run", ShapeSingle, []string{"x"}},
		{"generator", `function* gen(a, b) {}`, "gen", ShapeMultiple, []string{"a", "b"}},
		{"destructured", `function f({ a, b = [1, 2] }) {}`, "f", ShapeDestructured, []string{"{ a, b = [1, 2] }"}},
		{"rest", `function f(a, ...rest) {}`, "f", ShapeRest, []string{"a", "...rest"}},
		{"trailing comma", "function f(\n  a,\n  b,\n) {}", "f", ShapeMultiple, []string{"a", "b"}},
		{"default with call", `function f(a = g(1, 2)) {}`, "f", ShapeSingle, []string{"a = g(1, 2)"}},
		{"leading comment", "// function fake() {}\n/* function other() {} */\nfunction real() {}", "real", ShapeNone, nil},
		{"string mention", `const s = "function fake() {}"; function real() {}`, "real", ShapeNone, nil},
		{"helper after expression", "const g = function inner() {};\nfunction outer() { return g() }", "outer", ShapeNone, nil},
		{"nested ignored", "function outer() { function inner() {} return inner }", "outer", ShapeNone, nil},
		{"after statement without semicolon", "const x = 1\nfunction test() { return x }", "test", ShapeNone, nil},
		{"first of two", "function a() {}\nfunction b() {}", "a", ShapeNone, nil},
		{"unicode name", `function grüße() {}`, "grüße", ShapeNone, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := Wrap(tt.code)
			require.NoError(t, err)
			assert.Equal(t, tt.fn, p.Name)
			assert.Equal(t, tt.shape, p.Shape)

			l := lex(tt.code)
			stripped, mask := l.out.String(), l.mask.String()
			d, ok := findDeclaration(mask)
			require.True(t, ok)
			assert.Equal(t, tt.params, splitParams(stripped[d.paramsStart:d.paramsEnd], mask[d.paramsStart:d.paramsEnd]))
		})
	}
}

func TestWrapRejects(t *testing.T) {
	tests := []struct {
		name string
		code string
		err  error
	}{
		{"empty", "", ErrFunctionNotFound},
		{"arrow", "const test = () => 1", ErrFunctionNotFound},
		{"expression", "const test = function named() { return 1 }", ErrFunctionNotFound},
		{"async expression", "const test = async function named() {}", ErrFunctionNotFound},
		{"only in comment", "// function test() {}", ErrFunctionNotFound},
		{"only in string", `"function test() {}"`, ErrFunctionNotFound},
		{"anonymous", "(function () {})", ErrFunctionNotFound},
		{"returned expression", "return function f() {}", ErrFunctionNotFound},
		{"too long", "function test() { return 1 }" + strings.Repeat(" ", MaxCodeLength), ErrCodeTooLong},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Wrap(tt.code)
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestCodeLengthCountsUTF16Units(t *testing.T) {
	assert.Equal(t, 2, codeLength("ab"))
	assert.Equal(t, 1, codeLength("é"))
	assert.Equal(t, 2, codeLength("😀"))

	atLimit := "function f(){}" + strings.Repeat("a", MaxCodeLength-len("function f(){}"))
	_, err := Wrap(atLimit)
	assert.NoError(t, err)

	_, err = Wrap(atLimit + "a")
	assert.ErrorIs(t, err, ErrCodeTooLong)

	emoji := "function f(){}" + strings.Repeat("😀", (MaxCodeLength-len("function f(){}"))/2+1)
	_, err = Wrap(emoji)
	assert.ErrorIs(t, err, ErrCodeTooLong)
}

func TestWrapSource(t *testing.T) {
	p, err := Wrap("function test() { return 1 } // done")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(p.Source, "(function () {\n"))
	assert.Contains(t, p.Source, "function test() { return 1 }")
	assert.NotContains(t, p.Source, "// done")
	assert.True(t, strings.HasSuffix(p.Source, ";return test;\n})()"))
}
