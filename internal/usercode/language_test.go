package usercode

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/AgentOS/usercode/internal/codec"
	"github.com/GriffinCanCode/AgentOS/usercode/internal/worker"
	"github.com/GriffinCanCode/AgentOS/usercode/internal/wrapper"
)

func TestCompileJavaScript(t *testing.T) {
	tests := []struct {
		name   string
		input  Input
		shape  wrapper.Shape
		spread bool
	}{
		{"no parameters", js(`function f() { return 1 }`, 1), wrapper.ShapeNone, false},
		{"single", js(echoCode, "x"), wrapper.ShapeSingle, false},
		{"spread rest", Input{Code: `function f(...xs) {}`, CodeLanguage: LanguageJavaScript, Input: []any{1}, ShouldSpreadInput: true}, wrapper.ShapeRest, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := compile(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.shape, req.Shape)
			assert.Equal(t, tt.spread, req.Spread)
			require.NotNil(t, req.Input)
			assert.NoError(t, req.Input.Validate())
		})
	}
}

func TestCompileRejectsOversizedInput(t *testing.T) {
	_, err := compile(js(echoCode, make([]byte, worker.MaxFrameSize)))
	assert.ErrorIs(t, err, ErrInputTooLarge)

	req, err := compile(js(echoCode, make([]byte, 1<<10)))
	require.NoError(t, err)
	v, err := codec.Decode(req.Input)
	require.NoError(t, err)
	assert.Len(t, v, 1<<10)
}
