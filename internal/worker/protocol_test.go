package worker

import (
	"bytes"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/AgentOS/usercode/internal/codec"
	"github.com/GriffinCanCode/AgentOS/usercode/internal/sandbox"
)

func TestEncoderDecoder(t *testing.T) {
	input, err := codec.Encode(map[string]any{"a": []any{1, "two"}})
	require.NoError(t, err)

	var buf bytes.Buffer
	enc := NewEncoder(&buf)
	require.NoError(t, enc.Encode(Request{ID: "job_1", Source: "x", Input: input, Spread: true}))
	require.NoError(t, enc.Encode(Request{ID: "job_2", Source: "y"}))

	assert.Equal(t, 2, strings.Count(buf.String(), "\n"))

	dec := NewDecoder(&buf)
	var first, second Request
	require.NoError(t, dec.Decode(&first))
	require.NoError(t, dec.Decode(&second))

	assert.Equal(t, "job_1", first.ID)
	assert.True(t, first.Spread)
	decoded, err := codec.Decode(first.Input)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a": []any{1.0, "two"}}, decoded)

	assert.Equal(t, "job_2", second.ID)
	assert.Nil(t, second.Input)

	var third Request
	assert.ErrorIs(t, dec.Decode(&third), io.EOF)
}

func TestFrameSize(t *testing.T) {
	req := Request{ID: "job_1", Source: strings.Repeat("x", 100), Shape: "single"}

	var buf bytes.Buffer
	require.NoError(t, NewEncoder(&buf).Encode(req))

	n, err := FrameSize(req)
	require.NoError(t, err)
	assert.Equal(t, buf.Len()-1, n)

	_, err = FrameSize(make(chan int))
	assert.Error(t, err)
}

func TestDecoderSkipsBlankLines(t *testing.T) {
	dec := NewDecoder(strings.NewReader("\n\n{\"id\":\"job_1\",\"source\":\"s\"}\n"))
	var req Request
	require.NoError(t, dec.Decode(&req))
	assert.Equal(t, "job_1", req.ID)
}

func TestDecoderErrors(t *testing.T) {
	var req Request
	err := NewDecoder(strings.NewReader(`{"id":"job_1"`)).Decode(&req)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)

	err = NewDecoder(strings.NewReader("not json\n")).Decode(&req)
	assert.Error(t, err)
}

func TestNewResponse(t *testing.T) {
	value, err := codec.Encode("ok")
	require.NoError(t, err)

	ok := NewResponse("job_1", &sandbox.Result{Value: value, Duration: 1500 * time.Microsecond})
	assert.False(t, ok.Failed())
	assert.Equal(t, value, ok.Output)
	assert.InDelta(t, 1.5, ok.DurationMs, 0.001)

	undefined := NewResponse("job_2", &sandbox.Result{})
	assert.False(t, undefined.Failed())
	out, err := codec.Decode(undefined.Output)
	require.NoError(t, err)
	assert.True(t, codec.IsUndefined(out))

	failed := NewResponse("job_3", &sandbox.Result{Failed: true, Error: "boom"})
	require.True(t, failed.Failed())
	assert.Equal(t, "boom", *failed.Error)
	assert.Nil(t, failed.Output)

	blank := NewResponse("job_4", &sandbox.Result{Failed: true})
	require.True(t, blank.Failed())
	assert.Equal(t, "", *blank.Error)
	assert.Nil(t, blank.Output)
}

func TestExitStatusMessage(t *testing.T) {
	tests := []struct {
		name   string
		status ExitStatus
		want   string
	}{
		{"plain", ExitStatus{Code: 2}, "Worker exited with code 2"},
		{"signal", ExitStatus{Code: 137, Signal: "killed"}, "Worker exited with code 137 (signal: killed)"},
		{"memory", ExitStatus{Code: ExitMemoryLimit, MemoryExceeded: true}, "Worker exited with code 134: memory limit exceeded"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.status.Message())
		})
	}
}
