package worker

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/bytedance/sonic"

	"github.com/GriffinCanCode/AgentOS/usercode/internal/codec"
	"github.com/GriffinCanCode/AgentOS/usercode/internal/sandbox"
	"github.com/GriffinCanCode/AgentOS/usercode/internal/wrapper"
)

// MaxFrameSize bounds one encoded request or response
const MaxFrameSize = 64 << 20

var ErrFrameTooLarge = errors.New("frame exceeds maximum size")

// Request asks a unit to run one program
type Request struct {
	ID     string        `json:"id"`
	Source string        `json:"source"`
	Input  *codec.Wire   `json:"input,omitempty"`
	Spread bool          `json:"spread,omitempty"`
	Shape  wrapper.Shape `json:"shape,omitempty"`
}

// Response is the outcome of one Request. Error is set on failure,
// Output otherwise.
type Response struct {
	ID         string             `json:"id"`
	Output     *codec.Wire        `json:"output,omitempty"`
	Error      *string            `json:"error,omitempty"`
	Console    []sandbox.LogEntry `json:"console,omitempty"`
	DurationMs float64            `json:"durationMs"`
}

// Failed reports whether the job ended with an error
func (r Response) Failed() bool {
	return r.Error != nil
}

// NewResponse converts a sandbox result
func NewResponse(id string, res *sandbox.Result) Response {
	resp := Response{
		ID:         id,
		Console:    res.Console,
		DurationMs: float64(res.Duration.Microseconds()) / 1000,
	}
	if res.Failed {
		msg := res.Error
		resp.Error = &msg
		return resp
	}

	resp.Output = res.Value
	if resp.Output == nil {
		resp.Output = codec.UndefinedWire()
	}
	return resp
}

// ErrorResponse builds a failed Response
func ErrorResponse(id, msg string) Response {
	return Response{ID: id, Error: &msg}
}

// Encoder writes newline-delimited JSON frames
type Encoder struct {
	mu sync.Mutex
	w  *bufio.Writer
}

// NewEncoder creates an encoder writing to w
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: bufio.NewWriter(w)}
}

// FrameSize returns the encoded length of v, excluding the delimiter
func FrameSize(v any) (int, error) {
	data, err := sonic.ConfigStd.Marshal(v)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal frame: %w", err)
	}
	return len(data), nil
}

// Encode writes v as one frame and flushes it
func (e *Encoder) Encode(v any) error {
	data, err := sonic.ConfigStd.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal frame: %w", err)
	}
	if len(data) > MaxFrameSize {
		return ErrFrameTooLarge
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, err := e.w.Write(data); err != nil {
		return err
	}
	if err := e.w.WriteByte('\n'); err != nil {
		return err
	}
	return e.w.Flush()
}

// Decoder reads newline-delimited JSON frames
type Decoder struct {
	r *bufio.Reader
}

// NewDecoder creates a decoder reading from r
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: bufio.NewReaderSize(r, 64<<10)}
}

// Decode reads the next frame into v. It returns io.EOF at a clean end of
// stream and io.ErrUnexpectedEOF when the stream stops mid-frame.
func (d *Decoder) Decode(v any) error {
	for {
		line, err := d.readLine()
		if err != nil {
			return err
		}
		if len(line) == 0 {
			continue
		}
		if err := sonic.ConfigStd.Unmarshal(line, v); err != nil {
			return fmt.Errorf("failed to unmarshal frame: %w", err)
		}
		return nil
	}
}

func (d *Decoder) readLine() ([]byte, error) {
	var line []byte
	for {
		chunk, err := d.r.ReadSlice('\n')
		line = append(line, chunk...)
		if len(line) > MaxFrameSize+1 {
			return nil, ErrFrameTooLarge
		}

		switch {
		case err == nil:
			return line[:len(line)-1], nil
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		case errors.Is(err, io.EOF) && len(line) > 0:
			return nil, io.ErrUnexpectedEOF
		}
		return nil, err
	}
}
