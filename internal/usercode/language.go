package usercode

import (
	"errors"
	"fmt"

	"github.com/GriffinCanCode/AgentOS/usercode/internal/codec"
	"github.com/GriffinCanCode/AgentOS/usercode/internal/worker"
	"github.com/GriffinCanCode/AgentOS/usercode/internal/wrapper"
)

var (
	ErrUnsupportedLanguage = errors.New("Unsupported code language")
	ErrInputTooLarge       = errors.New("Input is too large to transfer")
)

// compiler turns a submission into a unit request. The request ID is set
// by the caller.
type compiler func(in Input) (worker.Request, error)

var compilers = map[Language]compiler{
	LanguageJavaScript: compileJavaScript,
}

// compile validates in and builds its request
func compile(in Input) (worker.Request, error) {
	c, ok := compilers[in.CodeLanguage]
	if !ok {
		return worker.Request{}, fmt.Errorf("%w: %s", ErrUnsupportedLanguage, in.CodeLanguage)
	}
	return c(in)
}

func compileJavaScript(in Input) (worker.Request, error) {
	prog, err := wrapper.Wrap(in.Code)
	if err != nil {
		return worker.Request{}, err
	}

	req := worker.Request{
		Source: prog.Source,
		Spread: in.ShouldSpreadInput,
		Shape:  prog.Shape,
	}
	if in.Input != nil {
		w, err := codec.Encode(in.Input)
		if err != nil {
			return worker.Request{}, fmt.Errorf("Failed to serialize input: %w", err)
		}
		req.Input = w
	}

	// A unit cannot receive a frame its encoder refuses
	size, err := worker.FrameSize(req)
	if err != nil {
		return worker.Request{}, fmt.Errorf("Failed to serialize input: %w", err)
	}
	if size > worker.MaxFrameSize {
		return worker.Request{}, ErrInputTooLarge
	}
	return req, nil
}
