package service

import (
	"fmt"
	"io"

	"github.com/pkg/errors"
)

var (
	ErrDecode           = errors.New("decode error")
	ErrShape            = errors.New("shape error")
	ErrModelUnavailable = errors.New("model unavailable")
	ErrInference        = errors.New("inference error")
	ErrEncode           = errors.New("encode error")
)

// StageError tags an underlying failure with its kind so callers can use
// errors.Is against the sentinels above.
type StageError struct {
	Kind error
	Err  error
}

func (e *StageError) Error() string {
	if e.Err == nil {
		return e.Kind.Error()
	}
	return e.Kind.Error() + ": " + e.Err.Error()
}

func (e *StageError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Format prints the wrapped error's stack trace under %+v.
func (e *StageError) Format(s fmt.State, verb rune) {
	switch verb {
	case 'v':
		if s.Flag('+') && e.Err != nil {
			fmt.Fprintf(s, "%s: %+v", e.Kind, e.Err)
			return
		}
		fallthrough
	case 's':
		io.WriteString(s, e.Error())
	case 'q':
		fmt.Fprintf(s, "%q", e.Error())
	}
}

// stageErr records the stack at the stage boundary where err surfaced.
func stageErr(kind error, err error) error {
	return &StageError{Kind: kind, Err: errors.WithStack(err)}
}

func stageErrf(kind error, format string, args ...any) error {
	return &StageError{Kind: kind, Err: errors.Errorf(format, args...)}
}

// Code maps an error to a stable identifier for API responses.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrDecode):
		return "decode_error"
	case errors.Is(err, ErrShape):
		return "shape_error"
	case errors.Is(err, ErrModelUnavailable):
		return "model_unavailable"
	case errors.Is(err, ErrInference):
		return "inference_error"
	case errors.Is(err, ErrEncode):
		return "encode_error"
	default:
		return "internal_error"
	}
}
