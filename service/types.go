package service

import (
	"fmt"
	"time"
)

// Size is a spatial resolution in pixels.
type Size struct {
	Height int
	Width  int
}

func (s Size) String() string {
	return fmt.Sprintf("%dx%d", s.Width, s.Height)
}

// RawUpload is the uploaded file as received from the web layer.
type RawUpload struct {
	Filename string
	Data     []byte
}

// Tensor is a dense row-major float32 array. Images use (H,W) or (H,W,C).
type Tensor struct {
	Shape []int
	Data  []float32
}

func NewTensor(shape ...int) Tensor {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return Tensor{Shape: append([]int(nil), shape...), Data: make([]float32, n)}
}

// EncodedImage is base64 text of a JPEG file.
type EncodedImage string

func (e EncodedImage) DataURL() string {
	return "data:image/jpeg;base64," + string(e)
}

type State int

const (
	StateIdle State = iota
	StateDecoding
	StateInferring
	StateEncoding
	StateDone
	StateAborted
)

var stateNames = [...]string{
	StateIdle:      "idle",
	StateDecoding:  "decoding",
	StateInferring: "inferring",
	StateEncoding:  "encoding",
	StateDone:      "done",
	StateAborted:   "aborted",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

// Result is the outcome of one pipeline run. LowRes and HighRes are nil when
// the corresponding slot was not produced; LowResErr and HighResErr say why.
type Result struct {
	State State
	Trace []State

	LowRes     *EncodedImage
	HighRes    *EncodedImage
	LowResErr  error
	HighResErr error

	// Err is the error that aborted the run, nil otherwise.
	Err error

	InputSize   Size
	OutputShape []int
	Timings     map[State]time.Duration
}

func (r *Result) enter(s State) {
	r.State = s
	r.Trace = append(r.Trace, s)
}
