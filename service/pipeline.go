package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pkg/errors"
)

type Pipeline struct {
	engine     Engine
	quality    int
	decodeOpts []DecodeOption
	logger     *slog.Logger
}

type Option func(*Pipeline)

func WithJPEGQuality(q int) Option {
	return func(p *Pipeline) { p.quality = q }
}

func WithDecodeOptions(opts ...DecodeOption) Option {
	return func(p *Pipeline) { p.decodeOpts = append(p.decodeOpts, opts...) }
}

func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

func NewPipeline(engine Engine, opts ...Option) *Pipeline {
	p := &Pipeline{
		engine:  engine,
		quality: DefaultJPEGQuality,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Pipeline) InputSize() Size {
	return p.engine.InputSize()
}

type loggerKey struct{}

// ContextWithLogger attaches a request-scoped logger that Run uses instead
// of the pipeline's own.
func ContextWithLogger(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, l)
}

func (p *Pipeline) log(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok && l != nil {
		return l
	}
	return p.logger
}

// Run drives one upload through decode, inference and encoding. A nil
// upload leaves the result Idle with both slots empty. Failures never
// escape as panics or errors; they are recorded on the Result.
//
// When the engine reports ErrModelUnavailable the low-res slot is still
// encoded and only the high-res slot is left empty. Any other inference
// failure aborts the run before encoding.
func (p *Pipeline) Run(ctx context.Context, upload *RawUpload) *Result {
	res := &Result{
		State:     StateIdle,
		InputSize: p.engine.InputSize(),
		Timings:   make(map[State]time.Duration),
	}
	if upload == nil {
		return res
	}
	log := p.log(ctx).With(slog.String("filename", upload.Filename))

	res.enter(StateDecoding)
	start := time.Now()
	lr, err := Decode(upload.Data, res.InputSize, p.decodeOpts...)
	res.Timings[StateDecoding] = time.Since(start)
	if err != nil {
		log.Error("Image decode failed", errAttr(err))
		p.abort(log, res, err)
		return res
	}

	res.enter(StateInferring)
	start = time.Now()
	hr, err := p.predict(lr)
	res.Timings[StateInferring] = time.Since(start)
	switch {
	case errors.Is(err, ErrModelUnavailable):
		log.Warn("Model unavailable, skipping upscaling", errAttr(err))
		res.HighResErr = err
	case err != nil:
		log.Error("Inference failed", errAttr(err))
		p.abort(log, res, err)
		return res
	default:
		res.OutputShape = append([]int(nil), hr.Shape...)
	}

	res.enter(StateEncoding)
	start = time.Now()
	if img, err := Encode(lr, p.quality); err != nil {
		log.Error("Low-res encoding failed", errAttr(err))
		res.LowResErr = err
	} else {
		res.LowRes = &img
	}
	if res.HighResErr == nil {
		if img, err := Encode(hr, p.quality); err != nil {
			log.Error("High-res encoding failed", errAttr(err))
			res.HighResErr = err
		} else {
			res.HighRes = &img
		}
	}
	res.Timings[StateEncoding] = time.Since(start)

	res.enter(StateDone)
	log.Info("Pipeline finished",
		slog.Bool("low_res", res.LowRes != nil),
		slog.Bool("high_res", res.HighRes != nil),
		slog.Any("output_shape", res.OutputShape),
		timingsAttr(res),
	)
	return res
}

// predict converts a panicking backend into an inference error.
func (p *Pipeline) predict(in Tensor) (out Tensor, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = stageErrf(ErrInference, "engine panic: %v", r)
		}
	}()
	out, err = p.engine.Predict(in)
	if err != nil && !errors.Is(err, ErrModelUnavailable) && !errors.Is(err, ErrInference) {
		err = stageErr(ErrInference, err)
	}
	return out, err
}

func (p *Pipeline) abort(log *slog.Logger, res *Result, err error) {
	res.Err = err
	res.LowResErr = err
	res.HighResErr = err
	res.enter(StateAborted)
	log.Info("Pipeline aborted", slog.String("code", Code(err)), timingsAttr(res))
}

// errAttr logs err with the stack trace recorded when it was wrapped.
func errAttr(err error) slog.Attr {
	return slog.String("error", fmt.Sprintf("%+v", err))
}

func timingsAttr(res *Result) slog.Attr {
	attrs := make([]any, 0, len(res.Timings))
	for _, s := range []State{StateDecoding, StateInferring, StateEncoding} {
		if d, ok := res.Timings[s]; ok {
			attrs = append(attrs, slog.Duration(s.String(), d))
		}
	}
	return slog.Group("timings", attrs...)
}
