package onnx

import (
	"fmt"
	"log/slog"

	"github.com/krau/superres/service"
	ort "github.com/yalue/onnxruntime_go"
)

// Model is a super-resolution generator loaded from an ONNX file. It
// implements service.Engine.
type Model struct {
	session    *ort.DynamicAdvancedSession
	inputName  string
	outputName string
	layout     Layout
	size       service.Size
}

type LoadOptions struct {
	// Fallback is used for any spatial input dimension the model leaves
	// dynamic.
	Fallback       service.Size
	IntraOpThreads int
}

// Load opens the model at path. The ONNX Runtime environment must already
// be initialized.
func Load(path string, opts LoadOptions) (*Model, error) {
	inputs, outputs, err := ort.GetInputOutputInfo(path)
	if err != nil {
		return nil, fmt.Errorf("failed to get model input/output info: %w", err)
	}
	if len(inputs) != 1 || len(outputs) != 1 {
		return nil, fmt.Errorf("model %s has %d inputs and %d outputs, need exactly one of each", path, len(inputs), len(outputs))
	}
	if inputs[0].DataType != ort.TensorElementDataTypeFloat {
		return nil, fmt.Errorf("model input %q is %v, need float32", inputs[0].Name, inputs[0].DataType)
	}

	layout, size, err := detectLayout(inputs[0].Dimensions, opts.Fallback)
	if err != nil {
		return nil, err
	}

	sessionOpts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("failed to create session options: %w", err)
	}
	defer sessionOpts.Destroy()
	if opts.IntraOpThreads > 0 {
		if err := sessionOpts.SetIntraOpNumThreads(opts.IntraOpThreads); err != nil {
			return nil, fmt.Errorf("failed to set intra-op threads: %w", err)
		}
	}

	session, err := ort.NewDynamicAdvancedSession(
		path,
		[]string{inputs[0].Name},
		[]string{outputs[0].Name},
		sessionOpts,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create ONNX Runtime session: %w", err)
	}

	slog.Info("Model loaded",
		slog.String("path", path),
		slog.String("input", inputs[0].Name),
		slog.String("output", outputs[0].Name),
		slog.String("layout", layout.String()),
		slog.String("input_size", size.String()),
	)
	return &Model{
		session:    session,
		inputName:  inputs[0].Name,
		outputName: outputs[0].Name,
		layout:     layout,
		size:       size,
	}, nil
}

func (m *Model) InputSize() service.Size {
	return m.size
}

// Predict runs the generator on one (H,W,3) tensor and returns its output
// in HWC order without the batch dimension.
func (m *Model) Predict(in service.Tensor) (service.Tensor, error) {
	if len(in.Shape) != 3 || in.Shape[0] != m.size.Height || in.Shape[1] != m.size.Width || in.Shape[2] != 3 {
		return service.Tensor{}, &service.StageError{
			Kind: service.ErrInference,
			Err:  fmt.Errorf("input shape %v, model expects [%d %d 3]", in.Shape, m.size.Height, m.size.Width),
		}
	}
	if len(in.Data) != m.size.Height*m.size.Width*3 {
		return service.Tensor{}, &service.StageError{
			Kind: service.ErrInference,
			Err:  fmt.Errorf("input has %d values for shape %v", len(in.Data), in.Shape),
		}
	}

	shape, data := batch(in, m.layout)
	input, err := ort.NewTensor(shape, data)
	if err != nil {
		return service.Tensor{}, &service.StageError{Kind: service.ErrInference, Err: fmt.Errorf("failed to create input tensor: %w", err)}
	}
	defer input.Destroy()

	outputs := []ort.Value{nil}
	if err := m.session.Run([]ort.Value{input}, outputs); err != nil {
		return service.Tensor{}, &service.StageError{Kind: service.ErrInference, Err: err}
	}
	defer outputs[0].Destroy()

	output, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return service.Tensor{}, &service.StageError{
			Kind: service.ErrInference,
			Err:  fmt.Errorf("output %q is %T, need float32 tensor", m.outputName, outputs[0]),
		}
	}
	out, err := unbatch(output.GetShape(), output.GetData(), m.layout)
	if err != nil {
		return service.Tensor{}, &service.StageError{Kind: service.ErrInference, Err: err}
	}
	return out, nil
}

func (m *Model) Close() {
	if m.session != nil {
		m.session.Destroy()
	}
}
