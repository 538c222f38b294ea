package onnx

import (
	"fmt"

	"github.com/krau/superres/service"
	ort "github.com/yalue/onnxruntime_go"
)

type Layout int

const (
	// NHWC is the channels-last layout Keras-exported generators use.
	NHWC Layout = iota
	NCHW
)

func (l Layout) String() string {
	if l == NCHW {
		return "NCHW"
	}
	return "NHWC"
}

// detectLayout infers the tensor layout and spatial size from the model's
// declared input dimensions. Dynamic spatial dimensions take the fallback.
func detectLayout(dims ort.Shape, fallback service.Size) (Layout, service.Size, error) {
	if len(dims) != 4 {
		return 0, service.Size{}, fmt.Errorf("expected 4-D image input, model declares %v", dims)
	}
	if dims[0] > 1 {
		return 0, service.Size{}, fmt.Errorf("model input has fixed batch size %d, need 1", dims[0])
	}

	var layout Layout
	var h, w int64
	switch {
	case dims[3] == 3:
		layout, h, w = NHWC, dims[1], dims[2]
	case dims[1] == 3:
		layout, h, w = NCHW, dims[2], dims[3]
	case dims[1] <= 0 && dims[3] <= 0:
		layout, h, w = NHWC, dims[1], dims[2]
	default:
		return 0, service.Size{}, fmt.Errorf("model input %v is not a 3-channel image", dims)
	}

	size := fallback
	if h > 0 {
		size.Height = int(h)
	}
	if w > 0 {
		size.Width = int(w)
	}
	return layout, size, nil
}

// batch lays out an (H,W,3) tensor as a single-item batch.
func batch(in service.Tensor, layout Layout) (ort.Shape, []float32) {
	h, w, c := in.Shape[0], in.Shape[1], in.Shape[2]
	if layout == NHWC {
		data := make([]float32, len(in.Data))
		copy(data, in.Data)
		return ort.NewShape(1, int64(h), int64(w), int64(c)), data
	}
	data := make([]float32, len(in.Data))
	plane := h * w
	for p := 0; p < plane; p++ {
		for ch := 0; ch < c; ch++ {
			data[ch*plane+p] = in.Data[p*c+ch]
		}
	}
	return ort.NewShape(1, int64(c), int64(h), int64(w)), data
}

// unbatch strips the batch dimension from a model output and returns it in
// HWC order. Rank-3 outputs are treated as a batch of single-channel
// planes.
func unbatch(shape ort.Shape, data []float32, layout Layout) (service.Tensor, error) {
	if len(shape) < 3 || len(shape) > 4 {
		return service.Tensor{}, fmt.Errorf("unexpected output shape %v", shape)
	}
	if shape[0] != 1 {
		return service.Tensor{}, fmt.Errorf("output batch size %d, want 1", shape[0])
	}
	n := int64(1)
	for _, d := range shape {
		if d <= 0 {
			return service.Tensor{}, fmt.Errorf("output shape %v has empty dimension", shape)
		}
		n *= d
	}
	if int64(len(data)) != n {
		return service.Tensor{}, fmt.Errorf("output shape %v needs %d values, got %d", shape, n, len(data))
	}

	if len(shape) == 3 {
		out := service.NewTensor(int(shape[1]), int(shape[2]))
		copy(out.Data, data)
		return out, nil
	}
	if layout == NHWC {
		out := service.NewTensor(int(shape[1]), int(shape[2]), int(shape[3]))
		copy(out.Data, data)
		return out, nil
	}
	c, h, w := int(shape[1]), int(shape[2]), int(shape[3])
	out := service.NewTensor(h, w, c)
	plane := h * w
	for ch := 0; ch < c; ch++ {
		for p := 0; p < plane; p++ {
			out.Data[p*c+ch] = data[ch*plane+p]
		}
	}
	return out, nil
}
