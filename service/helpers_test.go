package service

import (
	"bytes"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"
	"testing"
)

func pngBytes(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png.Encode: %v", err)
	}
	return buf.Bytes()
}

func jpegBytes(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatalf("jpeg.Encode: %v", err)
	}
	return buf.Bytes()
}

func gifBytes(t *testing.T, img *image.Paletted) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := gif.Encode(&buf, img, nil); err != nil {
		t.Fatalf("gif.Encode: %v", err)
	}
	return buf.Bytes()
}

func gradientRGBA(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{uint8(x * 255 / w), uint8(y * 255 / h), 128, 255})
		}
	}
	return img
}

func gradientGray(w, h int) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetGray(x, y, color.Gray{uint8((x + y) % 256)})
		}
	}
	return img
}

func checkNormalized(t *testing.T, tensor Tensor, size Size) {
	t.Helper()
	want := []int{size.Height, size.Width, 3}
	if len(tensor.Shape) != 3 || tensor.Shape[0] != want[0] || tensor.Shape[1] != want[1] || tensor.Shape[2] != want[2] {
		t.Fatalf("shape = %v; want %v", tensor.Shape, want)
	}
	if len(tensor.Data) != want[0]*want[1]*want[2] {
		t.Fatalf("len(Data) = %d; want %d", len(tensor.Data), want[0]*want[1]*want[2])
	}
	for i, v := range tensor.Data {
		if v < 0 || v > 1 {
			t.Fatalf("Data[%d] = %v; want value in [0,1]", i, v)
		}
	}
}

// scaleEngine upsamples by nearest neighbour and can emit a fixed number of
// output channels.
type scaleEngine struct {
	size     Size
	factor   int
	channels int
	calls    int
}

func (e *scaleEngine) InputSize() Size { return e.size }

func (e *scaleEngine) Predict(in Tensor) (Tensor, error) {
	e.calls++
	h, w := in.Shape[0], in.Shape[1]
	out := NewTensor(h*e.factor, w*e.factor, e.channels)
	for y := 0; y < h*e.factor; y++ {
		for x := 0; x < w*e.factor; x++ {
			src := ((y/e.factor)*w + x/e.factor) * 3
			dst := (y*w*e.factor + x) * e.channels
			for c := 0; c < e.channels; c++ {
				// overshoot the [0,1] range like a real generator can
				out.Data[dst+c] = in.Data[src+c%3]*1.2 - 0.1
			}
		}
	}
	return out, nil
}

type funcEngine struct {
	size    Size
	predict func(Tensor) (Tensor, error)
}

func (e *funcEngine) InputSize() Size { return e.size }

func (e *funcEngine) Predict(in Tensor) (Tensor, error) { return e.predict(in) }
