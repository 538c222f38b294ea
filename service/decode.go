package service

import (
	"bytes"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "github.com/gen2brain/avif"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/disintegration/imaging"
)

type decodeOptions struct {
	maxPixels  int
	autoOrient bool
	filter     imaging.ResampleFilter
}

type DecodeOption func(*decodeOptions)

// WithMaxPixels rejects images whose declared width*height exceeds n before
// any pixel data is decoded. Zero disables the check.
func WithMaxPixels(n int) DecodeOption {
	return func(o *decodeOptions) { o.maxPixels = n }
}

// WithAutoOrient applies the EXIF orientation tag while decoding.
func WithAutoOrient(enabled bool) DecodeOption {
	return func(o *decodeOptions) { o.autoOrient = enabled }
}

func WithResampleFilter(f imaging.ResampleFilter) DecodeOption {
	return func(o *decodeOptions) { o.filter = f }
}

// Decode turns uploaded bytes into an (H,W,3) tensor with values in [0,1],
// resized to exactly size.
func Decode(data []byte, size Size, opts ...DecodeOption) (Tensor, error) {
	o := decodeOptions{filter: imaging.CatmullRom}
	for _, opt := range opts {
		opt(&o)
	}
	if size.Height <= 0 || size.Width <= 0 {
		return Tensor{}, stageErrf(ErrDecode, "invalid target size %s", size)
	}
	if len(data) == 0 {
		return Tensor{}, stageErrf(ErrDecode, "empty upload")
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return Tensor{}, stageErr(ErrDecode, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return Tensor{}, stageErrf(ErrDecode, "%s image has zero area", format)
	}
	if o.maxPixels > 0 && cfg.Width*cfg.Height > o.maxPixels {
		return Tensor{}, stageErrf(ErrDecode, "%s image is %dx%d, exceeds %d pixels", format, cfg.Width, cfg.Height, o.maxPixels)
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(o.autoOrient))
	if err != nil {
		return Tensor{}, stageErr(ErrDecode, err)
	}
	if img.Bounds().Empty() {
		return Tensor{}, stageErrf(ErrDecode, "%s image decoded with empty bounds %v", format, img.Bounds())
	}
	if format == "gif" {
		img = onScreen(img, cfg.Width, cfg.Height)
	}

	rgb := toRGB(img)
	rgb = imaging.Resize(rgb, size.Width, size.Height, o.filter)
	return normalize(rgb), nil
}

// onScreen places a GIF frame on its logical screen, so a frame that is
// smaller than or offset within the screen decodes at screen size.
func onScreen(frame image.Image, w, h int) image.Image {
	screen := image.Rect(0, 0, w, h)
	if frame.Bounds() == screen {
		return frame
	}
	canvas := imaging.New(w, h, color.Black)
	return imaging.Paste(canvas, frame, frame.Bounds().Min)
}

// toRGB copies img into an opaque NRGBA. Alpha is discarded, not blended.
func toRGB(img image.Image) *image.NRGBA {
	dst := imaging.Clone(img)
	for i := 3; i < len(dst.Pix); i += 4 {
		dst.Pix[i] = 0xff
	}
	return dst
}

func normalize(img *image.NRGBA) Tensor {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	t := NewTensor(h, w, 3)
	i := 0
	for y := 0; y < h; y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+w*4]
		for x := 0; x < w; x++ {
			t.Data[i] = float32(row[x*4]) / 255
			t.Data[i+1] = float32(row[x*4+1]) / 255
			t.Data[i+2] = float32(row[x*4+2]) / 255
			i += 3
		}
	}
	return t
}
