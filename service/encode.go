package service

import (
	"bytes"
	"encoding/base64"
	"image"
	"math"

	"github.com/disintegration/imaging"
)

const DefaultJPEGQuality = 75

// Encode renders t as a base64 JPEG. Values are scaled by 255 and clipped,
// so both [0,1] inputs and unbounded model output are accepted.
func Encode(t Tensor, quality int) (EncodedImage, error) {
	h, w, c, err := imageShape(t)
	if err != nil {
		return "", err
	}
	if quality <= 0 || quality > 100 {
		quality = DefaultJPEGQuality
	}

	var img image.Image
	switch c {
	case 1:
		g := image.NewGray(image.Rect(0, 0, w, h))
		for i, v := range t.Data {
			g.Pix[i] = toByte(v)
		}
		img = g
	default:
		rgba := image.NewRGBA(image.Rect(0, 0, w, h))
		for p := 0; p < w*h; p++ {
			src := t.Data[p*c : p*c+c]
			dst := rgba.Pix[p*4 : p*4+4]
			dst[0] = toByte(src[0])
			dst[1] = toByte(src[1])
			dst[2] = toByte(src[2])
			dst[3] = 0xff
		}
		img = rgba
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return "", stageErr(ErrEncode, err)
	}
	return EncodedImage(base64.StdEncoding.EncodeToString(buf.Bytes())), nil
}

// imageShape validates t as an image and returns its height, width and
// channel count. A rank-2 tensor and a trailing singleton channel both
// report one channel.
func imageShape(t Tensor) (h, w, c int, err error) {
	switch len(t.Shape) {
	case 2:
		h, w, c = t.Shape[0], t.Shape[1], 1
	case 3:
		h, w, c = t.Shape[0], t.Shape[1], t.Shape[2]
	default:
		return 0, 0, 0, stageErrf(ErrShape, "want rank 2 or 3, got shape %v", t.Shape)
	}
	if h <= 0 || w <= 0 {
		return 0, 0, 0, stageErrf(ErrShape, "empty spatial dimensions in shape %v", t.Shape)
	}
	if c != 1 && c != 3 && c != 4 {
		return 0, 0, 0, stageErrf(ErrShape, "unsupported channel count %d in shape %v", c, t.Shape)
	}
	if len(t.Data) != h*w*c {
		return 0, 0, 0, stageErrf(ErrShape, "shape %v needs %d values, have %d", t.Shape, h*w*c, len(t.Data))
	}
	return h, w, c, nil
}

func toByte(v float32) uint8 {
	f := float64(v) * 255
	if math.IsNaN(f) || f <= 0 {
		return 0
	}
	if f >= 255 {
		return 255
	}
	return uint8(f)
}
