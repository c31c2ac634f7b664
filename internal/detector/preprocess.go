package detector

import (
	"errors"
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"

	"github.com/MeKo-Tech/doorcount/internal/mempool"
	"github.com/MeKo-Tech/doorcount/internal/onnx"
)

// padGray is the letterbox fill used by YOLO exports.
var padGray = color.NRGBA{R: 114, G: 114, B: 114, A: 255}

// Letterbox records how a source image was fitted into the square model input.
type Letterbox struct {
	Size   int
	Scale  float64
	PadX   float64
	PadY   float64
	Width  int // source width
	Height int // source height
}

// NewLetterbox computes the scale and padding for a w×h source.
func NewLetterbox(w, h, size int) Letterbox {
	scale := math.Min(float64(size)/float64(w), float64(size)/float64(h))
	nw := int(math.Round(float64(w) * scale))
	nh := int(math.Round(float64(h) * scale))
	return Letterbox{
		Size:   size,
		Scale:  scale,
		PadX:   float64((size - nw) / 2),
		PadY:   float64((size - nh) / 2),
		Width:  w,
		Height: h,
	}
}

// ToSource maps a box from model input space back to the source image,
// clamped to its bounds.
func (l Letterbox) ToSource(b Box) Box {
	fx := func(v float64) float64 { return clamp((v-l.PadX)/l.Scale, 0, float64(l.Width)) }
	fy := func(v float64) float64 { return clamp((v-l.PadY)/l.Scale, 0, float64(l.Height)) }
	return Box{X1: fx(b.X1), Y1: fy(b.Y1), X2: fx(b.X2), Y2: fy(b.Y2)}
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// preprocess letterboxes img into a pooled [1,3,size,size] tensor scaled to
// 0..1. The caller returns tensor.Data via mempool.PutFloat32.
func preprocess(img image.Image, size int) (onnx.Tensor, Letterbox, error) {
	if img == nil {
		return onnx.Tensor{}, Letterbox{}, errors.New("input image is nil")
	}
	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return onnx.Tensor{}, Letterbox{}, errors.New("invalid image dimensions")
	}

	lb := NewLetterbox(b.Dx(), b.Dy(), size)
	nw := int(math.Round(float64(b.Dx()) * lb.Scale))
	nh := int(math.Round(float64(b.Dy()) * lb.Scale))

	resized := imaging.Resize(img, nw, nh, imaging.Linear)
	canvas := imaging.New(size, size, padGray)
	canvas = imaging.Paste(canvas, resized, image.Pt(int(lb.PadX), int(lb.PadY)))

	plane := size * size
	data := mempool.GetFloat32(3 * plane)
	for i := 0; i < plane; i++ {
		p := canvas.Pix[i*4 : i*4+3]
		data[i] = float32(p[0]) / 255
		data[plane+i] = float32(p[1]) / 255
		data[2*plane+i] = float32(p[2]) / 255
	}

	t, err := onnx.NewImageTensor(data, 3, size, size)
	if err != nil {
		mempool.PutFloat32(data)
		return onnx.Tensor{}, Letterbox{}, err
	}
	return t, lb, nil
}
