package detector

import (
	"context"
	"errors"
	"image"
	"image/color"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/doorcount/internal/onnx"
)

// yoloOutput builds a [1, 4+classes, len(cands)] tensor.
type candidate struct {
	cx, cy, w, h float32
	scores       []float32
}

func yoloOutput(classes int, cands ...candidate) onnx.Tensor {
	n := len(cands)
	rows := 4 + classes
	data := make([]float32, rows*n)
	for i, c := range cands {
		data[0*n+i] = c.cx
		data[1*n+i] = c.cy
		data[2*n+i] = c.w
		data[3*n+i] = c.h
		for k, s := range c.scores {
			data[(4+k)*n+i] = s
		}
	}
	return onnx.Tensor{Data: data, Shape: []int64{1, int64(rows), int64(n)}}
}

type fakeRunner struct {
	out    onnx.Tensor
	err    error
	gotIn  []int64
	closed bool
}

func (f *fakeRunner) Run(in onnx.Tensor) (onnx.Tensor, error) {
	f.gotIn = in.Shape
	return f.out, f.err
}

func (f *fakeRunner) Close() error {
	f.closed = true
	return nil
}

func TestNewLetterbox(t *testing.T) {
	lb := NewLetterbox(1280, 720, 640)
	assert.InDelta(t, 0.5, lb.Scale, 1e-9)
	assert.InDelta(t, 0.0, lb.PadX, 1e-9)
	assert.InDelta(t, 140.0, lb.PadY, 1e-9)

	src := lb.ToSource(Box{X1: 100, Y1: 140, X2: 200, Y2: 340})
	assert.InDelta(t, 200.0, src.X1, 1e-9)
	assert.InDelta(t, 0.0, src.Y1, 1e-9)
	assert.InDelta(t, 400.0, src.X2, 1e-9)
	assert.InDelta(t, 400.0, src.Y2, 1e-9)

	clamped := lb.ToSource(Box{X1: -50, Y1: 0, X2: 700, Y2: 640})
	assert.InDelta(t, 0.0, clamped.X1, 1e-9)
	assert.InDelta(t, 1280.0, clamped.X2, 1e-9)
	assert.InDelta(t, 720.0, clamped.Y2, 1e-9)
}

func TestPreprocess(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 64, 32))
	for y := 0; y < 32; y++ {
		for x := 0; x < 64; x++ {
			img.Set(x, y, color.RGBA{R: 255, A: 255})
		}
	}

	ten, lb, err := preprocess(img, 32)
	require.NoError(t, err)
	require.NoError(t, ten.Verify())
	assert.Equal(t, []int64{1, 3, 32, 32}, ten.Shape)
	assert.InDelta(t, 8.0, lb.PadY, 1e-9)

	plane := 32 * 32
	// top-left is padding, center is the red image
	assert.InDelta(t, 114.0/255, ten.Data[0], 1e-6)
	center := 16*32 + 16
	assert.InDelta(t, 1.0, ten.Data[center], 0.01)
	assert.InDelta(t, 0.0, ten.Data[plane+center], 0.01)

	_, _, err = preprocess(nil, 32)
	require.Error(t, err)
}

func TestDecode(t *testing.T) {
	lb := NewLetterbox(640, 640, 640)
	out := yoloOutput(2,
		candidate{cx: 100, cy: 100, w: 50, h: 100, scores: []float32{0.9, 0.1}},
		candidate{cx: 300, cy: 300, w: 50, h: 100, scores: []float32{0.1, 0.8}},
		candidate{cx: 500, cy: 500, w: 50, h: 100, scores: []float32{0.2, 0.0}},
	)

	people, err := decode(out.Data, out.Shape, lb, ClassPerson, 0.25)
	require.NoError(t, err)
	require.Len(t, people, 1)
	assert.InDelta(t, 0.9, people[0].Score, 1e-6)
	assert.Equal(t, Box{X1: 75, Y1: 50, X2: 125, Y2: 150}, people[0].Box)

	all, err := decode(out.Data, out.Shape, lb, -1, 0.25)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, 1, all[1].Class)
}

func TestDecodeErrors(t *testing.T) {
	lb := NewLetterbox(640, 640, 640)
	tests := []struct {
		name  string
		data  []float32
		shape []int64
		class int
	}{
		{name: "rank", data: make([]float32, 4), shape: []int64{4, 1}},
		{name: "no classes", data: make([]float32, 4), shape: []int64{1, 4, 1}},
		{name: "length", data: make([]float32, 3), shape: []int64{1, 5, 1}},
		{name: "class range", data: make([]float32, 5), shape: []int64{1, 5, 1}, class: 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := decode(tt.data, tt.shape, lb, tt.class, 0.25)
			assert.Error(t, err)
		})
	}
}

func TestDetect(t *testing.T) {
	runner := &fakeRunner{out: yoloOutput(1,
		candidate{cx: 320, cy: 320, w: 100, h: 200, scores: []float32{0.9}},
		candidate{cx: 322, cy: 320, w: 100, h: 200, scores: []float32{0.7}},
		candidate{cx: 100, cy: 100, w: 40, h: 80, scores: []float32{0.1}},
	)}
	cfg := DefaultConfig()
	d := &Detector{config: cfg, model: runner}

	got, err := d.Detect(context.Background(), image.NewRGBA(image.Rect(0, 0, 640, 640)), ClassPerson, 0.25)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 3, 640, 640}, runner.gotIn)
	require.Len(t, got, 1, "overlapping duplicate suppressed, weak candidate filtered")
	assert.InDelta(t, 0.9, got[0].Score, 1e-6)

	runner.err = errors.New("session lost")
	_, err = d.Detect(context.Background(), image.NewRGBA(image.Rect(0, 0, 64, 64)), ClassPerson, 0.25)
	require.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = d.Detect(ctx, image.NewRGBA(image.Rect(0, 0, 64, 64)), ClassPerson, 0.25)
	require.ErrorIs(t, err, context.Canceled)

	require.NoError(t, d.Close())
	assert.True(t, runner.closed)
	require.NoError(t, d.Close())
}

func TestConfigValidate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	cfg := DefaultConfig()
	cfg.InputSize = 100
	require.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.IoUThreshold = 0
	require.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.ModelPath = ""
	require.Error(t, cfg.Validate())
}

func TestNewMissingModel(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ModelPath = filepath.Join(t.TempDir(), "absent.onnx")
	_, err := New(cfg)
	require.Error(t, err)
}
