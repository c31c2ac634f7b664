package testutil

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/require"
)

// ImageSize represents frame dimensions.
type ImageSize struct {
	Width  int
	Height int
}

var (
	// Common camera frame sizes.
	SmallSize  = ImageSize{320, 240}
	MediumSize = ImageSize{640, 480}
)

// Figure is a person-shaped block centred at CenterX, standing on the
// bottom fifth of the frame.
type Figure struct {
	CenterX float64
	Width   int
	Height  int
	Color   color.Color
}

// SceneConfig describes one synthetic doorway frame.
type SceneConfig struct {
	Size       ImageSize
	Background color.Color
	Figures    []Figure
	Blur       float64 // gaussian sigma, 0 for sharp edges
}

// DefaultSceneConfig returns an empty grey doorway.
func DefaultSceneConfig() SceneConfig {
	return SceneConfig{
		Size:       SmallSize,
		Background: color.RGBA{R: 128, G: 128, B: 128, A: 255},
	}
}

// FigureRect returns the pixel rectangle a figure occupies in a frame of
// the given size.
func FigureRect(f Figure, size ImageSize) image.Rectangle {
	floor := size.Height - size.Height/5
	x0 := int(math.Round(f.CenterX)) - f.Width/2
	return image.Rect(x0, floor-f.Height, x0+f.Width, floor).Intersect(image.Rect(0, 0, size.Width, size.Height))
}

// GenerateScene renders a frame.
func GenerateScene(cfg SceneConfig) (*image.NRGBA, error) {
	if cfg.Size.Width <= 0 || cfg.Size.Height <= 0 {
		return nil, fmt.Errorf("invalid frame size %dx%d", cfg.Size.Width, cfg.Size.Height)
	}
	img := image.NewNRGBA(image.Rect(0, 0, cfg.Size.Width, cfg.Size.Height))
	bg := cfg.Background
	if bg == nil {
		bg = color.Black
	}
	draw.Draw(img, img.Bounds(), &image.Uniform{C: bg}, image.Point{}, draw.Src)

	for _, f := range cfg.Figures {
		col := f.Color
		if col == nil {
			col = color.RGBA{R: 40, G: 60, B: 160, A: 255}
		}
		draw.Draw(img, FigureRect(f, cfg.Size), &image.Uniform{C: col}, image.Point{}, draw.Over)
	}

	if cfg.Blur > 0 {
		img = imaging.Blur(img, cfg.Blur)
	}
	return img, nil
}

// WalkingFrames renders n frames of a single figure moving linearly from
// fromX to toX.
func WalkingFrames(cfg SceneConfig, fig Figure, fromX, toX float64, n int) ([]image.Image, error) {
	frames := make([]image.Image, 0, n)
	for i := range n {
		f := fig
		f.CenterX = fromX
		if n > 1 {
			f.CenterX += (toX - fromX) * float64(i) / float64(n-1)
		}
		scene := cfg
		scene.Figures = append(append([]Figure(nil), cfg.Figures...), f)
		img, err := GenerateScene(scene)
		if err != nil {
			return nil, err
		}
		frames = append(frames, img)
	}
	return frames, nil
}

// SaveImage saves an image to the specified path as PNG.
func SaveImage(t *testing.T, img image.Image, path string) {
	t.Helper()

	dir := filepath.Dir(path)
	require.NoError(t, EnsureDir(dir), "Failed to create directory %s", dir)

	file, err := os.Create(path) //nolint:gosec // G304: Test file creation with controlled path
	require.NoError(t, err, "Failed to create file %s", path)
	defer func() {
		require.NoError(t, file.Close())
	}()

	require.NoError(t, png.Encode(file, img), "Failed to encode PNG image")
}

// SaveFrames writes frames into dir as frame_0000.png, frame_0001.png and
// so on, so lexical order is playback order.
func SaveFrames(t *testing.T, dir string, frames []image.Image) {
	t.Helper()
	for i, img := range frames {
		SaveImage(t, img, filepath.Join(dir, fmt.Sprintf("frame_%04d.png", i)))
	}
}

// CompareImages reports whether two images differ by at most tolerance,
// expressed as the mean per-pixel RGBA distance relative to the maximum.
func CompareImages(img1, img2 image.Image, tolerance float64) bool {
	bounds := img1.Bounds()
	if bounds != img2.Bounds() {
		return false
	}
	if bounds.Empty() {
		return true
	}

	var totalDiff, pixelCount float64
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r1, g1, b1, a1 := img1.At(x, y).RGBA()
			r2, g2, b2, a2 := img2.At(x, y).RGBA()

			dr := float64(r1) - float64(r2)
			dg := float64(g1) - float64(g2)
			db := float64(b1) - float64(b2)
			da := float64(a1) - float64(a2)

			totalDiff += math.Sqrt(dr*dr + dg*dg + db*db + da*da)
			pixelCount++
		}
	}

	maxDiff := math.Sqrt(4 * 65535 * 65535)
	return totalDiff/pixelCount/maxDiff <= tolerance
}
