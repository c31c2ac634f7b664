package utils

import (
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsSupportedImage(t *testing.T) {
	assert.True(t, IsSupportedImage("a/frame_001.JPG"))
	assert.True(t, IsSupportedImage("x.bmp"))
	assert.False(t, IsSupportedImage("notes.txt"))
	assert.False(t, IsSupportedImage("noext"))
}

func TestLoadImage(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f.png")

	src := image.NewRGBA(image.Rect(0, 0, 8, 6))
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, src))
	require.NoError(t, f.Close())

	img, err := LoadImage(path)
	require.NoError(t, err)
	assert.Equal(t, 8, img.Bounds().Dx())

	_, err = LoadImage(filepath.Join(dir, "missing.png"))
	var ie *ImageError
	require.True(t, errors.As(err, &ie))
	assert.Equal(t, "load", ie.Operation)
	assert.ErrorIs(t, err, os.ErrNotExist)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.jpg"), []byte("nope"), 0o600))
	_, err = LoadImage(filepath.Join(dir, "bad.jpg"))
	require.True(t, errors.As(err, &ie))
	assert.Equal(t, "decode", ie.Operation)

	_, err = LoadImage("x.gif")
	require.Error(t, err)
}

func TestDrawing(t *testing.T) {
	red := color.RGBA{R: 255, A: 255}
	dst := image.NewRGBA(image.Rect(0, 0, 20, 20))

	DrawVLine(dst, 10, red, 3)
	assert.Equal(t, red, dst.RGBAAt(9, 0))
	assert.Equal(t, red, dst.RGBAAt(11, 19))
	assert.NotEqual(t, red, dst.RGBAAt(12, 5))

	dst = image.NewRGBA(image.Rect(0, 0, 20, 20))
	DrawRect(dst, image.Rect(2, 2, 10, 10), red, 1)
	assert.Equal(t, red, dst.RGBAAt(2, 2))
	assert.Equal(t, red, dst.RGBAAt(9, 9))
	assert.NotEqual(t, red, dst.RGBAAt(5, 5))

	// fully clipped does not panic
	FillRect(dst, image.Rect(-10, -10, -1, -1), red)
}
