// Package overlay draws the counting line, tracked boxes and counts onto a frame.
package overlay

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"io"
	"math"
	"strconv"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/MeKo-Tech/doorcount/internal/counter"
	"github.com/MeKo-Tech/doorcount/internal/utils"
)

var (
	lineColor      = color.RGBA{R: 255, G: 255, A: 255}
	trackedColor   = color.RGBA{G: 220, A: 255}
	untrackedColor = color.RGBA{R: 160, G: 160, B: 160, A: 255}
	crossedColor   = color.RGBA{R: 255, G: 64, B: 64, A: 255}
	bannerColor    = color.RGBA{A: 180}
	textColor      = color.White
)

// Render returns a copy of the outcome's frame with annotations. A blank
// canvas of the given fallback size is used when the outcome has no frame.
func Render(o counter.Outcome, fallback image.Rectangle) *image.RGBA {
	bounds := fallback
	if o.Frame.Image != nil {
		bounds = o.Frame.Image.Bounds()
	}
	dst := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	if o.Frame.Image != nil {
		draw.Draw(dst, dst.Bounds(), o.Frame.Image, bounds.Min, draw.Src)
	}

	crossed := make(map[int]bool, len(o.Events))
	for _, ev := range o.Events {
		crossed[ev.TrackID] = true
	}

	for _, d := range o.Detections {
		rect := image.Rect(
			int(math.Floor(d.Box.X1)), int(math.Floor(d.Box.Y1)),
			int(math.Ceil(d.Box.X2)), int(math.Ceil(d.Box.Y2)),
		)
		col := untrackedColor
		if d.TrackID != nil {
			col = trackedColor
			if crossed[*d.TrackID] {
				col = crossedColor
			}
			label(dst, rect.Min.X+2, rect.Min.Y+13, "#"+strconv.Itoa(*d.TrackID), col)
		}
		utils.DrawRect(dst, rect, col, 2)
	}

	utils.DrawVLine(dst, int(math.Round(o.LineX)), lineColor, 2)
	banner(dst, Banner(o))
	return dst
}

// Banner is the count summary drawn at the top of the frame.
func Banner(o counter.Outcome) string {
	s := o.Snapshot
	text := fmt.Sprintf("IN: %d  OUT: %d  Inside: %d", s.In, s.Out, s.Occupancy)
	if s.Swap {
		text += "  [swapped]"
	}
	return text
}

func banner(dst *image.RGBA, text string) {
	face := basicfont.Face7x13
	w := font.MeasureString(face, text).Ceil() + 8
	utils.FillRect(dst, image.Rect(0, 0, w, 18), bannerColor)
	label(dst, 4, 13, text, textColor)
}

func label(dst *image.RGBA, x, y int, text string, col color.Color) {
	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(col),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(text)
}

// EncodeJPEG writes img as JPEG.
func EncodeJPEG(w io.Writer, img image.Image, quality int) error {
	if quality <= 0 || quality > 100 {
		quality = jpeg.DefaultQuality
	}
	return jpeg.Encode(w, img, &jpeg.Options{Quality: quality})
}
