package utils

import (
	"image"
	"image/color"
	"image/draw"
)

// DrawRect draws a rectangle outline into dst, clipped to its bounds.
func DrawRect(dst *image.RGBA, rect image.Rectangle, col color.Color, thickness int) {
	if thickness < 1 {
		thickness = 1
	}
	rect = rect.Canon()
	for t := range thickness {
		FillRect(dst, image.Rect(rect.Min.X, rect.Min.Y+t, rect.Max.X, rect.Min.Y+t+1), col)
		FillRect(dst, image.Rect(rect.Min.X, rect.Max.Y-1-t, rect.Max.X, rect.Max.Y-t), col)
		FillRect(dst, image.Rect(rect.Min.X+t, rect.Min.Y, rect.Min.X+t+1, rect.Max.Y), col)
		FillRect(dst, image.Rect(rect.Max.X-1-t, rect.Min.Y, rect.Max.X-t, rect.Max.Y), col)
	}
}

// DrawVLine draws a vertical line of the given thickness centered on x.
func DrawVLine(dst *image.RGBA, x int, col color.Color, thickness int) {
	if thickness < 1 {
		thickness = 1
	}
	b := dst.Bounds()
	left := x - (thickness-1)/2
	FillRect(dst, image.Rect(left, b.Min.Y, left+thickness, b.Max.Y), col)
}

// FillRect fills rect in dst, clipped to its bounds.
func FillRect(dst *image.RGBA, rect image.Rectangle, col color.Color) {
	rect = rect.Intersect(dst.Bounds())
	if rect.Empty() {
		return
	}
	draw.Draw(dst, rect, image.NewUniform(col), image.Point{}, draw.Over)
}
