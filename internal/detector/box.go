package detector

import "math"

// Box is an axis-aligned box in source image pixels.
type Box struct {
	X1, Y1, X2, Y2 float64
}

// Area of the box; zero for degenerate boxes.
func (b Box) Area() float64 {
	return math.Max(0, b.X2-b.X1) * math.Max(0, b.Y2-b.Y1)
}

// IoU is the intersection over union of a and b.
func IoU(a, b Box) float64 {
	ix := math.Min(a.X2, b.X2) - math.Max(a.X1, b.X1)
	iy := math.Min(a.Y2, b.Y2) - math.Max(a.Y1, b.Y1)
	if ix <= 0 || iy <= 0 {
		return 0
	}
	inter := ix * iy
	union := a.Area() + b.Area() - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

// Result is one detected object.
type Result struct {
	Box   Box
	Score float64
	Class int
}
