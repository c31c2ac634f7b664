package detector

import "fmt"

// decode reads a YOLOv8-style [1, 4+C, N] output. Rows 0..3 hold cx, cy, w, h
// in input pixels; rows 4.. hold per-class scores. class < 0 keeps the best
// class of every candidate.
func decode(out []float32, shape []int64, lb Letterbox, class int, minScore float64) ([]Result, error) {
	if len(shape) != 3 || shape[0] != 1 {
		return nil, fmt.Errorf("expected output shape [1, 4+C, N], got %v", shape)
	}
	rows, n := int(shape[1]), int(shape[2])
	classes := rows - 4
	if classes < 1 {
		return nil, fmt.Errorf("output has no class rows: %v", shape)
	}
	if len(out) != rows*n {
		return nil, fmt.Errorf("output length %d does not match shape %v", len(out), shape)
	}
	if class >= classes {
		return nil, fmt.Errorf("class %d out of range (model has %d)", class, classes)
	}

	at := func(r, i int) float64 { return float64(out[r*n+i]) }

	var results []Result
	for i := 0; i < n; i++ {
		best, score := class, 0.0
		if class >= 0 {
			score = at(4+class, i)
		} else {
			for c := 0; c < classes; c++ {
				if s := at(4+c, i); s > score {
					best, score = c, s
				}
			}
		}
		if score < minScore {
			continue
		}

		cx, cy, w, h := at(0, i), at(1, i), at(2, i), at(3, i)
		box := lb.ToSource(Box{X1: cx - w/2, Y1: cy - h/2, X2: cx + w/2, Y2: cy + h/2})
		if box.Area() <= 0 {
			continue
		}
		results = append(results, Result{Box: box, Score: score, Class: best})
	}
	return results, nil
}
