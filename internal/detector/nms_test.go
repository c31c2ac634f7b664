package detector

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
)

func TestIoU(t *testing.T) {
	a := Box{X1: 0, Y1: 0, X2: 10, Y2: 10}
	assert.InDelta(t, 1.0, IoU(a, a), 1e-9)
	assert.InDelta(t, 0.0, IoU(a, Box{X1: 20, Y1: 20, X2: 30, Y2: 30}), 1e-9)
	assert.InDelta(t, 25.0/175.0, IoU(a, Box{X1: 5, Y1: 5, X2: 15, Y2: 15}), 1e-9)
	assert.InDelta(t, 0.0, IoU(Box{}, Box{}), 1e-9)
}

func TestNonMaxSuppression(t *testing.T) {
	in := []Result{
		{Box: Box{X1: 0, Y1: 0, X2: 10, Y2: 10}, Score: 0.6},
		{Box: Box{X1: 1, Y1: 1, X2: 11, Y2: 11}, Score: 0.9},
		{Box: Box{X1: 1, Y1: 1, X2: 11, Y2: 11}, Score: 0.8, Class: 1},
		{Box: Box{X1: 50, Y1: 50, X2: 60, Y2: 60}, Score: 0.7},
	}
	kept := NonMaxSuppression(in, 0.45)
	assert.Len(t, kept, 3)
	assert.InDelta(t, 0.9, kept[0].Score, 1e-9)
	assert.InDelta(t, 0.6, in[0].Score, 1e-9, "input is not reordered")
}

func genResult() gopter.Gen {
	return gopter.CombineGens(
		gen.Float64Range(0, 190),
		gen.Float64Range(0, 190),
		gen.Float64Range(0.1, 1.0),
	).Map(func(vals []interface{}) Result {
		x, _ := vals[0].(float64)
		y, _ := vals[1].(float64)
		s, _ := vals[2].(float64)
		return Result{Box: Box{X1: x, Y1: y, X2: x + 10, Y2: y + 10}, Score: s}
	})
}

func TestNonMaxSuppression_Properties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("output sorted by score", prop.ForAll(
		func(results []Result, thr float64) bool {
			kept := NonMaxSuppression(results, thr)
			for i := 1; i < len(kept); i++ {
				if kept[i].Score > kept[i-1].Score {
					return false
				}
			}
			return true
		},
		gen.SliceOfN(20, genResult()),
		gen.Float64Range(0.1, 0.9),
	))

	properties.Property("kept boxes overlap at most the threshold", prop.ForAll(
		func(results []Result, thr float64) bool {
			kept := NonMaxSuppression(results, thr)
			for i := range kept {
				for j := i + 1; j < len(kept); j++ {
					if IoU(kept[i].Box, kept[j].Box) > thr {
						return false
					}
				}
			}
			return len(kept) <= len(results)
		},
		gen.SliceOfN(20, genResult()),
		gen.Float64Range(0.1, 0.9),
	))

	properties.TestingRun(t)
}
