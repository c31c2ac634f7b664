package ledger

import (
	"testing"
	"time"

	"github.com/MeKo-Tech/doorcount/internal/crossing"
	"github.com/stretchr/testify/assert"
)

func TestLedger_Apply(t *testing.T) {
	tests := []struct {
		name    string
		swap    bool
		dir     crossing.Direction
		wantIn  int
		wantOut int
	}{
		{name: "rightward is in", dir: crossing.Rightward, wantIn: 1},
		{name: "leftward is out", dir: crossing.Leftward, wantOut: 1},
		{name: "swapped rightward is out", swap: true, dir: crossing.Rightward, wantOut: 1},
		{name: "swapped leftward is in", swap: true, dir: crossing.Leftward, wantIn: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := New(tt.swap)
			in, out := l.Apply(tt.dir)
			assert.Equal(t, tt.wantIn, in)
			assert.Equal(t, tt.wantOut, out)
		})
	}
}

func TestLedger_OccupancyNeverNegative(t *testing.T) {
	l := New(false)
	l.Apply(crossing.Leftward)
	l.Apply(crossing.Leftward)
	l.Apply(crossing.Rightward)

	assert.Equal(t, 1, l.In())
	assert.Equal(t, 2, l.Out())
	assert.Equal(t, 0, l.Occupancy())

	l.Apply(crossing.Rightward)
	l.Apply(crossing.Rightward)
	assert.Equal(t, 1, l.Occupancy())
}

func TestLedger_ToggleSwap(t *testing.T) {
	l := New(false)
	l.Apply(crossing.Rightward)

	assert.True(t, l.ToggleSwap())
	l.Apply(crossing.Rightward)
	assert.Equal(t, 1, l.In(), "toggle must not alter counted events")
	assert.Equal(t, 1, l.Out())

	assert.False(t, l.ToggleSwap())
	l.Apply(crossing.Rightward)
	assert.Equal(t, 2, l.In())
}

func TestLedger_ResetKeepsOrientation(t *testing.T) {
	l := New(true)
	l.Apply(crossing.Rightward)
	l.Apply(crossing.Leftward)
	l.Reset()

	assert.Equal(t, 0, l.In())
	assert.Equal(t, 0, l.Out())
	assert.True(t, l.Swap())
}

func TestLedger_Snapshot(t *testing.T) {
	at := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)
	l := New(false)
	l.Apply(crossing.Rightward)
	l.Apply(crossing.Rightward)
	l.Apply(crossing.Leftward)

	assert.Equal(t, Snapshot{In: 2, Out: 1, Occupancy: 1, At: at}, l.Snapshot(at))
	assert.Equal(t, LabelOut, l.Label(crossing.Leftward))
}
