package track

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poppop/racer/pkg/core"
)

var oval = Oval{RX: 10, RY: 6}

func TestPhase(t *testing.T) {
	tests := []struct {
		distance float64
		want     float64
	}{
		{distance: 0, want: 0},
		{distance: 100, want: 0.25},
		{distance: 400, want: 0},
		{distance: 1000, want: 0.5},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, oval.Phase(tt.distance), 1e-9, "distance %v", tt.distance)
	}
}

func TestPosition(t *testing.T) {
	tests := []struct {
		desc     string
		distance float64
		x, y     float64
	}{
		{desc: "finish line", distance: 0, x: 10, y: 0},
		{desc: "quarter lap", distance: 100, x: 0, y: 6},
		{desc: "half lap", distance: 200, x: -10, y: 0},
		{desc: "three quarters on lap two", distance: 700, x: 0, y: -6},
	}
	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			pt, err := oval.Position(tt.distance)
			require.NoError(t, err)
			coords, ok := pt.Coordinates()
			require.True(t, ok)
			assert.InDelta(t, tt.x, coords.X, 1e-9)
			assert.InDelta(t, tt.y, coords.Y, 1e-9)
		})
	}
}

func TestFinishLine(t *testing.T) {
	pt, err := oval.FinishLine()
	require.NoError(t, err)
	coords, ok := pt.Coordinates()
	require.True(t, ok)
	assert.Equal(t, 10.0, coords.X)
	assert.Equal(t, 0.0, coords.Y)
}

func TestOutline(t *testing.T) {
	ls, err := oval.Outline(360)
	require.NoError(t, err)
	assert.True(t, ls.IsClosed())

	seq := ls.Coordinates()
	assert.Equal(t, 361, seq.Length())
	assert.Equal(t, seq.GetXY(0), seq.GetXY(seq.Length()-1))

	// Ramanujan's approximation of the ellipse perimeter.
	a, b := oval.RX, oval.RY
	h := math.Pow(a-b, 2) / math.Pow(a+b, 2)
	want := math.Pi * (a + b) * (1 + 3*h/(10+math.Sqrt(4-3*h)))
	assert.InEpsilon(t, want, ls.Length(), 0.001)
}

func TestOutline_MinimumSegments(t *testing.T) {
	ls, err := oval.Outline(1)
	require.NoError(t, err)
	assert.Equal(t, MinSegments+1, ls.Coordinates().Length())
	assert.True(t, ls.IsClosed())
}

func TestDegenerateOval(t *testing.T) {
	_, err := Oval{}.Outline(12)
	assert.ErrorContains(t, err, "oval outline")

	_, err = Oval{RX: math.Inf(1), RY: 6}.Position(100)
	assert.ErrorContains(t, err, "position at 100")

	// a flat oval still has two distinct ends
	ls, err := Oval{RX: 10}.Outline(4)
	require.NoError(t, err)
	assert.True(t, ls.IsClosed())
}

func TestLap(t *testing.T) {
	assert.Equal(t, 1, oval.Lap(0))
	assert.Equal(t, 1, oval.Lap(399.9))
	assert.Equal(t, 2, oval.Lap(400))
	assert.Equal(t, 3, oval.Lap(850))
	assert.Equal(t, core.TotalLaps, oval.Lap(core.FinishDistance+50))
}
