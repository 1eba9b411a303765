package track

import (
	"fmt"
	"math"

	geom "github.com/peterstace/simplefeatures/geom"

	"github.com/poppop/racer/pkg/core"
)

// MinSegments is the fewest segments an outline is drawn with.
const MinSegments = 3

// Oval maps race distance onto an ellipse with semi-axes RX and RY. Distance
// zero is the finish line at (RX, 0) and the lap runs counter-clockwise.
type Oval struct {
	RX float64
	RY float64
}

// Phase returns the fraction of the current lap completed, in [0, 1).
func (o Oval) Phase(distance float64) float64 {
	p := core.PhaseOf(distance) / core.LapLength
	if p < 0 {
		p += 1
	}
	return p
}

// Angle returns the angle in radians of distance around the oval.
func (o Oval) Angle(distance float64) float64 {
	return o.Phase(distance) * 2 * math.Pi
}

// XY returns the plane coordinates of distance.
func (o Oval) XY(distance float64) geom.XY {
	theta := o.Angle(distance)
	return geom.XY{X: o.RX * math.Cos(theta), Y: o.RY * math.Sin(theta)}
}

// Position returns distance as a point on the oval. It fails when the oval's
// axes are not finite.
func (o Oval) Position(distance float64) (geom.Point, error) {
	pt, err := geom.NewPoint(geom.Coordinates{
		XY:   o.XY(distance),
		Type: geom.DimXY,
	})
	if err != nil {
		return geom.Point{}, fmt.Errorf("position at %v: %w", distance, err)
	}
	return pt, nil
}

// FinishLine returns the point where every lap starts and ends.
func (o Oval) FinishLine() (geom.Point, error) {
	return o.Position(0)
}

// Outline returns the oval as a closed line string of the given number of
// segments. A collapsed oval (both axes zero) has no outline and fails.
func (o Oval) Outline(segments int) (geom.LineString, error) {
	if segments < MinSegments {
		segments = MinSegments
	}

	flat := make([]float64, 0, (segments+1)*2)
	for i := 0; i < segments; i++ {
		xy := o.XY(core.LapLength * float64(i) / float64(segments))
		flat = append(flat, xy.X, xy.Y)
	}
	flat = append(flat, flat[0], flat[1])

	ls, err := geom.NewLineString(geom.NewSequence(flat, geom.DimXY))
	if err != nil {
		return geom.LineString{}, fmt.Errorf("oval outline: %w", err)
	}
	return ls, nil
}

// Lap returns the 1-based lap a competitor at distance is on, capped at
// core.TotalLaps.
func (o Oval) Lap(distance float64) int {
	return min(core.LapOf(distance)+1, core.TotalLaps)
}
