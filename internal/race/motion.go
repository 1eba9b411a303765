package race

import (
	"math"

	"github.com/poppop/racer/pkg/core"
)

// Step carries the intermediate values of one motion update.
type Step struct {
	CurveIntensity float64
	SpeedCeiling   float64
	AccelRate      float64
	LuckNudge      float64
}

// Phase returns the angular position (radians) of a distance on the oval.
func Phase(distance float64) float64 {
	return 2 * math.Pi * core.PhaseOf(distance) / core.LapLength
}

// CurveIntensity is |sin(phase)|; it peaks twice per lap at the corners.
func CurveIntensity(distance float64) float64 {
	return math.Abs(math.Sin(Phase(distance)))
}

// ClampDelta bounds an elapsed-time slice to [0, MaxTickDelta] seconds.
func ClampDelta(dt float64) float64 {
	if math.IsNaN(dt) || dt < 0 {
		return 0
	}
	return math.Min(dt, MaxTickDelta)
}

// Advance moves one competitor forward by dt seconds.
func Advance(a core.CompetitorAttributes, s core.CompetitorState, dt float64, rng RandSource) core.CompetitorState {
	next, _ := AdvanceDetail(a, s, dt, rng)
	return next
}

// AdvanceDetail is Advance that also reports the computed ceiling and rates.
func AdvanceDetail(a core.CompetitorAttributes, s core.CompetitorState, dt float64, rng RandSource) (core.CompetitorState, Step) {
	dt = ClampDelta(dt)

	curve := CurveIntensity(s.Distance)
	corneringBoost := CorneringBoostBase + CorneringBoostRange*(a.Cornering/core.TraitMax)
	curveCoeff := 1 - curve*(1-corneringBoost)

	speedCeiling := (SpeedCeilingBase + SpeedCeilingPerTop*a.TopSpeed) * curveCoeff
	accelRate := math.Max(AccelFloor, AccelBase+AccelPerTrait*a.Accel-AccelWeightPenalty*a.Weight)

	drain := StaminaDrainBase + s.Velocity/StaminaDrainVelDiv
	s.Stamina = math.Max(0, s.Stamina-drain*dt*StaminaDrainScale)

	if s.Stamina < FatigueThreshold {
		speedCeiling *= FatigueCeilingMult
		accelRate *= FatigueAccelMult
	}
	if s.Stamina < ExhaustedThreshold {
		speedCeiling *= ExhaustedCeilingMul
		accelRate *= ExhaustedAccelMult
	}

	nudge := (rng.Float64() - 0.5) * a.Luck * LuckNudgeScale

	s.Velocity = math.Min(math.Max(s.Velocity+accelRate*dt+nudge, 0), speedCeiling)
	s.Distance += s.Velocity * dt

	return s, Step{
		CurveIntensity: curve,
		SpeedCeiling:   speedCeiling,
		AccelRate:      accelRate,
		LuckNudge:      nudge,
	}
}
