package race

import (
	"math"

	"github.com/poppop/racer/pkg/core"
)

// Contact describes a resolved contact between the two competitors.
type Contact struct {
	Fired          bool
	Heavy          int
	Light          int
	Push           float64 // displacement applied to the light competitor
	VelocityFactor float64 // multiplier applied to the light competitor's velocity
	CurveBias      float64
}

// Impact is the contact weight of a competitor.
func Impact(a core.CompetitorAttributes) float64 {
	return a.Weight + ContactCorneringImpact*a.Cornering
}

// ResolveContact applies the contact rule once and decays the cooldown by dt.
//
// The curve bias is always taken from competitor 0's position, whichever side
// ends up light.
func ResolveContact(
	attrs [2]core.CompetitorAttributes,
	states [2]core.CompetitorState,
	cooldown, dt float64,
) ([2]core.CompetitorState, float64, Contact) {
	var c Contact

	gap := math.Abs(states[0].Distance - states[1].Distance)
	if gap < ContactEpsilon && cooldown <= 0 {
		c.Fired = true
		c.CurveBias = CurveIntensity(states[0].Distance)

		c.Heavy, c.Light = 0, 1
		if Impact(attrs[0]) < Impact(attrs[1]) {
			c.Heavy, c.Light = 1, 0
		}

		lightDiff := states[c.Light].Distance - states[c.Heavy].Distance
		push := ContactEpsilon - math.Abs(lightDiff)
		if push > 0 {
			direction := 1.0
			if lightDiff < 0 {
				direction = -1
			}
			before := states[c.Light].Distance
			states[c.Light].Distance = math.Max(0, before+direction*push)
			c.Push = states[c.Light].Distance - before
		}

		c.VelocityFactor = ContactPenaltyBase - ContactPenaltyCurve*c.CurveBias +
			ContactCorneringRelief*attrs[c.Light].Cornering
		states[c.Light].Velocity *= c.VelocityFactor

		cooldown = ContactCooldown
	}

	cooldown = math.Max(0, cooldown-ClampDelta(dt))
	return states, cooldown, c
}
