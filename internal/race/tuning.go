package race

import "github.com/poppop/racer/pkg/core"

const (
	// Motion model
	CorneringBoostBase  = 0.6
	CorneringBoostRange = 0.4
	SpeedCeilingBase    = 30.0
	SpeedCeilingPerTop  = 0.9
	AccelBase           = 15.0
	AccelPerTrait       = 0.7
	AccelWeightPenalty  = 0.18
	AccelFloor          = 4.0 // accel never drops below this regardless of weight
	StaminaDrainBase    = 0.4
	StaminaDrainVelDiv  = 110.0
	StaminaDrainScale   = 6.0
	FatigueThreshold    = 40.0
	FatigueCeilingMult  = 0.85
	FatigueAccelMult    = 0.8
	ExhaustedThreshold  = 15.0
	ExhaustedCeilingMul = 0.7
	ExhaustedAccelMult  = 0.6
	LuckNudgeScale      = 0.08

	// Contact
	ContactEpsilon         = 2.4
	ContactCooldown        = 0.35 // seconds
	ContactCorneringImpact = 0.4
	ContactPenaltyBase     = 0.7
	ContactPenaltyCurve    = 0.1
	ContactCorneringRelief = 0.0015

	// Timing
	MaxTickDelta       = 0.05  // seconds
	SnapshotThrottleMs = 120.0 // host milliseconds
)

// FinishDistance is the distance at which a competitor wins.
const FinishDistance = core.FinishDistance
