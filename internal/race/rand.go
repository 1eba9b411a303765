package race

import (
	"math/rand/v2"
	"time"
)

// RandSource supplies uniform [0,1) values for the luck perturbation.
// *rand.Rand satisfies it.
type RandSource interface {
	Float64() float64
}

// NewSeededRand returns a deterministic source. A zero seed is replaced with
// the current time, matching the unseeded behaviour of an ad-hoc race.
func NewSeededRand(seed int64) *rand.Rand {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return rand.New(rand.NewPCG(uint64(seed), uint64(seed)^0x9e3779b97f4a7c15))
}

// FixedRand always returns the same value. FixedRand(0.5) disables luck.
type FixedRand float64

func (f FixedRand) Float64() float64 { return float64(f) }
