// pkg/core/competitor.go
package core

import "math"

// Trait bounds shared by every numeric competitor attribute.
const (
	TraitMin = 0.0
	TraitMax = 100.0
)

// CompetitorAttributes is the per-race configuration of one competitor.
// It is immutable once a race has started.
type CompetitorAttributes struct {
	ID        string  `json:"id" mapstructure:"id"`
	Name      string  `json:"name" mapstructure:"name"`
	Color     string  `json:"color" mapstructure:"color"`
	Accel     float64 `json:"accel" mapstructure:"accel"`
	TopSpeed  float64 `json:"topSpeed" mapstructure:"topSpeed"`
	Stamina   float64 `json:"stamina" mapstructure:"stamina"`
	Cornering float64 `json:"cornering" mapstructure:"cornering"`
	Weight    float64 `json:"weight" mapstructure:"weight"`
	Luck      float64 `json:"luck" mapstructure:"luck"`
}

// Clamp returns a copy with every trait forced into [TraitMin, TraitMax].
// NaN is treated as TraitMin.
func (a CompetitorAttributes) Clamp() CompetitorAttributes {
	a.Accel = ClampTrait(a.Accel)
	a.TopSpeed = ClampTrait(a.TopSpeed)
	a.Stamina = ClampTrait(a.Stamina)
	a.Cornering = ClampTrait(a.Cornering)
	a.Weight = ClampTrait(a.Weight)
	a.Luck = ClampTrait(a.Luck)
	return a
}

// Label returns the display name, falling back to the identifier.
func (a CompetitorAttributes) Label() string {
	if a.Name != "" {
		return a.Name
	}
	return a.ID
}

// ClampTrait bounds a single trait value.
func ClampTrait(v float64) float64 {
	if math.IsNaN(v) {
		return TraitMin
	}
	return math.Min(math.Max(v, TraitMin), TraitMax)
}

// CompetitorState is the mutable physical state of one competitor during a race.
type CompetitorState struct {
	Distance float64 `json:"distance"`
	Velocity float64 `json:"velocity"`
	Stamina  float64 `json:"stamina"`
}

// NewCompetitorState creates the starting-line state for a competitor.
func NewCompetitorState(a CompetitorAttributes) CompetitorState {
	return CompetitorState{Stamina: ClampTrait(a.Stamina)}
}
