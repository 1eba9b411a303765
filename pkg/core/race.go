// pkg/core/race.go
package core

import (
	"math"
	"time"
)

// Track and race constants fixed by the race contract.
const (
	LapLength      = 400.0
	TotalLaps      = 3
	FinishDistance = LapLength * TotalLaps
)

// RaceStatus is the lifecycle state of a race.
type RaceStatus string

const (
	StatusIdle     RaceStatus = "idle"
	StatusRunning  RaceStatus = "running"
	StatusFinished RaceStatus = "finished"
)

// RaceInfo describes a race at the moment it starts.
type RaceInfo struct {
	ID          string                  `json:"id"`
	StartTime   time.Time               `json:"startTime"`
	Competitors [2]CompetitorAttributes `json:"competitors"`
}

// RaceResult is reported once when the finish line is crossed.
type RaceResult struct {
	RaceID      string   `json:"raceId"`
	WinnerIndex int      `json:"winnerIndex"`
	WinnerID    string   `json:"winnerId"`
	WinnerName  string   `json:"winnerName"`
	Ticks       uint64   `json:"ticks"`
	RaceTime    float64  `json:"raceTime"` // simulated seconds
	Contacts    int      `json:"contacts"`
	Final       Snapshot `json:"final"`
}

// CompetitorSnapshot is the externally visible state of one competitor.
type CompetitorSnapshot struct {
	Distance float64 `json:"distance"`
	Velocity float64 `json:"velocity"`
	Stamina  float64 `json:"stamina"`
	Lap      int     `json:"lap"`
	Phase    float64 `json:"phase"` // distance within the current lap
}

// Snapshot is an immutable point-in-time projection of a race.
type Snapshot struct {
	RaceID      string                `json:"raceId,omitempty"`
	Status      RaceStatus            `json:"status"`
	Tick        uint64                `json:"tick"`
	TimestampMs float64               `json:"timestampMs"`
	Competitors [2]CompetitorSnapshot `json:"competitors"`
}

// LapOf returns the completed lap count for a distance, capped at TotalLaps.
func LapOf(distance float64) int {
	if distance <= 0 {
		return 0
	}
	return int(math.Min(TotalLaps, math.Floor(distance/LapLength)))
}

// PhaseOf returns the distance travelled within the current lap.
func PhaseOf(distance float64) float64 {
	return math.Mod(distance, LapLength)
}

// SnapshotOf projects a competitor state.
func SnapshotOf(s CompetitorState) CompetitorSnapshot {
	return CompetitorSnapshot{
		Distance: s.Distance,
		Velocity: s.Velocity,
		Stamina:  s.Stamina,
		Lap:      LapOf(s.Distance),
		Phase:    PhaseOf(s.Distance),
	}
}
