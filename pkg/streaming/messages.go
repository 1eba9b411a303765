package streaming

import (
	"encoding/json"
	"fmt"

	"github.com/poppop/racer/pkg/core"
)

// Message type constants matching the streaming protocol.
const (
	TypeRaceStarted  = "race_started"
	TypeSnapshot     = "snapshot"
	TypeRaceFinished = "race_finished"
	TypeRaceReset    = "race_reset"
	TypeAck          = "ack"
)

// Envelope wraps all messages sent over the WebSocket.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// AckMessage is the server's acknowledgement response.
type AckMessage struct {
	Type string `json:"type"` // always "ack"
	For  string `json:"for"`  // the message type being acknowledged
}

// RaceStartedPayload announces a race and its competitors.
type RaceStartedPayload struct {
	Race *core.RaceInfo `json:"race"`
}

// SnapshotPayload carries one throttled race snapshot.
type SnapshotPayload struct {
	Snapshot *core.Snapshot `json:"snapshot"`
}

// RaceFinishedPayload carries the final result.
type RaceFinishedPayload struct {
	Result *core.RaceResult `json:"result"`
}

// RaceResetPayload tells the viewer to clear the current race.
type RaceResetPayload struct {
	RaceID string `json:"raceId,omitempty"`
}

// Encode wraps payload in an envelope of the given type.
func Encode(msgType string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", msgType, err)
	}
	data, err := json.Marshal(Envelope{Type: msgType, Payload: raw})
	if err != nil {
		return nil, fmt.Errorf("marshal %s envelope: %w", msgType, err)
	}
	return data, nil
}
