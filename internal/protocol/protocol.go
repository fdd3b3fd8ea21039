package protocol

import "encoding/json"

const Version = "1.0"

// Message types. TICK/INTENT/OUTCOME are JSONL log records; DIAG and
// ERROR frame the admin and observer surfaces.
const (
	TypeTick    = "TICK"
	TypeIntent  = "INTENT"
	TypeOutcome = "OUTCOME"
	TypeDiag    = "DIAG"
	TypeError   = "ERROR"
)

// BaseMessage lets us route unknown JSON messages by type.
type BaseMessage struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version,omitempty"`
}

func DecodeBase(b []byte) (BaseMessage, error) {
	var m BaseMessage
	err := json.Unmarshal(b, &m)
	return m, err
}
