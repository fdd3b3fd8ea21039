package protocol

import "encoding/json"

// DiagEnvelope wraps one diagnostics payload for the admin HTTP surface
// and the observer stream's DIAG frames. Kind names the payload shape
// ("engine", "resolver", "hubs", "stats").
type DiagEnvelope struct {
	Type            string          `json:"type"`
	ProtocolVersion string          `json:"protocol_version"`
	Tick            uint64          `json:"tick"`
	Kind            string          `json:"kind"`
	Payload         json.RawMessage `json:"payload"`
}

func NewDiagEnvelope(tick uint64, kind string, payload any) (DiagEnvelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return DiagEnvelope{}, err
	}
	return DiagEnvelope{
		Type:            TypeDiag,
		ProtocolVersion: Version,
		Tick:            tick,
		Kind:            kind,
		Payload:         raw,
	}, nil
}

type ErrorMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Code            string `json:"code"`
	Message         string `json:"message,omitempty"`
}

func NewError(code, message string) ErrorMsg {
	return ErrorMsg{Type: TypeError, ProtocolVersion: Version, Code: code, Message: message}
}
