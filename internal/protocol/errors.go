package protocol

import "warband.ai/internal/hostbridge"

const (
	// Protocol/transport validation.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"

	// Boundary verdicts on drained intents.
	ErrDuplicate     = "E_DUPLICATE"
	ErrUnknownAgent  = "E_UNKNOWN_AGENT"
	ErrInvalidTarget = "E_INVALID_TARGET"

	// Admin/observer layer.
	ErrQueueFull = "E_QUEUE_FULL"
	ErrRateLimit = "E_RATE_LIMIT"
	ErrStale     = "E_STALE"
	ErrInternal  = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest: {},
	ErrDuplicate:       {},
	ErrUnknownAgent:    {},
	ErrInvalidTarget:   {},
	ErrQueueFull:       {},
	ErrRateLimit:       {},
	ErrStale:           {},
	ErrInternal:        {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}

// CodeForAck maps a host verdict to its wire error code. Accepted maps
// to the empty string so it drops out of omitempty fields.
func CodeForAck(a hostbridge.Ack) string {
	switch a {
	case hostbridge.AckAccepted:
		return ""
	case hostbridge.AckDuplicate:
		return ErrDuplicate
	case hostbridge.AckUnknownAgent:
		return ErrUnknownAgent
	case hostbridge.AckInvalidTarget:
		return ErrInvalidTarget
	default:
		return ErrInternal
	}
}
