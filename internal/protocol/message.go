package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// Message is the envelope for all WebSocket messages.
type Message struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewMessage creates a server-originated message with the current timestamp.
func NewMessage(msgType string, payload interface{}) (*Message, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return &Message{
		Type:      msgType,
		Payload:   data,
		Timestamp: time.Now().UTC(),
	}, nil
}

// Server → Client message types.
const (
	TypeScreenSnapshot = "screen.snapshot"
	TypeRosterSnapshot = "roster.snapshot"
	TypeSessionStarted = "session.started"
	TypeError          = "error"
)

// Client → Server message types.
const (
	TypeSessionStartFree     = "session.startFree"
	TypeSessionStartActivity = "session.startActivity"
	TypeSessionStop          = "session.stop"
	TypeThresholdsSave       = "thresholds.save"
)

// Error codes.
const (
	ErrInvalidMessage = "INVALID_MESSAGE"
	ErrRequestFailed  = "REQUEST_FAILED"
	ErrUnauthorized   = "UNAUTHORIZED"
	ErrSessionActive  = "SESSION_ACTIVE"
)

// Server → Client payloads. Screen and roster snapshots are sent as the
// monitor package's render models.

type SessionStartedPayload struct {
	SessionID  string `json:"sessionId"`
	ActivityID string `json:"activityId,omitempty"`
}

type ErrorPayload struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Client → Server payloads.

type SessionStartActivityPayload struct {
	ActivityID string `json:"activityId"`
}

type ThresholdsSavePayload struct {
	Min int `json:"min"`
	Max int `json:"max"`
}
