package monitor

import (
	"time"

	"github.com/smart-pulse-M1-GI/frontend/internal/backend"
	"github.com/smart-pulse-M1-GI/frontend/internal/session"
	"github.com/smart-pulse-M1-GI/frontend/internal/stream"
	"github.com/smart-pulse-M1-GI/frontend/internal/vitals"
)

// Snapshot is the render model of a patient screen. Aggregates are nil when
// the window holds no data.
type Snapshot struct {
	PatientID     string                 `json:"patientId"`
	Connection    stream.Status          `json:"connection"`
	Session       session.State          `json:"session"`
	Current       *int                   `json:"current"`
	Average       *int                   `json:"average"`
	Min           *int                   `json:"min"`
	Max           *int                   `json:"max"`
	OutOfRange    bool                   `json:"outOfRange"`
	Level         vitals.Level           `json:"level"`
	Thresholds    vitals.Thresholds      `json:"thresholds"`
	Series        []vitals.Sample        `json:"series"`
	Activities    []backend.Activity     `json:"activities"`
	Notifications []backend.Notification `json:"notifications,omitempty"`
	Unread        int                    `json:"unreadNotifications"`
	Error         string                 `json:"error,omitempty"`
	UpdatedAt     time.Time              `json:"updatedAt"`
}

func optional(v int, ok bool) *int {
	if !ok {
		return nil
	}
	return &v
}
