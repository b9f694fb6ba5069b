package session

import "time"

// Kind distinguishes the variants of a monitoring session.
type Kind string

const (
	KindIdle     Kind = "idle"
	KindFree     Kind = "free"
	KindActivity Kind = "activity"
)

// State is the session state of one screen. The zero value is Idle.
//
// Free sessions carry only SessionID. Activity sessions also carry the
// activity and its planned duration; Planned is zero when the activity has no
// prescribed length, in which case it never auto-stops.
type State struct {
	Kind       Kind      `json:"kind"`
	SessionID  string    `json:"sessionId,omitempty"`
	PatientID  string    `json:"patientId,omitempty"`
	ActivityID string    `json:"activityId,omitempty"`
	Elapsed    int       `json:"elapsedSeconds"`
	Planned    int       `json:"plannedSeconds,omitempty"`
	StartedAt  time.Time `json:"startedAt,omitempty"`
}

// Active reports whether a session is running.
func (s State) Active() bool {
	return s.Kind == KindFree || s.Kind == KindActivity
}

func idle() State { return State{Kind: KindIdle} }

// Activity identifies a prescribed activity to run a session for.
type Activity struct {
	ID      string
	Planned time.Duration
}

// StopReason tells why a session ended.
type StopReason string

const (
	ReasonManual   StopReason = "manual"
	ReasonDuration StopReason = "duration"
	ReasonTeardown StopReason = "teardown"
)

// TransitionType is started or stopped.
type TransitionType string

const (
	TransitionStarted TransitionType = "started"
	TransitionStopped TransitionType = "stopped"
)

// Transition is emitted after every successful start or stop. For a stop,
// State is the session as it was just before it ended.
type Transition struct {
	Type   TransitionType `json:"type"`
	Reason StopReason     `json:"reason,omitempty"`
	State  State          `json:"state"`
	At     time.Time      `json:"at"`
}
