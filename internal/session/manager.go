// Package session tracks the monitoring session of one screen: starting and
// stopping it through the backend and auto-stopping activity sessions once
// their planned duration has elapsed.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrMissingPatient is returned when a start is requested without a patient.
var ErrMissingPatient = errors.New("patient id is required")

// API is the subset of the backend used to open and close sessions.
type API interface {
	StartFreeSession(ctx context.Context, patientID string) (string, error)
	StartActivity(ctx context.Context, patientID, activityID string) (string, error)
	StopSession(ctx context.Context) error
}

// Manager owns the session state of one screen.
//
// A start while a session is active is not rejected: the later response
// overwrites the state. Callers are expected to gate starts on State().Active().
type Manager struct {
	api    API
	logger *zap.Logger
	now    func() time.Time

	mu                sync.Mutex
	state             State
	autoStopAttempted bool

	listenerMu sync.RWMutex
	listeners  []func(Transition)
}

// NewManager creates an idle manager.
func NewManager(api API, logger *zap.Logger) *Manager {
	return &Manager{
		api:    api,
		logger: logger,
		now:    time.Now,
		state:  idle(),
	}
}

// OnTransition registers fn to be called after every start and stop.
func (m *Manager) OnTransition(fn func(Transition)) {
	m.listenerMu.Lock()
	defer m.listenerMu.Unlock()
	m.listeners = append(m.listeners, fn)
}

// State returns a copy of the current state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// StartFreeSession opens a session without a planned duration.
func (m *Manager) StartFreeSession(ctx context.Context, patientID string) (string, error) {
	if patientID == "" {
		return "", ErrMissingPatient
	}
	id, err := m.api.StartFreeSession(ctx, patientID)
	if err != nil {
		return "", fmt.Errorf("start free session: %w", err)
	}

	m.begin(State{
		Kind:      KindFree,
		SessionID: id,
		PatientID: patientID,
	})
	return id, nil
}

// StartActivity opens a session bound to an activity.
func (m *Manager) StartActivity(ctx context.Context, patientID string, activity Activity) (string, error) {
	if patientID == "" {
		return "", ErrMissingPatient
	}
	id, err := m.api.StartActivity(ctx, patientID, activity.ID)
	if err != nil {
		return "", fmt.Errorf("start activity %s: %w", activity.ID, err)
	}

	m.begin(State{
		Kind:       KindActivity,
		SessionID:  id,
		PatientID:  patientID,
		ActivityID: activity.ID,
		Planned:    plannedSeconds(activity.Planned),
	})
	return id, nil
}

// plannedSeconds rounds a positive planned duration up to whole seconds so
// that any plan ends on a tick.
func plannedSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int((d + time.Second - 1) / time.Second)
}

func (m *Manager) begin(s State) {
	s.StartedAt = m.now()

	m.mu.Lock()
	if m.state.Active() {
		m.logger.Warn("Session start overwrote an active session",
			zap.String("previous_session_id", m.state.SessionID),
			zap.String("session_id", s.SessionID),
		)
	}
	m.state = s
	m.autoStopAttempted = false
	m.mu.Unlock()

	m.logger.Info("Session started",
		zap.String("session_id", s.SessionID),
		zap.String("kind", string(s.Kind)),
		zap.String("activity_id", s.ActivityID),
		zap.Int("planned_seconds", s.Planned),
	)
	m.emit(Transition{Type: TransitionStarted, State: s, At: s.StartedAt})
}

// Stop ends the active session. Without an active session it does nothing.
func (m *Manager) Stop(ctx context.Context) error {
	return m.stop(ctx, ReasonManual)
}

// Teardown stops an active session because its screen is going away.
func (m *Manager) Teardown(ctx context.Context) error {
	return m.stop(ctx, ReasonTeardown)
}

func (m *Manager) stop(ctx context.Context, reason StopReason) error {
	m.mu.Lock()
	current := m.state
	m.mu.Unlock()

	if !current.Active() || current.SessionID == "" {
		return nil
	}

	if err := m.api.StopSession(ctx); err != nil {
		return fmt.Errorf("stop session %s: %w", current.SessionID, err)
	}

	m.mu.Lock()
	ended := m.state
	if ended.SessionID != current.SessionID {
		// A newer session started while the stop was in flight.
		m.mu.Unlock()
		ended = current
	} else {
		m.state = idle()
		m.mu.Unlock()
	}

	m.logger.Info("Session stopped",
		zap.String("session_id", ended.SessionID),
		zap.String("reason", string(reason)),
		zap.Int("elapsed_seconds", ended.Elapsed),
	)
	m.emit(Transition{Type: TransitionStopped, Reason: reason, State: ended, At: m.now()})
	return nil
}

// Tick advances the elapsed counter by one second. When an activity session
// reaches its planned duration the manager stops it. The automatic stop is
// attempted once; if it fails the session stays active until stopped by hand.
func (m *Manager) Tick(ctx context.Context) error {
	m.mu.Lock()
	if !m.state.Active() {
		m.mu.Unlock()
		return nil
	}
	m.state.Elapsed++
	due := m.state.Kind == KindActivity &&
		m.state.Planned > 0 &&
		m.state.Elapsed >= m.state.Planned &&
		!m.autoStopAttempted
	if due {
		m.autoStopAttempted = true
	}
	m.mu.Unlock()

	if !due {
		return nil
	}

	if err := m.stop(ctx, ReasonDuration); err != nil {
		m.logger.Error("Automatic session stop failed", zap.Error(err))
		return err
	}
	return nil
}

func (m *Manager) emit(t Transition) {
	m.listenerMu.RLock()
	listeners := make([]func(Transition), len(m.listeners))
	copy(listeners, m.listeners)
	m.listenerMu.RUnlock()

	for _, fn := range listeners {
		fn(t)
	}
}
