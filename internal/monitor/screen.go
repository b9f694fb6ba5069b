// Package monitor coordinates a live patient screen: the pulse stream, the
// rolling metrics window, threshold evaluation and the monitoring session,
// plus the periodic refresh of side data such as notifications.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/smart-pulse-M1-GI/frontend/internal/backend"
	"github.com/smart-pulse-M1-GI/frontend/internal/journal"
	"github.com/smart-pulse-M1-GI/frontend/internal/session"
	"github.com/smart-pulse-M1-GI/frontend/internal/store"
	"github.com/smart-pulse-M1-GI/frontend/internal/stream"
	"github.com/smart-pulse-M1-GI/frontend/internal/vitals"
)

const (
	defaultTickInterval     = time.Second
	defaultTeardownTimeout  = 5 * time.Second
	defaultSubscriberBufCap = 16
)

var (
	ErrSessionActive   = errors.New("a session is already running")
	ErrUnknownActivity = errors.New("unknown activity")
	ErrScreenClosed    = errors.New("screen is closed")
)

// Backend is the part of the REST client a screen uses.
type Backend interface {
	Thresholds(ctx context.Context, creds backend.Credentials, patientID string, fallback vitals.Thresholds) (vitals.Thresholds, error)
	SaveThresholds(ctx context.Context, creds backend.Credentials, patientID string, t vitals.Thresholds) error
	Activities(ctx context.Context, creds backend.Credentials, patientID string) ([]backend.Activity, error)
	StartFreeSession(ctx context.Context, creds backend.Credentials, patientID string) (string, error)
	StartActivity(ctx context.Context, creds backend.Credentials, patientID, activityID string) (string, error)
	StopSession(ctx context.Context, creds backend.Credentials) error
	Notifications(ctx context.Context, creds backend.Credentials, userID string) ([]backend.Notification, error)
}

// Journal records session starts and stops.
type Journal interface {
	RecordStart(ctx context.Context, e journal.Entry) error
	RecordStop(ctx context.Context, sessionID string, stoppedAt time.Time, reason string, stats journal.Stats) error
}

// LiveWriter publishes the latest reading for roster views.
type LiveWriter interface {
	Put(ctx context.Context, snap store.LiveSnapshot) error
	Delete(ctx context.Context, patientID string) error
}

// Options configures a Screen.
type Options struct {
	PatientID   string
	ViewerID    string // user whose notifications are refreshed; empty disables
	Credentials backend.Credentials

	Feed           stream.Feed
	ReconnectDelay time.Duration

	WindowCapacity    int
	DefaultThresholds vitals.Thresholds
	// WarningBand is read on every evaluation so configuration reloads apply
	// to open screens. Nil means no warning band.
	WarningBand func() int

	NotificationsEvery time.Duration
	TickInterval       time.Duration

	Journal Journal    // optional
	Live    LiveWriter // optional
	Logger  *zap.Logger
}

// Screen is one open patient detail view.
type Screen struct {
	opts     Options
	api      Backend
	logger   *zap.Logger
	stream   *stream.Client
	window   *vitals.Window
	sessions *session.Manager
	refresh  *Refresher

	mu            sync.Mutex
	thresholds    vitals.Thresholds
	activities    []backend.Activity
	notifications []backend.Notification
	lastErr       string
	opened        bool
	closed        bool
	cancel        context.CancelFunc
	tickDone      chan struct{}

	subMu sync.Mutex
	subs  map[string]chan Snapshot
}

// NewScreen wires a screen for opts.PatientID. Nothing runs until Open.
func NewScreen(api Backend, opts Options) *Screen {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.TickInterval <= 0 {
		opts.TickInterval = defaultTickInterval
	}
	logger := opts.Logger.With(zap.String("patient_id", opts.PatientID))

	s := &Screen{
		opts:       opts,
		api:        api,
		logger:     logger,
		stream:     stream.NewClient(opts.Feed, opts.ReconnectDelay, logger),
		window:     vitals.NewWindow(opts.WindowCapacity),
		refresh:    NewRefresher(logger),
		thresholds: opts.DefaultThresholds,
		subs:       make(map[string]chan Snapshot),
	}
	s.sessions = session.NewManager(sessionAPI{api: api, creds: opts.Credentials}, logger)
	return s
}

// sessionAPI binds the viewer's credentials for the session manager.
type sessionAPI struct {
	api   Backend
	creds backend.Credentials
}

func (a sessionAPI) StartFreeSession(ctx context.Context, patientID string) (string, error) {
	return a.api.StartFreeSession(ctx, a.creds, patientID)
}

func (a sessionAPI) StartActivity(ctx context.Context, patientID, activityID string) (string, error) {
	return a.api.StartActivity(ctx, a.creds, patientID, activityID)
}

func (a sessionAPI) StopSession(ctx context.Context) error {
	return a.api.StopSession(ctx, a.creds)
}

// Open loads thresholds and activities, connects the stream and starts the
// session ticker and refresher. An unauthorized backend answer aborts Open;
// other load failures fall back to defaults.
func (s *Screen) Open(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrScreenClosed
	}
	if s.opened {
		s.mu.Unlock()
		return nil
	}
	s.opened = true
	s.mu.Unlock()

	t, err := s.api.Thresholds(ctx, s.opts.Credentials, s.opts.PatientID, s.opts.DefaultThresholds)
	if errors.Is(err, backend.ErrUnauthorized) {
		return err
	}
	if err != nil {
		s.logger.Warn("Thresholds not loaded, using defaults", zap.Error(err))
		t = s.opts.DefaultThresholds
	}

	activities, err := s.api.Activities(ctx, s.opts.Credentials, s.opts.PatientID)
	if errors.Is(err, backend.ErrUnauthorized) {
		return err
	}
	if err != nil {
		s.logger.Warn("Activities not loaded", zap.Error(err))
		activities = nil
	}

	runCtx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	s.thresholds = t
	s.activities = activities
	s.cancel = cancel
	s.tickDone = make(chan struct{})
	s.mu.Unlock()

	s.stream.OnSample(s.handleSample)
	s.stream.OnStatus(func(stream.Status) { s.publish() })
	s.sessions.OnTransition(s.handleTransition)

	if err := s.stream.Connect(runCtx); err != nil {
		cancel()
		return fmt.Errorf("connect stream: %w", err)
	}
	go s.tickLoop(runCtx, s.tickDone)

	if s.opts.ViewerID != "" {
		s.refresh.Add("notifications", s.opts.NotificationsEvery, s.refreshNotifications)
	}
	s.refresh.Start(runCtx)

	s.logger.Info("Screen opened",
		zap.Int("min_bpm", t.Min),
		zap.Int("max_bpm", t.Max),
		zap.Int("activities", len(activities)),
	)
	s.publish()
	return nil
}

// Close releases every resource held by the screen: the ticker, the
// refresher and the stream connection. An active session is stopped with
// reason teardown. Close is idempotent.
func (s *Screen) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	cancel, tickDone := s.cancel, s.tickDone
	s.mu.Unlock()

	if cancel != nil {
		cancel()
		<-tickDone
	}
	s.refresh.Stop()
	s.stream.Disconnect()

	ctx, done := context.WithTimeout(context.Background(), defaultTeardownTimeout)
	defer done()
	if err := s.sessions.Teardown(ctx); err != nil {
		s.logger.Error("Failed to stop session on teardown", zap.Error(err))
	}

	if s.opts.Live != nil {
		if err := s.opts.Live.Delete(ctx, s.opts.PatientID); err != nil {
			s.logger.Warn("Failed to clear live snapshot", zap.Error(err))
		}
	}

	s.subMu.Lock()
	for id, ch := range s.subs {
		close(ch)
		delete(s.subs, id)
	}
	s.subMu.Unlock()

	s.logger.Info("Screen closed")
}

func (s *Screen) tickLoop(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(s.opts.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if !s.sessions.State().Active() {
			continue
		}
		if err := s.sessions.Tick(ctx); err != nil {
			s.setError(err)
		}
		s.publish()
	}
}

func (s *Screen) handleSample(sample vitals.Sample) {
	s.window.Append(sample)
	s.putLive(sample, s.sessions.State().Active())
	s.publish()
}

// putLive publishes sample to the live cache, if one is configured.
func (s *Screen) putLive(sample vitals.Sample, active bool) {
	if s.opts.Live == nil {
		return
	}
	s.mu.Lock()
	t := s.thresholds
	s.mu.Unlock()

	live := store.LiveSnapshot{
		PatientID: s.opts.PatientID,
		BPM:       sample.BPM,
		Status:    string(s.opts.evaluator().Classify(sample, t)),
		Active:    active,
		UpdatedAt: sample.Timestamp,
	}
	if err := s.opts.Live.Put(context.Background(), live); err != nil {
		s.logger.Warn("Failed to publish live snapshot", zap.Error(err))
	}
}

func (s *Screen) handleTransition(tr session.Transition) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTeardownTimeout)
	defer cancel()

	switch tr.Type {
	case session.TransitionStarted:
		s.window.Reset()
		if s.opts.Journal != nil {
			err := s.opts.Journal.RecordStart(ctx, journal.Entry{
				SessionID:  tr.State.SessionID,
				PatientID:  tr.State.PatientID,
				Kind:       string(tr.State.Kind),
				ActivityID: tr.State.ActivityID,
				StartedAt:  tr.At,
			})
			if err != nil {
				s.logger.Warn("Failed to journal session start", zap.Error(err))
			}
		}
	case session.TransitionStopped:
		if latest, ok := s.window.Latest(); ok {
			s.putLive(latest, false)
		}
		if s.opts.Journal != nil {
			avg, okAvg := s.window.Average()
			lo, okMin := s.window.Min()
			hi, okMax := s.window.Max()
			stats := journal.Stats{
				SampleCount: s.window.Len(),
				Avg:         optional(avg, okAvg),
				Min:         optional(lo, okMin),
				Max:         optional(hi, okMax),
			}
			if err := s.opts.Journal.RecordStop(ctx, tr.State.SessionID, tr.At, string(tr.Reason), stats); err != nil {
				s.logger.Warn("Failed to journal session stop", zap.Error(err))
			}
		}
	}
	s.publish()
}

func (s *Screen) refreshNotifications(ctx context.Context) error {
	ns, err := s.api.Notifications(ctx, s.opts.Credentials, s.opts.ViewerID)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.notifications = ns
	s.mu.Unlock()
	s.publish()
	return nil
}

func (o Options) evaluator() vitals.Evaluator {
	if o.WarningBand == nil {
		return vitals.Evaluator{}
	}
	return vitals.Evaluator{WarningBand: o.WarningBand()}
}

// StartFreeSession starts a session without a planned duration.
func (s *Screen) StartFreeSession(ctx context.Context) (string, error) {
	if s.sessions.State().Active() {
		return "", s.fail(ErrSessionActive)
	}
	id, err := s.sessions.StartFreeSession(ctx, s.opts.PatientID)
	if err != nil {
		return "", s.fail(err)
	}
	s.clearError()
	return id, nil
}

// StartActivity starts a session for one of the patient's activities.
func (s *Screen) StartActivity(ctx context.Context, activityID string) (string, error) {
	if s.sessions.State().Active() {
		return "", s.fail(ErrSessionActive)
	}

	s.mu.Lock()
	var found *backend.Activity
	for i := range s.activities {
		if s.activities[i].ID.String() == activityID {
			a := s.activities[i]
			found = &a
			break
		}
	}
	s.mu.Unlock()
	if found == nil {
		return "", s.fail(fmt.Errorf("%w: %s", ErrUnknownActivity, activityID))
	}

	id, err := s.sessions.StartActivity(ctx, s.opts.PatientID, session.Activity{
		ID:      activityID,
		Planned: found.PlannedDuration(),
	})
	if err != nil {
		return "", s.fail(err)
	}
	s.clearError()
	return id, nil
}

// StopSession stops the running session, if any.
func (s *Screen) StopSession(ctx context.Context) error {
	if err := s.sessions.Stop(ctx); err != nil {
		return s.fail(err)
	}
	s.clearError()
	return nil
}

// SaveThresholds persists new bounds and applies them to the screen.
func (s *Screen) SaveThresholds(ctx context.Context, t vitals.Thresholds) error {
	if err := t.Validate(); err != nil {
		return s.fail(err)
	}
	if err := s.api.SaveThresholds(ctx, s.opts.Credentials, s.opts.PatientID, t); err != nil {
		return s.fail(err)
	}
	s.mu.Lock()
	s.thresholds = t
	s.lastErr = ""
	s.mu.Unlock()
	s.publish()
	return nil
}

// Snapshot returns the current render model.
func (s *Screen) Snapshot() Snapshot {
	s.mu.Lock()
	thresholds := s.thresholds
	activities := append([]backend.Activity(nil), s.activities...)
	notifications := append([]backend.Notification(nil), s.notifications...)
	lastErr := s.lastErr
	s.mu.Unlock()

	state := s.sessions.State()
	cur, okCur := s.window.Current()
	avg, okAvg := s.window.Average()
	lo, okMin := s.window.Min()
	hi, okMax := s.window.Max()

	snap := Snapshot{
		PatientID:     s.opts.PatientID,
		Connection:    s.stream.Status(),
		Session:       state,
		Current:       optional(cur, okCur),
		Average:       optional(avg, okAvg),
		Min:           optional(lo, okMin),
		Max:           optional(hi, okMax),
		Level:         vitals.LevelUnknown,
		Thresholds:    thresholds,
		Series:        s.window.Samples(),
		Activities:    activities,
		Notifications: notifications,
		Unread:        backend.UnreadCount(notifications),
		Error:         lastErr,
		UpdatedAt:     time.Now(),
	}

	// Out-of-range is only meaningful while a session runs and has data.
	if latest, ok := s.window.Latest(); ok && state.Active() {
		snap.OutOfRange = vitals.IsOutOfRange(latest, thresholds)
		snap.Level = s.opts.evaluator().Classify(latest, thresholds)
	}
	return snap
}

// Subscribe returns a channel receiving a snapshot after every change. The
// channel keeps only the most recent snapshots when the reader falls behind
// and is closed when the screen closes.
func (s *Screen) Subscribe() (string, <-chan Snapshot) {
	id := uuid.New().String()
	ch := make(chan Snapshot, defaultSubscriberBufCap)

	s.subMu.Lock()
	defer s.subMu.Unlock()
	if s.isClosed() {
		close(ch)
		return id, ch
	}
	s.subs[id] = ch
	return id, ch
}

// Unsubscribe removes a subscription and closes its channel.
func (s *Screen) Unsubscribe(id string) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	if ch, ok := s.subs[id]; ok {
		close(ch)
		delete(s.subs, id)
	}
}

func (s *Screen) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Screen) publish() {
	snap := s.Snapshot()

	s.subMu.Lock()
	defer s.subMu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- snap:
		default:
			// Drop the oldest queued snapshot to make room for the newest.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snap:
			default:
			}
		}
	}
}

func (s *Screen) fail(err error) error {
	s.setError(err)
	s.publish()
	return err
}

func (s *Screen) setError(err error) {
	s.mu.Lock()
	s.lastErr = err.Error()
	s.mu.Unlock()
}

func (s *Screen) clearError() {
	s.mu.Lock()
	s.lastErr = ""
	s.mu.Unlock()
	s.publish()
}
