package monitor

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/smart-pulse-M1-GI/frontend/internal/backend"
	"github.com/smart-pulse-M1-GI/frontend/internal/store"
	"github.com/smart-pulse-M1-GI/frontend/internal/vitals"
)

// RosterBackend is the part of the REST client the doctor roster uses.
type RosterBackend interface {
	Roster(ctx context.Context, creds backend.Credentials, doctorID string) ([]backend.RosterPatient, error)
	Notifications(ctx context.Context, creds backend.Credentials, userID string) ([]backend.Notification, error)
}

// LiveReader looks up cached live snapshots.
type LiveReader interface {
	GetMany(ctx context.Context, patientIDs []string) (map[string]store.LiveSnapshot, error)
}

// RosterEntry is a roster patient with their latest live reading, if any.
type RosterEntry struct {
	backend.RosterPatient
	CurrentBPM *int       `json:"currentBpm"`
	Status     string     `json:"status"`
	Active     bool       `json:"active"`
	LastUpdate *time.Time `json:"lastUpdate,omitempty"`
}

// EnrichRoster joins roster patients with live snapshots. Without a reader,
// or when the cache fails, entries are returned with unknown status.
func EnrichRoster(ctx context.Context, live LiveReader, patients []backend.RosterPatient, logger *zap.Logger) []RosterEntry {
	var snaps map[string]store.LiveSnapshot
	if live != nil && len(patients) > 0 {
		ids := make([]string, len(patients))
		for i, p := range patients {
			ids[i] = p.ID.String()
		}
		var err error
		snaps, err = live.GetMany(ctx, ids)
		if err != nil {
			logger.Warn("Roster enrichment failed", zap.Error(err))
		}
	}

	entries := make([]RosterEntry, len(patients))
	for i, p := range patients {
		e := RosterEntry{RosterPatient: p, Status: string(vitals.LevelUnknown)}
		if snap, ok := snaps[p.ID.String()]; ok {
			bpm := snap.BPM
			updated := snap.UpdatedAt
			e.CurrentBPM = &bpm
			e.Status = snap.Status
			e.Active = snap.Active
			e.LastUpdate = &updated
		}
		entries[i] = e
	}
	return entries
}

// RosterSnapshot is the render model of the doctor dashboard.
type RosterSnapshot struct {
	DoctorID      string                 `json:"doctorId"`
	Patients      []RosterEntry          `json:"patients"`
	Notifications []backend.Notification `json:"notifications,omitempty"`
	Unread        int                    `json:"unreadNotifications"`
	Error         string                 `json:"error,omitempty"`
	UpdatedAt     time.Time              `json:"updatedAt"`
}

// RosterOptions configures a Roster.
type RosterOptions struct {
	DoctorID           string
	Credentials        backend.Credentials
	RosterEvery        time.Duration
	NotificationsEvery time.Duration
	Live               LiveReader // optional
	Logger             *zap.Logger
}

// Roster is one open doctor dashboard. A single Refresher re-reads the
// roster and notifications; OnUpdate callbacks get each new snapshot.
type Roster struct {
	api     RosterBackend
	opts    RosterOptions
	logger  *zap.Logger
	refresh *Refresher

	mu       sync.Mutex
	snap     RosterSnapshot
	onUpdate []func(RosterSnapshot)
}

// NewRoster creates a roster view. Nothing runs until Open.
func NewRoster(api RosterBackend, opts RosterOptions) *Roster {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	logger := opts.Logger.With(zap.String("doctor_id", opts.DoctorID))
	return &Roster{
		api:     api,
		opts:    opts,
		logger:  logger,
		refresh: NewRefresher(logger),
		snap:    RosterSnapshot{DoctorID: opts.DoctorID, Patients: []RosterEntry{}},
	}
}

// OnUpdate registers fn to receive every new snapshot.
func (r *Roster) OnUpdate(fn func(RosterSnapshot)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onUpdate = append(r.onUpdate, fn)
}

// Open starts the refresh loop.
func (r *Roster) Open(ctx context.Context) {
	r.refresh.Add("roster", r.opts.RosterEvery, r.refreshRoster)
	r.refresh.Add("notifications", r.opts.NotificationsEvery, r.refreshNotifications)
	r.refresh.Start(ctx)
}

// Close stops the refresh loop.
func (r *Roster) Close() {
	r.refresh.Stop()
}

// Snapshot returns the latest roster snapshot.
func (r *Roster) Snapshot() RosterSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snap
}

func (r *Roster) refreshRoster(ctx context.Context) error {
	patients, err := r.api.Roster(ctx, r.opts.Credentials, r.opts.DoctorID)
	if err != nil {
		r.update(func(s *RosterSnapshot) { s.Error = err.Error() })
		return err
	}
	entries := EnrichRoster(ctx, r.opts.Live, patients, r.logger)
	r.update(func(s *RosterSnapshot) {
		s.Patients = entries
		s.Error = ""
	})
	return nil
}

func (r *Roster) refreshNotifications(ctx context.Context) error {
	ns, err := r.api.Notifications(ctx, r.opts.Credentials, r.opts.DoctorID)
	if err != nil {
		return err
	}
	r.update(func(s *RosterSnapshot) {
		s.Notifications = ns
		s.Unread = backend.UnreadCount(ns)
	})
	return nil
}

func (r *Roster) update(fn func(*RosterSnapshot)) {
	r.mu.Lock()
	fn(&r.snap)
	r.snap.UpdatedAt = time.Now()
	snap := r.snap
	callbacks := make([]func(RosterSnapshot), len(r.onUpdate))
	copy(callbacks, r.onUpdate)
	r.mu.Unlock()

	for _, cb := range callbacks {
		cb(snap)
	}
}
