package realtime

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/smart-pulse-M1-GI/frontend/internal/backend"
	"github.com/smart-pulse-M1-GI/frontend/internal/journal"
	"github.com/smart-pulse-M1-GI/frontend/internal/monitor"
	"github.com/smart-pulse-M1-GI/frontend/internal/vitals"
)

const defaultJournalLimit = 50

type loginRequest struct {
	Mail     string `json:"mail"`
	Password string `json:"password"`
}

type tokenResponse struct {
	Token string `json:"token"`
}

type registerDoctorRequest struct {
	Mail            string `json:"mail"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
	Nom             string `json:"nom"`
	Prenom          string `json:"prenom"`
	DateNaissance   string `json:"dateNaissance"`
	Specialite      string `json:"specialite"`
}

type thresholdsBody struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

type notificationsResponse struct {
	Notifications []backend.Notification `json:"notifications"`
	Unread        int                    `json:"unread"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeBackendError maps a backend failure to a gateway status: 401 stays
// 401, missing resources are 404, validation errors are 400 and anything
// else is a bad gateway.
func writeBackendError(w http.ResponseWriter, err error) {
	var se *backend.StatusError
	switch {
	case errors.Is(err, backend.ErrUnauthorized), errors.Is(err, backend.ErrNoToken):
		writeError(w, http.StatusUnauthorized, err.Error())
	case backend.IsNotFound(err):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, backend.ErrPasswordMismatch), errors.Is(err, backend.ErrPasswordTooShort):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &se) && se.Code == http.StatusBadRequest:
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusBadGateway, err.Error())
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"clients": s.ClientCount(),
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Mail == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "mail and password are required")
		return
	}

	creds, err := s.api.Login(r.Context(), req.Mail, req.Password)
	if err != nil {
		writeBackendError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{Token: creds.Token})
}

func (s *Server) handleRegisterDoctor(w http.ResponseWriter, r *http.Request) {
	var req registerDoctorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	creds, err := s.api.RegisterDoctor(r.Context(), backend.DoctorRegistration{
		Mail:            req.Mail,
		Password:        req.Password,
		ConfirmPassword: req.ConfirmPassword,
		Nom:             req.Nom,
		Prenom:          req.Prenom,
		DateNaissance:   req.DateNaissance,
		Specialite:      req.Specialite,
	})
	if err != nil {
		writeBackendError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, tokenResponse{Token: creds.Token})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	profile, err := s.api.Me(r.Context(), credentials(r))
	if err != nil {
		writeBackendError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (s *Server) handleRoster(w http.ResponseWriter, r *http.Request) {
	creds := credentials(r)
	profile, err := s.api.Me(r.Context(), creds)
	if err != nil {
		writeBackendError(w, err)
		return
	}
	patients, err := s.api.Roster(r.Context(), creds, profile.Identifier())
	if err != nil {
		writeBackendError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, monitor.EnrichRoster(r.Context(), s.liveReader(), patients, s.logger))
}

func (s *Server) handleGetThresholds(w http.ResponseWriter, r *http.Request) {
	t, err := s.api.Thresholds(r.Context(), credentials(r), r.PathValue("id"), s.opts.DefaultThresholds)
	if err != nil {
		writeBackendError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, thresholdsBody{Min: t.Min, Max: t.Max})
}

func (s *Server) handleSaveThresholds(w http.ResponseWriter, r *http.Request) {
	var req thresholdsBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	t := vitals.Thresholds{Min: req.Min, Max: req.Max}
	if err := t.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.api.SaveThresholds(r.Context(), credentials(r), r.PathValue("id"), t); err != nil {
		writeBackendError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

func (s *Server) handleListActivities(w http.ResponseWriter, r *http.Request) {
	activities, err := s.api.Activities(r.Context(), credentials(r), r.PathValue("id"))
	if err != nil {
		writeBackendError(w, err)
		return
	}
	if activities == nil {
		activities = []backend.Activity{}
	}
	writeJSON(w, http.StatusOK, activities)
}

func (s *Server) handleCreateActivity(w http.ResponseWriter, r *http.Request) {
	var a backend.Activity
	if err := json.NewDecoder(r.Body).Decode(&a); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if a.DisplayName() == "" {
		writeError(w, http.StatusBadRequest, "title is required")
		return
	}

	created, err := s.api.CreateActivity(r.Context(), credentials(r), a)
	if err != nil {
		writeBackendError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleUpdateActivity(w http.ResponseWriter, r *http.Request) {
	var a backend.Activity
	if err := json.NewDecoder(r.Body).Decode(&a); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	a.ID = backend.ID(r.PathValue("id"))

	updated, err := s.api.UpdateActivity(r.Context(), credentials(r), a)
	if err != nil {
		writeBackendError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleCloseActivity(w http.ResponseWriter, r *http.Request) {
	if err := s.api.CloseActivity(r.Context(), credentials(r), r.PathValue("id")); err != nil {
		writeBackendError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "closed"})
}

func (s *Server) handleDeleteActivity(w http.ResponseWriter, r *http.Request) {
	if err := s.api.DeleteActivity(r.Context(), credentials(r), r.PathValue("id")); err != nil {
		writeBackendError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.api.Sessions(r.Context(), credentials(r), r.PathValue("id"))
	if err != nil {
		writeBackendError(w, err)
		return
	}
	if sessions == nil {
		sessions = []backend.SessionInfo{}
	}
	writeJSON(w, http.StatusOK, sessions)
}

func (s *Server) handleSessionSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := s.api.SessionSummary(r.Context(), credentials(r), r.PathValue("id"))
	if err != nil {
		writeBackendError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleSessionDataPoints(w http.ResponseWriter, r *http.Request) {
	points, err := s.api.SessionDataPoints(r.Context(), credentials(r), r.PathValue("id"))
	if err != nil {
		writeBackendError(w, err)
		return
	}
	if points == nil {
		points = []backend.DataPoint{}
	}
	writeJSON(w, http.StatusOK, points)
}

// handleJournal lists the sessions this gateway observed for a patient.
// The journal is local, so the caller's token is only checked for presence.
func (s *Server) handleJournal(w http.ResponseWriter, r *http.Request) {
	if credentials(r).Token == "" {
		writeError(w, http.StatusUnauthorized, backend.ErrNoToken.Error())
		return
	}
	if s.opts.Journal == nil {
		writeJSON(w, http.StatusOK, []journal.Entry{})
		return
	}

	limit := defaultJournalLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	entries, err := s.opts.Journal.ListByPatient(r.Context(), r.PathValue("id"), limit)
	if err != nil {
		s.logger.Error("Failed to list journal", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "journal unavailable")
		return
	}
	if entries == nil {
		entries = []journal.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleNotifications(w http.ResponseWriter, r *http.Request) {
	creds := credentials(r)
	profile, err := s.api.Me(r.Context(), creds)
	if err != nil {
		writeBackendError(w, err)
		return
	}
	ns, err := s.api.Notifications(r.Context(), creds, profile.Identifier())
	if err != nil {
		writeBackendError(w, err)
		return
	}
	if ns == nil {
		ns = []backend.Notification{}
	}
	writeJSON(w, http.StatusOK, notificationsResponse{Notifications: ns, Unread: backend.UnreadCount(ns)})
}

func (s *Server) handleMarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	if err := s.api.MarkNotificationRead(r.Context(), credentials(r), r.PathValue("id")); err != nil {
		writeBackendError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "read"})
}

func (s *Server) handleMarkAllNotificationsRead(w http.ResponseWriter, r *http.Request) {
	creds := credentials(r)
	profile, err := s.api.Me(r.Context(), creds)
	if err != nil {
		writeBackendError(w, err)
		return
	}
	if err := s.api.MarkAllNotificationsRead(r.Context(), creds, profile.Identifier()); err != nil {
		writeBackendError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "read"})
}
