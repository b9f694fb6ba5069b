// Package realtime is the dashboard gateway: REST endpoints proxied to the
// monitoring backend and WebSocket channels pushing live patient screens and
// doctor rosters to browsers.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/smart-pulse-M1-GI/frontend/internal/backend"
	"github.com/smart-pulse-M1-GI/frontend/internal/journal"
	"github.com/smart-pulse-M1-GI/frontend/internal/monitor"
	"github.com/smart-pulse-M1-GI/frontend/internal/protocol"
	"github.com/smart-pulse-M1-GI/frontend/internal/stream"
	"github.com/smart-pulse-M1-GI/frontend/internal/vitals"
)

const (
	pingInterval   = 30 * time.Second
	readDeadline   = 60 * time.Second
	writeDeadline  = 10 * time.Second
	requestTimeout = 15 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow localhost origins for dev.
	},
}

// FeedFactory builds the pulse feed for one screen, authenticated as token.
type FeedFactory func(token string) (stream.Feed, error)

// Journal is the session journal as the gateway uses it.
type Journal interface {
	monitor.Journal
	ListByPatient(ctx context.Context, patientID string, limit int) ([]journal.Entry, error)
}

// LiveCache is the live snapshot cache as the gateway uses it.
type LiveCache interface {
	monitor.LiveWriter
	monitor.LiveReader
}

// Options configures a Server. Journal and Live are optional.
type Options struct {
	Backend *backend.Client
	NewFeed FeedFactory
	Journal Journal
	Live    LiveCache

	WindowCapacity    int
	DefaultThresholds vitals.Thresholds
	WarningBand       func() int
	ReconnectDelay    time.Duration

	NotificationsEvery time.Duration
	RosterEvery        time.Duration

	StaticDir string
	Logger    *zap.Logger
}

// Server manages WebSocket connections and the REST API.
type Server struct {
	opts    Options
	api     *backend.Client
	logger  *zap.Logger
	clients map[string]*client
	mu      sync.RWMutex

	closing bool
	done    sync.WaitGroup // one per tracked client, released by removeClient
}

type client struct {
	id     string
	conn   *websocket.Conn
	send   chan []byte
	server *Server
	screen *monitor.Screen // nil on roster connections

	mu     sync.Mutex
	closed bool
}

// New creates a new gateway server.
func New(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Server{
		opts:    opts,
		api:     opts.Backend,
		logger:  opts.Logger,
		clients: make(map[string]*client),
	}
}

// Handler returns an http.Handler with all routes configured.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// WebSocket endpoints.
	mux.HandleFunc("GET /ws", s.handleScreenSocket)
	mux.HandleFunc("GET /ws/roster", s.handleRosterSocket)

	// REST API endpoints.
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("POST /api/login", s.handleLogin)
	mux.HandleFunc("POST /api/register/doctor", s.handleRegisterDoctor)
	mux.HandleFunc("GET /api/me", s.handleMe)
	mux.HandleFunc("GET /api/roster", s.handleRoster)
	mux.HandleFunc("GET /api/patients/{id}/thresholds", s.handleGetThresholds)
	mux.HandleFunc("PUT /api/patients/{id}/thresholds", s.handleSaveThresholds)
	mux.HandleFunc("GET /api/patients/{id}/activities", s.handleListActivities)
	mux.HandleFunc("POST /api/activities", s.handleCreateActivity)
	mux.HandleFunc("PUT /api/activities/{id}", s.handleUpdateActivity)
	mux.HandleFunc("POST /api/activities/{id}/close", s.handleCloseActivity)
	mux.HandleFunc("DELETE /api/activities/{id}", s.handleDeleteActivity)
	mux.HandleFunc("GET /api/patients/{id}/sessions", s.handleListSessions)
	mux.HandleFunc("GET /api/sessions/{id}/summary", s.handleSessionSummary)
	mux.HandleFunc("GET /api/sessions/{id}/data-points", s.handleSessionDataPoints)
	mux.HandleFunc("GET /api/patients/{id}/journal", s.handleJournal)
	mux.HandleFunc("GET /api/notifications", s.handleNotifications)
	mux.HandleFunc("PATCH /api/notifications/{id}/read", s.handleMarkNotificationRead)
	mux.HandleFunc("POST /api/notifications/read-all", s.handleMarkAllNotificationsRead)

	// Static file serving.
	if s.opts.StaticDir != "" {
		fileServer := http.FileServer(http.Dir(s.opts.StaticDir))
		mux.Handle("/", fileServer)
	}

	return corsMiddleware(mux)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// credentials reads the bearer token from the Authorization header, or from
// the token query parameter for browsers that cannot set WebSocket headers.
func credentials(r *http.Request) backend.Credentials {
	if h := r.Header.Get("Authorization"); h != "" {
		if token, ok := strings.CutPrefix(h, "Bearer "); ok {
			return backend.Credentials{Token: strings.TrimSpace(token)}
		}
	}
	return backend.Credentials{Token: r.URL.Query().Get("token")}
}

// ClientCount returns the number of open WebSocket connections.
func (s *Server) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// handleScreenSocket opens a live patient screen for the connection.
func (s *Server) handleScreenSocket(w http.ResponseWriter, r *http.Request) {
	patientID := r.URL.Query().Get("patient")
	if patientID == "" {
		writeError(w, http.StatusBadRequest, "patient is required")
		return
	}
	creds := credentials(r)
	if creds.Token == "" {
		writeError(w, http.StatusUnauthorized, backend.ErrNoToken.Error())
		return
	}

	viewerID := ""
	if profile, err := s.api.Me(r.Context(), creds); err != nil {
		if errors.Is(err, backend.ErrUnauthorized) {
			writeBackendError(w, err)
			return
		}
		s.logger.Warn("Profile not loaded, notifications disabled", zap.Error(err))
	} else {
		viewerID = profile.Identifier()
	}

	feed, err := s.opts.NewFeed(creds.Token)
	if err != nil {
		s.logger.Error("Failed to build pulse feed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "pulse feed unavailable")
		return
	}

	screen := monitor.NewScreen(s.api, monitor.Options{
		PatientID:          patientID,
		ViewerID:           viewerID,
		Credentials:        creds,
		Feed:               feed,
		ReconnectDelay:     s.opts.ReconnectDelay,
		WindowCapacity:     s.opts.WindowCapacity,
		DefaultThresholds:  s.opts.DefaultThresholds,
		WarningBand:        s.opts.WarningBand,
		NotificationsEvery: s.opts.NotificationsEvery,
		Journal:            s.journal(),
		Live:               s.liveWriter(),
		Logger:             s.logger,
	})
	if err := screen.Open(r.Context()); err != nil {
		screen.Close()
		writeBackendError(w, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade error", zap.Error(err))
		screen.Close()
		return
	}

	c := s.addClient(conn, screen)
	if c == nil {
		conn.Close()
		screen.Close()
		return
	}
	_, snapshots := screen.Subscribe()
	forwarded := make(chan struct{})
	go func() {
		defer close(forwarded)
		c.sendMessage(protocol.TypeScreenSnapshot, screen.Snapshot())
		for snap := range snapshots {
			c.sendMessage(protocol.TypeScreenSnapshot, snap)
		}
	}()

	go c.writePump()
	go func() {
		c.readPump()
		screen.Close()
		<-forwarded
		s.removeClient(c)
	}()
}

// handleRosterSocket pushes the doctor's roster on every refresh.
func (s *Server) handleRosterSocket(w http.ResponseWriter, r *http.Request) {
	creds := credentials(r)
	if creds.Token == "" {
		writeError(w, http.StatusUnauthorized, backend.ErrNoToken.Error())
		return
	}
	profile, err := s.api.Me(r.Context(), creds)
	if err != nil {
		writeBackendError(w, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade error", zap.Error(err))
		return
	}

	c := s.addClient(conn, nil)
	if c == nil {
		conn.Close()
		return
	}
	roster := monitor.NewRoster(s.api, monitor.RosterOptions{
		DoctorID:           profile.Identifier(),
		Credentials:        creds,
		RosterEvery:        s.opts.RosterEvery,
		NotificationsEvery: s.opts.NotificationsEvery,
		Live:               s.liveReader(),
		Logger:             s.logger,
	})
	roster.OnUpdate(func(snap monitor.RosterSnapshot) {
		c.sendMessage(protocol.TypeRosterSnapshot, snap)
	})
	roster.Open(context.Background())

	go c.writePump()
	go func() {
		c.readPump()
		roster.Close()
		s.removeClient(c)
	}()
}

func (s *Server) journal() monitor.Journal {
	if s.opts.Journal == nil {
		return nil
	}
	return s.opts.Journal
}

func (s *Server) liveWriter() monitor.LiveWriter {
	if s.opts.Live == nil {
		return nil
	}
	return s.opts.Live
}

func (s *Server) liveReader() monitor.LiveReader {
	if s.opts.Live == nil {
		return nil
	}
	return s.opts.Live
}

// addClient tracks a new connection. It returns nil once Shutdown has begun.
func (s *Server) addClient(conn *websocket.Conn, screen *monitor.Screen) *client {
	c := &client{
		id:     uuid.New().String(),
		conn:   conn,
		send:   make(chan []byte, 256),
		server: s,
		screen: screen,
	}
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		return nil
	}
	s.clients[c.id] = c
	s.done.Add(1)
	s.mu.Unlock()
	s.logger.Debug("Client connected", zap.String("client_id", c.id))
	return c
}

// removeClient cleans up a disconnected client.
func (s *Server) removeClient(c *client) {
	s.mu.Lock()
	delete(s.clients, c.id)
	s.mu.Unlock()
	c.close()
	s.logger.Debug("Client disconnected", zap.String("client_id", c.id))
	s.done.Done()
}

// Shutdown closes every WebSocket connection and blocks until each screen
// has been torn down and each roster stopped. New connections are refused
// afterwards.
func (s *Server) Shutdown() {
	s.mu.Lock()
	s.closing = true
	conns := make([]*websocket.Conn, 0, len(s.clients))
	for _, c := range s.clients {
		conns = append(conns, c.conn)
	}
	s.mu.Unlock()

	s.logger.Info("Closing WebSocket clients", zap.Int("count", len(conns)))
	for _, conn := range conns {
		conn.Close()
	}
	s.done.Wait()
}

// readPump reads messages from the WebSocket connection until it fails.
func (c *client) readPump() {
	defer c.conn.Close()

	c.conn.SetReadDeadline(time.Now().Add(readDeadline))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(readDeadline))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.server.logger.Warn("websocket read error", zap.Error(err))
			}
			return
		}

		c.server.handleMessage(c, message)
	}
}

// writePump writes messages to the WebSocket connection.
func (c *client) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *client) sendMessage(msgType string, payload interface{}) {
	msg, err := protocol.NewMessage(msgType, payload)
	if err != nil {
		c.server.logger.Error("Failed to encode message", zap.String("type", msgType), zap.Error(err))
		return
	}
	data, _ := json.Marshal(msg)
	c.enqueue(data)
}

func (c *client) sendError(code, message string) {
	msg, _ := protocol.NewErrorMessage(code, message)
	data, _ := json.Marshal(msg)
	c.enqueue(data)
}

// enqueue drops the message when the client buffer is full or closed.
func (c *client) enqueue(data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

func (c *client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// handleMessage processes a validated client message.
func (s *Server) handleMessage(c *client, raw []byte) {
	if c.screen == nil {
		c.sendError(protocol.ErrInvalidMessage, "roster channel accepts no messages")
		return
	}

	msg, err := protocol.ValidateClientMessage(raw)
	if err != nil {
		c.sendError(protocol.ErrInvalidMessage, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	switch msg.Type {
	case protocol.TypeSessionStartFree:
		id, err := c.screen.StartFreeSession(ctx)
		if err != nil {
			s.sendRequestError(c, err)
			return
		}
		c.sendMessage(protocol.TypeSessionStarted, protocol.SessionStartedPayload{SessionID: id})

	case protocol.TypeSessionStartActivity:
		var payload protocol.SessionStartActivityPayload
		json.Unmarshal(msg.Payload, &payload)
		id, err := c.screen.StartActivity(ctx, payload.ActivityID)
		if err != nil {
			s.sendRequestError(c, err)
			return
		}
		c.sendMessage(protocol.TypeSessionStarted, protocol.SessionStartedPayload{
			SessionID:  id,
			ActivityID: payload.ActivityID,
		})

	case protocol.TypeSessionStop:
		if err := c.screen.StopSession(ctx); err != nil {
			s.sendRequestError(c, err)
		}

	case protocol.TypeThresholdsSave:
		var payload protocol.ThresholdsSavePayload
		json.Unmarshal(msg.Payload, &payload)
		t := vitals.Thresholds{Min: payload.Min, Max: payload.Max}
		if err := c.screen.SaveThresholds(ctx, t); err != nil {
			s.sendRequestError(c, err)
		}
	}
}

func (s *Server) sendRequestError(c *client, err error) {
	switch {
	case errors.Is(err, backend.ErrUnauthorized):
		c.sendError(protocol.ErrUnauthorized, err.Error())
	case errors.Is(err, monitor.ErrSessionActive):
		c.sendError(protocol.ErrSessionActive, err.Error())
	default:
		c.sendError(protocol.ErrRequestFailed, err.Error())
	}
}
