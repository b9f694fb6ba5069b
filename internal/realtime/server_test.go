package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/smart-pulse-M1-GI/frontend/internal/backend"
	"github.com/smart-pulse-M1-GI/frontend/internal/monitor"
	"github.com/smart-pulse-M1-GI/frontend/internal/protocol"
	"github.com/smart-pulse-M1-GI/frontend/internal/stream"
	"github.com/smart-pulse-M1-GI/frontend/internal/vitals"
)

const testToken = "tok"

// fakeBackend serves the subset of the monitoring backend the gateway calls.
type fakeBackend struct {
	mu     sync.Mutex
	starts int
	stops  int
	saved  string
}

func (f *fakeBackend) stopCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stops
}

func (f *fakeBackend) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		if body["password"] != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte(`{"token":"` + testToken + `"}`))
	})
	mux.HandleFunc("GET /api/user/me", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":5,"mail":"dr@example.com","nom":"House","role":"MEDECIN"}`))
	})
	mux.HandleFunc("GET /api/v1/patients/medecin/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"id":7,"nom":"Martin","prenom":"Paul"}]`))
	})
	mux.HandleFunc("GET /api/v1/thresholds/patient/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"bpmMin":50,"bpmMax":140}`))
	})
	mux.HandleFunc("PUT /api/v1/thresholds/patient/{id}", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]int
		json.NewDecoder(r.Body).Decode(&body)
		f.mu.Lock()
		f.saved = r.PathValue("id")
		f.mu.Unlock()
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("GET /api/v1/activities/patient/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"id":3,"title":"Marche","durationInMinutes":10}]`))
	})
	mux.HandleFunc("POST /api/v1/cardiac/start", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.starts++
		f.mu.Unlock()
		w.Write([]byte(`42`))
	})
	mux.HandleFunc("POST /api/v1/cardiac/stop", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.stops++
		f.mu.Unlock()
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("GET /api/v1/cardiac/sessions/patient/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	mux.HandleFunc("GET /api/v1/notifications/user/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"id":1,"message":"BPM élevé","isRead":false},{"id":2,"message":"ok","isRead":true}]`))
	})

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Path != "/api/auth/login" && r.Header.Get("Authorization") != "Bearer "+testToken {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		mux.ServeHTTP(w, r)
	})
}

type chanFeed struct {
	payloads chan []byte
}

func (f *chanFeed) Run(ctx context.Context, connected func(), message func([]byte)) error {
	connected()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case p := <-f.payloads:
			message(p)
		}
	}
}

func newTestServer(t *testing.T) (*Server, *fakeBackend, *chanFeed) {
	t.Helper()
	fake := &fakeBackend{}
	api := httptest.NewServer(fake.handler())
	t.Cleanup(api.Close)

	feed := &chanFeed{payloads: make(chan []byte, 16)}
	srv := New(Options{
		Backend:            backend.NewClient(api.URL, 2*time.Second, zap.NewNop()),
		NewFeed:            func(string) (stream.Feed, error) { return feed, nil },
		WindowCapacity:     60,
		DefaultThresholds:  vitals.Thresholds{Min: 60, Max: 100},
		ReconnectDelay:     10 * time.Millisecond,
		NotificationsEvery: time.Hour,
		RosterEvery:        20 * time.Millisecond,
		Logger:             zap.NewNop(),
	})
	return srv, fake, feed
}

func authed(req *http.Request) *http.Request {
	req.Header.Set("Authorization", "Bearer "+testToken)
	return req
}

func serve(srv *Server, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	return w
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	header := http.Header{}
	header.Set("Authorization", "Bearer "+testToken)
	ws, _, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		t.Fatalf("websocket dial failed: %v", err)
	}
	return ws
}

// readUntil reads messages until match accepts one.
func readUntil(t *testing.T, ws *websocket.Conn, match func(protocol.Message) bool) protocol.Message {
	t.Helper()
	ws.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			t.Fatalf("read message failed: %v", err)
		}
		var msg protocol.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("bad message %s: %v", data, err)
		}
		if match(msg) {
			return msg
		}
	}
}

func ofType(msgType string) func(protocol.Message) bool {
	return func(m protocol.Message) bool { return m.Type == msgType }
}

func sendClientMessage(t *testing.T, ws *websocket.Conn, msgType string, payload interface{}) {
	t.Helper()
	data, _ := json.Marshal(map[string]interface{}{
		"type":      msgType,
		"payload":   payload,
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
	})
	if err := ws.WriteMessage(websocket.TextMessage, data); err != nil {
		t.Fatalf("write failed: %v", err)
	}
}

func TestServer_Health(t *testing.T) {
	srv, _, _ := newTestServer(t)
	w := serve(srv, httptest.NewRequest("GET", "/healthz", nil))
	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}
}

func TestServer_CORSHeaders(t *testing.T) {
	srv, _, _ := newTestServer(t)
	w := serve(srv, httptest.NewRequest("OPTIONS", "/api/me", nil))

	if w.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("expected CORS Allow-Origin header")
	}
	if !strings.Contains(w.Header().Get("Access-Control-Allow-Headers"), "Authorization") {
		t.Error("expected Authorization in allowed headers")
	}
}

func TestServer_Login(t *testing.T) {
	srv, _, _ := newTestServer(t)

	w := serve(srv, httptest.NewRequest("POST", "/api/login", strings.NewReader(`{"mail":"dr@example.com","password":"secret"}`)))
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body)
	}
	var resp tokenResponse
	json.NewDecoder(w.Body).Decode(&resp)
	if resp.Token != testToken {
		t.Errorf("expected token %q, got %q", testToken, resp.Token)
	}

	w = serve(srv, httptest.NewRequest("POST", "/api/login", strings.NewReader(`{"mail":"dr@example.com","password":"wrong"}`)))
	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected status 401, got %d", w.Code)
	}

	w = serve(srv, httptest.NewRequest("POST", "/api/login", strings.NewReader("invalid json")))
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", w.Code)
	}
}

func TestServer_RegisterDoctorValidation(t *testing.T) {
	srv, _, _ := newTestServer(t)

	body := `{"mail":"a@b.c","password":"abcdef","confirmPassword":"abcdeg","nom":"N","prenom":"P"}`
	w := serve(srv, httptest.NewRequest("POST", "/api/register/doctor", strings.NewReader(body)))
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status 400 for mismatched passwords, got %d", w.Code)
	}

	body = `{"mail":"a@b.c","password":"abc","confirmPassword":"abc","nom":"N","prenom":"P"}`
	w = serve(srv, httptest.NewRequest("POST", "/api/register/doctor", strings.NewReader(body)))
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status 400 for short password, got %d", w.Code)
	}
}

func TestServer_MeRequiresToken(t *testing.T) {
	srv, _, _ := newTestServer(t)

	w := serve(srv, httptest.NewRequest("GET", "/api/me", nil))
	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected status 401, got %d", w.Code)
	}

	w = serve(srv, authed(httptest.NewRequest("GET", "/api/me", nil)))
	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}

	req := httptest.NewRequest("GET", "/api/me", nil)
	req.Header.Set("Authorization", "Bearer expired")
	w = serve(srv, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected backend 401 to pass through, got %d", w.Code)
	}
}

func TestServer_Roster(t *testing.T) {
	srv, _, _ := newTestServer(t)

	w := serve(srv, authed(httptest.NewRequest("GET", "/api/roster", nil)))
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body)
	}
	var entries []monitor.RosterEntry
	json.NewDecoder(w.Body).Decode(&entries)
	if len(entries) != 1 || entries[0].Nom != "Martin" {
		t.Fatalf("unexpected roster %+v", entries)
	}
	if entries[0].Status != string(vitals.LevelUnknown) || entries[0].CurrentBPM != nil {
		t.Errorf("expected unknown status without live cache, got %+v", entries[0])
	}
}

func TestServer_BackendFailureIsBadGateway(t *testing.T) {
	srv, _, _ := newTestServer(t)

	w := serve(srv, authed(httptest.NewRequest("GET", "/api/patients/7/sessions", nil)))
	if w.Code != http.StatusBadGateway {
		t.Errorf("expected status 502, got %d", w.Code)
	}
	var body map[string]string
	json.NewDecoder(w.Body).Decode(&body)
	if body["error"] == "" {
		t.Error("expected error message in body")
	}
}

func TestServer_Thresholds(t *testing.T) {
	srv, fake, _ := newTestServer(t)

	w := serve(srv, authed(httptest.NewRequest("GET", "/api/patients/7/thresholds", nil)))
	var got thresholdsBody
	json.NewDecoder(w.Body).Decode(&got)
	if got.Min != 50 || got.Max != 140 {
		t.Errorf("unexpected thresholds %+v", got)
	}

	w = serve(srv, authed(httptest.NewRequest("PUT", "/api/patients/7/thresholds", strings.NewReader(`{"min":120,"max":80}`))))
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status 400 for inverted thresholds, got %d", w.Code)
	}

	w = serve(srv, authed(httptest.NewRequest("PUT", "/api/patients/7/thresholds", strings.NewReader(`{"min":55,"max":130}`))))
	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}
	fake.mu.Lock()
	defer fake.mu.Unlock()
	if fake.saved != "7" {
		t.Errorf("expected thresholds saved for patient 7, got %q", fake.saved)
	}
}

func TestServer_JournalDisabled(t *testing.T) {
	srv, _, _ := newTestServer(t)

	w := serve(srv, authed(httptest.NewRequest("GET", "/api/patients/7/journal", nil)))
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	if strings.TrimSpace(w.Body.String()) != "[]" {
		t.Errorf("expected empty list, got %s", w.Body)
	}

	w = serve(srv, httptest.NewRequest("GET", "/api/patients/7/journal", nil))
	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected status 401 without token, got %d", w.Code)
	}
}

func TestServer_Notifications(t *testing.T) {
	srv, _, _ := newTestServer(t)

	w := serve(srv, authed(httptest.NewRequest("GET", "/api/notifications", nil)))
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	var resp notificationsResponse
	json.NewDecoder(w.Body).Decode(&resp)
	if len(resp.Notifications) != 2 || resp.Unread != 1 {
		t.Errorf("unexpected notifications %+v", resp)
	}
}

func TestServer_WebSocketRequiresPatientAndToken(t *testing.T) {
	srv, _, _ := newTestServer(t)

	w := serve(srv, authed(httptest.NewRequest("GET", "/ws", nil)))
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status 400 without patient, got %d", w.Code)
	}

	httpSrv := httptest.NewServer(srv.Handler())
	defer httpSrv.Close()
	wsURL := "ws" + strings.TrimPrefix(httpSrv.URL, "http") + "/ws?patient=7"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err == nil {
		t.Fatal("expected dial to fail without token")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401 response, got %+v", resp)
	}
}

func TestServer_WebSocketScreen(t *testing.T) {
	srv, fake, feed := newTestServer(t)
	httpSrv := httptest.NewServer(srv.Handler())
	defer httpSrv.Close()

	ws := dial(t, "ws"+strings.TrimPrefix(httpSrv.URL, "http")+"/ws?patient=7")

	msg := readUntil(t, ws, ofType(protocol.TypeScreenSnapshot))
	var snap monitor.Snapshot
	json.Unmarshal(msg.Payload, &snap)
	if snap.PatientID != "7" || snap.Thresholds.Max != 140 {
		t.Errorf("unexpected first snapshot %+v", snap)
	}

	sendClientMessage(t, ws, protocol.TypeSessionStartFree, map[string]interface{}{})
	msg = readUntil(t, ws, ofType(protocol.TypeSessionStarted))
	var started protocol.SessionStartedPayload
	json.Unmarshal(msg.Payload, &started)
	if started.SessionID != "42" {
		t.Errorf("expected session 42, got %q", started.SessionID)
	}

	feed.payloads <- []byte(`{"bpm": 150}`)
	msg = readUntil(t, ws, func(m protocol.Message) bool {
		if m.Type != protocol.TypeScreenSnapshot {
			return false
		}
		var s monitor.Snapshot
		json.Unmarshal(m.Payload, &s)
		return s.Current != nil
	})
	json.Unmarshal(msg.Payload, &snap)
	if *snap.Current != 150 || !snap.OutOfRange {
		t.Errorf("expected out-of-range 150, got current=%d outOfRange=%v", *snap.Current, snap.OutOfRange)
	}

	sendClientMessage(t, ws, protocol.TypeSessionStartFree, map[string]interface{}{})
	msg = readUntil(t, ws, ofType(protocol.TypeError))
	var errPayload protocol.ErrorPayload
	json.Unmarshal(msg.Payload, &errPayload)
	if errPayload.Code != protocol.ErrSessionActive {
		t.Errorf("expected %s, got %s", protocol.ErrSessionActive, errPayload.Code)
	}

	ws.Close()
	deadline := time.Now().Add(3 * time.Second)
	for fake.stopCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if fake.stopCount() != 1 {
		t.Errorf("expected the session to be stopped on disconnect, got %d stops", fake.stopCount())
	}
}

func TestServer_WebSocketInvalidMessage(t *testing.T) {
	srv, _, _ := newTestServer(t)
	httpSrv := httptest.NewServer(srv.Handler())
	defer httpSrv.Close()

	ws := dial(t, "ws"+strings.TrimPrefix(httpSrv.URL, "http")+"/ws?patient=7")
	defer ws.Close()

	ws.WriteMessage(websocket.TextMessage, []byte("not json"))

	msg := readUntil(t, ws, ofType(protocol.TypeError))
	var p protocol.ErrorPayload
	json.Unmarshal(msg.Payload, &p)
	if p.Code != protocol.ErrInvalidMessage {
		t.Errorf("expected %s, got %s", protocol.ErrInvalidMessage, p.Code)
	}
}

func TestServer_WebSocketRoster(t *testing.T) {
	srv, _, _ := newTestServer(t)
	httpSrv := httptest.NewServer(srv.Handler())
	defer httpSrv.Close()

	ws := dial(t, "ws"+strings.TrimPrefix(httpSrv.URL, "http")+"/ws/roster")
	defer ws.Close()

	msg := readUntil(t, ws, func(m protocol.Message) bool {
		if m.Type != protocol.TypeRosterSnapshot {
			return false
		}
		var s monitor.RosterSnapshot
		json.Unmarshal(m.Payload, &s)
		return len(s.Patients) == 1
	})
	var snap monitor.RosterSnapshot
	json.Unmarshal(msg.Payload, &snap)
	if snap.DoctorID != "5" || snap.Patients[0].Nom != "Martin" {
		t.Errorf("unexpected roster snapshot %+v", snap)
	}
}

func TestServer_ShutdownTearsDownScreens(t *testing.T) {
	srv, fake, _ := newTestServer(t)
	httpSrv := httptest.NewServer(srv.Handler())
	defer httpSrv.Close()

	base := "ws" + strings.TrimPrefix(httpSrv.URL, "http")
	ws := dial(t, base+"/ws?patient=7")
	defer ws.Close()
	roster := dial(t, base+"/ws/roster")
	defer roster.Close()

	readUntil(t, ws, ofType(protocol.TypeScreenSnapshot))
	readUntil(t, roster, ofType(protocol.TypeRosterSnapshot))
	sendClientMessage(t, ws, protocol.TypeSessionStartFree, map[string]interface{}{})
	readUntil(t, ws, ofType(protocol.TypeSessionStarted))

	done := make(chan struct{})
	go func() {
		srv.Shutdown()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("Shutdown did not return")
	}

	if fake.stopCount() != 1 {
		t.Errorf("expected the running session to be stopped, got %d stops", fake.stopCount())
	}
	if n := srv.ClientCount(); n != 0 {
		t.Errorf("expected no clients after shutdown, got %d", n)
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+testToken)
	if late, _, err := websocket.DefaultDialer.Dial(base+"/ws/roster", header); err == nil {
		late.SetReadDeadline(time.Now().Add(time.Second))
		if _, _, err := late.ReadMessage(); err == nil {
			t.Error("expected connections after shutdown to be closed")
		}
		late.Close()
	}
}
