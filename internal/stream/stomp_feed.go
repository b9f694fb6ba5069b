package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/go-stomp/stomp/v3"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const stompWriteDeadline = 10 * time.Second

// STOMPFeed subscribes to a STOMP destination over a WebSocket connection.
type STOMPFeed struct {
	URL         string
	Destination string
	Token       string
	// Heart-beat intervals requested in CONNECT. Zero disables a direction.
	HeartBeatOutgoing time.Duration
	HeartBeatIncoming time.Duration
	Dialer            *websocket.Dialer
	Logger            *zap.Logger
}

// wsStream exposes a WebSocket connection as the byte stream the STOMP
// client reads and writes. Incoming messages are concatenated; each Write
// goes out as one text message.
type wsStream struct {
	conn    *websocket.Conn
	reader  io.Reader
	writeMu sync.Mutex
}

func newWSStream(conn *websocket.Conn) *wsStream {
	return &wsStream{conn: conn}
}

func (s *wsStream) Read(p []byte) (int, error) {
	for {
		if s.reader == nil {
			_, r, err := s.conn.NextReader()
			if err != nil {
				return 0, err
			}
			s.reader = r
		}
		n, err := s.reader.Read(p)
		if errors.Is(err, io.EOF) {
			s.reader = nil
			if n > 0 {
				return n, nil
			}
			continue
		}
		return n, err
	}
}

func (s *wsStream) Write(p []byte) (int, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(stompWriteDeadline))
	if err := s.conn.WriteMessage(websocket.TextMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (s *wsStream) Close() error {
	return s.conn.Close()
}

// Run implements Feed.
func (f *STOMPFeed) Run(ctx context.Context, connected func(), message func([]byte)) error {
	dialer := f.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}

	header := http.Header{}
	if f.Token != "" {
		header.Set("Authorization", "Bearer "+f.Token)
	}

	ws, _, err := dialer.DialContext(ctx, f.URL, header)
	if err != nil {
		return fmt.Errorf("dial %s: %w", f.URL, err)
	}
	stream := newWSStream(ws)
	defer stream.Close()

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			stream.Close()
		case <-stop:
		}
	}()

	opts := []func(*stomp.Conn) error{
		stomp.ConnOpt.Host(hostOf(f.URL)),
		stomp.ConnOpt.HeartBeat(f.HeartBeatOutgoing, f.HeartBeatIncoming),
	}
	if f.Token != "" {
		opts = append(opts, stomp.ConnOpt.Header("Authorization", "Bearer "+f.Token))
	}
	conn, err := stomp.Connect(stream, opts...)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("stomp connect: %w", err)
	}
	defer conn.MustDisconnect()

	sub, err := conn.Subscribe(f.Destination, stomp.AckAuto)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", f.Destination, err)
	}
	f.logger().Info("Subscribed to pulse topic",
		zap.String("destination", f.Destination),
		zap.String("subscription", sub.Id()),
		zap.Duration("heartbeat_out", f.HeartBeatOutgoing),
		zap.Duration("heartbeat_in", f.HeartBeatIncoming),
	)
	connected()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-sub.C:
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if !ok {
				return errors.New("subscription closed")
			}
			if msg.Err != nil {
				return fmt.Errorf("read: %w", msg.Err)
			}
			message(msg.Body)
		}
	}
}

func (f *STOMPFeed) logger() *zap.Logger {
	if f.Logger == nil {
		return zap.NewNop()
	}
	return f.Logger
}

func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" {
		return "localhost"
	}
	return u.Hostname()
}
