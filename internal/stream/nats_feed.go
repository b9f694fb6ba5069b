package stream

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// NATSFeed subscribes to a NATS subject. Client-side reconnects are disabled
// so that Client applies its fixed retry delay.
type NATSFeed struct {
	URL          string
	Subject      string
	PingInterval time.Duration
	Logger       *zap.Logger
}

// Run implements Feed.
func (f *NATSFeed) Run(ctx context.Context, connected func(), message func([]byte)) error {
	closed := make(chan struct{})
	var once sync.Once
	var lastErr error
	var errMu sync.Mutex

	opts := []nats.Option{
		nats.Name("smartpulse-gateway"),
		nats.Timeout(3 * time.Second),
		nats.NoReconnect(),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			errMu.Lock()
			lastErr = err
			errMu.Unlock()
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			once.Do(func() { close(closed) })
		}),
	}
	if f.PingInterval > 0 {
		opts = append(opts, nats.PingInterval(f.PingInterval), nats.MaxPingsOutstanding(2))
	}

	nc, err := nats.Connect(f.URL, opts...)
	if err != nil {
		return fmt.Errorf("connect %s: %w", f.URL, err)
	}
	defer nc.Close()

	if _, err := nc.Subscribe(f.Subject, func(m *nats.Msg) {
		message(m.Data)
	}); err != nil {
		return fmt.Errorf("subscribe %s: %w", f.Subject, err)
	}
	if f.Logger != nil {
		f.Logger.Info("Subscribed to NATS subject", zap.String("url", f.URL), zap.String("subject", f.Subject))
	}
	connected()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-closed:
		errMu.Lock()
		defer errMu.Unlock()
		if lastErr != nil {
			return fmt.Errorf("connection closed: %w", lastErr)
		}
		return fmt.Errorf("connection closed")
	}
}
