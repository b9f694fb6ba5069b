// Package stream keeps one screen connected to the pulse feed. The Client
// retries a Feed at a fixed delay for as long as it is connected and turns
// raw payloads into vitals samples.
package stream

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/smart-pulse-M1-GI/frontend/internal/vitals"
)

// DefaultReconnectDelay is the pause between two connection attempts.
const DefaultReconnectDelay = 5 * time.Second

// ErrAlreadyConnected is returned by Connect on a running client.
var ErrAlreadyConnected = errors.New("stream client already connected")

// Status is the connection state shown next to the live chart.
type Status string

const (
	StatusDisconnected Status = "disconnected"
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
)

// Feed performs one connection attempt to the pulse topic. Run calls
// connected once the subscription is in place, then passes every payload to
// message in arrival order. It returns when the connection ends or ctx is
// cancelled.
type Feed interface {
	Run(ctx context.Context, connected func(), message func(payload []byte)) error
}

// Client delivers samples from a Feed and reconnects after failures.
type Client struct {
	feed   Feed
	delay  time.Duration
	logger *zap.Logger
	now    func() time.Time

	mu       sync.RWMutex
	status   Status
	cancel   context.CancelFunc
	done     chan struct{}
	onSample []func(vitals.Sample)
	onStatus []func(Status)
}

// NewClient creates a disconnected client. A non-positive delay falls back
// to DefaultReconnectDelay.
func NewClient(feed Feed, delay time.Duration, logger *zap.Logger) *Client {
	if delay <= 0 {
		delay = DefaultReconnectDelay
	}
	return &Client{
		feed:   feed,
		delay:  delay,
		logger: logger,
		now:    time.Now,
		status: StatusDisconnected,
	}
}

// OnSample registers a callback for every parsed sample.
func (c *Client) OnSample(fn func(vitals.Sample)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onSample = append(c.onSample, fn)
}

// OnStatus registers a callback for status changes.
func (c *Client) OnStatus(fn func(Status)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onStatus = append(c.onStatus, fn)
}

// Status returns the current connection status.
func (c *Client) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

// Connect starts the connect-and-retry loop in the background. The loop
// runs until Disconnect is called or ctx is cancelled.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.cancel != nil {
		c.mu.Unlock()
		return ErrAlreadyConnected
	}
	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	c.cancel = cancel
	c.done = done
	c.mu.Unlock()

	go c.run(runCtx, done)
	return nil
}

// Disconnect stops the loop, closes the connection and waits for the
// background goroutine to exit. It is safe to call more than once.
func (c *Client) Disconnect() {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.cancel, c.done = nil, nil
	c.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	c.setStatus(StatusDisconnected)
}

func (c *Client) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	for attempt := 1; ; attempt++ {
		c.setStatus(StatusConnecting)
		err := c.feed.Run(ctx, func() { c.setStatus(StatusConnected) }, c.deliver)
		if ctx.Err() != nil {
			return
		}
		c.setStatus(StatusDisconnected)
		c.logger.Warn("Pulse feed disconnected, retrying",
			zap.Error(err),
			zap.Int("attempt", attempt),
			zap.Duration("retry_in", c.delay),
		)

		timer := time.NewTimer(c.delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

func (c *Client) deliver(payload []byte) {
	sample, err := vitals.ParseSample(payload, c.now())
	if err != nil {
		c.logger.Warn("Dropping malformed pulse payload",
			zap.Error(err),
			zap.ByteString("payload", payload),
		)
		return
	}

	c.mu.RLock()
	callbacks := make([]func(vitals.Sample), len(c.onSample))
	copy(callbacks, c.onSample)
	c.mu.RUnlock()

	for _, fn := range callbacks {
		fn(sample)
	}
}

func (c *Client) setStatus(s Status) {
	c.mu.Lock()
	if c.status == s {
		c.mu.Unlock()
		return
	}
	c.status = s
	callbacks := make([]func(Status), len(c.onStatus))
	copy(callbacks, c.onStatus)
	c.mu.Unlock()

	for _, fn := range callbacks {
		fn(s)
	}
}
