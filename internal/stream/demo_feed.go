package stream

import (
	"context"
	"encoding/json"
	"math"
	"math/rand"
	"time"
)

// DemoFeed synthesizes a 1 Hz heart rate for running without a broker:
// a slow sinusoid around Base with a little jitter.
type DemoFeed struct {
	Interval  time.Duration
	Base      float64
	Amplitude float64
	Jitter    float64
}

// NewDemoFeed returns a feed oscillating between 60 and 90 BPM.
func NewDemoFeed() *DemoFeed {
	return &DemoFeed{
		Interval:  time.Second,
		Base:      75,
		Amplitude: 15,
		Jitter:    2,
	}
}

// Run implements Feed.
func (f *DemoFeed) Run(ctx context.Context, connected func(), message func([]byte)) error {
	interval := f.Interval
	if interval <= 0 {
		interval = time.Second
	}
	connected()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for n := 0; ; n++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		payload, err := json.Marshal(map[string]float64{"bpm": f.value(n)})
		if err != nil {
			return err
		}
		message(payload)
	}
}

func (f *DemoFeed) value(n int) float64 {
	// One full period per minute of samples.
	v := f.Base + f.Amplitude*math.Sin(2*math.Pi*float64(n)/60)
	if f.Jitter > 0 {
		v += (rand.Float64()*2 - 1) * f.Jitter
	}
	return math.Max(v, 0)
}
