package stream

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/smart-pulse-M1-GI/frontend/internal/config"
	"github.com/smart-pulse-M1-GI/frontend/internal/vitals"
)

func TestNewFeed_Transports(t *testing.T) {
	base := config.Default().Stream

	cases := map[string]func(Feed) bool{
		"stomp": func(f Feed) bool { _, ok := f.(*STOMPFeed); return ok },
		"mqtt":  func(f Feed) bool { _, ok := f.(*MQTTFeed); return ok },
		"nats":  func(f Feed) bool { _, ok := f.(*NATSFeed); return ok },
		"demo":  func(f Feed) bool { _, ok := f.(*DemoFeed); return ok },
	}
	for transport, check := range cases {
		cfg := base
		cfg.Transport = transport
		f, err := NewFeed(cfg, "tok", zap.NewNop())
		if err != nil {
			t.Fatalf("%s: %v", transport, err)
		}
		if !check(f) {
			t.Errorf("%s: unexpected feed type %T", transport, f)
		}
	}

	cfg := base
	cfg.Transport = "smoke-signals"
	if _, err := NewFeed(cfg, "", zap.NewNop()); err == nil {
		t.Error("expected error for unknown transport")
	}
}

func TestNewFeed_STOMPSettings(t *testing.T) {
	f, err := NewFeed(config.Default().Stream, "tok", zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	sf := f.(*STOMPFeed)
	if sf.Destination != "/topic/pulse" || sf.Token != "tok" {
		t.Errorf("unexpected feed %+v", sf)
	}
	if sf.HeartBeatIncoming != 4*time.Second || sf.HeartBeatOutgoing != 4*time.Second {
		t.Errorf("unexpected heart-beats %v/%v", sf.HeartBeatOutgoing, sf.HeartBeatIncoming)
	}
}

func TestDemoFeed_ProducesParsableSamples(t *testing.T) {
	feed := &DemoFeed{Interval: 5 * time.Millisecond, Base: 75, Amplitude: 15, Jitter: 2}
	ctx, cancel := context.WithCancel(context.Background())

	var got []vitals.Sample
	err := feed.Run(ctx, func() {}, func(p []byte) {
		s, err := vitals.ParseSample(p, time.Now())
		if err != nil {
			t.Errorf("unparsable demo payload %s: %v", p, err)
		}
		got = append(got, s)
		if len(got) == 5 {
			cancel()
		}
	})
	if err != context.Canceled {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	for _, s := range got {
		if s.BPM < 58 || s.BPM > 92 {
			t.Errorf("demo bpm %d outside expected range", s.BPM)
		}
	}
}

func TestMQTTFeed_UnreachableBroker(t *testing.T) {
	feed := &MQTTFeed{Broker: "tcp://127.0.0.1:1", Topic: "pulse"}
	err := feed.Run(context.Background(), func() {
		t.Error("must not report connected")
	}, func([]byte) {})
	if err == nil {
		t.Fatal("expected connect error")
	}
}

func TestNATSFeed_UnreachableServer(t *testing.T) {
	feed := &NATSFeed{URL: "nats://127.0.0.1:1", Subject: "pulse"}
	err := feed.Run(context.Background(), func() {
		t.Error("must not report connected")
	}, func([]byte) {})
	if err == nil {
		t.Fatal("expected connect error")
	}
}
