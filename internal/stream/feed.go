package stream

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/smart-pulse-M1-GI/frontend/internal/config"
)

// NewFeed builds the feed selected by cfg.Transport. token is the viewer's
// bearer token, forwarded where the transport carries one.
func NewFeed(cfg config.StreamConfig, token string, logger *zap.Logger) (Feed, error) {
	switch cfg.Transport {
	case "", "stomp":
		return &STOMPFeed{
			URL:               cfg.URL,
			Destination:       cfg.Topic,
			Token:             token,
			HeartBeatOutgoing: cfg.HeartbeatOutgoing,
			HeartBeatIncoming: cfg.HeartbeatIncoming,
			Logger:            logger,
		}, nil
	case "mqtt":
		return &MQTTFeed{
			Broker:    cfg.URL,
			Topic:     cfg.Topic,
			KeepAlive: cfg.HeartbeatOutgoing,
			Logger:    logger,
		}, nil
	case "nats":
		return &NATSFeed{
			URL:          cfg.URL,
			Subject:      cfg.Topic,
			PingInterval: cfg.HeartbeatOutgoing,
			Logger:       logger,
		}, nil
	case "demo":
		return NewDemoFeed(), nil
	default:
		return nil, fmt.Errorf("unknown stream transport %q", cfg.Transport)
	}
}
