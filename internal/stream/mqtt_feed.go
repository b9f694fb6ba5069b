package stream

import (
	"context"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const mqttConnectTimeout = 10 * time.Second

// MQTTFeed subscribes to an MQTT topic. Paho's own reconnect is disabled so
// that Client applies its fixed retry delay.
type MQTTFeed struct {
	Broker    string
	Topic     string
	ClientID  string
	KeepAlive time.Duration
	QoS       byte
	Logger    *zap.Logger
}

// Run implements Feed.
func (f *MQTTFeed) Run(ctx context.Context, connected func(), message func([]byte)) error {
	clientID := f.ClientID
	if clientID == "" {
		clientID = "smartpulse-" + uuid.New().String()
	}

	lost := make(chan error, 1)
	opts := mqtt.NewClientOptions()
	opts.AddBroker(f.Broker)
	opts.SetClientID(clientID)
	opts.SetAutoReconnect(false)
	opts.SetConnectRetry(false)
	opts.SetOrderMatters(true)
	opts.SetConnectTimeout(mqttConnectTimeout)
	if f.KeepAlive > 0 {
		opts.SetKeepAlive(f.KeepAlive)
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		select {
		case lost <- err:
		default:
		}
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(mqttConnectTimeout) {
		return fmt.Errorf("connect %s: timed out", f.Broker)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("connect %s: %w", f.Broker, err)
	}
	defer client.Disconnect(250)

	sub := client.Subscribe(f.Topic, f.QoS, func(_ mqtt.Client, m mqtt.Message) {
		message(m.Payload())
	})
	if !sub.WaitTimeout(mqttConnectTimeout) {
		return fmt.Errorf("subscribe %s: timed out", f.Topic)
	}
	if err := sub.Error(); err != nil {
		return fmt.Errorf("subscribe %s: %w", f.Topic, err)
	}
	if f.Logger != nil {
		f.Logger.Info("Subscribed to MQTT topic", zap.String("broker", f.Broker), zap.String("topic", f.Topic))
	}
	connected()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-lost:
		return fmt.Errorf("connection lost: %w", err)
	}
}
