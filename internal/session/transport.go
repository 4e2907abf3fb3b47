package session

import (
	"context"

	"github.com/domneedham/galactic-unicorn-go/internal/infrastructure/config"
	"github.com/domneedham/galactic-unicorn-go/internal/infrastructure/mqtt"
)

// Transport is one broker connection. *mqtt.Client implements it.
type Transport interface {
	SubscribeAll(ctx context.Context, topics []string, qos byte, handler mqtt.MessageHandler) error
	Publish(ctx context.Context, topic string, payload []byte, qos byte, retained bool) error
	PublishOnline(ctx context.Context) error
	Lost() <-chan struct{}
	LostErr() error
	IsConnected() bool
	Close() error
}

// Dialer opens a new Transport. Each call is one handshake attempt.
type Dialer func(ctx context.Context) (Transport, error)

// MQTTDialer returns a Dialer connecting with cfg and the availability will.
func MQTTDialer(cfg config.MQTTConfig, will mqtt.Will, logger mqtt.Logger) Dialer {
	return func(ctx context.Context) (Transport, error) {
		c, err := mqtt.Connect(ctx, cfg, will)
		if err != nil {
			return nil, err
		}
		if logger != nil {
			c.SetLogger(logger)
		}
		return c, nil
	}
}
