package mqtt

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/domneedham/galactic-unicorn-go/internal/infrastructure/config"
)

// Logger is the subset of logging.Logger the client reports through.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}

// Will names the retained availability topic and its two payloads. The
// broker publishes Offline itself if the client disappears.
type Will struct {
	Topic   string
	Online  string
	Offline string
}

// MessageHandler receives one inbound message. paho calls it from its own
// goroutine. A returned error is logged and otherwise ignored.
type MessageHandler func(topic string, payload []byte) error

// Client is a single broker connection. It never reconnects: once Lost
// fires the owner dials a new Client.
type Client struct {
	client pahomqtt.Client
	cfg    config.MQTTConfig
	will   Will

	up atomic.Bool

	lost     chan struct{}
	lostOnce sync.Once
	lostErr  error // written before lost is closed

	mu     sync.Mutex
	logger Logger
}

// Connect dials the broker described by cfg with will registered as the
// last will. It gives up after cfg.ConnectTimeout or when ctx ends.
func Connect(ctx context.Context, cfg config.MQTTConfig, will Will) (*Client, error) {
	c := &Client{cfg: cfg, will: will, lost: make(chan struct{})}

	opts := buildClientOptions(cfg)
	configureLWT(opts, will, byte(cfg.QoS))
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		c.onConnectionLost(err)
	})

	c.client = pahomqtt.NewClient(opts)
	if err := waitToken(ctx, c.client.Connect(), connectTimeout(cfg)); err != nil {
		c.client.Disconnect(0)
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}
	c.up.Store(true)
	return c, nil
}

func (c *Client) onConnectionLost(err error) {
	c.up.Store(false)
	c.lostOnce.Do(func() {
		c.lostErr = err
		close(c.lost)
	})
}

// Lost is closed when the connection drops or Close is called.
func (c *Client) Lost() <-chan struct{} {
	return c.lost
}

// LostErr is the reason Lost fired, or nil while connected.
func (c *Client) LostErr() error {
	select {
	case <-c.lost:
		return c.lostErr
	default:
		return nil
	}
}

// PublishOnline marks the device available.
func (c *Client) PublishOnline(ctx context.Context) error {
	if c.will.Topic == "" {
		return nil
	}
	return c.Publish(ctx, c.will.Topic, []byte(c.will.Online), byte(c.cfg.QoS), true)
}

// Close publishes the offline payload, since the broker only sends the will
// on an unclean drop, and disconnects.
func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}
	if c.IsConnected() && c.will.Topic != "" {
		c.client.Publish(c.will.Topic, byte(c.cfg.QoS), true, c.will.Offline).WaitTimeout(defaultPublishTimeout)
	}
	c.client.Disconnect(defaultDisconnectQuiesce)
	c.onConnectionLost(ErrNotConnected)
	return nil
}

// IsConnected reports whether the connection is still up.
func (c *Client) IsConnected() bool {
	return c.client != nil && c.up.Load() && c.client.IsConnected()
}

// SetLogger sets where handler failures are reported. Without one they
// are dropped.
func (c *Client) SetLogger(logger Logger) {
	c.mu.Lock()
	c.logger = logger
	c.mu.Unlock()
}

func (c *Client) log() Logger {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.logger
}

func (c *Client) wrapHandler(handler MessageHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		c.dispatch(handler, msg.Topic(), msg.Payload())
	}
}

// dispatch runs handler, containing any panic so paho's router survives.
func (c *Client) dispatch(handler MessageHandler, topic string, payload []byte) {
	defer func() {
		if p := recover(); p != nil {
			if l := c.log(); l != nil {
				l.Error("mqtt handler panic", "topic", topic, "panic", p)
			}
		}
	}()

	if err := handler(topic, payload); err != nil {
		if l := c.log(); l != nil {
			l.Warn("mqtt handler failed", "topic", topic, "error", err)
		}
	}
}
