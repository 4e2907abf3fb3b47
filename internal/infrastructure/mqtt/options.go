package mqtt

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/domneedham/galactic-unicorn-go/internal/infrastructure/config"
)

const (
	defaultConnectTimeout    = 10 * time.Second
	defaultPublishTimeout    = 5 * time.Second
	defaultSubscribeTimeout  = 5 * time.Second
	defaultDisconnectQuiesce = 250 // ms

	maxQoS = 2
)

// buildClientOptions maps cfg onto paho options. Reconnects are disabled;
// the session redials with its own backoff.
func buildClientOptions(cfg config.MQTTConfig) *pahomqtt.ClientOptions {
	scheme := "tcp"
	if cfg.Broker.TLS {
		scheme = "ssl"
	}

	opts := pahomqtt.NewClientOptions().
		AddBroker(fmt.Sprintf("%s://%s:%d", scheme, cfg.Broker.Host, cfg.Broker.Port)).
		SetClientID(cfg.Broker.ClientID).
		SetCleanSession(true).
		SetAutoReconnect(false).
		SetConnectRetry(false).
		SetConnectTimeout(connectTimeout(cfg))

	if cfg.Auth.Username != "" {
		opts.SetUsername(cfg.Auth.Username).SetPassword(cfg.Auth.Password)
	}

	// paho pings every KeepAlive and drops the connection when no PINGRESP
	// arrives within PingTimeout; the drop surfaces through Lost().
	keepAlive := time.Duration(cfg.KeepAlive) * time.Second
	opts.SetKeepAlive(keepAlive)
	if timeout := time.Duration(cfg.KeepAliveTimeout)*time.Second - keepAlive; timeout > 0 {
		opts.SetPingTimeout(timeout)
	}

	if cfg.Broker.TLS {
		opts.SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
	}

	return opts
}

// configureLWT registers the retained offline payload as the last will.
func configureLWT(opts *pahomqtt.ClientOptions, will Will, qos byte) {
	if will.Topic == "" {
		return
	}
	opts.SetWill(will.Topic, will.Offline, qos, true)
}

func connectTimeout(cfg config.MQTTConfig) time.Duration {
	if cfg.ConnectTimeout > 0 {
		return time.Duration(cfg.ConnectTimeout) * time.Second
	}
	return defaultConnectTimeout
}

// waitToken blocks until token completes, timeout passes or ctx ends.
// paho keeps working on an abandoned operation; callers treat it as failed.
func waitToken(ctx context.Context, token pahomqtt.Token, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-token.Done():
		return token.Error()
	case <-timer.C:
		return fmt.Errorf("%w after %v", ErrTimeout, timeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}
