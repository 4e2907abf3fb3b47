// Package mqtt provides the MQTT transport for the clock's messaging session.
//
// This package manages:
//   - One broker connection per session establishment (no auto-reconnect)
//   - Message publishing and topic subscriptions with bounded waits
//   - Last Will and Testament on the availability topic
//   - Connection-loss notification through Lost()
//
// # Architecture
//
// The session package owns the lifecycle: it waits for the Wi-Fi link, calls
// Connect, subscribes, announces discovery and watches Lost(). When the
// connection drops it discards the Client and reconnects with backoff.
//
//	session.Session ── Connect ──► mqtt.Client ◄──► broker ◄──► Home Assistant
//
// # Keep-alive
//
// paho sends PINGREQ every keep_alive seconds. If no PINGRESP arrives before
// keep_alive_timeout the connection is dropped and Lost() fires.
//
// # Usage
//
//	client, err := mqtt.Connect(ctx, cfg.MQTT, mqtt.Will{
//	    Topic: id.Topics.Availability, Online: "online", Offline: "offline",
//	})
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.SubscribeAll(ctx, id.Topics.Subscriptions(), 0,
//	    func(topic string, payload []byte) error {
//	        return handle(topic, payload)
//	    })
//	...
//	<-client.Lost()
package mqtt
