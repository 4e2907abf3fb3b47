package mqtt

import (
	"context"
	"fmt"
)

// SubscribeAll subscribes one handler to every topic in a single SUBSCRIBE
// packet and waits for the SUBACK.
//
// The handler runs on paho's goroutines and must not block. Subscriptions
// die with the connection: after Lost() the owner subscribes again on a new
// Client.
func (c *Client) SubscribeAll(ctx context.Context, topics []string, qos byte, handler MessageHandler) error {
	if handler == nil {
		return fmt.Errorf("%w: nil handler", ErrSubscribeFailed)
	}
	if err := c.checkRequest(topics, qos); err != nil {
		return err
	}

	filters := make(map[string]byte, len(topics))
	for _, topic := range topics {
		filters[topic] = qos
	}

	token := c.client.SubscribeMultiple(filters, c.wrapHandler(handler))
	if err := waitToken(ctx, token, defaultSubscribeTimeout); err != nil {
		return fmt.Errorf("%w: %d topics: %w", ErrSubscribeFailed, len(topics), err)
	}
	return nil
}
