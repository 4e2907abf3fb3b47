package mqtt

import (
	"context"
	"fmt"
)

// maxPayloadSize bounds outbound payloads. Discovery documents are the
// largest thing the device sends and stay far below it.
const maxPayloadSize = 64 << 10

// Publish sends payload to topic and waits for the acknowledgement, bounded
// by a fixed timeout and ctx. A cancelled ctx abandons the publish; device
// state is republished on the next change, so nothing is retried here.
func (c *Client) Publish(ctx context.Context, topic string, payload []byte, qos byte, retained bool) error {
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: %s: %d bytes exceeds %d", ErrPublishFailed, topic, len(payload), maxPayloadSize)
	}
	if err := c.checkRequest([]string{topic}, qos); err != nil {
		return err
	}

	token := c.client.Publish(topic, qos, retained, payload)
	if err := waitToken(ctx, token, defaultPublishTimeout); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrPublishFailed, topic, err)
	}
	return nil
}
