package mqtt

import "errors"

// Sentinel errors. The session wraps all of them as session failures; only
// ErrNotConnected and ErrTimeout are worth telling apart when logging.
var (
	ErrNotConnected     = errors.New("mqtt: not connected")
	ErrConnectionFailed = errors.New("mqtt: connect failed")
	ErrPublishFailed    = errors.New("mqtt: publish failed")
	ErrSubscribeFailed  = errors.New("mqtt: subscribe failed")
	ErrTimeout          = errors.New("mqtt: no acknowledgement in time")

	// ErrInvalidTopic and ErrInvalidQoS indicate a programming error in the caller.
	ErrInvalidTopic = errors.New("mqtt: empty topic")
	ErrInvalidQoS   = errors.New("mqtt: qos must be 0, 1 or 2")
)

// checkRequest validates the arguments shared by publish and subscribe, then
// the connection.
func (c *Client) checkRequest(topics []string, qos byte) error {
	if len(topics) == 0 {
		return ErrInvalidTopic
	}
	for _, t := range topics {
		if t == "" {
			return ErrInvalidTopic
		}
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return nil
}
