package mqtt

import (
	"encoding/json"
	"fmt"
)

// Maximum payload size for MQTT messages (1MB).
const maxPayloadSize = 1 << 20 // 1MB

// Publish sends a message to the specified MQTT topic.
//
// Parameters:
//   - topic: The topic to publish to; wildcards are rejected
//   - payload: The message payload (typically JSON, max 1MB)
//   - qos: Quality of Service level (0, 1, or 2)
//   - retained: Whether the broker should retain the message for new subscribers
//
// Retained Messages:
//   - The broker stores the last message for each topic
//   - New subscribers immediately receive the retained message
//   - An empty retained payload deletes the stored message
//
// Example:
//
//	err := client.Publish("release2mqtt/nas01/docker/web", []byte(`{"state":"off"}`), 0, true)
func (c *Client) Publish(topic string, payload []byte, qos byte, retained bool) error {
	if err := ValidateTopic(topic); err != nil {
		return err
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: payload size %d exceeds maximum %d bytes", ErrPublishFailed, len(payload), maxPayloadSize)
	}

	if !c.IsConnected() {
		return ErrNotConnected
	}

	c.rememberPublish(topic, payload)

	token := c.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrPublishFailed, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}

	return nil
}

// PublishRetained publishes a retained message with the configured default QoS.
func (c *Client) PublishRetained(topic string, payload []byte) error {
	return c.Publish(topic, payload, byte(c.cfg.QoS), true)
}

// PublishJSON marshals v and publishes it retained with the configured QoS.
func (c *Client) PublishJSON(topic string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("%w: encoding payload for %s: %w", ErrPublishFailed, topic, err)
	}
	return c.PublishRetained(topic, payload)
}

// Retract deletes the retained message on topic by publishing an empty
// retained payload.
func (c *Client) Retract(topic string) error {
	return c.PublishRetained(topic, nil)
}
