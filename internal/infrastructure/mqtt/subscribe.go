package mqtt

import (
	"fmt"
)

// SubscribeOptions controls how a subscription delivers messages.
type SubscribeOptions struct {
	// QoS is the maximum QoS level for received messages (0, 1, or 2).
	QoS byte

	// NoLocal drops live redeliveries of this client's own publishes.
	// MQTT 3.1.1 has no broker-side no-local flag, so the client filters
	// messages whose topic and payload equal its last publish to that
	// topic. Retained deliveries are always passed through.
	NoLocal bool
}

// Subscribe registers a handler for messages on the specified topic filter.
//
// Topic filters can include MQTT wildcards:
//   - + (single-level): "release2mqtt/nas01/docker/+" matches every unit
//   - # (multi-level): "release2mqtt/#" matches everything below the root
//
// The handler is called in a separate goroutine for each received message.
// Subscriptions are automatically restored if the connection is lost and
// reconnected (tracked internally).
//
// Example:
//
//	err := client.Subscribe("release2mqtt/nas01/docker", mqtt.SubscribeOptions{NoLocal: true},
//	    func(msg mqtt.Message) error {
//	        log.Printf("Received: %s = %s", msg.Topic, msg.Payload)
//	        return nil
//	    })
func (c *Client) Subscribe(topic string, opts SubscribeOptions, handler MessageHandler) error {
	if err := ValidateFilter(topic); err != nil {
		return err
	}
	if opts.QoS > maxQoS {
		return ErrInvalidQoS
	}
	if handler == nil {
		return fmt.Errorf("%w: handler cannot be nil", ErrSubscribeFailed)
	}

	if !c.IsConnected() {
		return ErrNotConnected
	}

	sub := subscription{
		topic:   topic,
		opts:    opts,
		handler: handler,
	}

	c.subMu.Lock()
	c.subscriptions[topic] = sub
	c.subMu.Unlock()

	token := c.client.Subscribe(topic, opts.QoS, c.wrapHandler(sub))
	if !token.WaitTimeout(defaultPublishTimeout) {
		c.forget(topic)
		return fmt.Errorf("%w: timeout after %v", ErrSubscribeFailed, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		c.forget(topic)
		return fmt.Errorf("%w: %w", ErrSubscribeFailed, err)
	}

	return nil
}

// Unsubscribe removes a subscription and stops receiving messages for a topic.
//
// Any messages already in flight may still be delivered.
func (c *Client) Unsubscribe(topic string) error {
	if topic == "" {
		return ErrInvalidTopic
	}

	if !c.IsConnected() {
		return ErrNotConnected
	}

	c.forget(topic)

	token := c.client.Unsubscribe(topic)
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrUnsubscribeFailed, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrUnsubscribeFailed, err)
	}

	return nil
}

// forget drops a subscription from reconnect tracking.
func (c *Client) forget(topic string) {
	c.subMu.Lock()
	delete(c.subscriptions, topic)
	c.subMu.Unlock()
}

// SubscriptionCount returns the number of active subscriptions.
func (c *Client) SubscriptionCount() int {
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	return len(c.subscriptions)
}

// HasSubscription checks if a subscription exists for the given topic.
//
// Note: This checks only the exact filter string, not pattern matching.
func (c *Client) HasSubscription(topic string) bool {
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	_, exists := c.subscriptions[topic]
	return exists
}
