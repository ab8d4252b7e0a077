package mqtt

import (
	"bytes"
	"context"
	"fmt"
	"sync"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/release2mqtt/internal/infrastructure/config"
)

// Client wraps paho.mqtt.golang with release2mqtt-specific functionality.
//
// It provides connection management, message publishing, subscription handling,
// and automatic reconnection with exponential backoff.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
//   - Subscriptions are automatically restored on reconnection.
type Client struct {
	client  pahomqtt.Client
	options *pahomqtt.ClientOptions
	cfg     config.MQTTConfig
	opts    Options

	// subscriptions tracks active subscriptions for re-subscription on reconnect.
	subscriptions map[string]subscription
	subMu         sync.RWMutex

	// published holds the last payload sent per topic, used to drop local
	// echoes on no-local subscriptions.
	published map[string][]byte
	pubMu     sync.Mutex

	connected bool
	connMu    sync.RWMutex

	onConnect    func()
	onDisconnect func(err error)
	callbackMu   sync.RWMutex

	logger   Logger
	loggerMu sync.RWMutex
}

// Logger interface for optional logging support.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}

// Options adjusts a connection beyond what the broker config describes.
type Options struct {
	// ClientIDSuffix is appended to the configured client id. Transient
	// connections need one so they do not kick the main session off the broker.
	ClientIDSuffix string

	// Availability, when set, is published as "online" on every connect and
	// registered as the last will. Leave nil for transient connections.
	Availability *Availability
}

// Availability describes the retained online/offline topic for this bridge.
type Availability struct {
	Topic   string
	Online  string
	Offline string
}

// Message is a received MQTT message.
type Message struct {
	Topic    string
	Payload  []byte
	Retained bool
}

// subscription holds subscription details for re-subscription on reconnect.
type subscription struct {
	topic   string
	opts    SubscribeOptions
	handler MessageHandler
}

// MessageHandler is the callback signature for received messages.
//
// Handlers are invoked in separate goroutines by the paho library.
// They should not block for extended periods and must not publish
// synchronously; hand work off to another goroutine instead.
//
// Returned errors are logged but do not affect message acknowledgment.
type MessageHandler func(msg Message) error

// Connect establishes a connection to the MQTT broker.
//
// It performs the following setup:
//  1. Builds connection options from config (broker URL, auth, TLS)
//  2. Configures Last Will and Testament when availability is requested
//  3. Sets up auto-reconnect with exponential backoff
//  4. Attempts initial connection with timeout
//  5. Publishes the online availability payload
//
// Returns ErrConnectionFailed (wrapped) if the broker cannot be reached
// within the connect timeout.
func Connect(cfg config.MQTTConfig, opts Options) (*Client, error) {
	options := buildClientOptions(cfg, opts.ClientIDSuffix)
	if opts.Availability != nil {
		configureLWT(options, *opts.Availability)
	}

	c := &Client{
		cfg:           cfg,
		opts:          opts,
		options:       options,
		subscriptions: make(map[string]subscription),
		published:     make(map[string][]byte),
	}

	options.SetOnConnectHandler(func(_ pahomqtt.Client) {
		c.handleConnect()
	})

	options.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		c.handleDisconnect(err)
	})

	c.client = pahomqtt.NewClient(options)
	token := c.client.Connect()
	if !token.WaitTimeout(defaultConnectTimeout) {
		return nil, fmt.Errorf("%w: timeout after %v", ErrConnectionFailed, defaultConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	// The OnConnectHandler callback runs asynchronously and may not have
	// executed yet, so mark connected here for IsConnected().
	c.connMu.Lock()
	c.connected = true
	c.connMu.Unlock()

	return c, nil
}

// handleConnect is called when the connection is established.
func (c *Client) handleConnect() {
	c.connMu.Lock()
	c.connected = true
	c.connMu.Unlock()

	c.restoreSubscriptions()
	c.publishOnline()

	c.callbackMu.RLock()
	callback := c.onConnect
	c.callbackMu.RUnlock()
	if callback != nil {
		callback()
	}
}

// handleDisconnect is called when the connection is lost.
func (c *Client) handleDisconnect(err error) {
	c.connMu.Lock()
	c.connected = false
	c.connMu.Unlock()

	c.callbackMu.RLock()
	callback := c.onDisconnect
	c.callbackMu.RUnlock()
	if callback != nil {
		callback(err)
	}
}

// restoreSubscriptions re-subscribes to all tracked topics after reconnect.
func (c *Client) restoreSubscriptions() {
	c.subMu.RLock()
	defer c.subMu.RUnlock()

	for _, sub := range c.subscriptions {
		// Errors during reconnection are ignored; the next reconnect retries.
		c.client.Subscribe(sub.topic, sub.opts.QoS, c.wrapHandler(sub))
	}
}

// publishOnline publishes the retained online availability payload.
func (c *Client) publishOnline() {
	if c.opts.Availability == nil {
		return
	}
	a := c.opts.Availability
	c.client.Publish(a.Topic, byte(c.cfg.QoS), true, a.Online)
}

// Close gracefully disconnects from the MQTT broker.
//
// When availability is configured it first publishes the offline payload,
// which the broker would otherwise only send as the last will on a crash.
func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}

	if c.IsConnected() && c.opts.Availability != nil {
		a := c.opts.Availability
		token := c.client.Publish(a.Topic, byte(c.cfg.QoS), true, a.Offline)
		token.WaitTimeout(defaultPublishTimeout)
	}

	c.client.Disconnect(defaultDisconnectQuiesce)

	c.connMu.Lock()
	c.connected = false
	c.connMu.Unlock()

	return nil
}

// HealthCheck verifies the MQTT connection is alive.
func (c *Client) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("mqtt health check: %w", ctx.Err())
	default:
	}

	if !c.IsConnected() {
		return ErrNotConnected
	}

	return nil
}

// IsConnected returns the current connection state.
func (c *Client) IsConnected() bool {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.connected && c.client != nil && c.client.IsConnected()
}

// SetOnConnect sets a callback to be invoked when connection is established.
// This is called on initial connect and on every reconnect.
func (c *Client) SetOnConnect(callback func()) {
	c.callbackMu.Lock()
	c.onConnect = callback
	c.callbackMu.Unlock()
}

// SetOnDisconnect sets a callback to be invoked when connection is lost.
func (c *Client) SetOnDisconnect(callback func(err error)) {
	c.callbackMu.Lock()
	c.onDisconnect = callback
	c.callbackMu.Unlock()
}

// SetLogger sets a logger for error and panic logging.
// If not set, errors in handlers are silently ignored.
func (c *Client) SetLogger(logger Logger) {
	c.loggerMu.Lock()
	c.logger = logger
	c.loggerMu.Unlock()
}

func (c *Client) getLogger() Logger {
	c.loggerMu.RLock()
	defer c.loggerMu.RUnlock()
	return c.logger
}

// rememberPublish records the payload sent to topic for echo detection.
func (c *Client) rememberPublish(topic string, payload []byte) {
	c.pubMu.Lock()
	c.published[topic] = append([]byte(nil), payload...)
	c.pubMu.Unlock()
}

// isLocalEcho reports whether msg is a live redelivery of this client's own
// last publish to the same topic. Retained deliveries are never echoes.
func (c *Client) isLocalEcho(msg Message) bool {
	if msg.Retained {
		return false
	}
	c.pubMu.Lock()
	defer c.pubMu.Unlock()
	last, ok := c.published[msg.Topic]
	return ok && bytes.Equal(last, msg.Payload)
}

// wrapHandler wraps a MessageHandler with panic recovery, no-local
// filtering and optional logging.
func (c *Client) wrapHandler(sub subscription) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, m pahomqtt.Message) {
		defer func() {
			if r := recover(); r != nil {
				if logger := c.getLogger(); logger != nil {
					logger.Error("MQTT handler panic recovered",
						"topic", m.Topic(),
						"panic", r,
					)
				}
			}
		}()

		msg := Message{
			Topic:    m.Topic(),
			Payload:  m.Payload(),
			Retained: m.Retained(),
		}
		if sub.opts.NoLocal && c.isLocalEcho(msg) {
			return
		}

		if err := sub.handler(msg); err != nil {
			if logger := c.getLogger(); logger != nil {
				logger.Warn("MQTT handler returned error",
					"topic", msg.Topic,
					"error", err,
				)
			}
		}
	}
}
