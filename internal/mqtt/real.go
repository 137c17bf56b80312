package mqtt

import (
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

const (
	bufferCapacity = 256
	commandBacklog = 64
	publishTimeout = 5 * time.Second
)

// Options configures a RealClient.
type Options struct {
	Broker      string
	ClientID    string
	TopicPrefix string
}

// RealClient talks to an actual MQTT broker. Messages published while
// disconnected are buffered and replayed on reconnect.
type RealClient struct {
	client   paho.Client
	topics   Topics
	log      zerolog.Logger
	commands chan Command

	mu     sync.Mutex
	buffer *ringBuffer
}

// NewRealClient creates a client and starts connecting to the broker.
// An unreachable broker is not an error; the client keeps retrying.
func NewRealClient(o Options, log zerolog.Logger) (*RealClient, error) {
	if o.Broker == "" {
		return nil, errors.New("no broker configured")
	}
	c := &RealClient{
		topics:   TopicsFor(o.TopicPrefix),
		log:      log.With().Str("component", "mqtt").Logger(),
		commands: make(chan Command, commandBacklog),
		buffer:   newRingBuffer(bufferCapacity),
	}

	will, err := FormatSystemPayload(SystemEvent{Timestamp: time.Now(), Event: "OFFLINE"})
	if err != nil {
		return nil, errors.Wrap(err, "format will")
	}

	opts := paho.NewClientOptions().
		AddBroker(o.Broker).
		SetClientID(o.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetWill(c.topics.System, string(will), 1, true).
		SetOnConnectHandler(c.onConnect).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			c.log.Warn().Err(err).Msg("connection lost")
		})

	c.client = paho.NewClient(opts)
	token := c.client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		c.log.Warn().Str("broker", o.Broker).Msg("broker not reachable yet, retrying in background")
	} else if err := token.Error(); err != nil {
		return nil, errors.Wrap(err, "connect to broker")
	}
	return c, nil
}

// onConnect subscribes to commands and replays buffered messages.
func (c *RealClient) onConnect(client paho.Client) {
	c.log.Info().Msg("connected")
	token := client.Subscribe(c.topics.Commands, 1, c.onMessage)
	if token.WaitTimeout(publishTimeout) && token.Error() != nil {
		c.log.Error().Err(token.Error()).Str("topic", c.topics.Commands).Msg("subscribe failed")
	}

	c.mu.Lock()
	pending := c.buffer.drainAll()
	c.mu.Unlock()
	for _, m := range pending {
		if err := c.send(m); err != nil {
			c.log.Warn().Err(err).Str("topic", m.topic).Msg("replay failed")
		}
	}
	if len(pending) > 0 {
		c.log.Info().Int("count", len(pending)).Msg("replayed buffered messages")
	}
}

func (c *RealClient) onMessage(_ paho.Client, msg paho.Message) {
	cmd, err := ParseCommand(msg.Payload())
	if err != nil {
		c.log.Warn().Err(err).Bytes("payload", msg.Payload()).Msg("ignoring command")
		return
	}
	select {
	case c.commands <- cmd:
	default:
		c.log.Warn().Str("command", string(cmd.Type)).Msg("command backlog full, dropping")
	}
}

// Commands delivers parsed inbound commands.
func (c *RealClient) Commands() <-chan Command {
	return c.commands
}

// Publish sends a pulse event, QoS 0, not retained.
func (c *RealClient) Publish(event PulseEvent) error {
	payload, err := FormatPayload(event)
	if err != nil {
		return errors.Wrap(err, "format payload")
	}
	return c.publish(bufferedMsg{topic: c.topics.Events, payload: payload})
}

// PublishSystem sends a system lifecycle event, QoS 1.
func (c *RealClient) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return errors.Wrap(err, "format system payload")
	}
	return c.publish(bufferedMsg{topic: c.topics.System, payload: payload, qos: 1, retained: event.Retained})
}

func (c *RealClient) publish(m bufferedMsg) error {
	if !c.client.IsConnectionOpen() {
		c.mu.Lock()
		dropped := c.buffer.push(m)
		c.mu.Unlock()
		if dropped {
			c.log.Warn().Int("capacity", bufferCapacity).Msg("buffer full, dropping oldest")
		}
		return nil
	}
	return c.send(m)
}

func (c *RealClient) send(m bufferedMsg) error {
	token := c.client.Publish(m.topic, m.qos, m.retained, m.payload)
	if !token.WaitTimeout(publishTimeout) {
		return errors.Errorf("publish to %s timed out", m.topic)
	}
	if err := token.Error(); err != nil {
		return errors.Wrapf(err, "publish to %s", m.topic)
	}
	return nil
}

// IsConnected reports whether the broker connection is open.
func (c *RealClient) IsConnected() bool {
	return c.client.IsConnectionOpen()
}

// Close disconnects from the broker.
func (c *RealClient) Close() error {
	c.client.Disconnect(1000) // 1 second timeout
	return nil
}
