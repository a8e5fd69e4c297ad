package mqtt

import (
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

// bufferCapacity bounds the number of messages kept while disconnected.
const bufferCapacity = 64

// RealPublisher publishes to an actual MQTT broker. Messages published while
// the broker is unreachable are buffered (oldest dropped past capacity) and
// replayed in order when the connection comes back.
type RealPublisher struct {
	log    *zap.SugaredLogger
	client paho.Client

	mu     sync.Mutex
	buffer *ringBuffer
}

// NewRealPublisher creates a publisher connected to the given broker.
func NewRealPublisher(log *zap.SugaredLogger, broker string) (*RealPublisher, error) {
	p := &RealPublisher{
		log:    log,
		buffer: newRingBuffer(bufferCapacity),
	}

	opts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID("pialarm").
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetOnConnectHandler(func(paho.Client) { p.replay() })

	p.client = paho.NewClient(opts)
	token := p.client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("connection timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}

	return p, nil
}

// Publish sends an alarm state event. QoS 1: arm/trigger transitions are
// worth a duplicate over a loss.
func (p *RealPublisher) Publish(event Event) error {
	payload, err := FormatPayload(event)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}
	return p.send(Topic, 1, false, payload)
}

// PublishSystem sends a daemon lifecycle event.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	return p.send(TopicSystem, 1, event.Retained, payload)
}

// IsConnected reports whether the broker connection is up.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnectionOpen()
}

// Close disconnects from the broker. Buffered messages are dropped.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000) // milliseconds to flush in-flight messages
	return nil
}

// send publishes one message, or buffers it when disconnected.
func (p *RealPublisher) send(topic string, qos byte, retained bool, payload []byte) error {
	if !p.client.IsConnectionOpen() {
		p.mu.Lock()
		dropped := p.buffer.push(bufferedMsg{topic: topic, payload: payload, qos: qos, retained: retained})
		n := p.buffer.len()
		p.mu.Unlock()

		if dropped {
			p.log.Warnf("MQTT buffer full (%d messages), dropping oldest", n)
		} else {
			p.log.Debugf("MQTT disconnected, buffered message (%d pending)", n)
		}
		return nil
	}

	token := p.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("publish timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}

// replay flushes the offline buffer after a (re)connect.
func (p *RealPublisher) replay() {
	p.mu.Lock()
	msgs := p.buffer.drainAll()
	p.mu.Unlock()

	if len(msgs) == 0 {
		return
	}

	p.log.Infof("MQTT reconnected, replaying %d buffered messages", len(msgs))
	for _, msg := range msgs {
		token := p.client.Publish(msg.topic, msg.qos, msg.retained, msg.payload)
		if !token.WaitTimeout(5 * time.Second) {
			p.log.Warn("Replay publish timeout")
			return
		}
		if err := token.Error(); err != nil {
			p.log.Warnf("Replay publish failed: %v", err)
			return
		}
	}
}
