// Package telemetry mirrors the node's telemetry to an MQTT broker and
// accepts control commands from a command topic.
package telemetry

import (
	"bytes"
	"context"
	"log"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"nightfall/core"
	"nightfall/protocol"
)

// publishTimeout bounds the wait for a broker acknowledgment
const publishTimeout = 2 * time.Second

// Options configures the mirror
type Options struct {
	Broker      string // e.g. tcp://localhost:1883
	ClientID    string
	TopicPrefix string
	QoS         byte
}

// client is the subset of mqtt.Client the mirror uses
type client interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token
}

// Mirror publishes telemetry frames and feeds the command topic into the
// control loop mailbox
type Mirror struct {
	opts    Options
	client  client
	conn    mqtt.Client
	mailbox *core.Mailbox

	frames chan protocol.Telemetry

	closeOnce sync.Once

	mu        sync.Mutex
	published uint32
	failed    uint32
	dropped   uint32
}

// Topic returns the full topic name for a suffix
func (o Options) Topic(suffix string) string {
	return o.TopicPrefix + "/" + suffix
}

// Connect opens the broker connection and subscribes to the command topic.
// The client reconnects on its own after a lost connection.
func Connect(opts Options, mailbox *core.Mailbox) (*Mirror, error) {
	m := newMirror(opts, mailbox, nil)

	co := mqtt.NewClientOptions()
	co.AddBroker(opts.Broker)
	co.SetClientID(opts.ClientID)
	co.SetAutoReconnect(true)
	co.SetConnectRetry(true)
	co.SetConnectRetryInterval(5 * time.Second)
	co.SetWill(opts.Topic("online"), "false", opts.QoS, true)
	co.OnConnect = func(c mqtt.Client) {
		log.Println("Connected to MQTT broker")
		c.Publish(opts.Topic("online"), opts.QoS, true, "true")
		// Subscriptions are lost on reconnect with a clean session
		c.Subscribe(opts.Topic("command"), opts.QoS, m.onCommand)
	}
	co.OnConnectionLost = func(c mqtt.Client, err error) {
		log.Printf("Connection lost: %v", err)
	}

	conn := mqtt.NewClient(co)
	if token := conn.Connect(); token.WaitTimeout(publishTimeout) && token.Error() != nil {
		return nil, token.Error()
	}
	m.client = conn
	m.conn = conn
	return m, nil
}

func newMirror(opts Options, mailbox *core.Mailbox, c client) *Mirror {
	return &Mirror{
		opts:    opts,
		client:  c,
		mailbox: mailbox,
		frames:  make(chan protocol.Telemetry, 4),
	}
}

// PublishTelemetry queues a frame for the broker. Called from the control
// loop: it never blocks, a full queue drops the frame.
func (m *Mirror) PublishTelemetry(t protocol.Telemetry) {
	select {
	case m.frames <- t:
	default:
		m.mu.Lock()
		m.dropped++
		m.mu.Unlock()
	}
}

// Run publishes queued frames until ctx is cancelled
func (m *Mirror) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			m.Close()
			return
		case t := <-m.frames:
			m.publish(t)
		}
	}
}

func (m *Mirror) publish(t protocol.Telemetry) {
	payload, err := protocol.EncodeTelemetry(t)
	if err != nil {
		return
	}
	token := m.client.Publish(m.opts.Topic("telemetry"), m.opts.QoS, false, payload)
	ok := token.WaitTimeout(publishTimeout)

	m.mu.Lock()
	defer m.mu.Unlock()
	if !ok || token.Error() != nil {
		m.failed++
		return
	}
	m.published++
}

func (m *Mirror) onCommand(_ mqtt.Client, msg mqtt.Message) {
	m.handleCommand(msg.Payload())
}

// handleCommand accepts either a JSON control line or a bare command name
func (m *Mirror) handleCommand(payload []byte) {
	payload = bytes.TrimSpace(payload)
	if len(payload) == 0 {
		return
	}
	if payload[0] != '{' {
		m.mailbox.PostCommand(string(payload))
		return
	}
	if err := m.mailbox.PostLine(payload); err != nil {
		log.Printf("mqtt: dropped command: %v", err)
	}
}

// Stats returns the published, failed and dropped frame counts
func (m *Mirror) Stats() (published, failed, dropped uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.published, m.failed, m.dropped
}

// Close marks the node offline and disconnects. Only the first call has
// any effect; Run calls it on cancellation.
func (m *Mirror) Close() {
	m.closeOnce.Do(func() {
		if m.client == nil {
			return
		}
		m.client.Publish(m.opts.Topic("online"), m.opts.QoS, true, []byte("false")).WaitTimeout(publishTimeout)
		if m.conn != nil {
			m.conn.Disconnect(250)
		}
	})
}
