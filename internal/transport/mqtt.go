package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"rinnai_bridge/internal/logger"
	"rinnai_bridge/internal/models"
)

const (
	// connectWait bounds how long a lazy broker connect may block a
	// subscribe or command.
	connectWait = 5 * time.Second
	publishWait = 10 * time.Second

	pushBufferSize = 64
)

// topicKind distinguishes the two push feeds of one unit.
type topicKind string

const (
	topicInfo   topicKind = "inf"
	topicEnergy topicKind = "stg"
	topicSet    topicKind = "set"
)

// pushClient owns the MQTT session: device subscriptions, push decoding and
// command publishing.
type pushClient struct {
	cfg      Config
	username string
	password string
	log      *logger.Logger

	mu     sync.Mutex
	client mqtt.Client
	// topics maps a subscribed topic to the unit and feed it belongs to,
	// so dispatch never relies on captured loop variables.
	topics map[string]topicRoute

	messages chan PushMessage
}

type topicRoute struct {
	deviceID string
	kind     topicKind
}

func newPushClient(cfg Config, passwordHash string, log *logger.Logger) *pushClient {
	return &pushClient{
		cfg: cfg,
		// The broker identifies app sessions by this account prefix.
		username: "a:rinnai:SR:01:SR:" + cfg.Username,
		password: passwordHash,
		log:      log,
		topics:   make(map[string]topicRoute),
		messages: make(chan PushMessage, pushBufferSize),
	}
}

// connect establishes the broker session once; later calls reuse it.
func (p *pushClient) connect() (mqtt.Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.client != nil && p.client.IsConnected() {
		return p.client, nil
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(p.cfg.BrokerURL)
	opts.SetUsername(p.username)
	opts.SetPassword(p.password)
	opts.SetClientID(fmt.Sprintf("%s:%d", p.username, time.Now().UnixNano()%1_000_000))
	// The vendor broker presents a certificate that does not verify.
	opts.SetTLSConfig(&tls.Config{InsecureSkipVerify: true, MinVersion: tls.VersionTLS12})
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectTimeout(connectWait)
	opts.SetDefaultPublishHandler(p.dispatch)
	opts.OnConnect = func(_ mqtt.Client) {
		p.resubscribeAll()
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		p.log.Warnw("push_connection_lost", "err", err)
	}

	client := mqtt.NewClient(opts)
	if err := waitToken(client.Connect(), connectWait, "push broker connect"); err != nil {
		return nil, err
	}
	p.client = client
	p.log.Infow("push_broker_connected", "broker", p.cfg.BrokerURL)
	return client, nil
}

func deviceTopic(mac string, kind topicKind) string {
	return fmt.Sprintf("rinnai/SR/01/SR/%s/%s/", mac, kind)
}

// subscribeDevice registers the unit's info and energy topics.
func (p *pushClient) subscribeDevice(device models.Device) error {
	if device.MAC == "" {
		return fmt.Errorf("device %s has no MAC address", device.ID)
	}
	client, err := p.connect()
	if err != nil {
		return err
	}

	for _, kind := range []topicKind{topicInfo, topicEnergy} {
		topic := deviceTopic(device.MAC, kind)

		p.mu.Lock()
		_, known := p.topics[topic]
		p.topics[topic] = topicRoute{deviceID: device.ID, kind: kind}
		p.mu.Unlock()
		if known {
			continue
		}

		if err := waitToken(client.Subscribe(topic, 1, nil), connectWait, "subscribe "+topic); err != nil {
			return err
		}
		p.log.Debugw("push_subscribed", "topic", topic, "device", device.ID)
	}
	return nil
}

// resubscribeAll restores subscriptions after a reconnect.
func (p *pushClient) resubscribeAll() {
	p.mu.Lock()
	topics := make([]string, 0, len(p.topics))
	for topic := range p.topics {
		topics = append(topics, topic)
	}
	client := p.client
	p.mu.Unlock()

	if client == nil {
		return
	}
	for _, topic := range topics {
		_ = client.Subscribe(topic, 1, nil).WaitTimeout(connectWait)
	}
}

// dispatch decodes one push frame and forwards it to the consumer channel.
// A full channel drops the frame: the next poll cycle re-reads the state.
func (p *pushClient) dispatch(_ mqtt.Client, msg mqtt.Message) {
	p.mu.Lock()
	route, ok := p.topics[msg.Topic()]
	p.mu.Unlock()
	if !ok {
		p.log.Debugw("push_unroutable_topic", "topic", msg.Topic())
		return
	}

	var (
		fields models.RawFields
		err    error
	)
	switch route.kind {
	case topicInfo:
		fields, err = parseInfoPayload(msg.Payload())
	case topicEnergy:
		fields, err = parseEnergyPayload(msg.Payload())
	default:
		return
	}
	if err != nil {
		p.log.Warnw("push_payload_invalid", "topic", msg.Topic(), "err", err)
		return
	}
	if len(fields) == 0 {
		return
	}

	select {
	case p.messages <- PushMessage{DeviceID: route.deviceID, Fields: fields}:
	default:
		p.log.Warnw("push_buffer_full_dropping", "device", route.deviceID)
	}
}

// sendCommand publishes the command envelope at least once (QoS 1).
func (p *pushClient) sendCommand(ctx context.Context, device models.Device, fields models.RawFields) error {
	if device.MAC == "" {
		return fmt.Errorf("device %s has no MAC address", device.ID)
	}
	client, err := p.connect()
	if err != nil {
		return err
	}

	payload, err := buildCommandPayload(device, fields)
	if err != nil {
		return err
	}

	wait := publishWait
	if deadline, ok := ctx.Deadline(); ok {
		if d := time.Until(deadline); d < wait {
			wait = d
		}
	}

	topic := deviceTopic(device.MAC, topicSet)
	return waitToken(client.Publish(topic, 1, false, payload), wait, "publish to "+topic)
}

// waitToken waits on a paho token. A WaitTimeout miss leaves the token's
// error nil, so the timeout gets its own message instead of wrapping nil.
func waitToken(t mqtt.Token, timeout time.Duration, what string) error {
	if !t.WaitTimeout(timeout) {
		return fmt.Errorf("%s timed out", what)
	}
	if err := t.Error(); err != nil {
		return fmt.Errorf("%s: %w", what, err)
	}
	return nil
}

func (p *pushClient) close() {
	p.mu.Lock()
	client := p.client
	p.client = nil
	p.mu.Unlock()

	if client != nil && client.IsConnected() {
		client.Disconnect(250)
	}
}
