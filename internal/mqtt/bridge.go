// Package mqtt bridges external telemetry and control through an MQTT
// broker. Inbound readings on <prefix>/readings feed the
// orchestrator's ingestion point; control commands on <prefix>/control
// are executed with the result published to <prefix>/control/result.
// Outbound, the bridge publishes periodic stats snapshots and an
// availability topic with a will message so "offline" appears on
// unexpected disconnects.
//
// The bridge uses Eclipse Paho v2's [autopaho] package for connection
// management with automatic reconnection. On every (re-)connect it
// re-subscribes to the inbound topics and publishes a birth message.
package mqtt

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"
	"github.com/google/uuid"

	"github.com/jouleworks/gridmind/internal/config"
	"github.com/jouleworks/gridmind/internal/device"
	"github.com/jouleworks/gridmind/internal/orchestrator"
	"github.com/jouleworks/gridmind/internal/telemetry"
)

// inboundRateLimit bounds readings and control messages per interval
// so a misbehaving publisher cannot flood the store.
const (
	inboundRateLimit    = 600
	inboundRateInterval = time.Minute
)

// Backend is what the bridge needs from the orchestrator.
type Backend interface {
	IngestReading(r telemetry.Reading)
	ControlDevice(id string, action device.Action, value float64) (device.Device, error)
	Stats() orchestrator.Stats
}

// Bridge manages the MQTT connection and message flow in both
// directions. Construct with New; Start blocks until ctx is
// cancelled.
type Bridge struct {
	cfg      config.MQTTConfig
	backend  Backend
	logger   *slog.Logger
	clientID string
	limiter  *messageRateLimiter
	cm       *autopaho.ConnectionManager
}

// New creates a Bridge but does not connect.
func New(cfg config.MQTTConfig, backend Backend, logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "mqtt")
	return &Bridge{
		cfg:      cfg,
		backend:  backend,
		logger:   logger,
		clientID: "gridmind-" + newClientSuffix(),
		limiter:  newMessageRateLimiter(inboundRateLimit, inboundRateInterval, logger),
	}
}

// newClientSuffix returns a short unique client id suffix. UUIDv7 keeps
// concurrently started instances distinguishable in broker logs.
func newClientSuffix() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()[:8]
	}
	return id.String()[:8]
}

// Start connects to the broker, subscribes the inbound topics, and
// runs the periodic snapshot loop. It blocks until ctx is cancelled.
func (b *Bridge) Start(ctx context.Context) error {
	brokerURL, err := url.Parse(b.cfg.Broker)
	if err != nil {
		return fmt.Errorf("parse mqtt broker URL: %w", err)
	}

	go b.limiter.start(ctx)

	pahoCfg := autopaho.ClientConfig{
		ServerUrls:      []*url.URL{brokerURL},
		KeepAlive:       30,
		ConnectUsername: b.cfg.Username,
		ConnectPassword: []byte(b.cfg.Password),
		WillMessage: &paho.WillMessage{
			Topic:   b.availabilityTopic(),
			Payload: []byte("offline"),
			QoS:     1,
			Retain:  true,
		},
		OnConnectionUp: func(cm *autopaho.ConnectionManager, _ *paho.Connack) {
			b.logger.Info("mqtt connected to broker", "broker", b.cfg.Broker)
			b.subscribe(ctx, cm)
			b.publishAvailability(ctx, cm, "online")
		},
		OnConnectError: func(err error) {
			b.logger.Warn("mqtt connection error", "error", err)
		},
		ClientConfig: paho.ClientConfig{
			ClientID: b.clientID,
			OnPublishReceived: []func(paho.PublishReceived) (bool, error){
				func(pr paho.PublishReceived) (bool, error) {
					b.dispatch(ctx, pr.Packet.Topic, pr.Packet.Payload)
					return true, nil
				},
			},
		},
	}

	if brokerURL.Scheme == "mqtts" || brokerURL.Scheme == "ssl" {
		pahoCfg.TlsCfg = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	cm, err := autopaho.NewConnection(ctx, pahoCfg)
	if err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}
	b.cm = cm

	connCtx, connCancel := context.WithTimeout(ctx, 30*time.Second)
	defer connCancel()
	if err := cm.AwaitConnection(connCtx); err != nil {
		// autopaho keeps retrying in the background.
		b.logger.Warn("mqtt initial connection timed out, will retry in background", "error", err)
	}

	b.runSnapshotLoop(ctx)
	return nil
}

// Stop publishes "offline" and disconnects.
func (b *Bridge) Stop(ctx context.Context) error {
	if b.cm == nil {
		return nil
	}
	b.publishAvailability(ctx, b.cm, "offline")
	return b.cm.Disconnect(ctx)
}

func (b *Bridge) baseTopic() string {
	prefix := b.cfg.TopicPrefix
	if prefix == "" {
		prefix = "gridmind"
	}
	return prefix
}

func (b *Bridge) availabilityTopic() string { return b.baseTopic() + "/availability" }
func (b *Bridge) readingsTopic() string     { return b.baseTopic() + "/readings" }
func (b *Bridge) controlTopic() string      { return b.baseTopic() + "/control" }
func (b *Bridge) controlResultTopic() string {
	return b.baseTopic() + "/control/result"
}
func (b *Bridge) stateTopic() string { return b.baseTopic() + "/state" }

func (b *Bridge) subscribe(ctx context.Context, cm *autopaho.ConnectionManager) {
	_, err := cm.Subscribe(ctx, &paho.Subscribe{
		Subscriptions: []paho.SubscribeOptions{
			{Topic: b.readingsTopic(), QoS: 1},
			{Topic: b.controlTopic(), QoS: 1},
		},
	})
	if err != nil {
		b.logger.Warn("mqtt subscribe failed", "error", err)
		return
	}
	b.logger.Info("mqtt subscribed",
		"readings", b.readingsTopic(),
		"control", b.controlTopic(),
	)
}

// dispatch routes one inbound message. Rate limiting applies before
// any parsing.
func (b *Bridge) dispatch(ctx context.Context, topic string, payload []byte) {
	if !b.limiter.allow() {
		return
	}
	switch topic {
	case b.readingsTopic():
		b.handleReading(payload)
	case b.controlTopic():
		b.handleControl(ctx, payload)
	default:
		b.logger.Debug("mqtt message on unexpected topic", "topic", topic)
	}
}

// handleReading parses and ingests one external telemetry reading.
func (b *Bridge) handleReading(payload []byte) {
	var r telemetry.Reading
	if err := json.Unmarshal(payload, &r); err != nil {
		b.logger.Warn("mqtt reading failed to parse", "error", err)
		return
	}
	if r.TotalPower < 0 {
		b.logger.Warn("mqtt reading rejected", "total_power", r.TotalPower)
		return
	}
	b.backend.IngestReading(r)
	b.logger.Debug("mqtt reading ingested", "total_power", r.TotalPower)
}

// controlCommand is the <prefix>/control payload.
type controlCommand struct {
	DeviceID string  `json:"device_id"`
	Action   string  `json:"action"`
	Value    float64 `json:"value,omitempty"`
}

// controlResult is published to <prefix>/control/result.
type controlResult struct {
	DeviceID string         `json:"device_id"`
	Success  bool           `json:"success"`
	Error    string         `json:"error,omitempty"`
	Device   *device.Device `json:"device,omitempty"`
}

// handleControl executes one control command and publishes the
// outcome. Parse and execution failures both produce a result message
// so the commanding side always hears back.
func (b *Bridge) handleControl(ctx context.Context, payload []byte) {
	var cmd controlCommand
	if err := json.Unmarshal(payload, &cmd); err != nil {
		b.logger.Warn("mqtt control command failed to parse", "error", err)
		b.publishControlResult(ctx, controlResult{Success: false, Error: "invalid command: " + err.Error()})
		return
	}

	action, err := device.ParseAction(cmd.Action)
	if err != nil {
		b.publishControlResult(ctx, controlResult{DeviceID: cmd.DeviceID, Success: false, Error: err.Error()})
		return
	}

	d, err := b.backend.ControlDevice(cmd.DeviceID, action, cmd.Value)
	if err != nil {
		b.publishControlResult(ctx, controlResult{DeviceID: cmd.DeviceID, Success: false, Error: err.Error()})
		return
	}
	b.publishControlResult(ctx, controlResult{DeviceID: cmd.DeviceID, Success: true, Device: &d})
}

func (b *Bridge) publishControlResult(ctx context.Context, result controlResult) {
	if b.cm == nil {
		return
	}
	payload, err := json.Marshal(result)
	if err != nil {
		b.logger.Error("mqtt marshal control result", "error", err)
		return
	}
	if _, err := b.cm.Publish(ctx, &paho.Publish{
		Topic:   b.controlResultTopic(),
		Payload: payload,
		QoS:     1,
	}); err != nil {
		b.logger.Warn("mqtt control result publish failed", "error", err)
	}
}

func (b *Bridge) publishAvailability(ctx context.Context, cm *autopaho.ConnectionManager, status string) {
	if _, err := cm.Publish(ctx, &paho.Publish{
		Topic:   b.availabilityTopic(),
		Payload: []byte(status),
		QoS:     1,
		Retain:  true,
	}); err != nil {
		b.logger.Warn("mqtt availability publish failed", "status", status, "error", err)
	} else {
		b.logger.Info("mqtt availability published", "status", status)
	}
}

// runSnapshotLoop publishes the aggregate stats snapshot on the
// configured cadence.
func (b *Bridge) runSnapshotLoop(ctx context.Context) {
	interval := time.Duration(b.cfg.PublishIntervalSec) * time.Second
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	b.publishSnapshot(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.publishSnapshot(ctx)
		}
	}
}

func (b *Bridge) publishSnapshot(ctx context.Context) {
	if b.cm == nil {
		return
	}
	payload, err := json.Marshal(b.backend.Stats())
	if err != nil {
		b.logger.Error("mqtt marshal snapshot", "error", err)
		return
	}
	if _, err := b.cm.Publish(ctx, &paho.Publish{
		Topic:   b.stateTopic(),
		Payload: payload,
		QoS:     0,
		Retain:  true,
	}); err != nil {
		b.logger.Debug("mqtt snapshot publish failed", "error", err)
	} else {
		b.logger.Debug("mqtt snapshot published")
	}
}
