package emitter

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/e7canasta/orion-event-sensor/internal/config"
	"github.com/e7canasta/orion-event-sensor/internal/types"
	"github.com/e7canasta/orion-event-sensor/modules/pipeline"
)

// MQTTEmitter publishes stream stats to an MQTT broker
type MQTTEmitter struct {
	instanceID string
	cfg        config.MQTTConfig
	Client     mqtt.Client

	mu            sync.RWMutex
	published     map[string]uint64 // count per topic
	failures      uint64
	lastError     string
	lastPublished time.Time
	connected     bool
}

// NewMQTTEmitter creates a new MQTT emitter
func NewMQTTEmitter(cfg *config.Config) *MQTTEmitter {
	return &MQTTEmitter{
		instanceID: cfg.InstanceID,
		cfg:        *cfg.MQTT,
		published:  make(map[string]uint64),
	}
}

// Connect establishes connection to MQTT broker
func (e *MQTTEmitter) Connect(ctx context.Context) error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(e.cfg.Broker)
	opts.SetClientID(e.cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)

	opts.OnConnect = func(c mqtt.Client) {
		e.setConnected(true)
		slog.Info("emitter: mqtt connection established",
			"broker", e.cfg.Broker,
			"client_id", e.cfg.ClientID,
		)
	}

	opts.OnConnectionLost = func(c mqtt.Client, err error) {
		e.setConnected(false)
		slog.Warn("emitter: mqtt connection lost, will auto-reconnect",
			"error", err,
			"broker", e.cfg.Broker,
			"max_retry_interval", "30s",
		)
	}

	e.Client = mqtt.NewClient(opts)

	slog.Info("emitter: connecting to mqtt broker", "broker", e.cfg.Broker)

	token := e.Client.Connect()
	select {
	case <-token.Done():
	case <-time.After(5 * time.Second):
		return fmt.Errorf("mqtt connection timeout")
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connection failed: %w", err)
	}

	e.setConnected(true)
	return nil
}

// StatsTopic returns the topic a stream's stats go to.
func (e *MQTTEmitter) StatsTopic(stream string) string {
	return fmt.Sprintf("%s/%s", e.cfg.Topics.Stats, stream)
}

// PublishStats publishes one stream stats snapshot
func (e *MQTTEmitter) PublishStats(stats pipeline.StreamStats) error {
	report := types.NewStreamReport(e.instanceID, stats, time.Now())
	payload, err := report.ToJSON()
	if err != nil {
		err = fmt.Errorf("failed to marshal stats: %w", err)
		e.fail(err)
		return err
	}
	return e.publish(e.StatsTopic(stats.Name), payload)
}

// PublishHealth publishes a health message
func (e *MQTTEmitter) PublishHealth(payload []byte) error {
	return e.publish(e.cfg.Topics.Health, payload)
}

// Sink adapts the emitter to the pipeline's periodic stats report.
// Failures are logged and counted, never returned.
func (e *MQTTEmitter) Sink() pipeline.StatsSink {
	return func(stats pipeline.StreamStats) {
		if err := e.PublishStats(stats); err != nil {
			slog.Debug("emitter: stats not published", "stream", stats.Name, "error", err)
		}
	}
}

func (e *MQTTEmitter) publish(topic string, payload []byte) error {
	if !e.isConnected() {
		return e.fail(fmt.Errorf("mqtt not connected"))
	}

	token := e.Client.Publish(topic, e.cfg.QoS, false, payload)
	if !token.WaitTimeout(2 * time.Second) {
		return e.fail(fmt.Errorf("publish timeout on %s", topic))
	}
	if err := token.Error(); err != nil {
		return e.fail(fmt.Errorf("publish failed: %w", err))
	}

	e.mu.Lock()
	e.published[topic]++
	e.lastPublished = time.Now()
	e.mu.Unlock()

	slog.Debug("emitter: published",
		"topic", topic,
		"qos", e.cfg.QoS,
		"size", len(payload),
	)
	return nil
}

// Disconnect closes the MQTT connection
func (e *MQTTEmitter) Disconnect() error {
	if e.Client != nil && e.Client.IsConnected() {
		e.Client.Disconnect(250)
		slog.Info("emitter: mqtt disconnected")
	}
	e.setConnected(false)
	return nil
}

// Stats is a snapshot of the emitter counters.
type Stats struct {
	Connected     bool
	Published     map[string]uint64
	Errors        uint64
	LastError     string
	LastPublished time.Time
}

func (e *MQTTEmitter) Stats() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()

	s := Stats{
		Connected:     e.connected,
		Published:     make(map[string]uint64, len(e.published)),
		Errors:        e.failures,
		LastError:     e.lastError,
		LastPublished: e.lastPublished,
	}
	for topic, n := range e.published {
		s.Published[topic] = n
	}
	return s
}

func (e *MQTTEmitter) isConnected() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.connected
}

func (e *MQTTEmitter) setConnected(v bool) {
	e.mu.Lock()
	e.connected = v
	e.mu.Unlock()
}

// fail records err and returns it.
func (e *MQTTEmitter) fail(err error) error {
	e.mu.Lock()
	e.failures++
	e.lastError = err.Error()
	e.mu.Unlock()
	return err
}
