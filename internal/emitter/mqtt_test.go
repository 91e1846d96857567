package emitter

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sugawarayuuta/sonnet"

	"github.com/e7canasta/orion-event-sensor/internal/config"
	"github.com/e7canasta/orion-event-sensor/modules/pipeline"
)

type fakeToken struct {
	err     error
	timeout bool
	done    chan struct{}
}

func newFakeToken(err error, timeout bool) *fakeToken {
	t := &fakeToken{err: err, timeout: timeout, done: make(chan struct{})}
	if !timeout {
		close(t.done)
	}
	return t
}

func (t *fakeToken) Wait() bool                     { return !t.timeout }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return !t.timeout }
func (t *fakeToken) Done() <-chan struct{}          { return t.done }
func (t *fakeToken) Error() error                   { return t.err }

// fakeClient records publishes; the embedded nil interface panics on
// anything else.
type fakeClient struct {
	mqtt.Client

	mu       sync.Mutex
	topics   []string
	payloads [][]byte
	qos      []byte
	err      error
	timeout  bool
}

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.topics = append(c.topics, topic)
	c.payloads = append(c.payloads, payload.([]byte))
	c.qos = append(c.qos, qos)
	return newFakeToken(c.err, c.timeout)
}

func (c *fakeClient) IsConnected() bool { return true }
func (c *fakeClient) Disconnect(uint)   {}

func newTestEmitter(t *testing.T, client *fakeClient) *MQTTEmitter {
	t.Helper()
	cfg, err := config.Parse([]byte(`
instance_id: "lab-1"
streams:
  - name: "cam"
    source: {type: file, path: /tmp/x}
    layout: dvs128
mqtt:
  broker: "tcp://localhost:1883"
  qos: 1
`))
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	e := NewMQTTEmitter(cfg)
	if client != nil {
		e.Client = client
		e.setConnected(true)
	}
	return e
}

func TestPublishStats(t *testing.T) {
	client := &fakeClient{}
	e := newTestEmitter(t, client)

	var stats pipeline.StreamStats
	stats.Name = "cam"
	stats.Events = 42
	if err := e.PublishStats(stats); err != nil {
		t.Fatalf("PublishStats() error = %v", err)
	}

	if len(client.topics) != 1 || client.topics[0] != "events/stats/lab-1/cam" {
		t.Fatalf("topics = %v", client.topics)
	}
	if client.qos[0] != 1 {
		t.Errorf("qos = %d, want 1", client.qos[0])
	}

	var decoded map[string]any
	if err := sonnet.Unmarshal(client.payloads[0], &decoded); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if decoded["events"] != float64(42) || decoded["instance_id"] != "lab-1" {
		t.Errorf("payload = %s", client.payloads[0])
	}

	s := e.Stats()
	if !s.Connected || s.Published["events/stats/lab-1/cam"] != 1 || s.Errors != 0 || s.LastPublished.IsZero() {
		t.Errorf("Stats() = %+v", s)
	}
}

func TestPublish_NotConnected(t *testing.T) {
	e := newTestEmitter(t, nil)

	err := e.PublishHealth([]byte(`{}`))
	if err == nil || !strings.Contains(err.Error(), "not connected") {
		t.Fatalf("PublishHealth() error = %v", err)
	}
	s := e.Stats()
	if s.Errors != 1 || s.LastError != "mqtt not connected" {
		t.Errorf("Errors = %d LastError = %q, want 1 / mqtt not connected", s.Errors, s.LastError)
	}
}

func TestPublish_Failures(t *testing.T) {
	tests := []struct {
		name    string
		client  *fakeClient
		wantErr string
	}{
		{"timeout", &fakeClient{timeout: true}, "publish timeout"},
		{"broker error", &fakeClient{err: errors.New("not authorized")}, "publish failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEmitter(t, tt.client)
			err := e.PublishHealth([]byte(`{"status":"alive"}`))
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("PublishHealth() error = %v, want %q", err, tt.wantErr)
			}
			if got := e.Stats().Errors; got != 1 {
				t.Errorf("Errors = %d, want 1", got)
			}
		})
	}
}

func TestSink_SwallowsErrors(t *testing.T) {
	e := newTestEmitter(t, nil)
	sink := e.Sink()

	sink(pipeline.StreamStats{Name: "cam"})
	sink(pipeline.StreamStats{Name: "cam"})

	if got := e.Stats().Errors; got != 2 {
		t.Errorf("Errors = %d, want 2", got)
	}
}

func TestDisconnect(t *testing.T) {
	e := newTestEmitter(t, &fakeClient{})
	if err := e.Disconnect(); err != nil {
		t.Fatal(err)
	}
	if e.Stats().Connected {
		t.Error("still connected after Disconnect")
	}
}
