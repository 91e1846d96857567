package health

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sugawarayuuta/sonnet"

	"github.com/e7canasta/orion-event-sensor/internal/types"
	"github.com/e7canasta/orion-event-sensor/modules/pipeline"
)

// StatsProvider is satisfied by *pipeline.Manager.
type StatsProvider interface {
	Stats() []pipeline.StreamStats
}

// Status represents the health state of the sensor
type Status struct {
	Status         string `json:"status"` // "healthy", "degraded", "unhealthy"
	UptimeSeconds  int64  `json:"uptime_seconds"`
	StreamsRunning int    `json:"streams_running"`
	StreamsTotal   int    `json:"streams_total"`
	BytesLost      uint64 `json:"bytes_lost"`
	MQTTConnected  bool   `json:"mqtt_connected"`
}

// Server exposes liveness, readiness and stats over HTTP
type Server struct {
	instanceID string
	provider   StatsProvider
	mqttUp     func() bool // nil when MQTT is not configured
	pushEvery  time.Duration
	started    time.Time

	upgrader websocket.Upgrader
	srv      *http.Server
}

// NewServer builds the server. mqttUp may be nil.
func NewServer(instanceID string, provider StatsProvider, mqttUp func() bool, pushEvery time.Duration) *Server {
	if pushEvery <= 0 {
		pushEvery = time.Second
	}
	s := &Server{
		instanceID: instanceID,
		provider:   provider,
		mqttUp:     mqttUp,
		pushEvery:  pushEvery,
		started:    time.Now(),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin:     func(r *http.Request) bool { return true },
	}
	return s
}

// Handler returns the endpoint mux.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.LivenessHandler)
	mux.HandleFunc("/readiness", s.ReadinessHandler)
	mux.HandleFunc("/stats", s.StatsHandler)
	mux.HandleFunc("/ws/stats", s.StatsStreamHandler)
	return mux
}

// Check returns the current health status
func (s *Server) Check() Status {
	stats := s.provider.Stats()
	status := Status{
		Status:        "healthy",
		UptimeSeconds: int64(time.Since(s.started).Seconds()),
		StreamsTotal:  len(stats),
	}
	for _, st := range stats {
		if st.Ring.Running {
			status.StreamsRunning++
		}
		status.BytesLost += st.Ring.BytesLost
	}
	mqttConfigured := s.mqttUp != nil
	if mqttConfigured {
		status.MQTTConnected = s.mqttUp()
	}

	switch {
	case status.StreamsRunning == 0:
		status.Status = "unhealthy"
	case status.StreamsRunning < status.StreamsTotal, mqttConfigured && !status.MQTTConnected:
		status.Status = "degraded"
	}
	return status
}

// LivenessHandler handles /health: 200 while the process is alive
func (s *Server) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "alive",
		"uptime": int64(time.Since(s.started).Seconds()),
	})
}

// ReadinessHandler handles /readiness: 503 when no stream is running
func (s *Server) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	status := s.Check()
	code := http.StatusOK
	if status.Status == "unhealthy" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, status)
}

// StatsHandler handles /stats: one report per stream
func (s *Server) StatsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.reports(time.Now()))
}

// StatsStreamHandler handles /ws/stats: pushes the reports every pushEvery
// until the client goes away.
func (s *Server) StatsStreamHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Debug("health: websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	// Reader goroutine notices the close frame.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(s.pushEvery)
	defer ticker.Stop()
	for {
		payload, err := sonnet.Marshal(s.reports(time.Now()))
		if err != nil {
			slog.Error("health: marshal stats", "error", err)
			return
		}
		conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			return
		}

		select {
		case <-gone:
			return
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Server) reports(now time.Time) []*types.StreamReport {
	stats := s.provider.Stats()
	out := make([]*types.StreamReport, len(stats))
	for i, st := range stats {
		out[i] = types.NewStreamReport(s.instanceID, st, now)
	}
	return out
}

// Start listens on addr in the background.
func (s *Server) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.srv = &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 0, // /ws/stats is long-lived
		IdleTimeout:  60 * time.Second,
	}

	slog.Info("health: starting server",
		"addr", ln.Addr().String(),
		"endpoints", []string{"/health", "/readiness", "/stats", "/ws/stats"},
	)

	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("health: server failed", "error", err)
		}
	}()
	return nil
}

// Shutdown stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	payload, err := sonnet.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(payload)
}
