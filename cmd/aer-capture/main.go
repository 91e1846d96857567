package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/e7canasta/orion-event-sensor/internal/config"
	"github.com/e7canasta/orion-event-sensor/internal/emitter"
	"github.com/e7canasta/orion-event-sensor/internal/health"
	"github.com/e7canasta/orion-event-sensor/internal/journal"
	"github.com/e7canasta/orion-event-sensor/modules/pipeline"
)

const version = "v0.1.0"

type flags struct {
	configPath    string
	file          string
	tcp           string
	ws            string
	gst           string
	layout        string
	policy        string
	tau           float64
	statsInterval int
	warmup        int
	view          string
	healthAddr    string
	console       bool
	activity      bool
	debug         bool
	jsonLogs      bool
}

func main() {
	var f flags
	flag.StringVar(&f.configPath, "config", "", "Path to configuration file")
	flag.StringVar(&f.file, "file", "", "Replay a recording (.aer or .aer.zst)")
	flag.StringVar(&f.tcp, "tcp", "", "Read words from host:port")
	flag.StringVar(&f.ws, "ws", "", "Read words from a websocket URL")
	flag.StringVar(&f.gst, "gst", "", "GStreamer launch line ending in 'appsink name=sink'")
	flag.StringVar(&f.layout, "layout", "dvs128", "Word layout: dvs128, dvs128-raw, dvs128-skin, atis20, atis24")
	flag.StringVar(&f.policy, "policy", "exponential", "Surface policy for ad hoc streams")
	flag.Float64Var(&f.tau, "tau", 20000, "Surface decay constant in ticks for ad hoc streams")
	flag.IntVar(&f.statsInterval, "stats-interval", 10, "Seconds between stats reports")
	flag.IntVar(&f.warmup, "warmup", 0, "Seconds of event-rate warm-up (0 = skip)")
	flag.StringVar(&f.view, "view", "", "Draw a surface in the terminal: stream/surface")
	flag.StringVar(&f.healthAddr, "health", ":8080", "Health/stats HTTP address (empty = disabled)")
	flag.BoolVar(&f.console, "console", false, "Print boxed stats to stdout")
	flag.BoolVar(&f.activity, "activity", false, "Attach an activity consumer to every stream with a supplier")
	flag.BoolVar(&f.debug, "debug", false, "Enable debug logging")
	flag.BoolVar(&f.jsonLogs, "json", false, "Log as JSON")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("aer-capture %s\n", version)
		os.Exit(0)
	}

	setupLogging(f)

	if err := run(f); err != nil {
		slog.Error("aer-capture failed", "error", err)
		os.Exit(1)
	}
	slog.Info("aer-capture stopped successfully")
}

func setupLogging(f flags) {
	logLevel := slog.LevelInfo
	if f.debug {
		logLevel = slog.LevelDebug
	}
	// The terminal view owns stdout.
	out := os.Stdout
	if f.view != "" {
		out = os.Stderr
	}
	opts := &slog.HandlerOptions{Level: logLevel}

	var handler slog.Handler = slog.NewTextHandler(out, opts)
	if f.jsonLogs {
		handler = slog.NewJSONHandler(out, opts)
	}
	slog.SetDefault(slog.New(handler))
}

func loadConfig(f flags) (*config.Config, error) {
	if f.configPath != "" {
		return config.Load(f.configPath)
	}
	return adHocConfig(f)
}

func run(f flags) error {
	cfg, err := loadConfig(f)
	if err != nil {
		return err
	}

	slog.Info("starting aer-capture",
		"version", version,
		"instance_id", cfg.InstanceID,
		"streams", len(cfg.Streams),
		"config", f.configPath,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	streams, err := buildStreams(ctx, cfg)
	if err != nil {
		return err
	}
	manager, err := pipeline.NewManager(streams...)
	if err != nil {
		return err
	}

	var sinks []pipeline.StatsSink
	if f.console {
		sinks = append(sinks, newStatsDisplay(os.Stdout).Sink())
	}

	var mqttEmitter *emitter.MQTTEmitter
	var mqttUp func() bool
	if cfg.MQTT != nil {
		mqttEmitter = emitter.NewMQTTEmitter(cfg)
		if err := mqttEmitter.Connect(ctx); err != nil {
			// paho keeps retrying in the background.
			slog.Warn("mqtt not connected at startup", "error", err)
		}
		mqttUp = func() bool { return mqttEmitter.Stats().Connected }
		sinks = append(sinks, mqttEmitter.Sink())
	}

	var sessions *journal.Journal
	if cfg.Journal != nil {
		sessions, err = journal.Open(cfg.Journal.Path, cfg.InstanceID)
		if err != nil {
			manager.Stop()
			return err
		}
		defer sessions.Close()
		sinks = append(sinks, sessions.Sink())
	}

	var healthServer *health.Server
	if f.healthAddr != "" {
		healthServer = health.NewServer(cfg.InstanceID, manager, mqttUp, time.Second)
		if err := healthServer.Start(f.healthAddr); err != nil {
			manager.Stop()
			return fmt.Errorf("failed to start health server: %w", err)
		}
	}

	errChan := make(chan error, 1)
	go func() {
		errChan <- manager.Run(ctx)
	}()

	var wg sync.WaitGroup
	for _, s := range manager.Streams() {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Report(ctx, cfg.StatsInterval(), sinks...)
		}()
	}

	var consumers []*activityConsumer
	if f.activity {
		for _, s := range manager.Streams() {
			supplier := s.Supplier()
			if supplier == nil {
				continue
			}
			c := newActivityConsumer(s.Name())
			consumers = append(consumers, c)
			wg.Add(1)
			go func() {
				defer wg.Done()
				c.Run(supplier)
			}()
		}
	}

	if cfg.WarmupDurationS > 0 {
		for _, s := range manager.Streams() {
			wg.Add(1)
			go func() {
				defer wg.Done()
				runWarmup(ctx, s, time.Duration(cfg.WarmupDurationS)*time.Second)
			}()
		}
	}

	if f.view != "" {
		v, err := newViewer(manager, f.view)
		if err != nil {
			slog.Warn("terminal view disabled", "error", err)
		} else {
			wg.Add(1)
			go func() {
				defer wg.Done()
				v.Run(ctx)
			}()
		}
	}

	var runErr error
	runDone := false
	select {
	case sig := <-sigChan:
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	case runErr = <-errChan:
		runDone = true
		cancel()
	}

	slog.Info("shutting down gracefully", "timeout", cfg.ShutdownTimeout())
	if !runDone {
		select {
		case runErr = <-errChan:
		case <-time.After(cfg.ShutdownTimeout()):
			manager.Stop()
			runErr = errors.New("shutdown timeout exceeded")
		}
	}
	wg.Wait()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout())
	defer shutdownCancel()

	for _, s := range manager.Streams() {
		stats := s.Stats()
		logFinalStats(stats)
		if sessions != nil {
			if err := sessions.End(shutdownCtx, stats, s.Err()); err != nil {
				slog.Warn("journal: failed to close session", "stream", s.Name(), "error", err)
			}
		}
		if mqttEmitter != nil {
			mqttEmitter.PublishStats(stats)
		}
	}

	for _, c := range consumers {
		cs := c.Stats()
		slog.Info("activity summary",
			"consumer", cs.ID,
			"batches", cs.Batches,
			"events", cs.Events,
			"on_ratio", cs.OnRatio,
			"skipped", cs.Skipped,
			"avg_latency", cs.AvgLatency,
		)
	}

	if healthServer != nil {
		if err := healthServer.Shutdown(shutdownCtx); err != nil {
			slog.Warn("health server shutdown failed", "error", err)
		}
	}
	if mqttEmitter != nil {
		mqttEmitter.Disconnect()
	}
	return runErr
}

func runWarmup(ctx context.Context, s *pipeline.Stream, d time.Duration) {
	rs, err := s.Warmup(ctx, d)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			slog.Warn("warmup failed", "stream", s.Name(), "error", err)
		}
		return
	}
	slog.Info("warmup complete",
		"stream", s.Name(),
		"samples", rs.Samples,
		"events", rs.Events,
		"rate_mean", rs.RateMean,
		"rate_std", rs.RateStd,
		"rate_min", rs.RateMin,
		"rate_max", rs.RateMax,
		"stable", rs.IsStable,
	)
	if !rs.IsStable {
		slog.Warn("event rate is unstable", "stream", s.Name())
	}
}

func logFinalStats(stats pipeline.StreamStats) {
	slog.Info("final statistics",
		"stream", stats.Name,
		"session_id", stats.Ring.SessionID,
		"uptime", stats.Ring.Uptime.Round(time.Millisecond),
		"events", stats.Events,
		"bytes_read", stats.Ring.BytesRead,
		"bytes_lost", stats.Ring.BytesLost,
		"malformed", stats.Decoder.Malformed,
		"truncated", stats.Decoder.Truncated,
	)
}
