package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/klauspost/compress/zstd"

	"github.com/e7canasta/orion-event-sensor/modules/aer"
)

const version = "v0.1.0"

func main() {
	out := flag.String("out", "", "Output file (\".zst\" suffix compresses); '-' for stdout")
	listen := flag.String("listen", "", "Serve the recording to each TCP client on host:port instead")
	layoutName := flag.String("layout", "dvs128", "Word layout: dvs128, dvs128-raw, dvs128-skin, atis20, atis24")
	events := flag.Int("events", 100000, "Number of events to generate")
	step := flag.Uint("step", 10, "Ticks between events")
	bits := flag.Uint("bits", aer.DefaultTimestampBits, "Hardware counter width")
	channels := flag.Int("channels", 1, "Number of channels (1 or 2)")
	barWidth := flag.Int("bar", 4, "Bar width in columns")
	debug := flag.Bool("debug", false, "Enable debug logging")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("aer-synth %s\n", version)
		os.Exit(0)
	}

	logLevel := slog.LevelInfo
	if *debug {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	layout, err := aer.ParseLayout(*layoutName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	cfg := synthConfig{
		Layout:   layout,
		Events:   *events,
		Step:     uint32(*step),
		Bits:     uint8(*bits),
		Channels: *channels,
		BarWidth: *barWidth,
	}

	switch {
	case *listen != "":
		err = serve(*listen, cfg)
	case *out != "":
		err = writeFile(*out, cfg)
	default:
		fmt.Fprintf(os.Stderr, "Error: -out or -listen is required\n\n")
		fmt.Fprintf(os.Stderr, "Usage example:\n")
		fmt.Fprintf(os.Stderr, "  aer-synth -out bar.aer.zst -layout atis20 -events 500000\n")
		fmt.Fprintf(os.Stderr, "  aer-synth -listen :7777 -layout dvs128\n\n")
		flag.PrintDefaults()
		os.Exit(1)
	}
	if err != nil {
		slog.Error("aer-synth failed", "error", err)
		os.Exit(1)
	}
}

// writeTo writes a recording to w, compressed when compress is set.
func writeTo(w io.Writer, cfg synthConfig, compress bool) (synthStats, error) {
	if !compress {
		return writeMovingBar(w, cfg)
	}
	enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return synthStats{}, fmt.Errorf("failed to create zstd encoder: %w", err)
	}
	stats, err := writeMovingBar(enc, cfg)
	if cerr := enc.Close(); err == nil {
		err = cerr
	}
	return stats, err
}

func writeFile(path string, cfg synthConfig) error {
	var w io.Writer = os.Stdout
	if path != "-" {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("failed to create output: %w", err)
		}
		defer f.Close()
		w = f
	}

	stats, err := writeTo(w, cfg, strings.HasSuffix(path, ".zst"))
	if err != nil {
		return err
	}
	slog.Info("recording written",
		"path", path,
		"layout", cfg.Layout,
		"events", stats.Events,
		"words", stats.Words,
		"wraps", stats.Wraps,
		"last_timestamp", stats.Last,
	)
	return nil
}

// serve writes one recording per accepted connection until interrupted.
func serve(addr string, cfg synthConfig) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ln, err := new(net.ListenConfig).Listen(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	go func() {
		<-ctx.Done()
		ln.Close()
	}()
	slog.Info("serving synthetic events", "addr", ln.Addr().String(), "layout", cfg.Layout)

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		go func() {
			defer conn.Close()
			stats, err := writeMovingBar(conn, cfg)
			if err != nil {
				slog.Warn("client write failed", "remote", conn.RemoteAddr().String(), "error", err)
				return
			}
			slog.Info("client served", "remote", conn.RemoteAddr().String(), "events", stats.Events)
		}()
	}
}
