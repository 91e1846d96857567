package pipeline

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"testing"
	"testing/quick"
	"time"

	"github.com/e7canasta/orion-event-sensor/modules/aer"
	"github.com/e7canasta/orion-event-sensor/modules/eventsupplier"
	"github.com/e7canasta/orion-event-sensor/modules/ingest"
	"github.com/e7canasta/orion-event-sensor/modules/surface"
)

// eventLog encodes evs as a word log: one timestamp word before each data word.
func eventLog(t *testing.T, layout aer.Layout, evs []aer.Event) []byte {
	t.Helper()
	var b []byte
	for _, ev := range evs {
		raw, err := aer.Encode(ev, layout)
		if err != nil {
			t.Fatalf("Encode(%+v) failed: %v", ev, err)
		}
		b = aer.AppendWord(b, aer.TimestampWord(ev.Channel, ev.Timestamp))
		b = aer.AppendWord(b, raw)
	}
	return b
}

func movingBar(n int) []aer.Event {
	evs := make([]aer.Event, n)
	for i := range evs {
		evs[i] = aer.Event{X: uint16(i % 300), Y: uint16(i % 200), Polarity: 1, Timestamp: uint32(i * 10)}
	}
	return evs
}

func baseConfig() StreamConfig {
	return StreamConfig{
		Name:         "left",
		Layout:       aer.LayoutATIS20,
		BufferBytes:  4096,
		ChunkBytes:   256,
		PollInterval: time.Millisecond,
		Windows: []WindowConfig{
			{Name: "last10", Count: 10},
			{Name: "recent", Duration: 100},
		},
		Surfaces: []SurfaceConfig{
			{Name: "eros", Config: surface.Config{KernelSize: 3, DecayConstant: 1000}},
		},
	}
}

func TestStream_EndToEnd(t *testing.T) {
	evs := movingBar(500)
	src := io.NopCloser(bytes.NewReader(eventLog(t, aer.LayoutATIS20, evs)))

	cfg := baseConfig()
	cfg.Supplier = eventsupplier.New()
	s, err := NewStream(cfg, src)
	if err != nil {
		t.Fatalf("NewStream() failed: %v", err)
	}

	read := cfg.Supplier.Subscribe("test")
	released := make(chan struct{})
	go func() {
		for b := read(); b != nil; b = read() {
			if b.Stream != "left" || b.TraceID == "" || len(b.Events) == 0 {
				t.Errorf("malformed batch %+v", b)
			}
		}
		close(released)
	}()

	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run() = %v, want nil at end of stream", err)
	}

	stats := s.Stats()
	if stats.Events != 500 {
		t.Errorf("Events = %d, want 500", stats.Events)
	}
	if stats.Ring.BytesLost != 0 {
		t.Errorf("BytesLost = %d, want 0", stats.Ring.BytesLost)
	}
	if stats.Decoder.Malformed != 0 || stats.OutOfBounds != 0 {
		t.Errorf("Malformed=%d OutOfBounds=%d, want 0", stats.Decoder.Malformed, stats.OutOfBounds)
	}

	snap := s.Window("last10").Snapshot()
	if len(snap) != 10 || snap[9] != evs[499] {
		t.Errorf("last10 window = %d events ending %+v, want 10 ending %+v", len(snap), snap[len(snap)-1], evs[499])
	}
	// Duration 100 at latest 4990 keeps t >= 4890: 11 events.
	if n := s.Window("recent").Len(); n != 11 {
		t.Errorf("recent window Len = %d, want 11", n)
	}

	sf := s.Surface("eros")
	if w, h := sf.Config().Width, sf.Config().Height; w != 304 || h != 240 {
		t.Errorf("surface resolution %dx%d, want layout default 304x240", w, h)
	}
	last := evs[499]
	if v, _ := sf.Value(int(last.X), int(last.Y), float64(last.Timestamp)); v <= 0 {
		t.Errorf("surface value at last event = %v, want > 0", v)
	}

	if stats.Batches == 0 || stats.Supplier == nil || stats.Supplier.Published != stats.Batches {
		t.Errorf("Batches=%d Supplier=%+v, want every batch published", stats.Batches, stats.Supplier)
	}

	select {
	case <-released:
	case <-time.After(time.Second):
		t.Fatal("supplier consumer not released after Run")
	}
}

func TestStream_SurfaceOutOfBoundsCounted(t *testing.T) {
	evs := []aer.Event{
		{X: 10, Y: 10, Polarity: 1, Timestamp: 1},
		{X: 200, Y: 10, Polarity: -1, Timestamp: 2},
		{X: 20, Y: 150, Polarity: 1, Timestamp: 3},
	}
	cfg := baseConfig()
	cfg.Surfaces = []SurfaceConfig{
		{Name: "small", Config: surface.Config{Width: 128, Height: 128, KernelSize: 1, DecayConstant: 10}},
	}
	s, err := NewStream(cfg, io.NopCloser(bytes.NewReader(eventLog(t, aer.LayoutATIS20, evs))))
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Run(context.Background()); err != nil {
		t.Fatal(err)
	}

	stats := s.Stats()
	if stats.Events != 3 || stats.OutOfBounds != 2 {
		t.Errorf("Events=%d OutOfBounds=%d, want 3 and 2", stats.Events, stats.OutOfBounds)
	}
	// Out-of-bounds events still reach the windows.
	if n := s.Window("last10").Len(); n != 3 {
		t.Errorf("window Len = %d, want 3", n)
	}
}

func TestStream_StereoChannelsKeepSeparateState(t *testing.T) {
	// Channel 0 runs far ahead of channel 1; the log alternates between them
	// without any reset marker.
	var evs []aer.Event
	for i := range uint32(3) {
		evs = append(evs,
			aer.Event{X: 5, Y: 5, Polarity: 1, Channel: 0, Timestamp: 1000 + i},
			aer.Event{X: 9, Y: 9, Polarity: 1, Channel: 1, Timestamp: 10 + i},
		)
	}

	cfg := baseConfig()
	cfg.Windows = []WindowConfig{
		{Name: "left", Count: 100},
		{Name: "right", Channel: 1, Count: 100},
	}
	cfg.Surfaces = []SurfaceConfig{
		{Name: "left", Config: surface.Config{KernelSize: 1, DecayConstant: 1000}},
		{Name: "right", Channel: 1, Config: surface.Config{KernelSize: 1, DecayConstant: 1000}},
	}
	s, err := NewStream(cfg, io.NopCloser(bytes.NewReader(eventLog(t, aer.LayoutATIS20, evs))))
	if err != nil {
		t.Fatalf("NewStream() failed: %v", err)
	}
	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run() = %v", err)
	}

	stats := s.Stats()
	if stats.Events != 6 || stats.Decoder.Backsteps != 0 {
		t.Errorf("Events=%d Backsteps=%d, want 6 and 0", stats.Events, stats.Decoder.Backsteps)
	}
	for _, name := range []string{"left", "right"} {
		if ws := stats.Windows[name]; ws.Len != 3 || ws.Resets != 0 {
			t.Errorf("window %q: Len=%d Resets=%d, want 3 and 0", name, ws.Len, ws.Resets)
		}
		if ss := stats.Surfaces[name]; ss.Updates != 3 || ss.Resets != 0 {
			t.Errorf("surface %q: Updates=%d Resets=%d, want 3 and 0", name, ss.Updates, ss.Resets)
		}
	}

	for _, ev := range s.Window("right").Snapshot() {
		if ev.Channel != 1 {
			t.Errorf("right window holds %+v", ev)
		}
	}

	left, right := s.Surface("left"), s.Surface("right")
	if v, _ := left.Value(5, 5, 1002); v < 2.9 {
		t.Errorf("left surface at (5,5) = %v, want ~3", v)
	}
	if v, _ := right.Value(9, 9, 12); v < 2.9 {
		t.Errorf("right surface at (9,9) = %v, want ~3", v)
	}
	if v, _ := left.Value(9, 9, 1002); v != 0 {
		t.Errorf("left surface at (9,9) = %v, want 0 (right channel only)", v)
	}
	if v, _ := right.Value(5, 5, 12); v != 0 {
		t.Errorf("right surface at (5,5) = %v, want 0 (left channel only)", v)
	}
}

// failingSource returns its payload, then a fatal error.
type failingSource struct {
	r   *bytes.Reader
	err error
}

func (f *failingSource) Read(p []byte) (int, error) {
	if f.r.Len() == 0 {
		return 0, f.err
	}
	return f.r.Read(p)
}

func (f *failingSource) Close() error { return nil }

func TestStream_FatalSourceErrorEndsRun(t *testing.T) {
	boom := errors.New("usb disconnected")
	src := &failingSource{r: bytes.NewReader(eventLog(t, aer.LayoutATIS20, movingBar(50))), err: boom}

	s, err := NewStream(baseConfig(), src)
	if err != nil {
		t.Fatal(err)
	}

	err = s.Run(context.Background())
	if !errors.Is(err, ingest.ErrSourceIO) || !errors.Is(err, boom) {
		t.Fatalf("Run() = %v, want ErrSourceIO wrapping the cause", err)
	}
	var ierr *ingest.IngestionError
	if !errors.As(err, &ierr) || ierr.Stream != "left" {
		t.Errorf("error %v is not an IngestionError for stream left", err)
	}
	if got := s.Stats().Events; got != 50 {
		t.Errorf("Events = %d, want all 50 decoded before the error", got)
	}
	if s.Err() != err {
		t.Errorf("Err() = %v, want %v", s.Err(), err)
	}
}

func TestStream_StopFlushesAndCloses(t *testing.T) {
	client, server := net.Pipe()
	defer server.Close()

	cfg := baseConfig()
	cfg.PollInterval = time.Hour // only wake-ups drive the loop
	s, err := NewStream(cfg, client)
	if err != nil {
		t.Fatal(err)
	}

	runErr := make(chan error, 1)
	go func() { runErr <- s.Run(context.Background()) }()

	evs := movingBar(20)
	if _, err := server.Write(eventLog(t, aer.LayoutATIS20, evs)); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	// Half a word: must be dropped as truncated at shutdown.
	server.Write([]byte{0x01, 0x02})

	deadline := time.Now().Add(2 * time.Second)
	for s.Stats().Events < 20 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	start := time.Now()
	if err := s.Stop(); err != nil {
		t.Fatalf("Stop() failed: %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Stop() took %v", elapsed)
	}

	select {
	case err := <-runErr:
		if err != nil {
			t.Errorf("Run() = %v, want nil after Stop", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run() did not return after Stop")
	}

	stats := s.Stats()
	if stats.Events != 20 {
		t.Errorf("Events = %d, want 20", stats.Events)
	}
	if stats.Decoder.Truncated != 2 {
		t.Errorf("Truncated = %d, want 2", stats.Decoder.Truncated)
	}
	if stats.Ring.Running {
		t.Error("ring producer still running")
	}

	// The client end is closed: writes on the server fail.
	server.SetWriteDeadline(time.Now().Add(100 * time.Millisecond))
	if _, err := server.Write([]byte{0}); err == nil {
		t.Error("source still open after Stop")
	}

	// Idempotent.
	if err := s.Stop(); err != nil {
		t.Errorf("second Stop() = %v", err)
	}
}

func TestStream_RunTwice(t *testing.T) {
	s, _ := NewStream(baseConfig(), io.NopCloser(bytes.NewReader(nil)))
	if err := s.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := s.Run(context.Background()); err == nil {
		t.Error("second Run() succeeded")
	}
}

func TestNewStream_Validation(t *testing.T) {
	src := io.NopCloser(bytes.NewReader(nil))

	tests := []struct {
		name   string
		mutate func(c *StreamConfig)
	}{
		{"missing name", func(c *StreamConfig) { c.Name = "" }},
		{"unknown layout", func(c *StreamConfig) { c.Layout = aer.LayoutUnknown }},
		{"window with both bounds", func(c *StreamConfig) { c.Windows[0].Duration = 5 }},
		{"window with no bound", func(c *StreamConfig) { c.Windows[0].Count = 0 }},
		{"duplicate window", func(c *StreamConfig) { c.Windows[1].Name = c.Windows[0].Name }},
		{"bad surface kernel", func(c *StreamConfig) { c.Surfaces[0].KernelSize = 2 }},
		{"window channel", func(c *StreamConfig) { c.Windows[0].Channel = aer.Channels }},
		{"surface channel", func(c *StreamConfig) { c.Surfaces[0].Channel = aer.Channels }},
		{"chunk above buffer", func(c *StreamConfig) { c.ChunkBytes = 2 * c.BufferBytes }},
		{"timestamp width", func(c *StreamConfig) { c.TimestampBits = 40 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := baseConfig()
			tt.mutate(&cfg)
			if _, err := NewStream(cfg, src); err == nil {
				t.Error("NewStream() succeeded, want error")
			}
		})
	}
}

func TestManager_RunsStreamsIndependently(t *testing.T) {
	left, _ := NewStream(baseConfig(), io.NopCloser(bytes.NewReader(eventLog(t, aer.LayoutATIS20, movingBar(100)))))

	rightCfg := baseConfig()
	rightCfg.Name = "right"
	right, _ := NewStream(rightCfg, io.NopCloser(bytes.NewReader(eventLog(t, aer.LayoutATIS20, movingBar(40)))))

	m, err := NewManager(left, right)
	if err != nil {
		t.Fatal(err)
	}
	if err := m.Run(context.Background()); err != nil {
		t.Fatalf("Run() = %v", err)
	}

	stats := m.Stats()
	if stats[0].Events != 100 || stats[1].Events != 40 {
		t.Errorf("events = %d/%d, want 100/40", stats[0].Events, stats[1].Events)
	}
	if m.Stream("right") != right {
		t.Error("Stream(right) lookup failed")
	}

	if _, err := NewManager(left, left); err == nil {
		t.Error("NewManager() accepted duplicate names")
	}
}

func TestManager_FailureCancelsOthers(t *testing.T) {
	bad := &failingSource{r: bytes.NewReader(nil), err: errors.New("gone")}
	failing, _ := NewStream(baseConfig(), bad)

	idleCfg := baseConfig()
	idleCfg.Name = "idle"
	client, server := net.Pipe()
	defer server.Close()
	idle, _ := NewStream(idleCfg, client)

	m, _ := NewManager(failing, idle)

	done := make(chan error, 1)
	go func() { done <- m.Run(context.Background()) }()

	select {
	case err := <-done:
		if !errors.Is(err, ingest.ErrSourceIO) {
			t.Errorf("Run() = %v, want ErrSourceIO", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("manager did not stop after a stream failure")
	}
}

func TestCalculateRateStats(t *testing.T) {
	start := time.Now()
	steady := make([]RateSample, 11)
	for i := range steady {
		steady[i] = RateSample{At: start.Add(time.Duration(i) * 100 * time.Millisecond), Events: uint64(i * 1000)}
	}

	stats := CalculateRateStats(steady)
	if !stats.IsStable {
		t.Errorf("steady rate reported unstable: %+v", stats)
	}
	if stats.RateMean < 9999 || stats.RateMean > 10001 {
		t.Errorf("RateMean = %v, want 10000", stats.RateMean)
	}

	bursty := make([]RateSample, 11)
	var total uint64
	for i := range bursty {
		if i%2 == 0 {
			total += 5000
		}
		bursty[i] = RateSample{At: steady[i].At, Events: total}
	}
	if CalculateRateStats(bursty).IsStable {
		t.Error("bursty rate reported stable")
	}

	if s := CalculateRateStats(steady[:1]); s.IsStable || s.Samples != 1 {
		t.Errorf("single sample = %+v", s)
	}
	idle := []RateSample{{At: start}, {At: start.Add(time.Second)}, {At: start.Add(2 * time.Second)}}
	if CalculateRateStats(idle).IsStable {
		t.Error("zero rate reported stable")
	}
}

// Property: a constant event rate is always stable and its mean is exact.
func TestCalculateRateStats_Property_ConstantRateStable(t *testing.T) {
	property := func(perTick uint16, ticks uint8) bool {
		if perTick == 0 || ticks < 2 {
			return true
		}
		start := time.Unix(0, 0)
		samples := make([]RateSample, int(ticks)+1)
		for i := range samples {
			samples[i] = RateSample{At: start.Add(time.Duration(i) * 50 * time.Millisecond), Events: uint64(i) * uint64(perTick)}
		}
		s := CalculateRateStats(samples)
		want := float64(perTick) / 0.05
		return s.IsStable && s.RateStd < 1e-6*want && s.RateMean > want*0.999999 && s.RateMean < want*1.000001
	}
	if err := quick.Check(property, nil); err != nil {
		t.Error(err)
	}
}

func TestWarmup_Cancelled(t *testing.T) {
	s, _ := NewStream(baseConfig(), io.NopCloser(bytes.NewReader(nil)))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := s.Warmup(ctx, time.Second); !errors.Is(err, context.Canceled) {
		t.Errorf("Warmup() = %v, want context.Canceled", err)
	}
}

func TestReport_CallsSinks(t *testing.T) {
	s, _ := NewStream(baseConfig(), io.NopCloser(bytes.NewReader(nil)))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan StreamStats, 4)
	go s.Report(ctx, 5*time.Millisecond, func(st StreamStats) {
		select {
		case got <- st:
		default:
		}
	})

	select {
	case st := <-got:
		if st.Name != "left" {
			t.Errorf("sink got stats for %q", st.Name)
		}
	case <-time.After(time.Second):
		t.Fatal("sink never called")
	}
}
