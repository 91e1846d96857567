package ingest

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/klauspost/compress/zstd"
)

func TestNew_Validation(t *testing.T) {
	src := io.NopCloser(bytes.NewReader(nil))

	tests := []struct {
		name      string
		src       Source
		capacity  int
		chunkSize int
		wantErr   bool
	}{
		{"valid", src, 1024, 256, false},
		{"chunk equals capacity", src, 256, 256, false},
		{"nil source", nil, 1024, 256, true},
		{"zero capacity", src, 0, 1, true},
		{"zero chunk", src, 1024, 0, true},
		{"chunk exceeds capacity", src, 128, 256, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.src, tt.capacity, tt.chunkSize)
			if (err != nil) != tt.wantErr {
				t.Errorf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestNew_Options(t *testing.T) {
	r, err := New(io.NopCloser(bytes.NewReader(nil)), 64, 16, WithName("left"), WithRetryDelay(time.Microsecond))
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	stats := r.Stats()
	if stats.Stream != "left" || stats.Capacity != 64 || stats.ChunkSize != 16 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}

// readAll drains a ring until its terminal error.
func readAll(t *testing.T, r Ring) ([]byte, error) {
	t.Helper()
	var got []byte
	deadline := time.After(5 * time.Second)
	for {
		select {
		case <-r.Ready():
		case <-time.After(5 * time.Millisecond):
		case <-deadline:
			t.Fatal("timeout draining ring")
		}
		d, err := r.SwapAndDrain()
		got = append(got, d.Data...)
		if err != nil {
			return got, err
		}
	}
}

func TestOpenFile_PlainAndCompressed(t *testing.T) {
	payload := bytes.Repeat([]byte{0x81, 0x00, 0x00, 0x00}, 1000)
	dir := t.TempDir()

	plain := filepath.Join(dir, "log.aer")
	if err := os.WriteFile(plain, payload, 0o644); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	enc, err := zstd.NewWriter(&buf)
	if err != nil {
		t.Fatal(err)
	}
	enc.Write(payload)
	enc.Close()
	compressed := filepath.Join(dir, "log.aer.zst")
	if err := os.WriteFile(compressed, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}

	for _, path := range []string{plain, compressed} {
		t.Run(filepath.Base(path), func(t *testing.T) {
			src, err := OpenFile(path)
			if err != nil {
				t.Fatalf("OpenFile() failed: %v", err)
			}
			r, err := New(src, 8192, 512, WithName(filepath.Base(path)))
			if err != nil {
				t.Fatal(err)
			}
			if err := r.Start(context.Background()); err != nil {
				t.Fatal(err)
			}
			defer r.Stop()

			got, err := readAll(t, r)
			if !errors.Is(err, ErrStreamClosed) {
				t.Errorf("terminal error = %v, want ErrStreamClosed", err)
			}
			if !bytes.Equal(got, payload) {
				t.Errorf("read %d bytes, want %d", len(got), len(payload))
			}
		})
	}
}

func TestOpenFile_Missing(t *testing.T) {
	_, err := OpenFile(filepath.Join(t.TempDir(), "missing.aer"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("error = %v, want os.ErrNotExist", err)
	}
}

func TestCalculateBackoff(t *testing.T) {
	cfg := DefaultReconnectConfig()
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second, 16 * time.Second, 30 * time.Second, 30 * time.Second}

	for i, w := range want {
		if got := calculateBackoff(i+1, cfg); got != w {
			t.Errorf("attempt %d: delay = %v, want %v", i+1, got, w)
		}
	}
}

func TestDialWithBackoff_RetriesThenGivesUp(t *testing.T) {
	cfg := ReconnectConfig{MaxRetries: 2, RetryDelay: time.Millisecond, MaxRetryDelay: 2 * time.Millisecond}
	calls := 0
	_, err := dialWithBackoff(context.Background(), "nowhere", cfg, func(context.Context) (Source, error) {
		calls++
		return nil, errors.New("refused")
	})
	if err == nil || !strings.Contains(err.Error(), "max retries exceeded") {
		t.Errorf("error = %v, want max retries exceeded", err)
	}
	if calls != 3 {
		t.Errorf("dial called %d times, want 3", calls)
	}
}

func TestDialWithBackoff_SucceedsAfterFailure(t *testing.T) {
	cfg := ReconnectConfig{MaxRetries: 3, RetryDelay: time.Millisecond, MaxRetryDelay: time.Millisecond}
	calls := 0
	src, err := dialWithBackoff(context.Background(), "flaky", cfg, func(context.Context) (Source, error) {
		calls++
		if calls < 2 {
			return nil, errors.New("refused")
		}
		return io.NopCloser(bytes.NewReader(nil)), nil
	})
	if err != nil || src == nil {
		t.Fatalf("dialWithBackoff() = (%v, %v)", src, err)
	}
}

func TestDialWithBackoff_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := dialWithBackoff(ctx, "x", DefaultReconnectConfig(), func(context.Context) (Source, error) {
		t.Fatal("dial called with cancelled context")
		return nil, nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}

func TestDialTCP_StreamsUntilPeerCloses(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Skipf("cannot listen: %v", err)
	}
	defer ln.Close()

	payload := bytes.Repeat([]byte{1, 0, 0, 0x40}, 256)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		conn.Write(payload)
		conn.Close()
	}()

	src, err := DialTCP(context.Background(), ln.Addr().String(), DefaultReconnectConfig())
	if err != nil {
		t.Fatalf("DialTCP() failed: %v", err)
	}
	r, _ := New(src, 4096, 256, WithName("tcp"))
	r.Start(context.Background())
	defer r.Stop()

	got, err := readAll(t, r)
	if !errors.Is(err, ErrStreamClosed) {
		t.Errorf("terminal error = %v, want ErrStreamClosed", err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("read %d bytes, want %d", len(got), len(payload))
	}
}

func TestDialTCP_StopUnblocksSilentPeer(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Skipf("cannot listen: %v", err)
	}
	defer ln.Close()

	held := make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			held <- conn
		}
	}()

	src, err := DialTCP(context.Background(), ln.Addr().String(), DefaultReconnectConfig())
	if err != nil {
		t.Fatalf("DialTCP() failed: %v", err)
	}
	r, _ := New(src, 1024, 64, WithName("silent"), WithStopTimeout(time.Second))
	r.Start(context.Background())

	time.Sleep(20 * time.Millisecond)
	start := time.Now()
	if _, err := r.Stop(); err != nil {
		t.Errorf("Stop() error: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("Stop() took %v, read deadline did not unblock the producer", elapsed)
	}
	if r.Stats().Running {
		t.Error("producer still running after Stop")
	}

	select {
	case c := <-held:
		c.Close()
	default:
	}
}

func TestDialWebSocket_BinaryMessagesBecomeByteStream(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		conn, err := upgrader.Upgrade(w, req, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		conn.WriteMessage(websocket.BinaryMessage, []byte{1, 2, 3})
		conn.WriteMessage(websocket.TextMessage, []byte("hello"))
		conn.WriteMessage(websocket.BinaryMessage, []byte{4, 5})
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "done"))
		time.Sleep(50 * time.Millisecond)
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	src, err := DialWebSocket(context.Background(), url, DefaultReconnectConfig())
	if err != nil {
		t.Fatalf("DialWebSocket() failed: %v", err)
	}
	r, _ := New(src, 1024, 64, WithName("ws"))
	r.Start(context.Background())
	defer r.Stop()

	got, err := readAll(t, r)
	if !errors.Is(err, ErrStreamClosed) {
		t.Errorf("terminal error = %v, want ErrStreamClosed", err)
	}
	if !bytes.Equal(got, []byte{1, 2, 3, 4, 5}) {
		t.Errorf("got %v, want [1 2 3 4 5]", got)
	}
}
