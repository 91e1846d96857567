package ingest

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
)

// DialWebSocket connects to a WebSocket endpoint that streams raw words in
// binary messages. Message boundaries are not significant: the payloads are
// concatenated into one byte stream. Text messages are skipped.
func DialWebSocket(ctx context.Context, url string, cfg ReconnectConfig) (Source, error) {
	return dialWithBackoff(ctx, url, cfg, func(ctx context.Context) (Source, error) {
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
		if err != nil {
			return nil, fmt.Errorf("ingest: dial websocket %s: %w", url, err)
		}
		return &wsSource{conn: conn, url: url}, nil
	})
}

type wsSource struct {
	conn *websocket.Conn
	url  string
	cur  io.Reader // current message, nil between messages
}

func (s *wsSource) Read(p []byte) (int, error) {
	for {
		if s.cur == nil {
			typ, r, err := s.conn.NextReader()
			if err != nil {
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					return 0, io.EOF
				}
				return 0, err
			}
			if typ != websocket.BinaryMessage {
				slog.Debug("ingest: skipping non-binary websocket message", "url", s.url)
				continue
			}
			s.cur = r
		}

		n, err := s.cur.Read(p)
		if err == io.EOF {
			s.cur = nil
			if n == 0 {
				continue
			}
			return n, nil
		}
		return n, err
	}
}

func (s *wsSource) SetReadDeadline(t time.Time) error {
	return s.conn.SetReadDeadline(t)
}

func (s *wsSource) Close() error {
	return s.conn.Close()
}
