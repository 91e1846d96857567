package ingest

import (
	"context"
	"fmt"
	"net"
)

// DialTCP connects to a TCP event server (a camera bridge streaming raw
// words). The returned source supports read deadlines, so Stop never waits
// on a silent peer.
func DialTCP(ctx context.Context, addr string, cfg ReconnectConfig) (Source, error) {
	var d net.Dialer
	return dialWithBackoff(ctx, addr, cfg, func(ctx context.Context) (Source, error) {
		conn, err := d.DialContext(ctx, "tcp", addr)
		if err != nil {
			return nil, fmt.Errorf("ingest: dial tcp %s: %w", addr, err)
		}
		return conn, nil
	})
}
