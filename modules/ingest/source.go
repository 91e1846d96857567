package ingest

import (
	"fmt"
	"os"
	"strings"

	"github.com/klauspost/compress/zstd"
)

// OpenFile opens a recorded event log: a flat sequence of 4-byte words.
// Names ending in ".zst" are decompressed on the fly.
func OpenFile(path string) (Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("ingest: open %s: %w", path, err)
	}
	if !strings.HasSuffix(path, ".zst") {
		return f, nil
	}

	dec, err := zstd.NewReader(f, zstd.WithDecoderConcurrency(1))
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("ingest: zstd reader for %s: %w", path, err)
	}
	return &zstdSource{dec: dec, file: f}, nil
}

// zstdSource closes both the decoder and the underlying file.
type zstdSource struct {
	dec  *zstd.Decoder
	file *os.File
}

func (s *zstdSource) Read(p []byte) (int, error) {
	return s.dec.Read(p)
}

func (s *zstdSource) Close() error {
	s.dec.Close()
	return s.file.Close()
}
