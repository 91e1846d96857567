package aer

import "fmt"

// DecodeStream decodes a complete in-memory word stream with a fresh Decoder.
//
// Used by offline log readers and tests. Malformed words are skipped. If the
// input does not end on a word boundary the events decoded so far are
// returned together with ErrTruncated.
func DecodeStream(b []byte, layout Layout) ([]Event, error) {
	d, err := NewDecoder(layout)
	if err != nil {
		return nil, err
	}

	events := d.Decode(b, make([]Event, 0, len(b)/WordSize))
	if n := d.Flush(); n > 0 {
		return events, fmt.Errorf("%w: %d trailing bytes", ErrTruncated, n)
	}
	return events, nil
}
