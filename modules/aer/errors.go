package aer

import "errors"

var (
	// ErrTruncated is returned when fewer than WordSize bytes are available.
	ErrTruncated = errors.New("aer: truncated word")

	// ErrUnsupportedLayout is returned for a Layout outside the known set.
	ErrUnsupportedLayout = errors.New("aer: unsupported layout")

	// ErrNotDataWord is returned by Decode when the word is a timestamp word or
	// a wrap/reset marker. Such words belong to the Unwrapper, not the codec.
	ErrNotDataWord = errors.New("aer: not a data word")

	// ErrAddressRange is returned when a decoded (or encoded) address falls
	// outside the layout resolution, or reserved bits are set.
	ErrAddressRange = errors.New("aer: address out of range")
)
