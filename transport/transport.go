// Package transport provides the byte transport the bootloader runtime
// polls, plus adapters for serial ports and in-process testing.
package transport

import "errors"

// ErrNoData is returned by ReadByte when no byte is buffered.
var ErrNoData = errors.New("no data available")

// Transport is the non-blocking byte link between host and bootloader.
type Transport interface {
	// ByteAvailable reports whether ReadByte will return a byte.
	ByteAvailable() bool

	// ReadByte returns the next buffered byte, or ErrNoData.
	ReadByte() (byte, error)

	// WriteBytes transmits p in full.
	WriteBytes(p []byte) error
}
