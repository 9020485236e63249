package flash

import (
	"bytes"
	"fmt"

	"github.com/moffa90/go-vmboot/protocol"
)

// Stager turns an arbitrary byte stream into alignment-sized flash writes.
//
// Bytes accumulate in a fixed staging array; every time it fills, the chunk
// is programmed at the next aligned address. Flush zero-pads and programs the
// final partial chunk, so the bytes programmed always equal the actual length
// rounded up to the alignment.
//
// Stager is not safe for concurrent use.
type Stager struct {
	dev    Device
	layout Layout

	staging [MaxAlignment]byte
	offset  int
	address uint32
	actual  uint32
	erased  bool
}

// NewStager creates a staging engine for the page described by layout.
func NewStager(dev Device, layout Layout) (*Stager, error) {
	if dev == nil {
		return nil, fmt.Errorf("flash device cannot be nil")
	}
	if err := layout.Validate(); err != nil {
		return nil, fmt.Errorf("flash layout: %w", err)
	}

	s := &Stager{dev: dev, layout: layout}
	s.Init()
	return s, nil
}

// Init clears the staging buffer and rewinds to the page base. The page must
// be erased again before staging.
func (s *Stager) Init() {
	s.staging = [MaxAlignment]byte{}
	s.offset = 0
	s.address = s.layout.PageAddress
	s.actual = 0
	s.erased = false
}

// ErasePage erases the target page. addr must be the configured page address.
func (s *Stager) ErasePage(addr uint32) error {
	if addr != s.layout.PageAddress {
		return fmt.Errorf("erase 0x%08X: only page 0x%08X is writable: %w", addr, s.layout.PageAddress, protocol.ErrFlashOperation)
	}
	if err := s.dev.ErasePage(addr); err != nil {
		return fmt.Errorf("erase 0x%08X: %v: %w", addr, err, protocol.ErrFlashOperation)
	}
	s.erased = true
	return nil
}

// Stage appends data, programming every full alignment chunk. Nothing is
// modified when the page has not been erased or data would not fit.
func (s *Stager) Stage(data []byte) error {
	if !s.erased {
		return fmt.Errorf("stage: page not erased: %w", protocol.ErrFlashOperation)
	}
	if uint64(s.actual)+uint64(len(data)) > uint64(s.layout.PageSize) {
		return fmt.Errorf("stage %d bytes at %d: exceeds page size %d: %w",
			len(data), s.actual, s.layout.PageSize, protocol.ErrFlashOperation)
	}

	align := s.layout.WriteAlignment
	for len(data) > 0 {
		n := copy(s.staging[s.offset:align], data)
		s.offset += n
		s.actual += uint32(n)
		data = data[n:]

		if s.offset == align {
			if err := s.program(); err != nil {
				return err
			}
		}
	}
	return nil
}

// Flush programs any partial chunk, zero-padded to the alignment.
func (s *Stager) Flush() error {
	if s.offset == 0 {
		return nil
	}
	clear(s.staging[s.offset:s.layout.WriteAlignment])
	return s.program()
}

// Verify reads back the actual (unpadded) length from the page base and
// compares it with expected. The read-back bytes are returned for hashing.
func (s *Stager) Verify(expected []byte) ([]byte, error) {
	if uint32(len(expected)) != s.actual {
		return nil, fmt.Errorf("verify: expected %d bytes, staged %d: %w", len(expected), s.actual, protocol.ErrFlashOperation)
	}

	readBack, err := s.dev.Read(s.layout.PageAddress, int(s.actual))
	if err != nil {
		return nil, fmt.Errorf("verify read 0x%08X: %v: %w", s.layout.PageAddress, err, protocol.ErrFlashOperation)
	}
	if len(readBack) != len(expected) {
		return nil, fmt.Errorf("verify: read %d bytes, want %d: %w", len(readBack), len(expected), protocol.ErrFlashOperation)
	}
	if !bytes.Equal(readBack, expected) {
		i := firstDifference(readBack, expected)
		return nil, fmt.Errorf("verify: mismatch at offset %d (0x%02X != 0x%02X): %w",
			i, readBack[i], expected[i], protocol.ErrFlashOperation)
	}
	return readBack, nil
}

// program writes the full staging buffer at the current address.
func (s *Stager) program() error {
	align := s.layout.WriteAlignment
	if err := s.dev.WriteAligned(s.address, s.staging[:align]); err != nil {
		return fmt.Errorf("write 0x%08X: %v: %w", s.address, err, protocol.ErrFlashOperation)
	}
	s.address += uint32(align)
	clear(s.staging[:align])
	s.offset = 0
	return nil
}

// ActualLength returns the number of data bytes staged, excluding padding.
func (s *Stager) ActualLength() uint32 { return s.actual }

// BytesProgrammed returns the number of bytes written to flash so far.
// After Flush it equals ActualLength rounded up to the alignment.
func (s *Stager) BytesProgrammed() uint32 { return s.address - s.layout.PageAddress }

// Address returns the next aligned write address.
func (s *Stager) Address() uint32 { return s.address }

// Offset returns the number of bytes waiting in the staging buffer.
func (s *Stager) Offset() int { return s.offset }

// Erased reports whether the page has been erased since Init.
func (s *Stager) Erased() bool { return s.erased }

// Layout returns the target page layout.
func (s *Stager) Layout() Layout { return s.layout }

func firstDifference(a, b []byte) int {
	for i := range a {
		if a[i] != b[i] {
			return i
		}
	}
	return 0
}
