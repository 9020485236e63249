package flash

import (
	"errors"
	"fmt"
	"os"
	"sync"
)

// ErasedByte is the value of an erased NOR flash cell.
const ErasedByte = 0xFF

// Memory is a simulated NOR flash region implementing Device.
//
// Writes must be aligned and may only target erased cells. Faults can be
// injected to exercise error paths, and the contents can be persisted to a
// file so an emulated device survives restarts.
//
// Memory is safe for concurrent use.
type Memory struct {
	mu        sync.Mutex
	base      uint32
	pageSize  uint32
	alignment int
	data      []byte

	eraseErr   error
	writeErr   error
	writesLeft int

	erases int
	writes int
}

// NewMemory creates pages erased pages of pageSize bytes starting at base.
func NewMemory(base, pageSize uint32, pages, alignment int) *Memory {
	data := make([]byte, int(pageSize)*pages)
	for i := range data {
		data[i] = ErasedByte
	}
	return &Memory{
		base:       base,
		pageSize:   pageSize,
		alignment:  alignment,
		data:       data,
		writesLeft: -1,
	}
}

// NewMemoryFor creates a one-page memory matching layout.
func NewMemoryFor(layout Layout) *Memory {
	return NewMemory(layout.PageAddress, layout.PageSize, 1, layout.WriteAlignment)
}

// ErasePage implements Device.
func (m *Memory) ErasePage(addr uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.eraseErr != nil {
		return m.eraseErr
	}
	start, err := m.index(addr, int(m.pageSize))
	if err != nil {
		return err
	}
	if uint32(start)%m.pageSize != 0 {
		return fmt.Errorf("address 0x%08X is not page aligned", addr)
	}

	for i := start; i < start+int(m.pageSize); i++ {
		m.data[i] = ErasedByte
	}
	m.erases++
	return nil
}

// WriteAligned implements Device.
func (m *Memory) WriteAligned(addr uint32, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.writesLeft == 0 {
		return m.writeErr
	}
	if addr%uint32(m.alignment) != 0 || len(data)%m.alignment != 0 {
		return fmt.Errorf("write of %d bytes at 0x%08X is not %d-byte aligned", len(data), addr, m.alignment)
	}
	start, err := m.index(addr, len(data))
	if err != nil {
		return err
	}
	for i := range data {
		if m.data[start+i] != ErasedByte {
			return fmt.Errorf("address 0x%08X is not erased", addr+uint32(i))
		}
	}

	copy(m.data[start:], data)
	m.writes++
	if m.writesLeft > 0 {
		m.writesLeft--
	}
	return nil
}

// Read implements Device.
func (m *Memory) Read(addr uint32, n int) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	start, err := m.index(addr, n)
	if err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, m.data[start:start+n])
	return out, nil
}

func (m *Memory) index(addr uint32, n int) (int, error) {
	if addr < m.base || n < 0 || uint64(addr-m.base)+uint64(n) > uint64(len(m.data)) {
		return 0, fmt.Errorf("range 0x%08X+%d outside flash 0x%08X+%d", addr, n, m.base, len(m.data))
	}
	return int(addr - m.base), nil
}

// FailErase makes every following erase return err. A nil err clears the fault.
func (m *Memory) FailErase(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.eraseErr = err
}

// FailWriteAfter lets n more writes succeed, then fails every write with
// err. A negative n clears the fault.
func (m *Memory) FailWriteAfter(n int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n < 0 {
		m.writesLeft = -1
		m.writeErr = nil
		return
	}
	if err == nil {
		err = errors.New("injected write fault")
	}
	m.writesLeft = n
	m.writeErr = err
}

// Poke overwrites one byte without flash semantics, simulating a cell that
// lost its charge.
func (m *Memory) Poke(addr uint32, b byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	i, err := m.index(addr, 1)
	if err != nil {
		return err
	}
	m.data[i] = b
	return nil
}

// Counts returns the number of successful erases and writes.
func (m *Memory) Counts() (erases, writes int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.erases, m.writes
}

// Save writes the flash contents to path.
func (m *Memory) Save(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := os.WriteFile(path, m.data, 0o644); err != nil {
		return fmt.Errorf("save flash image: %w", err)
	}
	return nil
}

// Load replaces the flash contents with the file at path. A missing file
// leaves the memory erased.
func (m *Memory) Load(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load flash image: %w", err)
	}
	if len(data) != len(m.data) {
		return fmt.Errorf("load flash image: %s is %d bytes, flash is %d", path, len(data), len(m.data))
	}
	copy(m.data, data)
	return nil
}
