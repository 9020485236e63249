package flash

import "fmt"

// MaxAlignment is the largest supported write alignment unit in bytes.
const MaxAlignment = 64

// Default layout values.
const (
	DefaultPageAddress    = 0x0801F800
	DefaultPageSize       = 2048
	DefaultWriteAlignment = 8
)

// Layout describes the single flash page that receives the image.
type Layout struct {
	// PageAddress is the base address of the target page
	PageAddress uint32

	// PageSize is the page size in bytes
	PageSize uint32

	// WriteAlignment is the hardware programming unit in bytes
	WriteAlignment int
}

// DefaultLayout returns the default target page.
func DefaultLayout() Layout {
	return Layout{
		PageAddress:    DefaultPageAddress,
		PageSize:       DefaultPageSize,
		WriteAlignment: DefaultWriteAlignment,
	}
}

// Validate checks the layout is programmable.
func (l Layout) Validate() error {
	a := l.WriteAlignment
	if a <= 0 || a > MaxAlignment || a&(a-1) != 0 {
		return fmt.Errorf("write alignment %d must be a power of two up to %d", a, MaxAlignment)
	}
	if l.PageSize == 0 || l.PageSize%uint32(a) != 0 {
		return fmt.Errorf("page size %d must be a non-zero multiple of %d", l.PageSize, a)
	}
	if l.PageAddress%uint32(a) != 0 {
		return fmt.Errorf("page address 0x%08X is not %d-byte aligned", l.PageAddress, a)
	}
	if uint64(l.PageAddress)+uint64(l.PageSize) > 1<<32 {
		return fmt.Errorf("page 0x%08X+%d overflows the address space", l.PageAddress, l.PageSize)
	}
	return nil
}

// AlignUp rounds n up to the write alignment.
func (l Layout) AlignUp(n uint32) uint32 {
	a := uint32(l.WriteAlignment)
	return (n + a - 1) / a * a
}
