package flash

// Device is the flash primitive collaborator the staging engine drives.
//
// Implementations wrap the target's flash controller. Erase and write are
// synchronous and must report failure through the returned error rather than
// block indefinitely.
type Device interface {
	// ErasePage erases the page starting at addr.
	ErasePage(addr uint32) error

	// WriteAligned programs data at addr. Both addr and len(data) are
	// multiples of the write alignment.
	WriteAligned(addr uint32, data []byte) error

	// Read returns n bytes starting at addr.
	Read(addr uint32, n int) ([]byte, error)
}
