package image

import (
	"fmt"

	"github.com/moffa90/go-vmboot/protocol"
)

// Image formats.
const (
	FormatBinary   = "binary"
	FormatIntelHex = "ihex"
)

// Image is a firmware image ready to send to the bootloader.
type Image struct {
	// Data is the image contents
	Data []byte

	// Address is the load address from an Intel HEX file, zero for raw binaries
	Address uint32

	// Format is the source format (FormatBinary or FormatIntelHex)
	Format string
}

// Size returns the image length in bytes.
func (img *Image) Size() int {
	return len(img.Data)
}

// Validate checks that the image is non-empty and fits in a single data
// packet.
func (img *Image) Validate() error {
	if len(img.Data) == 0 {
		return fmt.Errorf("image is empty")
	}
	if len(img.Data) > protocol.MaxImageSize {
		return fmt.Errorf("image is %d bytes, maximum is %d", len(img.Data), protocol.MaxImageSize)
	}
	return nil
}
