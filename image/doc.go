// Package image loads firmware images for the vmboot host tool.
//
// Two formats are supported:
//
//   - Raw binary: the file contents are the image.
//   - Intel HEX: data records are assembled into one contiguous image
//     starting at the lowest address, with gaps filled by 0xFF.
//
// A loaded image must fit in a single data packet (protocol.MaxImageSize).
//
// Example:
//
//	img, err := image.Load("firmware.hex")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	result, err := prog.Program(ctx, img.Data)
package image
