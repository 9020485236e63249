package host

import "fmt"

// ImageSizeError indicates an image that cannot be sent in one packet or
// does not fit the device's flash page.
type ImageSizeError struct {
	Size  int
	Limit int
}

func (e *ImageSizeError) Error() string {
	if e.Size == 0 {
		return "image is empty"
	}
	return fmt.Sprintf("image is %d bytes: limit is %d", e.Size, e.Limit)
}

// VerificationError indicates that the device's flash result does not match
// the image that was sent.
type VerificationError struct {
	Message string
}

func (e *VerificationError) Error() string {
	return fmt.Sprintf("firmware verification failed: %s", e.Message)
}
