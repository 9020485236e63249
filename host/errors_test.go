package host

import (
	"strings"
	"testing"
)

func TestImageSizeError(t *testing.T) {
	err := &ImageSizeError{Size: 1200, Limit: 994}

	errMsg := err.Error()

	if !strings.Contains(errMsg, "1200 bytes") {
		t.Errorf("error message should contain the size, got: %s", errMsg)
	}

	if !strings.Contains(errMsg, "limit is 994") {
		t.Errorf("error message should contain the limit, got: %s", errMsg)
	}

	empty := &ImageSizeError{Limit: 994}
	if empty.Error() != "image is empty" {
		t.Errorf("empty image message = %q", empty.Error())
	}
}

func TestVerificationError(t *testing.T) {
	err := &VerificationError{
		Message: "hash mismatch",
	}

	errMsg := err.Error()

	if !strings.Contains(errMsg, "verification failed") {
		t.Errorf("error message should contain 'verification failed', got: %s", errMsg)
	}

	if !strings.Contains(errMsg, "hash mismatch") {
		t.Errorf("error message should contain the reason, got: %s", errMsg)
	}
}
