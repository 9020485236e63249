package host

import (
	"time"

	"github.com/moffa90/go-vmboot/logging"
)

// Progress phases.
const (
	PhaseHandshake = "handshake"
	PhasePreparing = "preparing"
	PhaseSending   = "sending"
	PhaseVerifying = "verifying"
	PhaseComplete  = "complete"
)

// Progress contains information about the programming progress.
// Passed to ProgressCallback during programming operations.
type Progress struct {
	// Phase describes the current operation phase:
	//   "handshake" - Negotiating capabilities with the device
	//   "preparing" - Announcing the image and erasing the target page
	//   "sending"   - Transferring the image
	//   "verifying" - Programming and reading back
	//   "complete"  - Operation completed successfully
	Phase string

	// Percentage is the completion percentage (0.0 to 100.0)
	Percentage float64

	// BytesSent is the number of image bytes acknowledged by the device
	BytesSent int

	// TotalBytes is the image length
	TotalBytes int

	// ElapsedTime is the time elapsed since programming started
	ElapsedTime time.Duration
}

// ProgressCallback is called during programming to report progress.
// Implementations should return quickly to avoid blocking the programming operation.
//
// Example:
//
//	prog := host.New(port,
//	    host.WithProgressCallback(func(p host.Progress) {
//	        fmt.Printf("[%s] %.0f%%\n", p.Phase, p.Percentage)
//	    }),
//	)
type ProgressCallback func(Progress)

// Logger is the logging interface accepted by the programmer.
type Logger = logging.Logger
