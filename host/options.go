package host

import (
	"time"

	"github.com/moffa90/go-vmboot/protocol"
)

// Config holds the programmer configuration.
type Config struct {
	// ProgressCallback is called during programming to report progress (optional)
	ProgressCallback ProgressCallback

	// Logger is used for logging operations (optional)
	Logger Logger

	// ReadTimeout bounds the wait for each response
	ReadTimeout time.Duration

	// Retries is the number of extra attempts after a transport-level failure
	Retries int

	// Capabilities is the comma-separated feature list sent in the handshake
	Capabilities string

	// MaxPacketSize is the largest frame payload announced in the handshake
	MaxPacketSize uint32
}

// defaultConfig returns the default configuration.
func defaultConfig() Config {
	return Config{
		ReadTimeout:   5 * time.Second,
		Retries:       3,
		Capabilities:  protocol.CapabilityFlashProgram + "," + protocol.CapabilityVerify,
		MaxPacketSize: protocol.MaxPayloadSize,
	}
}

// Option is a functional option for configuring the Programmer.
type Option func(*Config)

// WithProgressCallback sets a callback function to track programming progress.
//
// Example:
//
//	prog := host.New(port,
//	    host.WithProgressCallback(func(p host.Progress) {
//	        fmt.Printf("%.1f%% complete\n", p.Percentage)
//	    }),
//	)
func WithProgressCallback(callback ProgressCallback) Option {
	return func(c *Config) {
		c.ProgressCallback = callback
	}
}

// WithLogger sets a logger for the programmer operations.
//
// Example:
//
//	prog := host.New(port, host.WithLogger(logging.FromZap(zl)))
func WithLogger(logger Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}

// WithTimeout sets the per-response read timeout.
//
// Example:
//
//	prog := host.New(port, host.WithTimeout(2*time.Second))
func WithTimeout(timeout time.Duration) Option {
	return func(c *Config) {
		c.ReadTimeout = timeout
	}
}

// WithRetries sets the number of retry attempts for requests that got no
// valid response.
func WithRetries(retries int) Option {
	return func(c *Config) {
		if retries >= 0 {
			c.Retries = retries
		}
	}
}

// WithCapabilities sets the capability list sent in the handshake.
func WithCapabilities(capabilities string) Option {
	return func(c *Config) {
		c.Capabilities = capabilities
	}
}

// WithMaxPacketSize sets the packet size announced in the handshake.
func WithMaxPacketSize(size uint32) Option {
	return func(c *Config) {
		c.MaxPacketSize = size
	}
}
