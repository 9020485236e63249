package bootloader

import (
	"time"

	"github.com/moffa90/go-vmboot/flash"
	"github.com/moffa90/go-vmboot/protocol"
)

// Default runtime settings.
const (
	DefaultVersion              = "VMBoot-4.6.3"
	DefaultSessionTimeout       = 30 * time.Second
	DefaultFrameTimeout         = 500 * time.Millisecond
	DefaultPollInterval         = 10 * time.Millisecond
	DefaultMaxRecoverableErrors = 10
)

// Config holds the runtime configuration.
type Config struct {
	// SessionTimeout resets an inactive session to idle
	SessionTimeout time.Duration

	// FrameTimeout aborts a frame whose bytes stop arriving
	FrameTimeout time.Duration

	// Layout is the flash page that receives the image
	Layout flash.Layout

	// MaxPayloadSize bounds frame payloads and image length
	MaxPayloadSize int

	// Version is reported in the handshake response
	Version string

	// Capabilities is the comma-separated feature list reported in the handshake
	Capabilities string

	// PollInterval is the pause between main loop cycles
	PollInterval time.Duration

	// MaxRecoverableErrors escalates the main loop to a critical error once exceeded
	MaxRecoverableErrors int

	// StopOnSessionTimeout makes the main loop return when a session times out
	// instead of waiting for a new handshake
	StopOnSessionTimeout bool

	// Logger is used for logging operations (optional)
	Logger Logger

	// StateChangeCallback observes session phase changes (optional)
	StateChangeCallback StateChangeCallback
}

// defaultConfig returns the default configuration.
func defaultConfig() Config {
	return Config{
		SessionTimeout:       DefaultSessionTimeout,
		FrameTimeout:         DefaultFrameTimeout,
		Layout:               flash.DefaultLayout(),
		MaxPayloadSize:       protocol.MaxPayloadSize,
		Version:              DefaultVersion,
		Capabilities:         protocol.CapabilityFlashProgram + "," + protocol.CapabilityVerify,
		PollInterval:         DefaultPollInterval,
		MaxRecoverableErrors: DefaultMaxRecoverableErrors,
	}
}

// DefaultConfig returns a copy of the default configuration.
func DefaultConfig() Config {
	return defaultConfig()
}

// Option is a functional option for configuring the Runtime.
type Option func(*Config)

// WithConfig replaces the whole configuration. Later options still apply.
func WithConfig(cfg Config) Option {
	return func(c *Config) {
		*c = cfg
	}
}

// WithLogger sets a logger for runtime operations.
//
// Example:
//
//	rt := bootloader.New(tr, dev, clk, bootloader.WithLogger(logging.FromZap(zl)))
func WithLogger(logger Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}

// WithStateChangeCallback sets a callback invoked on every session phase change.
//
// Example:
//
//	rt := bootloader.New(tr, dev, clk,
//	    bootloader.WithStateChangeCallback(func(from, to session.Phase) {
//	        fmt.Printf("%s -> %s\n", from, to)
//	    }),
//	)
func WithStateChangeCallback(callback StateChangeCallback) Option {
	return func(c *Config) {
		c.StateChangeCallback = callback
	}
}

// WithSessionTimeout sets the session inactivity timeout.
//
// Example:
//
//	rt := bootloader.New(tr, dev, clk, bootloader.WithSessionTimeout(10*time.Second))
func WithSessionTimeout(timeout time.Duration) Option {
	return func(c *Config) {
		c.SessionTimeout = timeout
	}
}

// WithFrameTimeout sets the inactivity window inside a frame.
func WithFrameTimeout(timeout time.Duration) Option {
	return func(c *Config) {
		c.FrameTimeout = timeout
	}
}

// WithFlashLayout sets the target page, page size and write alignment.
//
// Example:
//
//	rt := bootloader.New(tr, dev, clk, bootloader.WithFlashLayout(flash.Layout{
//	    PageAddress:    0x08020000,
//	    PageSize:       4096,
//	    WriteAlignment: 16,
//	}))
func WithFlashLayout(layout flash.Layout) Option {
	return func(c *Config) {
		c.Layout = layout
	}
}

// WithMaxPayloadSize sets the largest accepted frame payload.
// Values outside (0, protocol.MaxPayloadSize] are ignored.
func WithMaxPayloadSize(size int) Option {
	return func(c *Config) {
		if size > 0 && size <= protocol.MaxPayloadSize {
			c.MaxPayloadSize = size
		}
	}
}

// WithVersion sets the version string reported in handshakes.
func WithVersion(version string) Option {
	return func(c *Config) {
		c.Version = version
	}
}

// WithPollInterval sets the pause between main loop cycles.
func WithPollInterval(interval time.Duration) Option {
	return func(c *Config) {
		c.PollInterval = interval
	}
}

// WithMaxRecoverableErrors sets how many recoverable errors the main loop
// tolerates before giving up.
func WithMaxRecoverableErrors(n int) Option {
	return func(c *Config) {
		if n >= 0 {
			c.MaxRecoverableErrors = n
		}
	}
}

// WithStopOnSessionTimeout makes the main loop return RunTimeout when a
// session expires.
func WithStopOnSessionTimeout(stop bool) Option {
	return func(c *Config) {
		c.StopOnSessionTimeout = stop
	}
}
