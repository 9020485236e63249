package bootloader

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/moffa90/go-vmboot/flash"
	"github.com/moffa90/go-vmboot/protocol"
	"github.com/moffa90/go-vmboot/session"
	"github.com/moffa90/go-vmboot/transport"
)

// RunResult is the outcome of one runtime cycle or of the main loop.
type RunResult int

// Run results.
const (
	RunContinue RunResult = iota
	RunComplete
	RunTimeout
	RunErrorRecoverable
	RunErrorCritical
	RunEmergencyShutdown
)

func (r RunResult) String() string {
	switch r {
	case RunContinue:
		return "continue"
	case RunComplete:
		return "complete"
	case RunTimeout:
		return "timeout"
	case RunErrorRecoverable:
		return "error_recoverable"
	case RunErrorCritical:
		return "error_critical"
	case RunEmergencyShutdown:
		return "emergency_shutdown"
	default:
		return fmt.Sprintf("result(%d)", int(r))
	}
}

// Statistics counts runtime activity since the last Init.
type Statistics struct {
	Uptime               time.Duration
	Cycles               uint64
	FramesReceived       uint64
	FramesSent           uint64
	FrameErrors          uint64
	RequestErrors        uint64
	RecoverableErrors    uint64
	SuccessfulOperations uint64
	SessionTimeouts      uint64
	Phase                session.Phase
}

// Runtime drives the receive, parse, dispatch and respond cycle of the
// bootloader. It exclusively owns the frame parser, the session and the
// flash staging engine.
//
// Runtime is not safe for concurrent use, except EmergencyShutdown which
// may be called from any goroutine.
type Runtime struct {
	transport transport.Transport
	device    flash.Device
	clock     session.Clock
	config    Config

	parser     *protocol.FrameParser
	session    *session.Session
	stager     *flash.Stager
	dispatcher *Dispatcher

	initialized bool
	emergency   atomic.Bool
	startedAt   uint32
	stats       Statistics
	lastErr     error

	scratch [protocol.MaxPayloadSize]byte
	wire    [protocol.MaxEncodedFrameSize]byte
}

// New creates a Runtime reading from t, programming dev and timing with clk.
// Call Init before running cycles.
//
// Example:
//
//	mem := flash.NewMemoryFor(flash.DefaultLayout())
//	rt := bootloader.New(queue, mem, session.NewSystemClock(),
//	    bootloader.WithSessionTimeout(30*time.Second),
//	)
//	if err := rt.Init(); err != nil {
//	    return err
//	}
//	result, err := rt.RunMainLoop(ctx)
func New(t transport.Transport, dev flash.Device, clk session.Clock, opts ...Option) *Runtime {
	if t == nil {
		panic("transport cannot be nil")
	}
	if dev == nil {
		panic("flash device cannot be nil")
	}
	if clk == nil {
		panic("clock cannot be nil")
	}

	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Runtime{
		transport: t,
		device:    dev,
		clock:     clk,
		config:    cfg,
	}
}

// Init validates the configuration and builds the session, staging engine
// and frame parser. It may be called again after EmergencyShutdown or
// Cleanup to bring the runtime back.
func (r *Runtime) Init() error {
	if err := r.config.validate(); err != nil {
		return err
	}

	stager, err := flash.NewStager(r.device, r.config.Layout)
	if err != nil {
		return &ConfigError{Field: "layout", Reason: err.Error()}
	}

	r.stager = stager
	r.parser = protocol.NewFrameParser(r.config.MaxPayloadSize, millis(r.config.FrameTimeout))
	r.session = session.New(r.clock, millis(r.config.SessionTimeout))
	r.session.OnPhaseChange(r.phaseChanged)
	r.dispatcher = NewDispatcher(&r.config, r.session, r.stager)

	r.stats = Statistics{}
	r.startedAt = r.clock.NowMillis()
	r.lastErr = nil
	r.emergency.Store(false)
	r.initialized = true

	r.logInfo("bootloader initialized",
		"version", r.config.Version,
		"page", fmt.Sprintf("0x%08X", r.config.Layout.PageAddress),
		"page_size", r.config.Layout.PageSize,
		"alignment", r.config.Layout.WriteAlignment,
	)
	return nil
}

// RunCycle drains every available transport byte through the frame parser
// and serves each complete frame. It returns early with any result other
// than RunContinue, leaving unread bytes for the next cycle.
func (r *Runtime) RunCycle() RunResult {
	if r.emergency.Load() {
		r.enterSafeState()
		return RunEmergencyShutdown
	}
	if !r.initialized {
		return RunErrorCritical
	}
	r.stats.Cycles++

	result := RunContinue
	if r.session.IsTimedOut() {
		r.logInfo("session timed out", "phase", r.session.Phase().String(), "idle_ms", r.session.IdleFor())
		r.dispatcher.resetSession()
		r.parser.Reset()
		r.stats.SessionTimeouts++
		result = RunTimeout
	}

	for r.transport.ByteAvailable() {
		b, err := r.transport.ReadByte()
		if err != nil {
			break
		}

		if err := r.parser.Feed(b, r.clock.NowMillis()); err != nil {
			// The parser has already reset itself.
			r.stats.FrameErrors++
			r.logDebug("frame dropped", "error", err)
			continue
		}
		if !r.parser.Complete() {
			continue
		}

		res := r.serveFrame()
		r.parser.Reset()
		if res != RunContinue {
			return res
		}
	}
	return result
}

// serveFrame decodes, dispatches and answers the parser's complete frame.
func (r *Runtime) serveFrame() RunResult {
	r.stats.FramesReceived++

	var resp *protocol.Response
	req, err := protocol.UnmarshalRequest(r.parser.Frame().Payload())
	if err != nil {
		r.logError("request decode failed", "error", err)
		resp = protocol.ErrorResponse(0, err)
	} else {
		resp, err = r.dispatcher.Handle(req)
	}

	if err != nil {
		r.stats.RequestErrors++
		r.lastErr = err
	} else {
		r.stats.SuccessfulOperations++
	}

	frame, encErr := protocol.BuildResponseFrame(r.wire[:0], r.scratch[:0], resp)
	if encErr != nil {
		r.lastErr = encErr
		r.logError("response encode failed", "error", encErr)
		return RunErrorCritical
	}
	if werr := r.transport.WriteBytes(frame); werr != nil {
		r.stats.RecoverableErrors++
		r.lastErr = werr
		r.logError("response write failed", "error", werr)
		return RunErrorRecoverable
	}
	r.stats.FramesSent++

	if err == nil && r.session.Phase() == session.ProgrammingComplete {
		return RunComplete
	}
	return RunContinue
}

// RunMainLoop runs cycles every PollInterval until programming completes,
// a critical error occurs, recoverable errors exceed MaxRecoverableErrors,
// or emergency shutdown is requested. Session timeouts only end the loop
// when StopOnSessionTimeout is set. Cancelling ctx triggers an emergency
// shutdown.
func (r *Runtime) RunMainLoop(ctx context.Context) (RunResult, error) {
	if !r.initialized {
		return RunErrorCritical, ErrNotInitialized
	}

	ticker := time.NewTicker(r.config.PollInterval)
	defer ticker.Stop()

	recoverable := 0
	for {
		switch res := r.RunCycle(); res {
		case RunComplete:
			return res, nil
		case RunTimeout:
			if r.config.StopOnSessionTimeout {
				return res, fmt.Errorf("session: %w", protocol.ErrTimeout)
			}
		case RunErrorRecoverable:
			recoverable++
			if recoverable > r.config.MaxRecoverableErrors {
				err := &TooManyErrorsError{Count: recoverable, Limit: r.config.MaxRecoverableErrors, Last: r.lastErr}
				r.logError("giving up", "error", err)
				return RunErrorCritical, err
			}
		case RunErrorCritical:
			if r.lastErr != nil {
				return res, r.lastErr
			}
			return res, ErrNotInitialized
		case RunEmergencyShutdown:
			return res, nil
		}

		select {
		case <-ctx.Done():
			r.EmergencyShutdown()
			r.enterSafeState()
			return RunEmergencyShutdown, ctx.Err()
		case <-ticker.C:
		}
	}
}

// EmergencyShutdown stops normal operation. The next RunCycle brings the
// owned state to a safe idle and reports RunEmergencyShutdown until Init is
// called again. It is safe to call from any goroutine.
func (r *Runtime) EmergencyShutdown() {
	r.emergency.Store(true)
}

// enterSafeState discards any in-progress frame, transfer and staged bytes.
func (r *Runtime) enterSafeState() {
	if !r.initialized {
		return
	}
	r.logError("emergency shutdown", "phase", r.session.Phase().String())
	r.parser.Reset()
	r.dispatcher.resetSession()
	r.initialized = false
}

// Cleanup releases the runtime's state. Init must be called before reuse.
func (r *Runtime) Cleanup() {
	if !r.initialized {
		return
	}
	stats := r.Stats()
	r.logInfo("bootloader cleanup",
		"uptime", stats.Uptime.String(),
		"frames_received", stats.FramesReceived,
		"frames_sent", stats.FramesSent,
		"errors", stats.FrameErrors+stats.RequestErrors,
	)
	r.parser.Reset()
	r.dispatcher.resetSession()
	r.initialized = false
}

// Initialized reports whether Init has completed and no shutdown or cleanup
// has happened since.
func (r *Runtime) Initialized() bool {
	return r.initialized
}

// Ready reports whether the runtime can serve requests.
func (r *Runtime) Ready() bool {
	return r.initialized && !r.emergency.Load()
}

// Phase returns the current session phase.
func (r *Runtime) Phase() session.Phase {
	if r.session == nil {
		return session.Idle
	}
	return r.session.Phase()
}

// Stats returns a snapshot of the runtime statistics.
func (r *Runtime) Stats() Statistics {
	s := r.stats
	s.Phase = r.Phase()
	if r.initialized {
		s.Uptime = time.Duration(session.Elapsed(r.clock.NowMillis(), r.startedAt)) * time.Millisecond
	}
	return s
}

// Config returns the runtime configuration.
func (r *Runtime) Config() Config {
	return r.config
}

func (r *Runtime) phaseChanged(from, to session.Phase) {
	r.logDebug("phase change", "from", from.String(), "to", to.String())
	if r.config.StateChangeCallback != nil {
		r.config.StateChangeCallback(from, to)
	}
}

// validate checks the configuration before Init builds anything.
func (c *Config) validate() error {
	switch {
	case c.SessionTimeout <= 0 || millis(c.SessionTimeout) == 0:
		return &ConfigError{Field: "session_timeout", Reason: "must be at least 1ms"}
	case c.FrameTimeout <= 0 || millis(c.FrameTimeout) == 0:
		return &ConfigError{Field: "frame_timeout", Reason: "must be at least 1ms"}
	case c.MaxPayloadSize <= 0 || c.MaxPayloadSize > protocol.MaxPayloadSize:
		return &ConfigError{Field: "max_payload_size", Reason: fmt.Sprintf("must be in 1..%d", protocol.MaxPayloadSize)}
	case len(c.Version) > protocol.MaxVersionLen:
		return &ConfigError{Field: "version", Reason: fmt.Sprintf("longer than %d bytes", protocol.MaxVersionLen)}
	case len(c.Capabilities) > protocol.MaxCapabilitiesLen:
		return &ConfigError{Field: "capabilities", Reason: fmt.Sprintf("longer than %d bytes", protocol.MaxCapabilitiesLen)}
	case c.PollInterval <= 0:
		return &ConfigError{Field: "poll_interval", Reason: "must be positive"}
	}
	if err := c.Layout.Validate(); err != nil {
		return &ConfigError{Field: "layout", Reason: err.Error()}
	}
	return nil
}

// millis converts d to a uint32 millisecond count, saturating.
func millis(d time.Duration) uint32 {
	ms := d.Milliseconds()
	if ms > int64(^uint32(0)) {
		return ^uint32(0)
	}
	if ms < 0 {
		return 0
	}
	return uint32(ms)
}

func (r *Runtime) logDebug(msg string, keysAndValues ...interface{}) {
	if r.config.Logger != nil {
		r.config.Logger.Debug(msg, keysAndValues...)
	}
}

func (r *Runtime) logInfo(msg string, keysAndValues ...interface{}) {
	if r.config.Logger != nil {
		r.config.Logger.Info(msg, keysAndValues...)
	}
}

func (r *Runtime) logError(msg string, keysAndValues ...interface{}) {
	if r.config.Logger != nil {
		r.config.Logger.Error(msg, keysAndValues...)
	}
}

