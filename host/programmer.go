package host

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/moffa90/go-vmboot/protocol"
)

// Programmer drives a device-side bootloader through a complete programming
// cycle: handshake, prepare, data and verify.
//
// Programmer is not safe for concurrent use.
type Programmer struct {
	device io.ReadWriter
	config Config

	seq     uint32
	parser  *protocol.FrameParser
	readBuf [256]byte
	pending []byte
}

// deadliner is implemented by transports with native read deadlines, such as
// net.Conn.
type deadliner interface {
	SetReadDeadline(t time.Time) error
}

// New creates a new Programmer talking to device.
// The device must implement io.ReadWriter for communication with the bootloader.
//
// Example:
//
//	port, _ := transport.OpenSerial(transport.SerialConfig{Port: "/dev/ttyUSB0"})
//	prog := host.New(port,
//	    host.WithProgressCallback(progressFunc),
//	    host.WithTimeout(2*time.Second),
//	)
func New(device io.ReadWriter, opts ...Option) *Programmer {
	if device == nil {
		panic("device cannot be nil")
	}

	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Programmer{
		device: device,
		config: cfg,
		parser: protocol.NewFrameParser(protocol.MaxPayloadSize, 0),
	}
}

// Program performs the complete programming sequence:
//  1. Handshake and check the image fits the device's flash page
//  2. Prepare, which erases the target page
//  3. Send the image as a single data packet
//  4. Verify and compare the device's hash with the local one
//
// A cycle that fails for lack of a valid response (timeout, corrupted
// frame, corrupted data) is restarted from the handshake up to Retries
// times. Device rejections are returned immediately.
//
// Example:
//
//	img, _ := image.Load("firmware.hex")
//	result, err := prog.Program(context.Background(), img.Data)
func (p *Programmer) Program(ctx context.Context, image []byte) (*protocol.FlashResult, error) {
	if len(image) == 0 || len(image) > protocol.MaxImageSize {
		return nil, &ImageSizeError{Size: len(image), Limit: protocol.MaxImageSize}
	}

	startTime := time.Now()
	var lastErr error
	for attempt := 0; attempt <= p.config.Retries; attempt++ {
		if attempt > 0 {
			p.logInfo("retrying programming cycle", "attempt", attempt, "error", lastErr)
		}

		result, err := p.program(ctx, image, startTime)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if !retryable(err) || ctx.Err() != nil {
			break
		}
	}

	p.logError("programming failed", "error", lastErr)
	return nil, lastErr
}

func (p *Programmer) program(ctx context.Context, image []byte, startTime time.Time) (*protocol.FlashResult, error) {
	total := len(image)

	// Phase 1: Handshake
	p.reportProgress(Progress{
		Phase:       PhaseHandshake,
		Percentage:  0,
		TotalBytes:  total,
		ElapsedTime: time.Since(startTime),
	})

	info, err := p.Handshake(ctx)
	if err != nil {
		return nil, fmt.Errorf("handshake: %w", err)
	}

	p.logDebug("handshake complete",
		"version", info.Version,
		"capabilities", info.Capabilities,
		"page_size", info.FlashPageSize,
		"target", fmt.Sprintf("0x%08X", info.TargetAddress),
	)

	if uint32(total) > info.FlashPageSize {
		return nil, &ImageSizeError{Size: total, Limit: int(info.FlashPageSize)}
	}

	// Phase 2: Prepare
	p.reportProgress(Progress{
		Phase:       PhasePreparing,
		Percentage:  10,
		TotalBytes:  total,
		ElapsedTime: time.Since(startTime),
	})

	if err := p.Prepare(ctx, uint32(total)); err != nil {
		return nil, fmt.Errorf("prepare: %w", err)
	}

	// Phase 3: Send data
	p.reportProgress(Progress{
		Phase:       PhaseSending,
		Percentage:  20,
		TotalBytes:  total,
		ElapsedTime: time.Since(startTime),
	})

	if err := p.SendData(ctx, image); err != nil {
		return nil, fmt.Errorf("send data: %w", err)
	}

	// Phase 4: Verify
	p.reportProgress(Progress{
		Phase:       PhaseVerifying,
		Percentage:  80,
		BytesSent:   total,
		TotalBytes:  total,
		ElapsedTime: time.Since(startTime),
	})

	result, err := p.Verify(ctx)
	if err != nil {
		return nil, fmt.Errorf("verify: %w", err)
	}
	if err := checkResult(result, image); err != nil {
		return nil, err
	}

	// Complete
	p.reportProgress(Progress{
		Phase:       PhaseComplete,
		Percentage:  100,
		BytesSent:   total,
		TotalBytes:  total,
		ElapsedTime: time.Since(startTime),
	})

	p.logInfo("programming complete",
		"bytes", total,
		"bytes_programmed", result.BytesProgrammed,
		"hash", fmt.Sprintf("%X", result.VerificationHash),
		"elapsed", time.Since(startTime).String(),
	)

	return result, nil
}

// checkResult compares the device's flash result with the image sent.
func checkResult(result *protocol.FlashResult, image []byte) error {
	if result.ActualDataLength != uint32(len(image)) {
		return &VerificationError{
			Message: fmt.Sprintf("device programmed %d bytes, sent %d", result.ActualDataLength, len(image)),
		}
	}
	if result.BytesProgrammed < result.ActualDataLength {
		return &VerificationError{
			Message: fmt.Sprintf("bytes programmed %d below data length %d", result.BytesProgrammed, result.ActualDataLength),
		}
	}
	if want := protocol.VerificationHash(image); result.VerificationHash != want {
		return &VerificationError{
			Message: fmt.Sprintf("hash %X, expected %X", result.VerificationHash, want),
		}
	}
	return nil
}

// Handshake announces the host's capabilities and returns the device's
// identification.
func (p *Programmer) Handshake(ctx context.Context) (*protocol.HandshakeResponse, error) {
	resp, err := p.exchange(ctx, "handshake", func(seq uint32) ([]byte, error) {
		return protocol.BuildHandshakeCmd(seq, p.config.Capabilities, p.config.MaxPacketSize)
	})
	if err != nil {
		return nil, err
	}
	return protocol.ParseHandshakeResponse(resp)
}

// Prepare announces an image of totalLength bytes. The device erases its
// target page before acknowledging.
func (p *Programmer) Prepare(ctx context.Context, totalLength uint32) error {
	resp, err := p.exchange(ctx, "prepare", func(seq uint32) ([]byte, error) {
		return protocol.BuildPrepareCmd(seq, totalLength)
	})
	if err != nil {
		return err
	}
	_, err = protocol.ParseAcknowledgment(resp, "prepare")
	return err
}

// SendData transfers the whole image in one data packet.
func (p *Programmer) SendData(ctx context.Context, data []byte) error {
	resp, err := p.exchange(ctx, "data", func(seq uint32) ([]byte, error) {
		return protocol.BuildDataCmd(seq, data)
	})
	if err != nil {
		return err
	}
	_, err = protocol.ParseAcknowledgment(resp, "data")
	return err
}

// Verify asks the device to program any staged bytes and read the image
// back.
func (p *Programmer) Verify(ctx context.Context) (*protocol.FlashResult, error) {
	resp, err := p.exchange(ctx, "verify", protocol.BuildVerifyCmd)
	if err != nil {
		return nil, err
	}
	return protocol.ParseFlashResult(resp)
}

// exchange sends one request and waits for the response carrying its
// sequence id. Responses to earlier requests are skipped.
func (p *Programmer) exchange(ctx context.Context, operation string, build func(seq uint32) ([]byte, error)) (*protocol.Response, error) {
	p.seq++
	seq := p.seq

	cmd, err := build(seq)
	if err != nil {
		return nil, err
	}

	if _, err := p.device.Write(cmd); err != nil {
		return nil, fmt.Errorf("write command: %w", err)
	}

	deadline := time.Now().Add(p.config.ReadTimeout)
	for {
		payload, err := p.readFrame(ctx, deadline)
		if err != nil {
			return nil, err
		}

		resp, err := protocol.ParseResponse(payload, operation, seq)
		var mismatch *protocol.SequenceMismatchError
		if errors.As(err, &mismatch) && mismatch.Actual < seq {
			p.logDebug("stale response skipped", "expected", seq, "got", mismatch.Actual)
			continue
		}
		return resp, err
	}
}

// readFrame reads until a complete response frame arrives or deadline
// passes. Corrupted frames are dropped. Bytes after the frame are kept for
// the next call.
func (p *Programmer) readFrame(ctx context.Context, deadline time.Time) ([]byte, error) {
	if p.parser.Complete() {
		p.parser.Reset()
	}

	if d, ok := p.device.(deadliner); ok {
		if err := d.SetReadDeadline(deadline); err != nil {
			return nil, fmt.Errorf("set read deadline: %w", err)
		}
		defer d.SetReadDeadline(time.Time{})
	}

	var readErr error
	for {
		for len(p.pending) > 0 {
			b := p.pending[0]
			p.pending = p.pending[1:]
			if err := p.parser.Feed(b, 0); err != nil {
				p.logDebug("response frame dropped", "error", err)
				continue
			}
			if p.parser.Complete() {
				return p.parser.Frame().Payload(), nil
			}
		}

		if errors.Is(readErr, os.ErrDeadlineExceeded) {
			return nil, fmt.Errorf("no response within %s: %w", p.config.ReadTimeout, protocol.ErrTimeout)
		}
		if readErr != nil {
			return nil, fmt.Errorf("read response: %w", readErr)
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("no response within %s: %w", p.config.ReadTimeout, protocol.ErrTimeout)
		}

		var n int
		n, readErr = p.device.Read(p.readBuf[:])
		p.pending = p.readBuf[:n]
	}
}

// retryable reports whether err means the device never saw the request or
// its answer was lost, so a fresh cycle may succeed.
func retryable(err error) bool {
	if errors.Is(err, protocol.ErrTimeout) || errors.Is(err, protocol.ErrMessageDecode) {
		return true
	}
	var re *protocol.ResultError
	if errors.As(err, &re) {
		return re.Result == protocol.ResultErrorDataCorruption || re.Result == protocol.ResultErrorCommunication
	}
	return false
}

// reportProgress calls the progress callback if configured.
func (p *Programmer) reportProgress(progress Progress) {
	if p.config.ProgressCallback != nil {
		p.config.ProgressCallback(progress)
	}
}

// logDebug logs a debug message if a logger is configured.
func (p *Programmer) logDebug(msg string, keysAndValues ...interface{}) {
	if p.config.Logger != nil {
		p.config.Logger.Debug(msg, keysAndValues...)
	}
}

// logInfo logs an info message if a logger is configured.
func (p *Programmer) logInfo(msg string, keysAndValues ...interface{}) {
	if p.config.Logger != nil {
		p.config.Logger.Info(msg, keysAndValues...)
	}
}

// logError logs an error message if a logger is configured.
func (p *Programmer) logError(msg string, keysAndValues ...interface{}) {
	if p.config.Logger != nil {
		p.config.Logger.Error(msg, keysAndValues...)
	}
}
