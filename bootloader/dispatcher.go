package bootloader

import (
	"fmt"
	"strings"

	"github.com/moffa90/go-vmboot/flash"
	"github.com/moffa90/go-vmboot/protocol"
	"github.com/moffa90/go-vmboot/session"
)

// Dispatcher routes decoded requests to their handlers and builds the
// responses. It owns the received image so verification can compare the
// flash contents byte for byte.
//
// Dispatcher is not safe for concurrent use.
type Dispatcher struct {
	config  *Config
	session *session.Session
	stager  *flash.Stager

	image    [protocol.MaxPayloadSize]byte
	imageLen int
}

// NewDispatcher creates a dispatcher serving sess and programming through
// stager.
func NewDispatcher(cfg *Config, sess *session.Session, stager *flash.Stager) *Dispatcher {
	return &Dispatcher{
		config:  cfg,
		session: sess,
		stager:  stager,
	}
}

// Handle serves one request. The returned response is never nil: failures
// produce a failed Acknowledgment carrying the mapped result code, and the
// error is returned alongside for the caller's bookkeeping.
func (d *Dispatcher) Handle(req *protocol.Request) (*protocol.Response, error) {
	if d.session.IsTimedOut() {
		d.logInfo("session timed out", "phase", d.session.Phase().String(), "idle_ms", d.session.IdleFor())
		d.resetSession()
	}
	d.session.Touch(req.SequenceID)

	kind := protocol.RequestKind(req.Body)
	d.logDebug("request", "kind", kind, "seq", req.SequenceID, "phase", d.session.Phase().String())

	var (
		body protocol.ResponseBody
		err  error
	)
	switch b := req.Body.(type) {
	case *protocol.HandshakeRequest:
		body, err = d.handshake(b)
	case *protocol.DataPacket:
		body, err = d.data(b)
	case *protocol.FlashProgramRequest:
		if b.VerifyAfterProgram {
			body, err = d.verify()
		} else {
			body, err = d.prepare(b)
		}
	default:
		err = fmt.Errorf("unsupported request %T: %w", req.Body, protocol.ErrInvalidRequest)
	}

	if err != nil {
		d.logError("request failed", "kind", kind, "seq", req.SequenceID, "error", err)
		return protocol.ErrorResponse(req.SequenceID, err), err
	}
	return &protocol.Response{
		SequenceID: req.SequenceID,
		Result:     protocol.ResultSuccess,
		Body:       body,
	}, nil
}

func (d *Dispatcher) handshake(req *protocol.HandshakeRequest) (protocol.ResponseBody, error) {
	if !hasCapability(req.Capabilities, protocol.CapabilityFlashProgram) {
		return nil, fmt.Errorf("handshake: capability %q not requested: %w",
			protocol.CapabilityFlashProgram, protocol.ErrInvalidRequest)
	}
	if int64(req.MaxPacketSize) > int64(d.config.MaxPayloadSize) {
		return nil, fmt.Errorf("handshake: max packet size %d exceeds %d: %w",
			req.MaxPacketSize, d.config.MaxPayloadSize, protocol.ErrPayloadTooLarge)
	}

	d.stager.Init()
	d.imageLen = 0
	d.session.CompleteHandshake()

	layout := d.stager.Layout()
	return &protocol.HandshakeResponse{
		Version:       d.config.Version,
		Capabilities:  d.config.Capabilities,
		FlashPageSize: layout.PageSize,
		TargetAddress: layout.PageAddress,
	}, nil
}

func (d *Dispatcher) prepare(req *protocol.FlashProgramRequest) (protocol.ResponseBody, error) {
	if err := d.session.Require("prepare", session.HandshakeComplete); err != nil {
		return nil, err
	}

	length := req.TotalDataLength
	if length == 0 {
		return nil, fmt.Errorf("prepare: total data length is zero: %w", protocol.ErrInvalidRequest)
	}
	if int64(length) > int64(d.config.MaxPayloadSize) {
		return nil, fmt.Errorf("prepare: %d bytes exceeds payload limit %d: %w",
			length, d.config.MaxPayloadSize, protocol.ErrPayloadTooLarge)
	}
	layout := d.stager.Layout()
	if length > layout.PageSize {
		return nil, fmt.Errorf("prepare: %d bytes exceeds page size %d: %w",
			length, layout.PageSize, protocol.ErrPayloadTooLarge)
	}

	d.stager.Init()
	d.imageLen = 0
	// An erase failure leaves the session in HandshakeComplete so the host
	// can simply retry the prepare.
	if err := d.stager.ErasePage(layout.PageAddress); err != nil {
		return nil, err
	}

	d.session.BeginTransfer(length)
	d.logInfo("flash prepared", "addr", fmt.Sprintf("0x%08X", layout.PageAddress), "length", length)
	return &protocol.Acknowledgment{Success: true, Message: "ready"}, nil
}

func (d *Dispatcher) data(pkt *protocol.DataPacket) (protocol.ResponseBody, error) {
	if err := d.session.Require("data", session.ReadyForData); err != nil {
		return nil, err
	}

	if pkt.Offset != 0 {
		return nil, fmt.Errorf("data: offset %d, only single-packet transfers at offset 0 are supported: %w",
			pkt.Offset, protocol.ErrInvalidRequest)
	}
	if uint32(len(pkt.Data)) != d.session.ExpectedLength() {
		return nil, fmt.Errorf("data: %d bytes, prepared for %d: %w",
			len(pkt.Data), d.session.ExpectedLength(), protocol.ErrInvalidRequest)
	}
	if crc := protocol.DataCRC32(pkt.Data); crc != pkt.DataCRC32 {
		return nil, fmt.Errorf("data: crc32 0x%08X, calculated 0x%08X: %w",
			pkt.DataCRC32, crc, protocol.ErrCrcMismatch)
	}

	d.imageLen = copy(d.image[:], pkt.Data)
	if err := d.stager.Stage(pkt.Data); err != nil {
		d.session.Fail()
		return nil, err
	}

	d.session.CompleteTransfer(uint32(len(pkt.Data)), pkt.DataCRC32)
	d.logDebug("data staged", "length", len(pkt.Data), "programmed", d.stager.BytesProgrammed())
	return &protocol.Acknowledgment{Success: true, Message: "data received"}, nil
}

func (d *Dispatcher) verify() (protocol.ResponseBody, error) {
	if err := d.session.Require("verify", session.DataReceived); err != nil {
		return nil, err
	}

	if err := d.stager.Flush(); err != nil {
		d.session.Fail()
		return nil, err
	}

	readBack, err := d.stager.Verify(d.image[:d.imageLen])
	if err != nil {
		d.session.Fail()
		return nil, err
	}
	if crc := protocol.DataCRC32(readBack); crc != d.session.DataCRC32() {
		d.session.Fail()
		return nil, fmt.Errorf("verify: flash crc32 0x%08X, expected 0x%08X: %w",
			crc, d.session.DataCRC32(), protocol.ErrCrcMismatch)
	}

	d.session.CompleteProgramming()
	result := &protocol.FlashResult{
		BytesProgrammed:  d.stager.BytesProgrammed(),
		ActualDataLength: d.stager.ActualLength(),
		VerificationHash: protocol.VerificationHash(readBack),
	}
	d.logInfo("programming complete",
		"bytes_programmed", result.BytesProgrammed,
		"actual_length", result.ActualDataLength,
		"hash", fmt.Sprintf("%X", result.VerificationHash),
	)
	return result, nil
}

// resetSession returns the session and staging engine to idle.
func (d *Dispatcher) resetSession() {
	d.session.Reset()
	d.stager.Init()
	d.imageLen = 0
}

// hasCapability reports whether the comma-separated list contains token.
func hasCapability(list, token string) bool {
	for _, c := range strings.Split(list, ",") {
		if strings.TrimSpace(c) == token {
			return true
		}
	}
	return false
}

func (d *Dispatcher) logDebug(msg string, keysAndValues ...interface{}) {
	if d.config.Logger != nil {
		d.config.Logger.Debug(msg, keysAndValues...)
	}
}

func (d *Dispatcher) logInfo(msg string, keysAndValues ...interface{}) {
	if d.config.Logger != nil {
		d.config.Logger.Info(msg, keysAndValues...)
	}
}

func (d *Dispatcher) logError(msg string, keysAndValues ...interface{}) {
	if d.config.Logger != nil {
		d.config.Logger.Error(msg, keysAndValues...)
	}
}
