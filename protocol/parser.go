package protocol

import "fmt"

// ParserState names the last frame field the parser has consumed.
type ParserState uint8

// Parser states.
const (
	// StateIdle waits for a start marker
	StateIdle ParserState = iota
	// StateSync has seen the start marker
	StateSync
	// StateLengthHigh has the high length byte
	StateLengthHigh
	// StateLengthLow has the full length and is accumulating payload
	StateLengthLow
	// StatePayload has the complete payload
	StatePayload
	// StateCrcHigh has the high CRC byte
	StateCrcHigh
	// StateCrcLow has the full CRC and expects the end marker
	StateCrcLow
	// StateEnd has seen the end marker and is checking the CRC
	StateEnd
	// StateComplete holds a verified frame until Reset
	StateComplete
)

func (s ParserState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSync:
		return "sync"
	case StateLengthHigh:
		return "length_high"
	case StateLengthLow:
		return "length_low"
	case StatePayload:
		return "payload"
	case StateCrcHigh:
		return "crc_high"
	case StateCrcLow:
		return "crc_low"
	case StateEnd:
		return "end"
	case StateComplete:
		return "complete"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

// FrameParser decodes frames one byte at a time.
//
// Escape sequences are resolved before the state logic sees a byte, so the
// states only ever observe unescaped values. A raw start marker outside
// payload accumulation restarts the frame; a raw end marker anywhere but the
// end position is a framing error.
//
// FrameParser is not safe for concurrent use.
type FrameParser struct {
	state         ParserState
	frame         Frame
	received      int
	escapePending bool
	lastActivity  uint32
	maxPayload    int
	frameTimeout  uint32
	consumed      uint64
}

// NewFrameParser creates a parser accepting payloads up to maxPayload bytes.
// A maxPayload outside (0, MaxPayloadSize] is clamped to MaxPayloadSize.
// frameTimeout is the inactivity window in milliseconds inside a frame; zero
// disables it.
func NewFrameParser(maxPayload int, frameTimeout uint32) *FrameParser {
	if maxPayload <= 0 || maxPayload > MaxPayloadSize {
		maxPayload = MaxPayloadSize
	}
	return &FrameParser{
		maxPayload:   maxPayload,
		frameTimeout: frameTimeout,
	}
}

// Feed consumes one wire byte received at time now (milliseconds).
//
// Errors are frame-level: ErrFrameInvalid, ErrCrcMismatch,
// ErrPayloadTooLarge and ErrTimeout all leave the parser reset and ready for
// the next frame. Feeding a parser that holds a complete frame returns
// ErrStateInvalid without disturbing the frame.
func (p *FrameParser) Feed(b byte, now uint32) error {
	if p.state == StateComplete {
		return fmt.Errorf("parser holds a complete frame: %w", ErrStateInvalid)
	}
	p.consumed++

	var timedOut error
	if p.state != StateIdle && p.frameTimeout > 0 && now-p.lastActivity > p.frameTimeout {
		timedOut = fmt.Errorf("frame inactive for %d ms in state %s: %w", now-p.lastActivity, p.state, ErrTimeout)
		p.Reset()
	}
	p.lastActivity = now

	if err := p.feed(b); err != nil {
		return err
	}
	return timedOut
}

func (p *FrameParser) feed(b byte) error {
	if p.state == StateIdle {
		if b == StartMarker {
			p.state = StateSync
		}
		return nil
	}

	if p.escapePending {
		p.escapePending = false
		if b == StartMarker {
			// 0x7D 0x7E is never encoded: the frame was cut short and the
			// start marker opens the next one.
			p.Reset()
			p.state = StateSync
			return fmt.Errorf("truncated frame after escape marker: %w", ErrFrameInvalid)
		}
		orig, ok := unescape(b)
		if !ok {
			p.Reset()
			return fmt.Errorf("invalid escape sequence 0x7D 0x%02X: %w", b, ErrFrameInvalid)
		}
		return p.consume(orig)
	}

	accumulating := p.state == StateLengthLow
	switch {
	case b == EscapeMarker:
		p.escapePending = true
		return nil
	case b == StartMarker && !accumulating:
		p.Reset()
		p.state = StateSync
		return nil
	case b == EndMarker && p.state == StateCrcLow:
		return p.finish()
	case b == EndMarker && !accumulating:
		state := p.state
		p.Reset()
		return fmt.Errorf("unexpected end marker in state %s: %w", state, ErrFrameInvalid)
	}
	return p.consume(b)
}

// consume applies one unescaped byte to the current state.
func (p *FrameParser) consume(b byte) error {
	switch p.state {
	case StateSync:
		p.frame.Length = uint16(b) << 8
		p.state = StateLengthHigh
	case StateLengthHigh:
		p.frame.Length |= uint16(b)
		if int(p.frame.Length) > p.maxPayload {
			length := p.frame.Length
			p.Reset()
			return fmt.Errorf("frame length %d exceeds %d: %w", length, p.maxPayload, ErrPayloadTooLarge)
		}
		p.received = 0
		if p.frame.Length == 0 {
			p.state = StatePayload
		} else {
			p.state = StateLengthLow
		}
	case StateLengthLow:
		p.frame.payload[p.received] = b
		p.received++
		if p.received == int(p.frame.Length) {
			p.state = StatePayload
		}
	case StatePayload:
		p.frame.ReceivedCRC = uint16(b) << 8
		p.state = StateCrcHigh
	case StateCrcHigh:
		p.frame.ReceivedCRC |= uint16(b)
		p.state = StateCrcLow
	case StateCrcLow:
		// An escaped marker in the end position is still not an end marker.
		p.Reset()
		return fmt.Errorf("expected end marker, got 0x%02X: %w", b, ErrFrameInvalid)
	default:
		state := p.state
		p.Reset()
		return fmt.Errorf("byte 0x%02X in state %s: %w", b, state, ErrFrameInvalid)
	}
	return nil
}

func (p *FrameParser) finish() error {
	p.state = StateEnd
	p.frame.CalculatedCRC = FrameCRC(p.frame.Payload())
	if p.frame.CalculatedCRC != p.frame.ReceivedCRC {
		calc, recv := p.frame.CalculatedCRC, p.frame.ReceivedCRC
		p.Reset()
		return fmt.Errorf("frame crc 0x%04X, calculated 0x%04X: %w", recv, calc, ErrCrcMismatch)
	}
	p.state = StateComplete
	return nil
}

// Complete reports whether a verified frame is ready.
func (p *FrameParser) Complete() bool {
	return p.state == StateComplete
}

// Frame returns the frame being accumulated. Its contents are only
// meaningful when Complete reports true.
func (p *FrameParser) Frame() *Frame {
	return &p.frame
}

// State returns the current parser state.
func (p *FrameParser) State() ParserState {
	return p.state
}

// BytesReceived returns the number of payload bytes accumulated so far in
// the current frame.
func (p *FrameParser) BytesReceived() int {
	return p.received
}

// BytesConsumed returns the number of wire bytes fed since creation.
func (p *FrameParser) BytesConsumed() uint64 {
	return p.consumed
}

// Reset discards any partial or complete frame and returns to StateIdle.
func (p *FrameParser) Reset() {
	p.state = StateIdle
	p.frame.Length = 0
	p.frame.CalculatedCRC = 0
	p.frame.ReceivedCRC = 0
	p.received = 0
	p.escapePending = false
}
