package protocol

import (
	"encoding/binary"
	"fmt"
)

// Frame is one CRC-protected unit received from the wire.
// Payload storage is fixed so the parser never allocates.
type Frame struct {
	payload [MaxPayloadSize]byte

	// Length is the unescaped payload length from the LEN field
	Length uint16

	// CalculatedCRC is computed over LEN ‖ PAYLOAD when END arrives
	CalculatedCRC uint16

	// ReceivedCRC is the value carried in the CRC field
	ReceivedCRC uint16
}

// Payload returns the unescaped payload. The slice aliases the frame and is
// only valid until the parser is reset.
func (f *Frame) Payload() []byte {
	return f.payload[:f.Length]
}

// AppendFrame appends the escaped wire encoding of payload to dst:
//
//	0x7E | LEN_HI | LEN_LO | PAYLOAD | CRC_HI | CRC_LO | 0x7F
//
// LEN, PAYLOAD and CRC bytes equal to 0x7E, 0x7F or 0x7D are escaped as
// 0x7D followed by the byte XOR 0x20.
func AppendFrame(dst, payload []byte) ([]byte, error) {
	if len(payload) > MaxPayloadSize {
		return dst, fmt.Errorf("encode frame: %d bytes (max %d): %w", len(payload), MaxPayloadSize, ErrPayloadTooLarge)
	}

	var field [2]byte
	dst = append(dst, StartMarker)

	binary.BigEndian.PutUint16(field[:], uint16(len(payload)))
	dst = appendEscaped(dst, field[:])
	dst = appendEscaped(dst, payload)

	binary.BigEndian.PutUint16(field[:], FrameCRC(payload))
	dst = appendEscaped(dst, field[:])

	return append(dst, EndMarker), nil
}

// EncodeFrame returns the wire encoding of payload in a new slice.
func EncodeFrame(payload []byte) ([]byte, error) {
	return AppendFrame(make([]byte, 0, FrameOverhead+2*len(payload)), payload)
}

// DecodeFrame runs a fresh parser over wire and returns a copy of the first
// complete payload. Frame-level errors are returned as they occur.
func DecodeFrame(wire []byte) ([]byte, error) {
	p := NewFrameParser(MaxPayloadSize, 0)
	for _, b := range wire {
		if err := p.Feed(b, 0); err != nil {
			return nil, err
		}
		if p.Complete() {
			out := make([]byte, p.Frame().Length)
			copy(out, p.Frame().Payload())
			return out, nil
		}
	}
	return nil, fmt.Errorf("decode frame: incomplete after %d bytes: %w", len(wire), ErrFrameInvalid)
}

func appendEscaped(dst, src []byte) []byte {
	for _, b := range src {
		if needsEscape(b) {
			dst = append(dst, EscapeMarker, b^EscapeXOR)
			continue
		}
		dst = append(dst, b)
	}
	return dst
}

func needsEscape(b byte) bool {
	return b == StartMarker || b == EndMarker || b == EscapeMarker
}

// unescape maps the byte following an escape marker back to its original
// value. Only the three reserved bytes have escaped forms.
func unescape(b byte) (byte, bool) {
	orig := b ^ EscapeXOR
	return orig, needsEscape(orig)
}
