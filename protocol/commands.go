package protocol

import "fmt"

// BuildHandshakeCmd builds a framed Handshake request.
//
// Example:
//
//	frame, err := protocol.BuildHandshakeCmd(1, "flash_program,verify", protocol.MaxPayloadSize)
func BuildHandshakeCmd(seq uint32, capabilities string, maxPacketSize uint32) ([]byte, error) {
	return buildCmd(&Request{
		SequenceID: seq,
		Body: &HandshakeRequest{
			Capabilities:  capabilities,
			MaxPacketSize: maxPacketSize,
		},
	})
}

// BuildPrepareCmd builds a framed FlashProgram prepare request announcing an
// image of totalLength bytes.
func BuildPrepareCmd(seq uint32, totalLength uint32) ([]byte, error) {
	if totalLength == 0 {
		return nil, fmt.Errorf("total length must be non-zero: %w", ErrMessageEncode)
	}
	return buildCmd(&Request{
		SequenceID: seq,
		Body:       &FlashProgramRequest{TotalDataLength: totalLength},
	})
}

// BuildDataCmd builds a framed DataPacket carrying the whole image at offset
// zero. The CRC-32 of data is computed here.
func BuildDataCmd(seq uint32, data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("data cannot be empty: %w", ErrMessageEncode)
	}
	return buildCmd(&Request{
		SequenceID: seq,
		Body: &DataPacket{
			Offset:    0,
			Data:      data,
			DataCRC32: DataCRC32(data),
		},
	})
}

// BuildVerifyCmd builds a framed FlashProgram verify request.
func BuildVerifyCmd(seq uint32) ([]byte, error) {
	return buildCmd(&Request{
		SequenceID: seq,
		Body:       &FlashProgramRequest{VerifyAfterProgram: true},
	})
}

// buildCmd marshals a request and wraps it in a frame.
func buildCmd(req *Request) ([]byte, error) {
	payload, err := MarshalRequest(make([]byte, 0, 64), req)
	if err != nil {
		return nil, err
	}
	return EncodeFrame(payload)
}

// BuildResponseFrame marshals resp into dst and frames it into wire.
// Both buffers are reused, so the caller can keep them as fixed arenas.
func BuildResponseFrame(wire, dst []byte, resp *Response) ([]byte, error) {
	payload, err := MarshalResponse(dst[:0], resp)
	if err != nil {
		return wire[:0], err
	}
	return AppendFrame(wire[:0], payload)
}
