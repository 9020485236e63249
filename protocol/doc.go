// Package protocol implements the vmboot serial bootloader wire protocol.
//
// This package provides the frame codec, the message codec, and helpers to
// build request frames and parse response payloads.
//
// # Frame Format
//
// Every message travels in a byte-stuffed frame:
//
//	[0x7E][LEN_HI][LEN_LO][PAYLOAD...][CRC_HI][CRC_LO][0x7F]
//
// Where:
//   - LEN = 16-bit unescaped payload length (big-endian), at most 1024
//   - CRC = CRC-16/XMODEM (poly 0x1021, init 0x0000) over LEN ‖ PAYLOAD (big-endian)
//   - 0x7E, 0x7F and 0x7D inside LEN, PAYLOAD or CRC are sent as 0x7D, byte^0x20
//
// Use AppendFrame or EncodeFrame to produce frames and FrameParser to decode
// them one byte at a time:
//
//	p := protocol.NewFrameParser(protocol.MaxPayloadSize, 500)
//	for _, b := range wire {
//	    if err := p.Feed(b, nowMillis()); err != nil {
//	        continue // parser already reset
//	    }
//	    if p.Complete() {
//	        handle(p.Frame().Payload())
//	        p.Reset()
//	    }
//	}
//
// # Messages
//
// Frame payloads carry protocol buffer encoded envelopes. Requests are one
// of HandshakeRequest, DataPacket or FlashProgramRequest; responses are one
// of HandshakeResponse, Acknowledgment or FlashResult. Every envelope also
// carries a sequence id, echoed by the response, and a Result code.
//
// # Command Builders
//
// Hosts use the Build* functions to create request frames:
//
//	frame, err := protocol.BuildHandshakeCmd(seq, "flash_program,verify", 1024)
//	frame, err := protocol.BuildDataCmd(seq, image)
//
// and ParseResponse plus the typed Parse* helpers on the way back:
//
//	resp, err := protocol.ParseResponse(payload, "handshake", seq)
//	info, err := protocol.ParseHandshakeResponse(resp)
//
// # Error Handling
//
// Codec failures wrap the sentinel errors ErrFrameInvalid, ErrCrcMismatch,
// ErrPayloadTooLarge, ErrTimeout, ErrMessageDecode and ErrMessageEncode.
// ResultFor maps any error to the Result code reported on the wire, and a
// non-success response is surfaced to hosts as a *ResultError:
//
//	// err.Error() returns: "data failed: data corruption (3): data crc mismatch"
package protocol
