package protocol

import (
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"
)

// Envelope field numbers. The body variants come first so the leading byte
// of every encoded message identifies the variant.
const (
	handshakeField    protowire.Number = 1
	dataField         protowire.Number = 2
	flashProgramField protowire.Number = 3
	acknowledgeField  protowire.Number = 2
	flashResultField  protowire.Number = 3
	sequenceIDField   protowire.Number = 4
	resultField       protowire.Number = 5
)

// DataPacketOverhead is the worst-case encoding overhead of a DataPacket
// request around its data bytes.
const DataPacketOverhead = 30

// MaxImageSize is the largest image that fits a single DataPacket inside one
// frame.
const MaxImageSize = MaxPayloadSize - DataPacketOverhead

// skipField is returned by a field handler for fields it does not know.
const skipField = -1

// MarshalRequest appends the encoding of req to dst.
func MarshalRequest(dst []byte, req *Request) ([]byte, error) {
	start := len(dst)

	switch body := req.Body.(type) {
	case *HandshakeRequest:
		if len(body.Capabilities) > MaxCapabilitiesLen {
			return dst, encodeErr("handshake capabilities: %d bytes (max %d)", len(body.Capabilities), MaxCapabilitiesLen)
		}
		var sub []byte
		sub = appendString(sub, 1, body.Capabilities)
		sub = appendUint32(sub, 2, body.MaxPacketSize)
		dst = protowire.AppendTag(dst, handshakeField, protowire.BytesType)
		dst = protowire.AppendBytes(dst, sub)
	case *DataPacket:
		if len(body.Data) > MaxDataLen {
			return dst, encodeErr("data packet: %d bytes (max %d)", len(body.Data), MaxDataLen)
		}
		sub := make([]byte, 0, len(body.Data)+16)
		sub = appendUint32(sub, 1, body.Offset)
		sub = appendBytes(sub, 2, body.Data)
		sub = appendUint32(sub, 3, body.DataCRC32)
		dst = protowire.AppendTag(dst, dataField, protowire.BytesType)
		dst = protowire.AppendBytes(dst, sub)
	case *FlashProgramRequest:
		var sub []byte
		sub = appendUint32(sub, 1, body.TotalDataLength)
		sub = appendBool(sub, 2, body.VerifyAfterProgram)
		dst = protowire.AppendTag(dst, flashProgramField, protowire.BytesType)
		dst = protowire.AppendBytes(dst, sub)
	default:
		return dst, encodeErr("request has no body")
	}

	return finishEnvelope(dst, start, req.SequenceID, req.Result)
}

// MarshalResponse appends the encoding of resp to dst.
func MarshalResponse(dst []byte, resp *Response) ([]byte, error) {
	start := len(dst)

	switch body := resp.Body.(type) {
	case *HandshakeResponse:
		if len(body.Version) > MaxVersionLen {
			return dst, encodeErr("handshake version: %d bytes (max %d)", len(body.Version), MaxVersionLen)
		}
		if len(body.Capabilities) > MaxCapabilitiesLen {
			return dst, encodeErr("handshake capabilities: %d bytes (max %d)", len(body.Capabilities), MaxCapabilitiesLen)
		}
		var sub []byte
		sub = appendString(sub, 1, body.Version)
		sub = appendString(sub, 2, body.Capabilities)
		sub = appendUint32(sub, 3, body.FlashPageSize)
		sub = appendUint32(sub, 4, body.TargetAddress)
		dst = protowire.AppendTag(dst, handshakeField, protowire.BytesType)
		dst = protowire.AppendBytes(dst, sub)
	case *Acknowledgment:
		if len(body.Message) > MaxMessageLen {
			return dst, encodeErr("acknowledgment message: %d bytes (max %d)", len(body.Message), MaxMessageLen)
		}
		var sub []byte
		sub = appendBool(sub, 1, body.Success)
		sub = appendString(sub, 2, body.Message)
		dst = protowire.AppendTag(dst, acknowledgeField, protowire.BytesType)
		dst = protowire.AppendBytes(dst, sub)
	case *FlashResult:
		var sub []byte
		sub = appendUint32(sub, 1, body.BytesProgrammed)
		sub = appendUint32(sub, 2, body.ActualDataLength)
		sub = appendBytes(sub, 3, body.VerificationHash[:])
		dst = protowire.AppendTag(dst, flashResultField, protowire.BytesType)
		dst = protowire.AppendBytes(dst, sub)
	default:
		return dst, encodeErr("response has no body")
	}

	return finishEnvelope(dst, start, resp.SequenceID, resp.Result)
}

func finishEnvelope(dst []byte, start int, seq uint32, result Result) ([]byte, error) {
	dst = appendUint32(dst, sequenceIDField, seq)
	dst = appendUint32(dst, resultField, uint32(result))
	if n := len(dst) - start; n > MaxPayloadSize {
		return dst[:start], encodeErr("message is %d bytes (max %d)", n, MaxPayloadSize)
	}
	return dst, nil
}

// UnmarshalRequest decodes a request. DataPacket.Data aliases b.
func UnmarshalRequest(b []byte) (*Request, error) {
	req := &Request{}
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case handshakeField:
			sub, n, err := consumeMessage(num, typ, b)
			if err != nil {
				return 0, err
			}
			body, err := unmarshalHandshakeRequest(sub)
			req.Body = body
			return n, err
		case dataField:
			sub, n, err := consumeMessage(num, typ, b)
			if err != nil {
				return 0, err
			}
			body, err := unmarshalDataPacket(sub)
			req.Body = body
			return n, err
		case flashProgramField:
			sub, n, err := consumeMessage(num, typ, b)
			if err != nil {
				return 0, err
			}
			body, err := unmarshalFlashProgram(sub)
			req.Body = body
			return n, err
		case sequenceIDField:
			v, n, err := consumeUint32(num, typ, b)
			req.SequenceID = v
			return n, err
		case resultField:
			v, n, err := consumeUint32(num, typ, b)
			req.Result = Result(v)
			return n, err
		}
		return skipField, nil
	})
	if err != nil {
		return nil, err
	}
	if req.Body == nil {
		return nil, decodeErr("request has no known body")
	}
	return req, nil
}

// UnmarshalResponse decodes a response.
func UnmarshalResponse(b []byte) (*Response, error) {
	resp := &Response{}
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case handshakeField:
			sub, n, err := consumeMessage(num, typ, b)
			if err != nil {
				return 0, err
			}
			body, err := unmarshalHandshakeResponse(sub)
			resp.Body = body
			return n, err
		case acknowledgeField:
			sub, n, err := consumeMessage(num, typ, b)
			if err != nil {
				return 0, err
			}
			body, err := unmarshalAcknowledgment(sub)
			resp.Body = body
			return n, err
		case flashResultField:
			sub, n, err := consumeMessage(num, typ, b)
			if err != nil {
				return 0, err
			}
			body, err := unmarshalFlashResult(sub)
			resp.Body = body
			return n, err
		case sequenceIDField:
			v, n, err := consumeUint32(num, typ, b)
			resp.SequenceID = v
			return n, err
		case resultField:
			v, n, err := consumeUint32(num, typ, b)
			resp.Result = Result(v)
			return n, err
		}
		return skipField, nil
	})
	if err != nil {
		return nil, err
	}
	if resp.Body == nil {
		return nil, decodeErr("response has no known body")
	}
	return resp, nil
}

func unmarshalHandshakeRequest(b []byte) (*HandshakeRequest, error) {
	m := &HandshakeRequest{}
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			v, n, err := consumeString(num, typ, b, MaxCapabilitiesLen)
			m.Capabilities = v
			return n, err
		case 2:
			v, n, err := consumeUint32(num, typ, b)
			m.MaxPacketSize = v
			return n, err
		}
		return skipField, nil
	})
	return m, err
}

func unmarshalDataPacket(b []byte) (*DataPacket, error) {
	m := &DataPacket{}
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			v, n, err := consumeUint32(num, typ, b)
			m.Offset = v
			return n, err
		case 2:
			v, n, err := consumeBytes(num, typ, b, MaxDataLen)
			m.Data = v
			return n, err
		case 3:
			v, n, err := consumeUint32(num, typ, b)
			m.DataCRC32 = v
			return n, err
		}
		return skipField, nil
	})
	return m, err
}

func unmarshalFlashProgram(b []byte) (*FlashProgramRequest, error) {
	m := &FlashProgramRequest{}
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			v, n, err := consumeUint32(num, typ, b)
			m.TotalDataLength = v
			return n, err
		case 2:
			v, n, err := consumeBool(num, typ, b)
			m.VerifyAfterProgram = v
			return n, err
		}
		return skipField, nil
	})
	return m, err
}

func unmarshalHandshakeResponse(b []byte) (*HandshakeResponse, error) {
	m := &HandshakeResponse{}
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			v, n, err := consumeString(num, typ, b, MaxVersionLen)
			m.Version = v
			return n, err
		case 2:
			v, n, err := consumeString(num, typ, b, MaxCapabilitiesLen)
			m.Capabilities = v
			return n, err
		case 3:
			v, n, err := consumeUint32(num, typ, b)
			m.FlashPageSize = v
			return n, err
		case 4:
			v, n, err := consumeUint32(num, typ, b)
			m.TargetAddress = v
			return n, err
		}
		return skipField, nil
	})
	return m, err
}

func unmarshalAcknowledgment(b []byte) (*Acknowledgment, error) {
	m := &Acknowledgment{}
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			v, n, err := consumeBool(num, typ, b)
			m.Success = v
			return n, err
		case 2:
			v, n, err := consumeString(num, typ, b, MaxMessageLen)
			m.Message = v
			return n, err
		}
		return skipField, nil
	})
	return m, err
}

func unmarshalFlashResult(b []byte) (*FlashResult, error) {
	m := &FlashResult{}
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			v, n, err := consumeUint32(num, typ, b)
			m.BytesProgrammed = v
			return n, err
		case 2:
			v, n, err := consumeUint32(num, typ, b)
			m.ActualDataLength = v
			return n, err
		case 3:
			v, n, err := consumeBytes(num, typ, b, VerificationHashSize)
			if err == nil && len(v) != VerificationHashSize {
				return 0, decodeErr("field %d: verification hash is %d bytes, want %d", num, len(v), VerificationHashSize)
			}
			copy(m.VerificationHash[:], v)
			return n, err
		}
		return skipField, nil
	})
	return m, err
}

// walkFields calls fn for every field in b. fn returns the number of bytes
// it consumed after the tag, or skipField to have the value skipped.
func walkFields(b []byte, fn func(protowire.Number, protowire.Type, []byte) (int, error)) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return decodeErr("tag: %v", protowire.ParseError(n))
		}
		b = b[n:]

		m, err := fn(num, typ, b)
		if err != nil {
			return err
		}
		if m == skipField {
			m = protowire.ConsumeFieldValue(num, typ, b)
			if m < 0 {
				return decodeErr("field %d: %v", num, protowire.ParseError(m))
			}
		}
		b = b[m:]
	}
	return nil
}

func consumeUint32(num protowire.Number, typ protowire.Type, b []byte) (uint32, int, error) {
	if typ != protowire.VarintType {
		return 0, 0, decodeErr("field %d: wire type %d, want varint", num, typ)
	}
	v, n := protowire.ConsumeVarint(b)
	if n < 0 {
		return 0, 0, decodeErr("field %d: %v", num, protowire.ParseError(n))
	}
	if v > math.MaxUint32 {
		return 0, 0, decodeErr("field %d: value %d overflows uint32", num, v)
	}
	return uint32(v), n, nil
}

func consumeBool(num protowire.Number, typ protowire.Type, b []byte) (bool, int, error) {
	if typ != protowire.VarintType {
		return false, 0, decodeErr("field %d: wire type %d, want varint", num, typ)
	}
	v, n := protowire.ConsumeVarint(b)
	if n < 0 {
		return false, 0, decodeErr("field %d: %v", num, protowire.ParseError(n))
	}
	return protowire.DecodeBool(v), n, nil
}

func consumeBytes(num protowire.Number, typ protowire.Type, b []byte, limit int) ([]byte, int, error) {
	if typ != protowire.BytesType {
		return nil, 0, decodeErr("field %d: wire type %d, want bytes", num, typ)
	}
	v, n := protowire.ConsumeBytes(b)
	if n < 0 {
		return nil, 0, decodeErr("field %d: %v", num, protowire.ParseError(n))
	}
	if len(v) > limit {
		return nil, 0, decodeErr("field %d: %d bytes exceeds %d", num, len(v), limit)
	}
	return v, n, nil
}

func consumeString(num protowire.Number, typ protowire.Type, b []byte, limit int) (string, int, error) {
	v, n, err := consumeBytes(num, typ, b, limit)
	return string(v), n, err
}

func consumeMessage(num protowire.Number, typ protowire.Type, b []byte) ([]byte, int, error) {
	return consumeBytes(num, typ, b, MaxPayloadSize)
}

func appendUint32(b []byte, num protowire.Number, v uint32) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, uint64(v))
}

func appendBool(b []byte, num protowire.Number, v bool) []byte {
	if !v {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, protowire.EncodeBool(v))
}

func appendBytes(b []byte, num protowire.Number, v []byte) []byte {
	if len(v) == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

func appendString(b []byte, num protowire.Number, v string) []byte {
	if v == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, v)
}

func decodeErr(format string, args ...interface{}) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrMessageDecode)
}

func encodeErr(format string, args ...interface{}) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrMessageEncode)
}
