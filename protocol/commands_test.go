package protocol

import (
	"bytes"
	"errors"
	"testing"
)

func decodeCmd(t *testing.T, frame []byte) *Request {
	t.Helper()
	if frame[0] != StartMarker {
		t.Errorf("START = 0x%02X, want 0x%02X", frame[0], StartMarker)
	}
	if frame[len(frame)-1] != EndMarker {
		t.Errorf("END = 0x%02X, want 0x%02X", frame[len(frame)-1], EndMarker)
	}
	payload, err := DecodeFrame(frame)
	if err != nil {
		t.Fatalf("DecodeFrame() error: %v", err)
	}
	req, err := UnmarshalRequest(payload)
	if err != nil {
		t.Fatalf("UnmarshalRequest() error: %v", err)
	}
	return req
}

func TestBuildHandshakeCmd(t *testing.T) {
	frame, err := BuildHandshakeCmd(1, "flash_program,verify", 1024)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	req := decodeCmd(t, frame)
	if req.SequenceID != 1 {
		t.Errorf("SequenceID = %d, want 1", req.SequenceID)
	}
	body, ok := req.Body.(*HandshakeRequest)
	if !ok {
		t.Fatalf("body = %T, want *HandshakeRequest", req.Body)
	}
	if body.Capabilities != "flash_program,verify" || body.MaxPacketSize != 1024 {
		t.Errorf("body = %+v", body)
	}
}

func TestBuildPrepareCmd(t *testing.T) {
	tests := []struct {
		name    string
		length  uint32
		wantErr bool
	}{
		{name: "valid length", length: 256},
		{name: "zero length", length: 0, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame, err := BuildPrepareCmd(2, tt.length)
			if tt.wantErr {
				if !errors.Is(err, ErrMessageEncode) {
					t.Errorf("error = %v, want ErrMessageEncode", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			body, ok := decodeCmd(t, frame).Body.(*FlashProgramRequest)
			if !ok {
				t.Fatal("body is not a FlashProgramRequest")
			}
			if body.TotalDataLength != tt.length || body.VerifyAfterProgram {
				t.Errorf("body = %+v, want prepare of %d", body, tt.length)
			}
		})
	}
}

func TestBuildDataCmd(t *testing.T) {
	data := bytes.Repeat([]byte{0x7E, 0x7D, 0x7F, 0x00}, 64)
	frame, err := BuildDataCmd(3, data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	body, ok := decodeCmd(t, frame).Body.(*DataPacket)
	if !ok {
		t.Fatal("body is not a DataPacket")
	}
	if body.Offset != 0 {
		t.Errorf("Offset = %d, want 0", body.Offset)
	}
	if !bytes.Equal(body.Data, data) {
		t.Error("data mismatch")
	}
	if body.DataCRC32 != DataCRC32(data) {
		t.Errorf("DataCRC32 = 0x%08X, want 0x%08X", body.DataCRC32, DataCRC32(data))
	}

	if _, err := BuildDataCmd(4, nil); err == nil {
		t.Error("expected error for empty data")
	}
	if _, err := BuildDataCmd(5, make([]byte, MaxImageSize+DataPacketOverhead)); !errors.Is(err, ErrMessageEncode) {
		t.Errorf("error = %v, want ErrMessageEncode for oversized image", err)
	}
}

func TestBuildVerifyCmd(t *testing.T) {
	frame, err := BuildVerifyCmd(6)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	body, ok := decodeCmd(t, frame).Body.(*FlashProgramRequest)
	if !ok || !body.VerifyAfterProgram {
		t.Errorf("body = %+v, want verify request", body)
	}
}

func TestBuildResponseFrame(t *testing.T) {
	wire := make([]byte, 0, MaxEncodedFrameSize)
	scratch := make([]byte, 0, MaxPayloadSize)

	frame, err := BuildResponseFrame(wire, scratch, &Response{
		SequenceID: 11,
		Body:       &Acknowledgment{Success: true},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	payload, err := DecodeFrame(frame)
	if err != nil {
		t.Fatalf("DecodeFrame() error: %v", err)
	}
	resp, err := UnmarshalResponse(payload)
	if err != nil {
		t.Fatalf("UnmarshalResponse() error: %v", err)
	}
	if resp.SequenceID != 11 {
		t.Errorf("SequenceID = %d, want 11", resp.SequenceID)
	}
}
