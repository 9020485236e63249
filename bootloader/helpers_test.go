package bootloader

import (
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/moffa90/go-vmboot/protocol"
	"github.com/moffa90/go-vmboot/transport"
)

// MockLogger records log messages for assertions.
type MockLogger struct {
	mu       sync.Mutex
	messages []string
}

func (l *MockLogger) record(level, msg string, kv ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, fmt.Sprintf("%s: %s %v", level, msg, kv))
}

func (l *MockLogger) Debug(msg string, kv ...interface{}) { l.record("DEBUG", msg, kv...) }
func (l *MockLogger) Info(msg string, kv ...interface{})  { l.record("INFO", msg, kv...) }
func (l *MockLogger) Error(msg string, kv ...interface{}) { l.record("ERROR", msg, kv...) }

func (l *MockLogger) Contains(substr string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, m := range l.messages {
		if strings.Contains(m, substr) {
			return true
		}
	}
	return false
}

// pattern returns n bytes counting up from zero.
func pattern(n int) []byte {
	data := make([]byte, n)
	for i := range data {
		data[i] = byte(i)
	}
	return data
}

func handshakeReq() *protocol.HandshakeRequest {
	return &protocol.HandshakeRequest{Capabilities: "flash_program,verify", MaxPacketSize: 1024}
}

func prepareReq(n uint32) *protocol.FlashProgramRequest {
	return &protocol.FlashProgramRequest{TotalDataLength: n}
}

func dataReq(data []byte) *protocol.DataPacket {
	return &protocol.DataPacket{Data: data, DataCRC32: protocol.DataCRC32(data)}
}

func verifyReq() *protocol.FlashProgramRequest {
	return &protocol.FlashProgramRequest{VerifyAfterProgram: true}
}

// requestFrame encodes a request into wire bytes.
func requestFrame(t *testing.T, seq uint32, body protocol.RequestBody) []byte {
	t.Helper()
	payload, err := protocol.MarshalRequest(nil, &protocol.Request{SequenceID: seq, Body: body})
	if err != nil {
		t.Fatalf("MarshalRequest() error: %v", err)
	}
	frame, err := protocol.EncodeFrame(payload)
	if err != nil {
		t.Fatalf("EncodeFrame() error: %v", err)
	}
	return frame
}

// readResponses decodes every frame written to buf since the last call.
func readResponses(t *testing.T, buf *transport.Buffer) []*protocol.Response {
	t.Helper()
	wire := buf.Written()
	p := protocol.NewFrameParser(protocol.MaxPayloadSize, 0)

	var out []*protocol.Response
	for _, b := range wire {
		if err := p.Feed(b, 0); err != nil {
			t.Fatalf("response frame error: %v", err)
		}
		if p.Complete() {
			resp, err := protocol.UnmarshalResponse(p.Frame().Payload())
			if err != nil {
				t.Fatalf("UnmarshalResponse() error: %v", err)
			}
			out = append(out, resp)
			p.Reset()
		}
	}
	return out
}
