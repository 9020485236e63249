package protocol

import (
	"bytes"
	"errors"
	"testing"
)

// feedAll feeds wire bytes at a fixed time and returns the first error.
func feedAll(p *FrameParser, wire []byte, now uint32) error {
	for _, b := range wire {
		if err := p.Feed(b, now); err != nil {
			return err
		}
	}
	return nil
}

func mustFrame(t *testing.T, payload []byte) []byte {
	t.Helper()
	frame, err := EncodeFrame(payload)
	if err != nil {
		t.Fatalf("EncodeFrame() error: %v", err)
	}
	return frame
}

func TestFrameParserErrors(t *testing.T) {
	tests := []struct {
		name       string
		maxPayload int
		wire       []byte
		wantErr    error
	}{
		{
			name:    "invalid escape follower",
			wire:    []byte{0x7E, 0x00, 0x01, 0x7D, 0x41},
			wantErr: ErrFrameInvalid,
		},
		{
			name:    "end marker in length",
			wire:    []byte{0x7E, 0x00, 0x7F},
			wantErr: ErrFrameInvalid,
		},
		{
			name:    "end marker before crc",
			wire:    []byte{0x7E, 0x00, 0x01, 0x42, 0x7F},
			wantErr: ErrFrameInvalid,
		},
		{
			name:    "missing end marker",
			wire:    []byte{0x7E, 0x00, 0x00, 0x00, 0x00, 0x00},
			wantErr: ErrFrameInvalid,
		},
		{
			name:    "length over protocol maximum",
			wire:    []byte{0x7E, 0x04, 0x01},
			wantErr: ErrPayloadTooLarge,
		},
		{
			name:       "length over configured maximum",
			maxPayload: 16,
			wire:       []byte{0x7E, 0x00, 0x11},
			wantErr:    ErrPayloadTooLarge,
		},
		{
			name:    "crc mismatch",
			wire:    rawFrame(2, []byte{0x01, 0x02}, 0xBEEF),
			wantErr: ErrCrcMismatch,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewFrameParser(tt.maxPayload, 0)
			err := feedAll(p, tt.wire, 0)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("error = %v, want %v", err, tt.wantErr)
			}
			if p.State() != StateIdle {
				t.Errorf("state after error = %s, want idle", p.State())
			}
		})
	}
}

func TestFrameParserIgnoresNoiseWhileIdle(t *testing.T) {
	p := NewFrameParser(MaxPayloadSize, 0)
	wire := append([]byte{0x00, 0x7F, 0x7D, 0xFF}, mustFrame(t, []byte("ok"))...)

	if err := feedAll(p, wire, 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !p.Complete() {
		t.Fatalf("state = %s, want complete", p.State())
	}
	if !bytes.Equal(p.Frame().Payload(), []byte("ok")) {
		t.Errorf("payload = %q, want %q", p.Frame().Payload(), "ok")
	}
	if p.BytesConsumed() != uint64(len(wire)) {
		t.Errorf("BytesConsumed() = %d, want %d", p.BytesConsumed(), len(wire))
	}
}

func TestFrameParserStartResyncs(t *testing.T) {
	p := NewFrameParser(MaxPayloadSize, 0)
	// Abandoned frame header followed by a complete frame.
	wire := append([]byte{0x7E, 0x00}, mustFrame(t, []byte{0x10, 0x20})...)

	if err := feedAll(p, wire, 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !p.Complete() {
		t.Fatalf("state = %s, want complete", p.State())
	}
	if !bytes.Equal(p.Frame().Payload(), []byte{0x10, 0x20}) {
		t.Errorf("payload = % X, want 10 20", p.Frame().Payload())
	}
}

func TestFrameParserDanglingEscapeResyncs(t *testing.T) {
	p := NewFrameParser(MaxPayloadSize, 0)
	// Frame cut off right after an escape marker, then a good frame.
	truncated := []byte{0x7E, 0x00, 0x05, 'a', 0x7D}
	if err := feedAll(p, truncated, 0); err != nil {
		t.Fatalf("unexpected error on truncated frame: %v", err)
	}

	frame := mustFrame(t, []byte("hello"))
	if err := p.Feed(frame[0], 0); !errors.Is(err, ErrFrameInvalid) {
		t.Fatalf("error = %v, want ErrFrameInvalid", err)
	}
	if p.State() != StateSync {
		t.Fatalf("state = %s, want sync", p.State())
	}
	if err := feedAll(p, frame[1:], 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !p.Complete() {
		t.Fatalf("state = %s, want complete", p.State())
	}
	if !bytes.Equal(p.Frame().Payload(), []byte("hello")) {
		t.Errorf("payload = % X, want %q", p.Frame().Payload(), "hello")
	}
}

func TestFrameParserRawStartInPayloadIsData(t *testing.T) {
	payload := []byte{0x01, 0x7E, 0x02}
	crc := FrameCRC(payload)
	wire := []byte{0x7E, 0x00, 0x03, 0x01, 0x7E, 0x02}
	wire = appendEscaped(wire, []byte{byte(crc >> 8), byte(crc)})
	wire = append(wire, 0x7F)

	p := NewFrameParser(MaxPayloadSize, 0)
	if err := feedAll(p, wire, 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !p.Complete() {
		t.Fatalf("state = %s, want complete", p.State())
	}
	if !bytes.Equal(p.Frame().Payload(), payload) {
		t.Errorf("payload = % X, want % X", p.Frame().Payload(), payload)
	}
}

func TestFrameParserStates(t *testing.T) {
	p := NewFrameParser(MaxPayloadSize, 0)

	// Pick a one-byte payload whose frame needs no escaping.
	var wire []byte
	for v := 0; v < 0x100 && len(wire) != 7; v++ {
		wire = mustFrame(t, []byte{byte(v)})
	}
	want := []ParserState{
		StateSync,
		StateLengthHigh,
		StateLengthLow,
		StatePayload,
		StateCrcHigh,
		StateCrcLow,
		StateComplete,
	}
	if len(wire) != len(want) {
		t.Fatalf("no unescaped one-byte frame found, last was % X", wire)
	}

	for i, b := range wire {
		if err := p.Feed(b, 0); err != nil {
			t.Fatalf("byte %d: unexpected error: %v", i, err)
		}
		if p.State() != want[i] {
			t.Errorf("after byte %d state = %s, want %s", i, p.State(), want[i])
		}
	}
}

func TestFrameParserZeroLength(t *testing.T) {
	p := NewFrameParser(MaxPayloadSize, 0)
	if err := feedAll(p, []byte{0x7E, 0x00, 0x00}, 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.State() != StatePayload {
		t.Errorf("state = %s, want payload", p.State())
	}
	if err := feedAll(p, []byte{0x00, 0x00, 0x7F}, 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !p.Complete() || p.Frame().Length != 0 {
		t.Errorf("state = %s length = %d, want complete empty frame", p.State(), p.Frame().Length)
	}
}

func TestFrameParserCompleteRequiresReset(t *testing.T) {
	p := NewFrameParser(MaxPayloadSize, 0)
	if err := feedAll(p, mustFrame(t, []byte{0x01}), 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	err := p.Feed(0x7E, 0)
	if !errors.Is(err, ErrStateInvalid) {
		t.Errorf("error = %v, want ErrStateInvalid", err)
	}
	if !p.Complete() {
		t.Error("frame discarded by a byte fed while complete")
	}

	p.Reset()
	if err := feedAll(p, mustFrame(t, []byte{0x02}), 0); err != nil {
		t.Fatalf("unexpected error after reset: %v", err)
	}
	if !bytes.Equal(p.Frame().Payload(), []byte{0x02}) {
		t.Errorf("payload = % X, want 02", p.Frame().Payload())
	}
}

func TestFrameParserTimeout(t *testing.T) {
	t.Run("abandoned frame", func(t *testing.T) {
		p := NewFrameParser(MaxPayloadSize, 500)
		if err := feedAll(p, []byte{0x7E, 0x00, 0x04, 0x01}, 1000); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		err := p.Feed(0x02, 1501)
		if !errors.Is(err, ErrTimeout) {
			t.Fatalf("error = %v, want ErrTimeout", err)
		}
		if p.State() != StateIdle {
			t.Errorf("state = %s, want idle", p.State())
		}
	})

	t.Run("late byte starts a new frame", func(t *testing.T) {
		p := NewFrameParser(MaxPayloadSize, 500)
		if err := feedAll(p, []byte{0x7E, 0x00}, 0); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		frame := mustFrame(t, []byte{0xAA})
		if err := p.Feed(frame[0], 800); !errors.Is(err, ErrTimeout) {
			t.Fatalf("error = %v, want ErrTimeout", err)
		}
		if p.State() != StateSync {
			t.Fatalf("state = %s, want sync", p.State())
		}
		if err := feedAll(p, frame[1:], 800); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !p.Complete() {
			t.Errorf("state = %s, want complete", p.State())
		}
	})

	t.Run("within window", func(t *testing.T) {
		p := NewFrameParser(MaxPayloadSize, 500)
		frame := mustFrame(t, []byte{0x01, 0x02})
		now := uint32(0)
		for _, b := range frame {
			if err := p.Feed(b, now); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			now += 500
		}
		if !p.Complete() {
			t.Errorf("state = %s, want complete", p.State())
		}
	})

	t.Run("tick wraparound", func(t *testing.T) {
		p := NewFrameParser(MaxPayloadSize, 500)
		frame := mustFrame(t, []byte{0x01})
		if err := feedAll(p, frame[:3], 0xFFFFFF00); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if err := feedAll(p, frame[3:], 0x00000010); err != nil {
			t.Fatalf("unexpected error across wraparound: %v", err)
		}
		if !p.Complete() {
			t.Errorf("state = %s, want complete", p.State())
		}
	})

	t.Run("idle never times out", func(t *testing.T) {
		p := NewFrameParser(MaxPayloadSize, 500)
		if err := p.Feed(0x00, 0); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if err := p.Feed(0x00, 100000); err != nil {
			t.Errorf("unexpected error while idle: %v", err)
		}
	})
}

func TestFrameParserStream(t *testing.T) {
	p := NewFrameParser(MaxPayloadSize, 0)
	payloads := [][]byte{
		{0x01},
		{0x7E, 0x7D},
		bytes.Repeat([]byte{0xA5}, 300),
	}

	var wire []byte
	for _, pl := range payloads {
		wire = append(wire, mustFrame(t, pl)...)
	}

	var got [][]byte
	for _, b := range wire {
		if err := p.Feed(b, 0); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if p.Complete() {
			got = append(got, append([]byte(nil), p.Frame().Payload()...))
			p.Reset()
		}
	}

	if len(got) != len(payloads) {
		t.Fatalf("decoded %d frames, want %d", len(got), len(payloads))
	}
	for i := range payloads {
		if !bytes.Equal(got[i], payloads[i]) {
			t.Errorf("frame %d = % X, want % X", i, got[i], payloads[i])
		}
	}
}
