package session

import (
	"errors"
	"strings"
	"testing"

	"github.com/moffa90/go-vmboot/protocol"
)

func TestElapsed(t *testing.T) {
	tests := []struct {
		name  string
		now   uint32
		since uint32
		want  uint32
	}{
		{name: "simple", now: 1500, since: 1000, want: 500},
		{name: "same tick", now: 42, since: 42, want: 0},
		{name: "across wraparound", now: 0x00000010, since: 0xFFFFFFF0, want: 0x20},
		{name: "at boundary", now: 0, since: 0xFFFFFFFF, want: 1},
		{name: "long after wraparound", now: 29999, since: 0xFFFFFFFF, want: 30000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Elapsed(tt.now, tt.since); got != tt.want {
				t.Errorf("Elapsed(%d, %d) = %d, want %d", tt.now, tt.since, got, tt.want)
			}
		})
	}
}

func TestSessionTransitions(t *testing.T) {
	clk := NewManualClock(0)
	s := New(clk, 0)

	if s.Phase() != Idle {
		t.Fatalf("initial phase = %s, want idle", s.Phase())
	}
	if s.Timeout() != DefaultTimeout {
		t.Errorf("Timeout() = %d, want %d", s.Timeout(), DefaultTimeout)
	}

	var changes []string
	s.OnPhaseChange(func(from, to Phase) {
		changes = append(changes, from.String()+"->"+to.String())
	})

	if err := s.Require("prepare", HandshakeComplete); !errors.Is(err, protocol.ErrStateInvalid) {
		t.Errorf("Require() before handshake = %v, want ErrStateInvalid", err)
	}

	s.CompleteHandshake()
	if err := s.Require("prepare", HandshakeComplete); err != nil {
		t.Fatalf("Require() error: %v", err)
	}
	s.BeginTransfer(256)
	s.CompleteTransfer(256, 0x12345678)
	s.CompleteProgramming()

	want := []string{
		"idle->handshake_complete",
		"handshake_complete->ready_for_data",
		"ready_for_data->data_received",
		"data_received->programming_complete",
	}
	if strings.Join(changes, ",") != strings.Join(want, ",") {
		t.Errorf("phase changes = %v, want %v", changes, want)
	}
	if !s.DataReceived() || s.ActualLength() != 256 || s.DataCRC32() != 0x12345678 {
		t.Errorf("transfer state = %v %d 0x%08X", s.DataReceived(), s.ActualLength(), s.DataCRC32())
	}
}

func TestSessionHandshakeRecoversFromError(t *testing.T) {
	s := New(NewManualClock(0), 0)
	s.CompleteHandshake()
	s.BeginTransfer(10)
	s.Fail()

	if !s.Phase().IsError() {
		t.Fatalf("phase = %s, want error", s.Phase())
	}
	if err := s.Require("data", ReadyForData); err == nil {
		t.Error("Require() accepted data in error phase")
	}

	s.CompleteHandshake()
	if s.Phase() != HandshakeComplete {
		t.Errorf("phase = %s, want handshake_complete", s.Phase())
	}
	if s.ExpectedLength() != 0 {
		t.Errorf("ExpectedLength() = %d after handshake, want 0", s.ExpectedLength())
	}
}

func TestTransitionError(t *testing.T) {
	s := New(NewManualClock(0), 0)
	err := s.Require("verify", DataReceived)

	var te *TransitionError
	if !errors.As(err, &te) {
		t.Fatalf("error = %T, want *TransitionError", err)
	}
	if te.Have != Idle || te.Want != DataReceived {
		t.Errorf("TransitionError = %+v", te)
	}
	if got := err.Error(); got != "verify requires phase data_received, session is idle" {
		t.Errorf("Error() = %q", got)
	}
}

func TestSessionTimeout(t *testing.T) {
	tests := []struct {
		name    string
		start   uint32
		advance uint32
		timeout uint32
		want    bool
	}{
		{name: "fresh", start: 0, advance: 100, timeout: 30000, want: false},
		{name: "at limit", start: 0, advance: 30000, timeout: 30000, want: false},
		{name: "expired", start: 0, advance: 30001, timeout: 30000, want: true},
		{name: "wraparound within", start: 0xFFFFFF00, advance: 0x200, timeout: 1000, want: false},
		{name: "wraparound expired", start: 0xFFFFFF00, advance: 0x500, timeout: 1000, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clk := NewManualClock(tt.start)
			s := New(clk, tt.timeout)
			s.CompleteHandshake()
			s.Touch(1)

			clk.Advance(tt.advance)
			if got := s.IsTimedOut(); got != tt.want {
				t.Errorf("IsTimedOut() = %v, want %v (idle %d ms)", got, tt.want, s.IdleFor())
			}
		})
	}
}

func TestSessionIdleNeverTimesOut(t *testing.T) {
	clk := NewManualClock(0)
	s := New(clk, 1000)
	clk.Advance(5000)
	if s.IsTimedOut() {
		t.Error("IsTimedOut() = true for idle session")
	}
}

func TestSessionReset(t *testing.T) {
	clk := NewManualClock(0)
	s := New(clk, 1000)
	s.CompleteHandshake()
	s.BeginTransfer(64)
	s.CompleteTransfer(64, 1)

	clk.Advance(2000)
	if !s.IsTimedOut() {
		t.Fatal("expected timeout")
	}
	s.Reset()

	if s.Phase() != Idle || s.DataReceived() || s.ExpectedLength() != 0 || s.IsTimedOut() {
		t.Errorf("after Reset: phase=%s received=%v expected=%d", s.Phase(), s.DataReceived(), s.ExpectedLength())
	}
}

func TestTouchRecordsSequence(t *testing.T) {
	clk := NewManualClock(100)
	s := New(clk, 1000)
	s.CompleteHandshake()

	clk.Advance(900)
	s.Touch(77)
	clk.Advance(900)

	if s.Sequence() != 77 {
		t.Errorf("Sequence() = %d, want 77", s.Sequence())
	}
	if s.IsTimedOut() {
		t.Error("Touch() did not refresh activity")
	}
}

func TestPhaseString(t *testing.T) {
	if got := Phase(99).String(); got != "phase(99)" {
		t.Errorf("String() = %q, want phase(99)", got)
	}
}
