package session

import (
	"fmt"

	"github.com/moffa90/go-vmboot/protocol"
)

// DefaultTimeout is the session inactivity timeout in milliseconds.
const DefaultTimeout = 30000

// Phase is the protocol phase of a session.
type Phase uint8

// Session phases.
const (
	Idle Phase = iota
	HandshakeComplete
	ReadyForData
	DataReceived
	ProgrammingComplete
	Error
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case HandshakeComplete:
		return "handshake_complete"
	case ReadyForData:
		return "ready_for_data"
	case DataReceived:
		return "data_received"
	case ProgrammingComplete:
		return "programming_complete"
	case Error:
		return "error"
	default:
		return fmt.Sprintf("phase(%d)", uint8(p))
	}
}

// IsError reports whether the session needs a new handshake to recover.
func (p Phase) IsError() bool {
	return p == Error
}

// TransitionError reports a request that arrived in the wrong phase.
type TransitionError struct {
	Request string
	Want    Phase
	Have    Phase
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s requires phase %s, session is %s", e.Request, e.Want, e.Have)
}

// Unwrap lets errors.Is match protocol.ErrStateInvalid.
func (e *TransitionError) Unwrap() error {
	return protocol.ErrStateInvalid
}

// PhaseChangeFunc is called after every phase change.
type PhaseChangeFunc func(from, to Phase)

// Session tracks one handshake-through-verify programming exchange.
//
// Session is not safe for concurrent use.
type Session struct {
	clock    Clock
	timeout  uint32
	onChange PhaseChangeFunc

	phase        Phase
	sequence     uint32
	lastActivity uint32

	expectedLength uint32
	actualLength   uint32
	dataReceived   bool
	dataCRC32      uint32
}

// New creates an idle session. A zero timeout selects DefaultTimeout.
func New(clock Clock, timeoutMillis uint32) *Session {
	if timeoutMillis == 0 {
		timeoutMillis = DefaultTimeout
	}
	s := &Session{clock: clock, timeout: timeoutMillis}
	s.lastActivity = clock.NowMillis()
	return s
}

// OnPhaseChange registers fn to observe phase changes.
func (s *Session) OnPhaseChange(fn PhaseChangeFunc) {
	s.onChange = fn
}

// Phase returns the current phase.
func (s *Session) Phase() Phase { return s.phase }

// Sequence returns the sequence id of the last accepted request.
func (s *Session) Sequence() uint32 { return s.sequence }

// Timeout returns the inactivity timeout in milliseconds.
func (s *Session) Timeout() uint32 { return s.timeout }

// ExpectedLength returns the image length announced by prepare.
func (s *Session) ExpectedLength() uint32 { return s.expectedLength }

// ActualLength returns the length of the accepted data packet.
func (s *Session) ActualLength() uint32 { return s.actualLength }

// DataReceived reports whether a data packet has been accepted.
func (s *Session) DataReceived() bool { return s.dataReceived }

// DataCRC32 returns the CRC-32 of the accepted data packet.
func (s *Session) DataCRC32() uint32 { return s.dataCRC32 }

// Touch records activity now and remembers the request's sequence id.
func (s *Session) Touch(seq uint32) {
	s.lastActivity = s.clock.NowMillis()
	s.sequence = seq
}

// IdleFor returns the milliseconds since the last activity.
func (s *Session) IdleFor() uint32 {
	return Elapsed(s.clock.NowMillis(), s.lastActivity)
}

// IsTimedOut reports whether the session has been inactive longer than its
// timeout. An idle session never times out.
func (s *Session) IsTimedOut() bool {
	return s.phase != Idle && s.IdleFor() > s.timeout
}

// Reset returns to Idle and forgets the transfer.
func (s *Session) Reset() {
	s.expectedLength = 0
	s.actualLength = 0
	s.dataReceived = false
	s.dataCRC32 = 0
	s.lastActivity = s.clock.NowMillis()
	s.setPhase(Idle)
}

// Require returns a *TransitionError unless the session is in phase want.
func (s *Session) Require(request string, want Phase) error {
	if s.phase != want {
		return &TransitionError{Request: request, Want: want, Have: s.phase}
	}
	return nil
}

// CompleteHandshake accepts a handshake from any phase. Transfer state from
// a previous cycle is discarded.
func (s *Session) CompleteHandshake() {
	s.expectedLength = 0
	s.actualLength = 0
	s.dataReceived = false
	s.dataCRC32 = 0
	s.setPhase(HandshakeComplete)
}

// BeginTransfer records the announced length and moves to ReadyForData.
func (s *Session) BeginTransfer(expected uint32) {
	s.expectedLength = expected
	s.actualLength = 0
	s.dataReceived = false
	s.dataCRC32 = 0
	s.setPhase(ReadyForData)
}

// CompleteTransfer records the accepted data and moves to DataReceived.
func (s *Session) CompleteTransfer(actual, crc uint32) {
	s.actualLength = actual
	s.dataReceived = true
	s.dataCRC32 = crc
	s.setPhase(DataReceived)
}

// CompleteProgramming moves to ProgrammingComplete.
func (s *Session) CompleteProgramming() {
	s.setPhase(ProgrammingComplete)
}

// Fail moves to the Error phase. Only a handshake leaves it.
func (s *Session) Fail() {
	s.setPhase(Error)
}

func (s *Session) setPhase(to Phase) {
	from := s.phase
	s.phase = to
	if from != to && s.onChange != nil {
		s.onChange(from, to)
	}
}
