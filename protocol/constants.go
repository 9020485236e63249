package protocol

// ProtocolVersion is the wire protocol generation implemented by this library.
const ProtocolVersion = "1.0"

// Frame structure constants.
const (
	// StartMarker opens every frame (0x7E)
	StartMarker = 0x7E

	// EndMarker closes every frame (0x7F)
	EndMarker = 0x7F

	// EscapeMarker precedes an escaped byte (0x7D)
	EscapeMarker = 0x7D

	// EscapeXOR maps a reserved byte to its escaped form and back
	EscapeXOR = 0x20

	// FrameOverhead is the number of unescaped non-payload bytes in a frame:
	// START(1) + LEN(2) + CRC(2) + END(1)
	FrameOverhead = 6

	// MaxPayloadSize is the largest unescaped payload a frame may carry
	MaxPayloadSize = 1024

	// MaxEncodedFrameSize bounds a fully escaped frame: every LEN, PAYLOAD and
	// CRC byte may double, the two markers never do.
	MaxEncodedFrameSize = 2 + 2*(2+MaxPayloadSize+2)
)

// Field bounds of the message schema.
const (
	// MaxCapabilitiesLen bounds capability strings in handshakes
	MaxCapabilitiesLen = 128

	// MaxVersionLen bounds the bootloader version string
	MaxVersionLen = 32

	// MaxMessageLen bounds acknowledgment messages
	MaxMessageLen = 128

	// MaxDataLen bounds the data carried by a single DataPacket
	MaxDataLen = MaxPayloadSize

	// VerificationHashSize is the size of the digest in a FlashResult
	VerificationHashSize = 4
)

// Capability tokens exchanged during the handshake.
const (
	// CapabilityFlashProgram must be requested by every host
	CapabilityFlashProgram = "flash_program"

	// CapabilityVerify advertises read-back verification
	CapabilityVerify = "verify"
)

// Result is the outcome code carried by every request and response.
type Result uint32

// Result codes.
const (
	ResultSuccess                 Result = 0
	ResultErrorCommunication      Result = 1
	ResultErrorFlashOperation     Result = 2
	ResultErrorDataCorruption     Result = 3
	ResultErrorResourceExhaustion Result = 4
	ResultErrorInvalidRequest     Result = 5
)
