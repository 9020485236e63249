package protocol

// Request is a message sent by the host.
type Request struct {
	// SequenceID is echoed in the matching response
	SequenceID uint32

	// Result is normally ResultSuccess on requests
	Result Result

	// Body is one of *HandshakeRequest, *DataPacket or *FlashProgramRequest
	Body RequestBody
}

// Response is a message sent by the bootloader.
type Response struct {
	// SequenceID echoes the request's sequence id
	SequenceID uint32

	// Result is the outcome of the request
	Result Result

	// Body is one of *HandshakeResponse, *Acknowledgment or *FlashResult
	Body ResponseBody
}

// RequestBody is implemented by the request variants.
type RequestBody interface {
	requestBody()
}

// ResponseBody is implemented by the response variants.
type ResponseBody interface {
	responseBody()
}

// HandshakeRequest opens a session.
type HandshakeRequest struct {
	// Capabilities is a comma-separated list of requested features
	Capabilities string

	// MaxPacketSize is the largest payload the host intends to send
	MaxPacketSize uint32
}

// DataPacket carries the image bytes.
type DataPacket struct {
	// Offset must be 0; only single-packet transfers are supported
	Offset uint32

	// Data is the image content
	Data []byte

	// DataCRC32 is the IEEE CRC-32 of Data
	DataCRC32 uint32
}

// FlashProgramRequest prepares or verifies a programming cycle.
// VerifyAfterProgram selects verify; otherwise it is a prepare request.
type FlashProgramRequest struct {
	// TotalDataLength is the image length announced on prepare
	TotalDataLength uint32

	// VerifyAfterProgram turns the request into a verify request
	VerifyAfterProgram bool
}

// HandshakeResponse describes the bootloader.
type HandshakeResponse struct {
	Version       string
	Capabilities  string
	FlashPageSize uint32
	TargetAddress uint32
}

// Acknowledgment reports the outcome of a request without a richer body.
type Acknowledgment struct {
	Success bool
	Message string
}

// FlashResult reports a completed programming cycle.
type FlashResult struct {
	// BytesProgrammed is the alignment-rounded byte count written to flash
	BytesProgrammed uint32

	// ActualDataLength is the unpadded image length
	ActualDataLength uint32

	// VerificationHash is the big-endian CRC-32 of the read-back image
	VerificationHash [VerificationHashSize]byte
}

func (*HandshakeRequest) requestBody()    {}
func (*DataPacket) requestBody()          {}
func (*FlashProgramRequest) requestBody() {}

func (*HandshakeResponse) responseBody() {}
func (*Acknowledgment) responseBody()    {}
func (*FlashResult) responseBody()       {}

// RequestKind returns a short name for a request body, used in logs and
// error messages.
func RequestKind(body RequestBody) string {
	switch b := body.(type) {
	case *HandshakeRequest:
		return "handshake"
	case *DataPacket:
		return "data"
	case *FlashProgramRequest:
		if b.VerifyAfterProgram {
			return "verify"
		}
		return "prepare"
	default:
		return "unknown"
	}
}
