package protocol

import "fmt"

// SequenceMismatchError indicates a response that does not echo the
// request's sequence id.
type SequenceMismatchError struct {
	Expected uint32
	Actual   uint32
}

func (e *SequenceMismatchError) Error() string {
	return fmt.Sprintf("sequence mismatch: expected %d, got %d", e.Expected, e.Actual)
}

// ParseResponse decodes a response payload and validates it against the
// request it answers.
//
// A non-success result is returned as a *ResultError carrying the
// acknowledgment message, if present.
func ParseResponse(payload []byte, operation string, seq uint32) (*Response, error) {
	resp, err := UnmarshalResponse(payload)
	if err != nil {
		return nil, err
	}

	if resp.SequenceID != seq {
		return nil, &SequenceMismatchError{Expected: seq, Actual: resp.SequenceID}
	}

	if resp.Result != ResultSuccess {
		re := &ResultError{Operation: operation, Result: resp.Result}
		if ack, ok := resp.Body.(*Acknowledgment); ok {
			re.Message = ack.Message
		}
		return nil, re
	}

	return resp, nil
}

// ErrorResponse builds the failed acknowledgment sent for a request that
// could not be served. The message is the error text, truncated to fit.
func ErrorResponse(seq uint32, err error) *Response {
	msg := err.Error()
	if len(msg) > MaxMessageLen {
		msg = msg[:MaxMessageLen]
	}
	return &Response{
		SequenceID: seq,
		Result:     ResultFor(err),
		Body:       &Acknowledgment{Success: false, Message: msg},
	}
}

// ParseHandshakeResponse extracts the handshake body.
func ParseHandshakeResponse(resp *Response) (*HandshakeResponse, error) {
	body, ok := resp.Body.(*HandshakeResponse)
	if !ok {
		return nil, unexpectedBody("handshake", resp.Body)
	}
	return body, nil
}

// ParseAcknowledgment extracts an acknowledgment and requires it to report
// success.
func ParseAcknowledgment(resp *Response, operation string) (*Acknowledgment, error) {
	body, ok := resp.Body.(*Acknowledgment)
	if !ok {
		return nil, unexpectedBody(operation, resp.Body)
	}
	if !body.Success {
		return nil, &ResultError{
			Operation: operation,
			Result:    ResultErrorInvalidRequest,
			Message:   body.Message,
		}
	}
	return body, nil
}

// ParseFlashResult extracts the flash result body.
func ParseFlashResult(resp *Response) (*FlashResult, error) {
	body, ok := resp.Body.(*FlashResult)
	if !ok {
		return nil, unexpectedBody("verify", resp.Body)
	}
	return body, nil
}

func unexpectedBody(operation string, body ResponseBody) error {
	return fmt.Errorf("%s: unexpected response body %T: %w", operation, body, ErrMessageDecode)
}
