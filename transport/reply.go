package transport

import (
	"errors"
	"fmt"

	berr "github.com/next-trace/scg-mediator/contract/errors"
)

// Header keys shared by the adapters.
const (
	HeaderContentType   = "content-type"
	HeaderRequest       = "request"
	HeaderReplyTo       = "reply-to"
	HeaderCorrelationID = "correlation-id"
)

// Reply is the envelope a server sends back for every request.
// Exactly one of Response and Error is meaningful.
type Reply struct {
	Response []byte     `json:"response,omitempty" msgpack:"response,omitempty"`
	Error    *ErrorBody `json:"error,omitempty"    msgpack:"error,omitempty"`
}

// ErrorBody describes a failed dispatch. Code is empty for handler errors.
type ErrorBody struct {
	Code    string `json:"code,omitempty" msgpack:"code,omitempty"`
	Message string `json:"message"        msgpack:"message"`
}

// RemoteError is returned by clients when the server replied with an error.
// It unwraps to the matching contract error when the code is known.
type RemoteError struct {
	Code    string
	Message string
}

func (e *RemoteError) Error() string { return e.Message }

func (e *RemoteError) Unwrap() error {
	if berr.Known(e.Code) {
		return berr.Code(e.Code)
	}

	return nil
}

// ErrorReply builds the envelope for err.
func ErrorReply(err error) Reply {
	return Reply{Error: &ErrorBody{Code: berr.CodeOf(err), Message: err.Error()}}
}

// DecodeReply decodes an envelope and its response into R.
func DecodeReply[R any](codec Codec, raw []byte) (R, error) {
	var (
		zero  R
		reply Reply
	)

	if err := codec.Unmarshal(raw, &reply); err != nil {
		return zero, fmt.Errorf("decode reply: %w", errors.Join(berr.ErrSerializationFailed, err))
	}

	if reply.Error != nil {
		return zero, &RemoteError{Code: reply.Error.Code, Message: reply.Error.Message}
	}

	var r R
	if len(reply.Response) > 0 {
		if err := codec.Unmarshal(reply.Response, &r); err != nil {
			return zero, fmt.Errorf("decode response: %w", errors.Join(berr.ErrSerializationFailed, err))
		}
	}

	return r, nil
}
