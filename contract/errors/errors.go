package errors

import stderrors "errors"

// Error codes for the mediator contracts. Keep stable; they cross the wire in transport replies.
const (
	ErrCodeHandlerNotFound        = "mediator.handler_not_found"
	ErrCodeHandlerContract        = "mediator.handler_contract"
	ErrCodeResponseTypeMismatch   = "mediator.response_type_mismatch"
	ErrCodeInvalidRequest         = "mediator.invalid_request"
	ErrCodeHandlerExists          = "mediator.handler_exists"
	ErrCodeUnknownEndpoint        = "mediator.unknown_endpoint"
	ErrCodeSerializationFailed    = "mediator.serialization_failed"
	ErrCodeTransportFailed        = "mediator.transport_failed"
	ErrCodeTransportNotConfigured = "mediator.transport_not_configured"
)

// Code returns an error value that carries only a code string.
// It implements error by returning the code string in Error().
func Code(code string) error { return codedError(code) }

type codedError string

func (e codedError) Error() string { return string(e) }

var (
	ErrHandlerNotFound        = Code(ErrCodeHandlerNotFound)
	ErrHandlerContract        = Code(ErrCodeHandlerContract)
	ErrResponseTypeMismatch   = Code(ErrCodeResponseTypeMismatch)
	ErrInvalidRequest         = Code(ErrCodeInvalidRequest)
	ErrHandlerExists          = Code(ErrCodeHandlerExists)
	ErrUnknownEndpoint        = Code(ErrCodeUnknownEndpoint)
	ErrSerializationFailed    = Code(ErrCodeSerializationFailed)
	ErrTransportFailed        = Code(ErrCodeTransportFailed)
	ErrTransportNotConfigured = Code(ErrCodeTransportNotConfigured)
)

// Known reports whether code is one of the codes declared above.
// Transports use it to turn a remote code back into its sentinel.
func Known(code string) bool {
	switch code {
	case ErrCodeHandlerNotFound,
		ErrCodeHandlerContract,
		ErrCodeResponseTypeMismatch,
		ErrCodeInvalidRequest,
		ErrCodeHandlerExists,
		ErrCodeUnknownEndpoint,
		ErrCodeSerializationFailed,
		ErrCodeTransportFailed,
		ErrCodeTransportNotConfigured:
		return true
	}

	return false
}

// CodeOf returns the code of the first coded error in err's tree, or "".
func CodeOf(err error) string {
	for _, sentinel := range []error{
		ErrHandlerNotFound,
		ErrHandlerContract,
		ErrResponseTypeMismatch,
		ErrInvalidRequest,
		ErrHandlerExists,
		ErrUnknownEndpoint,
		ErrSerializationFailed,
		ErrTransportFailed,
		ErrTransportNotConfigured,
	} {
		if stderrors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}

	return ""
}
