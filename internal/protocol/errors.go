package protocol

import (
	"errors"

	"heightmap.ai/internal/sim/terrain/gen"
)

const (
	// Protocol/transport validation.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"

	// Generation layer.
	ErrBadRequest   = "E_BAD_REQUEST"
	ErrSizeExceeded = "E_SIZE_EXCEEDED"
	ErrInternal     = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest: {},
	ErrBadRequest:      {},
	ErrSizeExceeded:    {},
	ErrInternal:        {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}

// RequestError is a rejected request, before any generation started.
type RequestError struct {
	Code string
	Err  error
}

func (e *RequestError) Error() string { return e.Code + ": " + e.Err.Error() }
func (e *RequestError) Unwrap() error { return e.Err }

// CodeFor maps an error to its wire code.
func CodeFor(err error) string {
	var re *RequestError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &re):
		return re.Code
	case errors.Is(err, gen.ErrSizeExceeded):
		return ErrSizeExceeded
	case errors.Is(err, gen.ErrInvalidConfig):
		return ErrBadRequest
	default:
		return ErrInternal
	}
}

// NewError builds the ERROR message for err.
func NewError(requestID string, err error) ErrorMsg {
	return ErrorMsg{
		Type:            TypeError,
		ProtocolVersion: Version,
		RequestID:       requestID,
		Code:            CodeFor(err),
		Message:         err.Error(),
	}
}
