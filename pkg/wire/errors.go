package wire

import (
	"errors"
	"fmt"
)

// Frame decoding errors.
var (
	ErrFrameTooShort    = errors.New("wire: frame too short")
	ErrTrailingBytes    = errors.New("wire: trailing bytes after frame")
	ErrInvalidVersion   = errors.New("wire: unsupported protocol version")
	ErrInvalidType      = errors.New("wire: unsupported frame type")
	ErrLengthMismatch   = errors.New("wire: body length inconsistent with frame size")
	ErrChecksumMismatch = errors.New("wire: checksum mismatch")
	ErrBodyTooLong      = errors.New("wire: body exceeds maximum size")
)

// Payload decoding errors.
var (
	ErrPayloadTooShort     = errors.New("wire: payload too short")
	ErrTrailingPayload     = errors.New("wire: trailing bytes after payload")
	ErrInvalidPublicKey    = errors.New("wire: invalid uncompressed public key")
	ErrInvalidPath         = errors.New("wire: invalid derivation path")
	ErrInvalidCount        = errors.New("wire: invalid count")
	ErrInvalidRequestType  = errors.New("wire: unknown request type")
	ErrInvalidResponseCode = errors.New("wire: unknown response code")
	ErrFieldTooLong        = errors.New("wire: field exceeds maximum length")
	ErrEmptyField          = errors.New("wire: required field is empty")
)

// Stream framing errors.
var (
	ErrStreamReadFailed = errors.New("wire: failed to read from stream")
)

// ResponseError carries a non-success response code surfaced by the
// device. Client-side request helpers return it when a reply's code
// byte is anything but success.
type ResponseError struct {
	Code ResponseCode
}

// Error implements the error interface.
func (e *ResponseError) Error() string {
	return fmt.Sprintf("wire: device responded %s (0x%02x)", e.Code, uint8(e.Code))
}

// AsResponseError unwraps err into a ResponseError if one is present.
func AsResponseError(err error) (*ResponseError, bool) {
	var re *ResponseError
	if errors.As(err, &re) {
		return re, true
	}
	return nil, false
}
