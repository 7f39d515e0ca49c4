package device

import "errors"

// Device state errors.
var (
	ErrDuplicateKey   = errors.New("device: duplicate key")
	ErrKeyTooLong     = errors.New("device: key exceeds maximum length")
	ErrValueTooLong   = errors.New("device: value exceeds maximum length")
	ErrEmptyKey       = errors.New("device: empty key")
	ErrRecordNotFound = errors.New("device: record not found")
	ErrNoSafeCard     = errors.New("device: no active SafeCard")
	ErrUnknownDevice  = errors.New("device: unknown device id")
)
