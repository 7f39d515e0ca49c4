package client

import (
	"errors"
	"fmt"

	"github.com/backkem/lattice/pkg/wire"
)

var (
	// ErrNotConnected is returned by secure operations before Connect.
	ErrNotConnected = errors.New("client: not connected")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("client: closed")

	// ErrIDMismatch is returned when a response echoes the wrong
	// request id.
	ErrIDMismatch = errors.New("client: response id does not match request")

	// ErrEphemeralIDNotIncreasing is returned when a reply carries an
	// ephemeral id at or below the client's counter. The device bumps
	// the counter on every encrypted reply; anything else means the
	// channel state diverged.
	ErrEphemeralIDNotIncreasing = errors.New("client: ephemeral id did not increase")
)

// RemoteError is a non-success response code from the device.
type RemoteError struct {
	Code wire.ResponseCode
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("client: device returned %s (0x%02x)", e.Code, uint8(e.Code))
}

// IsCode reports whether err is a RemoteError carrying the given code.
func IsCode(err error, code wire.ResponseCode) bool {
	var re *RemoteError
	return errors.As(err, &re) && re.Code == code
}
