package uichannel

import "errors"

var (
	// ErrClosed indicates an operation on a closed link or hub.
	ErrClosed = errors.New("uichannel: link closed")

	// ErrTimeout indicates a server request the UI did not answer
	// within the deadline. The dispatcher surfaces it as userTimeout.
	ErrTimeout = errors.New("uichannel: request timed out")

	// ErrNoLink indicates a device with no UI link attached.
	ErrNoLink = errors.New("uichannel: no UI link for device")

	// ErrQueueFull indicates the UI client's bounded response retry
	// queue overflowed; the oldest entry was dropped.
	ErrQueueFull = errors.New("uichannel: retry queue full")
)

// ResponseError carries an error string the UI attached to a
// client_response.
type ResponseError struct {
	RequestID string
	Message   string
}

// Error implements the error interface.
func (e *ResponseError) Error() string {
	return "uichannel: UI responded with error: " + e.Message
}
