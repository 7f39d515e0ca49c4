package pairing

import "errors"

var (
	// ErrNoWindow indicates a finalize attempt with no pairing window
	// open. The dispatcher surfaces it as pairFailed.
	ErrNoWindow = errors.New("pairing: no active pairing window")

	// ErrBadSignature indicates a finalize signature that does not
	// verify against the session's CONNECT-time public key.
	ErrBadSignature = errors.New("pairing: signature verification failed")

	// ErrNoSession indicates a finalize attempt on a session without
	// an established secure channel.
	ErrNoSession = errors.New("pairing: session has no secure channel")
)
