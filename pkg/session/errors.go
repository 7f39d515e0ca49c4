package session

import "errors"

var (
	// ErrNotEstablished indicates a secure operation before CONNECT.
	ErrNotEstablished = errors.New("session: no secure channel established")

	// ErrDisposed indicates use of a disposed session.
	ErrDisposed = errors.New("session: disposed")

	// ErrEphemeralIDMismatch indicates a request carrying an ephemeral
	// id ahead of the session's current one. The client is out of sync
	// and told so; the session survives.
	ErrEphemeralIDMismatch = errors.New("session: ephemeral id mismatch")

	// ErrEphemeralIDRegression indicates a request carrying an
	// ephemeral id behind the session's current one. Replayed or
	// forked traffic; the session must be disposed.
	ErrEphemeralIDRegression = errors.New("session: ephemeral id regression")

	// ErrTableFull indicates the per-device session cap was reached.
	ErrTableFull = errors.New("session: session table full")

	// ErrInvalidClientKey indicates a CONNECT public key that is not a
	// valid uncompressed P-256 point.
	ErrInvalidClientKey = errors.New("session: invalid client public key")
)
