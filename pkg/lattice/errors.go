package lattice

import "errors"

var (
	// ErrAlreadyStarted is returned by Start on a running simulator.
	ErrAlreadyStarted = errors.New("lattice: already started")

	// ErrNotStarted is returned by Stop before Start.
	ErrNotStarted = errors.New("lattice: not started")

	// ErrClosed is returned once the simulator has been stopped.
	ErrClosed = errors.New("lattice: closed")

	// ErrNegativeLimit rejects negative caps and timeouts in Config.
	ErrNegativeLimit = errors.New("lattice: negative limit in config")
)
