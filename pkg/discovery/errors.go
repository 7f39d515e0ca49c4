package discovery

import "errors"

// Package-level sentinel errors for discovery operations.
var (
	// ErrClosed is returned when an operation is attempted on a closed component.
	ErrClosed = errors.New("discovery: closed")

	// ErrAlreadyStarted is returned when advertising an already-advertised device.
	ErrAlreadyStarted = errors.New("discovery: already started")

	// ErrNotStarted is returned when stopping a device that was not advertised.
	ErrNotStarted = errors.New("discovery: not started")

	// ErrMissingDeviceID is returned when a TXT record carries no device id.
	ErrMissingDeviceID = errors.New("discovery: missing device id")

	// ErrInvalidTXTRecord is returned when a TXT record has invalid format.
	ErrInvalidTXTRecord = errors.New("discovery: invalid TXT record format")
)
