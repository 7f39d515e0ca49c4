// Package transport carries protocol frames between clients and the
// engine: a direct TCP listener for local connections and an HTTP
// bridge that mimics the hosted relay. Transports only frame and move
// bytes; all protocol state lives behind the handlers.
package transport

import "github.com/backkem/lattice/pkg/wire"

// FrameHandler answers one request frame. connKey identifies the
// transport connection the frame arrived on and scopes the session
// bound to it. A nil response closes the connection without replying.
type FrameHandler func(connKey string, f *wire.Frame) *wire.Frame

// ClosedHandler is invoked once when a connection ends, after its
// last frame has been handled.
type ClosedHandler func(connKey string)
