// Package dispatch routes decrypted secure requests to their
// operation handlers and maps every outcome, including faults, onto a
// wire response code. Replies for one session are produced strictly
// in request-arrival order.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/pion/logging"

	"github.com/backkem/lattice/pkg/device"
	"github.com/backkem/lattice/pkg/pairing"
	"github.com/backkem/lattice/pkg/session"
	"github.com/backkem/lattice/pkg/signing"
	"github.com/backkem/lattice/pkg/uichannel"
	"github.com/backkem/lattice/pkg/wire"
)

// KvFirmwareFloor is the lowest firmware that supports the key/value
// operations.
var KvFirmwareFloor = wire.FirmwareVersion{Major: 0, Minor: 12, Patch: 0}

// UIRequester performs a correlated round-trip to the device's UI.
// *uichannel.Link implements it; a nil requester means no UI is
// attached.
type UIRequester interface {
	Request(ctx context.Context, requestType string, payload interface{}) (json.RawMessage, error)
}

// Env is the per-request environment: the device and session the
// request arrived on and their collaborators.
type Env struct {
	Device  *device.Device
	Session *session.Session
	Pairing *pairing.Controller

	// UI is the device's UI link, nil when none is attached.
	UI UIRequester
}

// Config configures a dispatcher.
type Config struct {
	// Signing tracks requests that need a user decision. Required.
	Signing *signing.Manager

	// LoggerFactory customizes logging. No logging when nil.
	LoggerFactory logging.LoggerFactory
}

// Dispatcher executes secure operations. One instance serves every
// session of the process; a per-session lock keeps replies in
// arrival order without serializing distinct sessions against each
// other.
type Dispatcher struct {
	signing *signing.Manager
	log     logging.LeveledLogger

	mu     sync.Mutex
	queues map[string]*sync.Mutex
}

// New creates a dispatcher.
func New(config Config) *Dispatcher {
	d := &Dispatcher{
		signing: config.Signing,
		queues:  make(map[string]*sync.Mutex),
	}
	if config.LoggerFactory != nil {
		d.log = config.LoggerFactory.NewLogger("dispatch")
	}
	return d
}

// Dispatch runs one decrypted secure request and returns the response
// code and, for success, the response payload to encrypt. A handler
// panic is contained and reported as internalError.
func (d *Dispatcher) Dispatch(ctx context.Context, env Env, requestType wire.RequestType, plaintext []byte) (code wire.ResponseCode, payload []byte) {
	queue := d.sessionQueue(env.Session.Key())
	queue.Lock()
	defer queue.Unlock()

	defer func() {
		if r := recover(); r != nil {
			if d.log != nil {
				d.log.Errorf("handler panic: op=%s err=%v", requestType, r)
			}
			code, payload = wire.CodeInternalError, nil
		}
	}()

	if code := d.checkPreconditions(env, requestType); code != wire.CodeSuccess {
		return code, nil
	}

	switch requestType {
	case wire.RequestFinalizePairing:
		return d.handleFinalizePairing(env, plaintext)
	case wire.RequestGetAddresses:
		return d.handleGetAddresses(ctx, env, plaintext)
	case wire.RequestSign:
		return d.handleSign(ctx, env, plaintext)
	case wire.RequestGetWallets:
		return d.handleGetWallets(env)
	case wire.RequestGetKvRecords:
		return d.handleGetKvRecords(env, plaintext)
	case wire.RequestAddKvRecords:
		return d.handleAddKvRecords(ctx, env, plaintext)
	case wire.RequestRemoveKvRecords:
		return d.handleRemoveKvRecords(ctx, env, plaintext)
	case wire.RequestFetchEncryptedData:
		return wire.CodeDisabled, nil
	case wire.RequestTest:
		return wire.CodeSuccess, plaintext
	default:
		return wire.CodeInvalidMsg, nil
	}
}

// checkPreconditions runs the ordered gate every operation passes
// before its handler: lock state, pairing state, feature floor. The
// first failing check wins. Per-operation argument validation happens
// in the handlers.
func (d *Dispatcher) checkPreconditions(env Env, requestType wire.RequestType) wire.ResponseCode {
	if env.Device.Locked() {
		return wire.CodeDeviceLocked
	}

	if !env.Session.Paired() && requestType != wire.RequestFinalizePairing {
		return wire.CodePairFailed
	}

	if isKvOp(requestType) && !env.Device.Firmware().AtLeast(KvFirmwareFloor) {
		return wire.CodeUnsupportedVersion
	}

	return wire.CodeSuccess
}

func isKvOp(t wire.RequestType) bool {
	switch t {
	case wire.RequestGetKvRecords, wire.RequestAddKvRecords, wire.RequestRemoveKvRecords:
		return true
	default:
		return false
	}
}

// sessionQueue returns the session's serialization lock, creating it
// on first use.
func (d *Dispatcher) sessionQueue(key string) *sync.Mutex {
	d.mu.Lock()
	defer d.mu.Unlock()

	q, ok := d.queues[key]
	if !ok {
		q = &sync.Mutex{}
		d.queues[key] = q
	}
	return q
}

// ReleaseSession drops the serialization lock of a disposed session.
func (d *Dispatcher) ReleaseSession(key string) {
	d.mu.Lock()
	delete(d.queues, key)
	d.mu.Unlock()
}

// uiErrorCode maps a failed UI round-trip onto a response code.
// timeoutCode distinguishes derivation deadlines (gceTimeout) from
// approval deadlines (userTimeout).
func uiErrorCode(err error, timeoutCode wire.ResponseCode) wire.ResponseCode {
	switch {
	case errors.Is(err, uichannel.ErrTimeout), errors.Is(err, uichannel.ErrClosed):
		return timeoutCode
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return timeoutCode
	default:
		var respErr *uichannel.ResponseError
		if errors.As(err, &respErr) {
			return wire.CodeUserDeclined
		}
		return wire.CodeInternalError
	}
}
