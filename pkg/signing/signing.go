// Package signing tracks requests that need a user decision: sign
// operations and pairing ceremonies. A pending request blocks its
// protocol handler until the UI approves or rejects it, or until the
// deadline expires.
package signing

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pion/logging"
)

// DefaultTimeout is how long a pending request waits for a user
// decision before expiring.
const DefaultTimeout = 5 * time.Minute

// RequestType discriminates what the user is deciding on.
type RequestType string

const (
	// TypeSign is a transaction or message signing decision.
	TypeSign RequestType = "SIGN"

	// TypePair is a pairing ceremony in progress. PAIR requests are
	// informational; they resolve from the pairing window outcome.
	TypePair RequestType = "PAIR"
)

// Status is the lifecycle state of a pending request. All states but
// StatusPending are terminal.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
	StatusExpired  Status = "expired"
)

// Result carries the outcome the UI attached to an approval.
type Result struct {
	// Signature is the detached signature for approved sign requests.
	Signature []byte

	// Recovery is the recovery id, when the signature scheme has one.
	Recovery uint8

	// HasRecovery reports whether Recovery is meaningful.
	HasRecovery bool
}

// Request is one pending user decision.
type Request struct {
	ID        string
	DeviceID  string
	Type      RequestType
	CreatedAt time.Time
	Timeout   time.Duration

	// Payload is the request detail shown to the user, forwarded to
	// the UI verbatim in the signing_request_created broadcast.
	Payload map[string]interface{}

	mu     sync.Mutex
	status Status
	result Result
	doneCh chan struct{}
	timer  *time.Timer
}

// Status returns the request's current lifecycle state.
func (r *Request) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// Done returns a channel closed when the request reaches a terminal
// state.
func (r *Request) Done() <-chan struct{} {
	return r.doneCh
}

// resolve moves the request to a terminal state. Returns false if it
// was already resolved.
func (r *Request) resolve(status Status, result Result) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.status != StatusPending {
		return false
	}

	r.status = status
	r.result = result
	if r.timer != nil {
		r.timer.Stop()
	}
	close(r.doneCh)

	return true
}

// Outcome returns the terminal status and result. Only valid after
// Done is closed.
func (r *Request) Outcome() (Status, Result) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status, r.result
}

// Notifier receives lifecycle broadcasts for pending requests. The
// engine forwards them to the UI channel.
type Notifier interface {
	// OnRequestCreated fires when a request enters the pending state.
	OnRequestCreated(req *Request)

	// OnRequestCompleted fires exactly once per request, when it
	// reaches a terminal state.
	OnRequestCompleted(req *Request)
}

// ManagerConfig configures a signing request manager.
type ManagerConfig struct {
	// DefaultTimeout overrides the per-request deadline.
	// Default: DefaultTimeout.
	DefaultTimeout time.Duration

	// Notifier receives lifecycle broadcasts. Optional.
	Notifier Notifier

	// LoggerFactory customizes logging. No logging when nil.
	LoggerFactory logging.LoggerFactory
}

// Manager owns every pending request of a process. Requests are keyed
// by uuid; terminal requests are removed from the table on resolution
// but remain readable through the handle the creator holds.
type Manager struct {
	mu      sync.Mutex
	pending map[string]*Request

	timeout  time.Duration
	notifier Notifier
	log      logging.LeveledLogger
}

// NewManager creates an empty manager.
func NewManager(config ManagerConfig) *Manager {
	if config.DefaultTimeout <= 0 {
		config.DefaultTimeout = DefaultTimeout
	}

	m := &Manager{
		pending:  make(map[string]*Request),
		timeout:  config.DefaultTimeout,
		notifier: config.Notifier,
	}
	if config.LoggerFactory != nil {
		m.log = config.LoggerFactory.NewLogger("signing")
	}
	return m
}

// Create registers a pending request and broadcasts its creation. A
// non-positive timeout uses the manager default.
func (m *Manager) Create(deviceID string, typ RequestType, payload map[string]interface{}, timeout time.Duration) *Request {
	if timeout <= 0 {
		timeout = m.timeout
	}

	req := &Request{
		ID:        uuid.NewString(),
		DeviceID:  deviceID,
		Type:      typ,
		CreatedAt: time.Now(),
		Timeout:   timeout,
		Payload:   payload,
		status:    StatusPending,
		doneCh:    make(chan struct{}),
	}
	req.timer = time.AfterFunc(timeout, func() { m.expire(req.ID) })

	m.mu.Lock()
	m.pending[req.ID] = req
	m.mu.Unlock()

	if m.log != nil {
		m.log.Debugf("signing request created: id=%s type=%s device=%s", req.ID, typ, deviceID)
	}
	if m.notifier != nil {
		m.notifier.OnRequestCreated(req)
	}

	return req
}

// Get returns the pending request with the given id.
func (m *Manager) Get(id string) (*Request, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	req, ok := m.pending[id]
	return req, ok
}

// Await blocks until the request resolves, the context ends or abort
// closes. A context or abort exit expires the request.
func (m *Manager) Await(ctx context.Context, req *Request, abort <-chan struct{}) (Status, Result) {
	select {
	case <-req.Done():
	case <-ctx.Done():
		m.expire(req.ID)
		<-req.Done()
	case <-abort:
		m.expire(req.ID)
		<-req.Done()
	}
	return req.Outcome()
}

// Approve resolves a pending request as approved, carrying the UI's
// result. Returns false when the id is unknown or already terminal.
func (m *Manager) Approve(id string, result Result) bool {
	return m.complete(id, StatusApproved, result)
}

// Reject resolves a pending request as rejected.
func (m *Manager) Reject(id string) bool {
	return m.complete(id, StatusRejected, Result{})
}

// expire resolves a pending request as expired.
func (m *Manager) expire(id string) {
	m.complete(id, StatusExpired, Result{})
}

// ExpireDevice expires every pending request of a device. Called when
// the device's last transport goes away.
func (m *Manager) ExpireDevice(deviceID string) {
	m.mu.Lock()
	var ids []string
	for id, req := range m.pending {
		if req.DeviceID == deviceID {
			ids = append(ids, id)
		}
	}
	m.mu.Unlock()

	for _, id := range ids {
		m.expire(id)
	}
}

// PendingCount returns the number of unresolved requests.
func (m *Manager) PendingCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

func (m *Manager) complete(id string, status Status, result Result) bool {
	m.mu.Lock()
	req, ok := m.pending[id]
	if ok {
		delete(m.pending, id)
	}
	m.mu.Unlock()

	if !ok || !req.resolve(status, result) {
		return false
	}

	if m.log != nil {
		m.log.Debugf("signing request completed: id=%s status=%s", id, status)
	}
	if m.notifier != nil {
		m.notifier.OnRequestCompleted(req)
	}

	return true
}
