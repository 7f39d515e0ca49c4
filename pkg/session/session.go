// Package session holds the per-connection secure channel state: the
// client's long-term public key, the device's current ephemeral key
// pair, the derived shared secret and the ephemeral id counter, plus
// the manager that tables sessions per device.
package session

import (
	"math"
	"sync"

	"github.com/backkem/lattice/pkg/crypto"
	"github.com/backkem/lattice/pkg/wire"
)

// ephemeralIDStartMax bounds the random starting ephemeral id. The
// counter only ever grows from there; it never wraps within a
// session's lifetime.
const ephemeralIDStartMax = 1 << 31

// Session is the secure channel for one client connection. It is
// established by HandleConnect and rotated on every encrypted reply:
// a fresh ephemeral key pair, a re-derived shared secret and a bumped
// ephemeral id, swapped in atomically under the session lock.
type Session struct {
	deviceID string
	key      string

	mu          sync.Mutex
	clientPub   []byte
	ephemeral   *crypto.KeyPair
	secret      []byte
	ephemeralID uint32
	paired      bool
	pairingCode string
	disposed    bool

	done      chan struct{}
	closeOnce sync.Once
}

// New creates a session bound to a device. The secure channel is not
// established until HandleConnect.
func New(deviceID string) *Session {
	return &Session{
		deviceID: deviceID,
		done:     make(chan struct{}),
	}
}

// ConnectInfo carries the session fields a CONNECT reply embeds.
type ConnectInfo struct {
	Paired       bool
	EphemeralPub []byte
	EphemeralID  uint32
}

// HandleConnect establishes (or re-establishes) the secure channel:
// store the client's public key, generate a fresh ephemeral key pair,
// derive the shared secret and pick a random starting ephemeral id.
// The pairing bit survives a re-handshake.
func (s *Session) HandleConnect(clientPub []byte) (ConnectInfo, error) {
	if err := wire.ValidatePublicKey(clientPub); err != nil {
		return ConnectInfo{}, ErrInvalidClientKey
	}

	ephemeral, err := crypto.GenerateKeyPair()
	if err != nil {
		return ConnectInfo{}, err
	}

	secret, err := ephemeral.ECDH(clientPub)
	if err != nil {
		return ConnectInfo{}, ErrInvalidClientKey
	}

	start, err := crypto.RandomUint32(ephemeralIDStartMax - 1)
	if err != nil {
		return ConnectInfo{}, err
	}
	start++ // [1, 2^31)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.disposed {
		return ConnectInfo{}, ErrDisposed
	}

	s.clientPub = make([]byte, len(clientPub))
	copy(s.clientPub, clientPub)
	s.ephemeral = ephemeral
	s.secret = secret
	s.ephemeralID = start

	return ConnectInfo{
		Paired:       s.paired,
		EphemeralPub: ephemeral.PublicKey(),
		EphemeralID:  start,
	}, nil
}

// Decrypt checks the request's ephemeral id against the session's
// current one and decrypts the ciphertext with the current shared
// secret. An id behind the counter is a regression (the caller must
// dispose the session); an id ahead only fails the request.
func (s *Session) Decrypt(req *wire.SecureRequest) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.disposed {
		return nil, ErrDisposed
	}
	if s.secret == nil {
		return nil, ErrNotEstablished
	}

	switch {
	case req.EphemeralID < s.ephemeralID:
		return nil, ErrEphemeralIDRegression
	case req.EphemeralID != s.ephemeralID:
		return nil, ErrEphemeralIDMismatch
	}

	return crypto.DecryptCBC(s.secret, req.Ciphertext)
}

// EncryptResponse builds and encrypts a success reply, rotating the
// channel in the same critical section: the plaintext carries the
// bumped ephemeral id and the next ephemeral public key, is encrypted
// under the outgoing secret, and only then does the session adopt the
// new key pair and the secret re-derived with the client's original
// public key. Error replies travel in the clear and must not go
// through here.
func (s *Session) EncryptResponse(data []byte) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.disposed {
		return nil, ErrDisposed
	}
	if s.secret == nil {
		return nil, ErrNotEstablished
	}
	if s.ephemeralID == math.MaxUint32 {
		s.disposeLocked()
		return nil, ErrDisposed
	}

	next, err := crypto.GenerateKeyPair()
	if err != nil {
		return nil, err
	}
	nextSecret, err := next.ECDH(s.clientPub)
	if err != nil {
		return nil, err
	}

	resp := wire.SecureResponse{
		EphemeralID:  s.ephemeralID + 1,
		Data:         data,
		EphemeralPub: next.PublicKey(),
	}

	ciphertext, err := crypto.EncryptCBC(s.secret, resp.Encode())
	if err != nil {
		return nil, err
	}

	s.ephemeralID++
	s.ephemeral = next
	s.secret = nextSecret

	return ciphertext, nil
}

// DeviceID returns the id of the device this session belongs to.
func (s *Session) DeviceID() string {
	return s.deviceID
}

// Key returns the manager key the session is tabled under.
func (s *Session) Key() string {
	return s.key
}

// Established reports whether the secure channel has been set up.
func (s *Session) Established() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.secret != nil
}

// Paired reports the session's pairing bit.
func (s *Session) Paired() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paired
}

// SetPaired flips the session's pairing bit.
func (s *Session) SetPaired(paired bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paired = paired
}

// ClientPublicKey returns a copy of the public key seen at CONNECT,
// or nil before the channel is established.
func (s *Session) ClientPublicKey() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.clientPub == nil {
		return nil
	}
	pub := make([]byte, len(s.clientPub))
	copy(pub, s.clientPub)
	return pub
}

// EphemeralID returns the current ephemeral id.
func (s *Session) EphemeralID() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ephemeralID
}

// SharedSecret returns a copy of the current shared secret, or nil
// before the channel is established.
func (s *Session) SharedSecret() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.secret == nil {
		return nil
	}
	secret := make([]byte, len(s.secret))
	copy(secret, s.secret)
	return secret
}

// SetPairingCode records the code of the pairing window this session
// opened.
func (s *Session) SetPairingCode(code string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pairingCode = code
}

// PairingCode returns the recorded pairing code, if any.
func (s *Session) PairingCode() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pairingCode, s.pairingCode != ""
}

// ClearPairingCode forgets the recorded pairing code.
func (s *Session) ClearPairingCode() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pairingCode = ""
}

// Dispose tears the session down: the shared secret is zeroized, the
// done channel closes and every subsequent operation fails with
// ErrDisposed. Safe to call more than once.
func (s *Session) Dispose() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disposeLocked()
}

func (s *Session) disposeLocked() {
	s.disposed = true
	for i := range s.secret {
		s.secret[i] = 0
	}
	s.secret = nil
	s.ephemeral = nil
	s.closeOnce.Do(func() { close(s.done) })
}

// Disposed reports whether the session has been torn down.
func (s *Session) Disposed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disposed
}

// Done returns a channel closed when the session is disposed. Waiters
// blocked on UI round-trips select on it.
func (s *Session) Done() <-chan struct{} {
	return s.done
}
