package session

import (
	"bytes"
	"errors"
	"testing"

	"github.com/backkem/lattice/pkg/crypto"
	"github.com/backkem/lattice/pkg/wire"
)

// clientSide mirrors the SDK's half of the channel: it holds the
// long-term key pair and re-derives the shared secret from each reply.
type clientSide struct {
	t      *testing.T
	kp     *crypto.KeyPair
	secret []byte
}

func newClientSide(t *testing.T) *clientSide {
	t.Helper()
	kp, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}
	return &clientSide{t: t, kp: kp}
}

func (c *clientSide) connect(s *Session) ConnectInfo {
	c.t.Helper()

	info, err := s.HandleConnect(c.kp.PublicKey())
	if err != nil {
		c.t.Fatalf("HandleConnect: %v", err)
	}

	secret, err := c.kp.ECDH(info.EphemeralPub)
	if err != nil {
		c.t.Fatalf("client ECDH: %v", err)
	}
	c.secret = secret

	return info
}

func (c *clientSide) encryptRequest(s *Session, plaintext []byte) *wire.SecureRequest {
	c.t.Helper()

	ct, err := crypto.EncryptCBC(c.secret, plaintext)
	if err != nil {
		c.t.Fatal(err)
	}
	return &wire.SecureRequest{
		RequestType: wire.RequestTest,
		EphemeralID: s.EphemeralID(),
		Ciphertext:  ct,
	}
}

// decryptResponse opens an encrypted reply and rotates the client
// secret from the embedded ephemeral public key.
func (c *clientSide) decryptResponse(ciphertext []byte) *wire.SecureResponse {
	c.t.Helper()

	pt, err := crypto.DecryptCBC(c.secret, ciphertext)
	if err != nil {
		c.t.Fatalf("client decrypt: %v", err)
	}

	var resp wire.SecureResponse
	if err := resp.Decode(pt); err != nil {
		c.t.Fatalf("decode response plaintext: %v", err)
	}

	secret, err := c.kp.ECDH(resp.EphemeralPub)
	if err != nil {
		c.t.Fatalf("client re-derive: %v", err)
	}
	c.secret = secret

	return &resp
}

func TestHandleConnect(t *testing.T) {
	s := New("dev-1")
	client := newClientSide(t)

	info := client.connect(s)

	if info.Paired {
		t.Error("fresh session reports paired")
	}
	if len(info.EphemeralPub) != wire.PublicKeySize || info.EphemeralPub[0] != 0x04 {
		t.Errorf("ephemeral pub malformed: len=%d lead=0x%02x",
			len(info.EphemeralPub), info.EphemeralPub[0])
	}
	if info.EphemeralID == 0 || info.EphemeralID >= 1<<31 {
		t.Errorf("starting ephemeral id out of range: %d", info.EphemeralID)
	}
	if info.EphemeralID != s.EphemeralID() {
		t.Error("reported id differs from session id")
	}

	// Both halves must hold the same 32-byte secret.
	if !bytes.Equal(client.secret, s.SharedSecret()) {
		t.Error("client and session derived different secrets")
	}
	if !s.Established() {
		t.Error("session not established after CONNECT")
	}
}

func TestHandleConnectRejectsBadKey(t *testing.T) {
	s := New("dev-1")

	bad := make([]byte, wire.PublicKeySize)
	bad[0] = 0x04 // right shape, off curve

	if _, err := s.HandleConnect(bad); !errors.Is(err, ErrInvalidClientKey) {
		t.Errorf("off-curve key: err = %v, want %v", err, ErrInvalidClientKey)
	}
	if _, err := s.HandleConnect([]byte{0x04, 0x01}); !errors.Is(err, ErrInvalidClientKey) {
		t.Errorf("short key: err = %v, want %v", err, ErrInvalidClientKey)
	}
	if s.Established() {
		t.Error("session established from a rejected key")
	}
}

func TestHandleConnectPreservesPairing(t *testing.T) {
	s := New("dev-1")
	client := newClientSide(t)

	client.connect(s)
	s.SetPaired(true)

	info := client.connect(s)
	if !info.Paired {
		t.Error("re-handshake dropped the pairing bit")
	}
}

func TestDecrypt(t *testing.T) {
	s := New("dev-1")
	client := newClientSide(t)
	client.connect(s)

	want := []byte("request payload")
	req := client.encryptRequest(s, want)

	got, err := s.Decrypt(req)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Errorf("plaintext = %q, want %q", got, want)
	}
}

func TestDecryptEphemeralIDChecks(t *testing.T) {
	s := New("dev-1")
	client := newClientSide(t)
	client.connect(s)

	req := client.encryptRequest(s, []byte("x"))

	behind := *req
	behind.EphemeralID = req.EphemeralID - 1
	if _, err := s.Decrypt(&behind); !errors.Is(err, ErrEphemeralIDRegression) {
		t.Errorf("behind: err = %v, want %v", err, ErrEphemeralIDRegression)
	}

	ahead := *req
	ahead.EphemeralID = req.EphemeralID + 1
	if _, err := s.Decrypt(&ahead); !errors.Is(err, ErrEphemeralIDMismatch) {
		t.Errorf("ahead: err = %v, want %v", err, ErrEphemeralIDMismatch)
	}

	// The matching id still works; failed checks do not advance state.
	if _, err := s.Decrypt(req); err != nil {
		t.Errorf("matching id: %v", err)
	}
}

func TestDecryptBeforeConnect(t *testing.T) {
	s := New("dev-1")
	req := &wire.SecureRequest{RequestType: wire.RequestTest, Ciphertext: make([]byte, 16)}

	if _, err := s.Decrypt(req); !errors.Is(err, ErrNotEstablished) {
		t.Errorf("err = %v, want %v", err, ErrNotEstablished)
	}
	if _, err := s.EncryptResponse([]byte("x")); !errors.Is(err, ErrNotEstablished) {
		t.Errorf("err = %v, want %v", err, ErrNotEstablished)
	}
}

func TestEncryptResponseRotates(t *testing.T) {
	s := New("dev-1")
	client := newClientSide(t)
	info := client.connect(s)

	prevID := info.EphemeralID
	prevSecret := s.SharedSecret()

	for i := 0; i < 4; i++ {
		data := []byte{byte(i), 0xaa}

		ct, err := s.EncryptResponse(data)
		if err != nil {
			t.Fatalf("rotation %d: %v", i, err)
		}

		resp := client.decryptResponse(ct)

		if resp.EphemeralID != prevID+1 {
			t.Fatalf("rotation %d: id = %d, want %d", i, resp.EphemeralID, prevID+1)
		}
		if !bytes.Equal(resp.Data, data) {
			t.Fatalf("rotation %d: data = %x, want %x", i, resp.Data, data)
		}
		if s.EphemeralID() != resp.EphemeralID {
			t.Fatalf("rotation %d: session id %d, reply id %d", i, s.EphemeralID(), resp.EphemeralID)
		}

		// Both sides land on the same fresh secret, different from
		// the previous one.
		if !bytes.Equal(client.secret, s.SharedSecret()) {
			t.Fatalf("rotation %d: halves disagree on the new secret", i)
		}
		if bytes.Equal(prevSecret, s.SharedSecret()) {
			t.Fatalf("rotation %d: secret did not change", i)
		}

		// The rotated channel carries the next request.
		req := client.encryptRequest(s, []byte("after"))
		if _, err := s.Decrypt(req); err != nil {
			t.Fatalf("rotation %d: decrypt after rotate: %v", i, err)
		}

		prevID = resp.EphemeralID
		prevSecret = s.SharedSecret()
	}
}

func TestDispose(t *testing.T) {
	s := New("dev-1")
	client := newClientSide(t)
	client.connect(s)

	select {
	case <-s.Done():
		t.Fatal("done channel closed before dispose")
	default:
	}

	s.Dispose()
	s.Dispose() // idempotent

	if !s.Disposed() {
		t.Error("Disposed() = false after Dispose")
	}
	select {
	case <-s.Done():
	default:
		t.Error("done channel still open after dispose")
	}
	if s.SharedSecret() != nil {
		t.Error("secret survived dispose")
	}

	req := &wire.SecureRequest{Ciphertext: make([]byte, 16)}
	if _, err := s.Decrypt(req); !errors.Is(err, ErrDisposed) {
		t.Errorf("Decrypt err = %v, want %v", err, ErrDisposed)
	}
	if _, err := s.EncryptResponse(nil); !errors.Is(err, ErrDisposed) {
		t.Errorf("EncryptResponse err = %v, want %v", err, ErrDisposed)
	}
	if _, err := s.HandleConnect(client.kp.PublicKey()); !errors.Is(err, ErrDisposed) {
		t.Errorf("HandleConnect err = %v, want %v", err, ErrDisposed)
	}
}

func TestPairingCode(t *testing.T) {
	s := New("dev-1")

	if _, ok := s.PairingCode(); ok {
		t.Error("fresh session has a pairing code")
	}

	s.SetPairingCode("12345678")
	code, ok := s.PairingCode()
	if !ok || code != "12345678" {
		t.Errorf("PairingCode = (%q, %v)", code, ok)
	}

	s.ClearPairingCode()
	if _, ok := s.PairingCode(); ok {
		t.Error("pairing code survived clear")
	}
}
