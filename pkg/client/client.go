// Package client implements the SDK side of the device protocol:
// session bootstrap, pairing, and the typed secure operations, with
// client-side verification of the per-reply key rotation.
package client

import (
	"sync"

	"github.com/pion/logging"

	"github.com/backkem/lattice/pkg/crypto"
	"github.com/backkem/lattice/pkg/wire"
)

// DefaultAppName is the requester name sent with Pair when none is
// configured.
const DefaultAppName = "GoSDK"

// Config configures a Client.
type Config struct {
	// Transport carries frames to the device. Required.
	Transport Transport

	// KeyPair is the client's long-term P-256 key pair. Generated when
	// nil.
	KeyPair *crypto.KeyPair

	// AppName is the display name sent during pairing.
	// Default: DefaultAppName.
	AppName string

	// LoggerFactory customizes logging. No logging when nil.
	LoggerFactory logging.LoggerFactory
}

// Client is one SDK connection to a device. All methods are safe for
// concurrent use; secure operations serialize on the session mutex so
// the rotation chain stays linear.
type Client struct {
	transport Transport
	key       *crypto.KeyPair
	appName   string
	log       logging.LeveledLogger

	mu          sync.Mutex
	established bool
	paired      bool
	firmware    wire.FirmwareVersion
	secret      []byte
	ephemeralID uint32
	nextID      uint32
	closed      bool
}

// New creates a client. Call Connect before any secure operation.
func New(config Config) (*Client, error) {
	if config.Transport == nil {
		return nil, ErrNotConnected
	}

	key := config.KeyPair
	if key == nil {
		var err error
		key, err = crypto.GenerateKeyPair()
		if err != nil {
			return nil, err
		}
	}

	appName := config.AppName
	if appName == "" {
		appName = DefaultAppName
	}

	c := &Client{
		transport: config.Transport,
		key:       key,
		appName:   appName,
		nextID:    1,
	}
	if config.LoggerFactory != nil {
		c.log = config.LoggerFactory.NewLogger("client")
	}
	return c, nil
}

// PublicKey returns the client's long-term public key.
func (c *Client) PublicKey() []byte {
	return c.key.PublicKey()
}

// Paired reports whether the device considers this client paired, as
// of the last Connect or Pair.
func (c *Client) Paired() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.paired
}

// Firmware returns the device firmware reported at Connect.
func (c *Client) Firmware() wire.FirmwareVersion {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.firmware
}

// EphemeralID returns the client's view of the session counter.
func (c *Client) EphemeralID() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ephemeralID
}

// Connect bootstraps the secure channel: the client's public key goes
// over in the clear and the reply carries the device's ephemeral key,
// the starting counter and the pairing bit. Returns whether the
// device already knows this client.
func (c *Client) Connect() (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false, ErrClosed
	}

	frame, err := wire.NewConnectFrame(c.requestID(), c.key.PublicKey())
	if err != nil {
		return false, err
	}

	payload, err := c.roundTrip(frame)
	if err != nil {
		return false, err
	}

	var resp wire.ConnectResponse
	if err := resp.Decode(payload); err != nil {
		return false, err
	}

	secret, err := c.key.ECDH(resp.EphemeralPub)
	if err != nil {
		return false, err
	}

	c.secret = secret
	c.ephemeralID = resp.EphemeralID
	c.paired = resp.Paired
	c.firmware = resp.Firmware
	c.established = true

	if c.log != nil {
		c.log.Debugf("connected: paired=%v fw=%s", resp.Paired, resp.Firmware)
	}

	return resp.Paired, nil
}

// Pair proves this client saw the pairing code on the device screen:
// a DER signature over SHA-256(clientPub || appName || code).
func (c *Client) Pair(code string) error {
	sig, err := crypto.SignDER(c.key, crypto.PairingMessage(c.key.PublicKey(), c.appName, code))
	if err != nil {
		return err
	}

	req := wire.FinalizePairingRequest{AppName: c.appName, Signature: sig}
	if _, err := c.secure(wire.RequestFinalizePairing, req.Encode()); err != nil {
		return err
	}

	c.mu.Lock()
	c.paired = true
	c.mu.Unlock()
	return nil
}

// GetAddresses derives count addresses starting at startPath.
func (c *Client) GetAddresses(startPath []uint32, count uint8, flag wire.AddressFlag) ([]string, error) {
	req := wire.GetAddressesRequest{StartPath: startPath, Count: count, Flag: flag}
	data, err := c.secure(wire.RequestGetAddresses, req.Encode())
	if err != nil {
		return nil, err
	}

	var resp wire.GetAddressesResponse
	if err := resp.Decode(data); err != nil {
		return nil, err
	}
	return resp.Addresses, nil
}

// Sign submits data for user approval and returns the detached
// signature.
func (c *Client) Sign(req wire.SignRequest) (wire.SignResponse, error) {
	data, err := c.secure(wire.RequestSign, req.Encode())
	if err != nil {
		return wire.SignResponse{}, err
	}

	var resp wire.SignResponse
	if err := resp.Decode(data); err != nil {
		return wire.SignResponse{}, err
	}
	return resp, nil
}

// GetWallets returns the device's wallet slot descriptors.
func (c *Client) GetWallets() (wire.GetWalletsResponse, error) {
	data, err := c.secure(wire.RequestGetWallets, nil)
	if err != nil {
		return wire.GetWalletsResponse{}, err
	}

	var resp wire.GetWalletsResponse
	if err := resp.Decode(data); err != nil {
		return wire.GetWalletsResponse{}, err
	}
	return resp, nil
}

// GetKvRecords reads one page of the device's key/value store.
func (c *Client) GetKvRecords(count uint8, start uint32) (wire.GetKvRecordsResponse, error) {
	req := wire.GetKvRecordsRequest{Count: count, Start: start}
	data, err := c.secure(wire.RequestGetKvRecords, req.Encode())
	if err != nil {
		return wire.GetKvRecordsResponse{}, err
	}

	var resp wire.GetKvRecordsResponse
	if err := resp.Decode(data); err != nil {
		return wire.GetKvRecordsResponse{}, err
	}
	return resp, nil
}

// AddKvRecords stores new key/value records.
func (c *Client) AddKvRecords(records []wire.KvEntry) error {
	req := wire.AddKvRecordsRequest{Records: records}
	_, err := c.secure(wire.RequestAddKvRecords, req.Encode())
	return err
}

// RemoveKvRecords deletes key/value records by positional id.
func (c *Client) RemoveKvRecords(ids []uint32) error {
	req := wire.RemoveKvRecordsRequest{IDs: ids}
	_, err := c.secure(wire.RequestRemoveKvRecords, req.Encode())
	return err
}

// Test echoes data through the secure channel.
func (c *Client) Test(data []byte) ([]byte, error) {
	return c.secure(wire.RequestTest, data)
}

// Close tears down the transport.
func (c *Client) Close() error {
	c.mu.Lock()
	c.closed = true
	c.established = false
	c.mu.Unlock()
	return c.transport.Close()
}

// secure runs one encrypted operation: encrypt under the current
// secret, send, decrypt the reply and adopt the rotated channel state.
func (c *Client) secure(requestType wire.RequestType, payload []byte) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrClosed
	}
	if !c.established {
		return nil, ErrNotConnected
	}

	ciphertext, err := crypto.EncryptCBC(c.secret, payload)
	if err != nil {
		return nil, err
	}

	frame := wire.NewSecureFrame(c.requestID(), &wire.SecureRequest{
		RequestType: requestType,
		EphemeralID: c.ephemeralID,
		Ciphertext:  ciphertext,
	})

	body, err := c.roundTrip(frame)
	if err != nil {
		return nil, err
	}

	plaintext, err := crypto.DecryptCBC(c.secret, body)
	if err != nil {
		return nil, err
	}

	var resp wire.SecureResponse
	if err := resp.Decode(plaintext); err != nil {
		return nil, err
	}
	if resp.EphemeralID <= c.ephemeralID {
		return nil, ErrEphemeralIDNotIncreasing
	}

	secret, err := c.key.ECDH(resp.EphemeralPub)
	if err != nil {
		return nil, err
	}

	// Only adopt the rotated channel once the whole reply checked out.
	c.ephemeralID = resp.EphemeralID
	c.secret = secret

	return resp.Data, nil
}

// roundTrip sends a frame and unwraps the response code. Callers hold
// the session mutex.
func (c *Client) roundTrip(frame *wire.Frame) ([]byte, error) {
	reply, err := c.transport.RoundTrip(frame)
	if err != nil {
		return nil, err
	}
	if reply.ID != frame.ID {
		return nil, ErrIDMismatch
	}

	code, payload, err := reply.Response()
	if err != nil {
		return nil, err
	}
	if code != wire.CodeSuccess {
		return nil, &RemoteError{Code: code}
	}
	return payload, nil
}

// requestID hands out frame correlation ids. Callers hold the mutex.
func (c *Client) requestID() uint32 {
	id := c.nextID
	c.nextID++
	return id
}
