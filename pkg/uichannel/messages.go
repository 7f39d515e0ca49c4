// Package uichannel implements the bidirectional control link between
// the protocol engine and the browser UI of a device.
//
// Traffic is JSON envelopes over a persistent message-oriented
// transport (WebSocket at /ws/device/{deviceId}). The server invites
// the UI to perform work with correlated server_request messages and
// broadcasts device lifecycle events; the UI answers with
// client_response messages and pushes device_command / device_event
// messages of its own. Both sides heartbeat while the link is open.
package uichannel

import (
	"encoding/json"
	"sync"
	"time"
)

// Envelope is the outer JSON document every channel message travels
// in.
type Envelope struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// Message type tags.
const (
	// TypeServerRequest is a correlated server-to-UI work invitation.
	TypeServerRequest = "server_request"

	// TypeClientResponse is the UI's correlated reply.
	TypeClientResponse = "client_response"

	// TypeDeviceEvent is an out-of-band UI-to-server notification.
	TypeDeviceEvent = "device_event"

	// TypeDeviceCommand is an imperative UI-to-server control.
	TypeDeviceCommand = "device_command"

	// TypeHeartbeat and TypeHeartbeatResponse keep the link alive.
	TypeHeartbeat         = "heartbeat"
	TypeHeartbeatResponse = "heartbeat_response"
)

// Server broadcast event tags.
const (
	EventDeviceState             = "device_state"
	EventPairingModeStarted      = "pairing_mode_started"
	EventPairingModeEnded        = "pairing_mode_ended"
	EventConnectionChanged       = "connection_changed"
	EventPairingChanged          = "pairing_changed"
	EventSigningRequestCreated   = "signing_request_created"
	EventSigningRequestCompleted = "signing_request_completed"
)

// Server request types.
const (
	// RequestWalletAddresses asks the UI's derivation service for
	// addresses on a path range.
	RequestWalletAddresses = "wallet_addresses_request"

	// RequestKvAdd and RequestKvRemove ask the UI to approve and
	// persist a key/value mutation.
	RequestKvAdd    = "kv_add_request"
	RequestKvRemove = "kv_remove_request"
)

// Device command names the server accepts.
const (
	CommandConnectionChanged    = "connection_changed"
	CommandPairingChanged       = "pairing_changed"
	CommandEnterPairingMode     = "enter_pairing_mode"
	CommandExitPairingMode      = "exit_pairing_mode"
	CommandSetLocked            = "set_locked"
	CommandResetDevice          = "reset_device"
	CommandUpdateConfig         = "update_config"
	CommandSyncClientState      = "sync_client_state"
	CommandSetActiveSafeCard    = "set_active_safecard"
	CommandSetActiveWallet      = "set_active_wallet"
	CommandSyncWalletAccounts   = "sync_wallet_accounts"
	CommandDeriveAddresses      = "derive_addresses"
	CommandApproveSigningReq    = "approve_signing_request"
	CommandRejectSigningRequest = "reject_signing_request"
)

// ServerRequest invites the UI to perform work. The UI answers with a
// ClientResponse carrying the same RequestID.
type ServerRequest struct {
	RequestID   string      `json:"requestId"`
	RequestType string      `json:"requestType"`
	Payload     interface{} `json:"payload,omitempty"`
}

// ClientResponse is the UI's correlated reply to a ServerRequest.
// Exactly one of Data and Error is meaningful.
type ClientResponse struct {
	RequestID   string          `json:"requestId"`
	RequestType string          `json:"requestType,omitempty"`
	Data        json.RawMessage `json:"data,omitempty"`
	Error       string          `json:"error,omitempty"`
}

// DeviceEvent is an out-of-band notification from the UI.
type DeviceEvent struct {
	EventType string          `json:"eventType"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// DeviceCommand is an imperative control from the UI.
type DeviceCommand struct {
	Command string          `json:"command"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// AddressEntry is one derived address in a wallet_addresses_request
// response.
type AddressEntry struct {
	Address   string   `json:"address"`
	PublicKey string   `json:"publicKey,omitempty"`
	Path      []uint32 `json:"path"`
}

// AddressesPayload is the wallet_addresses_request payload.
type AddressesPayload struct {
	StartPath []uint32 `json:"startPath"`
	Count     uint8    `json:"count"`
	CoinType  string   `json:"coinType"`
	Flag      uint8    `json:"flag"`
}

// AddressesResult is the wallet_addresses_request response data.
type AddressesResult struct {
	Addresses []AddressEntry `json:"addresses"`
}

// clock hands out envelope timestamps in milliseconds, strictly
// increasing per sender even when the wall clock stalls.
type clock struct {
	mu   sync.Mutex
	last int64
}

func (c *clock) next() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now().UnixMilli()
	if now <= c.last {
		now = c.last + 1
	}
	c.last = now
	return now
}

// newEnvelope marshals data into an envelope of the given type.
func newEnvelope(c *clock, typ string, data interface{}) (Envelope, error) {
	env := Envelope{Type: typ, Timestamp: c.next()}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return Envelope{}, err
		}
		env.Data = raw
	}
	return env, nil
}
