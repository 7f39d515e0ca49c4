package lattice_test

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/backkem/lattice/pkg/client"
	"github.com/backkem/lattice/pkg/lattice"
	"github.com/backkem/lattice/pkg/uichannel"
	"github.com/backkem/lattice/pkg/wallet"
	"github.com/backkem/lattice/pkg/wire"
)

const (
	testDeviceID = "f00dbabe1234"
	testMnemonic = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"
)

func ethPath(index uint32) []uint32 {
	return []uint32{0x8000002C, wire.CoinTypeETH, 0x80000000, 0, index}
}

func startSimulator(t *testing.T, withRelay bool) *lattice.Simulator {
	t.Helper()

	config := lattice.Config{
		DeviceID: testDeviceID,
	}

	var err error
	config.Listener, err = net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	config.UIListener, err = net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	if withRelay {
		config.RelayListener, err = net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			t.Fatalf("listen: %v", err)
		}
	}

	sim, err := lattice.NewSimulator(config)
	if err != nil {
		t.Fatalf("NewSimulator() error = %v", err)
	}
	if err := sim.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(func() { sim.Stop() })

	return sim
}

// signingBroadcast is the shape of the signing_request_created event.
type signingBroadcast struct {
	RequestID string `json:"requestId"`
	Type      string `json:"type"`
	Payload   struct {
		PairingCode string   `json:"pairingCode"`
		Path        []uint32 `json:"path"`
		Curve       string   `json:"curve"`
		HashType    string   `json:"hashType"`
		Data        string   `json:"data"`
	} `json:"payload"`
}

// uiHarness plays the browser UI: it captures pairing codes, resolves
// signing decisions and serves derivation and key/value approvals from
// a seed wallet.
type uiHarness struct {
	t      *testing.T
	wallet *wallet.SeedWallet
	client *uichannel.Client

	mu         sync.Mutex
	rejectSign bool

	pairingCodes chan string
	completed    chan string
}

func attachUI(t *testing.T, sim *lattice.Simulator) *uiHarness {
	t.Helper()

	h := &uiHarness{
		t:            t,
		wallet:       wallet.NewSeedWallet(testMnemonic, ""),
		pairingCodes: make(chan string, 4),
		completed:    make(chan string, 16),
	}
	h.client = uichannel.NewClient(uichannel.ClientConfig{
		OnServerRequest: h.handleRequest,
		OnBroadcast:     h.handleBroadcast,
	})

	url := fmt.Sprintf("ws://%s%s%s", sim.UIAddr(), uichannel.WSPathPrefix, sim.DeviceID())
	if err := h.client.Dial(url); err != nil {
		t.Fatalf("UI dial: %v", err)
	}
	t.Cleanup(h.client.Close)

	// The engine only invites an attached UI; wait for the hub to
	// register the link before driving the protocol.
	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, ok := sim.Hub().Link(sim.DeviceID()); ok {
			return h
		}
		if time.Now().After(deadline) {
			t.Fatal("UI link never attached")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func (h *uiHarness) setRejectSign(reject bool) {
	h.mu.Lock()
	h.rejectSign = reject
	h.mu.Unlock()
}

func (h *uiHarness) handleRequest(req uichannel.ServerRequest) (interface{}, error) {
	switch req.RequestType {
	case uichannel.RequestWalletAddresses:
		raw, err := json.Marshal(req.Payload)
		if err != nil {
			return nil, err
		}
		var payload uichannel.AddressesPayload
		if err := json.Unmarshal(raw, &payload); err != nil {
			return nil, err
		}

		addrs, err := h.wallet.DeriveAddresses(payload.StartPath, payload.Count, payload.CoinType, wire.AddressFlag(payload.Flag))
		if err != nil {
			return nil, err
		}

		result := uichannel.AddressesResult{Addresses: make([]uichannel.AddressEntry, len(addrs))}
		for i, a := range addrs {
			result.Addresses[i] = uichannel.AddressEntry{
				Address:   a.Address,
				PublicKey: a.PublicKey,
				Path:      a.Path,
			}
		}
		return result, nil

	case uichannel.RequestKvAdd, uichannel.RequestKvRemove:
		// Approval without payload; the engine mutates the store.
		return nil, nil

	default:
		return nil, fmt.Errorf("unexpected request type %s", req.RequestType)
	}
}

func (h *uiHarness) handleBroadcast(eventType string, data json.RawMessage) {
	switch eventType {
	case uichannel.EventPairingModeStarted:
		var event struct {
			PairingCode string `json:"pairingCode"`
		}
		if err := json.Unmarshal(data, &event); err == nil && event.PairingCode != "" {
			select {
			case h.pairingCodes <- event.PairingCode:
			default:
			}
		}

	case uichannel.EventSigningRequestCreated:
		var event signingBroadcast
		if err := json.Unmarshal(data, &event); err != nil {
			return
		}
		if event.Type == "SIGN" {
			go h.resolveSign(event)
		}

	case uichannel.EventSigningRequestCompleted:
		var event struct {
			RequestID string `json:"requestId"`
		}
		if err := json.Unmarshal(data, &event); err == nil {
			select {
			case h.completed <- event.RequestID:
			default:
			}
		}
	}
}

func (h *uiHarness) resolveSign(event signingBroadcast) {
	h.mu.Lock()
	reject := h.rejectSign
	h.mu.Unlock()

	if reject {
		h.client.SendCommand(uichannel.CommandRejectSigningRequest, map[string]interface{}{
			"requestId": event.RequestID,
		})
		return
	}

	data, err := hex.DecodeString(event.Payload.Data)
	if err != nil {
		h.t.Errorf("sign payload data not hex: %v", err)
		return
	}

	sig, err := h.wallet.Sign(event.Payload.Path, curveByName(event.Payload.Curve), hashByName(event.Payload.HashType), data)
	if err != nil {
		h.t.Errorf("harness sign: %v", err)
		return
	}

	cmd := map[string]interface{}{
		"requestId": event.RequestID,
		"signature": hex.EncodeToString(sig.DER),
	}
	if sig.HasRecovery {
		cmd["recovery"] = sig.Recovery
	}
	h.client.SendCommand(uichannel.CommandApproveSigningReq, cmd)
}

func curveByName(name string) wire.Curve {
	switch name {
	case "P256":
		return wire.CurveP256
	case "ED25519":
		return wire.CurveEd25519
	default:
		return wire.CurveSecp256k1
	}
}

func hashByName(name string) wire.HashType {
	switch name {
	case "SHA256":
		return wire.HashSha256
	case "KECCAK256":
		return wire.HashKeccak256
	default:
		return wire.HashNone
	}
}

// pairedClient runs the full ceremony: connect over TCP, read the
// pairing code from the UI broadcast, finalize.
func pairedClient(t *testing.T, sim *lattice.Simulator, ui *uiHarness) *client.Client {
	t.Helper()

	transport, err := client.DialTCP(sim.TCPAddr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}

	c, err := client.New(client.Config{Transport: transport})
	if err != nil {
		t.Fatalf("client.New() error = %v", err)
	}
	t.Cleanup(func() { c.Close() })

	paired, err := c.Connect()
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if paired {
		t.Fatal("fresh client reported paired")
	}

	select {
	case code := <-ui.pairingCodes:
		if err := c.Pair(code); err != nil {
			t.Fatalf("Pair() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("pairing code never reached the UI")
	}

	return c
}

func TestEndToEndPairingAndEcho(t *testing.T) {
	sim := startSimulator(t, false)
	ui := attachUI(t, sim)
	c := pairedClient(t, sim, ui)

	if !c.Paired() {
		t.Error("client not paired after ceremony")
	}

	msg := []byte("hello lattice")
	echoed, err := c.Test(msg)
	if err != nil {
		t.Fatalf("Test() error = %v", err)
	}
	if !bytes.Equal(echoed, msg) {
		t.Errorf("echo = %q, want %q", echoed, msg)
	}

	// Each reply rotates the channel.
	before := c.EphemeralID()
	for i := 0; i < 3; i++ {
		if _, err := c.Test(msg); err != nil {
			t.Fatalf("Test() round %d error = %v", i, err)
		}
	}
	if c.EphemeralID() < before+3 {
		t.Errorf("ephemeral id advanced %d in 3 rounds", c.EphemeralID()-before)
	}
}

func TestEndToEndWrongPairingCode(t *testing.T) {
	sim := startSimulator(t, false)
	ui := attachUI(t, sim)

	transport, err := client.DialTCP(sim.TCPAddr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	c, err := client.New(client.Config{Transport: transport})
	if err != nil {
		t.Fatalf("client.New() error = %v", err)
	}
	defer c.Close()

	if _, err := c.Connect(); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	select {
	case <-ui.pairingCodes:
	case <-time.After(2 * time.Second):
		t.Fatal("pairing code never reached the UI")
	}

	err = c.Pair("XXXXXXXX")
	if !client.IsCode(err, wire.CodePairFailed) {
		t.Errorf("Pair() with wrong code error = %v, want pairFailed", err)
	}
}

func TestEndToEndGetAddresses(t *testing.T) {
	sim := startSimulator(t, false)
	ui := attachUI(t, sim)
	c := pairedClient(t, sim, ui)

	addrs, err := c.GetAddresses(ethPath(0), 3, wire.AddressSecp256k1Pub)
	if err != nil {
		t.Fatalf("GetAddresses() error = %v", err)
	}
	if len(addrs) != 3 {
		t.Fatalf("got %d addresses, want 3", len(addrs))
	}

	want, err := ui.wallet.DeriveAddresses(ethPath(0), 3, "ETH", wire.AddressSecp256k1Pub)
	if err != nil {
		t.Fatalf("reference derivation: %v", err)
	}
	for i, a := range addrs {
		if a != want[i].Address {
			t.Errorf("address[%d] = %s, want %s", i, a, want[i].Address)
		}
	}
}

func TestEndToEndSignApproved(t *testing.T) {
	sim := startSimulator(t, false)
	ui := attachUI(t, sim)
	c := pairedClient(t, sim, ui)

	req := wire.SignRequest{
		Path:     ethPath(0),
		Curve:    wire.CurveSecp256k1,
		HashType: wire.HashSha256,
		Data:     []byte("transfer 1 ETH to 0xabc"),
	}
	resp, err := c.Sign(req)
	if err != nil {
		t.Fatalf("Sign() error = %v", err)
	}

	want, err := ui.wallet.Sign(req.Path, req.Curve, req.HashType, req.Data)
	if err != nil {
		t.Fatalf("reference sign: %v", err)
	}
	if !bytes.Equal(resp.Signature, want.DER) {
		t.Error("signature does not match the wallet's")
	}
	if !resp.HasRecovery || resp.Recovery != want.Recovery {
		t.Errorf("recovery = (%v, %d), want (true, %d)", resp.HasRecovery, resp.Recovery, want.Recovery)
	}
}

func TestEndToEndSignRejected(t *testing.T) {
	sim := startSimulator(t, false)
	ui := attachUI(t, sim)
	c := pairedClient(t, sim, ui)

	ui.setRejectSign(true)

	_, err := c.Sign(wire.SignRequest{
		Path:     ethPath(0),
		Curve:    wire.CurveSecp256k1,
		HashType: wire.HashSha256,
		Data:     []byte("suspicious transfer"),
	})
	if !client.IsCode(err, wire.CodeUserDeclined) {
		t.Errorf("rejected Sign() error = %v, want userDeclined", err)
	}
}

func TestEndToEndKvLifecycle(t *testing.T) {
	sim := startSimulator(t, false)
	ui := attachUI(t, sim)
	c := pairedClient(t, sim, ui)

	records := []wire.KvEntry{
		{Key: "0xaaaa", Val: "alice.eth"},
		{Key: "0xbbbb", Val: "bob.eth"},
	}
	if err := c.AddKvRecords(records); err != nil {
		t.Fatalf("AddKvRecords() error = %v", err)
	}

	// Re-adding an existing key short-circuits before UI approval.
	err := c.AddKvRecords(records[:1])
	if !client.IsCode(err, wire.CodeAlready) {
		t.Errorf("duplicate AddKvRecords() error = %v, want already", err)
	}

	page, err := c.GetKvRecords(10, 0)
	if err != nil {
		t.Fatalf("GetKvRecords() error = %v", err)
	}
	if page.Total != 2 || len(page.Records) != 2 {
		t.Fatalf("page = total %d / %d records, want 2/2", page.Total, len(page.Records))
	}
	if page.Records[0].Key != "0xaaaa" || page.Records[1].Val != "bob.eth" {
		t.Errorf("unexpected page contents: %+v", page.Records)
	}

	if err := c.RemoveKvRecords([]uint32{page.Records[0].ID}); err != nil {
		t.Fatalf("RemoveKvRecords() error = %v", err)
	}

	page, err = c.GetKvRecords(10, 0)
	if err != nil {
		t.Fatalf("GetKvRecords() after remove error = %v", err)
	}
	if page.Total != 1 || page.Records[0].Key != "0xbbbb" {
		t.Errorf("post-remove page: total=%d records=%+v", page.Total, page.Records)
	}
}

func TestEndToEndGetWallets(t *testing.T) {
	sim := startSimulator(t, false)
	ui := attachUI(t, sim)
	c := pairedClient(t, sim, ui)

	wallets, err := c.GetWallets()
	if err != nil {
		t.Fatalf("GetWallets() error = %v", err)
	}
	if wallets.Internal.UID == ([32]byte{}) {
		t.Error("internal wallet slot is empty")
	}
	if wallets.External.UID != ([32]byte{}) {
		t.Error("external wallet slot active without a SafeCard")
	}
}

func TestEndToEndUnpairedRefused(t *testing.T) {
	sim := startSimulator(t, false)
	attachUI(t, sim)

	transport, err := client.DialTCP(sim.TCPAddr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	c, err := client.New(client.Config{Transport: transport})
	if err != nil {
		t.Fatalf("client.New() error = %v", err)
	}
	defer c.Close()

	if _, err := c.Connect(); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	_, err = c.GetAddresses(ethPath(0), 1, wire.AddressSecp256k1Pub)
	if !client.IsCode(err, wire.CodePairFailed) {
		t.Errorf("unpaired GetAddresses() error = %v, want pairFailed", err)
	}
}

func TestEndToEndRelayTransport(t *testing.T) {
	sim := startSimulator(t, true)
	ui := attachUI(t, sim)

	transport := client.NewRelayTransport("http://"+sim.RelayAddr().String(), sim.DeviceID())
	c, err := client.New(client.Config{Transport: transport})
	if err != nil {
		t.Fatalf("client.New() error = %v", err)
	}
	defer c.Close()

	if _, err := c.Connect(); err != nil {
		t.Fatalf("relay Connect() error = %v", err)
	}

	select {
	case code := <-ui.pairingCodes:
		if err := c.Pair(code); err != nil {
			t.Fatalf("relay Pair() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("pairing code never reached the UI")
	}

	msg := []byte("over the relay")
	echoed, err := c.Test(msg)
	if err != nil {
		t.Fatalf("relay Test() error = %v", err)
	}
	if !bytes.Equal(echoed, msg) {
		t.Errorf("relay echo = %q, want %q", echoed, msg)
	}
}

func TestEndToEndSecondClientPairsDuringNewWindow(t *testing.T) {
	sim := startSimulator(t, false)
	ui := attachUI(t, sim)

	first := pairedClient(t, sim, ui)
	if _, err := first.Test([]byte("warm")); err != nil {
		t.Fatalf("first client Test() error = %v", err)
	}

	// A second identity triggers its own window.
	second := pairedClient(t, sim, ui)
	if _, err := second.Test([]byte("second")); err != nil {
		t.Fatalf("second client Test() error = %v", err)
	}

	// Both sessions stay live side by side.
	if _, err := first.Test([]byte("still here")); err != nil {
		t.Fatalf("first client after second paired: %v", err)
	}
	if n := sim.Sessions().Count(sim.DeviceID()); n != 2 {
		t.Errorf("session count = %d, want 2", n)
	}
}
