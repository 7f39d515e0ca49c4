package device

import (
	"encoding/hex"

	"github.com/backkem/lattice/pkg/wire"
)

// ClientState is the persisted snapshot the UI pushes over
// sync_client_state when its channel opens. The envelope is typed but
// tolerant: unknown fields are ignored, absent fields leave the
// device untouched. Session pairing bits are never part of it.
type ClientState struct {
	DeviceInfo        *DeviceInfo           `json:"deviceInfo,omitempty"`
	KvRecords         []KvRecordState       `json:"kvRecords,omitempty"`
	SafeCards         []SafeCardState       `json:"safeCards,omitempty"`
	ActiveSafeCardID  string                `json:"activeSafeCardId,omitempty"`
	WalletsBySafeCard map[string]WalletInfo `json:"walletsBySafeCard,omitempty"`
}

// DeviceInfo mirrors the UI's persisted device identity block. The
// firmware version travels in wire order: patch, minor, major,
// reserved.
type DeviceInfo struct {
	DeviceID        string   `json:"deviceId,omitempty"`
	Name            string   `json:"name,omitempty"`
	FirmwareVersion [4]uint8 `json:"firmwareVersion"`
}

// KvRecordState is one persisted key/value record.
type KvRecordState struct {
	Type uint32 `json:"type"`
	Key  string `json:"key"`
	Val  string `json:"val"`
}

// SafeCardState is one persisted SafeCard profile.
type SafeCardState struct {
	ID       string `json:"id"`
	UID      string `json:"uid,omitempty"`
	Name     string `json:"name"`
	Mnemonic string `json:"mnemonic,omitempty"`
}

// WalletInfo is the UI's record of a wallet derived from a SafeCard.
type WalletInfo struct {
	UID          string `json:"uid"`
	Name         string `json:"name"`
	Capabilities uint32 `json:"capabilities"`
}

// ApplyClientState overwrites the device-scoped fields present in
// state. It never touches session pairing state.
func (d *Device) ApplyClientState(state *ClientState) {
	if state == nil {
		return
	}

	if info := state.DeviceInfo; info != nil {
		if info.Name != "" {
			d.SetName(info.Name)
		}
		if info.FirmwareVersion != ([4]uint8{}) {
			fw, err := wire.DecodeFirmware(info.FirmwareVersion[:])
			if err == nil {
				d.SetFirmware(fw)
			}
		}
	}

	if state.KvRecords != nil {
		pairs := make([]KvPair, 0, len(state.KvRecords))
		for _, r := range state.KvRecords {
			pairs = append(pairs, KvPair{Type: r.Type, Key: r.Key, Val: r.Val})
		}
		d.mu.Lock()
		d.kv.Replace(pairs)
		d.mu.Unlock()
	}

	if state.ActiveSafeCardID != "" {
		for _, c := range state.SafeCards {
			if c.ID != state.ActiveSafeCardID {
				continue
			}
			d.SetActiveSafeCard(&SafeCard{
				ID:       c.ID,
				UID:      c.UID,
				Name:     c.Name,
				Mnemonic: c.Mnemonic,
			})
			break
		}
	}
}

// State is the device snapshot broadcast to the UI as device_state.
type State struct {
	DeviceID        string          `json:"deviceId"`
	Name            string          `json:"name"`
	FirmwareVersion [4]uint8        `json:"firmwareVersion"`
	Locked          bool            `json:"locked"`
	ActiveWallets   WalletSlots     `json:"activeWallets"`
	KvRecords       []KvRecordState `json:"kvRecords"`
	ActiveSafeCard  string          `json:"activeSafeCardId,omitempty"`
}

// WalletSlots mirrors the two wallet slots in the state snapshot.
type WalletSlots struct {
	Internal *WalletInfo `json:"internal,omitempty"`
	External *WalletInfo `json:"external,omitempty"`
}

// Snapshot captures the current device state for broadcasting.
func (d *Device) Snapshot() State {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var fw [4]uint8
	copy(fw[:], d.firmware.Encode())

	st := State{
		DeviceID:        d.id,
		Name:            d.name,
		FirmwareVersion: fw,
		Locked:          d.locked,
	}

	st.ActiveWallets.Internal = walletInfo(d.internal)
	if d.external.External {
		st.ActiveWallets.External = walletInfo(d.external)
	}
	if d.safeCard != nil {
		st.ActiveSafeCard = d.safeCard.ID
	}

	for _, p := range d.kv.All() {
		st.KvRecords = append(st.KvRecords, KvRecordState{Type: p.Type, Key: p.Key, Val: p.Val})
	}

	return st
}

func walletInfo(w Wallet) *WalletInfo {
	return &WalletInfo{
		UID:          hex.EncodeToString(w.UID[:]),
		Name:         string(w.Name),
		Capabilities: w.Capabilities,
	}
}
