package lattice

import (
	"encoding/hex"
	"encoding/json"

	"github.com/backkem/lattice/pkg/device"
	"github.com/backkem/lattice/pkg/session"
	"github.com/backkem/lattice/pkg/signing"
	"github.com/backkem/lattice/pkg/uichannel"
	"github.com/backkem/lattice/pkg/wire"
)

// approveCommand is the approve_signing_request payload. The signature
// is hex; recovery is present only for curves that have one.
type approveCommand struct {
	RequestID string `json:"requestId"`
	Signature string `json:"signature"`
	Recovery  *uint8 `json:"recovery,omitempty"`
}

type rejectCommand struct {
	RequestID string `json:"requestId"`
}

type setLockedCommand struct {
	Locked bool `json:"locked"`
}

type resetCommand struct {
	ResetType string `json:"resetType"`
}

type updateConfigCommand struct {
	Name            string   `json:"name,omitempty"`
	FirmwareVersion [4]uint8 `json:"firmwareVersion"`
}

type setActiveSafeCardCommand struct {
	ID       string `json:"id"`
	UID      string `json:"uid,omitempty"`
	Name     string `json:"name,omitempty"`
	Mnemonic string `json:"mnemonic,omitempty"`
}

type setActiveWalletCommand struct {
	External bool `json:"external"`
}

// OnDeviceCommand implements uichannel.CommandSink: the imperative UI
// controls of one device.
func (s *Simulator) OnDeviceCommand(deviceID string, cmd uichannel.DeviceCommand) {
	dev := s.registry.GetOrCreate(deviceID)

	switch cmd.Command {
	case uichannel.CommandEnterPairingMode:
		if _, err := s.controller(deviceID).Open(); err != nil && s.log != nil {
			s.log.Warnf("enter_pairing_mode failed: device=%s err=%v", deviceID, err)
		}

	case uichannel.CommandExitPairingMode:
		s.controller(deviceID).Exit()
		if req := s.takePairRequest(deviceID); req != nil {
			s.signing.Reject(req.ID)
		}

	case uichannel.CommandSetLocked:
		var c setLockedCommand
		if err := json.Unmarshal(cmd.Data, &c); err != nil {
			s.badCommand(deviceID, cmd.Command, err)
			return
		}
		dev.SetLocked(c.Locked)
		s.broadcastState(deviceID)

	case uichannel.CommandResetDevice:
		var c resetCommand
		if len(cmd.Data) > 0 {
			if err := json.Unmarshal(cmd.Data, &c); err != nil {
				s.badCommand(deviceID, cmd.Command, err)
				return
			}
		}
		s.resetDevice(deviceID, dev, c.ResetType)

	case uichannel.CommandUpdateConfig:
		var c updateConfigCommand
		if err := json.Unmarshal(cmd.Data, &c); err != nil {
			s.badCommand(deviceID, cmd.Command, err)
			return
		}
		s.applyConfig(dev, c)
		s.broadcastState(deviceID)

	case uichannel.CommandSyncClientState:
		var state device.ClientState
		if err := json.Unmarshal(cmd.Data, &state); err != nil {
			s.badCommand(deviceID, cmd.Command, err)
			return
		}
		dev.ApplyClientState(&state)
		s.broadcastState(deviceID)

	case uichannel.CommandSetActiveSafeCard:
		var c setActiveSafeCardCommand
		if len(cmd.Data) > 0 {
			if err := json.Unmarshal(cmd.Data, &c); err != nil {
				s.badCommand(deviceID, cmd.Command, err)
				return
			}
		}
		if c.ID == "" {
			dev.SetActiveSafeCard(nil)
		} else {
			dev.SetActiveSafeCard(&device.SafeCard{
				ID:       c.ID,
				UID:      c.UID,
				Name:     c.Name,
				Mnemonic: c.Mnemonic,
			})
		}
		s.broadcastState(deviceID)

	case uichannel.CommandSetActiveWallet:
		var c setActiveWalletCommand
		if err := json.Unmarshal(cmd.Data, &c); err != nil {
			s.badCommand(deviceID, cmd.Command, err)
			return
		}
		// Selecting the internal wallet deactivates the card; the
		// external slot only exists while a card is active.
		if !c.External {
			dev.SetActiveSafeCard(nil)
			s.broadcastState(deviceID)
		}

	case uichannel.CommandApproveSigningReq:
		var c approveCommand
		if err := json.Unmarshal(cmd.Data, &c); err != nil {
			s.badCommand(deviceID, cmd.Command, err)
			return
		}
		s.approveRequest(deviceID, c)

	case uichannel.CommandRejectSigningRequest:
		var c rejectCommand
		if err := json.Unmarshal(cmd.Data, &c); err != nil {
			s.badCommand(deviceID, cmd.Command, err)
			return
		}
		if !s.signing.Reject(c.RequestID) && s.log != nil {
			s.log.Debugf("reject for unknown request %s: device=%s", c.RequestID, deviceID)
		}

	case uichannel.CommandConnectionChanged, uichannel.CommandPairingChanged,
		uichannel.CommandSyncWalletAccounts, uichannel.CommandDeriveAddresses:
		// UI-scoped bookkeeping; the server owns the authoritative
		// connection and pairing facts.
		if s.log != nil {
			s.log.Debugf("acknowledged UI command %s: device=%s", cmd.Command, deviceID)
		}

	default:
		if s.log != nil {
			s.log.Warnf("unknown device command %q: device=%s", cmd.Command, deviceID)
		}
	}
}

// OnDeviceEvent implements uichannel.CommandSink. Events are
// informational; they are logged and dropped.
func (s *Simulator) OnDeviceEvent(deviceID string, event uichannel.DeviceEvent) {
	if s.log != nil {
		s.log.Debugf("device event %s: device=%s", event.EventType, deviceID)
	}
}

func (s *Simulator) approveRequest(deviceID string, c approveCommand) {
	sig, err := hex.DecodeString(c.Signature)
	if err != nil {
		s.badCommand(deviceID, uichannel.CommandApproveSigningReq, err)
		return
	}

	result := signing.Result{Signature: sig}
	if c.Recovery != nil {
		result.Recovery = *c.Recovery
		result.HasRecovery = true
	}

	if !s.signing.Approve(c.RequestID, result) && s.log != nil {
		s.log.Debugf("approve for unknown request %s: device=%s", c.RequestID, deviceID)
	}
}

// resetDevice handles reset_device. A connection reset drops the
// device's sessions; a full reset also clears its mutable state.
func (s *Simulator) resetDevice(deviceID string, dev *device.Device, resetType string) {
	if resetType != "connection" {
		dev.Reset()
	}

	s.sessions.ForEach(deviceID, func(sess *session.Session) bool {
		s.dispatcher.ReleaseSession(sess.Key())
		return true
	})
	s.sessions.DisposeDevice(deviceID)
	s.signing.ExpireDevice(deviceID)
	s.controller(deviceID).Exit()

	s.broadcastConnection(deviceID)
	s.broadcastState(deviceID)
}

func (s *Simulator) applyConfig(dev *device.Device, c updateConfigCommand) {
	if c.Name != "" {
		dev.SetName(c.Name)
	}
	if c.FirmwareVersion != ([4]uint8{}) {
		if fw, err := wire.DecodeFirmware(c.FirmwareVersion[:]); err == nil {
			dev.SetFirmware(fw)
		}
	}
}

func (s *Simulator) badCommand(deviceID, command string, err error) {
	if s.log != nil {
		s.log.Warnf("malformed %s command: device=%s err=%v", command, deviceID, err)
	}
}
