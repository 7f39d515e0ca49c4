package wire

import (
	"bytes"
	"encoding/binary"
)

// Wallet descriptor field sizes.
const (
	WalletUIDSize  = 32
	WalletNameSize = 35

	walletDescriptorSize = WalletUIDSize + 4 + WalletNameSize
)

// WalletDescriptor describes one wallet slot.
//
// Layout: uid[32] | capabilities:u32 BE | name[35], zero-padded. An
// empty slot is all zeroes.
type WalletDescriptor struct {
	UID          [32]byte
	Capabilities uint32
	Name         []byte
}

// Empty reports whether the descriptor describes no wallet.
func (d *WalletDescriptor) Empty() bool {
	return d.UID == [32]byte{}
}

// EncodeTo serializes the descriptor into buf, which must be at least
// walletDescriptorSize bytes long. Names longer than WalletNameSize
// are cut at the wire boundary. Returns the number of bytes written.
func (d *WalletDescriptor) EncodeTo(buf []byte) int {
	offset := 0

	copy(buf[offset:], d.UID[:])
	offset += WalletUIDSize

	binary.BigEndian.PutUint32(buf[offset:], d.Capabilities)
	offset += 4

	name := d.Name
	if len(name) > WalletNameSize {
		name = name[:WalletNameSize]
	}
	copy(buf[offset:offset+WalletNameSize], name)
	offset += WalletNameSize

	return offset
}

// Decode parses one descriptor. Trailing zero padding is stripped from
// the name.
func (d *WalletDescriptor) Decode(data []byte) error {
	if len(data) < walletDescriptorSize {
		return ErrPayloadTooShort
	}

	copy(d.UID[:], data[:WalletUIDSize])
	d.Capabilities = binary.BigEndian.Uint32(data[WalletUIDSize:])

	name := bytes.TrimRight(data[WalletUIDSize+4:walletDescriptorSize], "\x00")
	d.Name = make([]byte, len(name))
	copy(d.Name, name)

	return nil
}

// GetWalletsResponse returns the internal wallet slot followed by the
// external (SafeCard) slot.
type GetWalletsResponse struct {
	Internal WalletDescriptor
	External WalletDescriptor
}

// Size returns the encoded payload size in bytes.
func (r *GetWalletsResponse) Size() int {
	return 2 * walletDescriptorSize
}

// Encode serializes the response payload.
func (r *GetWalletsResponse) Encode() []byte {
	buf := make([]byte, r.Size())
	offset := r.Internal.EncodeTo(buf)
	r.External.EncodeTo(buf[offset:])
	return buf
}

// Decode parses a getWallets response payload.
func (r *GetWalletsResponse) Decode(data []byte) error {
	if len(data) != 2*walletDescriptorSize {
		return ErrPayloadTooShort
	}
	if err := r.Internal.Decode(data); err != nil {
		return err
	}
	return r.External.Decode(data[walletDescriptorSize:])
}
