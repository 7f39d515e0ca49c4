package device

import (
	"crypto/sha256"

	"github.com/backkem/lattice/pkg/wire"
)

// Wallet describes one wallet slot on the device. The internal slot is
// always populated; the external slot tracks the active SafeCard.
type Wallet struct {
	UID          [32]byte
	External     bool
	Name         []byte
	Capabilities uint32
}

// ToWire converts the wallet to its wire descriptor.
func (w *Wallet) ToWire() wire.WalletDescriptor {
	return wire.WalletDescriptor{
		UID:          w.UID,
		Capabilities: w.Capabilities,
		Name:         w.Name,
	}
}

// deriveUID produces a stable 32-byte uid from a seed string.
func deriveUID(seed string) [32]byte {
	return sha256.Sum256([]byte(seed))
}
