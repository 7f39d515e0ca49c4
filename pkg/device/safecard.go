package device

import (
	"encoding/hex"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// SafeCard is an external wallet profile: a removable card holding a
// mnemonic. The UI selects which card is active; the device derives
// external-wallet material from it.
type SafeCard struct {
	ID       string
	UID      string
	Name     string
	Mnemonic string
}

// NormalizeMnemonic trims the phrase, collapses internal whitespace to
// single spaces and applies Unicode NFKD, the canonical form mnemonic
// words are compared and key-stretched in.
func NormalizeMnemonic(mnemonic string) string {
	fields := strings.Fields(mnemonic)
	return norm.NFKD.String(strings.Join(fields, " "))
}

// WalletUID returns the 32-byte wallet uid for the card. Cards
// synced from the UI may carry an explicit hex uid; otherwise the uid
// is derived from the card id and mnemonic.
func (c *SafeCard) WalletUID() [32]byte {
	var uid [32]byte

	if raw, err := hex.DecodeString(c.UID); err == nil && len(raw) == 32 {
		copy(uid[:], raw)
		return uid
	}

	return deriveUID("safecard:" + c.ID + ":" + NormalizeMnemonic(c.Mnemonic))
}
