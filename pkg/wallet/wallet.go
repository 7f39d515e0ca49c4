// Package wallet provides the derivation and signing services the UI
// process backs a device with. The protocol engine never touches key
// material; it proxies work here through the UI channel.
//
// Derivation is deliberately simplified: addresses and keys are
// deterministic in (seed, path) but do not follow BIP-32 child key
// derivation. Chain-faithful cryptography is out of scope for the
// simulator; client SDKs only need stable, well-formed material.
package wallet

import (
	"crypto/sha512"
	"encoding/binary"
	"errors"

	"golang.org/x/crypto/pbkdf2"

	"github.com/backkem/lattice/pkg/wire"
)

// Seed derivation parameters, matching the BIP-39 key-stretch so the
// same mnemonic always lands on the same seed.
const (
	seedIterations = 2048
	seedSize       = 64
	seedSaltPrefix = "mnemonic"
)

var (
	// ErrUnsupportedCurve indicates a sign request for a curve the
	// wallet does not implement.
	ErrUnsupportedCurve = errors.New("wallet: unsupported curve")

	// ErrUnsupportedHash indicates a sign request for a hash type the
	// wallet does not implement.
	ErrUnsupportedHash = errors.New("wallet: unsupported hash type")

	// ErrUnsupportedCoin indicates a derivation request for a coin
	// type the wallet does not know.
	ErrUnsupportedCoin = errors.New("wallet: unsupported coin type")

	// ErrEmptyPath indicates a request without a derivation path.
	ErrEmptyPath = errors.New("wallet: empty derivation path")
)

// Address is one derived account.
type Address struct {
	// Address is the chain-formatted account string.
	Address string

	// PublicKey is the hex-encoded public key behind the address.
	PublicKey string

	// Path is the full derivation path of this account.
	Path []uint32
}

// Signature is a detached signature with an optional recovery id.
type Signature struct {
	// DER is the ASN.1 DER encoded signature.
	DER []byte

	// Recovery is the recovery id, meaningful when HasRecovery.
	Recovery uint8

	// HasRecovery reports whether the curve yields a recovery id.
	HasRecovery bool
}

// Deriver produces addresses for a derivation path range.
type Deriver interface {
	// DeriveAddresses derives count consecutive addresses starting at
	// startPath; the final path segment increments per address.
	DeriveAddresses(startPath []uint32, count uint8, coinType string, flag wire.AddressFlag) ([]Address, error)
}

// Signer signs data on a derivation path.
type Signer interface {
	// Sign hashes data per hashType and signs the digest with the key
	// at path on the given curve.
	Sign(path []uint32, curve wire.Curve, hashType wire.HashType, data []byte) (Signature, error)
}

// MnemonicSeed stretches a mnemonic phrase into a 64-byte seed:
// PBKDF2-SHA512, 2048 rounds, "mnemonic"+passphrase salt. The phrase
// must already be normalized (device.NormalizeMnemonic).
func MnemonicSeed(mnemonic, passphrase string) []byte {
	return pbkdf2.Key([]byte(mnemonic), []byte(seedSaltPrefix+passphrase), seedIterations, seedSize, sha512.New)
}

// pathBytes serializes a derivation path for key derivation input.
func pathBytes(path []uint32) []byte {
	buf := make([]byte, 4*len(path))
	for i, seg := range path {
		binary.BigEndian.PutUint32(buf[4*i:], seg)
	}
	return buf
}
