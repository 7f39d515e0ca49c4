// Package crypto provides the cryptographic primitives behind the
// Lattice wire protocol: P-256 key agreement, AES-256-CBC payload
// encryption, SHA-256 and the random identifiers the device hands out.
package crypto

import (
	"crypto/ecdh"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
)

// P-256 sizes.
const (
	// GroupSizeBytes is the P-256 group size in bytes.
	GroupSizeBytes = 32

	// PublicKeySizeBytes is the uncompressed public key size.
	// Format: 0x04 || X (32 bytes) || Y (32 bytes) = 65 bytes
	PublicKeySizeBytes = 65

	// SharedSecretSizeBytes is the ECDH output size: the big-endian X
	// coordinate of the shared point.
	SharedSecretSizeBytes = 32
)

var (
	ErrInvalidPublicKey  = errors.New("crypto: invalid uncompressed public key")
	ErrInvalidPrivateKey = errors.New("crypto: invalid private key scalar")
)

// KeyPair is a P-256 key pair. It backs both ECDH key agreement and
// ECDSA signature checks during pairing.
type KeyPair struct {
	ecdhPrivate  *ecdh.PrivateKey
	ecdsaPrivate *ecdsa.PrivateKey
}

// GenerateKeyPair generates a new P-256 key pair.
func GenerateKeyPair() (*KeyPair, error) {
	ecdhPriv, err := ecdh.P256().GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate ECDH key: %w", err)
	}

	ecdsaPriv, err := ecdhToECDSA(ecdhPriv)
	if err != nil {
		return nil, err
	}

	return &KeyPair{ecdhPrivate: ecdhPriv, ecdsaPrivate: ecdsaPriv}, nil
}

// KeyPairFromPrivateKey creates a key pair from an existing 32-byte
// private key scalar.
func KeyPairFromPrivateKey(privateKey []byte) (*KeyPair, error) {
	if len(privateKey) != GroupSizeBytes {
		return nil, ErrInvalidPrivateKey
	}

	ecdhPriv, err := ecdh.P256().NewPrivateKey(privateKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPrivateKey, err)
	}

	ecdsaPriv, err := ecdhToECDSA(ecdhPriv)
	if err != nil {
		return nil, err
	}

	return &KeyPair{ecdhPrivate: ecdhPriv, ecdsaPrivate: ecdsaPriv}, nil
}

// PublicKey returns the public key in uncompressed format (65 bytes).
// Format: 0x04 || X (32 bytes) || Y (32 bytes)
func (kp *KeyPair) PublicKey() []byte {
	return kp.ecdhPrivate.PublicKey().Bytes()
}

// PrivateKey returns the private key as a 32-byte scalar.
func (kp *KeyPair) PrivateKey() []byte {
	return kp.ecdhPrivate.Bytes()
}

// ECDH derives the 32-byte shared secret between kp and a peer's
// 65-byte uncompressed public key: the big-endian X coordinate of the
// shared point.
func (kp *KeyPair) ECDH(peerPublicKey []byte) ([]byte, error) {
	peer, err := ecdh.P256().NewPublicKey(peerPublicKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
	}

	secret, err := kp.ecdhPrivate.ECDH(peer)
	if err != nil {
		return nil, fmt.Errorf("ECDH failed: %w", err)
	}

	return secret, nil
}

// Signer exposes the key pair's ECDSA half, for pairing signatures.
func (kp *KeyPair) Signer() *ecdsa.PrivateKey {
	return kp.ecdsaPrivate
}

// ecdhToECDSA converts an ecdh.PrivateKey to an ecdsa.PrivateKey so
// the same scalar can also sign.
func ecdhToECDSA(ecdhKey *ecdh.PrivateKey) (*ecdsa.PrivateKey, error) {
	pubBytes := ecdhKey.PublicKey().Bytes()
	if len(pubBytes) != PublicKeySizeBytes || pubBytes[0] != 0x04 {
		return nil, ErrInvalidPublicKey
	}

	return &ecdsa.PrivateKey{
		PublicKey: ecdsa.PublicKey{
			Curve: elliptic.P256(),
			X:     new(big.Int).SetBytes(pubBytes[1:33]),
			Y:     new(big.Int).SetBytes(pubBytes[33:65]),
		},
		D: new(big.Int).SetBytes(ecdhKey.Bytes()),
	}, nil
}

// ParsePublicKey converts a 65-byte uncompressed public key into an
// ecdsa.PublicKey, checking that the point is on the curve.
func ParsePublicKey(publicKey []byte) (*ecdsa.PublicKey, error) {
	if len(publicKey) != PublicKeySizeBytes || publicKey[0] != 0x04 {
		return nil, ErrInvalidPublicKey
	}

	x := new(big.Int).SetBytes(publicKey[1:33])
	y := new(big.Int).SetBytes(publicKey[33:65])
	if !elliptic.P256().IsOnCurve(x, y) {
		return nil, ErrInvalidPublicKey
	}

	return &ecdsa.PublicKey{Curve: elliptic.P256(), X: x, Y: y}, nil
}
