package wallet

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	secpecdsa "github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"

	"github.com/backkem/lattice/pkg/crypto"
	"github.com/backkem/lattice/pkg/wire"
)

// ErrInvalidDigest indicates sign data that is not a 32-byte digest
// when the request asked for no prehashing.
var ErrInvalidDigest = errors.New("wallet: data is not a 32-byte digest")

// SeedWallet derives keys and addresses from a single seed. It
// implements Deriver and Signer.
type SeedWallet struct {
	seed []byte
}

// NewSeedWallet creates a wallet from a normalized mnemonic phrase.
func NewSeedWallet(mnemonic, passphrase string) *SeedWallet {
	return &SeedWallet{seed: MnemonicSeed(mnemonic, passphrase)}
}

// NewSeedWalletFromSeed creates a wallet from raw seed bytes.
func NewSeedWalletFromSeed(seed []byte) *SeedWallet {
	s := make([]byte, len(seed))
	copy(s, seed)
	return &SeedWallet{seed: s}
}

// DeriveAddresses implements Deriver. The final path segment
// increments per derived address.
func (w *SeedWallet) DeriveAddresses(startPath []uint32, count uint8, coinType string, flag wire.AddressFlag) ([]Address, error) {
	if len(startPath) == 0 {
		return nil, ErrEmptyPath
	}

	out := make([]Address, 0, count)
	for i := uint32(0); i < uint32(count); i++ {
		path := make([]uint32, len(startPath))
		copy(path, startPath)
		path[len(path)-1] += i

		addr, err := w.deriveOne(path, coinType, flag)
		if err != nil {
			return nil, err
		}
		addr.Path = path
		out = append(out, addr)
	}

	return out, nil
}

func (w *SeedWallet) deriveOne(path []uint32, coinType string, flag wire.AddressFlag) (Address, error) {
	switch flag {
	case wire.AddressEd25519Pub:
		pub := ed25519.NewKeyFromSeed(w.childScalar(path, 0)).Public().(ed25519.PublicKey)
		hexPub := hex.EncodeToString(pub)
		return Address{Address: hexPub, PublicKey: hexPub}, nil

	case wire.AddressSecp256k1Pub, wire.AddressSecp256k1PubUncompressed:
		priv := w.secp256k1Key(path)
		uncompressed := priv.PubKey().SerializeUncompressed()

		if flag == wire.AddressSecp256k1PubUncompressed {
			hexPub := hex.EncodeToString(uncompressed)
			return Address{Address: hexPub, PublicKey: hexPub}, nil
		}

		addr, err := formatAddress(coinType, uncompressed)
		if err != nil {
			return Address{}, err
		}
		return Address{
			Address:   addr,
			PublicKey: hex.EncodeToString(priv.PubKey().SerializeCompressed()),
		}, nil

	default:
		return Address{}, fmt.Errorf("wallet: unknown address flag %d", flag)
	}
}

// Sign implements Signer.
func (w *SeedWallet) Sign(path []uint32, curve wire.Curve, hashType wire.HashType, data []byte) (Signature, error) {
	if len(path) == 0 {
		return Signature{}, ErrEmptyPath
	}

	switch curve {
	case wire.CurveSecp256k1:
		digest, err := digestFor(hashType, data)
		if err != nil {
			return Signature{}, err
		}
		priv := w.secp256k1Key(path)
		der := secpecdsa.Sign(priv, digest).Serialize()
		compact := secpecdsa.SignCompact(priv, digest, false)
		return Signature{DER: der, Recovery: compact[0] - 27, HasRecovery: true}, nil

	case wire.CurveP256:
		digest, err := digestFor(hashType, data)
		if err != nil {
			return Signature{}, err
		}
		kp, err := w.p256Key(path)
		if err != nil {
			return Signature{}, err
		}
		der, err := ecdsa.SignASN1(rand.Reader, kp.Signer(), digest)
		if err != nil {
			return Signature{}, fmt.Errorf("wallet: P-256 sign: %w", err)
		}
		return Signature{DER: der}, nil

	case wire.CurveEd25519:
		// Ed25519 signs the message itself; prehashing does not apply.
		key := ed25519.NewKeyFromSeed(w.childScalar(path, 0))
		return Signature{DER: ed25519.Sign(key, data)}, nil

	default:
		return Signature{}, ErrUnsupportedCurve
	}
}

// childScalar derives a deterministic 32-byte value for a path. The
// counter perturbs the derivation when a candidate scalar is invalid
// for the target curve.
func (w *SeedWallet) childScalar(path []uint32, counter uint8) []byte {
	buf := make([]byte, 0, len(w.seed)+4*len(path)+1)
	buf = append(buf, w.seed...)
	buf = append(buf, pathBytes(path)...)
	buf = append(buf, counter)
	sum := sha256.Sum256(buf)
	return sum[:]
}

// secp256k1Key derives the signing key at path. Candidates reduce mod
// the group order; the zero scalar retries with a bumped counter.
func (w *SeedWallet) secp256k1Key(path []uint32) *secp256k1.PrivateKey {
	for counter := uint8(0); ; counter++ {
		priv := secp256k1.PrivKeyFromBytes(w.childScalar(path, counter))
		if !priv.Key.IsZero() {
			return priv
		}
	}
}

// p256Key derives the P-256 signing key at path, retrying candidates
// the curve rejects.
func (w *SeedWallet) p256Key(path []uint32) (*crypto.KeyPair, error) {
	for counter := uint8(0); counter < 255; counter++ {
		kp, err := crypto.KeyPairFromPrivateKey(w.childScalar(path, counter))
		if err == nil {
			return kp, nil
		}
	}
	return nil, errors.New("wallet: no valid P-256 scalar for path")
}

// digestFor applies the requested prehash.
func digestFor(hashType wire.HashType, data []byte) ([]byte, error) {
	switch hashType {
	case wire.HashSha256:
		sum := sha256.Sum256(data)
		return sum[:], nil
	case wire.HashNone:
		if len(data) != 32 {
			return nil, ErrInvalidDigest
		}
		return data, nil
	default:
		// Keccak is advisory metadata the simulator does not hash
		// with; clients prehash themselves and send HashNone.
		return nil, ErrUnsupportedHash
	}
}

// formatAddress renders the simulator's address format for a chain:
// a recognizable prefix over a truncated hash of the public key.
func formatAddress(coinType string, uncompressedPub []byte) (string, error) {
	sum := sha256.Sum256(uncompressedPub[1:])

	switch coinType {
	case "ETH":
		return "0x" + hex.EncodeToString(sum[12:]), nil
	case "BTC":
		return "bc1q" + hex.EncodeToString(sum[:20]), nil
	case "BTC_TESTNET":
		return "tb1q" + hex.EncodeToString(sum[:20]), nil
	default:
		return "", ErrUnsupportedCoin
	}
}
