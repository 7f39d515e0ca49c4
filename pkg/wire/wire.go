// Package wire implements the Lattice device wire protocol framing.
//
// Every exchange between a client SDK and a device is one binary frame:
// an 8-byte header, a variable-length body and a trailing CRC-32
// checksum. Requests come in two kinds: CONNECT, which bootstraps an
// ECDH session in the clear, and SECURE, which carries an encrypted
// operation payload. Responses echo the request id and lead the body
// with a response code byte.
//
// The package provides:
//   - Frame encoding/decoding with checksum validation
//   - Connect and secure request/response payload codecs
//   - Per-operation payload codecs (addresses, signing, wallets, k/v)
//   - TCP stream framing support
//
// The codec is pure: it performs no I/O and keeps no state.
package wire

// Frame format constants.
const (
	// ProtocolVersion is the only supported wire protocol version.
	ProtocolVersion uint8 = 1

	// HeaderSize is the fixed frame header size in bytes.
	// Version (1) + Type (1) + Request ID (4) + Body Length (2) = 8
	HeaderSize = 8

	// ChecksumSize is the size of the trailing CRC-32 checksum.
	ChecksumSize = 4

	// FrameOverhead is the number of non-body bytes in a frame.
	FrameOverhead = HeaderSize + ChecksumSize

	// MaxBodyLen is the largest body a frame can carry, bounded by the
	// 16-bit length field.
	MaxBodyLen = 1<<16 - 1

	// MaxFrameSize is the largest possible encoded frame.
	MaxFrameSize = FrameOverhead + MaxBodyLen

	// PublicKeySize is the size of an uncompressed P-256 public key
	// (0x04 prefix + two 32-byte coordinates).
	PublicKeySize = 65
)

// Operation payload bounds.
const (
	// MaxAddressCount is the largest number of addresses a single
	// getAddresses request may ask for.
	MaxAddressCount = 10

	// MinAddressPathDepth is the shortest derivation path getAddresses
	// accepts.
	MinAddressPathDepth = 3

	// MaxPathDepth is the deepest derivation path any operation accepts.
	MaxPathDepth = 6

	// MaxKvKeyLen and MaxKvValLen bound key/value record fields.
	MaxKvKeyLen = 63
	MaxKvValLen = 63

	// MaxAppNameLen bounds the requester name sent with finalizePairing.
	MaxAppNameLen = 32

	// PairingCodeLen is the number of decimal digits in a pairing code.
	PairingCodeLen = 8
)

// Coin type path components (hardened), found at index 1 of a
// derivation path.
const (
	CoinTypeBTC        uint32 = 0x80000000
	CoinTypeBTCTestnet uint32 = 0x80000001
	CoinTypeETH        uint32 = 0x8000003c
)

// CoinTypeName maps a coin type path component to its chain name.
// The second return is false for unsupported coin types.
func CoinTypeName(coinType uint32) (string, bool) {
	switch coinType {
	case CoinTypeBTC:
		return "BTC", true
	case CoinTypeBTCTestnet:
		return "BTC_TESTNET", true
	case CoinTypeETH:
		return "ETH", true
	default:
		return "", false
	}
}
