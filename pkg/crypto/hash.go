package crypto

import "crypto/sha256"

// SHA256LenBytes is the SHA-256 output length in bytes.
const SHA256LenBytes = 32

// SHA256 computes the SHA-256 hash of a message.
func SHA256(message []byte) [SHA256LenBytes]byte {
	return sha256.Sum256(message)
}

// SHA256Slice computes the SHA-256 hash and returns it as a slice.
func SHA256Slice(message []byte) []byte {
	h := sha256.Sum256(message)
	return h[:]
}

// PairingMessage builds the byte string a client signs to finalize
// pairing: the client's public key, the requester name and the
// pairing code, concatenated in that order. SignDER and VerifyDER
// apply the SHA-256 themselves.
func PairingMessage(clientPublicKey []byte, appName, pairingCode string) []byte {
	buf := make([]byte, 0, len(clientPublicKey)+len(appName)+len(pairingCode))
	buf = append(buf, clientPublicKey...)
	buf = append(buf, appName...)
	buf = append(buf, pairingCode...)
	return buf
}

// PairingHash computes the pairing digest: SHA-256 over the
// PairingMessage bytes.
func PairingHash(clientPublicKey []byte, appName, pairingCode string) []byte {
	return SHA256Slice(PairingMessage(clientPublicKey, appName, pairingCode))
}
