package crypto

import (
	"crypto/ecdsa"
	"crypto/rand"
	"fmt"
)

// SignDER signs message with the key pair's ECDSA half and returns an
// ASN.1 DER encoded signature. The message is hashed with SHA-256
// before signing.
func SignDER(keyPair *KeyPair, message []byte) ([]byte, error) {
	hash := SHA256(message)
	sig, err := ecdsa.SignASN1(rand.Reader, keyPair.ecdsaPrivate, hash[:])
	if err != nil {
		return nil, fmt.Errorf("crypto: ECDSA sign failed: %w", err)
	}
	return sig, nil
}

// VerifyDER checks an ASN.1 DER encoded ECDSA signature over message
// against a 65-byte uncompressed public key. The message is hashed
// with SHA-256 before verification.
func VerifyDER(publicKey, message, derSignature []byte) (bool, error) {
	pub, err := ParsePublicKey(publicKey)
	if err != nil {
		return false, err
	}

	hash := SHA256(message)
	return ecdsa.VerifyASN1(pub, hash[:], derSignature), nil
}
