package crypto

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"errors"
	"fmt"
)

// AES-256-CBC parameters. The hardware protocol fixes the IV to all
// zeroes; freshness comes from the per-reply key rotation instead.
const (
	// KeySize is the AES-256 key length in bytes.
	KeySize = 32

	// BlockSize is the AES block length in bytes.
	BlockSize = aes.BlockSize
)

var (
	ErrInvalidKeySize    = errors.New("crypto: key must be 32 bytes")
	ErrInvalidCiphertext = errors.New("crypto: ciphertext is not block-aligned")
	ErrInvalidPadding    = errors.New("crypto: bad PKCS#7 padding")
)

var zeroIV [BlockSize]byte

// EncryptCBC encrypts plaintext with AES-256-CBC under key, using the
// protocol's fixed zero IV. PKCS#7 padding is always applied: a
// block-aligned plaintext gains a full block of padding.
func EncryptCBC(key, plaintext []byte) ([]byte, error) {
	block, err := newCipher(key)
	if err != nil {
		return nil, err
	}

	padded := pkcs7Pad(plaintext)
	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, zeroIV[:]).CryptBlocks(ciphertext, padded)

	return ciphertext, nil
}

// DecryptCBC decrypts an AES-256-CBC ciphertext under key and strips
// the PKCS#7 padding.
func DecryptCBC(key, ciphertext []byte) ([]byte, error) {
	block, err := newCipher(key)
	if err != nil {
		return nil, err
	}

	if len(ciphertext) == 0 || len(ciphertext)%BlockSize != 0 {
		return nil, ErrInvalidCiphertext
	}

	plaintext := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, zeroIV[:]).CryptBlocks(plaintext, ciphertext)

	return pkcs7Unpad(plaintext)
}

func newCipher(key []byte) (cipher.Block, error) {
	if len(key) != KeySize {
		return nil, ErrInvalidKeySize
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("crypto: %w", err)
	}
	return block, nil
}

func pkcs7Pad(data []byte) []byte {
	n := BlockSize - len(data)%BlockSize
	return append(append([]byte{}, data...), bytes.Repeat([]byte{byte(n)}, n)...)
}

func pkcs7Unpad(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, ErrInvalidPadding
	}
	n := int(data[len(data)-1])
	if n == 0 || n > BlockSize || n > len(data) {
		return nil, ErrInvalidPadding
	}
	for _, b := range data[len(data)-n:] {
		if int(b) != n {
			return nil, ErrInvalidPadding
		}
	}
	return data[:len(data)-n], nil
}
