package crypto

import (
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"fmt"
)

// Identifier sizes.
const (
	// DeviceIDSize is the raw device identifier length in bytes. The
	// identifier circulates hex-encoded.
	DeviceIDSize = 16

	// RequestIDSize is the frame request identifier length in bytes.
	RequestIDSize = 8

	// PairingCodeDigits is the number of decimal digits in a pairing
	// code.
	PairingCodeDigits = 8
)

// pairingCodeSpace is 10^PairingCodeDigits.
const pairingCodeSpace = 100000000

// RandomDeviceID returns a fresh hex-encoded 16-byte device id.
func RandomDeviceID() (string, error) {
	var raw [DeviceIDSize]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", fmt.Errorf("crypto: device id: %w", err)
	}
	return hex.EncodeToString(raw[:]), nil
}

// RandomRequestID returns a fresh 8-byte request id.
func RandomRequestID() ([]byte, error) {
	id := make([]byte, RequestIDSize)
	if _, err := rand.Read(id); err != nil {
		return nil, fmt.Errorf("crypto: request id: %w", err)
	}
	return id, nil
}

// RandomUint32 returns a uniformly random 32-bit value below max.
// Rejection sampling keeps the distribution uniform.
func RandomUint32(max uint32) (uint32, error) {
	if max == 0 {
		return 0, nil
	}

	// Largest multiple of max that fits in 32 bits.
	limit := (1<<32 / uint64(max)) * uint64(max)

	var buf [4]byte
	for {
		if _, err := rand.Read(buf[:]); err != nil {
			return 0, fmt.Errorf("crypto: random: %w", err)
		}
		v := binary.BigEndian.Uint32(buf[:])
		if uint64(v) < limit {
			return v % max, nil
		}
	}
}

// GeneratePairingCode returns an 8-digit decimal pairing code, uniform
// over the full 10^8 space and zero-padded on the left.
func GeneratePairingCode() (string, error) {
	n, err := RandomUint32(pairingCodeSpace)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%08d", n), nil
}
