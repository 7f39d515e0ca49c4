package wire

import "encoding/binary"

// secureRequestOverhead is the number of cleartext bytes leading a
// SECURE frame body.
const secureRequestOverhead = 5

// SecureRequest is the body of a SECURE frame. The request type and
// ephemeral id travel in the clear; the operation payload is
// AES-256-CBC ciphertext under the session's current shared secret.
//
// Layout: requestType:u8 | ephemeralId:u32 LE | ciphertext.
type SecureRequest struct {
	RequestType RequestType
	EphemeralID uint32
	Ciphertext  []byte
}

// Size returns the encoded body size in bytes.
func (r *SecureRequest) Size() int {
	return secureRequestOverhead + len(r.Ciphertext)
}

// Encode serializes the secure request body.
func (r *SecureRequest) Encode() []byte {
	buf := make([]byte, r.Size())
	r.EncodeTo(buf)
	return buf
}

// EncodeTo serializes the secure request body into buf, which must be
// at least Size() bytes long. Returns the number of bytes written.
func (r *SecureRequest) EncodeTo(buf []byte) int {
	offset := 0

	buf[offset] = uint8(r.RequestType)
	offset++

	binary.LittleEndian.PutUint32(buf[offset:], r.EphemeralID)
	offset += 4

	copy(buf[offset:], r.Ciphertext)
	offset += len(r.Ciphertext)

	return offset
}

// Decode parses a secure request body. The Ciphertext aliases body.
func (r *SecureRequest) Decode(body []byte) error {
	if len(body) < secureRequestOverhead {
		return ErrPayloadTooShort
	}

	typ := RequestType(body[0])
	if !typ.IsValid() {
		return ErrInvalidRequestType
	}

	r.RequestType = typ
	r.EphemeralID = binary.LittleEndian.Uint32(body[1:5])
	r.Ciphertext = body[secureRequestOverhead:]

	return nil
}

// secureResponseOverhead is the number of non-data bytes in a secure
// response plaintext.
const secureResponseOverhead = 4 + PublicKeySize

// SecureResponse is the plaintext carried by a successful SECURE reply
// before encryption. The device rotates its ephemeral key pair on
// every encrypted reply; the new public key rides in the trailing 65
// bytes and the incremented ephemeral id leads.
//
// Layout: ephemeralId:u32 LE | data | newEphemeralPub[65].
type SecureResponse struct {
	EphemeralID  uint32
	Data         []byte
	EphemeralPub []byte
}

// Size returns the encoded plaintext size in bytes.
func (r *SecureResponse) Size() int {
	return secureResponseOverhead + len(r.Data)
}

// Encode serializes the secure response plaintext.
func (r *SecureResponse) Encode() []byte {
	buf := make([]byte, r.Size())
	r.EncodeTo(buf)
	return buf
}

// EncodeTo serializes the secure response plaintext into buf, which
// must be at least Size() bytes long. Returns the number of bytes
// written.
func (r *SecureResponse) EncodeTo(buf []byte) int {
	offset := 0

	binary.LittleEndian.PutUint32(buf[offset:], r.EphemeralID)
	offset += 4

	copy(buf[offset:], r.Data)
	offset += len(r.Data)

	copy(buf[offset:], r.EphemeralPub)
	offset += PublicKeySize

	return offset
}

// Decode parses a secure response plaintext. The Data slice aliases
// data.
func (r *SecureResponse) Decode(data []byte) error {
	if len(data) < secureResponseOverhead {
		return ErrPayloadTooShort
	}

	pub := data[len(data)-PublicKeySize:]
	if err := ValidatePublicKey(pub); err != nil {
		return err
	}

	r.EphemeralID = binary.LittleEndian.Uint32(data[:4])
	r.Data = data[4 : len(data)-PublicKeySize]
	r.EphemeralPub = make([]byte, PublicKeySize)
	copy(r.EphemeralPub, pub)

	return nil
}
