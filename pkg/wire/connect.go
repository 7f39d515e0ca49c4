package wire

import "encoding/binary"

// ConnectRequest is the body of a CONNECT frame: the client's
// long-term public key, sent in the clear.
type ConnectRequest struct {
	ClientPublicKey []byte
}

// Encode serializes the connect request body.
func (r *ConnectRequest) Encode() []byte {
	body := make([]byte, PublicKeySize)
	copy(body, r.ClientPublicKey)
	return body
}

// Decode parses a connect request body. The body must be exactly the
// 65-byte uncompressed public key.
func (r *ConnectRequest) Decode(body []byte) error {
	if err := ValidatePublicKey(body); err != nil {
		return err
	}
	r.ClientPublicKey = make([]byte, PublicKeySize)
	copy(r.ClientPublicKey, body)
	return nil
}

// connectResponseSize is the plaintext payload size of a successful
// CONNECT reply.
const connectResponseSize = 1 + FirmwareSize + PublicKeySize + 4

// ConnectResponse is the plaintext payload of a successful CONNECT
// reply.
//
// Layout: paired:u8 | firmware[4] | ephemeralPub[65] |
// ephemeralId:u32 BE. The ephemeral id is the session's starting
// counter value; subsequent secure replies carry the incremented
// counter.
type ConnectResponse struct {
	Paired       bool
	Firmware     FirmwareVersion
	EphemeralPub []byte
	EphemeralID  uint32
}

// Size returns the encoded payload size in bytes.
func (r *ConnectResponse) Size() int {
	return connectResponseSize
}

// Encode serializes the connect response payload.
func (r *ConnectResponse) Encode() []byte {
	buf := make([]byte, r.Size())
	r.EncodeTo(buf)
	return buf
}

// EncodeTo serializes the connect response payload into buf, which
// must be at least Size() bytes long. Returns the number of bytes
// written.
func (r *ConnectResponse) EncodeTo(buf []byte) int {
	offset := 0

	if r.Paired {
		buf[offset] = 1
	} else {
		buf[offset] = 0
	}
	offset++

	copy(buf[offset:], r.Firmware.Encode())
	offset += FirmwareSize

	copy(buf[offset:], r.EphemeralPub)
	offset += PublicKeySize

	binary.BigEndian.PutUint32(buf[offset:], r.EphemeralID)
	offset += 4

	return offset
}

// Decode parses a connect response payload.
func (r *ConnectResponse) Decode(data []byte) error {
	if len(data) != connectResponseSize {
		return ErrPayloadTooShort
	}

	r.Paired = data[0] != 0

	fw, err := DecodeFirmware(data[1:])
	if err != nil {
		return err
	}
	r.Firmware = fw

	pub := data[1+FirmwareSize : 1+FirmwareSize+PublicKeySize]
	if err := ValidatePublicKey(pub); err != nil {
		return err
	}
	r.EphemeralPub = make([]byte, PublicKeySize)
	copy(r.EphemeralPub, pub)

	r.EphemeralID = binary.BigEndian.Uint32(data[1+FirmwareSize+PublicKeySize:])

	return nil
}
