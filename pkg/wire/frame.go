package wire

import (
	"encoding/binary"
	"hash/crc32"
)

// Frame is one complete protocol frame.
//
// Layout, big-endian: version:u8 | type:u8 | id:u32 | len:u16 |
// body[len] | checksum:u32. The checksum is an IEEE CRC-32 over the
// header and body bytes.
type Frame struct {
	// Type discriminates connect requests, secure requests and
	// responses.
	Type FrameType

	// ID correlates a response with its request. Devices echo the
	// request id unchanged.
	ID uint32

	// Body is the frame payload. Its interpretation depends on Type.
	Body []byte
}

// Size returns the encoded size of the frame in bytes.
func (f *Frame) Size() int {
	return FrameOverhead + len(f.Body)
}

// Encode serializes the frame, including the trailing checksum.
func (f *Frame) Encode() []byte {
	buf := make([]byte, f.Size())
	f.EncodeTo(buf)
	return buf
}

// EncodeTo serializes the frame into buf, which must be at least
// Size() bytes long. Returns the number of bytes written.
func (f *Frame) EncodeTo(buf []byte) int {
	offset := 0

	buf[offset] = ProtocolVersion
	offset++

	buf[offset] = uint8(f.Type)
	offset++

	binary.BigEndian.PutUint32(buf[offset:], f.ID)
	offset += 4

	binary.BigEndian.PutUint16(buf[offset:], uint16(len(f.Body)))
	offset += 2

	copy(buf[offset:], f.Body)
	offset += len(f.Body)

	binary.BigEndian.PutUint32(buf[offset:], Checksum(buf[:offset]))
	offset += ChecksumSize

	return offset
}

// Decode parses a frame from data. The frame must occupy the entire
// buffer; trailing bytes are an error. The decoded Body aliases data.
// Returns the number of bytes consumed.
func (f *Frame) Decode(data []byte) (int, error) {
	if len(data) < FrameOverhead {
		return 0, ErrFrameTooShort
	}
	if data[0] != ProtocolVersion {
		return 0, ErrInvalidVersion
	}

	typ := FrameType(data[1])
	if !typ.IsValid() {
		return 0, ErrInvalidType
	}

	bodyLen := int(binary.BigEndian.Uint16(data[6:8]))
	total := HeaderSize + bodyLen + ChecksumSize
	if len(data) < total {
		return 0, ErrLengthMismatch
	}
	if len(data) > total {
		return 0, ErrTrailingBytes
	}

	end := HeaderSize + bodyLen
	want := binary.BigEndian.Uint32(data[end:])
	if Checksum(data[:end]) != want {
		return 0, ErrChecksumMismatch
	}

	f.Type = typ
	f.ID = binary.BigEndian.Uint32(data[2:6])
	f.Body = data[HeaderSize:end]

	return total, nil
}

// Checksum computes the frame checksum over the header and body bytes.
// The hardware uses the standard IEEE CRC-32 polynomial.
func Checksum(data []byte) uint32 {
	return crc32.ChecksumIEEE(data)
}

// NewConnectFrame builds a CONNECT request frame carrying the client's
// uncompressed P-256 public key.
func NewConnectFrame(id uint32, clientPub []byte) (*Frame, error) {
	if err := ValidatePublicKey(clientPub); err != nil {
		return nil, err
	}
	body := make([]byte, PublicKeySize)
	copy(body, clientPub)
	return &Frame{Type: FrameTypeConnect, ID: id, Body: body}, nil
}

// NewSecureFrame builds a SECURE request frame around an encrypted
// operation payload.
func NewSecureFrame(id uint32, req *SecureRequest) *Frame {
	return &Frame{Type: FrameTypeSecure, ID: id, Body: req.Encode()}
}

// NewResponseFrame builds a response frame. Non-success responses
// carry no payload beyond the code byte.
func NewResponseFrame(id uint32, code ResponseCode, payload []byte) *Frame {
	body := make([]byte, 1+len(payload))
	body[0] = uint8(code)
	copy(body[1:], payload)
	return &Frame{Type: FrameTypeResponse, ID: id, Body: body}
}

// Response splits a response frame body into its code and payload.
func (f *Frame) Response() (ResponseCode, []byte, error) {
	if f.Type != FrameTypeResponse {
		return 0, nil, ErrInvalidType
	}
	if len(f.Body) < 1 {
		return 0, nil, ErrPayloadTooShort
	}
	code := ResponseCode(f.Body[0])
	if !code.IsValid() {
		return 0, nil, ErrInvalidResponseCode
	}
	return code, f.Body[1:], nil
}

// ValidatePublicKey checks that pub is a 65-byte uncompressed SEC1
// point with the 0x04 prefix. It does not check that the point is on
// the curve; key exchange does that.
func ValidatePublicKey(pub []byte) error {
	if len(pub) != PublicKeySize || pub[0] != 0x04 {
		return ErrInvalidPublicKey
	}
	return nil
}
