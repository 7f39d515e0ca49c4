package wire

import "encoding/binary"

// NoRecovery is the wire value of the recovery byte when the signature
// scheme provides no recovery id.
const NoRecovery uint8 = 0xff

// SignRequest asks the device to sign data on a derivation path.
// Schema, encoding and hash type are advisory and travel to the
// approval UI untouched.
//
// Layout: pathLen:u8 | path[pathLen]:u32 BE | schema:u8 | curve:u8 |
// encoding:u8 | hashType:u8 | dataLen:u16 BE | data.
type SignRequest struct {
	Path     []uint32
	Schema   SigningSchema
	Curve    Curve
	Encoding PayloadEncoding
	HashType HashType
	Data     []byte
}

// Size returns the encoded payload size in bytes.
func (r *SignRequest) Size() int {
	return 1 + 4*len(r.Path) + 4 + 2 + len(r.Data)
}

// Encode serializes the sign request payload.
func (r *SignRequest) Encode() []byte {
	buf := make([]byte, r.Size())
	offset := 0

	buf[offset] = uint8(len(r.Path))
	offset++

	for _, seg := range r.Path {
		binary.BigEndian.PutUint32(buf[offset:], seg)
		offset += 4
	}

	buf[offset] = uint8(r.Schema)
	buf[offset+1] = uint8(r.Curve)
	buf[offset+2] = uint8(r.Encoding)
	buf[offset+3] = uint8(r.HashType)
	offset += 4

	binary.BigEndian.PutUint16(buf[offset:], uint16(len(r.Data)))
	offset += 2

	copy(buf[offset:], r.Data)

	return buf
}

// Decode parses a sign request payload.
func (r *SignRequest) Decode(data []byte) error {
	if len(data) < 1 {
		return ErrPayloadTooShort
	}

	pathLen := int(data[0])
	if pathLen == 0 || pathLen > MaxPathDepth {
		return ErrInvalidPath
	}
	if len(data) < 1+4*pathLen+6 {
		return ErrPayloadTooShort
	}

	path := make([]uint32, pathLen)
	offset := 1
	for i := range path {
		path[i] = binary.BigEndian.Uint32(data[offset:])
		offset += 4
	}

	schema := SigningSchema(data[offset])
	curve := Curve(data[offset+1])
	encoding := PayloadEncoding(data[offset+2])
	hashType := HashType(data[offset+3])
	offset += 4

	if !curve.IsValid() {
		return ErrInvalidRequestType
	}
	if !hashType.IsValid() {
		return ErrInvalidRequestType
	}

	dataLen := int(binary.BigEndian.Uint16(data[offset:]))
	offset += 2
	if offset+dataLen != len(data) {
		if offset+dataLen > len(data) {
			return ErrPayloadTooShort
		}
		return ErrTrailingPayload
	}

	r.Path = path
	r.Schema = schema
	r.Curve = curve
	r.Encoding = encoding
	r.HashType = hashType
	r.Data = make([]byte, dataLen)
	copy(r.Data, data[offset:])

	return nil
}

// SignResponse carries the detached signature produced for an approved
// sign request.
//
// Layout: sigLen:u8 | signature | recovery:u8. The recovery byte is
// NoRecovery when the curve provides none.
type SignResponse struct {
	Signature   []byte
	Recovery    uint8
	HasRecovery bool
}

// Encode serializes the sign response payload.
func (r *SignResponse) Encode() []byte {
	buf := make([]byte, 1+len(r.Signature)+1)
	buf[0] = uint8(len(r.Signature))
	copy(buf[1:], r.Signature)

	rec := NoRecovery
	if r.HasRecovery {
		rec = r.Recovery
	}
	buf[len(buf)-1] = rec

	return buf
}

// Decode parses a sign response payload.
func (r *SignResponse) Decode(data []byte) error {
	if len(data) < 2 {
		return ErrPayloadTooShort
	}

	sigLen := int(data[0])
	if 1+sigLen+1 != len(data) {
		if 1+sigLen+1 > len(data) {
			return ErrPayloadTooShort
		}
		return ErrTrailingPayload
	}

	r.Signature = make([]byte, sigLen)
	copy(r.Signature, data[1:1+sigLen])

	rec := data[len(data)-1]
	r.HasRecovery = rec != NoRecovery
	if r.HasRecovery {
		r.Recovery = rec
	} else {
		r.Recovery = 0
	}

	return nil
}
