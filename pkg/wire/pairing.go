package wire

// FinalizePairingRequest carries the requester's display name and a
// DER encoded ECDSA signature over SHA-256(clientPub || name || code),
// proving the requester saw the pairing code on the device screen.
//
// Layout: nameLen:u8 | name | signature.
type FinalizePairingRequest struct {
	AppName   string
	Signature []byte
}

// Size returns the encoded payload size in bytes.
func (r *FinalizePairingRequest) Size() int {
	return 1 + len(r.AppName) + len(r.Signature)
}

// Encode serializes the finalizePairing request payload.
func (r *FinalizePairingRequest) Encode() []byte {
	buf := make([]byte, r.Size())
	buf[0] = uint8(len(r.AppName))
	offset := 1
	offset += copy(buf[offset:], r.AppName)
	copy(buf[offset:], r.Signature)
	return buf
}

// Decode parses a finalizePairing request payload.
func (r *FinalizePairingRequest) Decode(data []byte) error {
	if len(data) < 2 {
		return ErrPayloadTooShort
	}

	nameLen := int(data[0])
	if nameLen == 0 {
		return ErrEmptyField
	}
	if nameLen > MaxAppNameLen {
		return ErrFieldTooLong
	}
	if len(data) < 1+nameLen+1 {
		return ErrPayloadTooShort
	}

	r.AppName = string(data[1 : 1+nameLen])
	r.Signature = make([]byte, len(data)-1-nameLen)
	copy(r.Signature, data[1+nameLen:])

	return nil
}
