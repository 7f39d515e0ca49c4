package wire

import "encoding/binary"

// GetAddressesRequest asks the device to derive addresses starting at
// a BIP-32 style path.
//
// Layout: pathLen:u8 | path[pathLen]:u32 BE | count:u8 | flag:u8. The
// trailing flag byte is optional on the wire; older SDKs omit it,
// which means AddressSecp256k1Pub.
type GetAddressesRequest struct {
	StartPath []uint32
	Count     uint8
	Flag      AddressFlag
}

// Size returns the encoded payload size in bytes.
func (r *GetAddressesRequest) Size() int {
	return 1 + 4*len(r.StartPath) + 2
}

// Encode serializes the request payload. The flag byte is always
// written.
func (r *GetAddressesRequest) Encode() []byte {
	buf := make([]byte, r.Size())
	offset := 0

	buf[offset] = uint8(len(r.StartPath))
	offset++

	for _, seg := range r.StartPath {
		binary.BigEndian.PutUint32(buf[offset:], seg)
		offset += 4
	}

	buf[offset] = r.Count
	offset++

	buf[offset] = uint8(r.Flag)

	return buf
}

// Decode parses a getAddresses request payload.
func (r *GetAddressesRequest) Decode(data []byte) error {
	if len(data) < 1 {
		return ErrPayloadTooShort
	}

	pathLen := int(data[0])
	if pathLen == 0 || pathLen > MaxPathDepth {
		return ErrInvalidPath
	}
	if len(data) < 1+4*pathLen+1 {
		return ErrPayloadTooShort
	}

	path := make([]uint32, pathLen)
	offset := 1
	for i := range path {
		path[i] = binary.BigEndian.Uint32(data[offset:])
		offset += 4
	}

	count := data[offset]
	offset++

	flag := AddressSecp256k1Pub
	if offset < len(data) {
		flag = AddressFlag(data[offset])
		offset++
	}
	if offset != len(data) {
		return ErrTrailingPayload
	}

	r.StartPath = path
	r.Count = count
	r.Flag = flag

	return nil
}

// GetAddressesResponse carries derived addresses as length-prefixed
// strings.
//
// Layout: count:u8 | count x (len:u8 | address).
type GetAddressesResponse struct {
	Addresses []string
}

// Encode serializes the response payload.
func (r *GetAddressesResponse) Encode() []byte {
	size := 1
	for _, a := range r.Addresses {
		size += 1 + len(a)
	}

	buf := make([]byte, size)
	buf[0] = uint8(len(r.Addresses))
	offset := 1
	for _, a := range r.Addresses {
		buf[offset] = uint8(len(a))
		offset++
		offset += copy(buf[offset:], a)
	}

	return buf
}

// Decode parses a getAddresses response payload.
func (r *GetAddressesResponse) Decode(data []byte) error {
	if len(data) < 1 {
		return ErrPayloadTooShort
	}

	count := int(data[0])
	addrs := make([]string, 0, count)
	offset := 1
	for i := 0; i < count; i++ {
		if offset >= len(data) {
			return ErrPayloadTooShort
		}
		n := int(data[offset])
		offset++
		if offset+n > len(data) {
			return ErrPayloadTooShort
		}
		addrs = append(addrs, string(data[offset:offset+n]))
		offset += n
	}
	if offset != len(data) {
		return ErrTrailingPayload
	}

	r.Addresses = addrs

	return nil
}
