package wire

import "encoding/binary"

// KvRecord is one stored key/value entry, as returned by getKvRecords.
//
// Layout: id:u32 BE | type:u32 BE | caseSensitive:u8 | keyLen:u8 |
// key | valLen:u8 | val.
type KvRecord struct {
	ID            uint32
	Type          uint32
	CaseSensitive bool
	Key           string
	Val           string
}

func (r *KvRecord) size() int {
	return 4 + 4 + 1 + 1 + len(r.Key) + 1 + len(r.Val)
}

func (r *KvRecord) encodeTo(buf []byte) int {
	offset := 0

	binary.BigEndian.PutUint32(buf[offset:], r.ID)
	offset += 4

	binary.BigEndian.PutUint32(buf[offset:], r.Type)
	offset += 4

	if r.CaseSensitive {
		buf[offset] = 1
	} else {
		buf[offset] = 0
	}
	offset++

	buf[offset] = uint8(len(r.Key))
	offset++
	offset += copy(buf[offset:], r.Key)

	buf[offset] = uint8(len(r.Val))
	offset++
	offset += copy(buf[offset:], r.Val)

	return offset
}

func (r *KvRecord) decode(data []byte) (int, error) {
	if len(data) < 11 {
		return 0, ErrPayloadTooShort
	}

	r.ID = binary.BigEndian.Uint32(data[0:4])
	r.Type = binary.BigEndian.Uint32(data[4:8])
	r.CaseSensitive = data[8] != 0

	offset := 9
	key, n, err := decodeShortString(data[offset:], MaxKvKeyLen)
	if err != nil {
		return 0, err
	}
	if key == "" {
		return 0, ErrEmptyField
	}
	offset += n

	val, n, err := decodeShortString(data[offset:], MaxKvValLen)
	if err != nil {
		return 0, err
	}
	offset += n

	r.Key = key
	r.Val = val

	return offset, nil
}

// decodeShortString reads a u8 length-prefixed string bounded by max.
func decodeShortString(data []byte, max int) (string, int, error) {
	if len(data) < 1 {
		return "", 0, ErrPayloadTooShort
	}
	n := int(data[0])
	if n > max {
		return "", 0, ErrFieldTooLong
	}
	if len(data) < 1+n {
		return "", 0, ErrPayloadTooShort
	}
	return string(data[1 : 1+n]), 1 + n, nil
}

// GetKvRecordsRequest pages through the device's key/value store.
//
// Layout: type:u32 BE | count:u8 | start:u32 BE.
type GetKvRecordsRequest struct {
	Type  uint32
	Count uint8
	Start uint32
}

// Encode serializes the request payload.
func (r *GetKvRecordsRequest) Encode() []byte {
	buf := make([]byte, 9)
	binary.BigEndian.PutUint32(buf[0:4], r.Type)
	buf[4] = r.Count
	binary.BigEndian.PutUint32(buf[5:9], r.Start)
	return buf
}

// Decode parses a getKvRecords request payload.
func (r *GetKvRecordsRequest) Decode(data []byte) error {
	if len(data) < 9 {
		return ErrPayloadTooShort
	}
	if len(data) > 9 {
		return ErrTrailingPayload
	}
	r.Type = binary.BigEndian.Uint32(data[0:4])
	r.Count = data[4]
	r.Start = binary.BigEndian.Uint32(data[5:9])
	return nil
}

// GetKvRecordsResponse carries one page of the key/value store.
//
// Layout: total:u32 BE | fetched:u8 | records.
type GetKvRecordsResponse struct {
	Total   uint32
	Records []KvRecord
}

// Encode serializes the response payload.
func (r *GetKvRecordsResponse) Encode() []byte {
	size := 5
	for i := range r.Records {
		size += r.Records[i].size()
	}

	buf := make([]byte, size)
	binary.BigEndian.PutUint32(buf[0:4], r.Total)
	buf[4] = uint8(len(r.Records))
	offset := 5
	for i := range r.Records {
		offset += r.Records[i].encodeTo(buf[offset:])
	}

	return buf
}

// Decode parses a getKvRecords response payload.
func (r *GetKvRecordsResponse) Decode(data []byte) error {
	if len(data) < 5 {
		return ErrPayloadTooShort
	}

	r.Total = binary.BigEndian.Uint32(data[0:4])
	fetched := int(data[4])

	records := make([]KvRecord, 0, fetched)
	offset := 5
	for i := 0; i < fetched; i++ {
		var rec KvRecord
		n, err := rec.decode(data[offset:])
		if err != nil {
			return err
		}
		records = append(records, rec)
		offset += n
	}
	if offset != len(data) {
		return ErrTrailingPayload
	}

	r.Records = records

	return nil
}

// KvEntry is one key/value pair submitted by addKvRecords.
//
// Layout: type:u32 BE | keyLen:u8 | key | valLen:u8 | val.
type KvEntry struct {
	Type uint32
	Key  string
	Val  string
}

func (e *KvEntry) size() int {
	return 4 + 1 + len(e.Key) + 1 + len(e.Val)
}

func (e *KvEntry) encodeTo(buf []byte) int {
	offset := 0

	binary.BigEndian.PutUint32(buf[offset:], e.Type)
	offset += 4

	buf[offset] = uint8(len(e.Key))
	offset++
	offset += copy(buf[offset:], e.Key)

	buf[offset] = uint8(len(e.Val))
	offset++
	offset += copy(buf[offset:], e.Val)

	return offset
}

func (e *KvEntry) decode(data []byte) (int, error) {
	if len(data) < 6 {
		return 0, ErrPayloadTooShort
	}

	e.Type = binary.BigEndian.Uint32(data[0:4])

	offset := 4
	key, n, err := decodeShortString(data[offset:], MaxKvKeyLen)
	if err != nil {
		return 0, err
	}
	if key == "" {
		return 0, ErrEmptyField
	}
	offset += n

	val, n, err := decodeShortString(data[offset:], MaxKvValLen)
	if err != nil {
		return 0, err
	}
	offset += n

	e.Key = key
	e.Val = val

	return offset, nil
}

// AddKvRecordsRequest submits new key/value records.
//
// Layout: count:u8 | entries.
type AddKvRecordsRequest struct {
	Records []KvEntry
}

// Encode serializes the request payload.
func (r *AddKvRecordsRequest) Encode() []byte {
	size := 1
	for i := range r.Records {
		size += r.Records[i].size()
	}

	buf := make([]byte, size)
	buf[0] = uint8(len(r.Records))
	offset := 1
	for i := range r.Records {
		offset += r.Records[i].encodeTo(buf[offset:])
	}

	return buf
}

// Decode parses an addKvRecords request payload.
func (r *AddKvRecordsRequest) Decode(data []byte) error {
	if len(data) < 1 {
		return ErrPayloadTooShort
	}

	count := int(data[0])
	if count == 0 {
		return ErrInvalidCount
	}

	records := make([]KvEntry, 0, count)
	offset := 1
	for i := 0; i < count; i++ {
		var e KvEntry
		n, err := e.decode(data[offset:])
		if err != nil {
			return err
		}
		records = append(records, e)
		offset += n
	}
	if offset != len(data) {
		return ErrTrailingPayload
	}

	r.Records = records

	return nil
}

// RemoveKvRecordsRequest deletes records by their positional ids.
//
// Layout: type:u32 BE | count:u8 | count x id:u32 BE.
type RemoveKvRecordsRequest struct {
	Type uint32
	IDs  []uint32
}

// Encode serializes the request payload.
func (r *RemoveKvRecordsRequest) Encode() []byte {
	buf := make([]byte, 5+4*len(r.IDs))
	binary.BigEndian.PutUint32(buf[0:4], r.Type)
	buf[4] = uint8(len(r.IDs))
	offset := 5
	for _, id := range r.IDs {
		binary.BigEndian.PutUint32(buf[offset:], id)
		offset += 4
	}
	return buf
}

// Decode parses a removeKvRecords request payload.
func (r *RemoveKvRecordsRequest) Decode(data []byte) error {
	if len(data) < 5 {
		return ErrPayloadTooShort
	}

	count := int(data[4])
	if count == 0 {
		return ErrInvalidCount
	}
	if len(data) != 5+4*count {
		if len(data) < 5+4*count {
			return ErrPayloadTooShort
		}
		return ErrTrailingPayload
	}

	r.Type = binary.BigEndian.Uint32(data[0:4])
	r.IDs = make([]uint32, count)
	offset := 5
	for i := range r.IDs {
		r.IDs[i] = binary.BigEndian.Uint32(data[offset:])
		offset += 4
	}

	return nil
}
