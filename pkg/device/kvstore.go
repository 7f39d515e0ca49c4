package device

import (
	"strings"

	"github.com/backkem/lattice/pkg/wire"
)

// KvPair is one stored key/value entry. Keys are stored
// lowercase-normalized; the store never holds two entries whose
// lowercased keys compare equal.
type KvPair struct {
	Type uint32
	Key  string
	Val  string
}

// KVStore is the device's in-memory key/value table, used chiefly for
// address tagging. Records are addressed by their position in
// insertion order.
//
// KVStore is not safe for concurrent use; the owning Device guards it.
type KVStore struct {
	entries []KvPair
	byKey   map[string]int
}

// NewKVStore creates an empty store.
func NewKVStore() *KVStore {
	return &KVStore{byKey: make(map[string]int)}
}

// Len returns the number of stored records.
func (s *KVStore) Len() int {
	return len(s.entries)
}

// Add inserts a record. The key is lowercased before storage; a record
// whose lowercased key already exists is rejected with ErrDuplicateKey.
func (s *KVStore) Add(typ uint32, key, val string) error {
	if key == "" {
		return ErrEmptyKey
	}
	if len(key) > wire.MaxKvKeyLen {
		return ErrKeyTooLong
	}
	if len(val) > wire.MaxKvValLen {
		return ErrValueTooLong
	}

	norm := strings.ToLower(key)
	if _, exists := s.byKey[norm]; exists {
		return ErrDuplicateKey
	}

	s.byKey[norm] = len(s.entries)
	s.entries = append(s.entries, KvPair{Type: typ, Key: norm, Val: val})

	return nil
}

// Get looks a record up by its lowercased key.
func (s *KVStore) Get(key string) (KvPair, bool) {
	i, ok := s.byKey[strings.ToLower(key)]
	if !ok {
		return KvPair{}, false
	}
	return s.entries[i], true
}

// Remove deletes the record at position id. Later records shift down.
func (s *KVStore) Remove(id uint32) error {
	i := int(id)
	if i >= len(s.entries) {
		return ErrRecordNotFound
	}

	delete(s.byKey, s.entries[i].Key)
	s.entries = append(s.entries[:i], s.entries[i+1:]...)
	s.reindex(i)

	return nil
}

// RemoveBatch deletes the records at the given positions. Positions
// refer to the store before any deletion; every id must exist.
func (s *KVStore) RemoveBatch(ids []uint32) error {
	for _, id := range ids {
		if int(id) >= len(s.entries) {
			return ErrRecordNotFound
		}
	}

	keep := make([]KvPair, 0, len(s.entries))
	drop := make(map[int]bool, len(ids))
	for _, id := range ids {
		drop[int(id)] = true
	}

	for i, e := range s.entries {
		if drop[i] {
			delete(s.byKey, e.Key)
			continue
		}
		keep = append(keep, e)
	}

	s.entries = keep
	s.reindex(0)

	return nil
}

// Page returns one page of records in insertion order, mirroring the
// getKvRecords wire semantics: total store size, then up to count
// records starting at position start. Record ids are positions.
func (s *KVStore) Page(count uint8, start uint32) (uint32, []wire.KvRecord) {
	total := uint32(len(s.entries))

	if start >= total || count == 0 {
		return total, nil
	}

	end := start + uint32(count)
	if end > total {
		end = total
	}

	records := make([]wire.KvRecord, 0, end-start)
	for i := start; i < end; i++ {
		e := s.entries[i]
		records = append(records, wire.KvRecord{
			ID:            i,
			Type:          e.Type,
			CaseSensitive: false,
			Key:           e.Key,
			Val:           e.Val,
		})
	}

	return total, records
}

// All returns every record in insertion order.
func (s *KVStore) All() []KvPair {
	out := make([]KvPair, len(s.entries))
	copy(out, s.entries)
	return out
}

// Replace swaps the store contents for the given pairs, keeping the
// uniqueness rule. Invalid or duplicate entries are skipped.
func (s *KVStore) Replace(pairs []KvPair) {
	s.entries = s.entries[:0]
	s.byKey = make(map[string]int, len(pairs))
	for _, p := range pairs {
		// Reuse Add for normalization and bounds.
		_ = s.Add(p.Type, p.Key, p.Val)
	}
}

func (s *KVStore) reindex(from int) {
	for i := from; i < len(s.entries); i++ {
		s.byKey[s.entries[i].Key] = i
	}
}
