package device

import (
	"errors"
	"strings"
	"testing"
)

func TestKVStoreAdd(t *testing.T) {
	tests := []struct {
		name    string
		prior   []string
		key     string
		val     string
		wantErr error
	}{
		{
			name: "first key",
			key:  "alice",
			val:  "0x1234",
		},
		{
			name:    "exact duplicate",
			prior:   []string{"alice"},
			key:     "alice",
			val:     "0x5678",
			wantErr: ErrDuplicateKey,
		},
		{
			name:    "case-insensitive duplicate",
			prior:   []string{"alice"},
			key:     "ALICE",
			val:     "0x5678",
			wantErr: ErrDuplicateKey,
		},
		{
			name:    "mixed-case duplicate",
			prior:   []string{"MyTag"},
			key:     "mytag",
			val:     "x",
			wantErr: ErrDuplicateKey,
		},
		{
			name:    "empty key",
			key:     "",
			val:     "x",
			wantErr: ErrEmptyKey,
		},
		{
			name: "key at limit",
			key:  strings.Repeat("k", 63),
			val:  "x",
		},
		{
			name:    "key over limit",
			key:     strings.Repeat("k", 64),
			val:     "x",
			wantErr: ErrKeyTooLong,
		},
		{
			name: "value at limit",
			key:  "k",
			val:  strings.Repeat("v", 63),
		},
		{
			name:    "value over limit",
			key:     "k",
			val:     strings.Repeat("v", 64),
			wantErr: ErrValueTooLong,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := NewKVStore()
			for _, k := range tc.prior {
				if err := s.Add(0, k, "prior"); err != nil {
					t.Fatalf("seeding %q: %v", k, err)
				}
			}

			err := s.Add(0, tc.key, tc.val)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("Add(%q) error = %v, want %v", tc.key, err, tc.wantErr)
			}
			if tc.wantErr != nil {
				if s.Len() != len(tc.prior) {
					t.Fatalf("store grew on failed add: len = %d", s.Len())
				}
				return
			}

			got, ok := s.Get(tc.key)
			if !ok {
				t.Fatalf("Get(%q) missed after Add", tc.key)
			}
			if got.Key != strings.ToLower(tc.key) {
				t.Errorf("stored key = %q, want lowercased %q", got.Key, strings.ToLower(tc.key))
			}
			if got.Val != tc.val {
				t.Errorf("stored val = %q, want %q", got.Val, tc.val)
			}
		})
	}
}

func TestKVStoreGetAnyCase(t *testing.T) {
	s := NewKVStore()
	if err := s.Add(0, "Treasury", "0xabcd"); err != nil {
		t.Fatal(err)
	}

	for _, key := range []string{"treasury", "TREASURY", "Treasury"} {
		got, ok := s.Get(key)
		if !ok {
			t.Fatalf("Get(%q) missed", key)
		}
		if got.Val != "0xabcd" {
			t.Errorf("Get(%q).Val = %q", key, got.Val)
		}
	}

	if _, ok := s.Get("missing"); ok {
		t.Error("Get(missing) unexpectedly hit")
	}
}

func TestKVStoreRemoveReindexes(t *testing.T) {
	s := NewKVStore()
	for _, k := range []string{"a", "b", "c"} {
		if err := s.Add(0, k, k); err != nil {
			t.Fatal(err)
		}
	}

	if err := s.Remove(0); err != nil {
		t.Fatal(err)
	}

	total, records := s.Page(10, 0)
	if total != 2 {
		t.Fatalf("total = %d, want 2", total)
	}
	want := []struct {
		id  uint32
		key string
	}{{0, "b"}, {1, "c"}}
	for i, w := range want {
		if records[i].ID != w.id || records[i].Key != w.key {
			t.Errorf("record %d = (%d, %q), want (%d, %q)",
				i, records[i].ID, records[i].Key, w.id, w.key)
		}
	}

	// The freed slot is usable again, even in another case.
	if err := s.Add(0, "A", "again"); err != nil {
		t.Fatalf("re-add after remove: %v", err)
	}
}

func TestKVStoreRemoveBatch(t *testing.T) {
	tests := []struct {
		name     string
		ids      []uint32
		wantErr  error
		wantKeys []string
	}{
		{
			name:     "middle and last",
			ids:      []uint32{1, 3},
			wantKeys: []string{"k0", "k2"},
		},
		{
			name:     "first",
			ids:      []uint32{0},
			wantKeys: []string{"k1", "k2", "k3"},
		},
		{
			name:     "all",
			ids:      []uint32{0, 1, 2, 3},
			wantKeys: []string{},
		},
		{
			name:     "out of range is atomic",
			ids:      []uint32{1, 9},
			wantErr:  ErrRecordNotFound,
			wantKeys: []string{"k0", "k1", "k2", "k3"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := NewKVStore()
			for _, k := range []string{"k0", "k1", "k2", "k3"} {
				if err := s.Add(0, k, "v"); err != nil {
					t.Fatal(err)
				}
			}

			err := s.RemoveBatch(tc.ids)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("RemoveBatch error = %v, want %v", err, tc.wantErr)
			}

			_, records := s.Page(10, 0)
			if len(records) != len(tc.wantKeys) {
				t.Fatalf("len = %d, want %d", len(records), len(tc.wantKeys))
			}
			for i, k := range tc.wantKeys {
				if records[i].Key != k {
					t.Errorf("record %d key = %q, want %q", i, records[i].Key, k)
				}
				if records[i].ID != uint32(i) {
					t.Errorf("record %d id = %d, want %d", i, records[i].ID, i)
				}
			}
		})
	}
}

func TestKVStorePage(t *testing.T) {
	s := NewKVStore()
	keys := []string{"k0", "k1", "k2", "k3", "k4"}
	for _, k := range keys {
		if err := s.Add(0, k, "v-"+k); err != nil {
			t.Fatal(err)
		}
	}

	tests := []struct {
		name     string
		count    uint8
		start    uint32
		wantKeys []string
	}{
		{"first page", 2, 0, []string{"k0", "k1"}},
		{"second page", 2, 2, []string{"k2", "k3"}},
		{"short last page", 2, 4, []string{"k4"}},
		{"past the end", 2, 5, nil},
		{"zero count", 0, 0, nil},
		{"count past end", 10, 3, []string{"k3", "k4"}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			total, records := s.Page(tc.count, tc.start)
			if total != uint32(len(keys)) {
				t.Fatalf("total = %d, want %d", total, len(keys))
			}
			if len(records) != len(tc.wantKeys) {
				t.Fatalf("len = %d, want %d", len(records), len(tc.wantKeys))
			}
			for i, k := range tc.wantKeys {
				if records[i].Key != k {
					t.Errorf("record %d key = %q, want %q", i, records[i].Key, k)
				}
				if want := tc.start + uint32(i); records[i].ID != want {
					t.Errorf("record %d id = %d, want %d", i, records[i].ID, want)
				}
				if records[i].CaseSensitive {
					t.Errorf("record %d unexpectedly case-sensitive", i)
				}
			}
		})
	}
}

func TestKVStoreReplace(t *testing.T) {
	s := NewKVStore()
	if err := s.Add(0, "old", "v"); err != nil {
		t.Fatal(err)
	}

	s.Replace([]KvPair{
		{Type: 0, Key: "Alpha", Val: "1"},
		{Type: 0, Key: "alpha", Val: "2"}, // dropped: duplicate after lowering
		{Type: 0, Key: "beta", Val: "3"},
	})

	if s.Len() != 2 {
		t.Fatalf("len = %d, want 2", s.Len())
	}
	if _, ok := s.Get("old"); ok {
		t.Error("old record survived Replace")
	}
	got, ok := s.Get("alpha")
	if !ok || got.Val != "1" {
		t.Errorf("Get(alpha) = (%+v, %v), want first entry kept", got, ok)
	}
}
