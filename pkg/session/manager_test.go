package session

import (
	"errors"
	"fmt"
	"testing"
)

func TestManagerCreateAndGet(t *testing.T) {
	m := NewManager(ManagerConfig{})

	s, err := m.Create("dev-1", "conn-1")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if s.DeviceID() != "dev-1" || s.Key() != "conn-1" {
		t.Errorf("session identity = (%q, %q)", s.DeviceID(), s.Key())
	}

	got, ok := m.Get("conn-1")
	if !ok || got != s {
		t.Error("Get missed the created session")
	}
	if _, ok := m.Get("conn-2"); ok {
		t.Error("Get hit an unknown key")
	}
	if m.Len() != 1 || m.Count("dev-1") != 1 {
		t.Errorf("counts = (%d, %d), want (1, 1)", m.Len(), m.Count("dev-1"))
	}
}

func TestManagerCreateReplaces(t *testing.T) {
	m := NewManager(ManagerConfig{})

	old, err := m.Create("dev-1", "conn-1")
	if err != nil {
		t.Fatal(err)
	}

	replacement, err := m.Create("dev-1", "conn-1")
	if err != nil {
		t.Fatalf("replacing Create: %v", err)
	}
	if replacement == old {
		t.Fatal("Create returned the replaced session")
	}

	if !old.Disposed() {
		t.Error("replaced session not disposed")
	}
	if got, _ := m.Get("conn-1"); got != replacement {
		t.Error("table still holds the replaced session")
	}
	if m.Count("dev-1") != 1 {
		t.Errorf("Count = %d, want 1", m.Count("dev-1"))
	}
}

func TestManagerTableFull(t *testing.T) {
	m := NewManager(ManagerConfig{MaxSessionsPerDevice: 2})

	for i := 0; i < 2; i++ {
		if _, err := m.Create("dev-1", fmt.Sprintf("conn-%d", i)); err != nil {
			t.Fatalf("Create %d: %v", i, err)
		}
	}

	if _, err := m.Create("dev-1", "conn-2"); !errors.Is(err, ErrTableFull) {
		t.Errorf("err = %v, want %v", err, ErrTableFull)
	}

	// The cap is per device.
	if _, err := m.Create("dev-2", "conn-3"); err != nil {
		t.Errorf("other device blocked by full table: %v", err)
	}

	// Freeing a slot unblocks the device.
	m.Dispose("conn-0")
	if _, err := m.Create("dev-1", "conn-4"); err != nil {
		t.Errorf("Create after Dispose: %v", err)
	}
}

func TestManagerFindByEphemeralID(t *testing.T) {
	m := NewManager(ManagerConfig{})
	client := newClientSide(t)

	a, err := m.Create("dev-1", "conn-a")
	if err != nil {
		t.Fatal(err)
	}
	b, err := m.Create("dev-1", "conn-b")
	if err != nil {
		t.Fatal(err)
	}

	infoA := client.connect(a)
	infoB := client.connect(b)
	if infoA.EphemeralID == infoB.EphemeralID {
		t.Skip("random starting ids collided")
	}

	got, ok := m.FindByEphemeralID("dev-1", infoA.EphemeralID)
	if !ok || got != a {
		t.Error("lookup by a's ephemeral id failed")
	}
	got, ok = m.FindByEphemeralID("dev-1", infoB.EphemeralID)
	if !ok || got != b {
		t.Error("lookup by b's ephemeral id failed")
	}

	if _, ok := m.FindByEphemeralID("dev-2", infoA.EphemeralID); ok {
		t.Error("lookup crossed devices")
	}

	a.Dispose()
	if _, ok := m.FindByEphemeralID("dev-1", infoA.EphemeralID); ok {
		t.Error("lookup returned a disposed session")
	}
}

func TestManagerDispose(t *testing.T) {
	m := NewManager(ManagerConfig{})

	s, err := m.Create("dev-1", "conn-1")
	if err != nil {
		t.Fatal(err)
	}

	m.Dispose("conn-1")

	if !s.Disposed() {
		t.Error("session not disposed")
	}
	if _, ok := m.Get("conn-1"); ok {
		t.Error("session still tabled")
	}
	if m.Count("dev-1") != 0 {
		t.Errorf("Count = %d, want 0", m.Count("dev-1"))
	}

	m.Dispose("conn-1") // unknown key is a no-op
}

func TestManagerDisposeDevice(t *testing.T) {
	m := NewManager(ManagerConfig{})

	a, _ := m.Create("dev-1", "conn-a")
	b, _ := m.Create("dev-1", "conn-b")
	other, _ := m.Create("dev-2", "conn-c")

	m.DisposeDevice("dev-1")

	if !a.Disposed() || !b.Disposed() {
		t.Error("device sessions not disposed")
	}
	if other.Disposed() {
		t.Error("other device's session disposed")
	}
	if m.Count("dev-1") != 0 || m.Len() != 1 {
		t.Errorf("counts = (%d, %d), want (0, 1)", m.Count("dev-1"), m.Len())
	}
}

func TestManagerForEach(t *testing.T) {
	m := NewManager(ManagerConfig{})
	m.Create("dev-1", "conn-a")
	m.Create("dev-1", "conn-b")
	m.Create("dev-2", "conn-c")

	seen := 0
	m.ForEach("dev-1", func(*Session) bool {
		seen++
		return true
	})
	if seen != 2 {
		t.Errorf("visited %d sessions, want 2", seen)
	}

	seen = 0
	m.ForEach("dev-1", func(*Session) bool {
		seen++
		return false
	})
	if seen != 1 {
		t.Errorf("early stop visited %d sessions, want 1", seen)
	}
}
