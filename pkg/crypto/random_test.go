package crypto

import "testing"

func TestRandomDeviceID(t *testing.T) {
	id, err := RandomDeviceID()
	if err != nil {
		t.Fatalf("RandomDeviceID() error = %v", err)
	}
	if len(id) != 2*DeviceIDSize {
		t.Errorf("device id length = %d, want %d", len(id), 2*DeviceIDSize)
	}

	other, err := RandomDeviceID()
	if err != nil {
		t.Fatalf("RandomDeviceID() error = %v", err)
	}
	if id == other {
		t.Error("two device ids collided")
	}
}

func TestRandomRequestID(t *testing.T) {
	id, err := RandomRequestID()
	if err != nil {
		t.Fatalf("RandomRequestID() error = %v", err)
	}
	if len(id) != RequestIDSize {
		t.Errorf("request id length = %d, want %d", len(id), RequestIDSize)
	}
}

func TestGeneratePairingCode(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		code, err := GeneratePairingCode()
		if err != nil {
			t.Fatalf("GeneratePairingCode() error = %v", err)
		}
		if len(code) != PairingCodeDigits {
			t.Fatalf("code %q length = %d, want %d", code, len(code), PairingCodeDigits)
		}
		for _, c := range code {
			if c < '0' || c > '9' {
				t.Fatalf("code %q contains a non-digit", code)
			}
		}
		seen[code] = true
	}
	if len(seen) < 45 {
		t.Errorf("only %d distinct codes out of 50", len(seen))
	}
}

func TestRandomUint32Bounds(t *testing.T) {
	for i := 0; i < 1000; i++ {
		v, err := RandomUint32(7)
		if err != nil {
			t.Fatalf("RandomUint32() error = %v", err)
		}
		if v >= 7 {
			t.Fatalf("RandomUint32(7) = %d", v)
		}
	}

	if v, err := RandomUint32(0); err != nil || v != 0 {
		t.Errorf("RandomUint32(0) = (%d, %v), want (0, nil)", v, err)
	}
}
