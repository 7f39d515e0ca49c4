package crypto

import (
	"bytes"
	"testing"
)

func TestSignVerifyDER(t *testing.T) {
	kp, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair() error = %v", err)
	}

	message := []byte("pairing payload")
	sig, err := SignDER(kp, message)
	if err != nil {
		t.Fatalf("SignDER() error = %v", err)
	}

	ok, err := VerifyDER(kp.PublicKey(), message, sig)
	if err != nil {
		t.Fatalf("VerifyDER() error = %v", err)
	}
	if !ok {
		t.Error("VerifyDER() = false for a valid signature")
	}

	ok, err = VerifyDER(kp.PublicKey(), []byte("other payload"), sig)
	if err != nil {
		t.Fatalf("VerifyDER() error = %v", err)
	}
	if ok {
		t.Error("VerifyDER() = true for a different message")
	}

	other, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair() error = %v", err)
	}
	ok, err = VerifyDER(other.PublicKey(), message, sig)
	if err != nil {
		t.Fatalf("VerifyDER() error = %v", err)
	}
	if ok {
		t.Error("VerifyDER() = true under a different key")
	}
}

func TestPairingHash(t *testing.T) {
	kp, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair() error = %v", err)
	}
	pub := kp.PublicKey()

	h1 := PairingHash(pub, "Test", "12345678")
	h2 := PairingHash(pub, "Test", "12345678")
	if !bytes.Equal(h1, h2) {
		t.Error("PairingHash is not deterministic")
	}
	if len(h1) != SHA256LenBytes {
		t.Errorf("hash length = %d, want %d", len(h1), SHA256LenBytes)
	}

	// The hash is the plain concatenation digest, so field order and
	// content both matter.
	want := SHA256Slice(append(append(append([]byte{}, pub...), "Test"...), "12345678"...))
	if !bytes.Equal(h1, want) {
		t.Error("PairingHash does not match SHA-256 of the concatenation")
	}
	if bytes.Equal(h1, PairingHash(pub, "Test", "12345679")) {
		t.Error("different codes should hash differently")
	}
}
