package crypto

import (
	"bytes"
	"testing"
)

func TestRandBytes_LengthAndUniqueness(t *testing.T) {
	t.Parallel()

	const n = 64
	a, err := RandBytes(n)
	if err != nil {
		t.Fatalf("RandBytes: %v", err)
	}
	if len(a) != n {
		t.Fatalf("len=%d, want=%d", len(a), n)
	}
	b, err := RandBytes(n)
	if err != nil {
		t.Fatalf("RandBytes(2): %v", err)
	}
	if bytes.Equal(a, b) {
		t.Fatalf("two subsequent RandBytes(%d) are equal, looks non-random", n)
	}
}

func TestHashPassword_Salted(t *testing.T) {
	t.Parallel()

	pw := []byte("p@ssw0rd")
	h1, err := HashPassword(pw)
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	h2, err := HashPassword(pw)
	if err != nil {
		t.Fatalf("HashPassword(2): %v", err)
	}
	if bytes.Equal(h1, h2) {
		t.Fatalf("two hashes of the same password must differ (salt)")
	}
	if _, err := HashPassword(nil); err == nil {
		t.Fatalf("expected error for empty password")
	}
}

func TestVerifyPassword(t *testing.T) {
	t.Parallel()

	pw := []byte("correct horse battery staple")
	hash, err := HashPassword(pw)
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}

	if !VerifyPassword(pw, hash) {
		t.Fatalf("VerifyPassword: expected true for correct password")
	}
	if VerifyPassword([]byte("wrong"), hash) {
		t.Fatalf("VerifyPassword: expected false for wrong password")
	}
	if VerifyPassword([]byte{}, hash) {
		t.Fatalf("VerifyPassword: expected false for empty password")
	}
	if VerifyPassword(pw, []byte("not-a-bcrypt-hash")) {
		t.Fatalf("VerifyPassword: expected false for malformed hash")
	}
}
