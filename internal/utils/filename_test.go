package utils

import (
	"strings"
	"testing"
	"time"
)

func TestSanitizeFilename(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Employment Contract 2025", "employment-contract-2025"},
		{"NDA (Müller & Söhne GmbH)!!", "nda-m-ller-s-hne-gmbh"},
		{"///", "document"},
		{"", "document"},
		{"already-clean", "already-clean"},
	}

	for _, c := range cases {
		if got := SanitizeFilename(c.in); got != c.want {
			t.Errorf("SanitizeFilename(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestSanitizeFilenameLengthCap(t *testing.T) {
	long := strings.Repeat("a", 200)
	got := SanitizeFilename(long)
	if len(got) > 64 {
		t.Errorf("sanitized name too long: %d chars", len(got))
	}
}

func TestSignedPDFKeyDeterministic(t *testing.T) {
	at := time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)
	a := SignedPDFKey("Lease Agreement", "4f9c1c2e-aaaa-bbbb-cccc-000000000000", at)
	b := SignedPDFKey("Lease Agreement", "4f9c1c2e-aaaa-bbbb-cccc-000000000000", at)
	if a != b {
		t.Errorf("key not deterministic: %q vs %q", a, b)
	}
	if a != "signed/lease-agreement-4f9c1c2e-20250314-signed.pdf" {
		t.Errorf("unexpected key: %q", a)
	}
}

func TestPasswordHashing(t *testing.T) {
	password := "secret123"

	hash, err := HashPassword(password)
	if err != nil {
		t.Fatalf("Failed to hash password: %v", err)
	}
	if hash == password {
		t.Error("Hash should not match plaintext password")
	}

	if !CheckPasswordHash(password, hash) {
		t.Error("Password should match hash")
	}
	if CheckPasswordHash("wrongpassword", hash) {
		t.Error("Wrong password should not match hash")
	}
}
