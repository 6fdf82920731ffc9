package signing

import (
	"encoding/base64"
	"testing"
	"time"
)

func TestIssueTokenEntropy(t *testing.T) {
	now := time.Now()

	raw, hash, _, err := IssueToken(7, now)
	if err != nil {
		t.Fatalf("IssueToken failed: %v", err)
	}

	decoded, err := base64.RawURLEncoding.DecodeString(raw)
	if err != nil {
		t.Fatalf("token is not URL-safe base64: %v", err)
	}
	if len(decoded)*8 < 192 {
		t.Errorf("token carries %d bits of entropy, want >= 192", len(decoded)*8)
	}

	if hash != HashToken(raw) {
		t.Error("returned hash does not match HashToken of the raw token")
	}

	// two issues must never collide
	raw2, _, _, err := IssueToken(7, now)
	if err != nil {
		t.Fatalf("second IssueToken failed: %v", err)
	}
	if raw == raw2 {
		t.Error("two issued tokens are identical")
	}
}

func TestIssueTokenExpirationBounds(t *testing.T) {
	now := time.Now()
	for _, days := range []int{0, -1, 31, 100} {
		if _, _, _, err := IssueToken(days, now); err != ErrInvalidExpiration {
			t.Errorf("days=%d: expected ErrInvalidExpiration, got %v", days, err)
		}
	}
	for _, days := range []int{1, 15, 30} {
		if _, _, _, err := IssueToken(days, now); err != nil {
			t.Errorf("days=%d: unexpected error %v", days, err)
		}
	}
}

func TestIssueTokenEndOfDayExpiry(t *testing.T) {
	now := time.Date(2025, 6, 1, 9, 30, 0, 0, time.UTC)
	_, _, expiresAt, err := IssueToken(3, now)
	if err != nil {
		t.Fatalf("IssueToken failed: %v", err)
	}

	want := time.Date(2025, 6, 4, 23, 59, 59, 0, time.UTC)
	if !expiresAt.Equal(want) {
		t.Errorf("expiresAt = %v, want end-of-day %v", expiresAt, want)
	}
}

func TestTokenHashEqual(t *testing.T) {
	h := HashToken("some-token")
	if !TokenHashEqual(h, HashToken("some-token")) {
		t.Error("equal hashes reported unequal")
	}
	if TokenHashEqual(h, HashToken("other-token")) {
		t.Error("different hashes reported equal")
	}
}
