package utils

import (
	"testing"

	"github.com/quillsign/quillsigngo/internal/models"
)

func TestJWT(t *testing.T) {
	secret := "test-secret-key-12345"

	user := &models.User{
		ID:          "uuid-1234",
		Email:       "owner@example.com",
		Role:        "user",
		DisplayName: "Test Owner",
	}

	accessToken, refreshToken, err := GenerateTokens(user, secret)
	if err != nil {
		t.Fatalf("Failed to generate tokens: %v", err)
	}
	if accessToken == "" || refreshToken == "" {
		t.Error("Tokens should not be empty")
	}

	claims, err := ValidateToken(accessToken, secret)
	if err != nil {
		t.Fatalf("Failed to validate token: %v", err)
	}

	if claims["id"] != user.ID {
		t.Errorf("Expected user ID %s, got %v", user.ID, claims["id"])
	}
	if claims["email"] != user.Email {
		t.Errorf("Expected email %s, got %v", user.Email, claims["email"])
	}

	if _, err := ValidateToken(accessToken, "wrong-key"); err == nil {
		t.Error("Validation should fail with wrong key")
	}
}
