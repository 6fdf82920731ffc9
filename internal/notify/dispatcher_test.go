package notify

import (
	"reflect"
	"testing"

	"github.com/quillsign/quillsigngo/internal/models"
)

func TestCompletionRecipientsDeduplicates(t *testing.T) {
	invitations := []models.Invitation{
		{RecipientEmail: "alice@example.com"},
		{RecipientEmail: "bob@example.com"},
		{RecipientEmail: "alice@example.com"}, // same signer invited twice
		{RecipientEmail: ""},
	}

	got := CompletionRecipients("owner@example.com", invitations)
	want := []string{"owner@example.com", "alice@example.com", "bob@example.com"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("recipients = %v, want %v", got, want)
	}
}

func TestCompletionRecipientsOwnerIsAlsoSigner(t *testing.T) {
	invitations := []models.Invitation{
		{RecipientEmail: "owner@example.com"},
		{RecipientEmail: "carol@example.com"},
	}

	got := CompletionRecipients("owner@example.com", invitations)
	if len(got) != 2 {
		t.Fatalf("expected 2 unique recipients, got %v", got)
	}
}

func TestCompletionRecipientsNoOwner(t *testing.T) {
	got := CompletionRecipients("", []models.Invitation{{RecipientEmail: "dave@example.com"}})
	want := []string{"dave@example.com"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("recipients = %v, want %v", got, want)
	}
}

func TestTokenFromSignURL(t *testing.T) {
	if got := tokenFromSignURL("https://sign.example.com/sign?token=abc123"); got != "abc123" {
		t.Errorf("token = %q, want abc123", got)
	}
	if got := tokenFromSignURL("://bad url"); got != "" {
		t.Errorf("token = %q, want empty for malformed URL", got)
	}
}
