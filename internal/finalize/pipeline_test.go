package finalize

import (
	"strings"
	"testing"
	"time"

	"github.com/quillsign/quillsigngo/internal/models"
)

func strp(s string) *string { return &s }

func TestBuildPlacementsValid(t *testing.T) {
	signedAt := time.Now()
	inv := models.Invitation{
		ID:             "inv-1",
		RecipientEmail: "bob@example.com",
		Status:         models.InvitationStatusCompleted,
		SignatureRef:   strp("mem://sig.png"),
		SignerName:     "Bob Signer",
		SignedAt:       &signedAt,
	}
	fields := []models.SignatureField{
		{ID: "f-1", Page: 1, X: 0.1, Y: 0.2, Width: 0.3, Height: 0.1, InvitationID: strp("inv-1")},
		{ID: "f-2", Page: 2, X: 0.4, Y: 0.5, Width: 0.2, Height: 0.05, InvitationID: strp("inv-1")},
	}

	placements, verr := BuildPlacements(fields, []models.Invitation{inv})
	if verr != nil {
		t.Fatalf("unexpected validation error: %v", verr)
	}
	if len(placements) != 2 {
		t.Fatalf("expected 2 placements, got %d", len(placements))
	}
	if placements[0].SignerName != "Bob Signer" || placements[0].ArtifactRef != "mem://sig.png" {
		t.Errorf("placement carries wrong invitation data: %+v", placements[0])
	}
}

func TestBuildPlacementsCollectsAllViolations(t *testing.T) {
	inv := models.Invitation{
		ID:             "inv-1",
		RecipientEmail: "bad@example.com",
		Status:         models.InvitationStatusCompleted,
		// no artifact, no name, no timestamp, no assigned field
	}

	_, verr := BuildPlacements(nil, []models.Invitation{inv})
	if verr == nil {
		t.Fatal("expected a validation error")
	}
	if len(verr.Violations) < 4 {
		t.Errorf("expected every violation reported at once, got %d: %v", len(verr.Violations), verr.Violations)
	}
	if !strings.Contains(verr.Error(), "bad@example.com") {
		t.Errorf("violations should name the offending recipient: %v", verr)
	}
}

func TestBuildPlacementsSkipsIncompleteInvitations(t *testing.T) {
	signedAt := time.Now()
	invs := []models.Invitation{
		{ID: "inv-1", RecipientEmail: "a@example.com", Status: models.InvitationStatusPending},
		{
			ID: "inv-2", RecipientEmail: "b@example.com",
			Status:       models.InvitationStatusCompleted,
			SignatureRef: strp("mem://b.png"), SignerName: "B", SignedAt: &signedAt,
		},
	}
	fields := []models.SignatureField{
		{ID: "f-1", Page: 1, Width: 0.2, Height: 0.05, InvitationID: strp("inv-2")},
	}

	placements, verr := BuildPlacements(fields, invs)
	if verr != nil {
		t.Fatalf("unexpected validation error: %v", verr)
	}
	if len(placements) != 1 {
		t.Fatalf("expected 1 placement from the completed invitation, got %d", len(placements))
	}
}

func TestBuildPlacementsNoSignatures(t *testing.T) {
	_, verr := BuildPlacements(nil, []models.Invitation{
		{ID: "inv-1", Status: models.InvitationStatusPending},
	})
	if verr == nil {
		t.Fatal("expected a validation error for a document without completed signatures")
	}
}

func TestBuildPlacementsRejectsBadGeometry(t *testing.T) {
	signedAt := time.Now()
	inv := models.Invitation{
		ID: "inv-1", RecipientEmail: "c@example.com",
		Status:       models.InvitationStatusCompleted,
		SignatureRef: strp("mem://c.png"), SignerName: "C", SignedAt: &signedAt,
	}
	fields := []models.SignatureField{
		{ID: "f-1", Page: 0, Width: 0.2, Height: 0.05, InvitationID: strp("inv-1")},
		{ID: "f-2", Page: 1, Width: 0, Height: 0.05, InvitationID: strp("inv-1")},
	}

	_, verr := BuildPlacements(fields, []models.Invitation{inv})
	if verr == nil {
		t.Fatal("expected a validation error")
	}
	if len(verr.Violations) != 2 {
		t.Errorf("expected 2 geometry violations, got %v", verr.Violations)
	}
}

func TestLastSigner(t *testing.T) {
	early := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
	late := time.Date(2026, 8, 2, 9, 0, 0, 0, time.UTC)
	invs := []models.Invitation{
		{Status: models.InvitationStatusCompleted, SignerName: "First", SignedAt: &early},
		{Status: models.InvitationStatusCompleted, SignerName: "Last", SignedAt: &late},
		{Status: models.InvitationStatusPending, SignerName: "Never"},
	}
	if got := lastSigner(invs); got != "Last" {
		t.Errorf("lastSigner = %q, want Last", got)
	}
}
