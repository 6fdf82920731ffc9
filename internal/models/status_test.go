package models

import (
	"testing"
	"time"
)

func TestDocumentTransitions(t *testing.T) {
	cases := []struct {
		from    DocumentStatus
		to      DocumentStatus
		allowed bool
	}{
		{DocumentStatusDraft, DocumentStatusSent, true},
		{DocumentStatusDraft, DocumentStatusCancelled, true},
		{DocumentStatusDraft, DocumentStatusCompleted, false},
		{DocumentStatusSent, DocumentStatusPartiallySigned, true},
		{DocumentStatusSent, DocumentStatusCompleted, true},
		{DocumentStatusSent, DocumentStatusExpired, true},
		{DocumentStatusPartiallySigned, DocumentStatusCompleted, true},
		{DocumentStatusPartiallySigned, DocumentStatusSent, false},
		{DocumentStatusCompleted, DocumentStatusSent, false},
		{DocumentStatusCompleted, DocumentStatusCompleted, false},
		{DocumentStatusCancelled, DocumentStatusSent, false},
		{DocumentStatusExpired, DocumentStatusCompleted, false},
	}

	for _, c := range cases {
		if got := c.from.CanTransitionTo(c.to); got != c.allowed {
			t.Errorf("%s -> %s: expected %v, got %v", c.from, c.to, c.allowed, got)
		}
	}
}

func TestDocumentTerminalStates(t *testing.T) {
	terminal := []DocumentStatus{DocumentStatusCompleted, DocumentStatusExpired, DocumentStatusCancelled}
	for _, s := range terminal {
		if !s.IsTerminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
	open := []DocumentStatus{DocumentStatusDraft, DocumentStatusSent, DocumentStatusPartiallySigned}
	for _, s := range open {
		if s.IsTerminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
}

func TestInvitationTransitions(t *testing.T) {
	cases := []struct {
		from    InvitationStatus
		to      InvitationStatus
		allowed bool
	}{
		{InvitationStatusPending, InvitationStatusViewed, true},
		{InvitationStatusPending, InvitationStatusCompleted, true},
		{InvitationStatusViewed, InvitationStatusCompleted, true},
		{InvitationStatusViewed, InvitationStatusPending, false},
		{InvitationStatusCompleted, InvitationStatusViewed, false},
		{InvitationStatusCompleted, InvitationStatusExpired, false},
		{InvitationStatusDeclined, InvitationStatusCompleted, false},
		{InvitationStatusExpired, InvitationStatusViewed, false},
	}

	for _, c := range cases {
		if got := c.from.CanTransitionTo(c.to); got != c.allowed {
			t.Errorf("%s -> %s: expected %v, got %v", c.from, c.to, c.allowed, got)
		}
	}
}

func TestInvitationExpiryGrace(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	grace := 5 * time.Minute

	inv := Invitation{ExpiresAt: now.Add(-2 * time.Minute)}
	if inv.IsExpiredAt(now, grace) {
		t.Error("invitation inside the grace window should not count as expired")
	}

	inv.ExpiresAt = now.Add(-6 * time.Minute)
	if !inv.IsExpiredAt(now, grace) {
		t.Error("invitation past expiry plus grace should count as expired")
	}
}

func TestFieldInBounds(t *testing.T) {
	ok := SignatureField{Page: 1, X: 0.1, Y: 0.2, Width: 0.2, Height: 0.05}
	if !ok.InBounds() {
		t.Error("valid field reported out of bounds")
	}

	bad := []SignatureField{
		{Page: 0, X: 0.1, Y: 0.1, Width: 0.1, Height: 0.1},
		{Page: 1, X: 0.95, Y: 0.1, Width: 0.1, Height: 0.1},
		{Page: 1, X: 0.1, Y: 0.1, Width: 0, Height: 0.1},
		{Page: 1, X: -0.1, Y: 0.1, Width: 0.1, Height: 0.1},
	}
	for i, f := range bad {
		if f.InBounds() {
			t.Errorf("case %d: invalid field reported in bounds", i)
		}
	}
}
