package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// InvitationStatus defines the per-signer request states
type InvitationStatus string

const (
	InvitationStatusPending   InvitationStatus = "pending"   // issued, signer has not opened it
	InvitationStatusViewed    InvitationStatus = "viewed"    // token validated at least once
	InvitationStatusCompleted InvitationStatus = "completed" // signature recorded
	InvitationStatusExpired   InvitationStatus = "expired"   // lapsed before signing
	InvitationStatusDeclined  InvitationStatus = "declined"  // signer refused
)

// CanTransitionTo enforces monotonic forward movement of an invitation.
// Completed, expired and declined are terminal.
func (s InvitationStatus) CanTransitionTo(next InvitationStatus) bool {
	switch s {
	case InvitationStatusPending:
		return next == InvitationStatusViewed ||
			next == InvitationStatusCompleted ||
			next == InvitationStatusExpired ||
			next == InvitationStatusDeclined
	case InvitationStatusViewed:
		return next == InvitationStatusCompleted ||
			next == InvitationStatusExpired ||
			next == InvitationStatusDeclined
	case InvitationStatusCompleted, InvitationStatusExpired, InvitationStatusDeclined:
		return false
	}
	return false
}

// Invitation is a per-recipient, token-addressable right to sign one document.
// Only the SHA-256 hash of the bearer token is stored; the raw token exists in
// the invitation email and nowhere else.
type Invitation struct {
	ID         string `gorm:"primaryKey;type:uuid;default:gen_random_uuid()" json:"id"`
	DocumentID string `gorm:"index;not null" json:"documentId"`

	TokenHash string `gorm:"uniqueIndex;not null" json:"-"`

	RecipientEmail string           `gorm:"not null" json:"recipientEmail"`
	RecipientName  string           `json:"recipientName"`
	Status         InvitationStatus `gorm:"default:'pending';index" json:"status"`
	ExpiresAt      time.Time        `gorm:"not null" json:"expiresAt"`

	ViewedAt *time.Time `json:"viewedAt,omitempty"`
	SignedAt *time.Time `json:"signedAt,omitempty"`

	// Captured at submission for the audit trail
	SignatureRef    *string        `json:"signatureRef,omitempty"`
	SignerName      string         `json:"signerName,omitempty"`
	SignerTitle     string         `json:"signerTitle,omitempty"`
	SignerNotes     string         `json:"signerNotes,omitempty"`
	SignerIP        string         `json:"signerIp,omitempty"`
	SignerUserAgent string         `json:"signerUserAgent,omitempty"`
	RequestMeta     datatypes.JSON `json:"requestMeta,omitempty"`

	DeclineReason string `json:"declineReason,omitempty"`

	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	// Relations
	Document *Document `gorm:"foreignKey:DocumentID" json:"document,omitempty"`
}

// TableName specifies the table name for Invitation model
func (Invitation) TableName() string {
	return "invitations"
}

// IsExpiredAt reports whether the invitation has lapsed, allowing a grace
// period to absorb clock skew between client and server
func (i *Invitation) IsExpiredAt(now time.Time, grace time.Duration) bool {
	return now.After(i.ExpiresAt.Add(grace))
}
