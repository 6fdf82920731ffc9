package models

import (
	"time"

	"gorm.io/gorm"
)

// DocumentStatus defines the lifecycle states of a document
type DocumentStatus string

const (
	DocumentStatusDraft           DocumentStatus = "draft"            // fields editable, nothing sent
	DocumentStatusSent            DocumentStatus = "sent"             // invitations out, fields locked
	DocumentStatusPartiallySigned DocumentStatus = "partially_signed" // some but not all invitations completed
	DocumentStatusCompleted       DocumentStatus = "completed"        // every invitation signed
	DocumentStatusExpired         DocumentStatus = "expired"          // all invitations lapsed unsigned
	DocumentStatusCancelled       DocumentStatus = "cancelled"        // owner withdrew the document
)

// IsTerminal reports whether no further transition may leave this state
func (s DocumentStatus) IsTerminal() bool {
	switch s {
	case DocumentStatusCompleted, DocumentStatusExpired, DocumentStatusCancelled:
		return true
	case DocumentStatusDraft, DocumentStatusSent, DocumentStatusPartiallySigned:
		return false
	}
	return false
}

// CanTransitionTo reports whether the lifecycle permits moving to next.
// The matcher is exhaustive over both states so an invalid pairing can never
// slip through as a free-text status.
func (s DocumentStatus) CanTransitionTo(next DocumentStatus) bool {
	switch s {
	case DocumentStatusDraft:
		return next == DocumentStatusSent || next == DocumentStatusCancelled
	case DocumentStatusSent:
		return next == DocumentStatusPartiallySigned ||
			next == DocumentStatusCompleted ||
			next == DocumentStatusCancelled ||
			next == DocumentStatusExpired
	case DocumentStatusPartiallySigned:
		return next == DocumentStatusCompleted ||
			next == DocumentStatusCancelled ||
			next == DocumentStatusExpired
	case DocumentStatusCompleted, DocumentStatusExpired, DocumentStatusCancelled:
		return false
	}
	return false
}

// Document is a PDF under signature collection
type Document struct {
	ID     string         `gorm:"primaryKey;type:uuid;default:gen_random_uuid()" json:"id"`
	Title  string         `gorm:"not null" json:"title"`
	Status DocumentStatus `gorm:"default:'draft';index" json:"status"`

	SourcePDFRef string     `gorm:"not null" json:"sourcePdfRef"`
	FinalPDFRef  *string    `json:"finalPdfRef,omitempty"` // set at most once, by the finalize winner
	FinalizedAt  *time.Time `json:"finalizedAt,omitempty"`
	CompletedAt  *time.Time `json:"completedAt,omitempty"`

	OwnerID string `gorm:"index;not null" json:"ownerId"`

	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	// Relations
	Owner       *User            `gorm:"foreignKey:OwnerID" json:"owner,omitempty"`
	Fields      []SignatureField `gorm:"foreignKey:DocumentID" json:"fields,omitempty"`
	Invitations []Invitation     `gorm:"foreignKey:DocumentID" json:"invitations,omitempty"`
}

// TableName specifies the table name for Document model
func (Document) TableName() string {
	return "documents"
}

// IsFinalized reports whether the signed artifact has been produced
func (d *Document) IsFinalized() bool {
	return d.FinalPDFRef != nil && *d.FinalPDFRef != ""
}
