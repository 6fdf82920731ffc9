package models

import "time"

// SignatureField is a page-relative rectangle marking where a signature goes.
// X, Y, Width and Height are normalized to [0,1] against the page dimensions
// with the origin at the top-left corner, matching how the layout editor
// reports placements. Fields are locked once the document leaves draft.
type SignatureField struct {
	ID         string  `gorm:"primaryKey;type:uuid;default:gen_random_uuid()" json:"id"`
	DocumentID string  `gorm:"index;not null" json:"documentId"`
	Page       int     `gorm:"not null" json:"page"` // 1-based
	X          float64 `gorm:"not null" json:"x"`
	Y          float64 `gorm:"not null" json:"y"`
	Width      float64 `gorm:"not null" json:"width"`
	Height     float64 `gorm:"not null" json:"height"`
	Required   bool    `gorm:"default:true" json:"required"`

	// InvitationID assigns the field to one signer. Assignment is resolved
	// when the document is prepared; unassigned fields are rejected there.
	InvitationID *string `gorm:"index" json:"invitationId,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// TableName specifies the table name for SignatureField model
func (SignatureField) TableName() string {
	return "signature_fields"
}

// InBounds reports whether the normalized rectangle lies on the page
func (f *SignatureField) InBounds() bool {
	if f.Page < 1 {
		return false
	}
	if f.Width <= 0 || f.Height <= 0 {
		return false
	}
	return f.X >= 0 && f.Y >= 0 && f.X+f.Width <= 1 && f.Y+f.Height <= 1
}
