package signing

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/quillsign/quillsigngo/internal/models"
)

// CreateDocument uploads a source PDF and creates a draft document
func (s *Service) CreateDocument(ctx context.Context, ownerID, title string, pdf []byte) (*models.Document, error) {
	if title == "" {
		return nil, fmt.Errorf("document title is required")
	}
	if !bytes.HasPrefix(pdf, []byte("%PDF-")) {
		return nil, fmt.Errorf("upload is not a PDF")
	}

	key := fmt.Sprintf("sources/%s.pdf", uuid.New().String())
	ref, err := s.store.Put(ctx, key, pdf, "application/pdf")
	if err != nil {
		return nil, fmt.Errorf("failed to store source PDF: %w", err)
	}

	doc := models.Document{
		Title:        title,
		Status:       models.DocumentStatusDraft,
		SourcePDFRef: ref,
		OwnerID:      ownerID,
	}
	if err := s.db.WithContext(ctx).Create(&doc).Error; err != nil {
		return nil, fmt.Errorf("failed to create document: %w", err)
	}
	return &doc, nil
}

// ownerDocument loads a document and checks ownership
func (s *Service) ownerDocument(ctx context.Context, ownerID, documentID string) (*models.Document, error) {
	var doc models.Document
	if err := s.db.WithContext(ctx).First(&doc, "id = ?", documentID).Error; err != nil {
		return nil, ErrDocumentNotFound
	}
	if doc.OwnerID != ownerID {
		return nil, ErrDocumentNotFound
	}
	return &doc, nil
}

// GetDocument returns an owner's document with fields and invitations loaded
func (s *Service) GetDocument(ctx context.Context, ownerID, documentID string) (*models.Document, error) {
	doc, err := s.ownerDocument(ctx, ownerID, documentID)
	if err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Preload("Fields").Preload("Invitations").
		First(doc, "id = ?", doc.ID).Error; err != nil {
		return nil, fmt.Errorf("failed to load document: %w", err)
	}
	return doc, nil
}

// ListDocuments returns an owner's documents, newest first
func (s *Service) ListDocuments(ctx context.Context, ownerID string) ([]models.Document, error) {
	var docs []models.Document
	if err := s.db.WithContext(ctx).Where("owner_id = ?", ownerID).
		Order("created_at DESC").Limit(100).Find(&docs).Error; err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	return docs, nil
}

// FieldSpec describes one signature field placement
type FieldSpec struct {
	Page     int     `json:"page"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Width    float64 `json:"width"`
	Height   float64 `json:"height"`
	Required bool    `json:"required"`
}

// ReplaceFields replaces the whole field set of a draft document. Any
// attempt outside draft fails with ErrDocumentLocked.
func (s *Service) ReplaceFields(ctx context.Context, ownerID, documentID string, specs []FieldSpec) ([]models.SignatureField, error) {
	doc, err := s.ownerDocument(ctx, ownerID, documentID)
	if err != nil {
		return nil, err
	}
	if doc.Status != models.DocumentStatusDraft {
		return nil, ErrDocumentLocked
	}

	fields := make([]models.SignatureField, 0, len(specs))
	for i, spec := range specs {
		f := models.SignatureField{
			DocumentID: documentID,
			Page:       spec.Page,
			X:          spec.X,
			Y:          spec.Y,
			Width:      spec.Width,
			Height:     spec.Height,
			Required:   spec.Required,
		}
		if !f.InBounds() {
			return nil, fmt.Errorf("field %d is out of page bounds", i)
		}
		fields = append(fields, f)
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// re-check under the transaction so a concurrent prepare cannot
		// slip a field change past the lock
		var current models.Document
		if err := tx.First(&current, "id = ?", documentID).Error; err != nil {
			return ErrDocumentNotFound
		}
		if current.Status != models.DocumentStatusDraft {
			return ErrDocumentLocked
		}
		if err := tx.Where("document_id = ?", documentID).
			Delete(&models.SignatureField{}).Error; err != nil {
			return fmt.Errorf("failed to clear fields: %w", err)
		}
		if len(fields) == 0 {
			return nil
		}
		return tx.Create(&fields).Error
	})
	if err != nil {
		return nil, err
	}
	return fields, nil
}

// SignerSpec describes one recipient and the fields assigned to them
type SignerSpec struct {
	Email    string   `json:"email"`
	Name     string   `json:"name"`
	FieldIDs []string `json:"fieldIds"`
}

// PreparedInvitation pairs a created invitation with its signing link. The
// raw token exists only here and in the invitation email.
type PreparedInvitation struct {
	Invitation models.Invitation `json:"invitation"`
	SignURL    string            `json:"signUrl"`
}

// Prepare locks a draft document's fields, creates one invitation per
// signer and sends the documents out. Every field must be assigned to
// exactly one signer; there is no positional fallback.
func (s *Service) Prepare(ctx context.Context, ownerID, documentID string, signers []SignerSpec, expirationDays int) ([]PreparedInvitation, error) {
	doc, err := s.ownerDocument(ctx, ownerID, documentID)
	if err != nil {
		return nil, err
	}
	if doc.Status != models.DocumentStatusDraft {
		return nil, ErrInvalidTransition
	}
	if len(signers) == 0 {
		return nil, fmt.Errorf("at least one signer is required")
	}

	var fields []models.SignatureField
	if err := s.db.WithContext(ctx).Where("document_id = ?", documentID).Find(&fields).Error; err != nil {
		return nil, fmt.Errorf("failed to load fields: %w", err)
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("cannot send a document without signature fields")
	}

	fieldOwner := make(map[string]int, len(fields)) // field ID -> signer index
	known := make(map[string]bool, len(fields))
	for _, f := range fields {
		known[f.ID] = true
	}
	for i, signer := range signers {
		if signer.Email == "" {
			return nil, fmt.Errorf("signer %d has no email", i)
		}
		for _, fid := range signer.FieldIDs {
			if !known[fid] {
				return nil, fmt.Errorf("signer %d references unknown field %s", i, fid)
			}
			if _, taken := fieldOwner[fid]; taken {
				return nil, fmt.Errorf("field %s is assigned to more than one signer", fid)
			}
			fieldOwner[fid] = i
		}
	}
	if len(fieldOwner) != len(fields) {
		return nil, ErrFieldUnassigned
	}

	now := time.Now()
	prepared := make([]PreparedInvitation, 0, len(signers))
	rawTokens := make([]string, 0, len(signers))

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, signer := range signers {
			raw, hash, expiresAt, err := IssueToken(expirationDays, now)
			if err != nil {
				return err
			}
			inv := models.Invitation{
				DocumentID:     documentID,
				TokenHash:      hash,
				RecipientEmail: signer.Email,
				RecipientName:  signer.Name,
				Status:         models.InvitationStatusPending,
				ExpiresAt:      expiresAt,
			}
			if err := tx.Create(&inv).Error; err != nil {
				return fmt.Errorf("failed to create invitation: %w", err)
			}
			for _, fid := range signer.FieldIDs {
				if err := tx.Model(&models.SignatureField{}).
					Where("id = ?", fid).Update("invitation_id", inv.ID).Error; err != nil {
					return fmt.Errorf("failed to assign field %s: %w", fid, err)
				}
			}
			prepared = append(prepared, PreparedInvitation{
				Invitation: inv,
				SignURL:    s.signURL(raw),
			})
			rawTokens = append(rawTokens, raw)
		}

		res := tx.Model(&models.Document{}).
			Where("id = ? AND status = ?", documentID, models.DocumentStatusDraft).
			Update("status", models.DocumentStatusSent)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrInvalidTransition
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// invitation mail is best-effort; the owner can resend from the dashboard
	if s.invites != nil {
		for i, p := range prepared {
			if err := s.invites.SendInvitation(ctx, *doc, p.Invitation, s.signURL(rawTokens[i])); err != nil {
				log.Printf("signing: invitation mail to %s failed: %v", p.Invitation.RecipientEmail, err)
			}
		}
	}

	return prepared, nil
}

// signURL builds the public signing link for a raw token
func (s *Service) signURL(rawToken string) string {
	return fmt.Sprintf("%s/sign?token=%s", s.cfg.BaseURL, rawToken)
}

// Cancel withdraws a document that has not reached a terminal state
func (s *Service) Cancel(ctx context.Context, ownerID, documentID string) error {
	if _, err := s.ownerDocument(ctx, ownerID, documentID); err != nil {
		return err
	}

	res := s.db.WithContext(ctx).Model(&models.Document{}).
		Where("id = ? AND status IN ?", documentID,
			[]models.DocumentStatus{models.DocumentStatusDraft, models.DocumentStatusSent, models.DocumentStatusPartiallySigned}).
		Update("status", models.DocumentStatusCancelled)
	if res.Error != nil {
		return fmt.Errorf("failed to cancel document: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrInvalidTransition
	}
	return nil
}

// DeleteDocument soft-deletes a document and tries to remove its blobs.
// Blob deletion failures are logged, never escalated.
func (s *Service) DeleteDocument(ctx context.Context, ownerID, documentID string) error {
	doc, err := s.GetDocument(ctx, ownerID, documentID)
	if err != nil {
		return err
	}

	if err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("document_id = ?", documentID).Delete(&models.Invitation{}).Error; err != nil {
			return err
		}
		if err := tx.Where("document_id = ?", documentID).Delete(&models.SignatureField{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Document{}, "id = ?", documentID).Error
	}); err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}

	refs := []string{doc.SourcePDFRef}
	if doc.FinalPDFRef != nil {
		refs = append(refs, *doc.FinalPDFRef)
	}
	for _, inv := range doc.Invitations {
		if inv.SignatureRef != nil {
			refs = append(refs, *inv.SignatureRef)
		}
	}
	for _, ref := range refs {
		if ref == "" {
			continue
		}
		if err := s.store.Delete(ctx, ref); err != nil {
			log.Printf("signing: blob cleanup for %s failed: %v", ref, err)
		}
	}
	return nil
}

// ResendInvitation rotates the token of a not-yet-completed invitation and
// re-sends the signing link. Zero expirationDays falls back to the
// configured default.
func (s *Service) ResendInvitation(ctx context.Context, ownerID, invitationID string, expirationDays int) error {
	var inv models.Invitation
	if err := s.db.WithContext(ctx).First(&inv, "id = ?", invitationID).Error; err != nil {
		return ErrTokenNotFound
	}
	doc, err := s.ownerDocument(ctx, ownerID, inv.DocumentID)
	if err != nil {
		return err
	}
	if inv.Status == models.InvitationStatusCompleted {
		return ErrAlreadySigned
	}

	if expirationDays == 0 {
		expirationDays = s.cfg.Signing.DefaultExpirationDays
	}
	raw, hash, expiresAt, err := IssueToken(expirationDays, time.Now())
	if err != nil {
		return err
	}

	// rotating the hash invalidates the previous token: still exactly one
	// live token per invitation
	res := s.db.WithContext(ctx).Model(&models.Invitation{}).
		Where("id = ? AND status IN ?", invitationID,
			[]models.InvitationStatus{models.InvitationStatusPending, models.InvitationStatusViewed, models.InvitationStatusExpired}).
		Updates(map[string]interface{}{
			"token_hash": hash,
			"expires_at": expiresAt,
			"status":     models.InvitationStatusPending,
			"viewed_at":  nil,
		})
	if res.Error != nil {
		return fmt.Errorf("failed to rotate token: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrAlreadySigned
	}

	if s.invites != nil {
		inv.TokenHash = hash
		inv.ExpiresAt = expiresAt
		if err := s.invites.SendInvitation(ctx, *doc, inv, s.signURL(raw)); err != nil {
			log.Printf("signing: resend mail to %s failed: %v", inv.RecipientEmail, err)
		}
	}
	return nil
}

// DeleteInvitation removes an invitation before it is completed
func (s *Service) DeleteInvitation(ctx context.Context, ownerID, invitationID string) error {
	var inv models.Invitation
	if err := s.db.WithContext(ctx).First(&inv, "id = ?", invitationID).Error; err != nil {
		return ErrTokenNotFound
	}
	if _, err := s.ownerDocument(ctx, ownerID, inv.DocumentID); err != nil {
		return err
	}
	if inv.Status == models.InvitationStatusCompleted {
		return ErrAlreadySigned
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.SignatureField{}).
			Where("invitation_id = ?", invitationID).Update("invitation_id", nil).Error; err != nil {
			return err
		}
		res := tx.Where("id = ? AND status <> ?", invitationID, models.InvitationStatusCompleted).
			Delete(&models.Invitation{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrAlreadySigned
		}
		return nil
	})
	if err != nil {
		return err
	}

	// removing a pending signer can leave every remaining invitation
	// completed, so the detector must run again
	if _, err := s.Reevaluate(ctx, inv.DocumentID); err != nil {
		log.Printf("signing: reevaluate after invitation delete failed for %s: %v", inv.DocumentID, err)
	}
	return nil
}
