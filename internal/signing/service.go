package signing

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"gorm.io/datatypes"

	"github.com/quillsign/quillsigngo/internal/config"
	"github.com/quillsign/quillsigngo/internal/database"
	"github.com/quillsign/quillsigngo/internal/models"
	"github.com/quillsign/quillsigngo/internal/storage"
	"github.com/quillsign/quillsigngo/internal/ws"
)

// InvitationSender delivers the invitation email carrying the signing link.
// Implemented by the notification dispatcher; nil disables delivery.
type InvitationSender interface {
	SendInvitation(ctx context.Context, doc models.Document, inv models.Invitation, signURL string) error
}

// Service implements token validation, signature collection and the
// completion detector for the signing workflow
type Service struct {
	db      *database.DB
	store   storage.Store
	cfg     *config.Config
	hub     *ws.Hub
	invites InvitationSender
}

// NewService creates a new signing service. hub and invites may be nil.
func NewService(db *database.DB, store storage.Store, cfg *config.Config, hub *ws.Hub, invites InvitationSender) *Service {
	return &Service{db: db, store: store, cfg: cfg, hub: hub, invites: invites}
}

// TokenContext is the snapshot returned by token validation
type TokenContext struct {
	Invitation models.Invitation      `json:"invitation"`
	Document   models.Document        `json:"document"`
	Fields     []models.SignatureField `json:"fields"`
	IsExpired  bool                   `json:"isExpired"`
}

// lookupByToken resolves a raw bearer token to its invitation via the stored
// hash. The unique index on token_hash makes the lookup itself the match;
// the explicit constant-time comparison guards against a collation-fuzzy
// index ever matching more loosely than byte equality.
func (s *Service) lookupByToken(ctx context.Context, rawToken string) (*models.Invitation, error) {
	hash := HashToken(rawToken)

	var inv models.Invitation
	if err := s.db.WithContext(ctx).Where("token_hash = ?", hash).First(&inv).Error; err != nil {
		return nil, ErrTokenNotFound
	}
	if !TokenHashEqual(inv.TokenHash, hash) {
		return nil, ErrTokenNotFound
	}
	return &inv, nil
}

// ValidateToken resolves a bearer token to its signing context. A first
// successful validation of a pending invitation marks it viewed; repeating
// the call is idempotent.
func (s *Service) ValidateToken(ctx context.Context, rawToken string) (*TokenContext, error) {
	inv, err := s.lookupByToken(ctx, rawToken)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	expired := inv.IsExpiredAt(now, s.cfg.Signing.TokenGracePeriod)

	if inv.Status == models.InvitationStatusPending && !expired {
		res := s.db.WithContext(ctx).Model(&models.Invitation{}).
			Where("id = ? AND status = ?", inv.ID, models.InvitationStatusPending).
			Updates(map[string]interface{}{"status": models.InvitationStatusViewed, "viewed_at": now})
		if res.Error == nil && res.RowsAffected == 1 {
			inv.Status = models.InvitationStatusViewed
			inv.ViewedAt = &now
			s.publishProgress(ctx, inv.DocumentID, "invitation_viewed", inv.RecipientEmail)
		}
	}

	var doc models.Document
	if err := s.db.WithContext(ctx).First(&doc, "id = ?", inv.DocumentID).Error; err != nil {
		return nil, ErrDocumentNotFound
	}

	var fields []models.SignatureField
	if err := s.db.WithContext(ctx).
		Where("document_id = ? AND invitation_id = ?", doc.ID, inv.ID).
		Order("page ASC").Find(&fields).Error; err != nil {
		return nil, fmt.Errorf("failed to load fields: %w", err)
	}

	return &TokenContext{Invitation: *inv, Document: doc, Fields: fields, IsExpired: expired}, nil
}

// SubmitRequest carries one signer's submission
type SubmitRequest struct {
	Token       string
	Image       []byte
	SignerName  string
	SignerTitle string
	SignerNotes string
	IP          string
	UserAgent   string
}

// SubmitResult reports the outcome of a recorded signature
type SubmitResult struct {
	ArtifactRef string `json:"artifactRef"`
	AllComplete bool   `json:"allComplete"`
	Completed   int    `json:"completed"`
	Total       int    `json:"total"`
}

// Submit validates and records a single signer's submission. Persisting the
// invitation update is the durability boundary: once it commits, downstream
// finalize or notification failures never roll the signature back.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (*SubmitResult, error) {
	inv, err := s.lookupByToken(ctx, req.Token)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	switch {
	case inv.Status == models.InvitationStatusCompleted:
		return nil, ErrAlreadySigned
	case inv.Status == models.InvitationStatusDeclined:
		return nil, ErrInvitationDeclined
	case inv.Status == models.InvitationStatusExpired,
		inv.IsExpiredAt(now, s.cfg.Signing.TokenGracePeriod):
		return nil, ErrTokenExpired
	}

	contentType, err := ValidateSignatureImage(req.Image, s.cfg.Signing.MinSignatureBytes, s.cfg.Signing.MaxSignatureBytes)
	if err != nil {
		return nil, err
	}

	signerName, err := ValidateSignerName(req.SignerName)
	if err != nil {
		return nil, err
	}

	key := fmt.Sprintf("signatures/%s/%s.%s", inv.DocumentID, inv.ID, ImageExtension(contentType))
	artifactRef, err := s.store.Put(ctx, key, req.Image, contentType)
	if err != nil {
		return nil, fmt.Errorf("failed to persist signature artifact: %w", err)
	}

	meta, _ := json.Marshal(map[string]interface{}{
		"ip":          req.IP,
		"userAgent":   req.UserAgent,
		"submittedAt": now.UTC().Format(time.RFC3339),
	})

	// Conditional update: only a pending or viewed invitation may complete,
	// so a double submit racing itself loses here rather than overwriting.
	res := s.db.WithContext(ctx).Model(&models.Invitation{}).
		Where("id = ? AND status IN ?", inv.ID,
			[]models.InvitationStatus{models.InvitationStatusPending, models.InvitationStatusViewed}).
		Updates(map[string]interface{}{
			"status":            models.InvitationStatusCompleted,
			"signed_at":         now,
			"signature_ref":     artifactRef,
			"signer_name":       signerName,
			"signer_title":      req.SignerTitle,
			"signer_notes":      req.SignerNotes,
			"signer_ip":         req.IP,
			"signer_user_agent": req.UserAgent,
			"request_meta":      datatypes.JSON(meta),
		})
	if res.Error != nil {
		return nil, fmt.Errorf("failed to complete invitation: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		// lost the race to another submission with the same token
		if err := s.store.Delete(ctx, artifactRef); err != nil {
			log.Printf("signing: could not clean up orphaned artifact %s: %v", artifactRef, err)
		}
		return nil, ErrAlreadySigned
	}

	s.publishProgress(ctx, inv.DocumentID, "invitation_signed", signerName)

	eval, err := s.Reevaluate(ctx, inv.DocumentID)
	if err != nil {
		// the signature is committed; completion will be re-detected later
		log.Printf("signing: reevaluate after submit failed for %s: %v", inv.DocumentID, err)
		return &SubmitResult{ArtifactRef: artifactRef}, nil
	}

	return &SubmitResult{
		ArtifactRef: artifactRef,
		AllComplete: eval.Complete,
		Completed:   eval.Completed,
		Total:       eval.Total,
	}, nil
}

// ReevaluateResult reports the completion detector outcome
type ReevaluateResult struct {
	Complete     bool
	Transitioned bool
	Completed    int
	Total        int
}

// AllComplete is the completion predicate: a document with no invitations is
// never complete
func AllComplete(total, completed int) bool {
	return total > 0 && completed == total
}

// Reevaluate re-runs the completion detector for a document. The transition
// to completed is a conditional update so that of two concurrent callers
// observing a fully-signed document exactly one wins and enqueues the
// finalization job.
func (s *Service) Reevaluate(ctx context.Context, documentID string) (ReevaluateResult, error) {
	var invitations []models.Invitation
	if err := s.db.WithContext(ctx).Where("document_id = ?", documentID).Find(&invitations).Error; err != nil {
		return ReevaluateResult{}, fmt.Errorf("failed to load invitations: %w", err)
	}

	total := len(invitations)
	completed := 0
	for _, inv := range invitations {
		if inv.Status == models.InvitationStatusCompleted {
			completed++
		}
	}

	result := ReevaluateResult{Completed: completed, Total: total}

	if !AllComplete(total, completed) {
		if completed > 0 {
			// sent -> partially_signed; a no-op when already there
			s.db.WithContext(ctx).Model(&models.Document{}).
				Where("id = ? AND status = ?", documentID, models.DocumentStatusSent).
				Update("status", models.DocumentStatusPartiallySigned)
		}
		return result, nil
	}

	result.Complete = true

	now := time.Now()
	res := s.db.WithContext(ctx).Model(&models.Document{}).
		Where("id = ? AND status IN ?", documentID,
			[]models.DocumentStatus{models.DocumentStatusSent, models.DocumentStatusPartiallySigned}).
		Updates(map[string]interface{}{
			"status":       models.DocumentStatusCompleted,
			"completed_at": now,
		})
	if res.Error != nil {
		return result, fmt.Errorf("failed to transition document: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		// someone else won, or the document already completed earlier
		return result, nil
	}

	result.Transitioned = true

	job := models.FinalizeJob{DocumentID: documentID, Status: models.FinalizeJobPending}
	if err := s.db.WithContext(ctx).Create(&job).Error; err != nil {
		// the manual finalize endpoint remains as the recovery path
		log.Printf("signing: failed to enqueue finalize job for %s: %v", documentID, err)
	}

	s.publishProgress(ctx, documentID, "document_completed", "")

	return result, nil
}

// publishProgress pushes a live event to document watchers
func (s *Service) publishProgress(ctx context.Context, documentID, eventType, detail string) {
	var total, completed int64
	s.db.WithContext(ctx).Model(&models.Invitation{}).Where("document_id = ?", documentID).Count(&total)
	s.db.WithContext(ctx).Model(&models.Invitation{}).
		Where("document_id = ? AND status = ?", documentID, models.InvitationStatusCompleted).Count(&completed)

	s.hub.Publish(ws.Event{
		Type:       eventType,
		DocumentID: documentID,
		Completed:  int(completed),
		Total:      int(total),
		Detail:     detail,
	})
}

// InvitationProgress is one signer's view in a progress report
type InvitationProgress struct {
	RecipientName string                  `json:"recipientName"`
	Status        models.InvitationStatus `json:"status"`
	SignedAt      *time.Time              `json:"signedAt,omitempty"`
}

// ProgressReport is the per-invitation and document progress for one token
type ProgressReport struct {
	DocumentID     string                  `json:"documentId"`
	DocumentTitle  string                  `json:"documentTitle"`
	DocumentStatus models.DocumentStatus   `json:"documentStatus"`
	Invitation     InvitationProgress      `json:"invitation"`
	Completed      int                     `json:"completed"`
	Total          int                     `json:"total"`
	Finalized      bool                    `json:"finalized"`
	Others         []InvitationProgress    `json:"others"`
}

// Progress reports signing progress for the invitation behind a token
func (s *Service) Progress(ctx context.Context, rawToken string) (*ProgressReport, error) {
	inv, err := s.lookupByToken(ctx, rawToken)
	if err != nil {
		return nil, err
	}

	var doc models.Document
	if err := s.db.WithContext(ctx).First(&doc, "id = ?", inv.DocumentID).Error; err != nil {
		return nil, ErrDocumentNotFound
	}

	var invitations []models.Invitation
	if err := s.db.WithContext(ctx).Where("document_id = ?", doc.ID).Find(&invitations).Error; err != nil {
		return nil, fmt.Errorf("failed to load invitations: %w", err)
	}

	report := &ProgressReport{
		DocumentID:     doc.ID,
		DocumentTitle:  doc.Title,
		DocumentStatus: doc.Status,
		Total:          len(invitations),
		Finalized:      doc.IsFinalized(),
	}
	for _, other := range invitations {
		p := InvitationProgress{RecipientName: other.RecipientName, Status: other.Status, SignedAt: other.SignedAt}
		if other.Status == models.InvitationStatusCompleted {
			report.Completed++
		}
		if other.ID == inv.ID {
			report.Invitation = p
		} else {
			report.Others = append(report.Others, p)
		}
	}

	return report, nil
}

// SignerResult is the completion summary for a single signer
type SignerResult struct {
	DocumentTitle string     `json:"documentTitle"`
	SignedAt      *time.Time `json:"signedAt,omitempty"`
	SignerName    string     `json:"signerName,omitempty"`
	AllComplete   bool       `json:"allComplete"`
	Finalized     bool       `json:"finalized"`
	DownloadURL   string     `json:"downloadUrl,omitempty"`
}

// Result returns the completion summary for the signer behind a token
func (s *Service) Result(ctx context.Context, rawToken string) (*SignerResult, error) {
	report, err := s.Progress(ctx, rawToken)
	if err != nil {
		return nil, err
	}
	inv, err := s.lookupByToken(ctx, rawToken)
	if err != nil {
		return nil, err
	}

	res := &SignerResult{
		DocumentTitle: report.DocumentTitle,
		SignedAt:      inv.SignedAt,
		SignerName:    inv.SignerName,
		AllComplete:   AllComplete(report.Total, report.Completed),
		Finalized:     report.Finalized,
	}
	if report.Finalized && inv.Status == models.InvitationStatusCompleted {
		res.DownloadURL = fmt.Sprintf("%s/api/documents/%s/download?token=%s", s.cfg.BaseURL, report.DocumentID, rawToken)
	}
	return res, nil
}

// Decline marks a not-yet-completed invitation as declined
func (s *Service) Decline(ctx context.Context, rawToken, reason string) error {
	inv, err := s.lookupByToken(ctx, rawToken)
	if err != nil {
		return err
	}
	if inv.Status == models.InvitationStatusCompleted {
		return ErrAlreadySigned
	}

	res := s.db.WithContext(ctx).Model(&models.Invitation{}).
		Where("id = ? AND status IN ?", inv.ID,
			[]models.InvitationStatus{models.InvitationStatusPending, models.InvitationStatusViewed}).
		Updates(map[string]interface{}{
			"status":         models.InvitationStatusDeclined,
			"decline_reason": reason,
		})
	if res.Error != nil {
		return fmt.Errorf("failed to decline invitation: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrAlreadySigned
	}

	s.publishProgress(ctx, inv.DocumentID, "invitation_declined", inv.RecipientEmail)
	return nil
}

// SweepExpired marks lapsed invitations expired and transitions documents
// whose invitations have all lapsed. Run periodically by the expiry worker.
func (s *Service) SweepExpired(ctx context.Context) error {
	now := time.Now()
	cutoff := now.Add(-s.cfg.Signing.TokenGracePeriod)

	res := s.db.WithContext(ctx).Model(&models.Invitation{}).
		Where("status IN ? AND expires_at < ?",
			[]models.InvitationStatus{models.InvitationStatusPending, models.InvitationStatusViewed}, cutoff).
		Update("status", models.InvitationStatusExpired)
	if res.Error != nil {
		return fmt.Errorf("failed to expire invitations: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		log.Printf("signing: expired %d lapsed invitations", res.RowsAffected)
	}

	// documents where every invitation expired move to expired as well
	var docIDs []string
	err := s.db.WithContext(ctx).Model(&models.Invitation{}).
		Where("document_id IN (?)",
			s.db.Model(&models.Document{}).Select("id").
				Where("status IN ?", []models.DocumentStatus{models.DocumentStatusSent, models.DocumentStatusPartiallySigned})).
		Group("document_id").
		Having("count(*) = sum(case when status = ? then 1 else 0 end)", models.InvitationStatusExpired).
		Pluck("document_id", &docIDs).Error
	if err != nil {
		return fmt.Errorf("failed to find fully-expired documents: %w", err)
	}

	for _, id := range docIDs {
		s.db.WithContext(ctx).Model(&models.Document{}).
			Where("id = ? AND status IN ?", id,
				[]models.DocumentStatus{models.DocumentStatusSent, models.DocumentStatusPartiallySigned}).
			Update("status", models.DocumentStatusExpired)
	}

	return nil
}
