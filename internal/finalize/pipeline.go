package finalize

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/quillsign/quillsigngo/internal/config"
	"github.com/quillsign/quillsigngo/internal/database"
	"github.com/quillsign/quillsigngo/internal/models"
	"github.com/quillsign/quillsigngo/internal/notify"
	"github.com/quillsign/quillsigngo/internal/storage"
	"github.com/quillsign/quillsigngo/internal/utils"
	"github.com/quillsign/quillsigngo/internal/ws"
)

const maxJobAttempts = 5

// ValidationError aggregates every structural problem found before any PDF
// work starts. The document stays completed-but-unfinalized and the run can
// be retried after the data is repaired.
type ValidationError struct {
	Violations []string
}

func (e *ValidationError) Error() string {
	return "finalization validation failed: " + strings.Join(e.Violations, "; ")
}

// Pipeline produces the immutable signed artifact for a completed document
type Pipeline struct {
	db       *database.DB
	store    storage.Store
	cfg      *config.Config
	notifier *notify.Dispatcher
	hub      *ws.Hub
}

// NewPipeline creates a new finalization pipeline. notifier and hub may be nil.
func NewPipeline(db *database.DB, store storage.Store, cfg *config.Config, notifier *notify.Dispatcher, hub *ws.Hub) *Pipeline {
	return &Pipeline{db: db, store: store, cfg: cfg, notifier: notifier, hub: hub}
}

// BuildPlacements pairs each completed invitation with its assigned fields
// and validates the whole set, collecting every violation instead of
// stopping at the first.
func BuildPlacements(fields []models.SignatureField, invitations []models.Invitation) ([]Placement, *ValidationError) {
	var violations []string

	byInvitation := make(map[string][]models.SignatureField)
	for _, f := range fields {
		if f.InvitationID != nil {
			byInvitation[*f.InvitationID] = append(byInvitation[*f.InvitationID], f)
		}
	}

	var placements []Placement
	signatures := 0
	for _, inv := range invitations {
		if inv.Status != models.InvitationStatusCompleted {
			continue
		}
		signatures++

		who := inv.RecipientEmail
		if inv.SignatureRef == nil || *inv.SignatureRef == "" {
			violations = append(violations, fmt.Sprintf("invitation %s has no signature artifact", who))
		}
		if strings.TrimSpace(inv.SignerName) == "" {
			violations = append(violations, fmt.Sprintf("invitation %s has no signer name", who))
		}
		if inv.SignedAt == nil {
			violations = append(violations, fmt.Sprintf("invitation %s has no signing timestamp", who))
		}

		assigned := byInvitation[inv.ID]
		if len(assigned) == 0 {
			violations = append(violations, fmt.Sprintf("invitation %s has no assigned signature field", who))
			continue
		}
		for _, f := range assigned {
			if f.Page < 1 {
				violations = append(violations, fmt.Sprintf("field %s has invalid page %d", f.ID, f.Page))
			}
			if f.Width <= 0 || f.Height <= 0 {
				violations = append(violations, fmt.Sprintf("field %s has non-positive dimensions", f.ID))
			}
			if len(violations) > 0 {
				continue
			}
			placements = append(placements, Placement{
				Page:        f.Page,
				X:           f.X,
				Y:           f.Y,
				W:           f.Width,
				H:           f.Height,
				ArtifactRef: *inv.SignatureRef,
				SignerName:  inv.SignerName,
				SignedAt:    *inv.SignedAt,
			})
		}
	}

	if signatures == 0 {
		violations = append(violations, "document has no completed signatures")
	}
	if len(violations) > 0 {
		return nil, &ValidationError{Violations: violations}
	}
	return placements, nil
}

// Finalize embeds all collected signatures into the source PDF. Idempotent:
// when the final reference is already set it is returned unchanged, no bytes
// are regenerated and no notifications fire.
func (p *Pipeline) Finalize(ctx context.Context, documentID string) (string, error) {
	var doc models.Document
	if err := p.db.WithContext(ctx).Preload("Owner").Preload("Fields").Preload("Invitations").
		First(&doc, "id = ?", documentID).Error; err != nil {
		return "", fmt.Errorf("document not found: %w", err)
	}

	if doc.IsFinalized() {
		return *doc.FinalPDFRef, nil
	}
	if doc.Status != models.DocumentStatusCompleted {
		return "", fmt.Errorf("document %s is not fully signed (status %s)", documentID, doc.Status)
	}

	placements, verr := BuildPlacements(doc.Fields, doc.Invitations)
	if verr != nil {
		return "", verr
	}

	src, err := p.store.Fetch(ctx, doc.SourcePDFRef)
	if err != nil {
		return "", fmt.Errorf("failed to fetch source PDF: %w", err)
	}

	completedAt := time.Now()
	if doc.CompletedAt != nil {
		completedAt = *doc.CompletedAt
	}

	ownerName := p.cfg.SystemName
	if doc.Owner != nil {
		if doc.Owner.DisplayName != "" {
			ownerName = doc.Owner.DisplayName
		} else {
			ownerName = doc.Owner.Email
		}
	}

	signed, err := Render(ctx, src, RenderInput{
		Title:       doc.Title,
		OwnerName:   ownerName,
		SystemName:  p.cfg.SystemName,
		CompletedAt: completedAt,
		Placements:  placements,
	}, p.store)
	if err != nil {
		return "", err
	}

	now := time.Now()
	key := utils.SignedPDFKey(doc.Title, doc.ID, now)
	ref, err := p.store.Put(ctx, key, signed, "application/pdf")
	if err != nil {
		return "", fmt.Errorf("failed to upload signed PDF: %w", err)
	}

	// The conditional write is the idempotency guard: of two concurrent
	// finalize runs exactly one lands its reference, and only that run
	// dispatches notifications.
	res := p.db.WithContext(ctx).Model(&models.Document{}).
		Where("id = ? AND final_pdf_ref IS NULL", documentID).
		Updates(map[string]interface{}{"final_pdf_ref": ref, "finalized_at": now})
	if res.Error != nil {
		return "", fmt.Errorf("failed to persist final PDF reference: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		var current models.Document
		if err := p.db.WithContext(ctx).First(&current, "id = ?", documentID).Error; err != nil {
			return "", fmt.Errorf("failed to reload document: %w", err)
		}
		if current.FinalPDFRef != nil {
			return *current.FinalPDFRef, nil
		}
		return "", fmt.Errorf("finalization of %s lost the race but no reference is set", documentID)
	}

	p.hub.Publish(ws.Event{
		Type:       "document_finalized",
		DocumentID: documentID,
		Completed:  len(placements),
		Total:      len(doc.Invitations),
	})

	if p.notifier != nil {
		triggeredBy := lastSigner(doc.Invitations)
		if _, err := p.notifier.NotifyCompletion(ctx, documentID, triggeredBy); err != nil {
			// the signed artifact is committed; notification is retryable on its own
			log.Printf("finalize: completion notification for %s failed: %v", documentID, err)
		}
	}

	return ref, nil
}

// lastSigner names the signer whose submission completed the document
func lastSigner(invitations []models.Invitation) string {
	var name string
	var latest time.Time
	for _, inv := range invitations {
		if inv.Status != models.InvitationStatusCompleted || inv.SignedAt == nil {
			continue
		}
		if inv.SignedAt.After(latest) {
			latest = *inv.SignedAt
			name = inv.SignerName
		}
	}
	return name
}

// ProcessPendingJobs claims and runs queued finalization jobs. Called by the
// background worker; safe to run on multiple instances because the claim is
// a conditional update.
func (p *Pipeline) ProcessPendingJobs(ctx context.Context) error {
	var jobs []models.FinalizeJob
	if err := p.db.WithContext(ctx).
		Where("status = ?", models.FinalizeJobPending).
		Order("created_at ASC").Limit(10).Find(&jobs).Error; err != nil {
		return fmt.Errorf("failed to fetch pending jobs: %w", err)
	}

	for _, job := range jobs {
		claim := p.db.WithContext(ctx).Model(&models.FinalizeJob{}).
			Where("id = ? AND status = ?", job.ID, models.FinalizeJobPending).
			Updates(map[string]interface{}{
				"status":   models.FinalizeJobProcessing,
				"attempts": job.Attempts + 1,
			})
		if claim.Error != nil || claim.RowsAffected == 0 {
			continue // another worker got it
		}

		if _, err := p.Finalize(ctx, job.DocumentID); err != nil {
			p.failJob(ctx, &job, err)
			continue
		}

		p.db.WithContext(ctx).Model(&models.FinalizeJob{}).
			Where("id = ?", job.ID).Update("status", models.FinalizeJobDone)
	}
	return nil
}

// failJob records an attempt's failure and decides whether to retry
func (p *Pipeline) failJob(ctx context.Context, job *models.FinalizeJob, runErr error) {
	log.Printf("finalize: job %d for document %s failed: %v", job.ID, job.DocumentID, runErr)

	status := models.FinalizeJobPending // transient: leave for the next tick
	var verr *ValidationError
	if errors.As(runErr, &verr) || job.Attempts+1 >= maxJobAttempts {
		// structural problems need operator action, not retries
		status = models.FinalizeJobError
	}

	p.db.WithContext(ctx).Model(&models.FinalizeJob{}).
		Where("id = ?", job.ID).
		Updates(map[string]interface{}{"status": status, "last_error": runErr.Error()})
}
