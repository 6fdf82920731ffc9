package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"log"
	"net/url"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"gorm.io/datatypes"

	"github.com/quillsign/quillsigngo/internal/config"
	"github.com/quillsign/quillsigngo/internal/database"
	"github.com/quillsign/quillsigngo/internal/models"
)

const (
	maxSendRetries  = 3
	initialInterval = 500 * time.Millisecond
	sendTimeout     = 30 * time.Second
)

// Dispatcher fans completion and invitation emails out to recipients. Each
// recipient is retried independently; one exhausted recipient never blocks
// the others.
type Dispatcher struct {
	db     *database.DB
	mailer Mailer
	cfg    *config.Config
}

// NewDispatcher creates a new notification dispatcher
func NewDispatcher(db *database.DB, mailer Mailer, cfg *config.Config) *Dispatcher {
	return &Dispatcher{db: db, mailer: mailer, cfg: cfg}
}

// SendFailure records one recipient whose retries were exhausted
type SendFailure struct {
	Email string `json:"email"`
	Error string `json:"error"`
}

// Summary reports the outcome of one fan-out batch
type Summary struct {
	Sent   []string      `json:"sent"`
	Failed []SendFailure `json:"failed"`
}

// NotifyCompletion emails everyone interested in a completed document: the
// owner plus every invitation recipient, de-duplicated. Called exactly once
// per completion event, by the finalization run that set the final PDF.
func (d *Dispatcher) NotifyCompletion(ctx context.Context, documentID, triggeredBy string) (*Summary, error) {
	var doc models.Document
	if err := d.db.WithContext(ctx).Preload("Owner").Preload("Invitations").
		First(&doc, "id = ?", documentID).Error; err != nil {
		return nil, fmt.Errorf("document not found: %w", err)
	}

	total := len(doc.Invitations)
	completed := 0
	for _, inv := range doc.Invitations {
		if inv.Status == models.InvitationStatusCompleted {
			completed++
		}
	}

	ownerEmail := ""
	if doc.Owner != nil {
		ownerEmail = doc.Owner.Email
	}
	recipients := CompletionRecipients(ownerEmail, doc.Invitations)

	subject := fmt.Sprintf("%q has been signed by all parties", doc.Title)
	body := d.completionBody(&doc, triggeredBy, completed, total)

	summary := &Summary{}
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, recipient := range recipients {
		wg.Add(1)
		go func(to string) {
			defer wg.Done()
			msgID, err := d.sendWithRetry(ctx, to, subject, body)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				summary.Failed = append(summary.Failed, SendFailure{Email: to, Error: err.Error()})
				d.record(ctx, documentID, to, "failed", msgID, err)
			} else {
				summary.Sent = append(summary.Sent, to)
				d.record(ctx, documentID, to, "sent", msgID, nil)
			}
		}(recipient)
	}
	wg.Wait()

	if len(summary.Failed) > 0 {
		log.Printf("notify: completion batch for %s: %d sent, %d failed",
			documentID, len(summary.Sent), len(summary.Failed))
	}
	return summary, nil
}

// CompletionRecipients is the de-duplicated recipient set for a completion
// event: the owner plus every invitation recipient
func CompletionRecipients(ownerEmail string, invitations []models.Invitation) []string {
	recipients := make([]string, 0, len(invitations)+1)
	seen := make(map[string]bool)
	if ownerEmail != "" {
		recipients = append(recipients, ownerEmail)
		seen[ownerEmail] = true
	}
	for _, inv := range invitations {
		if inv.RecipientEmail != "" && !seen[inv.RecipientEmail] {
			recipients = append(recipients, inv.RecipientEmail)
			seen[inv.RecipientEmail] = true
		}
	}
	return recipients
}

// sendWithRetry wraps one recipient's delivery in exponential backoff
func (d *Dispatcher) sendWithRetry(ctx context.Context, to, subject, body string) (string, error) {
	var msgID string
	op := func() error {
		sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
		defer cancel()
		id, err := d.mailer.Send(sendCtx, to, subject, body)
		if err != nil {
			return err
		}
		msgID = id
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = initialInterval
	err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(bo, maxSendRetries), ctx))
	return msgID, err
}

// record appends one row to the dispatch ledger
func (d *Dispatcher) record(ctx context.Context, documentID, recipient, status, msgID string, sendErr error) {
	rec := models.NotificationRecord{
		DocumentID: documentID,
		Recipient:  recipient,
		Status:     status,
		MessageID:  msgID,
	}
	if sendErr != nil {
		rec.Error = sendErr.Error()
	}
	if payload, err := json.Marshal(map[string]string{"kind": "completion"}); err == nil {
		rec.Payload = datatypes.JSON(payload)
	}
	if err := d.db.WithContext(ctx).Create(&rec).Error; err != nil {
		log.Printf("notify: failed to record dispatch for %s: %v", recipient, err)
	}
}

// completionBody renders the completion email
func (d *Dispatcher) completionBody(doc *models.Document, triggeredBy string, completed, total int) string {
	title := html.EscapeString(doc.Title)
	signer := html.EscapeString(triggeredBy)

	when := ""
	if doc.CompletedAt != nil {
		when = doc.CompletedAt.UTC().Format("Jan 2, 2006 15:04 MST")
	}

	body := fmt.Sprintf(
		"<h2>%s is fully signed</h2>"+
			"<p>The last signature was added by <strong>%s</strong> on %s.</p>"+
			"<p>Signatures collected: %d of %d.</p>",
		title, signer, when, completed, total)

	if doc.IsFinalized() {
		body += fmt.Sprintf(
			`<p><a href="%s/api/documents/%s/download">Download the signed document</a></p>`,
			d.cfg.BaseURL, doc.ID)
	}
	body += fmt.Sprintf("<p>Sent by %s.</p>", html.EscapeString(d.cfg.SystemName))
	return body
}

// SendInvitation delivers the signing link to one recipient. Implements
// signing.InvitationSender.
func (d *Dispatcher) SendInvitation(ctx context.Context, doc models.Document, inv models.Invitation, signURL string) error {
	subject := fmt.Sprintf("You are invited to sign %q", doc.Title)

	name := inv.RecipientName
	if name == "" {
		name = inv.RecipientEmail
	}

	body := fmt.Sprintf(
		"<h2>Signature requested</h2>"+
			"<p>Hello %s,</p>"+
			"<p>You have been asked to sign <strong>%s</strong>.</p>"+
			`<p><a href="%s">Review and sign the document</a></p>`+
			"<p>The link expires on %s. You can also scan the QR code at "+
			`<a href="%s/sign/qr?token=%s">this address</a> to sign on another device.</p>`,
		html.EscapeString(name), html.EscapeString(doc.Title), signURL,
		inv.ExpiresAt.UTC().Format("Jan 2, 2006"),
		d.cfg.BaseURL, tokenFromSignURL(signURL))

	_, err := d.sendWithRetry(ctx, inv.RecipientEmail, subject, body)
	return err
}

// tokenFromSignURL pulls the raw token back out of a signing link
func tokenFromSignURL(signURL string) string {
	u, err := url.Parse(signURL)
	if err != nil {
		return ""
	}
	return u.Query().Get("token")
}
