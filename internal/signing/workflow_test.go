package signing_test

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"testing"
	"time"

	"github.com/jung-kurt/gofpdf"

	"github.com/quillsign/quillsigngo/internal/config"
	"github.com/quillsign/quillsigngo/internal/database"
	"github.com/quillsign/quillsigngo/internal/finalize"
	"github.com/quillsign/quillsigngo/internal/handlers"
	"github.com/quillsign/quillsigngo/internal/models"
	"github.com/quillsign/quillsigngo/internal/signing"
	"github.com/quillsign/quillsigngo/internal/storage"
	"github.com/quillsign/quillsigngo/internal/utils"
)

// openTestDB starts the embedded database; environments that cannot fetch
// its binaries skip the whole workflow suite.
func openTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.Connect(config.DatabaseConfig{
		Host:     "localhost",
		Username: "postgres",
		Database: "quillsign_test",
	})
	if err != nil {
		t.Skipf("embedded postgres unavailable: %v", err)
	}
	t.Cleanup(func() {
		db.Close()
		os.RemoveAll("pg_data")
	})

	err = db.AutoMigrate(
		&models.User{},
		&models.Document{},
		&models.SignatureField{},
		&models.Invitation{},
		&models.FinalizeJob{},
		&models.NotificationRecord{},
	)
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func testConfig() *config.Config {
	return &config.Config{
		BaseURL:    "http://localhost:3210",
		SystemName: "QuillSign",
		JWTSecret:  "workflow-test-secret",
		Signing: config.SigningConfig{
			TokenGracePeriod:      5 * time.Minute,
			MinSignatureBytes:     100,
			MaxSignatureBytes:     2 * 1024 * 1024,
			DefaultExpirationDays: 7,
		},
	}
}

func createOwner(t *testing.T, db *database.DB, email string) *models.User {
	t.Helper()
	hash, err := utils.HashPassword("password123")
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	u := models.User{Email: email, PasswordHash: hash, DisplayName: "Owner", Role: "owner"}
	if err := db.Create(&u).Error; err != nil {
		t.Fatalf("create owner: %v", err)
	}
	return &u
}

func sourcePDF(t *testing.T) []byte {
	t.Helper()
	pdf := gofpdf.New("P", "pt", "A4", "")
	pdf.AddPage()
	pdf.SetFont("Helvetica", "", 12)
	pdf.Text(72, 72, "Service Agreement")
	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		t.Fatalf("build source pdf: %v", err)
	}
	return buf.Bytes()
}

func sigPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 128, 64))
	for x := 0; x < 128; x++ {
		for y := 0; y < 64; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 2), G: uint8(y * 4), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode signature png: %v", err)
	}
	return buf.Bytes()
}

func rawToken(t *testing.T, signURL string) string {
	t.Helper()
	u, err := url.Parse(signURL)
	if err != nil {
		t.Fatalf("parse sign url: %v", err)
	}
	token := u.Query().Get("token")
	if token == "" {
		t.Fatalf("sign url %q carries no token", signURL)
	}
	return token
}

// prepareDocument uploads a document, places one field per signer and sends it
func prepareDocument(t *testing.T, ctx context.Context, svc *signing.Service, ownerID string, emails ...string) (*models.Document, []signing.PreparedInvitation) {
	t.Helper()
	doc, err := svc.CreateDocument(ctx, ownerID, "Service Agreement", sourcePDF(t))
	if err != nil {
		t.Fatalf("create document: %v", err)
	}

	specs := make([]signing.FieldSpec, len(emails))
	for i := range emails {
		specs[i] = signing.FieldSpec{Page: 1, X: 0.1 + 0.3*float64(i), Y: 0.7, Width: 0.25, Height: 0.06, Required: true}
	}
	fields, err := svc.ReplaceFields(ctx, ownerID, doc.ID, specs)
	if err != nil {
		t.Fatalf("place fields: %v", err)
	}

	signers := make([]signing.SignerSpec, len(emails))
	for i, e := range emails {
		signers[i] = signing.SignerSpec{Email: e, Name: e, FieldIDs: []string{fields[i].ID}}
	}
	prepared, err := svc.Prepare(ctx, ownerID, doc.ID, signers, 7)
	if err != nil {
		t.Fatalf("prepare document: %v", err)
	}
	return doc, prepared
}

func TestSigningWorkflow(t *testing.T) {
	db := openTestDB(t)
	cfg := testConfig()
	store := storage.NewMemoryStore()
	svc := signing.NewService(db, store, cfg, nil, nil)
	pipeline := finalize.NewPipeline(db, store, cfg, nil, nil)
	router := handlers.NewRouter(db, cfg, store, svc, pipeline, nil)
	ctx := context.Background()

	owner := createOwner(t, db, "owner@example.com")

	t.Run("deleting the last pending invitation completes and finalizes", func(t *testing.T) {
		doc, prepared := prepareDocument(t, ctx, svc, owner.ID, "alice@example.com", "bob@example.com")

		// alice signs, bob never does
		_, err := svc.Submit(ctx, signing.SubmitRequest{
			Token:      rawToken(t, prepared[0].SignURL),
			Image:      sigPNG(t),
			SignerName: "Alice Contractor",
		})
		if err != nil {
			t.Fatalf("submit: %v", err)
		}

		if err := svc.DeleteInvitation(ctx, owner.ID, prepared[1].Invitation.ID); err != nil {
			t.Fatalf("delete invitation: %v", err)
		}

		var got models.Document
		if err := db.First(&got, "id = ?", doc.ID).Error; err != nil {
			t.Fatalf("reload document: %v", err)
		}
		if got.Status != models.DocumentStatusCompleted {
			t.Fatalf("document status = %s, want completed after the last pending invitation is removed", got.Status)
		}

		var jobs int64
		db.Model(&models.FinalizeJob{}).Where("document_id = ?", doc.ID).Count(&jobs)
		if jobs == 0 {
			t.Error("no finalize job enqueued for the completed document")
		}

		// finalize twice: the second run must return the same reference
		// without writing another blob
		ref1, err := pipeline.Finalize(ctx, doc.ID)
		if err != nil {
			t.Fatalf("finalize: %v", err)
		}
		puts := store.PutCount()

		ref2, err := pipeline.Finalize(ctx, doc.ID)
		if err != nil {
			t.Fatalf("repeat finalize: %v", err)
		}
		if ref2 != ref1 {
			t.Errorf("repeat finalize returned %q, want %q", ref2, ref1)
		}
		if store.PutCount() != puts {
			t.Errorf("repeat finalize wrote %d extra blobs", store.PutCount()-puts)
		}
	})

	t.Run("expired token keeps the snapshot in the response", func(t *testing.T) {
		_, prepared := prepareDocument(t, ctx, svc, owner.ID, "carol@example.com")
		token := rawToken(t, prepared[0].SignURL)

		db.Model(&models.Invitation{}).
			Where("id = ?", prepared[0].Invitation.ID).
			Update("expires_at", time.Now().Add(-48*time.Hour))

		tc, err := svc.ValidateToken(ctx, token)
		if err != nil {
			t.Fatalf("validate: %v", err)
		}
		if !tc.IsExpired {
			t.Fatal("snapshot should flag the lapsed invitation as expired")
		}

		body, _ := json.Marshal(map[string]string{"token": token})
		req := httptest.NewRequest("POST", "/sign/validate-token", bytes.NewReader(body))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		if rec.Code != http.StatusGone {
			t.Fatalf("status = %d, want %d", rec.Code, http.StatusGone)
		}
		var resp struct {
			IsExpired bool `json:"isExpired"`
			Document  struct {
				Title string `json:"title"`
			} `json:"document"`
		}
		if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
			t.Fatalf("decode response: %v", err)
		}
		if !resp.IsExpired {
			t.Error("response body should carry isExpired=true")
		}
		if resp.Document.Title == "" {
			t.Error("response body should still carry the document snapshot")
		}
	})

	t.Run("events endpoint admits only the owner", func(t *testing.T) {
		doc, _ := prepareDocument(t, ctx, svc, owner.ID, "dave@example.com")

		req := httptest.NewRequest("GET", "/api/documents/"+doc.ID+"/events", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("anonymous watcher: status = %d, want %d", rec.Code, http.StatusUnauthorized)
		}

		stranger := createOwner(t, db, "stranger@example.com")
		access, _, err := utils.GenerateTokens(stranger, cfg.JWTSecret)
		if err != nil {
			t.Fatalf("issue tokens: %v", err)
		}
		req = httptest.NewRequest("GET", "/api/documents/"+doc.ID+"/events?access_token="+access, nil)
		rec = httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		if rec.Code != http.StatusForbidden {
			t.Errorf("stranger watcher: status = %d, want %d", rec.Code, http.StatusForbidden)
		}
	})

	t.Run("resend honors the chosen expiration", func(t *testing.T) {
		_, prepared := prepareDocument(t, ctx, svc, owner.ID, "erin@example.com")
		oldHash := prepared[0].Invitation.TokenHash

		if err := svc.ResendInvitation(ctx, owner.ID, prepared[0].Invitation.ID, 3); err != nil {
			t.Fatalf("resend: %v", err)
		}

		var inv models.Invitation
		if err := db.First(&inv, "id = ?", prepared[0].Invitation.ID).Error; err != nil {
			t.Fatalf("reload invitation: %v", err)
		}
		if inv.TokenHash == oldHash {
			t.Error("resend did not rotate the token")
		}
		now := time.Now()
		if inv.ExpiresAt.Before(now.Add(48*time.Hour)) || inv.ExpiresAt.After(now.Add(96*time.Hour)) {
			t.Errorf("expires at %s, want about 3 days out", inv.ExpiresAt)
		}
	})
}
