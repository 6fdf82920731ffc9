package main

import (
	"bytes"
	"context"
	"fmt"
	"log"

	"github.com/jung-kurt/gofpdf"

	"github.com/quillsign/quillsigngo/internal/config"
	"github.com/quillsign/quillsigngo/internal/database"
	"github.com/quillsign/quillsigngo/internal/models"
	"github.com/quillsign/quillsigngo/internal/signing"
	"github.com/quillsign/quillsigngo/internal/storage"
	"github.com/quillsign/quillsigngo/internal/utils"
)

const (
	demoEmail    = "demo@quillsign.local"
	demoPassword = "quillsign-demo"
)

func main() {
	fmt.Println("🌱 QuillSign Demo Data Seeder")
	fmt.Println("=" + string(make([]rune, 60)))

	// Load config
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("❌ Failed to load config: %v", err)
	}

	// Connect to database
	db, err := database.Connect(cfg.Database)
	if err != nil {
		log.Fatalf("❌ Failed to connect to database: %v", err)
	}
	defer db.Close()

	fmt.Println("✅ Connected to database")
	fmt.Println()

	// Run migrations first
	fmt.Println("🔨 Running database migrations...")
	err = db.AutoMigrate(
		&models.User{},
		&models.Document{},
		&models.SignatureField{},
		&models.Invitation{},
		&models.FinalizeJob{},
		&models.NotificationRecord{},
	)
	if err != nil {
		log.Fatalf("❌ Migration failed: %v", err)
	}
	fmt.Println("✅ Migrations complete")
	fmt.Println()

	ctx := context.Background()
	store, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		log.Fatalf("❌ Failed to initialize storage: %v", err)
	}

	// 1. Demo owner account
	fmt.Println("👤 Creating demo owner...")
	var owner models.User
	if err := db.Where("email = ?", demoEmail).First(&owner).Error; err != nil {
		hash, err := utils.HashPassword(demoPassword)
		if err != nil {
			log.Fatalf("❌ Failed to hash password: %v", err)
		}
		owner = models.User{
			Email:        demoEmail,
			PasswordHash: hash,
			DisplayName:  "Demo Owner",
			Role:         "owner",
		}
		if err := db.Create(&owner).Error; err != nil {
			log.Fatalf("❌ Failed to create demo owner: %v", err)
		}
		fmt.Printf("   ✓ Created owner: %s (password: %s)\n", demoEmail, demoPassword)
	} else {
		fmt.Printf("   ✓ Owner already exists: %s\n", demoEmail)
	}
	fmt.Println()

	// invitation mail is disabled in the seeder; the links are printed instead
	svc := signing.NewService(db, store, cfg, nil, nil)

	// 2. Demo agreement PDF
	fmt.Println("📄 Creating demo agreement...")
	doc, err := svc.CreateDocument(ctx, owner.ID, "Demo Consulting Agreement", demoPDF())
	if err != nil {
		log.Fatalf("❌ Failed to create document: %v", err)
	}
	fmt.Printf("   ✓ Created document: %s (%s)\n", doc.Title, doc.ID)

	// 3. Two signature fields on page 2
	fields, err := svc.ReplaceFields(ctx, owner.ID, doc.ID, []signing.FieldSpec{
		{Page: 2, X: 0.10, Y: 0.72, Width: 0.32, Height: 0.07, Required: true},
		{Page: 2, X: 0.55, Y: 0.72, Width: 0.32, Height: 0.07, Required: true},
	})
	if err != nil {
		log.Fatalf("❌ Failed to place fields: %v", err)
	}
	fmt.Printf("   ✓ Placed %d signature fields\n", len(fields))
	fmt.Println()

	// 4. Send to two demo signers
	fmt.Println("✉️  Preparing invitations...")
	prepared, err := svc.Prepare(ctx, owner.ID, doc.ID, []signing.SignerSpec{
		{Email: "alice@example.com", Name: "Alice Contractor", FieldIDs: []string{fields[0].ID}},
		{Email: "bob@example.com", Name: "Bob Client", FieldIDs: []string{fields[1].ID}},
	}, 7)
	if err != nil {
		log.Fatalf("❌ Failed to prepare document: %v", err)
	}
	for _, p := range prepared {
		fmt.Printf("   ✓ %s → %s\n", p.Invitation.RecipientEmail, p.SignURL)
	}
	fmt.Println()

	// Summary
	fmt.Println("=" + string(make([]rune, 60)))
	fmt.Println("🎉 Demo data created successfully!")
	fmt.Println()
	fmt.Println("🌐 Start the server:")
	fmt.Println("   go run ./cmd/api/main.go")
	fmt.Printf("   Login as %s / %s\n", demoEmail, demoPassword)
	fmt.Println("   Open a signing link above to act as a signer")
	fmt.Println("=" + string(make([]rune, 60)))
}

// demoPDF renders a two-page agreement to sign
func demoPDF() []byte {
	pdf := gofpdf.New("P", "pt", "A4", "")
	pdf.SetTitle("Demo Consulting Agreement", true)

	pdf.AddPage()
	pdf.SetFont("Helvetica", "B", 18)
	pdf.Text(72, 90, "Consulting Agreement")
	pdf.SetFont("Helvetica", "", 11)
	pdf.Text(72, 130, "This agreement is entered into between Alice Contractor")
	pdf.Text(72, 146, "and Bob Client for consulting services.")

	pdf.AddPage()
	pdf.SetFont("Helvetica", "", 11)
	pdf.Text(72, 90, "IN WITNESS WHEREOF, the parties have executed this agreement.")
	pdf.Text(72, 560, "Contractor:")
	pdf.Text(340, 560, "Client:")

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		log.Fatalf("❌ Failed to render demo PDF: %v", err)
	}
	return buf.Bytes()
}
