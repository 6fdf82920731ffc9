package finalize

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"testing"
	"time"

	"github.com/jung-kurt/gofpdf"

	"github.com/quillsign/quillsigngo/internal/storage"
)

func makeSourcePDF(t *testing.T, pages int) []byte {
	t.Helper()
	pdf := gofpdf.New("P", "pt", "A4", "")
	pdf.SetFont("Helvetica", "", 12)
	for i := 1; i <= pages; i++ {
		pdf.AddPage()
		pdf.Text(72, 72, fmt.Sprintf("Agreement page %d", i))
	}
	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		t.Fatalf("failed to build source PDF: %v", err)
	}
	return buf.Bytes()
}

func makeSignaturePNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 40, 20))
	for x := 0; x < 40; x++ {
		img.Set(x, 10, color.RGBA{B: 200, A: 255})
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("failed to encode PNG: %v", err)
	}
	return buf.Bytes()
}

func TestRenderEmbedsSignatures(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()

	ref, err := store.Put(ctx, "signatures/doc/inv.png", makeSignaturePNG(t), "image/png")
	if err != nil {
		t.Fatalf("put: %v", err)
	}

	src := makeSourcePDF(t, 2)
	signedAt := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)

	out, err := Render(ctx, src, RenderInput{
		Title:       "Service Agreement",
		OwnerName:   "Alice Example",
		SystemName:  "QuillSign",
		CompletedAt: signedAt,
		Placements: []Placement{
			{Page: 1, X: 0.1, Y: 0.7, W: 0.3, H: 0.08, ArtifactRef: ref, SignerName: "Bob Signer", SignedAt: signedAt},
			{Page: 2, X: 0.5, Y: 0.2, W: 0.25, H: 0.06, ArtifactRef: ref, SignerName: "Bob Signer", SignedAt: signedAt},
		},
	}, store)
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if !bytes.HasPrefix(out, []byte("%PDF")) {
		t.Error("output is not a PDF")
	}
	if len(out) <= len(src) {
		t.Errorf("signed PDF (%d bytes) should be larger than the source (%d bytes)", len(out), len(src))
	}
}

func TestRenderToleratesMissingArtifact(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	src := makeSourcePDF(t, 1)

	out, err := Render(ctx, src, RenderInput{
		Title:       "Partial",
		SystemName:  "QuillSign",
		CompletedAt: time.Now(),
		Placements: []Placement{
			{Page: 1, X: 0.1, Y: 0.1, W: 0.2, H: 0.05, ArtifactRef: "mem://gone", SignerName: "X", SignedAt: time.Now()},
		},
	}, store)
	if err != nil {
		t.Fatalf("Render should tolerate a missing artifact, got: %v", err)
	}
	if !bytes.HasPrefix(out, []byte("%PDF")) {
		t.Error("output is not a PDF")
	}
}

func TestRenderRejectsNonPDFSource(t *testing.T) {
	_, err := Render(context.Background(), []byte("definitely not a pdf"), RenderInput{
		Title:       "Broken",
		SystemName:  "QuillSign",
		CompletedAt: time.Now(),
	}, storage.NewMemoryStore())
	if err == nil {
		t.Fatal("expected an error for a non-PDF source")
	}
}
