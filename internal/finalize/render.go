package finalize

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg" // artifact decoding
	_ "image/png"
	"io"
	"log"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/jung-kurt/gofpdf/contrib/gofpdi"

	"github.com/quillsign/quillsigngo/internal/storage"
)

// Placement is one signature to embed: a completed invitation's artifact
// drawn at its assigned field
type Placement struct {
	Page        int
	X, Y, W, H  float64 // normalized, top-left origin
	ArtifactRef string
	SignerName  string
	SignedAt    time.Time
}

// RenderInput describes the signed document to produce
type RenderInput struct {
	Title       string
	OwnerName   string
	SystemName  string
	CompletedAt time.Time
	Placements  []Placement
}

// default page geometry when the source page carries no usable MediaBox
const (
	fallbackPageW = 595.28 // A4 in points
	fallbackPageH = 841.89
)

// Render embeds all collected signatures into the source PDF and returns the
// finalized bytes. A single artifact that fails to fetch or decode is logged
// and skipped; the rest of the document still renders.
func Render(ctx context.Context, src []byte, in RenderInput, store storage.Store) (out []byte, err error) {
	// gofpdi parses with panics on malformed input
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("failed to import source PDF: %v", r)
		}
	}()

	pdf := gofpdf.NewCustom(&gofpdf.InitType{UnitStr: "pt"})
	pdf.SetTitle(in.Title, true)
	pdf.SetAuthor(in.OwnerName, true)
	pdf.SetCreator(in.SystemName, true)
	pdf.SetSubject("Signed document", true)
	pdf.SetCreationDate(in.CompletedAt)
	pdf.SetModificationDate(in.CompletedAt)
	pdf.SetAutoPageBreak(false, 0)
	pdf.SetMargins(0, 0, 0)

	imp := gofpdi.NewImporter()
	rs := io.ReadSeeker(bytes.NewReader(src))

	// importing the first page parses the whole document and exposes the
	// geometry of every page
	firstTpl := imp.ImportPageFromStream(pdf, &rs, 1, "/MediaBox")
	sizes := imp.GetPageSizes()
	pageCount := len(sizes)
	if pageCount == 0 {
		return nil, fmt.Errorf("source PDF has no pages")
	}

	byPage := make(map[int][]Placement)
	for _, p := range in.Placements {
		byPage[p.Page] = append(byPage[p.Page], p)
	}

	for page := 1; page <= pageCount; page++ {
		tpl := firstTpl
		if page > 1 {
			tpl = imp.ImportPageFromStream(pdf, &rs, page, "/MediaBox")
		}

		pageW, pageH := pageSize(sizes, page)
		pdf.AddPageFormat("P", gofpdf.SizeType{Wd: pageW, Ht: pageH})
		imp.UseImportedTemplate(pdf, tpl, 0, 0, pageW, pageH)

		for i, p := range byPage[page] {
			drawPlacement(ctx, pdf, store, p, i, pageW, pageH)
		}

		if page == 1 {
			drawCompletionStamp(pdf, in, pageH)
		}
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to serialize signed PDF: %w", err)
	}
	return buf.Bytes(), nil
}

// pageSize reads a page's MediaBox dimensions from the importer
func pageSize(sizes map[int]map[string]map[string]float64, page int) (float64, float64) {
	if boxes, ok := sizes[page]; ok {
		if box, ok := boxes["/MediaBox"]; ok {
			w, h := box["w"], box["h"]
			if w > 0 && h > 0 {
				return w, h
			}
		}
	}
	return fallbackPageW, fallbackPageH
}

// drawPlacement embeds one signature image plus its two audit lines.
// Failures are tolerated per signature.
func drawPlacement(ctx context.Context, pdf *gofpdf.Fpdf, store storage.Store, p Placement, idx int, pageW, pageH float64) {
	data, err := store.Fetch(ctx, p.ArtifactRef)
	if err != nil {
		log.Printf("finalize: skipping signature %s on page %d: fetch failed: %v", p.ArtifactRef, p.Page, err)
		return
	}

	_, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		log.Printf("finalize: skipping signature %s on page %d: not a decodable image: %v", p.ArtifactRef, p.Page, err)
		return
	}
	imageType := "PNG"
	if format == "jpeg" {
		imageType = "JPG"
	}

	rect := PDFRect(p.X, p.Y, p.W, p.H, pageW, pageH)
	// gofpdf draws from the top-left corner; flip back out of PDF user space
	top := pageH - rect.Y - rect.H

	opts := gofpdf.ImageOptions{ImageType: imageType, ReadDpi: true}
	name := fmt.Sprintf("sig_p%d_%d", p.Page, idx)
	pdf.RegisterImageOptionsReader(name, opts, bytes.NewReader(data))
	pdf.ImageOptions(name, rect.X, top, rect.W, rect.H, false, opts, 0, "")

	pdf.SetFont("Helvetica", "", 6)
	pdf.SetTextColor(80, 80, 80)
	pdf.Text(rect.X, top+rect.H+7, p.SignerName)
	pdf.Text(rect.X, top+rect.H+14, "Signed "+p.SignedAt.UTC().Format("Jan 2, 2006 15:04 MST"))
}

// drawCompletionStamp marks the first page once, regardless of signer count
func drawCompletionStamp(pdf *gofpdf.Fpdf, in RenderInput, pageH float64) {
	pdf.SetFont("Helvetica", "I", 8)
	pdf.SetTextColor(60, 60, 60)
	stamp := fmt.Sprintf("Digitally signed via %s on %s",
		in.SystemName, in.CompletedAt.UTC().Format("Jan 2, 2006 15:04 MST"))
	pdf.Text(24, pageH-14, stamp)
}
