package signing

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"
)

func signaturePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, h/2, color.Black)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("failed to encode test png: %v", err)
	}
	return buf.Bytes()
}

func TestValidateSignatureImage(t *testing.T) {
	data := signaturePNG(t, 300, 120)

	ct, err := ValidateSignatureImage(data, 100, 2*1024*1024)
	if err != nil {
		t.Fatalf("valid png rejected: %v", err)
	}
	if ct != "image/png" {
		t.Errorf("content type = %q, want image/png", ct)
	}
}

func TestValidateSignatureImageTooSmall(t *testing.T) {
	if _, err := ValidateSignatureImage([]byte{0x89, 0x50}, 100, 2*1024*1024); err != ErrEmptySignature {
		t.Errorf("expected ErrEmptySignature, got %v", err)
	}
}

func TestValidateSignatureImageTooLarge(t *testing.T) {
	data := signaturePNG(t, 300, 120)
	if _, err := ValidateSignatureImage(data, 100, len(data)-1); err != ErrSignatureTooLarge {
		t.Errorf("expected ErrSignatureTooLarge, got %v", err)
	}
}

// hugeDimensionPNG hand-builds a PNG header that declares enormous
// dimensions while the payload itself stays tiny
func hugeDimensionPNG(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	buf.Write([]byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a})

	ihdr := make([]byte, 13)
	binary.BigEndian.PutUint32(ihdr[0:4], 100000) // width
	binary.BigEndian.PutUint32(ihdr[4:8], 100000) // height
	ihdr[8] = 8 // bit depth
	ihdr[9] = 6 // RGBA

	binary.Write(&buf, binary.BigEndian, uint32(len(ihdr)))
	buf.WriteString("IHDR")
	buf.Write(ihdr)
	crc := crc32.NewIEEE()
	crc.Write([]byte("IHDR"))
	crc.Write(ihdr)
	binary.Write(&buf, binary.BigEndian, crc.Sum32())

	// padding so the payload clears the minimum-size check; DecodeConfig
	// stops after the header and never reads it
	buf.Write(make([]byte, 256))
	return buf.Bytes()
}

func TestValidateSignatureImageDecodedTooLarge(t *testing.T) {
	data := hugeDimensionPNG(t)
	if _, err := ValidateSignatureImage(data, 100, 2*1024*1024); err != ErrSignatureTooLarge {
		t.Errorf("expected ErrSignatureTooLarge for 100000x100000 declared dimensions, got %v", err)
	}
}

func TestValidateSignatureImageNotRaster(t *testing.T) {
	junk := []byte(strings.Repeat("definitely not an image payload ", 8))
	if _, err := ValidateSignatureImage(junk, 100, 2*1024*1024); err != ErrInvalidImage {
		t.Errorf("expected ErrInvalidImage, got %v", err)
	}
}

func TestValidateSignerName(t *testing.T) {
	if _, err := ValidateSignerName("  Jane Doe  "); err != nil {
		t.Errorf("valid name rejected: %v", err)
	}
	got, _ := ValidateSignerName("  Jane Doe  ")
	if got != "Jane Doe" {
		t.Errorf("name not trimmed: %q", got)
	}

	for _, bad := range []string{"", " ", "J", strings.Repeat("x", 101)} {
		if _, err := ValidateSignerName(bad); err != ErrInvalidSignerInfo {
			t.Errorf("name %q: expected ErrInvalidSignerInfo, got %v", bad, err)
		}
	}
}
