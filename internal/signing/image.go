package signing

import (
	"bytes"
	"image"
	_ "image/jpeg" // register decoders for signature uploads
	_ "image/png"
	"strings"
)

// A small encoded payload can still declare enormous dimensions; cap what the
// image would occupy decoded (4 bytes per RGBA pixel).
const maxDecodedPixels = (64 << 20) / 4

// ValidateSignatureImage checks a captured signature before it is persisted:
// it must decode as PNG or JPEG, carry at least minBytes of payload (tiny
// uploads are blank strokes), stay under maxBytes encoded and under the
// decoded-size cap. Returns the normalized content type.
func ValidateSignatureImage(data []byte, minBytes, maxBytes int) (string, error) {
	if len(data) < minBytes {
		return "", ErrEmptySignature
	}
	if len(data) > maxBytes {
		return "", ErrSignatureTooLarge
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return "", ErrInvalidImage
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return "", ErrInvalidImage
	}
	if cfg.Width*cfg.Height > maxDecodedPixels {
		return "", ErrSignatureTooLarge
	}

	switch format {
	case "png":
		return "image/png", nil
	case "jpeg":
		return "image/jpeg", nil
	default:
		return "", ErrInvalidImage
	}
}

// ValidateSignerName enforces the 2-100 character bound after trimming
func ValidateSignerName(name string) (string, error) {
	trimmed := strings.TrimSpace(name)
	if len(trimmed) < 2 || len(trimmed) > 100 {
		return "", ErrInvalidSignerInfo
	}
	return trimmed, nil
}

// ImageExtension maps a validated content type to a file extension
func ImageExtension(contentType string) string {
	if contentType == "image/jpeg" {
		return "jpg"
	}
	return "png"
}
