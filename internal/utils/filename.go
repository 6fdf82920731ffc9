package utils

import (
	"fmt"
	"strings"
	"time"
	"unicode"
)

// SanitizeFilename reduces a document title to a safe filename fragment:
// ASCII letters and digits survive, runs of anything else collapse to a
// single dash, and the result is lowercased and length-capped.
func SanitizeFilename(title string) string {
	var b strings.Builder
	lastDash := true // suppress a leading dash
	for _, r := range title {
		switch {
		case r <= unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			b.WriteRune(unicode.ToLower(r))
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	s := strings.TrimRight(b.String(), "-")
	if len(s) > 64 {
		s = strings.TrimRight(s[:64], "-")
	}
	if s == "" {
		s = "document"
	}
	return s
}

// SignedPDFKey builds the deterministic blob key for a finalized document:
// sanitized title + short id + signing date. Deterministic so a finalize
// retry targets the same object.
func SignedPDFKey(title, documentID string, finalizedAt time.Time) string {
	short := documentID
	if len(short) > 8 {
		short = short[:8]
	}
	return fmt.Sprintf("signed/%s-%s-%s-signed.pdf",
		SanitizeFilename(title), short, finalizedAt.Format("20060102"))
}
