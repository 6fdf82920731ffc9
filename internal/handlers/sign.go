package handlers

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	qrcode "github.com/skip2/go-qrcode"

	"github.com/quillsign/quillsigngo/internal/signing"
)

// tokenFromBody reads the {token, ...} payload shared by the signer endpoints
func tokenFromBody(w http.ResponseWriter, req *http.Request) (string, bool) {
	var body struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request payload")
		return "", false
	}
	if body.Token == "" {
		respondError(w, http.StatusBadRequest, "token is required")
		return "", false
	}
	return body.Token, true
}

// validateToken resolves a signing link and returns the signer's view of the
// document
func (r *Router) validateToken(w http.ResponseWriter, req *http.Request) {
	token, ok := tokenFromBody(w, req)
	if !ok {
		return
	}

	tc, err := r.signing.ValidateToken(req.Context(), token)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	if tc.IsExpired {
		// keep the snapshot in the body so the signer UI can show what
		// expired, not just that something did
		respondJSON(w, http.StatusGone, tc)
		return
	}

	respondJSON(w, http.StatusOK, tc)
}

// SubmitSignatureRequest is one signer's submission payload. The image is
// base64, with or without a data URL prefix.
type SubmitSignatureRequest struct {
	Token       string `json:"token"`
	Image       string `json:"image"`
	SignerName  string `json:"signerName"`
	SignerTitle string `json:"signerTitle"`
	SignerNotes string `json:"signerNotes"`
}

// submitSignature records one signer's signature
func (r *Router) submitSignature(w http.ResponseWriter, req *http.Request) {
	var body SubmitSignatureRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if body.Token == "" {
		respondError(w, http.StatusBadRequest, "token is required")
		return
	}

	image, err := decodeImagePayload(body.Image)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := r.signing.Submit(req.Context(), signing.SubmitRequest{
		Token:       body.Token,
		Image:       image,
		SignerName:  body.SignerName,
		SignerTitle: body.SignerTitle,
		SignerNotes: body.SignerNotes,
		IP:          clientIP(req),
		UserAgent:   req.UserAgent(),
	})
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, result)
}

// declineInvitation marks the invitation behind a token as declined
func (r *Router) declineInvitation(w http.ResponseWriter, req *http.Request) {
	var body struct {
		Token  string `json:"token"`
		Reason string `json:"reason"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if body.Token == "" {
		respondError(w, http.StatusBadRequest, "token is required")
		return
	}

	if err := r.signing.Decline(req.Context(), body.Token, body.Reason); err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "Invitation declined"})
}

// signingProgress reports document progress for the signer behind a token
func (r *Router) signingProgress(w http.ResponseWriter, req *http.Request) {
	token, ok := tokenFromBody(w, req)
	if !ok {
		return
	}

	report, err := r.signing.Progress(req.Context(), token)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, report)
}

// signingResult returns the completion summary for the signer behind a token
func (r *Router) signingResult(w http.ResponseWriter, req *http.Request) {
	token, ok := tokenFromBody(w, req)
	if !ok {
		return
	}

	result, err := r.signing.Result(req.Context(), token)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// signingQR renders the signing link as a QR code so the signer can move to
// another device
func (r *Router) signingQR(w http.ResponseWriter, req *http.Request) {
	token := req.URL.Query().Get("token")
	if token == "" {
		respondError(w, http.StatusBadRequest, "token is required")
		return
	}

	// the token must resolve before we mint a QR for it
	if _, err := r.signing.Progress(req.Context(), token); err != nil {
		respondServiceError(w, err)
		return
	}

	signURL := fmt.Sprintf("%s/sign?token=%s", r.cfg.BaseURL, token)
	png, err := qrcode.Encode(signURL, qrcode.Medium, 256)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to generate QR code")
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	w.Write(png)
}

// decodeImagePayload strips an optional data URL prefix and decodes base64
func decodeImagePayload(payload string) ([]byte, error) {
	if payload == "" {
		return nil, fmt.Errorf("signature image is required")
	}
	if i := strings.Index(payload, ","); i >= 0 && strings.HasPrefix(payload, "data:") {
		payload = payload[i+1:]
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("signature image is not valid base64")
	}
	return data, nil
}

// clientIP picks the forwarded address when present, the socket peer otherwise
func clientIP(req *http.Request) string {
	if fwd := req.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.Index(fwd, ","); i >= 0 {
			return strings.TrimSpace(fwd[:i])
		}
		return strings.TrimSpace(fwd)
	}
	host := req.RemoteAddr
	if i := strings.LastIndex(host, ":"); i >= 0 {
		host = host[:i]
	}
	return host
}
