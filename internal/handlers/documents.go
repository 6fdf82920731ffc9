package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/quillsign/quillsigngo/internal/models"
	"github.com/quillsign/quillsigngo/internal/signing"
	"github.com/quillsign/quillsigngo/internal/utils"
	"github.com/quillsign/quillsigngo/internal/ws"
)

const maxUploadBytes = 25 << 20 // 25 MB source PDF cap

// createDocument uploads a source PDF and creates a draft
func (r *Router) createDocument(w http.ResponseWriter, req *http.Request) {
	ownerID, ok := requireUser(w, req)
	if !ok {
		return
	}

	req.Body = http.MaxBytesReader(w, req.Body, maxUploadBytes)
	if err := req.ParseMultipartForm(maxUploadBytes); err != nil {
		respondError(w, http.StatusBadRequest, "Expected a multipart upload with a PDF file")
		return
	}

	file, _, err := req.FormFile("file")
	if err != nil {
		respondError(w, http.StatusBadRequest, "A PDF file is required")
		return
	}
	defer file.Close()

	pdf, err := io.ReadAll(file)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Failed to read upload")
		return
	}

	doc, err := r.signing.CreateDocument(req.Context(), ownerID, req.FormValue("title"), pdf)
	if err != nil {
		respondInputError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, doc)
}

// listDocuments returns the authenticated owner's documents
func (r *Router) listDocuments(w http.ResponseWriter, req *http.Request) {
	ownerID, ok := requireUser(w, req)
	if !ok {
		return
	}

	docs, err := r.signing.ListDocuments(req.Context(), ownerID)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"documents": docs})
}

// getDocument returns one document with fields and invitations
func (r *Router) getDocument(w http.ResponseWriter, req *http.Request) {
	ownerID, ok := requireUser(w, req)
	if !ok {
		return
	}

	doc, err := r.signing.GetDocument(req.Context(), ownerID, mux.Vars(req)["id"])
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, doc)
}

// deleteDocument removes a document and its stored artifacts
func (r *Router) deleteDocument(w http.ResponseWriter, req *http.Request) {
	ownerID, ok := requireUser(w, req)
	if !ok {
		return
	}

	if err := r.signing.DeleteDocument(req.Context(), ownerID, mux.Vars(req)["id"]); err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "Document deleted"})
}

// replaceFields replaces the draft's signature field set
func (r *Router) replaceFields(w http.ResponseWriter, req *http.Request) {
	ownerID, ok := requireUser(w, req)
	if !ok {
		return
	}

	var body struct {
		Fields []signing.FieldSpec `json:"fields"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	fields, err := r.signing.ReplaceFields(req.Context(), ownerID, mux.Vars(req)["id"], body.Fields)
	if err != nil {
		respondInputError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"fields": fields})
}

// PrepareRequest names the signers and the link lifetime for sending a draft
type PrepareRequest struct {
	Signers        []signing.SignerSpec `json:"signers"`
	ExpirationDays int                  `json:"expirationDays"`
}

// prepareDocument locks the draft and sends signing invitations
func (r *Router) prepareDocument(w http.ResponseWriter, req *http.Request) {
	ownerID, ok := requireUser(w, req)
	if !ok {
		return
	}

	var body PrepareRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if body.ExpirationDays == 0 {
		body.ExpirationDays = r.cfg.Signing.DefaultExpirationDays
	}

	prepared, err := r.signing.Prepare(req.Context(), ownerID, mux.Vars(req)["id"], body.Signers, body.ExpirationDays)
	if err != nil {
		respondInputError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"invitations": prepared})
}

// cancelDocument withdraws a document before completion
func (r *Router) cancelDocument(w http.ResponseWriter, req *http.Request) {
	ownerID, ok := requireUser(w, req)
	if !ok {
		return
	}

	if err := r.signing.Cancel(req.Context(), ownerID, mux.Vars(req)["id"]); err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "Document cancelled"})
}

// finalizeDocument runs the finalization pipeline synchronously. Safe to call
// again after a crashed or failed background run.
func (r *Router) finalizeDocument(w http.ResponseWriter, req *http.Request) {
	ownerID, ok := requireUser(w, req)
	if !ok {
		return
	}
	id := mux.Vars(req)["id"]

	// ownership gate before touching the pipeline
	if _, err := r.signing.GetDocument(req.Context(), ownerID, id); err != nil {
		respondServiceError(w, err)
		return
	}

	ref, err := r.pipeline.Finalize(req.Context(), id)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"finalPdfRef": ref})
}

// documentProgress reports signing progress to the owner
func (r *Router) documentProgress(w http.ResponseWriter, req *http.Request) {
	ownerID, ok := requireUser(w, req)
	if !ok {
		return
	}

	doc, err := r.signing.GetDocument(req.Context(), ownerID, mux.Vars(req)["id"])
	if err != nil {
		respondServiceError(w, err)
		return
	}

	completed := 0
	invitations := make([]map[string]interface{}, 0, len(doc.Invitations))
	for _, inv := range doc.Invitations {
		if inv.Status == models.InvitationStatusCompleted {
			completed++
		}
		invitations = append(invitations, map[string]interface{}{
			"id":             inv.ID,
			"recipientEmail": inv.RecipientEmail,
			"recipientName":  inv.RecipientName,
			"status":         inv.Status,
			"viewedAt":       inv.ViewedAt,
			"signedAt":       inv.SignedAt,
			"expiresAt":      inv.ExpiresAt,
		})
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"documentId":  doc.ID,
		"status":      doc.Status,
		"completed":   completed,
		"total":       len(doc.Invitations),
		"finalized":   doc.IsFinalized(),
		"invitations": invitations,
	})
}

// downloadDocument streams the finalized PDF. The owner downloads with a
// session; a signer who completed their invitation downloads with their token.
func (r *Router) downloadDocument(w http.ResponseWriter, req *http.Request) {
	id := mux.Vars(req)["id"]

	var doc models.Document
	if err := r.db.First(&doc, "id = ?", id).Error; err != nil {
		respondError(w, http.StatusNotFound, "Document not found")
		return
	}

	if !r.mayDownload(req, &doc) {
		respondError(w, http.StatusForbidden, "Not authorized to download this document")
		return
	}
	if doc.FinalPDFRef == nil {
		respondError(w, http.StatusConflict, "Document is not finalized yet")
		return
	}

	data, err := r.store.Fetch(req.Context(), *doc.FinalPDFRef)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to fetch signed PDF")
		return
	}

	filename := utils.SanitizeFilename(doc.Title) + "-signed.pdf"
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// sessionUserID authenticates an owner session from the Authorization header
// or, for websocket clients that cannot set headers, the access_token query
// parameter
func (r *Router) sessionUserID(req *http.Request) (string, bool) {
	tokenString := ""
	if auth := req.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		tokenString = strings.TrimPrefix(auth, "Bearer ")
	} else if q := req.URL.Query().Get("access_token"); q != "" {
		tokenString = q
	}
	if tokenString == "" {
		return "", false
	}
	claims, err := utils.ValidateToken(tokenString, r.cfg.JWTSecret)
	if err != nil {
		return "", false
	}
	id, ok := claims["id"].(string)
	return id, ok && id != ""
}

// mayDownload checks owner session or completed-signer token access
func (r *Router) mayDownload(req *http.Request, doc *models.Document) bool {
	if uid, ok := r.sessionUserID(req); ok && uid == doc.OwnerID {
		return true
	}

	if token := req.URL.Query().Get("token"); token != "" {
		report, err := r.signing.Progress(req.Context(), token)
		if err == nil && report.DocumentID == doc.ID &&
			report.Invitation.Status == models.InvitationStatusCompleted {
			return true
		}
	}
	return false
}

// documentEvents subscribes a websocket watcher to one document's progress.
// Events carry recipient details, so only the owner may watch.
func (r *Router) documentEvents(w http.ResponseWriter, req *http.Request) {
	id := mux.Vars(req)["id"]

	uid, ok := r.sessionUserID(req)
	if !ok {
		respondError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	var doc models.Document
	if err := r.db.First(&doc, "id = ?", id).Error; err != nil {
		respondError(w, http.StatusNotFound, "Document not found")
		return
	}
	if doc.OwnerID != uid {
		respondError(w, http.StatusForbidden, "Not authorized to watch this document")
		return
	}

	ws.ServeDocument(r.hub, id, w, req)
}
