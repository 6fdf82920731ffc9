package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/quillsign/quillsigngo/internal/config"
	"github.com/quillsign/quillsigngo/internal/database"
	"github.com/quillsign/quillsigngo/internal/finalize"
	"github.com/quillsign/quillsigngo/internal/middleware"
	"github.com/quillsign/quillsigngo/internal/signing"
	"github.com/quillsign/quillsigngo/internal/storage"
	"github.com/quillsign/quillsigngo/internal/ws"
)

// Router wraps the mux router and the services behind the HTTP surface
type Router struct {
	*mux.Router
	db       *database.DB
	cfg      *config.Config
	store    storage.Store
	signing  *signing.Service
	pipeline *finalize.Pipeline
	hub      *ws.Hub
}

// NewRouter creates a new HTTP router with all routes
func NewRouter(db *database.DB, cfg *config.Config, store storage.Store, svc *signing.Service, pipeline *finalize.Pipeline, hub *ws.Hub) *Router {
	r := &Router{
		Router:   mux.NewRouter(),
		db:       db,
		cfg:      cfg,
		store:    store,
		signing:  svc,
		pipeline: pipeline,
		hub:      hub,
	}

	// Health check endpoint
	r.HandleFunc("/health", r.healthCheck).Methods("GET")

	// Auth routes
	auth := r.PathPrefix("/auth").Subrouter()
	auth.HandleFunc("/login", r.login).Methods("POST")
	auth.HandleFunc("/register", r.register).Methods("POST")
	auth.HandleFunc("/logout", r.logout).Methods("POST")

	// Signer routes: authenticated by bearer token, not by session
	sign := r.PathPrefix("/sign").Subrouter()
	sign.HandleFunc("/validate-token", r.validateToken).Methods("POST")
	sign.HandleFunc("/submit", r.submitSignature).Methods("POST")
	sign.HandleFunc("/decline", r.declineInvitation).Methods("POST")
	sign.HandleFunc("/progress", r.signingProgress).Methods("POST")
	sign.HandleFunc("/result", r.signingResult).Methods("POST")
	sign.HandleFunc("/qr", r.signingQR).Methods("GET")

	// Download is owner-or-signer authorized inside the handler
	r.HandleFunc("/api/documents/{id}/download", r.downloadDocument).Methods("GET")

	// Live progress watchers
	r.HandleFunc("/api/documents/{id}/events", r.documentEvents).Methods("GET")

	// Owner routes (protected)
	authRequired := middleware.Auth(cfg.JWTSecret)
	docs := r.PathPrefix("/api/documents").Subrouter()
	docs.Use(authRequired)
	docs.HandleFunc("", r.createDocument).Methods("POST")
	docs.HandleFunc("", r.listDocuments).Methods("GET")
	docs.HandleFunc("/{id}", r.getDocument).Methods("GET")
	docs.HandleFunc("/{id}", r.deleteDocument).Methods("DELETE")
	docs.HandleFunc("/{id}/fields", r.replaceFields).Methods("PUT")
	docs.HandleFunc("/{id}/prepare", r.prepareDocument).Methods("POST")
	docs.HandleFunc("/{id}/cancel", r.cancelDocument).Methods("POST")
	docs.HandleFunc("/{id}/finalize", r.finalizeDocument).Methods("POST")
	docs.HandleFunc("/{id}/progress", r.documentProgress).Methods("GET")

	invites := r.PathPrefix("/api/invitations").Subrouter()
	invites.Use(authRequired)
	invites.HandleFunc("/{id}/resend", r.resendInvitation).Methods("POST")
	invites.HandleFunc("/{id}", r.deleteInvitation).Methods("DELETE")

	return r
}

// healthCheck returns the health status of the API
func (r *Router) healthCheck(w http.ResponseWriter, req *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"service": r.cfg.SystemName,
	})
}

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondError sends an error response
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
	})
}

// statusForError maps workflow errors onto HTTP statuses; 0 means unmapped
func statusForError(err error) int {
	var verr *finalize.ValidationError
	switch {
	case errors.Is(err, signing.ErrTokenNotFound),
		errors.Is(err, signing.ErrDocumentNotFound):
		return http.StatusNotFound
	case errors.Is(err, signing.ErrTokenExpired):
		return http.StatusGone
	case errors.Is(err, signing.ErrAlreadySigned),
		errors.Is(err, signing.ErrInvitationDeclined),
		errors.Is(err, signing.ErrDocumentLocked),
		errors.Is(err, signing.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, signing.ErrEmptySignature),
		errors.Is(err, signing.ErrSignatureTooLarge),
		errors.Is(err, signing.ErrInvalidImage),
		errors.Is(err, signing.ErrInvalidSignerInfo),
		errors.Is(err, signing.ErrInvalidExpiration),
		errors.Is(err, signing.ErrFieldUnassigned):
		return http.StatusBadRequest
	case errors.As(err, &verr):
		return http.StatusConflict
	}
	return 0
}

// respondServiceError writes a mapped workflow error, defaulting to 500
func respondServiceError(w http.ResponseWriter, err error) {
	status := statusForError(err)
	if status == 0 {
		status = http.StatusInternalServerError
	}
	respondError(w, status, err.Error())
}

// respondInputError is respondServiceError for endpoints whose unmapped
// failures are almost always bad client input
func respondInputError(w http.ResponseWriter, err error) {
	status := statusForError(err)
	if status == 0 {
		status = http.StatusBadRequest
	}
	respondError(w, status, err.Error())
}

// requireUser resolves the authenticated owner ID or writes a 401
func requireUser(w http.ResponseWriter, req *http.Request) (string, bool) {
	id, ok := middleware.UserID(req)
	if !ok {
		respondError(w, http.StatusUnauthorized, "Authentication required")
	}
	return id, ok
}
