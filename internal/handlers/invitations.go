package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gorilla/mux"
)

// resendInvitation rotates the invitation token and re-sends the signing
// link. The body is optional; without it the configured default lifetime
// applies.
func (r *Router) resendInvitation(w http.ResponseWriter, req *http.Request) {
	ownerID, ok := requireUser(w, req)
	if !ok {
		return
	}

	var body struct {
		ExpirationDays int `json:"expirationDays"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		respondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	if err := r.signing.ResendInvitation(req.Context(), ownerID, mux.Vars(req)["id"], body.ExpirationDays); err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "Invitation re-sent"})
}

// deleteInvitation removes a not-yet-completed invitation
func (r *Router) deleteInvitation(w http.ResponseWriter, req *http.Request) {
	ownerID, ok := requireUser(w, req)
	if !ok {
		return
	}

	if err := r.signing.DeleteInvitation(req.Context(), ownerID, mux.Vars(req)["id"]); err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "Invitation removed"})
}
