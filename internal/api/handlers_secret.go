package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/org/secretshare/internal/secret"
)

type createSecretRequest struct {
	Content  string `json:"content"`
	Amount   int    `json:"amount"`
	Unit     string `json:"unit"`
	Password string `json:"password,omitempty"`
}

type createSecretResponse struct {
	ShortID   string    `json:"shortId"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type contentResponse struct {
	Content string `json:"content"`
}

type unlockRequest struct {
	Password string `json:"password"`
}

type statusResponse struct {
	PasswordProtected bool      `json:"passwordProtected"`
	ExpiresAt         time.Time `json:"expiresAt"`
}

// SecretCreateHandler handles POST /api/secrets.
func (s *Server) SecretCreateHandler(w http.ResponseWriter, r *http.Request) {
	var body createSecretRequest
	if err := decodeJSON(r, &body); err != nil {
		writeBodyError(w, r, err)
		return
	}
	in, err := secret.NewCreateInput(body.Content, body.Amount, body.Unit, body.Password)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	rec, err := s.vault.Create(r.Context(), in)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, createSecretResponse{ShortID: rec.ShortID, ExpiresAt: rec.ExpiresAt})
}

// SecretReadHandler handles GET /api/secrets/{shortId}.
func (s *Server) SecretReadHandler(w http.ResponseWriter, r *http.Request) {
	content, err := s.vault.ReadUnauthenticated(r.Context(), chi.URLParam(r, "shortId"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, contentResponse{Content: string(content)})
}

// SecretStatusHandler handles GET /api/secrets/{shortId}/status.
func (s *Server) SecretStatusHandler(w http.ResponseWriter, r *http.Request) {
	st, err := s.vault.Status(r.Context(), chi.URLParam(r, "shortId"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{PasswordProtected: st.PasswordProtected, ExpiresAt: st.ExpiresAt})
}

// SecretUnlockHandler handles POST /api/secrets/{shortId}/unlock.
func (s *Server) SecretUnlockHandler(w http.ResponseWriter, r *http.Request) {
	var body unlockRequest
	if err := decodeJSON(r, &body); err != nil {
		writeBodyError(w, r, err)
		return
	}
	content, err := s.vault.ReadAuthenticated(r.Context(), chi.URLParam(r, "shortId"), body.Password)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, contentResponse{Content: string(content)})
}
