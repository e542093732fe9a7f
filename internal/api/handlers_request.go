package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

type createRequestRequest struct {
	Period int `json:"period"`
}

type createRequestResponse struct {
	AdminShortID    string `json:"adminShortId"`
	ReceiverShortID string `json:"receiverShortId"`
	Period          int    `json:"period"`
}

type receiverReadResponse struct {
	Content   string    `json:"content"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type receiverWriteRequest struct {
	Content string `json:"content"`
}

// RequestCreateHandler handles POST /api/requests.
func (s *Server) RequestCreateHandler(w http.ResponseWriter, r *http.Request) {
	var body createRequestRequest
	if err := decodeJSON(r, &body); err != nil {
		writeBodyError(w, r, err)
		return
	}
	period, err := s.exchange.NewPeriod(body.Period)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	req, err := s.exchange.Create(r.Context(), period)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, createRequestResponse{
		AdminShortID:    req.AdminShortID,
		ReceiverShortID: req.ReceiverShortID,
		Period:          req.Period,
	})
}

// RequestAdminReadHandler handles GET /api/requests/admin/{shortId}.
func (s *Server) RequestAdminReadHandler(w http.ResponseWriter, r *http.Request) {
	content, err := s.exchange.AdminRead(r.Context(), chi.URLParam(r, "shortId"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, contentResponse{Content: content})
}

// RequestReceiverReadHandler handles GET /api/requests/receive/{shortId}. The first call
// starts the request's clock.
func (s *Server) RequestReceiverReadHandler(w http.ResponseWriter, r *http.Request) {
	req, err := s.exchange.ReceiverRead(r.Context(), chi.URLParam(r, "shortId"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, receiverReadResponse{Content: req.ContentOrEmpty(), ExpiresAt: *req.ExpiresAt})
}

// RequestReceiverWriteHandler handles POST /api/requests/receive/{shortId}.
func (s *Server) RequestReceiverWriteHandler(w http.ResponseWriter, r *http.Request) {
	var body receiverWriteRequest
	if err := decodeJSON(r, &body); err != nil {
		writeBodyError(w, r, err)
		return
	}
	content, err := s.exchange.ReceiverWrite(r.Context(), chi.URLParam(r, "shortId"), body.Content)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, contentResponse{Content: content})
}
