package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/org/secretshare/pkg/models"
	"github.com/rs/zerolog/log"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func writeError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	fmt.Fprintf(w, `{"errors":[%q]}`, msg)
}

func decodeJSON(r *http.Request, dst any) error {
	return json.NewDecoder(r.Body).Decode(dst)
}

// writeServiceError maps an error kind to a status code and message.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, models.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, models.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, models.ErrExpired):
		writeError(w, http.StatusGone, "expired")
	case errors.Is(err, models.ErrPasswordRequired):
		writeError(w, http.StatusUnauthorized, models.ErrPasswordRequired.Error())
	case errors.Is(err, models.ErrNotPasswordProtected):
		writeError(w, http.StatusBadRequest, models.ErrNotPasswordProtected.Error())
	case errors.Is(err, models.ErrIncorrectPassword):
		writeError(w, http.StatusForbidden, models.ErrIncorrectPassword.Error())
	case errors.Is(err, models.ErrUnauthorized):
		writeError(w, http.StatusForbidden, models.ErrUnauthorized.Error())
	default:
		log.Error().Err(err).Str("request_id", requestIDFromCtx(r.Context())).Msg("request failed")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// writeBodyError reports a request body that could not be decoded.
func writeBodyError(w http.ResponseWriter, r *http.Request, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}
	writeServiceError(w, r, fmt.Errorf("%w: invalid JSON body", models.ErrValidation))
}
