package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/Veraticus/autobooks/internal/common"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// statusFor maps the error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, common.ErrInvalidAmount):
		return http.StatusUnprocessableEntity
	case errors.Is(err, common.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, common.ErrAlreadyResolved), errors.Is(err, common.ErrAlreadyProcessed):
		return http.StatusConflict
	case errors.Is(err, common.ErrPersistenceFailure):
		return http.StatusServiceUnavailable
	case errors.Is(err, common.ErrDataAbsence):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
