package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/BekzhanKaspakov/mesa/internal/domain"
)

type ErrorResponse struct {
	Error  string                    `json:"error"`
	Errors []*domain.ValidationError `json:"errors,omitempty"`
}

func respondJSON(w http.ResponseWriter, statusCode int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(payload)
}

// respondDomainError maps the error taxonomy onto HTTP statuses. Conflicts
// (lost races, stale expectations) are 409 so clients refresh and retry
// deliberately instead of hammering.
func respondDomainError(w http.ResponseWriter, err error) {
	var ve *domain.ValidationError
	if errors.As(err, &ve) {
		respondJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:  "Validation failed",
			Errors: []*domain.ValidationError{ve},
		})
		return
	}

	switch {
	case errors.Is(err, domain.ErrNotFound):
		respondJSON(w, http.StatusNotFound, ErrorResponse{Error: err.Error()})
	case errors.Is(err, domain.ErrAuthorizationDenied):
		respondJSON(w, http.StatusForbidden, ErrorResponse{Error: err.Error()})
	case errors.Is(err, domain.ErrInvalidStateTransition),
		errors.Is(err, domain.ErrTableUnavailable),
		errors.Is(err, domain.ErrAlreadyPaid),
		errors.Is(err, domain.ErrPaymentSessionConflict),
		errors.Is(err, domain.ErrPaymentRequired):
		respondJSON(w, http.StatusConflict, ErrorResponse{Error: err.Error()})
	default:
		respondJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "Internal server error"})
	}
}
