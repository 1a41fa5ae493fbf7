package services

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/Lllllllleong/eligibilityreview/internal/models"
	"github.com/Lllllllleong/eligibilityreview/internal/pipeline"
)

// WriteJSON encodes v as the response body with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to write response.", "error", err)
	}
}

// WriteError answers with the ErrorResponse of err and the status mapped from its kind.
// Errors that are not pipeline errors become a generic 500.
func WriteError(w http.ResponseWriter, err error) {
	pe, ok := pipeline.AsPipelineError(err)
	if !ok {
		WriteJSON(w, http.StatusInternalServerError, models.ErrorResponse{
			Kind:    "InternalError",
			Message: "internal error",
		})
		return
	}
	WriteJSON(w, pe.Kind.HTTPStatus(), pe.Response())
}

// WriteMethodNotAllowed answers 405 and lists the accepted method in the Allow header.
func WriteMethodNotAllowed(w http.ResponseWriter, r *http.Request, allowed string) {
	w.Header().Set("Allow", allowed)
	WriteJSON(w, http.StatusMethodNotAllowed, models.ErrorResponse{
		Kind:    "MethodNotAllowed",
		Message: fmt.Sprintf("method %s is not allowed; use %s", r.Method, allowed),
	})
}
