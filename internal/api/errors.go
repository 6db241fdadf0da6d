package api

import (
	"encoding/json"
	"net/http"

	"github.com/orbit-yield/internal/errors"
	"github.com/orbit-yield/internal/types"
)

// ErrorResponse is the body of every error reply
type ErrorResponse struct {
	Error types.ServiceError `json:"error"`
}

// respondError sends a structured error response
func respondError(w http.ResponseWriter, statusCode int, code, message string, details map[string]interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	response := ErrorResponse{
		Error: types.ServiceError{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
	json.NewEncoder(w).Encode(response)
}

// respondServiceError maps a service-layer error onto the wire
func respondServiceError(w http.ResponseWriter, err error) {
	if categorized := errors.Categorize(err); categorized != nil {
		serviceErr := categorized.ToServiceError()
		respondError(w, errors.GetHTTPStatusCode(err), serviceErr.Code, serviceErr.Message, serviceErr.Details)
		return
	}
	respondError(w, http.StatusInternalServerError, errors.CodeInternalError, "an internal error occurred", nil)
}

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// parseJSONBody parses a JSON request body, rejecting unknown fields
func parseJSONBody(r *http.Request, v interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(v); err != nil {
		return errors.NewInvalidArgumentError("body", "malformed JSON request body")
	}
	return nil
}
