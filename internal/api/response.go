// Package api holds the JSON envelope shared by the ragsyncd handlers.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/cloo-solutions/ragsync/internal/domain"
)

// SuccessResponse is the envelope for 2xx bodies.
type SuccessResponse struct {
	Data any `json:"data"`
}

// ErrorResponse is the envelope for error bodies. Code is the domain error code when known.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

var statusByErrorCode = map[string]int{
	domain.ErrCodeValidation:   http.StatusBadRequest,
	domain.ErrCodeNotFound:     http.StatusNotFound,
	domain.ErrCodeUnauthorized: http.StatusUnauthorized,
	domain.ErrCodeConversion:   http.StatusUnprocessableEntity,
	domain.ErrCodeEmbedding:    http.StatusBadGateway,
	domain.ErrCodeIndex:        http.StatusServiceUnavailable,
}

// JSON writes data with the given status. A nil data writes headers only.
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Warn("writing response body failed", "status", status, "error", err)
	}
}

// Success wraps data in the success envelope.
func Success(w http.ResponseWriter, status int, data any) {
	JSON(w, status, SuccessResponse{Data: data})
}

// Error writes a plain error message without a code.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, ErrorResponse{Error: message})
}

// DomainErrorToHTTP maps an error's domain code to a status. Errors without a
// known code are 500.
func DomainErrorToHTTP(err error) int {
	if err == nil {
		return http.StatusOK
	}
	if status, ok := statusByErrorCode[domain.ErrorCode(err)]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// HandleError writes err in the error envelope. Errors that carry no domain
// code are logged and answered with a generic message.
func HandleError(w http.ResponseWriter, err error) {
	code := domain.ErrorCode(err)
	if code == "" {
		slog.Error("unhandled error", "error", err)
		JSON(w, http.StatusInternalServerError, ErrorResponse{
			Error: "internal server error",
			Code:  domain.ErrCodeInternalError,
		})
		return
	}
	JSON(w, DomainErrorToHTTP(err), ErrorResponse{Error: err.Error(), Code: code})
}
