package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/cognidex/cognidex/internal/commit"
	"github.com/cognidex/cognidex/internal/discovery"
	"github.com/cognidex/cognidex/internal/domain"
	"github.com/cognidex/cognidex/internal/store"
)

// SuccessResponse wraps successful API responses
type SuccessResponse struct {
	Data interface{} `json:"data"`
}

// ErrorResponse represents an error API response
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

// JSON writes a JSON response with the given status code
func JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// Success writes a successful JSON response
func Success(w http.ResponseWriter, status int, data interface{}) {
	JSON(w, status, SuccessResponse{Data: data})
}

// Error writes an error JSON response
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, ErrorResponse{Error: message})
}

// StatusForError maps the storage error taxonomy and domain errors to
// HTTP status codes.
func StatusForError(err error) int {
	if err == nil {
		return http.StatusOK
	}

	if errors.Is(err, discovery.ErrRetrievalUnavailable) {
		return http.StatusServiceUnavailable
	}
	if errors.Is(err, commit.ErrNoDurableWrite) {
		return http.StatusServiceUnavailable
	}

	var domainErr *domain.DomainError
	if errors.As(err, &domainErr) {
		switch domainErr.Code {
		case domain.ErrCodeValidation:
			return http.StatusBadRequest
		case domain.ErrCodeNotFound:
			return http.StatusNotFound
		default:
			return http.StatusInternalServerError
		}
	}

	var storeErr *store.Error
	if errors.As(err, &storeErr) {
		switch storeErr.Kind {
		case store.ErrSchemaViolation, store.ErrUnsupported:
			return http.StatusBadRequest
		case store.ErrConflict, store.ErrInconsistent:
			return http.StatusConflict
		case store.ErrUnavailable:
			return http.StatusServiceUnavailable
		case store.ErrTimeout:
			return http.StatusGatewayTimeout
		default:
			return http.StatusInternalServerError
		}
	}

	return http.StatusInternalServerError
}

// HandleError writes an appropriate error response based on the error type
func HandleError(w http.ResponseWriter, err error) {
	status := StatusForError(err)

	kind := ""
	var storeErr *store.Error
	if errors.As(err, &storeErr) {
		kind = string(storeErr.Kind)
	}

	JSON(w, status, ErrorResponse{Error: err.Error(), Kind: kind})
}
