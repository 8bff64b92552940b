package domain

import "fmt"

// DomainError represents a domain-specific error
type DomainError struct {
	Code    string
	Message string
	Err     error
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError creates a new DomainError
func NewDomainError(code, message string) *DomainError {
	return &DomainError{Code: code, Message: message}
}

// Common domain error codes
const (
	ErrCodeValidation    = "VALIDATION_ERROR"
	ErrCodeNotFound      = "NOT_FOUND"
	ErrCodeInternalError = "INTERNAL_ERROR"
)

// Validation errors
var (
	ErrMissingEventID      = NewDomainError(ErrCodeValidation, "event id is required")
	ErrMissingCollectionID = NewDomainError(ErrCodeValidation, "collection id is required")
	ErrMissingSubject      = NewDomainError(ErrCodeValidation, "triple subject is required")
	ErrMissingObject       = NewDomainError(ErrCodeValidation, "triple object is required")
	ErrMissingSentence     = NewDomainError(ErrCodeValidation, "supporting sentence is required")
	ErrMissingDocumentID   = NewDomainError(ErrCodeValidation, "document id is required")
	ErrMissingSessionID    = NewDomainError(ErrCodeValidation, "session id is required")
	ErrMissingQuery        = NewDomainError(ErrCodeValidation, "query text is required")
	ErrMissingResponse     = NewDomainError(ErrCodeValidation, "response text is required")

	// ErrWrongEmbeddingDim is returned for any vector whose length is not
	// exactly EmbeddingDim. Mismatched vectors are rejected, never padded
	// or truncated.
	ErrWrongEmbeddingDim = NewDomainError(ErrCodeValidation,
		fmt.Sprintf("embedding must have exactly %d dimensions", EmbeddingDim))
)

// Not found errors
var (
	ErrSessionNotFound = NewDomainError(ErrCodeNotFound, "insight session not found")
)
