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
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     nil,
	}
}

// NewDomainErrorWithCause creates a new DomainError with an underlying cause
func NewDomainErrorWithCause(code, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Common domain error codes
const (
	ErrCodeValidation    = "VALIDATION_ERROR"
	ErrCodeNotFound      = "NOT_FOUND"
	ErrCodeConfiguration = "CONFIGURATION_ERROR"
	ErrCodeBuild         = "BUILD_ERROR"
	ErrCodeUnauthorized  = "UNAUTHORIZED"
	ErrCodeInternalError = "INTERNAL_ERROR"
)

// Validation errors
var (
	ErrInvalidChunkCategory = NewDomainError(ErrCodeValidation, "invalid chunk category")
	ErrEmptyUtterance       = NewDomainError(ErrCodeValidation, "utterance cannot be empty")
)

// Configuration errors
var (
	ErrKnowledgeBaseNotFound  = NewDomainError(ErrCodeConfiguration, "knowledge base file not found")
	ErrKnowledgeBaseMalformed = NewDomainError(ErrCodeConfiguration, "knowledge base is malformed")
	ErrTooManyRecordsSkipped  = NewDomainError(ErrCodeConfiguration, "too many malformed knowledge base records")
)

// Build and lifecycle errors
var (
	ErrIndexNotReady = NewDomainError(ErrCodeBuild, "retrieval index is not ready")
	ErrIndexBuild    = NewDomainError(ErrCodeBuild, "retrieval index build failed")
)
