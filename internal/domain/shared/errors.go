package shared

// DomainError represents an error reported to API clients with a stable code
type DomainError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface
func (e *DomainError) Error() string {
	return e.Message
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// Common domain errors
var (
	ErrInvalidInput       = NewDomainError("INVALID_INPUT", "Invalid input provided")
	ErrBadRequest         = NewDomainError("BAD_REQUEST", "Malformed request")
	ErrMethodNotAllowed   = NewDomainError("METHOD_NOT_ALLOWED", "Method Not Allowed. Use POST.")
	ErrSyncFailed         = NewDomainError("SYNC_FAILED", "Label synchronization completed with errors")
	ErrInternal           = NewDomainError("INTERNAL_ERROR", "Internal server error")
	ErrServiceUnavailable = NewDomainError("SERVICE_UNAVAILABLE", "Service is busy, retry later")
)
