package errors

// Error codes for categorizing errors.
// These codes map to HTTP status codes where applicable.
const (
	// CodeOK indicates success (not an error).
	CodeOK = "OK"

	// CodeCancelled indicates the operation was cancelled.
	CodeCancelled = "CANCELLED"

	// CodeInvalidArgument indicates client specified an invalid argument.
	CodeInvalidArgument = "INVALID_ARGUMENT"

	// CodeNotFound indicates a resource was not found.
	CodeNotFound = "NOT_FOUND"

	// CodeFailedPrecondition indicates operation was rejected because the system
	// is not in a required state.
	CodeFailedPrecondition = "FAILED_PRECONDITION"

	// CodeInternal indicates internal errors.
	CodeInternal = "INTERNAL"

	// CodeUnavailable indicates the broker connection is currently unavailable.
	CodeUnavailable = "UNAVAILABLE"

	// Domain-specific error codes

	// CodeValidation indicates input validation failed.
	CodeValidation = "VALIDATION_ERROR"

	// CodeTimeout indicates an operation timed out.
	CodeTimeout = "TIMEOUT"

	// CodeServiceUnavailable indicates the broker rejected an operation.
	CodeServiceUnavailable = "SERVICE_UNAVAILABLE"

	// CodeCallback indicates an application message handler failed.
	CodeCallback = "CALLBACK_ERROR"
)

// IsRetryable returns true if an error with the given code should be retried.
// The core never retries on its own; transport layers consult this.
func IsRetryable(code string) bool {
	switch code {
	case CodeTimeout, CodeServiceUnavailable, CodeUnavailable:
		return true
	default:
		return false
	}
}
