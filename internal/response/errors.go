package response

// ErrCode identifies an API error independently of its message.
type ErrCode string

const (
	ErrUnauthorized      ErrCode = "UNAUTHORIZED"
	ErrForbidden         ErrCode = "FORBIDDEN"
	ErrValidation        ErrCode = "VALIDATION_ERROR"
	ErrNotFound          ErrCode = "NOT_FOUND"
	ErrInvalidSession    ErrCode = "INVALID_SESSION"
	ErrInvalidCode       ErrCode = "INVALID_CODE"
	ErrNotEnrolled       ErrCode = "NOT_ENROLLED"
	ErrIssuanceExhausted ErrCode = "ISSUANCE_EXHAUSTED"
	ErrRateLimitExceeded ErrCode = "RATE_LIMIT_EXCEEDED"
	ErrInternal          ErrCode = "INTERNAL_ERROR"
)

// GetMessage returns the human-readable message for code.
func GetMessage(code ErrCode) string {
	switch code {
	case ErrUnauthorized:
		return "Authentication required."
	case ErrForbidden:
		return "You are not allowed to access this resource."
	case ErrValidation:
		return "Validation failed. Check your input."
	case ErrNotFound:
		return "Resource not found."
	case ErrInvalidSession:
		return "There is no live session to mark right now."
	case ErrInvalidCode:
		return "The attendance code is not valid. Ask for the current code."
	case ErrNotEnrolled:
		return "The person is not enrolled in this session."
	case ErrIssuanceExhausted:
		return "The server could not allocate a unique attendance code. Contact an administrator."
	case ErrRateLimitExceeded:
		return "Too many requests. Try again later."
	case ErrInternal:
		return "Internal server error."
	default:
		return "Unexpected error."
	}
}
