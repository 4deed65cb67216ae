package response

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// Authentication
	ErrTokenRequired ErrCode = "TOKEN_REQUIRED"
	ErrTokenInvalid  ErrCode = "TOKEN_INVALID"

	// Authorization
	ErrPermissionDenied  ErrCode = "PERMISSION_DENIED"
	ErrStudentAccessOnly ErrCode = "STUDENT_ACCESS_ONLY"
	ErrAdminAccessOnly   ErrCode = "ADMIN_ACCESS_ONLY"

	// Validation
	ErrValidation      ErrCode = "VALIDATION_ERROR"
	ErrInvalidPayload  ErrCode = "INVALID_PAYLOAD"
	ErrInvalidAnswer   ErrCode = "INVALID_ANSWER"
	ErrIndexOutOfRange ErrCode = "INDEX_OUT_OF_RANGE"

	// Exam session
	ErrNoActiveSession     ErrCode = "NO_ACTIVE_SESSION"
	ErrSessionActive       ErrCode = "SESSION_ALREADY_ACTIVE"
	ErrInvalidTransition   ErrCode = "INVALID_TRANSITION"
	ErrSessionFailed       ErrCode = "SESSION_FAILED"
	ErrExamTimedOut        ErrCode = "EXAM_TIMED_OUT"
	ErrDuplicateSubmission ErrCode = "DUPLICATE_SUBMISSION"
	ErrInvalidCleanupCode  ErrCode = "INVALID_CLEANUP_CODE"

	// Rate Limiting
	ErrRateLimitExceeded ErrCode = "RATE_LIMIT_EXCEEDED"

	// Server
	ErrInternal ErrCode = "INTERNAL_ERROR"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	// ─── Authentication ────────────────────────────────────────────────
	case ErrTokenRequired:
		return "Authentication token is required."
	case ErrTokenInvalid:
		return "Authentication token is invalid or expired."

	// ─── Authorization ─────────────────────────────────────────────────
	case ErrPermissionDenied:
		return "Permission denied."
	case ErrStudentAccessOnly:
		return "This resource is restricted to students."
	case ErrAdminAccessOnly:
		return "This resource is restricted to administrators."

	// ─── Validation ────────────────────────────────────────────────────
	case ErrValidation:
		return "Validation failed. Please check your input."
	case ErrInvalidPayload:
		return "Invalid request payload."
	case ErrInvalidAnswer:
		return "The answer could not be recorded for this item."
	case ErrIndexOutOfRange:
		return "That section or item does not exist."

	// ─── Exam session ──────────────────────────────────────────────────
	case ErrNoActiveSession:
		return "You have no active exam session."
	case ErrSessionActive:
		return "You already have an active exam session."
	case ErrInvalidTransition:
		return "That action is not available right now."
	case ErrSessionFailed:
		return "The exam session could not continue."
	case ErrExamTimedOut:
		return "Exam time has expired. Your answers were submitted."
	case ErrDuplicateSubmission:
		return "This exam has already been submitted."
	case ErrInvalidCleanupCode:
		return "The cleanup code is invalid or was already used."

	// ─── Rate Limiting ─────────────────────────────────────────────────
	case ErrRateLimitExceeded:
		return "Too many requests. Please try again later."

	// ─── Server ────────────────────────────────────────────────────────
	case ErrInternal:
		return "An internal server error occurred."
	default:
		return "An unexpected error occurred."
	}
}
