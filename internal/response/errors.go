package response

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Authentication ────────────────────────────────────────────────
	ErrInvalidCredentials ErrCode = "INVALID_CREDENTIALS"
	ErrSessionActive      ErrCode = "SESSION_ALREADY_ACTIVE"
	ErrSessionInvalidated ErrCode = "SESSION_INVALIDATED"
	ErrTokenRequired      ErrCode = "TOKEN_REQUIRED"
	ErrTokenInvalid       ErrCode = "TOKEN_INVALID"

	// ─── Authorization ─────────────────────────────────────────────────
	ErrStudentAccessOnly ErrCode = "STUDENT_ACCESS_ONLY"
	ErrTeacherAccessOnly ErrCode = "TEACHER_ACCESS_ONLY"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidID      ErrCode = "INVALID_ID"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"

	// ─── Resources ─────────────────────────────────────────────────────
	ErrNotFound ErrCode = "NOT_FOUND"
	ErrConflict ErrCode = "CONFLICT"

	// ─── Exam ──────────────────────────────────────────────────────────
	ErrExamNotAvailable    ErrCode = "EXAM_NOT_AVAILABLE"
	ErrExamBlocked         ErrCode = "EXAM_BLOCKED"
	ErrAlreadySubmitted    ErrCode = "ALREADY_SUBMITTED"
	ErrIncompleteAnswers   ErrCode = "INCOMPLETE_ANSWERS"
	ErrSubmitRetry         ErrCode = "SUBMIT_RETRY"
	ErrNoActiveExamSession ErrCode = "NO_ACTIVE_EXAM_SESSION"
	ErrNothingToExport     ErrCode = "NOTHING_TO_EXPORT"

	// ─── Rate Limiting ─────────────────────────────────────────────────
	ErrRateLimitExceeded ErrCode = "RATE_LIMIT_EXCEEDED"

	// ─── Server ────────────────────────────────────────────────────────
	ErrInternal ErrCode = "INTERNAL_ERROR"
)

var messages = map[ErrCode]string{
	ErrInvalidCredentials: "Incorrect email or password.",
	ErrSessionActive:      "You are already signed in on another device. Ask your teacher to reset your login.",
	ErrSessionInvalidated: "Your session has ended. Please sign in again.",
	ErrTokenRequired:      "Authentication token is required.",
	ErrTokenInvalid:       "Authentication token is invalid or expired.",

	ErrStudentAccessOnly: "This resource is for students only.",
	ErrTeacherAccessOnly: "This resource is for teachers only.",

	ErrValidation:     "Validation failed. Please check your input.",
	ErrInvalidID:      "Invalid ID format.",
	ErrInvalidPayload: "Invalid request payload.",

	ErrNotFound: "Resource not found.",
	ErrConflict: "Resource already exists.",

	ErrExamNotAvailable:    "The exam is not available right now.",
	ErrExamBlocked:         "The exam is scheduled but cannot be started. Please contact your teacher.",
	ErrAlreadySubmitted:    "You have already submitted this exam.",
	ErrIncompleteAnswers:   "Please answer all questions before submitting.",
	ErrSubmitRetry:         "Your submission could not be saved. Please try again.",
	ErrNoActiveExamSession: "You have no exam in progress.",
	ErrNothingToExport:     "There are no submissions to export yet.",

	ErrRateLimitExceeded: "Too many requests. Please try again later.",

	ErrInternal: "Internal server error.",
}

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	if msg, ok := messages[code]; ok {
		return msg
	}
	return "An unexpected error occurred."
}
