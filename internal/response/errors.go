package response

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Authentication ────────────────────────────────────────────────
	ErrTokenRequired ErrCode = "TOKEN_REQUIRED"
	ErrTokenInvalid  ErrCode = "TOKEN_INVALID"
	ErrTokenExpired  ErrCode = "TOKEN_EXPIRED"

	// ─── Authorization ─────────────────────────────────────────────────
	ErrForbidden         ErrCode = "FORBIDDEN"
	ErrStudentAccessOnly ErrCode = "STUDENT_ACCESS_ONLY"
	ErrTeacherAccessOnly ErrCode = "TEACHER_ACCESS_ONLY"
	ErrNotExamAuthor     ErrCode = "NOT_EXAM_AUTHOR"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidID      ErrCode = "INVALID_ID"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"
	ErrInvalidAnswer  ErrCode = "INVALID_ANSWER"

	// ─── Resources ─────────────────────────────────────────────────────
	ErrNotFound ErrCode = "NOT_FOUND"
	ErrConflict ErrCode = "CONFLICT"

	// ─── Exam session ──────────────────────────────────────────────────
	ErrExamUnavailable ErrCode = "EXAM_UNAVAILABLE"
	ErrExamNotOpen     ErrCode = "EXAM_NOT_OPEN"
	ErrExamClosed      ErrCode = "EXAM_CLOSED"
	ErrSessionLocked   ErrCode = "SESSION_LOCKED"
	ErrSessionNotFound ErrCode = "SESSION_NOT_FOUND"
	ErrSubmitFailed    ErrCode = "SUBMIT_FAILED"
	ErrSubmitInFlight  ErrCode = "SUBMIT_IN_FLIGHT"
	ErrConfirmRequired ErrCode = "CONFIRM_REQUIRED"

	// ─── Grading ───────────────────────────────────────────────────────
	ErrExamInUse        ErrCode = "EXAM_IN_USE"
	ErrGradesPending    ErrCode = "GRADES_PENDING"
	ErrSessionNotLocked ErrCode = "SESSION_NOT_LOCKED"
	ErrAlreadyGraded    ErrCode = "ALREADY_GRADED"
	ErrPointsOutOfRange ErrCode = "POINTS_OUT_OF_RANGE"
	ErrResultNotReady   ErrCode = "RESULT_NOT_READY"

	// ─── Server ────────────────────────────────────────────────────────
	ErrRateLimited ErrCode = "RATE_LIMITED"
	ErrInternal    ErrCode = "INTERNAL_ERROR"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	// ─── Authentication ────────────────────────────────────────────────
	case ErrTokenRequired:
		return "Authentication token is required."
	case ErrTokenInvalid:
		return "Authentication token is invalid."
	case ErrTokenExpired:
		return "Authentication token has expired."

	// ─── Authorization ─────────────────────────────────────────────────
	case ErrForbidden:
		return "You are not allowed to access this resource."
	case ErrStudentAccessOnly:
		return "This resource is restricted to students."
	case ErrTeacherAccessOnly:
		return "This resource is restricted to teachers."
	case ErrNotExamAuthor:
		return "You are not the author of this exam."

	// ─── Validation ────────────────────────────────────────────────────
	case ErrValidation:
		return "Validation failed. Please check your input."
	case ErrInvalidID:
		return "Invalid ID format."
	case ErrInvalidPayload:
		return "Invalid request payload."
	case ErrInvalidAnswer:
		return "The answer does not fit this question."

	// ─── Resources ─────────────────────────────────────────────────────
	case ErrNotFound:
		return "Resource not found."
	case ErrConflict:
		return "Resource already exists."

	// ─── Exam session ──────────────────────────────────────────────────
	case ErrExamUnavailable:
		return "The exam could not be loaded. Please return to the dashboard."
	case ErrExamNotOpen:
		return "The exam has not opened yet."
	case ErrExamClosed:
		return "The exam is closed."
	case ErrSessionLocked:
		return "This exam session has already been submitted."
	case ErrSessionNotFound:
		return "Exam session not found."
	case ErrSubmitFailed:
		return "Submitting failed. Your answers are kept, please try again."
	case ErrSubmitInFlight:
		return "A submit is already in progress."
	case ErrConfirmRequired:
		return "Please confirm the submission."

	// ─── Grading ───────────────────────────────────────────────────────
	case ErrExamInUse:
		return "The exam already has sessions and can no longer be changed."
	case ErrGradesPending:
		return "Some answers still need a grade."
	case ErrSessionNotLocked:
		return "The session is still in progress."
	case ErrAlreadyGraded:
		return "The result has already been finalized."
	case ErrPointsOutOfRange:
		return "Points must be between zero and the question's points."
	case ErrResultNotReady:
		return "The result is not available yet."

	// ─── Server ────────────────────────────────────────────────────────
	case ErrRateLimited:
		return "Too many requests. Please slow down."
	case ErrInternal:
		return "Internal server error."
	default:
		return "An unexpected error occurred."
	}
}
