package errors

// Error codes for standardized error responses
const (
	// Authentication errors
	ErrCodeInvalidToken           = "invalid_token"
	ErrCodeTokenExpired           = "token_expired"
	ErrCodeAuthenticationRequired = "authentication_required"

	// Validation errors
	ErrCodeInvalidRequest   = "invalid_request"
	ErrCodeValidationFailed = "validation_failed"
	ErrCodeMissingField     = "missing_field"
	ErrCodeUnknownQuestion  = "unknown_question"

	// Resource errors
	ErrCodeQuestNotFound = "quest_not_found"

	// Quest availability
	ErrCodeQuestUnpublished = "quest_unpublished"
	ErrCodeQuestExpired     = "quest_expired"
	ErrCodeInvalidQuestSet  = "invalid_question_set"

	// Submission errors
	ErrCodeNothingToRetry = "nothing_to_retry"

	// Session errors
	ErrCodeInvalidTransition = "invalid_transition"

	// WebSocket errors
	ErrCodeInvalidPayload     = "invalid_payload"
	ErrCodeUnknownMessageType = "unknown_message_type"

	// Server errors
	ErrCodeInternalError      = "internal_error"
	ErrCodeServiceUnavailable = "service_unavailable"
	ErrCodeUpstreamError      = "upstream_error"

	// Leaderboard errors
	ErrCodeLeaderboardFetchFailed = "leaderboard_fetch_failed"
	ErrCodeUnknownWindow          = "unknown_leaderboard_window"
)
