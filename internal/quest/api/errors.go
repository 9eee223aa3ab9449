package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gokatarajesh/quest-engine/internal/quest"
	"github.com/gokatarajesh/quest-engine/internal/reward"
	"github.com/gokatarajesh/quest-engine/internal/session"
	httperrors "github.com/gokatarajesh/quest-engine/pkg/http/errors"
)

// Problem is the client-facing form of a domain error.
type Problem struct {
	Status    int
	Code      string
	Message   string
	Field     string
	Retryable bool
}

// Classify maps domain errors onto HTTP statuses and error codes. Rejections
// of the request are 4xx; store outages are 503 and safe to retry with the
// same submission id.
func Classify(err error) Problem {
	var verr *quest.ValidationError
	switch {
	case errors.As(err, &verr):
		return Problem{Status: http.StatusBadRequest, Code: httperrors.ErrCodeValidationFailed, Message: verr.Message, Field: verr.Field}
	case errors.Is(err, quest.ErrUnknownQuestion):
		return Problem{Status: http.StatusBadRequest, Code: httperrors.ErrCodeUnknownQuestion, Message: err.Error()}
	case errors.Is(err, quest.ErrQuestNotFound):
		return Problem{Status: http.StatusNotFound, Code: httperrors.ErrCodeQuestNotFound, Message: "Quest not found"}
	case errors.Is(err, quest.ErrQuestUnpublished):
		return Problem{Status: http.StatusNotFound, Code: httperrors.ErrCodeQuestUnpublished, Message: "Quest is not available"}
	case errors.Is(err, quest.ErrQuestExpired):
		return Problem{Status: http.StatusGone, Code: httperrors.ErrCodeQuestExpired, Message: "Quest has expired"}
	case errors.Is(err, quest.ErrEmptyQuestionSet), errors.Is(err, quest.ErrInvalidAnswerKey):
		return Problem{Status: http.StatusInternalServerError, Code: httperrors.ErrCodeInvalidQuestSet, Message: "Question set is misconfigured"}
	case errors.Is(err, session.ErrInvalidTransition):
		return Problem{Status: http.StatusConflict, Code: httperrors.ErrCodeInvalidTransition, Message: err.Error()}
	case errors.Is(err, session.ErrNotSubmitted):
		return Problem{Status: http.StatusConflict, Code: httperrors.ErrCodeNothingToRetry, Message: err.Error()}
	case errors.Is(err, reward.ErrStoreUnavailable),
		errors.Is(err, context.DeadlineExceeded):
		return Problem{Status: http.StatusServiceUnavailable, Code: httperrors.ErrCodeServiceUnavailable, Message: "Could not record the submission, please retry", Retryable: true}
	default:
		return Problem{Status: http.StatusInternalServerError, Code: httperrors.ErrCodeInternalError, Message: "Internal error", Retryable: true}
	}
}

func respondError(w http.ResponseWriter, err error) {
	p := Classify(err)
	switch {
	case p.Field != "":
		httperrors.RespondValidationError(w, p.Code, p.Message, p.Field)
	case p.Retryable:
		httperrors.RespondErrorWithDetails(w, p.Status, p.Code, p.Message, map[string]interface{}{"retryable": true})
	default:
		httperrors.RespondError(w, p.Status, p.Code, p.Message)
	}
}
