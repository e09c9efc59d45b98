package services

import (
	"errors"
	"strings"

	"github.com/google/uuid"
)

type ErrorCode string

const (
	ErrorInvalid      ErrorCode = "invalid"
	ErrorForbidden    ErrorCode = "forbidden"
	ErrorNotFound     ErrorCode = "not_found"
	ErrorConflict     ErrorCode = "conflict"
	ErrorUnauthorized ErrorCode = "unauthorized"
)

// ServiceError carries a code and a message. Messages shown to participants
// are i18n keys translated by the HTTP layer.
type ServiceError struct {
	Code    ErrorCode
	Message string
}

func (e *ServiceError) Error() string { return e.Message }

func NewInvalidError(msg string) error   { return &ServiceError{Code: ErrorInvalid, Message: msg} }
func NewForbiddenError(msg string) error { return &ServiceError{Code: ErrorForbidden, Message: msg} }
func NewNotFoundError(msg string) error  { return &ServiceError{Code: ErrorNotFound, Message: msg} }
func NewConflictError(msg string) error  { return &ServiceError{Code: ErrorConflict, Message: msg} }
func NewUnauthorizedError(msg string) error {
	return &ServiceError{Code: ErrorUnauthorized, Message: msg}
}

func AsServiceError(err error) (*ServiceError, bool) {
	var se *ServiceError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}

var (
	ErrParticipantNotFound = &ServiceError{Code: ErrorNotFound, Message: "participant.not_found"}
	ErrSessionNotFound     = &ServiceError{Code: ErrorNotFound, Message: "session.not_found"}
	ErrDatasetNotFound     = &ServiceError{Code: ErrorNotFound, Message: "dataset.not_found"}
	ErrParticipantExists   = &ServiceError{Code: ErrorConflict, Message: "participant.exists"}

	ErrEmptyIdea          = &ServiceError{Code: ErrorInvalid, Message: "idea.empty"}
	ErrRationaleTooShort  = &ServiceError{Code: ErrorInvalid, Message: "rationale.too_short"}
	ErrNoPendingIdea      = &ServiceError{Code: ErrorConflict, Message: "rationale.no_pending_idea"}
	ErrUnknownSuggestion  = &ServiceError{Code: ErrorNotFound, Message: "suggestion.unknown"}
	ErrSuggestionResolved = &ServiceError{Code: ErrorConflict, Message: "suggestion.resolved"}
	ErrInvalidState       = &ServiceError{Code: ErrorConflict, Message: "task.invalid_state"}
	ErrTaskNotActive      = &ServiceError{Code: ErrorConflict, Message: "task.not_active"}
	ErrTaskActive         = &ServiceError{Code: ErrorConflict, Message: "task.already_active"}
	ErrWrongPhase         = &ServiceError{Code: ErrorConflict, Message: "study.wrong_phase"}
)

func shortID(n int) string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:n]
}
