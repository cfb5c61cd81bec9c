package services

import "errors"

type ErrorCode string

const (
	ErrorInvalid          ErrorCode = "invalid"
	ErrorForbidden        ErrorCode = "forbidden"
	ErrorNotFound         ErrorCode = "not_found"
	ErrorConflict         ErrorCode = "conflict"
	ErrorUnauthorized     ErrorCode = "unauthorized"
	ErrorAlreadySubmitted ErrorCode = "already_submitted"
	ErrorNotCompleted     ErrorCode = "not_completed"
)

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

func NewAlreadySubmittedError(msg string) error {
	return &ServiceError{Code: ErrorAlreadySubmitted, Message: msg}
}

func NewNotCompletedError(msg string) error {
	return &ServiceError{Code: ErrorNotCompleted, Message: msg}
}

func AsServiceError(err error) (*ServiceError, bool) {
	var se *ServiceError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}
