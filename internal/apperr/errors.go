package apperr

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindNotFound          Kind = "not_found"
	KindValidation        Kind = "validation"
	KindConflict          Kind = "conflict"
	KindRemoteUnavailable Kind = "remote_unavailable"
	KindTransformFailure  Kind = "transform_failure"
	KindUnknown           Kind = "unknown"
)

type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

func NotFound(format string, args ...any) *Error {
	return newError(KindNotFound, nil, format, args...)
}

func Validation(format string, args ...any) *Error {
	return newError(KindValidation, nil, format, args...)
}

func Conflict(format string, args ...any) *Error {
	return newError(KindConflict, nil, format, args...)
}

func RemoteUnavailable(err error, format string, args ...any) *Error {
	return newError(KindRemoteUnavailable, err, format, args...)
}

func TransformFailure(err error, format string, args ...any) *Error {
	return newError(KindTransformFailure, err, format, args...)
}

// Wrap tags err with kind unless it already carries one.
func Wrap(kind Kind, err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return err
	}
	return newError(kind, err, format, args...)
}

func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindUnknown
}

func IsNotFound(err error) bool { return KindOf(err) == KindNotFound }
func IsValidation(err error) bool { return KindOf(err) == KindValidation }
func IsConflict(err error) bool { return KindOf(err) == KindConflict }
func IsRemoteUnavailable(err error) bool { return KindOf(err) == KindRemoteUnavailable }
func IsTransformFailure(err error) bool { return KindOf(err) == KindTransformFailure }
