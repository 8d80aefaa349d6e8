package services

import "errors"

// Kind classifies a service failure for transport-layer mapping.
type Kind int

const (
	KindValidation Kind = iota + 1
	KindConflict
	KindAuth
	KindNotFound
	KindInternal
)

// Code identifies the specific failure within a kind.
type Code string

const (
	CodeValidation           Code = "VALIDATION_ERROR"
	CodeAlreadyExists        Code = "USER_ALREADY_EXISTS"
	CodeUserNotFound         Code = "USER_NOT_FOUND"
	CodeUserInactive         Code = "USER_INACTIVE"
	CodeInvalidCredentials   Code = "INVALID_CREDENTIALS"
	CodeRefreshTokenMissing  Code = "REFRESH_TOKEN_MISSING"
	CodeTokenInvalid         Code = "TOKEN_INVALID"
	CodeRefreshTokenMismatch Code = "REFRESH_TOKEN_MISMATCH"
	CodePasswordHashFailed   Code = "PASSWORD_HASH_FAILED"
	CodeRegistrationFailed   Code = "USER_REGISTRATION_FAILED"
	CodeInternal             Code = "INTERNAL_SERVER_ERROR"
)

// Error is a typed service failure. Every failure leaving the engine is
// one of these; callers switch on Kind and Code, never on message text.
type Error struct {
	Kind    Kind
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return e.Message + ": " + e.cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.cause
}

// AsError extracts a service *Error from err, or nil.
func AsError(err error) *Error {
	var svcErr *Error
	if errors.As(err, &svcErr) {
		return svcErr
	}
	return nil
}

func validationError(message string) *Error {
	return &Error{Kind: KindValidation, Code: CodeValidation, Message: message}
}

func conflictError(code Code, message string) *Error {
	return &Error{Kind: KindConflict, Code: code, Message: message}
}

func authError(code Code, message string) *Error {
	return &Error{Kind: KindAuth, Code: code, Message: message}
}

func notFoundError(code Code, message string) *Error {
	return &Error{Kind: KindNotFound, Code: code, Message: message}
}

func internalError(code Code, message string, cause error) *Error {
	return &Error{Kind: KindInternal, Code: code, Message: message, cause: cause}
}
