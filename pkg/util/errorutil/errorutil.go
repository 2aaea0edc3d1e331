package errorutil

import (
	"errors"
	"fmt"
	"net/http"
)

const (
	CodeMissingInput        = "MISSING_INPUT"
	CodeUpstreamError       = "UPSTREAM_ERROR"
	CodeTokenExchangeFailed = "TOKEN_EXCHANGE_FAILED"
	CodeProfileFetchFailed  = "PROFILE_FETCH_FAILED"
	CodeInvalidToken        = "INVALID_TOKEN"
	CodeConfigError         = "CONFIG_ERROR"
	CodeInternalError       = "INTERNAL_ERROR"
	CodeMethodNotAllowed    = "METHOD_NOT_ALLOWED"
)

// DomainError standardizes application errors.
type DomainError struct {
	Code       string
	Message    string
	HTTPStatus int
	Details    map[string]any
	Err        error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError constructs a DomainError.
func NewDomainError(code, message string, status int, details map[string]any) *DomainError {
	return &DomainError{Code: code, Message: message, HTTPStatus: status, Details: details}
}

func NewMissingInput(message string) error {
	return NewDomainError(CodeMissingInput, message, http.StatusBadRequest, nil)
}

func NewUpstreamError(message string, err error) error {
	return &DomainError{Code: CodeUpstreamError, Message: message, HTTPStatus: http.StatusBadGateway, Err: err}
}

func NewTokenExchangeFailed(message string, err error) error {
	return &DomainError{Code: CodeTokenExchangeFailed, Message: message, HTTPStatus: http.StatusBadGateway, Err: err}
}

func NewProfileFetchFailed(message string, err error) error {
	return &DomainError{Code: CodeProfileFetchFailed, Message: message, HTTPStatus: http.StatusBadGateway, Err: err}
}

// NewInvalidToken never carries the failing check in Message; the cause stays in Err for logs.
func NewInvalidToken(message string, err error) error {
	return &DomainError{Code: CodeInvalidToken, Message: message, HTTPStatus: http.StatusUnauthorized, Err: err}
}

func NewMethodNotAllowed() error {
	return NewDomainError(CodeMethodNotAllowed, "Method Not Allowed", http.StatusMethodNotAllowed, nil)
}

func NewConfigError(err error) error {
	return &DomainError{
		Code:       CodeConfigError,
		Message:    "Internal Server Error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

func NewInternalError(err error) error {
	return &DomainError{
		Code:       CodeInternalError,
		Message:    "Internal Server Error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// ToDomainError converts generic errors to DomainError.
func ToDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	return &DomainError{
		Code:       CodeInternalError,
		Message:    "Internal Server Error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// IsCode reports whether err is a DomainError with the given code.
func IsCode(err error, code string) bool {
	var domainErr *DomainError
	return errors.As(err, &domainErr) && domainErr.Code == code
}
