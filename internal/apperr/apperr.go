package apperr

import (
	"errors"
	"fmt"
)

// Code - класс ошибки, по которому HTTP-слой выбирает статус ответа
type Code string

const (
	CodeValidation    Code = "validation"
	CodeBadIdentifier Code = "bad_identifier"
	CodeNotFound      Code = "not_found"
	CodeUnavailable   Code = "unavailable"
	CodeExternal      Code = "external"
	CodeInternal      Code = "internal"
)

// Error - типизированная ошибка приложения.
// Field заполняется только для ошибок валидации и содержит имя поля запроса.
type Error struct {
	Code    Code
	Message string
	Field   string
	Allowed []string
	Err     error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Validation создает ошибку валидации для конкретного поля
func Validation(field, message string) *Error {
	return &Error{Code: CodeValidation, Field: field, Message: message}
}

// ValidationAllowed создает ошибку валидации со списком допустимых значений
func ValidationAllowed(field, message string, allowed []string) *Error {
	return &Error{Code: CodeValidation, Field: field, Message: message, Allowed: allowed}
}

func BadIdentifier(raw string) *Error {
	return &Error{Code: CodeBadIdentifier, Message: fmt.Sprintf("invalid incident ID format: %q", raw)}
}

func NotFound(message string) *Error {
	return &Error{Code: CodeNotFound, Message: message}
}

// Unavailable - хранилище недоступно или не ответило вовремя, запрос можно повторить
func Unavailable(message string, err error) *Error {
	return &Error{Code: CodeUnavailable, Message: message, Err: err}
}

func External(message string, err error) *Error {
	return &Error{Code: CodeExternal, Message: message, Err: err}
}

func Internal(message string, err error) *Error {
	return &Error{Code: CodeInternal, Message: message, Err: err}
}

// CodeOf возвращает код первой ошибки приложения в цепочке, иначе CodeInternal
func CodeOf(err error) Code {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeInternal
}

// As достает *Error из цепочки ошибок
func As(err error) (*Error, bool) {
	var appErr *Error
	ok := errors.As(err, &appErr)
	return appErr, ok
}

// Is сообщает, относится ли ошибка к указанному коду
func Is(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}
