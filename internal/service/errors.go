package service

import (
	"errors"
	"fmt"
)

const (
	CodeValidation = "VALIDATION_ERROR"
	CodeNotFound   = "NOT_FOUND"
	CodeConflict   = "VERSION_CONFLICT"
	CodeCancelled  = "CANCELLED"
	CodeInternal   = "INTERNAL_ERROR"
)

type BusinessError struct {
	Code    string
	Message string
	Details map[string]any
	Err     error
}

type Detail struct {
	Key     string
	Payload any
}

// FieldError - ошибка валидации конкретного поля
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (b *BusinessError) Error() string {
	if b.Err != nil {
		return fmt.Sprintf("[%s] %s: %s", b.Code, b.Message, b.Err.Error())
	}
	return fmt.Sprintf("[%s] %s", b.Code, b.Message)
}

func (b *BusinessError) Unwrap() error {
	return b.Err
}

func ToDetail(key string, payload any) Detail {
	return Detail{
		Key:     key,
		Payload: payload,
	}
}

func NewBusinessError(code string, message string, details ...Detail) *BusinessError {
	busErr := &BusinessError{
		Code:    code,
		Message: message,
		Details: make(map[string]any),
	}

	for _, detail := range details {
		busErr.Details[detail.Key] = detail.Payload
	}

	return busErr
}

func NewNotFound(resource, id string) *BusinessError {
	return NewBusinessError(CodeNotFound,
		fmt.Sprintf("%s %s не найден(а)", resource, id),
		ToDetail("resource", resource),
		ToDetail("id", id),
	)
}

func NewValidationError(fields ...FieldError) *BusinessError {
	msg := "Ошибка валидации"
	if len(fields) == 1 {
		msg = fmt.Sprintf("Неверное значение поля '%s': %s", fields[0].Field, fields[0].Message)
	}
	return NewBusinessError(CodeValidation, msg, ToDetail("errors", fields))
}

func NewConflict(id string, err error) *BusinessError {
	busErr := NewBusinessError(CodeConflict,
		"Задача была изменена другим запросом, повторите с актуальными данными",
		ToDetail("id", id),
	)
	busErr.Err = err
	return busErr
}

func NewCancelled(err error) *BusinessError {
	busErr := NewBusinessError(CodeCancelled, "Операция отменена")
	busErr.Err = err
	return busErr
}

// NewInternal не раскрывает причину клиенту, она остаётся только в Err
func NewInternal(err error) *BusinessError {
	busErr := NewBusinessError(CodeInternal, "Внутренняя ошибка сервиса")
	busErr.Err = err
	return busErr
}

func IsCode(err error, code string) bool {
	var busErr *BusinessError
	return errors.As(err, &busErr) && busErr.Code == code
}
