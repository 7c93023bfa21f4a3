package handlers

import (
	"errors"
	"net/http"
	"time"

	"todoTracker/internal/handlers/dto"
	"todoTracker/internal/logger"
	"todoTracker/internal/middleware"
	"todoTracker/internal/service"

	"go.uber.org/zap"
)

// StatusClientClosedRequest - нестандартный код для отменённого клиентом запроса
const StatusClientClosedRequest = 499

func handleError(w http.ResponseWriter, r *http.Request, err error) {
	var businessErr *service.BusinessError
	if !errors.As(err, &businessErr) {
		logger.Error("HTTP: Необработанная ошибка", err, zap.String("path", r.URL.Path))
		businessErr = service.NewInternal(err)
	}

	statusCode := mapBusinessErrorToHTTP(businessErr.Code)
	logger.Warn("HTTP: Бизнес-ошибка",
		zap.String("error_code", businessErr.Code),
		zap.Int("http_status", statusCode),
		zap.String("request_id", middleware.GetRequestID(r.Context())))

	writeError(w, r, statusCode, businessErr.Code, businessErr.Message, businessErr.Details)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string, details map[string]any) {
	responseWithValue(w, status, dto.ErrorResponse{
		Code:      code,
		Message:   message,
		Details:   details,
		Timestamp: time.Now().UTC(),
		RequestID: middleware.GetRequestID(r.Context()),
		Path:      r.URL.Path,
	})
}

// badRequest - ошибка разбора запроса до обращения к сервису
func badRequest(w http.ResponseWriter, r *http.Request, field, message string) {
	logger.Warn("HTTP: Ошибка валидации",
		zap.String("field", field),
		zap.String("error", message),
		zap.String("client_ip", r.RemoteAddr))
	handleError(w, r, service.NewValidationError(service.FieldError{Field: field, Message: message}))
}

func mapBusinessErrorToHTTP(code string) int {
	switch code {
	case service.CodeNotFound:
		return http.StatusNotFound
	case service.CodeValidation:
		return http.StatusBadRequest
	case service.CodeConflict:
		return http.StatusConflict
	case service.CodeCancelled:
		return StatusClientClosedRequest
	default:
		return http.StatusInternalServerError
	}
}
