package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"todoTracker/internal/handlers/dto"
	"todoTracker/internal/logger"
	"todoTracker/internal/middleware"
	"todoTracker/internal/query"
	"todoTracker/internal/service"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const (
	defaultPage     = 1
	defaultPageSize = 10
)

type TaskHandler struct {
	TaskService Service
}

func NewTaskHandler(taskService Service) TaskHandler {
	return TaskHandler{
		TaskService: taskService,
	}
}

// Routes монтирует обработчики задач, ожидается префикс /api/v1/tasks
func (s *TaskHandler) Routes(r chi.Router) {
	r.Get("/", s.ListTasks)
	r.Post("/", s.CreateTask)
	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", s.GetTask)
		r.Put("/", s.UpdateTask)
		r.Delete("/", s.DeleteTask)
		r.Post("/files", s.AttachFile)
		r.Delete("/files/{fileId}", s.DeleteFile)
	})
}

func (s *TaskHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	logger.HttpRequestInfo(r, "HTTP: Health check")

	err := s.TaskService.HealthCheck(r.Context())
	if err != nil {
		logger.Error("HTTP: Хранилище недоступно", err)
	}
	healthCheck(w, err)
}

func (s *TaskHandler) ListTasks(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	q := r.URL.Query()

	params := service.ListParams{
		Page:     queryInt(r, "page", defaultPage),
		PageSize: queryInt(r, "pageSize", defaultPageSize),
		Params: query.Params{
			Status:    q.Get("status"),
			Search:    q.Get("search"),
			SortBy:    q.Get("sortBy"),
			SortOrder: q.Get("sortOrder"),
			LabelIDs:  parseLabelIDs(q.Get("labelIds")),
		},
	}
	if params.SortBy == "" {
		params.SortBy = "createdAt"
	}
	if params.SortOrder == "" {
		params.SortOrder = "desc"
	}

	page, err := s.TaskService.ListTasks(r.Context(), middleware.GetTenant(r.Context()), params)
	if err != nil {
		handleError(w, r, err)
		return
	}

	logger.Info("HTTP_OUT: Задачи получены",
		zap.Int("count", len(page.Items)),
		zap.Int("total", page.Pagination.TotalCount),
		zap.Duration("ms", time.Since(start)))

	responseWithValue(w, http.StatusOK, page)
}

func (s *TaskHandler) GetTask(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUIDParam(r, "id")
	if !ok {
		badRequest(w, r, "id", "неверный идентификатор задачи")
		return
	}

	view, err := s.TaskService.GetTask(r.Context(), middleware.GetTenant(r.Context()), id)
	if err != nil {
		handleError(w, r, err)
		return
	}

	responseWithValue(w, http.StatusOK, view)
}

func (s *TaskHandler) CreateTask(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	if !checkContentType(r, "application/json") {
		logger.Warn("HTTP: Неверный тип контента",
			zap.String("expected", "application/json"),
			zap.String("received", r.Header.Get("Content-Type")),
			zap.String("client_ip", r.RemoteAddr))

		writeError(w, r, http.StatusUnsupportedMediaType, service.CodeValidation,
			"Content-Type должен быть application/json", nil)
		return
	}

	var request dto.CreateTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		badRequest(w, r, "body", "неверное тело запроса: "+err.Error())
		return
	}

	view, err := s.TaskService.CreateTask(r.Context(), middleware.GetTenant(r.Context()), request.ToInput())
	if err != nil {
		handleError(w, r, err)
		return
	}

	logger.Info("HTTP_OUT: Задача создана",
		zap.String("task_id", view.ID.String()),
		zap.Duration("ms", time.Since(start)),
		zap.Int("http_status", http.StatusCreated))

	w.Header().Set("Location", "/api/v1/tasks/"+view.ID.String())
	responseWithValue(w, http.StatusCreated, view)
}

func (s *TaskHandler) UpdateTask(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	id, ok := parseUUIDParam(r, "id")
	if !ok {
		badRequest(w, r, "id", "неверный идентификатор задачи")
		return
	}

	if !checkContentType(r, "application/json") {
		writeError(w, r, http.StatusUnsupportedMediaType, service.CodeValidation,
			"Content-Type должен быть application/json", nil)
		return
	}

	expected, ok := parseIfMatch(r)
	if !ok {
		badRequest(w, r, "If-Match", "версия должна быть положительным числом")
		return
	}

	var request dto.UpdateTaskRequest
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		badRequest(w, r, "body", "неверно переданы параметры обновления: "+err.Error())
		return
	}
	if request.Status == nil {
		badRequest(w, r, "status", "статус обязателен")
		return
	}

	view, err := s.TaskService.UpdateTask(r.Context(), middleware.GetTenant(r.Context()), id, request.ToInput(expected))
	if err != nil {
		handleError(w, r, err)
		return
	}

	logger.Info("HTTP_OUT: Задача обновлена",
		zap.String("task_id", id.String()),
		zap.Duration("ms", time.Since(start)),
		zap.Int("http_status", http.StatusOK))

	responseWithValue(w, http.StatusOK, view)
}

func (s *TaskHandler) DeleteTask(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUIDParam(r, "id")
	if !ok {
		badRequest(w, r, "id", "неверный идентификатор задачи")
		return
	}

	if err := s.TaskService.DeleteTask(r.Context(), middleware.GetTenant(r.Context()), id); err != nil {
		handleError(w, r, err)
		return
	}

	logger.Info("HTTP_OUT: Задача удалена",
		zap.String("task_id", id.String()),
		zap.Int("http_status", http.StatusNoContent))

	w.WriteHeader(http.StatusNoContent)
}

func (s *TaskHandler) AttachFile(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUIDParam(r, "id")
	if !ok {
		badRequest(w, r, "id", "неверный идентификатор задачи")
		return
	}

	if !checkContentType(r, "application/json") {
		writeError(w, r, http.StatusUnsupportedMediaType, service.CodeValidation,
			"Content-Type должен быть application/json", nil)
		return
	}

	var request dto.AttachFileRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		badRequest(w, r, "body", "неверное тело запроса: "+err.Error())
		return
	}

	file, err := s.TaskService.AttachFile(r.Context(), middleware.GetTenant(r.Context()), id, request.ToInput())
	if err != nil {
		handleError(w, r, err)
		return
	}

	responseWithValue(w, http.StatusCreated, file)
}

func (s *TaskHandler) DeleteFile(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUIDParam(r, "id")
	if !ok {
		badRequest(w, r, "id", "неверный идентификатор задачи")
		return
	}
	fileID, ok := parseUUIDParam(r, "fileId")
	if !ok {
		badRequest(w, r, "fileId", "неверный идентификатор файла")
		return
	}

	if err := s.TaskService.DeleteFile(r.Context(), middleware.GetTenant(r.Context()), id, fileID); err != nil {
		handleError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
