package tasks

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

const (
	maxBodyBytes = 1 << 20

	DefaultDeleteMessage = "Task {id} deleted successfully"
)

// taskRequest is the body of POST /tasks and PUT /tasks/{id}. Category is a
// pointer so a missing field can be told apart from an empty one.
type taskRequest struct {
	Title    string  `json:"title" validate:"notblank"`
	Category *string `json:"category" validate:"required"`
}

type deleteResponse struct {
	Message string `json:"message"`
}

type fieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type errResponse struct {
	Error   string       `json:"error"`
	Message string       `json:"message"`
	Details []fieldError `json:"details,omitempty"`
}

type RouteOption func(*handler)

// WithDeleteMessage sets the confirmation text returned by DELETE. "{id}" is
// replaced with the task id.
func WithDeleteMessage(tmpl string) RouteOption {
	return func(h *handler) {
		if tmpl != "" {
			h.deleteMessage = tmpl
		}
	}
}

func WithLogger(logger *slog.Logger) RouteOption {
	return func(h *handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

type handler struct {
	svc           *Service
	validate      *validator.Validate
	logger        *slog.Logger
	deleteMessage string
}

func RegisterRoutes(r chi.Router, svc *Service, opts ...RouteOption) {
	h := &handler{
		svc:           svc,
		validate:      newValidator(),
		logger:        slog.Default(),
		deleteMessage: DefaultDeleteMessage,
	}
	for _, opt := range opts {
		opt(h)
	}

	r.Post("/tasks", h.createTask)
	r.Get("/tasks", h.listTasks)
	r.Get("/tasks/{id}", h.getTask)
	r.Put("/tasks/{id}", h.updateTask)
	r.Delete("/tasks/{id}", h.deleteTask)
}

func (h *handler) createTask(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeTask(w, r)
	if !ok {
		return
	}

	t, err := h.svc.Create(r.Context(), req.Title, *req.Category)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

func (h *handler) listTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := h.svc.List(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tasks)
}

func (h *handler) getTask(w http.ResponseWriter, r *http.Request) {
	id, ok := h.taskID(w, r)
	if !ok {
		return
	}

	t, err := h.svc.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (h *handler) updateTask(w http.ResponseWriter, r *http.Request) {
	id, ok := h.taskID(w, r)
	if !ok {
		return
	}
	req, ok := h.decodeTask(w, r)
	if !ok {
		return
	}

	t, err := h.svc.Update(r.Context(), id, req.Title, *req.Category)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (h *handler) deleteTask(w http.ResponseWriter, r *http.Request) {
	id, ok := h.taskID(w, r)
	if !ok {
		return
	}

	if err := h.svc.Delete(r.Context(), id); err != nil {
		h.writeError(w, r, err)
		return
	}
	msg := strings.ReplaceAll(h.deleteMessage, "{id}", strconv.FormatInt(id, 10))
	writeJSON(w, http.StatusOK, deleteResponse{Message: msg})
}

func (h *handler) decodeTask(w http.ResponseWriter, r *http.Request) (taskRequest, bool) {
	var req taskRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	err := dec.Decode(&req)
	if err == nil {
		// exactly one JSON value per body
		if extra := dec.Decode(&struct{}{}); !errors.Is(extra, io.EOF) {
			err = errors.New("trailing data after JSON body")
		}
	}
	if err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, errResponse{
			Error:   "invalid_json",
			Message: "request body must be a JSON object",
		})
		return taskRequest{}, false
	}

	if err := h.validate.Struct(req); err != nil {
		var vErrs validator.ValidationErrors
		if !errors.As(err, &vErrs) {
			h.writeError(w, r, err)
			return taskRequest{}, false
		}
		writeJSON(w, http.StatusUnprocessableEntity, errResponse{
			Error:   "validation_error",
			Message: "request body failed validation",
			Details: fieldErrors(vErrs),
		})
		return taskRequest{}, false
	}
	return req, true
}

func (h *handler) taskID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if errors.Is(err, strconv.ErrRange) {
		// well-formed but beyond any id the store can hold
		h.writeError(w, r, ErrTaskNotFound)
		return 0, false
	}
	if err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, errResponse{
			Error:   "validation_error",
			Message: "task id must be an integer",
			Details: []fieldError{{Field: "id", Message: fmt.Sprintf("%q is not an integer", raw)}},
		})
		return 0, false
	}
	return id, true
}

func (h *handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrValidation):
		details := []fieldError(nil)
		if errors.Is(err, ErrTitleRequired) {
			details = []fieldError{{Field: "title", Message: "title is required"}}
		}
		writeJSON(w, http.StatusUnprocessableEntity, errResponse{
			Error:   "validation_error",
			Message: err.Error(),
			Details: details,
		})
	case errors.Is(err, ErrTaskNotFound):
		writeJSON(w, http.StatusNotFound, errResponse{
			Error:   "not_found",
			Message: "Task not found",
		})
	default:
		h.logger.ErrorContext(r.Context(), "task_request_failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		writeJSON(w, http.StatusInternalServerError, errResponse{
			Error:   "unexpected_error",
			Message: "internal server error",
		})
	}
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	return v
}

func fieldErrors(vErrs validator.ValidationErrors) []fieldError {
	out := make([]fieldError, 0, len(vErrs))
	for _, fe := range vErrs {
		var msg string
		switch fe.Tag() {
		case "notblank", "required":
			msg = fe.Field() + " is required"
		default:
			msg = fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag())
		}
		out = append(out, fieldError{Field: fe.Field(), Message: msg})
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
