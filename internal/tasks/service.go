package tasks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Service holds the task use cases. It validates input, checks existence before
// mutations, and maps repository misses to ErrTaskNotFound.
type Service struct {
	repo   Repository
	logger *slog.Logger
	tracer trace.Tracer
}

func NewService(repo Repository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:   repo,
		logger: logger,
		tracer: otel.Tracer("tasks"),
	}
}

func (s *Service) Create(ctx context.Context, title, category string) (t Task, err error) {
	ctx, span := s.start(ctx, "create")
	defer func() { s.finish(span, "create", err) }()

	if err := validateTitle(title); err != nil {
		return Task{}, err
	}
	t, err = s.repo.Create(ctx, title, category)
	if err != nil {
		return Task{}, fmt.Errorf("create task: %w", err)
	}
	span.SetAttributes(attribute.Int64("task.id", t.ID))
	s.logger.DebugContext(ctx, "task_created", slog.Int64("id", t.ID))
	return t, nil
}

func (s *Service) List(ctx context.Context) (out []Task, err error) {
	ctx, span := s.start(ctx, "list")
	defer func() { s.finish(span, "list", err) }()

	out, err = s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	span.SetAttributes(attribute.Int("task.count", len(out)))
	return out, nil
}

func (s *Service) Get(ctx context.Context, id int64) (t Task, err error) {
	ctx, span := s.start(ctx, "get", attribute.Int64("task.id", id))
	defer func() { s.finish(span, "get", err) }()

	return s.get(ctx, id)
}

func (s *Service) Update(ctx context.Context, id int64, title, category string) (t Task, err error) {
	ctx, span := s.start(ctx, "update", attribute.Int64("task.id", id))
	defer func() { s.finish(span, "update", err) }()

	if err := validateTitle(title); err != nil {
		return Task{}, err
	}
	if _, err := s.get(ctx, id); err != nil {
		return Task{}, err
	}
	t, err = s.repo.Update(ctx, id, title, category)
	if err != nil {
		return Task{}, translate(err, "update task %d", id)
	}
	s.logger.DebugContext(ctx, "task_updated", slog.Int64("id", id))
	return t, nil
}

func (s *Service) Delete(ctx context.Context, id int64) (err error) {
	ctx, span := s.start(ctx, "delete", attribute.Int64("task.id", id))
	defer func() { s.finish(span, "delete", err) }()

	if _, err := s.get(ctx, id); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return translate(err, "delete task %d", id)
	}
	s.logger.DebugContext(ctx, "task_deleted", slog.Int64("id", id))
	return nil
}

func (s *Service) get(ctx context.Context, id int64) (Task, error) {
	t, err := s.repo.Get(ctx, id)
	if err != nil {
		return Task{}, translate(err, "get task %d", id)
	}
	return t, nil
}

func (s *Service) start(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "tasks."+op, trace.WithAttributes(attrs...))
}

func (s *Service) finish(span trace.Span, op string, err error) {
	taskOperationsTotal.WithLabelValues(op, outcomeOf(err)).Inc()
	if err != nil && !errors.Is(err, ErrValidation) && !errors.Is(err, ErrTaskNotFound) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func translate(err error, format string, args ...any) error {
	if errors.Is(err, ErrNotFound) {
		return ErrTaskNotFound
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

func validateTitle(title string) error {
	if strings.TrimSpace(title) == "" {
		return fmt.Errorf("%w: %w", ErrValidation, ErrTitleRequired)
	}
	return nil
}
