package tasks

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBackend = errors.New("disk on fire")

// failingRepo fails every call with err.
type failingRepo struct{ err error }

func (f failingRepo) Create(context.Context, string, string) (Task, error) { return Task{}, f.err }
func (f failingRepo) List(context.Context) ([]Task, error)                 { return nil, f.err }
func (f failingRepo) Get(context.Context, int64) (Task, error)             { return Task{}, f.err }
func (f failingRepo) Update(context.Context, int64, string, string) (Task, error) {
	return Task{}, f.err
}
func (f failingRepo) Delete(context.Context, int64) error { return f.err }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func newTestService(opts ...RepoOption) (*Service, *InMemoryRepo) {
	repo := NewInMemoryRepo(opts...)
	return NewService(repo, discardLogger()), repo
}

func TestService_CreateValidatesTitle(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()

	for _, title := range []string{"", "   ", "\t\n"} {
		_, err := svc.Create(ctx, title, "Home")
		assert.ErrorIs(t, err, ErrValidation)
		assert.ErrorIs(t, err, ErrTitleRequired)
	}

	list, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestService_CreateAllowsEmptyCategory(t *testing.T) {
	svc, _ := newTestService()

	got, err := svc.Create(context.Background(), "inbox", "")
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.ID)
	assert.Equal(t, "", got.Category)
}

func TestService_NotFoundTranslation(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	_, err := svc.Get(ctx, 7)
	assert.ErrorIs(t, err, ErrTaskNotFound)

	_, err = svc.Update(ctx, 7, "title", "cat")
	assert.ErrorIs(t, err, ErrTaskNotFound)

	assert.ErrorIs(t, svc.Delete(ctx, 7), ErrTaskNotFound)
}

func TestService_UpdateValidatesBeforeLookup(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.Update(context.Background(), 7, " ", "cat")
	assert.ErrorIs(t, err, ErrValidation)
	assert.NotErrorIs(t, err, ErrTaskNotFound)
}

func TestService_UpdateKeepsCreatedAt(t *testing.T) {
	svc, _ := newTestService(WithClock(newStepClock().Now))
	ctx := context.Background()

	created, err := svc.Create(ctx, "Buy bread", "Home")
	require.NoError(t, err)
	updated, err := svc.Update(ctx, created.ID, "Buy pastries", "Home")
	require.NoError(t, err)

	assert.Equal(t, created.ID, updated.ID)
	assert.Equal(t, "Buy pastries", updated.Title)
	assert.True(t, updated.CreatedAt.Equal(created.CreatedAt))
	assert.True(t, updated.UpdatedAt.After(created.UpdatedAt))
}

func TestService_DeleteThenGet(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	created, err := svc.Create(ctx, "temp", "misc")
	require.NoError(t, err)
	require.NoError(t, svc.Delete(ctx, created.ID))

	_, err = svc.Get(ctx, created.ID)
	assert.ErrorIs(t, err, ErrTaskNotFound)
	assert.ErrorIs(t, svc.Delete(ctx, created.ID), ErrTaskNotFound)
}

func TestService_BackendErrorsAreWrapped(t *testing.T) {
	svc := NewService(failingRepo{err: errBackend}, discardLogger())
	ctx := context.Background()

	_, err := svc.Create(ctx, "t", "c")
	assert.ErrorIs(t, err, errBackend)
	assert.NotErrorIs(t, err, ErrTaskNotFound)

	_, err = svc.List(ctx)
	assert.ErrorIs(t, err, errBackend)

	_, err = svc.Get(ctx, 1)
	assert.ErrorIs(t, err, errBackend)

	assert.ErrorIs(t, svc.Delete(ctx, 1), errBackend)
}

func TestOutcomeOf(t *testing.T) {
	assert.Equal(t, "ok", outcomeOf(nil))
	assert.Equal(t, "invalid", outcomeOf(validateTitle("")))
	assert.Equal(t, "not_found", outcomeOf(ErrTaskNotFound))
	assert.Equal(t, "error", outcomeOf(errBackend))
}
