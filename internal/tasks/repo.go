package tasks

import (
	"context"
	"sync"
	"time"
)

// Repository is the storage capability set the use-case layer depends on.
type Repository interface {
	Create(ctx context.Context, title, category string) (Task, error)
	List(ctx context.Context) ([]Task, error)
	Get(ctx context.Context, id int64) (Task, error)
	Update(ctx context.Context, id int64, title, category string) (Task, error)
	Delete(ctx context.Context, id int64) error
}

// Clock returns the current time. Repositories stamp tasks with it.
type Clock func() time.Time

func systemClock() time.Time { return time.Now().UTC() }

type RepoOption func(*repoOptions)

type repoOptions struct {
	now Clock
}

// WithClock overrides the time source used for created_at/updated_at.
func WithClock(c Clock) RepoOption {
	return func(o *repoOptions) {
		if c != nil {
			o.now = c
		}
	}
}

func buildRepoOptions(opts []RepoOption) repoOptions {
	o := repoOptions{now: systemClock}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

type InMemoryRepo struct {
	mu    sync.Mutex
	now   Clock
	seq   int64
	order []int64
	store map[int64]Task
}

func NewInMemoryRepo(opts ...RepoOption) *InMemoryRepo {
	o := buildRepoOptions(opts)
	return &InMemoryRepo{
		now:   o.now,
		store: make(map[int64]Task),
	}
}

func (r *InMemoryRepo) Create(_ context.Context, title, category string) (Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.seq++
	now := r.now()
	t := Task{
		ID:        r.seq,
		Title:     title,
		Category:  category,
		CreatedAt: now,
		UpdatedAt: now,
	}
	r.store[t.ID] = t
	r.order = append(r.order, t.ID)
	return t, nil
}

func (r *InMemoryRepo) List(_ context.Context) ([]Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Task, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.store[id])
	}
	return out, nil
}

func (r *InMemoryRepo) Get(_ context.Context, id int64) (Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.store[id]
	if !ok {
		return Task{}, ErrNotFound
	}
	return t, nil
}

func (r *InMemoryRepo) Update(_ context.Context, id int64, title, category string) (Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.store[id]
	if !ok {
		return Task{}, ErrNotFound
	}
	t.Title = title
	t.Category = category
	// created_at <= updated_at even if the clock steps backwards
	if now := r.now(); now.After(t.CreatedAt) {
		t.UpdatedAt = now
	} else {
		t.UpdatedAt = t.CreatedAt
	}
	r.store[id] = t
	return t, nil
}

func (r *InMemoryRepo) Delete(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.store[id]; !ok {
		return ErrNotFound
	}
	delete(r.store, id)
	for i, v := range r.order {
		if v == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return nil
}
