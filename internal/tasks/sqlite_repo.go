package tasks

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var embeddedMigrations embed.FS

// InMemorySQLiteDSN is a private in-memory database. It only lives as long as
// the repo's single connection.
const InMemorySQLiteDSN = "file::memory:?_pragma=busy_timeout(5000)"

type SQLiteRepo struct {
	db  *sql.DB
	now Clock
}

func NewSQLiteRepo(dsn string, opts ...RepoOption) (*SQLiteRepo, error) {
	o := buildRepoOptions(opts)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One connection: serializes writers and keeps ":memory:" databases shared.
	db.SetMaxOpenConns(1)

	// Reasonable pragmas for an app server
	if _, err := db.Exec(`
		PRAGMA journal_mode=WAL;
		PRAGMA synchronous=NORMAL;
		PRAGMA foreign_keys=ON;
	`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite pragmas: %w", err)
	}
	return &SQLiteRepo{db: db, now: o.now}, nil
}

func (r *SQLiteRepo) Close() error { return r.db.Close() }

// ApplyMigrations brings the schema up to date using the embedded goose migrations.
func (r *SQLiteRepo) ApplyMigrations(ctx context.Context) error {
	fsys, err := fs.Sub(embeddedMigrations, "migrations")
	if err != nil {
		return err
	}
	provider, err := goose.NewProvider(goose.DialectSQLite3, r.db, fsys)
	if err != nil {
		return fmt.Errorf("goose provider: %w", err)
	}
	if _, err := provider.Up(ctx); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

func (r *SQLiteRepo) Create(ctx context.Context, title, category string) (Task, error) {
	now := r.now()
	stamp := now.Format(time.RFC3339Nano)
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO tasks (title, category, created_at, updated_at)
		VALUES (?, ?, ?, ?)
	`, title, category, stamp, stamp)
	if err != nil {
		return Task{}, fmt.Errorf("insert task: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Task{}, err
	}
	return Task{
		ID:        id,
		Title:     title,
		Category:  category,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (r *SQLiteRepo) List(ctx context.Context) ([]Task, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, title, category, created_at, updated_at
		FROM tasks
		ORDER BY id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	out := []Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *SQLiteRepo) Get(ctx context.Context, id int64) (Task, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, title, category, created_at, updated_at
		FROM tasks
		WHERE id = ?
	`, id)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Task{}, ErrNotFound
	}
	return t, err
}

func (r *SQLiteRepo) Update(ctx context.Context, id int64, title, category string) (Task, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return Task{}, err
	}
	defer func() { _ = tx.Rollback() }()

	var created string
	err = tx.QueryRowContext(ctx, `SELECT created_at FROM tasks WHERE id = ?`, id).Scan(&created)
	if errors.Is(err, sql.ErrNoRows) {
		return Task{}, ErrNotFound
	}
	if err != nil {
		return Task{}, fmt.Errorf("load task %d: %w", id, err)
	}
	createdAt, err := time.Parse(time.RFC3339Nano, created)
	if err != nil {
		return Task{}, fmt.Errorf("task %d created_at: %w", id, err)
	}

	updatedAt := r.now()
	if updatedAt.Before(createdAt) {
		updatedAt = createdAt
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE tasks SET title = ?, category = ?, updated_at = ?
		WHERE id = ?
	`, title, category, updatedAt.Format(time.RFC3339Nano), id); err != nil {
		return Task{}, fmt.Errorf("update task %d: %w", id, err)
	}
	if err := tx.Commit(); err != nil {
		return Task{}, err
	}
	return Task{
		ID:        id,
		Title:     title,
		Category:  category,
		CreatedAt: createdAt,
		UpdatedAt: updatedAt,
	}, nil
}

func (r *SQLiteRepo) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete task %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(s rowScanner) (Task, error) {
	var (
		task             Task
		created, updated string
	)
	if err := s.Scan(&task.ID, &task.Title, &task.Category, &created, &updated); err != nil {
		return Task{}, err
	}
	var err error
	if task.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
		return Task{}, fmt.Errorf("task %d created_at: %w", task.ID, err)
	}
	if task.UpdatedAt, err = time.Parse(time.RFC3339Nano, updated); err != nil {
		return Task{}, fmt.Errorf("task %d updated_at: %w", task.ID, err)
	}
	return task, nil
}

// SQLiteFileDSN turns a filesystem path into a DSN like
// file:/absolute/path?_pragma=busy_timeout(5000), creating the parent directory.
func SQLiteFileDSN(path string) (string, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	return "file:" + filepath.ToSlash(abs) + "?_pragma=busy_timeout(5000)", nil
}
