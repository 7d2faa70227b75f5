package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/pressly/goose/v3"
	"modernc.org/sqlite"

	"github.com/bnema/mediadesk/internal/domain"
	"github.com/bnema/mediadesk/internal/port"
)

//go:embed migrations/*.sql
var migrations embed.FS

type Store struct {
	db *sql.DB
}

var hookOnce sync.Once

func registerHook() {
	hookOnce.Do(func() {
		sqlite.RegisterConnectionHook(func(conn sqlite.ExecQuerierContext, dsn string) error {
			pragmas := []string{
				"PRAGMA journal_mode = WAL",
				"PRAGMA busy_timeout = 5000",
				"PRAGMA synchronous = NORMAL",
				"PRAGMA foreign_keys = ON",
			}
			for _, p := range pragmas {
				if _, err := conn.ExecContext(context.Background(), p, nil); err != nil {
					return fmt.Errorf("execute %s: %w", p, err)
				}
			}
			return nil
		})
	})
}

func NewStore(dataDir string) (*Store, error) {
	registerHook()

	db, err := sql.Open("sqlite", filepath.Join(dataDir, "mediadesk.db"))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Single writer; WAL still lets readers through.
	db.SetMaxOpenConns(1)

	goose.SetBaseFS(migrations)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect("sqlite3"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set goose dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Users

func (s *Store) HasUser(ctx context.Context) (bool, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *Store) GetUser(ctx context.Context, username string) (*domain.User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, username, password_hash, created_at FROM users WHERE username = ?`, username)
	return scanUser(row)
}

func (s *Store) GetUserByID(ctx context.Context, id int64) (*domain.User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, username, password_hash, created_at FROM users WHERE id = ?`, id)
	return scanUser(row)
}

func (s *Store) CreateUser(ctx context.Context, username, passwordHash string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (username, password_hash, created_at) VALUES (?, ?, ?)`,
		username, passwordHash, time.Now().UTC())
	return err
}

func (s *Store) UpdatePassword(ctx context.Context, id int64, passwordHash string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE users SET password_hash = ? WHERE id = ?`, passwordHash, id)
	if err != nil {
		return err
	}
	return expectOneRow(res)
}

func scanUser(row *sql.Row) (*domain.User, error) {
	var u domain.User
	if err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

// Preferences

func (s *Store) Get(ctx context.Context, user, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM preferences WHERE username = ? AND key = ?`, user, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", port.ErrPreferenceNotSet
	}
	return value, err
}

func (s *Store) Set(ctx context.Context, user, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO preferences (username, key, value, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (username, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		user, key, value, time.Now().UTC())
	return err
}

func (s *Store) Delete(ctx context.Context, user, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM preferences WHERE username = ? AND key = ?`, user, key)
	return err
}

// Submissions

func (s *Store) SaveSubmission(ctx context.Context, sub *domain.Submission) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO submissions (id, job_id, kind, title, start_time, end_time, submitted_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		sub.ID, sub.JobID, string(sub.Kind), sub.Title, sub.StartTime, sub.EndTime, sub.SubmittedBy, sub.CreatedAt.UTC())
	return err
}

func (s *Store) GetSubmissionByJob(ctx context.Context, jobID string) (*domain.Submission, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, job_id, kind, title, start_time, end_time, submitted_by, created_at
		FROM submissions WHERE job_id = ?`, jobID)
	sub, err := scanSubmission(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return sub, err
}

func (s *Store) ListSubmissions(ctx context.Context, limit int) ([]*domain.Submission, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, job_id, kind, title, start_time, end_time, submitted_by, created_at
		FROM submissions ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck

	var result []*domain.Submission
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, sub)
	}
	return result, rows.Err()
}

func (s *Store) DeleteSubmission(ctx context.Context, jobID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM submissions WHERE job_id = ?`, jobID)
	if err != nil {
		return err
	}
	return expectOneRow(res)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSubmission(sc scanner) (*domain.Submission, error) {
	var sub domain.Submission
	var kind string
	if err := sc.Scan(&sub.ID, &sub.JobID, &kind, &sub.Title, &sub.StartTime, &sub.EndTime, &sub.SubmittedBy, &sub.CreatedAt); err != nil {
		return nil, err
	}
	sub.Kind = domain.JobKind(kind)
	return &sub, nil
}

func expectOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

var (
	_ port.UserStore       = (*Store)(nil)
	_ port.PreferenceStore = (*Store)(nil)
	_ port.SubmissionStore = (*Store)(nil)
)
