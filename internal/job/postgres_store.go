package job

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS research_jobs (
  id TEXT PRIMARY KEY,
  topic TEXT NOT NULL,
  mode TEXT NOT NULL,
  status TEXT NOT NULL,
  report TEXT,
  logs JSONB NOT NULL DEFAULT '[]',
  sources JSONB NOT NULL DEFAULT '[]',
  created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS research_jobs_created_at ON research_jobs (created_at DESC);
`

const uniqueViolation = "23505"

type PostgresStore struct {
	pool *pgxpool.Pool
}

func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) Create(ctx context.Context, j *Job) error {
	logs, sources, err := encodeLists(j.Logs, j.Sources)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO research_jobs (id, topic, mode, status, report, logs, sources, created_at)
         VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7::jsonb, $8)`,
		j.ID, j.Topic, string(j.Mode), string(j.Status), nullable(j.Report), logs, sources, j.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("%w: %s", ErrDuplicateID, j.ID)
		}
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*Job, error) {
	var (
		j            Job
		mode, status string
		report       *string
		logs         []byte
		sources      []byte
		createdAt    time.Time
	)
	err := s.pool.QueryRow(ctx,
		`SELECT id, topic, mode, status, report, logs::text, sources::text, created_at
           FROM research_jobs WHERE id = $1`, id,
	).Scan(&j.ID, &j.Topic, &mode, &status, &report, &logs, &sources, &createdAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("get job: %w", err)
	}
	j.Mode = Mode(mode)
	j.Status = Status(status)
	if report != nil {
		j.Report = *report
	}
	j.CreatedAt = createdAt.UTC()
	if err := decodeLists(&j, logs, sources); err != nil {
		return nil, err
	}
	return &j, nil
}

func (s *PostgresStore) UpdateStatus(ctx context.Context, id string, u Update) error {
	logs, sources, err := encodeLists(u.Logs, u.Sources)
	if err != nil {
		return err
	}
	var tag pgconn.CommandTag
	if u.Report != nil {
		tag, err = s.pool.Exec(ctx,
			`UPDATE research_jobs SET status = $1, logs = $2::jsonb, sources = $3::jsonb, report = $4 WHERE id = $5`,
			string(u.Status), logs, sources, nullable(*u.Report), id)
	} else {
		tag, err = s.pool.Exec(ctx,
			`UPDATE research_jobs SET status = $1, logs = $2::jsonb, sources = $3::jsonb WHERE id = $4`,
			string(u.Status), logs, sources, id)
	}
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	return expectRows(tag, id)
}

func (s *PostgresStore) ListSummaries(ctx context.Context) ([]Summary, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, topic, status, created_at FROM research_jobs ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	out := []Summary{}
	for rows.Next() {
		var (
			sum    Summary
			status string
		)
		if err := rows.Scan(&sum.ID, &sum.Topic, &status, &sum.CreatedAt); err != nil {
			return nil, err
		}
		sum.Status = Status(status)
		sum.CreatedAt = sum.CreatedAt.UTC()
		out = append(out, sum)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM research_jobs WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete job: %w", err)
	}
	return expectRows(tag, id)
}

func (s *PostgresStore) RenameTopic(ctx context.Context, id, topic string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE research_jobs SET topic = $1 WHERE id = $2`, topic, id)
	if err != nil {
		return fmt.Errorf("rename job: %w", err)
	}
	return expectRows(tag, id)
}

func expectRows(tag pgconn.CommandTag, id string) error {
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}
