package job

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS jobs (
  id TEXT PRIMARY KEY,
  topic TEXT NOT NULL,
  mode TEXT NOT NULL,
  status TEXT NOT NULL,
  report TEXT,
  logs TEXT NOT NULL DEFAULT '[]',
  sources TEXT NOT NULL DEFAULT '[]',
  created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS jobs_created_at ON jobs (created_at DESC);
`

// SQLiteStore keeps jobs in a single SQLite table with JSON-encoded logs and
// sources.
type SQLiteStore struct {
	db *sql.DB
}

func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One connection serialises writers and keeps :memory: databases shared.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) Create(ctx context.Context, j *Job) error {
	logs, sources, err := encodeLists(j.Logs, j.Sources)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO jobs (id, topic, mode, status, report, logs, sources, created_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		j.ID, j.Topic, string(j.Mode), string(j.Status), nullable(j.Report), logs, sources, j.CreatedAt.UnixNano(),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return fmt.Errorf("%w: %s", ErrDuplicateID, j.ID)
		}
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (*Job, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, topic, mode, status, report, logs, sources, created_at FROM jobs WHERE id = ?`, id)

	var (
		j              Job
		mode, status   string
		report         sql.NullString
		logs, sources  string
		createdAtNanos int64
	)
	if err := row.Scan(&j.ID, &j.Topic, &mode, &status, &report, &logs, &sources, &createdAtNanos); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("get job: %w", err)
	}
	j.Mode = Mode(mode)
	j.Status = Status(status)
	j.Report = report.String
	j.CreatedAt = time.Unix(0, createdAtNanos).UTC()
	if err := decodeLists(&j, []byte(logs), []byte(sources)); err != nil {
		return nil, err
	}
	return &j, nil
}

func (s *SQLiteStore) UpdateStatus(ctx context.Context, id string, u Update) error {
	logs, sources, err := encodeLists(u.Logs, u.Sources)
	if err != nil {
		return err
	}
	var res sql.Result
	if u.Report != nil {
		res, err = s.db.ExecContext(ctx,
			`UPDATE jobs SET status = ?, logs = ?, sources = ?, report = ? WHERE id = ?`,
			string(u.Status), logs, sources, nullable(*u.Report), id)
	} else {
		res, err = s.db.ExecContext(ctx,
			`UPDATE jobs SET status = ?, logs = ?, sources = ? WHERE id = ?`,
			string(u.Status), logs, sources, id)
	}
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	return expectOneRow(res, id)
}

func (s *SQLiteStore) ListSummaries(ctx context.Context) ([]Summary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, topic, status, created_at FROM jobs ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	out := []Summary{}
	for rows.Next() {
		var (
			sum    Summary
			status string
			nanos  int64
		)
		if err := rows.Scan(&sum.ID, &sum.Topic, &status, &nanos); err != nil {
			return nil, err
		}
		sum.Status = Status(status)
		sum.CreatedAt = time.Unix(0, nanos).UTC()
		out = append(out, sum)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM jobs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete job: %w", err)
	}
	return expectOneRow(res, id)
}

func (s *SQLiteStore) RenameTopic(ctx context.Context, id, topic string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE jobs SET topic = ? WHERE id = ?`, topic, id)
	if err != nil {
		return fmt.Errorf("rename job: %w", err)
	}
	return expectOneRow(res, id)
}

func expectOneRow(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func encodeLists(logs, sources []string) (string, string, error) {
	if logs == nil {
		logs = []string{}
	}
	if sources == nil {
		sources = []string{}
	}
	l, err := json.Marshal(logs)
	if err != nil {
		return "", "", fmt.Errorf("marshal logs: %w", err)
	}
	src, err := json.Marshal(sources)
	if err != nil {
		return "", "", fmt.Errorf("marshal sources: %w", err)
	}
	return string(l), string(src), nil
}

func decodeLists(j *Job, logs, sources []byte) error {
	j.Logs = []string{}
	j.Sources = []string{}
	if len(logs) > 0 {
		if err := json.Unmarshal(logs, &j.Logs); err != nil {
			return fmt.Errorf("unmarshal logs: %w", err)
		}
	}
	if len(sources) > 0 {
		if err := json.Unmarshal(sources, &j.Sources); err != nil {
			return fmt.Errorf("unmarshal sources: %w", err)
		}
	}
	return nil
}
