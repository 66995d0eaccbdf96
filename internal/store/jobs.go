package store

import (
	"database/sql"
	"fmt"
	"time"
)

// ScheduledJob is a recurring or one-off maintenance job driven by the
// scheduler. Schedule holds a schedule document (cron, interval or
// once); Kind selects the executor.
type ScheduledJob struct {
	ID         string
	Name       string
	Kind       string
	Schedule   string
	Status     string
	NextRunAt  *time.Time
	LastStatus string
	LastError  string
	CreatedAt  time.Time
}

func (s *Store) SaveJob(j *ScheduledJob) error {
	if j.Status == "" {
		j.Status = "active"
	}
	_, err := s.db.Exec(`
		INSERT INTO jobs (id, name, kind, schedule, status, next_run_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			kind = excluded.kind,
			schedule = excluded.schedule,
			status = excluded.status,
			next_run_at = excluded.next_run_at`,
		j.ID, j.Name, j.Kind, j.Schedule, j.Status, j.NextRunAt)
	if err != nil {
		return fmt.Errorf("save job: %w", err)
	}
	return nil
}

func (s *Store) GetJob(id string) (*ScheduledJob, error) {
	row := s.db.QueryRow(`
		SELECT id, name, kind, schedule, status, next_run_at,
		       COALESCE(last_status, ''), COALESCE(last_error, ''), created_at
		FROM jobs WHERE id = ?`, id)

	j, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return j, nil
}

// GetDueJobs returns active jobs whose next run is at or before now.
func (s *Store) GetDueJobs(now time.Time) ([]ScheduledJob, error) {
	rows, err := s.db.Query(`
		SELECT id, name, kind, schedule, status, next_run_at,
		       COALESCE(last_status, ''), COALESCE(last_error, ''), created_at
		FROM jobs
		WHERE status = 'active' AND next_run_at IS NOT NULL AND next_run_at <= ?
		ORDER BY next_run_at`, now)
	if err != nil {
		return nil, fmt.Errorf("get due jobs: %w", err)
	}
	defer rows.Close()

	return collectJobs(rows)
}

func (s *Store) ListJobs() ([]ScheduledJob, error) {
	rows, err := s.db.Query(`
		SELECT id, name, kind, schedule, status, next_run_at,
		       COALESCE(last_status, ''), COALESCE(last_error, ''), created_at
		FROM jobs ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	return collectJobs(rows)
}

// UpdateJobRun records the outcome of one execution and the next run
// time. A nil nextRun leaves the job with no pending run.
func (s *Store) UpdateJobRun(id, lastStatus, lastError string, nextRun *time.Time) error {
	_, err := s.db.Exec(`
		UPDATE jobs SET last_status = ?, last_error = ?, next_run_at = ?
		WHERE id = ?`,
		lastStatus, lastError, nextRun, id)
	if err != nil {
		return fmt.Errorf("update job run: %w", err)
	}
	return nil
}

func (s *Store) UpdateJobStatus(id, status string) error {
	_, err := s.db.Exec(`UPDATE jobs SET status = ? WHERE id = ?`, status, id)
	if err != nil {
		return fmt.Errorf("update job status: %w", err)
	}
	return nil
}

func (s *Store) DeleteJob(id string) error {
	_, err := s.db.Exec(`DELETE FROM jobs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete job: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(r rowScanner) (*ScheduledJob, error) {
	var j ScheduledJob
	err := r.Scan(&j.ID, &j.Name, &j.Kind, &j.Schedule, &j.Status,
		&j.NextRunAt, &j.LastStatus, &j.LastError, &j.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &j, nil
}

func collectJobs(rows *sql.Rows) ([]ScheduledJob, error) {
	var jobs []ScheduledJob
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, *j)
	}
	return jobs, rows.Err()
}
