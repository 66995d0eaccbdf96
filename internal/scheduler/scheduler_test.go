package scheduler

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mtzanidakis/agency/internal/config"
	"github.com/mtzanidakis/agency/internal/store"
)

func newTestScheduler(t *testing.T) (*Scheduler, *store.Store) {
	t.Helper()

	st, err := store.New(config.StoreConfig{Path: filepath.Join(t.TempDir(), "test.db")})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	return New(st, nil, time.Second), st
}

func TestEnsureJobSeedsNextRun(t *testing.T) {
	s, st := newTestScheduler(t)

	err := s.EnsureJob("job-1", "progress report", "progress_report", `{"kind":"interval","interval_ms":60000}`)
	if err != nil {
		t.Fatalf("ensure job: %v", err)
	}

	job, err := st.GetJob("job-1")
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if job == nil {
		t.Fatal("job not persisted")
	}
	if job.NextRunAt == nil {
		t.Fatal("next run not seeded")
	}
	if !job.NextRunAt.After(time.Now()) {
		t.Errorf("next run %v not in the future", job.NextRunAt)
	}

	// A second ensure must not reset existing state.
	past := time.Now().Add(-time.Minute)
	if err := st.UpdateJobRun("job-1", "success", "", &past); err != nil {
		t.Fatalf("update run: %v", err)
	}
	if err := s.EnsureJob("job-1", "progress report", "progress_report", `{"kind":"interval","interval_ms":60000}`); err != nil {
		t.Fatalf("re-ensure job: %v", err)
	}
	job, _ = st.GetJob("job-1")
	if !job.NextRunAt.Before(time.Now()) {
		t.Error("re-ensure overwrote existing job state")
	}
}

func TestEnsureJobRejectsBadSchedule(t *testing.T) {
	s, _ := newTestScheduler(t)
	if err := s.EnsureJob("job-x", "broken", "noop", "not a schedule"); err == nil {
		t.Fatal("expected error for invalid schedule")
	}
}

func TestExecuteDueJob(t *testing.T) {
	s, st := newTestScheduler(t)

	var runs int
	s.RegisterExecutor("touch", func(ctx context.Context) error {
		runs++
		return nil
	})

	past := time.Now().Add(-time.Minute)
	err := st.SaveJob(&store.ScheduledJob{
		ID:        "job-2",
		Name:      "touch",
		Kind:      "touch",
		Schedule:  `{"kind":"interval","interval_ms":60000}`,
		NextRunAt: &past,
	})
	if err != nil {
		t.Fatalf("save job: %v", err)
	}

	s.poll(context.Background())

	if runs != 1 {
		t.Fatalf("executor ran %d times, want 1", runs)
	}

	job, _ := st.GetJob("job-2")
	if job.LastStatus != "success" {
		t.Errorf("last status = %q, want success", job.LastStatus)
	}
	if job.NextRunAt == nil || !job.NextRunAt.After(time.Now()) {
		t.Errorf("next run not advanced: %v", job.NextRunAt)
	}

	// No longer due; a second poll must not run it again.
	s.poll(context.Background())
	if runs != 1 {
		t.Errorf("executor ran %d times after reschedule, want 1", runs)
	}
}

func TestExecutorErrorRecorded(t *testing.T) {
	s, st := newTestScheduler(t)

	s.RegisterExecutor("boom", func(ctx context.Context) error {
		return errors.New("disk full")
	})

	past := time.Now().Add(-time.Minute)
	st.SaveJob(&store.ScheduledJob{
		ID:        "job-3",
		Name:      "boom",
		Kind:      "boom",
		Schedule:  `{"kind":"interval","interval_ms":60000}`,
		NextRunAt: &past,
	})

	s.poll(context.Background())

	job, _ := st.GetJob("job-3")
	if job.LastStatus != "error" {
		t.Errorf("last status = %q, want error", job.LastStatus)
	}
	if !strings.Contains(job.LastError, "disk full") {
		t.Errorf("last error = %q", job.LastError)
	}
}

func TestUnboundKindFails(t *testing.T) {
	s, st := newTestScheduler(t)

	past := time.Now().Add(-time.Minute)
	st.SaveJob(&store.ScheduledJob{
		ID:        "job-4",
		Name:      "orphan",
		Kind:      "nobody_home",
		Schedule:  `{"kind":"interval","interval_ms":60000}`,
		NextRunAt: &past,
	})

	s.poll(context.Background())

	job, _ := st.GetJob("job-4")
	if job.LastStatus != "error" {
		t.Errorf("last status = %q, want error", job.LastStatus)
	}
	if !strings.Contains(job.LastError, "no executor") {
		t.Errorf("last error = %q", job.LastError)
	}
}

func TestOneOffJobCompletes(t *testing.T) {
	s, st := newTestScheduler(t)

	var runs int
	s.RegisterExecutor("touch", func(ctx context.Context) error {
		runs++
		return nil
	})

	past := time.Now().Add(-time.Minute)
	st.SaveJob(&store.ScheduledJob{
		ID:        "job-5",
		Name:      "one off",
		Kind:      "touch",
		Schedule:  `{"kind":"once","at_ms":` + "1" + `}`,
		NextRunAt: &past,
	})

	s.poll(context.Background())

	if runs != 1 {
		t.Fatalf("executor ran %d times, want 1", runs)
	}
	job, _ := st.GetJob("job-5")
	if job.Status != "completed" {
		t.Errorf("status = %q, want completed", job.Status)
	}
	if job.NextRunAt != nil {
		t.Errorf("one-off job kept a next run: %v", job.NextRunAt)
	}
}
