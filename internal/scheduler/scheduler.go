// Package scheduler runs persisted maintenance jobs on their schedule:
// periodic progress reports to the user, message archive pruning and
// stale node cleanup.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mtzanidakis/agency/internal/natsbus"
	"github.com/mtzanidakis/agency/internal/schedule"
	"github.com/mtzanidakis/agency/internal/store"
)

// Executor runs one job kind. Implementations must be safe for
// repeated invocation.
type Executor func(ctx context.Context) error

type Scheduler struct {
	store        *store.Store
	natsClient   *natsbus.Client
	pollInterval time.Duration
	executors    map[string]Executor
	reloadCh     chan struct{}
}

func New(s *store.Store, client *natsbus.Client, pollInterval time.Duration) *Scheduler {
	return &Scheduler{
		store:        s,
		natsClient:   client,
		pollInterval: pollInterval,
		executors:    make(map[string]Executor),
		reloadCh:     make(chan struct{}, 1),
	}
}

// RegisterExecutor binds a job kind to its executor. Jobs with an
// unbound kind fail with a recorded error instead of silently passing.
func (s *Scheduler) RegisterExecutor(kind string, exec Executor) {
	s.executors[kind] = exec
}

// EnsureJob persists a job if it does not exist yet, seeding its first
// run from the schedule document. Existing jobs keep their state.
func (s *Scheduler) EnsureJob(id, name, kind, rawSchedule string) error {
	existing, err := s.store.GetJob(id)
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}

	normalized, err := schedule.Normalize(rawSchedule)
	if err != nil {
		return err
	}
	return s.store.SaveJob(&store.ScheduledJob{
		ID:        id,
		Name:      name,
		Kind:      kind,
		Schedule:  normalized,
		NextRunAt: schedule.NextRun(normalized),
	})
}

// UpdatePollInterval changes the poll cadence and signals the run loop
// to reset its ticker.
func (s *Scheduler) UpdatePollInterval(d time.Duration) {
	s.pollInterval = d
	select {
	case s.reloadCh <- struct{}{}:
	default:
	}
}

func (s *Scheduler) Start(ctx context.Context) {
	if s.pollInterval == 0 {
		s.pollInterval = 30 * time.Second
	}

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	slog.Info("scheduler started", "poll_interval", s.pollInterval)

	for {
		select {
		case <-ctx.Done():
			slog.Info("scheduler stopped")
			return
		case <-s.reloadCh:
			ticker.Reset(s.pollInterval)
			slog.Info("scheduler poll interval updated", "poll_interval", s.pollInterval)
		case <-ticker.C:
			s.poll(ctx)
		}
	}
}

func (s *Scheduler) poll(ctx context.Context) {
	jobs, err := s.store.GetDueJobs(time.Now())
	if err != nil {
		slog.Error("failed to get due jobs", "error", err)
		return
	}

	for _, job := range jobs {
		s.execute(ctx, job)
	}
}

func (s *Scheduler) execute(ctx context.Context, job store.ScheduledJob) {
	slog.Info("executing job", "id", job.ID, "name", job.Name, "kind", job.Kind)

	var runErr error
	if exec, ok := s.executors[job.Kind]; ok {
		runErr = exec(ctx)
	} else {
		runErr = fmt.Errorf("no executor for job kind %q", job.Kind)
	}

	lastStatus := "success"
	var lastError string
	if runErr != nil {
		lastStatus = "error"
		lastError = runErr.Error()
		slog.Error("job execution failed", "id", job.ID, "error", runErr)
	}

	nextRun := schedule.NextRun(job.Schedule)

	if err := s.store.UpdateJobRun(job.ID, lastStatus, lastError, nextRun); err != nil {
		slog.Error("failed to update job run", "id", job.ID, "error", err)
	}

	s.publishJobEvent(job, lastStatus)

	// A job with no further runs is a one-off that just completed.
	if nextRun == nil {
		if err := s.store.UpdateJobStatus(job.ID, "completed"); err != nil {
			slog.Error("failed to complete job", "id", job.ID, "error", err)
		}
	}
}

func (s *Scheduler) publishJobEvent(job store.ScheduledJob, status string) {
	if s.natsClient == nil {
		return
	}

	event := map[string]any{
		"type":      "job_executed",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"data": map[string]any{
			"id":     job.ID,
			"name":   job.Name,
			"kind":   job.Kind,
			"status": status,
		},
	}
	if err := s.natsClient.PublishJSON(natsbus.TopicEventsJob(job.ID), event); err != nil {
		slog.Warn("failed to publish job event", "id", job.ID, "error", err)
	}
}
