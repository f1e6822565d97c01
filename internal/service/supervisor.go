package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	gocron "github.com/go-co-op/gocron/v2"

	"github.com/CZERTAINLY/Drydock/internal/executor"
	"github.com/CZERTAINLY/Drydock/internal/log"
	"github.com/CZERTAINLY/Drydock/internal/model"
	"github.com/CZERTAINLY/Drydock/internal/parallel"
	"github.com/CZERTAINLY/Drydock/internal/snapshot"
)

// Executor runs a single job request. *executor.Executor implements it.
type Executor interface {
	Execute(ctx context.Context, req model.JobRequest, logger *slog.Logger) (*executor.Execution, error)
	HasCapacity() bool
}

type Supervisor struct {
	executor  Executor
	reporters []model.Reporter
	oneshot   bool
	scheduler gocron.Scheduler
	jobs      map[string]model.Job
	order     []string
	start     chan string
	done      chan struct{}
	runningMx sync.Mutex
	running   map[string]struct{}
	wg        sync.WaitGroup
}

func NewSupervisor(ctx context.Context, cfg model.Config, exec Executor) (*Supervisor, error) {
	svcCfg := cfg.Service
	reporters, err := reporters(ctx, svcCfg)
	if err != nil {
		return nil, fmt.Errorf("initializing reporters: %w", err)
	}

	var supervisor = &Supervisor{
		executor:  exec,
		reporters: reporters,
		oneshot:   svcCfg.Mode != model.ServiceModeTimer,
		jobs:      make(map[string]model.Job, len(cfg.Jobs)),
		start:     make(chan string, len(cfg.Jobs)+1),
		done:      make(chan struct{}),
		running:   make(map[string]struct{}),
	}
	for _, job := range cfg.Jobs {
		if _, ok := supervisor.jobs[job.Name]; ok {
			return nil, fmt.Errorf("duplicate job name %s", job.Name)
		}
		supervisor.jobs[job.Name] = job
		supervisor.order = append(supervisor.order, job.Name)
	}

	if !supervisor.oneshot {
		supervisor.scheduler, err = newScheduler(ctx, cfg.Jobs, supervisor.Start)
		if err != nil {
			supervisor.closeReporters(ctx)
			return nil, fmt.Errorf("timer mode failed: %w", err)
		}
	}
	return supervisor, nil
}

// WithReporters replaces the reporters created from the configuration.
func (s *Supervisor) WithReporters(ctx context.Context, reporters ...model.Reporter) *Supervisor {
	s.closeReporters(ctx)
	s.reporters = reporters
	return s
}

// Start asks the supervisor to run the named job. It is a signal only and
// returns once the name is queued. Start "**" triggers all jobs. Calls made
// after Do returned are dropped.
func (s *Supervisor) Start(name string) {
	select {
	case s.start <- name:
	case <-s.done:
	}
}

// Do runs the supervisor.
//
// Modes:
//   - Oneshot (manual): all jobs run once, the joined errors of failed jobs
//     and reporters are returned.
//   - Timer: the scheduler triggers jobs, failures are only logged and the
//     loop runs until ctx is cancelled. Cancellation is propagated to the
//     running jobs.
//
// Shutdown (deferred order): scheduler -> wait on running jobs -> reporters.
func (s *Supervisor) Do(ctx context.Context) error {
	slog.DebugContext(ctx, "starting a supervisor", "jobs", len(s.jobs), "oneshot", s.oneshot)
	defer s.closeReporters(ctx)

	if s.oneshot {
		defer close(s.done)
		return s.RunAll(ctx)
	}

	defer s.wg.Wait()
	if s.scheduler != nil {
		s.scheduler.Start()
		defer func() {
			if err := s.scheduler.Shutdown(); err != nil {
				slog.ErrorContext(ctx, "shutting down gocron has failed", "error", err)
			}
		}()
	}
	defer close(s.done)

	for {
		select {
		case <-ctx.Done():
			return nil
		case name := <-s.start:
			s.callStart(ctx, name)
		}
	}
}

// RunAll submits all jobs at once and waits for them. Jobs over the executor
// capacity wait in the executor queue.
func (s *Supervisor) RunAll(ctx context.Context) error {
	jobs := make([]model.Job, 0, len(s.order))
	for _, name := range s.order {
		jobs = append(jobs, s.jobs[name])
	}
	if len(jobs) == 0 {
		slog.WarnContext(ctx, "no jobs configured")
		return nil
	}

	var errs []error
	for report, err := range parallel.NewMap(ctx, len(jobs), s.Run).Iter(parallel.All(jobs)) {
		if err == nil {
			continue
		}
		if report.Job != "" {
			err = fmt.Errorf("job %s: %w", report.Job, err)
		}
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Run executes a single job and sends its report to all reporters.
func (s *Supervisor) Run(ctx context.Context, job model.Job) (model.Report, error) {
	var snap model.Snapshot
	if job.Source != "" {
		snap = snapshot.Dir{Path: job.Source}
	}
	ctx = log.ContextAttrs(ctx, slog.String("job", job.Name))
	logger := slog.Default().With("image", job.Image)

	x, err := s.executor.Execute(ctx, job.Request(snap), logger)
	report := newReport(job, x, err)
	if rerr := s.report(context.WithoutCancel(ctx), report); rerr != nil {
		err = errors.Join(err, rerr)
	}
	return report, err
}

func (s *Supervisor) callStart(ctx context.Context, name string) {
	if name == "**" {
		slog.DebugContext(ctx, "triggering all jobs")
		for _, jobName := range s.order {
			s.callStart(ctx, jobName)
		}
		return
	}

	job, ok := s.jobs[name]
	if !ok {
		slog.WarnContext(ctx, "cannot start job: not known", "job", name)
		return
	}

	s.runningMx.Lock()
	if _, busy := s.running[name]; busy {
		s.runningMx.Unlock()
		slog.WarnContext(ctx, "job still running: skipping", "job", name)
		return
	}
	s.running[name] = struct{}{}
	s.runningMx.Unlock()

	if !s.executor.HasCapacity() {
		slog.InfoContext(ctx, "executor is at capacity: job queued", "job", name)
	}

	s.wg.Go(func() {
		defer func() {
			s.runningMx.Lock()
			delete(s.running, name)
			s.runningMx.Unlock()
		}()
		slog.DebugContext(ctx, "starting a job", "job", name)
		if _, err := s.Run(ctx, job); err != nil {
			slog.ErrorContext(ctx, "job run failed", "job", name, "error", err)
		}
	})
}

func (s *Supervisor) report(ctx context.Context, r model.Report) error {
	var errs []error
	for _, reporter := range s.reporters {
		if err := reporter.Report(ctx, r); err != nil {
			errs = append(errs, fmt.Errorf("reporting: %w", err))
		}
	}
	return errors.Join(errs...)
}

func (s *Supervisor) closeReporters(ctx context.Context) {
	for _, reporter := range s.reporters {
		if closer, ok := reporter.(model.ReportCloser); ok {
			if err := closer.Close(); err != nil {
				slog.ErrorContext(ctx, "closing reporter have failed", "error", err)
			}
		}
	}
	s.reporters = nil
}

func newReport(job model.Job, x *executor.Execution, err error) model.Report {
	r := model.Report{
		Job:   job.Name,
		Image: job.Image,
		State: executor.StateFailed.String(),
	}
	if err != nil {
		r.Error = err.Error()
	}
	if x == nil {
		// rejected before any execution was created
		return r
	}
	r.ID = x.ID
	r.Image = x.Image
	r.OS = x.OS
	r.State = x.Outcome.String()
	r.ExitCode = x.ExitCode
	r.Started = x.Started
	r.Stopped = x.Stopped
	return r
}

func newScheduler(ctx context.Context, jobs []model.Job, startFunc func(string)) (gocron.Scheduler, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("initializing gocron scheduler: %w", err)
	}

	for idx, j := range jobs {
		schedule, err := model.ParseSchedule(j.Schedule)
		if err != nil {
			_ = s.Shutdown()
			return nil, fmt.Errorf("parsing jobs[%d].schedule: %w", idx, err)
		}
		var def gocron.JobDefinition
		if schedule.Every > 0 {
			def = gocron.DurationJob(schedule.Every)
		} else {
			def = gocron.CronJob(schedule.Cron, false)
		}
		slog.DebugContext(ctx, "successfully parsed", "job", j.Name, "schedule", j.Schedule)

		_, err = s.NewJob(
			def,
			gocron.NewTask(startFunc, j.Name),
			gocron.WithName(j.Name),
		)
		if err != nil {
			_ = s.Shutdown()
			return nil, fmt.Errorf("initializing gocron job %s: %w", j.Name, err)
		}
	}
	return s, nil
}
