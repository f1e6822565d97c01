// Package executor runs jobs inside containers of a local docker compatible
// runtime. Each execution gets its own ephemeral workspace which is mounted
// into the container, and the job commands are run as one shell script.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/CZERTAINLY/Drydock/internal/gate"
	"github.com/CZERTAINLY/Drydock/internal/model"
	"github.com/CZERTAINLY/Drydock/internal/probe"
	"github.com/CZERTAINLY/Drydock/internal/process"
	"github.com/CZERTAINLY/Drydock/internal/registry"
	"github.com/CZERTAINLY/Drydock/internal/workspace"
)

const (
	DefaultStopTimeout = 30 * time.Second
	stopRetryInterval  = 250 * time.Millisecond
)

// Recorder persists execution history. Recorder errors are logged and never
// change the outcome of an execution.
type Recorder interface {
	Start(ctx context.Context, id, image string) error
	Finish(ctx context.Context, id, state string, exitCode int, reason string) error
}

// Observer is notified synchronously about every state change.
type Observer func(id string, state State)

type Option func(*Executor)

// WithDriver replaces the os/exec based process driver.
func WithDriver(drv process.Driver) Option {
	return func(e *Executor) {
		e.driver = drv
	}
}

func WithRecorder(r Recorder) Option {
	return func(e *Executor) {
		e.recorder = r
	}
}

func WithObserver(o Observer) Option {
	return func(e *Executor) {
		e.observer = o
	}
}

// WithStopTimeout bounds how long a cancelled job retries docker stop
// before the container is removed by force.
func WithStopTimeout(d time.Duration) Option {
	return func(e *Executor) {
		if d > 0 {
			e.stopTimeout = d
		}
	}
}

// WithLogger sets the logger of the test flow and of executor level events.
func WithLogger(l *slog.Logger) Option {
	return func(e *Executor) {
		if l != nil {
			e.logger = l
		}
	}
}

type Executor struct {
	cfg         model.Executor
	runOptions  []string
	driver      process.Driver
	gate        *gate.Gate
	workspaces  workspace.Manager
	recorder    Recorder
	observer    Observer
	stopTimeout time.Duration
	logger      *slog.Logger
}

// New validates the configuration and returns a ready to use Executor.
// Invalid configuration is reported here, before any job is run.
func New(cfg model.Executor, opts ...Option) (*Executor, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	runOptions, err := model.ParseRunOptions(cfg.RunOptions)
	if err != nil {
		return nil, err
	}

	e := &Executor{
		cfg:         cfg,
		runOptions:  runOptions,
		driver:      process.Exec{},
		gate:        gate.New(cfg.Capacity),
		workspaces:  workspace.New(cfg.WorkspaceRoot),
		stopTimeout: DefaultStopTimeout,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// HasCapacity reports whether a job submitted now would be admitted without
// waiting. It is a hint only, another caller may take the slot first.
func (e *Executor) HasCapacity() bool {
	return e.gate.HasCapacity()
}

func (e *Executor) Capacity() int {
	return e.gate.Capacity()
}

// Execute runs the job and blocks until it finishes or ctx is cancelled. A
// request which fails validation returns nil Execution. Otherwise the returned
// Execution is always in StateCleanedUp and the error, if any, is the
// failure reason.
func (e *Executor) Execute(ctx context.Context, req model.JobRequest, logger *slog.Logger) (*Execution, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = e.logger
	}
	x := &Execution{
		ID:    uuid.NewString(),
		Image: req.Image,
	}
	logger = logger.With("job_id", x.ID)
	e.transition(x, StateQueued)

	release, err := e.gate.Admit(ctx)
	if err != nil {
		err = fmt.Errorf("waiting for capacity: %w", err)
		e.finish(ctx, x, err, logger)
		return x, err
	}
	defer release()
	x.Started = time.Now().UTC()
	e.transition(x, StateAdmitted)
	e.recordStart(ctx, x, logger)

	err = e.execute(ctx, x, req, logger)
	if err != nil && ctx.Err() != nil && !errors.Is(err, ctx.Err()) {
		err = fmt.Errorf("%w: %w", ctx.Err(), err)
	}
	e.finish(ctx, x, err, logger)
	return x, err
}

func (e *Executor) execute(ctx context.Context, x *Execution, req model.JobRequest, logger *slog.Logger) error {
	dir, err := e.workspaces.Create()
	if err != nil {
		return err
	}
	x.Workspace = dir
	defer e.destroy(ctx, dir, logger)
	e.transition(x, StateWorkspaceReady)

	if req.Snapshot != nil {
		logger.InfoContext(ctx, "Cloning source code...")
		if err := req.Snapshot.Checkout(ctx, dir); err != nil {
			return fmt.Errorf("checking out source: %w", err)
		}
	}

	if err := registry.Login(ctx, e.driver, e.cfg, logger); err != nil {
		return err
	}
	e.transition(x, StateAuthenticated)

	x.Image = registry.Resolve(req.Image, e.cfg.Registry)
	if err := e.pull(ctx, x.Image, logger); err != nil {
		return err
	}
	e.transition(x, StateImagePulled)

	x.OS, err = probe.OS(ctx, e.driver, e.cfg.DockerPath(), x.Image, logger)
	if err != nil {
		return err
	}
	e.transition(x, StateOSProbed)

	l := newLauncher(x.OS)
	if probe.IsWindows(x.OS) {
		logger.InfoContext(ctx, "Image OS is windows, running commands with cmd")
	} else {
		logger.InfoContext(ctx, "Running commands with sh", "os", x.OS)
	}
	if _, err := workspace.WriteScript(dir, l.script, req.Commands, l.terminator); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	e.transition(x, StateRunning)
	logger.InfoContext(ctx, "Running container to execute job...")
	code, err := e.run(ctx, x.ID, dir, l, x.Image, l.invokeScript(), logger)
	x.ExitCode = code
	return err
}

// run starts the container and waits for the runtime client to exit.
// Cancelling ctx stops the container by its name, the client is never killed
// as the daemon may still create the container afterwards.
func (e *Executor) run(ctx context.Context, name, dir string, l launcher, image string, invocation []string, logger *slog.Logger) (int, error) {
	cmd := process.Command{
		Path: e.cfg.DockerPath(),
		Args: runArgs(name, e.runOptions, dir, l, image, invocation),
	}

	exited := make(chan struct{})
	gone := make(chan bool, 1)
	go func() {
		gone <- e.stopOnCancel(ctx, name, exited, logger)
	}()
	res, err := e.driver.Execute(ctx, cmd,
		process.LogLines(ctx, logger, slog.LevelInfo),
		process.LogLines(ctx, logger, slog.LevelError),
		waitForStop,
	)
	close(exited)
	if !<-gone {
		e.remove(ctx, name, logger)
	}

	if err != nil {
		return res.ExitCode, fmt.Errorf("running container: %w", err)
	}
	if res.Killed {
		if cerr := ctx.Err(); cerr != nil {
			return res.ExitCode, fmt.Errorf("job cancelled: %w", cerr)
		}
	}
	if err := res.CheckOK(); err != nil {
		return res.ExitCode, fmt.Errorf("running container: %w", err)
	}
	return res.ExitCode, nil
}

// waitForStop is the Killer of docker run: the client exits on its own once
// its container is stopped or removed.
func waitForStop(*os.Process) {}

// stopOnCancel waits until ctx is cancelled and stops the container by name.
// A failed stop is retried until it succeeds, the client exits or the stop
// timeout expires, the container may not exist yet when the first stop is
// issued. On timeout the container is removed by force. It returns false if
// the container may still exist.
func (e *Executor) stopOnCancel(ctx context.Context, name string, exited <-chan struct{}, logger *slog.Logger) bool {
	select {
	case <-exited:
		return true
	case <-ctx.Done():
	}
	select {
	case <-exited:
		return true
	default:
	}

	logger.InfoContext(ctx, "Stopping container...", "container", name)
	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.stopTimeout)
	defer cancel()
	retry := time.NewTicker(stopRetryInterval)
	defer retry.Stop()
	for {
		err := e.docker(stopCtx, logger, "stop", name)
		if err == nil {
			return true
		}
		logger.WarnContext(ctx, "stopping container failed", "container", name, "error", err)
		select {
		case <-exited:
			return false
		case <-stopCtx.Done():
			logger.ErrorContext(ctx, "container not stopped in time, removing it", "container", name, "timeout", e.stopTimeout)
			return e.remove(ctx, name, logger)
		case <-retry.C:
		}
	}
}

// remove deletes the container by force. A missing container is not an error.
func (e *Executor) remove(ctx context.Context, name string, logger *slog.Logger) bool {
	rmCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.stopTimeout)
	defer cancel()
	if err := e.docker(rmCtx, logger, "rm", "-f", name); err != nil {
		logger.ErrorContext(ctx, "removing container failed", "container", name, "error", err)
		return false
	}
	return true
}

// docker runs a short lived runtime command, its output goes to the debug
// log, errors to the error log.
func (e *Executor) docker(ctx context.Context, logger *slog.Logger, args ...string) error {
	cmd := process.Command{
		Path: e.cfg.DockerPath(),
		Args: args,
	}
	res, err := e.driver.Execute(ctx, cmd,
		process.LogLines(ctx, logger, slog.LevelDebug),
		process.LogLines(ctx, logger, slog.LevelError),
		nil,
	)
	if err != nil {
		return err
	}
	return res.CheckOK()
}

func (e *Executor) pull(ctx context.Context, image string, logger *slog.Logger) error {
	logger.InfoContext(ctx, "Pulling image...", "image", image)
	cmd := process.Command{
		Path: e.cfg.DockerPath(),
		Args: []string{"pull", image},
	}
	res, err := e.driver.Execute(ctx, cmd,
		process.LogLines(ctx, logger, slog.LevelInfo),
		process.LogLines(ctx, logger, slog.LevelError),
		nil,
	)
	if err != nil {
		return fmt.Errorf("pulling image %s: %w", image, err)
	}
	if err := res.CheckOK(); err != nil {
		return fmt.Errorf("pulling image %s: %w", image, err)
	}
	return nil
}

func (e *Executor) destroy(ctx context.Context, dir string, logger *slog.Logger) {
	logger.InfoContext(ctx, "Deleting workspace...")
	if err := workspace.Destroy(dir); err != nil {
		logger.WarnContext(ctx, "deleting workspace failed", "workspace", dir, "error", err)
	}
}

func (e *Executor) transition(x *Execution, s State) {
	x.State = s
	x.history = append(x.history, s)
	if e.observer != nil {
		e.observer(x.ID, s)
	}
}

// finish moves the execution into its outcome and then into
// StateCleanedUp. The workspace is already gone at this point.
func (e *Executor) finish(ctx context.Context, x *Execution, err error, logger *slog.Logger) {
	x.Err = err
	x.Stopped = time.Now().UTC()
	switch {
	case err == nil:
		x.Outcome = StateCompleted
	case ctx.Err() != nil:
		x.Outcome = StateCancelled
	default:
		x.Outcome = StateFailed
	}
	e.transition(x, x.Outcome)

	attrs := []any{"state", x.Outcome, "exit_code", x.ExitCode, "duration", x.Stopped.Sub(x.Started)}
	switch x.Outcome {
	case StateCompleted:
		logger.InfoContext(ctx, "Job finished", attrs...)
	case StateCancelled:
		logger.WarnContext(ctx, "Job cancelled", append(attrs, "error", err)...)
	default:
		logger.ErrorContext(ctx, "Job failed", append(attrs, "error", err)...)
	}

	if !x.Started.IsZero() && e.recorder != nil {
		reason := ""
		if err != nil {
			reason = err.Error()
		}
		rctx := context.WithoutCancel(ctx)
		if rerr := e.recorder.Finish(rctx, x.ID, x.Outcome.String(), x.ExitCode, reason); rerr != nil {
			logger.ErrorContext(ctx, "recording execution finish failed", "error", rerr)
		}
	}
	e.transition(x, StateCleanedUp)
}

func (e *Executor) recordStart(ctx context.Context, x *Execution, logger *slog.Logger) {
	if e.recorder == nil {
		return
	}
	if err := e.recorder.Start(context.WithoutCancel(ctx), x.ID, x.Image); err != nil {
		logger.ErrorContext(ctx, "recording execution start failed", "error", err)
	}
}
