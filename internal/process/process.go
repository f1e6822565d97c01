// Package process is a thin wrapper around os/exec used to drive the container
// runtime binary:
//   - starts the process
//   - optionally feeds stdin
//   - streams stdout and stderr line by line to the caller (two goroutines)
//   - calls a Killer exactly once when the context is cancelled while the
//     process is still running, then waits for the process to exit
package process

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"
)

const maxLineSize = 1024 * 1024

// LineFunc consumes a single output line without the line terminator.
type LineFunc func(line string)

// Killer terminates a running process. It is called at most once per Execute.
type Killer func(p *os.Process)

// KillProcess is the default Killer, it sends SIGKILL to the process.
func KillProcess(p *os.Process) {
	_ = p.Kill()
}

type Command struct {
	Path  string
	Args  []string
	Env   []string // nil inherits the current environment
	Stdin io.Reader
}

func (c Command) String() string {
	name := filepath.Base(c.Path)
	if len(c.Args) == 0 {
		return name
	}
	return name + " " + c.Args[0]
}

type Result struct {
	Path     string
	Args     []string
	Started  time.Time
	Stopped  time.Time
	ExitCode int
	Killed   bool
}

// ExitError is returned by CheckOK for a non zero exit code.
type ExitError struct {
	Command  string
	ExitCode int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("%s: exit code %d", e.Command, e.ExitCode)
}

// CheckOK returns an *ExitError if the process did not exit with zero.
func (r Result) CheckOK() error {
	if r.ExitCode == 0 {
		return nil
	}
	return &ExitError{
		Command:  Command{Path: r.Path, Args: r.Args}.String(),
		ExitCode: r.ExitCode,
	}
}

// Driver executes external commands. Exec is the os/exec implementation,
// tests substitute their own.
type Driver interface {
	Execute(ctx context.Context, cmd Command, stdout, stderr LineFunc, kill Killer) (Result, error)
}

type Exec struct{}

// Execute starts the command and blocks until it exits. The returned error is
// non nil only if the process could not be started or waited for, a non zero
// exit code is reported via Result.
func (Exec) Execute(ctx context.Context, proto Command, stdout, stderr LineFunc, kill Killer) (Result, error) {
	if kill == nil {
		kill = KillProcess
	}
	result := Result{
		Path: proto.Path,
		Args: append([]string(nil), proto.Args...),
	}

	cmd := exec.Command(proto.Path, proto.Args...)
	cmd.Env = proto.Env
	cmd.Stdin = proto.Stdin
	outPipe, err := cmd.StdoutPipe()
	if err != nil {
		return result, err
	}
	errPipe, err := cmd.StderrPipe()
	if err != nil {
		return result, err
	}

	result.Started = time.Now().UTC()
	if err := cmd.Start(); err != nil {
		result.Stopped = time.Now().UTC()
		result.ExitCode = -1
		return result, fmt.Errorf("starting %s: %w", proto, err)
	}

	var mx sync.Mutex
	var exited, killed bool
	done := make(chan struct{})
	watcherDone := make(chan struct{})
	go func() {
		defer close(watcherDone)
		select {
		case <-done:
		case <-ctx.Done():
			mx.Lock()
			defer mx.Unlock()
			if exited {
				return
			}
			killed = true
			slog.DebugContext(ctx, "context cancelled: killing process", "cmd", proto.String(), "pid", cmd.Process.Pid)
			kill(cmd.Process)
		}
	}()

	var wg sync.WaitGroup
	wg.Go(func() { scanLines(ctx, outPipe, stdout) })
	wg.Go(func() { scanLines(ctx, errPipe, stderr) })
	wg.Wait()

	waitErr := cmd.Wait()
	mx.Lock()
	exited = true
	result.Killed = killed
	mx.Unlock()
	close(done)
	<-watcherDone

	result.Stopped = time.Now().UTC()
	result.ExitCode = cmd.ProcessState.ExitCode()

	var exitErr *exec.ExitError
	if waitErr != nil && !errors.As(waitErr, &exitErr) {
		return result, fmt.Errorf("waiting for %s: %w", proto, waitErr)
	}
	return result, nil
}

func scanLines(ctx context.Context, r io.Reader, fn LineFunc) {
	if fn == nil {
		_, _ = io.Copy(io.Discard, r)
		return
	}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for scanner.Scan() {
		fn(scanner.Text())
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, io.EOF) {
		slog.ErrorContext(ctx, "processing output", "error", err)
		// drain, so the process does not block on a full pipe
		_, _ = io.Copy(io.Discard, r)
	}
}
