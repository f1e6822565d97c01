// Package processtest provides a scriptable process.Driver for unit tests.
package processtest

import (
	"context"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/CZERTAINLY/Drydock/internal/process"
)

// Call is a recorded invocation.
type Call struct {
	Path  string
	Args  []string
	Stdin string
}

// Sub returns the first argument, the docker subcommand.
func (c Call) Sub() string {
	if len(c.Args) == 0 {
		return ""
	}
	return c.Args[0]
}

func (c Call) String() string {
	return strings.Join(append([]string{c.Path}, c.Args...), " ")
}

// Output lets a Handler emit lines as the real process would.
type Output struct {
	Stdout process.LineFunc
	Stderr process.LineFunc
}

// Handler simulates a process and returns its exit code. It must return
// once ctx is done or the simulated process is stopped by other means.
type Handler func(ctx context.Context, call Call, out Output) int

// Fake mirrors process.Exec: it records calls, runs the handler and calls
// the killer once when ctx is cancelled before the handler returns.
type Fake struct {
	Handler Handler

	mx    sync.Mutex
	calls []Call
	kills int
}

func (f *Fake) Execute(ctx context.Context, cmd process.Command, stdout, stderr process.LineFunc, kill process.Killer) (process.Result, error) {
	call := Call{Path: cmd.Path, Args: append([]string(nil), cmd.Args...)}
	if cmd.Stdin != nil {
		b, err := io.ReadAll(cmd.Stdin)
		if err != nil {
			return process.Result{}, err
		}
		call.Stdin = string(b)
	}
	f.mx.Lock()
	f.calls = append(f.calls, call)
	f.mx.Unlock()

	if stdout == nil {
		stdout = func(string) {}
	}
	if stderr == nil {
		stderr = func(string) {}
	}
	res := process.Result{Path: cmd.Path, Args: call.Args, Started: time.Now().UTC()}

	handler := f.Handler
	if handler == nil {
		handler = func(context.Context, Call, Output) int { return 0 }
	}
	done := make(chan int, 1)
	// the handler sees a context which is not cancelled by the caller,
	// like a real process which keeps running until killed
	hctx, hcancel := context.WithCancel(context.WithoutCancel(ctx))
	defer hcancel()
	go func() {
		done <- handler(hctx, call, Output{Stdout: stdout, Stderr: stderr})
	}()

	select {
	case code := <-done:
		res.ExitCode = code
	case <-ctx.Done():
		f.mx.Lock()
		f.kills++
		f.mx.Unlock()
		res.Killed = true
		if kill != nil {
			kill(nil)
		} else {
			hcancel()
		}
		res.ExitCode = <-done
	}
	res.Stopped = time.Now().UTC()
	return res, nil
}

// Calls returns a copy of recorded calls.
func (f *Fake) Calls() []Call {
	f.mx.Lock()
	defer f.mx.Unlock()
	return append([]Call(nil), f.calls...)
}

// CallsOf returns recorded calls of given docker subcommand.
func (f *Fake) CallsOf(sub string) []Call {
	var ret []Call
	for _, c := range f.Calls() {
		if c.Sub() == sub {
			ret = append(ret, c)
		}
	}
	return ret
}

// Kills returns how many times the killer was invoked.
func (f *Fake) Kills() int {
	f.mx.Lock()
	defer f.mx.Unlock()
	return f.kills
}

// InspectJSON returns docker inspect output for an image with given os.
func InspectJSON(os string) string {
	return `[{"Id":"sha256:0123","RepoTags":["test:latest"],"Os":"` + os + `","Architecture":"amd64"}]`
}
