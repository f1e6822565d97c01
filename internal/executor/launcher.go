package executor

import (
	"github.com/CZERTAINLY/Drydock/internal/probe"
	"github.com/CZERTAINLY/Drydock/internal/workspace"
)

const (
	scriptBaseName     = "onedev-job-commands"
	containerWorkspace = "onedev-build"
	testCommand        = "echo this is a test"
)

// launcher describes how commands are started inside a container of a given
// OS family.
type launcher struct {
	script     string // file name inside the workspace
	terminator string
	mount      string // workspace path inside the container
	shell      []string
	separator  string
}

func newLauncher(imageOS string) launcher {
	if probe.IsWindows(imageOS) {
		return launcher{
			script:     scriptBaseName + ".bat",
			terminator: workspace.CRLF,
			mount:      `C:\` + containerWorkspace,
			shell:      []string{"cmd", "/c"},
			separator:  `\`,
		}
	}
	return launcher{
		script:     scriptBaseName + ".sh",
		terminator: workspace.LF,
		mount:      "/" + containerWorkspace,
		shell:      []string{"sh", "-c"},
		separator:  "/",
	}
}

// invokeScript returns the shell invocation of the generated script.
func (l launcher) invokeScript() []string {
	return append(append([]string(nil), l.shell...), l.mount+l.separator+l.script)
}

// invoke returns the shell invocation of a single command line.
func (l launcher) invoke(command string) []string {
	return append(append([]string(nil), l.shell...), command)
}

// runArgs builds docker run arguments, options set by the executor come
// first, validated user options follow.
func runArgs(name string, options []string, hostDir string, l launcher, image string, invocation []string) []string {
	args := []string{"run", "--rm", "--name", name}
	args = append(args, options...)
	args = append(args, "-v", hostDir+":"+l.mount)
	args = append(args, "-w", l.mount)
	args = append(args, image)
	return append(args, invocation...)
}
