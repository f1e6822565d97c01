package model

import (
	"fmt"
	"strings"

	"github.com/google/shlex"
)

// ReservedRunOptions are set by the executor itself and can't be passed
// via Executor.RunOptions.
var ReservedRunOptions = []string{
	"-w", "--workdir",
	"-d", "--detach",
	"-a", "--attach",
	"-t", "--tty",
	"-i", "--interactive",
	"--rm",
	"--restart",
	"--name",
}

// ParseRunOptions splits run options using shell quoting rules.
func ParseRunOptions(s string) ([]string, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	args, err := shlex.Split(s)
	if err != nil {
		return nil, &ConfigError{Field: "executor.runOptions", Message: fmt.Sprintf("parsing run options: %v", err)}
	}
	return args, nil
}

// ValidateRunOptions rejects run options which collide with options set by
// the executor.
func ValidateRunOptions(s string) error {
	args, err := ParseRunOptions(s)
	if err != nil {
		return err
	}
	if hasOptions(args, ReservedRunOptions...) {
		return &ConfigError{
			Field:   "executor.runOptions",
			Message: "Can not use options: " + strings.Join(ReservedRunOptions, ", "),
		}
	}
	return nil
}

// hasOptions matches long options exactly or in --opt=value form, short
// options as a prefix, so -it or -w/x match as well.
func hasOptions(args []string, options ...string) bool {
	for _, arg := range args {
		for _, option := range options {
			switch {
			case strings.HasPrefix(option, "--"):
				if arg == option || strings.HasPrefix(arg, option+"=") {
					return true
				}
			case strings.HasPrefix(option, "-"):
				if strings.HasPrefix(arg, option) {
					return true
				}
			default:
				panic("invalid option: " + option)
			}
		}
	}
	return false
}
