package model

import (
	"errors"
)

var (
	ErrEmptyImage    = errors.New("image is empty")
	ErrEmptyCommands = errors.New("no commands to execute")
)

// ConfigError reports an invalid configuration, it is always returned
// before any container is started.
type ConfigError struct {
	Field   string // e.g. executor.runOptions
	Message string
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}
