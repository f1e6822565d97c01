package model

import (
	"context"
	"time"
)

// Report summarizes a single job execution for the configured reporters.
type Report struct {
	Job      string    `json:"job"`
	ID       string    `json:"id,omitempty"`
	Image    string    `json:"image"`
	OS       string    `json:"os,omitempty"`
	State    string    `json:"state"`
	ExitCode int       `json:"exitCode"`
	Error    string    `json:"error,omitempty"`
	Started  time.Time `json:"started,omitzero"`
	Stopped  time.Time `json:"stopped,omitzero"`
}

// OK reports whether the job completed successfully.
func (r Report) OK() bool {
	return r.State == "completed"
}

type Reporter interface {
	Report(ctx context.Context, r Report) error
}

type ReportCloser interface {
	Reporter
	Close() error
}
