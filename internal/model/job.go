package model

import (
	"context"
	"fmt"

	"github.com/distribution/reference"
)

// Snapshot materializes versioned source content into an existing directory.
type Snapshot interface {
	Checkout(ctx context.Context, dir string) error
}

// JobRequest is an immutable description of a single job: the environment
// image, the command lines run in order and an optional source snapshot.
type JobRequest struct {
	Image    string
	Commands []string
	Snapshot Snapshot // nil => empty workspace
}

func (r JobRequest) Validate() error {
	if err := validateImage(r.Image); err != nil {
		return err
	}
	if len(r.Commands) == 0 {
		return ErrEmptyCommands
	}
	return nil
}

// TestProbe validates the executor configuration against a given image
// without a real workload.
type TestProbe struct {
	Image string
}

func (p TestProbe) Validate() error {
	return validateImage(p.Image)
}

// Request converts a configured job to a request with given snapshot.
func (j Job) Request(snapshot Snapshot) JobRequest {
	return JobRequest{
		Image:    j.Image,
		Commands: append([]string(nil), j.Commands...),
		Snapshot: snapshot,
	}
}

func validateImage(image string) error {
	if image == "" {
		return ErrEmptyImage
	}
	if _, err := reference.ParseNormalizedNamed(image); err != nil {
		return &ConfigError{Field: "image", Message: fmt.Sprintf("invalid image reference %q: %v", image, err)}
	}
	return nil
}
