package model

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"runtime"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/encoding/yaml"

	_ "embed"
)

const (
	ServiceModeManual = "manual"
	ServiceModeTimer  = "timer"

	DefaultExecutable = "docker"
)

//go:embed config.cue
var cueSource []byte

var (
	cueCtx *cue.Context
	schema cue.Value
)

func init() {
	if len(cueSource) == 0 {
		panic("variable cueSource is empty")
	}
	cueCtx = cuecontext.New()
	compiled := cueCtx.CompileBytes(cueSource)
	if compiled.Err() != nil {
		panic(compiled.Err())
	}

	schema = compiled.LookupPath(cue.ParsePath("#Config"))
	if schema.Err() != nil {
		panic(schema.Err())
	}
}

type Config struct {
	Version  int      `json:"version" yaml:"version"` // fixed 0 for now
	Executor Executor `json:"executor" yaml:"executor"`
	Jobs     []Job    `json:"jobs,omitempty" yaml:"jobs,omitempty"`
	Service  Service  `json:"service" yaml:"service"`
}

// Executor configures how and where the container runtime is invoked.
type Executor struct {
	Executable             string `json:"executable,omitempty" yaml:"executable,omitempty"` // empty => docker in PATH
	Registry               string `json:"registry,omitempty" yaml:"registry,omitempty"`     // empty => official registry
	AuthenticateToRegistry bool   `json:"authenticateToRegistry" yaml:"authenticateToRegistry"`
	Username               string `json:"username,omitempty" yaml:"username,omitempty"`
	Password               string `json:"password,omitempty" yaml:"password,omitempty"`
	RunOptions             string `json:"runOptions,omitempty" yaml:"runOptions,omitempty"` // e.g. "-m 2g"
	Capacity               int    `json:"capacity,omitempty" yaml:"capacity,omitempty"`     // 0 => number of CPUs
	WorkspaceRoot          string `json:"workspaceRoot,omitempty" yaml:"workspaceRoot,omitempty"`
}

// Job is a named job request stored in a config file.
type Job struct {
	Name     string   `json:"name" yaml:"name"`
	Image    string   `json:"image" yaml:"image"`
	Commands []string `json:"commands" yaml:"commands"`
	Source   string   `json:"source,omitempty" yaml:"source,omitempty"`     // local directory copied into the workspace
	Schedule string   `json:"schedule,omitempty" yaml:"schedule,omitempty"` // cron or ISO 8601 duration, timer mode only
}

type Service struct {
	Mode    string `json:"mode" yaml:"mode"`
	Verbose bool   `json:"verbose,omitempty" yaml:"verbose,omitempty"`
	DB      string `json:"db,omitempty" yaml:"db,omitempty"`           // sqlite execution history
	Dir     string `json:"dir,omitempty" yaml:"dir,omitempty"`         // directory for execution reports
	Webhook string `json:"webhook,omitempty" yaml:"webhook,omitempty"` // URL receiving execution reports
}

// DefaultConfig returns a config which runs nothing in manual mode.
func DefaultConfig(_ context.Context) Config {
	return Config{
		Version: 0,
		Executor: Executor{
			Capacity: runtime.NumCPU(),
		},
		Service: Service{
			Mode: ServiceModeManual,
		},
	}
}

// LoadConfig validates YAML from r against the CUE schema, decodes it and
// checks the constraints the schema can't express.
func LoadConfig(r io.Reader) (*Config, error) {
	yamlFile, err := yaml.Extract("drydock.yaml", r)
	if err != nil {
		return nil, err
	}
	yamlValue := cueCtx.BuildFile(yamlFile)

	unified := schema.Unify(yamlValue)
	if err := unified.Validate(
		cue.All(),
		cue.Concrete(true),
	); err != nil {
		return nil, err
	}

	var out Config
	if err := unified.Decode(&out); err != nil {
		return nil, err
	}

	out.Executor = out.Executor.WithDefaults()
	if err := out.Executor.Validate(); err != nil {
		return nil, err
	}
	if err := out.validateJobs(); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c Config) validateJobs() error {
	seen := make(map[string]struct{}, len(c.Jobs))
	for idx, job := range c.Jobs {
		if _, ok := seen[job.Name]; ok {
			return &ConfigError{Field: fmt.Sprintf("jobs[%d].name", idx), Message: "duplicate job name " + job.Name}
		}
		seen[job.Name] = struct{}{}
		if err := job.Request(nil).Validate(); err != nil {
			return fmt.Errorf("jobs[%d]: %w", idx, err)
		}
		if c.Service.Mode == ServiceModeTimer && job.Schedule == "" {
			return &ConfigError{Field: fmt.Sprintf("jobs[%d].schedule", idx), Message: "schedule is required in timer mode"}
		}
		if job.Schedule != "" {
			if _, err := ParseSchedule(job.Schedule); err != nil {
				return &ConfigError{Field: fmt.Sprintf("jobs[%d].schedule", idx), Message: err.Error()}
			}
		}
	}
	return nil
}

// WithDefaults fills the capacity with the number of processors if unset.
func (e Executor) WithDefaults() Executor {
	if e.Capacity == 0 {
		e.Capacity = runtime.NumCPU()
	}
	return e
}

// DockerPath returns the runtime binary to invoke.
func (e Executor) DockerPath() string {
	if e.Executable != "" {
		return e.Executable
	}
	return DefaultExecutable
}

// Validate checks the executor configuration before any job is executed.
func (e Executor) Validate() error {
	if e.AuthenticateToRegistry {
		if e.Username == "" {
			return &ConfigError{Field: "executor.username", Message: "username is required when authenticating to registry"}
		}
		if e.Password == "" {
			return &ConfigError{Field: "executor.password", Message: "password is required when authenticating to registry"}
		}
	}
	if e.Capacity < 1 {
		return &ConfigError{Field: "executor.capacity", Message: fmt.Sprintf("capacity must be positive, got %d", e.Capacity)}
	}
	return ValidateRunOptions(e.RunOptions)
}

// LogValue hides the registry password from logs.
func (e Executor) LogValue() slog.Value {
	password := ""
	if e.Password != "" {
		password = "******"
	}
	return slog.GroupValue(
		slog.String("executable", e.DockerPath()),
		slog.String("registry", e.Registry),
		slog.Bool("authenticateToRegistry", e.AuthenticateToRegistry),
		slog.String("username", e.Username),
		slog.String("password", password),
		slog.String("runOptions", e.RunOptions),
		slog.Int("capacity", e.Capacity),
		slog.String("workspaceRoot", e.WorkspaceRoot),
	)
}
