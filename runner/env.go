package runner

import (
	"context"
	"fmt"

	"github.com/gatehouse-ci/gatehouse/pipeline"
)

// Source identifies the code a run verifies. The environment provider is
// responsible for checking it out into every fresh environment.
type Source struct {
	Remote   string
	Branch   string
	Revision string
}

// Environment is a fresh, isolated place to run one job. Nothing carries
// over between environments: each job of each run gets its own.
type Environment interface {
	// Install provisions a toolchain in the environment. The override
	// semantics of the toolchain are handled by the executor, not here.
	Install(ctx context.Context, tc pipeline.Toolchain) error

	// Exec runs a command to completion and returns its exit code. When
	// def is non-nil it's the job's default toolchain, selected by an
	// earlier provision step with override set.
	Exec(ctx context.Context, command string, def *pipeline.Toolchain) (int, error)

	// Close releases the environment. Errors are advisory; the job's
	// result is already decided by the time Close runs.
	Close() error
}

// Provider hands out environments. Implementations: Docker volumes plus
// containers in the runlet agent, scratch directories on the host for
// local runs.
type Provider interface {
	Acquire(ctx context.Context, job pipeline.Job, src Source) (Environment, error)
}

// EnvironmentError means an environment couldn't be acquired. The job
// fails before any of its steps run.
type EnvironmentError struct {
	Job string
	Err error
}

func (e *EnvironmentError) Error() string {
	return fmt.Sprintf("acquiring environment for job %q: %v", e.Job, e.Err)
}

func (e *EnvironmentError) Unwrap() error { return e.Err }

// ProvisionError means a toolchain or one of its components couldn't be
// installed. The job fails in the provisioning state and its command steps
// never run.
type ProvisionError struct {
	Job       string
	Step      string
	Toolchain pipeline.Toolchain
	Err       error
}

func (e *ProvisionError) Error() string {
	return fmt.Sprintf("provisioning toolchain %q for job %q: %v", e.Toolchain.Channel, e.Job, e.Err)
}

func (e *ProvisionError) Unwrap() error { return e.Err }

// StepError means a command exited non-zero. The job fails and its
// remaining steps are skipped.
type StepError struct {
	Job      string
	Step     string
	ExitCode int
}

func (e *StepError) Error() string {
	return fmt.Sprintf("job %q step %q exited with status %v", e.Job, e.Step, e.ExitCode)
}
