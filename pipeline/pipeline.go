package pipeline

import (
	"errors"
	"fmt"
)

// Event kinds a trigger can react to. Anything else is ignored.
const (
	EventPush        = "push"
	EventPullRequest = "pull_request"
)

var (
	// ErrNoJobs is returned when a declaration doesn't declare any jobs.
	ErrNoJobs = errors.New("pipeline declares no jobs")
	// ErrNoTrigger is returned when a declaration has an empty trigger.
	ErrNoTrigger = errors.New("pipeline declares no trigger events or branches")
)

// Pipeline is a declaration of verification work: a trigger deciding when
// runs happen, and a set of jobs that all run for every matching event.
type Pipeline struct {
	Name    string  `yaml:"name"`
	Trigger Trigger `yaml:"trigger"`
	Jobs    []Job   `yaml:"jobs"`
}

// Trigger decides which repository events start a run. Branch matching is
// literal membership, there are no glob or wildcard semantics.
type Trigger struct {
	Events   []string `yaml:"events"`
	Branches []string `yaml:"branches"`
}

// Job is an independent unit of verification. Jobs share nothing: no
// ordering, no data, no environment. Image names the environment the job
// runs in.
type Job struct {
	Name  string `yaml:"name"`
	Image string `yaml:"image"`
	Steps []Step `yaml:"steps"`
}

// Step is one ordered action inside a job. Exactly one of Toolchain or Run
// is set: a step either provisions a toolchain or runs a command.
type Step struct {
	Name      string     `yaml:"name"`
	Toolchain *Toolchain `yaml:"toolchain,omitempty"`
	Run       string     `yaml:"run,omitempty"`
}

// IsProvision reports whether the step provisions a toolchain rather than
// running a command.
func (s Step) IsProvision() bool {
	return s.Toolchain != nil
}

// Toolchain describes what a provision step installs. When Override is set
// the installed toolchain becomes the default for every later step in the
// same job.
type Toolchain struct {
	Channel    string   `yaml:"channel"`
	Override   bool     `yaml:"override"`
	Components []string `yaml:"components,omitempty"`
}

// Validate checks that the declaration is complete enough to run: a
// non-empty trigger, at least one job, unique job names, and exactly one
// action per step.
func (p *Pipeline) Validate() error {
	if len(p.Trigger.Events) == 0 || len(p.Trigger.Branches) == 0 {
		return ErrNoTrigger
	}

	for _, ev := range p.Trigger.Events {
		if ev != EventPush && ev != EventPullRequest {
			return fmt.Errorf("unknown trigger event %q", ev)
		}
	}

	if len(p.Jobs) == 0 {
		return ErrNoJobs
	}

	seen := map[string]bool{}
	for _, job := range p.Jobs {
		if job.Name == "" {
			return errors.New("job with empty name")
		}
		if seen[job.Name] {
			return fmt.Errorf("duplicate job name %q", job.Name)
		}
		seen[job.Name] = true

		if len(job.Steps) == 0 {
			return fmt.Errorf("job %q declares no steps", job.Name)
		}

		for _, step := range job.Steps {
			if step.Toolchain != nil && step.Run != "" {
				return fmt.Errorf("job %q step %q declares both a toolchain and a command", job.Name, step.Name)
			}
			if step.Toolchain == nil && step.Run == "" {
				return fmt.Errorf("job %q step %q declares no action", job.Name, step.Name)
			}
			if step.Toolchain != nil && step.Toolchain.Channel == "" {
				return fmt.Errorf("job %q step %q has a toolchain with no channel", job.Name, step.Name)
			}
		}
	}

	return nil
}

// Job returns the declared job with the given name, if there is one.
func (p *Pipeline) Job(name string) (Job, bool) {
	for _, job := range p.Jobs {
		if job.Name == name {
			return job, true
		}
	}

	return Job{}, false
}
