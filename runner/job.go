package runner

import (
	"context"
	"time"

	"github.com/gatehouse-ci/gatehouse/pipeline"
)

// StepResult is the outcome of one step. Steps after the first failure are
// recorded as skipped and never execute.
type StepResult struct {
	Name     string     `json:"name"`
	Skipped  bool       `json:"skipped"`
	ExitCode int        `json:"exit_code"`
	Start    *time.Time `json:"start"`
	End      *time.Time `json:"end"`
	Err      error      `json:"-"`
}

// JobResult is the terminal outcome of one job. State is always succeeded
// or failed; Err carries the failure that ended the job.
type JobResult struct {
	Job   string       `json:"job"`
	State State        `json:"state"`
	Steps []StepResult `json:"steps"`
	Start time.Time    `json:"start"`
	End   time.Time    `json:"end"`
	Err   error        `json:"-"`
}

// Recorder observes job progress as it happens, so callers can persist
// state changes mid-run. NopRecorder is used when nobody's watching.
type Recorder interface {
	JobTransitioned(job string, from, to State)
	StepFinished(job string, res StepResult)
}

// NopRecorder is a Recorder that does nothing.
type NopRecorder struct{}

// JobTransitioned implements Recorder.
func (NopRecorder) JobTransitioned(string, State, State) {}

// StepFinished implements Recorder.
func (NopRecorder) StepFinished(string, StepResult) {}

// RunJob executes a single job: acquire a fresh environment, then run the
// steps strictly in order. The first failure ends the job; remaining steps
// are skipped. There are no retries.
func (r *Runner) RunJob(ctx context.Context, job pipeline.Job, src Source) JobResult {
	logger := logger.WithField("job", job.Name)

	res := JobResult{
		Job:   job.Name,
		Start: time.Now(),
	}

	state := StatePending
	to := func(next State) {
		// Transitions here are valid by construction; a failure is a
		// bug in this executor, not in the declaration.
		if err := Transition(state, next); err != nil {
			logger.WithError(err).Error("invalid state transition")
		}
		r.rec.JobTransitioned(job.Name, state, next)
		state = next
	}

	logger.Debug("acquiring environment")
	to(StateProvisioning)

	env, err := r.provider.Acquire(ctx, job, src)
	if err != nil {
		logger.WithError(err).Error("unable to acquire environment")

		to(StateFailed)
		res.State = state
		res.Err = &EnvironmentError{Job: job.Name, Err: err}
		res.Steps = skipAll(job.Steps)
		res.End = time.Now()
		return res
	}
	defer func() {
		if err := env.Close(); err != nil {
			logger.WithError(err).Warn("unable to release environment")
		}
	}()

	// The default toolchain for command steps. Provision steps with
	// override set replace it; it's threaded explicitly instead of living
	// as ambient environment state.
	var def *pipeline.Toolchain

	for _, step := range job.Steps {
		if res.Err != nil {
			sr := StepResult{Name: step.Name, Skipped: true}
			res.Steps = append(res.Steps, sr)
			r.rec.StepFinished(job.Name, sr)
			continue
		}

		logger := logger.WithField("step", step.Name)

		sr := StepResult{Name: step.Name}
		sr.Start = timePtr(time.Now())

		if step.IsProvision() {
			logger.Debug("provisioning toolchain")

			err := env.Install(ctx, *step.Toolchain)
			if err != nil {
				logger.WithError(err).Error("unable to provision toolchain")

				sr.Err = &ProvisionError{
					Job:       job.Name,
					Step:      step.Name,
					Toolchain: *step.Toolchain,
					Err:       err,
				}
				res.Err = sr.Err
			} else if step.Toolchain.Override {
				tc := *step.Toolchain
				def = &tc
			}
		} else {
			if state == StateProvisioning {
				to(StateRunning)
			}

			logger.Debug("running command")

			code, err := env.Exec(ctx, step.Run, def)
			sr.ExitCode = code
			if err != nil {
				logger.WithError(err).Error("unable to run command")

				sr.Err = err
				res.Err = err
			} else if code != 0 {
				logger.WithField("exit_code", code).Error("command failed")

				sr.Err = &StepError{Job: job.Name, Step: step.Name, ExitCode: code}
				res.Err = sr.Err
			}
		}

		sr.End = timePtr(time.Now())
		res.Steps = append(res.Steps, sr)
		r.rec.StepFinished(job.Name, sr)
	}

	if res.Err != nil {
		to(StateFailed)
	} else {
		// A job made of provision steps only never saw a command step.
		if state == StateProvisioning {
			to(StateRunning)
		}
		to(StateSucceeded)
	}

	res.State = state
	res.End = time.Now()
	return res
}

func skipAll(steps []pipeline.Step) []StepResult {
	skipped := make([]StepResult, 0, len(steps))
	for _, step := range steps {
		skipped = append(skipped, StepResult{Name: step.Name, Skipped: true})
	}

	return skipped
}

func timePtr(t time.Time) *time.Time {
	return &t
}
