// Package runner executes pipeline jobs: each job gets a fresh isolated
// environment and runs its steps strictly in order, while the jobs
// themselves run concurrently with no dependencies between them.
package runner

import (
	"context"
	"sync"

	"github.com/gatehouse-ci/gatehouse/pipeline"

	"github.com/sirupsen/logrus"
)

var logger *logrus.Entry

func init() {
	logger = logrus.WithField("package", "runner")
}

// Runner fans a pipeline out into its jobs and gathers their results.
type Runner struct {
	provider Provider
	rec      Recorder
}

// New returns a Runner acquiring environments from provider. rec may be
// nil when nobody needs mid-run progress.
func New(provider Provider, rec Recorder) *Runner {
	if rec == nil {
		rec = NopRecorder{}
	}

	return &Runner{
		provider: provider,
		rec:      rec,
	}
}

// RunResult holds every job's terminal result for one pipeline run, in
// declaration order.
type RunResult struct {
	Pipeline string      `json:"pipeline"`
	Jobs     []JobResult `json:"jobs"`
}

// Success reports the gate: a run succeeded only if every job succeeded.
func (r RunResult) Success() bool {
	for _, job := range r.Jobs {
		if job.State != StateSucceeded {
			return false
		}
	}

	return true
}

// Job returns the result for the named job.
func (r RunResult) Job(name string) (JobResult, bool) {
	for _, job := range r.Jobs {
		if job.Job == name {
			return job, true
		}
	}

	return JobResult{}, false
}

// Run executes every job of the pipeline concurrently and blocks until all
// of them reach a terminal state. A job's failure never interrupts the
// others; each is judged only by its own steps.
func (r *Runner) Run(ctx context.Context, p *pipeline.Pipeline, src Source) RunResult {
	logger := logger.WithField("pipeline", p.Name)
	logger.Debug("fanning out jobs")

	results := make([]JobResult, len(p.Jobs))

	var wg sync.WaitGroup
	for i, job := range p.Jobs {
		wg.Add(1)

		go func(i int, job pipeline.Job) {
			defer wg.Done()

			results[i] = r.RunJob(ctx, job, src)
		}(i, job)
	}
	wg.Wait()

	res := RunResult{
		Pipeline: p.Name,
		Jobs:     results,
	}

	logger.WithField("success", res.Success()).Debug("run finished")

	return res
}
