package main

import (
	"sync"

	"github.com/gatehouse-ci/gatehouse/runner"
	"github.com/gatehouse-ci/gatehouse/store"
)

// runletStore is the subset of the store the agent needs.
type runletStore interface {
	GetRun(pid, n int) (store.Run, error)
	UpdateRun(*store.Run) error
	UpdateJobRun(*store.JobRun) error
	CreateStepRun(*store.StepRun) error
	UpdatePipeline(*store.Pipeline) error
}

// storeRecorder persists job progress as the runner reports it, so the API
// shows pending/provisioning/running states while a run is in flight.
type storeRecorder struct {
	mu sync.Mutex

	st   runletStore
	jobs map[string]*store.JobRun
}

func newStoreRecorder(st runletStore, run store.Run) *storeRecorder {
	jobs := make(map[string]*store.JobRun, len(run.Jobs))
	for i := range run.Jobs {
		jobs[run.Jobs[i].Name] = &run.Jobs[i]
	}

	return &storeRecorder{
		st:   st,
		jobs: jobs,
	}
}

// JobTransitioned implements runner.Recorder.
func (rec *storeRecorder) JobTransitioned(job string, _, to runner.State) {
	rec.mu.Lock()
	defer rec.mu.Unlock()

	jr, ok := rec.jobs[job]
	if !ok {
		logger.Warnf("no job record for %v", job)
		return
	}

	jr.Status = string(to)

	switch to {
	case runner.StateProvisioning:
		jr.SetStart()
	case runner.StateSucceeded:
		jr.SetEnd()
		jr.MarkSuccess(true)
	case runner.StateFailed:
		jr.SetEnd()
		jr.MarkSuccess(false)
	}

	if err := rec.st.UpdateJobRun(jr); err != nil {
		logger.WithError(err).Errorf("unable to record state for job %v", job)
	}
}

// StepFinished implements runner.Recorder.
func (rec *storeRecorder) StepFinished(job string, res runner.StepResult) {
	rec.mu.Lock()
	defer rec.mu.Unlock()

	jr, ok := rec.jobs[job]
	if !ok {
		logger.Warnf("no job record for %v", job)
		return
	}

	sr := store.StepRun{
		Name:     res.Name,
		Skipped:  res.Skipped,
		ExitCode: res.ExitCode,
		Start:    res.Start,
		End:      res.End,
		JobID:    jr.ID,
	}
	if !res.Skipped {
		sr.MarkSuccess(res.Err == nil)
	}

	if err := rec.st.CreateStepRun(&sr); err != nil {
		logger.WithError(err).Errorf("unable to record step for job %v", job)
	}
}
