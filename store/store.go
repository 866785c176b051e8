package store

import (
	"errors"
	"time"

	log "github.com/sirupsen/logrus"
)

var logger *log.Entry

var (
	// ErrPipelineNotFound is what's returned when a pipeline couldn't
	// be found in the store.
	ErrPipelineNotFound = errors.New("pipeline not found")
	// ErrNoPipelines is an error returned when a method of a
	// GatehouseStore doesn't find any pipelines.
	ErrNoPipelines = errors.New("no pipelines found")
	// ErrRunNotFound is an error returned when a run isn't found for a
	// given pipeline.
	ErrRunNotFound = errors.New("run not found")
	// ErrJobNotFound is an error returned when a JobRun isn't found.
	ErrJobNotFound = errors.New("job not found")
	// ErrStepNotFound is an error returned when a StepRun isn't found.
	ErrStepNotFound = errors.New("step not found")
	// ErrNotAuthenticated is returned when credentials don't check out.
	ErrNotAuthenticated = errors.New("not authenticated")
)

func init() {
	logger = log.WithFields(log.Fields{
		"package": "store",
	})
}

// GatehouseStore is an all-encompassing interface for all the behaviors
// a store can exhibit. The interface is large, but all this is included
// so that store implementations can be seamlessly swapped out. Consumers
// should define their own interfaces that use a subset of this interface's
// functions related to what they're interested in.
type GatehouseStore interface {
	// CreatePipeline saves a pipeline declaration in the store, setting
	// whatever values on the input that need to be set at create-time.
	CreatePipeline(*Pipeline) error
	GetPipeline(id int) (Pipeline, error)
	GetPipelines() ([]Pipeline, error)
	// GetPipelineByRemote is how an incoming event finds its pipeline
	// before any ID is known. If nothing matches the remote it returns
	// ErrNoPipelines.
	GetPipelineByRemote(GitRemote) (Pipeline, error)

	// GetRun returns the nth run for the pipeline with the passed
	// in ID from the store. If a run with that count isn't found
	// for whatever reason, ErrRunNotFound is returned.
	GetRun(pid, n int) (Run, error)
	// GetJobRun returns the job with the given ID from the store.
	// If no job with that ID is found, ErrJobNotFound is returned.
	GetJobRun(id int) (JobRun, error)
	// GetStepRun returns the step with the given ID from the store.
	// If no step with that ID is found, ErrStepNotFound is returned.
	GetStepRun(id int) (StepRun, error)

	// These Create* methods save their respective resources in
	// the store, setting create-time values on the input.
	CreateRun(*Run) error
	CreateJobRun(*JobRun) error
	CreateStepRun(*StepRun) error

	// These Update* methods update their respective resources in
	// the store, setting update-time values on the input if there
	// are any.
	UpdatePipeline(*Pipeline) error
	UpdateRun(*Run) error
	UpdateJobRun(*JobRun) error

	CreateUser(*User) error
	Authenticate(email, pass string) error
}

// GitRemote is the remote location of a Git repository, specified
// by the URL and branch name.
type GitRemote struct {
	URL    string `json:"url"`
	Branch string `json:"branch"`
}

// Pipeline ties a declaration to a remote. Spec is the raw YAML of the
// declaration; it's parsed fresh for every run so that edits to it apply
// from the next run onward without touching older records.
type Pipeline struct {
	ID      int    `json:"id"`
	Name    string `json:"name"`
	Success *bool  `json:"success"`
	Spec    string `json:"spec,omitempty"`

	GitRemote GitRemote `json:"git_remote"`

	Runs []Run `json:"runs,omitempty"`
}

// Run is one triggered execution of a pipeline: the event that started it
// plus a job record per declared job.
type Run struct {
	Count    int        `json:"count"`
	Event    string     `json:"event"`
	Branch   string     `json:"branch"`
	Revision string     `json:"revision"`
	Start    *time.Time `json:"start"`
	End      *time.Time `json:"end"`
	Success  *bool      `json:"success"` // mid-run is neither success nor failure

	// This attribute is necessary to have here because a run can only be
	// identified by the combination of its pipeline and its place.
	PipelineID int `json:"pipeline_id"`

	Jobs []JobRun `json:"jobs,omitempty"`
}

// JobRun is the recorded state of one job inside a run. Status holds the
// job's lifecycle state as a string so mid-run progress is visible, while
// Success only gets set at a terminal state.
type JobRun struct {
	ID      int        `json:"id"`
	Name    string     `json:"name"`
	Status  string     `json:"status"`
	Start   *time.Time `json:"start"`
	End     *time.Time `json:"end"`
	Success *bool      `json:"success"` // mid-run is neither success nor failure

	PipelineID int `json:"-"`
	RunCount   int `json:"-"`

	Steps []StepRun `json:"steps,omitempty"`
}

// StepRun is the recorded outcome of a single step. Skipped steps never
// executed because an earlier step already failed the job.
type StepRun struct {
	ID       int        `json:"id"`
	Name     string     `json:"name"`
	Skipped  bool       `json:"skipped"`
	ExitCode int        `json:"exit_code"`
	Start    *time.Time `json:"start"`
	End      *time.Time `json:"end"`
	Success  *bool      `json:"success"`

	JobID int `json:"-"`
}

// User is an operator that's authorized to interact with the CI system.
type User struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// MarkSuccess is a convenience method for setting the success status.
func (p *Pipeline) MarkSuccess(s bool) {
	p.Success = &s
}

// Failed is a convenience method for checking the success status
// for a failure.
func (p *Pipeline) Failed() bool {
	return p.Success != nil && *p.Success == false
}

// SetStart is a convenience method for setting the start time pointer.
func (r *Run) SetStart() {
	t := time.Now()
	r.Start = &t
}

// SetEnd is a convenience method for setting the end time pointer.
func (r *Run) SetEnd() {
	t := time.Now()
	r.End = &t
}

// MarkSuccess is a convenience method for setting the success status.
func (r *Run) MarkSuccess(s bool) {
	r.Success = &s
}

// Failed is a convenience method for checking the success status
// for a failure.
func (r *Run) Failed() bool {
	return r.Success != nil && *r.Success == false
}

// SetStart is a convenience method for setting the start time pointer.
func (j *JobRun) SetStart() {
	t := time.Now()
	j.Start = &t
}

// SetEnd is a convenience method for setting the end time pointer.
func (j *JobRun) SetEnd() {
	t := time.Now()
	j.End = &t
}

// MarkSuccess is a convenience method for setting the success status.
func (j *JobRun) MarkSuccess(s bool) {
	j.Success = &s
}

// MarkSuccess is a convenience method for setting the success status.
func (st *StepRun) MarkSuccess(s bool) {
	st.Success = &s
}
