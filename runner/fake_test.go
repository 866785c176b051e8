package runner

import (
	"context"
	"errors"
	"sync"

	"github.com/gatehouse-ci/gatehouse/pipeline"
)

// fakeEnv is a scripted environment. Commands succeed with exit 0 unless
// an exit code is scripted for them; installs succeed unless installErr is
// set.
type fakeEnv struct {
	mu sync.Mutex

	installs []pipeline.Toolchain
	commands []string
	defaults []*pipeline.Toolchain

	exitCodes  map[string]int
	installErr error
	closed     bool
}

func (env *fakeEnv) Install(_ context.Context, tc pipeline.Toolchain) error {
	env.mu.Lock()
	defer env.mu.Unlock()

	if env.installErr != nil {
		return env.installErr
	}

	env.installs = append(env.installs, tc)
	return nil
}

func (env *fakeEnv) Exec(_ context.Context, command string, def *pipeline.Toolchain) (int, error) {
	env.mu.Lock()
	defer env.mu.Unlock()

	env.commands = append(env.commands, command)
	env.defaults = append(env.defaults, def)

	return env.exitCodes[command], nil
}

func (env *fakeEnv) Close() error {
	env.mu.Lock()
	defer env.mu.Unlock()

	env.closed = true
	return nil
}

// fakeProvider hands each job its own fakeEnv, like real providers hand
// out isolated machines. Jobs named in acquireErr fail acquisition.
type fakeProvider struct {
	mu sync.Mutex

	envs       map[string]*fakeEnv
	scripted   map[string]*fakeEnv
	acquireErr map[string]error
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		envs:       map[string]*fakeEnv{},
		scripted:   map[string]*fakeEnv{},
		acquireErr: map[string]error{},
	}
}

func (p *fakeProvider) Acquire(_ context.Context, job pipeline.Job, _ Source) (Environment, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.acquireErr[job.Name]; err != nil {
		return nil, err
	}

	if _, ok := p.envs[job.Name]; ok {
		return nil, errors.New("environment already acquired for " + job.Name)
	}

	env := p.scripted[job.Name]
	if env == nil {
		env = &fakeEnv{}
	}
	if env.exitCodes == nil {
		env.exitCodes = map[string]int{}
	}

	p.envs[job.Name] = env
	return env, nil
}

// recordingRecorder remembers transitions and step results per job.
type recordingRecorder struct {
	mu sync.Mutex

	transitions map[string][]State
	steps       map[string][]StepResult
}

func newRecordingRecorder() *recordingRecorder {
	return &recordingRecorder{
		transitions: map[string][]State{},
		steps:       map[string][]StepResult{},
	}
}

func (r *recordingRecorder) JobTransitioned(job string, _, to State) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.transitions[job] = append(r.transitions[job], to)
}

func (r *recordingRecorder) StepFinished(job string, res StepResult) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.steps[job] = append(r.steps[job], res)
}
