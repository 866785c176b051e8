package runner

import (
	"context"
	"errors"
	"testing"

	"github.com/gatehouse-ci/gatehouse/pipeline"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunCleanRepoAllJobsSucceed(t *testing.T) {
	p := pipeline.Default()
	provider := newFakeProvider()

	res := New(provider, nil).Run(context.Background(), p, Source{
		Remote: "https://github.com/atuinsh/atuin.git",
		Branch: "main",
	})

	assert.True(t, res.Success())
	require.Len(t, res.Jobs, 4)

	for _, name := range []string{"build", "test", "clippy", "format"} {
		job, ok := res.Job(name)
		require.True(t, ok, "missing result for job %q", name)
		assert.Equal(t, StateSucceeded, job.State)
		assert.NoError(t, job.Err)
	}

	// One fresh environment per job, all released.
	require.Len(t, provider.envs, 4)
	for name, env := range provider.envs {
		assert.True(t, env.closed, "environment for %q not released", name)
	}
}

func TestStepFailureSkipsRemainingSteps(t *testing.T) {
	job := pipeline.Job{
		Name: "build",
		Steps: []pipeline.Step{
			{Name: "one", Run: "cargo build --all --release"},
			{Name: "two", Run: "strip target/release/atuin"},
			{Name: "three", Run: "echo never"},
		},
	}

	provider := newFakeProvider()
	provider.scripted["build"] = &fakeEnv{
		exitCodes: map[string]int{"strip target/release/atuin": 1},
	}

	res := New(provider, nil).RunJob(context.Background(), job, Source{})

	assert.Equal(t, StateFailed, res.State)

	var stepErr *StepError
	require.ErrorAs(t, res.Err, &stepErr)
	assert.Equal(t, "two", stepErr.Step)
	assert.Equal(t, 1, stepErr.ExitCode)

	require.Len(t, res.Steps, 3)
	assert.False(t, res.Steps[0].Skipped)
	assert.False(t, res.Steps[1].Skipped)
	assert.True(t, res.Steps[2].Skipped)

	// The skipped command never reached the environment.
	env := provider.envs["build"]
	assert.Equal(t, []string{
		"cargo build --all --release",
		"strip target/release/atuin",
	}, env.commands)
}

func TestProvisioningFailureEndsJobBeforeCommands(t *testing.T) {
	p := pipeline.Default()
	clippy, ok := p.Job("clippy")
	require.True(t, ok)

	provider := newFakeProvider()
	provider.scripted["clippy"] = &fakeEnv{
		installErr: errors.New("component clippy unavailable on channel stable"),
	}

	rec := newRecordingRecorder()
	res := New(provider, rec).RunJob(context.Background(), clippy, Source{})

	assert.Equal(t, StateFailed, res.State)

	var provErr *ProvisionError
	require.ErrorAs(t, res.Err, &provErr)
	assert.Equal(t, "stable", provErr.Toolchain.Channel)

	// The lint command never executed.
	env := provider.envs["clippy"]
	assert.Empty(t, env.commands)

	// The job failed out of provisioning without ever running.
	assert.Equal(t, []State{StateProvisioning, StateFailed}, rec.transitions["clippy"])
}

func TestEnvironmentFailureFailsJobWithoutSteps(t *testing.T) {
	p := pipeline.Default()
	provider := newFakeProvider()
	provider.acquireErr["test"] = errors.New("no machines available")

	res := New(provider, nil).Run(context.Background(), p, Source{})

	assert.False(t, res.Success())

	job, ok := res.Job("test")
	require.True(t, ok)
	assert.Equal(t, StateFailed, job.State)

	var envErr *EnvironmentError
	require.ErrorAs(t, job.Err, &envErr)

	for _, step := range job.Steps {
		assert.True(t, step.Skipped)
	}

	// The other three jobs are unaffected.
	for _, name := range []string{"build", "clippy", "format"} {
		job, ok := res.Job(name)
		require.True(t, ok)
		assert.Equal(t, StateSucceeded, job.State)
	}
}

func TestFormatFailureDoesNotAffectOtherJobs(t *testing.T) {
	p := pipeline.Default()

	provider := newFakeProvider()
	provider.scripted["format"] = &fakeEnv{
		exitCodes: map[string]int{"cargo fmt --all -- --check": 1},
	}

	res := New(provider, nil).Run(context.Background(), p, Source{})

	assert.False(t, res.Success())

	format, ok := res.Job("format")
	require.True(t, ok)
	assert.Equal(t, StateFailed, format.State)

	for _, name := range []string{"build", "test", "clippy"} {
		job, ok := res.Job(name)
		require.True(t, ok)
		assert.Equal(t, StateSucceeded, job.State, "job %q shouldn't care about formatting", name)
	}
}

func TestOverrideToolchainBecomesDefaultForLaterSteps(t *testing.T) {
	job := pipeline.Job{
		Name: "build",
		Steps: []pipeline.Step{
			{
				Name:      "install",
				Toolchain: &pipeline.Toolchain{Channel: "stable", Override: true},
			},
			{Name: "build", Run: "cargo build --all --release"},
		},
	}

	provider := newFakeProvider()
	res := New(provider, nil).RunJob(context.Background(), job, Source{})

	assert.Equal(t, StateSucceeded, res.State)

	env := provider.envs["build"]
	require.Len(t, env.defaults, 1)
	require.NotNil(t, env.defaults[0])
	assert.Equal(t, "stable", env.defaults[0].Channel)
}

func TestNoOverrideLeavesDefaultUnset(t *testing.T) {
	job := pipeline.Job{
		Name: "probe",
		Steps: []pipeline.Step{
			{
				Name:      "install",
				Toolchain: &pipeline.Toolchain{Channel: "nightly"},
			},
			{Name: "probe", Run: "cargo --version"},
		},
	}

	provider := newFakeProvider()
	res := New(provider, nil).RunJob(context.Background(), job, Source{})

	assert.Equal(t, StateSucceeded, res.State)

	env := provider.envs["probe"]
	require.Len(t, env.defaults, 1)
	assert.Nil(t, env.defaults[0])
}

func TestJobTransitionsAreRecordedInOrder(t *testing.T) {
	job := pipeline.Job{
		Name: "build",
		Steps: []pipeline.Step{
			{
				Name:      "install",
				Toolchain: &pipeline.Toolchain{Channel: "stable", Override: true},
			},
			{Name: "build", Run: "cargo build --all --release"},
		},
	}

	provider := newFakeProvider()
	rec := newRecordingRecorder()

	New(provider, rec).RunJob(context.Background(), job, Source{})

	assert.Equal(t, []State{
		StateProvisioning,
		StateRunning,
		StateSucceeded,
	}, rec.transitions["build"])

	require.Len(t, rec.steps["build"], 2)
	assert.Equal(t, "install", rec.steps["build"][0].Name)
	assert.Equal(t, "build", rec.steps["build"][1].Name)
}
