package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDeclaration(t *testing.T) {
	raw := `
name: default
trigger:
  events: [push, pull_request]
  branches: [main]
jobs:
  - name: build
    image: rust:latest
    steps:
      - name: install stable toolchain
        toolchain:
          channel: stable
          override: true
      - name: build optimized
        run: cargo build --all --release
      - name: strip binary
        run: strip target/release/atuin
  - name: clippy
    image: rust:latest
    steps:
      - name: install stable toolchain with clippy
        toolchain:
          channel: stable
          override: true
          components: [clippy]
      - name: lint
        run: cargo clippy -- -D warnings
`

	p, err := Parse([]byte(raw))
	require.NoError(t, err)

	assert.Equal(t, "default", p.Name)
	assert.Equal(t, []string{"push", "pull_request"}, p.Trigger.Events)
	assert.Equal(t, []string{"main"}, p.Trigger.Branches)
	require.Len(t, p.Jobs, 2)

	build, ok := p.Job("build")
	require.True(t, ok)
	assert.Equal(t, "rust:latest", build.Image)
	require.Len(t, build.Steps, 3)

	assert.True(t, build.Steps[0].IsProvision())
	assert.Equal(t, "stable", build.Steps[0].Toolchain.Channel)
	assert.True(t, build.Steps[0].Toolchain.Override)

	assert.False(t, build.Steps[1].IsProvision())
	assert.Equal(t, "cargo build --all --release", build.Steps[1].Run)

	clippy, ok := p.Job("clippy")
	require.True(t, ok)
	assert.Equal(t, []string{"clippy"}, clippy.Steps[0].Toolchain.Components)
}

func TestValidateRejectsBadDeclarations(t *testing.T) {
	tests := []struct {
		name string
		p    Pipeline
	}{
		{
			name: "no trigger",
			p: Pipeline{
				Jobs: []Job{{Name: "build", Steps: []Step{{Run: "true"}}}},
			},
		},
		{
			name: "unknown event kind",
			p: Pipeline{
				Trigger: Trigger{Events: []string{"tag"}, Branches: []string{"main"}},
				Jobs:    []Job{{Name: "build", Steps: []Step{{Run: "true"}}}},
			},
		},
		{
			name: "no jobs",
			p: Pipeline{
				Trigger: Trigger{Events: []string{EventPush}, Branches: []string{"main"}},
			},
		},
		{
			name: "duplicate job names",
			p: Pipeline{
				Trigger: Trigger{Events: []string{EventPush}, Branches: []string{"main"}},
				Jobs: []Job{
					{Name: "build", Steps: []Step{{Run: "true"}}},
					{Name: "build", Steps: []Step{{Run: "true"}}},
				},
			},
		},
		{
			name: "job with no steps",
			p: Pipeline{
				Trigger: Trigger{Events: []string{EventPush}, Branches: []string{"main"}},
				Jobs:    []Job{{Name: "build"}},
			},
		},
		{
			name: "step with both actions",
			p: Pipeline{
				Trigger: Trigger{Events: []string{EventPush}, Branches: []string{"main"}},
				Jobs: []Job{{
					Name: "build",
					Steps: []Step{{
						Toolchain: &Toolchain{Channel: "stable"},
						Run:       "true",
					}},
				}},
			},
		},
		{
			name: "step with no action",
			p: Pipeline{
				Trigger: Trigger{Events: []string{EventPush}, Branches: []string{"main"}},
				Jobs:    []Job{{Name: "build", Steps: []Step{{Name: "noop"}}}},
			},
		},
		{
			name: "toolchain with no channel",
			p: Pipeline{
				Trigger: Trigger{Events: []string{EventPush}, Branches: []string{"main"}},
				Jobs: []Job{{
					Name:  "build",
					Steps: []Step{{Toolchain: &Toolchain{Override: true}}},
				}},
			},
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			assert.Error(t, test.p.Validate())
		})
	}
}

func TestDefaultDeclarationIsValid(t *testing.T) {
	p := Default()

	require.NoError(t, p.Validate())
	require.Len(t, p.Jobs, 4)

	for _, name := range []string{"build", "test", "clippy", "format"} {
		job, ok := p.Job(name)
		require.True(t, ok, "missing job %q", name)
		assert.True(t, job.Steps[0].IsProvision(), "job %q should provision first", name)
		assert.True(t, job.Steps[0].Toolchain.Override)
	}

	format, _ := p.Job("format")
	assert.Contains(t, format.Steps[len(format.Steps)-1].Run, "--check")
}
