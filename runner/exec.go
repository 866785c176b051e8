package runner

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/gatehouse-ci/gatehouse/pipeline"
)

// ExecProvider hands out environments backed by scratch directories on the
// host. It's what local runs use; the runlet agent uses Docker instead.
// Isolation here is per-directory, not per-machine, which is good enough
// for a laptop and nothing else.
type ExecProvider struct {
	// Root is the parent directory for scratch checkouts. Empty means
	// the system temp directory.
	Root string
}

// Acquire creates a scratch directory and checks the source out into it.
// A checkout failure surfaces as an environment acquisition failure: the
// job fails before any of its steps run.
func (p *ExecProvider) Acquire(ctx context.Context, job pipeline.Job, src Source) (Environment, error) {
	dir, err := os.MkdirTemp(p.Root, "gatehouse-"+job.Name+"-")
	if err != nil {
		return nil, err
	}

	if src.Remote != "" {
		args := []string{"clone"}
		if src.Branch != "" {
			args = append(args, "--branch", src.Branch)
		}
		args = append(args, src.Remote, ".")

		cmd := exec.CommandContext(ctx, "git", args...)
		cmd.Dir = dir
		if out, err := cmd.CombinedOutput(); err != nil {
			os.RemoveAll(dir)
			return nil, fmt.Errorf("cloning %v: %v: %s", src.Remote, err, out)
		}

		if src.Revision != "" {
			cmd := exec.CommandContext(ctx, "git", "checkout", src.Revision)
			cmd.Dir = dir
			if out, err := cmd.CombinedOutput(); err != nil {
				os.RemoveAll(dir)
				return nil, fmt.Errorf("checking out %v: %v: %s", src.Revision, err, out)
			}
		}
	}

	return &execEnv{dir: dir}, nil
}

type execEnv struct {
	dir string
}

// Install shells out to rustup. Channel or component unavailability shows
// up as a non-zero exit and fails provisioning.
func (env *execEnv) Install(ctx context.Context, tc pipeline.Toolchain) error {
	args := []string{"toolchain", "install", tc.Channel}
	for _, comp := range tc.Components {
		args = append(args, "--component", comp)
	}

	cmd := exec.CommandContext(ctx, "rustup", args...)
	cmd.Dir = env.dir
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("rustup toolchain install %v: %v: %s", tc.Channel, err, out)
	}

	return nil
}

// Exec runs the command through the shell and reports its exit code. The
// default toolchain is threaded in as RUSTUP_TOOLCHAIN rather than mutated
// into the host's rustup settings.
func (env *execEnv) Exec(ctx context.Context, command string, def *pipeline.Toolchain) (int, error) {
	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Dir = env.dir
	cmd.Env = os.Environ()
	if def != nil {
		cmd.Env = append(cmd.Env, "RUSTUP_TOOLCHAIN="+def.Channel)
	}
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	err := cmd.Run()
	if err == nil {
		return 0, nil
	}

	if exit, ok := err.(*exec.ExitError); ok {
		return exit.ExitCode(), nil
	}

	return -1, err
}

func (env *execEnv) Close() error {
	// Refuse to remove anything that doesn't look like ours.
	if !strings.Contains(env.dir, "gatehouse-") {
		return fmt.Errorf("not removing suspicious scratch dir %v", env.dir)
	}

	return os.RemoveAll(env.dir)
}
