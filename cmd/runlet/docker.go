package main

import (
	"context"
	"fmt"

	"github.com/gatehouse-ci/gatehouse/pipeline"
	"github.com/gatehouse-ci/gatehouse/runner"

	docker "github.com/fsouza/go-dockerclient"
	"github.com/google/uuid"
)

const (
	gitimg     = "alpine/git:latest"
	defaultimg = "rust:latest"
	cimnt      = "/workspace"
)

// dockerProvider acquires one Docker volume per job and runs every step of
// that job in a fresh container mounting it. Isolation comes from each job
// getting its own volume, never from coordination.
type dockerProvider struct {
	client *docker.Client
}

// Acquire creates the job's volume and populates it with a git clone, the
// checkout half of environment provisioning. A clone failure means no
// environment: the job fails before any step runs.
func (p *dockerProvider) Acquire(ctx context.Context, job pipeline.Job, src runner.Source) (runner.Environment, error) {
	logger := logger.WithField("job", job.Name)

	name := fmt.Sprintf("runlet.%v", uuid.New())

	image := job.Image
	if image == "" {
		image = defaultimg
	}

	if err := p.ensureImage(gitimg); err != nil {
		return nil, fmt.Errorf("verifying git-clone image presence: %v", err)
	}
	if err := p.ensureImage(image); err != nil {
		return nil, fmt.Errorf("verifying job image presence: %v", err)
	}

	vol, err := p.client.CreateVolume(docker.CreateVolumeOptions{
		Name: name,
	})
	if err != nil {
		return nil, fmt.Errorf("creating volume: %v", err)
	}

	logger = logger.WithField("vol", vol.Name)
	logger.Debugf("created volume: %v", vol.Name)

	env := &dockerEnv{
		client: p.client,
		vol:    vol.Name,
		image:  image,
	}

	cloneArgs := []string{"clone"}
	if src.Branch != "" {
		cloneArgs = append(cloneArgs, "--branch", src.Branch)
	}
	cloneArgs = append(cloneArgs, src.Remote, ".")

	logger.Debug("populating volume")

	status, err := env.runContainer(ctx, gitimg, cloneArgs, nil)
	if err == nil && status != 0 {
		err = fmt.Errorf("git clone exited with status %v", status)
	}
	if err != nil {
		logger.WithError(err).Debug("unable to populate volume")

		env.Close()
		return nil, err
	}

	if src.Revision != "" {
		status, err := env.runContainer(ctx, gitimg, []string{"checkout", src.Revision}, nil)
		if err == nil && status != 0 {
			err = fmt.Errorf("git checkout exited with status %v", status)
		}
		if err != nil {
			logger.WithError(err).Debug("unable to check out revision")

			env.Close()
			return nil, err
		}
	}

	logger.Debug("volume populated")

	return env, nil
}

func (p *dockerProvider) ensureImage(image string) error {
	_, err := p.client.InspectImage(image)
	if err == nil {
		return nil
	}
	if err != docker.ErrNoSuchImage {
		return err
	}

	repo, tag := docker.ParseRepositoryTag(image)

	logger.WithField("image", image).Debug("pulling image")

	return p.client.PullImage(docker.PullImageOptions{
		Repository: repo,
		Tag:        tag,
	}, docker.AuthConfiguration{})
}

// dockerEnv runs each step in its own container against the job's volume.
type dockerEnv struct {
	client *docker.Client
	vol    string
	image  string
}

// Install runs rustup in a step container. A missing channel or component
// surfaces as a non-zero exit and fails provisioning.
func (env *dockerEnv) Install(ctx context.Context, tc pipeline.Toolchain) error {
	args := []string{"rustup", "toolchain", "install", tc.Channel}
	for _, comp := range tc.Components {
		args = append(args, "--component", comp)
	}

	status, err := env.runContainer(ctx, env.image, args, nil)
	if err != nil {
		return err
	}
	if status != 0 {
		return fmt.Errorf("rustup toolchain install %v exited with status %v", tc.Channel, status)
	}

	return nil
}

// Exec runs the command through the shell in a step container. The default
// toolchain, when there is one, rides along as RUSTUP_TOOLCHAIN instead of
// being written into the image.
func (env *dockerEnv) Exec(ctx context.Context, command string, def *pipeline.Toolchain) (int, error) {
	var environ []string
	if def != nil {
		environ = append(environ, "RUSTUP_TOOLCHAIN="+def.Channel)
	}

	return env.runContainer(ctx, env.image, []string{"sh", "-c", command}, environ)
}

// Close removes the job's volume. Step containers are already gone by the
// time this runs.
func (env *dockerEnv) Close() error {
	return env.client.RemoveVolume(env.vol)
}

func (env *dockerEnv) runContainer(ctx context.Context, image string, cmd, environ []string) (int, error) {
	container, err := env.client.CreateContainer(docker.CreateContainerOptions{
		Config: &docker.Config{
			Image:      image,
			Cmd:        cmd,
			Env:        environ,
			WorkingDir: cimnt,
		},
		HostConfig: &docker.HostConfig{
			Binds: []string{env.vol + ":" + cimnt},
		},
		Context: ctx,
	})
	if err != nil {
		return -1, fmt.Errorf("creating container: %v", err)
	}
	defer func() {
		err := env.client.RemoveContainer(docker.RemoveContainerOptions{
			ID:    container.ID,
			Force: true,
		})
		if err != nil {
			logger.WithError(err).Warnf("unable to remove container %v", container.ID)
		}
	}()

	err = env.client.StartContainer(container.ID, nil)
	if err != nil {
		return -1, fmt.Errorf("starting container: %v", err)
	}

	status, err := env.client.WaitContainerWithContext(container.ID, ctx)
	if err != nil {
		return -1, fmt.Errorf("waiting on container: %v", err)
	}

	return status, nil
}
