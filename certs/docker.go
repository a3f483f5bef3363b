package certs

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"

	"github.com/containerd/errdefs"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
)

// DefaultDockerImage ships openssl as its entrypoint.
const DefaultDockerImage = "alpine/openssl:latest"

const containerWorkDir = "/work"

// containerSpec is the subset of a container definition the generator needs.
type containerSpec struct {
	Image      string
	Cmd        []string
	Binds      []string
	User       string
	WorkingDir string
}

// containerRuntime runs a one-shot container and reports its exit status.
type containerRuntime interface {
	Run(ctx context.Context, spec containerSpec, stdout, stderr io.Writer) (int64, error)
	Close() error
}

// Docker generates certificates by running openssl inside a container, with the
// certificate's directory bind-mounted.
type Docker struct {
	Image  string
	Params Params

	Stdout io.Writer
	Stderr io.Writer

	runtime containerRuntime
}

// NewDocker returns a Docker generator using the daemon configured by DOCKER_HOST.
func NewDocker(image string, params Params) *Docker {
	if image == "" {
		image = DefaultDockerImage
	}
	return &Docker{
		Image:  image,
		Params: params,
		Stdout: os.Stdout,
		Stderr: os.Stderr,
	}
}

func (d *Docker) Name() string {
	return "docker " + d.Image
}

// Generate runs `openssl req` in a container writing into the host directory of path.
func (d *Docker) Generate(ctx context.Context, target string) error {
	genErr := &GenerationError{Tool: d.Name()}

	if err := d.Params.validate(); err != nil {
		genErr.Err = err
		return genErr
	}

	dir, err := filepath.Abs(filepath.Dir(target))
	if err != nil {
		genErr.Err = fmt.Errorf("resolve certificate directory: %w", err)
		return genErr
	}

	spec := d.spec(dir, filepath.Base(target))
	genErr.Args = spec.Cmd

	rt := d.runtime
	if rt == nil {
		drt, err := newDockerRuntime()
		if err != nil {
			genErr.Err = err
			return genErr
		}
		rt = drt
		defer rt.Close()
	}

	code, err := rt.Run(ctx, spec, d.Stdout, d.Stderr)
	if err != nil {
		genErr.Err = err
		return genErr
	}
	if code != 0 {
		genErr.ExitCode = int(code)
		genErr.Err = fmt.Errorf("container exited with status %d", code)
		return genErr
	}
	return nil
}

func (d *Docker) spec(hostDir, base string) containerSpec {
	spec := containerSpec{
		Image:      d.Image,
		Cmd:        d.Params.opensslArgs(path.Join(containerWorkDir, base)),
		Binds:      []string{fmt.Sprintf("%s:%s", hostDir, containerWorkDir)},
		WorkingDir: containerWorkDir,
	}
	// Files written in the bind mount should belong to the invoking user.
	if uid, gid := os.Getuid(), os.Getgid(); uid >= 0 && gid >= 0 {
		spec.User = fmt.Sprintf("%d:%d", uid, gid)
	}
	return spec
}

type dockerRuntime struct {
	cli *client.Client
}

func newDockerRuntime() (*dockerRuntime, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create Docker client: %w", err)
	}
	return &dockerRuntime{cli: cli}, nil
}

func (r *dockerRuntime) Close() error {
	return r.cli.Close()
}

func (r *dockerRuntime) ensureImage(ctx context.Context, ref string) error {
	_, err := r.cli.ImageInspect(ctx, ref)
	if err == nil {
		return nil
	}
	if !errdefs.IsNotFound(err) {
		return fmt.Errorf("failed to inspect image %s: %w", ref, err)
	}

	rc, err := r.cli.ImagePull(ctx, ref, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("failed to pull image %s: %w", ref, err)
	}
	defer rc.Close()

	// The pull only completes once its progress stream is drained.
	if _, err := io.Copy(io.Discard, rc); err != nil {
		return fmt.Errorf("failed to pull image %s: %w", ref, err)
	}
	return nil
}

func (r *dockerRuntime) Run(ctx context.Context, spec containerSpec, stdout, stderr io.Writer) (int64, error) {
	if err := r.ensureImage(ctx, spec.Image); err != nil {
		return 0, err
	}

	resp, err := r.cli.ContainerCreate(ctx,
		&container.Config{
			Image:      spec.Image,
			Cmd:        spec.Cmd,
			User:       spec.User,
			WorkingDir: spec.WorkingDir,
		},
		&container.HostConfig{
			Binds: spec.Binds,
		},
		nil,
		nil,
		"",
	)
	if err != nil {
		return 0, fmt.Errorf("failed to create container: %w", err)
	}
	defer func() {
		_ = r.cli.ContainerRemove(context.Background(), resp.ID, container.RemoveOptions{Force: true})
	}()

	statusCh, errCh := r.cli.ContainerWait(ctx, resp.ID, container.WaitConditionNextExit)

	if err := r.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return 0, fmt.Errorf("failed to start container: %w", err)
	}

	logs, err := r.cli.ContainerLogs(ctx, resp.ID, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Follow:     true,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to attach container logs: %w", err)
	}
	defer logs.Close()

	if stdout == nil {
		stdout = io.Discard
	}
	if stderr == nil {
		stderr = io.Discard
	}
	if _, err := stdcopy.StdCopy(stdout, stderr, logs); err != nil {
		return 0, fmt.Errorf("failed to read container logs: %w", err)
	}

	select {
	case err := <-errCh:
		return 0, fmt.Errorf("failed to wait for container: %w", err)
	case status := <-statusCh:
		if status.Error != nil {
			return status.StatusCode, fmt.Errorf("container wait: %s", status.Error.Message)
		}
		return status.StatusCode, nil
	}
}
