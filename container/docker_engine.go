package container

import (
	"archive/tar"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path"
	"strings"
	"time"

	"github.com/alessio/shellescape"
	docker "github.com/fsouza/go-dockerclient"
	"go.uber.org/zap"
)

// Seconds a container is given to exit after SIGTERM before it is killed.
const stopTimeoutSec = 10

type dockerEngine struct {
	client   *docker.Client
	endpoint string
	echo     io.Writer
}

type DockerEngineInput struct {
	// Docker daemon endpoint, e.g. unix:///var/run/docker.sock or tcp://10.0.0.1:2375.
	// When empty, DOCKER_HOST and the other standard variables are used.
	Endpoint string
	// Where "+ docker ..." command echo lines are written. Nil disables echo.
	Echo io.Writer
}

func NewDockerEngine(input *DockerEngineInput) (Engine, error) {
	var client *docker.Client
	var err error
	if input.Endpoint == "" {
		client, err = docker.NewClientFromEnv()
	} else {
		client, err = docker.NewClient(input.Endpoint)
	}
	if err != nil {
		return nil, fmt.Errorf("creating docker client failed: %w", err)
	}
	return &dockerEngine{client: client, endpoint: input.Endpoint, echo: input.Echo}, nil
}

func (e *dockerEngine) printCommand(args ...string) {
	if e.echo == nil {
		return
	}
	fmt.Fprintf(e.echo, "+ %s\n", shellescape.QuoteCommand(append([]string{"docker"}, args...)))
}

func (e *dockerEngine) Pull(ctx context.Context, image string, w io.Writer) error {
	e.printCommand("pull", image)
	repo, tag := docker.ParseRepositoryTag(image)
	if tag == "" {
		tag = "latest"
	}
	if w == nil {
		w = io.Discard
	}
	err := e.client.PullImage(docker.PullImageOptions{
		Repository:   repo,
		Tag:          tag,
		OutputStream: w,
		Context:      ctx,
	}, docker.AuthConfiguration{})
	if err != nil {
		return fmt.Errorf("pulling %s failed: %w", image, err)
	}
	return nil
}

func (e *dockerEngine) create(ctx context.Context, spec *Spec) (*docker.Container, error) {
	opts := docker.CreateContainerOptions{
		Name:       spec.Name,
		Config:     spec.config(),
		HostConfig: spec.hostConfig(),
		Context:    ctx,
	}
	c, err := e.client.CreateContainer(opts)
	if errors.Is(err, docker.ErrNoSuchImage) {
		// docker run pulls a missing image before creating; do the same
		zap.L().Debug("image not present, pulling", zap.String("image", spec.Image))
		err = e.Pull(ctx, spec.Image, io.Discard)
		if err != nil {
			return nil, err
		}
		c, err = e.client.CreateContainer(opts)
	}
	if errors.Is(err, docker.ErrContainerAlreadyExists) {
		return nil, fmt.Errorf("container %s already exists: %w", spec.Name, err)
	} else if err != nil {
		return nil, fmt.Errorf("creating container %s failed: %w", spec.Name, err)
	}
	return c, nil
}

func (e *dockerEngine) Run(ctx context.Context, spec *Spec) (string, error) {
	e.printCommand(spec.Args(Detached)...)
	c, err := e.create(ctx, spec)
	if err != nil {
		return "", err
	}
	err = e.client.StartContainerWithContext(c.ID, nil, ctx)
	if err != nil {
		return "", fmt.Errorf("starting container %s failed: %w", spec.Name, err)
	}
	zap.L().Debug("started container", zap.String("name", spec.Name), zap.String("id", c.ID))
	return c.ID, nil
}

func (e *dockerEngine) RunOnce(ctx context.Context, spec *Spec, stdout, stderr io.Writer) error {
	e.printCommand(spec.Args(OneOff)...)
	c, err := e.create(ctx, spec)
	if err != nil {
		return err
	}
	defer func() {
		// the caller's context may already be cancelled; removal must still happen
		rmErr := e.client.RemoveContainer(docker.RemoveContainerOptions{ID: c.ID, Force: true, RemoveVolumes: true})
		if rmErr != nil && !isNoSuchContainer(rmErr) {
			zap.L().Warn("removing one-off container failed", zap.String("id", c.ID), zap.Error(rmErr))
		}
	}()

	err = e.client.StartContainerWithContext(c.ID, nil, ctx)
	if err != nil {
		return fmt.Errorf("starting container for %s failed: %w", spec.Image, err)
	}

	err = e.client.Logs(docker.LogsOptions{
		Context:      ctx,
		Container:    c.ID,
		OutputStream: orDiscard(stdout),
		ErrorStream:  orDiscard(stderr),
		Follow:       true,
		Stdout:       true,
		Stderr:       true,
	})
	if err != nil {
		return fmt.Errorf("streaming output of %s failed: %w", spec.Image, err)
	}

	code, err := e.client.WaitContainerWithContext(c.ID, ctx)
	if err != nil {
		return fmt.Errorf("waiting for %s failed: %w", spec.Image, err)
	}
	if code != 0 {
		return &ExitError{Code: code}
	}
	return nil
}

func (e *dockerEngine) Stop(ctx context.Context, name string) error {
	e.printCommand("stop", name)
	err := e.client.StopContainerWithContext(name, stopTimeoutSec, ctx)
	var notRunning *docker.ContainerNotRunning
	if isNoSuchContainer(err) {
		zap.L().Debug("container already absent", zap.String("name", name))
		return nil
	} else if err != nil && !errors.As(err, &notRunning) {
		return fmt.Errorf("stopping %s failed: %w", name, err)
	}

	e.printCommand("rm", name)
	err = e.client.RemoveContainer(docker.RemoveContainerOptions{ID: name, Force: true, Context: ctx})
	if err != nil && !isNoSuchContainer(err) {
		return fmt.Errorf("removing %s failed: %w", name, err)
	}
	return nil
}

func (e *dockerEngine) Inspect(ctx context.Context, name string) (*State, error) {
	c, err := e.client.InspectContainerWithOptions(docker.InspectContainerOptions{ID: name, Context: ctx})
	if isNoSuchContainer(err) {
		return nil, fmt.Errorf("%s: %w", name, ErrNotFound)
	} else if err != nil {
		return nil, fmt.Errorf("inspecting %s failed: %w", name, err)
	}
	st := &State{
		Name:      strings.TrimPrefix(c.Name, "/"),
		ID:        c.ID,
		Running:   c.State.Running,
		Status:    c.State.Status,
		ExitCode:  c.State.ExitCode,
		StartedAt: c.State.StartedAt,
	}
	if c.Config != nil {
		st.Image = c.Config.Image
	}
	return st, nil
}

func (e *dockerEngine) Logs(ctx context.Context, name string, follow bool, tail string, stdout, stderr io.Writer) error {
	if tail == "" {
		tail = "all"
	}
	err := e.client.Logs(docker.LogsOptions{
		Context:      ctx,
		Container:    name,
		OutputStream: orDiscard(stdout),
		ErrorStream:  orDiscard(stderr),
		Follow:       follow,
		Tail:         tail,
		Stdout:       true,
		Stderr:       true,
	})
	if isNoSuchContainer(err) {
		return fmt.Errorf("%s: %w", name, ErrNotFound)
	} else if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("reading logs of %s failed: %w", name, err)
	}
	return nil
}

func (e *dockerEngine) Exec(ctx context.Context, name string, cmd []string, stdin io.Reader, stdout, stderr io.Writer) error {
	args := append([]string{"exec"}, name)
	e.printCommand(append(args, cmd...)...)
	ex, err := e.client.CreateExec(docker.CreateExecOptions{
		Container:    name,
		Cmd:          cmd,
		AttachStdin:  stdin != nil,
		AttachStdout: true,
		AttachStderr: true,
		Context:      ctx,
	})
	if isNoSuchContainer(err) {
		return fmt.Errorf("%s: %w", name, ErrNotFound)
	} else if err != nil {
		return fmt.Errorf("creating exec in %s failed: %w", name, err)
	}

	err = e.client.StartExec(ex.ID, docker.StartExecOptions{
		InputStream:  stdin,
		OutputStream: orDiscard(stdout),
		ErrorStream:  orDiscard(stderr),
		Context:      ctx,
	})
	if err != nil {
		return fmt.Errorf("running exec in %s failed: %w", name, err)
	}

	// StartExec returns once the streams close; the exit code can lag behind briefly.
	for i := 0; i < 50; i++ {
		inspect, err := e.client.InspectExec(ex.ID)
		if err != nil {
			return fmt.Errorf("inspecting exec in %s failed: %w", name, err)
		}
		if !inspect.Running {
			if inspect.ExitCode != 0 {
				return &ExitError{Code: inspect.ExitCode}
			}
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	return fmt.Errorf("exec in %s did not report an exit status", name)
}

func (e *dockerEngine) CopyTo(ctx context.Context, name string, dir string, files map[string][]byte) error {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	for fileName, content := range files {
		e.printCommand("cp", fileName, name+":"+path.Join(dir, fileName))
		err := tw.WriteHeader(&tar.Header{
			Name:    fileName,
			Mode:    0o644,
			Size:    int64(len(content)),
			ModTime: time.Now(),
		})
		if err != nil {
			return err
		}
		_, err = tw.Write(content)
		if err != nil {
			return err
		}
	}
	err := tw.Close()
	if err != nil {
		return err
	}

	err = e.client.UploadToContainer(name, docker.UploadToContainerOptions{
		InputStream: &buf,
		Path:        dir,
		Context:     ctx,
	})
	if isNoSuchContainer(err) {
		return fmt.Errorf("%s: %w", name, ErrNotFound)
	} else if err != nil {
		return fmt.Errorf("copying into %s:%s failed: %w", name, dir, err)
	}
	return nil
}

func (e *dockerEngine) Attach(ctx context.Context, spec *Spec) error {
	return e.dockerCLI(ctx, spec.Args(Interactive)...)
}

func (e *dockerEngine) AttachExec(ctx context.Context, name string, cmd []string) error {
	return e.dockerCLI(ctx, append([]string{"exec", "-it", name}, cmd...)...)
}

// dockerCLI hands the terminal to the docker CLI, which owns raw-mode TTY handling.
func (e *dockerEngine) dockerCLI(ctx context.Context, args ...string) error {
	e.printCommand(args...)
	cmd := exec.CommandContext(ctx, "docker", args...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if e.endpoint != "" {
		cmd.Env = append(os.Environ(), "DOCKER_HOST="+e.endpoint)
	}
	err := cmd.Run()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return &ExitError{Code: exitErr.ExitCode()}
	}
	return err
}

func isNoSuchContainer(err error) bool {
	var noSuch *docker.NoSuchContainer
	return errors.As(err, &noSuch)
}

func orDiscard(w io.Writer) io.Writer {
	if w == nil {
		return io.Discard
	}
	return w
}
