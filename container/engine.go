package container

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"
)

// ErrNotFound is returned when a named container does not exist.
var ErrNotFound = errors.New("container not found")

// ExitError reports a one-off or exec command that ran but exited non-zero.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exited with status %d", e.Code)
}

// State is the observed state of a named container.
type State struct {
	Name      string
	ID        string
	Image     string
	Running   bool
	Status    string
	ExitCode  int
	StartedAt time.Time
}

// Engine manages named containers. Every cluster role is one container started with host networking.
type Engine interface {
	// Pulls the image, writing progress to w.
	Pull(ctx context.Context, image string, w io.Writer) error

	// Creates and starts a detached container from spec and returns its ID.
	Run(ctx context.Context, spec *Spec) (string, error)

	// Runs spec to completion, streaming its output, then removes the container.
	// A non-zero exit status is returned as *ExitError.
	RunOnce(ctx context.Context, spec *Spec, stdout, stderr io.Writer) error

	// Stops and removes the named container. A container that does not exist is not an error.
	Stop(ctx context.Context, name string) error

	// Returns the named container's state, or an error wrapping ErrNotFound.
	Inspect(ctx context.Context, name string) (*State, error)

	// Writes the container's logs. tail is a line count or "all".
	Logs(ctx context.Context, name string, follow bool, tail string, stdout, stderr io.Writer) error

	// Runs cmd inside the running container. A non-zero exit status is returned as *ExitError.
	Exec(ctx context.Context, name string, cmd []string, stdin io.Reader, stdout, stderr io.Writer) error

	// Writes files (keyed by base name) into dir inside the container.
	CopyTo(ctx context.Context, name string, dir string, files map[string][]byte) error

	// Runs spec attached to the operator's terminal.
	Attach(ctx context.Context, spec *Spec) error

	// Runs cmd inside the named container attached to the operator's terminal.
	AttachExec(ctx context.Context, name string, cmd []string) error
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// ExitCode extracts the status of an *ExitError, returning -1 for other errors and 0 for nil.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return -1
}
