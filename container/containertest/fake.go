// Package containertest provides an in-memory container.Engine for tests.
package containertest

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/Octogonapus/ClusterBench/container"
)

// ExecCall is one recorded Exec or AttachExec.
type ExecCall struct {
	Name  string
	Cmd   []string
	Stdin string
}

// Joined returns the command as one space-separated string, convenient for assertions.
func (c ExecCall) Joined() string {
	return strings.Join(c.Cmd, " ")
}

// FakeEngine keeps containers in a map and records every call.
type FakeEngine struct {
	mu sync.Mutex

	Containers map[string]*container.State
	Specs      map[string]*container.Spec
	Pulled     []string
	Started    []*container.Spec
	Stopped    []string
	OneOffs    []*container.Spec
	Attached   []*container.Spec
	Execs      []ExecCall
	Copied     map[string]map[string][]byte

	// Optional hooks. Output written by a hook goes to the caller's stdout.
	ExecFunc    func(call ExecCall, stdout io.Writer) error
	RunOnceFunc func(spec *container.Spec, stdout io.Writer) error
	LogsOutput  string
}

func New() *FakeEngine {
	return &FakeEngine{
		Containers: map[string]*container.State{},
		Specs:      map[string]*container.Spec{},
		Copied:     map[string]map[string][]byte{},
	}
}

func (f *FakeEngine) Pull(ctx context.Context, image string, w io.Writer) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Pulled = append(f.Pulled, image)
	return nil
}

func (f *FakeEngine) Run(ctx context.Context, spec *container.Spec) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.Containers[spec.Name]; ok {
		return "", fmt.Errorf("container %s already exists", spec.Name)
	}
	id := fmt.Sprintf("id-%d", len(f.Started)+1)
	f.Containers[spec.Name] = &container.State{Name: spec.Name, ID: id, Image: spec.Image, Running: true, Status: "running"}
	f.Specs[spec.Name] = spec
	f.Started = append(f.Started, spec)
	return id, nil
}

func (f *FakeEngine) RunOnce(ctx context.Context, spec *container.Spec, stdout, stderr io.Writer) error {
	f.mu.Lock()
	f.OneOffs = append(f.OneOffs, spec)
	hook := f.RunOnceFunc
	f.mu.Unlock()
	if hook != nil {
		if stdout == nil {
			stdout = io.Discard
		}
		return hook(spec, stdout)
	}
	return nil
}

func (f *FakeEngine) Stop(ctx context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Stopped = append(f.Stopped, name)
	delete(f.Containers, name)
	return nil
}

func (f *FakeEngine) Inspect(ctx context.Context, name string) (*container.State, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	st, ok := f.Containers[name]
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, container.ErrNotFound)
	}
	cp := *st
	return &cp, nil
}

func (f *FakeEngine) Logs(ctx context.Context, name string, follow bool, tail string, stdout, stderr io.Writer) error {
	f.mu.Lock()
	_, ok := f.Containers[name]
	out := f.LogsOutput
	f.mu.Unlock()
	if !ok {
		return fmt.Errorf("%s: %w", name, container.ErrNotFound)
	}
	if stdout != nil {
		io.WriteString(stdout, out)
	}
	return nil
}

func (f *FakeEngine) Exec(ctx context.Context, name string, cmd []string, stdin io.Reader, stdout, stderr io.Writer) error {
	call := ExecCall{Name: name, Cmd: cmd}
	if stdin != nil {
		buf, err := io.ReadAll(stdin)
		if err != nil {
			return err
		}
		call.Stdin = string(buf)
	}
	f.mu.Lock()
	f.Execs = append(f.Execs, call)
	hook := f.ExecFunc
	f.mu.Unlock()
	if hook != nil {
		if stdout == nil {
			stdout = io.Discard
		}
		return hook(call, stdout)
	}
	return nil
}

func (f *FakeEngine) CopyTo(ctx context.Context, name string, dir string, files map[string][]byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for fileName, content := range files {
		key := strings.TrimSuffix(dir, "/") + "/" + fileName
		if f.Copied[name] == nil {
			f.Copied[name] = map[string][]byte{}
		}
		f.Copied[name][key] = content
	}
	return nil
}

func (f *FakeEngine) Attach(ctx context.Context, spec *container.Spec) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Attached = append(f.Attached, spec)
	return nil
}

func (f *FakeEngine) AttachExec(ctx context.Context, name string, cmd []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Execs = append(f.Execs, ExecCall{Name: name, Cmd: cmd})
	return nil
}

// ExecsMatching returns the recorded exec calls whose joined command contains substr.
func (f *FakeEngine) ExecsMatching(substr string) []ExecCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []ExecCall
	for _, c := range f.Execs {
		if strings.Contains(c.Joined(), substr) || strings.Contains(c.Stdin, substr) {
			out = append(out, c)
		}
	}
	return out
}
