package container

import (
	"github.com/alessio/shellescape"
	docker "github.com/fsouza/go-dockerclient"
)

// Labels set on every container created by clusterbench.
const (
	LabelManaged = "clusterbench.managed"
	LabelRole    = "clusterbench.role"
)

// Spec describes one container. It maps onto a docker run invocation.
type Spec struct {
	Name       string
	Image      string
	Hostname   string
	Role       string
	Env        []string
	Entrypoint []string
	Cmd        []string
	Binds      []string
	ExtraHosts []string
	WorkingDir string
	// HostNetwork puts the container in the host network namespace. Cluster roles always use it.
	HostNetwork bool
}

type Mode int

const (
	Detached Mode = iota
	OneOff
	Interactive
)

// Args renders the spec as docker CLI arguments. They are used for command echo and for attaching
// an interactive terminal.
func (s *Spec) Args(mode Mode) []string {
	args := []string{"run"}
	switch mode {
	case Detached:
		args = append(args, "-d")
	case OneOff:
		args = append(args, "--rm")
	case Interactive:
		args = append(args, "--rm", "-it")
	}
	if s.Name != "" {
		args = append(args, "--name", s.Name)
	}
	if s.Hostname != "" {
		args = append(args, "--hostname", s.Hostname)
	}
	if s.HostNetwork {
		args = append(args, "--network", "host")
	}
	for _, h := range s.ExtraHosts {
		args = append(args, "--add-host", h)
	}
	for _, b := range s.Binds {
		args = append(args, "-v", b)
	}
	for _, e := range s.Env {
		args = append(args, "-e", e)
	}
	if s.WorkingDir != "" {
		args = append(args, "-w", s.WorkingDir)
	}
	cmd := s.Cmd
	if len(s.Entrypoint) > 0 {
		args = append(args, "--entrypoint", s.Entrypoint[0])
		cmd = append(append([]string{}, s.Entrypoint[1:]...), s.Cmd...)
	}
	args = append(args, s.Image)
	return append(args, cmd...)
}

// CommandLine is the shell-quoted docker command equivalent to the spec.
func (s *Spec) CommandLine(mode Mode) string {
	return shellescape.QuoteCommand(append([]string{"docker"}, s.Args(mode)...))
}

func (s *Spec) config() *docker.Config {
	labels := map[string]string{LabelManaged: "true"}
	if s.Role != "" {
		labels[LabelRole] = s.Role
	}
	return &docker.Config{
		Hostname:     s.Hostname,
		Image:        s.Image,
		Env:          s.Env,
		Cmd:          s.Cmd,
		Entrypoint:   s.Entrypoint,
		WorkingDir:   s.WorkingDir,
		Labels:       labels,
		AttachStdout: true,
		AttachStderr: true,
	}
}

func (s *Spec) hostConfig() *docker.HostConfig {
	hc := &docker.HostConfig{
		Binds:      s.Binds,
		ExtraHosts: s.ExtraHosts,
	}
	if s.HostNetwork {
		hc.NetworkMode = "host"
	}
	return hc
}
