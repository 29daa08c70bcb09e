package cluster

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/Octogonapus/ClusterBench/container"
	"go.uber.org/zap"
)

// Manager runs the lifecycle operations of one framework.
type Manager struct {
	fw  Framework
	env *Env
}

func NewManager(fw Framework, env *Env) *Manager {
	return &Manager{fw: fw, env: env}
}

func (m *Manager) Framework() Framework {
	return m.fw
}

func (m *Manager) containerName(role, name string) (string, error) {
	if !hasRole(m.fw, role) {
		return "", fmt.Errorf("%s has no role %q (valid roles: %v)", m.fw.GetName(), role, m.fw.Roles())
	}
	if name != "" {
		return name, nil
	}
	return m.fw.ContainerName(role), nil
}

// Init pulls every image the framework uses.
func (m *Manager) Init(ctx context.Context) error {
	for _, image := range m.fw.Images() {
		m.env.printf("Pulling image: %s\n", image)
		err := m.env.Engine.Pull(ctx, image, m.env.Out)
		if err != nil {
			return err
		}
	}
	m.env.printf("Init complete.\n")
	return nil
}

// Start creates the role's container. A container already holding the name is removed first, so
// starting with the same flags always converges to the same role.
func (m *Manager) Start(ctx context.Context, role, name string, wait bool) error {
	name, err := m.containerName(role, name)
	if err != nil {
		return err
	}
	rs, err := m.fw.RoleSpec(m.env, role)
	if err != nil {
		return err
	}
	rs.Container.Name = name
	rs.Container.Role = m.fw.GetName() + "-" + role
	renameHost(rs.Container, m.fw.ContainerName(role), name)

	_, err = m.env.Engine.Inspect(ctx, name)
	if err == nil {
		zap.L().Warn("replacing existing container", zap.String("name", name))
		err = m.env.Engine.Stop(ctx, name)
		if err != nil {
			return err
		}
	} else if !container.IsNotFound(err) {
		return err
	}

	if rs.DataDir != "" {
		err = PrepareDataDir(ctx, m.env, rs.DataDir, rs.CleanDataDir)
		if err != nil {
			return err
		}
	}

	if wait {
		for _, addr := range rs.WaitFor {
			m.env.printf("Waiting for %s...\n", addr)
			err = WaitForPort(ctx, addr)
			if err != nil {
				return err
			}
		}
	}

	m.env.printf("Starting %s %s...\n", m.fw.GetName(), role)
	m.env.printf("  Image: %s\n", rs.Container.Image)
	for _, e := range rs.Endpoints {
		m.env.printf("  %s\n", e)
	}
	if rs.DataDir != "" {
		m.env.printf("  Data dir: %s\n", rs.DataDir)
	}
	_, err = m.env.Engine.Run(ctx, rs.Container)
	if err != nil {
		return err
	}
	zap.L().Info("started role", zap.String("framework", m.fw.GetName()), zap.String("role", role), zap.String("container", name))
	m.env.printf("Started. Container: %s\n", name)
	return nil
}

// renameHost points a role that uses its default container name as hostname at the overriding name.
func renameHost(spec *container.Spec, def, name string) {
	if name == def || spec.Hostname != def {
		return
	}
	spec.Hostname = name
	for i, h := range spec.ExtraHosts {
		if strings.HasPrefix(h, def+":") {
			spec.ExtraHosts[i] = name + strings.TrimPrefix(h, def)
		}
	}
}

// Stop removes the role's container. A missing container is not an error.
func (m *Manager) Stop(ctx context.Context, role, name string) error {
	name, err := m.containerName(role, name)
	if err != nil {
		return err
	}
	m.env.printf("Stopping %s...\n", name)
	err = m.env.Engine.Stop(ctx, name)
	if err != nil {
		return err
	}
	m.env.printf("Stopped.\n")
	return nil
}

// Status returns the role's container state, or nil when no such container exists.
func (m *Manager) Status(ctx context.Context, role, name string) (*container.State, error) {
	name, err := m.containerName(role, name)
	if err != nil {
		return nil, err
	}
	st, err := m.env.Engine.Inspect(ctx, name)
	if container.IsNotFound(err) {
		m.env.printf("%s is not running\n", name)
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	if st.Running {
		m.env.printf("%s is running (image %s, started %s)\n", name, st.Image, st.StartedAt.Format("2006-01-02 15:04:05"))
	} else {
		m.env.printf("%s is not running (status %s, exit code %d)\n", name, st.Status, st.ExitCode)
	}
	return st, nil
}

func (m *Manager) Logs(ctx context.Context, role, name string, follow bool, tail string) error {
	name, err := m.containerName(role, name)
	if err != nil {
		return err
	}
	return m.env.Engine.Logs(ctx, name, follow, tail, m.env.Out, os.Stderr)
}

// Exec runs cmd inside the role's running container.
func (m *Manager) Exec(ctx context.Context, role, name string, cmd []string) error {
	name, err := m.containerName(role, name)
	if err != nil {
		return err
	}
	if len(cmd) == 0 {
		return errors.New("exec needs a command")
	}
	return m.env.Engine.Exec(ctx, name, cmd, nil, m.env.Out, os.Stderr)
}

// Cmd runs the framework's client once in a throwaway container.
func (m *Manager) Cmd(ctx context.Context, args []string) error {
	c, ok := m.fw.(Commander)
	if !ok {
		return fmt.Errorf("%s has no cmd client", m.fw.GetName())
	}
	spec, err := c.CommandSpec(m.env, args)
	if err != nil {
		return err
	}
	return m.env.Engine.RunOnce(ctx, spec, m.env.Out, os.Stderr)
}

// Shell attaches the operator's terminal to the framework's interactive client.
func (m *Manager) Shell(ctx context.Context) error {
	s, ok := m.fw.(Sheller)
	if !ok {
		return fmt.Errorf("%s has no interactive shell", m.fw.GetName())
	}
	spec, err := s.ShellSpec(m.env)
	if err != nil {
		return err
	}
	return m.env.Engine.Attach(ctx, spec)
}
