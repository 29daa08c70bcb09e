package cluster

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"github.com/Octogonapus/ClusterBench/container"
	"github.com/Octogonapus/ClusterBench/target"
	"github.com/Octogonapus/ClusterBench/util"
	"github.com/alessio/shellescape"
	"go.uber.org/zap"
)

// ErrNotReady is returned when a dependency did not become reachable within the polling budget.
var ErrNotReady = errors.New("dependency not ready")

// Readiness polling budget for TCP dependencies.
var (
	PollAttempts = 30
	PollInterval = 2 * time.Second
)

// Env is what a framework needs to place its roles: the engine that runs containers and the host
// (as a Target) those containers run on.
type Env struct {
	Engine container.Engine
	Target target.Target
	// Operator-facing output: banners and endpoint summaries.
	Out io.Writer
	// Overrides host IP detection when set.
	HostIP string
}

// ResolveHost returns host, or the first address reported by `hostname -I` on the target when host is empty.
func (e *Env) ResolveHost(host string) (string, error) {
	if host != "" {
		return host, nil
	}
	if e.HostIP != "" {
		return e.HostIP, nil
	}
	out, err := e.Target.RunCommand("hostname -I")
	if err != nil {
		return "", fmt.Errorf("detecting host IP on %s failed: %w", e.Target, err)
	}
	fields := strings.Fields(string(out))
	if len(fields) == 0 {
		return "", fmt.Errorf("hostname -I on %s reported no addresses", e.Target)
	}
	e.HostIP = fields[0]
	return e.HostIP, nil
}

func (e *Env) printf(format string, args ...any) {
	if e.Out != nil {
		fmt.Fprintf(e.Out, format, args...)
	}
}

// RoleSpec is everything needed to start one role.
type RoleSpec struct {
	Container *container.Spec
	// Host directory bind-mounted into the container. Created with mode 777 before start.
	DataDir string
	// Remove everything under DataDir before start.
	CleanDataDir bool
	// host:port addresses that must accept connections before the role is started.
	WaitFor []string
	// Human-readable endpoint lines printed after start.
	Endpoints []string
}

// Framework describes one cluster engine and how each of its roles is run.
type Framework interface {
	// Engine name, e.g. "hdfs".
	GetName() string

	// The input the framework was created from.
	GetInput() map[string]any

	// Images pulled by init.
	Images() []string

	// Valid role names.
	Roles() []string

	// Container name used for the role when none is given.
	ContainerName(role string) string

	// Computes the container and host preparation for the role.
	RoleSpec(env *Env, role string) (*RoleSpec, error)
}

// Commander is implemented by frameworks with a one-off client command (`cmd`).
type Commander interface {
	CommandSpec(env *Env, args []string) (*container.Spec, error)
}

// Sheller is implemented by frameworks with an interactive client (`shell`).
type Sheller interface {
	ShellSpec(env *Env) (*container.Spec, error)
}

// WaitForPort dials addr until it accepts a TCP connection, giving up with ErrNotReady after PollAttempts tries.
func WaitForPort(ctx context.Context, addr string) error {
	dialer := net.Dialer{Timeout: PollInterval}
	for i := 0; i < PollAttempts; i++ {
		conn, err := dialer.DialContext(ctx, "tcp", addr)
		if err == nil {
			conn.Close()
			return nil
		}
		zap.L().Debug("waiting for dependency", zap.String("addr", addr), zap.Int("attempt", i+1), zap.Error(err))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(PollInterval):
		}
	}
	return fmt.Errorf("%s not reachable after %d attempts: %w", addr, PollAttempts, ErrNotReady)
}

// PrepareDataDir creates dir on the target with permissions any container user can write to. When clean
// is set, prior contents are removed first from inside a throwaway container, since files written by
// containers are often owned by root.
func PrepareDataDir(ctx context.Context, env *Env, dir string, clean bool) error {
	if clean {
		env.printf("Cleaning up existing data directory: %s\n", dir)
		err := env.Engine.RunOnce(ctx, &container.Spec{
			Image: "alpine",
			Binds: []string{dir + ":/data"},
			Cmd:   []string{"sh", "-c", "rm -rf /data/* /data/.[!.]*"},
		}, nil, nil)
		if err != nil {
			// a data dir that never existed is fine
			zap.L().Debug("cleaning data dir failed", zap.String("dir", dir), zap.Error(err))
		}
	}
	quoted := shellescape.Quote(dir)
	out, err := env.Target.RunCommand(fmt.Sprintf("mkdir -p %s && (chmod 777 %s || true)", quoted, quoted))
	if err != nil {
		return fmt.Errorf("preparing data dir %s failed: %s: %w", dir, util.LastNonEmptyLine(out), err)
	}
	return nil
}

// resolveAddr turns a hostname into an IP for --add-host. Unresolvable names are returned unchanged.
func resolveAddr(host string) string {
	if net.ParseIP(host) != nil {
		return host
	}
	addrs, err := net.LookupHost(host)
	if err != nil || len(addrs) == 0 {
		return host
	}
	return addrs[0]
}

func hasRole(fw Framework, role string) bool {
	for _, r := range fw.Roles() {
		if r == role {
			return true
		}
	}
	return false
}
