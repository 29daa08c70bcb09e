package cluster

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"strconv"
	"strings"

	"github.com/Octogonapus/ClusterBench/container"
	"github.com/Octogonapus/ClusterBench/util"
	units "github.com/docker/go-units"
)

const (
	DefaultFlinkImage      = "flink:1.18-java11"
	DefaultFlinkJobManager = "flink-jobmanager"
)

type FlinkInput struct {
	Image     string
	Host      string
	RPCPort   int
	WebUIPort int
	// JobManager RPC address (host:port) a TaskManager registers with.
	JobManager string
	// TaskManager's advertised address. Detected from the target when empty.
	LocalIP string
	Slots   int
	Memory  string
}

func (in *FlinkInput) withDefaults() {
	if in.Image == "" {
		in.Image = DefaultFlinkImage
	}
	if in.RPCPort == 0 {
		in.RPCPort = 6123
	}
	if in.WebUIPort == 0 {
		in.WebUIPort = 8081
	}
	if in.Slots == 0 {
		in.Slots = 2
	}
	if in.Memory == "" {
		in.Memory = "2g"
	}
}

type flink struct {
	input FlinkInput
}

func init() {
	RegisterFramework("flink", func(a map[string]any) (Framework, error) {
		input := &FlinkInput{}
		err := decodeInput(a, input)
		if err != nil {
			return nil, fmt.Errorf("can't convert input to FlinkInput: %w", err)
		}
		return NewFlink(input)
	})
}

func NewFlink(input *FlinkInput) (Framework, error) {
	f := &flink{input: *input}
	f.input.withDefaults()
	_, err := units.RAMInBytes(f.input.Memory)
	if err != nil {
		return nil, fmt.Errorf("invalid taskmanager memory %q: %w", f.input.Memory, err)
	}
	return f, nil
}

func (f *flink) GetName() string { return "flink" }

func (f *flink) GetInput() map[string]any { return util.StructMap(f.input) }

func (f *flink) Images() []string { return []string{f.input.Image} }

func (f *flink) Roles() []string { return []string{"jobmanager", "taskmanager"} }

func (f *flink) ContainerName(role string) string { return "flink-" + role }

func flinkProperties(props [][2]string) string {
	lines := make([]string, 0, len(props))
	for _, p := range props {
		lines = append(lines, p[0]+": "+p[1])
	}
	return strings.Join(lines, "\n")
}

func (f *flink) RoleSpec(env *Env, role string) (*RoleSpec, error) {
	spec := &container.Spec{Image: f.input.Image, HostNetwork: true}
	rs := &RoleSpec{Container: spec}
	switch role {
	case "jobmanager":
		host, err := env.ResolveHost(f.input.Host)
		if err != nil {
			return nil, err
		}
		props := flinkProperties([][2]string{
			{"jobmanager.rpc.address", host},
			{"jobmanager.rpc.port", strconv.Itoa(f.input.RPCPort)},
			{"rest.address", host},
			{"rest.port", strconv.Itoa(f.input.WebUIPort)},
		})
		spec.Hostname = "jobmanager"
		spec.Env = []string{"FLINK_PROPERTIES=" + props}
		spec.Cmd = []string{"jobmanager"}
		rs.Endpoints = []string{
			fmt.Sprintf("RPC Address: %s:%d", host, f.input.RPCPort),
			fmt.Sprintf("Web UI: http://%s:%d", host, f.input.WebUIPort),
		}
	case "taskmanager":
		if f.input.JobManager == "" {
			return nil, fmt.Errorf("taskmanager needs the jobmanager address")
		}
		localIP, err := env.ResolveHost(f.input.LocalIP)
		if err != nil {
			return nil, err
		}
		jmHost, jmPort := util.SplitHostPort(f.input.JobManager, "6123")
		props := flinkProperties([][2]string{
			{"jobmanager.rpc.address", jmHost},
			{"jobmanager.rpc.port", jmPort},
			{"taskmanager.host", localIP},
			{"taskmanager.numberOfTaskSlots", strconv.Itoa(f.input.Slots)},
			{"taskmanager.memory.process.size", f.input.Memory},
		})
		spec.Env = []string{"FLINK_PROPERTIES=" + props}
		spec.Cmd = []string{"taskmanager"}
		rs.WaitFor = []string{jmHost + ":" + jmPort}
		rs.Endpoints = []string{
			"JobManager: " + f.input.JobManager,
			"Local IP: " + localIP,
			fmt.Sprintf("Task Slots: %d, memory: %s", f.input.Slots, f.input.Memory),
		}
	default:
		return nil, fmt.Errorf("unknown flink role %q", role)
	}
	return rs, nil
}

type FlinkSubmitInput struct {
	// Local path of the job jar.
	Jar         string
	JobManager  string
	Parallelism int
	Class       string
	Args        []string
	// JobManager container the jar is copied into.
	Container string
}

// FlinkSubmit copies a jar into the JobManager container and runs `flink run` there.
func FlinkSubmit(ctx context.Context, env *Env, input *FlinkSubmitInput) error {
	if input.Container == "" {
		input.Container = DefaultFlinkJobManager
	}
	if input.Parallelism == 0 {
		input.Parallelism = 4
	}
	jar, err := os.ReadFile(input.Jar)
	if err != nil {
		return err
	}
	name := path.Base(input.Jar)
	err = env.Engine.CopyTo(ctx, input.Container, "/tmp", map[string][]byte{name: jar})
	if err != nil {
		return err
	}

	cmd := []string{"/opt/flink/bin/flink", "run", "-m", input.JobManager, "-p", strconv.Itoa(input.Parallelism)}
	if input.Class != "" {
		cmd = append(cmd, "-c", input.Class)
	}
	cmd = append(cmd, "/tmp/"+name)
	cmd = append(cmd, input.Args...)

	env.printf("Submitting %s to %s (parallelism %d)\n", input.Jar, input.JobManager, input.Parallelism)
	err = env.Engine.Exec(ctx, input.Container, cmd, nil, env.Out, os.Stderr)
	if err != nil {
		return fmt.Errorf("job submission failed: %w", err)
	}
	env.printf("Job submitted successfully\n")
	return nil
}

// FlinkSQL copies a SQL script into the JobManager container and runs it with the embedded SQL client.
func FlinkSQL(ctx context.Context, env *Env, containerName string, sql []byte, stdout io.Writer) error {
	if containerName == "" {
		containerName = DefaultFlinkJobManager
	}
	err := env.Engine.CopyTo(ctx, containerName, "/tmp", map[string][]byte{"job.sql": sql})
	if err != nil {
		return err
	}
	err = env.Engine.Exec(ctx, containerName, []string{"/opt/flink/bin/sql-client.sh", "embedded", "-f", "/tmp/job.sql"}, nil, stdout, stdout)
	if err != nil {
		return fmt.Errorf("sql client failed: %w", err)
	}
	return nil
}
