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

const DefaultSparkImage = "spark:3.5.3-scala2.12-java17-python3-ubuntu"

type SparkInput struct {
	Image     string
	Host      string
	Port      int
	WebUIPort int
	// Master URL (spark://host:port) a worker registers with.
	Master string
	// Worker's advertised address. Left to Spark when empty.
	LocalIP string
	Cores   int
	Memory  string
}

func (in *SparkInput) withDefaults() {
	if in.Image == "" {
		in.Image = DefaultSparkImage
	}
	if in.Port == 0 {
		in.Port = 7077
	}
	if in.WebUIPort == 0 {
		in.WebUIPort = 8080
	}
	if in.Cores == 0 {
		in.Cores = 1
	}
	if in.Memory == "" {
		in.Memory = "1g"
	}
}

type spark struct {
	input SparkInput
}

func init() {
	RegisterFramework("spark", func(a map[string]any) (Framework, error) {
		input := &SparkInput{}
		err := decodeInput(a, input)
		if err != nil {
			return nil, fmt.Errorf("can't convert input to SparkInput: %w", err)
		}
		return NewSpark(input)
	})
}

func NewSpark(input *SparkInput) (Framework, error) {
	s := &spark{input: *input}
	s.input.withDefaults()
	_, err := units.RAMInBytes(s.input.Memory)
	if err != nil {
		return nil, fmt.Errorf("invalid worker memory %q: %w", s.input.Memory, err)
	}
	return s, nil
}

func (s *spark) GetName() string { return "spark" }

func (s *spark) GetInput() map[string]any { return util.StructMap(s.input) }

func (s *spark) Images() []string { return []string{s.input.Image} }

func (s *spark) Roles() []string { return []string{"master", "worker"} }

func (s *spark) ContainerName(role string) string { return "spark-" + role }

func (s *spark) RoleSpec(env *Env, role string) (*RoleSpec, error) {
	spec := &container.Spec{Image: s.input.Image, HostNetwork: true}
	rs := &RoleSpec{Container: spec}
	switch role {
	case "master":
		host, err := env.ResolveHost(s.input.Host)
		if err != nil {
			return nil, err
		}
		spec.Env = []string{
			"SPARK_MASTER_HOST=" + host,
			"SPARK_MASTER_PORT=" + strconv.Itoa(s.input.Port),
			"SPARK_MASTER_WEBUI_PORT=" + strconv.Itoa(s.input.WebUIPort),
			"SPARK_LOCAL_IP=" + host,
		}
		spec.Cmd = []string{"/opt/spark/bin/spark-class", "org.apache.spark.deploy.master.Master"}
		rs.Endpoints = []string{
			fmt.Sprintf("Master URL: spark://%s:%d", host, s.input.Port),
			fmt.Sprintf("Web UI: http://%s:%d", host, s.input.WebUIPort),
		}
	case "worker":
		if s.input.Master == "" {
			return nil, fmt.Errorf("worker needs the master URL")
		}
		spec.Env = []string{
			"SPARK_WORKER_CORES=" + strconv.Itoa(s.input.Cores),
			"SPARK_WORKER_MEMORY=" + s.input.Memory,
		}
		if s.input.LocalIP != "" {
			spec.Env = append(spec.Env, "SPARK_LOCAL_IP="+s.input.LocalIP)
		}
		spec.Cmd = []string{"/opt/spark/bin/spark-class", "org.apache.spark.deploy.worker.Worker", s.input.Master}
		rs.WaitFor = []string{strings.TrimPrefix(s.input.Master, "spark://")}
		rs.Endpoints = []string{
			"Master: " + s.input.Master,
			fmt.Sprintf("Cores: %d, memory: %s", s.input.Cores, s.input.Memory),
		}
	default:
		return nil, fmt.Errorf("unknown spark role %q", role)
	}
	return rs, nil
}

type SparkSubmitInput struct {
	Image  string
	Master string
	// Local path of the PySpark script.
	Script         string
	ExecutorMemory string
	ExecutorCores  int
}

// Where submitted scripts are staged on the container host before being mounted.
const sparkStagingDir = "/tmp/clusterbench-spark"

// SparkSubmit stages the script onto the container host and runs spark-submit in a throwaway container
// with the script mounted at /app/script.py.
func SparkSubmit(ctx context.Context, env *Env, input *SparkSubmitInput, stdout io.Writer) error {
	if input.Master == "" || input.Script == "" {
		return fmt.Errorf("submit needs a master URL and a script")
	}
	f, err := os.Open(input.Script)
	if err != nil {
		return err
	}
	defer f.Close()
	return SparkSubmitReader(ctx, env, input, f, stdout)
}

// SparkSubmitReader is SparkSubmit with the script read from r. input.Script names the staged file.
func SparkSubmitReader(ctx context.Context, env *Env, input *SparkSubmitInput, r io.Reader, stdout io.Writer) error {
	if input.Image == "" {
		input.Image = DefaultSparkImage
	}
	if input.ExecutorMemory == "" {
		input.ExecutorMemory = "1g"
	}
	if input.ExecutorCores == 0 {
		input.ExecutorCores = 1
	}
	_, err := units.RAMInBytes(input.ExecutorMemory)
	if err != nil {
		return fmt.Errorf("invalid executor memory %q: %w", input.ExecutorMemory, err)
	}

	staged := path.Join(sparkStagingDir, path.Base(input.Script))
	err = env.Target.CopyFileTo(r, staged)
	if err != nil {
		return fmt.Errorf("staging %s failed: %w", input.Script, err)
	}

	env.printf("Submitting %s to %s\n", input.Script, input.Master)
	spec := &container.Spec{
		Image:       input.Image,
		HostNetwork: true,
		Binds:       []string{staged + ":/app/script.py:ro"},
		Cmd: []string{
			"/opt/spark/bin/spark-submit",
			"--master", input.Master,
			"--executor-memory", input.ExecutorMemory,
			"--executor-cores", strconv.Itoa(input.ExecutorCores),
			"/app/script.py",
		},
	}
	return env.Engine.RunOnce(ctx, spec, stdout, os.Stderr)
}
