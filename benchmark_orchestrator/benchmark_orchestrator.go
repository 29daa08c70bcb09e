package benchmarkorchestrator

import (
	"context"
	"fmt"
	"io"

	"github.com/Octogonapus/ClusterBench/report"
	"gopkg.in/yaml.v3"
)

const (
	KindCluster   = "cluster"
	KindBenchmark = "benchmark"
)

// Step is one entry of a plan file.
type Step struct {
	// "cluster" or "benchmark".
	Kind string `yaml:"kind"`
	// Registered framework or benchmark type, e.g. "hdfs" or "tpch-mysql".
	Type   string `yaml:"type"`
	Action string `yaml:"action"`

	// Cluster steps only. An empty Role starts or stops every role.
	Role string `yaml:"role"`
	Name string `yaml:"name"`
	Wait bool   `yaml:"wait"`

	// Benchmark steps only.
	Runs    int  `yaml:"runs"`
	Monitor bool `yaml:"monitor"`

	Input map[string]any `yaml:"input"`
}

func (s *Step) String() string {
	if s.Role != "" {
		return fmt.Sprintf("%s %s %s (%s)", s.Kind, s.Type, s.Action, s.Role)
	}
	return fmt.Sprintf("%s %s %s", s.Kind, s.Type, s.Action)
}

type Plan struct {
	Steps []*Step `yaml:"steps"`
}

// LoadPlan reads a YAML or JSON plan. Unknown fields are rejected.
func LoadPlan(r io.Reader) (*Plan, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	plan := &Plan{}
	err := dec.Decode(plan)
	if err == io.EOF {
		return nil, fmt.Errorf("plan is empty")
	}
	if err != nil {
		return nil, fmt.Errorf("parsing plan failed: %w", err)
	}
	return plan, nil
}

type Report struct {
	Reports []*report.BenchmarkReport
}

// Runs a plan of cluster and benchmark steps against one environment.
type BenchmarkOrchestrator interface {
	// Add a step to be ran later. Fails when the step's type or action is unknown.
	AddStep(*Step) error

	// Run the steps in order, stopping at the first failure. The report holds every benchmark
	// report produced before the failure.
	Run(ctx context.Context) (*Report, error)
}
