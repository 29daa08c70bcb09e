package benchmarkorchestrator

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/Octogonapus/ClusterBench/benchmark"
	"github.com/Octogonapus/ClusterBench/cluster"
	"github.com/Octogonapus/ClusterBench/container/containertest"
	"github.com/Octogonapus/ClusterBench/report"
	"github.com/Octogonapus/ClusterBench/target/targettest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var calls []string

type stepBenchmark struct {
	Fail bool
}

func (b *stepBenchmark) Cleanup(*benchmark.BenchmarkContext) error {
	calls = append(calls, "cleanup")
	return nil
}

func (b *stepBenchmark) Prepare(*benchmark.BenchmarkContext) error {
	calls = append(calls, "prepare")
	return nil
}

func (b *stepBenchmark) Run(*benchmark.BenchmarkContext) (*benchmark.BenchmarkOutput, error) {
	calls = append(calls, "run")
	if b.Fail {
		return nil, errors.New("query failed")
	}
	return &benchmark.BenchmarkOutput{
		TotalTimeSec: 2,
		Metrics:      []report.Metric{{Name: "Query time", Value: 2, Unit: report.UnitSeconds}},
	}, nil
}

func (b *stepBenchmark) GetName() string          { return "step" }
func (b *stepBenchmark) GetInput() map[string]any { return map[string]any{"Fail": b.Fail} }

func init() {
	benchmark.RegisterBenchmark("plan-test", func(in map[string]any) (benchmark.Benchmark, error) {
		b := &stepBenchmark{}
		err := benchmark.DecodeInput(in, b)
		return b, err
	})
}

type memStore struct {
	saved []*report.BenchmarkReport
}

func (s *memStore) Save(ctx context.Context, rep *report.BenchmarkReport) error {
	s.saved = append(s.saved, rep)
	return nil
}

func (s *memStore) Close() error { return nil }

func setup(t *testing.T) (*PlanOrchestratorInput, *containertest.FakeEngine, *memStore) {
	calls = nil
	eng := containertest.New()
	tgt := targettest.New()
	tgt.Responses["hostname -I"] = targettest.Response{Output: "10.0.0.5\n"}
	store := &memStore{}
	return &PlanOrchestratorInput{
		Env:   &cluster.Env{Engine: eng, Target: tgt},
		Local: targettest.New(),
		Out:   &bytes.Buffer{},
		Store: store,
	}, eng, store
}

const plan = `
steps:
  - kind: cluster
    type: hdfs
    action: start
  - kind: benchmark
    type: plan-test
    action: all
    runs: 2
  - kind: cluster
    type: hdfs
    action: stop
`

func TestLoadPlan(t *testing.T) {
	p, err := LoadPlan(strings.NewReader(plan))
	require.NoError(t, err)
	require.Len(t, p.Steps, 3)
	assert.Equal(t, "benchmark plan-test all", p.Steps[1].String())
	assert.Equal(t, 2, p.Steps[1].Runs)

	p, err = LoadPlan(strings.NewReader(`{"steps": [{"kind": "cluster", "type": "mysql", "action": "start", "input": {"Port": 3307}}]}`))
	require.NoError(t, err)
	assert.Equal(t, 3307, p.Steps[0].Input["Port"])

	_, err = LoadPlan(strings.NewReader("steps:\n  - kind: cluster\n    colour: red\n"))
	require.Error(t, err)
	_, err = LoadPlan(strings.NewReader(""))
	require.Error(t, err)
}

func TestRunPlan(t *testing.T) {
	in, eng, store := setup(t)
	p, err := LoadPlan(strings.NewReader(plan))
	require.NoError(t, err)

	o := NewPlanOrchestrator(in)
	for _, s := range p.Steps {
		require.NoError(t, o.AddStep(s))
	}
	rep, err := o.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, eng.Started, 2)
	assert.Equal(t, "hdfs-namenode", eng.Started[0].Name)
	assert.Equal(t, "hdfs-datanode", eng.Started[1].Name)
	assert.Equal(t, []string{"hdfs-datanode", "hdfs-namenode"}, eng.Stopped)

	assert.Equal(t, []string{"cleanup", "prepare", "run", "run"}, calls)
	require.Len(t, rep.Reports, 1)
	assert.Equal(t, "plan-test", rep.Reports[0].Type)
	assert.Equal(t, rep.Reports, store.saved)
}

func TestRunStopsAtFirstFailure(t *testing.T) {
	in, eng, store := setup(t)
	o := NewPlanOrchestrator(in)
	require.NoError(t, o.AddStep(&Step{Kind: KindBenchmark, Type: "plan-test", Action: "run", Input: map[string]any{"fail": true}}))
	require.NoError(t, o.AddStep(&Step{Kind: KindCluster, Type: "mysql", Action: "start"}))

	rep, err := o.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "step 1")
	assert.Contains(t, err.Error(), "query failed")
	assert.Empty(t, eng.Started)
	require.Len(t, rep.Reports, 1)
	assert.True(t, rep.Reports[0].Failed())
	assert.Len(t, store.saved, 1)
}

func TestAddStepValidates(t *testing.T) {
	in, _, _ := setup(t)
	o := NewPlanOrchestrator(in)
	assert.Error(t, o.AddStep(&Step{Kind: "vm", Type: "hdfs", Action: "start"}))
	assert.Error(t, o.AddStep(&Step{Kind: KindCluster, Type: "hdfs", Action: "run"}))
	assert.Error(t, o.AddStep(&Step{Kind: KindCluster, Type: "hdfs", Action: "start", Role: "gateway"}))
	assert.Error(t, o.AddStep(&Step{Kind: KindCluster, Type: "cassandra", Action: "start"}))
	assert.ErrorIs(t, o.AddStep(&Step{Kind: KindBenchmark, Type: "nope", Action: "run"}), benchmark.ErrUnknownBenchmark)
	assert.Error(t, o.AddStep(&Step{Kind: KindBenchmark, Type: "plan-test", Action: "start"}))
}

func TestAddStepRejectsNameWithoutRole(t *testing.T) {
	in, eng, _ := setup(t)
	o := NewPlanOrchestrator(in)
	err := o.AddStep(&Step{Kind: KindCluster, Type: "hdfs", Action: "start", Name: "hdfs-a"})
	require.ErrorContains(t, err, "needs a role")

	_, err = o.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, eng.Started)
}

func TestSingleRoleSteps(t *testing.T) {
	in, eng, _ := setup(t)
	o := NewPlanOrchestrator(in)
	require.NoError(t, o.AddStep(&Step{Kind: KindCluster, Type: "mysql", Action: "init"}))
	require.NoError(t, o.AddStep(&Step{Kind: KindCluster, Type: "hdfs", Action: "start", Role: "namenode", Name: "nn"}))
	_, err := o.Run(context.Background())
	require.NoError(t, err)
	assert.Len(t, eng.Pulled, 1)
	require.Len(t, eng.Started, 1)
	assert.Equal(t, "nn", eng.Started[0].Name)
}
