package tpcds

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/Octogonapus/ClusterBench/benchmark"
	"github.com/Octogonapus/ClusterBench/cluster"
	"github.com/Octogonapus/ClusterBench/container/containertest"
	"github.com/Octogonapus/ClusterBench/target/targettest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newContext() (*benchmark.BenchmarkContext, *containertest.FakeEngine, *targettest.FakeTarget, *targettest.FakeTarget) {
	eng := containertest.New()
	remote := targettest.New()
	local := targettest.New()
	return &benchmark.BenchmarkContext{
		Ctx:   context.Background(),
		Env:   &cluster.Env{Engine: eng, Target: remote},
		Local: local,
		Out:   &bytes.Buffer{},
	}, eng, remote, local
}

func TestSchema(t *testing.T) {
	assert.Equal(t, []string{"catalog_sales", "warehouse", "ship_mode", "call_center", "date_dim"}, TableNames())
	assert.Len(t, Tables[0].Columns, 34)
	assert.Len(t, Tables[3].Columns, 31)
	assert.Len(t, Tables[4].Columns, 28)
	assert.True(t, strings.HasPrefix(Tables[2].Schema(", "), "sm_ship_mode_sk INT, sm_ship_mode_id STRING"))
	assert.Contains(t, Query99, "LIMIT 100")
}

func TestPaths(t *testing.T) {
	in := &DataInput{HDFSBase: "hdfs://10.0.0.1:9000/bench/tpcds/", ScaleFactor: 2}
	in.WithDefaults()
	assert.Equal(t, "/bench/tpcds/raw/sf2", in.RawPath())
	assert.Equal(t, "hdfs://10.0.0.1:9000/bench/tpcds/raw/sf2/warehouse", in.Location("warehouse"))
	assert.Equal(t, "/tmp/tpcds_sf2", in.LocalDir)

	in = &DataInput{}
	in.WithDefaults()
	assert.Equal(t, "/bench/tpcds/raw/sf1", in.RawPath())
}

func TestEnsureDataUsesExistingLocalData(t *testing.T) {
	ctx, eng, remote, local := newContext()
	for _, name := range TableNames() {
		local.Files["/tmp/tpcds_sf1/"+name+".dat"] = []byte(name + "|1|")
	}
	in := &DataInput{}
	in.WithDefaults()

	require.NoError(t, EnsureData(ctx, in))
	assert.False(t, local.Ran("dsdgen"))
	assert.Equal(t, "warehouse|1|", string(remote.Files["/tmp/hdfs-data/warehouse.dat"]))

	assert.Len(t, eng.ExecsMatching("hdfs dfs -rm -r -f /bench/tpcds/raw/sf1"), 1)
	assert.Len(t, eng.ExecsMatching("-mkdir -p"), 5)
	puts := eng.ExecsMatching("hdfs dfs -put")
	require.Len(t, puts, 5)
	for _, p := range puts {
		assert.Equal(t, DefaultNamenode, p.Name)
	}
	assert.Len(t, eng.ExecsMatching("hdfs dfs -put /opt/hadoop/data/date_dim.dat /bench/tpcds/raw/sf1/date_dim/"), 1)
}

func TestEnsureDataGeneratesWhenMissing(t *testing.T) {
	ctx, _, _, local := newContext()
	local.Responses["test -f"] = targettest.Response{Err: errors.New("exit status 1")}
	in := &DataInput{}
	in.WithDefaults()

	// staging fails because the fake never produced files; generation must have run first
	err := EnsureData(ctx, in)
	require.Error(t, err)
	assert.True(t, local.Ran("git clone https://github.com/databricks/tpcds-kit.git"))
	assert.True(t, local.Ran("./dsdgen -SCALE 1"))
}

func TestUploadFailureIsReported(t *testing.T) {
	ctx, eng, _, local := newContext()
	for _, name := range TableNames() {
		local.Files["/tmp/tpcds_sf1/"+name+".dat"] = []byte("x")
	}
	eng.ExecFunc = func(call containertest.ExecCall, stdout io.Writer) error {
		if strings.Contains(call.Joined(), "-put") && strings.Contains(call.Joined(), "ship_mode") {
			io.WriteString(stdout, "put: No space left\n")
			return errors.New("exit status 1")
		}
		return nil
	}
	in := &DataInput{}
	in.WithDefaults()
	err := EnsureData(ctx, in)
	require.ErrorContains(t, err, "uploading ship_mode failed: put: No space left")
}
