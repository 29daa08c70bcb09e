package main

import (
	"bytes"
	"testing"

	"github.com/Octogonapus/ClusterBench/benchmark"
	"github.com/Octogonapus/ClusterBench/cluster"
	"github.com/Octogonapus/ClusterBench/config"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parsed(t *testing.T, flags []inputFlag, args ...string) *cobra.Command {
	cmd := &cobra.Command{Use: "test"}
	addInputFlags(cmd.Flags(), flags)
	require.NoError(t, cmd.Flags().Parse(args))
	return cmd
}

func TestBuildInput(t *testing.T) {
	cmd := parsed(t, engineFlags["mysql"], "--port", "3307", "--data-dir", "/data/mysql", "--set", "Image=mysql:8.4")
	input, err := buildInput(cmd, engineFlags["mysql"])
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"port": "3307", "datadir": "/data/mysql", "Image": "mysql:8.4"}, input)

	fw, err := cluster.DeserializeFramework(&cluster.SerializedFramework{Type: "mysql", Input: input})
	require.NoError(t, err)
	assert.Equal(t, 3307, fw.GetInput()["Port"])
	assert.Equal(t, "/data/mysql", fw.GetInput()["DataDir"])
}

func TestBuildInputEnvFallback(t *testing.T) {
	t.Setenv(config.EnvMySQLPassword, "s3cret")
	flags := benchFlags["tpch-mysql"]

	input, err := buildInput(parsed(t, flags), flags)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"password": "s3cret"}, input)

	input, err = buildInput(parsed(t, flags, "--password", "other", "--scale-factor", "1"), flags)
	require.NoError(t, err)
	assert.Equal(t, "other", input["password"])

	b, err := benchmark.DeserializeBenchmark(&benchmark.SerializedBenchmark{Type: "tpch-mysql", Input: input})
	require.NoError(t, err)
	assert.Equal(t, 1.0, b.GetInput()["ScaleFactor"])
}

func TestCommandTree(t *testing.T) {
	root := newRootCommand(&app{out: &bytes.Buffer{}})

	for _, path := range [][]string{
		{"hdfs", "start"},
		{"hdfs", "cmd"},
		{"hive", "shell"},
		{"hbase", "shell"},
		{"mysql", "cmd"},
		{"spark", "submit"},
		{"flink", "submit"},
		{"flink", "sql"},
		{"bench", "tpch-mysql", "run-all"},
		{"bench", "flink-sql", "cancel"},
		{"bench", "ycsb-hbase", "load"},
		{"bench", "fio", "run"},
		{"plan"},
	} {
		cmd, _, err := root.Find(path)
		require.NoError(t, err, path)
		assert.Equal(t, path[len(path)-1], cmd.Name())
	}

	cmd, _, _ := root.Find([]string{"hdfs", "submit"})
	assert.Equal(t, "hdfs", cmd.Name())
}

func TestRolesNeedRoleWithName(t *testing.T) {
	fw, err := cluster.DeserializeFramework(&cluster.SerializedFramework{Type: "hdfs"})
	require.NoError(t, err)
	m := cluster.NewManager(fw, nil)

	rs, err := roles(m, nil, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"namenode", "datanode"}, rs)

	rs, err = roles(m, []string{"datanode"}, "hdfs-dn-2")
	require.NoError(t, err)
	assert.Equal(t, []string{"datanode"}, rs)

	_, err = roles(m, nil, "hdfs-dn-2")
	require.ErrorContains(t, err, "needs a role")
}
