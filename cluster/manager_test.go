package cluster

import (
	"bytes"
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/Octogonapus/ClusterBench/container/containertest"
	"github.com/Octogonapus/ClusterBench/target/targettest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEnv() (*Env, *containertest.FakeEngine, *targettest.FakeTarget) {
	eng := containertest.New()
	tgt := targettest.New()
	tgt.Responses["hostname -I"] = targettest.Response{Output: "10.0.0.5 172.17.0.1\n"}
	return &Env{Engine: eng, Target: tgt, Out: &bytes.Buffer{}}, eng, tgt
}

func TestStartStopStartReproducesRole(t *testing.T) {
	env, eng, tgt := newTestEnv()
	m := NewManager(NewHDFS(&HDFSInput{}), env)
	ctx := context.Background()

	require.NoError(t, m.Start(ctx, "namenode", "", false))
	first := eng.Specs["hdfs-namenode"]
	require.NotNil(t, first)
	assert.Contains(t, first.Env, "CORE-SITE.XML_fs.defaultFS=hdfs://10.0.0.5:9000")
	assert.True(t, tgt.Ran("mkdir -p /tmp/hdfs-data"))
	require.Len(t, eng.OneOffs, 1)
	assert.Equal(t, "alpine", eng.OneOffs[0].Image)

	require.NoError(t, m.Stop(ctx, "namenode", ""))
	_, err := eng.Inspect(ctx, "hdfs-namenode")
	require.Error(t, err)

	require.NoError(t, m.Start(ctx, "namenode", "", false))
	assert.Equal(t, first, eng.Specs["hdfs-namenode"])
}

func TestStartReplacesExistingContainer(t *testing.T) {
	env, eng, _ := newTestEnv()
	m := NewManager(NewMySQL(&MySQLInput{}), env)
	ctx := context.Background()

	require.NoError(t, m.Start(ctx, "server", "", false))
	require.NoError(t, m.Start(ctx, "server", "", false))
	assert.Equal(t, []string{"mysql"}, eng.Stopped)
	assert.Len(t, eng.Started, 2)
}

func TestStopMissingContainerSucceeds(t *testing.T) {
	env, _, _ := newTestEnv()
	m := NewManager(NewMySQL(&MySQLInput{}), env)
	require.NoError(t, m.Stop(context.Background(), "server", "mysql-gone"))
}

func TestUnknownRole(t *testing.T) {
	env, _, _ := newTestEnv()
	m := NewManager(NewMySQL(&MySQLInput{}), env)
	err := m.Start(context.Background(), "replica", "", false)
	require.ErrorContains(t, err, "no role")
}

func TestStatus(t *testing.T) {
	env, _, _ := newTestEnv()
	m := NewManager(NewMySQL(&MySQLInput{}), env)
	ctx := context.Background()

	st, err := m.Status(ctx, "server", "")
	require.NoError(t, err)
	assert.Nil(t, st)

	require.NoError(t, m.Start(ctx, "server", "", false))
	st, err = m.Status(ctx, "server", "")
	require.NoError(t, err)
	require.NotNil(t, st)
	assert.True(t, st.Running)
	assert.Contains(t, env.Out.(*bytes.Buffer).String(), "mysql is running")
}

func TestCmdAndShellNeedClient(t *testing.T) {
	env, eng, _ := newTestEnv()
	ctx := context.Background()

	spark, err := NewSpark(&SparkInput{})
	require.NoError(t, err)
	require.Error(t, NewManager(spark, env).Cmd(ctx, []string{"-ls"}))
	require.Error(t, NewManager(spark, env).Shell(ctx))

	require.NoError(t, NewManager(NewHDFS(&HDFSInput{Namenode: "hdfs://nn:9000"}), env).Cmd(ctx, []string{"-ls", "/"}))
	require.Len(t, eng.OneOffs, 1)
	assert.Equal(t, []string{"hdfs", "dfs", "-ls", "/"}, eng.OneOffs[0].Cmd)

	require.NoError(t, NewManager(NewHDFS(&HDFSInput{Namenode: "hdfs://nn:9000"}), env).Shell(ctx))
	require.Len(t, eng.Attached, 1)
	assert.Equal(t, []string{"bash"}, eng.Attached[0].Cmd)
}

func TestExec(t *testing.T) {
	env, eng, _ := newTestEnv()
	m := NewManager(NewHDFS(&HDFSInput{}), env)
	ctx := context.Background()
	require.Error(t, m.Exec(ctx, "namenode", "", nil))
	require.NoError(t, m.Exec(ctx, "namenode", "", []string{"ls", "/opt/hadoop/data"}))
	require.Len(t, eng.Execs, 1)
	assert.Equal(t, "hdfs-namenode", eng.Execs[0].Name)
}

func TestInitPullsImages(t *testing.T) {
	env, eng, _ := newTestEnv()
	hb, err := NewHBase(&HBaseInput{})
	require.NoError(t, err)
	require.NoError(t, NewManager(hb, env).Init(context.Background()))
	assert.Equal(t, []string{DefaultHBaseImage, DefaultZooKeeperImage}, eng.Pulled)
}

func withFastPolling(t *testing.T) {
	attempts, interval := PollAttempts, PollInterval
	PollAttempts, PollInterval = 3, 10*time.Millisecond
	t.Cleanup(func() { PollAttempts, PollInterval = attempts, interval })
}

func TestWaitForPort(t *testing.T) {
	withFastPolling(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, WaitForPort(context.Background(), addr))

	ln.Close()
	err = WaitForPort(context.Background(), addr)
	require.True(t, errors.Is(err, ErrNotReady))
}

func TestStartWaitsForDependencies(t *testing.T) {
	withFastPolling(t)
	env, eng, _ := newTestEnv()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()

	fl, err := NewFlink(&FlinkInput{JobManager: addr})
	require.NoError(t, err)
	err = NewManager(fl, env).Start(context.Background(), "taskmanager", "", true)
	require.ErrorIs(t, err, ErrNotReady)
	assert.Empty(t, eng.Started)
}

func TestResolveHost(t *testing.T) {
	env, _, tgt := newTestEnv()
	host, err := env.ResolveHost("")
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.5", host)

	host, err = env.ResolveHost("192.168.1.1")
	require.NoError(t, err)
	assert.Equal(t, "192.168.1.1", host)

	// detection runs once
	_, err = env.ResolveHost("")
	require.NoError(t, err)
	n := 0
	for _, c := range tgt.Commands {
		if c == "hostname -I" {
			n++
		}
	}
	assert.Equal(t, 1, n)
}
