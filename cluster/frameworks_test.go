package cluster

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHDFSDatanode(t *testing.T) {
	env, _, _ := newTestEnv()
	_, err := NewHDFS(&HDFSInput{}).RoleSpec(env, "datanode")
	require.Error(t, err)

	rs, err := NewHDFS(&HDFSInput{Namenode: "hdfs://10.0.0.1:9000"}).RoleSpec(env, "datanode")
	require.NoError(t, err)
	assert.Equal(t, []string{"hdfs", "datanode"}, rs.Container.Cmd)
	assert.Contains(t, rs.Container.Env, "HDFS-SITE.XML_dfs.datanode.address=10.0.0.5:9866")
	assert.Equal(t, []string{"10.0.0.1:9000"}, rs.WaitFor)
	assert.True(t, rs.CleanDataDir)
}

func TestSparkRoles(t *testing.T) {
	env, _, _ := newTestEnv()
	_, err := NewSpark(&SparkInput{Memory: "lots"})
	require.Error(t, err)

	s, err := NewSpark(&SparkInput{Master: "spark://10.0.0.1:7077", Cores: 4, Memory: "4g"})
	require.NoError(t, err)
	rs, err := s.RoleSpec(env, "master")
	require.NoError(t, err)
	assert.Contains(t, rs.Container.Env, "SPARK_MASTER_HOST=10.0.0.5")
	assert.Equal(t, "org.apache.spark.deploy.master.Master", rs.Container.Cmd[1])

	rs, err = s.RoleSpec(env, "worker")
	require.NoError(t, err)
	assert.Equal(t, []string{"SPARK_WORKER_CORES=4", "SPARK_WORKER_MEMORY=4g"}, rs.Container.Env)
	assert.Equal(t, "spark://10.0.0.1:7077", rs.Container.Cmd[2])
	assert.Equal(t, []string{"10.0.0.1:7077"}, rs.WaitFor)
}

func TestSparkSubmitStagesScript(t *testing.T) {
	env, eng, tgt := newTestEnv()
	err := SparkSubmitReader(context.Background(), env, &SparkSubmitInput{Master: "spark://m:7077", Script: "q99.py"}, strings.NewReader("print(1)"), nil)
	require.NoError(t, err)
	assert.Equal(t, "print(1)", string(tgt.Files["/tmp/clusterbench-spark/q99.py"]))
	require.Len(t, eng.OneOffs, 1)
	assert.Equal(t, []string{"/tmp/clusterbench-spark/q99.py:/app/script.py:ro"}, eng.OneOffs[0].Binds)
	assert.Contains(t, eng.OneOffs[0].Cmd, "--executor-memory")
}

func TestHiveMetastoreDB(t *testing.T) {
	env, _, _ := newTestEnv()
	_, err := NewHive(&HiveInput{DBDriver: "oracle"})
	require.Error(t, err)

	h, err := NewHive(&HiveInput{HDFS: "hdfs://nn:9000"})
	require.NoError(t, err)
	rs, err := h.RoleSpec(env, "metastore")
	require.NoError(t, err)
	assert.Contains(t, rs.Container.Env, derbyServiceOpts)
	assert.Contains(t, rs.Container.Env, "CORE_SITE_CONF_fs_defaultFS=hdfs://nn:9000")

	h, err = NewHive(&HiveInput{DBDriver: "postgres", DBURL: "jdbc:postgresql://db/ms", DBUser: "hive"})
	require.NoError(t, err)
	rs, err = h.RoleSpec(env, "metastore")
	require.NoError(t, err)
	assert.Contains(t, rs.Container.Env, "DB_DRIVER=postgres")
	assert.Contains(t, rs.Container.Env, "SERVICE_OPTS=-Djavax.jdo.option.ConnectionURL=jdbc:postgresql://db/ms -Djavax.jdo.option.ConnectionUserName=hive")

	h, err = NewHive(&HiveInput{Metastore: "thrift://10.0.0.1:9083"})
	require.NoError(t, err)
	rs, err = h.RoleSpec(env, "hiveserver2")
	require.NoError(t, err)
	assert.Contains(t, rs.Container.Env, "IS_RESUME=true")
	assert.Equal(t, []string{"10.0.0.1:9083"}, rs.WaitFor)
	assert.Equal(t, "hive-server2", h.ContainerName("hiveserver2"))
}

func TestBeelineStagesScripts(t *testing.T) {
	env, _, tgt := newTestEnv()
	script := filepath.Join(t.TempDir(), "q.sql")
	require.NoError(t, os.WriteFile(script, []byte("SELECT 1;"), 0o644))

	spec, err := BeelineSpec(env, DefaultHiveImage, "10.0.0.1", []string{"--silent=true", "-f", script})
	require.NoError(t, err)
	assert.Equal(t, []string{"/opt/hive/bin/beeline"}, spec.Entrypoint)
	assert.Equal(t, []string{"-u", "jdbc:hive2://10.0.0.1:10000/default", "--silent=true", "-f", "/app/q.sql"}, spec.Cmd)
	assert.Equal(t, []string{"/tmp/clusterbench-hive/q.sql:/app/q.sql:ro"}, spec.Binds)
	assert.Equal(t, "SELECT 1;", string(tgt.Files["/tmp/clusterbench-hive/q.sql"]))
}

func TestHBaseRoles(t *testing.T) {
	env, _, _ := newTestEnv()
	h, err := NewHBase(&HBaseInput{Host: "10.0.0.2", ZooKeeper: "10.0.0.3:2182", RSPort: 16021, HDFS: "hdfs://nn:9000"})
	require.NoError(t, err)

	rs, err := h.RoleSpec(env, "zookeeper")
	require.NoError(t, err)
	assert.Equal(t, DefaultZooKeeperImage, rs.Container.Image)
	assert.Equal(t, "/tmp/zookeeper-data", rs.DataDir)

	rs, err = h.RoleSpec(env, "regionserver")
	require.NoError(t, err)
	assert.Equal(t, []string{"regionserver"}, rs.Container.Cmd)
	assert.Contains(t, rs.Container.Env, "HBASE_ZOOKEEPER_QUORUM=10.0.0.3")
	assert.Contains(t, rs.Container.Env, "HBASE_ZOOKEEPER_PORT=2182")
	assert.Contains(t, rs.Container.Env, "HBASE_REGIONSERVER_PORT=16021")
	assert.Contains(t, rs.Container.Env, "HBASE_ROOTDIR=hdfs://nn:9000/hbase")
	assert.NotContains(t, rs.Container.Env, "HBASE_REGIONSERVER_INFO_PORT=16030")
	assert.Contains(t, rs.Container.ExtraHosts, "hbase-master:10.0.0.2")

	_, err = NewHBase(&HBaseInput{HeapSize: "big"})
	require.Error(t, err)
}

func TestHBaseHostnameFollowsContainerName(t *testing.T) {
	env, eng, _ := newTestEnv()
	h, err := NewHBase(&HBaseInput{Host: "10.0.0.2", ZooKeeper: "10.0.0.3:2181"})
	require.NoError(t, err)
	m := NewManager(h, env)

	require.NoError(t, m.Start(context.Background(), "regionserver", "hbase-rs-1", false))
	spec := eng.Specs["hbase-rs-1"]
	require.NotNil(t, spec)
	assert.Equal(t, "hbase-rs-1", spec.Hostname)
	assert.Contains(t, spec.ExtraHosts, "hbase-rs-1:10.0.0.2")
	assert.NotContains(t, spec.ExtraHosts, "hbase-regionserver:10.0.0.2")
	assert.Contains(t, spec.ExtraHosts, "hbase-master:10.0.0.2")

	require.NoError(t, m.Start(context.Background(), "regionserver", "", false))
	assert.Equal(t, "hbase-regionserver", eng.Specs["hbase-regionserver"].Hostname)
}

func TestHBaseShellPipesCommands(t *testing.T) {
	env, eng, _ := newTestEnv()
	out, err := HBaseShell(context.Background(), env, "hbase-master", "disable 'usertable'")
	require.NoError(t, err)
	assert.Empty(t, out)
	calls := eng.ExecsMatching("disable 'usertable'")
	require.Len(t, calls, 1)
	assert.Equal(t, []string{"/opt/hbase/bin/hbase", "shell"}, calls[0].Cmd)
}

func TestFlinkProperties(t *testing.T) {
	env, _, _ := newTestEnv()
	f, err := NewFlink(&FlinkInput{JobManager: "10.0.0.1"})
	require.NoError(t, err)
	rs, err := f.RoleSpec(env, "taskmanager")
	require.NoError(t, err)
	assert.Equal(t, []string{"FLINK_PROPERTIES=jobmanager.rpc.address: 10.0.0.1\n" +
		"jobmanager.rpc.port: 6123\n" +
		"taskmanager.host: 10.0.0.5\n" +
		"taskmanager.numberOfTaskSlots: 2\n" +
		"taskmanager.memory.process.size: 2g"}, rs.Container.Env)

	rs, err = f.RoleSpec(env, "jobmanager")
	require.NoError(t, err)
	assert.Equal(t, "jobmanager", rs.Container.Hostname)
}

func TestFlinkSQLCopiesScript(t *testing.T) {
	env, eng, _ := newTestEnv()
	require.NoError(t, FlinkSQL(context.Background(), env, "", []byte("SELECT 1;"), nil))
	assert.Equal(t, "SELECT 1;", string(eng.Copied[DefaultFlinkJobManager]["/tmp/job.sql"]))
	require.Len(t, eng.Execs, 1)
	assert.Equal(t, "/opt/flink/bin/sql-client.sh embedded -f /tmp/job.sql", eng.Execs[0].Joined())
}

func TestMySQLServer(t *testing.T) {
	env, _, _ := newTestEnv()
	m := NewMySQL(&MySQLInput{Port: 3307})
	rs, err := m.RoleSpec(env, "server")
	require.NoError(t, err)
	assert.Equal(t, []string{"--port", "3307"}, rs.Container.Cmd[:2])
	assert.Contains(t, rs.Container.Cmd, "--local-infile=1")
	assert.Contains(t, rs.Container.Env, "MYSQL_ROOT_PASSWORD=benchmark")
	assert.NotContains(t, m.GetInput(), "RootPassword")

	spec, err := m.(Commander).CommandSpec(env, []string{"-e", "SHOW DATABASES;"})
	require.NoError(t, err)
	assert.Equal(t, []string{"mysql", "-h", "10.0.0.5", "-P", "3307", "-u", "root", "-pbenchmark", "-D", "tpcc", "-e", "SHOW DATABASES;"}, spec.Cmd)
}

func TestDeserializeFramework(t *testing.T) {
	fw, err := DeserializeFramework(&SerializedFramework{Type: "flink", Input: map[string]any{"slots": "4", "Memory": "4g"}})
	require.NoError(t, err)
	assert.Equal(t, 4, fw.GetInput()["Slots"])

	_, err = DeserializeFramework(&SerializedFramework{Type: "cassandra"})
	require.Error(t, err)

	assert.Equal(t, []string{"flink", "hbase", "hdfs", "hive", "mysql", "spark"}, FrameworkTypes())
}
