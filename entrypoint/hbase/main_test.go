package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeEnv(vars map[string]string) func(string, string) string {
	return func(key, def string) string {
		if v, ok := vars[key]; ok {
			return v
		}
		return def
	}
}

func TestPropertiesDefaults(t *testing.T) {
	props := properties(fakeEnv(nil))
	assert.Contains(t, props, property{"hbase.rootdir", "file:///data/hbase"})
	assert.Contains(t, props, property{"hbase.zookeeper.quorum", "zookeeper"})
	assert.Contains(t, props, property{"hbase.zookeeper.property.clientPort", "2181"})
	for _, p := range props {
		assert.NotEqual(t, "hbase.master.hostname", p.Name)
	}
}

func TestRenderSite(t *testing.T) {
	props := properties(fakeEnv(map[string]string{
		"HBASE_ROOTDIR":               "hdfs://10.0.0.5:9000/hbase",
		"HBASE_ZOOKEEPER_QUORUM":      "10.0.0.5",
		"HBASE_REGIONSERVER_HOSTNAME": "10.0.0.6",
		"HBASE_REGIONSERVER_PORT":     "16021",
	}))
	buf, err := renderSite(props)
	require.NoError(t, err)
	xml := string(buf)
	assert.Contains(t, xml, "<name>hbase.rootdir</name>\n    <value>hdfs://10.0.0.5:9000/hbase</value>")
	assert.Contains(t, xml, "<value>10.0.0.6</value>")
	assert.Contains(t, xml, "<name>hbase.regionserver.port</name>")
	assert.NotContains(t, xml, "hbase.regionserver.info.port")

	buf, err = renderSite([]property{{"x", "a<b&c"}})
	require.NoError(t, err)
	assert.Contains(t, string(buf), "<value>a&lt;b&amp;c</value>")
}

func TestCommand(t *testing.T) {
	argv, err := command("/opt/hbase", "regionserver")
	require.NoError(t, err)
	assert.Equal(t, []string{"/opt/hbase/bin/hbase", "regionserver", "start"}, argv)

	argv, err = command("/opt/hbase", "shell")
	require.NoError(t, err)
	assert.Equal(t, []string{"/opt/hbase/bin/hbase", "shell"}, argv)

	_, err = command("/opt/hbase", "thrift")
	require.Error(t, err)
}
