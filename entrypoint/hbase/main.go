// Command hbase is the entrypoint of the HBase image. It writes hbase-site.xml from HBASE_*
// environment variables, then replaces itself with `hbase master start`, `hbase regionserver start`
// or `hbase shell`.
package main

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"os"
	"path"
	"text/template"

	"github.com/Octogonapus/ClusterBench/config"
	"github.com/Octogonapus/ClusterBench/logging"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

const defaultHeapSize = "1g"

const siteTemplate = `<?xml version="1.0"?>
<?xml-stylesheet type="text/xsl" href="configuration.xsl"?>
<configuration>
{{- range .}}
  <property>
    <name>{{.Name}}</name>
    <value>{{xmlEscape .Value}}</value>
  </property>
{{- end}}
</configuration>
`

var site = template.Must(template.New("hbase-site.xml").Funcs(template.FuncMap{
	"xmlEscape": func(s string) (string, error) {
		var b bytes.Buffer
		err := xml.EscapeText(&b, []byte(s))
		return b.String(), err
	},
}).Parse(siteTemplate))

type property struct {
	Name  string
	Value string
}

// properties maps the container environment to hbase-site.xml. Optional settings are only written
// when their variable is set.
func properties(getenv func(string, string) string) []property {
	props := []property{
		{"hbase.cluster.distributed", "true"},
		{"hbase.rootdir", getenv("HBASE_ROOTDIR", "file:///data/hbase")},
		{"hbase.zookeeper.quorum", getenv("HBASE_ZOOKEEPER_QUORUM", "zookeeper")},
		{"hbase.zookeeper.property.clientPort", getenv("HBASE_ZOOKEEPER_PORT", "2181")},
		{"hbase.unsafe.stream.capability.enforce", "false"},
		{"hbase.wal.provider", "filesystem"},
	}
	optional := [][2]string{
		{"HBASE_MASTER_HOSTNAME", "hbase.master.hostname"},
		{"HBASE_REGIONSERVER_HOSTNAME", "hbase.regionserver.hostname"},
		{"HBASE_REGIONSERVER_PORT", "hbase.regionserver.port"},
		{"HBASE_REGIONSERVER_INFO_PORT", "hbase.regionserver.info.port"},
	}
	for _, o := range optional {
		if v := getenv(o[0], ""); v != "" {
			props = append(props, property{o[1], v})
		}
	}
	return props
}

func renderSite(props []property) ([]byte, error) {
	var b bytes.Buffer
	err := site.Execute(&b, props)
	return b.Bytes(), err
}

// command returns the argv that replaces this process for role.
func command(hbaseHome, role string) ([]string, error) {
	bin := path.Join(hbaseHome, "bin", "hbase")
	switch role {
	case "master", "regionserver":
		return []string{bin, role, "start"}, nil
	case "shell":
		return []string{bin, "shell"}, nil
	default:
		return nil, fmt.Errorf("unknown role %q (valid roles: master, regionserver, shell)", role)
	}
}

func run(role string) error {
	home := config.StringEnv("HBASE_HOME", "/opt/hbase")
	argv, err := command(home, role)
	if err != nil {
		return err
	}

	props := properties(config.StringEnv)
	buf, err := renderSite(props)
	if err != nil {
		return err
	}
	conf := path.Join(home, "conf", "hbase-site.xml")
	err = os.WriteFile(conf, buf, 0o644)
	if err != nil {
		return fmt.Errorf("writing %s failed: %w", conf, err)
	}
	zap.L().Info("wrote hbase-site.xml", zap.String("path", conf), zap.Int("properties", len(props)))

	err = os.Setenv("HBASE_HEAPSIZE", config.StringEnv("HBASE_HEAPSIZE", defaultHeapSize))
	if err != nil {
		return err
	}
	zap.L().Info("starting hbase", zap.Strings("argv", argv))
	zap.L().Sync()
	return unix.Exec(argv[0], argv, os.Environ())
}

func main() {
	_, err := logging.Setup(config.StringEnv(config.EnvLogLevel, "info"))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	role := "master"
	if len(os.Args) > 1 {
		role = os.Args[1]
	}
	err = run(role)
	if err != nil {
		zap.L().Fatal("hbase entrypoint failed", zap.String("role", role), zap.Error(err))
	}
}
