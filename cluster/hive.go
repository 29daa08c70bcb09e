package cluster

import (
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/Octogonapus/ClusterBench/container"
	"github.com/Octogonapus/ClusterBench/util"
)

const (
	DefaultHiveImage = "apache/hive:4.0.1"
	hiveDataMount    = "/opt/hive/data"
	derbyServiceOpts = "SERVICE_OPTS=-Djavax.jdo.option.ConnectionURL=jdbc:derby:" + hiveDataMount + "/metastore_db;create=true"
	// Where beeline -f scripts are staged on the container host.
	hiveStagingDir = "/tmp/clusterbench-hive"
)

type HiveInput struct {
	Image         string
	Host          string
	HDFS          string
	DataDir       string
	MetastorePort int
	// Metastore database: derby (default), postgres or mysql.
	DBDriver   string
	DBURL      string
	DBUser     string
	DBPassword string
	Port       int
	WebUIPort  int
	// Remote metastore URI (thrift://host:port) for HiveServer2. Embedded Derby when empty.
	Metastore string
	// HiveServer2 address (host:port) used by cmd and shell.
	HiveServer2 string
}

func (in *HiveInput) withDefaults() {
	if in.Image == "" {
		in.Image = DefaultHiveImage
	}
	if in.DataDir == "" {
		in.DataDir = "/tmp/hive-data"
	}
	if in.MetastorePort == 0 {
		in.MetastorePort = 9083
	}
	if in.Port == 0 {
		in.Port = 10000
	}
	if in.WebUIPort == 0 {
		in.WebUIPort = 10002
	}
}

type hive struct {
	input HiveInput
}

func init() {
	RegisterFramework("hive", func(a map[string]any) (Framework, error) {
		input := &HiveInput{}
		err := decodeInput(a, input)
		if err != nil {
			return nil, fmt.Errorf("can't convert input to HiveInput: %w", err)
		}
		return NewHive(input)
	})
}

func NewHive(input *HiveInput) (Framework, error) {
	h := &hive{input: *input}
	h.input.withDefaults()
	switch h.input.DBDriver {
	case "", "derby", "postgres", "mysql":
	default:
		return nil, fmt.Errorf("unsupported metastore db driver %q", h.input.DBDriver)
	}
	return h, nil
}

func (h *hive) GetName() string { return "hive" }

func (h *hive) GetInput() map[string]any { return util.StructMap(h.input) }

func (h *hive) Images() []string { return []string{h.input.Image} }

func (h *hive) Roles() []string { return []string{"metastore", "hiveserver2"} }

func (h *hive) ContainerName(role string) string {
	if role == "metastore" {
		return "hive-metastore"
	}
	return "hive-server2"
}

func (h *hive) warehouseEnv() []string {
	if h.input.HDFS == "" {
		return nil
	}
	return []string{
		"HIVE_SITE_CONF_hive_metastore_warehouse_dir=" + h.input.HDFS + "/user/hive/warehouse",
		"CORE_SITE_CONF_fs_defaultFS=" + h.input.HDFS,
	}
}

func (h *hive) RoleSpec(env *Env, role string) (*RoleSpec, error) {
	host, err := env.ResolveHost(h.input.Host)
	if err != nil {
		return nil, err
	}
	spec := &container.Spec{
		Image:       h.input.Image,
		HostNetwork: true,
		Binds:       []string{h.input.DataDir + ":" + hiveDataMount + ":rw"},
	}
	rs := &RoleSpec{Container: spec, DataDir: h.input.DataDir}

	switch role {
	case "metastore":
		spec.Env = []string{"SERVICE_NAME=metastore"}
		if h.input.DBDriver != "" && h.input.DBDriver != "derby" {
			spec.Env = append(spec.Env, "DB_DRIVER="+h.input.DBDriver)
			var opts []string
			if h.input.DBURL != "" {
				opts = append(opts, "-Djavax.jdo.option.ConnectionURL="+h.input.DBURL)
			}
			if h.input.DBUser != "" {
				opts = append(opts, "-Djavax.jdo.option.ConnectionUserName="+h.input.DBUser)
			}
			if h.input.DBPassword != "" {
				opts = append(opts, "-Djavax.jdo.option.ConnectionPassword="+h.input.DBPassword)
			}
			if len(opts) > 0 {
				spec.Env = append(spec.Env, "SERVICE_OPTS="+strings.Join(opts, " "))
			}
		} else {
			spec.Env = append(spec.Env, derbyServiceOpts)
		}
		spec.Env = append(spec.Env, h.warehouseEnv()...)
		rs.Endpoints = []string{fmt.Sprintf("Metastore URI: thrift://%s:%d", host, h.input.MetastorePort)}
	case "hiveserver2":
		spec.Env = []string{
			"SERVICE_NAME=hiveserver2",
			"HIVE_SITE_CONF_hive_server2_authentication=NONE",
		}
		spec.Env = append(spec.Env, h.warehouseEnv()...)
		if h.input.Metastore != "" {
			spec.Env = append(spec.Env,
				"HIVE_SITE_CONF_hive_metastore_uris="+h.input.Metastore,
				"IS_RESUME=true",
			)
			rs.WaitFor = []string{strings.TrimPrefix(h.input.Metastore, "thrift://")}
		} else {
			spec.Env = append(spec.Env, derbyServiceOpts)
		}
		rs.Endpoints = []string{
			fmt.Sprintf("JDBC URL: jdbc:hive2://%s:%d/default", host, h.input.Port),
			fmt.Sprintf("Web UI: http://%s:%d", host, h.input.WebUIPort),
		}
	default:
		return nil, fmt.Errorf("unknown hive role %q", role)
	}
	return rs, nil
}

func (h *hive) CommandSpec(env *Env, args []string) (*container.Spec, error) {
	if h.input.HiveServer2 == "" {
		return nil, fmt.Errorf("cmd needs the HiveServer2 address")
	}
	return BeelineSpec(env, h.input.Image, h.input.HiveServer2, args)
}

func (h *hive) ShellSpec(env *Env) (*container.Spec, error) {
	if h.input.HiveServer2 == "" {
		return nil, fmt.Errorf("shell needs the HiveServer2 address")
	}
	return BeelineSpec(env, h.input.Image, h.input.HiveServer2, nil)
}

// BeelineSpec runs beeline against jdbc:hive2://<hiveServer2>/default. Local files passed with -f are
// staged onto the container host and mounted under /app.
func BeelineSpec(env *Env, image, hiveServer2 string, args []string) (*container.Spec, error) {
	host, port := util.SplitHostPort(hiveServer2, "10000")
	spec := &container.Spec{
		Image:       image,
		HostNetwork: true,
		Entrypoint:  []string{"/opt/hive/bin/beeline"},
		Cmd:         []string{"-u", fmt.Sprintf("jdbc:hive2://%s:%s/default", host, port)},
	}
	for i := 0; i < len(args); i++ {
		if args[i] != "-f" || i+1 >= len(args) {
			spec.Cmd = append(spec.Cmd, args[i])
			continue
		}
		local := args[i+1]
		staged := path.Join(hiveStagingDir, path.Base(local))
		err := stageFile(env, local, staged)
		if err != nil {
			return nil, err
		}
		inContainer := "/app/" + path.Base(local)
		spec.Binds = append(spec.Binds, staged+":"+inContainer+":ro")
		spec.Cmd = append(spec.Cmd, "-f", inContainer)
		i++
	}
	return spec, nil
}

func stageFile(env *Env, local, remote string) error {
	f, err := os.Open(local)
	if err != nil {
		return err
	}
	defer f.Close()
	err = env.Target.CopyFileTo(f, remote)
	if err != nil {
		return fmt.Errorf("staging %s failed: %w", local, err)
	}
	return nil
}
