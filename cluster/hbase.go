package cluster

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/Octogonapus/ClusterBench/container"
	"github.com/Octogonapus/ClusterBench/util"
	units "github.com/docker/go-units"
)

const (
	DefaultHBaseImage     = "ghcr.io/ossim-project/hbase:latest"
	DefaultZooKeeperImage = "zookeeper:3.9"
	hbaseDataMount        = "/data/hbase"
)

type HBaseInput struct {
	Image string
	Host  string
	// ZooKeeper quorum address (host:port) used by master, region servers and the shell.
	ZooKeeper string
	// Port ZooKeeper listens on when started by the zookeeper role.
	ZKPort int
	// Master address for region servers. Defaults to Host.
	MasterHost string
	RSPort     int
	RSInfoPort int
	DataDir    string
	// HDFS namenode URL (hdfs://host:port). HBase stores data under the local data dir when empty.
	HDFS     string
	HeapSize string
}

func (in *HBaseInput) withDefaults() {
	if in.Image == "" {
		in.Image = DefaultHBaseImage
	}
	if in.ZooKeeper == "" {
		in.ZooKeeper = "localhost:2181"
	}
	if in.ZKPort == 0 {
		in.ZKPort = 2181
	}
	if in.RSPort == 0 {
		in.RSPort = 16020
	}
	if in.RSInfoPort == 0 {
		in.RSInfoPort = 16030
	}
	if in.DataDir == "" {
		in.DataDir = "/tmp/hbase-data"
	}
}

type hbase struct {
	input HBaseInput
}

func init() {
	RegisterFramework("hbase", func(a map[string]any) (Framework, error) {
		input := &HBaseInput{}
		err := decodeInput(a, input)
		if err != nil {
			return nil, fmt.Errorf("can't convert input to HBaseInput: %w", err)
		}
		return NewHBase(input)
	})
}

func NewHBase(input *HBaseInput) (Framework, error) {
	h := &hbase{input: *input}
	h.input.withDefaults()
	if h.input.HeapSize != "" {
		_, err := units.RAMInBytes(h.input.HeapSize)
		if err != nil {
			return nil, fmt.Errorf("invalid heap size %q: %w", h.input.HeapSize, err)
		}
	}
	return h, nil
}

func (h *hbase) GetName() string { return "hbase" }

func (h *hbase) GetInput() map[string]any { return util.StructMap(h.input) }

func (h *hbase) Images() []string { return []string{h.input.Image, DefaultZooKeeperImage} }

func (h *hbase) Roles() []string { return []string{"zookeeper", "master", "regionserver"} }

func (h *hbase) ContainerName(role string) string { return "hbase-" + role }

func (h *hbase) zkEnv() (string, []string) {
	zkHost, zkPort := util.SplitHostPort(h.input.ZooKeeper, "2181")
	return zkHost, []string{
		"HBASE_ZOOKEEPER_QUORUM=" + zkHost,
		"HBASE_ZOOKEEPER_PORT=" + zkPort,
	}
}

func (h *hbase) rootDirEnv() []string {
	if h.input.HDFS == "" {
		return []string{"HBASE_ROOTDIR=file://" + hbaseDataMount}
	}
	return []string{
		"HBASE_ROOTDIR=" + h.input.HDFS + "/hbase",
		"CORE-SITE.XML_fs.defaultFS=" + h.input.HDFS,
	}
}

func (h *hbase) RoleSpec(env *Env, role string) (*RoleSpec, error) {
	host, err := env.ResolveHost(h.input.Host)
	if err != nil {
		return nil, err
	}
	spec := &container.Spec{HostNetwork: true}
	rs := &RoleSpec{Container: spec}

	switch role {
	case "zookeeper":
		dataDir := strings.Replace(h.input.DataDir, "hbase", "zookeeper", 1)
		spec.Image = DefaultZooKeeperImage
		spec.Hostname = "zookeeper"
		spec.ExtraHosts = []string{"zookeeper:" + resolveAddr(host)}
		spec.Binds = []string{dataDir + ":/data:rw"}
		spec.Env = []string{
			"ZOO_PORT=" + strconv.Itoa(h.input.ZKPort),
			"ZOO_4LW_COMMANDS_WHITELIST=*",
			"ZOO_ADMINSERVER_ENABLED=false",
		}
		rs.DataDir = dataDir
		rs.Endpoints = []string{fmt.Sprintf("Address: %s:%d", host, h.input.ZKPort)}
		return rs, nil
	case "master", "regionserver":
	default:
		return nil, fmt.Errorf("unknown hbase role %q", role)
	}

	zkHost, zkEnv := h.zkEnv()
	self := h.ContainerName(role)
	spec.Image = h.input.Image
	spec.Hostname = self
	spec.ExtraHosts = []string{
		self + ":" + resolveAddr(host),
		"zookeeper:" + resolveAddr(zkHost),
	}
	spec.Binds = []string{h.input.DataDir + ":" + hbaseDataMount + ":rw"}
	spec.Env = zkEnv
	rs.DataDir = h.input.DataDir
	rs.WaitFor = []string{h.input.ZooKeeper}

	if role == "master" {
		spec.Env = append(spec.Env, "HBASE_MASTER_HOSTNAME="+host)
		rs.Endpoints = []string{fmt.Sprintf("Master UI: http://%s:16010", host)}
	} else {
		masterHost := h.input.MasterHost
		if masterHost == "" {
			masterHost = host
		}
		spec.ExtraHosts = append(spec.ExtraHosts, "hbase-master:"+resolveAddr(masterHost))
		spec.Env = append(spec.Env, "HBASE_REGIONSERVER_HOSTNAME="+host)
		if h.input.RSPort != 16020 {
			spec.Env = append(spec.Env, "HBASE_REGIONSERVER_PORT="+strconv.Itoa(h.input.RSPort))
		}
		if h.input.RSInfoPort != 16030 {
			spec.Env = append(spec.Env, "HBASE_REGIONSERVER_INFO_PORT="+strconv.Itoa(h.input.RSInfoPort))
		}
		rs.Endpoints = []string{
			fmt.Sprintf("RegionServer UI: http://%s:%d", host, h.input.RSInfoPort),
			"Master: " + masterHost,
		}
	}
	spec.Env = append(spec.Env, h.rootDirEnv()...)
	if h.input.HeapSize != "" {
		spec.Env = append(spec.Env, "HBASE_HEAPSIZE="+h.input.HeapSize)
	}
	spec.Cmd = []string{role}
	rs.Endpoints = append(rs.Endpoints, "ZooKeeper: "+h.input.ZooKeeper)
	return rs, nil
}

func (h *hbase) ShellSpec(env *Env) (*container.Spec, error) {
	zkHost, zkEnv := h.zkEnv()
	return &container.Spec{
		Image:       h.input.Image,
		HostNetwork: true,
		ExtraHosts:  []string{"zookeeper:" + resolveAddr(zkHost)},
		Env:         zkEnv,
		Cmd:         []string{"shell"},
	}, nil
}

// HBaseShell pipes commands into `hbase shell` inside a running HBase container and returns its output.
func HBaseShell(ctx context.Context, env *Env, containerName string, commands string) (string, error) {
	var out bytes.Buffer
	err := env.Engine.Exec(ctx, containerName, []string{"/opt/hbase/bin/hbase", "shell"}, strings.NewReader(commands+"\nexit\n"), &out, &out)
	if err != nil {
		return out.String(), fmt.Errorf("hbase shell in %s failed: %w", containerName, err)
	}
	return out.String(), nil
}
