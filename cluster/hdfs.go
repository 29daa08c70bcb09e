package cluster

import (
	"fmt"
	"strings"

	"github.com/Octogonapus/ClusterBench/container"
	"github.com/Octogonapus/ClusterBench/util"
)

const (
	DefaultHDFSImage = "apache/hadoop:3"
	// Where the namenode and datanode data dirs are mounted inside the container.
	HDFSDataMount = "/opt/hadoop/data"
)

type HDFSInput struct {
	Image string
	// Advertised host. Detected from the target when empty.
	Host      string
	Port      int
	WebUIPort int
	DataDir   string
	// Namenode URL (hdfs://host:port) used by datanodes and clients. Derived from Host and Port when empty.
	Namenode         string
	DatanodePort     int
	DatanodeHTTPPort int
	DatanodeIPCPort  int
}

func (in *HDFSInput) withDefaults() {
	if in.Image == "" {
		in.Image = DefaultHDFSImage
	}
	if in.Port == 0 {
		in.Port = 9000
	}
	if in.WebUIPort == 0 {
		in.WebUIPort = 9870
	}
	if in.DataDir == "" {
		in.DataDir = "/tmp/hdfs-data"
	}
	if in.DatanodePort == 0 {
		in.DatanodePort = 9866
	}
	if in.DatanodeHTTPPort == 0 {
		in.DatanodeHTTPPort = 9864
	}
	if in.DatanodeIPCPort == 0 {
		in.DatanodeIPCPort = 9867
	}
}

type hdfs struct {
	input HDFSInput
}

func init() {
	RegisterFramework("hdfs", func(a map[string]any) (Framework, error) {
		input := &HDFSInput{}
		err := decodeInput(a, input)
		if err != nil {
			return nil, fmt.Errorf("can't convert input to HDFSInput: %w", err)
		}
		return NewHDFS(input), nil
	})
}

func NewHDFS(input *HDFSInput) Framework {
	h := &hdfs{input: *input}
	h.input.withDefaults()
	return h
}

func (h *hdfs) GetName() string { return "hdfs" }

func (h *hdfs) GetInput() map[string]any {
	return util.StructMap(h.input)
}

func (h *hdfs) Images() []string { return []string{h.input.Image} }

func (h *hdfs) Roles() []string { return []string{"namenode", "datanode"} }

func (h *hdfs) ContainerName(role string) string { return "hdfs-" + role }

func (h *hdfs) namenodeURL(env *Env) (string, error) {
	if h.input.Namenode != "" {
		return h.input.Namenode, nil
	}
	host, err := env.ResolveHost(h.input.Host)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("hdfs://%s:%d", host, h.input.Port), nil
}

func (h *hdfs) RoleSpec(env *Env, role string) (*RoleSpec, error) {
	host, err := env.ResolveHost(h.input.Host)
	if err != nil {
		return nil, err
	}
	spec := &container.Spec{
		Image:       h.input.Image,
		HostNetwork: true,
		Binds:       []string{h.input.DataDir + ":" + HDFSDataMount + ":rw"},
	}
	rs := &RoleSpec{Container: spec, DataDir: h.input.DataDir, CleanDataDir: true}

	switch role {
	case "namenode":
		rpc := fmt.Sprintf("%s:%d", host, h.input.Port)
		spec.Env = []string{
			"HADOOP_HOME=/opt/hadoop",
			"ENSURE_NAMENODE_DIR=" + HDFSDataMount + "/namenode",
			"CORE-SITE.XML_fs.defaultFS=hdfs://" + rpc,
			"HDFS-SITE.XML_dfs.namenode.rpc-address=" + rpc,
			fmt.Sprintf("HDFS-SITE.XML_dfs.namenode.http-address=%s:%d", host, h.input.WebUIPort),
			"HDFS-SITE.XML_dfs.namenode.name.dir=" + HDFSDataMount + "/namenode",
			"HDFS-SITE.XML_dfs.replication=1",
			"HDFS-SITE.XML_dfs.permissions.enabled=false",
			"HDFS-SITE.XML_dfs.webhdfs.enabled=true",
			"HDFS-SITE.XML_dfs.namenode.datanode.registration.ip-hostname-check=false",
		}
		spec.Cmd = []string{"hdfs", "namenode"}
		rs.Endpoints = []string{
			"HDFS URL: hdfs://" + rpc,
			fmt.Sprintf("Web UI: http://%s:%d", host, h.input.WebUIPort),
		}
	case "datanode":
		if h.input.Namenode == "" {
			return nil, fmt.Errorf("datanode needs the namenode URL")
		}
		nnHost, nnPort := hdfsURLHostPort(h.input.Namenode)
		spec.Env = []string{
			"HADOOP_HOME=/opt/hadoop",
			"CORE-SITE.XML_fs.defaultFS=" + h.input.Namenode,
			"HDFS-SITE.XML_dfs.datanode.data.dir=" + HDFSDataMount + "/datanode",
			"HDFS-SITE.XML_dfs.replication=1",
			"HDFS-SITE.XML_dfs.permissions.enabled=false",
			"HDFS-SITE.XML_dfs.datanode.hostname=" + host,
			fmt.Sprintf("HDFS-SITE.XML_dfs.datanode.address=%s:%d", host, h.input.DatanodePort),
			fmt.Sprintf("HDFS-SITE.XML_dfs.datanode.http.address=%s:%d", host, h.input.DatanodeHTTPPort),
			fmt.Sprintf("HDFS-SITE.XML_dfs.datanode.ipc.address=%s:%d", host, h.input.DatanodeIPCPort),
		}
		spec.Cmd = []string{"hdfs", "datanode"}
		rs.WaitFor = []string{nnHost + ":" + nnPort}
		rs.Endpoints = []string{
			"Namenode: " + h.input.Namenode,
			fmt.Sprintf("Ports: data=%d, http=%d, ipc=%d", h.input.DatanodePort, h.input.DatanodeHTTPPort, h.input.DatanodeIPCPort),
		}
	default:
		return nil, fmt.Errorf("unknown hdfs role %q", role)
	}
	return rs, nil
}

func (h *hdfs) CommandSpec(env *Env, args []string) (*container.Spec, error) {
	url, err := h.namenodeURL(env)
	if err != nil {
		return nil, err
	}
	return HDFSCommandSpec(h.input.Image, url, args), nil
}

func (h *hdfs) ShellSpec(env *Env) (*container.Spec, error) {
	url, err := h.namenodeURL(env)
	if err != nil {
		return nil, err
	}
	spec := hdfsClientSpec(h.input.Image, url)
	spec.Cmd = []string{"bash"}
	return spec, nil
}

func hdfsClientSpec(image, namenodeURL string) *container.Spec {
	return &container.Spec{
		Image:       image,
		HostNetwork: true,
		Env: []string{
			"CORE-SITE.XML_fs.defaultFS=" + namenodeURL,
			"HDFS-SITE.XML_dfs.client.use.datanode.hostname=true",
		},
	}
}

// HDFSCommandSpec runs `hdfs dfs <args>` against the namenode in a throwaway container.
func HDFSCommandSpec(image, namenodeURL string, args []string) *container.Spec {
	spec := hdfsClientSpec(image, namenodeURL)
	spec.Cmd = append([]string{"hdfs", "dfs"}, args...)
	return spec
}

// hdfsURLHostPort splits hdfs://host:port, defaulting the port to 9000.
func hdfsURLHostPort(url string) (string, string) {
	rest := strings.TrimPrefix(url, "hdfs://")
	rest, _, _ = strings.Cut(rest, "/")
	return util.SplitHostPort(rest, "9000")
}
