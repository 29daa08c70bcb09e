package cluster

import (
	"fmt"
	"strconv"

	"github.com/Octogonapus/ClusterBench/container"
	"github.com/Octogonapus/ClusterBench/util"
)

const (
	DefaultMySQLImage    = "mysql:8.0"
	DefaultMySQLPassword = "benchmark"
	DefaultMySQLDatabase = "tpcc"
)

type MySQLInput struct {
	Image        string
	Host         string
	Port         int
	RootPassword string
	Database     string
	DataDir      string
	// Client options for cmd.
	User string
}

func (in *MySQLInput) withDefaults() {
	if in.Image == "" {
		in.Image = DefaultMySQLImage
	}
	if in.Port == 0 {
		in.Port = 3306
	}
	if in.RootPassword == "" {
		in.RootPassword = DefaultMySQLPassword
	}
	if in.Database == "" {
		in.Database = DefaultMySQLDatabase
	}
	if in.DataDir == "" {
		in.DataDir = "/tmp/mysql-data"
	}
	if in.User == "" {
		in.User = "root"
	}
}

type mysql struct {
	input MySQLInput
}

func init() {
	RegisterFramework("mysql", func(a map[string]any) (Framework, error) {
		input := &MySQLInput{}
		err := decodeInput(a, input)
		if err != nil {
			return nil, fmt.Errorf("can't convert input to MySQLInput: %w", err)
		}
		return NewMySQL(input), nil
	})
}

func NewMySQL(input *MySQLInput) Framework {
	m := &mysql{input: *input}
	m.input.withDefaults()
	return m
}

func (m *mysql) GetName() string { return "mysql" }

func (m *mysql) GetInput() map[string]any {
	in := util.StructMap(m.input)
	delete(in, "RootPassword")
	return in
}

func (m *mysql) Images() []string { return []string{m.input.Image} }

func (m *mysql) Roles() []string { return []string{"server"} }

func (m *mysql) ContainerName(role string) string { return "mysql" }

func (m *mysql) RoleSpec(env *Env, role string) (*RoleSpec, error) {
	if role != "server" {
		return nil, fmt.Errorf("unknown mysql role %q", role)
	}
	host, err := env.ResolveHost(m.input.Host)
	if err != nil {
		return nil, err
	}
	spec := &container.Spec{
		Image:       m.input.Image,
		HostNetwork: true,
		Binds:       []string{m.input.DataDir + ":/var/lib/mysql:rw"},
		Env: []string{
			"MYSQL_ROOT_PASSWORD=" + m.input.RootPassword,
			"MYSQL_DATABASE=" + m.input.Database,
			"MYSQL_ROOT_HOST=%",
		},
		Cmd: []string{
			"--port", strconv.Itoa(m.input.Port),
			"--bind-address", "0.0.0.0",
			"--innodb-buffer-pool-size=1G",
			"--innodb-log-file-size=256M",
			"--innodb-flush-log-at-trx-commit=2",
			"--innodb-flush-method=O_DIRECT",
			"--max-connections=200",
			"--default-authentication-plugin=mysql_native_password",
			"--local-infile=1",
		},
	}
	return &RoleSpec{
		Container: spec,
		DataDir:   m.input.DataDir,
		Endpoints: []string{
			fmt.Sprintf("Address: %s:%d", host, m.input.Port),
			"Database: " + m.input.Database,
		},
	}, nil
}

func (m *mysql) CommandSpec(env *Env, args []string) (*container.Spec, error) {
	host, err := env.ResolveHost(m.input.Host)
	if err != nil {
		return nil, err
	}
	cmd := []string{
		"mysql",
		"-h", host,
		"-P", strconv.Itoa(m.input.Port),
		"-u", m.input.User,
		"-p" + m.input.RootPassword,
	}
	if m.input.Database != "" {
		cmd = append(cmd, "-D", m.input.Database)
	}
	return &container.Spec{
		Image:       m.input.Image,
		HostNetwork: true,
		Cmd:         append(cmd, args...),
	}, nil
}
