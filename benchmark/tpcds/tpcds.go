// Package tpcds holds what the TPC-DS drivers share: the Query 99 tables and query, data generation
// with dsdgen, and staging the generated data into HDFS.
package tpcds

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"

	"github.com/Octogonapus/ClusterBench/benchmark"
	"github.com/Octogonapus/ClusterBench/target"
	"github.com/Octogonapus/ClusterBench/util"
	"github.com/alessio/shellescape"
	"github.com/alitto/pond"
	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"
)

//go:embed queries/q99.sql
var Query99 string

const (
	DefaultScaleFactor = 1
	DefaultHDFSBase    = "hdfs:///bench/tpcds"
	DefaultKitDir      = "/tmp/tpcds-kit"
	DefaultNamenode    = "hdfs-namenode"
	// Host directory mounted into the namenode, see cluster.HDFSInput.DataDir.
	DefaultNamenodeDataDir = "/tmp/hdfs-data"

	kitRepo       = "https://github.com/databricks/tpcds-kit.git"
	namenodeMount = "/opt/hadoop/data"
	dsdgenCFlags  = "LINUX_CFLAGS=-O3 -Wno-error=implicit-int -Wno-error=implicit-function-declaration"
	uploadWorkers = 5
)

type DataInput struct {
	ScaleFactor int
	HDFSBase    string
	// Where dsdgen writes .dat files on the local machine. Defaults to /tmp/tpcds_sf<N>.
	LocalDir string
	KitDir   string
	// Namenode container that runs hdfs dfs.
	Namenode        string
	NamenodeDataDir string
}

func (in *DataInput) WithDefaults() {
	if in.ScaleFactor == 0 {
		in.ScaleFactor = DefaultScaleFactor
	}
	if in.HDFSBase == "" {
		in.HDFSBase = DefaultHDFSBase
	}
	in.HDFSBase = strings.TrimSuffix(in.HDFSBase, "/")
	if in.LocalDir == "" {
		in.LocalDir = fmt.Sprintf("/tmp/tpcds_sf%d", in.ScaleFactor)
	}
	if in.KitDir == "" {
		in.KitDir = DefaultKitDir
	}
	if in.Namenode == "" {
		in.Namenode = DefaultNamenode
	}
	if in.NamenodeDataDir == "" {
		in.NamenodeDataDir = DefaultNamenodeDataDir
	}
}

// RawPath is the HDFS path (without scheme or authority) holding the raw tables for the scale factor.
func (in *DataInput) RawPath() string {
	p := in.HDFSBase
	u, err := url.Parse(in.HDFSBase)
	if err == nil && u.Scheme != "" {
		p = u.Path
	}
	return fmt.Sprintf("%s/raw/sf%d", p, in.ScaleFactor)
}

// Location is the fully qualified HDFS directory of one table.
func (in *DataInput) Location(table string) string {
	return fmt.Sprintf("%s/raw/sf%d/%s", in.HDFSBase, in.ScaleFactor, table)
}

func run(ctx *benchmark.BenchmarkContext, t target.Target, cmd string) error {
	ctx.Printf("+ %s\n", cmd)
	return t.StreamCommand(cmd, ctx.Writer())
}

// Generate builds dsdgen from tpcds-kit on the local machine and writes the data set to in.LocalDir.
func Generate(ctx *benchmark.BenchmarkContext, in *DataInput) error {
	ctx.Printf("Generating TPC-DS data (scale factor: %d)...\n", in.ScaleFactor)
	kit := shellescape.Quote(in.KitDir)
	tools := shellescape.Quote(path.Join(in.KitDir, "tools"))
	out := shellescape.Quote(in.LocalDir)

	steps := []string{
		fmt.Sprintf("test -d %s || git clone %s %s", kit, kitRepo, kit),
		fmt.Sprintf("make -C %s OS=LINUX %s -j$(nproc)", tools, shellescape.Quote(dsdgenCFlags)),
		fmt.Sprintf("rm -rf %s && mkdir -p %s", out, out),
		fmt.Sprintf("cd %s && ./dsdgen -SCALE %d -DIR \"$(cd %s && pwd)\" -FORCE", tools, in.ScaleFactor, out),
	}
	for _, step := range steps {
		err := run(ctx, ctx.Local, step)
		if err != nil {
			return fmt.Errorf("generating TPC-DS data failed: %w", err)
		}
	}
	ctx.Printf("Data generated in %s\n", in.LocalDir)
	return nil
}

func localDataExists(ctx *benchmark.BenchmarkContext, in *DataInput) bool {
	checks := make([]string, len(Tables))
	for i, t := range Tables {
		checks[i] = "test -f " + shellescape.Quote(path.Join(in.LocalDir, t.Name+".dat"))
	}
	_, err := ctx.Local.RunCommand(strings.Join(checks, " && "))
	return err == nil
}

func (in *DataInput) hdfs(ctx *benchmark.BenchmarkContext, args ...string) ([]byte, error) {
	var out bytes.Buffer
	cmd := append([]string{"hdfs", "dfs"}, args...)
	zap.L().Debug("running hdfs command", zap.String("container", in.Namenode), zap.Strings("cmd", cmd))
	err := ctx.Env.Engine.Exec(ctx.Ctx, in.Namenode, cmd, nil, &out, &out)
	return out.Bytes(), err
}

// CleanHDFS removes the raw data for the scale factor. Data that is already gone is fine.
func CleanHDFS(ctx *benchmark.BenchmarkContext, in *DataInput) {
	ctx.Printf("Cleaning up existing HDFS data at %s...\n", in.RawPath())
	out, err := in.hdfs(ctx, "-rm", "-r", "-f", in.RawPath())
	if err != nil {
		zap.L().Warn("removing HDFS data failed", zap.String("path", in.RawPath()), zap.String("output", util.LastNonEmptyLine(out)), zap.Error(err))
	}
}

// EnsureData leaves a fresh copy of the tables in HDFS: the previous copy is removed, the data set is
// generated locally when missing, staged into the namenode's data dir and uploaded table by table.
func EnsureData(ctx *benchmark.BenchmarkContext, in *DataInput) error {
	CleanHDFS(ctx, in)

	if !localDataExists(ctx, in) {
		ctx.Printf("Local TPC-DS data not found, generating...\n")
		err := Generate(ctx, in)
		if err != nil {
			return err
		}
	} else {
		ctx.Printf("Using existing local data from %s\n", in.LocalDir)
	}

	err := stage(ctx, in)
	if err != nil {
		return err
	}
	return upload(ctx, in)
}

// stage copies the .dat files from the local machine into the namenode's mounted data dir.
func stage(ctx *benchmark.BenchmarkContext, in *DataInput) error {
	ctx.Printf("Copying data files to namenode mount...\n")
	p := progressbar.Default(int64(len(Tables)), "Staging tables:")
	defer p.Finish()
	for _, t := range Tables {
		src := path.Join(in.LocalDir, t.Name+".dat")
		dst := path.Join(in.NamenodeDataDir, t.Name+".dat")
		pr, pw := io.Pipe()
		go func() {
			pw.CloseWithError(ctx.Local.CopyFileFrom(src, pw))
		}()
		err := ctx.Env.Target.CopyFileTo(pr, dst)
		pr.Close()
		if err != nil {
			return fmt.Errorf("staging %s failed: %w", src, err)
		}
		p.Add(1)
	}
	return nil
}

func upload(ctx *benchmark.BenchmarkContext, in *DataInput) error {
	ctx.Printf("Creating HDFS directories...\n")
	for _, t := range Tables {
		out, err := in.hdfs(ctx, "-mkdir", "-p", path.Join(in.RawPath(), t.Name))
		if err != nil {
			zap.L().Warn("creating HDFS directory failed", zap.String("table", t.Name), zap.String("output", util.LastNonEmptyLine(out)), zap.Error(err))
		}
	}

	ctx.Printf("Uploading data to HDFS...\n")
	errChan := make(chan error, len(Tables))
	pool := pond.New(uploadWorkers, 0, pond.MinWorkers(uploadWorkers))
	p := progressbar.Default(int64(len(Tables)), "Uploading tables:")
	for _, t := range Tables {
		t := t
		pool.Submit(func() {
			defer p.Add(1)
			errChan <- in.uploadTable(ctx, t.Name)
		})
	}
	pool.StopAndWait()
	p.Finish()
	close(errChan)

	for err := range errChan {
		if err != nil {
			return err
		}
	}
	ctx.Printf("Data upload complete\n")
	return nil
}

func (in *DataInput) uploadTable(ctx *benchmark.BenchmarkContext, table string) error {
	local := path.Join(namenodeMount, table+".dat")
	dir := path.Join(in.RawPath(), table) + "/"

	err := ctx.Env.Engine.Exec(ctx.Ctx, in.Namenode, []string{"test", "-f", local}, nil, nil, nil)
	if err != nil {
		zap.L().Warn("table file missing in namenode, skipping", zap.String("table", table))
		return nil
	}
	// a stale copy from an interrupted upload
	in.hdfs(ctx, "-rm", "-f", dir+table+".dat")
	out, err := in.hdfs(ctx, "-put", local, dir)
	if err != nil {
		return fmt.Errorf("uploading %s failed: %s: %w", table, util.LastNonEmptyLine(out), err)
	}
	zap.L().Info("uploaded table", zap.String("table", table))
	return nil
}
