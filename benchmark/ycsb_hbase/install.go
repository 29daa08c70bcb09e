package ycsb_hbase

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/Octogonapus/ClusterBench/benchmark"
	"github.com/alessio/shellescape"
	"github.com/hashicorp/go-version"
	"github.com/klauspost/compress/gzip"
	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"
)

const releaseURL = "https://github.com/brianfrankcooper/YCSB/releases/download/%s/ycsb-%s.tar.gz"

var hbase20Since = version.Must(version.NewVersion("0.17.0"))

// binding picks the YCSB HBase client binding shipped with the version.
func binding(v string) (string, error) {
	parsed, err := version.NewVersion(v)
	if err != nil {
		return "", fmt.Errorf("invalid YCSB version %q: %w", v, err)
	}
	if parsed.LessThan(hbase20Since) {
		return "hbase12", nil
	}
	return "hbase20", nil
}

func (b *bmark) installed(ctx *benchmark.BenchmarkContext) bool {
	_, err := ctx.Local.RunCommand("test -f " + shellescape.Quote(path.Join(b.input.YCSBDir, "bin", "ycsb.sh")))
	return err == nil
}

// Init downloads YCSB into YCSBDir on the local machine unless it is already there.
func (b *bmark) Init(ctx *benchmark.BenchmarkContext) error {
	if b.installed(ctx) {
		ctx.Printf("YCSB already exists at %s\n", b.input.YCSBDir)
		return nil
	}
	url := b.input.DownloadURL
	if url == "" {
		url = fmt.Sprintf(releaseURL, b.input.Version, b.input.Version)
	}
	ctx.Printf("Downloading YCSB %s...\n", b.input.Version)
	zap.L().Info("downloading YCSB", zap.String("url", url))

	dir := shellescape.Quote(b.input.YCSBDir)
	_, err := ctx.Local.RunCommand(fmt.Sprintf("rm -rf %s", dir))
	if err != nil {
		return fmt.Errorf("removing %s failed: %w", b.input.YCSBDir, err)
	}

	req, err := http.NewRequestWithContext(ctx.Ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("downloading YCSB failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("downloading YCSB failed: %s", resp.Status)
	}

	p := progressbar.DefaultBytes(resp.ContentLength, "Downloading YCSB:")
	n, err := b.extract(ctx, io.TeeReader(resp.Body, p))
	p.Finish()
	if err != nil {
		return err
	}

	out, err := ctx.Local.RunCommand(fmt.Sprintf("chmod +x %s/bin/*", dir))
	if err != nil {
		return fmt.Errorf("making YCSB scripts executable failed: %s: %w", string(out), err)
	}
	ctx.Printf("YCSB downloaded to %s (%d files)\n", b.input.YCSBDir, n)
	return nil
}

// extract unpacks the release tarball into YCSBDir, dropping the top-level ycsb-<version> directory.
func (b *bmark) extract(ctx *benchmark.BenchmarkContext, r io.Reader) (int, error) {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return 0, fmt.Errorf("reading YCSB archive failed: %w", err)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	n := 0
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		} else if err != nil {
			return n, fmt.Errorf("reading YCSB archive failed: %w", err)
		}
		if !hdr.FileInfo().Mode().IsRegular() {
			continue
		}
		_, rel, found := strings.Cut(path.Clean(hdr.Name), "/")
		if !found || strings.HasPrefix(rel, "..") {
			continue
		}
		err = ctx.Local.CopyFileTo(tr, path.Join(b.input.YCSBDir, rel))
		if err != nil {
			return n, fmt.Errorf("extracting %s failed: %w", hdr.Name, err)
		}
		n++
	}
	if n == 0 {
		return 0, fmt.Errorf("YCSB archive has no files")
	}
	return n, nil
}
