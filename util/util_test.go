package util

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

type sample struct {
	Name    string
	Count   int
	private bool
}

func TestStructMapSkipsUnexportedFields(t *testing.T) {
	m := StructMap(&sample{Name: "a", Count: 2, private: true})
	assert.Equal(t, map[string]any{"Name": "a", "Count": 2}, m)
}

type Endpoint struct {
	Host string
	Port int
}

func TestStructMapFlattensEmbeddedStructs(t *testing.T) {
	m := StructMap(struct {
		Name string
		Endpoint
	}{Name: "a", Endpoint: Endpoint{Host: "h", Port: 1}})
	assert.Equal(t, map[string]any{"Name": "a", "Host": "h", "Port": 1}, m)
}

func TestLastNonEmptyLine(t *testing.T) {
	assert.Equal(t, "last", LastNonEmptyLine([]byte("first\nlast\n\n  \n")))
	assert.Equal(t, "", LastNonEmptyLine([]byte("\n\n")))
}

func TestSplitHostPort(t *testing.T) {
	host, port := SplitHostPort("10.0.0.1:2182", "2181")
	assert.Equal(t, "10.0.0.1", host)
	assert.Equal(t, "2182", port)

	host, port = SplitHostPort("zk", "2181")
	assert.Equal(t, "zk", host)
	assert.Equal(t, "2181", port)
}

func TestBanner(t *testing.T) {
	var buf bytes.Buffer
	Banner(&buf, "Benchmark Summary")
	assert.Equal(t, rule+"\nBenchmark Summary\n"+rule+"\n", buf.String())
}

func TestRandstring(t *testing.T) {
	s := Randstring(12)
	assert.Len(t, s, 12)
	assert.Regexp(t, "^[a-z]+$", s)
}
