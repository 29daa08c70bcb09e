package util

import (
	"fmt"
	"io"
	"math/rand"
	"net"
	"reflect"
	"strings"
	"time"
)

var letterRunes = []rune("abcdefghijklmnopqrstuvwxyz")

func Randstring(n int) string {
	rand := rand.New(rand.NewSource(time.Now().UnixNano()))
	b := make([]rune, n)
	for i := range b {
		b[i] = letterRunes[rand.Intn(len(letterRunes))]
	}
	return string(b)
}

// StructMap flattens the exported fields of a struct (or pointer to one) into a map keyed by field name.
// Fields of embedded structs are merged into the result.
func StructMap(s any) map[string]any {
	out := map[string]any{}
	typ := reflect.TypeOf(s)
	struc := reflect.ValueOf(s)
	for typ.Kind() == reflect.Ptr {
		typ = typ.Elem()
		struc = struc.Elem()
	}
	for i := 0; i < typ.NumField(); i++ {
		field := typ.Field(i)
		if !field.IsExported() {
			continue
		}
		if field.Anonymous && field.Type.Kind() == reflect.Struct {
			for k, v := range StructMap(struc.Field(i).Interface()) {
				out[k] = v
			}
			continue
		}
		out[field.Name] = struc.Field(i).Interface()
	}
	return out
}

func LastNonEmptyLine(out []byte) string {
	lines := strings.Split(string(out), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if len(strings.TrimSpace(lines[i])) > 0 {
			return lines[i]
		}
	}
	return ""
}

// SplitHostPort splits "host:port", falling back to defaultPort when addr has no port.
func SplitHostPort(addr string, defaultPort string) (string, string) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return addr, defaultPort
	}
	return host, port
}

const rule = "============================================================"

// Banner prints a title framed by the rule lines used throughout the operator output.
func Banner(w io.Writer, title string) {
	fmt.Fprintln(w, rule)
	fmt.Fprintln(w, title)
	fmt.Fprintln(w, rule)
}

func Rule(w io.Writer) {
	fmt.Fprintln(w, rule)
}
