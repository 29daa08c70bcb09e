package cluster

import (
	"fmt"
	"sort"

	"github.com/mitchellh/mapstructure"
)

type frameworkType string

type frameworkFactory func(map[string]any) (Framework, error)

var frameworks map[frameworkType]frameworkFactory

// All frameworks register themselves at init time so that plan steps and CLI flags can create one by type name.
func RegisterFramework(ftype string, f frameworkFactory) {
	if frameworks == nil {
		frameworks = map[frameworkType]frameworkFactory{}
	}
	frameworks[frameworkType(ftype)] = f
}

// SerializedFramework is a framework as it appears in a plan file.
type SerializedFramework struct {
	Type  string
	Input map[string]any
}

func DeserializeFramework(sf *SerializedFramework) (Framework, error) {
	f, ok := frameworks[frameworkType(sf.Type)]
	if !ok {
		return nil, fmt.Errorf("unknown cluster type: %s", sf.Type)
	}
	return f(sf.Input)
}

// FrameworkTypes lists the registered type names in sorted order.
func FrameworkTypes() []string {
	out := make([]string, 0, len(frameworks))
	for t := range frameworks {
		out = append(out, string(t))
	}
	sort.Strings(out)
	return out
}

func decodeInput(a map[string]any, input any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           input,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return err
	}
	return decoder.Decode(a)
}
