package binding

import (
	"os"
	"sort"

	"codeberg.org/mutker/whistlectl/internal/errors"
	"gopkg.in/yaml.v3"
)

type definitionsFile struct {
	Bindings map[string]string `yaml:"bindings"`
}

// LoadDefinitions reads binding definitions from a YAML file of the form
//
//	bindings:
//	  Dog_Battery: "100000:device:battery"
//	  Dog_Activity: "100000:activity:0"
func LoadDefinitions(path string) (map[string]string, error) {
	errFactory := errors.New()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errFactory.Wrap(ErrReadDefinitions, err)
	}

	var file definitionsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, errFactory.Wrap(ErrReadDefinitions, err)
	}
	if file.Bindings == nil {
		file.Bindings = map[string]string{}
	}

	return file.Bindings, nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	return keys
}
