package env

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// DefaultFile is the configuration file looked up in the working directory.
const DefaultFile = "rocksys.yaml"

// File holds the defaults a project can commit next to its sources.
// Environment variables override every field.
type File struct {
	Target        string   `yaml:"target"`
	OutDir        string   `yaml:"out_dir"`
	SourceDir     string   `yaml:"source_dir"`
	IncludeDir    string   `yaml:"include_dir"`
	Profile       string   `yaml:"profile"`
	CXXStd        string   `yaml:"cxx_std"`
	Bindgen       string   `yaml:"bindgen"`
	Generator     string   `yaml:"generator"`
	ToolchainFile string   `yaml:"toolchain_file"`
	Features      []string `yaml:"features"`
	StaticRuntime bool     `yaml:"static_runtime"`
}

// LoadFile reads the configuration file at path. A missing file yields an
// empty configuration unless required is set.
func LoadFile(path string, required bool) (*File, error) {
	if path == "" {
		path = DefaultFile
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !required {
			return &File{}, nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return &f, nil
}
