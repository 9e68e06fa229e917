package bindgen

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

type flagGroup struct {
	Name  string   `yaml:"name"`
	Flags []string `yaml:"flags"`
}

type rule struct {
	Action string `yaml:"action"`
	From   string `yaml:"from"`
}

type manifest struct {
	Generator struct {
		PackageName        string      `yaml:"PackageName"`
		PackageDescription string      `yaml:"PackageDescription"`
		Includes           []string    `yaml:"Includes"`
		FlagGroups         []flagGroup `yaml:"FlagGroups,omitempty"`
	} `yaml:"GENERATOR"`
	Parser struct {
		IncludePaths []string `yaml:"IncludePaths,omitempty"`
		SourcesPaths []string `yaml:"SourcesPaths"`
	} `yaml:"PARSER"`
	Translator struct {
		ConstRules map[string]string `yaml:"ConstRules"`
		Rules      map[string][]rule `yaml:"Rules"`
		Typemap    map[string]string `yaml:"Typemap,omitempty"`
	} `yaml:"TRANSLATOR"`
}

// sizedIntegers are the C integer spellings given fixed-width Go types.
var sizedIntegers = map[string]string{
	"char":               "byte",
	"signed char":        "int8",
	"unsigned char":      "uint8",
	"short":              "int16",
	"unsigned short":     "uint16",
	"int":                "int32",
	"unsigned int":       "uint32",
	"long long":          "int64",
	"unsigned long long": "uint64",
	"int32_t":            "int32",
	"uint32_t":           "uint32",
	"int64_t":            "int64",
	"uint64_t":           "uint64",
}

func newManifest(header string, opts Options) *manifest {
	m := &manifest{}
	m.Generator.PackageName = opts.Package
	m.Generator.PackageDescription = "Package " + opts.Package + " provides Go bindings for the RocksDB C API."
	m.Generator.Includes = []string{includePath(header, opts.IncludeDirs)}
	// link flags live in a single file next to the bindings, never here
	var cflags []string
	for _, dir := range opts.IncludeDirs {
		cflags = append(cflags, "-I"+dir)
	}
	if len(cflags) > 0 {
		m.Generator.FlagGroups = append(m.Generator.FlagGroups, flagGroup{Name: "CFLAGS", Flags: cflags})
	}

	m.Parser.IncludePaths = append(m.Parser.IncludePaths, opts.IncludeDirs...)
	m.Parser.SourcesPaths = []string{header}

	m.Translator.ConstRules = map[string]string{"defines": "expand", "enum": "expand"}
	m.Translator.Rules = map[string][]rule{
		"global": {{Action: "accept", From: "^rocksdb_"}},
	}
	for _, typ := range opts.BlockedTypes {
		m.Translator.Rules["type"] = append(m.Translator.Rules["type"],
			rule{Action: "ignore", From: "^" + regexp.QuoteMeta(typ) + "$"})
	}

	typemap := make(map[string]string)
	if opts.IntegerAliasing == Sized {
		for c, goType := range sizedIntegers {
			typemap[c] = goType
		}
	}
	if opts.SizeTNative {
		typemap["size_t"] = "uint"
	}
	if len(typemap) > 0 {
		m.Translator.Typemap = typemap
	}
	return m
}

// includePath spells header the way the preamble includes it: relative to
// the first include dir containing it, else by base name.
func includePath(header string, includeDirs []string) string {
	for _, dir := range includeDirs {
		rel, err := filepath.Rel(dir, header)
		if err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return filepath.ToSlash(rel)
		}
	}
	return filepath.Base(header)
}

// writeManifest stores the manifest for header in output and returns its path.
func writeManifest(header, output string, opts Options) (string, error) {
	data, err := yaml.Marshal(newManifest(header, opts))
	if err != nil {
		return "", err
	}
	path := filepath.Join(output, opts.Package+".yml")
	if err := os.WriteFile(path, append([]byte("---\n"), data...), 0o644); err != nil {
		return "", err
	}
	return path, nil
}
