// Package bindgen produces the cgo binding layer for a C header by invoking
// an external header-to-Go generator.
package bindgen

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/qiniu/x/log"
)

var (
	// ErrHeaderNotFound is returned when the input header does not exist.
	ErrHeaderNotFound = errors.New("header not found")

	// ErrGeneration wraps a failure of the external generator.
	ErrGeneration = errors.New("binding generation failed")
)

// IntegerAliasing selects how C integer types appear in Go.
type IntegerAliasing int

const (
	// Sized maps C integers to Go types of the platform's width (int32, uint64...).
	Sized IntegerAliasing = iota
	// Native keeps cgo's C.int style names.
	Native
)

func (a IntegerAliasing) String() string {
	if a == Native {
		return "native"
	}
	return "sized"
}

// Options tunes the generated bindings.
type Options struct {
	// Package is the Go package name of the bindings.
	Package string

	SuppressDebug bool

	// BlockedTypes are never emitted; they collide with platform headers.
	BlockedTypes []string

	IntegerAliasing IntegerAliasing

	// SizeTNative maps size_t to the native word (uint).
	SizeTNative bool

	// IncludeDirs are passed to the header parser and the cgo CFLAGS. The
	// generated #include is relative to the first one holding the header.
	IncludeDirs []string
}

// DefaultOptions are the options RocksDB bindings are generated with.
func DefaultOptions() Options {
	return Options{
		Package:         "rocksdb",
		SuppressDebug:   true,
		BlockedTypes:    []string{"max_align_t"},
		IntegerAliasing: Sized,
		SizeTNative:     true,
	}
}

// Generator turns header into Go bindings written below output.
type Generator interface {
	Generate(ctx context.Context, header, output string, opts Options) error
}

// Generate checks header and runs g. Every failure is fatal: there is no
// useful result without bindings.
func Generate(ctx context.Context, g Generator, header, output string, opts Options) error {
	if _, err := os.Stat(header); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrHeaderNotFound, header)
		}
		return err
	}
	if err := os.MkdirAll(output, 0o755); err != nil {
		return err
	}
	log.Debugf("bindgen: %s -> %s", header, output)
	if err := g.Generate(ctx, header, output, opts); err != nil {
		if errors.Is(err, ErrGeneration) {
			return err
		}
		return fmt.Errorf("%w: %w", ErrGeneration, err)
	}
	return nil
}

// Runner runs the generator process and returns its standard error.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (stderr string, err error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) (string, error) {
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stderr.String(), err
}

// CommandGenerator drives a c-for-go compatible generator: it writes a
// manifest next to the output and runs "<bin> -out <output> <manifest>".
type CommandGenerator struct {
	Bin    string
	Runner Runner
}

// NewCommandGenerator returns a generator running bin.
func NewCommandGenerator(bin string) *CommandGenerator {
	return &CommandGenerator{Bin: bin, Runner: execRunner{}}
}

func (g *CommandGenerator) Generate(ctx context.Context, header, output string, opts Options) error {
	if opts.Package == "" {
		opts.Package = DefaultOptions().Package
	}
	path, err := writeManifest(header, output, opts)
	if err != nil {
		return err
	}
	args := []string{"-out", output}
	if !opts.SuppressDebug {
		args = append(args, "-debug")
	}
	args = append(args, path)
	stderr, err := g.Runner.Run(ctx, g.Bin, args...)
	if err != nil {
		if msg := strings.TrimSpace(stderr); msg != "" {
			return fmt.Errorf("%w: %s: %v: %s", ErrGeneration, g.Bin, err, msg)
		}
		return fmt.Errorf("%w: %s: %w", ErrGeneration, g.Bin, err)
	}
	return nil
}
