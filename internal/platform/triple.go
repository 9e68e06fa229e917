// Package platform describes the target a native library is built for.
package platform

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
)

// ErrMalformedTriple is returned by ParseTriple when the input has fewer
// than two dash-delimited components.
var ErrMalformedTriple = errors.New("malformed target triple")

// Family groups operating systems that share a linking convention.
type Family int

const (
	UnknownFamily Family = iota
	Darwin
	Linux
	BSD
	Windows
)

func (f Family) String() string {
	switch f {
	case Darwin:
		return "darwin"
	case Linux:
		return "linux"
	case BSD:
		return "bsd"
	case Windows:
		return "windows"
	}
	return "unknown"
}

// Triple is a parsed target triple: <arch>-<vendor>-<os>[-<abi>].
type Triple struct {
	Arch   string
	Vendor string
	OS     string
	ABI    string

	// HasABI distinguishes a missing ABI component from an empty one.
	HasABI bool
}

var knownOS = map[string]Family{
	"linux":     Linux,
	"android":   Linux,
	"darwin":    Darwin,
	"macos":     Darwin,
	"ios":       Darwin,
	"freebsd":   BSD,
	"openbsd":   BSD,
	"netbsd":    BSD,
	"dragonfly": BSD,
	"windows":   Windows,
}

// ParseTriple splits s on "-".
//
//	arch-os                 two components
//	arch-vendor-os          three components
//	arch-os-abi             three components whose second one is a known OS
//	arch-vendor-os-abi...   four or more; the ABI keeps the remaining dashes
func ParseTriple(s string) (Triple, error) {
	parts := strings.Split(s, "-")
	if len(parts) < 2 || parts[0] == "" {
		return Triple{}, fmt.Errorf("%w: %q", ErrMalformedTriple, s)
	}
	var t Triple
	t.Arch = parts[0]
	switch len(parts) {
	case 2:
		t.OS = parts[1]
	case 3:
		if _, ok := knownOS[parts[1]]; ok {
			t.OS, t.ABI, t.HasABI = parts[1], parts[2], true
		} else {
			t.Vendor, t.OS = parts[1], parts[2]
		}
	default:
		t.Vendor, t.OS = parts[1], parts[2]
		t.ABI, t.HasABI = strings.Join(parts[3:], "-"), true
	}
	if t.OS == "" {
		return Triple{}, fmt.Errorf("%w: %q has no operating system", ErrMalformedTriple, s)
	}
	return t, nil
}

// MustParseTriple is like ParseTriple but panics on error.
func MustParseTriple(s string) Triple {
	t, err := ParseTriple(s)
	if err != nil {
		panic(err)
	}
	return t
}

func (t Triple) String() string {
	parts := []string{t.Arch}
	if t.Vendor != "" {
		parts = append(parts, t.Vendor)
	}
	parts = append(parts, t.OS)
	if t.HasABI {
		parts = append(parts, t.ABI)
	}
	return strings.Join(parts, "-")
}

// Family reports the linking family of t. Apple vendors are Darwin even
// when the OS component says otherwise.
func (t Triple) Family() Family {
	if t.Vendor == "apple" {
		return Darwin
	}
	if f, ok := knownOS[t.OS]; ok {
		return f
	}
	return UnknownFamily
}

// IsWindows reports whether t targets a Windows-class system.
func (t Triple) IsWindows() bool { return t.Family() == Windows }

// IsMSVC reports whether t names the MSVC ABI.
func (t Triple) IsMSVC() bool { return t.IsWindows() && t.ABI == "msvc" }

var xarch = map[string]string{
	"amd64":   "x86_64",
	"386":     "i686",
	"arm64":   "aarch64",
	"arm":     "arm",
	"riscv64": "riscv64gc",
	"ppc64le": "powerpc64le",
	"s390x":   "s390x",
}

// Host returns the triple of the running Go toolchain's target.
func Host() Triple {
	return fromGo(runtime.GOOS, runtime.GOARCH)
}

func fromGo(goos, goarch string) Triple {
	arch, ok := xarch[goarch]
	if !ok {
		arch = goarch
	}
	switch goos {
	case "darwin":
		return Triple{Arch: arch, Vendor: "apple", OS: "darwin"}
	case "windows":
		return Triple{Arch: arch, Vendor: "pc", OS: "windows", ABI: "msvc", HasABI: true}
	case "linux":
		return Triple{Arch: arch, Vendor: "unknown", OS: "linux", ABI: "gnu", HasABI: true}
	}
	return Triple{Arch: arch, Vendor: "unknown", OS: goos}
}
