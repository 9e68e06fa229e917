package feature

import (
	"sort"
	"strings"

	"github.com/goplus/rocksys/internal/platform"
)

// Matrix identifies one build configuration: the required platform axes and
// the enabled feature options.
type Matrix struct {
	Require map[string]string
	Options map[string]string
}

// NewMatrix returns the matrix of building for t with features s.
func NewMatrix(t platform.Triple, profile string, s Set) Matrix {
	m := Matrix{
		Require: map[string]string{
			"arch":    t.Arch,
			"os":      t.OS,
			"profile": profile,
		},
		Options: make(map[string]string, len(s)),
	}
	if t.HasABI {
		m.Require["abi"] = t.ABI
	}
	for _, n := range s.Names() {
		m.Options[n] = n + "ON"
	}
	return m
}

// String joins the values of each part by sorted key with "-", then joins
// Require and Options with "|". A matrix without options has no "|".
func (m Matrix) String() string {
	join := func(kvs map[string]string) string {
		keys := make([]string, 0, len(kvs))
		for k := range kvs {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		vals := make([]string, len(keys))
		for i, k := range keys {
			vals[i] = kvs[k]
		}
		return strings.Join(vals, "-")
	}
	req, opt := join(m.Require), join(m.Options)
	if opt == "" {
		return req
	}
	if req == "" {
		return opt
	}
	return req + "|" + opt
}
