// Package override finds a user-supplied pre-built copy of a native library.
package override

import (
	"strings"

	"github.com/goplus/rocksys/internal/env"
	"github.com/goplus/rocksys/internal/link"
	"github.com/qiniu/x/log"
)

// Keys returns the environment keys consulted for lib: <LIB>_COMPILE,
// <LIB>_LIB_DIR and <LIB>_STATIC.
func Keys(lib string) (compile, libDir, static string) {
	prefix := strings.ToUpper(lib)
	return prefix + "_COMPILE", prefix + "_LIB_DIR", prefix + "_STATIC"
}

// Resolve returns the plan linking a pre-built lib, or false when the
// library has to be built from source.
//
// A truthy <LIB>_COMPILE always wins. Otherwise <LIB>_LIB_DIR selects the
// directory, and the mere presence of <LIB>_STATIC selects static linking.
func Resolve(lib string, vars env.Lookuper) (*link.Plan, bool) {
	compileKey, dirKey, staticKey := Keys(lib)
	if v, ok := vars.Lookup(compileKey); ok && env.Truthy(v) {
		log.Debugf("override: %s set, building %s from source", compileKey, lib)
		return nil, false
	}
	dir, ok := vars.Lookup(dirKey)
	if !ok {
		return nil, false
	}
	mode := link.Dynamic
	if _, ok := vars.Lookup(staticKey); ok {
		mode = link.Static
	}
	log.Debugf("override: linking %s %s from %s", lib, mode, dir)
	return link.NewPlan(link.Search(dir), link.Lib(strings.ToLower(lib), mode)), true
}
