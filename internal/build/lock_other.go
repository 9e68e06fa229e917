//go:build !unix && !windows

package build

import (
	"os"
	"path/filepath"
)

// lockDir only creates dir/.lock: the platform has no file locking.
func lockDir(dir string) (unlock func(), err error) {
	f, err := os.OpenFile(filepath.Join(dir, ".lock"), os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, err
	}
	return func() { f.Close() }, nil
}
